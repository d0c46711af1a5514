package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/comfypanel/comfypanel/client"
)

// ErrNotFound is returned when a gallery item does not exist.
var ErrNotFound = client.ErrNotFound

const DefaultListLimit = 50

// Store persists gallery items with gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn. postgres:// and postgresql:// DSNs use postgres; sqlite:// DSNs
// and plain paths use sqlite. Other schemes are rejected. ":memory:" opens a private
// in-memory database.
func Open(dsn string) (*Store, error) {
	return OpenWithLogLevel(dsn, gormlogger.Warn)
}

func OpenWithLogLevel(dsn string, level gormlogger.LogLevel) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("gallery: database DSN is empty")
	}

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(level)}

	var (
		db  *gorm.DB
		err error
	)
	isSqlite := false
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case strings.HasPrefix(dsn, "sqlite://"), !strings.Contains(dsn, "://"):
		isSqlite = true
		db, err = gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), cfg)
	default:
		return nil, fmt.Errorf("gallery: unsupported database DSN scheme %q", dsn[:strings.Index(dsn, "://")])
	}
	if err != nil {
		return nil, fmt.Errorf("gallery: connect database: %w", err)
	}

	if isSqlite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("gallery: retrieve sql db: %w", err)
		}
		// one connection keeps :memory: databases alive and serializes writers
		sqlDB.SetMaxOpenConns(1)
	}

	return NewStore(db), nil
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the gallery schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&galleryImage{}); err != nil {
		return fmt.Errorf("gallery: migrate: %w", err)
	}
	slog.Info("applied gallery migrations")
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) CreateGalleryItem(ctx context.Context, item client.GalleryItemCreate) (*client.GalleryItem, error) {
	entity := newEntity(item)
	if err := s.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return nil, fmt.Errorf("gallery: create item: %w", err)
	}
	out := mapEntity(entity)
	return &out, nil
}

// ListGallery returns up to limit items, newest first, optionally filtered by workflow.
// A limit <= 0 uses DefaultListLimit.
func (s *Store) ListGallery(ctx context.Context, workflowID string, limit int) ([]client.GalleryItem, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := s.db.WithContext(ctx).Model(&galleryImage{})
	if workflowID != "" {
		q = q.Where("workflow_id = ?", workflowID)
	}

	// ids are assigned in insertion order
	var entities []galleryImage
	if err := q.Order("id DESC").Limit(limit).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("gallery: list items: %w", err)
	}

	items := make([]client.GalleryItem, 0, len(entities))
	for _, e := range entities {
		items = append(items, mapEntity(e))
	}
	return items, nil
}

func (s *Store) GetGalleryItem(ctx context.Context, id int64) (*client.GalleryItem, error) {
	var entity galleryImage
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("gallery item %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("gallery: get item: %w", err)
	}
	out := mapEntity(entity)
	return &out, nil
}

// DeleteGalleryItem removes one item. The image file on the backend is untouched.
func (s *Store) DeleteGalleryItem(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&galleryImage{}, id)
	if res.Error != nil {
		return fmt.Errorf("gallery: delete item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("gallery item %d: %w", id, ErrNotFound)
	}
	return nil
}

// ClearGallery removes every item and returns how many were deleted.
func (s *Store) ClearGallery(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("1 = 1").Delete(&galleryImage{})
	if res.Error != nil {
		return 0, fmt.Errorf("gallery: clear: %w", res.Error)
	}
	return res.RowsAffected, nil
}
