package gallery

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comfypanel/comfypanel/client"
)

const (
	DefaultBasePath        = "/api"
	DefaultShutdownTimeout = 10 * time.Second

	writeWait = 10 * time.Second
)

// gallery_updated actions
const (
	ActionCreated = "created"
	ActionDeleted = "deleted"
	ActionCleared = "cleared"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes a Store over HTTP and pushes gallery_updated frames after mutations.
type Server struct {
	store           *Store
	hub             *Hub
	engine          *gin.Engine
	basePath        string
	listLimit       int
	shutdownTimeout time.Duration
}

type ServerOption func(*Server)

// WithBasePath mounts the gallery routes under p. Use "" to mount them at the root.
func WithBasePath(p string) ServerOption {
	return func(s *Server) {
		s.basePath = p
	}
}

// WithListLimit sets the default number of items GET /gallery returns.
func WithListLimit(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.listLimit = n
		}
	}
}

func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

func NewServer(store *Store, opts ...ServerOption) *Server {
	s := &Server{
		store:           store,
		hub:             NewHub(),
		basePath:        DefaultBasePath,
		listLimit:       DefaultListLimit,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), observe())
	s.registerRoutes(engine)
	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) registerRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := engine.Group(s.basePath)
	g.GET("/gallery", s.listItems)
	g.POST("/gallery", s.createItem)
	g.DELETE("/gallery", s.clearItems)
	g.DELETE("/gallery/:id", s.deleteItem)
	g.GET("/gallery/ws", s.streamUpdates)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gallery server listening", "addr", addr, "base_path", s.basePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down gallery server")
	case err := <-errCh:
		return err
	}

	// websocket connections are hijacked and not closed by Shutdown
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) listItems(c *gin.Context) {
	limit := s.listLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	items, err := s.store.ListGallery(c.Request.Context(), c.Query("workflow_id"), limit)
	if err != nil {
		slog.Error("listing gallery", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to list gallery"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) createItem(c *gin.Context) {
	var req client.GalleryItemCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	item, err := s.store.CreateGalleryItem(c.Request.Context(), req)
	if err != nil {
		slog.Error("creating gallery item", "filename", req.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to save gallery item"})
		return
	}
	s.notify(ActionCreated, item.ID)
	c.JSON(http.StatusOK, item)
}

func (s *Server) deleteItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "id must be an integer"})
		return
	}

	if err := s.store.DeleteGalleryItem(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Image not found"})
			return
		}
		slog.Error("deleting gallery item", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to delete gallery item"})
		return
	}
	s.notify(ActionDeleted, id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
}

func (s *Server) clearItems(c *gin.Context) {
	n, err := s.store.ClearGallery(c.Request.Context())
	if err != nil {
		slog.Error("clearing gallery", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to clear gallery"})
		return
	}
	s.notify(ActionCleared, 0)
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "deleted": n})
}

func (s *Server) notify(action string, id int64) {
	mutationsTotal.WithLabelValues(action).Inc()
	n, err := s.hub.PublishEvent(client.NewGalleryUpdatedEvent(action, id))
	if err != nil {
		slog.Error("encoding gallery_updated", "error", err)
		return
	}
	slog.Debug("published gallery_updated", "action", action, "id", id, "subscribers", n)
}

func (s *Server) streamUpdates(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("gallery websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	frames, cancel := s.hub.Subscribe()
	defer cancel()

	// the read loop only detects the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-frames:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("gallery websocket write failed", "error", err)
				return
			}
		case <-gone:
			return
		}
	}
}
