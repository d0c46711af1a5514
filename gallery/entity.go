package gallery

import (
	"time"

	"github.com/comfypanel/comfypanel/client"
)

// galleryImage is the persisted form of a gallery item.
type galleryImage struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Filename       string `gorm:"type:varchar(255);not null"`
	Subfolder      string `gorm:"type:varchar(255);not null;default:''"`
	PromptPositive string `gorm:"type:text;not null"`
	PromptNegative string `gorm:"type:text;not null;default:''"`
	Model          string `gorm:"type:varchar(255)"`
	Width          int
	Height         int
	Steps          int
	CFG            float64   `gorm:"column:cfg"`
	WorkflowID     string    `gorm:"type:varchar(64);index"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index"`
}

func (galleryImage) TableName() string {
	return "gallery"
}

func newEntity(item client.GalleryItemCreate) galleryImage {
	return galleryImage{
		Filename:       item.Filename,
		Subfolder:      item.Subfolder,
		PromptPositive: item.PromptPositive,
		PromptNegative: item.PromptNegative,
		Model:          item.Model,
		Width:          item.Width,
		Height:         item.Height,
		Steps:          item.Steps,
		CFG:            item.CFG,
		WorkflowID:     item.WorkflowID,
	}
}

func mapEntity(e galleryImage) client.GalleryItem {
	return client.GalleryItem{
		ID:             e.ID,
		Filename:       e.Filename,
		Subfolder:      e.Subfolder,
		PromptPositive: e.PromptPositive,
		PromptNegative: e.PromptNegative,
		Model:          e.Model,
		Width:          e.Width,
		Height:         e.Height,
		Steps:          e.Steps,
		CFG:            e.CFG,
		WorkflowID:     e.WorkflowID,
		CreatedAt:      e.CreatedAt,
	}
}
