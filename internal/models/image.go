package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ImageViewPrimary = "primary"
	ImageViewDetail  = "detail"
)

// Image is one stored image file of an artwork.
// Path and Thumb are /media references; the files behind them may be missing.
type Image struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ArtworkID  string    `gorm:"size:64;not null;index" json:"artwork_id"`
	Path       string    `gorm:"size:1024" json:"path"`
	Thumb      string    `gorm:"size:1024" json:"thumb"`
	View       string    `gorm:"size:64" json:"view"`
	OrderIndex int       `gorm:"not null;default:0" json:"order_index"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate generates a UUID if not set
func (i *Image) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
