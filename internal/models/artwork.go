package models

import "time"

// Artwork is one physical piece in the catalog.
// ArtworkID is assigned once at creation and never changes; images refer to it.
// Dimensions are stored in millimetres.
type Artwork struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	ArtworkID string `gorm:"size:64;uniqueIndex;not null" json:"artwork_id"`

	Title           string `gorm:"size:512;not null" json:"title"`
	ArtistName      string `gorm:"size:255" json:"artist_name"`
	Year            string `gorm:"size:32;index" json:"year"`
	Medium          string `gorm:"size:255" json:"medium"`
	Surface         string `gorm:"size:255" json:"surface"`
	Series          string `gorm:"size:255" json:"series"`
	Style           string `gorm:"size:255" json:"style"`
	Edition         string `gorm:"size:255;default:Unique" json:"edition"`
	SubjectKeywords string `gorm:"size:1024" json:"subject_keywords"`
	Provenance      string `gorm:"type:text" json:"provenance"`
	Location        string `gorm:"size:255" json:"location"`
	InventoryCode   string `gorm:"size:128" json:"inventory_code"`
	Description     string `gorm:"type:text" json:"description"`

	WidthMM        int `json:"width_mm"`
	HeightMM       int `json:"height_mm"`
	DepthMM        int `json:"depth_mm"`
	FramedWidthMM  int `json:"framed_width_mm"`
	FramedHeightMM int `json:"framed_height_mm"`
	FramedDepthMM  int `json:"framed_depth_mm"`

	PrimaryImage string `gorm:"size:1024" json:"primary_image"`
	WebSlug      string `gorm:"size:512;index" json:"web_slug"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Images []Image `gorm:"foreignKey:ArtworkID;references:ArtworkID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
}
