package handlers

import (
	"net/http"
	"strconv"

	"github.com/artcatalog/backend/internal/config"
	"github.com/artcatalog/backend/internal/services"
	"github.com/gin-gonic/gin"
)

type ArtworkHandler struct {
	artworks *services.ArtworkService
	cfg      *config.Config
}

func NewArtworkHandler(artworks *services.ArtworkService, cfg *config.Config) *ArtworkHandler {
	return &ArtworkHandler{artworks: artworks, cfg: cfg}
}

// ListArtworks lists artworks, newest first
// GET /api/v1/artworks?q=&medium=&year_from=&year_to=&min_width_mm=&page=1&limit=24
func (h *ArtworkHandler) ListArtworks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "24"))

	filter := services.ArtworkFilter{
		Q:           c.Query("q"),
		Medium:      c.Query("medium"),
		Series:      c.Query("series"),
		Style:       c.Query("style"),
		Location:    c.Query("location"),
		Artist:      c.Query("artist"),
		YearFrom:    c.Query("year_from"),
		YearTo:      c.Query("year_to"),
		MinWidthMM:  queryInt(c, "min_width_mm"),
		MaxWidthMM:  queryInt(c, "max_width_mm"),
		MinHeightMM: queryInt(c, "min_height_mm"),
		MaxHeightMM: queryInt(c, "max_height_mm"),
		MinDepthMM:  queryInt(c, "min_depth_mm"),
		MaxDepthMM:  queryInt(c, "max_depth_mm"),
		Page:        page,
		Limit:       limit,
	}

	artworks, total, err := h.artworks.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	if page < 1 {
		page = 1
	}
	c.JSON(http.StatusOK, gin.H{
		"artworks": artworks,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// CreateArtwork creates an artwork
// POST /api/v1/artworks
// JSON: fields + optional image_base64 / image_url. Multipart: fields + optional file "image"
func (h *ArtworkHandler) CreateArtwork(c *gin.Context) {
	req, err := bindArtworkRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}
	in := req.createInput()

	if isMultipart(c) {
		if files := formFiles(c, "image"); len(files) > 0 {
			payload, err := readUpload(files[0], h.cfg.UploadMaxImageSize)
			if err != nil {
				respondError(c, err)
				return
			}
			in.PrimaryImage = &payload
		}
	}

	artwork, err := h.artworks.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, artwork)
}

// GetArtwork returns one artwork with its images
// GET /api/v1/artworks/:id
func (h *ArtworkHandler) GetArtwork(c *gin.Context) {
	artwork, err := h.artworks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, artwork)
}

// UpdateArtwork replaces the supplied fields
// PUT/PATCH /api/v1/artworks/:id
func (h *ArtworkHandler) UpdateArtwork(c *gin.Context) {
	req, err := bindArtworkRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}
	artwork, err := h.artworks.Update(c.Request.Context(), c.Param("id"), req.patch())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, artwork)
}

// DeleteArtwork deletes an artwork, its images and its media files
// DELETE /api/v1/artworks/:id
func (h *ArtworkHandler) DeleteArtwork(c *gin.Context) {
	id := c.Param("id")
	if err := h.artworks.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "artwork deleted", "artwork_id": id})
}
