package handlers

import (
	"fmt"
	"net/http"

	"github.com/artcatalog/backend/internal/config"
	"github.com/artcatalog/backend/internal/services"
	"github.com/gin-gonic/gin"
)

type ImageHandler struct {
	artworks *services.ArtworkService
	cfg      *config.Config
}

func NewImageHandler(artworks *services.ArtworkService, cfg *config.Config) *ImageHandler {
	return &ImageHandler{artworks: artworks, cfg: cfg}
}

// ListImages lists an artwork's images in stored order
// GET /api/v1/artworks/:id/images
func (h *ImageHandler) ListImages(c *gin.Context) {
	images, err := h.artworks.Images(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}

// AttachImages stores uploaded images as detail images
// POST /api/v1/artworks/:id/images
// Multipart: files / files[] (multiple), view (optional). JSON: {"images":[{"base64":..}|{"url":..}], "view":..}
func (h *ImageHandler) AttachImages(c *gin.Context) {
	payloads, view, err := h.readPayloads(c)
	if err != nil {
		respondError(c, err)
		return
	}

	images, err := h.artworks.AttachImages(c.Request.Context(), c.Param("id"), payloads, view)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"images": images, "total": len(images)})
}

func (h *ImageHandler) readPayloads(c *gin.Context) ([]services.ImagePayload, string, error) {
	limit := h.cfg.UploadMaxFiles

	if isMultipart(c) {
		files := formFiles(c, "files", "files[]", "file")
		if len(files) == 0 {
			return nil, "", &services.ValidationError{Field: "files", Reason: "is required"}
		}
		if limit > 0 && len(files) > limit {
			return nil, "", &services.ValidationError{Field: "files", Reason: fmt.Sprintf("maximum %d files per upload", limit)}
		}
		payloads := make([]services.ImagePayload, 0, len(files))
		for _, fh := range files {
			p, err := readUpload(fh, h.cfg.UploadMaxImageSize)
			if err != nil {
				return nil, "", err
			}
			payloads = append(payloads, p)
		}
		return payloads, c.PostForm("view"), nil
	}

	var req attachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, "", &services.ValidationError{Reason: "invalid JSON body: " + err.Error()}
	}
	if len(req.Images) == 0 {
		return nil, "", &services.ValidationError{Field: "images", Reason: "is required"}
	}
	if limit > 0 && len(req.Images) > limit {
		return nil, "", &services.ValidationError{Field: "images", Reason: fmt.Sprintf("maximum %d images per upload", limit)}
	}
	payloads := make([]services.ImagePayload, len(req.Images))
	for i, img := range req.Images {
		payloads[i] = services.ImagePayload{Base64: img.Base64, URL: img.URL}
	}
	return payloads, req.View, nil
}

// MakePrimary points the artwork's cover at an image
// POST /api/v1/artworks/:id/images/:image_id/primary
func (h *ImageHandler) MakePrimary(c *gin.Context) {
	artwork, err := h.artworks.MakePrimary(c.Request.Context(), c.Param("id"), c.Param("image_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, artwork)
}

// DeleteImage deletes an image and its files
// DELETE /api/v1/artworks/:id/images/:image_id
func (h *ImageHandler) DeleteImage(c *gin.Context) {
	if err := h.artworks.DeleteImage(c.Request.Context(), c.Param("id"), c.Param("image_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "image deleted"})
}
