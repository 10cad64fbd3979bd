package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/artcatalog/backend/internal/config"
	"github.com/artcatalog/backend/internal/models"
	"github.com/artcatalog/backend/internal/services"
	"github.com/artcatalog/backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type OnepagerHandler struct {
	artworks *services.ArtworkService
	onepager *services.OnepagerService
	cfg      *config.Config
}

func NewOnepagerHandler(artworks *services.ArtworkService, onepager *services.OnepagerService, cfg *config.Config) *OnepagerHandler {
	return &OnepagerHandler{artworks: artworks, onepager: onepager, cfg: cfg}
}

// GetOnepager renders the artwork's one-pager
// GET /api/v1/artworks/:id/onepager.pdf?gallery=true
func (h *OnepagerHandler) GetOnepager(c *gin.Context) {
	gallery, _ := strconv.ParseBool(c.DefaultQuery("gallery", "false"))
	h.serve(c, c.Param("id"), gallery)
}

// CreateOnepagerLink issues an expiring download link that needs no API secret
// POST /api/v1/artworks/:id/onepager-link?gallery=true
func (h *OnepagerHandler) CreateOnepagerLink(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.artworks.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	secret := h.cfg.TokenSecret()
	if secret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_configured", "message": "no link signing secret configured"})
		return
	}

	gallery, _ := strconv.ParseBool(c.DefaultQuery("gallery", "false"))
	token, err := jwt.GenerateOnepagerToken(id, gallery, secret, h.cfg.DownloadTokenTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	link := fmt.Sprintf("%s/download/onepager?token=%s", h.cfg.PublicBaseURL, url.QueryEscape(token))
	c.JSON(http.StatusOK, gin.H{
		"url":        link,
		"token":      token,
		"expires_at": time.Now().Add(h.cfg.DownloadTokenTTL).UTC(),
	})
}

// DownloadOnepager serves a one-pager for a signed link
// GET /download/onepager?token=
func (h *OnepagerHandler) DownloadOnepager(c *gin.Context) {
	claims, err := jwt.ValidateOnepagerToken(c.Query("token"), h.cfg.TokenSecret())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid or expired link"})
		return
	}
	h.serve(c, claims.ArtworkID, claims.Gallery)
}

func (h *OnepagerHandler) serve(c *gin.Context, id string, gallery bool) {
	artwork, err := h.artworks.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	doc, err := h.render(artwork, gallery)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s_onepager.pdf"`, artwork.ArtworkID))
	c.Header("X-Page-Count", strconv.Itoa(doc.Pages))
	c.Data(http.StatusOK, "application/pdf", doc.Data)
}

func (h *OnepagerHandler) render(artwork *models.Artwork, gallery bool) (*services.Onepager, error) {
	doc, err := h.onepager.Render(artwork, artwork.Images, services.RenderOptions{
		Gallery:     gallery,
		GeneratedAt: artwork.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("artwork_id", artwork.ArtworkID).Int("pages", doc.Pages).Msg("one-pager rendered")
	return doc, nil
}
