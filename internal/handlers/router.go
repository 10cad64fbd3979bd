package handlers

import (
	"net/http"

	"github.com/artcatalog/backend/internal/config"
	"github.com/artcatalog/backend/internal/middleware"
	"github.com/artcatalog/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SetupRouter wires the JSON API, the browsing pages, signed downloads and
// static media onto one engine. redisClient may be nil.
func SetupRouter(cfg *config.Config, redisClient *redis.Client, artworks *services.ArtworkService, onepager *services.OnepagerService, store *services.MediaStore) (*gin.Engine, error) {
	router := gin.New()
	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimiter(redisClient, cfg))
	router.MaxMultipartMemory = multipartMemory

	artworkHandler := NewArtworkHandler(artworks, cfg)
	imageHandler := NewImageHandler(artworks, cfg)
	onepagerHandler := NewOnepagerHandler(artworks, onepager, cfg)
	browseHandler, err := NewBrowseHandler(artworks, onepagerHandler, store, cfg)
	if err != nil {
		return nil, err
	}
	uploadLimit := middleware.UploadRateLimit(redisClient, cfg)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/download/onepager", onepagerHandler.DownloadOnepager)
	router.Static(services.MediaURLPrefix, store.Root())

	api := router.Group("/api/v1")
	api.Use(middleware.APIKey(cfg))
	{
		api.GET("/artworks", artworkHandler.ListArtworks)
		api.POST("/artworks", uploadLimit, artworkHandler.CreateArtwork)
		api.GET("/artworks/:id", artworkHandler.GetArtwork)
		api.PUT("/artworks/:id", artworkHandler.UpdateArtwork)
		api.PATCH("/artworks/:id", artworkHandler.UpdateArtwork)
		api.DELETE("/artworks/:id", artworkHandler.DeleteArtwork)

		api.GET("/artworks/:id/images", imageHandler.ListImages)
		api.POST("/artworks/:id/images", uploadLimit, imageHandler.AttachImages)
		api.POST("/artworks/:id/images/:image_id/primary", imageHandler.MakePrimary)
		api.DELETE("/artworks/:id/images/:image_id", imageHandler.DeleteImage)

		api.GET("/artworks/:id/onepager.pdf", onepagerHandler.GetOnepager)
		api.POST("/artworks/:id/onepager-link", onepagerHandler.CreateOnepagerLink)
	}

	// browsing pages
	router.GET("/", browseHandler.Index)
	router.GET("/artworks/new", browseHandler.NewArtwork)
	router.POST("/artworks", uploadLimit, browseHandler.CreateArtwork)
	router.GET("/artworks/:id", browseHandler.ShowArtwork)
	router.GET("/artworks/:id/edit", browseHandler.EditArtwork)
	router.POST("/artworks/:id/edit", browseHandler.UpdateArtwork)
	router.POST("/artworks/:id/images", uploadLimit, browseHandler.UploadImages)
	router.POST("/artworks/:id/images/:image_id/delete", browseHandler.DeleteImage)
	router.POST("/artworks/:id/images/:image_id/make-primary", browseHandler.MakePrimary)
	router.GET("/artworks/:id/onepager.pdf", browseHandler.Onepager)
	router.POST("/artworks/:id/delete", browseHandler.DeleteArtwork)

	return router, nil
}
