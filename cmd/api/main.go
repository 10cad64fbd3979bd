package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artcatalog/backend/internal/config"
	"github.com/artcatalog/backend/internal/handlers"
	"github.com/artcatalog/backend/internal/logging"
	"github.com/artcatalog/backend/internal/models"
	"github.com/artcatalog/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	// Initialize configuration
	cfg := config.New()
	logging.Setup(cfg.LogLevel, cfg.LogHuman)
	if envErr != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}

	// Initialize database
	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	// Run migrations
	if err := models.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Initialize Redis
	redisClient := models.InitRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis not reachable, rate limiting and distributed locks will fail open")
		}
		cancel()
	}

	// Initialize services
	var mirror services.MediaMirror
	s3Service, err := services.NewS3Service(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init S3 mirror")
	}
	if s3Service != nil {
		mirror = s3Service
		log.Info().Str("bucket", cfg.MediaS3Bucket).Msg("media mirror enabled")
	}

	store, err := services.NewMediaStore(cfg, mirror)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init media store")
	}

	artworkService := services.NewArtworkService(db, store, services.ArtworkServiceOptions{
		Locker:        services.NewLocker(cfg, redisClient),
		Payloads:      services.NewPayloadResolver(cfg),
		DefaultArtist: cfg.DefaultArtistName,
	})
	onepagerService := services.NewOnepagerService(cfg, store)

	// Setup Gin router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router, err := handlers.SetupRouter(cfg, redisClient, artworkService, onepagerService, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up routes")
	}

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  120 * time.Second, // large multipart uploads
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Port).Str("media_root", cfg.MediaRoot).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
