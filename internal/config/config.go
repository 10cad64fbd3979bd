package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port          string
	Env           string
	PublicBaseURL string

	// Logging
	LogLevel string
	LogHuman bool

	// Database
	DBDriver   string // "postgres" | "sqlite"
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Redis
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Locking
	LockBackend string // "local" | "redis"
	LockTTL     time.Duration

	// Media
	MediaRoot         string
	DataDir           string
	MediaMaxFullSize  int
	MediaThumbSize    int
	MediaFullQuality  int
	MediaThumbQuality int

	// Uploads
	UploadMaxImageSize int64
	UploadMaxFiles     int
	UploadDailyLimit   int
	FetchTimeout       time.Duration
	FetchAllowPrivate  bool

	// Catalog defaults
	DefaultArtistName string

	// Shared secret for the JSON API
	APISecret       string
	APISecretBcrypt string

	// Signed one-pager links
	DownloadTokenSecret string
	DownloadTokenTTL    time.Duration

	// One-pager
	OnepagerCompress bool

	// Security
	RateLimitRequests int
	RateLimitDuration time.Duration

	// CORS
	AllowedOrigins []string

	// Media S3 mirror (optional)
	MediaS3Endpoint        string
	MediaS3Region          string
	MediaS3AccessKeyID     string
	MediaS3SecretAccessKey string
	MediaS3UsePathStyle    bool
	MediaS3Bucket          string
}

func New() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogHuman: getEnv("LOG_HUMAN", "true") == "true",

		// Database
		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "catalog"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "catalog"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "data/catalog.sqlite"),

		// Redis
		RedisEnabled:  getEnv("REDIS_ENABLED", "false") == "true",
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Locking
		LockBackend: getEnv("LOCK_BACKEND", "local"),
		LockTTL:     getEnvAsDuration("LOCK_TTL", "30s"),

		// Media
		MediaRoot:         getEnv("MEDIA_ROOT", "data/media"),
		DataDir:           getEnv("DATA_DIR", "data"),
		MediaMaxFullSize:  getEnvAsInt("MEDIA_MAX_FULL_SIZE", 1600),
		MediaThumbSize:    getEnvAsInt("MEDIA_THUMB_SIZE", 400),
		MediaFullQuality:  getEnvAsInt("MEDIA_FULL_QUALITY", 90),
		MediaThumbQuality: getEnvAsInt("MEDIA_THUMB_QUALITY", 85),

		// Uploads
		UploadMaxImageSize: getEnvAsInt64("UPLOAD_MAX_IMAGE_SIZE", 40*1024*1024),
		UploadMaxFiles:     getEnvAsInt("UPLOAD_MAX_FILES", 20),
		UploadDailyLimit:   getEnvAsInt("UPLOAD_DAILY_LIMIT", 1000),
		FetchTimeout:       getEnvAsDuration("FETCH_TIMEOUT", "20s"),
		FetchAllowPrivate:  getEnv("FETCH_ALLOW_PRIVATE", "false") == "true",

		DefaultArtistName: getEnv("DEFAULT_ARTIST_NAME", ""),

		APISecret:       getEnv("API_SECRET", ""),
		APISecretBcrypt: getEnv("API_SECRET_BCRYPT", ""),

		DownloadTokenSecret: getEnv("DOWNLOAD_TOKEN_SECRET", ""),
		DownloadTokenTTL:    getEnvAsDuration("DOWNLOAD_TOKEN_TTL", "15m"),

		OnepagerCompress: getEnv("ONEPAGER_COMPRESS", "true") == "true",

		// Security
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 300),
		RateLimitDuration: getEnvAsDuration("RATE_LIMIT_DURATION", "1m"),

		// CORS
		AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		// Media S3 mirror
		MediaS3Endpoint:        getEnv("MEDIA_S3_ENDPOINT", ""),
		MediaS3Region:          getEnv("MEDIA_S3_REGION", "us-east-1"),
		MediaS3AccessKeyID:     getEnv("MEDIA_S3_ACCESS_KEY_ID", ""),
		MediaS3SecretAccessKey: getEnv("MEDIA_S3_SECRET_ACCESS_KEY", ""),
		MediaS3UsePathStyle:    getEnv("MEDIA_S3_USE_PATH_STYLE", "true") == "true",
		MediaS3Bucket:          getEnv("MEDIA_S3_BUCKET", ""),
	}
}

// SecretConfigured reports whether the JSON API is gated by a shared secret.
func (c *Config) SecretConfigured() bool {
	return c.APISecret != "" || c.APISecretBcrypt != ""
}

// TokenSecret returns the key used to sign one-pager download links.
// Falls back to the API secret so a single secret is enough for small setups.
func (c *Config) TokenSecret() string {
	if c.DownloadTokenSecret != "" {
		return c.DownloadTokenSecret
	}
	return c.APISecret
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Minute
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
