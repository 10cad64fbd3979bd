package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/artcatalog/backend/internal/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const APIKeyHeader = "X-API-Key"

// APIKey gates a route group behind the shared secret, read from the X-API-Key
// header or the api_key query parameter. With no secret configured every
// request passes.
func APIKey(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.SecretConfigured() {
			c.Next()
			return
		}

		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			key = c.Query("api_key")
		}

		if key == "" || !secretMatches(cfg, key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing or invalid API key",
			})
			return
		}
		c.Next()
	}
}

func secretMatches(cfg *config.Config, key string) bool {
	if cfg.APISecret != "" && subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APISecret)) == 1 {
		return true
	}
	if cfg.APISecretBcrypt != "" && bcrypt.CompareHashAndPassword([]byte(cfg.APISecretBcrypt), []byte(key)) == nil {
		return true
	}
	return false
}
