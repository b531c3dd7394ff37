package ops

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerAPIKey = "X-API-Key"
	headerAuth   = "Authorization"
	bearerPrefix = "Bearer "
)

// apiKeyAuth guards the admin API. Keys are accepted from the X-API-Key
// header or an Authorization Bearer header and compared in constant time.
// With no keys configured every request is rejected.
func apiKeyAuth(apiKeys []string, logger *zap.Logger) gin.HandlerFunc {
	keys := make([]string, 0, len(apiKeys))
	for _, key := range apiKeys {
		if key != "" {
			keys = append(keys, key)
		}
	}

	return func(c *gin.Context) {
		provided := extractAPIKey(c.Request)
		if !isValidAPIKey(keys, provided) {
			logger.Warn("unauthorized admin request",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("remote_addr", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func extractAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get(headerAPIKey); apiKey != "" {
		return apiKey
	}
	if auth := r.Header.Get(headerAuth); strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimPrefix(auth, bearerPrefix)
	}
	return ""
}

func isValidAPIKey(keys []string, provided string) bool {
	if provided == "" || len(keys) == 0 {
		return false
	}
	for _, key := range keys {
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
			return true
		}
	}
	return false
}
