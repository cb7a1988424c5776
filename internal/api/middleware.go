package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CursorProxyAPI/internal/config"
	"github.com/router-for-me/CursorProxyAPI/internal/interfaces"
	"golang.org/x/crypto/bcrypt"
)

// AuthMiddleware requires "Authorization: Bearer <key>" matching one of the
// configured API keys. The configuration is read per request so reloaded keys
// apply immediately.
func AuthMiddleware(current func() *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || !MatchAPIKey(current().APIKeys, key) {
			c.Data(http.StatusUnauthorized, "application/json",
				interfaces.OpenAIError("invalid api key", "authentication_error", "invalid_api_key"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// MatchAPIKey compares key with every configured key. Entries that look like
// bcrypt hashes are verified with bcrypt, others in constant time.
func MatchAPIKey(keys []string, key string) bool {
	for _, candidate := range keys {
		if isBcryptHash(candidate) {
			if bcrypt.CompareHashAndPassword([]byte(candidate), []byte(key)) == nil {
				return true
			}
			continue
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
