package logging

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CursorProxyAPI/internal/interfaces"
	log "github.com/sirupsen/logrus"
)

// GinLogrusLogger logs one line per request after it has been served.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		fields := log.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond).String(),
			"client":  c.ClientIP(),
		}
		entry := log.WithFields(fields)
		msg := c.Request.Method + " " + path
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			entry = entry.WithField("errors", errs)
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error(msg)
		case status >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Info(msg)
		}
	}
}

// GinLogrusRecovery turns handler panics into a 500 OpenAI error envelope.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.WithField("panic", recovered).Errorf("recovered from panic: %s", debug.Stack())
		if c.Writer.Written() {
			c.Abort()
			return
		}
		body := interfaces.OpenAIError("internal server error", "server_error", "internal_error")
		c.Data(http.StatusInternalServerError, "application/json", body)
		c.Abort()
	})
}
