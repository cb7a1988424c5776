package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CursorProxyAPI/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestLogFormatter(t *testing.T) {
	entry := &log.Entry{
		Logger:  log.New(),
		Time:    time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "retry: attempt failed",
		Data:    log.Fields{"kind": "transport", "attempt": 1},
	}

	out, err := (&LogFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2024-01-01 12:30:00] [WARNING] retry: attempt failed attempt=1 kind=transport\n", string(out))
}

func TestConfigureLogOutputWritesFile(t *testing.T) {
	original := log.StandardLogger().Out
	originalLevel := log.GetLevel()
	t.Cleanup(func() {
		fileMu.Lock()
		closeFileLogger()
		fileMu.Unlock()
		log.SetOutput(original)
		log.SetLevel(originalLevel)
	})

	dir := t.TempDir()
	cfg := &config.Config{Debug: true, LoggingToFile: true, LogDir: dir}
	require.NoError(t, ConfigureLogOutput(cfg))
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	log.Info("written to file")
	data, err := os.ReadFile(filepath.Join(dir, "main.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	require.NoError(t, ConfigureLogOutput(&config.Config{}))
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestGinMiddlewares(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	original := log.StandardLogger().Out
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(original) })

	r := gin.New()
	r.Use(GinLogrusLogger(), GinLogrusRecovery())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, buf.String(), "GET /ok?x=1")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "server_error", gjson.Get(w.Body.String(), "error.type").String())
	assert.True(t, strings.Contains(buf.String(), "recovered from panic"))
}
