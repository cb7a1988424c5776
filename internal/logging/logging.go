// Package logging configures logrus for the proxy and provides the gin
// middlewares that log through it.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/router-for-me/CursorProxyAPI/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFormatter renders entries as "[time] [level] [file:line] message key=value".
type LogFormatter struct{}

// Format implements logrus.Formatter.
func (f *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	level := strings.ToUpper(entry.Level.String())
	if entry.HasCaller() {
		fmt.Fprintf(b, "[%s] [%s] [%s:%d] %s", timestamp, level, filepath.Base(entry.Caller.File), entry.Caller.Line, entry.Message)
	} else {
		fmt.Fprintf(b, "[%s] [%s] %s", timestamp, level, entry.Message)
	}
	for _, key := range sortedKeys(entry.Data) {
		fmt.Fprintf(b, " %s=%v", key, entry.Data[key])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

var setupOnce sync.Once

// SetupBaseLogger installs the formatter and caller reporting once per process.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})
	})
}

var (
	fileMu     sync.Mutex
	fileLogger *lumberjack.Logger
)

// ConfigureLogOutput applies the level and destination from cfg. With
// logging-to-file the output is duplicated into a rotating main.log.
func ConfigureLogOutput(cfg *config.Config) error {
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	fileMu.Lock()
	defer fileMu.Unlock()

	if !cfg.LoggingToFile {
		closeFileLogger()
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("logging: create log dir %s: %w", cfg.LogDir, err)
	}
	filename := filepath.Join(cfg.LogDir, "main.log")
	if fileLogger != nil && fileLogger.Filename == filename {
		return nil
	}
	closeFileLogger()
	fileLogger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileLogger))
	return nil
}

func closeFileLogger() {
	if fileLogger != nil {
		_ = fileLogger.Close()
		fileLogger = nil
	}
}

func sortedKeys(data log.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
