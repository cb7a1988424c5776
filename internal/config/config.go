// Package config loads the proxy configuration from a YAML file, an optional
// .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/router-for-me/CursorProxyAPI/internal/util"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8000
	DefaultChatURL        = "https://cursor.com/api/chat"
	DefaultNodePath       = "node"
	DefaultJSDir          = "jscode"
	DefaultMetricsPath    = "/metrics"
	DefaultLogDir         = "logs"
	DefaultRequestTimeout = 5 * time.Minute

	defaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"
	defaultWebGLVendor   = "Google Inc. (Intel)"
	defaultWebGLRenderer = "ANGLE (Intel, Intel(R) UHD Graphics 620 (0x00005917) Direct3D11 vs_5_0 ps_5_0, D3D11)"
)

// Config is the full proxy configuration.
type Config struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	APIKeys         []string      `yaml:"api-keys" json:"api-keys"`
	Models          []string      `yaml:"models" json:"models"`
	MaxRetries      int           `yaml:"max-retries" json:"max-retries"`
	ProxyURL        string        `yaml:"proxy-url,omitempty" json:"proxy-url,omitempty"`
	Debug           bool          `yaml:"debug" json:"debug"`
	LoggingToFile   bool          `yaml:"logging-to-file" json:"logging-to-file"`
	LogDir          string        `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`
	UsageEstimation bool          `yaml:"usage-estimation" json:"usage-estimation"`
	Metrics         MetricsConfig `yaml:"metrics" json:"metrics"`
	Cursor          CursorConfig  `yaml:"cursor" json:"cursor"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// CursorConfig describes the upstream web chat endpoint and the browser
// identity presented to it.
type CursorConfig struct {
	ScriptURL      string        `yaml:"script-url" json:"script-url"`
	ChatURL        string        `yaml:"chat-url,omitempty" json:"chat-url,omitempty"`
	NodePath       string        `yaml:"node-path,omitempty" json:"node-path,omitempty"`
	JSDir          string        `yaml:"js-dir,omitempty" json:"js-dir,omitempty"`
	RequestTimeout time.Duration `yaml:"request-timeout,omitempty" json:"request-timeout,omitempty"`
	Fingerprint    Fingerprint   `yaml:"fingerprint" json:"fingerprint"`
}

// Fingerprint is the browser fingerprint substituted into the x-is-human
// challenge script.
type Fingerprint struct {
	UserAgent     string `yaml:"user-agent" json:"userAgent"`
	WebGLVendor   string `yaml:"webgl-vendor" json:"UNMASKED_VENDOR_WEBGL"`
	WebGLRenderer string `yaml:"webgl-renderer" json:"UNMASKED_RENDERER_WEBGL"`
}

// LoadConfig reads path (a missing file yields an empty configuration),
// applies environment overrides, then normalizes and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with the environment variables understood by
// the proxy.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookupTrimmed(lookup, "API_KEY"); ok {
		cfg.APIKeys = splitList(v)
	}
	if v, ok := lookupTrimmed(lookup, "MODELS"); ok {
		cfg.Models = splitList(v)
	}
	if v, ok := lookupTrimmed(lookup, "MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	if v, ok := lookupTrimmed(lookup, "PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORT: %w", err)
		}
		cfg.Port = n
	}
	if v, ok := lookupTrimmed(lookup, "DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: DEBUG: %w", err)
		}
		cfg.Debug = b
	}
	if v, ok := lookupTrimmed(lookup, "PROXY_URL"); ok {
		cfg.ProxyURL = v
	}
	if v, ok := lookupTrimmed(lookup, "SCRIPT_URL"); ok {
		cfg.Cursor.ScriptURL = v
	}
	if v, ok := lookupTrimmed(lookup, "FP"); ok {
		fp, err := DecodeFingerprint(v)
		if err != nil {
			return err
		}
		cfg.Cursor.Fingerprint = fp
	}
	return nil
}

// DecodeFingerprint parses the base64url encoded JSON fingerprint used by the
// FP environment variable.
func DecodeFingerprint(encoded string) (Fingerprint, error) {
	raw, err := util.DecodeBase64URL(encoded)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("config: FP is not base64url: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return Fingerprint{}, fmt.Errorf("config: FP is not a JSON object")
	}
	fp := gjson.ParseBytes(raw)
	return Fingerprint{
		UserAgent:     fp.Get("userAgent").String(),
		WebGLVendor:   fp.Get("UNMASKED_VENDOR_WEBGL").String(),
		WebGLRenderer: fp.Get("UNMASKED_RENDERER_WEBGL").String(),
	}, nil
}

// Normalize trims values, removes duplicate list entries and applies defaults.
func (cfg *Config) Normalize() {
	if cfg == nil {
		return
	}
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	cfg.APIKeys = dedupe(cfg.APIKeys)
	cfg.Models = dedupe(cfg.Models)
	cfg.ProxyURL = strings.TrimSpace(cfg.ProxyURL)

	cfg.LogDir = strings.TrimSpace(cfg.LogDir)
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir
	}
	if expanded, err := expandUserPath(cfg.LogDir); err == nil {
		cfg.LogDir = expanded
	}

	cfg.Metrics.Path = strings.TrimSpace(cfg.Metrics.Path)
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		cfg.Metrics.Path = "/" + cfg.Metrics.Path
	}

	cfg.Cursor.normalize()
}

func (c *CursorConfig) normalize() {
	c.ScriptURL = strings.TrimSpace(c.ScriptURL)
	c.ChatURL = strings.TrimSpace(c.ChatURL)
	if c.ChatURL == "" {
		c.ChatURL = DefaultChatURL
	}
	c.NodePath = strings.TrimSpace(c.NodePath)
	if c.NodePath == "" {
		c.NodePath = DefaultNodePath
	}
	c.JSDir = strings.TrimSpace(c.JSDir)
	if c.JSDir == "" {
		c.JSDir = DefaultJSDir
	}
	if expanded, err := expandUserPath(c.JSDir); err == nil {
		c.JSDir = expanded
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	fp := &c.Fingerprint
	fp.UserAgent = strings.TrimSpace(fp.UserAgent)
	if fp.UserAgent == "" {
		fp.UserAgent = defaultUserAgent
	}
	fp.WebGLVendor = strings.TrimSpace(fp.WebGLVendor)
	if fp.WebGLVendor == "" {
		fp.WebGLVendor = defaultWebGLVendor
	}
	fp.WebGLRenderer = strings.TrimSpace(fp.WebGLRenderer)
	if fp.WebGLRenderer == "" {
		fp.WebGLRenderer = defaultWebGLRenderer
	}
}

// Validate reports the first configuration problem found.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config: empty configuration")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", cfg.Port)
	}
	if len(cfg.APIKeys) == 0 {
		return fmt.Errorf("config: api-keys must contain at least one key")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("config: max-retries must be non-negative, got %d", cfg.MaxRetries)
	}
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return fmt.Errorf("config: proxy-url: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return fmt.Errorf("config: proxy-url scheme %q is not supported", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("config: proxy-url %q has no host", cfg.ProxyURL)
		}
	}
	if cfg.Cursor.ScriptURL == "" {
		return fmt.Errorf("config: cursor.script-url is required")
	}
	for name, raw := range map[string]string{"cursor.script-url": cfg.Cursor.ScriptURL, "cursor.chat-url": cfg.Cursor.ChatURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: %s %q is not an http(s) URL", name, raw)
		}
	}
	return nil
}

// Address returns the listen address.
func (cfg *Config) Address() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(v string) []string {
	return dedupe(strings.Split(v, ","))
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, item := range in {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func expandUserPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] != '~' {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	remainder := strings.TrimLeft(path[1:], "/\\")
	if remainder == "" {
		return filepath.Clean(home), nil
	}
	return filepath.Clean(filepath.Join(home, remainder)), nil
}
