package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/router-for-me/CursorProxyAPI/internal/config"
	"github.com/router-for-me/CursorProxyAPI/internal/interfaces"
	log "github.com/sirupsen/logrus"
)

// HumanVerifier produces the x-is-human header value required by the chat
// endpoint.
type HumanVerifier interface {
	Token(ctx context.Context) (string, error)
}

const (
	mainScriptFile = "main.js"
	envScriptFile  = "env.js"
)

// nodeVerifier downloads the challenge script, embeds it into the local
// browser emulation templates and evaluates the result with node.
type nodeVerifier struct {
	cfg    config.CursorConfig
	client *http.Client

	loadOnce sync.Once
	mainCode string
	envCode  string
	errLoad  error
}

func newNodeVerifier(cfg config.CursorConfig, client *http.Client) *nodeVerifier {
	return &nodeVerifier{cfg: cfg, client: client}
}

func (v *nodeVerifier) Token(ctx context.Context) (string, error) {
	if err := v.loadTemplates(); err != nil {
		return "", err
	}
	cursorJS, err := v.fetchScript(ctx)
	if err != nil {
		return "", err
	}
	token, err := runNode(ctx, v.cfg.NodePath, v.buildScript(cursorJS))
	if err != nil {
		return "", err
	}
	log.Debugf("cursor client: x-is-human token obtained (%d bytes)", len(token))
	return token, nil
}

func (v *nodeVerifier) loadTemplates() error {
	v.loadOnce.Do(func() {
		mainCode, err := os.ReadFile(filepath.Join(v.cfg.JSDir, mainScriptFile))
		if err != nil {
			v.errLoad = fmt.Errorf("x-is-human: read %s: %w", mainScriptFile, err)
			return
		}
		envCode, err := os.ReadFile(filepath.Join(v.cfg.JSDir, envScriptFile))
		if err != nil {
			v.errLoad = fmt.Errorf("x-is-human: read %s: %w", envScriptFile, err)
			return
		}
		v.mainCode, v.envCode = string(mainCode), string(envCode)
	})
	return v.errLoad
}

func (v *nodeVerifier) fetchScript(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.ScriptURL, nil)
	if err != nil {
		return "", fmt.Errorf("x-is-human: build script request: %w", err)
	}
	applyScriptHeaders(req, v.cfg.Fingerprint)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", interfaces.NewTransportError("x-is-human: fetch script", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("cursor client: close script body error: %v", errClose)
		}
	}()

	body, err := decodedBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return "", interfaces.NewTransportError("x-is-human: decode script", err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", interfaces.NewTransportError("x-is-human: read script", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &interfaces.StatusError{Code: resp.StatusCode, Message: upstreamErrorMessage(data)}
	}
	return string(data), nil
}

// buildScript substitutes the fingerprint first and the embedded scripts last
// so placeholders inside downloaded code are left alone.
func (v *nodeVerifier) buildScript(cursorJS string) string {
	fp := v.cfg.Fingerprint
	script := strings.NewReplacer(
		"$$currentScriptSrc$$", v.cfg.ScriptURL,
		"$$UNMASKED_VENDOR_WEBGL$$", fp.WebGLVendor,
		"$$UNMASKED_RENDERER_WEBGL$$", fp.WebGLRenderer,
		"$$userAgent$$", fp.UserAgent,
	).Replace(v.mainCode)
	script = strings.ReplaceAll(script, "$$env_jscode$$", v.envCode)
	return strings.ReplaceAll(script, "$$cursor_jscode$$", cursorJS)
}

// runNode evaluates code with node from a private temporary directory and
// returns the trimmed standard output.
func runNode(ctx context.Context, nodePath, code string) (string, error) {
	dir, err := os.MkdirTemp("", "cursor-human-")
	if err != nil {
		return "", fmt.Errorf("x-is-human: create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	scriptPath := filepath.Join(dir, "script.js")
	if err := os.WriteFile(scriptPath, []byte(code), 0o600); err != nil {
		return "", fmt.Errorf("x-is-human: write script: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, nodePath, scriptPath)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		log.WithFields(log.Fields{
			"stdout": sanitizePayloadForLog(stdout.Bytes()),
			"stderr": sanitizePayloadForLog(stderr.Bytes()),
		}).Error("x-is-human: node execution failed")
		return "", fmt.Errorf("x-is-human: node execution failed: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
