package executor

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/router-for-me/CursorProxyAPI/internal/config"
	"github.com/router-for-me/CursorProxyAPI/internal/interfaces"
	"github.com/router-for-me/CursorProxyAPI/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode writes an executable that prints the script it is given, standing
// in for node.
func fakeNode(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "node")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func verifierConfig(t *testing.T, nodePath string) config.CursorConfig {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, mainScriptFile), []byte("$$userAgent$$|$$UNMASKED_VENDOR_WEBGL$$|$$UNMASKED_RENDERER_WEBGL$$|$$currentScriptSrc$$|$$env_jscode$$|$$cursor_jscode$$"))
	testutil.WriteFile(t, filepath.Join(dir, envScriptFile), []byte("ENV"))
	return config.CursorConfig{
		ScriptURL: "https://cursor.com/c.js",
		NodePath:  nodePath,
		JSDir:     dir,
		Fingerprint: config.Fingerprint{
			UserAgent:     "ua",
			WebGLVendor:   "vendor",
			WebGLRenderer: "renderer",
		},
	}
}

func scriptServer(status int, body string, seen *http.Header) *http.Client {
	return testutil.Client(func(req *http.Request) (*http.Response, error) {
		if seen != nil {
			*seen = req.Header.Clone()
		}
		return testutil.Response(req, status, body, nil), nil
	})
}

func TestNodeVerifierBuildsAndRunsScript(t *testing.T) {
	var seen http.Header
	cfg := verifierConfig(t, fakeNode(t, `cat "$1"`))
	v := newNodeVerifier(cfg, scriptServer(http.StatusOK, "CURSOR $$userAgent$$", &seen))

	token, err := v.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ua|vendor|renderer|https://cursor.com/c.js|ENV|CURSOR $$userAgent$$", token)
	assert.Equal(t, "script", seen.Get("sec-fetch-dest"))
	assert.Equal(t, "ua", seen.Get("User-Agent"))
}

func TestNodeVerifierTrimsOutput(t *testing.T) {
	cfg := verifierConfig(t, fakeNode(t, `printf '  token-123 \n'`))
	v := newNodeVerifier(cfg, scriptServer(http.StatusOK, "", nil))

	token, err := v.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-123", token)
}

func TestNodeVerifierNodeFailure(t *testing.T) {
	cfg := verifierConfig(t, fakeNode(t, "echo broken >&2; exit 3"))
	v := newNodeVerifier(cfg, scriptServer(http.StatusOK, "", nil))

	_, err := v.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node execution failed")
	assert.Equal(t, interfaces.KindUnknown, interfaces.Classify(err))
}

func TestNodeVerifierScriptStatus(t *testing.T) {
	cfg := verifierConfig(t, fakeNode(t, "echo never"))
	v := newNodeVerifier(cfg, scriptServer(http.StatusForbidden, "Attention Required! | Cloudflare", nil))

	_, err := v.Token(context.Background())
	var statusErr *interfaces.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Equal(t, "Cloudflare 403", statusErr.Message)
}

func TestNodeVerifierMissingTemplates(t *testing.T) {
	cfg := verifierConfig(t, "node")
	cfg.JSDir = filepath.Join(t.TempDir(), "missing")
	v := newNodeVerifier(cfg, scriptServer(http.StatusOK, "", nil))

	_, err := v.Token(context.Background())
	assert.ErrorContains(t, err, mainScriptFile)
}
