package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/router-for-me/CursorProxyAPI/internal/config"
	"github.com/router-for-me/CursorProxyAPI/internal/interfaces"
	"github.com/router-for-me/CursorProxyAPI/internal/stream"
	"github.com/router-for-me/CursorProxyAPI/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type staticVerifier struct {
	token string
	err   error
	calls int
}

func (s *staticVerifier) Token(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func testConfig() *config.Config {
	cfg := &config.Config{
		APIKeys: []string{"k"},
		Cursor:  config.CursorConfig{ScriptURL: "https://cursor.com/c.js"},
	}
	cfg.Normalize()
	return cfg
}

const chatPayload = `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`

func TestStreamYieldsFragments(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	rt := testutil.RT(func(req *http.Request) (*http.Response, error) {
		captured = req
		capturedBody, _ = io.ReadAll(req.Body)
		return testutil.Response(req, http.StatusOK, testutil.SSEBody("Hello", " world"), nil), nil
	})
	verifier := &staticVerifier{token: "human"}
	exec := NewCursorExecutor(testConfig(), WithHTTPClient(testutil.Client(rt)), WithHumanVerifier(verifier))

	src, err := exec.Stream(context.Background(), "claude-4-sonnet", []byte(chatPayload))
	require.NoError(t, err)
	fragments, err := stream.Drain(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello", " world"}, fragments)
	assert.Equal(t, 1, verifier.calls)
	assert.Equal(t, config.DefaultChatURL, captured.URL.String())
	assert.Equal(t, "human", captured.Header.Get("x-is-human"))
	assert.Equal(t, "claude-4-sonnet", gjson.GetBytes(capturedBody, "model").String())
	assert.Len(t, gjson.GetBytes(capturedBody, "id").String(), requestIDLength)
	assert.Equal(t, "hi", gjson.GetBytes(capturedBody, "messages.0.parts.0.text").String())
}

func TestStreamDecodesCompressedBodies(t *testing.T) {
	body := testutil.SSEBody("compressed")
	encoders := map[string]func([]byte) []byte{
		"gzip": func(in []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			_, _ = w.Write(in)
			_ = w.Close()
			return buf.Bytes()
		},
		"br": func(in []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			_, _ = w.Write(in)
			_ = w.Close()
			return buf.Bytes()
		},
		"zstd": func(in []byte) []byte {
			enc, _ := zstd.NewWriter(nil)
			defer enc.Close()
			return enc.EncodeAll(in, nil)
		},
	}
	for encoding, encode := range encoders {
		t.Run(encoding, func(t *testing.T) {
			payload := encode([]byte(body))
			rt := testutil.RT(func(req *http.Request) (*http.Response, error) {
				header := http.Header{"Content-Encoding": []string{encoding}}
				resp := testutil.Response(req, http.StatusOK, "", header)
				resp.Body = io.NopCloser(bytes.NewReader(payload))
				return resp, nil
			})
			exec := NewCursorExecutor(testConfig(), WithHTTPClient(testutil.Client(rt)), WithHumanVerifier(&staticVerifier{}))

			src, err := exec.Stream(context.Background(), "gpt-4o", []byte(chatPayload))
			require.NoError(t, err)
			fragments, err := stream.Drain(context.Background(), src)
			require.NoError(t, err)
			assert.Equal(t, []string{"compressed"}, fragments)
		})
	}
}

func TestStreamMapsStatusErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"cloudflare", http.StatusForbidden, "<title>Attention Required! | Cloudflare</title>", "Cloudflare 403"},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, `{"error":"slow down"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := testutil.RT(func(req *http.Request) (*http.Response, error) {
				return testutil.Response(req, tc.status, tc.body, nil), nil
			})
			exec := NewCursorExecutor(testConfig(), WithHTTPClient(testutil.Client(rt)), WithHumanVerifier(&staticVerifier{}))

			_, err := exec.Stream(context.Background(), "gpt-4o", []byte(chatPayload))
			var statusErr *interfaces.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tc.status, statusErr.Code)
			assert.Equal(t, tc.message, statusErr.Message)
			assert.Equal(t, interfaces.KindDomain, interfaces.Classify(err))
		})
	}
}

func TestStreamMapsNetworkErrors(t *testing.T) {
	rt := testutil.RT(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	exec := NewCursorExecutor(testConfig(), WithHTTPClient(testutil.Client(rt)), WithHumanVerifier(&staticVerifier{}))

	_, err := exec.Stream(context.Background(), "gpt-4o", []byte(chatPayload))
	require.Error(t, err)
	assert.Equal(t, interfaces.KindTransport, interfaces.Classify(err))
}

func TestStreamPropagatesVerifierError(t *testing.T) {
	called := false
	rt := testutil.RT(func(req *http.Request) (*http.Response, error) {
		called = true
		return testutil.Response(req, http.StatusOK, "", nil), nil
	})
	verifierErr := errors.New("x-is-human: node execution failed")
	exec := NewCursorExecutor(testConfig(), WithHTTPClient(testutil.Client(rt)), WithHumanVerifier(&staticVerifier{err: verifierErr}))

	_, err := exec.Stream(context.Background(), "gpt-4o", []byte(chatPayload))
	assert.ErrorIs(t, err, verifierErr)
	assert.Equal(t, interfaces.KindUnknown, interfaces.Classify(err))
	assert.False(t, called)
}

func TestStreamRejectsInvalidPayload(t *testing.T) {
	exec := NewCursorExecutor(testConfig(), WithHumanVerifier(&staticVerifier{}))
	_, err := exec.Stream(context.Background(), "gpt-4o", []byte("{"))
	assert.Error(t, err)
	assert.Equal(t, "cursor", exec.Identifier())
}
