package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/router-for-me/CursorProxyAPI/internal/config"
	"github.com/router-for-me/CursorProxyAPI/internal/interfaces"
	log "github.com/sirupsen/logrus"
)

const (
	cursorOrigin      = "https://cursor.com"
	cursorReferer     = "https://cursor.com/en-US/learn/how-ai-models-work"
	cursorSecCHUA     = `"Chromium";v="140", "Not=A?Brand";v="24", "Google Chrome";v="140"`
	cursorLanguage    = "zh-CN,zh;q=0.9,en;q=0.8"
	cloudflareMarker  = "Attention Required! | Cloudflare"
	cloudflareMessage = "Cloudflare 403"
)

type cursorClient struct {
	cfg        *config.Config
	httpClient *http.Client
	verifier   HumanVerifier
}

func newCursorClient(cfg *config.Config, httpClient *http.Client, verifier HumanVerifier) *cursorClient {
	return &cursorClient{cfg: cfg, httpClient: httpClient, verifier: verifier}
}

// openChat posts body to the chat endpoint and returns the still unread,
// decoded response body. Non-200 answers are turned into StatusError.
func (c *cursorClient) openChat(ctx context.Context, body []byte) (io.ReadCloser, error) {
	token, err := c.verifier.Token(ctx)
	if err != nil {
		return nil, err
	}

	c.debugDumpPayload("cursor request", body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Cursor.ChatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cursor client: build request: %w", err)
	}
	applyChatHeaders(req, c.cfg.Cursor.Fingerprint, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, interfaces.NewTransportError("cursor client: post chat", err)
	}

	decoded, err := decodedBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		_ = resp.Body.Close()
		return nil, interfaces.NewTransportError("cursor client: decode response", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() {
			if errClose := decoded.Close(); errClose != nil {
				log.Errorf("cursor client: close body error: %v", errClose)
			}
		}()
		data, errRead := io.ReadAll(decoded)
		if errRead != nil {
			return nil, interfaces.NewTransportError("cursor client: read error body", errRead)
		}
		c.debugDumpPayload("cursor error response", data)
		return nil, &interfaces.StatusError{Code: resp.StatusCode, Message: upstreamErrorMessage(data)}
	}
	return decoded, nil
}

// upstreamErrorMessage replaces Cloudflare challenge pages with a short text.
func upstreamErrorMessage(body []byte) string {
	text := string(body)
	if strings.Contains(text, cloudflareMarker) {
		return cloudflareMessage
	}
	return strings.TrimSpace(text)
}

func applyBrowserHeaders(req *http.Request, fp config.Fingerprint) {
	req.Header.Set("User-Agent", fp.UserAgent)
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set("sec-ch-ua", cursorSecCHUA)
	req.Header.Set("sec-ch-ua-arch", `"x86"`)
	req.Header.Set("sec-ch-ua-bitness", `"64"`)
	req.Header.Set("sec-ch-ua-mobile", "?0")
	req.Header.Set("sec-ch-ua-platform", `"Windows"`)
	req.Header.Set("sec-ch-ua-platform-version", `"19.0.0"`)
	req.Header.Set("sec-fetch-site", "same-origin")
	req.Header.Set("referer", cursorReferer)
	req.Header.Set("accept-language", cursorLanguage)
}

func applyScriptHeaders(req *http.Request, fp config.Fingerprint) {
	applyBrowserHeaders(req, fp)
	req.Header.Set("sec-fetch-mode", "no-cors")
	req.Header.Set("sec-fetch-dest", "script")
}

func applyChatHeaders(req *http.Request, fp config.Fingerprint, humanToken string) {
	applyBrowserHeaders(req, fp)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-path", "/api/chat")
	req.Header.Set("x-method", "POST")
	req.Header.Set("x-is-human", humanToken)
	req.Header.Set("origin", cursorOrigin)
	req.Header.Set("sec-fetch-mode", "cors")
	req.Header.Set("sec-fetch-dest", "empty")
	req.Header.Set("priority", "u=1, i")
}

func (c *cursorClient) debugDumpPayload(label string, payload []byte) {
	if c.cfg == nil || !c.cfg.Debug || len(payload) == 0 {
		return
	}
	const limit = 4096
	dump := bytes.TrimSpace(payload)
	truncated := len(dump) > limit
	if truncated {
		dump = dump[:limit]
	}
	render := sanitizePayloadForLog(dump)
	if render == "" {
		render = "[binary payload omitted]"
	}
	log.WithFields(log.Fields{
		"provider":  "cursor",
		"bytes":     len(payload),
		"truncated": truncated,
	}).Debugf("%s payload: %s", label, render)
}

// sanitizePayloadForLog folds CRLF into LF and drops control bytes so payload
// dumps stay on readable log lines.
func sanitizePayloadForLog(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	out := make([]byte, 0, len(payload))
	lastWasCR := false
	for _, b := range payload {
		if b == '\r' || b == '\n' {
			if b == '\n' && lastWasCR {
				lastWasCR = false
				continue
			}
			out = append(out, '\n')
			lastWasCR = b == '\r'
			continue
		}
		lastWasCR = false
		if b == '\t' || (b >= 0x20 && b != 0x7f) {
			out = append(out, b)
		}
	}
	return string(bytes.TrimSpace(out))
}
