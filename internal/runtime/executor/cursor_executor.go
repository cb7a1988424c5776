// Package executor talks to the Cursor web chat backend and exposes its reply
// as a stream of text fragments.
package executor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/router-for-me/CursorProxyAPI/internal/config"
	"github.com/router-for-me/CursorProxyAPI/internal/stream"
	"github.com/router-for-me/CursorProxyAPI/internal/translator/cursor"
	"github.com/router-for-me/CursorProxyAPI/internal/util"
	log "github.com/sirupsen/logrus"
)

const requestIDLength = 16

// CursorExecutor runs chat completions against the Cursor backend. It is bound
// to one configuration snapshot and safe for concurrent use.
type CursorExecutor struct {
	cfg    *config.Config
	client *cursorClient
}

// Option customises a CursorExecutor.
type Option func(*executorOptions)

type executorOptions struct {
	httpClient *http.Client
	verifier   HumanVerifier
}

// WithHTTPClient replaces the proxy-aware client built from the configuration.
func WithHTTPClient(client *http.Client) Option {
	return func(o *executorOptions) { o.httpClient = client }
}

// WithHumanVerifier replaces the node based x-is-human solver.
func WithHumanVerifier(v HumanVerifier) Option {
	return func(o *executorOptions) { o.verifier = v }
}

// NewCursorExecutor creates an executor for cfg.
func NewCursorExecutor(cfg *config.Config, opts ...Option) *CursorExecutor {
	var o executorOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = newProxyAwareHTTPClient(cfg.ProxyURL, cfg.Cursor.RequestTimeout)
		log.Debugf("cursor executor: upstream via %s", describeProxy(cfg.ProxyURL))
	}
	if o.verifier == nil {
		o.verifier = newNodeVerifier(cfg.Cursor, o.httpClient)
	}
	return &CursorExecutor{
		cfg:    cfg,
		client: newCursorClient(cfg, o.httpClient, o.verifier),
	}
}

// Identifier returns the executor identifier.
func (e *CursorExecutor) Identifier() string { return "cursor" }

// Stream sends the OpenAI chat payload upstream and returns the reply as text
// fragments. The response body is read lazily as fragments are pulled; Close
// releases it. Upstream failures are reported as interfaces.StatusError or
// interfaces.TransportError.
func (e *CursorExecutor) Stream(ctx context.Context, model string, payload []byte) (stream.Source[string], error) {
	body, err := cursor.BuildRequest(model, payload, util.RandomString(requestIDLength))
	if err != nil {
		return nil, fmt.Errorf("cursor executor: %w", err)
	}
	respBody, err := e.client.openChat(ctx, body)
	if err != nil {
		return nil, err
	}
	return cursor.NewFragmentSource(respBody, respBody), nil
}
