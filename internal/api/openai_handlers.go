package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CursorProxyAPI/internal/interfaces"
	"github.com/router-for-me/CursorProxyAPI/internal/retry"
	"github.com/router-for-me/CursorProxyAPI/internal/stream"
	"github.com/router-for-me/CursorProxyAPI/internal/translator/cursor"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const modelTemplate = `{"id":"","object":"model","created":0,"owned_by":""}`

func (s *Server) handleModels(c *gin.Context) {
	cfg := s.config()
	created := time.Now().Unix()

	out := []byte(`{"object":"list","data":[]}`)
	for i, id := range cfg.Models {
		entry := []byte(modelTemplate)
		entry, _ = sjson.SetBytes(entry, "id", id)
		entry, _ = sjson.SetBytes(entry, "created", created)
		out, _ = sjson.SetRawBytes(out, fmt.Sprintf("data.%d", i), entry)
	}
	c.Data(http.StatusOK, "application/json", out)
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		writeInvalidRequest(c, "failed to read request body")
		return
	}
	if !gjson.ValidBytes(payload) {
		writeInvalidRequest(c, "request body must be valid JSON")
		return
	}
	req := gjson.ParseBytes(payload)
	model := req.Get("model").String()
	if model == "" {
		writeInvalidRequest(c, "model is required")
		return
	}
	if !req.Get("messages").IsArray() {
		writeInvalidRequest(c, "messages must be an array")
		return
	}

	snap := s.current.Load()
	exec := retry.New(snap.cfg.MaxRetries, s.retryOptions()...)
	opts := s.translatorOptions(snap.cfg.UsageEstimation, payload)

	if req.Get("stream").Bool() {
		s.streamChatCompletion(c, exec, snap.upstream, model, payload, opts)
		return
	}
	s.nonStreamChatCompletion(c, exec, snap.upstream, model, payload, opts)
}

func (s *Server) nonStreamChatCompletion(c *gin.Context, exec *retry.Executor, upstream Upstream, model string, payload []byte, opts []cursor.Option) {
	res := retry.Do(c.Request.Context(), exec, func(ctx context.Context) ([]byte, error) {
		src, err := upstream.Stream(ctx, model, payload)
		if err != nil {
			return nil, err
		}
		return cursor.Aggregate(ctx, model, src, opts...)
	})
	if !res.OK() {
		writeFailure(c, res)
		return
	}
	c.Data(http.StatusOK, "application/json", res.Value)
}

// streamChatCompletion commits to SSE only after the first event is in hand;
// failures up to that point are retried and reported as JSON errors.
func (s *Server) streamChatCompletion(c *gin.Context, exec *retry.Executor, upstream Upstream, model string, payload []byte, opts []cursor.Option) {
	res := retry.Do(c.Request.Context(), exec, func(ctx context.Context) (stream.Source[[]byte], error) {
		return stream.Open(ctx, func(ctx context.Context) (stream.Source[[]byte], error) {
			src, err := upstream.Stream(ctx, model, payload)
			if err != nil {
				return nil, err
			}
			return cursor.NewStreamTranslator(model, src, opts...), nil
		})
	})
	if !res.OK() {
		writeFailure(c, res)
		return
	}
	s.writeSSE(c, res.Value)
}

func (s *Server) writeSSE(c *gin.Context, events stream.Source[[]byte]) {
	defer func() { _ = events.Close() }()
	if s.metrics != nil {
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	ctx := c.Request.Context()
	for {
		event, err := events.Next(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				log.Warnf("chat completions: stream aborted: %v", err)
			}
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", event); err != nil {
			log.Debugf("chat completions: client write failed: %v", err)
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

func (s *Server) retryOptions() []retry.Option {
	if s.metrics == nil {
		return nil
	}
	return []retry.Option{retry.WithObserver(s.metrics)}
}

func (s *Server) translatorOptions(estimateUsage bool, payload []byte) []cursor.Option {
	var opts []cursor.Option
	if s.metrics != nil {
		opts = append(opts, cursor.WithObserver(s.metrics))
	}
	if estimateUsage {
		opts = append(opts, cursor.WithUsage(s.estimator.UsageFunc(cursor.PromptText(payload))))
	}
	return opts
}

// writeFailure renders a terminal retry result. Classified failures carry
// their own response; anything else becomes a 500 unless the client is gone.
func writeFailure[T any](c *gin.Context, res retry.Result[T]) {
	if status, body, ok := res.ErrorResponse(); ok {
		c.Data(status, "application/json", body)
		return
	}
	err := res.Err
	if errors.Is(err, context.Canceled) && c.Request.Context().Err() != nil {
		log.Debugf("chat completions: client went away: %v", err)
		c.Abort()
		return
	}
	log.WithField("kind", res.Kind.String()).Errorf("chat completions: unhandled error: %v", err)
	_ = c.Error(err)
	c.Data(http.StatusInternalServerError, "application/json",
		interfaces.OpenAIError(err.Error(), "server_error", "internal_error"))
}

func writeInvalidRequest(c *gin.Context, message string) {
	c.Data(http.StatusBadRequest, "application/json",
		interfaces.OpenAIError(message, "invalid_request_error", "invalid_request"))
}
