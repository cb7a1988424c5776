package cursor

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/router-for-me/CursorProxyAPI/internal/stream"
)

// Observer receives the outcome of every finished translation.
type Observer interface {
	ObserveCompletion(mode, finishReason string, toolCalls int)
}

// UsageFunc computes the usage block of a non-streaming response.
type UsageFunc func(content string, toolCalls []ToolCall) Usage

type options struct {
	meta     *Meta
	observer Observer
	usage    UsageFunc
}

// Option customises a translation.
type Option func(*options)

// WithMeta fixes the session id, timestamp and model instead of generating them.
func WithMeta(meta Meta) Option {
	return func(o *options) { o.meta = &meta }
}

// WithObserver reports completion outcomes, typically to the metrics collector.
func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithUsage sets the usage calculation for non-streaming responses. Without it
// every usage field is reported as zero.
func WithUsage(fn UsageFunc) Option {
	return func(o *options) { o.usage = fn }
}

func buildOptions(model string, opts []Option) (options, Meta) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.meta != nil {
		return o, *o.meta
	}
	return o, NewMeta(model)
}

type translatorState int

const (
	stateAwaitingFirstDecision translatorState = iota
	stateStreamingContent
	stateToolCallTerminal
	stateStopped
)

// StreamTranslator turns upstream text fragments into OpenAI chat.completion.chunk
// SSE payloads. It is itself a stream.Source: every call to Next yields the data
// of one SSE event, the last one being DoneMarker, and pulls upstream fragments
// only when it has nothing left to hand out.
//
// Until a tool call is recognised in the accumulated text every fragment is
// forwarded as a content chunk, preceded once by a role chunk. While the reply
// so far could still be the start of a tool call (a leading object or code
// fence) fragments are held back; they are released in order as soon as the
// text stops looking like one or the upstream ends. When a tool call
// is recognised the translator emits the tool call chunks, a "tool_calls" finish
// chunk and DoneMarker, closes the upstream and never emits content again.
type StreamTranslator struct {
	upstream stream.Source[string]
	meta     Meta
	observer Observer

	state   translatorState
	text    strings.Builder
	held    []string
	pending [][]byte
	closed  bool
}

// NewStreamTranslator wraps upstream for the given model.
func NewStreamTranslator(model string, upstream stream.Source[string], opts ...Option) *StreamTranslator {
	o, meta := buildOptions(model, opts)
	return &StreamTranslator{
		upstream: upstream,
		meta:     meta,
		observer: o.observer,
	}
}

// Meta returns the session metadata shared by all emitted chunks.
func (t *StreamTranslator) Meta() Meta { return t.meta }

// Next returns the next SSE data payload, or io.EOF after DoneMarker.
func (t *StreamTranslator) Next(ctx context.Context) ([]byte, error) {
	if t.closed {
		return nil, stream.ErrClosed
	}
	for len(t.pending) == 0 {
		if t.finished() {
			return nil, io.EOF
		}
		if err := t.advance(ctx); err != nil {
			return nil, err
		}
	}
	event := t.pending[0]
	t.pending = t.pending[1:]
	return event, nil
}

// Close stops the translation and releases the upstream.
func (t *StreamTranslator) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.pending = nil
	return t.upstream.Close()
}

func (t *StreamTranslator) finished() bool {
	return t.state == stateToolCallTerminal || t.state == stateStopped
}

func (t *StreamTranslator) advance(ctx context.Context) error {
	fragment, err := t.upstream.Next(ctx)
	if errors.Is(err, io.EOF) {
		t.release()
		t.terminate(FinishReasonStop, stateStopped, 0)
		return nil
	}
	if err != nil {
		return err
	}

	t.text.WriteString(fragment)
	if calls := ExtractToolCalls(t.text.String()); len(calls) > 0 {
		for i, call := range calls {
			t.pending = append(t.pending, BuildToolCallChunk(t.meta, i, call, i == len(calls)-1))
		}
		t.terminate(FinishReasonToolCalls, stateToolCallTerminal, len(calls))
		return nil
	}

	t.held = append(t.held, fragment)
	if t.state == stateAwaitingFirstDecision && mayBecomeToolCall(t.text.String()) {
		return nil
	}
	t.release()
	return nil
}

// release emits the held fragments as content, announcing the role first if
// nothing has been sent yet.
func (t *StreamTranslator) release() {
	if len(t.held) == 0 {
		return
	}
	if t.state == stateAwaitingFirstDecision {
		t.pending = append(t.pending, BuildInitialChunk(t.meta))
		t.state = stateStreamingContent
	}
	for _, fragment := range t.held {
		t.pending = append(t.pending, BuildContentChunk(t.meta, fragment))
	}
	t.held = t.held[:0]
}

// mayBecomeToolCall reports whether a reply that has not produced a tool call
// yet could still turn into one: it is blank, or it opens with an object or a
// code fence that has not closed within the inline scan window.
func mayBecomeToolCall(text string) bool {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	switch {
	case trimmed == "":
		return true
	case utf8.RuneCountInString(trimmed) > maxInlineScan:
		return false
	case strings.HasPrefix(trimmed, "{"):
		return true
	case strings.HasPrefix(markerFence, trimmed):
		return true
	case strings.HasPrefix(trimmed, markerFence):
		return strings.Count(trimmed, markerFence) < 2
	default:
		return false
	}
}

func (t *StreamTranslator) terminate(reason string, next translatorState, toolCalls int) {
	t.pending = append(t.pending, BuildFinishChunk(t.meta, reason), []byte(DoneMarker))
	t.state = next
	_ = t.upstream.Close()
	if t.observer != nil {
		t.observer.ObserveCompletion("stream", reason, toolCalls)
	}
}

// Aggregate drains upstream and returns one chat.completion payload. The tool
// call extractor runs once over the full text; no partial output is produced.
func Aggregate(ctx context.Context, model string, upstream stream.Source[string], opts ...Option) ([]byte, error) {
	o, meta := buildOptions(model, opts)

	fragments, err := stream.Drain(ctx, upstream)
	if err != nil {
		return nil, err
	}
	content := strings.Join(fragments, "")
	toolCalls := ExtractToolCalls(content)

	var usage Usage
	if o.usage != nil {
		usage = o.usage(content, toolCalls)
	}
	if o.observer != nil {
		reason := FinishReasonStop
		if len(toolCalls) > 0 {
			reason = FinishReasonToolCalls
		}
		o.observer.ObserveCompletion("non_stream", reason, len(toolCalls))
	}
	return BuildOpenAIChatCompletionPayload(meta, content, toolCalls, usage), nil
}
