package cursor

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

const (
	// DoneMarker is the payload of the terminating SSE event.
	DoneMarker = "[DONE]"

	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

const (
	chunkTemplate      = `{"id":"","object":"chat.completion.chunk","created":0,"model":"","choices":[{"index":0,"delta":{},"finish_reason":null}]}`
	completionTemplate = `{"id":"","object":"chat.completion","created":0,"model":"","choices":[{"index":0,"message":{"role":"assistant","content":""},"finish_reason":"stop"}],"usage":{"prompt_tokens":0,"completion_tokens":0,"total_tokens":0}}`
	toolCallTemplate   = `{"index":0,"id":"","type":"function","function":{"name":"","arguments":""}}`
)

// Meta identifies one translation session. Every chunk of a session carries
// the same ID, Created timestamp and Model.
type Meta struct {
	ID      string
	Created int64
	Model   string
}

// NewMeta returns session metadata with a fresh chatcmpl-<hex24> id.
func NewMeta(model string) Meta {
	return Meta{ID: NewChatID(), Created: time.Now().Unix(), Model: model}
}

// NewChatID returns an id of the form chatcmpl-<24 hex digits>.
func NewChatID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// Usage is the token accounting reported on non-streaming responses.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

func newChunk(meta Meta) []byte {
	out := []byte(chunkTemplate)
	out, _ = sjson.SetBytes(out, "id", meta.ID)
	out, _ = sjson.SetBytes(out, "created", meta.Created)
	out, _ = sjson.SetBytes(out, "model", meta.Model)
	return out
}

// BuildInitialChunk builds the role announcement chunk sent once before the
// first content chunk of a session.
func BuildInitialChunk(meta Meta) []byte {
	out := newChunk(meta)
	out, _ = sjson.SetBytes(out, "choices.0.delta.role", "assistant")
	out, _ = sjson.SetBytes(out, "choices.0.delta.content", "")
	return out
}

// BuildContentChunk builds a content delta chunk.
func BuildContentChunk(meta Meta, content string) []byte {
	out := newChunk(meta)
	out, _ = sjson.SetBytes(out, "choices.0.delta.content", content)
	return out
}

// BuildToolCallChunk builds the delta chunk for the index-th detected tool call.
// The last call of a list is marked complete and reports finish_reason
// "tool_calls"; earlier ones report null.
func BuildToolCallChunk(meta Meta, index int, call ToolCall, complete bool) []byte {
	out := newChunk(meta)
	out, _ = sjson.SetRawBytes(out, "choices.0.delta.tool_calls", []byte("["+string(toolCallJSON(index, call, true))+"]"))
	if complete {
		out, _ = sjson.SetBytes(out, "choices.0.finish_reason", FinishReasonToolCalls)
	}
	return out
}

// BuildFinishChunk builds the closing chunk with an empty delta.
func BuildFinishChunk(meta Meta, reason string) []byte {
	out := newChunk(meta)
	out, _ = sjson.SetBytes(out, "choices.0.finish_reason", reason)
	return out
}

// BuildOpenAIChatCompletionPayload builds a non-streaming chat.completion object.
// With tool calls the message carries content null and the tool_calls list and
// finish_reason is "tool_calls"; otherwise it carries the plain content.
func BuildOpenAIChatCompletionPayload(meta Meta, content string, toolCalls []ToolCall, usage Usage) []byte {
	out := []byte(completionTemplate)
	out, _ = sjson.SetBytes(out, "id", meta.ID)
	out, _ = sjson.SetBytes(out, "created", meta.Created)
	out, _ = sjson.SetBytes(out, "model", meta.Model)

	if len(toolCalls) > 0 {
		calls := make([]string, 0, len(toolCalls))
		for i, call := range toolCalls {
			calls = append(calls, string(toolCallJSON(i, call, false)))
		}
		out, _ = sjson.SetRawBytes(out, "choices.0.message.content", []byte("null"))
		out, _ = sjson.SetRawBytes(out, "choices.0.message.tool_calls", []byte("["+strings.Join(calls, ",")+"]"))
		out, _ = sjson.SetBytes(out, "choices.0.finish_reason", FinishReasonToolCalls)
	} else {
		out, _ = sjson.SetBytes(out, "choices.0.message.content", content)
	}

	out, _ = sjson.SetBytes(out, "usage.prompt_tokens", usage.PromptTokens)
	out, _ = sjson.SetBytes(out, "usage.completion_tokens", usage.CompletionTokens)
	out, _ = sjson.SetBytes(out, "usage.total_tokens", usage.PromptTokens+usage.CompletionTokens)
	return out
}

func toolCallJSON(index int, call ToolCall, withIndex bool) []byte {
	out := []byte(toolCallTemplate)
	if withIndex {
		out, _ = sjson.SetBytes(out, "index", index)
	} else {
		out, _ = sjson.DeleteBytes(out, "index")
	}
	callType := call.Type
	if callType == "" {
		callType = "function"
	}
	out, _ = sjson.SetBytes(out, "id", call.ID)
	out, _ = sjson.SetBytes(out, "type", callType)
	out, _ = sjson.SetBytes(out, "function.name", call.Function.Name)
	out, _ = sjson.SetBytes(out, "function.arguments", call.Function.Arguments)
	return out
}
