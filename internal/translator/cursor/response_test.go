package cursor

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var testMeta = Meta{ID: "chatcmpl-0123456789abcdef01234567", Created: 1700000000, Model: "gpt-4o"}

func TestNewChatIDShape(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^chatcmpl-[0-9a-f]{24}$`), NewChatID())
	assert.NotEqual(t, NewChatID(), NewChatID())
}

func TestBuildInitialChunk(t *testing.T) {
	chunk := gjson.ParseBytes(BuildInitialChunk(testMeta))
	assert.Equal(t, testMeta.ID, chunk.Get("id").String())
	assert.Equal(t, "chat.completion.chunk", chunk.Get("object").String())
	assert.Equal(t, testMeta.Created, chunk.Get("created").Int())
	assert.Equal(t, "gpt-4o", chunk.Get("model").String())
	assert.Equal(t, int64(0), chunk.Get("choices.0.index").Int())
	assert.Equal(t, "assistant", chunk.Get("choices.0.delta.role").String())
	assert.True(t, chunk.Get("choices.0.delta.content").Exists())
	assert.Equal(t, "", chunk.Get("choices.0.delta.content").String())
	assert.Equal(t, gjson.Null, chunk.Get("choices.0.finish_reason").Type)
}

func TestBuildContentChunkKeepsText(t *testing.T) {
	chunk := gjson.ParseBytes(BuildContentChunk(testMeta, "héllo \"quoted\"\n"))
	assert.Equal(t, "héllo \"quoted\"\n", chunk.Get("choices.0.delta.content").String())
	assert.False(t, chunk.Get("choices.0.delta.role").Exists())
	assert.Equal(t, gjson.Null, chunk.Get("choices.0.finish_reason").Type)
}

func TestBuildToolCallChunk(t *testing.T) {
	call := ToolCall{ID: "call_abcd1234", Type: "function", Function: ToolCallFunction{Name: "x", Arguments: `{"a": 1}`}}

	partial := gjson.ParseBytes(BuildToolCallChunk(testMeta, 1, call, false))
	assert.Equal(t, testMeta.ID, partial.Get("id").String())
	assert.Equal(t, int64(0), partial.Get("choices.0.index").Int())
	assert.Equal(t, int64(1), partial.Get("choices.0.delta.tool_calls.0.index").Int())
	assert.Equal(t, "call_abcd1234", partial.Get("choices.0.delta.tool_calls.0.id").String())
	assert.Equal(t, "function", partial.Get("choices.0.delta.tool_calls.0.type").String())
	assert.Equal(t, "x", partial.Get("choices.0.delta.tool_calls.0.function.name").String())
	assert.Equal(t, `{"a": 1}`, partial.Get("choices.0.delta.tool_calls.0.function.arguments").String())
	assert.Equal(t, gjson.Null, partial.Get("choices.0.finish_reason").Type)

	complete := gjson.ParseBytes(BuildToolCallChunk(testMeta, 0, call, true))
	assert.Equal(t, FinishReasonToolCalls, complete.Get("choices.0.finish_reason").String())
}

func TestBuildFinishChunk(t *testing.T) {
	chunk := gjson.ParseBytes(BuildFinishChunk(testMeta, FinishReasonStop))
	assert.Equal(t, "{}", chunk.Get("choices.0.delta").Raw)
	assert.Equal(t, FinishReasonStop, chunk.Get("choices.0.finish_reason").String())
}

func TestBuildCompletionPayloadPlainContent(t *testing.T) {
	body := BuildOpenAIChatCompletionPayload(testMeta, "Hello world", nil, Usage{})
	require.True(t, gjson.ValidBytes(body))

	resp := gjson.ParseBytes(body)
	assert.Equal(t, "chat.completion", resp.Get("object").String())
	assert.Equal(t, "assistant", resp.Get("choices.0.message.role").String())
	assert.Equal(t, "Hello world", resp.Get("choices.0.message.content").String())
	assert.False(t, resp.Get("choices.0.message.tool_calls").Exists())
	assert.Equal(t, FinishReasonStop, resp.Get("choices.0.finish_reason").String())
	assert.Equal(t, int64(0), resp.Get("usage.prompt_tokens").Int())
	assert.Equal(t, int64(0), resp.Get("usage.completion_tokens").Int())
	assert.Equal(t, int64(0), resp.Get("usage.total_tokens").Int())
}

func TestBuildCompletionPayloadToolCalls(t *testing.T) {
	calls := []ToolCall{{ID: "call_1", Type: "function", Function: ToolCallFunction{Name: "x", Arguments: "{}"}}}
	body := BuildOpenAIChatCompletionPayload(testMeta, "ignored", calls, Usage{PromptTokens: 3, CompletionTokens: 4})

	resp := gjson.ParseBytes(body)
	assert.Equal(t, gjson.Null, resp.Get("choices.0.message.content").Type)
	assert.Equal(t, "call_1", resp.Get("choices.0.message.tool_calls.0.id").String())
	assert.Equal(t, "function", resp.Get("choices.0.message.tool_calls.0.type").String())
	assert.Equal(t, "x", resp.Get("choices.0.message.tool_calls.0.function.name").String())
	assert.False(t, resp.Get("choices.0.message.tool_calls.0.index").Exists())
	assert.Equal(t, FinishReasonToolCalls, resp.Get("choices.0.finish_reason").String())
	assert.Equal(t, int64(7), resp.Get("usage.total_tokens").Int())
}
