package usage

import (
	"testing"

	"github.com/router-for-me/CursorProxyAPI/internal/translator/cursor"
	"github.com/stretchr/testify/assert"
)

func TestCountText(t *testing.T) {
	e := NewEstimator()
	assert.Equal(t, int64(0), e.CountText(""))
	assert.Equal(t, int64(2), e.CountText("Hello world"))
	assert.Greater(t, e.CountText("The quick brown fox jumps over the lazy dog."), int64(5))
}

func TestUsageFunc(t *testing.T) {
	e := NewEstimator()
	fn := e.UsageFunc("Hello world")

	plain := fn("Hello world", nil)
	assert.Equal(t, int64(2), plain.PromptTokens)
	assert.Equal(t, int64(2), plain.CompletionTokens)

	calls := []cursor.ToolCall{{Function: cursor.ToolCallFunction{Name: "lookup", Arguments: `{"q": "go"}`}}}
	withTools := fn("ignored content that is much longer than the call itself", calls)
	assert.Equal(t, e.CountText("lookup\n"+`{"q": "go"}`), withTools.CompletionTokens)
}
