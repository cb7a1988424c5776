// Package usage estimates token usage for non-streaming responses. The
// upstream reports no usage, so counts are computed locally with cl100k.
package usage

import (
	"strings"
	"sync"

	"github.com/router-for-me/CursorProxyAPI/internal/translator/cursor"
	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

// charsPerToken is the fallback ratio when the BPE codec cannot be loaded.
const charsPerToken = 4.0

// Estimator counts tokens with the cl100k_base encoding.
type Estimator struct {
	once  sync.Once
	codec tokenizer.Codec
}

// NewEstimator returns an estimator that loads the codec on first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) load() tokenizer.Codec {
	e.once.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warnf("usage: cl100k codec unavailable, falling back to character estimate: %v", err)
			return
		}
		e.codec = codec
	})
	return e.codec
}

// CountText returns the number of tokens in text.
func (e *Estimator) CountText(text string) int64 {
	if text == "" {
		return 0
	}
	if codec := e.load(); codec != nil {
		ids, _, err := codec.Encode(text)
		if err == nil {
			return int64(len(ids))
		}
		log.Debugf("usage: encode failed, falling back to character estimate: %v", err)
	}
	tokens := float64(len(text))/charsPerToken + 0.5
	if tokens < 1 {
		tokens = 1
	}
	return int64(tokens)
}

// UsageFunc returns the usage calculation for one request whose prompt text
// is promptText. Completion tokens cover the content, or the tool call names
// and arguments when tool calls were recognised.
func (e *Estimator) UsageFunc(promptText string) cursor.UsageFunc {
	return func(content string, toolCalls []cursor.ToolCall) cursor.Usage {
		completion := content
		if len(toolCalls) > 0 {
			parts := make([]string, 0, 2*len(toolCalls))
			for _, call := range toolCalls {
				parts = append(parts, call.Function.Name, call.Function.Arguments)
			}
			completion = strings.Join(parts, "\n")
		}
		return cursor.Usage{
			PromptTokens:     e.CountText(promptText),
			CompletionTokens: e.CountText(completion),
		}
	}
}
