// Package cursor translates between the OpenAI chat completions API and the
// Cursor web chat backend.
//
// The backend only streams plain text, so tool calls have to be recognised in
// the text itself. Requests are converted by BuildRequest; responses are turned
// into OpenAI chunks by StreamTranslator or into a single completion by Aggregate.
package cursor

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	requestTemplate = `{"context":[],"model":"","id":"","messages":[],"trigger":"submit-message"}`
	messageTemplate = `{"role":"","parts":[{"type":"text","text":""}]}`
)

// BuildRequest converts an OpenAI chat completions payload into the Cursor chat
// request body. requestID identifies the conversation turn upstream.
func BuildRequest(model string, payload []byte, requestID string) ([]byte, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("cursor translator: request body is not valid JSON")
	}
	root := gjson.ParseBytes(payload)

	out := []byte(requestTemplate)
	out, _ = sjson.SetBytes(out, "model", model)
	out, _ = sjson.SetBytes(out, "id", requestID)

	messages := root.Get("messages")
	if messages.IsArray() {
		idx := 0
		for _, msg := range messages.Array() {
			if !msg.IsObject() {
				continue
			}
			converted := []byte(messageTemplate)
			converted, _ = sjson.SetBytes(converted, "role", msg.Get("role").String())
			converted, _ = sjson.SetBytes(converted, "parts.0.text", messageText(msg.Get("content")))
			out, _ = sjson.SetRawBytes(out, fmt.Sprintf("messages.%d", idx), converted)
			idx++
		}
	}

	if tools := root.Get("tools"); tools.Exists() && tools.Type != gjson.Null {
		out, _ = sjson.SetRawBytes(out, "tools", []byte(tools.Raw))
	}
	if choice := root.Get("tool_choice"); choice.Exists() && choice.Type != gjson.Null {
		out, _ = sjson.SetRawBytes(out, "tool_choice", []byte(choice.Raw))
	}
	return out, nil
}

// messageText flattens OpenAI message content: strings are used as is, arrays
// of parts contribute the text of every part that has one.
func messageText(content gjson.Result) string {
	switch {
	case content.Type == gjson.String:
		return content.String()
	case content.IsArray():
		var b strings.Builder
		for _, part := range content.Array() {
			if text := part.Get("text").String(); text != "" {
				b.WriteString(text)
			}
		}
		return b.String()
	default:
		return ""
	}
}

// PromptText joins the text of every request message, for usage estimation.
func PromptText(payload []byte) string {
	var b strings.Builder
	for _, msg := range gjson.GetBytes(payload, "messages").Array() {
		if text := messageText(msg.Get("content")); text != "" {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(text)
		}
	}
	return b.String()
}
