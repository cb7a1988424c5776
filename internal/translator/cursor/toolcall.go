package cursor

import (
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// maxInlineScan bounds how many characters after `{"name"` the inline scanner
// inspects while looking for the end of the candidate object.
const maxInlineScan = 1000

const (
	markerName         = `"name"`
	markerArguments    = `"arguments"`
	markerFunctionCall = "function_call"
	markerFence        = "```"
	inlinePrefix       = `{"name"`
)

// ToolCall is an OpenAI tool call recovered from assistant text.
type ToolCall struct {
	ID       string
	Type     string
	Function ToolCallFunction
}

// ToolCallFunction carries the function name and its JSON encoded arguments.
type ToolCallFunction struct {
	Name      string
	Arguments string
}

// newToolCallID is replaced in tests that need stable identifiers.
var newToolCallID = func() string {
	return "call_" + uuid.NewString()[:8]
}

// ExtractToolCalls looks for a structured function call embedded in the text
// accumulated so far. It returns nil when no call is present; recognition
// failures are a normal negative result and never an error.
//
// Two forms are recognised, in order: a fenced ```json block holding an object
// with "name" and "arguments", and an inline object starting with {"name"
// whose end is found by a bounded brace scanner.
func ExtractToolCalls(content string) []ToolCall {
	if !mayContainToolCall(content) {
		return nil
	}
	candidate, ok := findToolCallCandidate(content)
	if !ok {
		return nil
	}

	arguments := lastMember(candidate, "arguments")
	args := arguments.String()
	if arguments.Type != gjson.String {
		args = canonicalArguments(arguments.Raw)
	}
	return []ToolCall{{
		ID:   newToolCallID(),
		Type: "function",
		Function: ToolCallFunction{
			Name:      lastMember(candidate, "name").String(),
			Arguments: args,
		},
	}}
}

// mayContainToolCall is the cheap substring gate run before any parsing.
func mayContainToolCall(content string) bool {
	if strings.Contains(content, markerFunctionCall) {
		return true
	}
	return strings.Contains(content, markerName) && strings.Contains(content, markerArguments)
}

func findToolCallCandidate(content string) (gjson.Result, bool) {
	if strings.Contains(content, markerFence) {
		if candidate, ok := fencedCandidate(content); ok {
			return candidate, true
		}
	}
	if strings.Contains(content, markerName) && strings.Contains(content, markerArguments) {
		if candidate, ok := inlineCandidate(content); ok {
			return candidate, true
		}
	}
	return gjson.Result{}, false
}

// fencedCandidate returns the first ``` block of content whose body is a tool
// call object. Only untagged and json/JSON blocks count. When a block does not
// hold a call, its closing fence is tried as the opener of the next block, so
// a stray fence in prose does not hide a later call.
func fencedCandidate(content string) (gjson.Result, bool) {
	rest := content
	for {
		open := strings.Index(rest, markerFence)
		if open < 0 {
			return gjson.Result{}, false
		}
		body := rest[open+len(markerFence):]
		end := strings.Index(body, markerFence)
		if end < 0 {
			return gjson.Result{}, false
		}
		if candidate, ok := fencedBlockCall(body[:end]); ok {
			return candidate, true
		}
		rest = body[end:]
	}
}

func fencedBlockCall(block string) (gjson.Result, bool) {
	if trimmed := strings.TrimLeft(block, " \t"); strings.HasPrefix(trimmed, "json") || strings.HasPrefix(trimmed, "JSON") {
		block = trimmed[len("json"):]
	}
	block = strings.TrimSpace(block)
	if !strings.HasPrefix(block, "{") || !strings.HasSuffix(block, "}") {
		return gjson.Result{}, false
	}
	if !strings.Contains(block, markerName) || !strings.Contains(block, markerArguments) {
		return gjson.Result{}, false
	}
	return toolCallObject(block)
}

// inlineCandidate scans from the first {"name" for the matching closing brace.
func inlineCandidate(content string) (gjson.Result, bool) {
	start := strings.Index(content, inlinePrefix)
	if start < 0 {
		return gjson.Result{}, false
	}
	end, ok := scanObjectEnd(content[start:], maxInlineScan)
	if !ok {
		return gjson.Result{}, false
	}
	return toolCallObject(content[start : start+end])
}

type scanState int

const (
	scanOutside scanState = iota
	scanInString
	scanEscaped
)

// scanObjectEnd returns the byte offset just past the brace that closes the
// object opening at s[0], inspecting at most limit characters. The scan is a
// single linear pass over an explicit state machine; it reports false when the
// object does not close inside the window.
func scanObjectEnd(s string, limit int) (int, bool) {
	depth := 0
	state := scanOutside
	seen := 0
	for i, r := range s {
		if seen >= limit {
			break
		}
		seen++

		switch state {
		case scanEscaped:
			state = scanInString
		case scanInString:
			switch r {
			case '\\':
				state = scanEscaped
			case '"':
				state = scanOutside
			}
		default:
			switch r {
			case '"':
				state = scanInString
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return i + 1, true
				}
			}
		}
	}
	return 0, false
}

func toolCallObject(text string) (gjson.Result, bool) {
	if !gjson.Valid(text) {
		return gjson.Result{}, false
	}
	obj := gjson.Parse(text)
	if !obj.IsObject() {
		return gjson.Result{}, false
	}
	if !obj.Get("name").Exists() || !obj.Get("arguments").Exists() {
		return gjson.Result{}, false
	}
	return obj, true
}

// lastMember returns the value of the last key of obj, so a duplicated key
// resolves to its final occurrence.
func lastMember(obj gjson.Result, key string) gjson.Result {
	var found gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			found = v
		}
		return true
	})
	return found
}

// canonicalArguments re-encodes a non-string arguments value as a JSON string
// with ", " and ": " separators, keeping the original key order.
func canonicalArguments(raw string) string {
	compact := gjson.Get(raw, "@ugly").Raw
	if compact == "" {
		compact = strings.TrimSpace(raw)
	}

	var b strings.Builder
	b.Grow(len(compact) + len(compact)/4)
	inString, escaped := false, false
	for i := 0; i < len(compact); i++ {
		c := compact[i]
		b.WriteByte(c)
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ',' || c == ':'):
			b.WriteByte(' ')
		}
	}
	return b.String()
}
