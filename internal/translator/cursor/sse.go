package cursor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/router-for-me/CursorProxyAPI/internal/interfaces"
	"github.com/router-for-me/CursorProxyAPI/internal/stream"
	"github.com/tidwall/gjson"
)

// ParseSSELine returns the payload of a "data: " line. Other lines (event names,
// comments, keep-alives, blanks) report false.
func ParseSSELine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data: ") {
		return "", false
	}
	payload := line[len("data: "):]
	if strings.TrimSpace(payload) == "" {
		return "", false
	}
	return payload, true
}

// DeltaFromEvent extracts the text delta carried by one upstream event.
// Malformed payloads and events without a text delta report false.
func DeltaFromEvent(payload string) (string, bool) {
	if !gjson.Valid(payload) {
		return "", false
	}
	delta := gjson.Get(payload, "delta")
	if delta.Type != gjson.String || delta.String() == "" {
		return "", false
	}
	return delta.String(), true
}

// NewFragmentSource reads the upstream event stream from r one line at a time
// and yields the text deltas in order. Nothing is read until Next is called.
// closer, when set, is closed by Close.
func NewFragmentSource(r io.Reader, closer io.Closer) stream.Source[string] {
	reader := bufio.NewReader(r)
	exhausted := false
	next := func(ctx context.Context) (string, error) {
		for !exhausted {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			line, err := reader.ReadString('\n')
			if err != nil {
				if !errors.Is(err, io.EOF) {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return "", ctxErr
					}
					return "", interfaces.NewTransportError("cursor stream: read", err)
				}
				exhausted = true
			}
			payload, ok := ParseSSELine(line)
			if !ok {
				continue
			}
			if delta, ok := DeltaFromEvent(payload); ok {
				return delta, nil
			}
		}
		return "", io.EOF
	}
	var closeFn func() error
	if closer != nil {
		closeFn = closer.Close
	}
	return stream.FromFunc(next, closeFn)
}
