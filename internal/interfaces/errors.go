// Package interfaces holds the error shapes shared between the upstream client,
// the retry executor and the HTTP handlers.
package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/sjson"
)

// Kind classifies a failure for retry and response mapping purposes.
type Kind int

const (
	// KindUnknown is any failure that is neither a domain nor a transport failure.
	// Unknown failures are never retried.
	KindUnknown Kind = iota
	// KindDomain is a structured failure reported by the upstream (StatusError).
	KindDomain
	// KindTransport is a network or protocol level failure (TransportError).
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindDomain:
		return "domain"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// StatusError is a classified upstream failure carrying an HTTP status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if strings.TrimSpace(e.Message) != "" {
		return fmt.Sprintf("status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("status %d", e.Code)
}

// StatusCode returns the HTTP status to surface to the client.
// Codes outside the 4xx/5xx range are reported as 502.
func (e *StatusError) StatusCode() int {
	if e.Code < 400 || e.Code > 599 {
		return http.StatusBadGateway
	}
	return e.Code
}

// OpenAIError renders the error in the OpenAI error envelope.
func (e *StatusError) OpenAIError() []byte {
	message := strings.TrimSpace(e.Message)
	if message == "" {
		message = http.StatusText(e.StatusCode())
	}
	return OpenAIError(message, errorTypeForStatus(e.StatusCode()), strconv.Itoa(e.Code))
}

// TransportError wraps a network level failure talking to the upstream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err unless it is nil or a context cancellation,
// which must stay unclassified so that it is not retried.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// Classify reports which failure kind err belongs to.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return KindDomain
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return KindTransport
	}
	return KindUnknown
}

// OpenAIError builds {"error":{"message":...,"type":...,"code":...}}.
func OpenAIError(message, errType, code string) []byte {
	out := []byte(`{"error":{"message":"","type":"","code":""}}`)
	out, _ = sjson.SetBytes(out, "error.message", message)
	out, _ = sjson.SetBytes(out, "error.type", errType)
	out, _ = sjson.SetBytes(out, "error.code", code)
	return out
}

func errorTypeForStatus(code int) string {
	switch {
	case code == http.StatusUnauthorized:
		return "authentication_error"
	case code == http.StatusForbidden:
		return "permission_error"
	case code == http.StatusNotFound:
		return "not_found_error"
	case code == http.StatusTooManyRequests:
		return "rate_limit_error"
	case code >= 400 && code < 500:
		return "invalid_request_error"
	default:
		return "upstream_error"
	}
}
