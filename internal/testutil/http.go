// Package testutil carries helpers shared by package tests.
package testutil

import (
	"io"
	"net/http"
	"strings"
)

// RT adapts a function to http.RoundTripper.
type RT func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RT) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Client returns an http.Client whose transport is rt.
func Client(rt RT) *http.Client {
	return &http.Client{Transport: rt}
}

// Response builds a response with the given status and body.
func Response(req *http.Request, status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

// SSEBody renders upstream text deltas as "data: " event lines.
func SSEBody(deltas ...string) string {
	var b strings.Builder
	b.WriteString("data: {\"type\":\"start\"}\n\n")
	for _, delta := range deltas {
		b.WriteString(`data: {"type":"text-delta","delta":`)
		b.WriteString(quote(delta))
		b.WriteString("}\n\n")
	}
	b.WriteString("data: {\"type\":\"finish\"}\n\n")
	return b.String()
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}
