package interfaces

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"status", &StatusError{Code: 403, Message: "Cloudflare 403"}, KindDomain},
		{"wrapped status", fmt.Errorf("cursor client: %w", &StatusError{Code: 500}), KindDomain},
		{"transport", &TransportError{Op: "post chat", Err: io.ErrUnexpectedEOF}, KindTransport},
		{"plain", errors.New("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestNewTransportErrorLeavesCancellationUnclassified(t *testing.T) {
	err := NewTransportError("post chat", fmt.Errorf("do: %w", context.Canceled))
	assert.Equal(t, KindUnknown, Classify(err))
	assert.True(t, errors.Is(err, context.Canceled))

	err = NewTransportError("post chat", io.ErrUnexpectedEOF)
	assert.Equal(t, KindTransport, Classify(err))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	assert.Nil(t, NewTransportError("noop", nil))
}

func TestStatusErrorOpenAIEnvelope(t *testing.T) {
	err := &StatusError{Code: 403, Message: "Cloudflare 403"}
	body := err.OpenAIError()
	require.True(t, gjson.ValidBytes(body))

	root := gjson.ParseBytes(body)
	assert.Equal(t, "Cloudflare 403", root.Get("error.message").String())
	assert.Equal(t, "permission_error", root.Get("error.type").String())
	assert.Equal(t, "403", root.Get("error.code").String())
	assert.Equal(t, 403, err.StatusCode())
}

func TestStatusErrorOutOfRangeCode(t *testing.T) {
	err := &StatusError{Code: 302}
	assert.Equal(t, 502, err.StatusCode())
	assert.Equal(t, "status 302", err.Error())
	assert.Equal(t, "Bad Gateway", gjson.GetBytes(err.OpenAIError(), "error.message").String())
}
