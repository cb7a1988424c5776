package executor

import (
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

const acceptEncoding = "gzip, deflate, br, zstd"

// decodedBody wraps body according to the Content-Encoding header. Close
// releases the decoder and the original body.
func decodedBody(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		return &decodingReader{Reader: zr, closeDecoder: zr.Close, body: body}, nil
	case "deflate":
		zr, err := zlib.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("invalid deflate body: %w", err)
		}
		return &decodingReader{Reader: zr, closeDecoder: zr.Close, body: body}, nil
	case "br":
		return &decodingReader{Reader: brotli.NewReader(body), body: body}, nil
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("invalid zstd body: %w", err)
		}
		return &decodingReader{Reader: zr, closeDecoder: func() error { zr.Close(); return nil }, body: body}, nil
	default:
		return nil, fmt.Errorf("unsupported content-encoding: %s", contentEncoding)
	}
}

type decodingReader struct {
	io.Reader
	closeDecoder func() error
	body         io.Closer
}

func (d *decodingReader) Close() error {
	if d.closeDecoder != nil {
		_ = d.closeDecoder()
	}
	return d.body.Close()
}
