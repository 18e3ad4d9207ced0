// Package codec implements the Body Codec: content-encoding-aware
// streaming decode/encode around the Domain Rewriter's utf-8 rewrite step.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// Supported content-encoding tokens.
const (
	Gzip    = "gzip"
	Brotli  = "br"
	Deflate = "deflate"
)

// Supported reports whether encoding is one this codec knows how to
// transcode. Unrecognized encodings must pass through untouched.
func Supported(encoding string) bool {
	switch encoding {
	case Gzip, Brotli, Deflate:
		return true
	default:
		return false
	}
}

// Decode fully decompresses body according to encoding, returning the raw
// bytes. Callers must only call this for Supported encodings.
func Decode(encoding string, body io.Reader) ([]byte, error) {
	var r io.Reader
	switch encoding {
	case Gzip:
		gr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gr.Close()
		r = gr
	case Brotli:
		r = brotli.NewReader(body)
	case Deflate:
		fr := flate.NewReader(body)
		defer fr.Close()
		r = fr
	default:
		return nil, fmt.Errorf("codec: unsupported encoding %q", encoding)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decoding %s body: %w", encoding, err)
	}
	return data, nil
}

// Encode recompresses data using the same algorithm named by encoding, so
// that the Content-Encoding header the client sees keeps its original
// framing semantics.
func Encode(encoding string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch encoding {
	case Gzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip encode: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip encode close: %w", err)
		}
	case Brotli:
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("brotli encode: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("brotli encode close: %w", err)
		}
	case Deflate:
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("deflate encode: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("deflate encode: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("deflate encode close: %w", err)
		}
	default:
		return nil, fmt.Errorf("codec: unsupported encoding %q", encoding)
	}
	return buf.Bytes(), nil
}
