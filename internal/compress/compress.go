// Package compress wraps the zstd codec shared by the transport and the
// client.
package compress

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Encoding is the Content-Encoding token for zstd bodies.
const Encoding = "zstd"

// MaxDecoded bounds the decoded size of any single body.
const MaxDecoded = 64 << 20

// ErrTooLarge reports a decoded body above the caller's limit.
var ErrTooLarge = errors.New("compress: decoded body exceeds limit")

var encoder, _ = zstd.NewWriter(nil)

var decoder, _ = zstd.NewReader(nil,
	zstd.WithDecoderConcurrency(0),
	zstd.WithDecoderMaxMemory(MaxDecoded),
)

// Bytes returns src compressed with zstd.
func Bytes(src []byte) []byte {
	return encoder.EncodeAll(src, make([]byte, 0, len(src)/2+16))
}

// Decompress decodes src. A positive limit caps the decoded size.
func Decompress(src []byte, limit int64) ([]byte, error) {
	out, err := decoder.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	if limit > 0 && int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(out), limit)
	}
	return out, nil
}

// Accepts reports whether header lists zstd in Accept-Encoding.
func Accepts(header http.Header) bool {
	return hasToken(header.Values("Accept-Encoding"))
}

// Applied reports whether header marks the body as zstd encoded.
func Applied(header http.Header) bool {
	return hasToken(header.Values("Content-Encoding"))
}

func hasToken(values []string) bool {
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			token, _, _ := strings.Cut(part, ";")
			if strings.EqualFold(strings.TrimSpace(token), Encoding) {
				return true
			}
		}
	}
	return false
}
