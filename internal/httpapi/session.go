package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"pkt.systems/tclib/internal/compress"
	"pkt.systems/tclib/session"
)

// callSession is the Session handed to the dispatcher for one request.
// Disabling its timeout clears the connection deadlines so long-running
// callbacks outlive the server's read and write timeouts.
type callSession struct {
	*session.Buffer
}

func newCallSession(w http.ResponseWriter, fields []session.Field) *callSession {
	buf := session.NewBuffer(fields...)
	rc := http.NewResponseController(w)
	buf.SetTimeoutHook(func() error {
		var zero time.Time
		if err := rc.SetReadDeadline(zero); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("clear read deadline: %w", err)
		}
		if err := rc.SetWriteDeadline(zero); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("clear write deadline: %w", err)
		}
		return nil
	})
	return &callSession{Buffer: buf}
}

func (h *Handler) readPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != ContentType {
		return nil, httpError{Status: http.StatusUnsupportedMediaType, Code: "unsupported_media_type", Detail: fmt.Sprintf("expected %s, got %s", ContentType, ct)}
	}
	body := http.MaxBytesReader(w, r.Body, h.maxPayloadBytes)
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, httpError{Status: http.StatusRequestEntityTooLarge, Code: "payload_too_large", Detail: fmt.Sprintf("payload exceeds %s", humanize.IBytes(uint64(h.maxPayloadBytes)))}
		}
		return nil, httpError{Status: http.StatusBadRequest, Code: "read_failed", Detail: err.Error()}
	}
	if !compress.Applied(r.Header) {
		return raw, nil
	}
	decoded, err := compress.Decompress(raw, h.maxPayloadBytes)
	if err != nil {
		if errors.Is(err, compress.ErrTooLarge) {
			return nil, httpError{Status: http.StatusRequestEntityTooLarge, Code: "payload_too_large", Detail: err.Error()}
		}
		return nil, httpError{Status: http.StatusBadRequest, Code: "malformed_payload", Detail: err.Error()}
	}
	return decoded, nil
}
