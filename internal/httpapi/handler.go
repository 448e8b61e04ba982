// Package httpapi exposes a participant Engine over HTTP. Each coordinator
// call is one POST to /v1/tc/{service} whose body is the encoded field
// sequence; the response body is the encoded result code and output fields.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/pslog"
	"pkt.systems/tclib/api"
	"pkt.systems/tclib/internal/compress"
	"pkt.systems/tclib/internal/correlation"
	"pkt.systems/tclib/internal/svcfields"
	"pkt.systems/tclib/participant"
	"pkt.systems/tclib/session"
)

const (
	// ContentType is the media type of encoded field sequences.
	ContentType = "application/x-tclib-fields"
	// RoutePrefix precedes the service name in call URLs.
	RoutePrefix = "/v1/tc/"
	// HeaderResult mirrors the response's result code name.
	HeaderResult = "X-Tclib-Result"

	headerRequestID = "X-Request-Id"

	// DefaultMaxPayloadBytes bounds request bodies when Config leaves it unset.
	DefaultMaxPayloadBytes = 8 << 20
	// DefaultCompressThreshold is the smallest response compressed with zstd.
	DefaultCompressThreshold = 4 << 10
)

// Dispatcher handles decoded participant calls. *participant.Engine
// satisfies it.
type Dispatcher interface {
	Handle(ctx context.Context, kind api.ServiceKind, sess session.Session) error
	Registered() bool
}

// Config configures a Handler.
type Config struct {
	Dispatcher        Dispatcher
	Logger            pslog.Logger
	MaxPayloadBytes   int64
	CompressThreshold int
	// DisableTracing skips spans and otelhttp instrumentation.
	DisableTracing bool
}

// Handler serves participant calls.
type Handler struct {
	dispatcher        Dispatcher
	logger            pslog.Logger
	maxPayloadBytes   int64
	compressThreshold int
	tracing           bool
	tracer            trace.Tracer
}

// New constructs a Handler.
func New(cfg Config) *Handler {
	maxBytes := cfg.MaxPayloadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	threshold := cfg.CompressThreshold
	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	return &Handler{
		dispatcher:        cfg.Dispatcher,
		logger:            svcfields.WithSubsystem(cfg.Logger, "tclib.http"),
		maxPayloadBytes:   maxBytes,
		compressThreshold: threshold,
		tracing:           !cfg.DisableTracing,
		tracer:            otel.Tracer("pkt.systems/tclib/httpapi"),
	}
}

// Register wires the call route and the health endpoint.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST "+RoutePrefix+"{service}", h.wrap("call", h.handleCall))
	mux.Handle("/healthz", h.wrap("healthz", h.handleHealth))
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type httpError struct {
	Status int
	Code   string
	Detail string
}

func (e httpError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code
}

func (h *Handler) wrap(operation string, fn handlerFunc) http.Handler {
	spanName := "tclib.http." + operation
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		reqID := uuid.Must(uuid.NewV7()).String()

		var span trace.Span
		if h.tracing {
			ctx, span = h.tracer.Start(ctx, "tclib.call."+operation, trace.WithSpanKind(trace.SpanKindInternal))
			span.SetAttributes(
				attribute.String("tclib.operation", operation),
				attribute.String("tclib.route", r.URL.Path),
			)
			defer span.End()
		} else {
			span = trace.SpanFromContext(ctx)
		}

		ctx = correlation.With(ctx, r.Header.Get(correlation.Header))
		ctx, corr := correlation.Ensure(ctx)
		logger := svcfields.WithCall(h.logger, r.PathValue("service"), reqID, corr).With(
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx = pslog.ContextWithLogger(ctx, logger)
		span.SetAttributes(attribute.String("tclib.correlation_id", corr))
		w.Header().Set(correlation.Header, corr)
		w.Header().Set(headerRequestID, reqID)

		logger.Trace("http.request.start", "remote_addr", r.RemoteAddr)
		r = r.WithContext(ctx)
		if err := fn(w, r); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler_error")
			var httpErr httpError
			if errors.As(err, &httpErr) {
				span.SetAttributes(
					attribute.String("tclib.error_code", httpErr.Code),
					attribute.Int("tclib.error_status", httpErr.Status),
				)
			}
			logger.Debug("http.request.error", "elapsed", time.Since(start), "error", err)
			h.handleError(ctx, w, err)
			return
		}
		span.SetStatus(codes.Ok, "")
		logger.Trace("http.request.complete", "elapsed", time.Since(start))
	})
	if !h.tracing {
		return handler
	}
	return otelhttp.NewHandler(handler, spanName,
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents))
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := pslog.LoggerFromContext(ctx)
	if logger == nil {
		logger = h.logger
	}
	var httpErr httpError
	if errors.As(err, &httpErr) {
		logger.Debug("http.request.failure", "status", httpErr.Status, "code", httpErr.Code, "detail", httpErr.Detail)
		h.writeJSON(w, httpErr.Status, api.ErrorResponse{ErrorCode: httpErr.Code, Detail: httpErr.Detail})
		return
	}
	logger.Error("http.request.internal_error", "error", err)
	h.writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{
		ErrorCode: "internal_error",
		Detail:    "internal server error",
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	if h.dispatcher == nil || !h.dispatcher.Registered() {
		return httpError{Status: http.StatusServiceUnavailable, Code: "not_registered", Detail: "participant callbacks are not registered"}
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (h *Handler) handleCall(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	name := r.PathValue("service")
	kind, ok := api.ParseServiceKind(name)
	if !ok {
		return httpError{Status: http.StatusNotFound, Code: "unknown_service", Detail: fmt.Sprintf("no service %q", name)}
	}
	if h.dispatcher == nil || !h.dispatcher.Registered() {
		return httpError{Status: http.StatusServiceUnavailable, Code: "not_registered", Detail: "participant callbacks are not registered"}
	}
	payload, err := h.readPayload(w, r)
	if err != nil {
		return err
	}
	fields, err := session.Decode(payload)
	if err != nil {
		return httpError{Status: http.StatusBadRequest, Code: "malformed_payload", Detail: err.Error()}
	}

	sess := newCallSession(w, fields)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("tclib.service", kind.String()),
		attribute.Int("tclib.fields", len(fields)),
	)
	if err := h.dispatcher.Handle(ctx, kind, sess); err != nil {
		switch {
		case errors.Is(err, participant.ErrNotRegistered):
			return httpError{Status: http.StatusServiceUnavailable, Code: "not_registered", Detail: err.Error()}
		case errors.Is(err, participant.ErrUnsupportedService):
			return httpError{Status: http.StatusNotFound, Code: "unknown_service", Detail: err.Error()}
		}
		return fmt.Errorf("dispatch %s: %w", kind, err)
	}
	sess.Close()

	result := api.ResultCode(sess.Result())
	body := session.EncodeResponse(uint32(result), sess.Outputs())
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("tclib.result", result.String()))
	return h.writeFields(w, r, result, body)
}

func (h *Handler) writeFields(w http.ResponseWriter, r *http.Request, result api.ResultCode, body []byte) error {
	header := w.Header()
	header.Set("Content-Type", ContentType)
	header.Set(HeaderResult, result.String())
	if len(body) >= h.compressThreshold && compress.Accepts(r.Header) {
		compressed := compress.Bytes(body)
		if logger := pslog.LoggerFromContext(r.Context()); logger != nil {
			logger.Trace("http.response.compressed", "raw", humanize.Bytes(uint64(len(body))), "wire", humanize.Bytes(uint64(len(compressed))))
		}
		body = compressed
		header.Set("Content-Encoding", compress.Encoding)
		header.Add("Vary", "Accept-Encoding")
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(body)
	return err
}
