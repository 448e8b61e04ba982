package participant

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
	"pkt.systems/tclib/api"
)

type engineMetrics struct {
	dispatchDuration metric.Int64Histogram
	phaseRejected    metric.Int64Counter
	cancelRaced      metric.Int64Counter
	inflight         metric.Int64UpDownCounter
}

func newEngineMetrics(logger pslog.Logger) *engineMetrics {
	meter := otel.Meter("pkt.systems/tclib/participant")
	m := &engineMetrics{}
	var err error

	m.dispatchDuration, err = meter.Int64Histogram(
		"tclib.dispatch.duration_ms",
		metric.WithDescription("Time spent dispatching one participant call"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "tclib.dispatch.duration_ms", err)

	m.phaseRejected, err = meter.Int64Counter(
		"tclib.phase.rejected",
		metric.WithDescription("Phase transitions rejected by the sequencer"),
	)
	logMetricInitError(logger, "tclib.phase.rejected", err)

	m.cancelRaced, err = meter.Int64Counter(
		"tclib.audit.cancel.raced",
		metric.WithDescription("Audit cancels that arrived before their audit started"),
	)
	logMetricInitError(logger, "tclib.audit.cancel.raced", err)

	m.inflight, err = meter.Int64UpDownCounter(
		"tclib.inflight",
		metric.WithDescription("Participant calls currently being dispatched"),
	)
	logMetricInitError(logger, "tclib.inflight", err)

	return m
}

func (m *engineMetrics) recordDispatch(ctx context.Context, kind api.ServiceKind, code api.ResultCode, duration time.Duration) {
	if m == nil || m.dispatchDuration == nil {
		return
	}
	ctx = metricContext(ctx)
	attrs := []attribute.KeyValue{
		attribute.String("tclib.service", kind.String()),
		attribute.String("tclib.result", code.String()),
	}
	m.dispatchDuration.Record(ctx, duration.Milliseconds(), metric.WithAttributes(attrs...))
}

func (m *engineMetrics) recordRejected(ctx context.Context, role api.Role, from, to api.Phase) {
	if m == nil || m.phaseRejected == nil {
		return
	}
	ctx = metricContext(ctx)
	attrs := []attribute.KeyValue{
		attribute.String("tclib.role", role.String()),
		attribute.String("tclib.phase.from", from.String()),
		attribute.String("tclib.phase.to", to.String()),
	}
	m.phaseRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *engineMetrics) recordCancelRaced(ctx context.Context) {
	if m == nil || m.cancelRaced == nil {
		return
	}
	m.cancelRaced.Add(metricContext(ctx), 1)
}

func (m *engineMetrics) addInflight(ctx context.Context, delta int64) {
	if m == nil || m.inflight == nil {
		return
	}
	m.inflight.Add(metricContext(ctx), delta)
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
