package lokadcloud

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// providerMetrics reports lightweight, best-effort observability for a
// Provider. Metrics are pure ambient observability: a failure to register
// them is logged through the Observer and otherwise ignored, never
// propagated as an operational error.
type providerMetrics struct {
	puts      metric.Int64Counter
	overflows metric.Int64Counter
	deletes   metric.Int64Counter
	inFlight  metric.Int64ObservableGauge
}

func newProviderMetrics[T any](p *Provider[T]) *providerMetrics {
	meter := otel.Meter("github.com/ischyrus/lokad-cloud-storage")
	m := &providerMetrics{}
	var err error

	m.puts, err = meter.Int64Counter(
		"lokadcloud.queue.puts",
		metric.WithDescription("Messages enqueued, labeled by queue"),
	)
	logMetricInitError(p.observer, "lokadcloud.queue.puts", err)

	m.overflows, err = meter.Int64Counter(
		"lokadcloud.queue.overflows",
		metric.WithDescription("Messages routed through blob overflow"),
	)
	logMetricInitError(p.observer, "lokadcloud.queue.overflows", err)

	m.deletes, err = meter.Int64Counter(
		"lokadcloud.queue.acks",
		metric.WithDescription("Messages acknowledged (deleted)"),
	)
	logMetricInitError(p.observer, "lokadcloud.queue.acks", err)

	m.inFlight, err = meter.Int64ObservableGauge(
		"lokadcloud.queue.in_flight",
		metric.WithDescription("Distinct in-flight message keys currently tracked"),
	)
	logMetricInitError(p.observer, "lokadcloud.queue.in_flight", err)

	if m.inFlight != nil {
		if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(m.inFlight, int64(p.registry.size()))
			return nil
		}, m.inFlight); err != nil {
			p.observer.Warn("lokadcloud.telemetry.callback_failed", "error", err)
		}
	}

	return m
}

// addPut, addOverflow and addDelete are nil-safe: a meter that failed to
// register its instrument leaves the corresponding field nil, and these
// become no-ops rather than panicking.
func (m *providerMetrics) addPut(ctx context.Context, queue string) {
	if m == nil || m.puts == nil {
		return
	}
	m.puts.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

func (m *providerMetrics) addOverflow(ctx context.Context, queue string) {
	if m == nil || m.overflows == nil {
		return
	}
	m.overflows.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

func (m *providerMetrics) addDelete(ctx context.Context, queue string) {
	if m == nil || m.deletes == nil {
		return
	}
	m.deletes.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

func logMetricInitError(logger Observer, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("lokadcloud.telemetry.init_failed", "name", name, "error", err)
}
