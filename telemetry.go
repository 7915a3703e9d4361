package lokadcloud

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewPrometheusMeterProvider builds an OpenTelemetry MeterProvider that
// exports through reg. Install the returned provider with
// otel.SetMeterProvider before constructing any Provider, so the
// puts/overflows/acks/in_flight instruments newProviderMetrics registers
// are exported through reg. A nil reg gets a fresh registry.
func NewPrometheusMeterProvider(reg *prometheus.Registry) (*sdkmetric.MeterProvider, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("lokadcloud: build prometheus exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

// MetricsHandler returns an http.Handler serving reg in the Prometheus
// exposition format, suitable for mounting at /metrics.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
