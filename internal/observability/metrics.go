// Package observability provides OpenTelemetry metrics exported in Prometheus format.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/amishk599/nutrilens"

// InitMetrics installs a meter provider backed by a Prometheus exporter as the
// global provider. It returns the /metrics handler and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), provider.Shutdown, nil
}

// JobMetrics holds the job lifecycle instruments.
type JobMetrics struct {
	Submitted metric.Int64Counter
	Rejected  metric.Int64Counter
	Finished  metric.Int64Counter
	InFlight  metric.Int64UpDownCounter
}

// NewJobMetrics creates the job instruments on the global meter provider. With
// no provider installed the instruments are no-ops.
func NewJobMetrics() (*JobMetrics, error) {
	return newJobMetrics(otel.Meter(meterName))
}

func newJobMetrics(meter metric.Meter) (*JobMetrics, error) {
	submitted, err := meter.Int64Counter("nutrilens.jobs.submitted",
		metric.WithDescription("Jobs accepted for processing"))
	if err != nil {
		return nil, fmt.Errorf("create submitted counter: %w", err)
	}
	rejected, err := meter.Int64Counter("nutrilens.jobs.rejected",
		metric.WithDescription("Submissions refused because the job limit was reached"))
	if err != nil {
		return nil, fmt.Errorf("create rejected counter: %w", err)
	}
	finished, err := meter.Int64Counter("nutrilens.jobs.finished",
		metric.WithDescription("Jobs that reached a terminal state, by status"))
	if err != nil {
		return nil, fmt.Errorf("create finished counter: %w", err)
	}
	inFlight, err := meter.Int64UpDownCounter("nutrilens.jobs.in_flight",
		metric.WithDescription("Jobs currently processing"))
	if err != nil {
		return nil, fmt.Errorf("create in-flight counter: %w", err)
	}
	return &JobMetrics{
		Submitted: submitted,
		Rejected:  rejected,
		Finished:  finished,
		InFlight:  inFlight,
	}, nil
}
