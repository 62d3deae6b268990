package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/loadboard"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Load lifecycle metrics
	TransitionsTotal      metric.Int64Counter
	TransitionErrorsTotal metric.Int64Counter
	LoadsCreatedTotal     metric.Int64Counter
	SignaturesTotal       metric.Int64Counter

	// Audit metrics
	EventsAppendedTotal metric.Int64Counter

	// Authorization metrics
	AuthzDeniedTotal metric.Int64Counter

	// Storage metrics
	StorageOperationsTotal metric.Int64Counter
	StorageErrorsTotal     metric.Int64Counter

	// Collaborator metrics
	NotificationsFailedTotal metric.Int64Counter

	// HTTP metrics
	RequestDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.TransitionsTotal, _ = meter.Int64Counter(
		"loadboard.loads.transitions.total",
		metric.WithDescription("Total number of successful load status transitions"),
		metric.WithUnit("{transition}"),
	)

	m.TransitionErrorsTotal, _ = meter.Int64Counter(
		"loadboard.loads.transitions.errors.total",
		metric.WithDescription("Total number of rejected or failed load status transitions"),
		metric.WithUnit("{error}"),
	)

	m.LoadsCreatedTotal, _ = meter.Int64Counter(
		"loadboard.loads.created.total",
		metric.WithDescription("Total number of loads created"),
		metric.WithUnit("{load}"),
	)

	m.SignaturesTotal, _ = meter.Int64Counter(
		"loadboard.loads.signatures.total",
		metric.WithDescription("Total number of signatures captured"),
		metric.WithUnit("{signature}"),
	)

	m.EventsAppendedTotal, _ = meter.Int64Counter(
		"loadboard.events.appended.total",
		metric.WithDescription("Total number of audit events appended"),
		metric.WithUnit("{event}"),
	)

	m.AuthzDeniedTotal, _ = meter.Int64Counter(
		"loadboard.authz.denied.total",
		metric.WithDescription("Total number of requests denied by the authorization guard"),
		metric.WithUnit("{request}"),
	)

	m.StorageOperationsTotal, _ = meter.Int64Counter(
		"loadboard.storage.operations.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)

	m.StorageErrorsTotal, _ = meter.Int64Counter(
		"loadboard.storage.errors.total",
		metric.WithDescription("Total number of storage operation failures"),
		metric.WithUnit("{error}"),
	)

	m.NotificationsFailedTotal, _ = meter.Int64Counter(
		"loadboard.notifications.failed.total",
		metric.WithDescription("Total number of notifications that could not be sent"),
		metric.WithUnit("{notification}"),
	)

	m.RequestDuration, _ = meter.Float64Histogram(
		"loadboard.http.request.duration",
		metric.WithDescription("Duration of HTTP API requests"),
		metric.WithUnit("ms"),
	)

	return m
}
