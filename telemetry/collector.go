package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Collector provides hooks for recording sync operation metrics.
type Collector interface {
	// RecordFetch records one repository read with its outcome
	// ("fresh", "stale" or "failed") and duration.
	RecordFetch(family string, outcome string, duration time.Duration)

	// RecordCacheFallback records a read served from cache after a remote failure.
	RecordCacheFallback(family string)

	// RecordReaction records one reaction toggle with its outcome
	// ("confirmed" or "unconfirmed").
	RecordReaction(target string, outcome string)

	// RecordEviction records rows removed by the cache reconciler.
	RecordEviction(family string, rows int64)
}

// NoopCollector is a default implementation that does nothing.
type NoopCollector struct{}

func (NoopCollector) RecordFetch(family string, outcome string, duration time.Duration) {}
func (NoopCollector) RecordCacheFallback(family string)                                 {}
func (NoopCollector) RecordReaction(target string, outcome string)                      {}
func (NoopCollector) RecordEviction(family string, rows int64)                          {}

// OTelCollector records metrics through the global OTel meter provider set
// up by Setup. With no provider configured the instruments are no-ops.
type OTelCollector struct {
	fetchDuration metric.Float64Histogram
	fallbacks     metric.Int64Counter
	reactions     metric.Int64Counter
	evictions     metric.Int64Counter
}

// NewOTelCollector builds the instruments on the global meter provider.
func NewOTelCollector() (*OTelCollector, error) {
	meter := otel.Meter("github.com/c0deZ3R0/incident-sync")

	fetchDuration, err := meter.Float64Histogram("sync.fetch.duration",
		metric.WithDescription("Duration of repository reads"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating fetch duration histogram: %w", err)
	}
	fallbacks, err := meter.Int64Counter("sync.cache.fallbacks",
		metric.WithDescription("Reads served from cache after a remote failure"))
	if err != nil {
		return nil, fmt.Errorf("creating fallback counter: %w", err)
	}
	reactions, err := meter.Int64Counter("sync.reactions",
		metric.WithDescription("Reaction toggles applied"))
	if err != nil {
		return nil, fmt.Errorf("creating reaction counter: %w", err)
	}
	evictions, err := meter.Int64Counter("sync.cache.evictions",
		metric.WithDescription("Rows evicted by the cache reconciler"))
	if err != nil {
		return nil, fmt.Errorf("creating eviction counter: %w", err)
	}

	return &OTelCollector{
		fetchDuration: fetchDuration,
		fallbacks:     fallbacks,
		reactions:     reactions,
		evictions:     evictions,
	}, nil
}

func (c *OTelCollector) RecordFetch(family string, outcome string, duration time.Duration) {
	c.fetchDuration.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(
			attribute.String("family", family),
			attribute.String("outcome", outcome),
		))
}

func (c *OTelCollector) RecordCacheFallback(family string) {
	c.fallbacks.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("family", family)))
}

func (c *OTelCollector) RecordReaction(target string, outcome string) {
	c.reactions.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("target", target),
			attribute.String("outcome", outcome),
		))
}

func (c *OTelCollector) RecordEviction(family string, rows int64) {
	c.evictions.Add(context.Background(), rows,
		metric.WithAttributes(attribute.String("family", family)))
}
