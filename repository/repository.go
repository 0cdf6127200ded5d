package repository

import (
	"github.com/c0deZ3R0/incident-sync/keylock"
	"github.com/c0deZ3R0/incident-sync/logging"
	"github.com/c0deZ3R0/incident-sync/telemetry"
)

// base carries the collaborators every repository shares. The keylock map
// must be the same instance handed to the reaction coordinator so
// write-through upserts and reaction writes on the same rows serialize.
type base struct {
	locks   *keylock.Map
	logger  *logging.Logger
	metrics telemetry.Collector
}

// Option configures a repository.
type Option func(*base)

// WithLogger sets a custom logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *base) {
		b.logger = l
	}
}

// WithCollector sets the metrics collector.
func WithCollector(m telemetry.Collector) Option {
	return func(b *base) {
		b.metrics = m
	}
}

func newBase(locks *keylock.Map, opts []Option) base {
	b := base{
		locks:   locks,
		logger:  logging.WithComponent(logging.Component("repository")),
		metrics: telemetry.NoopCollector{},
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}
