// Package reconciler bounds the local cache by age. Rows are evicted purely
// on how long ago they were last written through from the server; reaction
// and membership writes never refresh that timestamp, so an entity the user
// touched but the server never confirmed ages out like any other.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/logging"
	"github.com/c0deZ3R0/incident-sync/storage/sqlite"
	"github.com/c0deZ3R0/incident-sync/telemetry"
)

// Cache is the store surface the reconciler needs.
type Cache interface {
	DeleteOlderThan(ctx context.Context, family sqlite.Family, cutoff time.Time) (int64, error)
}

// Reconciler periodically deletes cache rows whose last successful sync is
// older than the retention window.
type Reconciler struct {
	cache     Cache
	retention time.Duration
	interval  time.Duration
	logger    *logging.Logger
	metrics   telemetry.Collector
	now       func() time.Time

	mu   sync.Mutex
	stop chan struct{}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// WithCollector sets the metrics collector.
func WithCollector(m telemetry.Collector) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// New creates a reconciler that evicts rows older than retention, sweeping
// every interval when started.
func New(cache Cache, retention, interval time.Duration, opts ...Option) (*Reconciler, error) {
	if retention <= 0 {
		return nil, syncErrors.E(syncErrors.Op("reconciler.New"), syncErrors.Component("reconciler"),
			syncErrors.Invalid, fmt.Errorf("retention must be positive, got %v", retention))
	}
	if interval <= 0 {
		return nil, syncErrors.E(syncErrors.Op("reconciler.New"), syncErrors.Component("reconciler"),
			syncErrors.Invalid, fmt.Errorf("interval must be positive, got %v", interval))
	}

	r := &Reconciler{
		cache:     cache,
		retention: retention,
		interval:  interval,
		logger:    logging.WithComponent(logging.Component("reconciler")),
		metrics:   telemetry.NoopCollector{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Evict deletes one family's rows last synced strictly before now-retention.
// Rows synced exactly at the cutoff survive until the next sweep.
func (r *Reconciler) Evict(ctx context.Context, family sqlite.Family) (int64, error) {
	const op = "reconciler.Evict"

	if !family.Valid() {
		return 0, syncErrors.E(syncErrors.Op(op), syncErrors.Component("reconciler"),
			syncErrors.Invalid, fmt.Errorf("unknown family %q", family))
	}

	cutoff := r.now().Add(-r.retention)
	rows, err := r.cache.DeleteOlderThan(ctx, family, cutoff)
	if err != nil {
		return 0, syncErrors.E(syncErrors.Op(op), syncErrors.Component("reconciler"), err)
	}
	if rows > 0 {
		r.metrics.RecordEviction(string(family), rows)
		r.logger.Info("Evicted stale cache rows",
			slog.String("family", string(family)),
			slog.Int64("rows", rows),
			slog.Time("cutoff", cutoff))
	}
	return rows, nil
}

// EvictAll sweeps every family, continuing past per-family failures and
// returning them joined.
func (r *Reconciler) EvictAll(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  []error
	)
	for _, family := range sqlite.Families() {
		rows, err := r.Evict(ctx, family)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += rows
	}
	return total, errors.Join(errs...)
}

// Start launches the periodic sweep. It returns an error if the sweep is
// already running. The loop exits when ctx is cancelled or Stop is called;
// sweep failures are logged and the loop keeps going.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stop != nil {
		return syncErrors.E(syncErrors.Op("reconciler.Start"), syncErrors.Component("reconciler"),
			fmt.Errorf("reconciler is already running"))
	}

	stop := make(chan struct{})
	r.stop = stop

	go func() {
		r.logger.Info("Cache reconciler started",
			slog.Duration("retention", r.retention),
			slog.Duration("interval", r.interval))
		ticker := time.NewTicker(r.interval)
		defer func() {
			ticker.Stop()
			r.logger.Info("Cache reconciler stopped")
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if _, err := r.EvictAll(ctx); err != nil {
					r.logger.Error("Cache sweep failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
	return nil
}

// Stop halts the periodic sweep. Stopping a reconciler that is not running
// is an error, mirroring Start.
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stop == nil {
		return syncErrors.E(syncErrors.Op("reconciler.Stop"), syncErrors.Component("reconciler"),
			fmt.Errorf("reconciler is not running"))
	}
	close(r.stop)
	r.stop = nil
	return nil
}
