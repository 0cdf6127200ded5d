package repository

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/geo"
	"github.com/c0deZ3R0/incident-sync/incident"
	"github.com/c0deZ3R0/incident-sync/keylock"
	"github.com/c0deZ3R0/incident-sync/storage/sqlite"
)

// ReportCache is the cache surface the report repository needs.
type ReportCache interface {
	UpsertReports(ctx context.Context, reports []incident.Report) error
	ReportByID(ctx context.Context, id string) (*incident.Report, error)
	AllReports(ctx context.Context) ([]incident.Report, error)
}

// ReportAPI is the remote surface the report repository needs.
type ReportAPI interface {
	FetchNearbyReports(ctx context.Context, lat, lon, radiusKm float64) ([]incident.Report, error)
	FetchReport(ctx context.Context, id string) (*incident.Report, error)
}

// ReportRepository serves incident reports fetch-then-cache: fresh data from
// the API written through the cache, or cached data when the API fails.
type ReportRepository struct {
	base
	cache  ReportCache
	remote ReportAPI
}

// NewReportRepository creates a report repository.
func NewReportRepository(cache ReportCache, remote ReportAPI, locks *keylock.Map, opts ...Option) *ReportRepository {
	return &ReportRepository{
		base:   newBase(locks, opts),
		cache:  cache,
		remote: remote,
	}
}

// ReportsNear returns the reports within radiusKm of the given coordinates,
// distance-annotated, newest first as the server orders them. On a remote
// failure the same radius filter is applied to the cached reports instead,
// and the result is marked stale with the remote error attached.
func (r *ReportRepository) ReportsNear(ctx context.Context, lat, lon, radiusKm float64) Result[[]incident.Report] {
	const op = "repository.ReportsNear"
	start := time.Now()

	center := geo.Point{Latitude: lat, Longitude: lon}

	// Validate the query before touching the network.
	if _, err := geo.FilterWithinRadius(center, radiusKm, nil); err != nil {
		return Failed[[]incident.Report](syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err))
	}

	fetched, err := r.remote.FetchNearbyReports(ctx, lat, lon, radiusKm)
	if err != nil {
		return r.reportsFromCache(ctx, op, center, radiusKm, start, err)
	}

	// The server's notion of "nearby" is advisory; the radius contract is
	// enforced here, inclusive at the boundary.
	filtered, ferr := geo.FilterWithinRadius(center, radiusKm, fetched)
	if ferr != nil {
		return Failed[[]incident.Report](syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), ferr))
	}

	r.writeThroughReports(ctx, op, filtered)
	r.metrics.RecordFetch(string(sqlite.FamilyReports), "fresh", time.Since(start))
	return Fresh(filtered)
}

// Report returns one report by id, fetch-then-cache with stale fallback.
func (r *ReportRepository) Report(ctx context.Context, id string) Result[*incident.Report] {
	const op = "repository.Report"
	start := time.Now()

	report, err := r.remote.FetchReport(ctx, id)
	if err == nil {
		r.writeThroughReports(ctx, op, []incident.Report{*report})
		r.metrics.RecordFetch(string(sqlite.FamilyReports), "fresh", time.Since(start))
		return Fresh(report)
	}

	cached, cerr := r.cache.ReportByID(ctx, id)
	if cerr != nil {
		if !errors.Is(cerr, sqlite.ErrNotFound) {
			r.logger.Error("Cache fallback read failed",
				slog.String("id", id), slog.String("error", cerr.Error()))
		}
		r.metrics.RecordFetch(string(sqlite.FamilyReports), "failed", time.Since(start))
		return Failed[*incident.Report](syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err))
	}

	r.metrics.RecordCacheFallback(string(sqlite.FamilyReports))
	r.metrics.RecordFetch(string(sqlite.FamilyReports), "stale", time.Since(start))
	return Stale(cached, err)
}

// StreamReports returns a lazy sequence over the cached reports, newest
// first. The cache query runs when iteration starts, so the sequence can be
// re-ranged to observe later cache states. It never touches the network.
func (r *ReportRepository) StreamReports(ctx context.Context) iter.Seq2[incident.Report, error] {
	return func(yield func(incident.Report, error) bool) {
		reports, err := r.cache.AllReports(ctx)
		if err != nil {
			yield(incident.Report{}, err)
			return
		}
		for _, report := range reports {
			if !yield(report, nil) {
				return
			}
		}
	}
}

// reportsFromCache serves a nearby query from the cache after a remote
// failure. A cache read error turns the result into a plain failure carrying
// the original remote error.
func (r *ReportRepository) reportsFromCache(ctx context.Context, op string, center geo.Point, radiusKm float64, start time.Time, remoteErr error) Result[[]incident.Report] {
	cached, err := r.cache.AllReports(ctx)
	if err != nil {
		r.logger.Error("Cache fallback read failed", slog.String("error", err.Error()))
		r.metrics.RecordFetch(string(sqlite.FamilyReports), "failed", time.Since(start))
		return Failed[[]incident.Report](syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), remoteErr))
	}

	filtered, err := geo.FilterWithinRadius(center, radiusKm, cached)
	if err != nil {
		r.metrics.RecordFetch(string(sqlite.FamilyReports), "failed", time.Since(start))
		return Failed[[]incident.Report](syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err))
	}

	r.logger.Info("Serving nearby reports from cache",
		slog.Int("count", len(filtered)),
		slog.String("kind", syncErrors.KindOf(remoteErr).String()))
	r.metrics.RecordCacheFallback(string(sqlite.FamilyReports))
	r.metrics.RecordFetch(string(sqlite.FamilyReports), "stale", time.Since(start))
	return Stale(filtered, remoteErr)
}

// writeThroughReports upserts fetched reports under sorted per-row locks so a
// concurrent reaction toggle on one of the rows cannot interleave with the
// batch. The write finishes even if the caller's context is cancelled
// mid-flight; a failure degrades the cache, not the fresh response.
func (r *ReportRepository) writeThroughReports(ctx context.Context, op string, reports []incident.Report) {
	if len(reports) == 0 {
		return
	}
	ids := make([]string, len(reports))
	for i, report := range reports {
		ids[i] = report.ID
	}
	unlock := r.locks.LockAll(ids)
	defer unlock()

	if err := r.cache.UpsertReports(context.WithoutCancel(ctx), reports); err != nil {
		r.logger.Error("Write-through failed",
			slog.String("operation", op),
			slog.Int("count", len(reports)),
			slog.String("error", err.Error()))
	}
}
