package repository

import (
	"context"
	"errors"
	"testing"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/incident"
	"github.com/c0deZ3R0/incident-sync/keylock"
	"github.com/c0deZ3R0/incident-sync/storage/sqlite"
)

// Center and offsets around central São Paulo; 0.01° of latitude is roughly
// 1.1 km, so the "far" report sits about 12 km out.
const (
	centerLat = -23.5505
	centerLon = -46.6333
)

type mockReportCache struct {
	reports   map[string]incident.Report
	upserted  [][]incident.Report
	readErr   error
	upsertErr error
}

func newMockReportCache() *mockReportCache {
	return &mockReportCache{reports: make(map[string]incident.Report)}
}

func (m *mockReportCache) UpsertReports(_ context.Context, reports []incident.Report) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, reports)
	for _, r := range reports {
		m.reports[r.ID] = r
	}
	return nil
}

func (m *mockReportCache) ReportByID(_ context.Context, id string) (*incident.Report, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	r, ok := m.reports[id]
	if !ok {
		return nil, sqlite.ErrNotFound
	}
	return &r, nil
}

func (m *mockReportCache) AllReports(_ context.Context) ([]incident.Report, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []incident.Report
	for _, r := range m.reports {
		out = append(out, r)
	}
	return out, nil
}

type mockReportAPI struct {
	nearby  []incident.Report
	byID    map[string]incident.Report
	err     error
	fetches int
}

func (m *mockReportAPI) FetchNearbyReports(_ context.Context, _, _, _ float64) ([]incident.Report, error) {
	m.fetches++
	if m.err != nil {
		return nil, m.err
	}
	return m.nearby, nil
}

func (m *mockReportAPI) FetchReport(_ context.Context, id string) (*incident.Report, error) {
	m.fetches++
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.byID[id]
	if !ok {
		return nil, syncErrors.E(syncErrors.Op("mock"), syncErrors.NotFound, errors.New("no such report"))
	}
	return &r, nil
}

func unreachable() error {
	return syncErrors.E(syncErrors.Op("mock"), syncErrors.Unreachable, errors.New("connection refused"))
}

func nearbyFixture() []incident.Report {
	return []incident.Report{
		{ID: "near-1", Type: incident.ReportTheft, Latitude: centerLat + 0.010, Longitude: centerLon},
		{ID: "near-2", Type: incident.ReportHazard, Latitude: centerLat - 0.020, Longitude: centerLon},
		{ID: "near-3", Type: incident.ReportOther, Latitude: centerLat, Longitude: centerLon + 0.030},
		{ID: "far-1", Type: incident.ReportRobbery, Latitude: centerLat + 0.110, Longitude: centerLon},
	}
}

func TestReportsNearFresh(t *testing.T) {
	cache := newMockReportCache()
	api := &mockReportAPI{nearby: nearbyFixture()}
	repo := NewReportRepository(cache, api, keylock.NewMap())

	res := repo.ReportsNear(context.Background(), centerLat, centerLon, 5)
	if res.Freshness != FreshData || res.Err != nil {
		t.Fatalf("expected fresh result, got %v err=%v", res.Freshness, res.Err)
	}
	if len(res.Data) != 3 {
		t.Fatalf("expected 3 reports within 5km, got %d", len(res.Data))
	}
	for _, r := range res.Data {
		if r.ID == "far-1" {
			t.Error("far-1 is ~12km out and must be filtered")
		}
		if r.DistanceMeters <= 0 || r.DistanceLabel == "" {
			t.Errorf("report %s missing distance annotation", r.ID)
		}
	}

	// Write-through happened before the result was returned.
	if len(cache.upserted) != 1 || len(cache.upserted[0]) != 3 {
		t.Errorf("write-through batches: %v", cache.upserted)
	}
}

func TestReportsNearStaleFallback(t *testing.T) {
	cache := newMockReportCache()
	for _, r := range nearbyFixture() {
		cache.reports[r.ID] = r
	}
	api := &mockReportAPI{err: unreachable()}
	repo := NewReportRepository(cache, api, keylock.NewMap())

	res := repo.ReportsNear(context.Background(), centerLat, centerLon, 5)
	if res.Freshness != StaleData {
		t.Fatalf("expected stale result, got %v", res.Freshness)
	}
	if len(res.Data) != 3 {
		t.Errorf("expected 3 cached reports within 5km, got %d", len(res.Data))
	}
	if syncErrors.KindOf(res.Err) != syncErrors.Unreachable {
		t.Errorf("stale result should carry the remote error, got %v", res.Err)
	}
}

func TestReportsNearStaleFallbackEmptyCache(t *testing.T) {
	cache := newMockReportCache()
	api := &mockReportAPI{err: unreachable()}
	repo := NewReportRepository(cache, api, keylock.NewMap())

	res := repo.ReportsNear(context.Background(), centerLat, centerLon, 5)
	if res.Freshness != StaleData {
		t.Fatalf("an empty cache still answers, got %v", res.Freshness)
	}
	if len(res.Data) != 0 {
		t.Errorf("expected no reports, got %d", len(res.Data))
	}
	if !res.Ok() {
		t.Error("stale empty result is still usable data")
	}
}

func TestReportsNearCacheReadFailure(t *testing.T) {
	cache := newMockReportCache()
	cache.readErr = errors.New("database is locked")
	api := &mockReportAPI{err: unreachable()}
	repo := NewReportRepository(cache, api, keylock.NewMap())

	res := repo.ReportsNear(context.Background(), centerLat, centerLon, 5)
	if res.Freshness != NoData || res.Ok() {
		t.Fatalf("expected failed result, got %v", res.Freshness)
	}
	if syncErrors.KindOf(res.Err) != syncErrors.Unreachable {
		t.Errorf("failure should surface the remote error kind, got %v", syncErrors.KindOf(res.Err))
	}
}

func TestReportsNearInvalidCoordinates(t *testing.T) {
	cache := newMockReportCache()
	api := &mockReportAPI{nearby: nearbyFixture()}
	repo := NewReportRepository(cache, api, keylock.NewMap())

	res := repo.ReportsNear(context.Background(), 91, centerLon, 5)
	if res.Freshness != NoData {
		t.Fatalf("expected failure for invalid latitude, got %v", res.Freshness)
	}
	if syncErrors.KindOf(res.Err) != syncErrors.Invalid {
		t.Errorf("kind = %v, want Invalid", syncErrors.KindOf(res.Err))
	}
	if api.fetches != 0 {
		t.Error("invalid input must not reach the network")
	}
}

func TestReportsNearUpsertFailureStillFresh(t *testing.T) {
	cache := newMockReportCache()
	cache.upsertErr = errors.New("disk full")
	api := &mockReportAPI{nearby: nearbyFixture()}
	repo := NewReportRepository(cache, api, keylock.NewMap())

	res := repo.ReportsNear(context.Background(), centerLat, centerLon, 5)
	if res.Freshness != FreshData {
		t.Fatalf("a cache write failure must not fail the fresh read, got %v", res.Freshness)
	}
	if len(res.Data) != 3 {
		t.Errorf("expected 3 reports, got %d", len(res.Data))
	}
}

func TestReportFreshAndStale(t *testing.T) {
	cache := newMockReportCache()
	api := &mockReportAPI{byID: map[string]incident.Report{
		"r-1": {ID: "r-1", Type: incident.ReportTheft, UsefulCount: 7},
	}}
	repo := NewReportRepository(cache, api, keylock.NewMap())
	ctx := context.Background()

	res := repo.Report(ctx, "r-1")
	if res.Freshness != FreshData || res.Data.UsefulCount != 7 {
		t.Fatalf("fresh fetch: %v %+v", res.Freshness, res.Data)
	}
	if _, ok := cache.reports["r-1"]; !ok {
		t.Fatal("fresh fetch must write through the cache")
	}

	api.err = unreachable()
	res = repo.Report(ctx, "r-1")
	if res.Freshness != StaleData || res.Data.ID != "r-1" {
		t.Errorf("expected stale cached report, got %v %+v", res.Freshness, res.Data)
	}

	res = repo.Report(ctx, "missing")
	if res.Freshness != NoData {
		t.Errorf("uncached report during outage must fail, got %v", res.Freshness)
	}
}

func TestStreamReportsIsRestartable(t *testing.T) {
	cache := newMockReportCache()
	cache.reports["r-1"] = incident.Report{ID: "r-1"}
	repo := NewReportRepository(cache, &mockReportAPI{}, keylock.NewMap())

	seq := repo.StreamReports(context.Background())

	count := func() int {
		n := 0
		for _, err := range seq {
			if err != nil {
				t.Fatalf("stream error: %v", err)
			}
			n++
		}
		return n
	}

	if got := count(); got != 1 {
		t.Fatalf("first pass: %d reports", got)
	}
	cache.reports["r-2"] = incident.Report{ID: "r-2"}
	if got := count(); got != 2 {
		t.Errorf("second pass should observe the new row, got %d", got)
	}
}
