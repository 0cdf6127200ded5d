package repository

import (
	"context"
	"testing"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/incident"
	"github.com/c0deZ3R0/incident-sync/keylock"
	"github.com/c0deZ3R0/incident-sync/storage/sqlite"
)

type mockGroupCache struct {
	groups map[string]incident.Group
}

func newMockGroupCache() *mockGroupCache {
	return &mockGroupCache{groups: make(map[string]incident.Group)}
}

func (m *mockGroupCache) UpsertGroups(_ context.Context, groups []incident.Group) error {
	for _, g := range groups {
		m.groups[g.ID] = g
	}
	return nil
}

func (m *mockGroupCache) GroupByID(_ context.Context, id string) (*incident.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, sqlite.ErrNotFound
	}
	return &g, nil
}

func (m *mockGroupCache) AllGroups(_ context.Context) ([]incident.Group, error) {
	var out []incident.Group
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out, nil
}

func (m *mockGroupCache) SetGroupMembership(_ context.Context, id string, isMember bool, memberCount int) error {
	g, ok := m.groups[id]
	if !ok {
		return sqlite.ErrNotFound
	}
	g.IsMember = isMember
	g.MemberCount = memberCount
	m.groups[id] = g
	return nil
}

type mockGroupAPI struct {
	group      *incident.Group
	fetchErr   error
	joinErr    error
	joins      int
	leaves     int
	leaveErr   error
	lastJoined string
}

func (m *mockGroupAPI) FetchGroup(_ context.Context, _ string) (*incident.Group, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	g := *m.group
	return &g, nil
}

func (m *mockGroupAPI) JoinGroup(_ context.Context, id string) error {
	if m.joinErr != nil {
		return m.joinErr
	}
	m.joins++
	m.lastJoined = id
	return nil
}

func (m *mockGroupAPI) LeaveGroup(_ context.Context, _ string) error {
	if m.leaveErr != nil {
		return m.leaveErr
	}
	m.leaves++
	return nil
}

func TestGroupFreshAndStale(t *testing.T) {
	cache := newMockGroupCache()
	api := &mockGroupAPI{group: &incident.Group{ID: "g-1", Name: "Vila Madalena Watch", MemberCount: 120}}
	repo := NewGroupRepository(cache, api, keylock.NewMap())
	ctx := context.Background()

	res := repo.Group(ctx, "g-1")
	if res.Freshness != FreshData || res.Data.MemberCount != 120 {
		t.Fatalf("fresh group: %v %+v", res.Freshness, res.Data)
	}
	if _, ok := cache.groups["g-1"]; !ok {
		t.Fatal("fresh fetch must write through the cache")
	}

	api.fetchErr = unreachable()
	res = repo.Group(ctx, "g-1")
	if res.Freshness != StaleData || res.Data.Name != "Vila Madalena Watch" {
		t.Errorf("stale group: %v %+v", res.Freshness, res.Data)
	}

	res = repo.Group(ctx, "g-unknown")
	if res.Freshness != NoData {
		t.Errorf("uncached group during outage must fail, got %v", res.Freshness)
	}
}

func TestJoinGroupOptimistic(t *testing.T) {
	cache := newMockGroupCache()
	cache.groups["g-1"] = incident.Group{ID: "g-1", MemberCount: 10}
	api := &mockGroupAPI{}
	repo := NewGroupRepository(cache, api, keylock.NewMap())

	g, err := repo.Join(context.Background(), "g-1")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !g.IsMember || g.MemberCount != 11 {
		t.Errorf("after join: %+v", g)
	}
	if api.joins != 1 || api.lastJoined != "g-1" {
		t.Errorf("server joins: %d (%s)", api.joins, api.lastJoined)
	}
}

func TestJoinGroupIdempotent(t *testing.T) {
	cache := newMockGroupCache()
	cache.groups["g-1"] = incident.Group{ID: "g-1", IsMember: true, MemberCount: 11}
	api := &mockGroupAPI{}
	repo := NewGroupRepository(cache, api, keylock.NewMap())

	g, err := repo.Join(context.Background(), "g-1")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if g.MemberCount != 11 {
		t.Errorf("joining twice must not bump the count: %d", g.MemberCount)
	}
	if api.joins != 0 {
		t.Error("no server call for a no-op join")
	}
}

func TestLeaveGroupNoRevertOnRemoteFailure(t *testing.T) {
	cache := newMockGroupCache()
	cache.groups["g-1"] = incident.Group{ID: "g-1", IsMember: true, MemberCount: 11}
	api := &mockGroupAPI{leaveErr: unreachable()}
	repo := NewGroupRepository(cache, api, keylock.NewMap())

	g, err := repo.Leave(context.Background(), "g-1")
	if err == nil {
		t.Fatal("the remote failure must be surfaced")
	}
	if syncErrors.KindOf(err) != syncErrors.Unreachable {
		t.Errorf("kind = %v, want Unreachable", syncErrors.KindOf(err))
	}
	if g == nil {
		t.Fatal("the optimistic group must ride along with the error")
	}
	if g.IsMember || g.MemberCount != 10 {
		t.Errorf("after leave: %+v", g)
	}
	cached := cache.groups["g-1"]
	if cached.IsMember {
		t.Error("cache was reverted after the remote failure")
	}
}

func TestLeaveGroupFloorsMemberCount(t *testing.T) {
	cache := newMockGroupCache()
	cache.groups["g-1"] = incident.Group{ID: "g-1", IsMember: true, MemberCount: 0}
	repo := NewGroupRepository(cache, &mockGroupAPI{}, keylock.NewMap())

	g, err := repo.Leave(context.Background(), "g-1")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if g.MemberCount != 0 {
		t.Errorf("member count went negative: %d", g.MemberCount)
	}
}

func TestStreamGroupsIsRestartable(t *testing.T) {
	cache := newMockGroupCache()
	cache.groups["g-1"] = incident.Group{ID: "g-1", Name: "Centro Alerta"}
	repo := NewGroupRepository(cache, &mockGroupAPI{fetchErr: unreachable()}, keylock.NewMap())

	seq := repo.StreamGroups(context.Background())

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
		t.Fatalf("first pass: %d groups", got)
	}
	cache.groups["g-2"] = incident.Group{ID: "g-2", Name: "Zona Norte Watch"}
	if got := count(); got != 2 {
		t.Errorf("second pass should observe the new row, got %d", got)
	}
}

func TestJoinUncachedGroup(t *testing.T) {
	repo := NewGroupRepository(newMockGroupCache(), &mockGroupAPI{}, keylock.NewMap())

	_, err := repo.Join(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for uncached group")
	}
	if syncErrors.KindOf(err) != syncErrors.NotFound {
		t.Errorf("kind = %v, want NotFound", syncErrors.KindOf(err))
	}
}
