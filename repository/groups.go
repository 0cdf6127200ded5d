package repository

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/incident"
	"github.com/c0deZ3R0/incident-sync/keylock"
	"github.com/c0deZ3R0/incident-sync/storage/sqlite"
)

// GroupCache is the cache surface the group repository needs.
type GroupCache interface {
	UpsertGroups(ctx context.Context, groups []incident.Group) error
	GroupByID(ctx context.Context, id string) (*incident.Group, error)
	AllGroups(ctx context.Context) ([]incident.Group, error)
	SetGroupMembership(ctx context.Context, id string, isMember bool, memberCount int) error
}

// GroupAPI is the remote surface the group repository needs.
type GroupAPI interface {
	FetchGroup(ctx context.Context, id string) (*incident.Group, error)
	JoinGroup(ctx context.Context, id string) error
	LeaveGroup(ctx context.Context, id string) error
}

// GroupRepository serves groups fetch-then-cache and applies membership
// changes optimistically, in the same no-revert discipline as reaction
// toggles: the cache flips first, the server call follows, and a server
// failure leaves the local state for the next fetch to reconcile.
type GroupRepository struct {
	base
	cache  GroupCache
	remote GroupAPI
}

// NewGroupRepository creates a group repository.
func NewGroupRepository(cache GroupCache, remote GroupAPI, locks *keylock.Map, opts ...Option) *GroupRepository {
	return &GroupRepository{
		base:   newBase(locks, opts),
		cache:  cache,
		remote: remote,
	}
}

// Group returns one group by id, fetch-then-cache with stale fallback.
func (g *GroupRepository) Group(ctx context.Context, id string) Result[*incident.Group] {
	const op = "repository.Group"
	start := time.Now()

	group, err := g.remote.FetchGroup(ctx, id)
	if err == nil {
		unlock := g.locks.Lock(id)
		if uerr := g.cache.UpsertGroups(context.WithoutCancel(ctx), []incident.Group{*group}); uerr != nil {
			g.logger.Error("Write-through failed",
				slog.String("id", id), slog.String("error", uerr.Error()))
		}
		unlock()
		g.metrics.RecordFetch(string(sqlite.FamilyGroups), "fresh", time.Since(start))
		return Fresh(group)
	}

	cached, cerr := g.cache.GroupByID(ctx, id)
	if cerr != nil {
		if !errors.Is(cerr, sqlite.ErrNotFound) {
			g.logger.Error("Cache fallback read failed",
				slog.String("id", id), slog.String("error", cerr.Error()))
		}
		g.metrics.RecordFetch(string(sqlite.FamilyGroups), "failed", time.Since(start))
		return Failed[*incident.Group](syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err))
	}

	g.metrics.RecordCacheFallback(string(sqlite.FamilyGroups))
	g.metrics.RecordFetch(string(sqlite.FamilyGroups), "stale", time.Since(start))
	return Stale(cached, err)
}

// StreamGroups returns a lazy cache-only sequence over the cached groups,
// name order, re-queried on each iteration. It never touches the network.
func (g *GroupRepository) StreamGroups(ctx context.Context) iter.Seq2[incident.Group, error] {
	return func(yield func(incident.Group, error) bool) {
		groups, err := g.cache.AllGroups(ctx)
		if err != nil {
			yield(incident.Group{}, err)
			return
		}
		for _, group := range groups {
			if !yield(group, nil) {
				return
			}
		}
	}
}

// Join marks the user as a member of the cached group and tells the server.
// Already being a member is a no-op.
func (g *GroupRepository) Join(ctx context.Context, id string) (*incident.Group, error) {
	return g.setMembership(ctx, "repository.Join", id, true, g.remote.JoinGroup)
}

// Leave is the inverse of Join.
func (g *GroupRepository) Leave(ctx context.Context, id string) (*incident.Group, error) {
	return g.setMembership(ctx, "repository.Leave", id, false, g.remote.LeaveGroup)
}

func (g *GroupRepository) setMembership(ctx context.Context, op, id string, member bool, call func(context.Context, string) error) (*incident.Group, error) {
	unlock := g.locks.Lock(id)
	defer unlock()

	group, err := g.cache.GroupByID(ctx, id)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), syncErrors.NotFound, err)
		}
		return nil, syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err)
	}

	if group.IsMember == member {
		return group, nil
	}

	group.IsMember = member
	if member {
		group.MemberCount++
	} else if group.MemberCount > 0 {
		group.MemberCount--
	}

	if err := g.cache.SetGroupMembership(ctx, id, group.IsMember, group.MemberCount); err != nil {
		return nil, syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err)
	}

	// The optimistic flip is committed; the server call runs even if the
	// caller's context is already cancelled, and a failure is surfaced but
	// never reverted.
	if err := call(context.WithoutCancel(ctx), id); err != nil {
		g.metrics.RecordReaction("group", "unconfirmed")
		g.logger.Warn("Membership change not confirmed by server, keeping optimistic state",
			slog.String("id", id),
			slog.Bool("member", member),
			slog.String("kind", syncErrors.KindOf(err).String()),
			slog.String("error", err.Error()))
		return group, syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err)
	}
	g.metrics.RecordReaction("group", "confirmed")
	return group, nil
}
