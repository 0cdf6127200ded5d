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
	"github.com/c0deZ3R0/incident-sync/logging"
	"github.com/c0deZ3R0/incident-sync/remote"
	"github.com/c0deZ3R0/incident-sync/storage/sqlite"
)

// PostCache is the cache surface the post repository needs.
type PostCache interface {
	UpsertPosts(ctx context.Context, posts []incident.Post) error
	PostByID(ctx context.Context, id string) (*incident.Post, error)
	PostsByGroup(ctx context.Context, groupID string, limit int) ([]incident.Post, error)
	FeedPosts(ctx context.Context, limit int) ([]incident.Post, error)
	DeletePost(ctx context.Context, id string) error
}

// PostAPI is the remote surface the post repository needs.
type PostAPI interface {
	FetchPost(ctx context.Context, id string) (*incident.Post, error)
	FetchGroupPosts(ctx context.Context, groupID string, page, limit int) ([]incident.Post, error)
	FetchUserFeed(ctx context.Context, page, limit int) ([]incident.Post, error)
	CreatePost(ctx context.Context, draft remote.PostDraft) (*incident.Post, error)
	DeletePost(ctx context.Context, id string) error
}

// PostRepository serves group posts and the user feed fetch-then-cache, and
// forwards post mutations to the API before updating the cache.
type PostRepository struct {
	base
	cache  PostCache
	remote PostAPI
}

// NewPostRepository creates a post repository.
func NewPostRepository(cache PostCache, remote PostAPI, locks *keylock.Map, opts ...Option) *PostRepository {
	return &PostRepository{
		base:   newBase(locks, opts),
		cache:  cache,
		remote: remote,
	}
}

// Post returns one post by id, fetch-then-cache with stale fallback.
func (p *PostRepository) Post(ctx context.Context, id string) Result[*incident.Post] {
	const op = "repository.Post"
	start := time.Now()

	post, err := p.remote.FetchPost(ctx, id)
	if err == nil {
		p.writeThroughPosts(ctx, op, []incident.Post{*post})
		p.metrics.RecordFetch(string(sqlite.FamilyPosts), "fresh", time.Since(start))
		return Fresh(post)
	}

	cached, cerr := p.cache.PostByID(ctx, id)
	if cerr != nil {
		if !errors.Is(cerr, sqlite.ErrNotFound) {
			p.logger.Error("Cache fallback read failed",
				slog.String("id", id), slog.String("error", cerr.Error()))
		}
		p.metrics.RecordFetch(string(sqlite.FamilyPosts), "failed", time.Since(start))
		return Failed[*incident.Post](syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err))
	}

	p.metrics.RecordCacheFallback(string(sqlite.FamilyPosts))
	p.metrics.RecordFetch(string(sqlite.FamilyPosts), "stale", time.Since(start))
	return Stale(cached, err)
}

// GroupPosts returns one page of a group's posts. The cache holds only the
// most recent window per group, so the stale fallback serves the first page
// and deeper pages fail outright when the remote is down.
func (p *PostRepository) GroupPosts(ctx context.Context, groupID string, page, limit int) Result[[]incident.Post] {
	const op = "repository.GroupPosts"

	return p.fetchPosts(ctx, op, page,
		func(ctx context.Context) ([]incident.Post, error) {
			return p.remote.FetchGroupPosts(ctx, groupID, page, limit)
		},
		func(ctx context.Context) ([]incident.Post, error) {
			return p.cache.PostsByGroup(ctx, groupID, limit)
		})
}

// Feed returns one page of the user's cross-group feed, stale fallback as in
// GroupPosts.
func (p *PostRepository) Feed(ctx context.Context, page, limit int) Result[[]incident.Post] {
	const op = "repository.Feed"

	return p.fetchPosts(ctx, op, page,
		func(ctx context.Context) ([]incident.Post, error) {
			return p.remote.FetchUserFeed(ctx, page, limit)
		},
		func(ctx context.Context) ([]incident.Post, error) {
			return p.cache.FeedPosts(ctx, limit)
		})
}

func (p *PostRepository) fetchPosts(ctx context.Context, op string, page int,
	fetch, fallback func(context.Context) ([]incident.Post, error)) Result[[]incident.Post] {
	start := time.Now()

	posts, err := fetch(ctx)
	if err == nil {
		p.writeThroughPosts(ctx, op, posts)
		p.metrics.RecordFetch(string(sqlite.FamilyPosts), "fresh", time.Since(start))
		return Fresh(posts)
	}

	if page > 1 {
		p.metrics.RecordFetch(string(sqlite.FamilyPosts), "failed", time.Since(start))
		return Failed[[]incident.Post](syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err))
	}

	cached, cerr := fallback(ctx)
	if cerr != nil {
		p.logger.Error("Cache fallback read failed",
			slog.String("operation", op), slog.String("error", cerr.Error()))
		p.metrics.RecordFetch(string(sqlite.FamilyPosts), "failed", time.Since(start))
		return Failed[[]incident.Post](syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err))
	}

	p.metrics.RecordCacheFallback(string(sqlite.FamilyPosts))
	p.metrics.RecordFetch(string(sqlite.FamilyPosts), "stale", time.Since(start))
	return Stale(cached, err)
}

// CreatePost submits a new post and caches the server's echo. There is no
// offline queue: creation requires the API, and a failure is returned as-is.
func (p *PostRepository) CreatePost(ctx context.Context, draft remote.PostDraft) (*incident.Post, error) {
	const op = "repository.CreatePost"

	post, err := p.remote.CreatePost(ctx, draft)
	if err != nil {
		return nil, syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err)
	}

	p.writeThroughPosts(ctx, op, []incident.Post{*post})
	return post, nil
}

// DeletePost deletes a post on the server and, once acknowledged, drops the
// cached row. A NotFound from the server still clears the cache: the post is
// gone either way.
func (p *PostRepository) DeletePost(ctx context.Context, id string) error {
	const op = "repository.DeletePost"

	return p.logger.LogOperation(ctx, logging.Operation(op), logging.Component("repository"), func() error {
		if err := p.remote.DeletePost(ctx, id); err != nil && !syncErrors.Is(syncErrors.NotFound, err) {
			return syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err)
		}

		unlock := p.locks.Lock(id)
		defer unlock()
		if err := p.cache.DeletePost(context.WithoutCancel(ctx), id); err != nil {
			return syncErrors.E(syncErrors.Op(op), syncErrors.Component("repository"), err)
		}
		return nil
	})
}

// StreamGroupPosts returns a lazy cache-only sequence over a group's cached
// posts, newest first, re-queried on each iteration.
func (p *PostRepository) StreamGroupPosts(ctx context.Context, groupID string, limit int) iter.Seq2[incident.Post, error] {
	return func(yield func(incident.Post, error) bool) {
		posts, err := p.cache.PostsByGroup(ctx, groupID, limit)
		if err != nil {
			yield(incident.Post{}, err)
			return
		}
		for _, post := range posts {
			if !yield(post, nil) {
				return
			}
		}
	}
}

func (p *PostRepository) writeThroughPosts(ctx context.Context, op string, posts []incident.Post) {
	if len(posts) == 0 {
		return
	}
	ids := make([]string, len(posts))
	for i, post := range posts {
		ids[i] = post.ID
	}
	unlock := p.locks.LockAll(ids)
	defer unlock()

	if err := p.cache.UpsertPosts(context.WithoutCancel(ctx), posts); err != nil {
		p.logger.Error("Write-through failed",
			slog.String("operation", op),
			slog.Int("count", len(posts)),
			slog.String("error", err.Error()))
	}
}
