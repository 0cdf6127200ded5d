package reaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/incident"
	"github.com/c0deZ3R0/incident-sync/keylock"
	"github.com/c0deZ3R0/incident-sync/logging"
	"github.com/c0deZ3R0/incident-sync/storage/sqlite"
	"github.com/c0deZ3R0/incident-sync/telemetry"
)

// ReportStore is the cache surface the coordinator needs for reports.
type ReportStore interface {
	ReportByID(ctx context.Context, id string) (*incident.Report, error)
	ApplyReportReaction(ctx context.Context, r *incident.Report) error
}

// PostStore is the cache surface the coordinator needs for posts.
type PostStore interface {
	PostByID(ctx context.Context, id string) (*incident.Post, error)
	ApplyPostReaction(ctx context.Context, p *incident.Post) error
}

// Remote is the subset of the API client the coordinator calls after an
// optimistic write.
type Remote interface {
	SubmitReportFeedback(ctx context.Context, reportID string, feedback incident.Feedback) error
	LikePost(ctx context.Context, id string) error
	DislikePost(ctx context.Context, id string) error
}

// Coordinator applies reaction toggles optimistically: the cache is updated
// first and the remote call runs afterwards, still under the per-entity lock.
// A failed remote call never reverts the cache; the divergence is resolved by
// the next write-through fetch of the entity.
type Coordinator struct {
	reports ReportStore
	posts   PostStore
	remote  Remote
	locks   *keylock.Map
	logger  *logging.Logger
	metrics telemetry.Collector
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets a custom logger.
func WithLogger(l *logging.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithCollector sets the metrics collector.
func WithCollector(m telemetry.Collector) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator creates a reaction coordinator. The keylock map should be
// shared with the repositories so reaction writes and write-through upserts
// on the same entity serialize.
func NewCoordinator(reports ReportStore, posts PostStore, remote Remote, locks *keylock.Map, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		reports: reports,
		posts:   posts,
		remote:  remote,
		locks:   locks,
		logger:  logging.WithComponent(logging.Component("reaction")),
		metrics: telemetry.NoopCollector{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToggleReportFeedback toggles the user's feedback on a report and returns
// the report as cached after the optimistic write. feedback selects the axis
// being toggled and must be useful or not_useful; the three-state transition
// (set, switch, clear) follows from the report's current state.
//
// The remote submission runs detached from ctx's cancellation: once the cache
// holds the optimistic state, the matching server call is always attempted.
func (c *Coordinator) ToggleReportFeedback(ctx context.Context, reportID string, feedback incident.Feedback) (*incident.Report, error) {
	const op = "reaction.ToggleReportFeedback"

	action := feedbackState(feedback)
	if action == None {
		return nil, syncErrors.E(syncErrors.Op(op), syncErrors.Component("reaction"), syncErrors.Invalid,
			fmt.Errorf("feedback %q is not a toggleable action", feedback))
	}

	unlock := c.locks.Lock(reportID)
	defer unlock()

	report, err := c.reports.ReportByID(ctx, reportID)
	if err != nil {
		return nil, cacheReadError(op, err)
	}

	next, dPos, dNeg := Toggle(feedbackState(report.UserFeedback), action)
	report.UserFeedback = stateFeedback(next)
	report.UsefulCount = floored(report.UsefulCount, dPos)
	report.NotUsefulCount = floored(report.NotUsefulCount, dNeg)

	if err := c.reports.ApplyReportReaction(ctx, report); err != nil {
		return nil, syncErrors.E(syncErrors.Op(op), syncErrors.Component("reaction"), err)
	}

	// The server receives the resulting state, not the action, so a
	// toggle-off submits FeedbackNone and the server mirrors the cache.
	resulting := report.UserFeedback
	if err := c.confirm(ctx, "report", reportID, func(ctx context.Context) error {
		return c.remote.SubmitReportFeedback(ctx, reportID, resulting)
	}); err != nil {
		return report, syncErrors.E(syncErrors.Op(op), syncErrors.Component("reaction"), err)
	}
	return report, nil
}

// ToggleLike toggles the user's like on a post.
func (c *Coordinator) ToggleLike(ctx context.Context, postID string) (*incident.Post, error) {
	return c.togglePost(ctx, "reaction.ToggleLike", postID, Positive, c.remote.LikePost)
}

// ToggleDislike toggles the user's dislike on a post.
func (c *Coordinator) ToggleDislike(ctx context.Context, postID string) (*incident.Post, error) {
	return c.togglePost(ctx, "reaction.ToggleDislike", postID, Negative, c.remote.DislikePost)
}

func (c *Coordinator) togglePost(ctx context.Context, op, postID string, action State, submit func(context.Context, string) error) (*incident.Post, error) {
	unlock := c.locks.Lock(postID)
	defer unlock()

	post, err := c.posts.PostByID(ctx, postID)
	if err != nil {
		return nil, cacheReadError(op, err)
	}

	next, dPos, dNeg := Toggle(postState(post), action)
	post.IsLiked = next == Positive
	post.IsDisliked = next == Negative
	post.LikeCount = floored(post.LikeCount, dPos)
	post.DislikeCount = floored(post.DislikeCount, dNeg)

	if err := c.posts.ApplyPostReaction(ctx, post); err != nil {
		return nil, syncErrors.E(syncErrors.Op(op), syncErrors.Component("reaction"), err)
	}

	if err := c.confirm(ctx, "post", postID, func(ctx context.Context) error {
		return submit(ctx, postID)
	}); err != nil {
		return post, syncErrors.E(syncErrors.Op(op), syncErrors.Component("reaction"), err)
	}
	return post, nil
}

// cacheReadError wraps a cache miss as NotFound; only cached entities can be
// reacted to, since the toggle needs the current counters as its baseline.
func cacheReadError(op string, err error) error {
	if errors.Is(err, sqlite.ErrNotFound) {
		return syncErrors.E(syncErrors.Op(op), syncErrors.Component("reaction"), syncErrors.NotFound, err)
	}
	return syncErrors.E(syncErrors.Op(op), syncErrors.Component("reaction"), err)
}

// confirm sends the server call matching an optimistic write that is already
// committed to the cache. The call inherits ctx's values but not its
// cancellation. A failure is returned so the caller can show it, but the
// cache keeps the optimistic state until the next fetch reconciles it.
func (c *Coordinator) confirm(ctx context.Context, target, id string, call func(context.Context) error) error {
	if err := call(context.WithoutCancel(ctx)); err != nil {
		c.metrics.RecordReaction(target, "unconfirmed")
		c.logger.Warn("Reaction not confirmed by server, keeping optimistic state",
			slog.String("target", target),
			slog.String("id", id),
			slog.String("kind", syncErrors.KindOf(err).String()),
			slog.String("error", err.Error()))
		return err
	}
	c.metrics.RecordReaction(target, "confirmed")
	return nil
}
