// Package remote defines the boundary to the authoritative incident REST API
// and its HTTP implementation. The rest of the core consumes the Client
// interface only; failures carry exactly one errors.Kind so the repositories
// can decide between cache fallback and hard failure.
package remote

import (
	"context"

	"github.com/c0deZ3R0/incident-sync/incident"
)

// PostDraft is the payload for creating a post. ID is client-generated so a
// retried create stays idempotent on the server.
type PostDraft struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id,omitempty"`
	Content string `json:"content"`
	// MediaURL references already-uploaded media; upload itself is out of scope.
	MediaURL string `json:"media_url,omitempty"`
}

// Client is the authoritative remote API boundary.
type Client interface {
	// FetchNearbyReports returns reports around a center point. The server
	// may return a superset of the radius; callers re-filter locally.
	FetchNearbyReports(ctx context.Context, lat, lon, radiusKm float64) ([]incident.Report, error)

	// FetchReport returns a single report by id.
	FetchReport(ctx context.Context, id string) (*incident.Report, error)

	// SubmitReportFeedback records this user's current feedback for a report.
	// FeedbackNone clears a previous vote.
	SubmitReportFeedback(ctx context.Context, reportID string, feedback incident.Feedback) error

	// FetchPost returns a single post by id.
	FetchPost(ctx context.Context, id string) (*incident.Post, error)

	// FetchGroupPosts returns one page of a group's posts.
	FetchGroupPosts(ctx context.Context, groupID string, page, limit int) ([]incident.Post, error)

	// FetchUserFeed returns one page of the user's aggregated feed.
	FetchUserFeed(ctx context.Context, page, limit int) ([]incident.Post, error)

	// CreatePost publishes a draft and returns the server's view of the post.
	CreatePost(ctx context.Context, draft PostDraft) (*incident.Post, error)

	// DeletePost deletes a post owned by this user.
	DeletePost(ctx context.Context, id string) error

	// LikePost and DislikePost toggle this user's reaction server-side. The
	// server applies the same toggle semantics as the local state machine.
	LikePost(ctx context.Context, id string) error
	DislikePost(ctx context.Context, id string) error

	// FetchGroup returns a single group by id.
	FetchGroup(ctx context.Context, id string) (*incident.Group, error)

	// JoinGroup and LeaveGroup change this user's membership.
	JoinGroup(ctx context.Context, id string) error
	LeaveGroup(ctx context.Context, id string) error

	// Close releases any resources held by the client.
	Close() error
}
