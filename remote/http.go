package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/incident"
	"github.com/c0deZ3R0/incident-sync/logging"
)

// Limits defines response size limits for the HTTP client.
type Limits struct {
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
}

// HTTPClient implements Client against the incident REST API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	limits  Limits
	logger  *logging.Logger
}

// Compile-time check that HTTPClient satisfies the Client interface.
var _ Client = (*HTTPClient)(nil)

// Option configures an HTTPClient using the functional options pattern.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(cl *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = cl
	}
}

// WithLimits sets the response size limits.
func WithLimits(l Limits) Option {
	return func(c *HTTPClient) {
		c.limits = l
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// NewHTTPClient creates a client for the API at baseURL. The bearer token is
// assumed valid; token issuance and refresh happen outside this core.
func NewHTTPClient(baseURL, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limits: Limits{
			MaxBodyBytes: 8 << 20, // 8MB
		},
		logger: logging.WithComponent(logging.Component("remote")),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL for the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Close does nothing; the underlying http.Client needs no teardown.
func (c *HTTPClient) Close() error {
	return nil
}

func (c *HTTPClient) FetchNearbyReports(ctx context.Context, lat, lon, radiusKm float64) ([]incident.Report, error) {
	const op = "remote.FetchNearbyReports"

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("radius_km", strconv.FormatFloat(radiusKm, 'f', -1, 64))

	var reports []incident.Report
	if err := c.get(ctx, op, "/reports/nearby?"+q.Encode(), &reports); err != nil {
		return nil, err
	}
	for i := range reports {
		normalizeReport(&reports[i])
	}
	return reports, nil
}

func (c *HTTPClient) FetchReport(ctx context.Context, id string) (*incident.Report, error) {
	const op = "remote.FetchReport"

	var report incident.Report
	if err := c.get(ctx, op, "/reports/"+url.PathEscape(id), &report); err != nil {
		return nil, err
	}
	normalizeReport(&report)
	return &report, nil
}

func (c *HTTPClient) SubmitReportFeedback(ctx context.Context, reportID string, feedback incident.Feedback) error {
	const op = "remote.SubmitReportFeedback"

	body := struct {
		Feedback string `json:"feedback"`
	}{Feedback: string(feedback)}

	return c.send(ctx, op, http.MethodPost, "/reports/"+url.PathEscape(reportID)+"/feedback", body, nil)
}

func (c *HTTPClient) FetchPost(ctx context.Context, id string) (*incident.Post, error) {
	const op = "remote.FetchPost"

	var post incident.Post
	if err := c.get(ctx, op, "/posts/"+url.PathEscape(id), &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *HTTPClient) FetchGroupPosts(ctx context.Context, groupID string, page, limit int) ([]incident.Post, error) {
	const op = "remote.FetchGroupPosts"

	var posts []incident.Post
	path := fmt.Sprintf("/groups/%s/posts?page=%d&limit=%d", url.PathEscape(groupID), page, limit)
	if err := c.get(ctx, op, path, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *HTTPClient) FetchUserFeed(ctx context.Context, page, limit int) ([]incident.Post, error) {
	const op = "remote.FetchUserFeed"

	var posts []incident.Post
	if err := c.get(ctx, op, fmt.Sprintf("/feed?page=%d&limit=%d", page, limit), &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *HTTPClient) CreatePost(ctx context.Context, draft PostDraft) (*incident.Post, error) {
	const op = "remote.CreatePost"

	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}

	var post incident.Post
	if err := c.send(ctx, op, http.MethodPost, "/posts", draft, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *HTTPClient) DeletePost(ctx context.Context, id string) error {
	const op = "remote.DeletePost"
	return c.send(ctx, op, http.MethodDelete, "/posts/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) LikePost(ctx context.Context, id string) error {
	const op = "remote.LikePost"
	return c.send(ctx, op, http.MethodPost, "/posts/"+url.PathEscape(id)+"/like", nil, nil)
}

func (c *HTTPClient) DislikePost(ctx context.Context, id string) error {
	const op = "remote.DislikePost"
	return c.send(ctx, op, http.MethodPost, "/posts/"+url.PathEscape(id)+"/dislike", nil, nil)
}

func (c *HTTPClient) FetchGroup(ctx context.Context, id string) (*incident.Group, error) {
	const op = "remote.FetchGroup"

	var group incident.Group
	if err := c.get(ctx, op, "/groups/"+url.PathEscape(id), &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *HTTPClient) JoinGroup(ctx context.Context, id string) error {
	const op = "remote.JoinGroup"
	return c.send(ctx, op, http.MethodPost, "/groups/"+url.PathEscape(id)+"/join", nil, nil)
}

func (c *HTTPClient) LeaveGroup(ctx context.Context, id string) error {
	const op = "remote.LeaveGroup"
	return c.send(ctx, op, http.MethodPost, "/groups/"+url.PathEscape(id)+"/leave", nil, nil)
}

// normalizeReport coerces server payloads into the local taxonomy: a type
// outside the known set becomes ReportOther (the API may grow categories
// ahead of this client) and a missing author name gets the anonymous display
// sentinel.
func normalizeReport(r *incident.Report) {
	if !r.Type.Valid() {
		r.Type = incident.ReportOther
	}
	if r.AuthorName == "" {
		r.AuthorName = incident.AnonymousAuthor
	}
}

// get issues a GET request and decodes the JSON response into out.
func (c *HTTPClient) get(ctx context.Context, op, path string, out any) error {
	return c.send(ctx, op, http.MethodGet, path, nil, out)
}

// send issues one request. A transport-level failure maps to Unreachable, a
// non-2xx status maps through errors.KindFromStatus; out may be nil for
// ack-only endpoints.
func (c *HTTPClient) send(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return syncErrors.E(syncErrors.Op(op), syncErrors.Component("remote"), syncErrors.Invalid,
				fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return syncErrors.E(syncErrors.Op(op), syncErrors.Component("remote"), syncErrors.Invalid,
			fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("Request failed at transport level",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return syncErrors.E(syncErrors.Op(op), syncErrors.Component("remote"), syncErrors.Unreachable,
			fmt.Errorf("network error: %w", err))
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.limits.MaxBodyBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(limited)
		kind := syncErrors.KindFromStatus(resp.StatusCode)
		c.logger.Debug("Request returned error status",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status_code", resp.StatusCode),
			slog.String("kind", kind.String()))
		return syncErrors.E(syncErrors.Op(op), syncErrors.Component("remote"), kind,
			fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(msg)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		// Ack-only endpoint; drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, limited)
		return nil
	}

	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return syncErrors.E(syncErrors.Op(op), syncErrors.Component("remote"),
			fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
