package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/incident"
)

func TestFetchNearbyReports(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}
		json.NewEncoder(w).Encode([]incident.Report{
			{ID: "r-1", Type: incident.ReportTheft, Latitude: -23.55, Longitude: -46.63,
				CreatedAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC), UsefulCount: 3},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token-123")
	reports, err := client.FetchNearbyReports(context.Background(), -23.55, -46.63, 5)
	if err != nil {
		t.Fatalf("FetchNearbyReports: %v", err)
	}
	if len(reports) != 1 || reports[0].ID != "r-1" {
		t.Errorf("unexpected reports: %+v", reports)
	}
	if gotPath != "/reports/nearby" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotAuth != "Bearer token-123" {
		t.Errorf("unexpected auth header: %s", gotAuth)
	}
}

func TestFetchedReportsAreNormalized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]incident.Report{
			{ID: "r-1", Type: incident.ReportType("drone_sighting")},
			{ID: "r-2", Type: incident.ReportHazard, AuthorName: "maria"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "t")
	reports, err := client.FetchNearbyReports(context.Background(), -23.55, -46.63, 5)
	if err != nil {
		t.Fatalf("FetchNearbyReports: %v", err)
	}

	if reports[0].Type != incident.ReportOther {
		t.Errorf("unknown type = %q, want coerced to %q", reports[0].Type, incident.ReportOther)
	}
	if reports[0].AuthorName != incident.AnonymousAuthor {
		t.Errorf("empty author = %q, want %q", reports[0].AuthorName, incident.AnonymousAuthor)
	}
	if reports[1].Type != incident.ReportHazard || reports[1].AuthorName != "maria" {
		t.Errorf("valid report was altered: %+v", reports[1])
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   syncErrors.Kind
	}{
		{http.StatusUnauthorized, syncErrors.Unauthenticated},
		{http.StatusForbidden, syncErrors.Forbidden},
		{http.StatusNotFound, syncErrors.NotFound},
		{http.StatusConflict, syncErrors.Conflict},
		{http.StatusBadRequest, syncErrors.Invalid},
		{http.StatusInternalServerError, syncErrors.Unknown},
	}
	for _, c := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", c.status)
		}))

		client := NewHTTPClient(server.URL, "t")
		_, err := client.FetchReport(context.Background(), "r-1")
		if err == nil {
			t.Fatalf("status %d: expected error", c.status)
		}
		if got := syncErrors.KindOf(err); got != c.want {
			t.Errorf("status %d: kind = %v, want %v", c.status, got, c.want)
		}
		server.Close()
	}
}

func TestTransportFailureIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := NewHTTPClient(server.URL, "t")
	_, err := client.FetchUserFeed(context.Background(), 1, 20)
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	if syncErrors.KindOf(err) != syncErrors.Unreachable {
		t.Errorf("expected Unreachable, got %v", syncErrors.KindOf(err))
	}
	if !syncErrors.IsRetryable(err) {
		t.Error("transport failure should be retryable")
	}
}

func TestSubmitReportFeedbackBody(t *testing.T) {
	var got struct {
		Feedback string `json:"feedback"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/reports/r-1/feedback" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "t")
	if err := client.SubmitReportFeedback(context.Background(), "r-1", incident.FeedbackUseful); err != nil {
		t.Fatalf("SubmitReportFeedback: %v", err)
	}
	if got.Feedback != "useful" {
		t.Errorf("feedback body = %q, want useful", got.Feedback)
	}
}

func TestCreatePostAssignsDraftID(t *testing.T) {
	var draft PostDraft
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&draft)
		json.NewEncoder(w).Encode(incident.Post{ID: draft.ID, Content: draft.Content})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "t")
	post, err := client.CreatePost(context.Background(), PostDraft{Content: "stay safe out there"})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if draft.ID == "" {
		t.Error("client must assign a draft id when none is provided")
	}
	if post.ID != draft.ID {
		t.Errorf("post id %q does not echo draft id %q", post.ID, draft.ID)
	}
}

func TestResponseSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "t", WithLimits(Limits{MaxBodyBytes: 128}))
	_, err := client.FetchUserFeed(context.Background(), 1, 20)
	if err == nil {
		t.Fatal("expected decode failure on truncated oversized response")
	}
}
