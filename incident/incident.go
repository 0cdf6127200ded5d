// Package incident defines the domain model shared by the sync core: the
// entities cached locally and the enums governing report taxonomy and user
// reactions.
package incident

import (
	"fmt"
	"time"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
)

// AnonymousAuthor is the sentinel display name for reports filed anonymously.
const AnonymousAuthor = "anonymous"

// ReportType is the fixed taxonomy of incident reports.
type ReportType string

const (
	ReportTheft      ReportType = "theft"
	ReportRobbery    ReportType = "robbery"
	ReportVandalism  ReportType = "vandalism"
	ReportAssault    ReportType = "assault"
	ReportSuspicious ReportType = "suspicious_activity"
	ReportHazard     ReportType = "hazard"
	ReportOther      ReportType = "other"
)

// Valid reports whether t belongs to the taxonomy.
func (t ReportType) Valid() bool {
	switch t {
	case ReportTheft, ReportRobbery, ReportVandalism, ReportAssault,
		ReportSuspicious, ReportHazard, ReportOther:
		return true
	}
	return false
}

// Feedback is a user's vote on a report. At most one of the paired counters
// reflects this user's current vote.
type Feedback string

const (
	FeedbackNone      Feedback = ""
	FeedbackUseful    Feedback = "useful"
	FeedbackNotUseful Feedback = "not_useful"
)

// Report is a crowdsourced incident report. DistanceMeters and DistanceLabel
// are display annotations computed per query and never persisted.
type Report struct {
	ID             string     `json:"id"`
	Type           ReportType `json:"type"`
	Description    string     `json:"description"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	CreatedAt      time.Time  `json:"created_at"`
	AuthorName     string     `json:"author_name,omitempty"`
	UsefulCount    int        `json:"useful_count"`
	NotUsefulCount int        `json:"not_useful_count"`
	UserFeedback   Feedback   `json:"user_feedback,omitempty"`

	// LastSyncedAt is local-only: the time of the last cache write-through.
	LastSyncedAt time.Time `json:"-"`

	DistanceMeters float64 `json:"-"`
	DistanceLabel  string  `json:"-"`
}

// Post is a community post, optionally scoped to a group.
type Post struct {
	ID           string    `json:"id"`
	GroupID      string    `json:"group_id,omitempty"`
	AuthorID     string    `json:"author_id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	LikeCount    int       `json:"like_count"`
	DislikeCount int       `json:"dislike_count"`
	IsLiked      bool      `json:"is_liked"`
	IsDisliked   bool      `json:"is_disliked"`
	CommentCount int       `json:"comment_count"`
	IsImportant  bool      `json:"is_important"`
	MediaURL     string    `json:"media_url,omitempty"`

	LastSyncedAt time.Time `json:"-"`
}

// Group is a community group with a local membership flag.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberCount int    `json:"member_count"`
	IsMember    bool   `json:"is_member"`

	LastSyncedAt time.Time `json:"-"`
}

// User is cached minimally for author display and ownership checks.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`

	LastSyncedAt time.Time `json:"-"`
}

// ValidateCoordinates checks a latitude/longitude pair against standard
// geographic ranges. Failure classifies as Invalid.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return syncErrors.E(
			syncErrors.Op("incident.ValidateCoordinates"),
			syncErrors.Invalid,
			fmt.Errorf("latitude %v out of range [-90, 90]", lat),
		)
	}
	if lon < -180 || lon > 180 {
		return syncErrors.E(
			syncErrors.Op("incident.ValidateCoordinates"),
			syncErrors.Invalid,
			fmt.Errorf("longitude %v out of range [-180, 180]", lon),
		)
	}
	return nil
}
