package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/incident"
)

const (
	opUpsertPosts  = "sqlite.UpsertPosts"
	opPostByID     = "sqlite.PostByID"
	opPostsByGroup = "sqlite.PostsByGroup"
	opFeedPosts    = "sqlite.FeedPosts"
	opPostReaction = "sqlite.ApplyPostReaction"
	opDeletePost   = "sqlite.DeletePost"
)

const postColumns = `id, group_id, author_id, content, created_at, like_count,
        dislike_count, is_liked, is_disliked, comment_count, is_important, media_url, last_synced_at`

// UpsertPosts writes the batch through the cache in a single transaction,
// stamping last_synced_at on every row.
func (s *Store) UpsertPosts(ctx context.Context, posts []incident.Post) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertPosts), syncErrors.Component("storage/sqlite"), err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO posts (id, group_id, author_id, content, created_at, like_count,
                           dislike_count, is_liked, is_disliked, comment_count,
                           is_important, media_url, last_synced_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            group_id       = excluded.group_id,
            author_id      = excluded.author_id,
            content        = excluded.content,
            created_at     = excluded.created_at,
            like_count     = excluded.like_count,
            dislike_count  = excluded.dislike_count,
            is_liked       = excluded.is_liked,
            is_disliked    = excluded.is_disliked,
            comment_count  = excluded.comment_count,
            is_important   = excluded.is_important,
            media_url      = excluded.media_url,
            last_synced_at = excluded.last_synced_at`)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertPosts), syncErrors.Component("storage/sqlite"), err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, p := range posts {
		groupID := sql.NullString{String: p.GroupID, Valid: p.GroupID != ""}
		media := sql.NullString{String: p.MediaURL, Valid: p.MediaURL != ""}
		if _, err = stmt.ExecContext(ctx, p.ID, groupID, p.AuthorID, p.Content,
			p.CreatedAt.UTC(), p.LikeCount, p.DislikeCount, p.IsLiked, p.IsDisliked,
			p.CommentCount, p.IsImportant, media, now); err != nil {
			return syncErrors.E(syncErrors.Op(opUpsertPosts), syncErrors.Component("storage/sqlite"), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertPosts), syncErrors.Component("storage/sqlite"), err)
	}
	return nil
}

// PostByID returns the cached post or ErrNotFound.
func (s *Store) PostByID(ctx context.Context, id string) (*incident.Post, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)

	p, err := scanPost(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, syncErrors.E(syncErrors.Op(opPostByID), syncErrors.Component("storage/sqlite"), err)
	}
	return p, nil
}

// PostsByGroup returns cached posts for a group, newest first, capped at
// limit when limit is positive.
func (s *Store) PostsByGroup(ctx context.Context, groupID string, limit int) ([]incident.Post, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `SELECT ` + postColumns + ` FROM posts WHERE group_id = ? ORDER BY created_at DESC`
	args := []any{groupID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, syncErrors.E(syncErrors.Op(opPostsByGroup), syncErrors.Component("storage/sqlite"), err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// FeedPosts returns cached feed posts (all groups and ungrouped), newest
// first, capped at limit when limit is positive.
func (s *Store) FeedPosts(ctx context.Context, limit int) ([]incident.Post, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `SELECT ` + postColumns + ` FROM posts ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, syncErrors.E(syncErrors.Op(opFeedPosts), syncErrors.Component("storage/sqlite"), err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// ApplyPostReaction updates only the reaction-owned columns of one post,
// leaving last_synced_at untouched.
func (s *Store) ApplyPostReaction(ctx context.Context, p *incident.Post) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
        UPDATE posts SET like_count = ?, dislike_count = ?, is_liked = ?, is_disliked = ?
        WHERE id = ?`, p.LikeCount, p.DislikeCount, p.IsLiked, p.IsDisliked, p.ID)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opPostReaction), syncErrors.Component("storage/sqlite"), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return syncErrors.E(syncErrors.Op(opPostReaction), syncErrors.Component("storage/sqlite"), err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePost removes one post row after a server-confirmed deletion.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	return s.deleteByID(ctx, opDeletePost, FamilyPosts, id)
}

func collectPosts(rows *sql.Rows) ([]incident.Post, error) {
	var posts []incident.Post
	for rows.Next() {
		p, err := scanPost(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return posts, nil
}

func scanPost(scan func(dest ...any) error) (*incident.Post, error) {
	var (
		p       incident.Post
		groupID sql.NullString
		media   sql.NullString
	)
	if err := scan(&p.ID, &groupID, &p.AuthorID, &p.Content, &p.CreatedAt,
		&p.LikeCount, &p.DislikeCount, &p.IsLiked, &p.IsDisliked,
		&p.CommentCount, &p.IsImportant, &media, &p.LastSyncedAt); err != nil {
		return nil, err
	}
	p.GroupID = groupID.String
	p.MediaURL = media.String
	return &p, nil
}
