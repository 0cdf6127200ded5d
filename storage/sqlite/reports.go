package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/incident"
)

// Operation constants for consistent error reporting
const (
	opUpsertReports  = "sqlite.UpsertReports"
	opReportByID     = "sqlite.ReportByID"
	opAllReports     = "sqlite.AllReports"
	opReportReaction = "sqlite.ApplyReportReaction"
	opDeleteReport   = "sqlite.DeleteReport"
)

// UpsertReports writes the batch through the cache in a single transaction.
// Mutable fields are fully overwritten (last writer wins) and last_synced_at
// is stamped with the current time on every row.
func (s *Store) UpsertReports(ctx context.Context, reports []incident.Report) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(reports) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertReports), syncErrors.Component("storage/sqlite"), err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO reports (id, type, description, latitude, longitude, created_at,
                             author_name, useful_count, not_useful_count, user_feedback, last_synced_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            type             = excluded.type,
            description      = excluded.description,
            latitude         = excluded.latitude,
            longitude        = excluded.longitude,
            created_at       = excluded.created_at,
            author_name      = excluded.author_name,
            useful_count     = excluded.useful_count,
            not_useful_count = excluded.not_useful_count,
            user_feedback    = excluded.user_feedback,
            last_synced_at   = excluded.last_synced_at`)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertReports), syncErrors.Component("storage/sqlite"), err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, r := range reports {
		author := sql.NullString{String: r.AuthorName, Valid: r.AuthorName != ""}
		if _, err = stmt.ExecContext(ctx, r.ID, string(r.Type), r.Description,
			r.Latitude, r.Longitude, r.CreatedAt.UTC(), author,
			r.UsefulCount, r.NotUsefulCount, string(r.UserFeedback), now); err != nil {
			return syncErrors.E(syncErrors.Op(opUpsertReports), syncErrors.Component("storage/sqlite"), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertReports), syncErrors.Component("storage/sqlite"), err)
	}
	return nil
}

// ReportByID returns the cached report or ErrNotFound.
func (s *Store) ReportByID(ctx context.Context, id string) (*incident.Report, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
        SELECT id, type, description, latitude, longitude, created_at,
               author_name, useful_count, not_useful_count, user_feedback, last_synced_at
        FROM reports WHERE id = ?`, id)

	r, err := scanReport(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, syncErrors.E(syncErrors.Op(opReportByID), syncErrors.Component("storage/sqlite"), err)
	}
	return r, nil
}

// AllReports returns every cached report ordered by creation time, newest
// first.
func (s *Store) AllReports(ctx context.Context) ([]incident.Report, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, type, description, latitude, longitude, created_at,
               author_name, useful_count, not_useful_count, user_feedback, last_synced_at
        FROM reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, syncErrors.E(syncErrors.Op(opAllReports), syncErrors.Component("storage/sqlite"), err)
	}
	defer rows.Close()

	var reports []incident.Report
	for rows.Next() {
		r, err := scanReport(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return reports, nil
}

// ApplyReportReaction updates only the reaction-owned columns of one report.
// last_synced_at is deliberately untouched so eviction cannot outlive an
// unconfirmed optimistic write ahead of its reconciling fetch.
func (s *Store) ApplyReportReaction(ctx context.Context, r *incident.Report) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
        UPDATE reports SET useful_count = ?, not_useful_count = ?, user_feedback = ?
        WHERE id = ?`, r.UsefulCount, r.NotUsefulCount, string(r.UserFeedback), r.ID)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opReportReaction), syncErrors.Component("storage/sqlite"), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return syncErrors.E(syncErrors.Op(opReportReaction), syncErrors.Component("storage/sqlite"), err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReport removes one report row, typically after a server-confirmed
// deletion.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	return s.deleteByID(ctx, opDeleteReport, FamilyReports, id)
}

// scanReport scans one reports row via the given scan function.
func scanReport(scan func(dest ...any) error) (*incident.Report, error) {
	var (
		r        incident.Report
		typ      string
		author   sql.NullString
		feedback string
	)
	if err := scan(&r.ID, &typ, &r.Description, &r.Latitude, &r.Longitude, &r.CreatedAt,
		&author, &r.UsefulCount, &r.NotUsefulCount, &feedback, &r.LastSyncedAt); err != nil {
		return nil, err
	}
	r.Type = incident.ReportType(typ)
	r.AuthorName = author.String
	r.UserFeedback = incident.Feedback(feedback)
	return &r, nil
}
