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
	opUpsertGroups  = "sqlite.UpsertGroups"
	opGroupByID     = "sqlite.GroupByID"
	opAllGroups     = "sqlite.AllGroups"
	opSetMembership = "sqlite.SetGroupMembership"
)

// UpsertGroups writes the batch through the cache in a single transaction,
// stamping last_synced_at on every row.
func (s *Store) UpsertGroups(ctx context.Context, groups []incident.Group) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(groups) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertGroups), syncErrors.Component("storage/sqlite"), err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO groups (id, name, description, member_count, is_member, last_synced_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name           = excluded.name,
            description    = excluded.description,
            member_count   = excluded.member_count,
            is_member      = excluded.is_member,
            last_synced_at = excluded.last_synced_at`)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertGroups), syncErrors.Component("storage/sqlite"), err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, g := range groups {
		if _, err = stmt.ExecContext(ctx, g.ID, g.Name, g.Description,
			g.MemberCount, g.IsMember, now); err != nil {
			return syncErrors.E(syncErrors.Op(opUpsertGroups), syncErrors.Component("storage/sqlite"), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertGroups), syncErrors.Component("storage/sqlite"), err)
	}
	return nil
}

// GroupByID returns the cached group or ErrNotFound.
func (s *Store) GroupByID(ctx context.Context, id string) (*incident.Group, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
        SELECT id, name, description, member_count, is_member, last_synced_at
        FROM groups WHERE id = ?`, id)

	var g incident.Group
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.MemberCount, &g.IsMember, &g.LastSyncedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, syncErrors.E(syncErrors.Op(opGroupByID), syncErrors.Component("storage/sqlite"), err)
	}
	return &g, nil
}

// AllGroups returns every cached group ordered by name.
func (s *Store) AllGroups(ctx context.Context) ([]incident.Group, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, name, description, member_count, is_member, last_synced_at
        FROM groups ORDER BY name ASC`)
	if err != nil {
		return nil, syncErrors.E(syncErrors.Op(opAllGroups), syncErrors.Component("storage/sqlite"), err)
	}
	defer rows.Close()

	var groups []incident.Group
	for rows.Next() {
		var g incident.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.MemberCount, &g.IsMember, &g.LastSyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return groups, nil
}

// SetGroupMembership updates only the membership flag and member count,
// leaving last_synced_at untouched. Used by the optimistic join/leave path.
func (s *Store) SetGroupMembership(ctx context.Context, id string, isMember bool, memberCount int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
        UPDATE groups SET is_member = ?, member_count = ? WHERE id = ?`,
		isMember, memberCount, id)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opSetMembership), syncErrors.Component("storage/sqlite"), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return syncErrors.E(syncErrors.Op(opSetMembership), syncErrors.Component("storage/sqlite"), err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
