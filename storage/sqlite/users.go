package sqlite

import (
	"context"
	"database/sql"
	"errors"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/incident"
)

const (
	opUpsertUsers = "sqlite.UpsertUsers"
	opUserByID    = "sqlite.UserByID"
)

// UpsertUsers writes the batch through the cache in a single transaction,
// stamping last_synced_at on every row.
func (s *Store) UpsertUsers(ctx context.Context, users []incident.User) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertUsers), syncErrors.Component("storage/sqlite"), err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO users (id, username, email, last_synced_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            username       = excluded.username,
            email          = excluded.email,
            last_synced_at = excluded.last_synced_at`)
	if err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertUsers), syncErrors.Component("storage/sqlite"), err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, u := range users {
		if _, err = stmt.ExecContext(ctx, u.ID, u.Username, u.Email, now); err != nil {
			return syncErrors.E(syncErrors.Op(opUpsertUsers), syncErrors.Component("storage/sqlite"), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return syncErrors.E(syncErrors.Op(opUpsertUsers), syncErrors.Component("storage/sqlite"), err)
	}
	return nil
}

// UserByID returns the cached user or ErrNotFound.
func (s *Store) UserByID(ctx context.Context, id string) (*incident.User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
        SELECT id, username, email, last_synced_at FROM users WHERE id = ?`, id)

	var u incident.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.LastSyncedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, syncErrors.E(syncErrors.Op(opUserByID), syncErrors.Component("storage/sqlite"), err)
	}
	return &u, nil
}
