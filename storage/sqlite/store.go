// Package sqlite provides the SQLite-backed local cache for the sync core.
// One table per entity family, primary key = entity id. The last_synced_at
// column is written only by repository write-throughs and consumed only by
// the cache reconciler; reaction updates never touch it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdSync "sync"
	"time"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/logging"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for better error handling
var (
	ErrNotFound    = errors.New("row not found")
	ErrStoreClosed = errors.New("store is closed")
)

// Family identifies one cached entity family and its backing table.
type Family string

const (
	FamilyReports Family = "reports"
	FamilyPosts   Family = "posts"
	FamilyGroups  Family = "groups"
	FamilyUsers   Family = "users"
)

// Valid reports whether f names a known table.
func (f Family) Valid() bool {
	switch f {
	case FamilyReports, FamilyPosts, FamilyGroups, FamilyUsers:
		return true
	}
	return false
}

// Families lists every cached entity family.
func Families() []Family {
	return []Family{FamilyReports, FamilyPosts, FamilyGroups, FamilyUsers}
}

// Config holds configuration options for the Store.
//
// Production-ready defaults are applied by DefaultConfig() including WAL mode
// and a connection pool sized for a single-process client.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to DataSourceName.
	EnableWAL bool

	// Connection pool settings.
	MaxOpenConns    int           // Default: 10
	MaxIdleConns    int           // Default: 5
	ConnMaxLifetime time.Duration // Default: 1h
	ConnMaxIdleTime time.Duration // Default: 5m
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "?_journal_mode=") {
			c.DataSourceName += "?_journal_mode=WAL"
		}
	}
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// Store implements the local cache over SQLite.
type Store struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
	logger *logging.Logger

	// now is the clock used for last_synced_at stamps; replaced in tests.
	now func() time.Time
}

// NewWithDataSource is a convenience constructor
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

// New creates a new Store from a Config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()

	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.WithComponent(logging.Component("storage/sqlite"))
	logger.Debug("Opening SQLite database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	logger.Debug("Local cache initialized")
	return store, nil
}

// setupSchema creates the per-family tables if they don't exist.
func (s *Store) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS reports (
        id               TEXT PRIMARY KEY,
        type             TEXT NOT NULL,
        description      TEXT NOT NULL,
        latitude         REAL NOT NULL,
        longitude        REAL NOT NULL,
        created_at       TIMESTAMP NOT NULL,
        author_name      TEXT,
        useful_count     INTEGER NOT NULL DEFAULT 0,
        not_useful_count INTEGER NOT NULL DEFAULT 0,
        user_feedback    TEXT NOT NULL DEFAULT '',
        last_synced_at   TIMESTAMP NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_reports_last_synced ON reports (last_synced_at);

    CREATE TABLE IF NOT EXISTS posts (
        id             TEXT PRIMARY KEY,
        group_id       TEXT,
        author_id      TEXT NOT NULL,
        content        TEXT NOT NULL,
        created_at     TIMESTAMP NOT NULL,
        like_count     INTEGER NOT NULL DEFAULT 0,
        dislike_count  INTEGER NOT NULL DEFAULT 0,
        is_liked       INTEGER NOT NULL DEFAULT 0,
        is_disliked    INTEGER NOT NULL DEFAULT 0,
        comment_count  INTEGER NOT NULL DEFAULT 0,
        is_important   INTEGER NOT NULL DEFAULT 0,
        media_url      TEXT,
        last_synced_at TIMESTAMP NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_posts_group ON posts (group_id);
    CREATE INDEX IF NOT EXISTS idx_posts_last_synced ON posts (last_synced_at);

    CREATE TABLE IF NOT EXISTS groups (
        id             TEXT PRIMARY KEY,
        name           TEXT NOT NULL,
        description    TEXT NOT NULL,
        member_count   INTEGER NOT NULL DEFAULT 0,
        is_member      INTEGER NOT NULL DEFAULT 0,
        last_synced_at TIMESTAMP NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_groups_last_synced ON groups (last_synced_at);

    CREATE TABLE IF NOT EXISTS users (
        id             TEXT PRIMARY KEY,
        username       TEXT NOT NULL,
        email          TEXT NOT NULL,
        last_synced_at TIMESTAMP NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_users_last_synced ON users (last_synced_at);
    `
	_, err := s.db.Exec(query)
	return err
}

// checkOpen returns ErrStoreClosed once Close has been called.
func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// DeleteOlderThan deletes every row of the family whose last_synced_at is
// strictly older than cutoff and returns the number of rows removed.
func (s *Store) DeleteOlderThan(ctx context.Context, family Family, cutoff time.Time) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if !family.Valid() {
		return 0, fmt.Errorf("unknown entity family %q", family)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE last_synced_at < ?`, family)
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, syncErrors.E(syncErrors.Op("sqlite.DeleteOlderThan"), syncErrors.Component("storage/sqlite"), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, syncErrors.E(syncErrors.Op("sqlite.DeleteOlderThan"), syncErrors.Component("storage/sqlite"), err)
	}

	s.logger.Debug("Evicted stale rows",
		slog.String("family", string(family)),
		slog.Int64("rows", n),
		slog.Time("cutoff", cutoff),
	)
	return n, nil
}

// DeleteAll removes every row of the family.
func (s *Store) DeleteAll(ctx context.Context, family Family) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !family.Valid() {
		return fmt.Errorf("unknown entity family %q", family)
	}

	query := fmt.Sprintf(`DELETE FROM %s`, family)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return syncErrors.E(syncErrors.Op("sqlite.DeleteAll"), syncErrors.Component("storage/sqlite"), err)
	}
	return nil
}

// Stats returns database statistics for monitoring
func (s *Store) Stats() sql.DBStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return sql.DBStats{}
	}
	return s.db.Stats()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// deleteByID removes one row by primary key. Missing rows are not an error:
// delete-by-id confirms a server-side deletion and the row may never have
// been cached.
func (s *Store) deleteByID(ctx context.Context, op string, family Family, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, family)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return syncErrors.E(syncErrors.Op(op), syncErrors.Component("storage/sqlite"), err)
	}
	return nil
}
