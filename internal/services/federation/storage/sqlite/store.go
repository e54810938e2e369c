// Package sqlite provides the SQLite-backed implementation of the federation
// storage contracts: the object repository, collection index, context cache,
// and delivery queue share one database file.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/neso/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/neso/internal/services/federation/storage"
	"github.com/louisbranch/neso/internal/services/federation/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed federation persistence.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a federation SQLite store at the provided path and applies
// migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, clock: time.Now}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed")
}

var _ storage.ObjectStore = (*Store)(nil)
var _ storage.CollectionStore = (*Store)(nil)
var _ storage.ContextStore = (*Store)(nil)
var _ storage.DeliveryStore = (*Store)(nil)
