// Package cache persists the last reconciled state of every message,
// one sqlite store per account. It is the merge base of the sync
// engine: what both sides looked like at the end of the last
// successful run.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Cache wraps the per-account sqlite store. Concurrent readers are
// fine (WAL mode); writers touching distinct rows may interleave.
type Cache struct {
	db  *sqlx.DB
	log *logrus.Entry
}

// LocalKey derives the cache account key for the local side. Remote
// rows are keyed by the plain account name.
func LocalKey(account string) string {
	return account + ":cache"
}

// Open opens (or creates) the store at dbPath and applies pending
// schema migrations.
func Open(dbPath string, logger *logrus.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", dbPath, err)
	}

	// WAL keeps readers unblocked while a sync writes rows.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	c := &Cache{
		db:  db,
		log: logger.WithField("cache", dbPath),
	}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	c.log.Debug("cache opened")
	return c, nil
}

func (c *Cache) migrate() error {
	current := 0

	var tables int
	err := c.db.Get(&tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := c.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := c.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if _, err := c.db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
