// Package storage provides the node's local content cache. Payloads the
// node has stored or successfully retrieved are kept here so reads can be
// served without touching the network.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// Cache is a SQLite-backed content cache keyed by content hash.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the cache database at path. Enables WAL mode and a
// busy timeout so the periodic loops never stall on a locked database.
func Open(path string) (*Cache, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}

	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `CREATE TABLE IF NOT EXISTS content (
		hash       TEXT PRIMARY KEY,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Put stores data under hash, overwriting any previous value.
func (c *Cache) Put(hash string, data []byte) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO content (hash, data, created_at) VALUES (?, ?, ?)`,
		hash, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Get returns the cached payload for hash. The second return value reports
// whether the hash was present.
func (c *Cache) Get(hash string) ([]byte, bool, error) {
	var data []byte
	err := c.db.QueryRow(`SELECT data FROM content WHERE hash = ?`, hash).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return data, true, nil
}

// Delete removes the payload stored under hash, if any.
func (c *Cache) Delete(hash string) error {
	if _, err := c.db.Exec(`DELETE FROM content WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Close shuts down the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
