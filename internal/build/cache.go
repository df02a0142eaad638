package build

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/conneroisu/kiln/internal/asset"
	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// cacheSchemaVersion is stored in PRAGMA user_version. Older databases are
// dropped and recreated.
const cacheSchemaVersion = 2

const cacheSchemaSQL = `
CREATE TABLE IF NOT EXISTS transforms (
	class      TEXT NOT NULL,
	mode       TEXT NOT NULL,
	source     TEXT NOT NULL,
	signature  TEXT NOT NULL,
	artifacts  BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (class, mode, source, signature)
);
`

// CacheKey identifies one stored transform. Artifact paths derive from the
// source path, so two sources with identical bytes never share an entry.
type CacheKey struct {
	Class     asset.Class
	Mode      asset.Mode
	Source    string
	Signature string
}

// TransformCache persists transform results across processes. Only the
// expensive transform is memoised; change detection stays in-process.
// Results that depend on other files are never stored, since the key
// covers the source bytes alone.
type TransformCache interface {
	Get(ctx context.Context, key CacheKey) (*CachedTransform, bool, error)
	Put(ctx context.Context, key CacheKey, entry *CachedTransform) error
}

// CachedTransform is the stored outcome of one transform.
type CachedTransform struct {
	Artifacts []asset.Asset `json:"artifacts"`
}

// SQLiteCache is the TransformCache backed by a SQLite database file.
type SQLiteCache struct {
	conn *sql.DB
}

// OpenCache opens (or creates) the cache database at path.
func OpenCache(path string) (*SQLiteCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, kerrors.NewIOError(kerrors.ErrCodeCacheFailed, "cannot create cache directory", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, kerrors.NewIOError(kerrors.ErrCodeCacheFailed, "open cache", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, kerrors.NewIOError(kerrors.ErrCodeCacheFailed, "ping cache", err)
	}
	if err := migrateCache(conn); err != nil {
		conn.Close()
		return nil, kerrors.NewIOError(kerrors.ErrCodeCacheFailed, "apply cache schema", err)
	}

	return &SQLiteCache{conn: conn}, nil
}

func migrateCache(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}
	if version < cacheSchemaVersion {
		if _, err := conn.Exec(`DROP TABLE IF EXISTS transforms`); err != nil {
			return err
		}
	}
	if _, err := conn.Exec(cacheSchemaSQL); err != nil {
		return err
	}
	_, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, cacheSchemaVersion))
	return err
}

// Get returns the stored transform for key.
func (c *SQLiteCache) Get(ctx context.Context, key CacheKey) (*CachedTransform, bool, error) {
	var artifacts []byte
	err := c.conn.QueryRowContext(ctx,
		`SELECT artifacts FROM transforms WHERE class = ? AND mode = ? AND source = ? AND signature = ?`,
		string(key.Class), string(key.Mode), key.Source, key.Signature,
	).Scan(&artifacts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}

	entry := &CachedTransform{}
	if err := json.Unmarshal(artifacts, &entry.Artifacts); err != nil {
		return nil, false, fmt.Errorf("cache: decode artifacts: %w", err)
	}
	return entry, true, nil
}

// Put stores entry under key, replacing an earlier one.
func (c *SQLiteCache) Put(ctx context.Context, key CacheKey, entry *CachedTransform) error {
	artifacts, err := json.Marshal(entry.Artifacts)
	if err != nil {
		return fmt.Errorf("cache: encode artifacts: %w", err)
	}

	_, err = c.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO transforms (class, mode, source, signature, artifacts) VALUES (?, ?, ?, ?, ?)`,
		string(key.Class), string(key.Mode), key.Source, key.Signature, artifacts,
	)
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// Clear deletes every entry and returns how many were removed.
func (c *SQLiteCache) Clear(ctx context.Context) (int64, error) {
	res, err := c.conn.ExecContext(ctx, `DELETE FROM transforms`)
	if err != nil {
		return 0, fmt.Errorf("cache: clear: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored entries.
func (c *SQLiteCache) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM transforms`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.conn.Close()
}
