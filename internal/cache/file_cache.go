// Package cache implements the content-addressed file and chunk
// caches that let a repeat sync skip re-reading and re-embedding
// content that hasn't changed since the last run.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ferg-cod3s/conexus/internal/repo"
)

// FileEntry is one file's cached state: the content hash it had last
// time it was indexed, and which branches currently reference it.
// Fresh is set on the in-memory snapshot while a sync walks the repo
// and is never itself persisted — it exists only to tell Persist
// which rows to keep.
type FileEntry struct {
	Path        string
	ContentHash string
	Branches    []string
	Fresh       bool
}

// RepoCacheSnapshot is the full set of FileEntry rows for one repo,
// loaded once at the start of a sync and mutated in place as the walk
// proceeds.
type RepoCacheSnapshot struct {
	Entries map[string]*FileEntry
}

func newSnapshot() *RepoCacheSnapshot {
	return &RepoCacheSnapshot{Entries: make(map[string]*FileEntry)}
}

// FileCache persists per-repo file content hashes so a sync can tell,
// without re-reading a blob, whether its content changed since the
// last indexed commit.
type FileCache struct {
	db *sql.DB
}

func NewFileCache(db *sql.DB) (*FileCache, error) {
	c := &FileCache{db: db}
	if err := c.initSchema(); err != nil {
		return nil, fmt.Errorf("init file cache schema: %w", err)
	}
	return c, nil
}

func (c *FileCache) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS file_cache (
		repo_ref     TEXT NOT NULL,
		file_path    TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		branches     TEXT NOT NULL,
		PRIMARY KEY (repo_ref, file_path)
	);
	CREATE INDEX IF NOT EXISTS idx_file_cache_repo ON file_cache(repo_ref);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Snapshot loads the current cached state for ref into memory, with
// every entry marked stale (Fresh = false) until ContentSeen marks it
// fresh during the walk.
func (c *FileCache) Snapshot(ctx context.Context, ref repo.RepoRef) (*RepoCacheSnapshot, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT file_path, content_hash, branches FROM file_cache WHERE repo_ref = ?`,
		ref.String())
	if err != nil {
		return nil, fmt.Errorf("query file cache: %w", err)
	}
	defer rows.Close()

	snap := newSnapshot()
	for rows.Next() {
		var path, hash, branchesJSON string
		if err := rows.Scan(&path, &hash, &branchesJSON); err != nil {
			return nil, fmt.Errorf("scan file cache row: %w", err)
		}
		var branches []string
		if err := json.Unmarshal([]byte(branchesJSON), &branches); err != nil {
			return nil, fmt.Errorf("decode branches: %w", err)
		}
		snap.Entries[path] = &FileEntry{Path: path, ContentHash: hash, Branches: branches, Fresh: false}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

// ContentSeen records that path was observed on branch during the
// walk with the given content, marking it fresh and returning whether
// its hash changed since the last sync (the caller uses this to
// decide whether to re-chunk and re-embed the file).
func (snap *RepoCacheSnapshot) ContentSeen(path, branch string, content []byte) (changed bool) {
	hash := contentHash(content)
	entry, ok := snap.Entries[path]
	if !ok {
		snap.Entries[path] = &FileEntry{Path: path, ContentHash: hash, Branches: []string{branch}, Fresh: true}
		return true
	}
	changed = entry.ContentHash != hash
	entry.ContentHash = hash
	entry.Fresh = true
	if !containsString(entry.Branches, branch) {
		entry.Branches = append(entry.Branches, branch)
	}
	return changed
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// Persist replaces ref's entire cache row set with snap's fresh
// entries in a single transaction: stale (unseen) entries are dropped
// outright, matching the original's delete-all-then-reinsert pattern
// rather than a diffed update, since a sync always re-walks the full
// tree anyway.
func (c *FileCache) Persist(ctx context.Context, ref repo.RepoRef, snap *RepoCacheSnapshot) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_cache WHERE repo_ref = ?`, ref.String()); err != nil {
		return fmt.Errorf("clear file cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO file_cache (repo_ref, file_path, content_hash, branches) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range snap.Entries {
		if !entry.Fresh {
			continue
		}
		branchesJSON, err := json.Marshal(entry.Branches)
		if err != nil {
			return fmt.Errorf("encode branches: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, ref.String(), entry.Path, entry.ContentHash, string(branchesJSON)); err != nil {
			return fmt.Errorf("insert file cache row: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteForRepo removes every cached entry for ref, used when a repo
// is removed outright.
func (c *FileCache) DeleteForRepo(ctx context.Context, ref repo.RepoRef) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM file_cache WHERE repo_ref = ?`, ref.String())
	if err != nil {
		return fmt.Errorf("delete file cache for repo: %w", err)
	}
	return nil
}
