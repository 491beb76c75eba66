package cache

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestChunkIDIsDeterministic(t *testing.T) {
	a := chunkID([]byte("package main\n\nfunc main() {}\n"))
	b := chunkID([]byte("package main\n\nfunc main() {}\n"))
	require.Equal(t, a, b)

	c := chunkID([]byte("package main\n\nfunc main() { println(1) }\n"))
	require.NotEqual(t, a, c)
}

func TestFileCacheSnapshotPersistRoundTrip(t *testing.T) {
	db := openTestDB(t)
	fc, err := NewFileCache(db)
	require.NoError(t, err)

	ref := repo.RepoRef{Backend: repo.BackendLocal, Identity: "/tmp/example"}
	ctx := context.Background()

	snap, err := fc.Snapshot(ctx, ref)
	require.NoError(t, err)
	require.Empty(t, snap.Entries)

	changed := snap.ContentSeen("main.go", "head", []byte("package main\n"))
	require.True(t, changed, "first sighting of a path is always a change")

	require.NoError(t, fc.Persist(ctx, ref, snap))

	reloaded, err := fc.Snapshot(ctx, ref)
	require.NoError(t, err)
	require.Len(t, reloaded.Entries, 1)

	entry := reloaded.Entries["main.go"]
	require.NotNil(t, entry)
	require.False(t, entry.Fresh, "a freshly loaded snapshot starts stale")
	require.Contains(t, entry.Branches, "head")

	changed = reloaded.ContentSeen("main.go", "head", []byte("package main\n"))
	require.False(t, changed, "unchanged content is not reported as changed")
}

func TestFileCacheDeleteForRepo(t *testing.T) {
	db := openTestDB(t)
	fc, err := NewFileCache(db)
	require.NoError(t, err)
	ctx := context.Background()
	ref := repo.RepoRef{Backend: repo.BackendLocal, Identity: "/tmp/example"}

	snap, err := fc.Snapshot(ctx, ref)
	require.NoError(t, err)
	snap.ContentSeen("a.go", "head", []byte("a"))
	require.NoError(t, fc.Persist(ctx, ref, snap))

	require.NoError(t, fc.DeleteForRepo(ctx, ref))

	reloaded, err := fc.Snapshot(ctx, ref)
	require.NoError(t, err)
	require.Empty(t, reloaded.Entries)
}
