package syncpipeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ferg-cod3s/conexus/internal/cache"
	"github.com/ferg-cod3s/conexus/internal/remotes"
	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openQueueTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestQueue(t *testing.T, writers Writers) (*Queue, *cache.FileCache) {
	t.Helper()
	fc, err := cache.NewFileCache(openQueueTestDB(t))
	require.NoError(t, err)
	src := statestore.NewSource(t.TempDir())
	q := NewQueue(2, writers, remotes.NewRegistry(nil), src, nil, nil)
	return q, fc
}

func TestQueueEnqueueRunsSyncToCompletion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))

	ref := repo.RepoRef{Backend: repo.BackendLocal, Identity: dir}
	writers := &fakeWriters{}
	q, fc := newTestQueue(t, writers)

	pool := repo.NewPool()
	pool.Entry(ref, func() *repo.Repository { return repo.NewRepository(ref, dir) })

	ctx := context.Background()
	status, err := q.WaitForSyncAndIndex(ctx, pool, fc, ref)
	require.NoError(t, err)
	assert.Equal(t, repo.Done, status.Kind)
	assert.Len(t, writers.indexed, 1)
}

func TestQueueEnqueueDeduplicatesConcurrentRequests(t *testing.T) {
	dir := t.TempDir()
	ref := repo.RepoRef{Backend: repo.BackendLocal, Identity: dir}
	writers := &fakeWriters{}
	q, fc := newTestQueue(t, writers)

	pool := repo.NewPool()
	pool.Entry(ref, func() *repo.Repository { return repo.NewRepository(ref, dir) })

	ctx := context.Background()
	q.Enqueue(ctx, pool, fc, ref)
	q.Enqueue(ctx, pool, fc, ref) // should be a no-op, ref already queued

	q.Wait()
	assert.Len(t, writers.indexed, 0, "an empty dir produces no files to index, but the run must still have completed once")

	r, ok := pool.Get(ref)
	require.True(t, ok)
	assert.Equal(t, repo.Done, r.GetStatus().Kind)
}

func TestQueueWaitForSyncAndIndexTimesOutOnCancelledContext(t *testing.T) {
	writers := &fakeWriters{}
	q, fc := newTestQueue(t, writers)
	pool := repo.NewPool()
	ref := repo.RepoRef{Backend: repo.BackendGitHub, Identity: "acme/nonexistent"}
	pool.Entry(ref, func() *repo.Repository { return repo.NewRepository(ref, t.TempDir()) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.WaitForSyncAndIndex(ctx, pool, fc, ref)
	assert.Error(t, err)
}

func TestQueueStartupScanEnqueuesDiscoveredRepos(t *testing.T) {
	root := t.TempDir()
	repoDir := filepath.Join(root, "found")
	require.NoError(t, os.MkdirAll(filepath.Join(repoDir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "main.go"), []byte("package main\n"), 0o644))

	writers := &fakeWriters{}
	fc, err := cache.NewFileCache(openQueueTestDB(t))
	require.NoError(t, err)
	src := statestore.NewSource(t.TempDir())
	q := NewQueue(2, writers, remotes.NewRegistry(nil), src, nil, nil)

	pool := repo.NewPool()
	err = q.StartupScan(context.Background(), pool, fc, root, false)
	require.NoError(t, err)

	ref := repo.RepoRef{Backend: repo.BackendLocal, Identity: repoDir}
	r, ok := pool.Get(ref)
	require.True(t, ok, "startup scan must discover the new repo and add it to the live pool")
	assert.True(t, r.GetStatus().IsTerminal())
}

func TestQueueMaxConcurrentSyncsDefaultsToOne(t *testing.T) {
	q := NewQueue(0, &fakeWriters{}, remotes.NewRegistry(nil), statestore.NewSource(t.TempDir()), nil, nil)
	assert.Equal(t, 1, cap(q.sem))
}

func TestQueuePollIntervalIsShortEnoughForTests(t *testing.T) {
	assert.Less(t, queuePollInterval, time.Second)
}
