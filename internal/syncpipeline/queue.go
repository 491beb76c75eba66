package syncpipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ferg-cod3s/conexus/internal/cache"
	"github.com/ferg-cod3s/conexus/internal/observability"
	"github.com/ferg-cod3s/conexus/internal/remotes"
	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/statestore"
	"github.com/schollz/progressbar/v3"
)

// queuePollInterval is how often WaitForSyncAndIndex rechecks whether
// the ref it's waiting on has left the queue. A channel-based
// completion signal would avoid the poll, but would require plumbing
// a per-ref waiter list through Enqueue/runOne for a rarely-used,
// non-hot-path method; polling a small in-memory map is simpler and
// cheap enough at this interval.
const queuePollInterval = 50 * time.Millisecond

// Queue serializes sync work across a bounded number of workers: a
// RepoRef already queued (or already running) is never queued twice,
// matching the original sync daemon's "request coalescing" behavior —
// a burst of file-watcher events for the same repo collapses into one
// sync pass, not N.
type Queue struct {
	maxConcurrent int
	sem           chan struct{}

	writers Writers
	remotes *remotes.Registry
	src     statestore.Source

	logger       *observability.Logger
	errorHandler *observability.ErrorHandler

	mu     sync.Mutex
	queued map[repo.RepoRef]bool
	wg     sync.WaitGroup
}

// NewQueue builds a Queue with maxConcurrent simultaneous sync
// handles in flight; every other queued ref waits its turn.
func NewQueue(maxConcurrent int, writers Writers, remoteRegistry *remotes.Registry, src statestore.Source, logger *observability.Logger, errHandler *observability.ErrorHandler) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue{
		maxConcurrent: maxConcurrent,
		sem:           make(chan struct{}, maxConcurrent),
		writers:       writers,
		remotes:       remoteRegistry,
		src:           src,
		logger:        logger,
		errorHandler:  errHandler,
		queued:        make(map[repo.RepoRef]bool),
	}
}

// Enqueue schedules ref for a sync-and-index pass if one isn't already
// queued or running for it. It returns immediately; the actual sync
// runs on an internal goroutine bounded by the queue's concurrency cap.
func (q *Queue) Enqueue(ctx context.Context, pool *repo.Pool, fileCache *cache.FileCache, ref repo.RepoRef) {
	q.mu.Lock()
	if q.queued[ref] {
		q.mu.Unlock()
		return
	}
	q.queued[ref] = true
	q.mu.Unlock()

	if r, ok := pool.Get(ref); ok {
		r.SetStatus(repo.StatusQueued())
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.runOne(ctx, pool, fileCache, ref)
	}()
}

// WaitForSyncAndIndex blocks until ref's currently queued or in-flight
// pass completes, then returns its final status. If ref isn't queued,
// it enqueues a pass for it first and waits for that one.
func (q *Queue) WaitForSyncAndIndex(ctx context.Context, pool *repo.Pool, fileCache *cache.FileCache, ref repo.RepoRef) (repo.SyncStatus, error) {
	q.mu.Lock()
	alreadyQueued := q.queued[ref]
	q.mu.Unlock()

	if !alreadyQueued {
		q.Enqueue(ctx, pool, fileCache, ref)
	}

	for {
		q.mu.Lock()
		stillQueued := q.queued[ref]
		q.mu.Unlock()
		if !stillQueued {
			break
		}
		select {
		case <-ctx.Done():
			return repo.SyncStatus{}, ctx.Err()
		case <-time.After(queuePollInterval):
		}
	}

	r, ok := pool.Get(ref)
	if !ok {
		return repo.SyncStatus{Kind: repo.Removed}, nil
	}
	return r.GetStatus(), nil
}

func (q *Queue) runOne(ctx context.Context, pool *repo.Pool, fileCache *cache.FileCache, ref repo.RepoRef) {
	q.sem <- struct{}{}
	defer func() { <-q.sem }()
	defer func() {
		q.mu.Lock()
		delete(q.queued, ref)
		q.mu.Unlock()
	}()

	handle, cleanup := NewSyncHandle(ref, pool, fileCache, q.writers, q.remotes, q.src.IndexDir, q.logger, q.errorHandler)
	defer cleanup()

	if _, err := handle.Run(ctx); err != nil && q.logger != nil {
		q.logger.ErrorContext(ctx, "sync failed", "repo_ref", ref.String(), "error", err.Error())
	}
}

// Wait blocks until every currently queued sync has finished. Intended
// for orderly shutdown, not for steady-state use (new Enqueue calls
// racing a Wait are not accounted for).
func (q *Queue) Wait() {
	q.wg.Wait()
}

// StartupScan reconciles the persisted pool against a filesystem scan
// rooted at scanRoot (via statestore.ReconcilePool), merges the result
// into pool, and enqueues every repo reconciliation left in a
// non-terminal or Queued state, reporting progress on a terminal bar
// the way the CLI entrypoint does for any long scan.
func (q *Queue) StartupScan(ctx context.Context, pool *repo.Pool, fileCache *cache.FileCache, scanRoot string, showProgress bool) error {
	reconciled, err := statestore.ReconcilePool(q.src, scanRoot)
	if err != nil {
		return fmt.Errorf("reconcile pool: %w", err)
	}

	var toSync []repo.RepoRef
	reconciled.Scan(func(ref repo.RepoRef, rr *repo.Repository) {
		r := pool.Entry(ref, func() *repo.Repository { return rr })
		if r != rr {
			r.SetStatus(rr.GetStatus())
			r.DiskPath = rr.DiskPath
		}
		status := r.GetStatus()
		if status.Kind == repo.Queued || status.Kind == repo.Uninitialized {
			toSync = append(toSync, ref)
		}
	})

	var bar *progressbar.ProgressBar
	if showProgress && len(toSync) > 0 {
		bar = progressbar.NewOptions(len(toSync),
			progressbar.OptionSetDescription("syncing repositories"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}

	for _, ref := range toSync {
		q.Enqueue(ctx, pool, fileCache, ref)
	}
	if bar != nil {
		for _, ref := range toSync {
			_, _ = q.WaitForSyncAndIndex(ctx, pool, fileCache, ref)
			_ = bar.Add(1)
		}
	} else {
		q.Wait()
	}
	return nil
}
