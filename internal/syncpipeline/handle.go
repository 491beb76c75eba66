package syncpipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ferg-cod3s/conexus/internal/cache"
	"github.com/ferg-cod3s/conexus/internal/gitsource"
	"github.com/ferg-cod3s/conexus/internal/indexer"
	"github.com/ferg-cod3s/conexus/internal/observability"
	"github.com/ferg-cod3s/conexus/internal/remotes"
	"github.com/ferg-cod3s/conexus/internal/repo"
)

// activeLocks guards against two SyncHandles running concurrently for
// the same RepoRef; the sync queue already deduplicates queued work,
// but a caller driving SyncHandle.Run directly (tests, a manual
// re-sync request) could still race the queue.
var activeLocks sync.Map // repo.RepoRef -> struct{}

func acquireSyncLock(ref repo.RepoRef) error {
	if _, loaded := activeLocks.LoadOrStore(ref, struct{}{}); loaded {
		return ErrSyncInProgressSentinel
	}
	return nil
}

func releaseSyncLock(ref repo.RepoRef) {
	activeLocks.Delete(ref)
}

// SyncHandle drives one sync-then-index pass for a single repository.
// It is created fresh for every sync attempt (it is not reused across
// runs): NewSyncHandle returns the handle plus a cleanup closure the
// caller must defer immediately, which normalizes a non-terminal
// status left behind by a panic or early return into Error("unknown")
// so a crash mid-sync never strands a repo looking like it's still
// healthily in progress.
type SyncHandle struct {
	Ref         repo.RepoRef
	Pool        *repo.Pool
	FileCache   *cache.FileCache
	Writers     Writers
	Remotes     *remotes.Registry
	LocalRoot   string // base dir given by the caller; sync does not check BackendLocal disk paths against it
	Logger      *observability.Logger
	ErrorHandler *observability.ErrorHandler

	pipes  *SyncPipes
	exited chan repo.SyncStatus
}

// NewSyncHandle constructs a handle and returns the cleanup function
// that finalizes its status on exit.
func NewSyncHandle(ref repo.RepoRef, pool *repo.Pool, fileCache *cache.FileCache, writers Writers, remoteRegistry *remotes.Registry, localRoot string, logger *observability.Logger, errHandler *observability.ErrorHandler) (*SyncHandle, func()) {
	h := &SyncHandle{
		Ref:          ref,
		Pool:         pool,
		FileCache:    fileCache,
		Writers:      writers,
		Remotes:      remoteRegistry,
		LocalRoot:    localRoot,
		Logger:       logger,
		ErrorHandler: errHandler,
		pipes:        NewSyncPipes(ref),
		exited:       make(chan repo.SyncStatus, 1),
	}
	cleanup := func() {
		r, ok := pool.Get(ref)
		if ok {
			status := r.GetStatus()
			if !status.IsTerminal() {
				status = repo.StatusError("unknown")
				r.SetStatus(status)
			}
			select {
			case h.exited <- status:
			default:
			}
		}
		releaseSyncLock(ref)
	}
	return h, cleanup
}

func (h *SyncHandle) repository() *repo.Repository {
	r, ok := h.Pool.Get(h.Ref)
	if !ok {
		r = repo.NewRepository(h.Ref, "")
		h.Pool.Entry(h.Ref, func() *repo.Repository { return r })
	}
	return r
}

// Pipes exposes the handle's progress/control channel.
func (h *SyncHandle) Pipes() *SyncPipes { return h.pipes }

// Exited resolves once the handle's cleanup has run, yielding the
// final status it settled on.
func (h *SyncHandle) Exited() <-chan repo.SyncStatus { return h.exited }

// Run executes sync() then index() for this handle's repository,
// holding the per-ref lock for its entire duration.
func (h *SyncHandle) Run(ctx context.Context) (repo.SyncStatus, error) {
	if err := acquireSyncLock(h.Ref); err != nil {
		return repo.SyncStatus{}, err
	}

	r := h.repository()

	if err := h.sync(ctx, r); err != nil {
		r.SetStatus(repo.StatusError(err.Error()))
		h.report(err)
		return r.GetStatus(), err
	}
	if err := h.index(ctx, r); err != nil {
		r.SetStatus(repo.StatusError(err.Error()))
		h.report(err)
		return r.GetStatus(), err
	}
	return r.GetStatus(), nil
}

func (h *SyncHandle) report(err error) {
	if h.ErrorHandler != nil {
		h.ErrorHandler.HandleError(context.Background(), err, observability.ErrorContext{
			ErrorType: fmt.Sprintf("%T", err),
		})
	}
}

// sync resolves content onto disk: a no-op existence check for local
// repos (we never fetch or push a local repo's git history), or a
// clone-or-fetch through the registered remote backend otherwise. A
// remote reporting the repository gone maps to RemoteRemoved rather
// than an error, since that's an expected steady state, not a bug.
func (h *SyncHandle) sync(ctx context.Context, r *repo.Repository) error {
	if h.pipes.IsCancelled() || h.pipes.IsRemoved() {
		return nil
	}

	r.SetStatus(repo.StatusSyncing())
	h.pipes.SetStatus(r.GetStatus())

	switch r.Ref.Backend {
	case repo.BackendLocal:
		if _, err := os.Stat(r.DiskPath); err != nil {
			return newPathNotAllowedErr(r.DiskPath)
		}
		return nil
	default:
		backend, ok := h.Remotes.For(r.Ref.Backend)
		if !ok {
			return newNoKeysErr(r.Ref.Backend)
		}
		gitSync := NewGitSync(h.pipes)
		err := backend.Sync(ctx, r.Ref, r.DiskPath, gitSync)
		if errors.Is(err, remotes.ErrRemoteNotFound) {
			r.SetStatus(repo.StatusRemoteRemoved())
			return nil
		}
		if err != nil {
			return newSyncErr(err)
		}
		return nil
	}
}

// index walks the repository's current status to decide what to do:
// a repo marked Removed gets torn down, one marked RemoteRemoved is
// left alone (there may still be useful local index entries a user
// wants to keep browsing), anything else gets (re)indexed.
func (h *SyncHandle) index(ctx context.Context, r *repo.Repository) error {
	if h.pipes.IsRemoved() {
		r.SetStatus(repo.StatusRemoved())
	}

	status := r.GetStatus()
	switch status.Kind {
	case repo.Removed:
		if err := h.deleteRepoIndexes(ctx, r); err != nil {
			return err
		}
		h.Pool.Remove(r.Ref)
		return nil
	case repo.RemoteRemoved:
		return nil
	default:
		return h.reindex(ctx, r)
	}
}

func (h *SyncHandle) reindex(ctx context.Context, r *repo.Repository) error {
	r.SetStatus(repo.StatusIndexing())
	h.pipes.SetStatus(r.GetStatus())

	branchFilter, err := repo.CompileBranchFilter(r.BranchFilter)
	if err != nil {
		return newIndexingErr(fmt.Errorf("compile branch filter: %w", err))
	}
	fileFilter, err := repo.CompileFileFilter(r.FileFilter)
	if err != nil {
		return newIndexingErr(fmt.Errorf("compile file filter: %w", err))
	}

	var entries []*gitsource.FileEntry
	if r.Ref.Backend == repo.BackendLocal && !hasGitDir(r.DiskPath) {
		entries, err = gitsource.WalkLocal(r.DiskPath)
	} else {
		entries, err = gitsource.Walk(r.DiskPath, branchFilter, fileFilter)
	}
	if err != nil {
		return newIndexingErr(fmt.Errorf("walk repo: %w", err))
	}

	snap, err := h.FileCache.Snapshot(ctx, r.Ref)
	if err != nil {
		return newFileCacheErr(err)
	}

	var files []indexer.FileForIndex
	for _, e := range entries {
		if h.pipes.IsInterrupted() {
			break
		}
		content, err := e.Content()
		if err != nil || content == nil {
			continue
		}
		branchLabel := "head"
		if len(e.Branches) > 0 {
			branchLabel = e.Branches[0]
		}
		changed := snap.ContentSeen(e.Path, branchLabel, content)
		if !changed {
			continue
		}
		files = append(files, indexer.FileForIndex{Path: e.Path, Branches: e.Branches, Content: content})
	}

	if err := h.Writers.Index(ctx, r.Ref, files); err != nil {
		return newIndexingErr(err)
	}
	if err := h.FileCache.Persist(ctx, r.Ref, snap); err != nil {
		return newFileCacheErr(err)
	}

	r.SetStatus(repo.StatusDone())
	r.LastSyncedAt = time.Now()
	h.pipes.SetStatus(r.GetStatus())
	return nil
}

// deleteRepoIndexes tears down every trace of a removed repository:
// its indexed chunks, its file cache rows, and (for non-local repos)
// the disk checkout we own.
func (h *SyncHandle) deleteRepoIndexes(ctx context.Context, r *repo.Repository) error {
	if err := h.Writers.Delete(ctx, r.Ref); err != nil {
		return newIndexingErr(fmt.Errorf("delete index entries: %w", err))
	}
	if err := h.FileCache.DeleteForRepo(ctx, r.Ref); err != nil {
		return newFileCacheErr(err)
	}
	if r.Ref.Backend != repo.BackendLocal {
		if err := os.RemoveAll(r.DiskPath); err != nil {
			return newRemoveLocalErr(r.DiskPath, err)
		}
	}
	return nil
}

func hasGitDir(path string) bool {
	info, err := os.Stat(path + "/.git")
	return err == nil && (info.IsDir() || info.Mode().IsRegular())
}
