package syncpipeline

import (
	"fmt"

	"github.com/ferg-cod3s/conexus/internal/repo"
)

// ErrorKind enumerates every way a sync attempt can fail. It mirrors
// the upstream taxonomy field-for-field; TextIndex stands in for what
// the original calls its Tantivy error, since this port's text index
// is SQLite FTS5 rather than Tantivy.
type ErrorKind int

const (
	ErrNoKeysForBackend ErrorKind = iota
	ErrPathNotAllowed
	ErrIndexing
	ErrSync
	ErrState
	ErrFileCache
	ErrRemoveLocal
	ErrTextIndex
	ErrSyncInProgress
)

// SyncError is the error type returned from a SyncHandle.Run, carrying
// enough structure for the caller (and ErrorHandler) to dispatch on
// Kind without string matching.
type SyncError struct {
	Kind    ErrorKind
	Backend repo.Backend
	Path    string
	Err     error
}

func (e *SyncError) Error() string {
	switch e.Kind {
	case ErrNoKeysForBackend:
		return fmt.Sprintf("no credentials configured for backend %s", e.Backend)
	case ErrPathNotAllowed:
		return fmt.Sprintf("path not allowed: %s", e.Path)
	case ErrIndexing:
		return fmt.Sprintf("indexing failed: %v", e.Err)
	case ErrSync:
		return fmt.Sprintf("remote sync failed: %v", e.Err)
	case ErrState:
		return fmt.Sprintf("repo state error: %v", e.Err)
	case ErrFileCache:
		return fmt.Sprintf("file cache error: %v", e.Err)
	case ErrRemoveLocal:
		return fmt.Sprintf("failed to remove local checkout %s: %v", e.Path, e.Err)
	case ErrTextIndex:
		return fmt.Sprintf("text index error: %v", e.Err)
	case ErrSyncInProgress:
		return "a sync is already in progress for this repository"
	default:
		return fmt.Sprintf("sync error: %v", e.Err)
	}
}

func (e *SyncError) Unwrap() error { return e.Err }

func newIndexingErr(err error) error  { return &SyncError{Kind: ErrIndexing, Err: err} }
func newSyncErr(err error) error      { return &SyncError{Kind: ErrSync, Err: err} }
func newStateErr(err error) error     { return &SyncError{Kind: ErrState, Err: err} }
func newFileCacheErr(err error) error { return &SyncError{Kind: ErrFileCache, Err: err} }
func newTextIndexErr(err error) error { return &SyncError{Kind: ErrTextIndex, Err: err} }
func newRemoveLocalErr(path string, err error) error {
	return &SyncError{Kind: ErrRemoveLocal, Path: path, Err: err}
}
func newPathNotAllowedErr(path string) error {
	return &SyncError{Kind: ErrPathNotAllowed, Path: path}
}
func newNoKeysErr(backend repo.Backend) error {
	return &SyncError{Kind: ErrNoKeysForBackend, Backend: backend}
}

// ErrSyncInProgressSentinel is returned by SyncLock when another
// SyncHandle already holds the lock for the same RepoRef.
var ErrSyncInProgressSentinel error = &SyncError{Kind: ErrSyncInProgress}
