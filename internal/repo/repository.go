package repo

import (
	"sync"
	"time"
)

// Repository is the persisted record of one tracked repository: its
// identity, where it sits on disk, its filters, and its current sync
// status. Repository is safe for concurrent use; callers mutate it
// through SetStatus and the Mark* helpers rather than touching fields directly so
// that the pool's map-of-pointers stays internally consistent.
type Repository struct {
	mu sync.RWMutex

	Ref          RepoRef
	DiskPath     string
	BranchFilter BranchFilterConfig
	FileFilter   FileFilterConfig
	Status       SyncStatus
	LastSyncedAt time.Time
	LastIndexed  map[string]string // branch -> last-indexed commit SHA
}

// NewRepository constructs a freshly discovered, not-yet-synced record.
func NewRepository(ref RepoRef, diskPath string) *Repository {
	return &Repository{
		Ref:         ref,
		DiskPath:    diskPath,
		Status:      SyncStatus{Kind: Uninitialized},
		LastIndexed: make(map[string]string),
	}
}

func (r *Repository) SetStatus(s SyncStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = s
}

func (r *Repository) GetStatus() SyncStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// MarkRemoved flags a repository whose disk path no longer exists
// after a filesystem rescan, without discarding its history.
func (r *Repository) MarkRemoved() {
	r.SetStatus(StatusRemoved())
}

// MarkQueued re-queues a repository that was caught mid-sync when the
// process last exited, so the next startup_scan picks it back up
// instead of leaving it stranded in Indexing forever.
func (r *Repository) MarkQueued() {
	r.SetStatus(StatusQueued())
}
