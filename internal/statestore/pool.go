package statestore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ferg-cod3s/conexus/internal/repo"
)

// persistedRepo is the JSON-serializable shape of one repo.Repository
// row; repo.Repository itself holds a mutex and isn't marshaled
// directly.
type persistedRepo struct {
	Ref          string            `json:"ref"`
	DiskPath     string            `json:"disk_path"`
	StatusKind   string            `json:"status"`
	StatusMsg    string            `json:"status_message,omitempty"`
	LastIndexed  map[string]string `json:"last_indexed,omitempty"`
}

// SavePool persists every repository in p to the state file.
func SavePool(src Source, p *repo.Pool) error {
	var rows []persistedRepo
	p.Scan(func(ref repo.RepoRef, r *repo.Repository) {
		st := r.GetStatus()
		rows = append(rows, persistedRepo{
			Ref:         ref.String(),
			DiskPath:    r.DiskPath,
			StatusKind:  st.Kind.String(),
			StatusMsg:   st.Message,
			LastIndexed: r.LastIndexed,
		})
	})
	return PrettyWriteFile(src.StateFile(), rows)
}

// LoadPool reads the state file into a fresh Pool. A missing file
// yields an empty pool, not an error — the caller distinguishes
// "no state file" from "empty state file" by checking os.Stat itself
// before calling this if that distinction matters.
func LoadPool(src Source) (*repo.Pool, error) {
	var rows []persistedRepo
	if err := ReadFileOrDefault(src.StateFile(), &rows); err != nil {
		return nil, fmt.Errorf("read repo state: %w", err)
	}

	pool := repo.NewPool()
	for _, row := range rows {
		ref, err := repo.ParseRepoRef(row.Ref)
		if err != nil {
			continue // a corrupted single row shouldn't sink the whole pool
		}
		r := repo.NewRepository(ref, row.DiskPath)
		r.LastIndexed = row.LastIndexed
		if r.LastIndexed == nil {
			r.LastIndexed = make(map[string]string)
		}
		for k := repo.Uninitialized; k <= repo.Error; k++ {
			if k.String() == row.StatusKind {
				r.SetStatus(repo.SyncStatus{Kind: k, Message: row.StatusMsg})
				break
			}
		}
		pool.Entry(ref, func() *repo.Repository { return r })
	}
	return pool, nil
}

// GatherRepoRoots walks root looking for git checkouts: any directory
// containing a .git entry is treated as a repository boundary and is
// not descended into further, so a submodule nested inside a tracked
// repo is never double-counted as its own top-level repository.
func GatherRepoRoots(root string) ([]string, error) {
	var roots []string
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if e.Name() == ".git" {
				roots = append(roots, dir)
				return nil // stop descending once this dir is a repo root
			}
		}
		for _, e := range entries {
			if !e.IsDir() || e.Name() == ".git" {
				continue
			}
			if err := walk(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return roots, nil
}

// ReconcilePool loads the existing pool (if any), marks any tracked
// repo whose disk path is under root but no longer appears in a fresh
// walk as Removed, re-queues anything stuck mid-Indexing from a prior
// crash, and adds any newly discovered repo not already tracked.
func ReconcilePool(src Source, root string) (*repo.Pool, error) {
	pool, err := LoadPool(src)
	if err != nil {
		return nil, err
	}

	discovered, err := GatherRepoRoots(root)
	if err != nil {
		return nil, fmt.Errorf("gather repo roots: %w", err)
	}
	discoveredSet := make(map[string]struct{}, len(discovered))
	for _, d := range discovered {
		discoveredSet[d] = struct{}{}
	}

	pool.Scan(func(ref repo.RepoRef, r *repo.Repository) {
		status := r.GetStatus()
		if status.Kind == repo.Indexing || status.Kind == repo.Syncing {
			r.MarkQueued()
		}
		if ref.Backend != repo.BackendLocal {
			return
		}
		if rel, err := filepath.Rel(root, r.DiskPath); err != nil || len(rel) >= 2 && rel[:2] == ".." {
			return
		}
		if _, ok := discoveredSet[r.DiskPath]; !ok {
			r.MarkRemoved()
		}
	})

	for _, diskPath := range discovered {
		if _, ok := pool.ByDiskPath(diskPath); ok {
			continue
		}
		ref := repo.RepoRef{Backend: repo.BackendLocal, Identity: diskPath}
		pool.Entry(ref, func() *repo.Repository {
			return repo.NewRepository(ref, diskPath)
		})
	}

	return pool, nil
}
