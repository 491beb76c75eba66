// Package gitsource walks a git checkout's branches and trees to
// produce the (path -> branch set) file listing the sync pipeline
// indexes, applying the branch and file filters along the way.
package gitsource

import (
	"fmt"
	"io"

	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// maxBlobSize is the per-file size cap (~600 KiB): larger blobs are
// almost always vendored data or binary assets that would dominate
// indexing time for no search value.
const maxBlobSize = 20000 * 30

// FileEntry is one discovered file: its path, the branches that
// reference it (with the synthetic "head" branch always present for
// whichever ref is currently checked out), and a lazy blob reader.
type FileEntry struct {
	Path      string
	Branches  []string
	blob      *object.Blob
	localPath string // set instead of blob when this entry came from WalkLocal
}

func (e *FileEntry) Content() ([]byte, error) {
	if e.localPath != "" {
		return readLocalFile(e.localPath)
	}
	if e.blob == nil {
		return nil, nil
	}
	if e.blob.Size > maxBlobSize {
		return nil, nil
	}
	r, err := e.blob.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Walk opens the repository at diskPath and returns the merged file
// listing across every branch the filters admit, folding duplicate
// paths across branches into one entry with a unioned branch list.
func Walk(diskPath string, branchFilter repo.BranchFilter, fileFilter repo.FileFilter) ([]*FileEntry, error) {
	gitRepo, err := git.PlainOpen(diskPath)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := gitRepo.Head()
	var headName string
	if err == nil {
		headName = head.Name().Short()
	}

	byPath := make(map[string]*FileEntry)

	walkRef := func(refName string, isHead bool, hash plumbing.Hash) error {
		if !branchFilter.Filter(isHead, refName) {
			return nil
		}
		commit, err := gitRepo.CommitObject(hash)
		if err != nil {
			return fmt.Errorf("commit object for %s: %w", refName, err)
		}
		tree, err := commit.Tree()
		if err != nil {
			return fmt.Errorf("tree for %s: %w", refName, err)
		}

		label := refName
		if isHead {
			label = "head"
		}

		return bfsTree(gitRepo, tree, "", func(path string, blob *object.Blob) error {
			if allowed, explicit := fileFilter.IsAllowed(path); explicit && !allowed {
				return nil
			}
			entry, ok := byPath[path]
			if !ok {
				entry = &FileEntry{Path: path, blob: blob}
				byPath[path] = entry
			}
			if !containsString(entry.Branches, label) {
				entry.Branches = append(entry.Branches, label)
			}
			if isHead && !containsString(entry.Branches, "head") {
				entry.Branches = append(entry.Branches, "head")
			}
			return nil
		})
	}

	branches, err := gitRepo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	var walkErr error
	branches.ForEach(func(ref *plumbing.Reference) error {
		if walkErr != nil {
			return nil
		}
		isHead := ref.Name().Short() == headName
		walkErr = walkRef(ref.Name().Short(), isHead, ref.Hash())
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	out := make([]*FileEntry, 0, len(byPath))
	for _, e := range byPath {
		out = append(out, e)
	}
	return out, nil
}

// bfsTree walks a tree breadth-first, invoking visit for every blob
// entry reachable from it. Breadth-first (rather than go-git's
// depth-first tree.Files() iterator) keeps memory bounded by one
// tree-level's worth of entries at a time on very wide trees, and
// matches the traversal order callers expect when watching progress.
func bfsTree(gitRepo *git.Repository, tree *object.Tree, prefix string, visit func(path string, blob *object.Blob) error) error {
	type queued struct {
		tree   *object.Tree
		prefix string
	}
	queue := []queued{{tree: tree, prefix: prefix}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, entry := range cur.tree.Entries {
			path := entry.Name
			if cur.prefix != "" {
				path = cur.prefix + "/" + entry.Name
			}
			switch {
			case entry.Mode.IsFile():
				blob, err := gitRepo.BlobObject(entry.Hash)
				if err != nil {
					continue
				}
				if err := visit(path, blob); err != nil {
					return err
				}
			default:
				subtree, err := gitRepo.TreeObject(entry.Hash)
				if err != nil {
					continue
				}
				queue = append(queue, queued{tree: subtree, prefix: path})
			}
		}
	}
	return nil
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
