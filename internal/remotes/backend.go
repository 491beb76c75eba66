// Package remotes implements the remote-repository backends a sync
// can fetch from (currently GitHub) plus the credential store backing
// them, and the local no-op backend for repos sourced from a
// filesystem path we never push or pull.
package remotes

import (
	"context"
	"errors"
	"io"

	"github.com/ferg-cod3s/conexus/internal/repo"
)

// ErrRemoteNotFound is returned by Sync when the remote repository no
// longer exists (deleted, renamed, or access revoked). The sync
// pipeline maps this to repo.StatusRemoteRemoved rather than
// repo.StatusError, since it is an expected steady-state outcome, not
// a bug.
var ErrRemoteNotFound = errors.New("remote repository not found")

// Backend fetches or clones a repository's content to diskPath.
// progress, if non-nil, receives raw transport progress bytes (the
// sync pipeline passes its *syncpipeline.GitSync adapter here, which
// satisfies io.Writer without this package needing to import
// syncpipeline).
type Backend interface {
	Sync(ctx context.Context, ref repo.RepoRef, diskPath string, progress io.Writer) error
}

// Registry resolves a RepoRef's backend to the Backend implementation
// that knows how to sync it.
type Registry struct {
	github *GitHubBackend
	local  *LocalBackend
}

func NewRegistry(github *GitHubBackend) *Registry {
	return &Registry{github: github, local: &LocalBackend{}}
}

func (r *Registry) For(backend repo.Backend) (Backend, bool) {
	switch backend {
	case repo.BackendGitHub:
		if r.github == nil {
			return nil, false
		}
		return r.github, true
	case repo.BackendLocal:
		return r.local, true
	default:
		return nil, false
	}
}
