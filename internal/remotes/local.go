package remotes

import (
	"context"
	"io"

	"github.com/ferg-cod3s/conexus/internal/repo"
)

// LocalBackend handles repos sourced from a filesystem path that
// isn't a git remote conexus owns: we never fetch, push, or otherwise
// touch the git repository of a local repo, only read its working
// tree, so Sync is a no-op.
type LocalBackend struct{}

func (LocalBackend) Sync(ctx context.Context, ref repo.RepoRef, diskPath string, progress io.Writer) error {
	return nil
}
