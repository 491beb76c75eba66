package syncpipeline

import (
	"context"

	"github.com/ferg-cod3s/conexus/internal/indexer"
	"github.com/ferg-cod3s/conexus/internal/repo"
)

// Writers is the index-writing half of a sync: given the files
// discovered for a repo, build and persist their chunks; given just a
// RepoRef, tear down everything indexed for it. SyncHandle depends on
// this interface rather than indexer.PipelineWriters directly so
// tests can substitute a fake without standing up a real vector
// store.
type Writers interface {
	Index(ctx context.Context, ref repo.RepoRef, files []indexer.FileForIndex) error
	Delete(ctx context.Context, ref repo.RepoRef) error
}
