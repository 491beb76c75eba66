package indexer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ferg-cod3s/conexus/internal/cache"
	"github.com/ferg-cod3s/conexus/internal/embedding"
	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

// FileForIndex is one file handed to PipelineWriters by whatever file
// source produced it (git-walked or plain filesystem); it carries
// just enough for chunking and cache bookkeeping, deliberately nothing
// about how it was discovered.
type FileForIndex struct {
	Path     string
	Branches []string
	Content  []byte
}

// PipelineWriters is the concrete index writer a SyncHandle drives:
// it chunks each file's content, reuses or computes embeddings
// through the chunk cache, and upserts the result into the vector
// store (which also serves BM25 search over the same rows).
type PipelineWriters struct {
	chunker    *TreeSitterChunker
	chunkCache *cache.ChunkCache
	embedder   embedding.Embedder
	store      vectorstore.VectorStore
}

func NewPipelineWriters(chunkCache *cache.ChunkCache, embedder embedding.Embedder, store vectorstore.VectorStore) *PipelineWriters {
	return &PipelineWriters{
		chunker:    NewTreeSitterChunker(),
		chunkCache: chunkCache,
		embedder:   embedder,
		store:      store,
	}
}

// Index writes every file's chunks for ref, seeding the chunk cache
// per-file before chunking it so unchanged chunks skip embedding.
func (w *PipelineWriters) Index(ctx context.Context, ref repo.RepoRef, files []FileForIndex) error {
	for _, f := range files {
		if err := w.indexOne(ctx, ref, f); err != nil {
			return fmt.Errorf("index %s: %w", f.Path, err)
		}
	}
	return w.chunkCache.Commit(ctx, ref)
}

func (w *PipelineWriters) indexOne(ctx context.Context, ref repo.RepoRef, f FileForIndex) error {
	if err := w.chunkCache.ForFile(ctx, ref, f.Path); err != nil {
		return err
	}

	ext := filepath.Ext(f.Path)
	chunks, err := w.chunker.Chunk(ctx, string(f.Content), f.Path, ext)
	if err != nil {
		return fmt.Errorf("chunk: %w", err)
	}

	for _, c := range chunks {
		payload := cache.ChunkPayload{
			RepoRef:   ref,
			FilePath:  f.Path,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Text:      c.Content,
			Symbol:    c.Metadata["symbol"],
		}
		if _, _, err := w.chunkCache.UpdateOrEmbed(ctx, payload, w.embedder); err != nil {
			return fmt.Errorf("embed chunk: %w", err)
		}
	}
	return nil
}

// Delete removes every chunk belonging to ref from the vector store.
// The store has no direct "delete by repo_ref" primitive, so this
// walks a metadata-filtered search and deletes each match — acceptable
// since Delete only runs once per repo removal, not on the hot sync
// path.
func (w *PipelineWriters) Delete(ctx context.Context, ref repo.RepoRef) error {
	results, err := w.store.SearchBM25(ctx, "", vectorstore.SearchOptions{
		Limit:   1 << 20,
		Filters: map[string]interface{}{"repo_ref": ref.String()},
	})
	if err != nil {
		return fmt.Errorf("list chunks for repo: %w", err)
	}
	for _, r := range results {
		if err := w.store.Delete(ctx, r.Document.ID); err != nil {
			return fmt.Errorf("delete chunk %s: %w", r.Document.ID, err)
		}
	}
	return nil
}
