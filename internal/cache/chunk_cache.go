package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/ferg-cod3s/conexus/internal/embedding"
	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

// ChunkPayload is the metadata attached to a cached chunk embedding.
type ChunkPayload struct {
	RepoRef   repo.RepoRef
	FilePath  string
	StartLine int
	EndLine   int
	Text      string
	Symbol    string
}

type freshValue struct {
	payload  ChunkPayload
	vector   embedding.Vector
	fresh    bool
	wasFresh bool // whether this ID existed in the store before this sync
}

// ChunkCache memoizes chunk embeddings by content-addressed ID so that
// a chunk whose text hasn't changed, even if the file around it has,
// never needs to be re-embedded. The in-memory working set lives only
// for the duration of one sync; the durable copy lives in the vector
// store itself.
type ChunkCache struct {
	store vectorstore.VectorStore

	mu      sync.Mutex
	working map[string]*freshValue
}

func NewChunkCache(store vectorstore.VectorStore) *ChunkCache {
	return &ChunkCache{store: store, working: make(map[string]*freshValue)}
}

// ForFile seeds the in-memory working set with every chunk the vector
// store currently has for filePath, so UpdateOrEmbed can reuse their
// embeddings without a network/model round trip when the text is
// unchanged.
func (c *ChunkCache) ForFile(ctx context.Context, ref repo.RepoRef, filePath string) error {
	results, err := c.store.SearchBM25(ctx, "", vectorstore.SearchOptions{
		Limit: 100000,
		Filters: map[string]interface{}{
			"repo_ref":  ref.String(),
			"file_path": filePath,
		},
	})
	if err != nil {
		// A cold store with nothing indexed yet for this repo is not
		// an error condition; treat it as an empty seed set.
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		id := r.Document.ID
		c.working[id] = &freshValue{
			payload: payloadFromMetadata(r.Document),
			vector:  r.Document.Vector,
			fresh:   false,
			wasFresh: true,
		}
	}
	return nil
}

func payloadFromMetadata(doc vectorstore.Document) ChunkPayload {
	p := ChunkPayload{Text: doc.Content}
	if v, ok := doc.Metadata["file_path"].(string); ok {
		p.FilePath = v
	}
	if v, ok := doc.Metadata["symbol"].(string); ok {
		p.Symbol = v
	}
	if v, ok := doc.Metadata["start_line"].(int); ok {
		p.StartLine = v
	}
	if v, ok := doc.Metadata["end_line"].(int); ok {
		p.EndLine = v
	}
	return p
}

// UpdateOrEmbed returns the embedding for chunkText, reusing a cached
// vector keyed by the chunk's BLAKE3-derived ID when present and
// calling embedder otherwise. The chunk is marked fresh either way so
// Commit knows to keep it.
func (c *ChunkCache) UpdateOrEmbed(ctx context.Context, payload ChunkPayload, embedder embedding.Embedder) (id string, vec embedding.Vector, err error) {
	id = chunkID([]byte(payload.Text))

	c.mu.Lock()
	existing, occupied := c.working[id]
	c.mu.Unlock()

	if occupied {
		c.mu.Lock()
		existing.fresh = true
		existing.payload = payload
		c.mu.Unlock()
		return id, existing.vector, nil
	}

	emb, err := embedder.Embed(ctx, payload.Text)
	if err != nil {
		return "", nil, fmt.Errorf("embed chunk: %w", err)
	}

	c.mu.Lock()
	c.working[id] = &freshValue{payload: payload, vector: emb.Vector, fresh: true}
	c.mu.Unlock()
	return id, emb.Vector, nil
}

// Commit partitions the working set into an upsert batch (entries
// marked fresh this sync) and a delete batch (entries that existed
// before this sync but were never marked fresh, meaning their source
// chunk disappeared), then applies both against the vector store.
func (c *ChunkCache) Commit(ctx context.Context, ref repo.RepoRef) error {
	c.mu.Lock()
	var upserts []vectorstore.Document
	var deletes []string
	for id, v := range c.working {
		if v.fresh {
			upserts = append(upserts, vectorstore.Document{
				ID:     id,
				Content: v.payload.Text,
				Vector: v.vector,
				Metadata: map[string]interface{}{
					"repo_ref":   ref.String(),
					"file_path":  v.payload.FilePath,
					"symbol":     v.payload.Symbol,
					"start_line": v.payload.StartLine,
					"end_line":   v.payload.EndLine,
				},
			})
		} else if v.wasFresh {
			deletes = append(deletes, id)
		}
	}
	c.working = make(map[string]*freshValue)
	c.mu.Unlock()

	if len(upserts) > 0 {
		if err := c.store.UpsertBatch(ctx, upserts); err != nil {
			return fmt.Errorf("upsert chunk batch: %w", err)
		}
	}
	for _, id := range deletes {
		if err := c.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete stale chunk %s: %w", id, err)
		}
	}
	return nil
}
