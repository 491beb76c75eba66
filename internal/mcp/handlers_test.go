package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/ferg-cod3s/conexus/internal/cache"
	"github.com/ferg-cod3s/conexus/internal/embedding"
	"github.com/ferg-cod3s/conexus/internal/indexer"
	"github.com/ferg-cod3s/conexus/internal/remotes"
	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/statestore"
	"github.com/ferg-cod3s/conexus/internal/syncpipeline"
	"github.com/ferg-cod3s/conexus/internal/vectorstore/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// handlerTestRig stands up a full sync-and-search pipeline (real
// stores and queue, with the deterministic mock embedder) against one
// local repo with a single indexed file,
// matching the object graph cmd/conexus wires in its composition
// root.
type handlerTestRig struct {
	server *Server
	pool   *repo.Pool
	queue  *syncpipeline.Queue
	ref    repo.RepoRef
	dir    string
}

func newHandlerTestRig(t *testing.T) *handlerTestRig {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeter.go"), []byte(
		"package greeter\n\n"+
			"// Hello returns a friendly greeting used across the test fixtures.\n"+
			"func Hello() string {\n"+
			"\tmessage := \"hello world\"\n"+
			"\treturn message\n"+
			"}\n",
	), 0o644))

	vecDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	vecDB.SetMaxOpenConns(1)
	t.Cleanup(func() { vecDB.Close() })
	vectorStore, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { vectorStore.Close() })

	fcDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	fcDB.SetMaxOpenConns(1)
	t.Cleanup(func() { fcDB.Close() })
	fileCache, err := cache.NewFileCache(fcDB)
	require.NoError(t, err)

	embedder := embedding.NewMock(16)
	chunkCache := cache.NewChunkCache(vectorStore)
	writers := indexer.NewPipelineWriters(chunkCache, embedder, vectorStore)

	src := statestore.NewSource(t.TempDir())
	registry := remotes.NewRegistry(nil)
	queue := syncpipeline.NewQueue(2, writers, registry, src, nil, nil)

	pool := repo.NewPool()
	ref := repo.RepoRef{Backend: repo.BackendLocal, Identity: dir}
	pool.Entry(ref, func() *repo.Repository { return repo.NewRepository(ref, dir) })

	status, err := queue.WaitForSyncAndIndex(context.Background(), pool, fileCache, ref)
	require.NoError(t, err)
	require.Equal(t, repo.Done, status.Kind)

	server := NewServer(nil, nil, dir, pool, queue, fileCache, src, vectorStore, embedder, nil, nil, nil)
	return &handlerTestRig{server: server, pool: pool, queue: queue, ref: ref, dir: dir}
}

func TestHandleRepoSearchFindsIndexedContent(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(SearchRequest{Query: "hello world", TopK: 5})
	require.NoError(t, err)

	result, err := rig.server.handleRepoSearch(context.Background(), args)
	require.NoError(t, err)

	resp, ok := result.(SearchResponse)
	require.True(t, ok)
	require.NotEmpty(t, resp.Results)
	assert.Contains(t, resp.Results[0].Content, "hello world")
	assert.Equal(t, "greeter.go", resp.Results[0].FilePath)
}

func TestHandleRepoSearchRejectsEmptyQuery(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(SearchRequest{Query: ""})
	require.NoError(t, err)

	_, err = rig.server.handleRepoSearch(context.Background(), args)
	require.Error(t, err)
}

func TestHandleRepoSearchUsesCacheOnRepeatQuery(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(SearchRequest{Query: "hello world", TopK: 5})
	require.NoError(t, err)

	first, err := rig.server.handleRepoSearch(context.Background(), args)
	require.NoError(t, err)

	second, err := rig.server.handleRepoSearch(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHandleRepoGrepMatchesPattern(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(GrepRequest{Pattern: `func \w+\(\)`})
	require.NoError(t, err)

	result, err := rig.server.handleRepoGrep(context.Background(), args)
	require.NoError(t, err)

	resp, ok := result.(GrepResponse)
	require.True(t, ok)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "greeter.go", resp.Results[0].FilePath)
	assert.Equal(t, rig.ref.String(), resp.Results[0].RepoRef)
}

func TestHandleRepoGrepRejectsBadPattern(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(GrepRequest{Pattern: `(`})
	require.NoError(t, err)

	_, err = rig.server.handleRepoGrep(context.Background(), args)
	require.Error(t, err)
}

func TestHandleRepoGrepUnknownRepoRefErrors(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(GrepRequest{Pattern: "hello", RepoRef: "local//does-not-exist"})
	require.NoError(t, err)

	_, err = rig.server.handleRepoGrep(context.Background(), args)
	require.Error(t, err)
}

func TestHandleRepoStatusReportsTrackedRepo(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(RepoStatusRequest{RepoRef: rig.ref.String()})
	require.NoError(t, err)

	result, err := rig.server.handleRepoStatus(context.Background(), args)
	require.NoError(t, err)

	resp, ok := result.(RepoStatusResponse)
	require.True(t, ok)
	require.Len(t, resp.Repos, 1)
	assert.Equal(t, "done", resp.Repos[0].Status)
	assert.Equal(t, rig.dir, resp.Repos[0].DiskPath)
}

func TestHandleRepoStatusUnknownRepoRefErrors(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(RepoStatusRequest{RepoRef: "local//does-not-exist"})
	require.NoError(t, err)

	_, err = rig.server.handleRepoStatus(context.Background(), args)
	require.Error(t, err)
}

func TestHandleRepoListReturnsAllTrackedRepos(t *testing.T) {
	rig := newHandlerTestRig(t)

	result, err := rig.server.handleRepoList(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)

	resp, ok := result.(RepoListResponse)
	require.True(t, ok)
	require.Len(t, resp.Repos, 1)
	assert.Equal(t, rig.ref.String(), resp.Repos[0].RepoRef)
}

func TestHandleRepoSyncEnqueuesNewGitHubRefUnderLocalCache(t *testing.T) {
	rig := newHandlerTestRig(t)

	githubRef := repo.RepoRef{Backend: repo.BackendGitHub, Identity: "octo/widgets"}
	args, err := json.Marshal(RepoSyncRequest{RepoRef: githubRef.String(), Wait: false})
	require.NoError(t, err)

	result, err := rig.server.handleRepoSync(context.Background(), args)
	require.NoError(t, err)

	resp, ok := result.(RepoSyncResponse)
	require.True(t, ok)
	assert.Equal(t, githubRef.String(), resp.RepoRef)

	r, ok := rig.pool.Get(githubRef)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(rig.server.src.LocalCacheDir(), "octo_widgets"), r.DiskPath)

	rig.queue.Wait()
}

func TestHandleRepoSyncRejectsMissingRepoRef(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(RepoSyncRequest{RepoRef: ""})
	require.NoError(t, err)

	_, err = rig.server.handleRepoSync(context.Background(), args)
	require.Error(t, err)
}

func TestHandleRepoExplainSummarizesIndexedFile(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(ExplainRequest{FilePath: "greeter.go"})
	require.NoError(t, err)

	result, err := rig.server.handleRepoExplain(context.Background(), args)
	require.NoError(t, err)

	resp, ok := result.(ExplainResponse)
	require.True(t, ok)
	assert.NotEmpty(t, resp.Explanation)
	assert.NotEmpty(t, resp.Complexity)
	require.NotEmpty(t, resp.Examples)
	assert.Equal(t, "greeter.go", resp.Examples[0].FilePath)
}

func TestHandleRepoExplainUnindexedFileErrors(t *testing.T) {
	rig := newHandlerTestRig(t)

	args, err := json.Marshal(ExplainRequest{FilePath: "missing.go"})
	require.NoError(t, err)

	_, err = rig.server.handleRepoExplain(context.Background(), args)
	require.Error(t, err)
}
