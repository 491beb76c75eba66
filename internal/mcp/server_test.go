package mcp

import (
	"encoding/json"
	"testing"

	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, pool *repo.Pool) *Server {
	t.Helper()
	return NewServer(nil, nil, t.TempDir(), pool, nil, nil, statestore.NewSource(t.TempDir()), nil, nil, nil, nil, nil)
}

func TestServerHandleToolsList(t *testing.T) {
	s := newTestServer(t, repo.NewPool())
	result, err := s.Handle("tools/list", nil)
	require.NoError(t, err)

	body, ok := result.(map[string]interface{})
	require.True(t, ok)
	tools, ok := body["tools"].([]ToolDefinition)
	require.True(t, ok)
	assert.Len(t, tools, 6)
}

func TestServerHandleResourcesList(t *testing.T) {
	s := newTestServer(t, repo.NewPool())
	result, err := s.Handle("resources/list", nil)
	require.NoError(t, err)

	body, ok := result.(map[string]interface{})
	require.True(t, ok)
	resources, ok := body["resources"].([]ResourceDefinition)
	require.True(t, ok)
	require.Len(t, resources, 1)
	assert.Equal(t, "engine://files/", resources[0].URI)
}

func TestServerHandleResourcesRead(t *testing.T) {
	s := newTestServer(t, repo.NewPool())
	params, err := json.Marshal(map[string]string{"uri": "engine://files/foo.go"})
	require.NoError(t, err)

	result, err := s.Handle("resources/read", params)
	require.NoError(t, err)
	body, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, body["contents"])
}

func TestServerHandleUnknownMethod(t *testing.T) {
	s := newTestServer(t, repo.NewPool())
	_, err := s.Handle("bogus/method", nil)
	require.Error(t, err)
}

func TestServerHandleToolsCallUnknownTool(t *testing.T) {
	s := newTestServer(t, repo.NewPool())
	params, err := json.Marshal(ToolCallRequest{Name: "repo.nonexistent", Arguments: json.RawMessage(`{}`)})
	require.NoError(t, err)

	_, err = s.Handle("tools/call", params)
	require.Error(t, err)
}

func TestServerHandleToolsCallRepoList(t *testing.T) {
	pool := repo.NewPool()
	ref := repo.RepoRef{Backend: repo.BackendLocal, Identity: "/tmp/example"}
	pool.Entry(ref, func() *repo.Repository { return repo.NewRepository(ref, "/tmp/example") })

	s := newTestServer(t, pool)
	params, err := json.Marshal(ToolCallRequest{Name: ToolRepoList, Arguments: json.RawMessage(`{}`)})
	require.NoError(t, err)

	result, err := s.Handle("tools/call", params)
	require.NoError(t, err)
	resp, ok := result.(RepoListResponse)
	require.True(t, ok)
	require.Len(t, resp.Repos, 1)
	assert.Equal(t, ref.String(), resp.Repos[0].RepoRef)
}
