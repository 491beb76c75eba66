package remotes

import (
	"context"
	"testing"
	"time"

	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitOwnerRepo(t *testing.T) {
	owner, name, err := splitOwnerRepo("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", name)

	_, _, err = splitOwnerRepo("acme")
	assert.Error(t, err)

	_, _, err = splitOwnerRepo("/widgets")
	assert.Error(t, err)
}

func TestCredentialStoreSaveLoadRoundTrip(t *testing.T) {
	src := statestore.NewSource(t.TempDir())
	store := NewStore(src)

	creds := map[repo.Backend]Credential{
		repo.BackendGitHub: {Backend: repo.BackendGitHub, AccessToken: "tok-123"},
	}
	require.NoError(t, store.Save(creds))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", loaded[repo.BackendGitHub].AccessToken)
}

func TestTokenReturnsErrNoCredentialWhenUnconfigured(t *testing.T) {
	src := statestore.NewSource(t.TempDir())
	store := NewStore(src)

	_, err := store.Token(context.Background(), repo.BackendGitHub)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestTokenRejectsExpiredOAuthWithoutRefresher(t *testing.T) {
	src := statestore.NewSource(t.TempDir())
	store := NewStore(src)
	require.NoError(t, store.Save(map[repo.Backend]Credential{
		repo.BackendGitHub: {
			Backend:      repo.BackendGitHub,
			AccessToken:  "stale",
			RefreshToken: "refresh-me",
			Expiry:       time.Now().Add(-time.Hour),
		},
	}))

	_, err := store.Token(context.Background(), repo.BackendGitHub)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestTokenReturnsFreshOAuthAccessToken(t *testing.T) {
	src := statestore.NewSource(t.TempDir())
	store := NewStore(src)
	require.NoError(t, store.Save(map[repo.Backend]Credential{
		repo.BackendGitHub: {
			Backend:     repo.BackendGitHub,
			AccessToken: "still-good",
			Expiry:      time.Now().Add(time.Hour),
		},
	}))

	tok, err := store.Token(context.Background(), repo.BackendGitHub)
	require.NoError(t, err)
	assert.Equal(t, "still-good", tok)
}

func TestRegistryResolvesLocalAndGitHub(t *testing.T) {
	gh := NewGitHubBackend(NewStore(statestore.NewSource(t.TempDir())))
	reg := NewRegistry(gh)

	b, ok := reg.For(repo.BackendLocal)
	require.True(t, ok)
	assert.IsType(t, &LocalBackend{}, b)

	b, ok = reg.For(repo.BackendGitHub)
	require.True(t, ok)
	assert.Same(t, gh, b)
}

func TestRegistryWithoutGitHubBackendConfigured(t *testing.T) {
	reg := NewRegistry(nil)
	_, ok := reg.For(repo.BackendGitHub)
	assert.False(t, ok)
}

func TestLocalBackendSyncIsNoOp(t *testing.T) {
	var lb LocalBackend
	ref := repo.RepoRef{Backend: repo.BackendLocal, Identity: "/tmp/whatever"}
	err := lb.Sync(context.Background(), ref, "/tmp/whatever", nil)
	assert.NoError(t, err)
}
