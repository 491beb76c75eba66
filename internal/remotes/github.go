package remotes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"
)

// GitHubBackend syncs a repo.Repository whose Ref.Backend is
// BackendGitHub: clone it to diskPath on first sync, fetch on every
// subsequent one. Ref.Identity is "owner/name".
type GitHubBackend struct {
	creds *Store
}

func NewGitHubBackend(creds *Store) *GitHubBackend {
	return &GitHubBackend{creds: creds}
}

func (b *GitHubBackend) Sync(ctx context.Context, ref repo.RepoRef, diskPath string, progress io.Writer) error {
	owner, name, err := splitOwnerRepo(ref.Identity)
	if err != nil {
		return err
	}

	token, err := b.creds.Token(ctx, repo.BackendGitHub)
	if err != nil && !errors.Is(err, ErrNoCredential) {
		return err
	}

	client := githubClient(ctx, token)
	if _, _, err := client.Repositories.Get(ctx, owner, name); err != nil {
		if isNotFound(err) {
			return ErrRemoteNotFound
		}
		return fmt.Errorf("check remote existence: %w", err)
	}

	auth := &githttp.BasicAuth{Username: "x-access-token", Password: token}
	url := fmt.Sprintf("https://github.com/%s/%s.git", owner, name)

	if _, err := os.Stat(diskPath); errors.Is(err, os.ErrNotExist) {
		_, err := git.PlainCloneContext(ctx, diskPath, false, &git.CloneOptions{
			URL:      url,
			Auth:     authOrNil(auth, token),
			Progress: progress,
		})
		if err != nil {
			return fmt.Errorf("clone: %w", err)
		}
		return nil
	}

	wt, err := git.PlainOpen(diskPath)
	if err != nil {
		return fmt.Errorf("open existing checkout: %w", err)
	}
	err = wt.FetchContext(ctx, &git.FetchOptions{
		Auth:     authOrNil(auth, token),
		Progress: progress,
		Tags:     git.AllTags,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

func authOrNil(auth transport.AuthMethod, token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return auth
}

func githubClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return github.NewClient(nil)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

func splitOwnerRepo(identity string) (owner, name string, err error) {
	parts := strings.SplitN(identity, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github repo identity must be owner/name, got %q", identity)
	}
	return parts[0], parts[1], nil
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == 404
	}
	return false
}
