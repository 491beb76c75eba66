package gitsource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkLocalDiscoversFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "util.go"), []byte("package pkg\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("ignored/\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ignored"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored", "skip.go"), []byte("package ignored\n"), 0o644))

	entries, err := WalkLocal(dir)
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
		assert.Equal(t, []string{"head"}, e.Branches)
	}
	assert.Contains(t, paths, "main.go")
	assert.Contains(t, paths, filepath.Join("pkg", "util.go"))
	assert.NotContains(t, paths, filepath.Join("ignored", "skip.go"))
}

func TestWalkOpensRealGitRepoAndAppliesFileFilter(t *testing.T) {
	dir := initSimpleRepo(t)

	branchFilter, err := repo.CompileBranchFilter(repo.BranchFilterConfig{Kind: repo.BranchAll})
	require.NoError(t, err)
	fileFilter, err := repo.CompileFileFilter(repo.FileFilterConfig{Rules: []repo.FileFilterRule{
		{Kind: repo.ExcludeFile, Pattern: "pkg/util.go"},
	}})
	require.NoError(t, err)

	entries, err := Walk(dir, branchFilter, fileFilter)
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "main.go")
	assert.NotContains(t, paths, "pkg/util.go")
}

func TestWalkUnionsBranchesAndAlwaysIncludesHead(t *testing.T) {
	dir := initSimpleRepo(t)

	gitRepo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	headRef, err := gitRepo.Head()
	require.NoError(t, err)

	featureRef := plumbing.NewHashReference(plumbing.NewBranchReferenceName("feature"), headRef.Hash())
	require.NoError(t, gitRepo.Storer.SetReference(featureRef))

	branchFilter, err := repo.CompileBranchFilter(repo.BranchFilterConfig{Kind: repo.BranchAll})
	require.NoError(t, err)
	fileFilter, err := repo.CompileFileFilter(repo.FileFilterConfig{})
	require.NoError(t, err)

	entries, err := Walk(dir, branchFilter, fileFilter)
	require.NoError(t, err)

	var mainEntry *FileEntry
	for _, e := range entries {
		if e.Path == "main.go" {
			mainEntry = e
		}
	}
	require.NotNil(t, mainEntry)
	assert.Contains(t, mainEntry.Branches, "head", "HEAD branch is always present regardless of its underlying name")
	assert.Contains(t, mainEntry.Branches, "feature")
}

// initSimpleRepo creates a single-branch git repo fixture shared by the
// Walk tests above.
func initSimpleRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	gitRepo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := gitRepo.Worktree()
	require.NoError(t, err)

	for rel, content := range map[string]string{
		"main.go":     "package main\n",
		"pkg/util.go": "package pkg\n",
	} {
		full := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err := wt.Add(rel)
		require.NoError(t, err)
	}

	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()}
	_, err = wt.Commit("initial", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	return dir
}
