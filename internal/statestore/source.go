package statestore

import "path/filepath"

// Source resolves the on-disk layout of one index directory: the repo
// pool, credential store, schema-version marker, and the local-clone
// cache directory non-local repos get checked out into.
type Source struct {
	IndexDir string
}

func NewSource(indexDir string) Source {
	return Source{IndexDir: indexDir}
}

func (s Source) StateFile() string       { return filepath.Join(s.IndexDir, "repo_state.json") }
func (s Source) CredentialsFile() string { return filepath.Join(s.IndexDir, "credentials.json") }
func (s Source) VersionFile() string     { return filepath.Join(s.IndexDir, "version.json") }
func (s Source) LocalCacheDir() string   { return filepath.Join(s.IndexDir, "local_cache") }
func (s Source) DatabasePath() string    { return filepath.Join(s.IndexDir, "conexus.db") }

// RelativePath maps a repo's disk path under LocalCacheDir back to the
// relative form used when persisting/displaying it, falling back to
// the absolute path for repos that live outside the cache dir (i.e.
// locally-sourced repos that were never cloned by us).
func (s Source) RelativePath(diskPath string) string {
	rel, err := filepath.Rel(s.LocalCacheDir(), diskPath)
	if err != nil || len(rel) >= 2 && rel[:2] == ".." {
		return diskPath
	}
	return rel
}
