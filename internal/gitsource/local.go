package gitsource

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ferg-cod3s/conexus/internal/indexer"
)

// WalkLocal handles the no-.git fallback: a plain filesystem walk
// honoring .gitignore, with every file emitted under the synthetic
// "head" branch since there is no branch concept without git.
func WalkLocal(root string) ([]*FileEntry, error) {
	patterns := indexer.DefaultIgnorePatterns()
	if extra, err := indexer.LoadGitignore(filepath.Join(root, ".gitignore"), root); err == nil {
		patterns = append(patterns, extra...)
	}

	walker := indexer.NewFileWalker(maxBlobSize)
	var entries []*FileEntry
	err := walker.Walk(context.Background(), root, patterns, func(path string, info fs.FileInfo) error {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		entries = append(entries, &FileEntry{
			Path:     rel,
			Branches: []string{"head"},
			localPath: path,
		})
		return nil
	})
	return entries, err
}

func readLocalFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
