// Package statestore persists the repo pool, credentials, and schema
// version to the index directory, and reconciles the pool against the
// filesystem at startup.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// maxWriteAttempts bounds retrying an atomic write against a
// concurrent writer racing for the same temp file name; in practice a
// single process only ever has one writer per path, but a second
// conexus process pointed at the same index dir is not impossible.
const maxWriteAttempts = 10

// PrettyWriteFile marshals v as indented JSON and writes it to path
// atomically: write to a sibling temp file, then rename over the
// target, so a reader never observes a half-written file and a crash
// mid-write never corrupts the previous good copy.
func PrettyWriteFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
		if err != nil {
			lastErr = err
			continue
		}
		tmpPath := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			lastErr = err
			continue
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpPath)
			lastErr = err
			continue
		}
		if err := os.Rename(tmpPath, path); err != nil {
			os.Remove(tmpPath)
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("write %s after %d attempts: %w", path, maxWriteAttempts, lastErr)
}

// ReadFile reads and unmarshals JSON from path into v.
func ReadFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ReadFileOrDefault reads path into v, leaving v at its zero value
// (and returning nil) if the file simply doesn't exist yet — the
// common case on first run.
func ReadFileOrDefault(path string, v interface{}) error {
	err := ReadFile(path, v)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
