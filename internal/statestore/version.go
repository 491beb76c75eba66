package statestore

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// schemaFields is every on-disk field shape that the text index, the
// vector store, and the file/chunk caches depend on. Changing any of
// these (adding/removing/retyping a column, changing the chunk ID
// derivation) must bump this list so IndexVersionMismatch forces a
// clean rebuild instead of serving stale or malformed rows.
var schemaFields = []string{
	"documents.id:string",
	"documents.content:string",
	"documents.vector:[]float32",
	"documents.metadata:json",
	"documents_fts.tokenize:trigram",
	"file_cache.repo_ref:string",
	"file_cache.file_path:string",
	"file_cache.content_hash:string",
	"file_cache.branches:json",
	"chunk_cache.id:blake3[16:32]",
}

type versionFile struct {
	SchemaHash string `json:"schema_hash"`
}

// CurrentSchemaVersion hashes schemaFields with BLAKE3 into a stable
// identifier for the on-disk layout this binary expects.
func CurrentSchemaVersion() string {
	h := blake3.New(32, nil)
	for _, f := range schemaFields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IndexVersionMismatch reports whether the version file on disk
// (if any) disagrees with CurrentSchemaVersion. A missing file is not
// a mismatch — that's simply the first run.
func IndexVersionMismatch(src Source) (bool, error) {
	var v versionFile
	if err := ReadFileOrDefault(src.VersionFile(), &v); err != nil {
		return false, err
	}
	if v.SchemaHash == "" {
		return false, nil
	}
	return v.SchemaHash != CurrentSchemaVersion(), nil
}

// SaveIndexVersion records the current schema version to disk.
func SaveIndexVersion(src Source) error {
	return PrettyWriteFile(src.VersionFile(), versionFile{SchemaHash: CurrentSchemaVersion()})
}
