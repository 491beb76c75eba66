package cache

import (
	"encoding/hex"

	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// chunkID derives a stable identifier for a chunk's text by hashing it
// with BLAKE3 and slicing bytes [16:32) of the digest directly into a
// UUID. Slicing rather than re-hashing keeps the derivation a pure
// function of the content with no extra allocation beyond the hash
// itself; bytes 16:32 (not 0:16) are used so that a future caller
// hashing the same content for a different purpose with bytes [0:16)
// doesn't collide with this ID space.
func chunkID(content []byte) string {
	digest := blake3.Sum256(content)
	var idBytes [16]byte
	copy(idBytes[:], digest[16:32])
	id, err := uuid.FromBytes(idBytes[:])
	if err != nil {
		// uuid.FromBytes only fails on wrong-length input; idBytes is
		// always exactly 16 bytes.
		panic(err)
	}
	return id.String()
}

// contentHash hashes file content for the file cache's staleness
// check. Hex-encoded rather than sliced into a UUID since this value
// is only ever compared for equality, never used as a lookup key into
// another keyspace.
func contentHash(content []byte) string {
	digest := blake3.Sum256(content)
	return hex.EncodeToString(digest[:])
}
