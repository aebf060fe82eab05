// Package cache provides the expansion cache, file content hashing and the
// dependency tracking used to order and invalidate multi-file expansion.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// FileHasher computes the two hashes the cache keys on. File fingerprints
// only detect edits between builds and use xxhash; expansion keys must not
// collide across a compilation and use SHA-256.
type FileHasher struct{}

// NewFileHasher creates a new file hasher
func NewFileHasher() *FileHasher {
	return &FileHasher{}
}

// HashFile fingerprints the contents of the file at path
func (fh *FileHasher) HashFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "hash %s", path)
	}
	return fh.HashContent(content), nil
}

// HashContent fingerprints content as 16 hex digits
func (fh *FileHasher) HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

// ExpansionKey is the cache key of one expansion: the macro kind and name plus
// the exact original text of the marker. Each part is length-prefixed.
func (fh *FileHasher) ExpansionKey(kind, name, originalText string) string {
	h := sha256.New()
	var n [binary.MaxVarintLen64]byte
	for _, part := range []string{kind, name, originalText} {
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(part)))])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
