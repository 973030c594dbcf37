package blobs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ID is the content identity of a blob: the SHA-256 digest of its bytes.
// Identical content always yields the same ID, which makes blob writes
// naturally idempotent.
type ID [sha256.Size]byte

// Sum computes the content identity of the given bytes.
func Sum(data []byte) ID {
	return sha256.Sum256(data)
}

// ParseID decodes a hex-encoded content identity.
func ParseID(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decode blob id: %w", err)
	}
	if len(raw) != sha256.Size {
		return id, fmt.Errorf("blob id must be %d bytes, got %d", sha256.Size, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}
