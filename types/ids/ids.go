package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ID is a 32-byte array.
type ID [32]byte

// Empty is the zero-value ID (all zeros)
var Empty ID

// HexLen is the length of an ID rendered as hex.
const HexLen = 2 * len(Empty)

// NewID generates a new ID by hashing input bytes
func NewID(data []byte) ID {
	return ID(sha256.Sum256(data))
}

// FromString parses a 64-char hex string into an ID
func FromString(s string) (ID, error) {
	var id ID
	if len(s) != HexLen {
		return id, fmt.Errorf("id must be %d hex characters, got %d", HexLen, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

// String converts an ID back to a hex string
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsEmpty reports whether id is the all-zero ID.
func (id ID) IsEmpty() bool {
	return id == Empty
}

// Derive builds a collision-resistant identifier from content plus a random
// UUID, so two submissions with identical content still get distinct ids.
func Derive(content []byte) ID {
	salt := uuid.New()
	buf := make([]byte, 0, len(content)+len(salt))
	buf = append(buf, content...)
	buf = append(buf, salt[:]...)
	return NewID(buf)
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	return NewID(data).String()
}
