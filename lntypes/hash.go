package lntypes

import (
	"encoding/hex"
	"fmt"
)

// HashSize is the size in bytes of the hashes used in this package.
const HashSize = 32

// Hash is a 32-byte hash, typically the SHA-256 hash of a Preimage.
type Hash [HashSize]byte

// String returns the hex-encoded representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MakeHash constructs a new Hash from a byte slice. An error is returned if
// the slice doesn't have the right length.
func MakeHash(newHash []byte) (Hash, error) {
	var hash Hash
	if len(newHash) != HashSize {
		return hash, fmt.Errorf("invalid hash length of %v, "+
			"expected %v", len(newHash), HashSize)
	}
	copy(hash[:], newHash)

	return hash, nil
}
