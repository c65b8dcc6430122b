package lntypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PreimageSize of array used to store preimages.
const PreimageSize = 32

// Preimage is the preimage of the hashlock used in an HTLC, the secret `s`
// of spec.md's glossary: `hashlock = H(secret)`.
type Preimage [PreimageSize]byte

// MakePreimage constructs a new Preimage from a byte slice, asserting that
// it has the right length.
func MakePreimage(newPreimage []byte) (Preimage, error) {
	var preimage Preimage
	if len(newPreimage) != PreimageSize {
		return preimage, fmt.Errorf("invalid preimage length of %v, "+
			"expected %v", len(newPreimage), PreimageSize)
	}
	copy(preimage[:], newPreimage)

	return preimage, nil
}

// Hash returns the hashlock this preimage resolves, H(secret) under the
// deployment's fixed hash function (SHA-256).
func (p Preimage) Hash() Hash {
	return Hash(sha256.Sum256(p[:]))
}

// Matches returns true if this preimage hashes to the given hashlock.
func (p Preimage) Matches(hash Hash) bool {
	return p.Hash() == hash
}

// String returns the hex-encoded preimage.
func (p Preimage) String() string {
	return hex.EncodeToString(p[:])
}
