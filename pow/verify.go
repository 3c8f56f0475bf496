// Package pow defines the seam to the external proof-of-work library.
// Per design, solution hashing happens on the client; the coordinator only
// verifies a submitted (digest, nonce) pair against the epoch's challenge
// and derives its difficulty. A reference implementation is bundled so the
// coordinator is runnable without the real external library, but any
// production deployment is expected to supply its own Verifier grounded in
// the actual on-chain hash function.
package pow

import (
	"crypto/sha256"
	"encoding/binary"
	"math/bits"

	"github.com/minepool/coordinator/proof"
)

// Verifier validates a client-submitted solution and measures its
// difficulty. Implementations must be safe for concurrent use.
type Verifier interface {
	// Verify reports whether digest/nonce is a valid solution for challenge.
	Verify(challenge proof.Challenge, solution proof.Solution) bool

	// Difficulty returns the leading-zero-bit count of digest (or an
	// equivalent measure defined by the external library).
	Difficulty(digest [16]byte) uint32
}

// Default is a reference Verifier: digest = truncated sha256(challenge ||
// nonce), difficulty = its leading zero bits. It exists only so the
// coordinator builds and runs end-to-end without the real on-chain PoW
// library wired in.
type Default struct{}

var _ Verifier = Default{}

func (Default) Verify(challenge proof.Challenge, solution proof.Solution) bool {
	want := digestFor(challenge, solution.Nonce)
	return want == solution.Digest
}

func (Default) Difficulty(digest [16]byte) uint32 {
	var count uint32
	for _, b := range digest {
		if b == 0 {
			count += 8
			continue
		}
		count += uint32(bits.LeadingZeros8(b))
		break
	}
	return count
}

func digestFor(challenge proof.Challenge, nonce uint64) [16]byte {
	h := sha256.New()
	h.Write(challenge[:])
	var nonceBytes [8]byte
	binary.LittleEndian.PutUint64(nonceBytes[:], nonce)
	h.Write(nonceBytes[:])
	sum := h.Sum(nil)
	var out [16]byte
	copy(out[:], sum[:16])
	return out
}
