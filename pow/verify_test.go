package pow

import (
	"testing"

	"github.com/minepool/coordinator/proof"
)

func TestDefaultVerifyRoundTrip(t *testing.T) {
	var challenge proof.Challenge
	copy(challenge[:], []byte("test-challenge-bytes-32-long!!!"))

	var v Default
	var found proof.Solution
	ok := false
	for n := uint64(0); n < 200_000; n++ {
		d := digestFor(challenge, n)
		if v.Difficulty(d) >= proof.MinDifficulty {
			found = proof.Solution{Digest: d, Nonce: n}
			ok = true
			break
		}
	}
	if !ok {
		t.Fatal("did not find a qualifying nonce in search budget")
	}
	if !v.Verify(challenge, found) {
		t.Fatal("Verify rejected a solution it generated itself")
	}

	tampered := found
	tampered.Nonce++
	if v.Verify(challenge, tampered) {
		t.Fatal("Verify accepted a solution with a mismatched nonce")
	}
}

func TestDifficultyAllZero(t *testing.T) {
	var v Default
	var digest [16]byte
	if got := v.Difficulty(digest); got != 128 {
		t.Fatalf("Difficulty(all-zero) = %d, want 128", got)
	}
}
