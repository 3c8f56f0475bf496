package nonce

import (
	"sync"
	"testing"

	"github.com/minepool/coordinator/proof"
)

// Invariant 1: within one epoch, allocated ranges are pairwise disjoint and
// contiguous from zero.
func TestAllocateDisjointAndContiguous(t *testing.T) {
	var a Allocator
	var prevHi uint64
	for i := 0; i < 10; i++ {
		w := a.Allocate()
		if w.Lo != prevHi {
			t.Fatalf("window %d: Lo=%d, want %d", i, w.Lo, prevHi)
		}
		if w.Hi-w.Lo != proof.NonceWindowWidth {
			t.Fatalf("window %d width = %d, want %d", i, w.Hi-w.Lo, proof.NonceWindowWidth)
		}
		prevHi = w.Hi
	}
}

func TestAllocateConcurrentStillDisjoint(t *testing.T) {
	var a Allocator
	const n = 200
	windows := make([]Window, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			windows[i] = a.Allocate()
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, w := range windows {
		if seen[w.Lo] {
			t.Fatalf("duplicate window start %d", w.Lo)
		}
		seen[w.Lo] = true
	}
}

func TestResetReturnsToZero(t *testing.T) {
	var a Allocator
	a.Allocate()
	a.Allocate()
	a.Reset()
	if c := a.Cursor(); c != 0 {
		t.Fatalf("Cursor() = %d after Reset, want 0", c)
	}
	w := a.Allocate()
	if w.Lo != 0 {
		t.Fatalf("first window after reset Lo = %d, want 0", w.Lo)
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{Lo: 0, Hi: proof.NonceWindowWidth}
	if !w.Contains(500) {
		t.Fatal("expected 500 in [0, width)")
	}
	if w.Contains(proof.NonceWindowWidth + 1) {
		t.Fatal("expected nonce past window to be rejected")
	}
}
