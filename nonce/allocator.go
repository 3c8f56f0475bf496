// Package nonce implements Component C: a single monotonic cursor handing
// out disjoint, fixed-width nonce windows within an epoch.
package nonce

import (
	"sync"

	"github.com/minepool/coordinator/proof"
)

// Window is a half-open nonce range [Lo, Hi) assigned to one client.
type Window struct {
	Lo, Hi uint64
}

// Contains reports whether n falls within the window.
func (w Window) Contains(n uint64) bool {
	return n >= w.Lo && n < w.Hi
}

// Allocator hands out disjoint, contiguous windows of proof.NonceWindowWidth
// starting from zero, monotonically, until Reset.
type Allocator struct {
	mu     sync.Mutex
	cursor uint64
}

// Allocate returns the next window and advances the cursor.
func (a *Allocator) Allocate() Window {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := Window{Lo: a.cursor, Hi: a.cursor + proof.NonceWindowWidth}
	a.cursor = w.Hi
	return w
}

// Reset returns the cursor to zero, as happens on epoch rotation.
func (a *Allocator) Reset() {
	a.mu.Lock()
	a.cursor = 0
	a.mu.Unlock()
}

// Cursor returns the current cursor value.
func (a *Allocator) Cursor() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}
