// Package sharedstate holds the §5 single-cell owners: the priority fee,
// a mirror of the nonce cursor, and the latest proof snapshot. Each is
// guarded in-process by a mutex for the hot path and mirrored to Redis
// (github.com/go-redis/redis/v7, a teacher go.mod dependency) so a second
// coordinator replica could observe them, even though only one coordinator
// is ever active at a time (§1 Non-goals: not strongly consistent across
// replicas - the mirror is for observability/readiness, not active-active
// operation). Grounded on the teacher's common/cache.go mutex-guarded
// in-memory cache pattern.
package sharedstate

import (
	"sync"

	"github.com/go-redis/redis/v7"
)

const (
	// MaxPriorityFee is the ceiling enforced by the step-up/step-down
	// policy (§8 invariant 9).
	MaxPriorityFee uint64 = 1_000_000

	feeStepUp = 15_000

	redisKeyPriorityFee = "minepool:priority_fee"
)

// PriorityFee is the shared compute-unit price cell. Escalated by the
// submitter on failed attempts, stepped down by the epoch engine on a
// confirmed mine.
type PriorityFee struct {
	mu    sync.Mutex
	value uint64
	redis *redis.Client
}

// NewPriorityFee builds a cell starting at initial, optionally mirrored to
// redisClient (nil disables mirroring, e.g. in tests).
func NewPriorityFee(initial uint64, redisClient *redis.Client) *PriorityFee {
	if initial > MaxPriorityFee {
		initial = MaxPriorityFee
	}
	return &PriorityFee{value: initial, redis: redisClient}
}

// Get returns the current fee.
func (f *PriorityFee) Get() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// StepUp escalates the fee by feeStepUp, saturating at MaxPriorityFee -
// called by the submitter after every failed send attempt.
func (f *PriorityFee) StepUp() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value += feeStepUp
	if f.value > MaxPriorityFee {
		f.value = MaxPriorityFee
	}
	f.mirror()
	return f.value
}

// StepDownOnSuccess applies the §4.F tiered relaxation on a confirmed
// mine: -1,000 above 20,000; -5,000 at or above 50,000; -10,000 at or
// above 100,000; floored at zero.
func (f *PriorityFee) StepDownOnSuccess() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.value >= 100_000:
		f.value = saturatingSub(f.value, 10_000)
	case f.value >= 50_000:
		f.value = saturatingSub(f.value, 5_000)
	case f.value > 20_000:
		f.value = saturatingSub(f.value, 1_000)
	}
	f.mirror()
	return f.value
}

func saturatingSub(v, d uint64) uint64 {
	if d > v {
		return 0
	}
	return v - d
}

func (f *PriorityFee) mirror() {
	if f.redis == nil {
		return
	}
	f.redis.Set(redisKeyPriorityFee, f.value, 0)
}
