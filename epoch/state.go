package epoch

import (
	"sync"
	"time"

	"github.com/minepool/coordinator/proof"
)

// State wraps one epoch's proof.EpochState behind a mutex, matching §5's
// first named critical section: readers (dispatcher, aggregator reads)
// take a plain lock here rather than a shared one, since every access is
// brief, so they do not overlap each other; the single writer path
// (PromoteOrRecord) is serialized per wallet by virtue of taking the same
// lock. The engine swaps the *State pointer wholesale
// on rotation rather than mutating challenge/startedAt in place.
type State struct {
	mu    sync.Mutex
	inner *proof.EpochState
}

// NewState starts a fresh, empty epoch for challenge at startedAt.
func NewState(challenge proof.Challenge, startedAt time.Time) *State {
	return &State{inner: proof.NewEpochState(challenge, startedAt)}
}

// Challenge returns the epoch's challenge.
func (s *State) Challenge() proof.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Challenge
}

// StartedAt returns when this epoch began.
func (s *State) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.StartedAt
}

// Best returns the current best solution recorded for the epoch.
func (s *State) Best() proof.Best {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Best
}

// PromoteOrRecord implements the aggregate.EpochAccessor write path: it
// unconditionally overwrites wallet's entry (§9 last-writer-wins) and
// promotes best only on strictly greater difficulty (§4.E step 6, §8
// invariant 4: best is monotone).
func (s *State) PromoteOrRecord(wallet proof.WalletPubkey, entry proof.SubmissionEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.Submissions[wallet] = entry
	if entry.Difficulty <= s.inner.Best.Difficulty {
		return false
	}
	sol := entry.Solution
	s.inner.Best = proof.Best{Solution: &sol, Difficulty: entry.Difficulty}
	return true
}

// Contributors returns a snapshot copy of the per-wallet submission table,
// taken by the caller (the engine, at cutoff) so later-arriving
// submissions cannot retroactively change attribution for an in-flight
// mine transaction (§5 ordering guarantee).
func (s *State) Contributors() map[proof.WalletPubkey]proof.SubmissionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[proof.WalletPubkey]proof.SubmissionEntry, len(s.inner.Submissions))
	for wallet, entry := range s.inner.Submissions {
		out[wallet] = entry
	}
	return out
}
