// Package proof holds the core value types of the mining pool coordinator:
// the on-chain proof snapshot, the per-epoch submission table, and the
// pure arithmetic (hashpower weighting, reward splitting) that the rest of
// the coordinator is built on.
package proof

import "time"

const (
	// ChallengeLen is the width of the on-chain challenge identifying an epoch.
	ChallengeLen = 32

	// MinDifficulty is the lowest difficulty a submission may carry to be
	// recorded or rewarded.
	MinDifficulty uint32 = 8

	// MinHashpower is the hashpower weight assigned at MinDifficulty.
	MinHashpower uint64 = 5

	// MaxHashpower caps the influence of any single high-difficulty find.
	MaxHashpower uint64 = 81_920

	// NonceWindowWidth is the width of a single allocated nonce range.
	NonceWindowWidth uint64 = 4_000_000

	// EpochSeconds is the nominal lifetime of a challenge before cutoff.
	EpochSeconds = 60
)

// EpochDuration is EpochSeconds as a time.Duration.
const EpochDuration = EpochSeconds * time.Second

// Challenge is the 32-byte epoch identifier supplied by the chain program.
type Challenge [ChallengeLen]byte

// WalletPubkey identifies a miner's on-chain wallet.
type WalletPubkey [32]byte

// Snapshot is a decoded on-chain proof account update.
type Snapshot struct {
	Challenge  Challenge
	Balance    uint64
	LastHashAt int64
}

// Solution is a client's proposed proof-of-work answer.
type Solution struct {
	Digest [16]byte
	Nonce  uint64
}

// SubmissionEntry is one wallet's latest accepted submission within an epoch.
type SubmissionEntry struct {
	MinerID    int64
	Solution   Solution
	Difficulty uint32
	Hashpower  uint64
}

// Best is the highest-difficulty solution recorded so far in the epoch.
type Best struct {
	Solution   *Solution
	Difficulty uint32
}

// EpochState is the process-wide, single-instance state of the current
// challenge: the running best solution and the per-wallet submission table
// it was built from. Access must be serialized by the owner (see the
// epoch package); this type carries no locking of its own.
type EpochState struct {
	Challenge   Challenge
	StartedAt   time.Time
	Best        Best
	Submissions map[WalletPubkey]SubmissionEntry
	NonceCursor uint64
}

// NewEpochState starts a fresh, empty epoch for challenge at startedAt.
func NewEpochState(challenge Challenge, startedAt time.Time) *EpochState {
	return &EpochState{
		Challenge:   challenge,
		StartedAt:   startedAt,
		Submissions: make(map[WalletPubkey]SubmissionEntry),
	}
}

// Cutoff returns the time remaining before the epoch must submit, clamped
// to zero. lastHashAt is the chain-reported timestamp of the epoch's last
// accepted hash.
func Cutoff(lastHashAt int64, now time.Time) time.Duration {
	deadline := time.Unix(lastHashAt, 0).Add(EpochDuration)
	remaining := deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
