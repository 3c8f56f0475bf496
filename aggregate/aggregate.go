// Package aggregate implements Component E: it validates and records
// client best-solution submissions against the current epoch, enforcing
// the nonce-range/difficulty-floor invariants and promoting the per-epoch
// best. Grounded on Eacred-eacrpool/pool-client.go's submission
// verification and weighted-share accounting flow.
package aggregate

import (
	"context"
	"crypto/ed25519"

	"go.uber.org/zap"

	"github.com/minepool/coordinator/pow"
	"github.com/minepool/coordinator/proof"
	"github.com/minepool/coordinator/registry"
	"github.com/minepool/coordinator/telemetry"
	"github.com/minepool/coordinator/wireproto"
)

// EpochAccessor is the epoch engine's exposed surface for the aggregator:
// the current challenge and the atomic promote-or-record operation on the
// shared submission table (§5: the writer-side critical section).
type EpochAccessor interface {
	Challenge() proof.Challenge
	PromoteOrRecord(wallet proof.WalletPubkey, entry proof.SubmissionEntry) (promoted bool)
}

// SubmissionRecorder persists an accepted submission, retrying until
// durable (§4.H).
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, minerID int64, challenge proof.Challenge, nonce uint64, difficulty uint32)
}

// Notifier sends a session a human-readable status line.
type Notifier interface {
	SendTextTo(addr string, text string)
}

// Aggregator implements Component E.
type Aggregator struct {
	registry *registry.Registry
	verifier pow.Verifier
	epoch    EpochAccessor
	store    SubmissionRecorder
	log      *zap.SugaredLogger
}

// New builds an Aggregator.
func New(reg *registry.Registry, verifier pow.Verifier, epoch EpochAccessor, store SubmissionRecorder, log *zap.SugaredLogger) *Aggregator {
	return &Aggregator{registry: reg, verifier: verifier, epoch: epoch, store: store, log: log}
}

var _ interface {
	Submit(addr string, bs wireproto.BestSolution)
} = (*Aggregator)(nil)

// Submit implements §4.E's seven-step validation and recording pipeline.
func (a *Aggregator) Submit(addr string, bs wireproto.BestSolution) {
	session, ok := a.registry.Get(addr)
	if !ok {
		return
	}

	window, ok := session.AssignedRange()
	if !ok || !window.Contains(bs.Solution.Nonce) {
		telemetry.SubmissionsRejected.Inc(1)
		a.log.Errorw("dropped submission outside assigned range", "addr", addr, "nonce", bs.Solution.Nonce)
		return
	}

	if bs.WalletPubkey != session.WalletPubkey {
		telemetry.SubmissionsRejected.Inc(1)
		a.log.Errorw("dropped submission signed by a wallet other than the session's", "addr", addr)
		return
	}
	msg := wireproto.SolutionMessage(bs)
	if !ed25519.Verify(session.WalletPubkey[:], msg[:], bs.Signature) {
		telemetry.SubmissionsRejected.Inc(1)
		a.registry.SendTextTo(addr, "Invalid signature on submission.")
		a.log.Errorw("dropped submission with bad signature", "addr", addr)
		return
	}

	challenge := a.epoch.Challenge()
	if !a.verifier.Verify(challenge, bs.Solution) {
		telemetry.SubmissionsRejected.Inc(1)
		a.registry.SendTextTo(addr, "Invalid solution, does not satisfy the current challenge.")
		a.log.Errorw("dropped invalid solution", "addr", addr)
		return
	}

	difficulty := a.verifier.Difficulty(bs.Solution.Digest)
	if difficulty < proof.MinDifficulty {
		telemetry.SubmissionsRejected.Inc(1)
		a.log.Errorw("dropped low-difficulty submission", "addr", addr, "difficulty", difficulty)
		return
	}

	hashpower := proof.Hashpower(difficulty)
	entry := proof.SubmissionEntry{
		MinerID:    session.MinerID,
		Solution:   bs.Solution,
		Difficulty: difficulty,
		Hashpower:  hashpower,
	}
	a.epoch.PromoteOrRecord(session.WalletPubkey, entry)
	telemetry.SubmissionsAccepted.Inc(1)

	a.store.RecordSubmission(context.Background(), session.MinerID, challenge, bs.Solution.Nonce, difficulty)
}
