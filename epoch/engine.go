// Package epoch implements Component I: the state machine tying the
// chain watcher, dispatcher, aggregator, submitter and reward distributor
// together and owning the epoch lifecycle described in §4.I. Grounded on
// work/worker.go's worker struct - a mutex-guarded current task driven by
// an event-subscription loop - generalized from "new block" to "new
// proof snapshot" and widened with the five-state Idle/Open/Closing/
// Submitting/Rotating machine §4.I spells out explicitly (the teacher's
// own worker loop has no such named states, only implicit ones).
package epoch

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/minepool/coordinator/chain"
	"github.com/minepool/coordinator/nonce"
	"github.com/minepool/coordinator/proof"
	"github.com/minepool/coordinator/registry"
	"github.com/minepool/coordinator/reward"
	"github.com/minepool/coordinator/sharedstate"
	"github.com/minepool/coordinator/submit"
	"github.com/minepool/coordinator/telemetry"
)

// busCount mirrors the chain program's BUS_COUNT reward accounts (§4.F,
// §GLOSSARY "Bus"). The retrieved original source imports this constant
// from its on-chain program crate rather than defining it inline; 8 is
// that program's published bus count and is used here as the seam's
// documented default for the random fallback pick (§4.F step 1).
const busCount = 8

const (
	dispatchTickInterval  = time.Second
	rotationPollInterval  = time.Second
	closingHold           = time.Second
)

type phase int

const (
	phaseIdle phase = iota
	phaseOpen
	phaseClosing
	phaseSubmitting
	phaseRotating
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseOpen:
		return "open"
	case phaseClosing:
		return "closing"
	case phaseSubmitting:
		return "submitting"
	case phaseRotating:
		return "rotating"
	default:
		return "unknown"
	}
}

// Watcher is Component A's exposed surface: start the subscription and
// stream decoded snapshots. Satisfied by *chainwatch.Watcher.
type Watcher interface {
	Run(ctx context.Context)
	Snapshots() <-chan proof.Snapshot
}

// WorkDispatcher is Component D's exposed surface. Satisfied by
// *dispatch.Dispatcher.
type WorkDispatcher interface {
	Tick(challenge proof.Challenge, cutoffSeconds uint64, bestExists bool)
}

// TxSubmitter is Component F's exposed surface. Satisfied by
// *submit.Submitter.
type TxSubmitter interface {
	Submit(ctx context.Context, challenge proof.Challenge, best proof.Solution, bus chain.Bus) submit.Result
}

// RewardDistributor is Component G's exposed surface. Satisfied by
// *reward.Distributor.
type RewardDistributor interface {
	Distribute(ctx context.Context, poolID, challengeID int64, reward uint64, contributors []reward.Contributor)
}

// ChallengeLedger is the slice of Component H the engine needs to open an
// epoch. Satisfied by *store.Gateway.
type ChallengeLedger interface {
	InsertChallengeIfNew(ctx context.Context, poolID int64, challenge proof.Challenge) (id int64)
}

// Engine is Component I. It owns the single authoritative epoch State and
// drives it through the §4.I lifecycle; a new coordinator process is
// intended to run exactly one Engine (§1 Non-goals: not strongly
// consistent across replicas).
type Engine struct {
	// challengeID is read by httpapi's last-challenge-submissions handler
	// concurrently with the engine loop's writes in beginEpoch; it must
	// stay the struct's first field so sync/atomic's 64-bit alignment
	// guarantee for heap-allocated structs applies on 32-bit platforms.
	challengeID int64

	log *zap.SugaredLogger

	watcher     Watcher
	dispatcher  WorkDispatcher
	submitter   TxSubmitter
	distributor RewardDistributor
	reg         *registry.Registry
	allocator   *nonce.Allocator
	fee         *sharedstate.PriorityFee
	snapshot    *sharedstate.ProofSnapshot
	cursorCell  *sharedstate.NonceCursor
	gateway     ChallengeLedger

	poolID int64

	phase      phase
	current    atomic.Value // holds *State; swapped wholesale on rotation (§5)
	lastHashAt int64

	capturedBest         proof.Best
	capturedContributors map[proof.WalletPubkey]proof.SubmissionEntry

	randIntn func(int) int
}

// CurrentChallengeID returns the journal id of the epoch currently open,
// safe to call concurrently with the engine loop (httpapi's
// last-challenge-submissions endpoint reads this).
func (e *Engine) CurrentChallengeID() int64 {
	return atomic.LoadInt64(&e.challengeID)
}

// Config bundles the collaborators an Engine is built from.
type Config struct {
	Watcher     Watcher
	Dispatcher  WorkDispatcher
	Submitter   TxSubmitter
	Distributor RewardDistributor
	Registry    *registry.Registry
	Allocator   *nonce.Allocator
	Fee         *sharedstate.PriorityFee
	Snapshot    *sharedstate.ProofSnapshot
	Cursor      *sharedstate.NonceCursor
	Gateway     ChallengeLedger
	PoolID      int64
}

// New builds an idle Engine. It does not begin an epoch until Run
// observes the first proof snapshot.
func New(cfg Config, log *zap.SugaredLogger) *Engine {
	return &Engine{
		log:         log,
		watcher:     cfg.Watcher,
		dispatcher:  cfg.Dispatcher,
		submitter:   cfg.Submitter,
		distributor: cfg.Distributor,
		reg:         cfg.Registry,
		allocator:   cfg.Allocator,
		fee:         cfg.Fee,
		snapshot:    cfg.Snapshot,
		cursorCell:  cfg.Cursor,
		gateway:     cfg.Gateway,
		poolID:      cfg.PoolID,
		phase:       phaseIdle,
		randIntn:    rand.Intn,
	}
}

// getState returns the currently open epoch's State, or nil before the
// first epoch has begun.
func (e *Engine) getState() *State {
	s, _ := e.current.Load().(*State)
	return s
}

func (e *Engine) setState(s *State) {
	e.current.Store(s)
}

// Challenge implements aggregate.EpochAccessor: the challenge of the
// epoch currently open for submissions.
func (e *Engine) Challenge() proof.Challenge {
	s := e.getState()
	if s == nil {
		return proof.Challenge{}
	}
	return s.Challenge()
}

// PromoteOrRecord implements aggregate.EpochAccessor, delegating to the
// current epoch's State.
func (e *Engine) PromoteOrRecord(wallet proof.WalletPubkey, entry proof.SubmissionEntry) bool {
	s := e.getState()
	if s == nil {
		return false
	}
	return s.PromoteOrRecord(wallet, entry)
}

// Run drives the epoch lifecycle until ctx is canceled. It also starts
// the chain watcher and a pump that mirrors its snapshots into the shared
// ProofSnapshot cell, so every phase reads a consistent, lock-light view
// of the chain's current proof account.
func (e *Engine) Run(ctx context.Context) {
	go e.watcher.Run(ctx)
	go e.pumpSnapshots(ctx)

	for ctx.Err() == nil {
		switch e.phase {
		case phaseIdle:
			e.runIdle(ctx)
		case phaseOpen:
			e.runOpen(ctx)
		case phaseClosing:
			e.runClosing(ctx)
		case phaseSubmitting:
			e.runSubmitting(ctx)
		case phaseRotating:
			e.runRotating(ctx)
		}
	}
}

func (e *Engine) pumpSnapshots(ctx context.Context) {
	for {
		select {
		case snap := <-e.watcher.Snapshots():
			e.snapshot.Set(snap)
		case <-ctx.Done():
			return
		}
	}
}

// runIdle blocks until the first snapshot arrives, then opens the first
// epoch (§4.I Idle: "wait for first ProofSnapshot -> load/insert
// Challenge row -> Open").
func (e *Engine) runIdle(ctx context.Context) {
	ticker := time.NewTicker(dispatchTickInterval)
	defer ticker.Stop()
	for {
		if snap, ok := e.snapshot.Get(); ok {
			e.beginEpoch(ctx, snap)
			e.phase = phaseOpen
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// beginEpoch starts tracking a new challenge: it installs a fresh State,
// inserts the Challenge row if this is the first local observation, and
// resets the per-epoch bookkeeping that rotation must clear (§8 invariant
// 8).
func (e *Engine) beginEpoch(ctx context.Context, snap proof.Snapshot) {
	e.setState(NewState(snap.Challenge, time.Now()))
	id := e.gateway.InsertChallengeIfNew(ctx, e.poolID, snap.Challenge)
	atomic.StoreInt64(&e.challengeID, id)
	e.lastHashAt = snap.LastHashAt
	e.capturedBest = proof.Best{}
	e.capturedContributors = nil
	e.log.Infow("epoch opened", "challenge", snap.Challenge, "challenge_id", id)
}

// runOpen dispatches work to ready clients at ~1Hz and watches for cutoff
// (§4.D, §4.I Open).
func (e *Engine) runOpen(ctx context.Context) {
	ticker := time.NewTicker(dispatchTickInterval)
	defer ticker.Stop()
	challenge := e.getState().Challenge()

	for {
		select {
		case <-ticker.C:
			if snap, ok := e.snapshot.Get(); ok && snap.Challenge == challenge {
				e.lastHashAt = snap.LastHashAt
			}
			cutoff := proof.Cutoff(e.lastHashAt, time.Now())
			best := e.getState().Best()

			e.dispatcher.Tick(challenge, uint64(cutoff/time.Second), best.Solution != nil)
			e.cursorCell.Observe(e.allocator.Cursor())
			telemetry.EpochDuration.Update(time.Since(e.getState().StartedAt()).Milliseconds())
			telemetry.PriorityFeeLevel.Update(int64(e.fee.Get()))

			if cutoff <= 0 && best.Solution != nil {
				e.capturedBest = best
				e.capturedContributors = e.getState().Contributors()
				e.phase = phaseClosing
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// runClosing holds briefly to drain in-flight solutions before submission
// (§4.I: "held >= 1s to allow stragglers before Submitting").
func (e *Engine) runClosing(ctx context.Context) {
	timer := time.NewTimer(closingHold)
	defer timer.Stop()
	select {
	case <-timer.C:
		e.phase = phaseSubmitting
	case <-ctx.Done():
	}
}

// runSubmitting invokes Component F and, on success, Component G, then
// moves to Rotating regardless of outcome: an abandoned epoch waits for
// the chain to rotate the challenge on its own (§4.F, §4.I Submitting).
func (e *Engine) runSubmitting(ctx context.Context) {
	challenge := e.getState().Challenge()
	bus := chain.Bus{Index: e.randIntn(busCount)}

	res := e.submitter.Submit(ctx, challenge, *e.capturedBest.Solution, bus)
	if res.Confirmed {
		e.fee.StepDownOnSuccess()
		e.distributor.Distribute(ctx, e.poolID, e.CurrentChallengeID(), res.Event.Reward, contributorsFor(e.reg, e.capturedContributors))
		e.log.Infow("epoch mined", "challenge", challenge, "signature", res.Signature, "reward", res.Event.Reward)
	} else {
		e.log.Errorw("epoch abandoned after exhausting submit attempts", "challenge", challenge)
	}
	e.phase = phaseRotating
}

// runRotating polls the proof account until the chain reports a new
// challenge, then clears every per-epoch structure before reopening
// (§4.I Rotating, §8 invariant 8).
func (e *Engine) runRotating(ctx context.Context) {
	mined := e.getState().Challenge()
	ticker := time.NewTicker(rotationPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap, ok := e.snapshot.Get()
			if !ok || snap.Challenge == mined {
				continue
			}
			e.allocator.Reset()
			e.reg.ClearAssignments()
			e.cursorCell.Observe(0)
			e.beginEpoch(ctx, snap)
			e.phase = phaseOpen
			return
		case <-ctx.Done():
			return
		}
	}
}

// contributorsFor joins the per-epoch submission snapshot with live
// registry sessions so the distributor can notify connected miners
// (reward.Contributor.Addr/Connected).
func contributorsFor(reg *registry.Registry, entries map[proof.WalletPubkey]proof.SubmissionEntry) []reward.Contributor {
	out := make([]reward.Contributor, 0, len(entries))
	for wallet, entry := range entries {
		c := reward.Contributor{
			MinerID:    entry.MinerID,
			Difficulty: entry.Difficulty,
			Hashpower:  entry.Hashpower,
		}
		if session, ok := reg.GetByWallet(wallet); ok {
			c.Addr = session.Addr
			c.Connected = true
		}
		out = append(out, c)
	}
	return out
}
