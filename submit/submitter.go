// Package submit implements Component F: at cutoff, builds and signs the
// mine transaction, submits it with retry/backoff and adaptive priority
// fee, and hands the confirmed reward event off to the reward
// distributor. Grounded on ranger/proofreplicator.go's sign-and-send
// flow, generalized from a direct peer send to the coordinator's
// chain.Client seam and widened with the §4.F retry/backoff/bus-selection
// policy the teacher's flow doesn't need.
package submit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/minepool/coordinator/chain"
	"github.com/minepool/coordinator/proof"
	"github.com/minepool/coordinator/sharedstate"
	"github.com/minepool/coordinator/store"
	"github.com/minepool/coordinator/telemetry"
)

const (
	maxAttempts = 10

	cuLimitPlain     = 485_000
	cuLimitWithReset = 500_000

	resetWindowSeconds    = 300
	resetTriggerThreshold = 5

	attemptBackoff = 2 * time.Second
)

// TxnRecorder persists the confirmed transaction (§4.H).
type TxnRecorder interface {
	RecordTxn(ctx context.Context, txnType store.TxnType, signature string, priorityFee uint64) (id int64)
}

// Submitter implements Component F.
type Submitter struct {
	client chain.Client
	fee    *sharedstate.PriorityFee
	store  TxnRecorder
	signer string
	log    *zap.SugaredLogger

	sleep func(time.Duration)
}

// New builds a Submitter. signer is the coordinator's operator wallet
// address used to date/attribute the transaction.
func New(client chain.Client, fee *sharedstate.PriorityFee, store TxnRecorder, signer string, log *zap.SugaredLogger) *Submitter {
	return &Submitter{client: client, fee: fee, store: store, signer: signer, log: log, sleep: time.Sleep}
}

// Result is the outcome of a Submit call.
type Result struct {
	Confirmed bool
	Signature chain.Signature
	Event     chain.MineEvent
}

// Submit runs the §4.F up-to-10-attempt pipeline for the given best
// solution. On exhaustion it returns Confirmed=false; the caller (the
// epoch engine) is responsible for abandoning the epoch.
func (s *Submitter) Submit(ctx context.Context, challenge proof.Challenge, best proof.Solution, bus chain.Bus) Result {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		telemetry.SubmitAttempts.Inc(1)
		res, err := s.attempt(ctx, best, bus)
		if err == nil {
			s.store.RecordTxn(ctx, store.TxnTypeMine, string(res.Signature), s.fee.Get())
			return res
		}
		s.log.Errorw("mine transaction attempt failed", "attempt", attempt, "err", err)
		s.fee.StepUp()
		if attempt < maxAttempts {
			s.sleep(attemptBackoff)
		}
	}
	telemetry.SubmitAbandoned.Inc(1)
	s.log.Errorw("abandoning epoch after exhausting submit attempts", "challenge", challenge, "attempts", maxAttempts)
	return Result{}
}

func (s *Submitter) attempt(ctx context.Context, best proof.Solution, preferredBus chain.Bus) (Result, error) {
	cfg, busses, err := s.client.FetchConfigAndBusses(ctx)
	bus := preferredBus
	if err == nil {
		bus = richestBus(busses, preferredBus)
	}

	priorityFee := s.fee.Get()
	includeReset := err == nil && shouldReset(cfg, time.Now().Unix())
	cu := uint64(cuLimitPlain)
	if includeReset {
		cu = cuLimitWithReset
	}

	instructions := []chain.Instruction{
		{Kind: chain.KindSetComputeUnitLimit, Data: encodeUint64(cu)},
		{Kind: chain.KindSetComputeUnitPrice, Data: encodeUint64(priorityFee)},
		{Kind: chain.KindAuthNoop},
		{Kind: chain.KindAuthNoop},
	}
	if includeReset {
		instructions = append(instructions, chain.Instruction{Kind: chain.KindReset})
	}
	instructions = append(instructions, chain.Instruction{
		Kind: chain.KindMine,
		Data: encodeMineArgs(best, bus),
	})

	blockhash, err := s.client.LatestBlockhash(ctx)
	if err != nil {
		return Result{}, err
	}

	tx := chain.Transaction{
		Instructions: instructions,
		Blockhash:    blockhash,
		Signer:       s.signer,
	}

	sig, event, err := s.client.SendAndConfirm(ctx, tx)
	if err != nil {
		return Result{}, err
	}
	return Result{Confirmed: true, Signature: sig, Event: event}, nil
}

// richestBus picks the bus with the highest reward balance, falling back
// to fallback if busses is empty.
func richestBus(busses []chain.Bus, fallback chain.Bus) chain.Bus {
	if len(busses) == 0 {
		return fallback
	}
	best := busses[0]
	for _, b := range busses[1:] {
		if b.Rewards > best.Rewards {
			best = b
		}
	}
	return best
}

// shouldReset reports whether the on-chain config is close enough to its
// reset boundary that this transaction should carry a reset instruction.
func shouldReset(cfg chain.Config, now int64) bool {
	remaining := cfg.LastResetAt + resetWindowSeconds - now
	return remaining <= resetTriggerThreshold
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func encodeMineArgs(sol proof.Solution, bus chain.Bus) []byte {
	b := make([]byte, 0, len(sol.Digest)+8+1)
	b = append(b, sol.Digest[:]...)
	b = append(b, encodeUint64(sol.Nonce)...)
	b = append(b, byte(bus.Index))
	return b
}
