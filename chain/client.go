// Package chain defines the coordinator's seam onto the chain RPC/pub-sub
// transport. Per design the transport itself is out-of-core — an external
// collaborator — so this package holds only the interfaces and the plain
// data it exchanges, grounded on ranger/proofreplicator.go's
// sign-and-send-transaction flow.
package chain

import (
	"context"

	"github.com/minepool/coordinator/proof"
)

// ProofSubscription streams decoded proof account updates. Decode failures
// are reported as decoded=false, err=nil: the caller logs and keeps
// reading without tearing down the subscription. A non-nil err means the
// underlying transport broke and the caller should re-subscribe.
type ProofSubscription interface {
	Next(ctx context.Context) (snap proof.Snapshot, decoded bool, err error)
	Close() error
}

// Config is the pool's on-chain mining configuration.
type Config struct {
	LastResetAt int64
}

// Bus is one of the chain program's reward accounts.
type Bus struct {
	Index   int
	Rewards uint64
}

// Blockhash is a recent chain blockhash used to date a transaction.
type Blockhash [32]byte

// Signature is a base58 transaction signature.
type Signature string

// MineEvent is the parsed result of a confirmed mine instruction.
type MineEvent struct {
	Reward uint64
}

// Instruction is one instruction in a transaction's instruction list.
type Instruction struct {
	Kind Kind
	Data []byte
}

// Kind enumerates the instruction types the submitter assembles.
type Kind int

const (
	KindSetComputeUnitLimit Kind = iota
	KindSetComputeUnitPrice
	KindAuthNoop
	KindReset
	KindMine
	KindClaim
)

// Transaction is an unsigned instruction list dated by a blockhash.
type Transaction struct {
	Instructions []Instruction
	Blockhash    Blockhash
	Signer       string
}

// Client is the coordinator's view of the chain RPC/pub-sub transport.
// Implementations live outside the core (the real Solana-style RPC
// client); this interface is the only surface the engine depends on.
type Client interface {
	// SubscribeProof opens a long-lived subscription to the pool's proof
	// account.
	SubscribeProof(ctx context.Context, poolProofPubkey string) (ProofSubscription, error)

	// FetchConfigAndBusses reads the current mining config and reward
	// busses.
	FetchConfigAndBusses(ctx context.Context) (Config, []Bus, error)

	// LatestBlockhash fetches a recent blockhash to date a transaction.
	LatestBlockhash(ctx context.Context) (Blockhash, error)

	// SendAndConfirm signs tx with the coordinator's operator key, submits
	// it, waits for confirmation, and parses the resulting mine event.
	SendAndConfirm(ctx context.Context, tx Transaction) (Signature, MineEvent, error)

	// SubmitRawTransaction relays a transaction the caller already signed
	// (the §6 signup transfer) and waits for confirmation.
	SubmitRawTransaction(ctx context.Context, raw []byte) (Signature, error)
}
