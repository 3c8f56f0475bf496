package chain

import (
	"context"
	"errors"
)

// ErrTransportUnconfigured is returned by every Unconfigured method. The
// RPC/pub-sub transport is explicitly out-of-core (§1 Non-goals): a real
// deployment supplies its own Client wired to the target chain's RPC
// endpoint, e.g. in cmd/poold's boot sequence.
var ErrTransportUnconfigured = errors.New("chain: no transport configured for this deployment")

// Unconfigured is a placeholder Client that fails every call. It lets the
// coordinator's wiring compile and start without a concrete chain
// transport, surfacing the missing integration at call time rather than
// at startup.
type Unconfigured struct{}

var _ Client = Unconfigured{}

func (Unconfigured) SubscribeProof(ctx context.Context, poolProofPubkey string) (ProofSubscription, error) {
	return nil, ErrTransportUnconfigured
}

func (Unconfigured) FetchConfigAndBusses(ctx context.Context) (Config, []Bus, error) {
	return Config{}, nil, ErrTransportUnconfigured
}

func (Unconfigured) LatestBlockhash(ctx context.Context) (Blockhash, error) {
	return Blockhash{}, ErrTransportUnconfigured
}

func (Unconfigured) SendAndConfirm(ctx context.Context, tx Transaction) (Signature, MineEvent, error) {
	return "", MineEvent{}, ErrTransportUnconfigured
}

func (Unconfigured) SubmitRawTransaction(ctx context.Context, raw []byte) (Signature, error) {
	return "", ErrTransportUnconfigured
}
