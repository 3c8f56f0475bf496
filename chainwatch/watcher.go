// Package chainwatch implements Component A: it subscribes to the pool's
// on-chain proof account and pushes decoded snapshots to the epoch engine.
// Grounded on ranger/proofreplicator.go's subscribe-and-select loop.
package chainwatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/minepool/coordinator/chain"
	"github.com/minepool/coordinator/proof"
)

// immediateRetries is the number of back-to-back resubscribe attempts
// before the watcher falls back to looping forever at retrySpacing.
const immediateRetries = 3

// retrySpacing is the delay between resubscribe attempts.
const retrySpacing = time.Second

// Watcher owns the proof account subscription and republishes decoded
// snapshots on a channel the epoch engine reads from.
type Watcher struct {
	client           chain.Client
	poolProofPubkey  string
	log              *zap.SugaredLogger
	out              chan proof.Snapshot
}

// New builds a Watcher for the pool identified by poolProofPubkey.
func New(client chain.Client, poolProofPubkey string, log *zap.SugaredLogger) *Watcher {
	return &Watcher{
		client:          client,
		poolProofPubkey: poolProofPubkey,
		log:             log,
		out:             make(chan proof.Snapshot, 1),
	}
}

// Snapshots returns the channel of decoded proof updates.
func (w *Watcher) Snapshots() <-chan proof.Snapshot { return w.out }

// Run subscribes and republishes until ctx is canceled. On subscribe
// failure it retries immediately up to immediateRetries times spaced by
// retrySpacing, then keeps retrying at the same spacing forever. A broken
// subscription is re-established the same way; a single undecodable
// payload is logged and dropped without tearing down the subscription.
func (w *Watcher) Run(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		sub, err := w.client.SubscribeProof(ctx, w.poolProofPubkey)
		if err != nil {
			attempt++
			if attempt > immediateRetries {
				w.log.Errorw("proof subscribe still failing, continuing to retry", "err", err)
			} else {
				w.log.Errorw("proof subscribe failed, retrying", "attempt", attempt, "err", err)
			}
			sleep(ctx, retrySpacing)
			continue
		}
		attempt = 0
		w.drain(ctx, sub)
	}
}

func (w *Watcher) drain(ctx context.Context, sub chain.ProofSubscription) {
	defer sub.Close()
	for {
		snap, decoded, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Errorw("proof subscription broke, resubscribing", "err", err)
			}
			return
		}
		if !decoded {
			w.log.Errorw("dropped undecodable proof account payload")
			continue
		}
		select {
		case w.out <- snap:
		case <-ctx.Done():
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
