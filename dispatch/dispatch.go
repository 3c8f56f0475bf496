// Package dispatch implements Component D: once per engine tick, it sends
// every ready client a disjoint nonce window and the current challenge
// with its cutoff, then marks the client busy. Grounded on
// work/worker.go's periodic-commit loop structure.
package dispatch

import (
	"go.uber.org/zap"

	"github.com/minepool/coordinator/nonce"
	"github.com/minepool/coordinator/proof"
	"github.com/minepool/coordinator/registry"
	"github.com/minepool/coordinator/telemetry"
	"github.com/minepool/coordinator/wireproto"
)

// Dispatcher sends work packets to ready clients.
type Dispatcher struct {
	registry  *registry.Registry
	allocator *nonce.Allocator
	log       *zap.SugaredLogger
}

// New builds a Dispatcher.
func New(reg *registry.Registry, allocator *nonce.Allocator, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{registry: reg, allocator: allocator, log: log}
}

// Tick dispatches to every ready client, unless cutoff has already elapsed
// and a best solution exists - in that case the epoch is in its
// submission phase and dispatch is suppressed.
func (d *Dispatcher) Tick(challenge proof.Challenge, cutoffSeconds uint64, bestExists bool) {
	if cutoffSeconds == 0 && bestExists {
		return
	}
	for _, addr := range d.registry.ReadyAddrs() {
		window := d.allocator.Allocate()
		session, ok := d.registry.Get(addr)
		if !ok {
			continue
		}
		session.AssignRange(window)
		frame := wireproto.EncodeWork(challenge, cutoffSeconds, window.Lo, window.Hi)
		d.registry.SendTo(addr, frame)
		telemetry.DispatchCount.Inc(1)
		d.log.Infow("dispatched work", "addr", addr, "lo", window.Lo, "hi", window.Hi)
	}
}
