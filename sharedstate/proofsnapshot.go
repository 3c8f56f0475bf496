package sharedstate

import (
	"encoding/hex"
	"sync"

	"github.com/go-redis/redis/v7"

	"github.com/minepool/coordinator/proof"
)

const redisKeyProofSnapshot = "minepool:proof_snapshot"

// ProofSnapshot is the single-cell owner of the most recent on-chain proof
// account observed by the chain watcher (Component A). The epoch engine
// reads it to detect challenge rotation; nothing but the watcher ever
// writes it.
type ProofSnapshot struct {
	mu    sync.Mutex
	value proof.Snapshot
	set   bool
	redis *redis.Client
}

// NewProofSnapshot builds an empty cell, optionally mirrored to
// redisClient (nil disables mirroring).
func NewProofSnapshot(redisClient *redis.Client) *ProofSnapshot {
	return &ProofSnapshot{redis: redisClient}
}

// Set stores the latest snapshot.
func (p *ProofSnapshot) Set(snap proof.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = snap
	p.set = true
	if p.redis != nil {
		p.redis.Set(redisKeyProofSnapshot, hex.EncodeToString(snap.Challenge[:]), 0)
	}
}

// Get returns the latest snapshot and whether one has ever been set.
func (p *ProofSnapshot) Get() (proof.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.set
}
