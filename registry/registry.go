package registry

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minepool/coordinator/proof"
)

// PingInterval is how often the registry pings every session.
const PingInterval = 30 * time.Second

// PongTimeout is the maximum age of a session's last observed pong before
// it is evicted.
const PongTimeout = 45 * time.Second

// ErrWalletConnected is returned by Insert when the wallet already holds a
// session (§3 ClientSession invariant: at most one session per wallet).
var ErrWalletConnected = errors.New("registry: wallet already has an active session")

// Registry is the authenticated-session map keyed by socket address. Reads
// (iteration, lookup) may overlap; Insert/Remove take the exclusive lock.
// Each session additionally serializes its own outbound writes behind a
// per-session write lock (see Session.pump), matching §5's two named critical sections for this
// component.
type Registry struct {
	log *zap.SugaredLogger

	mu       sync.RWMutex
	byAddr   map[string]*Session
	byWallet map[proof.WalletPubkey]string
}

// New builds an empty Registry.
func New(log *zap.SugaredLogger) *Registry {
	return &Registry{
		log:      log,
		byAddr:   make(map[string]*Session),
		byWallet: make(map[proof.WalletPubkey]string),
	}
}

// Insert registers a new authenticated session, rejecting it if the wallet
// is already connected elsewhere.
func (r *Registry) Insert(addr string, wallet proof.WalletPubkey, minerID int64, transport Transport) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byWallet[wallet]; ok {
		return nil, ErrWalletConnected
	}
	s := newSession(addr, wallet, minerID, transport)
	r.byAddr[addr] = s
	r.byWallet[wallet] = addr
	return s, nil
}

// Remove evicts the session at addr, if present.
func (r *Registry) Remove(addr string) {
	r.mu.Lock()
	s, ok := r.byAddr[addr]
	if ok {
		delete(r.byAddr, addr)
		delete(r.byWallet, s.WalletPubkey)
	}
	r.mu.Unlock()
	if ok {
		s.close()
	}
}

// Get returns the session at addr, if present.
func (r *Registry) Get(addr string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byAddr[addr]
	return s, ok
}

// GetByWallet returns the session connected for wallet, if any (§4.B's
// one-session-per-wallet invariant makes this lookup unambiguous).
func (r *Registry) GetByWallet(wallet proof.WalletPubkey) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.byWallet[wallet]
	if !ok {
		return nil, false
	}
	s, ok := r.byAddr[addr]
	return s, ok
}

// Snapshot returns every currently registered session.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byAddr))
	for _, s := range r.byAddr {
		out = append(out, s)
	}
	return out
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddr)
}

// ReadyAddrs returns the addresses of sessions that have signaled Ready
// since their last dispatch, transitioning each from ready to busy as it
// is collected (§4.D step 3).
func (r *Registry) ReadyAddrs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for addr, s := range r.byAddr {
		if s.TakeReady() {
			out = append(out, addr)
		}
	}
	return out
}

// Broadcast sends a text message to every connected session.
func (r *Registry) Broadcast(text string) {
	for _, s := range r.Snapshot() {
		if err := s.sendText(text); err != nil {
			r.log.Errorw("broadcast send failed", "addr", s.Addr, "err", err)
		}
	}
}

// SendTo queues a binary frame for addr, if connected.
func (r *Registry) SendTo(addr string, frame []byte) {
	s, ok := r.Get(addr)
	if !ok {
		return
	}
	s.enqueue(frame)
}

// SendTextTo sends a text message directly to addr, if connected.
func (r *Registry) SendTextTo(addr string, text string) {
	s, ok := r.Get(addr)
	if !ok {
		return
	}
	if err := s.sendText(text); err != nil {
		r.log.Errorw("send failed", "addr", addr, "err", err)
	}
}

// ClearAssignments drops every session's nonce-window assignment and
// readiness flag, called on epoch rotation (§8 invariant 8).
func (r *Registry) ClearAssignments() {
	for _, s := range r.Snapshot() {
		s.ClearAssignment()
	}
}

// RunLiveness pings every session every PingInterval and evicts any whose
// last observed pong is older than PongTimeout. A failed ping send also
// evicts the session immediately. Blocks until done is closed.
func (r *Registry) RunLiveness(done <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-done:
			return
		}
	}
}

func (r *Registry) sweep() {
	now := time.Now()
	for _, s := range r.Snapshot() {
		if err := s.ping(); err != nil {
			r.log.Errorw("ping failed, evicting", "addr", s.Addr, "err", err)
			r.Remove(s.Addr)
			continue
		}
		if s.pongAge(now) > PongTimeout {
			r.log.Errorw("pong timeout, evicting", "addr", s.Addr)
			r.Remove(s.Addr)
		}
	}
}

// TouchPong records a pong received from addr.
func (r *Registry) TouchPong(addr string) {
	if s, ok := r.Get(addr); ok {
		s.touchPong(time.Now())
	}
}
