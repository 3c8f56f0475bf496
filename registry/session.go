// Package registry implements Component B's session bookkeeping: the
// authenticated-session map keyed by socket address, one-session-per-wallet
// enforcement, readiness/busy tracking, and liveness eviction. The actual
// WebSocket transport lives in the sibling wsserver package (clevergo's
// gorilla-compatible fork); this package is transport-agnostic so it can
// be unit tested without a socket, grounded on
// other_examples/xyplex3-RedTeamCoin/server-websocket.go's hub map and
// Eacred-eacrpool/pool-client.go's per-client mutex-guarded struct.
package registry

import (
	"sync"
	"time"

	"github.com/minepool/coordinator/nonce"
	"github.com/minepool/coordinator/proof"
)

// outboxDepth bounds each session's outbound queue; once full, the oldest
// queued frame is dropped rather than blocking the sender (§9: a bounded
// queue with drop-oldest, preserving "a slow client cannot block others").
const outboxDepth = 8

// Transport is the minimal send/close surface a session needs from the
// underlying socket. wsserver.conn implements this over
// clevergo/websocket.
type Transport interface {
	WriteBinary(b []byte) error
	WriteText(s string) error
	Ping() error
	Close() error
}

// Session is one authenticated miner connection.
type Session struct {
	Addr         string
	WalletPubkey proof.WalletPubkey
	MinerID      int64

	transport Transport
	outbox    chan []byte
	writeMu   sync.Mutex // serializes every write to transport

	mu            sync.Mutex
	lastPongAt    time.Time
	ready         bool
	assignedRange *nonce.Window

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(addr string, wallet proof.WalletPubkey, minerID int64, transport Transport) *Session {
	s := &Session{
		Addr:         addr,
		WalletPubkey: wallet,
		MinerID:      minerID,
		transport:    transport,
		outbox:       make(chan []byte, outboxDepth),
		lastPongAt:   time.Now(),
		done:         make(chan struct{}),
	}
	go s.pump()
	return s
}

// pump drains the binary outbox to the transport. Text messages and pings
// do not pass through here; they are written directly by sendText and
// ping, and all three take writeMu so writes to the transport are never
// interleaved.
func (s *Session) pump() {
	for {
		select {
		case frame := <-s.outbox:
			s.writeMu.Lock()
			err := s.transport.WriteBinary(frame)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// enqueue pushes frame onto the outbox, dropping the oldest queued frame
// if it is full.
func (s *Session) enqueue(frame []byte) {
	select {
	case s.outbox <- frame:
		return
	default:
	}
	select {
	case <-s.outbox:
	default:
	}
	select {
	case s.outbox <- frame:
	default:
	}
}

// sendText bypasses the binary outbox (status text is best-effort, low
// volume, and the teacher's own broadcast path writes directly).
func (s *Session) sendText(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.transport.WriteText(text)
}

func (s *Session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.transport.Ping()
}

func (s *Session) touchPong(now time.Time) {
	s.mu.Lock()
	s.lastPongAt = now
	s.mu.Unlock()
}

func (s *Session) pongAge(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastPongAt)
}

// MarkReady flags the session as ready for the next dispatch tick.
func (s *Session) MarkReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}

// TakeReady reports whether the session is ready and, if so, clears the
// flag and marks it busy - the dispatcher calls this once per tick so a
// client is dispatched to at most once per readiness signal.
func (s *Session) TakeReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false
	}
	s.ready = false
	return true
}

// AssignRange records the nonce window dispatched to this session.
func (s *Session) AssignRange(w nonce.Window) {
	s.mu.Lock()
	s.assignedRange = &w
	s.mu.Unlock()
}

// AssignedRange returns the session's current nonce window, if any.
func (s *Session) AssignedRange() (nonce.Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignedRange == nil {
		return nonce.Window{}, false
	}
	return *s.assignedRange, true
}

// ClearAssignment drops the session's nonce window, e.g. on epoch
// rotation.
func (s *Session) ClearAssignment() {
	s.mu.Lock()
	s.assignedRange = nil
	s.ready = false
	s.mu.Unlock()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.transport.Close()
	})
}
