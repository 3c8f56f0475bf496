package wsserver

import (
	"crypto/ed25519"
	"errors"
	"net/http"
	"time"

	"github.com/clevergo/websocket"
	"github.com/mr-tron/base58"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/minepool/coordinator/proof"
	"github.com/minepool/coordinator/registry"
	"github.com/minepool/coordinator/wireproto"
)

// MinerLookup resolves an authenticated wallet to an enabled miner id.
// Satisfied by the store package's gateway.
type MinerLookup interface {
	EnabledMinerID(walletPubkeyBase58 string) (minerID int64, enabled bool, err error)
}

// SolutionHandler receives decoded best-solution submissions. Satisfied by
// the aggregate package.
type SolutionHandler interface {
	Submit(addr string, bs wireproto.BestSolution)
}

// replayCacheSize bounds the LRU used to reject handshake timestamp reuse.
const replayCacheSize = 4096

// Server upgrades incoming connections, authenticates the handshake, and
// pumps frames between the socket and the registry/aggregator.
type Server struct {
	registry *registry.Registry
	miners   MinerLookup
	solution SolutionHandler
	log      *zap.SugaredLogger
	seen     *lru.Cache
}

// New builds a Server. miners and solution are the coordinator's
// persistence gateway and submission aggregator respectively.
func New(reg *registry.Registry, miners MinerLookup, solution SolutionHandler, log *zap.SugaredLogger) *Server {
	cache, _ := lru.New(replayCacheSize)
	return &Server{registry: reg, miners: miners, solution: solution, log: log, seen: cache}
}

var (
	errHandshakeExpired  = errors.New("wsserver: handshake timestamp too old")
	errUnknownMiner      = errors.New("wsserver: wallet is not a registered, enabled miner")
	errBadSignature      = errors.New("wsserver: handshake signature does not verify")
	errBadPubkeyEncoding = errors.New("wsserver: malformed base58 wallet pubkey")
)

// ServeHTTP implements the §4.B handshake: reject if the timestamp is
// stale, the pubkey is not a registered enabled miner, the signature over
// the little-endian timestamp does not verify, or the wallet already holds
// a session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth, err := wireproto.ParseHandshake(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if age := time.Now().Unix() - auth.Timestamp; age > wireproto.MaxHandshakeAgeSeconds || age < -wireproto.MaxHandshakeAgeSeconds {
		s.log.Errorw("handshake rejected: stale timestamp", "age", age)
		http.Error(w, errHandshakeExpired.Error(), http.StatusUnauthorized)
		return
	}

	minerID, enabled, err := s.miners.EnabledMinerID(auth.WalletPubkeyBase58)
	if err != nil || !enabled {
		http.Error(w, errUnknownMiner.Error(), http.StatusUnauthorized)
		return
	}

	pubkeyBytes, err := base58.Decode(auth.WalletPubkeyBase58)
	if err != nil || len(pubkeyBytes) != ed25519.PublicKeySize {
		http.Error(w, errBadPubkeyEncoding.Error(), http.StatusUnauthorized)
		return
	}
	sigBytes, err := base58.Decode(auth.SignatureBase58)
	if err != nil {
		http.Error(w, errBadSignature.Error(), http.StatusUnauthorized)
		return
	}
	msg := wireproto.TimestampMessage(auth.Timestamp)
	if !ed25519.Verify(pubkeyBytes, msg[:], sigBytes) {
		http.Error(w, errBadSignature.Error(), http.StatusUnauthorized)
		return
	}

	var wallet proof.WalletPubkey
	copy(wallet[:], pubkeyBytes)

	if _, connected := s.registry.GetByWallet(wallet); connected {
		s.log.Errorw("handshake rejected: wallet already connected", "wallet", auth.WalletPubkeyBase58)
		http.Error(w, registry.ErrWalletConnected.Error(), http.StatusTooManyRequests)
		return
	}

	if reused, _ := s.seen.ContainsOrAdd(auth.WalletPubkeyBase58+string(msg[:]), struct{}{}); reused {
		s.log.Errorw("handshake rejected: timestamp reused", "wallet", auth.WalletPubkeyBase58)
		http.Error(w, "wsserver: handshake timestamp already used", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorw("upgrade failed", "err", err)
		return
	}

	addr := r.RemoteAddr
	session, err := s.registry.Insert(addr, wallet, minerID, &conn{ws: ws})
	if err != nil {
		s.log.Errorw("handshake rejected: wallet already connected", "wallet", auth.WalletPubkeyBase58)
		ws.Close()
		// A concurrent handshake for the same wallet can pass the 429
		// check above before either session is inserted. The HTTP
		// response line is already committed by Upgrade, so the losing
		// session is simply closed.
		return
	}

	go s.readLoop(addr, session, ws)
}

func (s *Server) readLoop(addr string, session *registry.Session, ws *websocket.Conn) {
	defer s.registry.Remove(addr)
	ws.SetPongHandler(func(string) error {
		s.registry.TouchPong(addr)
		return nil
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		kind, payload, err := wireproto.DecodeClientFrame(data)
		if err != nil {
			s.log.Errorw("dropped malformed frame", "addr", addr, "err", err)
			continue
		}
		switch kind {
		case wireproto.TypeReady:
			session.MarkReady()
		case wireproto.TypeMining:
			// informational only; no state change required.
		case wireproto.TypeBestSolution:
			bs, err := wireproto.DecodeBestSolution(payload, base58.Decode)
			if err != nil {
				s.log.Errorw("dropped malformed best-solution frame", "addr", addr, "err", err)
				continue
			}
			s.solution.Submit(addr, bs)
		default:
			s.log.Errorw("dropped frame with unknown type", "addr", addr, "type", kind)
		}
	}
}
