// Package httpapi implements Component §6's thin HTTP surface: signup,
// claim, and read-only projections over the journal and chain. Grounded
// on the teacher's networks/rpc HTTP transport shape, wired to
// github.com/julienschmidt/httprouter (teacher go.mod) rather than the
// teacher's own JSON-RPC dispatch, since this surface is a handful of
// fixed REST routes rather than a method-dispatch RPC server.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/minepool/coordinator/chain"
	"github.com/minepool/coordinator/store"
)

// Store is the journal surface httpapi needs. Satisfied by *store.Gateway.
type Store interface {
	EnabledMinerID(walletPubkeyBase58 string) (minerID int64, enabled bool, err error)
	UpsertMiner(ctx context.Context, walletPubkeyBase58 string) (minerID int64)
	RewardBalance(minerID int64) (uint64, error)
	LastClaimAt(minerID int64) (time.Time, bool, error)
	RecordClaim(ctx context.Context, minerID, poolID int64, signature string, amount uint64) error
	ActiveMinerPubkeys() ([]string, error)
	SubmissionsForMiner(minerID int64) ([]store.Submission, error)
	EarningsForMiner(minerID int64) ([]store.Earning, error)
	SubmissionsForChallenge(challengeID int64) ([]store.Submission, error)
}

// ChainReader is the chain surface httpapi needs. Satisfied by a
// chain.Client.
type ChainReader interface {
	LatestBlockhash(ctx context.Context) (chain.Blockhash, error)

	// SubmitRawTransaction relays a client-signed signup transfer (§6
	// POST /signup) and waits for confirmation.
	SubmitRawTransaction(ctx context.Context, raw []byte) (chain.Signature, error)

	// SendAndConfirm is used for the operator-signed claim instruction
	// (§6 POST /claim), reusing the same seam Component F dispatches
	// mine transactions through.
	SendAndConfirm(ctx context.Context, tx chain.Transaction) (chain.Signature, chain.MineEvent, error)
}

// ChallengeTracker exposes the epoch engine's current challenge id, used
// to scope /last-challenge-submissions. Satisfied by *epoch.Engine.
type ChallengeTracker interface {
	CurrentChallengeID() int64
}

// claimCooldown is the §6 "at least 30 minutes between claims" window.
const claimCooldown = 30 * time.Minute

// signupTransferAmount is the base-unit amount an ordinary (non-
// whitelisted) signup must transfer to the pool authority.
const signupTransferAmount = 1_000_000

// Server implements the §6 HTTP surface.
type Server struct {
	store            Store
	chainClient      ChainReader
	challenges       ChallengeTracker
	poolID           int64
	authorityPubkey  string
	operatorPubkey   string
	signupCost       uint64
	whitelist        map[string]bool
	log              *zap.SugaredLogger
	router           *httprouter.Router
}

// Config wires a Server's collaborators and static pool identity.
type Config struct {
	Store           Store
	ChainClient     ChainReader
	Challenges      ChallengeTracker
	PoolID          int64
	AuthorityPubkey string
	OperatorPubkey  string
	SignupCost      uint64
	Whitelist       map[string]bool
}

// New builds a Server and registers its routes.
func New(cfg Config, log *zap.SugaredLogger) *Server {
	if cfg.SignupCost == 0 {
		cfg.SignupCost = signupTransferAmount
	}
	if cfg.Whitelist == nil {
		cfg.Whitelist = map[string]bool{}
	}
	s := &Server{
		store:           cfg.Store,
		chainClient:     cfg.ChainClient,
		challenges:      cfg.Challenges,
		poolID:          cfg.PoolID,
		authorityPubkey: cfg.AuthorityPubkey,
		operatorPubkey:  cfg.OperatorPubkey,
		signupCost:      cfg.SignupCost,
		whitelist:       cfg.Whitelist,
		log:             log,
	}
	s.router = s.routes()
	return s
}

// Handler returns the http.Handler to mount at the server's bind address
// (0.0.0.0:3000 per §6).
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *httprouter.Router {
	r := httprouter.New()
	r.GET("/latest-blockhash", s.handleLatestBlockhash)
	r.GET("/pool/authority/pubkey", s.handleAuthorityPubkey)
	r.GET("/timestamp", s.handleTimestamp)
	r.GET("/active-miners", s.handleActiveMiners)
	r.GET("/miner/balance", s.handleMinerBalance)
	r.GET("/miner/rewards", s.handleMinerRewards)
	r.GET("/miner/submissions", s.handleMinerSubmissions)
	r.GET("/last-challenge-submissions", s.handleLastChallengeSubmissions)
	r.POST("/signup", s.handleSignup)
	r.POST("/claim", s.handleClaim)
	return r
}
