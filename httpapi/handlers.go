package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/mr-tron/base58"

	"github.com/minepool/coordinator/chain"
	"github.com/minepool/coordinator/store"
	"github.com/minepool/coordinator/telemetry"
)

// maxSignupBodyBytes bounds the base64 signup transaction body; real
// transfer transactions are well under 1 KiB.
const maxSignupBodyBytes = 8192

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

func (s *Server) handleLatestBlockhash(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	bh, err := s.chainClient.LatestBlockhash(r.Context())
	if err != nil {
		s.log.Errorw("latest blockhash fetch failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "blockhash unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"blockhash": base58.Encode(bh[:])})
}

func (s *Server) handleAuthorityPubkey(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"pubkey": s.authorityPubkey})
}

func (s *Server) handleTimestamp(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]int64{"timestamp": time.Now().Unix()})
}

func (s *Server) handleActiveMiners(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pubkeys, err := s.store.ActiveMinerPubkeys()
	if err != nil {
		s.log.Errorw("active miners query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, pubkeys)
}

// lookupMiner resolves the required ?pubkey query parameter to an enabled
// miner id, writing the appropriate error response itself on failure.
func (s *Server) lookupMiner(w http.ResponseWriter, r *http.Request) (minerID int64, ok bool) {
	pubkey := r.URL.Query().Get("pubkey")
	if pubkey == "" {
		writeError(w, http.StatusBadRequest, "missing pubkey query parameter")
		return 0, false
	}
	minerID, enabled, err := s.store.EnabledMinerID(pubkey)
	if err != nil {
		s.log.Errorw("miner lookup failed", "pubkey", pubkey, "err", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return 0, false
	}
	if !enabled {
		writeError(w, http.StatusNotFound, "miner not found")
		return 0, false
	}
	return minerID, true
}

func (s *Server) handleMinerBalance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	minerID, ok := s.lookupMiner(w, r)
	if !ok {
		return
	}
	balance, err := s.store.RewardBalance(minerID)
	if err != nil {
		s.log.Errorw("reward balance query failed", "miner_id", minerID, "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (s *Server) handleMinerRewards(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	minerID, ok := s.lookupMiner(w, r)
	if !ok {
		return
	}
	earnings, err := s.store.EarningsForMiner(minerID)
	if err != nil {
		s.log.Errorw("earnings query failed", "miner_id", minerID, "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, earnings)
}

func (s *Server) handleMinerSubmissions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	minerID, ok := s.lookupMiner(w, r)
	if !ok {
		return
	}
	submissions, err := s.store.SubmissionsForMiner(minerID)
	if err != nil {
		s.log.Errorw("submissions query failed", "miner_id", minerID, "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, submissions)
}

func (s *Server) handleLastChallengeSubmissions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	challengeID := s.challenges.CurrentChallengeID()
	if challengeID == 0 {
		writeJSON(w, http.StatusOK, []store.Submission{})
		return
	}
	submissions, err := s.store.SubmissionsForChallenge(challengeID)
	if err != nil {
		s.log.Errorw("challenge submissions query failed", "challenge_id", challengeID, "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, submissions)
}

// handleSignup implements §6 POST /signup?pubkey: an ordinary signup's
// body is a base64-encoded, already-signed transfer of signupCost
// base-units to the pool authority, relayed to the chain and confirmed
// before the Miner/Reward rows are created. The relayed transaction's
// recipient and amount are not inspected: any transaction the chain
// confirms is accepted, and signupCost is only logged. A whitelisted
// pubkey skips the transfer entirely (supplemented feature, §6
// Environment).
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pubkey := r.URL.Query().Get("pubkey")
	if pubkey == "" {
		writeError(w, http.StatusBadRequest, "missing pubkey query parameter")
		return
	}

	if s.whitelist[pubkey] {
		telemetry.SignupsWhitelisted.Inc(1)
		minerID := s.store.UpsertMiner(r.Context(), pubkey)
		writeJSON(w, http.StatusOK, map[string]int64{"miner_id": minerID})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignupBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "body is not valid base64")
		return
	}

	sig, err := s.chainClient.SubmitRawTransaction(r.Context(), raw)
	if err != nil {
		s.log.Errorw("signup transfer failed", "pubkey", pubkey, "err", err)
		writeError(w, http.StatusBadGateway, "transfer failed to confirm")
		return
	}
	s.log.Infow("signup transfer confirmed", "pubkey", pubkey, "expected_amount", s.signupCost, "sig", sig)

	minerID := s.store.UpsertMiner(r.Context(), pubkey)
	writeJSON(w, http.StatusOK, map[string]int64{"miner_id": minerID})
}

// buildClaimTx assembles the operator-signed claim instruction, mirroring
// submit.Submitter's instruction assembly for mine transactions.
func (s *Server) buildClaimTx(ctx context.Context, amount uint64) (chain.Transaction, error) {
	blockhash, err := s.chainClient.LatestBlockhash(ctx)
	if err != nil {
		return chain.Transaction{}, err
	}
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, amount)
	return chain.Transaction{
		Instructions: []chain.Instruction{{Kind: chain.KindClaim, Data: data}},
		Blockhash:    blockhash,
		Signer:       s.operatorPubkey,
	}, nil
}

// handleClaim implements §6 POST /claim?pubkey&amount: enforces the
// 30-minute cooldown (supplemented feature) before debiting the miner's
// reward balance.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	minerID, ok := s.lookupMiner(w, r)
	if !ok {
		return
	}
	amountStr := r.URL.Query().Get("amount")
	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil || amount == 0 {
		writeError(w, http.StatusBadRequest, "invalid amount query parameter")
		return
	}

	lastClaim, hasClaimed, err := s.store.LastClaimAt(minerID)
	if err != nil {
		s.log.Errorw("last claim query failed", "miner_id", minerID, "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if hasClaimed {
		if elapsed := time.Since(lastClaim); elapsed < claimCooldown {
			telemetry.ClaimsRejectedCooldown.Inc(1)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int64(elapsed.Seconds())))
			writeError(w, http.StatusTooManyRequests, fmt.Sprintf("claim too soon, %d seconds elapsed", int64(elapsed.Seconds())))
			return
		}
	}

	balance, err := s.store.RewardBalance(minerID)
	if err != nil {
		s.log.Errorw("reward balance query failed", "miner_id", minerID, "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if amount > balance {
		writeError(w, http.StatusBadRequest, "amount exceeds available balance")
		return
	}

	tx, err := s.buildClaimTx(r.Context(), amount)
	if err != nil {
		s.log.Errorw("claim blockhash fetch failed", "miner_id", minerID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "blockhash unavailable")
		return
	}
	sig, _, err := s.chainClient.SendAndConfirm(r.Context(), tx)
	if err != nil {
		s.log.Errorw("claim transfer failed", "miner_id", minerID, "err", err)
		writeError(w, http.StatusBadGateway, "transfer failed to confirm")
		return
	}

	if err := s.store.RecordClaim(r.Context(), minerID, s.poolID, string(sig), amount); err != nil {
		s.log.Errorw("claim record failed", "miner_id", minerID, "err", err)
		writeError(w, http.StatusInternalServerError, "claim record failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"claimed": amount})
}
