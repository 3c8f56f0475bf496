package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/minepool/coordinator/chain"
	"github.com/minepool/coordinator/store"
)

type fakeStore struct {
	miners      map[string]int64
	balances    map[int64]uint64
	lastClaim   map[int64]time.Time
	claims      []string
	submissions map[int64][]store.Submission
	earnings    map[int64][]store.Earning
	byChallenge map[int64][]store.Submission
	active      []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		miners:      map[string]int64{},
		balances:    map[int64]uint64{},
		lastClaim:   map[int64]time.Time{},
		submissions: map[int64][]store.Submission{},
		earnings:    map[int64][]store.Earning{},
		byChallenge: map[int64][]store.Submission{},
	}
}

func (f *fakeStore) EnabledMinerID(pubkey string) (int64, bool, error) {
	id, ok := f.miners[pubkey]
	return id, ok, nil
}

func (f *fakeStore) UpsertMiner(ctx context.Context, pubkey string) int64 {
	if id, ok := f.miners[pubkey]; ok {
		return id
	}
	id := int64(len(f.miners) + 1)
	f.miners[pubkey] = id
	return id
}

func (f *fakeStore) RewardBalance(minerID int64) (uint64, error) { return f.balances[minerID], nil }

func (f *fakeStore) LastClaimAt(minerID int64) (time.Time, bool, error) {
	t, ok := f.lastClaim[minerID]
	return t, ok, nil
}

func (f *fakeStore) RecordClaim(ctx context.Context, minerID, poolID int64, signature string, amount uint64) error {
	f.claims = append(f.claims, signature)
	f.balances[minerID] -= amount
	f.lastClaim[minerID] = time.Now()
	return nil
}

func (f *fakeStore) ActiveMinerPubkeys() ([]string, error) { return f.active, nil }

func (f *fakeStore) SubmissionsForMiner(minerID int64) ([]store.Submission, error) {
	return f.submissions[minerID], nil
}

func (f *fakeStore) EarningsForMiner(minerID int64) ([]store.Earning, error) {
	return f.earnings[minerID], nil
}

func (f *fakeStore) SubmissionsForChallenge(challengeID int64) ([]store.Submission, error) {
	return f.byChallenge[challengeID], nil
}

type fakeChain struct {
	blockhash  chain.Blockhash
	rawErr     error
	sendErr    error
	rawCalls   int
	sendCalls  int
}

func (f *fakeChain) LatestBlockhash(ctx context.Context) (chain.Blockhash, error) {
	return f.blockhash, nil
}

func (f *fakeChain) SubmitRawTransaction(ctx context.Context, raw []byte) (chain.Signature, error) {
	f.rawCalls++
	if f.rawErr != nil {
		return "", f.rawErr
	}
	return "signup-sig", nil
}

func (f *fakeChain) SendAndConfirm(ctx context.Context, tx chain.Transaction) (chain.Signature, chain.MineEvent, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return "", chain.MineEvent{}, f.sendErr
	}
	return "claim-sig", chain.MineEvent{}, nil
}

type fakeChallenges struct{ id int64 }

func (f *fakeChallenges) CurrentChallengeID() int64 { return f.id }

func newTestServer() (*Server, *fakeStore, *fakeChain) {
	st := newFakeStore()
	ch := &fakeChain{}
	s := New(Config{
		Store:           st,
		ChainClient:     ch,
		Challenges:      &fakeChallenges{},
		PoolID:          1,
		AuthorityPubkey: "authority123",
		OperatorPubkey:  "operator123",
		Whitelist:       map[string]bool{"whitelisted-wallet": true},
	}, zap.NewNop().Sugar())
	return s, st, ch
}

func doRequest(s *Server, method, target string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuthorityPubkey(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/pool/authority/pubkey", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authority123") {
		t.Fatalf("body = %s, want authority pubkey", rec.Body.String())
	}
}

func TestTimestampReturnsCurrentTime(t *testing.T) {
	s, _, _ := newTestServer()
	before := time.Now().Unix()
	rec := doRequest(s, http.MethodGet, "/timestamp", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %s: %v", rec.Body.String(), err)
	}
	if after := time.Now().Unix(); body.Timestamp < before || body.Timestamp > after {
		t.Fatalf("timestamp = %d, want within [%d, %d]", body.Timestamp, before, after)
	}
}

func TestMinerBalanceNotFound(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/miner/balance?pubkey=unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMinerBalanceMissingPubkey(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/miner/balance", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMinerBalanceFound(t *testing.T) {
	s, st, _ := newTestServer()
	st.miners["wallet1"] = 1
	st.balances[1] = 5000
	rec := doRequest(s, http.MethodGet, "/miner/balance?pubkey=wallet1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "5000") {
		t.Fatalf("body = %s, want balance 5000", rec.Body.String())
	}
}

// Whitelisted signups skip the on-chain transfer (§6 Environment).
func TestSignupWhitelistBypassSkipsChainCall(t *testing.T) {
	s, st, ch := newTestServer()
	rec := doRequest(s, http.MethodPost, "/signup?pubkey=whitelisted-wallet", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ch.rawCalls != 0 {
		t.Fatalf("rawCalls = %d, want 0 for whitelisted signup", ch.rawCalls)
	}
	if _, ok := st.miners["whitelisted-wallet"]; !ok {
		t.Fatal("expected whitelisted wallet to be upserted as a miner")
	}
}

func TestSignupOrdinaryRelaysTransaction(t *testing.T) {
	s, st, ch := newTestServer()
	body := base64.StdEncoding.EncodeToString([]byte("fake-signed-tx"))
	rec := doRequest(s, http.MethodPost, "/signup?pubkey=wallet2", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ch.rawCalls != 1 {
		t.Fatalf("rawCalls = %d, want 1", ch.rawCalls)
	}
	if _, ok := st.miners["wallet2"]; !ok {
		t.Fatal("expected miner to be upserted after confirmed transfer")
	}
}

func TestSignupMissingPubkey(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(s, http.MethodPost, "/signup", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSignupRejectsInvalidBase64Body(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(s, http.MethodPost, "/signup?pubkey=wallet3", "not-base64!!")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestClaimSucceedsAfterCooldown(t *testing.T) {
	s, st, _ := newTestServer()
	st.miners["wallet1"] = 1
	st.balances[1] = 10_000
	rec := doRequest(s, http.MethodPost, "/claim?pubkey=wallet1&amount=1000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if st.balances[1] != 9000 {
		t.Fatalf("balance = %d, want 9000", st.balances[1])
	}
	if len(st.claims) != 1 {
		t.Fatalf("claims recorded = %d, want 1", len(st.claims))
	}
}

// Supplemented feature: a claim within the cooldown window is rejected
// with 429 and the seconds elapsed.
func TestClaimRejectedWithinCooldown(t *testing.T) {
	s, st, _ := newTestServer()
	st.miners["wallet1"] = 1
	st.balances[1] = 10_000
	st.lastClaim[1] = time.Now().Add(-5 * time.Minute)

	rec := doRequest(s, http.MethodPost, "/claim?pubkey=wallet1&amount=1000", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if len(st.claims) != 0 {
		t.Fatal("expected no claim recorded during cooldown")
	}
}

func TestClaimRejectedWhenAmountExceedsBalance(t *testing.T) {
	s, st, _ := newTestServer()
	st.miners["wallet1"] = 1
	st.balances[1] = 100
	rec := doRequest(s, http.MethodPost, "/claim?pubkey=wallet1&amount=1000", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestClaimRejectedForUnknownMiner(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(s, http.MethodPost, "/claim?pubkey=unknown&amount=100", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestActiveMinersListsEnabled(t *testing.T) {
	s, st, _ := newTestServer()
	st.active = []string{"walletA", "walletB"}
	rec := doRequest(s, http.MethodGet, "/active-miners", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "walletA") || !strings.Contains(rec.Body.String(), "walletB") {
		t.Fatalf("body = %s, want both wallets", rec.Body.String())
	}
}

func TestLastChallengeSubmissionsEmptyBeforeFirstEpoch(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/last-challenge-submissions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("body = %s, want empty array", rec.Body.String())
	}
}
