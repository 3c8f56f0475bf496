package reward

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

type fakeLedger struct {
	earnings       map[int64]uint64
	poolID         int64
	challengeID    int64
	poolDelta      uint64
	challengeTotal uint64
}

func (f *fakeLedger) RecordEarningsAndBalances(ctx context.Context, poolID, challengeID int64, earnings map[int64]uint64) {
	f.poolID, f.challengeID, f.earnings = poolID, challengeID, earnings
}

func (f *fakeLedger) UpdatePoolRewardsEarned(ctx context.Context, poolID int64, amount uint64) {
	f.poolDelta = amount
}

func (f *fakeLedger) UpdateChallengeRewardsEarned(ctx context.Context, challengeID int64, amount uint64) {
	f.challengeTotal = amount
}

type fakeAnnouncer struct {
	sent map[string]string
}

func (f *fakeAnnouncer) SendTextTo(addr, text string) {
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[addr] = text
}

// Two clients at difficulties 10 and 12, reward 10,000: hashpower 20 and
// 80, total 100, shares 200,000/800,000 ppm, earned 2,000/8,000.
func TestDistributeMatchesTwoClientScenario(t *testing.T) {
	ledger := &fakeLedger{}
	announcer := &fakeAnnouncer{}
	d := New(ledger, announcer, zap.NewNop().Sugar())

	contributors := []Contributor{
		{MinerID: 1, Addr: "addr1", Connected: true, Difficulty: 10, Hashpower: 20},
		{MinerID: 2, Addr: "addr2", Connected: true, Difficulty: 12, Hashpower: 80},
	}
	d.Distribute(context.Background(), 1, 42, 10_000, contributors)

	if ledger.earnings[1] != 2000 {
		t.Errorf("miner1 earned = %d, want 2000", ledger.earnings[1])
	}
	if ledger.earnings[2] != 8000 {
		t.Errorf("miner2 earned = %d, want 8000", ledger.earnings[2])
	}
	if ledger.poolDelta != 10_000 {
		t.Errorf("pool delta = %d, want 10000", ledger.poolDelta)
	}
	if ledger.challengeTotal != 10_000 {
		t.Errorf("challenge total = %d, want 10000", ledger.challengeTotal)
	}
	if len(announcer.sent) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(announcer.sent))
	}
}

// Three clients at difficulties 9, 9, 30, reward 1,000,000: hashpower 10,
// 10, and the 81,920 cap, total 81,940, with a 1-token flooring dust.
func TestDistributeMatchesThreeClientCappedScenario(t *testing.T) {
	ledger := &fakeLedger{}
	announcer := &fakeAnnouncer{}
	d := New(ledger, announcer, zap.NewNop().Sugar())

	contributors := []Contributor{
		{MinerID: 1, Addr: "addr1", Connected: true, Difficulty: 9, Hashpower: 10},
		{MinerID: 2, Addr: "addr2", Connected: true, Difficulty: 9, Hashpower: 10},
		{MinerID: 3, Addr: "addr3", Connected: true, Difficulty: 30, Hashpower: 81_920},
	}
	d.Distribute(context.Background(), 1, 42, 1_000_000, contributors)

	if ledger.earnings[1] != 122 {
		t.Errorf("miner1 earned = %d, want 122", ledger.earnings[1])
	}
	if ledger.earnings[2] != 122 {
		t.Errorf("miner2 earned = %d, want 122", ledger.earnings[2])
	}
	if ledger.earnings[3] != 999_755 {
		t.Errorf("miner3 earned = %d, want 999755", ledger.earnings[3])
	}
	if ledger.poolDelta != 999_999 {
		t.Errorf("pool delta = %d, want 999999 (1 dropped to flooring)", ledger.poolDelta)
	}
}

func TestDistributeSkipsDisconnectedContributors(t *testing.T) {
	ledger := &fakeLedger{}
	announcer := &fakeAnnouncer{}
	d := New(ledger, announcer, zap.NewNop().Sugar())

	contributors := []Contributor{
		{MinerID: 1, Addr: "addr1", Connected: false, Difficulty: 8, Hashpower: 5},
	}
	d.Distribute(context.Background(), 1, 42, 100, contributors)

	if len(announcer.sent) != 0 {
		t.Fatalf("expected no notification for disconnected contributor, got %d", len(announcer.sent))
	}
	if ledger.earnings[1] != 100 {
		t.Fatalf("miner1 earned = %d, want 100 (sole contributor)", ledger.earnings[1])
	}
}

func TestDistributeNoopOnZeroHashpower(t *testing.T) {
	ledger := &fakeLedger{}
	announcer := &fakeAnnouncer{}
	d := New(ledger, announcer, zap.NewNop().Sugar())

	d.Distribute(context.Background(), 1, 42, 100, nil)

	if ledger.earnings != nil {
		t.Fatalf("expected no ledger writes with zero total hashpower")
	}
}
