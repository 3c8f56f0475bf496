// Package reward implements Component G: given a confirmed mine and the
// submissions snapshot captured at cutoff, splits the reward pro-rata by
// weighted hashpower, persists earnings/balances, and notifies each
// contributor. Grounded on the same Eacred-eacrpool/pool-client.go
// weighted-share accounting aggregate.Aggregator draws from, here run
// once per confirmed epoch rather than per submission.
package reward

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/minepool/coordinator/proof"
	"github.com/minepool/coordinator/telemetry"
)

// Ledger persists earnings/balances and the pool aggregate (§4.H).
type Ledger interface {
	RecordEarningsAndBalances(ctx context.Context, poolID, challengeID int64, earnings map[int64]uint64)
	UpdatePoolRewardsEarned(ctx context.Context, poolID int64, amount uint64)
	UpdateChallengeRewardsEarned(ctx context.Context, challengeID int64, amount uint64)
}

// Announcer delivers a per-contributor text summary. addr is the client
// registry address, not the wallet pubkey, since only connected sessions
// can receive a live notification.
type Announcer interface {
	SendTextTo(addr string, text string)
}

// Contributor is one wallet's accepted submission for the epoch plus its
// live session address, if still connected.
type Contributor struct {
	MinerID    int64
	Addr       string
	Connected  bool
	Difficulty uint32
	Hashpower  uint64
}

// Distributor implements Component G.
type Distributor struct {
	ledger    Ledger
	announcer Announcer
	log       *zap.SugaredLogger
}

// New builds a Distributor.
func New(ledger Ledger, announcer Announcer, log *zap.SugaredLogger) *Distributor {
	return &Distributor{ledger: ledger, announcer: announcer, log: log}
}

// Distribute runs the §4.G pipeline for one confirmed mine.
func (d *Distributor) Distribute(ctx context.Context, poolID, challengeID int64, reward uint64, contributors []Contributor) {
	var totalHashpower uint64
	for _, c := range contributors {
		totalHashpower += c.Hashpower
	}
	if totalHashpower == 0 {
		d.log.Errorw("no contributors to distribute reward to", "challenge_id", challengeID, "reward", reward)
		return
	}

	earnings := make(map[int64]uint64, len(contributors))
	var distributed uint64
	for _, c := range contributors {
		earned := proof.Earned(c.Hashpower, totalHashpower, reward)
		earnings[c.MinerID] = earned
		distributed += earned

		if c.Connected {
			sharePpm := proof.SharePpm(c.Hashpower, totalHashpower)
			d.announcer.SendTextTo(c.Addr, summary(c.Difficulty, reward, earned, sharePpm))
		}
	}

	d.ledger.RecordEarningsAndBalances(ctx, poolID, challengeID, earnings)
	d.ledger.UpdateChallengeRewardsEarned(ctx, challengeID, reward)
	d.ledger.UpdatePoolRewardsEarned(ctx, poolID, distributed)

	if dropped := reward - distributed; dropped > 0 {
		telemetry.RewardDust.Inc(int64(dropped))
		d.log.Errorw("reward flooring loss", "challenge_id", challengeID, "dropped", dropped, "contributors", len(contributors))
	}
}

func summary(difficulty uint32, reward, earned, sharePpm uint64) string {
	pct := float64(sharePpm) / 10_000
	return fmt.Sprintf(
		"Challenge solved at difficulty %d. Pool reward: %d. Your share: %d (%.2f%%).",
		difficulty, reward, earned, pct,
	)
}
