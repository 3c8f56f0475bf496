package store

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"

	"github.com/minepool/coordinator/proof"
)

var retryStuckCounter = metrics.NewRegisteredCounter("store/retrystuck", nil)

// retryMinBackoff/retryMaxBackoff bound the §4.H "1-2s backoff,
// indefinitely" retry policy for durable writes.
const (
	retryMinBackoff = time.Second
	retryMaxBackoff = 2 * time.Second
)

// Gateway is the typed facade over the journal described by §3. Every
// write here is idempotent and retried on failure until it succeeds or
// its context is canceled: the coordinator treats the journal as the
// source of truth and would rather stall than lose an audit record (§9).
// The signup/claim writes (UpsertMiner, RecordClaim) run under the HTTP
// request's context, so they stop retrying when that request ends.
type Gateway struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// Open connects to dsn (a MySQL DSN, from the DATABASE_URL env) and
// migrates the journal schema.
func Open(dsn string, log *zap.SugaredLogger) (*Gateway, error) {
	db, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "store: open database")
	}
	if err := db.AutoMigrate(AllModels()...).Error; err != nil {
		return nil, errors.Wrap(err, "store: migrate schema")
	}
	return &Gateway{db: db, log: log}, nil
}

// NewWithDB wraps an already-open *gorm.DB, used by tests against sqlite
// or a mock dialect.
func NewWithDB(db *gorm.DB, log *zap.SugaredLogger) *Gateway {
	return &Gateway{db: db, log: log}
}

// retryForever runs op until it returns nil, sleeping between attempts
// for retryMinBackoff at first and half a second longer after each
// failure, up to retryMaxBackoff, and bailing out early
// if ctx is canceled. Every retry past the first increments a go-metrics
// counter so operators can alert on a stuck journal writer (§9).
func (g *Gateway) retryForever(ctx context.Context, what string, op func() error) {
	backoff := retryMinBackoff
	for attempt := 0; ; attempt++ {
		if err := op(); err == nil {
			return
		} else if attempt == 0 {
			g.log.Errorw("journal write failed, retrying", "op", what, "err", err)
		} else {
			retryStuckCounter.Inc(1)
			g.log.Errorw("journal write still failing", "op", what, "attempt", attempt, "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < retryMaxBackoff {
			backoff += retryMinBackoff / 2
		}
	}
}

func challengeHex(c proof.Challenge) string { return hex.EncodeToString(c[:]) }

// InsertChallengeIfNew inserts a Challenge row the first time challenge is
// observed locally, returning its id. Safe to call repeatedly for the same
// challenge.
func (g *Gateway) InsertChallengeIfNew(ctx context.Context, poolID int64, challenge proof.Challenge) (id int64) {
	hexStr := challengeHex(challenge)
	g.retryForever(ctx, "insert challenge", func() error {
		var existing Challenge
		err := g.db.Where("challenge_hex = ?", hexStr).First(&existing).Error
		if err == nil {
			id = existing.ID
			return nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			return err
		}
		row := Challenge{PoolID: poolID, ChallengeHex: hexStr, CreatedAt: time.Now()}
		if err := g.db.Create(&row).Error; err != nil {
			return err
		}
		id = row.ID
		return nil
	})
	return id
}

// RecordSubmission persists an accepted submission (§4.E step 7).
func (g *Gateway) RecordSubmission(ctx context.Context, minerID int64, challenge proof.Challenge, nonce uint64, difficulty uint32) {
	challengeID := g.InsertChallengeIfNew(ctx, 0, challenge)
	g.retryForever(ctx, "insert submission", func() error {
		row := Submission{
			MinerID:     minerID,
			ChallengeID: challengeID,
			Nonce:       nonce,
			Difficulty:  difficulty,
			CreatedAt:   time.Now(),
		}
		return g.db.Create(&row).Error
	})
}

// RecordTxn persists a Txn row (§3: Txn/Claim insertion order invariant -
// callers must insert the Txn before any dependent Claim).
func (g *Gateway) RecordTxn(ctx context.Context, txnType TxnType, signature string, priorityFee uint64) (id int64) {
	g.retryForever(ctx, "insert txn", func() error {
		row := Txn{Type: txnType, Signature: signature, PriorityFee: priorityFee, CreatedAt: time.Now()}
		if err := g.db.Create(&row).Error; err != nil {
			return err
		}
		id = row.ID
		return nil
	})
	return id
}

// RecordEarningsAndBalances batch-inserts Earning rows and bumps each
// miner's Reward.Balance (§4.G steps 3-4).
func (g *Gateway) RecordEarningsAndBalances(ctx context.Context, poolID, challengeID int64, earnings map[int64]uint64) {
	g.retryForever(ctx, "record earnings", func() error {
		tx := g.db.Begin()
		for minerID, amount := range earnings {
			if amount == 0 {
				continue
			}
			if err := tx.Create(&Earning{
				MinerID: minerID, PoolID: poolID, ChallengeID: challengeID,
				Amount: amount, CreatedAt: time.Now(),
			}).Error; err != nil {
				tx.Rollback()
				return err
			}
			if err := tx.Exec(
				"INSERT INTO rewards (miner_id, balance) VALUES (?, ?) ON DUPLICATE KEY UPDATE balance = balance + ?",
				minerID, amount, amount,
			).Error; err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit().Error
	})
}

// UpdatePoolRewardsEarned bumps the pool's aggregate rewards counter
// (§4.G step 5).
func (g *Gateway) UpdatePoolRewardsEarned(ctx context.Context, poolID int64, amount uint64) {
	g.retryForever(ctx, "update pool rewards", func() error {
		return g.db.Exec(
			"UPDATE pools SET rewards_earned = rewards_earned + ? WHERE id = ?",
			amount, poolID,
		).Error
	})
}

// UpdateChallengeRewardsEarned records the reward attributed to a
// challenge once its mine is confirmed.
func (g *Gateway) UpdateChallengeRewardsEarned(ctx context.Context, challengeID int64, amount uint64) {
	g.retryForever(ctx, "update challenge rewards", func() error {
		return g.db.Model(&Challenge{}).Where("id = ?", challengeID).
			UpdateColumn("rewards_earned", amount).Error
	})
}

// EnabledMinerID looks up a miner by base58 pubkey, returning whether it
// is registered and enabled (§4.B handshake check).
func (g *Gateway) EnabledMinerID(walletPubkeyBase58 string) (int64, bool, error) {
	var m Miner
	err := g.db.Where("pubkey = ?", walletPubkeyBase58).First(&m).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return m.ID, m.Enabled, nil
}

// UpsertMiner creates (or re-enables) a miner and its zero-balance reward
// row, used both by ordinary signup and by the whitelist bypass.
func (g *Gateway) UpsertMiner(ctx context.Context, walletPubkeyBase58 string) (minerID int64) {
	g.retryForever(ctx, "upsert miner", func() error {
		var existing Miner
		err := g.db.Where("pubkey = ?", walletPubkeyBase58).First(&existing).Error
		if err == nil {
			minerID = existing.ID
			return g.db.Model(&existing).UpdateColumn("enabled", true).Error
		}
		if !gorm.IsRecordNotFoundError(err) {
			return err
		}
		row := Miner{Pubkey: walletPubkeyBase58, Enabled: true, CreatedAt: time.Now()}
		if err := g.db.Create(&row).Error; err != nil {
			return err
		}
		minerID = row.ID
		return g.db.Create(&Reward{MinerID: row.ID, Balance: 0}).Error
	})
	return minerID
}

// RewardBalance returns a miner's unclaimed balance.
func (g *Gateway) RewardBalance(minerID int64) (uint64, error) {
	var r Reward
	err := g.db.Where("miner_id = ?", minerID).First(&r).Error
	if gorm.IsRecordNotFoundError(err) {
		return 0, nil
	}
	return r.Balance, err
}

// LastClaimAt returns the timestamp of a miner's most recent claim, if
// any (§6 claim cooldown).
func (g *Gateway) LastClaimAt(minerID int64) (time.Time, bool, error) {
	var c Claim
	err := g.db.Where("miner_id = ?", minerID).Order("created_at desc").First(&c).Error
	if gorm.IsRecordNotFoundError(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return c.CreatedAt, true, nil
}

// RecordClaim inserts the Txn then the dependent Claim row, preserving the
// §3 insertion-order invariant, and debits the miner's reward balance.
func (g *Gateway) RecordClaim(ctx context.Context, minerID, poolID int64, signature string, amount uint64) error {
	var outerErr error
	g.retryForever(ctx, "record claim", func() error {
		tx := g.db.Begin()
		txnRow := Txn{Type: TxnTypeClaim, Signature: signature, CreatedAt: time.Now()}
		if err := tx.Create(&txnRow).Error; err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Create(&Claim{
			MinerID: minerID, PoolID: poolID, TxnID: txnRow.ID,
			Amount: amount, CreatedAt: time.Now(),
		}).Error; err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Exec(
			"UPDATE rewards SET balance = balance - ? WHERE miner_id = ? AND balance >= ?",
			amount, minerID, amount,
		).Error; err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit().Error
	})
	return outerErr
}

// ActiveMinerPubkeys lists currently enabled miners (§6 GET /active-miners
// projection).
func (g *Gateway) ActiveMinerPubkeys() ([]string, error) {
	var miners []Miner
	if err := g.db.Where("enabled = ?", true).Find(&miners).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(miners))
	for _, m := range miners {
		out = append(out, m.Pubkey)
	}
	return out, nil
}

// SubmissionsForChallenge lists submissions recorded for one challenge
// (§6 GET /last-challenge-submissions projection).
func (g *Gateway) SubmissionsForChallenge(challengeID int64) ([]Submission, error) {
	var rows []Submission
	err := g.db.Where("challenge_id = ?", challengeID).Find(&rows).Error
	return rows, err
}

// SubmissionsForMiner lists a miner's submission history, newest first
// (§6 GET /miner/submissions projection).
func (g *Gateway) SubmissionsForMiner(minerID int64) ([]Submission, error) {
	var rows []Submission
	err := g.db.Where("miner_id = ?", minerID).Order("created_at desc").Find(&rows).Error
	return rows, err
}

// EarningsForMiner lists a miner's per-challenge earning history, newest
// first (§6 GET /miner/rewards projection).
func (g *Gateway) EarningsForMiner(minerID int64) ([]Earning, error) {
	var rows []Earning
	err := g.db.Where("miner_id = ?", minerID).Order("created_at desc").Find(&rows).Error
	return rows, err
}
