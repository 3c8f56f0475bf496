// Package store implements Component H: a typed, retrying facade over the
// journal (§3's persisted entities), backed by github.com/jinzhu/gorm over
// github.com/go-sql-driver/mysql (both teacher go.mod dependencies).
// Grounded on the teacher's storage/database.DBManager facade shape
// (db_manager.go): an interface-shaped set of typed operations in front of
// a swappable backend, here a relational one rather than the teacher's
// embedded KV stores, because the journal's foreign-keyed tables (§3) are
// inherently relational.
package store

import "time"

// Pool is one mining pool configuration (§3).
type Pool struct {
	ID              int64 `gorm:"primary_key"`
	AuthorityPubkey string `gorm:"unique_index;size:64"`
	ProofPubkey     string `gorm:"size:64"`
	RewardsEarned   uint64
	RewardsClaimed  uint64
	CreatedAt       time.Time
}

func (Pool) TableName() string { return "pools" }

// Miner is a registered wallet allowed to mine against the pool.
type Miner struct {
	ID        int64  `gorm:"primary_key"`
	Pubkey    string `gorm:"unique_index;size:64"`
	Enabled   bool
	CreatedAt time.Time
}

func (Miner) TableName() string { return "miners" }

// Challenge is an observed epoch, inserted the first time the coordinator
// sees it locally.
type Challenge struct {
	ID            int64 `gorm:"primary_key"`
	PoolID        int64 `gorm:"index"`
	ChallengeHex  string `gorm:"unique_index;size:64"`
	RewardsEarned uint64
	CreatedAt     time.Time
}

func (Challenge) TableName() string { return "challenges" }

// Submission is one accepted client best-solution.
type Submission struct {
	ID          int64 `gorm:"primary_key"`
	MinerID     int64 `gorm:"index"`
	ChallengeID int64 `gorm:"index"`
	Nonce       uint64
	Difficulty  uint32
	CreatedAt   time.Time
}

func (Submission) TableName() string { return "submissions" }

// Earning is one contributor's share of a confirmed mine's reward.
type Earning struct {
	ID          int64 `gorm:"primary_key"`
	MinerID     int64 `gorm:"index"`
	PoolID      int64 `gorm:"index"`
	ChallengeID int64 `gorm:"index"`
	Amount      uint64
	CreatedAt   time.Time
}

func (Earning) TableName() string { return "earnings" }

// Reward is a miner's running unclaimed token balance.
type Reward struct {
	MinerID int64 `gorm:"primary_key"`
	Balance uint64
}

func (Reward) TableName() string { return "rewards" }

// TxnType distinguishes the two on-chain actions the coordinator signs.
type TxnType string

const (
	TxnTypeMine  TxnType = "mine"
	TxnTypeClaim TxnType = "claim"
)

// Txn is one signed, submitted on-chain transaction.
type Txn struct {
	ID          int64 `gorm:"primary_key"`
	Type        TxnType
	Signature   string `gorm:"size:128"`
	PriorityFee uint64
	CreatedAt   time.Time
}

func (Txn) TableName() string { return "txns" }

// Claim is a miner's withdrawal of their reward balance, tied to the txn
// that paid it out.
type Claim struct {
	ID        int64 `gorm:"primary_key"`
	MinerID   int64 `gorm:"index"`
	PoolID    int64 `gorm:"index"`
	TxnID     int64 `gorm:"index"`
	Amount    uint64
	CreatedAt time.Time
}

func (Claim) TableName() string { return "claims" }

// AllModels lists every journal table for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&Pool{}, &Miner{}, &Challenge{}, &Submission{},
		&Earning{}, &Reward{}, &Txn{}, &Claim{},
	}
}
