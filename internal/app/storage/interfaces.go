// Package storage defines the typed document-store interfaces the domain
// services persist through. Record schemas are validated here at the adapter
// boundary; handlers never read or write untyped field bags.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/collection"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/iscn"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/reward"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/user"
)

// Store-level sentinel errors. Services translate these into application
// error codes at the HTTP boundary.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrConflict      = errors.New("write conflict")
)

// UserStore persists user and social-link records.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByWallet(ctx context.Context, wallet string) (user.User, error)
	ListLapsedSubscribers(ctx context.Context, before time.Time) ([]user.User, error)

	CreateSocialLink(ctx context.Context, link user.SocialLink) (user.SocialLink, error)
	DeleteSocialLink(ctx context.Context, userID, platform string) error
	ListSocialLinks(ctx context.Context, userID string) ([]user.SocialLink, error)
}

// LedgerStore persists transaction records keyed by hash. CreateTransaction
// fails with ErrAlreadyExists when a record for the hash is present.
type LedgerStore interface {
	CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	UpdateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	GetTransaction(ctx context.Context, txHash string) (ledger.Transaction, error)
	ListTransactionsByStatus(ctx context.Context, status string, limit int) ([]ledger.Transaction, error)
	ListTransactionsByAddress(ctx context.Context, address string, limit int) ([]ledger.Transaction, error)
}

// RewardStore persists bonuses, coupons and missions.
type RewardStore interface {
	CreateBonus(ctx context.Context, b reward.Bonus) (reward.Bonus, error)
	UpdateBonus(ctx context.Context, b reward.Bonus) (reward.Bonus, error)
	GetBonus(ctx context.Context, id string) (reward.Bonus, error)
	ListClaimableBonuses(ctx context.Context, userID, bonusType string, now time.Time) ([]reward.Bonus, error)

	CreateCoupon(ctx context.Context, c reward.Coupon) (reward.Coupon, error)
	UpdateCoupon(ctx context.Context, c reward.Coupon) (reward.Coupon, error)
	GetCoupon(ctx context.Context, code string) (reward.Coupon, error)

	CreateMission(ctx context.Context, m reward.Mission) (reward.Mission, error)
	UpdateMission(ctx context.Context, m reward.Mission) (reward.Mission, error)
	GetMission(ctx context.Context, id string) (reward.Mission, error)
	ListMissions(ctx context.Context, userID string) ([]reward.Mission, error)
}

// ISCNStore persists ISCN/Arweave registration records.
type ISCNStore interface {
	CreateISCNRecord(ctx context.Context, rec iscn.Record) (iscn.Record, error)
	UpdateISCNRecord(ctx context.Context, rec iscn.Record) (iscn.Record, error)
	GetISCNRecord(ctx context.Context, id string) (iscn.Record, error)
	GetISCNRecordByContentHash(ctx context.Context, contentHash string) (iscn.Record, error)
	ListISCNRecordsByOwner(ctx context.Context, ownerWallet string) ([]iscn.Record, error)
}

// CollectionStore persists NFT collection records.
type CollectionStore interface {
	CreateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error)
	UpdateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error)
	GetCollection(ctx context.Context, id string) (collection.Collection, error)
	DeleteCollection(ctx context.Context, id string) error
	ListCollectionsByOwner(ctx context.Context, ownerWallet string) ([]collection.Collection, error)
}

// Tx exposes the stores inside an atomic read-check-write unit.
type Tx interface {
	Users() UserStore
	Ledger() LedgerStore
	Rewards() RewardStore
	ISCN() ISCNStore
	Collections() CollectionStore
}

// Transactor runs fn atomically: either every write inside fn commits, or
// none do. Claim and log operations rely on it for their at-most-once
// guarantees.
type Transactor interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
