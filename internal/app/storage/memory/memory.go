// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/collection"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/iscn"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/reward"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/user"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
)

// Store holds every collection behind a single mutex. RunTransaction takes
// the write lock for the whole callback, which gives the read-check-write
// atomicity the claim and log paths depend on.
type Store struct {
	mu                sync.RWMutex
	nextID            int64
	users             map[string]user.User
	usersByWallet     map[string]string
	socialLinks       map[string][]user.SocialLink
	transactions      map[string]ledger.Transaction
	bonuses           map[string]reward.Bonus
	coupons           map[string]reward.Coupon
	missions          map[string]reward.Mission
	iscnRecords       map[string]iscn.Record
	iscnByContentHash map[string]string
	collections       map[string]collection.Collection
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.RewardStore = (*Store)(nil)
var _ storage.ISCNStore = (*Store)(nil)
var _ storage.CollectionStore = (*Store)(nil)
var _ storage.Transactor = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:            1,
		users:             make(map[string]user.User),
		usersByWallet:     make(map[string]string),
		socialLinks:       make(map[string][]user.SocialLink),
		transactions:      make(map[string]ledger.Transaction),
		bonuses:           make(map[string]reward.Bonus),
		coupons:           make(map[string]reward.Coupon),
		missions:          make(map[string]reward.Mission),
		iscnRecords:       make(map[string]iscn.Record),
		iscnByContentHash: make(map[string]string),
		collections:       make(map[string]collection.Collection),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// Transactor implementation --------------------------------------------------

// txView exposes the store without taking locks; RunTransaction holds the
// write lock for the whole callback.
type txView struct {
	s *Store
}

func (v txView) Users() storage.UserStore             { return txUserStore{v.s} }
func (v txView) Ledger() storage.LedgerStore          { return txLedgerStore{v.s} }
func (v txView) Rewards() storage.RewardStore         { return txRewardStore{v.s} }
func (v txView) ISCN() storage.ISCNStore              { return txISCNStore{v.s} }
func (v txView) Collections() storage.CollectionStore { return txCollectionStore{v.s} }

// RunTransaction executes fn while holding the write lock, restoring a
// snapshot when fn fails so partial writes never commit.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	if err := fn(ctx, txView{s}); err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	nextID            int64
	users             map[string]user.User
	usersByWallet     map[string]string
	socialLinks       map[string][]user.SocialLink
	transactions      map[string]ledger.Transaction
	bonuses           map[string]reward.Bonus
	coupons           map[string]reward.Coupon
	missions          map[string]reward.Mission
	iscnRecords       map[string]iscn.Record
	iscnByContentHash map[string]string
	collections       map[string]collection.Collection
}

func (s *Store) snapshotLocked() storeSnapshot {
	snap := storeSnapshot{
		nextID:            s.nextID,
		users:             make(map[string]user.User, len(s.users)),
		usersByWallet:     make(map[string]string, len(s.usersByWallet)),
		socialLinks:       make(map[string][]user.SocialLink, len(s.socialLinks)),
		transactions:      make(map[string]ledger.Transaction, len(s.transactions)),
		bonuses:           make(map[string]reward.Bonus, len(s.bonuses)),
		coupons:           make(map[string]reward.Coupon, len(s.coupons)),
		missions:          make(map[string]reward.Mission, len(s.missions)),
		iscnRecords:       make(map[string]iscn.Record, len(s.iscnRecords)),
		iscnByContentHash: make(map[string]string, len(s.iscnByContentHash)),
		collections:       make(map[string]collection.Collection, len(s.collections)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.usersByWallet {
		snap.usersByWallet[k] = v
	}
	for k, v := range s.socialLinks {
		snap.socialLinks[k] = append([]user.SocialLink(nil), v...)
	}
	for k, v := range s.transactions {
		snap.transactions[k] = cloneTransaction(v)
	}
	for k, v := range s.bonuses {
		snap.bonuses[k] = v
	}
	for k, v := range s.coupons {
		snap.coupons[k] = v
	}
	for k, v := range s.missions {
		snap.missions[k] = v
	}
	for k, v := range s.iscnRecords {
		snap.iscnRecords[k] = v
	}
	for k, v := range s.iscnByContentHash {
		snap.iscnByContentHash[k] = v
	}
	for k, v := range s.collections {
		snap.collections[k] = v
	}
	return snap
}

func (s *Store) restoreLocked(snap storeSnapshot) {
	s.nextID = snap.nextID
	s.users = snap.users
	s.usersByWallet = snap.usersByWallet
	s.socialLinks = snap.socialLinks
	s.transactions = snap.transactions
	s.bonuses = snap.bonuses
	s.coupons = snap.coupons
	s.missions = snap.missions
	s.iscnRecords = snap.iscnRecords
	s.iscnByContentHash = snap.iscnByContentHash
	s.collections = snap.collections
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(u)
}

func (s *Store) createUserLocked(u user.User) (user.User, error) {
	if u.ID == "" {
		return user.User{}, fmt.Errorf("user id required")
	}
	if _, exists := s.users[u.ID]; exists {
		return user.User{}, storage.ErrAlreadyExists
	}
	for _, wallet := range []string{u.EVMWallet, u.CosmosWallet, u.LikeWallet} {
		if wallet == "" {
			continue
		}
		if _, taken := s.usersByWallet[walletKey(wallet)]; taken {
			return user.User{}, storage.ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	s.indexWalletsLocked(u)
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateUserLocked(u)
}

func (s *Store) updateUserLocked(u user.User) (user.User, error) {
	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}

	for _, wallet := range []string{original.EVMWallet, original.CosmosWallet, original.LikeWallet} {
		if wallet != "" {
			delete(s.usersByWallet, walletKey(wallet))
		}
	}

	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	s.indexWalletsLocked(u)
	return u, nil
}

func (s *Store) indexWalletsLocked(u user.User) {
	for _, wallet := range []string{u.EVMWallet, u.CosmosWallet, u.LikeWallet} {
		if wallet != "" {
			s.usersByWallet[walletKey(wallet)] = u.ID
		}
	}
}

func walletKey(wallet string) string {
	return strings.ToLower(wallet)
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUserLocked(id)
}

func (s *Store) getUserLocked(id string) (user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByWallet(_ context.Context, wallet string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUserByWalletLocked(wallet)
}

func (s *Store) getUserByWalletLocked(wallet string) (user.User, error) {
	id, ok := s.usersByWallet[walletKey(wallet)]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return s.getUserLocked(id)
}

func (s *Store) ListLapsedSubscribers(_ context.Context, before time.Time) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLapsedSubscribersLocked(before)
}

func (s *Store) listLapsedSubscribersLocked(before time.Time) ([]user.User, error) {
	var lapsed []user.User
	for _, u := range s.users {
		if u.SubscriptionTier != "" && !u.SubscriptionEnd.IsZero() && u.SubscriptionEnd.Before(before) {
			lapsed = append(lapsed, u)
		}
	}
	sort.Slice(lapsed, func(i, j int) bool { return lapsed[i].ID < lapsed[j].ID })
	return lapsed, nil
}

func (s *Store) CreateSocialLink(_ context.Context, link user.SocialLink) (user.SocialLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSocialLinkLocked(link)
}

func (s *Store) createSocialLinkLocked(link user.SocialLink) (user.SocialLink, error) {
	if _, ok := s.users[link.UserID]; !ok {
		return user.SocialLink{}, storage.ErrNotFound
	}
	for _, existing := range s.socialLinks[link.UserID] {
		if existing.Platform == link.Platform {
			return user.SocialLink{}, storage.ErrAlreadyExists
		}
	}

	if link.ID == "" {
		link.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	link.CreatedAt = now
	link.UpdatedAt = now
	s.socialLinks[link.UserID] = append(s.socialLinks[link.UserID], link)
	return link, nil
}

func (s *Store) DeleteSocialLink(_ context.Context, userID, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSocialLinkLocked(userID, platform)
}

func (s *Store) deleteSocialLinkLocked(userID, platform string) error {
	links := s.socialLinks[userID]
	for i, link := range links {
		if link.Platform == platform {
			s.socialLinks[userID] = append(links[:i], links[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) ListSocialLinks(_ context.Context, userID string) ([]user.SocialLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSocialLinksLocked(userID)
}

func (s *Store) listSocialLinksLocked(userID string) ([]user.SocialLink, error) {
	return append([]user.SocialLink(nil), s.socialLinks[userID]...), nil
}

// LedgerStore implementation --------------------------------------------------

func cloneTransaction(tx ledger.Transaction) ledger.Transaction {
	tx.To = append([]string(nil), tx.To...)
	tx.Amounts = append([]string(nil), tx.Amounts...)
	if tx.Metadata != nil {
		metadata := make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			metadata[k] = v
		}
		tx.Metadata = metadata
	}
	return tx
}

func (s *Store) CreateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTransactionLocked(tx)
}

func (s *Store) createTransactionLocked(tx ledger.Transaction) (ledger.Transaction, error) {
	if tx.TxHash == "" {
		return ledger.Transaction{}, fmt.Errorf("tx hash required")
	}
	if _, exists := s.transactions[tx.TxHash]; exists {
		return ledger.Transaction{}, storage.ErrAlreadyExists
	}

	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	s.transactions[tx.TxHash] = cloneTransaction(tx)
	return cloneTransaction(tx), nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateTransactionLocked(tx)
}

func (s *Store) updateTransactionLocked(tx ledger.Transaction) (ledger.Transaction, error) {
	original, ok := s.transactions[tx.TxHash]
	if !ok {
		return ledger.Transaction{}, storage.ErrNotFound
	}

	tx.CreatedAt = original.CreatedAt
	tx.UpdatedAt = time.Now().UTC()
	s.transactions[tx.TxHash] = cloneTransaction(tx)
	return cloneTransaction(tx), nil
}

func (s *Store) GetTransaction(_ context.Context, txHash string) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTransactionLocked(txHash)
}

func (s *Store) getTransactionLocked(txHash string) (ledger.Transaction, error) {
	tx, ok := s.transactions[txHash]
	if !ok {
		return ledger.Transaction{}, storage.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactionsByStatus(_ context.Context, status string, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTransactionsByStatusLocked(status, limit)
}

func (s *Store) listTransactionsByStatusLocked(status string, limit int) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, tx := range s.transactions {
		if tx.Status == status {
			out = append(out, cloneTransaction(tx))
		}
	}
	sortTransactions(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListTransactionsByAddress(_ context.Context, address string, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTransactionsByAddressLocked(address, limit)
}

func (s *Store) listTransactionsByAddressLocked(address string, limit int) ([]ledger.Transaction, error) {
	key := walletKey(address)
	var out []ledger.Transaction
	for _, tx := range s.transactions {
		if walletKey(tx.From) == key {
			out = append(out, cloneTransaction(tx))
			continue
		}
		for _, to := range tx.To {
			if walletKey(to) == key {
				out = append(out, cloneTransaction(tx))
				break
			}
		}
	}
	sortTransactions(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortTransactions(txs []ledger.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

// RewardStore implementation --------------------------------------------------

func (s *Store) CreateBonus(_ context.Context, b reward.Bonus) (reward.Bonus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBonusLocked(b)
}

func (s *Store) createBonusLocked(b reward.Bonus) (reward.Bonus, error) {
	if b.ID == "" {
		b.ID = s.nextIDLocked()
	} else if _, exists := s.bonuses[b.ID]; exists {
		return reward.Bonus{}, storage.ErrAlreadyExists
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.bonuses[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBonus(_ context.Context, b reward.Bonus) (reward.Bonus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBonusLocked(b)
}

func (s *Store) updateBonusLocked(b reward.Bonus) (reward.Bonus, error) {
	original, ok := s.bonuses[b.ID]
	if !ok {
		return reward.Bonus{}, storage.ErrNotFound
	}
	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	s.bonuses[b.ID] = b
	return b, nil
}

func (s *Store) GetBonus(_ context.Context, id string) (reward.Bonus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBonusLocked(id)
}

func (s *Store) getBonusLocked(id string) (reward.Bonus, error) {
	b, ok := s.bonuses[id]
	if !ok {
		return reward.Bonus{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListClaimableBonuses(_ context.Context, userID, bonusType string, now time.Time) ([]reward.Bonus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listClaimableBonusesLocked(userID, bonusType, now)
}

func (s *Store) listClaimableBonusesLocked(userID, bonusType string, now time.Time) ([]reward.Bonus, error) {
	var out []reward.Bonus
	for _, b := range s.bonuses {
		if b.UserID != userID {
			continue
		}
		if bonusType != "" && b.Type != bonusType {
			continue
		}
		if !b.Claimable(now) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateCoupon(_ context.Context, c reward.Coupon) (reward.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCouponLocked(c)
}

func (s *Store) createCouponLocked(c reward.Coupon) (reward.Coupon, error) {
	if c.Code == "" {
		return reward.Coupon{}, fmt.Errorf("coupon code required")
	}
	if _, exists := s.coupons[c.Code]; exists {
		return reward.Coupon{}, storage.ErrAlreadyExists
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.coupons[c.Code] = c
	return c, nil
}

func (s *Store) UpdateCoupon(_ context.Context, c reward.Coupon) (reward.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCouponLocked(c)
}

func (s *Store) updateCouponLocked(c reward.Coupon) (reward.Coupon, error) {
	original, ok := s.coupons[c.Code]
	if !ok {
		return reward.Coupon{}, storage.ErrNotFound
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.coupons[c.Code] = c
	return c, nil
}

func (s *Store) GetCoupon(_ context.Context, code string) (reward.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCouponLocked(code)
}

func (s *Store) getCouponLocked(code string) (reward.Coupon, error) {
	c, ok := s.coupons[code]
	if !ok {
		return reward.Coupon{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) CreateMission(_ context.Context, m reward.Mission) (reward.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createMissionLocked(m)
}

func (s *Store) createMissionLocked(m reward.Mission) (reward.Mission, error) {
	if m.ID == "" {
		m.ID = s.nextIDLocked()
	} else if _, exists := s.missions[m.ID]; exists {
		return reward.Mission{}, storage.ErrAlreadyExists
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = reward.MissionStatusOpen
	}
	s.missions[m.ID] = m
	return m, nil
}

func (s *Store) UpdateMission(_ context.Context, m reward.Mission) (reward.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMissionLocked(m)
}

func (s *Store) updateMissionLocked(m reward.Mission) (reward.Mission, error) {
	original, ok := s.missions[m.ID]
	if !ok {
		return reward.Mission{}, storage.ErrNotFound
	}
	m.CreatedAt = original.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	s.missions[m.ID] = m
	return m, nil
}

func (s *Store) GetMission(_ context.Context, id string) (reward.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMissionLocked(id)
}

func (s *Store) getMissionLocked(id string) (reward.Mission, error) {
	m, ok := s.missions[id]
	if !ok {
		return reward.Mission{}, storage.ErrNotFound
	}
	return m, nil
}

func (s *Store) ListMissions(_ context.Context, userID string) ([]reward.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listMissionsLocked(userID)
}

func (s *Store) listMissionsLocked(userID string) ([]reward.Mission, error) {
	var out []reward.Mission
	for _, m := range s.missions {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ISCNStore implementation ----------------------------------------------------

func (s *Store) CreateISCNRecord(_ context.Context, rec iscn.Record) (iscn.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createISCNRecordLocked(rec)
}

func (s *Store) createISCNRecordLocked(rec iscn.Record) (iscn.Record, error) {
	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	} else if _, exists := s.iscnRecords[rec.ID]; exists {
		return iscn.Record{}, storage.ErrAlreadyExists
	}
	if rec.ContentHash != "" {
		if _, exists := s.iscnByContentHash[rec.ContentHash]; exists {
			return iscn.Record{}, storage.ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.iscnRecords[rec.ID] = rec
	if rec.ContentHash != "" {
		s.iscnByContentHash[rec.ContentHash] = rec.ID
	}
	return rec, nil
}

func (s *Store) UpdateISCNRecord(_ context.Context, rec iscn.Record) (iscn.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateISCNRecordLocked(rec)
}

func (s *Store) updateISCNRecordLocked(rec iscn.Record) (iscn.Record, error) {
	original, ok := s.iscnRecords[rec.ID]
	if !ok {
		return iscn.Record{}, storage.ErrNotFound
	}
	if original.ContentHash != "" && original.ContentHash != rec.ContentHash {
		delete(s.iscnByContentHash, original.ContentHash)
	}

	rec.CreatedAt = original.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	s.iscnRecords[rec.ID] = rec
	if rec.ContentHash != "" {
		s.iscnByContentHash[rec.ContentHash] = rec.ID
	}
	return rec, nil
}

func (s *Store) GetISCNRecord(_ context.Context, id string) (iscn.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getISCNRecordLocked(id)
}

func (s *Store) getISCNRecordLocked(id string) (iscn.Record, error) {
	rec, ok := s.iscnRecords[id]
	if !ok {
		return iscn.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) GetISCNRecordByContentHash(_ context.Context, contentHash string) (iscn.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getISCNRecordByContentHashLocked(contentHash)
}

func (s *Store) getISCNRecordByContentHashLocked(contentHash string) (iscn.Record, error) {
	id, ok := s.iscnByContentHash[contentHash]
	if !ok {
		return iscn.Record{}, storage.ErrNotFound
	}
	return s.getISCNRecordLocked(id)
}

func (s *Store) ListISCNRecordsByOwner(_ context.Context, ownerWallet string) ([]iscn.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listISCNRecordsByOwnerLocked(ownerWallet)
}

func (s *Store) listISCNRecordsByOwnerLocked(ownerWallet string) ([]iscn.Record, error) {
	key := walletKey(ownerWallet)
	var out []iscn.Record
	for _, rec := range s.iscnRecords {
		if walletKey(rec.OwnerWallet) == key {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CollectionStore implementation ----------------------------------------------

func (s *Store) CreateCollection(_ context.Context, c collection.Collection) (collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCollectionLocked(c)
}

func (s *Store) createCollectionLocked(c collection.Collection) (collection.Collection, error) {
	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.collections[c.ID]; exists {
		return collection.Collection{}, storage.ErrAlreadyExists
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.collections[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCollection(_ context.Context, c collection.Collection) (collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCollectionLocked(c)
}

func (s *Store) updateCollectionLocked(c collection.Collection) (collection.Collection, error) {
	original, ok := s.collections[c.ID]
	if !ok {
		return collection.Collection{}, storage.ErrNotFound
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.collections[c.ID] = c
	return c, nil
}

func (s *Store) GetCollection(_ context.Context, id string) (collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCollectionLocked(id)
}

func (s *Store) getCollectionLocked(id string) (collection.Collection, error) {
	c, ok := s.collections[id]
	if !ok {
		return collection.Collection{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) DeleteCollection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCollectionLocked(id)
}

func (s *Store) deleteCollectionLocked(id string) error {
	if _, ok := s.collections[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.collections, id)
	return nil
}

func (s *Store) ListCollectionsByOwner(_ context.Context, ownerWallet string) ([]collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCollectionsByOwnerLocked(ownerWallet)
}

func (s *Store) listCollectionsByOwnerLocked(ownerWallet string) ([]collection.Collection, error) {
	key := walletKey(ownerWallet)
	var out []collection.Collection
	for _, c := range s.collections {
		if walletKey(c.OwnerWallet) == key {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Tx store views ---------------------------------------------------------------

type txUserStore struct{ s *Store }

func (t txUserStore) CreateUser(_ context.Context, u user.User) (user.User, error) {
	return t.s.createUserLocked(u)
}
func (t txUserStore) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	return t.s.updateUserLocked(u)
}
func (t txUserStore) GetUser(_ context.Context, id string) (user.User, error) {
	return t.s.getUserLocked(id)
}
func (t txUserStore) GetUserByWallet(_ context.Context, wallet string) (user.User, error) {
	return t.s.getUserByWalletLocked(wallet)
}
func (t txUserStore) ListLapsedSubscribers(_ context.Context, before time.Time) ([]user.User, error) {
	return t.s.listLapsedSubscribersLocked(before)
}
func (t txUserStore) CreateSocialLink(_ context.Context, link user.SocialLink) (user.SocialLink, error) {
	return t.s.createSocialLinkLocked(link)
}
func (t txUserStore) DeleteSocialLink(_ context.Context, userID, platform string) error {
	return t.s.deleteSocialLinkLocked(userID, platform)
}
func (t txUserStore) ListSocialLinks(_ context.Context, userID string) ([]user.SocialLink, error) {
	return t.s.listSocialLinksLocked(userID)
}

type txLedgerStore struct{ s *Store }

func (t txLedgerStore) CreateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	return t.s.createTransactionLocked(tx)
}
func (t txLedgerStore) UpdateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	return t.s.updateTransactionLocked(tx)
}
func (t txLedgerStore) GetTransaction(_ context.Context, txHash string) (ledger.Transaction, error) {
	return t.s.getTransactionLocked(txHash)
}
func (t txLedgerStore) ListTransactionsByStatus(_ context.Context, status string, limit int) ([]ledger.Transaction, error) {
	return t.s.listTransactionsByStatusLocked(status, limit)
}
func (t txLedgerStore) ListTransactionsByAddress(_ context.Context, address string, limit int) ([]ledger.Transaction, error) {
	return t.s.listTransactionsByAddressLocked(address, limit)
}

type txRewardStore struct{ s *Store }

func (t txRewardStore) CreateBonus(_ context.Context, b reward.Bonus) (reward.Bonus, error) {
	return t.s.createBonusLocked(b)
}
func (t txRewardStore) UpdateBonus(_ context.Context, b reward.Bonus) (reward.Bonus, error) {
	return t.s.updateBonusLocked(b)
}
func (t txRewardStore) GetBonus(_ context.Context, id string) (reward.Bonus, error) {
	return t.s.getBonusLocked(id)
}
func (t txRewardStore) ListClaimableBonuses(_ context.Context, userID, bonusType string, now time.Time) ([]reward.Bonus, error) {
	return t.s.listClaimableBonusesLocked(userID, bonusType, now)
}
func (t txRewardStore) CreateCoupon(_ context.Context, c reward.Coupon) (reward.Coupon, error) {
	return t.s.createCouponLocked(c)
}
func (t txRewardStore) UpdateCoupon(_ context.Context, c reward.Coupon) (reward.Coupon, error) {
	return t.s.updateCouponLocked(c)
}
func (t txRewardStore) GetCoupon(_ context.Context, code string) (reward.Coupon, error) {
	return t.s.getCouponLocked(code)
}
func (t txRewardStore) CreateMission(_ context.Context, m reward.Mission) (reward.Mission, error) {
	return t.s.createMissionLocked(m)
}
func (t txRewardStore) UpdateMission(_ context.Context, m reward.Mission) (reward.Mission, error) {
	return t.s.updateMissionLocked(m)
}
func (t txRewardStore) GetMission(_ context.Context, id string) (reward.Mission, error) {
	return t.s.getMissionLocked(id)
}
func (t txRewardStore) ListMissions(_ context.Context, userID string) ([]reward.Mission, error) {
	return t.s.listMissionsLocked(userID)
}

type txISCNStore struct{ s *Store }

func (t txISCNStore) CreateISCNRecord(_ context.Context, rec iscn.Record) (iscn.Record, error) {
	return t.s.createISCNRecordLocked(rec)
}
func (t txISCNStore) UpdateISCNRecord(_ context.Context, rec iscn.Record) (iscn.Record, error) {
	return t.s.updateISCNRecordLocked(rec)
}
func (t txISCNStore) GetISCNRecord(_ context.Context, id string) (iscn.Record, error) {
	return t.s.getISCNRecordLocked(id)
}
func (t txISCNStore) GetISCNRecordByContentHash(_ context.Context, contentHash string) (iscn.Record, error) {
	return t.s.getISCNRecordByContentHashLocked(contentHash)
}
func (t txISCNStore) ListISCNRecordsByOwner(_ context.Context, ownerWallet string) ([]iscn.Record, error) {
	return t.s.listISCNRecordsByOwnerLocked(ownerWallet)
}

type txCollectionStore struct{ s *Store }

func (t txCollectionStore) CreateCollection(_ context.Context, c collection.Collection) (collection.Collection, error) {
	return t.s.createCollectionLocked(c)
}
func (t txCollectionStore) UpdateCollection(_ context.Context, c collection.Collection) (collection.Collection, error) {
	return t.s.updateCollectionLocked(c)
}
func (t txCollectionStore) GetCollection(_ context.Context, id string) (collection.Collection, error) {
	return t.s.getCollectionLocked(id)
}
func (t txCollectionStore) DeleteCollection(_ context.Context, id string) error {
	return t.s.deleteCollectionLocked(id)
}
func (t txCollectionStore) ListCollectionsByOwner(_ context.Context, ownerWallet string) ([]collection.Collection, error) {
	return t.s.listCollectionsByOwnerLocked(ownerWallet)
}
