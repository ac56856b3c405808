package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/collection"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/iscn"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/reward"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/user"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
)

// Store wraps a connection pool. Reads outside RunTransaction hit the pool
// directly; inside a transaction every single-row read takes a row lock.
type Store struct {
	queries
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.RewardStore = (*Store)(nil)
var _ storage.ISCNStore = (*Store)(nil)
var _ storage.CollectionStore = (*Store)(nil)
var _ storage.Transactor = (*Store)(nil)

// NewStore wraps an existing connection pool without running migrations.
func NewStore(db *sqlx.DB) *Store {
	return &Store{queries: queries{ext: db}, db: db}
}

// Close releases the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// RunTransaction runs fn inside a database transaction. Single-row reads
// issued through the Tx use SELECT ... FOR UPDATE so concurrent claims of
// the same record serialize instead of double-spending.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	dbtx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	q := queries{ext: dbtx, forUpdate: true}
	if err := fn(ctx, txStores{q}); err != nil {
		if rbErr := dbtx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txStores struct{ q queries }

func (t txStores) Users() storage.UserStore             { return t.q }
func (t txStores) Ledger() storage.LedgerStore          { return t.q }
func (t txStores) Rewards() storage.RewardStore         { return t.q }
func (t txStores) ISCN() storage.ISCNStore              { return t.q }
func (t txStores) Collections() storage.CollectionStore { return t.q }

// queries implements every store interface against either the pool or an
// open transaction.
type queries struct {
	ext       sqlx.ExtContext
	forUpdate bool
}

func (q queries) lock() string {
	if q.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return storage.ErrAlreadyExists
	}
	return err
}

// jsonMap stores transaction metadata as JSONB.
type jsonMap map[string]string

func (m jsonMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *jsonMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected metadata type %T", src)
	}
	return json.Unmarshal(b, m)
}

// Users -----------------------------------------------------------------------

type userRow struct {
	ID               string    `db:"id"`
	Email            string    `db:"email"`
	EVMWallet        string    `db:"evm_wallet"`
	CosmosWallet     string    `db:"cosmos_wallet"`
	LikeWallet       string    `db:"like_wallet"`
	Referrer         string    `db:"referrer"`
	IsBlacklisted    bool      `db:"is_blacklisted"`
	SubscriptionTier string    `db:"subscription_tier"`
	SubscriptionEnd  time.Time `db:"subscription_end"`
	BonusCooldownAt  time.Time `db:"bonus_cooldown_at"`
	AuthNonce        string    `db:"auth_nonce"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r userRow) toDomain() user.User {
	return user.User(r)
}

const userColumns = `id, email, evm_wallet, cosmos_wallet, like_wallet, referrer,
	is_blacklisted, subscription_tier, subscription_end, bonus_cooldown_at,
	auth_nonce, created_at, updated_at`

func (q queries) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		u.ID, u.Email, u.EVMWallet, u.CosmosWallet, u.LikeWallet, u.Referrer,
		u.IsBlacklisted, u.SubscriptionTier, u.SubscriptionEnd, u.BonusCooldownAt,
		u.AuthNonce, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (q queries) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()
	res, err := q.ext.ExecContext(ctx, `
		UPDATE users SET email = $2, evm_wallet = $3, cosmos_wallet = $4,
			like_wallet = $5, referrer = $6, is_blacklisted = $7,
			subscription_tier = $8, subscription_end = $9, bonus_cooldown_at = $10,
			auth_nonce = $11, updated_at = $12
		WHERE id = $1`,
		u.ID, u.Email, u.EVMWallet, u.CosmosWallet, u.LikeWallet, u.Referrer,
		u.IsBlacklisted, u.SubscriptionTier, u.SubscriptionEnd, u.BonusCooldownAt,
		u.AuthNonce, u.UpdatedAt)
	if err != nil {
		return user.User{}, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (q queries) GetUser(ctx context.Context, id string) (user.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT `+userColumns+` FROM users WHERE id = $1`+q.lock(), id)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (q queries) GetUserByWallet(ctx context.Context, wallet string) (user.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT `+userColumns+` FROM users
		WHERE $1 <> '' AND LOWER($1) IN (LOWER(evm_wallet), LOWER(cosmos_wallet), LOWER(like_wallet))`+q.lock(),
		wallet)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (q queries) ListLapsedSubscribers(ctx context.Context, before time.Time) ([]user.User, error) {
	var rows []userRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT `+userColumns+` FROM users
		WHERE subscription_tier <> '' AND subscription_end > 'epoch' AND subscription_end < $1
		ORDER BY id`+q.lock(),
		before)
	if err != nil {
		return nil, mapError(err)
	}
	users := make([]user.User, len(rows))
	for i, r := range rows {
		users[i] = r.toDomain()
	}
	return users, nil
}

type socialLinkRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Platform   string    `db:"platform"`
	PlatformID string    `db:"platform_id"`
	Handle     string    `db:"handle"`
	URL        string    `db:"url"`
	IsPublic   bool      `db:"is_public"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (q queries) CreateSocialLink(ctx context.Context, link user.SocialLink) (user.SocialLink, error) {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	link.CreatedAt = now
	link.UpdatedAt = now
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO social_links (id, user_id, platform, platform_id, handle, url, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		link.ID, link.UserID, link.Platform, link.PlatformID, link.Handle,
		link.URL, link.IsPublic, link.CreatedAt, link.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return user.SocialLink{}, storage.ErrNotFound
		}
		return user.SocialLink{}, mapError(err)
	}
	return link, nil
}

func (q queries) DeleteSocialLink(ctx context.Context, userID, platform string) error {
	res, err := q.ext.ExecContext(ctx,
		`DELETE FROM social_links WHERE user_id = $1 AND platform = $2`, userID, platform)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (q queries) ListSocialLinks(ctx context.Context, userID string) ([]user.SocialLink, error) {
	var rows []socialLinkRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT id, user_id, platform, platform_id, handle, url, is_public, created_at, updated_at
		FROM social_links WHERE user_id = $1 ORDER BY platform`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]user.SocialLink, 0, len(rows))
	for _, r := range rows {
		out = append(out, user.SocialLink(r))
	}
	return out, nil
}

// Ledger ----------------------------------------------------------------------

type transactionRow struct {
	TxHash      string         `db:"tx_hash"`
	Type        string         `db:"tx_type"`
	From        string         `db:"from_address"`
	To          pq.StringArray `db:"to_addresses"`
	Amounts     pq.StringArray `db:"amounts"`
	TotalAmount string         `db:"total_amount"`
	Status      string         `db:"status"`
	Sequence    int64          `db:"sequence"`
	RawPayload  string         `db:"raw_payload"`
	UpdateToken string         `db:"update_token"`
	Metadata    jsonMap        `db:"metadata"`
	Remarks     string         `db:"remarks"`
	FailReason  string         `db:"fail_reason"`
	CreatedAt   time.Time      `db:"created_at"`
	CompletedAt time.Time      `db:"completed_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r transactionRow) toDomain() ledger.Transaction {
	return ledger.Transaction{
		TxHash:      r.TxHash,
		Type:        r.Type,
		From:        r.From,
		To:          []string(r.To),
		Amounts:     []string(r.Amounts),
		TotalAmount: r.TotalAmount,
		Status:      r.Status,
		Sequence:    uint64(r.Sequence),
		RawPayload:  r.RawPayload,
		UpdateToken: r.UpdateToken,
		Metadata:    map[string]string(r.Metadata),
		Remarks:     r.Remarks,
		FailReason:  r.FailReason,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const transactionColumns = `tx_hash, tx_type, from_address, to_addresses, amounts,
	total_amount, status, sequence, raw_payload, update_token, metadata,
	remarks, fail_reason, created_at, completed_at, updated_at`

func (q queries) CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		tx.TxHash, tx.Type, tx.From, pq.StringArray(tx.To), pq.StringArray(tx.Amounts),
		tx.TotalAmount, tx.Status, int64(tx.Sequence), tx.RawPayload, tx.UpdateToken,
		jsonMap(tx.Metadata), tx.Remarks, tx.FailReason, tx.CreatedAt, tx.CompletedAt, tx.UpdatedAt)
	if err != nil {
		return ledger.Transaction{}, mapError(err)
	}
	return tx, nil
}

func (q queries) UpdateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	tx.UpdatedAt = time.Now().UTC()
	res, err := q.ext.ExecContext(ctx, `
		UPDATE transactions SET status = $2, metadata = $3, remarks = $4,
			fail_reason = $5, completed_at = $6, updated_at = $7
		WHERE tx_hash = $1`,
		tx.TxHash, tx.Status, jsonMap(tx.Metadata), tx.Remarks,
		tx.FailReason, tx.CompletedAt, tx.UpdatedAt)
	if err != nil {
		return ledger.Transaction{}, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.Transaction{}, storage.ErrNotFound
	}
	return tx, nil
}

func (q queries) GetTransaction(ctx context.Context, txHash string) (ledger.Transaction, error) {
	var row transactionRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT `+transactionColumns+` FROM transactions WHERE tx_hash = $1`+q.lock(), txHash)
	if err != nil {
		return ledger.Transaction{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (q queries) ListTransactionsByStatus(ctx context.Context, status string, limit int) ([]ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = $1 ORDER BY created_at DESC`
	args := []interface{}{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	out := make([]ledger.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (q queries) ListTransactionsByAddress(ctx context.Context, address string, limit int) ([]ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE LOWER(from_address) = LOWER($1)
			OR EXISTS (SELECT 1 FROM unnest(to_addresses) AS t WHERE LOWER(t) = LOWER($1))
		ORDER BY created_at DESC`
	args := []interface{}{address}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	out := make([]ledger.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Rewards ---------------------------------------------------------------------

type bonusRow struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	Type         string    `db:"bonus_type"`
	Value        int64     `db:"value"`
	WaitForClaim bool      `db:"wait_for_claim"`
	EffectiveTs  time.Time `db:"effective_ts"`
	ClaimedAt    time.Time `db:"claimed_at"`
	ClaimTxHash  string    `db:"claim_tx_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r bonusRow) toDomain() reward.Bonus {
	return reward.Bonus(r)
}

const bonusColumns = `id, user_id, bonus_type, value, wait_for_claim,
	effective_ts, claimed_at, claim_tx_hash, created_at, updated_at`

func (q queries) CreateBonus(ctx context.Context, b reward.Bonus) (reward.Bonus, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO bonuses (`+bonusColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.UserID, b.Type, b.Value, b.WaitForClaim,
		b.EffectiveTs, b.ClaimedAt, b.ClaimTxHash, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return reward.Bonus{}, mapError(err)
	}
	return b, nil
}

func (q queries) UpdateBonus(ctx context.Context, b reward.Bonus) (reward.Bonus, error) {
	b.UpdatedAt = time.Now().UTC()
	res, err := q.ext.ExecContext(ctx, `
		UPDATE bonuses SET wait_for_claim = $2, claimed_at = $3, claim_tx_hash = $4, updated_at = $5
		WHERE id = $1`,
		b.ID, b.WaitForClaim, b.ClaimedAt, b.ClaimTxHash, b.UpdatedAt)
	if err != nil {
		return reward.Bonus{}, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return reward.Bonus{}, storage.ErrNotFound
	}
	return b, nil
}

func (q queries) GetBonus(ctx context.Context, id string) (reward.Bonus, error) {
	var row bonusRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT `+bonusColumns+` FROM bonuses WHERE id = $1`+q.lock(), id)
	if err != nil {
		return reward.Bonus{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (q queries) ListClaimableBonuses(ctx context.Context, userID, bonusType string, now time.Time) ([]reward.Bonus, error) {
	var rows []bonusRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT `+bonusColumns+` FROM bonuses
		WHERE user_id = $1 AND ($2 = '' OR bonus_type = $2)
			AND wait_for_claim AND effective_ts <= $3
		ORDER BY id`+q.lock(),
		userID, bonusType, now)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]reward.Bonus, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

type couponRow struct {
	Code            string    `db:"code"`
	Value           int64     `db:"value"`
	ExpiresAt       time.Time `db:"expires_at"`
	IsClaimed       bool      `db:"is_claimed"`
	IsInvalidated   bool      `db:"is_invalidated"`
	AssignedWallet  string    `db:"assigned_wallet"`
	ClaimedByWallet string    `db:"claimed_by_wallet"`
	ClaimedAt       time.Time `db:"claimed_at"`
	ClaimTxHash     string    `db:"claim_tx_hash"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

const couponColumns = `code, value, expires_at, is_claimed, is_invalidated,
	assigned_wallet, claimed_by_wallet, claimed_at, claim_tx_hash, created_at, updated_at`

func (q queries) CreateCoupon(ctx context.Context, c reward.Coupon) (reward.Coupon, error) {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.Code, c.Value, c.ExpiresAt, c.IsClaimed, c.IsInvalidated,
		c.AssignedWallet, c.ClaimedByWallet, c.ClaimedAt, c.ClaimTxHash,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return reward.Coupon{}, mapError(err)
	}
	return c, nil
}

func (q queries) UpdateCoupon(ctx context.Context, c reward.Coupon) (reward.Coupon, error) {
	c.UpdatedAt = time.Now().UTC()
	res, err := q.ext.ExecContext(ctx, `
		UPDATE coupons SET is_claimed = $2, is_invalidated = $3,
			claimed_by_wallet = $4, claimed_at = $5, claim_tx_hash = $6, updated_at = $7
		WHERE code = $1`,
		c.Code, c.IsClaimed, c.IsInvalidated, c.ClaimedByWallet,
		c.ClaimedAt, c.ClaimTxHash, c.UpdatedAt)
	if err != nil {
		return reward.Coupon{}, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return reward.Coupon{}, storage.ErrNotFound
	}
	return c, nil
}

func (q queries) GetCoupon(ctx context.Context, code string) (reward.Coupon, error) {
	var row couponRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`+q.lock(), code)
	if err != nil {
		return reward.Coupon{}, mapError(err)
	}
	return reward.Coupon(row), nil
}

type missionRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Type        string    `db:"mission_type"`
	Status      string    `db:"status"`
	Priority    int       `db:"priority"`
	RewardValue int64     `db:"reward_value"`
	BonusID     string    `db:"bonus_id"`
	StartTs     time.Time `db:"start_ts"`
	EndTs       time.Time `db:"end_ts"`
	DoneAt      time.Time `db:"done_at"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

const missionColumns = `id, user_id, mission_type, status, priority, reward_value,
	bonus_id, start_ts, end_ts, done_at, created_at, updated_at`

func (q queries) CreateMission(ctx context.Context, m reward.Mission) (reward.Mission, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = reward.MissionStatusOpen
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO missions (`+missionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.UserID, m.Type, m.Status, m.Priority, m.RewardValue,
		m.BonusID, m.StartTs, m.EndTs, m.DoneAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return reward.Mission{}, mapError(err)
	}
	return m, nil
}

func (q queries) UpdateMission(ctx context.Context, m reward.Mission) (reward.Mission, error) {
	m.UpdatedAt = time.Now().UTC()
	res, err := q.ext.ExecContext(ctx, `
		UPDATE missions SET status = $2, bonus_id = $3, done_at = $4, updated_at = $5
		WHERE id = $1`,
		m.ID, m.Status, m.BonusID, m.DoneAt, m.UpdatedAt)
	if err != nil {
		return reward.Mission{}, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return reward.Mission{}, storage.ErrNotFound
	}
	return m, nil
}

func (q queries) GetMission(ctx context.Context, id string) (reward.Mission, error) {
	var row missionRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT `+missionColumns+` FROM missions WHERE id = $1`+q.lock(), id)
	if err != nil {
		return reward.Mission{}, mapError(err)
	}
	return reward.Mission(row), nil
}

func (q queries) ListMissions(ctx context.Context, userID string) ([]reward.Mission, error) {
	var rows []missionRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT `+missionColumns+` FROM missions WHERE user_id = $1 ORDER BY priority, id`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]reward.Mission, 0, len(rows))
	for _, r := range rows {
		out = append(out, reward.Mission(r))
	}
	return out, nil
}

// ISCN ------------------------------------------------------------------------

type iscnRow struct {
	ID             string    `db:"id"`
	OwnerWallet    string    `db:"owner_wallet"`
	ContentHash    string    `db:"content_hash"`
	ContentType    string    `db:"content_type"`
	ContentSize    int64     `db:"content_size"`
	ArweaveID      string    `db:"arweave_id"`
	ISCNID         string    `db:"iscn_id"`
	TxHash         string    `db:"tx_hash"`
	Status         string    `db:"status"`
	OwnershipToken string    `db:"ownership_token"`
	AuthToken      string    `db:"auth_token"`
	AccessToken    string    `db:"access_token"`
	AccessTokenExp time.Time `db:"access_token_exp"`
	UploadedAt     time.Time `db:"uploaded_at"`
	RegisteredAt   time.Time `db:"registered_at"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const iscnColumns = `id, owner_wallet, content_hash, content_type, content_size,
	arweave_id, iscn_id, tx_hash, status, ownership_token, auth_token,
	access_token, access_token_exp, uploaded_at, registered_at, created_at, updated_at`

func (q queries) CreateISCNRecord(ctx context.Context, rec iscn.Record) (iscn.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO iscn_records (`+iscnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.ID, rec.OwnerWallet, rec.ContentHash, rec.ContentType, rec.ContentSize,
		rec.ArweaveID, rec.ISCNID, rec.TxHash, rec.Status, rec.OwnershipToken,
		rec.AuthToken, rec.AccessToken, rec.AccessTokenExp, rec.UploadedAt,
		rec.RegisteredAt, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return iscn.Record{}, mapError(err)
	}
	return rec, nil
}

func (q queries) UpdateISCNRecord(ctx context.Context, rec iscn.Record) (iscn.Record, error) {
	rec.UpdatedAt = time.Now().UTC()
	res, err := q.ext.ExecContext(ctx, `
		UPDATE iscn_records SET content_hash = $2, arweave_id = $3, iscn_id = $4,
			tx_hash = $5, status = $6, ownership_token = $7, auth_token = $8,
			access_token = $9, access_token_exp = $10, uploaded_at = $11,
			registered_at = $12, updated_at = $13
		WHERE id = $1`,
		rec.ID, rec.ContentHash, rec.ArweaveID, rec.ISCNID, rec.TxHash, rec.Status,
		rec.OwnershipToken, rec.AuthToken, rec.AccessToken, rec.AccessTokenExp,
		rec.UploadedAt, rec.RegisteredAt, rec.UpdatedAt)
	if err != nil {
		return iscn.Record{}, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return iscn.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (q queries) GetISCNRecord(ctx context.Context, id string) (iscn.Record, error) {
	var row iscnRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT `+iscnColumns+` FROM iscn_records WHERE id = $1`+q.lock(), id)
	if err != nil {
		return iscn.Record{}, mapError(err)
	}
	return iscn.Record(row), nil
}

func (q queries) GetISCNRecordByContentHash(ctx context.Context, contentHash string) (iscn.Record, error) {
	var row iscnRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT `+iscnColumns+` FROM iscn_records WHERE content_hash = $1 AND content_hash <> ''`+q.lock(),
		contentHash)
	if err != nil {
		return iscn.Record{}, mapError(err)
	}
	return iscn.Record(row), nil
}

func (q queries) ListISCNRecordsByOwner(ctx context.Context, ownerWallet string) ([]iscn.Record, error) {
	var rows []iscnRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT `+iscnColumns+` FROM iscn_records
		WHERE LOWER(owner_wallet) = LOWER($1) ORDER BY created_at DESC`, ownerWallet)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]iscn.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, iscn.Record(r))
	}
	return out, nil
}

// Collections -------------------------------------------------------------------

type collectionRow struct {
	ID          string    `db:"id"`
	OwnerWallet string    `db:"owner_wallet"`
	ClassID     string    `db:"class_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	ImageURL    string    `db:"image_url"`
	URI         string    `db:"uri"`
	Priority    int       `db:"priority"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

const collectionColumns = `id, owner_wallet, class_id, name, description,
	image_url, uri, priority, created_at, updated_at`

func (q queries) CreateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO collections (`+collectionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.OwnerWallet, c.ClassID, c.Name, c.Description,
		c.ImageURL, c.URI, c.Priority, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return collection.Collection{}, mapError(err)
	}
	return c, nil
}

func (q queries) UpdateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error) {
	c.UpdatedAt = time.Now().UTC()
	res, err := q.ext.ExecContext(ctx, `
		UPDATE collections SET class_id = $2, name = $3, description = $4,
			image_url = $5, uri = $6, priority = $7, updated_at = $8
		WHERE id = $1`,
		c.ID, c.ClassID, c.Name, c.Description, c.ImageURL, c.URI, c.Priority, c.UpdatedAt)
	if err != nil {
		return collection.Collection{}, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return collection.Collection{}, storage.ErrNotFound
	}
	return c, nil
}

func (q queries) GetCollection(ctx context.Context, id string) (collection.Collection, error) {
	var row collectionRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT `+collectionColumns+` FROM collections WHERE id = $1`+q.lock(), id)
	if err != nil {
		return collection.Collection{}, mapError(err)
	}
	return collection.Collection(row), nil
}

func (q queries) DeleteCollection(ctx context.Context, id string) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (q queries) ListCollectionsByOwner(ctx context.Context, ownerWallet string) ([]collection.Collection, error) {
	var rows []collectionRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT `+collectionColumns+` FROM collections
		WHERE LOWER(owner_wallet) = LOWER($1) ORDER BY priority, id`, ownerWallet)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]collection.Collection, 0, len(rows))
	for _, r := range rows {
		out = append(out, collection.Collection(r))
	}
	return out, nil
}
