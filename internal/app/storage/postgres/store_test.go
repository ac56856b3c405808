package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/reward"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres")), mock
}

func TestGetTransactionNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM transactions WHERE tx_hash").
		WithArgs("0xmissing").
		WillReturnRows(sqlmock.NewRows([]string{"tx_hash"}))

	_, err := s.GetTransaction(context.Background(), "0xmissing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateTransactionDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := s.CreateTransaction(context.Background(), ledger.Transaction{
		TxHash: "0xdead",
		Type:   ledger.TypeTransfer,
		Status: ledger.StatusPending,
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetTransactionRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"tx_hash", "tx_type", "from_address", "to_addresses", "amounts",
		"total_amount", "status", "sequence", "raw_payload", "update_token",
		"metadata", "remarks", "fail_reason", "created_at", "completed_at", "updated_at",
	}).AddRow(
		"0xdead", "transfer", "0xaaa", "{0xbbb,0xccc}", "{1,2}",
		"3", "pending", int64(7), "", "tok",
		[]byte(`{"app":"liker-land"}`), "", "", now, time.Time{}, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM transactions WHERE tx_hash").
		WithArgs("0xdead").
		WillReturnRows(rows)

	tx, err := s.GetTransaction(context.Background(), "0xdead")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if len(tx.To) != 2 || tx.To[1] != "0xccc" {
		t.Fatalf("to addresses not decoded: %+v", tx.To)
	}
	if tx.Sequence != 7 {
		t.Fatalf("sequence = %d, want 7", tx.Sequence)
	}
	if tx.Metadata["app"] != "liker-land" {
		t.Fatalf("metadata not decoded: %+v", tx.Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRunTransactionLocksRows(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM coupons WHERE code = (.+) FOR UPDATE").
		WithArgs("WELCOME").
		WillReturnRows(sqlmock.NewRows([]string{
			"code", "value", "expires_at", "is_claimed", "is_invalidated",
			"assigned_wallet", "claimed_by_wallet", "claimed_at", "claim_tx_hash",
			"created_at", "updated_at",
		}).AddRow("WELCOME", int64(100), time.Time{}, false, false, "", "", time.Time{}, "", now, now))
	mock.ExpectExec("UPDATE coupons SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		c, err := tx.Rewards().GetCoupon(ctx, "WELCOME")
		if err != nil {
			return err
		}
		c.IsClaimed = true
		_, err = tx.Rewards().UpdateCoupon(ctx, c)
		return err
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRunTransactionRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM coupons WHERE code = (.+) FOR UPDATE").
		WithArgs("WELCOME").
		WillReturnRows(sqlmock.NewRows([]string{"code"}))
	mock.ExpectRollback()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.Rewards().GetCoupon(ctx, "WELCOME")
		return err
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListClaimableBonusesFilters(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM bonuses").
		WithArgs("alice", reward.BonusTypeReferral, now).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "bonus_type", "value", "wait_for_claim",
			"effective_ts", "claimed_at", "claim_tx_hash", "created_at", "updated_at",
		}).AddRow("b1", "alice", reward.BonusTypeReferral, int64(5), true, time.Time{}, time.Time{}, "", now, now))

	got, err := s.ListClaimableBonuses(context.Background(), "alice", reward.BonusTypeReferral, now)
	if err != nil {
		t.Fatalf("ListClaimableBonuses: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b1" || got[0].Value != 5 {
		t.Fatalf("unexpected bonuses %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
