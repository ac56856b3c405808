// Package ledger records transactions and guards their one-shot metadata
// and status updates.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

// DefaultMetadataWindow bounds how long after creation a record accepts a
// metadata write.
const DefaultMetadataWindow = time.Hour

// Caller identifies who is attempting a metadata update.
type Caller struct {
	Wallet      string
	UpdateToken string
}

// Service logs transactions and applies their single metadata and status
// updates.
type Service struct {
	store      storage.LedgerStore
	transactor storage.Transactor
	window     time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// New constructs a ledger service. A zero window falls back to the default.
func New(store storage.LedgerStore, transactor storage.Transactor, window time.Duration, log *logger.Logger) *Service {
	if window <= 0 {
		window = DefaultMetadataWindow
	}
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{
		store:      store,
		transactor: transactor,
		window:     window,
		log:        log,
		now:        time.Now,
	}
}

// LogTx creates the record for a broadcast transaction. A second log of the
// same hash fails without mutating the stored record.
func (s *Service) LogTx(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	tx.TxHash = strings.TrimSpace(tx.TxHash)
	if tx.TxHash == "" {
		return ledger.Transaction{}, apperrors.Validation("tx hash is required")
	}
	if ledger.MetadataAllowlist(tx.Type) == nil {
		return ledger.Transaction{}, apperrors.Validation("unknown transaction type")
	}
	if tx.Status == "" {
		tx.Status = ledger.StatusPending
	}
	tx.Metadata = ledger.FilterMetadata(tx.Type, tx.Metadata)

	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return ledger.Transaction{}, apperrors.AlreadyExists("transaction already logged").WithCause(err)
		}
		return ledger.Transaction{}, err
	}
	s.log.WithField("tx_hash", created.TxHash).
		WithField("type", created.Type).
		Info("transaction logged")
	return created, nil
}

// UpdateTxMetadata attaches metadata to a record exactly once. The caller
// must be the original sender or present the record's update token, and the
// record must still be within the freshness window.
func (s *Service) UpdateTxMetadata(ctx context.Context, txHash string, metadata map[string]string, caller Caller) (ledger.Transaction, error) {
	var updated ledger.Transaction
	err := s.transactor.RunTransaction(ctx, func(ctx context.Context, st storage.Tx) error {
		tx, err := st.Ledger().GetTransaction(ctx, txHash)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.NotFound("transaction not found").WithCause(err)
			}
			return err
		}

		if len(tx.Metadata) > 0 {
			return apperrors.Conflict("metadata already set")
		}
		if s.now().Sub(tx.CreatedAt) > s.window {
			return apperrors.Expired("metadata window has passed")
		}
		if !s.authorized(tx, caller) {
			return apperrors.Unauthorized("caller may not update this transaction")
		}

		filtered := ledger.FilterMetadata(tx.Type, metadata)
		if len(filtered) == 0 {
			return apperrors.Validation("no accepted metadata fields")
		}

		tx.Metadata = filtered
		updated, err = st.Ledger().UpdateTransaction(ctx, tx)
		return err
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.log.WithField("tx_hash", txHash).Info("transaction metadata attached")
	return updated, nil
}

func (s *Service) authorized(tx ledger.Transaction, caller Caller) bool {
	if caller.Wallet != "" && strings.EqualFold(caller.Wallet, tx.From) {
		return true
	}
	if caller.UpdateToken != "" && tx.UpdateToken != "" && caller.UpdateToken == tx.UpdateToken {
		return true
	}
	return false
}

// MarkComplete transitions a pending record to complete.
func (s *Service) MarkComplete(ctx context.Context, txHash string, completedAt time.Time) (ledger.Transaction, error) {
	return s.transition(ctx, txHash, ledger.StatusComplete, "", completedAt)
}

// MarkFailed transitions a pending record to failed with a reason.
func (s *Service) MarkFailed(ctx context.Context, txHash, reason string) (ledger.Transaction, error) {
	return s.transition(ctx, txHash, ledger.StatusFailed, reason, time.Time{})
}

func (s *Service) transition(ctx context.Context, txHash, status, reason string, completedAt time.Time) (ledger.Transaction, error) {
	var updated ledger.Transaction
	err := s.transactor.RunTransaction(ctx, func(ctx context.Context, st storage.Tx) error {
		tx, err := st.Ledger().GetTransaction(ctx, txHash)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.NotFound("transaction not found").WithCause(err)
			}
			return err
		}
		if tx.Status != ledger.StatusPending {
			return apperrors.Conflict("transaction already in terminal state")
		}

		tx.Status = status
		tx.FailReason = reason
		tx.CompletedAt = completedAt
		updated, err = st.Ledger().UpdateTransaction(ctx, tx)
		return err
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.log.WithField("tx_hash", txHash).
		WithField("status", status).
		Info("transaction status updated")
	return updated, nil
}

// GetTx returns the record for a hash.
func (s *Service) GetTx(ctx context.Context, txHash string) (ledger.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, txHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ledger.Transaction{}, apperrors.NotFound("transaction not found").WithCause(err)
		}
		return ledger.Transaction{}, err
	}
	return tx, nil
}

// ListByAddress returns the records where the address is sender or receiver.
func (s *Service) ListByAddress(ctx context.Context, address string, limit int) ([]ledger.Transaction, error) {
	if strings.TrimSpace(address) == "" {
		return nil, apperrors.Validation("address is required")
	}
	return s.store.ListTransactionsByAddress(ctx, address, limit)
}
