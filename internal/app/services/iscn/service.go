// Package iscn implements the content registration flow: price estimate,
// content-addressed upload, and on-chain ISCN record creation.
package iscn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/iscn"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	ledgersvc "github.com/likecoin/likecoin-api-public/internal/app/services/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
	"github.com/likecoin/likecoin-api-public/internal/arweave"
	"github.com/likecoin/likecoin-api-public/internal/chain"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

const (
	maxContentSize    = 32 << 20
	accessTokenTTL    = time.Hour
	iscnRecordVersion = 1
)

// Uploader stores content permanently and quotes upload prices.
type Uploader interface {
	Price(ctx context.Context, size int64) (*big.Int, error)
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// MsgSender signs and broadcasts Cosmos messages from the service wallet.
type MsgSender interface {
	SendMsgs(ctx context.Context, msgs []chain.Msg, memo string) (string, error)
}

// Service drives the estimate, upload and register states.
type Service struct {
	store    storage.ISCNStore
	uploader Uploader
	sender   MsgSender
	ledger   *ledgersvc.Service
	log      *logger.Logger
	now      func() time.Time
}

// New constructs an ISCN service.
func New(store storage.ISCNStore, uploader Uploader, sender MsgSender, ledgerSvc *ledgersvc.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("iscn")
	}
	return &Service{
		store:    store,
		uploader: uploader,
		sender:   sender,
		ledger:   ledgerSvc,
		log:      log,
		now:      time.Now,
	}
}

// Estimate quotes the storage price for a payload of the given size. It has
// no side effects.
func (s *Service) Estimate(ctx context.Context, size int64) (*big.Int, error) {
	if size <= 0 {
		return nil, apperrors.Validation("content size must be positive")
	}
	if size > maxContentSize {
		return nil, apperrors.Validation("content exceeds the size limit")
	}
	price, err := s.uploader.Price(ctx, size)
	if err != nil {
		return nil, apperrors.Upstream("storage price quote failed").WithCause(err)
	}
	return price, nil
}

// Upload stores content permanently. Upload is content-addressed: a repeat
// upload of bytes already stored returns the existing record untouched.
func (s *Service) Upload(ctx context.Context, ownerWallet string, data []byte, contentType string) (iscn.Record, error) {
	if !chain.IsValidLikeAddress(ownerWallet) && !chain.IsValidCosmosAddress(ownerWallet) {
		return iscn.Record{}, apperrors.Validation("invalid owner wallet")
	}
	if len(data) == 0 {
		return iscn.Record{}, apperrors.Validation("content is empty")
	}
	if len(data) > maxContentSize {
		return iscn.Record{}, apperrors.Validation("content exceeds the size limit")
	}

	contentHash := arweave.ContentHash(data)
	existing, err := s.store.GetISCNRecordByContentHash(ctx, contentHash)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return iscn.Record{}, err
	}

	arweaveID, err := s.uploader.Upload(ctx, data, contentType)
	if err != nil {
		return iscn.Record{}, apperrors.Upstream("content upload failed").WithCause(err)
	}

	now := s.now().UTC()
	record := iscn.Record{
		OwnerWallet:    ownerWallet,
		ContentHash:    contentHash,
		ContentType:    contentType,
		ContentSize:    int64(len(data)),
		ArweaveID:      arweaveID,
		Status:         iscn.StatusPending,
		OwnershipToken: randomToken(),
		AuthToken:      randomToken(),
		UploadedAt:     now,
	}
	created, err := s.store.CreateISCNRecord(ctx, record)
	if err != nil {
		// A concurrent upload of the same bytes may have won the insert.
		if errors.Is(err, storage.ErrAlreadyExists) {
			return s.store.GetISCNRecordByContentHash(ctx, contentHash)
		}
		return iscn.Record{}, err
	}
	s.log.WithField("record_id", created.ID).
		WithField("arweave_id", arweaveID).
		Info("content uploaded")
	return created, nil
}

// RegisterRequest carries the on-chain record fields.
type RegisterRequest struct {
	RecordID      string
	AuthToken     string
	Title         string
	Description   string
	TransferOwner bool
}

// Register creates the ISCN record on-chain. There is no rollback to the
// upload state: a failed register leaves the content stored but unlinked
// and can be reattempted.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (iscn.Record, error) {
	record, err := s.get(ctx, req.RecordID)
	if err != nil {
		return iscn.Record{}, err
	}
	if record.AuthToken == "" || record.AuthToken != req.AuthToken {
		return iscn.Record{}, apperrors.Unauthorized("invalid authorization token")
	}
	if record.Status == iscn.StatusComplete {
		return iscn.Record{}, apperrors.Conflict("record already registered")
	}
	if strings.TrimSpace(req.Title) == "" {
		return iscn.Record{}, apperrors.Validation("title is required")
	}

	msgs := []chain.Msg{{
		Type: "likecoin-chain/MsgCreateIscnRecord",
		Value: map[string]interface{}{
			"from": record.OwnerWallet,
			"record": map[string]interface{}{
				"contentFingerprints": []string{
					"ar://" + record.ArweaveID,
					"hash://sha256/" + record.ContentHash,
				},
				"contentMetadata": map[string]interface{}{
					"title":       req.Title,
					"description": req.Description,
				},
			},
		},
	}}
	if req.TransferOwner {
		msgs = append(msgs, chain.Msg{
			Type: "likecoin-chain/MsgChangeIscnRecordOwnership",
			Value: map[string]interface{}{
				"from":      record.OwnerWallet,
				"new_owner": record.OwnerWallet,
			},
		})
	}

	txHash, err := s.sender.SendMsgs(ctx, msgs, "iscn register")
	if err != nil {
		return iscn.Record{}, apperrors.Upstream("iscn broadcast failed").WithCause(err)
	}

	now := s.now().UTC()
	record.TxHash = txHash
	record.ISCNID = fmt.Sprintf("iscn://likecoin-chain/%s/%d", record.ContentHash, iscnRecordVersion)
	record.Status = iscn.StatusComplete
	record.RegisteredAt = now
	updated, err := s.store.UpdateISCNRecord(ctx, record)
	if err != nil {
		s.log.WithError(err).
			WithField("record_id", record.ID).
			WithField("tx_hash", txHash).
			Error("iscn broadcast succeeded but record update failed")
		updated = record
	}

	if s.ledger != nil {
		if _, err := s.ledger.LogTx(ctx, ledger.Transaction{
			TxHash:   txHash,
			Type:     ledger.TypeISCN,
			From:     record.OwnerWallet,
			Status:   ledger.StatusPending,
			Metadata: map[string]string{"iscn_id": updated.ISCNID},
		}); err != nil {
			s.log.WithError(err).WithField("tx_hash", txHash).Error("log iscn transaction")
		}
	}

	s.log.WithField("record_id", record.ID).
		WithField("iscn_id", updated.ISCNID).
		WithField("tx_hash", txHash).
		Info("iscn record registered")
	return updated, nil
}

// RotateAccessToken issues a fresh short-lived access token. The caller
// must present the record's authorization or ownership token.
func (s *Service) RotateAccessToken(ctx context.Context, recordID, callerToken string) (iscn.Record, error) {
	record, err := s.get(ctx, recordID)
	if err != nil {
		return iscn.Record{}, err
	}
	if callerToken == "" || (callerToken != record.AuthToken && callerToken != record.OwnershipToken) {
		return iscn.Record{}, apperrors.Unauthorized("invalid token")
	}

	record.AccessToken = randomToken()
	record.AccessTokenExp = s.now().UTC().Add(accessTokenTTL)
	return s.store.UpdateISCNRecord(ctx, record)
}

// Get returns a record by ID.
func (s *Service) Get(ctx context.Context, recordID string) (iscn.Record, error) {
	return s.get(ctx, recordID)
}

// ListByOwner returns the records owned by a wallet.
func (s *Service) ListByOwner(ctx context.Context, ownerWallet string) ([]iscn.Record, error) {
	return s.store.ListISCNRecordsByOwner(ctx, ownerWallet)
}

func (s *Service) get(ctx context.Context, recordID string) (iscn.Record, error) {
	record, err := s.store.GetISCNRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return iscn.Record{}, apperrors.NotFound("record not found").WithCause(err)
		}
		return iscn.Record{}, err
	}
	return record, nil
}

func randomToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random: %v", err))
	}
	return hex.EncodeToString(buf)
}
