// Package payment handles token transfer submission: relaying client-signed
// EVM payloads and sending server-signed Cosmos transfers.
package payment

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/likecoin/likecoin-api-public/internal/analytics"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/metrics"
	ledgersvc "github.com/likecoin/likecoin-api-public/internal/app/services/ledger"
	"github.com/likecoin/likecoin-api-public/internal/chain"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

// RawBroadcaster relays a client-signed EVM transaction.
type RawBroadcaster interface {
	SendRawTransaction(ctx context.Context, signedTxHex string) (string, error)
}

// Service validates and submits payments, logging every broadcast.
type Service struct {
	evm       RawBroadcaster
	ledger    *ledgersvc.Service
	analytics *analytics.Publisher
	log       *logger.Logger
}

// New constructs a payment service.
func New(evm RawBroadcaster, ledgerSvc *ledgersvc.Service, pub *analytics.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payment")
	}
	return &Service{
		evm:       evm,
		ledger:    ledgerSvc,
		analytics: pub,
		log:       log,
	}
}

// PayRequest carries a single client-signed transfer.
type PayRequest struct {
	From     string
	To       string
	Amount   string
	SignedTx string
	Metadata map[string]string
	Remarks  string
}

// PayResult reports the broadcast outcome.
type PayResult struct {
	TxHash      string
	UpdateToken string
}

// Pay relays a signed single-recipient transfer and records it. When the
// broadcast succeeds but logging fails, the hash is still returned: the
// on-chain effect is irreversible and more valuable to report than to hide.
func (s *Service) Pay(ctx context.Context, req PayRequest) (PayResult, error) {
	if err := validateTransfer(req.From, []string{req.To}, []string{req.Amount}); err != nil {
		return PayResult{}, err
	}
	if strings.TrimSpace(req.SignedTx) == "" {
		return PayResult{}, apperrors.Validation("signed transaction payload is required")
	}

	txHash, err := s.broadcast(ctx, req.SignedTx)
	if err != nil {
		return PayResult{}, err
	}

	token := uuid.NewString()
	record := ledger.Transaction{
		TxHash:      txHash,
		Type:        ledger.TypeTransfer,
		From:        chain.NormalizeEVMAddress(req.From),
		To:          []string{chain.NormalizeEVMAddress(req.To)},
		Amounts:     []string{req.Amount},
		TotalAmount: req.Amount,
		Status:      ledger.StatusPending,
		RawPayload:  req.SignedTx,
		UpdateToken: token,
		Metadata:    req.Metadata,
		Remarks:     req.Remarks,
	}
	s.logBroadcast(ctx, record)

	s.analytics.Publish(ctx, analytics.Event{
		Name:   "payment",
		Wallet: record.From,
		TxHash: txHash,
		Value:  req.Amount,
	})
	return PayResult{TxHash: txHash, UpdateToken: token}, nil
}

// MultiPayRequest carries a client-signed batched transfer.
type MultiPayRequest struct {
	From     string
	To       []string
	Amounts  []string
	SignedTx string
	Metadata map[string]string
	Remarks  string
}

// MultiPay relays a signed batched transfer and records a single ledger
// entry carrying every recipient.
func (s *Service) MultiPay(ctx context.Context, req MultiPayRequest) (PayResult, error) {
	if len(req.To) == 0 {
		return PayResult{}, apperrors.Validation("at least one recipient is required")
	}
	if len(req.To) != len(req.Amounts) {
		return PayResult{}, apperrors.Validation("recipient and amount counts differ")
	}
	if err := validateTransfer(req.From, req.To, req.Amounts); err != nil {
		return PayResult{}, err
	}
	if strings.TrimSpace(req.SignedTx) == "" {
		return PayResult{}, apperrors.Validation("signed transaction payload is required")
	}

	total := new(big.Int)
	for _, amount := range req.Amounts {
		v, ok := new(big.Int).SetString(amount, 10)
		if !ok || v.Sign() <= 0 {
			return PayResult{}, apperrors.Validation(fmt.Sprintf("invalid amount %q", amount))
		}
		total.Add(total, v)
	}

	txHash, err := s.broadcast(ctx, req.SignedTx)
	if err != nil {
		return PayResult{}, err
	}

	to := make([]string, len(req.To))
	for i, addr := range req.To {
		to[i] = chain.NormalizeEVMAddress(addr)
	}
	token := uuid.NewString()
	record := ledger.Transaction{
		TxHash:      txHash,
		Type:        ledger.TypeMultiPay,
		From:        chain.NormalizeEVMAddress(req.From),
		To:          to,
		Amounts:     req.Amounts,
		TotalAmount: total.String(),
		Status:      ledger.StatusPending,
		RawPayload:  req.SignedTx,
		UpdateToken: token,
		Metadata:    req.Metadata,
		Remarks:     req.Remarks,
	}
	s.logBroadcast(ctx, record)

	s.analytics.Publish(ctx, analytics.Event{
		Name:   "multipay",
		Wallet: record.From,
		TxHash: txHash,
		Value:  total.String(),
		Labels: map[string]string{"recipients": strconv.Itoa(len(to))},
	})
	return PayResult{TxHash: txHash, UpdateToken: token}, nil
}

func (s *Service) broadcast(ctx context.Context, signedTx string) (string, error) {
	start := time.Now()
	txHash, err := s.evm.SendRawTransaction(ctx, signedTx)
	if err != nil {
		metrics.RecordBroadcast("evm", "failed", time.Since(start))
		return "", apperrors.Upstream("transaction broadcast failed").WithCause(err)
	}
	metrics.RecordBroadcast("evm", "ok", time.Since(start))
	return txHash, nil
}

func (s *Service) logBroadcast(ctx context.Context, record ledger.Transaction) {
	if _, err := s.ledger.LogTx(ctx, record); err != nil {
		s.log.WithError(err).
			WithField("tx_hash", record.TxHash).
			Error("broadcast succeeded but logging failed")
	}
}

func validateTransfer(from string, to, amounts []string) error {
	if !chain.IsValidEVMAddress(from) {
		return apperrors.Validation("invalid sender address")
	}
	for _, addr := range to {
		if !chain.IsValidEVMAddress(addr) {
			return apperrors.Validation(fmt.Sprintf("invalid recipient address %q", addr))
		}
		if strings.EqualFold(addr, from) {
			return apperrors.Validation("sender cannot pay itself")
		}
	}
	for _, amount := range amounts {
		v, ok := new(big.Int).SetString(amount, 10)
		if !ok || v.Sign() <= 0 {
			return apperrors.Validation(fmt.Sprintf("invalid amount %q", amount))
		}
	}
	return nil
}
