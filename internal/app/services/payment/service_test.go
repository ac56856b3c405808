package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	ledgersvc "github.com/likecoin/likecoin-api-public/internal/app/services/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/storage/memory"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
)

const (
	senderAddr    = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	recipientAddr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	recipient2    = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

type fakeEVM struct {
	hash  string
	err   error
	calls int
	last  string
}

func (f *fakeEVM) SendRawTransaction(_ context.Context, signedTxHex string) (string, error) {
	f.calls++
	f.last = signedTxHex
	if f.err != nil {
		return "", f.err
	}
	return f.hash, nil
}

func newTestService(evm *fakeEVM) (*Service, *memory.Store) {
	store := memory.New()
	return New(evm, ledgersvc.New(store, store, time.Hour, nil), nil, nil), store
}

func TestPayBroadcastsAndLogs(t *testing.T) {
	evm := &fakeEVM{hash: "0xdead"}
	svc, store := newTestService(evm)

	res, err := svc.Pay(context.Background(), PayRequest{
		From:     senderAddr,
		To:       recipientAddr,
		Amount:   "1000",
		SignedTx: "0xf86c...",
		Metadata: map[string]string{"app": "liker-land", "bogus": "dropped"},
	})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if res.TxHash != "0xdead" || res.UpdateToken == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	record, err := store.GetTransaction(context.Background(), "0xdead")
	if err != nil {
		t.Fatalf("record not logged: %v", err)
	}
	if record.Status != ledger.StatusPending || record.TotalAmount != "1000" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.UpdateToken != res.UpdateToken {
		t.Fatal("update token not persisted")
	}
	if _, ok := record.Metadata["bogus"]; ok {
		t.Fatal("unallowlisted metadata kept")
	}
}

func TestPayValidation(t *testing.T) {
	evm := &fakeEVM{hash: "0xdead"}
	svc, _ := newTestService(evm)
	ctx := context.Background()

	cases := []PayRequest{
		{From: "nonsense", To: recipientAddr, Amount: "1", SignedTx: "0x1"},
		{From: senderAddr, To: "nonsense", Amount: "1", SignedTx: "0x1"},
		{From: senderAddr, To: senderAddr, Amount: "1", SignedTx: "0x1"},
		{From: senderAddr, To: recipientAddr, Amount: "-5", SignedTx: "0x1"},
		{From: senderAddr, To: recipientAddr, Amount: "1", SignedTx: ""},
	}
	for i, req := range cases {
		_, err := svc.Pay(ctx, req)
		svcErr, ok := apperrors.AsServiceError(err)
		if !ok || svcErr.Code != apperrors.CodeValidation {
			t.Fatalf("case %d: got %v, want validation error", i, err)
		}
	}
	if evm.calls != 0 {
		t.Fatalf("broadcast attempted %d times for invalid requests", evm.calls)
	}
}

func TestPayUpstreamFailure(t *testing.T) {
	evm := &fakeEVM{err: errors.New("node down")}
	svc, store := newTestService(evm)

	_, err := svc.Pay(context.Background(), PayRequest{
		From: senderAddr, To: recipientAddr, Amount: "1", SignedTx: "0x1",
	})
	svcErr, ok := apperrors.AsServiceError(err)
	if !ok || svcErr.Code != apperrors.CodeUpstream {
		t.Fatalf("got %v, want upstream error", err)
	}
	if txs, _ := store.ListTransactionsByStatus(context.Background(), ledger.StatusPending, 0); len(txs) != 0 {
		t.Fatal("failed broadcast must not be logged")
	}
}

func TestPayReturnsHashWhenLoggingFails(t *testing.T) {
	evm := &fakeEVM{hash: "0xdead"}
	svc, store := newTestService(evm)

	// Pre-existing record for the same hash makes LogTx fail.
	if _, err := store.CreateTransaction(context.Background(), ledger.Transaction{
		TxHash: "0xdead",
		Type:   ledger.TypeTransfer,
		Status: ledger.StatusPending,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.Pay(context.Background(), PayRequest{
		From: senderAddr, To: recipientAddr, Amount: "1", SignedTx: "0x1",
	})
	if err != nil {
		t.Fatalf("Pay must still succeed: %v", err)
	}
	if res.TxHash != "0xdead" {
		t.Fatalf("hash = %q", res.TxHash)
	}
}

func TestMultiPaySumsAmounts(t *testing.T) {
	evm := &fakeEVM{hash: "0xbeef"}
	svc, store := newTestService(evm)

	res, err := svc.MultiPay(context.Background(), MultiPayRequest{
		From:     senderAddr,
		To:       []string{recipientAddr, recipient2},
		Amounts:  []string{"100", "250"},
		SignedTx: "0xf86c...",
	})
	if err != nil {
		t.Fatalf("MultiPay: %v", err)
	}

	record, err := store.GetTransaction(context.Background(), res.TxHash)
	if err != nil {
		t.Fatalf("record not logged: %v", err)
	}
	if record.Type != ledger.TypeMultiPay || record.TotalAmount != "350" {
		t.Fatalf("unexpected record %+v", record)
	}
	if len(record.To) != 2 {
		t.Fatalf("recipients = %v", record.To)
	}
}

func TestMultiPayCountMismatch(t *testing.T) {
	evm := &fakeEVM{hash: "0xbeef"}
	svc, _ := newTestService(evm)

	_, err := svc.MultiPay(context.Background(), MultiPayRequest{
		From:     senderAddr,
		To:       []string{recipientAddr, recipient2},
		Amounts:  []string{"100"},
		SignedTx: "0x1",
	})
	svcErr, ok := apperrors.AsServiceError(err)
	if !ok || svcErr.Code != apperrors.CodeValidation {
		t.Fatalf("got %v, want validation error", err)
	}
}
