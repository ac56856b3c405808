package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	ledgersvc "github.com/likecoin/likecoin-api-public/internal/app/services/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/storage/memory"
	"github.com/likecoin/likecoin-api-public/internal/chain"
)

type fakeResolver struct {
	done    bool
	success bool
	reason  string
	err     error
	calls   int
}

func (f *fakeResolver) Resolve(ctx context.Context, tx ledger.Transaction) (bool, bool, string, time.Duration, error) {
	f.calls++
	return f.done, f.success, f.reason, 0, f.err
}

func seedPending(t *testing.T, store *memory.Store, hash string) {
	t.Helper()
	_, err := store.CreateTransaction(context.Background(), ledger.Transaction{
		TxHash: hash,
		Type:   ledger.TypeTransfer,
		From:   "like1sender",
		Status: ledger.StatusPending,
	})
	if err != nil {
		t.Fatalf("seed tx: %v", err)
	}
}

func newTestPoller(t *testing.T, resolver TxResolver) (*Poller, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := ledgersvc.New(store, store, 0, nil)
	return New(store, svc, resolver, nil), store
}

func TestTickSettlesSuccess(t *testing.T) {
	resolver := &fakeResolver{done: true, success: true}
	p, store := newTestPoller(t, resolver)
	ctx := context.Background()
	seedPending(t, store, "0xsettled")

	p.tick(ctx)

	tx, err := store.GetTransaction(ctx, "0xsettled")
	if err != nil {
		t.Fatalf("get tx: %v", err)
	}
	if tx.Status != ledger.StatusComplete {
		t.Fatalf("status = %q, want complete", tx.Status)
	}
	if tx.CompletedAt.IsZero() {
		t.Fatal("completed timestamp not set")
	}
}

func TestTickSettlesFailure(t *testing.T) {
	resolver := &fakeResolver{done: true, success: false, reason: "out of gas"}
	p, store := newTestPoller(t, resolver)
	ctx := context.Background()
	seedPending(t, store, "0xreverted")

	p.tick(ctx)

	tx, err := store.GetTransaction(ctx, "0xreverted")
	if err != nil {
		t.Fatalf("get tx: %v", err)
	}
	if tx.Status != ledger.StatusFailed {
		t.Fatalf("status = %q, want failed", tx.Status)
	}
	if tx.FailReason != "out of gas" {
		t.Fatalf("fail reason = %q", tx.FailReason)
	}
}

func TestTickBacksOffUnresolved(t *testing.T) {
	resolver := &fakeResolver{done: false}
	p, store := newTestPoller(t, resolver)
	ctx := context.Background()
	seedPending(t, store, "0xpending")

	p.tick(ctx)
	p.tick(ctx)

	// The second tick lands inside the backoff window and skips the hash.
	if resolver.calls != 1 {
		t.Fatalf("resolver called %d times, want 1", resolver.calls)
	}
	tx, err := store.GetTransaction(ctx, "0xpending")
	if err != nil {
		t.Fatalf("get tx: %v", err)
	}
	if tx.Status != ledger.StatusPending {
		t.Fatalf("status = %q, want pending", tx.Status)
	}
}

func TestTickToleratesResolverError(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("node unreachable")}
	p, store := newTestPoller(t, resolver)
	ctx := context.Background()
	seedPending(t, store, "0xflaky")

	p.tick(ctx)

	tx, err := store.GetTransaction(ctx, "0xflaky")
	if err != nil {
		t.Fatalf("get tx: %v", err)
	}
	if tx.Status != ledger.StatusPending {
		t.Fatalf("status = %q, want pending", tx.Status)
	}
}

type fakeCosmos struct {
	status chain.TxStatus
	err    error
}

func (f *fakeCosmos) GetTx(ctx context.Context, txHash string) (chain.TxStatus, error) {
	return f.status, f.err
}

type fakeEVM struct {
	receipt *chain.TransactionReceipt
	calls   int
}

func (f *fakeEVM) GetTransactionReceipt(ctx context.Context, txHash string) (*chain.TransactionReceipt, error) {
	f.calls++
	return f.receipt, nil
}

func TestChainResolverCosmos(t *testing.T) {
	ctx := context.Background()
	cosmosTx := ledger.Transaction{TxHash: "ABC123", From: "like1sender"}

	r := NewChainResolver(&fakeCosmos{status: chain.TxStatus{Found: true, Code: 0}}, nil, 0)
	done, success, _, _, err := r.Resolve(ctx, cosmosTx)
	if err != nil || !done || !success {
		t.Fatalf("success resolve = (%t, %t, %v)", done, success, err)
	}

	r = NewChainResolver(&fakeCosmos{status: chain.TxStatus{Found: true, Code: 11, RawLog: "out of gas"}}, nil, 0)
	done, success, reason, _, err := r.Resolve(ctx, cosmosTx)
	if err != nil || !done || success {
		t.Fatalf("failed resolve = (%t, %t, %v)", done, success, err)
	}
	if reason != "out of gas" {
		t.Fatalf("reason = %q", reason)
	}

	r = NewChainResolver(&fakeCosmos{status: chain.TxStatus{Found: false}}, nil, 0)
	done, _, _, _, err = r.Resolve(ctx, cosmosTx)
	if err != nil || done {
		t.Fatalf("unindexed resolve = (%t, %v)", done, err)
	}
}

func TestChainResolverPicksEVMBySenderForm(t *testing.T) {
	ctx := context.Background()
	evm := &fakeEVM{receipt: &chain.TransactionReceipt{Status: "0x1"}}
	r := NewChainResolver(&fakeCosmos{}, evm, 0)

	done, success, _, _, err := r.Resolve(ctx, ledger.Transaction{TxHash: "0xdef", From: "0xAbCd00000000000000000000000000000000beef"})
	if err != nil || !done || !success {
		t.Fatalf("evm resolve = (%t, %t, %v)", done, success, err)
	}
	if evm.calls != 1 {
		t.Fatalf("evm client called %d times", evm.calls)
	}

	evm.receipt = &chain.TransactionReceipt{Status: "0x0"}
	done, success, _, _, err = r.Resolve(ctx, ledger.Transaction{TxHash: "0xdef2", From: "0xAbCd00000000000000000000000000000000beef"})
	if err != nil || !done || success {
		t.Fatalf("reverted resolve = (%t, %t, %v)", done, success, err)
	}
}

func TestChainResolverTimeout(t *testing.T) {
	r := NewChainResolver(&fakeCosmos{status: chain.TxStatus{Found: false}}, nil, time.Minute)
	tx := ledger.Transaction{TxHash: "STUCK", From: "like1sender"}
	ctx := context.Background()

	if done, _, _, _, _ := r.Resolve(ctx, tx); done {
		t.Fatal("fresh hash reported done")
	}
	r.seen.Store("STUCK", time.Now().Add(-2*time.Minute))
	done, success, reason, _, err := r.Resolve(ctx, tx)
	if err != nil || !done || success {
		t.Fatalf("timeout resolve = (%t, %t, %v)", done, success, err)
	}
	if reason == "" {
		t.Fatal("timeout reason empty")
	}
}

func TestStartStop(t *testing.T) {
	p, _ := newTestPoller(t, &fakeResolver{})
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("double start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("double stop: %v", err)
	}
}
