package iscn

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	ledgersvc "github.com/likecoin/likecoin-api-public/internal/app/services/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/storage/memory"
	"github.com/likecoin/likecoin-api-public/internal/chain"
)

const testOwner = "like1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lzv7xu"

type fakeUploader struct {
	price      *big.Int
	priceErr   error
	uploadErr  error
	uploadCall int32
}

func (f *fakeUploader) Price(ctx context.Context, size int64) (*big.Int, error) {
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	if f.price != nil {
		return new(big.Int).Set(f.price), nil
	}
	return big.NewInt(size * 10), nil
}

func (f *fakeUploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	atomic.AddInt32(&f.uploadCall, 1)
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "ar-tx-1", nil
}

type fakeSender struct {
	err   error
	calls int32
	msgs  []chain.Msg
}

func (f *fakeSender) SendMsgs(ctx context.Context, msgs []chain.Msg, memo string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	f.msgs = msgs
	return "iscn-tx-hash", nil
}

func newTestService(t *testing.T) (*Service, *fakeUploader, *fakeSender, *memory.Store) {
	t.Helper()
	store := memory.New()
	uploader := &fakeUploader{}
	sender := &fakeSender{}
	svc := New(store, uploader, sender, ledgersvc.New(store, store, 0, nil), nil)
	return svc, uploader, sender, store
}

func TestEstimate(t *testing.T) {
	svc, uploader, _, _ := newTestService(t)
	ctx := context.Background()

	price, err := svc.Estimate(ctx, 1000)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if price.Int64() != 10000 {
		t.Fatalf("price = %s, want 10000", price)
	}
	if n := atomic.LoadInt32(&uploader.uploadCall); n != 0 {
		t.Fatalf("estimate triggered %d uploads", n)
	}

	if _, err := svc.Estimate(ctx, 0); err == nil {
		t.Fatal("zero size accepted")
	}
	if _, err := svc.Estimate(ctx, maxContentSize+1); err == nil {
		t.Fatal("oversized content accepted")
	}
}

func TestUploadContentAddressed(t *testing.T) {
	svc, uploader, _, _ := newTestService(t)
	ctx := context.Background()
	data := []byte("hello content")

	first, err := svc.Upload(ctx, testOwner, data, "text/plain")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if first.ArweaveID != "ar-tx-1" {
		t.Fatalf("arweave id = %q", first.ArweaveID)
	}
	if first.Status != "pending" {
		t.Fatalf("status = %q, want pending", first.Status)
	}
	if first.OwnershipToken == "" || first.AuthToken == "" {
		t.Fatal("tokens not issued")
	}
	if first.OwnershipToken == first.AuthToken {
		t.Fatal("ownership and auth tokens collide")
	}

	// Same bytes return the existing record without another upload.
	second, err := svc.Upload(ctx, testOwner, data, "text/plain")
	if err != nil {
		t.Fatalf("repeat upload: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("repeat upload created a new record %q", second.ID)
	}
	if n := atomic.LoadInt32(&uploader.uploadCall); n != 1 {
		t.Fatalf("uploader called %d times, want 1", n)
	}
}

func TestUploadValidation(t *testing.T) {
	svc, uploader, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upload(ctx, "0xabc", []byte("x"), "text/plain"); err == nil {
		t.Fatal("evm wallet accepted as owner")
	}
	if _, err := svc.Upload(ctx, testOwner, nil, "text/plain"); err == nil {
		t.Fatal("empty content accepted")
	}
	if n := atomic.LoadInt32(&uploader.uploadCall); n != 0 {
		t.Fatalf("invalid requests reached the uploader %d times", n)
	}
}

func TestRegister(t *testing.T) {
	svc, _, sender, store := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Upload(ctx, testOwner, []byte("registered work"), "text/plain")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	got, err := svc.Register(ctx, RegisterRequest{
		RecordID:  rec.ID,
		AuthToken: rec.AuthToken,
		Title:     "A Work",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if got.Status != "complete" {
		t.Fatalf("status = %q, want complete", got.Status)
	}
	if got.TxHash != "iscn-tx-hash" {
		t.Fatalf("tx hash = %q", got.TxHash)
	}
	if got.ISCNID == "" {
		t.Fatal("iscn id not set")
	}
	if len(sender.msgs) != 1 {
		t.Fatalf("broadcast %d msgs, want 1", len(sender.msgs))
	}

	// The broadcast lands in the transaction ledger as pending.
	logged, err := store.GetTransaction(ctx, "iscn-tx-hash")
	if err != nil {
		t.Fatalf("get logged tx: %v", err)
	}
	if logged.Type != ledger.TypeISCN {
		t.Fatalf("logged type = %q", logged.Type)
	}
	if logged.Metadata["iscn_id"] != got.ISCNID {
		t.Fatalf("logged metadata = %v", logged.Metadata)
	}

	// Registration is one-shot.
	if _, err := svc.Register(ctx, RegisterRequest{RecordID: rec.ID, AuthToken: rec.AuthToken, Title: "A Work"}); err == nil {
		t.Fatal("second register accepted")
	}
}

func TestRegisterAuthAndValidation(t *testing.T) {
	svc, _, sender, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Upload(ctx, testOwner, []byte("gated work"), "text/plain")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if _, err := svc.Register(ctx, RegisterRequest{RecordID: rec.ID, AuthToken: "wrong", Title: "T"}); err == nil {
		t.Fatal("wrong auth token accepted")
	}
	if _, err := svc.Register(ctx, RegisterRequest{RecordID: rec.ID, AuthToken: rec.AuthToken, Title: "  "}); err == nil {
		t.Fatal("blank title accepted")
	}
	if _, err := svc.Register(ctx, RegisterRequest{RecordID: "missing", AuthToken: rec.AuthToken, Title: "T"}); err == nil {
		t.Fatal("unknown record accepted")
	}
	if n := atomic.LoadInt32(&sender.calls); n != 0 {
		t.Fatalf("rejected requests broadcast %d times", n)
	}
}

func TestRegisterBroadcastFailureLeavesRecordPending(t *testing.T) {
	svc, _, sender, _ := newTestService(t)
	ctx := context.Background()
	sender.err = errors.New("chain down")

	rec, err := svc.Upload(ctx, testOwner, []byte("flaky work"), "text/plain")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{RecordID: rec.ID, AuthToken: rec.AuthToken, Title: "T"}); err == nil {
		t.Fatal("broadcast failure not surfaced")
	}

	// The upload survives and register can be retried.
	sender.err = nil
	got, err := svc.Register(ctx, RegisterRequest{RecordID: rec.ID, AuthToken: rec.AuthToken, Title: "T"})
	if err != nil {
		t.Fatalf("retry register: %v", err)
	}
	if got.Status != "complete" {
		t.Fatalf("status = %q after retry", got.Status)
	}
}

func TestRotateAccessToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Upload(ctx, testOwner, []byte("token work"), "text/plain")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if _, err := svc.RotateAccessToken(ctx, rec.ID, "nope"); err == nil {
		t.Fatal("bad caller token accepted")
	}
	if _, err := svc.RotateAccessToken(ctx, rec.ID, ""); err == nil {
		t.Fatal("empty caller token accepted")
	}

	byAuth, err := svc.RotateAccessToken(ctx, rec.ID, rec.AuthToken)
	if err != nil {
		t.Fatalf("rotate by auth token: %v", err)
	}
	if byAuth.AccessToken == "" {
		t.Fatal("access token not issued")
	}
	if !byAuth.AccessTokenValid(byAuth.AccessToken, time.Now()) {
		t.Fatal("fresh access token reported invalid")
	}

	byOwner, err := svc.RotateAccessToken(ctx, rec.ID, rec.OwnershipToken)
	if err != nil {
		t.Fatalf("rotate by ownership token: %v", err)
	}
	if byOwner.AccessToken == byAuth.AccessToken {
		t.Fatal("rotation reissued the same token")
	}
	// Rotation invalidates the previous token.
	if byOwner.AccessTokenValid(byAuth.AccessToken, time.Now()) {
		t.Fatal("stale access token still valid")
	}
}
