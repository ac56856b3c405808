package collection

import (
	"context"
	"strings"
	"testing"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/collection"
	"github.com/likecoin/likecoin-api-public/internal/app/storage/memory"
)

const (
	ownerWallet    = "like1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lzv7xu"
	strangerWallet = "cosmos1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5ct8h9e"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New(), nil)
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, ownerWallet, collection.Collection{
		Name:        "Writings",
		Description: "essays",
		ClassID:     "likenft1abc",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("id not assigned")
	}
	if created.OwnerWallet != ownerWallet {
		t.Fatalf("owner = %q", created.OwnerWallet)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Writings" {
		t.Fatalf("name = %q", got.Name)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "not-a-wallet", collection.Collection{Name: "x"}); err == nil {
		t.Fatal("invalid wallet accepted")
	}
	if _, err := svc.Create(ctx, ownerWallet, collection.Collection{Name: "  "}); err == nil {
		t.Fatal("blank name accepted")
	}
	if _, err := svc.Create(ctx, ownerWallet, collection.Collection{Name: strings.Repeat("a", maxNameLength+1)}); err == nil {
		t.Fatal("oversized name accepted")
	}
}

func TestUpdateOwnerGated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	evmOwner := "0x00000000000000000000000000000000deadbeef"
	created, err := svc.Create(ctx, evmOwner, collection.Collection{Name: "Before"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Update(ctx, strangerWallet, collection.Collection{ID: created.ID, Name: "Hijacked"}); err == nil {
		t.Fatal("non-owner update accepted")
	}

	// Owner match ignores hex casing; ownership never changes on update.
	updated, err := svc.Update(ctx, "0x"+strings.ToUpper(evmOwner[2:]), collection.Collection{
		ID:       created.ID,
		Name:     "After",
		Priority: 3,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "After" || updated.Priority != 3 {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.OwnerWallet != evmOwner {
		t.Fatalf("owner changed to %q", updated.OwnerWallet)
	}
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, ownerWallet, collection.Collection{Name: "Ephemeral"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, strangerWallet, created.ID); err == nil {
		t.Fatal("non-owner delete accepted")
	}
	if err := svc.Delete(ctx, ownerWallet, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); err == nil {
		t.Fatal("deleted collection still readable")
	}
	if err := svc.Delete(ctx, ownerWallet, created.ID); err == nil {
		t.Fatal("double delete accepted")
	}
}

func TestListByOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"One", "Two"} {
		if _, err := svc.Create(ctx, ownerWallet, collection.Collection{Name: name}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if _, err := svc.Create(ctx, strangerWallet, collection.Collection{Name: "Other"}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	list, err := svc.ListByOwner(ctx, ownerWallet)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("listed %d collections, want 2", len(list))
	}
}
