package users

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/NairaLink/chat_layer/internal/app/domain/user"
	"github.com/NairaLink/chat_layer/internal/app/storage/memory"
)

func TestEnsureUserProvisionsWallet(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	u, err := svc.EnsureUser(ctx, "chat-1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !strings.HasPrefix(u.WalletAddress, "0x") || len(u.WalletAddress) != 42 {
		t.Fatalf("wallet address = %q", u.WalletAddress)
	}
	if u.KYCTier != user.TierNone {
		t.Fatalf("new user tier = %d, want none", u.KYCTier)
	}

	// Second contact returns the same profile.
	again, err := svc.EnsureUser(ctx, "chat-1")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again.WalletAddress != u.WalletAddress {
		t.Fatalf("wallet changed across contacts: %q vs %q", again.WalletAddress, u.WalletAddress)
	}
}

func TestSetPINValidation(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()
	if _, err := svc.EnsureUser(ctx, "chat-1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	for _, bad := range []string{"123", "123456789", "12a4", "tick"} {
		if err := svc.SetPIN(ctx, "chat-1", bad); err == nil {
			t.Fatalf("SetPIN(%q) accepted", bad)
		}
	}
	if err := svc.SetPIN(ctx, "chat-1", " 4242 "); err != nil {
		t.Fatalf("SetPIN with surrounding whitespace: %v", err)
	}

	u, err := svc.Get(ctx, "chat-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.PINHash == "4242" {
		t.Fatalf("pin stored in the clear")
	}
}

func TestVerifyPIN(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()
	if _, err := svc.EnsureUser(ctx, "chat-1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// No PIN yet: mismatch, not an error.
	ok, err := svc.VerifyPIN(ctx, "chat-1", "4242")
	if err != nil || ok {
		t.Fatalf("VerifyPIN before setup = (%v, %v)", ok, err)
	}

	if err := svc.SetPIN(ctx, "chat-1", "4242"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	ok, err = svc.VerifyPIN(ctx, "chat-1", "4242")
	if err != nil || !ok {
		t.Fatalf("VerifyPIN correct = (%v, %v)", ok, err)
	}
	ok, err = svc.VerifyPIN(ctx, "chat-1", "9999")
	if err != nil || ok {
		t.Fatalf("VerifyPIN wrong = (%v, %v)", ok, err)
	}
}

func TestResolveHandle(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, user.User{
		ID:            "chat-alice",
		Handle:        "Alice",
		WalletAddress: "0x2222222222222222222222222222222222222222",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	addr, err := svc.ResolveHandle(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr != "0x2222222222222222222222222222222222222222" {
		t.Fatalf("resolved address = %q", addr)
	}

	if _, err := svc.ResolveHandle(ctx, "ghost"); err != ErrUnknownHandle {
		t.Fatalf("unknown handle error = %v, want ErrUnknownHandle", err)
	}
}

func TestAddCardAndBankAccount(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()
	if _, err := svc.EnsureUser(ctx, "chat-1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	card, err := svc.AddCard(ctx, "chat-1", "shopping")
	if err != nil {
		t.Fatalf("add card: %v", err)
	}
	if card.ID == "" || len(card.Last4) != 4 || !card.Active {
		t.Fatalf("card = %+v", card)
	}

	acct, err := svc.AddBankAccount(ctx, "chat-1", "gtbank", "0123456789", "ada obi")
	if err != nil {
		t.Fatalf("add bank: %v", err)
	}
	if acct.ID == "" || acct.AccountNumber != "0123456789" {
		t.Fatalf("account = %+v", acct)
	}

	u, err := svc.Get(ctx, "chat-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(u.ActiveCards()) != 1 || len(u.BankAccounts) != 1 {
		t.Fatalf("profile cards=%d banks=%d", len(u.ActiveCards()), len(u.BankAccounts))
	}
}

func TestListInactive(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	old := time.Now().Add(-72 * time.Hour)
	if _, err := store.CreateUser(ctx, user.User{ID: "stale", LastSeen: old}); err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	if _, err := svc.EnsureUser(ctx, "fresh"); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	inactive, err := svc.ListInactive(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("list inactive: %v", err)
	}
	if len(inactive) != 1 || inactive[0].ID != "stale" {
		t.Fatalf("inactive = %+v", inactive)
	}
}
