package fees

import (
	"testing"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
	"github.com/NairaLink/chat_layer/internal/app/domain/operation"
)

func TestQuoteBreakdown(t *testing.T) {
	// gas price 2 native minor units per gas unit, fx rate 1:100 scaled.
	svc := New(2, FXScale/100, nil)

	amount := money.FromUnits(1000)
	quote, err := svc.Quote(amount, operation.KindTransfer)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	// 1% of 1000.00 = 10.00
	if quote.ServiceFee != money.FromUnits(10) {
		t.Fatalf("service fee: got %s want 10.00", quote.ServiceFee)
	}
	wantNative := int64(21_000 * 2)
	if quote.NetworkFeeNative != wantNative {
		t.Fatalf("network fee native: got %d want %d", quote.NetworkFeeNative, wantNative)
	}
	wantQuote := money.Amount(wantNative / 100)
	if quote.NetworkFeeQuote != wantQuote {
		t.Fatalf("network fee quote: got %d want %d", quote.NetworkFeeQuote, wantQuote)
	}
	wantTotal := amount.Add(quote.ServiceFee).Add(quote.NetworkFeeQuote)
	if quote.TotalCost != wantTotal {
		t.Fatalf("total: got %d want %d", quote.TotalCost, wantTotal)
	}
	if quote.NetToRecipient != amount {
		t.Fatalf("net to recipient: got %d want %d", quote.NetToRecipient, amount)
	}
}

func TestQuoteDeterministicUnderUnchangedCache(t *testing.T) {
	svc := New(3, FXScale/50, nil)

	first, err := svc.Quote(money.FromUnits(1000), operation.KindTransfer)
	if err != nil {
		t.Fatalf("first quote: %v", err)
	}
	second, err := svc.Quote(money.FromUnits(1000), operation.KindTransfer)
	if err != nil {
		t.Fatalf("second quote: %v", err)
	}
	if first != second {
		t.Fatalf("quotes diverged: %+v vs %+v", first, second)
	}
}

func TestQuoteChangesAfterPriceUpdate(t *testing.T) {
	svc := New(2, FXScale/100, nil)
	before, _ := svc.Quote(money.FromUnits(100), operation.KindWithdraw)

	svc.UpdatePrices(4, FXScale/100)
	after, _ := svc.Quote(money.FromUnits(100), operation.KindWithdraw)
	if after.NetworkFeeNative != before.NetworkFeeNative*2 {
		t.Fatalf("expected doubled network fee, got %d then %d", before.NetworkFeeNative, after.NetworkFeeNative)
	}
}

func TestUpdatePricesIgnoresBadValues(t *testing.T) {
	svc := New(2, FXScale/100, nil)
	svc.UpdatePrices(0, -5)
	gas, fx := svc.CurrentPrices()
	if gas != 2 || fx != FXScale/100 {
		t.Fatalf("cache poisoned: gas=%d fx=%d", gas, fx)
	}
}

func TestQuoteRejectsNonPositiveAmount(t *testing.T) {
	svc := New(2, FXScale/100, nil)
	if _, err := svc.Quote(0, operation.KindTransfer); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := svc.Quote(money.FromUnits(-5), operation.KindTransfer); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestQuoteUnknownKind(t *testing.T) {
	svc := New(2, FXScale/100, nil)
	if _, err := svc.Quote(money.FromUnits(10), operation.Kind("teleport")); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
