package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
	"github.com/NairaLink/chat_layer/internal/app/domain/operation"
	"github.com/NairaLink/chat_layer/internal/app/domain/session"
	"github.com/NairaLink/chat_layer/internal/app/domain/user"
	"github.com/NairaLink/chat_layer/internal/app/services/fees"
	"github.com/NairaLink/chat_layer/internal/app/services/kyc"
	"github.com/NairaLink/chat_layer/internal/app/services/payments"
	"github.com/NairaLink/chat_layer/internal/app/services/sessions"
	"github.com/NairaLink/chat_layer/internal/app/services/settlement"
	"github.com/NairaLink/chat_layer/internal/app/services/users"
	"github.com/NairaLink/chat_layer/internal/app/storage"
	"github.com/NairaLink/chat_layer/internal/app/storage/memory"
	"github.com/NairaLink/chat_layer/pkg/testutil"
)

type engineFixture struct {
	engine   *Engine
	store    *memory.Store
	gateway  *testutil.MockGateway
	sender   *testutil.MockSender
	sessions *sessions.Service
	users    *users.Service
}

func newEngineFixture(t *testing.T) *engineFixture {
	return newEngineFixtureWithOps(t, nil)
}

// newEngineFixtureWithOps lets a test swap the operation store the
// settlement queue persists through.
func newEngineFixtureWithOps(t *testing.T, ops storage.OperationStore) *engineFixture {
	t.Helper()

	store := memory.New()
	if ops == nil {
		ops = store
	}
	gateway := testutil.NewMockGateway()
	sender := &testutil.MockSender{}
	sessSvc := sessions.New(store, 0, nil)
	userSvc := users.New(store, nil)
	// Gas price zero keeps network fees out of the arithmetic; the fee
	// package has its own tests for the network leg.
	feeSvc := fees.New(0, 0, nil)
	paySvc := payments.New(store, payments.StaticLinkProvider{BaseURL: "https://pay.test"}, nil)
	queue := settlement.New(ops, store, gateway, &testutil.MockNotifier{}, settlement.Config{}, nil)

	eng := New(Config{
		Sessions: sessSvc,
		Users:    userSvc,
		Fees:     feeSvc,
		Payments: paySvc,
		Queue:    queue,
		Gateway:  gateway,
		Verifier: kyc.VerifierFunc(func(context.Context, string) (user.KYCTier, error) {
			return user.TierBasic, nil
		}),
		Sender:        sender,
		EscrowAddress: "0x00000000000000000000000000000000000e5c01",
	}, nil)

	return &engineFixture{
		engine:   eng,
		store:    store,
		gateway:  gateway,
		sender:   sender,
		sessions: sessSvc,
		users:    userSvc,
	}
}

// onboard walks a user through KYC and PIN setup so funds-moving commands
// are open to them.
func (f *engineFixture) onboard(t *testing.T, userID, pin string) user.User {
	t.Helper()
	ctx := context.Background()

	if reply := f.engine.handle(ctx, userID, "submit kyc"); !strings.Contains(reply, "PIN") {
		t.Fatalf("expected pin setup prompt after kyc, got %q", reply)
	}
	if reply := f.engine.handle(ctx, userID, pin); !strings.Contains(reply, "ready to go") {
		t.Fatalf("expected pin confirmation, got %q", reply)
	}

	u, err := f.users.Get(ctx, userID)
	if err != nil {
		t.Fatalf("load onboarded user: %v", err)
	}
	return u
}

func (f *engineFixture) flow(t *testing.T, userID string) session.Flow {
	t.Helper()
	sess, ok := f.sessions.Get(context.Background(), userID)
	if !ok {
		t.Fatalf("expected live session for %s", userID)
	}
	return sess.Flow
}

func (f *engineFixture) seedRecipient(t *testing.T, handle, address string) {
	t.Helper()
	if _, err := f.store.CreateUser(context.Background(), user.User{
		ID:            "chat-" + handle,
		Handle:        handle,
		WalletAddress: address,
	}); err != nil {
		t.Fatalf("seed recipient: %v", err)
	}
}

// enqueueFailStore simulates a persistence outage on operation writes.
type enqueueFailStore struct {
	*memory.Store
	failErr error
}

func (s *enqueueFailStore) CreateOperation(ctx context.Context, op operation.PendingOperation) (operation.PendingOperation, error) {
	if s.failErr != nil {
		return operation.PendingOperation{}, s.failErr
	}
	return s.Store.CreateOperation(ctx, op)
}

func TestUnknownMessageGetsHelp(t *testing.T) {
	f := newEngineFixture(t)
	reply := f.engine.handle(context.Background(), "u1", "what can you do")
	if !strings.Contains(reply, "Here is what I can do") {
		t.Fatalf("expected help reply, got %q", reply)
	}
}

func TestFundsMovingGatedOnKYC(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	reply := f.engine.handle(ctx, "u1", "send 50 cngn to 0x1111111111111111111111111111111111111111")
	if !strings.Contains(reply, "verify your identity") {
		t.Fatalf("expected kyc prompt, got %q", reply)
	}
	if f.gateway.SubmitCalls != 0 {
		t.Fatalf("gateway invoked %d times for unverified user", f.gateway.SubmitCalls)
	}
	if got := f.flow(t, "u1"); got != session.FlowKYCPending {
		t.Fatalf("expected kyc_pending flow, got %s", got)
	}

	// The gated command is discarded: the next message is parsed fresh.
	reply = f.engine.handle(ctx, "u1", "submit kyc")
	if !strings.Contains(reply, "PIN") {
		t.Fatalf("expected pin setup prompt, got %q", reply)
	}
}

func TestSendHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	u := f.onboard(t, "u1", "4242")
	f.seedRecipient(t, "alice", "0x2222222222222222222222222222222222222222")
	f.gateway.Balances[u.WalletAddress] = money.FromUnits(5_000)

	reply := f.engine.handle(ctx, "u1", "send 1000 cngn to alice.cngn")
	if !strings.Contains(reply, "alice.cngn") || !strings.Contains(reply, "Reply with your PIN") {
		t.Fatalf("expected fee prompt naming the recipient, got %q", reply)
	}
	if !strings.Contains(reply, money.FromUnits(1_000).BasisPoints(fees.DefaultServiceFeeBps).String()) {
		t.Fatalf("expected service fee in prompt, got %q", reply)
	}
	if got := f.flow(t, "u1"); got != session.FlowAwaitingConfirmation {
		t.Fatalf("expected awaiting_confirmation, got %s", got)
	}
	if f.gateway.SubmitCalls != 0 {
		t.Fatalf("gateway invoked before confirmation")
	}

	reply = f.engine.handle(ctx, "u1", "4242")
	if !strings.Contains(reply, "on its way") {
		t.Fatalf("expected processing ack, got %q", reply)
	}
	if len(f.gateway.Transfers) != 1 {
		t.Fatalf("expected exactly one transfer, got %v", f.gateway.Transfers)
	}
	want := u.WalletAddress + "->0x2222222222222222222222222222222222222222:100000"
	if f.gateway.Transfers[0] != want {
		t.Fatalf("transfer = %s, want %s", f.gateway.Transfers[0], want)
	}

	ops, err := f.store.ListOpenOperations(ctx)
	if err != nil {
		t.Fatalf("list operations: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected one queued operation, got %d", len(ops))
	}
	op := ops[0]
	if op.Kind != operation.KindTransfer {
		t.Fatalf("operation kind = %s", op.Kind)
	}
	if op.TxHash == "" {
		t.Fatalf("operation enqueued without tx hash")
	}
	if op.Fee.ServiceFee != money.FromUnits(10) {
		t.Fatalf("frozen service fee = %d, want %d", op.Fee.ServiceFee, money.FromUnits(10))
	}
	if got := f.flow(t, "u1"); got != session.FlowReady {
		t.Fatalf("expected ready after execution, got %s", got)
	}
}

func TestSendInsufficientBalanceReportsShortfall(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	u := f.onboard(t, "u1", "4242")
	f.seedRecipient(t, "alice", "0x2222222222222222222222222222222222222222")
	// Covers the amount but not the service fee.
	f.gateway.Balances[u.WalletAddress] = money.FromUnits(1_000)

	reply := f.engine.handle(ctx, "u1", "send 1000 to alice.cngn")
	if !strings.Contains(reply, "short") {
		t.Fatalf("expected shortfall reply, got %q", reply)
	}
	if !strings.Contains(reply, money.FromUnits(10).String()) {
		t.Fatalf("expected exact shortfall of 10 units in %q", reply)
	}
	if got := f.flow(t, "u1"); got != session.FlowReady {
		t.Fatalf("shortfall must not stage an action, flow = %s", got)
	}
	if f.gateway.SubmitCalls != 0 {
		t.Fatalf("gateway invoked despite shortfall")
	}
}

func TestSendUnknownRecipient(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	u := f.onboard(t, "u1", "4242")
	f.gateway.Balances[u.WalletAddress] = money.FromUnits(5_000)

	reply := f.engine.handle(ctx, "u1", "send 100 to ghost.cngn")
	if !strings.Contains(reply, "don't recognise") {
		t.Fatalf("expected unknown recipient reply, got %q", reply)
	}
	if got := f.flow(t, "u1"); got != session.FlowReady {
		t.Fatalf("expected flow unchanged, got %s", got)
	}
}

func TestWrongPINLockoutDiscardsStagedAction(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	u := f.onboard(t, "u1", "4242")
	f.seedRecipient(t, "alice", "0x2222222222222222222222222222222222222222")
	f.gateway.Balances[u.WalletAddress] = money.FromUnits(5_000)

	f.engine.handle(ctx, "u1", "send 1000 to alice.cngn")

	reply := f.engine.handle(ctx, "u1", "1111")
	if !strings.Contains(reply, "2 attempts remaining") {
		t.Fatalf("first wrong pin: got %q", reply)
	}
	reply = f.engine.handle(ctx, "u1", "2222")
	if !strings.Contains(reply, "1 attempts remaining") {
		t.Fatalf("second wrong pin: got %q", reply)
	}
	reply = f.engine.handle(ctx, "u1", "3333")
	if !strings.Contains(reply, "cancelled") {
		t.Fatalf("third wrong pin should cancel, got %q", reply)
	}

	if f.gateway.SubmitCalls != 0 {
		t.Fatalf("gateway invoked %d times despite lockout", f.gateway.SubmitCalls)
	}
	ops, err := f.store.ListOpenOperations(ctx)
	if err != nil {
		t.Fatalf("list operations: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected no operations after lockout, got %d", len(ops))
	}
	if got := f.flow(t, "u1"); got != session.FlowReady {
		t.Fatalf("expected ready after lockout, got %s", got)
	}

	// The staged action is gone: the next message parses as a command.
	reply = f.engine.handle(ctx, "u1", "balance")
	if !strings.Contains(reply, "Your balance is") {
		t.Fatalf("expected balance reply after lockout, got %q", reply)
	}
}

// A persistence outage after the ledger call must not leave the staged
// action live: re-entering the PIN would move the funds twice.
func TestEnqueueFailureDoesNotRedispatch(t *testing.T) {
	ops := &enqueueFailStore{Store: memory.New(), failErr: errors.New("store unavailable")}
	f := newEngineFixtureWithOps(t, ops)
	ctx := context.Background()

	u := f.onboard(t, "u1", "4242")
	f.seedRecipient(t, "alice", "0x2222222222222222222222222222222222222222")
	f.gateway.Balances[u.WalletAddress] = money.FromUnits(5_000)

	f.engine.handle(ctx, "u1", "send 1000 to alice.cngn")
	reply := f.engine.handle(ctx, "u1", "4242")
	if !strings.Contains(reply, "on its way") {
		t.Fatalf("funds moved, so the ack must not claim otherwise: got %q", reply)
	}
	if len(f.gateway.Transfers) != 1 {
		t.Fatalf("expected one transfer, got %v", f.gateway.Transfers)
	}
	if got := f.flow(t, "u1"); got != session.FlowReady {
		t.Fatalf("expected ready after dispatch, got %s", got)
	}

	// The staged action is gone: repeating the PIN parses as a fresh
	// command and must not dispatch again.
	f.engine.handle(ctx, "u1", "4242")
	if len(f.gateway.Transfers) != 1 {
		t.Fatalf("expected no second transfer, got %v", f.gateway.Transfers)
	}
}

func TestConcurrentWrongPINsEachCount(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	u := f.onboard(t, "u1", "4242")
	f.seedRecipient(t, "alice", "0x2222222222222222222222222222222222222222")
	f.gateway.Balances[u.WalletAddress] = money.FromUnits(5_000)

	f.engine.handle(ctx, "u1", "send 1000 to alice.cngn")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.engine.handle(ctx, "u1", "9999")
		}()
	}
	wg.Wait()

	sess, ok := f.sessions.Get(ctx, "u1")
	if !ok {
		t.Fatalf("expected live session for u1")
	}
	if sess.PINAttempts != 2 {
		t.Fatalf("pin attempts = %d, want 2", sess.PINAttempts)
	}
	if sess.Flow != session.FlowAwaitingConfirmation {
		t.Fatalf("two wrong pins must keep the confirmation open, got %s", sess.Flow)
	}
	if f.gateway.SubmitCalls != 0 {
		t.Fatalf("gateway invoked %d times for wrong pins", f.gateway.SubmitCalls)
	}
}

func TestBuyThenPaidMintsDeposit(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.onboard(t, "u1", "4242")

	reply := f.engine.handle(ctx, "u1", "buy 5000")
	if !strings.Contains(reply, "https://pay.test/pay/") || !strings.Contains(reply, "paid 5000") {
		t.Fatalf("expected payment instructions, got %q", reply)
	}

	reply = f.engine.handle(ctx, "u1", "paid 700")
	if !strings.Contains(reply, "can't find an open payment") {
		t.Fatalf("expected no-match reply for wrong amount, got %q", reply)
	}

	reply = f.engine.handle(ctx, "u1", "paid 5000")
	if !strings.Contains(reply, "Payment received") {
		t.Fatalf("expected mint ack, got %q", reply)
	}
	if f.gateway.SubmitCalls != 1 {
		t.Fatalf("expected one deposit call, got %d", f.gateway.SubmitCalls)
	}

	ops, err := f.store.ListOpenOperations(ctx)
	if err != nil {
		t.Fatalf("list operations: %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != operation.KindDeposit {
		t.Fatalf("expected one queued deposit, got %+v", ops)
	}
	if ops[0].TxHash == "" {
		t.Fatalf("deposit enqueued without tx hash")
	}
	if ops[0].Amount != money.FromUnits(5_000) {
		t.Fatalf("deposit amount = %d, want %d", ops[0].Amount, money.FromUnits(5_000))
	}

	// A second claim for the same amount finds nothing open.
	reply = f.engine.handle(ctx, "u1", "paid 5000")
	if !strings.Contains(reply, "can't find an open payment") {
		t.Fatalf("expected replay to miss, got %q", reply)
	}
}

func TestCreateCardFlow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	u := f.onboard(t, "u1", "4242")
	f.gateway.Balances[u.WalletAddress] = money.FromUnits(100)

	reply := f.engine.handle(ctx, "u1", "create card")
	if !strings.Contains(reply, "Reply with your PIN") {
		t.Fatalf("expected card fee prompt, got %q", reply)
	}
	reply = f.engine.handle(ctx, "u1", "4242")
	if !strings.Contains(reply, "card is being created") {
		t.Fatalf("expected card processing ack, got %q", reply)
	}

	refreshed, err := f.users.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if len(refreshed.ActiveCards()) != 1 {
		t.Fatalf("expected one active card, got %d", len(refreshed.ActiveCards()))
	}
}

func TestCardSelectionReprompt(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.onboard(t, "u1", "4242")
	for _, label := range []string{"shopping", "subscriptions"} {
		if _, err := f.users.AddCard(ctx, "u1", label); err != nil {
			t.Fatalf("seed card: %v", err)
		}
	}

	reply := f.engine.handle(ctx, "u1", "my cards")
	if !strings.Contains(reply, "1.") || !strings.Contains(reply, "2.") {
		t.Fatalf("expected numbered card list, got %q", reply)
	}
	if got := f.flow(t, "u1"); got != session.FlowAwaitingCardSelection {
		t.Fatalf("expected awaiting_card_selection, got %s", got)
	}

	reply = f.engine.handle(ctx, "u1", "7")
	if !strings.Contains(reply, "between 1 and 2") {
		t.Fatalf("expected re-prompt for out-of-range pick, got %q", reply)
	}
	if got := f.flow(t, "u1"); got != session.FlowAwaitingCardSelection {
		t.Fatalf("out-of-range pick must keep the selection flow, got %s", got)
	}

	reply = f.engine.handle(ctx, "u1", "2")
	if !strings.Contains(reply, "subscriptions") {
		t.Fatalf("expected second card detail, got %q", reply)
	}
	if got := f.flow(t, "u1"); got != session.FlowReady {
		t.Fatalf("expected ready after selection, got %s", got)
	}
}

func TestCashOutRequiresBankAccount(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	u := f.onboard(t, "u1", "4242")
	f.gateway.Balances[u.WalletAddress] = money.FromUnits(5_000)

	reply := f.engine.handle(ctx, "u1", "cash out 200")
	if !strings.Contains(reply, "no bank account on file") {
		t.Fatalf("expected bank account prompt, got %q", reply)
	}

	reply = f.engine.handle(ctx, "u1", "add bank gtbank 0123456789 ada obi")
	if !strings.Contains(reply, "gtbank") {
		t.Fatalf("expected bank ack, got %q", reply)
	}

	reply = f.engine.handle(ctx, "u1", "cash out 200")
	if !strings.Contains(reply, "0123456789") || !strings.Contains(reply, "Reply with your PIN") {
		t.Fatalf("expected cash out prompt naming the account, got %q", reply)
	}

	reply = f.engine.handle(ctx, "u1", "4242")
	if !strings.Contains(reply, "cash out is processing") {
		t.Fatalf("expected cash out ack, got %q", reply)
	}
	ops, err := f.store.ListOpenOperations(ctx)
	if err != nil {
		t.Fatalf("list operations: %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != operation.KindWithdraw {
		t.Fatalf("expected one queued withdraw, got %+v", ops)
	}
}

func TestHandleMessageSendsReply(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.HandleMessage(context.Background(), "u1", "help")
	sent := f.sender.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0], "u1: ") {
		t.Fatalf("expected one reply to u1, got %v", sent)
	}
}
