// Package engine orchestrates the per-user command state machine: parsing,
// gating, fee quoting, gated execution against the custody gateway, and
// settlement handoff.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/NairaLink/chat_layer/internal/app/domain/intent"
	"github.com/NairaLink/chat_layer/internal/app/domain/money"
	"github.com/NairaLink/chat_layer/internal/app/domain/operation"
	"github.com/NairaLink/chat_layer/internal/app/domain/session"
	"github.com/NairaLink/chat_layer/internal/app/domain/user"
	"github.com/NairaLink/chat_layer/internal/app/metrics"
	"github.com/NairaLink/chat_layer/internal/app/services/custody"
	"github.com/NairaLink/chat_layer/internal/app/services/fees"
	intentsvc "github.com/NairaLink/chat_layer/internal/app/services/intent"
	"github.com/NairaLink/chat_layer/internal/app/services/kyc"
	"github.com/NairaLink/chat_layer/internal/app/services/notify"
	"github.com/NairaLink/chat_layer/internal/app/services/payments"
	"github.com/NairaLink/chat_layer/internal/app/services/sessions"
	"github.com/NairaLink/chat_layer/internal/app/services/settlement"
	"github.com/NairaLink/chat_layer/internal/app/services/users"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// DefaultMaxPINAttempts is how many consecutive wrong PINs abort the
// staged transaction.
const DefaultMaxPINAttempts = 3

const pendingActionKey = "pending_action"

// pendingAction is the staged funds-moving command plus its frozen fee
// snapshot, serialized into session data while awaiting the PIN.
type pendingAction struct {
	Kind      operation.Kind     `json:"kind"`
	Amount    money.Amount       `json:"amount"`
	Token     string             `json:"token"`
	Recipient string             `json:"recipient"`
	Display   string             `json:"display"`
	Fee       operation.FeeQuote `json:"fee"`
}

// Engine processes inbound chat messages for one deployment.
type Engine struct {
	sessions       *sessions.Service
	users          *users.Service
	fees           *fees.Service
	payments       *payments.Service
	queue          *settlement.Queue
	gateway        custody.Gateway
	verifier       kyc.Verifier
	sender         notify.Sender
	log            *logger.Logger
	maxPINAttempts int
	escrowAddress  string
}

// Config carries the engine's collaborators.
type Config struct {
	Sessions       *sessions.Service
	Users          *users.Service
	Fees           *fees.Service
	Payments       *payments.Service
	Queue          *settlement.Queue
	Gateway        custody.Gateway
	Verifier       kyc.Verifier
	Sender         notify.Sender
	MaxPINAttempts int
	EscrowAddress  string
}

// New constructs a command engine.
func New(cfg Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("engine")
	}
	if cfg.MaxPINAttempts <= 0 {
		cfg.MaxPINAttempts = DefaultMaxPINAttempts
	}
	return &Engine{
		sessions:       cfg.Sessions,
		users:          cfg.Users,
		fees:           cfg.Fees,
		payments:       cfg.Payments,
		queue:          cfg.Queue,
		gateway:        cfg.Gateway,
		verifier:       cfg.Verifier,
		sender:         cfg.Sender,
		log:            log,
		maxPINAttempts: cfg.MaxPINAttempts,
		escrowAddress:  cfg.EscrowAddress,
	}
}

// HandleMessage processes one inbound message and sends the reply. All
// failures are translated to user-facing text here; the method never
// returns an error to the transport.
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) {
	reply := e.handle(ctx, userID, text)
	if reply == "" {
		return
	}
	if err := e.sender.Send(ctx, userID, reply); err != nil {
		e.log.WithError(err).WithField("user_id", userID).Warn("reply send failed")
	}
}

func (e *Engine) handle(ctx context.Context, userID, text string) string {
	u, err := e.users.EnsureUser(ctx, userID)
	if err != nil {
		e.log.WithError(err).WithField("user_id", userID).Error("user provisioning failed")
		return genericErrorReply
	}
	e.users.Touch(ctx, userID)

	sess := e.sessions.GetOrCreate(ctx, userID)

	// State-driven input redirection: in these flows the raw text is the
	// input, not a command.
	switch sess.Flow {
	case session.FlowPINPending, session.FlowAwaitingPIN:
		return e.handlePINSetup(ctx, userID, text)
	case session.FlowAwaitingConfirmation:
		return e.handleConfirmation(ctx, u, sess, text)
	case session.FlowAwaitingCardSelection:
		return e.handleCardSelection(ctx, u, sess, text)
	}

	parsed := intentsvc.Parse(text)
	metrics.MessagesProcessed.WithLabelValues(string(parsed.Command)).Inc()

	switch parsed.Command {
	case intent.CommandHelp, intent.CommandInvalid:
		return helpReply
	case intent.CommandBalance:
		return e.handleBalance(ctx, u)
	case intent.CommandSubmitKYC:
		return e.handleSubmitKYC(ctx, u)
	case intent.CommandSetupPIN:
		e.sessions.Update(ctx, userID, func(s *session.Session) {
			s.Flow = session.FlowAwaitingPIN
		})
		return "Choose a transaction PIN (4-8 digits) and reply with it."
	case intent.CommandMyCards:
		return e.handleMyCards(ctx, u)
	case intent.CommandAddBank:
		return e.handleAddBank(ctx, u, parsed)
	case intent.CommandBuy:
		return e.handleBuy(ctx, u, parsed)
	case intent.CommandPaid:
		return e.handlePaid(ctx, u, parsed)
	case intent.CommandSend, intent.CommandCashOut, intent.CommandCreateCard:
		return e.handleFundsMoving(ctx, u, parsed)
	default:
		return helpReply
	}
}

// --- onboarding -------------------------------------------------------------

func (e *Engine) handleSubmitKYC(ctx context.Context, u user.User) string {
	// The verifier is synchronous and can be slow; nothing else is held
	// while it runs.
	tier, err := e.verifier.Verify(ctx, u.ID)
	if err != nil {
		e.log.WithError(err).WithField("user_id", u.ID).Error("kyc verification failed")
		return genericErrorReply
	}
	if tier == user.TierNone {
		return "Verification did not complete. Please try 'submit kyc' again."
	}

	if _, err := e.users.SetKYCTier(ctx, u.ID, tier); err != nil {
		e.log.WithError(err).WithField("user_id", u.ID).Error("record kyc tier failed")
		return genericErrorReply
	}

	if !u.HasPIN() {
		e.sessions.Update(ctx, u.ID, func(s *session.Session) {
			s.Flow = session.FlowPINPending
		})
		return pinSetupPromptReply
	}
	e.sessions.Update(ctx, u.ID, func(s *session.Session) {
		s.Flow = session.FlowReady
	})
	return "You're verified and ready. Reply 'help' to see what you can do."
}

func (e *Engine) handlePINSetup(ctx context.Context, userID, text string) string {
	if err := e.users.SetPIN(ctx, userID, text); err != nil {
		return "That PIN won't work: it must be 4-8 digits. Try again."
	}
	e.sessions.Update(ctx, userID, func(s *session.Session) {
		s.Flow = session.FlowReady
	})
	return "Your PIN is set. You're ready to go. Reply 'help' to see what you can do."
}

// --- read-only commands -----------------------------------------------------

func (e *Engine) handleBalance(ctx context.Context, u user.User) string {
	balance, err := e.gateway.BalanceOf(ctx, u.WalletAddress, intentsvc.DefaultToken)
	if err != nil {
		e.log.WithError(err).WithField("user_id", u.ID).Error("balance query failed")
		return genericErrorReply
	}
	return balanceReply(balance, intentsvc.DefaultToken)
}

func (e *Engine) handleMyCards(ctx context.Context, u user.User) string {
	cards := u.ActiveCards()
	switch len(cards) {
	case 0:
		return "You have no cards yet. Reply 'create card' to get one."
	case 1:
		return cardDetailReply(cards[0])
	default:
		e.sessions.Update(ctx, u.ID, func(s *session.Session) {
			s.Flow = session.FlowAwaitingCardSelection
		})
		return cardListReply(cards)
	}
}

func (e *Engine) handleCardSelection(ctx context.Context, u user.User, sess session.Session, text string) string {
	cards := u.ActiveCards()
	idx, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || idx < 1 || idx > len(cards) {
		// Out-of-range re-prompts without losing state.
		return fmt.Sprintf("Please reply with a number between 1 and %d.", len(cards))
	}
	e.sessions.Update(ctx, u.ID, func(s *session.Session) {
		s.Flow = session.FlowReady
	})
	return cardDetailReply(cards[idx-1])
}

func (e *Engine) handleAddBank(ctx context.Context, u user.User, parsed intent.Intent) string {
	acct, err := e.users.AddBankAccount(ctx, u.ID, parsed.BankName, parsed.BankAccount, parsed.AccountName)
	if err != nil {
		e.log.WithError(err).WithField("user_id", u.ID).Error("add bank account failed")
		return genericErrorReply
	}
	return fmt.Sprintf("Added %s account %s (%s) for cash outs.", acct.BankName, acct.AccountNumber, acct.AccountName)
}

// --- buy / paid -------------------------------------------------------------

func (e *Engine) handleBuy(ctx context.Context, u user.User, parsed intent.Intent) string {
	if err := e.kycGate(ctx, u); err != nil {
		return gateReply(err)
	}
	req, err := e.payments.CreateRequest(ctx, u.ID, parsed.Amount)
	if err != nil {
		e.log.WithError(err).WithField("user_id", u.ID).Error("create payment request failed")
		return genericErrorReply
	}
	return paymentInstructionsReply(parsed.Amount, req.Link)
}

func (e *Engine) handlePaid(ctx context.Context, u user.User, parsed intent.Intent) string {
	req, err := e.payments.ConfirmPaid(ctx, u.ID, parsed.Amount)
	if errors.Is(err, payments.ErrNoMatchingRequest) {
		return fmt.Sprintf("I can't find an open payment of %d. Reply 'buy %d' to start one.", parsed.Amount, parsed.Amount)
	}
	if err != nil {
		e.log.WithError(err).WithField("user_id", u.ID).Error("payment confirmation failed")
		return genericErrorReply
	}

	// Verified fiat payment mints custodial tokens.
	txID, err := e.gateway.Deposit(ctx, u.WalletAddress, intentsvc.DefaultToken, req.Amount)
	if err != nil {
		e.log.WithError(err).WithField("user_id", u.ID).Error("mint deposit failed")
		return genericErrorReply
	}
	// The mint is already on the ledger: a persistence failure here only
	// loses the settlement notification, never the funds.
	if _, err := e.queue.Enqueue(ctx, operation.PendingOperation{
		Kind:   operation.KindDeposit,
		UserID: u.ID,
		Amount: req.Amount,
		Token:  intentsvc.DefaultToken,
		TxHash: txID,
	}); err != nil {
		e.log.WithError(err).
			WithField("user_id", u.ID).
			WithField("tx_hash", txID).
			Error("enqueue deposit failed, operation settles untracked")
	}
	return "Payment received. Your tokens are being minted; I'll confirm shortly."
}

// --- funds-moving commands --------------------------------------------------

// Gate denials wrap ErrPermission so callers and logs can classify them.
var (
	errKYCRequired = fmt.Errorf("%w: identity not verified", ErrPermission)
	errPINRequired = fmt.Errorf("%w: transaction pin not set", ErrPermission)
)

// kycGate fails when the user has no KYC tier, forcing the KYC_PENDING
// flow. The original command is discarded, not retained.
func (e *Engine) kycGate(ctx context.Context, u user.User) error {
	if u.KYCTier != user.TierNone {
		return nil
	}
	e.sessions.Update(ctx, u.ID, func(s *session.Session) {
		s.Flow = session.FlowKYCPending
	})
	return errKYCRequired
}

// gate enforces the KYC and PIN preconditions for funds-moving commands.
func (e *Engine) gate(ctx context.Context, u user.User) error {
	if err := e.kycGate(ctx, u); err != nil {
		return err
	}
	if !u.HasPIN() {
		e.sessions.Update(ctx, u.ID, func(s *session.Session) {
			s.Flow = session.FlowPINPending
		})
		return errPINRequired
	}
	return nil
}

func (e *Engine) handleFundsMoving(ctx context.Context, u user.User, parsed intent.Intent) string {
	if err := e.gate(ctx, u); err != nil {
		e.log.WithError(err).WithField("user_id", u.ID).Debug("funds-moving command gated")
		return gateReply(err)
	}

	action, reply, err := e.stageAction(ctx, u, parsed)
	if err != nil {
		// Staging performs no side effects, so the session simply stays in
		// its prior flow.
		if errors.Is(err, ErrInvalidRecipient) {
			return "I don't recognise that recipient. Use a handle like alice" + intentsvc.HandleSuffix + " or a 0x address."
		}
		if reply != "" && (errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrValidation)) {
			return reply
		}
		e.log.WithError(err).WithField("user_id", u.ID).Error("stage action failed")
		return genericErrorReply
	}

	raw, err := json.Marshal(action)
	if err != nil {
		e.log.WithError(err).Error("encode pending action failed")
		return genericErrorReply
	}
	e.sessions.Update(ctx, u.ID, func(s *session.Session) {
		s.Flow = session.FlowAwaitingConfirmation
		s.PINAttempts = 0
		s.Data[pendingActionKey] = string(raw)
	})
	return reply
}

// stageAction resolves arguments and produces the pending action with its
// frozen fee quote, plus the PIN prompt to send. The mandatory balance
// precheck happens here, before any side-effecting call.
func (e *Engine) stageAction(ctx context.Context, u user.User, parsed intent.Intent) (pendingAction, string, error) {
	var (
		kind      operation.Kind
		recipient string
		display   string
	)
	if parsed.Token == "" {
		parsed.Token = intentsvc.DefaultToken
	}

	switch parsed.Command {
	case intent.CommandSend:
		kind = operation.KindTransfer
		switch parsed.Recipient.Form {
		case intent.RecipientNamed:
			handle := parsed.Recipient.Value
			addr, err := e.users.ResolveHandle(ctx, strings.TrimSuffix(handle, intentsvc.HandleSuffix))
			if errors.Is(err, users.ErrUnknownHandle) {
				// Handles may be stored with or without the suffix.
				addr, err = e.users.ResolveHandle(ctx, handle)
			}
			if err != nil {
				if errors.Is(err, users.ErrUnknownHandle) {
					return pendingAction{}, "", fmt.Errorf("%w: %s", ErrInvalidRecipient, handle)
				}
				return pendingAction{}, "", err
			}
			recipient = addr
			display = handle
		case intent.RecipientAddress:
			recipient = parsed.Recipient.Value
			display = shortAddress(parsed.Recipient.Value)
		default:
			return pendingAction{}, "", fmt.Errorf("%w: missing recipient", ErrInvalidRecipient)
		}
	case intent.CommandCashOut:
		kind = operation.KindWithdraw
		if len(u.BankAccounts) == 0 {
			return pendingAction{}, "You have no bank account on file. Reply 'add bank <bank> <account> <your name>' first.", ErrValidation
		}
		acct := u.BankAccounts[len(u.BankAccounts)-1]
		recipient = acct.AccountNumber
		display = fmt.Sprintf("%s %s", acct.BankName, acct.AccountNumber)
	case intent.CommandCreateCard:
		kind = operation.KindCardCreate
		recipient = e.escrowAddress
		display = "card escrow"
		if parsed.Amount == 0 {
			parsed.Amount = 1 // minimum card funding
		}
	default:
		return pendingAction{}, "", fmt.Errorf("%w: %s is not funds-moving", ErrValidation, parsed.Command)
	}

	amount := money.FromUnits(parsed.Amount)
	quote, err := e.fees.Quote(amount, kind)
	if err != nil {
		return pendingAction{}, "", err
	}

	balance, err := e.gateway.BalanceOf(ctx, u.WalletAddress, parsed.Token)
	if err != nil {
		return pendingAction{}, "", fmt.Errorf("%w: balance check: %v", ErrExternalCapability, err)
	}
	if balance < quote.TotalCost {
		return pendingAction{}, shortfallReply(quote.TotalCost, balance, parsed.Token), ErrInsufficientBalance
	}

	action := pendingAction{
		Kind:      kind,
		Amount:    amount,
		Token:     parsed.Token,
		Recipient: recipient,
		Display:   display,
		Fee:       quote,
	}

	switch kind {
	case operation.KindTransfer:
		return action, feePromptReply(action), nil
	case operation.KindWithdraw:
		return action, cashOutPromptReply(action), nil
	default:
		return action, cardPromptReply(action), nil
	}
}

// handleConfirmation interprets the message as the authorizing PIN for the
// staged action.
func (e *Engine) handleConfirmation(ctx context.Context, u user.User, sess session.Session, text string) string {
	raw, ok := sess.Data[pendingActionKey]
	if !ok {
		e.sessions.Update(ctx, u.ID, func(s *session.Session) {
			s.Flow = session.FlowReady
		})
		return helpReply
	}
	var action pendingAction
	if err := json.Unmarshal([]byte(raw), &action); err != nil {
		e.log.WithError(err).WithField("user_id", u.ID).Error("decode pending action failed")
		e.sessions.Update(ctx, u.ID, func(s *session.Session) {
			s.Flow = session.FlowReady
			delete(s.Data, pendingActionKey)
		})
		return genericErrorReply
	}

	ok, err := e.users.VerifyPIN(ctx, u.ID, text)
	if err != nil {
		e.log.WithError(err).WithField("user_id", u.ID).Error("pin verification failed")
		return genericErrorReply
	}
	if !ok {
		// Counted inside the mutation so concurrent messages each take a
		// distinct attempt number.
		var attempts int
		e.sessions.Update(ctx, u.ID, func(s *session.Session) {
			s.PINAttempts++
			attempts = s.PINAttempts
			if attempts >= e.maxPINAttempts {
				// Abort-on-lockout for the transaction only: the staged action
				// is discarded and the next message parses as a fresh command.
				s.Flow = session.FlowReady
				s.PINAttempts = 0
				delete(s.Data, pendingActionKey)
			}
		})
		if attempts >= e.maxPINAttempts {
			e.log.WithError(ErrInvalidPIN).WithField("user_id", u.ID).Warn("pin attempts exhausted, staged action discarded")
			return wrongPINReply(0)
		}
		return wrongPINReply(e.maxPINAttempts - attempts)
	}

	return e.execute(ctx, u, action)
}

// execute dispatches the confirmed action to the custody gateway and hands
// the operation to settlement. On a capability failure the session keeps
// its prior AWAITING_CONFIRMATION state so nothing is half-applied.
func (e *Engine) execute(ctx context.Context, u user.User, action pendingAction) string {
	var (
		txID string
		err  error
	)
	switch action.Kind {
	case operation.KindTransfer:
		txID, err = e.gateway.Transfer(ctx, u.WalletAddress, action.Recipient, action.Fee.NetToRecipient)
	case operation.KindWithdraw:
		txID, err = e.gateway.Withdraw(ctx, u.WalletAddress, action.Token, action.Fee.NetToRecipient, action.Recipient)
	case operation.KindCardCreate:
		txID, err = e.gateway.Withdraw(ctx, u.WalletAddress, action.Token, action.Fee.NetToRecipient, action.Recipient)
	default:
		err = fmt.Errorf("unknown staged kind %q", action.Kind)
	}
	if err != nil {
		e.log.WithError(err).
			WithField("user_id", u.ID).
			WithField("kind", action.Kind).
			Error("gateway dispatch failed")
		return genericErrorReply
	}

	if action.Kind == operation.KindCardCreate {
		if _, cardErr := e.users.AddCard(ctx, u.ID, ""); cardErr != nil {
			e.log.WithError(cardErr).WithField("user_id", u.ID).Error("card record failed")
		}
	}

	// Funds have moved. The staged action must not survive past this
	// point, or a retried PIN would dispatch the same transfer again.
	// The fee snapshot travels with the operation: settlement charges the
	// exact quoted integers, never a recompute.
	if _, err := e.queue.Enqueue(ctx, operation.PendingOperation{
		Kind:      action.Kind,
		UserID:    u.ID,
		Amount:    action.Amount,
		Token:     action.Token,
		Recipient: action.Recipient,
		TxHash:    txID,
		Fee:       action.Fee,
	}); err != nil {
		e.log.WithError(err).
			WithField("user_id", u.ID).
			WithField("tx_hash", txID).
			Error("settlement enqueue failed, operation settles untracked")
	}

	e.sessions.Update(ctx, u.ID, func(s *session.Session) {
		s.Flow = session.FlowReady
		s.PINAttempts = 0
		delete(s.Data, pendingActionKey)
	})
	return processingReply(action.Kind)
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-4:]
}
