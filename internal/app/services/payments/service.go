// Package payments manages fiat payment requests that mint custodial
// tokens once verified.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
	"github.com/NairaLink/chat_layer/internal/app/domain/payment"
	"github.com/NairaLink/chat_layer/internal/app/storage"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// ErrNoMatchingRequest is returned when a "paid" claim matches no open
// payment request.
var ErrNoMatchingRequest = errors.New("no matching payment request")

// LinkProvider generates and verifies fiat payment links. External
// capability; the static implementation serves development.
type LinkProvider interface {
	CreateLink(ctx context.Context, reference string, amount money.Amount) (string, error)
	VerifyPayment(ctx context.Context, reference string) (bool, error)
}

// StaticLinkProvider builds deterministic links and accepts every payment.
// Development and test use only.
type StaticLinkProvider struct {
	BaseURL string
}

func (p StaticLinkProvider) CreateLink(_ context.Context, reference string, amount money.Amount) (string, error) {
	return fmt.Sprintf("%s/pay/%s?amount=%d", p.BaseURL, reference, int64(amount)), nil
}

func (p StaticLinkProvider) VerifyPayment(_ context.Context, _ string) (bool, error) {
	return true, nil
}

// Service creates and verifies payment requests.
type Service struct {
	store    storage.PaymentStore
	provider LinkProvider
	log      *logger.Logger
}

// New constructs a payments service.
func New(store storage.PaymentStore, provider LinkProvider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payments")
	}
	return &Service{store: store, provider: provider, log: log}
}

// CreateRequest opens a payment request for the given whole-unit amount and
// returns it with the provider link attached.
func (s *Service) CreateRequest(ctx context.Context, userID string, amountUnits int64) (payment.Request, error) {
	if amountUnits <= 0 {
		return payment.Request{}, fmt.Errorf("amount must be positive")
	}
	reference := uuid.NewString()
	amount := money.FromUnits(amountUnits)

	link, err := s.provider.CreateLink(ctx, reference, amount)
	if err != nil {
		return payment.Request{}, fmt.Errorf("payment link: %w", err)
	}

	req, err := s.store.CreatePaymentRequest(ctx, payment.Request{
		UserID:    userID,
		Amount:    amount,
		Reference: reference,
		Link:      link,
	})
	if err != nil {
		return payment.Request{}, err
	}
	s.log.WithField("user_id", userID).
		WithField("reference", reference).
		WithField("amount", amount.String()).
		Info("payment request created")
	return req, nil
}

// ConfirmPaid matches a "paid <amount>" claim against the oldest open
// request for the user, verifies it with the provider, and marks it
// verified.
func (s *Service) ConfirmPaid(ctx context.Context, userID string, amountUnits int64) (payment.Request, error) {
	req, err := s.store.GetOpenPaymentRequest(ctx, userID, amountUnits)
	if errors.Is(err, storage.ErrNotFound) {
		return payment.Request{}, ErrNoMatchingRequest
	}
	if err != nil {
		return payment.Request{}, err
	}

	ok, err := s.provider.VerifyPayment(ctx, req.Reference)
	if err != nil {
		return payment.Request{}, fmt.Errorf("payment verification: %w", err)
	}
	if !ok {
		return payment.Request{}, fmt.Errorf("payment %s not yet received", req.Reference)
	}

	req.Verified = true
	req, err = s.store.UpdatePaymentRequest(ctx, req)
	if err != nil {
		return payment.Request{}, err
	}
	s.log.WithField("user_id", userID).
		WithField("reference", req.Reference).
		Info("payment verified")
	return req, nil
}
