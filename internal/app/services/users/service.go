// Package users manages chat user profiles, PINs, cards and bank accounts.
package users

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/NairaLink/chat_layer/internal/app/domain/user"
	"github.com/NairaLink/chat_layer/internal/app/storage"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// ErrUnknownHandle is returned when a handle resolves to no user.
var ErrUnknownHandle = errors.New("unknown handle")

// Service provides profile operations over a UserStore.
type Service struct {
	store storage.UserStore
	log   *logger.Logger
}

// New constructs a users service.
func New(store storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, log: log}
}

// EnsureUser returns the profile for the chat sender, creating one with a
// server-assigned custodial wallet address on first contact.
func (s *Service) EnsureUser(ctx context.Context, userID string) (user.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, err
	}

	addr, err := newWalletAddress()
	if err != nil {
		return user.User{}, err
	}
	u, err = s.store.CreateUser(ctx, user.User{
		ID:            userID,
		WalletAddress: addr,
		KYCTier:       user.TierNone,
		LastSeen:      time.Now().UTC(),
	})
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", userID).WithField("wallet", addr).Info("user provisioned")
	return u, nil
}

// Touch records activity for the re-engagement scheduler.
func (s *Service) Touch(ctx context.Context, userID string) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return
	}
	u.LastSeen = time.Now().UTC()
	if _, err := s.store.UpdateUser(ctx, u); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("touch failed")
	}
}

// Get returns the user profile.
func (s *Service) Get(ctx context.Context, userID string) (user.User, error) {
	return s.store.GetUser(ctx, userID)
}

// SetKYCTier records the tier returned by the external verifier.
func (s *Service) SetKYCTier(ctx context.Context, userID string, tier user.KYCTier) (user.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	u.KYCTier = tier
	return s.store.UpdateUser(ctx, u)
}

// SetPIN hashes and stores the transaction PIN.
func (s *Service) SetPIN(ctx context.Context, userID, pin string) error {
	pin = strings.TrimSpace(pin)
	if len(pin) < 4 || len(pin) > 8 {
		return fmt.Errorf("pin must be 4 to 8 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("pin must be numeric")
		}
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PINHash = string(hash)
	_, err = s.store.UpdateUser(ctx, u)
	return err
}

// VerifyPIN reports whether the candidate matches the stored PIN.
func (s *Service) VerifyPIN(ctx context.Context, userID, candidate string) (bool, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.PINHash == "" {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(u.PINHash), []byte(strings.TrimSpace(candidate)))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ResolveHandle maps a handle to a ledger address.
func (s *Service) ResolveHandle(ctx context.Context, handle string) (string, error) {
	u, err := s.store.GetUserByHandle(ctx, handle)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrUnknownHandle
	}
	if err != nil {
		return "", err
	}
	if u.WalletAddress == "" {
		return "", ErrUnknownHandle
	}
	return u.WalletAddress, nil
}

// AddCard issues a virtual card record on the profile.
func (s *Service) AddCard(ctx context.Context, userID, label string) (user.Card, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return user.Card{}, err
	}
	card := user.Card{
		ID:        uuid.NewString(),
		Label:     strings.TrimSpace(label),
		Last4:     card4(),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	u.Cards = append(u.Cards, card)
	if _, err := s.store.UpdateUser(ctx, u); err != nil {
		return user.Card{}, err
	}
	return card, nil
}

// AddBankAccount registers a fiat cash-out destination.
func (s *Service) AddBankAccount(ctx context.Context, userID, bankName, accountNumber, accountName string) (user.BankAccount, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return user.BankAccount{}, err
	}
	acct := user.BankAccount{
		ID:            uuid.NewString(),
		BankName:      strings.TrimSpace(bankName),
		AccountNumber: strings.TrimSpace(accountNumber),
		AccountName:   strings.TrimSpace(accountName),
		CreatedAt:     time.Now().UTC(),
	}
	u.BankAccounts = append(u.BankAccounts, acct)
	if _, err := s.store.UpdateUser(ctx, u); err != nil {
		return user.BankAccount{}, err
	}
	return acct, nil
}

// ListInactive returns users whose last activity predates the cutoff.
func (s *Service) ListInactive(ctx context.Context, cutoff time.Time) ([]user.User, error) {
	return s.store.ListInactiveUsers(ctx, cutoff)
}

// List returns all users. Used by the admin broadcast surface.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

func newWalletAddress() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("wallet address: %w", err)
	}
	return "0x" + hex.EncodeToString(raw), nil
}

func card4() string {
	raw := make([]byte, 2)
	if _, err := rand.Read(raw); err != nil {
		return "0000"
	}
	return fmt.Sprintf("%04d", (int(raw[0])<<8|int(raw[1]))%10_000)
}
