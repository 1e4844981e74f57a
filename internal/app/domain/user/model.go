// Package user defines account profiles for chat users.
package user

import "time"

// KYCTier is the identity-verification level gating transaction limits.
type KYCTier int

const (
	TierNone KYCTier = iota
	TierBasic
	TierFull
)

// Card is a virtual card issued to a user.
type Card struct {
	ID        string
	Label     string
	Last4     string
	Active    bool
	CreatedAt time.Time
}

// BankAccount is a fiat cash-out destination.
type BankAccount struct {
	ID            string
	BankName      string
	AccountNumber string
	AccountName   string
	CreatedAt     time.Time
}

// User is a chat user with a custodial wallet.
type User struct {
	ID            string
	Handle        string
	WalletAddress string
	KYCTier       KYCTier
	PINHash       string
	Cards         []Card
	BankAccounts  []BankAccount
	LastSeen      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPIN reports whether a transaction PIN has been set.
func (u User) HasPIN() bool { return u.PINHash != "" }

// ActiveCards returns the subset of cards still active.
func (u User) ActiveCards() []Card {
	var out []Card
	for _, c := range u.Cards {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}
