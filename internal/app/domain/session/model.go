// Package session defines per-user conversation state.
package session

import "time"

// Flow identifies where a user is in the conversation state machine.
type Flow string

const (
	// FlowNone is the initial state before any onboarding.
	FlowNone Flow = "none"
	// FlowKYCPending means the user was prompted to complete identity
	// verification.
	FlowKYCPending Flow = "kyc_pending"
	// FlowPINPending means the user passed KYC but has no transaction PIN.
	FlowPINPending Flow = "pin_pending"
	// FlowReady means the user can issue any command.
	FlowReady Flow = "ready"
	// FlowAwaitingPIN means the next message is interpreted as a PIN.
	FlowAwaitingPIN Flow = "awaiting_pin"
	// FlowAwaitingConfirmation means a funds-moving action is staged and the
	// next message is the authorizing PIN.
	FlowAwaitingConfirmation Flow = "awaiting_confirmation"
	// FlowAwaitingCardSelection means the next numeric message selects a card.
	FlowAwaitingCardSelection Flow = "awaiting_card_selection"
)

// Session holds the conversation state for one user. Exactly one live
// session exists per user; expiry is applied lazily on read.
type Session struct {
	UserID       string
	Flow         Flow
	Data         map[string]string
	PINAttempts  int
	LastActivity time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// New returns a fresh NONE-flow session for the user.
func New(userID string, now time.Time, ttl time.Duration) Session {
	return Session{
		UserID:       userID,
		Flow:         FlowNone,
		Data:         make(map[string]string),
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
	}
}
