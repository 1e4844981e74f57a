// Package operation defines pending financial operations owned by the
// settlement subsystem.
package operation

import (
	"time"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
)

// Kind identifies what a pending operation does against the ledger.
type Kind string

const (
	KindTransfer   Kind = "transfer"
	KindDeposit    Kind = "deposit"
	KindCardCreate Kind = "card_create"
	KindWithdraw   Kind = "withdraw"
)

// State is the settlement lifecycle state of an operation.
type State string

const (
	// StateQueued means the operation is waiting for a worker.
	StateQueued State = "queued"
	// StateMonitoring means a worker is polling the ledger for confirmation.
	StateMonitoring State = "monitoring"
	// StateCompleted is terminal success.
	StateCompleted State = "completed"
	// StateFailed is terminal failure, including monitor timeout.
	StateFailed State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FeeQuote is the frozen fee snapshot attached to an operation. The exact
// integers quoted to the user are the ones charged at execution.
type FeeQuote struct {
	Amount           money.Amount
	ServiceFee       money.Amount
	NetworkFeeNative int64 // native gas units, minor denomination
	NetworkFeeQuote  money.Amount
	TotalCost        money.Amount
	NetToRecipient   money.Amount
}

// PendingOperation is a committed financial action awaiting settlement.
// After enqueue it is owned exclusively by the settlement subsystem.
type PendingOperation struct {
	ID         string
	Kind       Kind
	UserID     string
	Amount     money.Amount
	Token      string
	Recipient  string
	State      State
	Attempts   int
	TxHash     string
	Fee        FeeQuote
	FailReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
