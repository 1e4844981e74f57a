// Package payment defines fiat payment requests backing token purchases.
package payment

import (
	"time"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
)

// Request is an open fiat payment awaiting the user's confirmation. It is
// created by a "buy" command and verified by the matching "paid" command.
type Request struct {
	ID        string
	UserID    string
	Amount    money.Amount
	Reference string
	Link      string
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
