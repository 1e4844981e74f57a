// Package custody defines the ledger-side capability holding user balances
// in escrow. The engine and settlement worker consume this interface; the
// HTTP implementation talks to the chain RPC bridge.
package custody

import (
	"context"
	"errors"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
)

// TxStatus is the observed state of a submitted ledger transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxReverted  TxStatus = "reverted"
)

// ErrReverted marks an on-chain semantic failure. It is terminal: the
// settlement worker never retries a reverted operation.
var ErrReverted = errors.New("transaction reverted")

// Gateway exposes balance and funds-moving operations against the custodial
// ledger. Every funds-moving call returns the ledger transaction id.
type Gateway interface {
	BalanceOf(ctx context.Context, address, token string) (money.Amount, error)
	Deposit(ctx context.Context, signer, token string, amount money.Amount) (string, error)
	Transfer(ctx context.Context, signer, recipient string, amount money.Amount) (string, error)
	Withdraw(ctx context.Context, signer, token string, amount money.Amount, destination string) (string, error)
	TransactionStatus(ctx context.Context, txID string) (TxStatus, error)
}
