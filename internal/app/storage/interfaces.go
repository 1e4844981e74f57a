package storage

import (
	"context"
	"errors"
	"time"

	"github.com/NairaLink/chat_layer/internal/app/domain/operation"
	"github.com/NairaLink/chat_layer/internal/app/domain/payment"
	"github.com/NairaLink/chat_layer/internal/app/domain/session"
	"github.com/NairaLink/chat_layer/internal/app/domain/user"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// SessionStore persists conversation sessions. Expiry semantics are applied
// by the sessions service; Redis-backed stores additionally let the backend
// expire keys natively.
type SessionStore interface {
	GetSession(ctx context.Context, userID string) (session.Session, error)
	PutSession(ctx context.Context, sess session.Session) error
}

// UserStore persists user profiles.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByHandle(ctx context.Context, handle string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	ListInactiveUsers(ctx context.Context, lastSeenBefore time.Time) ([]user.User, error)
}

// OperationStore persists pending operations for the settlement subsystem.
type OperationStore interface {
	CreateOperation(ctx context.Context, op operation.PendingOperation) (operation.PendingOperation, error)
	UpdateOperation(ctx context.Context, op operation.PendingOperation) (operation.PendingOperation, error)
	GetOperation(ctx context.Context, id string) (operation.PendingOperation, error)
	ListOperations(ctx context.Context, userID string) ([]operation.PendingOperation, error)
	// ListOpenOperations returns every operation not yet in a terminal
	// state, regardless of whether it was submitted before the last restart.
	ListOpenOperations(ctx context.Context) ([]operation.PendingOperation, error)
}

// PaymentStore persists fiat payment requests.
type PaymentStore interface {
	CreatePaymentRequest(ctx context.Context, req payment.Request) (payment.Request, error)
	UpdatePaymentRequest(ctx context.Context, req payment.Request) (payment.Request, error)
	GetOpenPaymentRequest(ctx context.Context, userID string, amount int64) (payment.Request, error)
}
