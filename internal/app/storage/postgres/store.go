package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
	"github.com/NairaLink/chat_layer/internal/app/domain/operation"
	"github.com/NairaLink/chat_layer/internal/app/domain/payment"
	"github.com/NairaLink/chat_layer/internal/app/domain/session"
	"github.com/NairaLink/chat_layer/internal/app/domain/user"
	"github.com/NairaLink/chat_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.SessionStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.OperationStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- SessionStore -----------------------------------------------------------

func (s *Store) GetSession(ctx context.Context, userID string) (session.Session, error) {
	var (
		sess     session.Session
		dataJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, flow, data, pin_attempts, last_activity, expires_at
		FROM chat_sessions WHERE user_id = $1
	`, userID).Scan(&sess.UserID, &sess.Flow, &dataJSON, &sess.PINAttempts, &sess.LastActivity, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	if err := json.Unmarshal(dataJSON, &sess.Data); err != nil {
		return session.Session{}, err
	}
	if sess.Data == nil {
		sess.Data = make(map[string]string)
	}
	return sess, nil
}

func (s *Store) PutSession(ctx context.Context, sess session.Session) error {
	dataJSON, err := json.Marshal(sess.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (user_id, flow, data, pin_attempts, last_activity, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET flow = $2, data = $3, pin_attempts = $4, last_activity = $5, expires_at = $6
	`, sess.UserID, sess.Flow, dataJSON, sess.PINAttempts, sess.LastActivity, sess.ExpiresAt)
	return err
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	cardsJSON, err := json.Marshal(u.Cards)
	if err != nil {
		return user.User{}, err
	}
	banksJSON, err := json.Marshal(u.BankAccounts)
	if err != nil {
		return user.User{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_users (id, handle, wallet_address, kyc_tier, pin_hash, cards, bank_accounts, last_seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Handle, u.WalletAddress, int(u.KYCTier), u.PINHash, cardsJSON, banksJSON, u.LastSeen, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return user.User{}, errors.New("handle already taken")
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	cardsJSON, err := json.Marshal(u.Cards)
	if err != nil {
		return user.User{}, err
	}
	banksJSON, err := json.Marshal(u.BankAccounts)
	if err != nil {
		return user.User{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE chat_users
		SET handle = $2, wallet_address = $3, kyc_tier = $4, pin_hash = $5,
		    cards = $6, bank_accounts = $7, last_seen = $8, updated_at = $9
		WHERE id = $1
	`, u.ID, u.Handle, u.WalletAddress, int(u.KYCTier), u.PINHash, cardsJSON, banksJSON, u.LastSeen, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, handle, wallet_address, kyc_tier, pin_hash, cards, bank_accounts, last_seen, created_at, updated_at
		FROM chat_users WHERE id = $1
	`, id))
}

func (s *Store) GetUserByHandle(ctx context.Context, handle string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, handle, wallet_address, kyc_tier, pin_hash, cards, bank_accounts, last_seen, created_at, updated_at
		FROM chat_users WHERE lower(handle) = lower($1)
	`, handle))
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, handle, wallet_address, kyc_tier, pin_hash, cards, bank_accounts, last_seen, created_at, updated_at
		FROM chat_users ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectUsers(rows)
}

func (s *Store) ListInactiveUsers(ctx context.Context, lastSeenBefore time.Time) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, handle, wallet_address, kyc_tier, pin_hash, cards, bank_accounts, last_seen, created_at, updated_at
		FROM chat_users WHERE last_seen < $1 ORDER BY last_seen
	`, lastSeenBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectUsers(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (user.User, error) {
	var (
		u         user.User
		kycTier   int
		cardsJSON []byte
		banksJSON []byte
	)
	err := row.Scan(&u.ID, &u.Handle, &u.WalletAddress, &kycTier, &u.PINHash, &cardsJSON, &banksJSON, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	u.KYCTier = user.KYCTier(kycTier)
	if err := json.Unmarshal(cardsJSON, &u.Cards); err != nil {
		return user.User{}, err
	}
	if err := json.Unmarshal(banksJSON, &u.BankAccounts); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) collectUsers(rows *sql.Rows) ([]user.User, error) {
	var out []user.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- OperationStore ---------------------------------------------------------

func (s *Store) CreateOperation(ctx context.Context, op operation.PendingOperation) (operation.PendingOperation, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	op.CreatedAt = now
	op.UpdatedAt = now
	if op.State == "" {
		op.State = operation.StateQueued
	}

	feeJSON, err := json.Marshal(op.Fee)
	if err != nil {
		return operation.PendingOperation{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_operations (id, kind, user_id, amount, token, recipient, state, attempts, tx_hash, fee, fail_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, op.ID, op.Kind, op.UserID, int64(op.Amount), op.Token, op.Recipient, op.State, op.Attempts, op.TxHash, feeJSON, op.FailReason, op.CreatedAt, op.UpdatedAt)
	if err != nil {
		return operation.PendingOperation{}, err
	}
	return op, nil
}

func (s *Store) UpdateOperation(ctx context.Context, op operation.PendingOperation) (operation.PendingOperation, error) {
	op.UpdatedAt = time.Now().UTC()

	// The fee column is immutable after creation; only lifecycle fields move.
	result, err := s.db.ExecContext(ctx, `
		UPDATE pending_operations
		SET state = $2, attempts = $3, tx_hash = $4, fail_reason = $5, updated_at = $6
		WHERE id = $1
	`, op.ID, op.State, op.Attempts, op.TxHash, op.FailReason, op.UpdatedAt)
	if err != nil {
		return operation.PendingOperation{}, err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return operation.PendingOperation{}, storage.ErrNotFound
	}
	return op, nil
}

func (s *Store) GetOperation(ctx context.Context, id string) (operation.PendingOperation, error) {
	return s.scanOperation(s.db.QueryRowContext(ctx, `
		SELECT id, kind, user_id, amount, token, recipient, state, attempts, tx_hash, fee, fail_reason, created_at, updated_at
		FROM pending_operations WHERE id = $1
	`, id))
}

func (s *Store) ListOperations(ctx context.Context, userID string) ([]operation.PendingOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, user_id, amount, token, recipient, state, attempts, tx_hash, fee, fail_reason, created_at, updated_at
		FROM pending_operations WHERE ($1 = '' OR user_id = $1) ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectOperations(rows)
}

func (s *Store) ListOpenOperations(ctx context.Context) ([]operation.PendingOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, user_id, amount, token, recipient, state, attempts, tx_hash, fee, fail_reason, created_at, updated_at
		FROM pending_operations WHERE state IN ('queued', 'monitoring') ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectOperations(rows)
}

func (s *Store) scanOperation(row rowScanner) (operation.PendingOperation, error) {
	var (
		op      operation.PendingOperation
		amount  int64
		feeJSON []byte
	)
	err := row.Scan(&op.ID, &op.Kind, &op.UserID, &amount, &op.Token, &op.Recipient, &op.State, &op.Attempts, &op.TxHash, &feeJSON, &op.FailReason, &op.CreatedAt, &op.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return operation.PendingOperation{}, storage.ErrNotFound
	}
	if err != nil {
		return operation.PendingOperation{}, err
	}
	op.Amount = money.Amount(amount)
	if err := json.Unmarshal(feeJSON, &op.Fee); err != nil {
		return operation.PendingOperation{}, err
	}
	return op, nil
}

func (s *Store) collectOperations(rows *sql.Rows) ([]operation.PendingOperation, error) {
	var out []operation.PendingOperation
	for rows.Next() {
		op, err := s.scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// --- PaymentStore -----------------------------------------------------------

func (s *Store) CreatePaymentRequest(ctx context.Context, req payment.Request) (payment.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_requests (id, user_id, amount, reference, link, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.ID, req.UserID, int64(req.Amount), req.Reference, req.Link, req.Verified, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return payment.Request{}, err
	}
	return req, nil
}

func (s *Store) UpdatePaymentRequest(ctx context.Context, req payment.Request) (payment.Request, error) {
	req.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_requests SET verified = $2, updated_at = $3 WHERE id = $1
	`, req.ID, req.Verified, req.UpdatedAt)
	if err != nil {
		return payment.Request{}, err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return payment.Request{}, storage.ErrNotFound
	}
	return req, nil
}

func (s *Store) GetOpenPaymentRequest(ctx context.Context, userID string, amount int64) (payment.Request, error) {
	var (
		req payment.Request
		amt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, reference, link, verified, created_at, updated_at
		FROM payment_requests
		WHERE user_id = $1 AND verified = false AND amount = $2
		ORDER BY created_at LIMIT 1
	`, userID, amount*money.MinorPerUnit).Scan(&req.ID, &req.UserID, &amt, &req.Reference, &req.Link, &req.Verified, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return payment.Request{}, storage.ErrNotFound
	}
	if err != nil {
		return payment.Request{}, err
	}
	req.Amount = money.Amount(amt)
	return req, nil
}
