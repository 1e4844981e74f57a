package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NairaLink/chat_layer/internal/app/domain/operation"
	"github.com/NairaLink/chat_layer/internal/app/domain/payment"
	"github.com/NairaLink/chat_layer/internal/app/domain/session"
	"github.com/NairaLink/chat_layer/internal/app/domain/user"
	"github.com/NairaLink/chat_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	sessions      map[string]session.Session
	users         map[string]user.User
	usersByHandle map[string]string
	operations    map[string]operation.PendingOperation
	payments      map[string]payment.Request
}

var _ storage.SessionStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.OperationStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		sessions:      make(map[string]session.Session),
		users:         make(map[string]user.User),
		usersByHandle: make(map[string]string),
		operations:    make(map[string]operation.PendingOperation),
		payments:      make(map[string]payment.Request),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// SessionStore implementation ------------------------------------------------

func (s *Store) GetSession(_ context.Context, userID string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return session.Session{}, storage.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *Store) PutSession(_ context.Context, sess session.Session) error {
	if sess.UserID == "" {
		return fmt.Errorf("session user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = cloneSession(sess)
	return nil
}

func cloneSession(sess session.Session) session.Session {
	data := make(map[string]string, len(sess.Data))
	for k, v := range sess.Data {
		data[k] = v
	}
	sess.Data = data
	return sess
}

// UserStore implementation ---------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s already exists", u.ID)
	}
	handle := strings.ToLower(u.Handle)
	if handle != "" {
		if _, exists := s.usersByHandle[handle]; exists {
			return user.User{}, fmt.Errorf("handle %s already taken", u.Handle)
		}
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	if handle != "" {
		s.usersByHandle[handle] = u.ID
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	oldHandle := strings.ToLower(existing.Handle)
	newHandle := strings.ToLower(u.Handle)
	if oldHandle != newHandle {
		if newHandle != "" {
			if owner, exists := s.usersByHandle[newHandle]; exists && owner != u.ID {
				return user.User{}, fmt.Errorf("handle %s already taken", u.Handle)
			}
		}
		delete(s.usersByHandle, oldHandle)
		if newHandle != "" {
			s.usersByHandle[newHandle] = u.ID
		}
	}

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByHandle(_ context.Context, handle string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByHandle[strings.ToLower(handle)]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListInactiveUsers(_ context.Context, lastSeenBefore time.Time) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []user.User
	for _, u := range s.users {
		if !u.LastSeen.IsZero() && u.LastSeen.Before(lastSeenBefore) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// OperationStore implementation ----------------------------------------------

func (s *Store) CreateOperation(_ context.Context, op operation.PendingOperation) (operation.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op.ID == "" {
		op.ID = s.nextIDLocked()
	} else if _, exists := s.operations[op.ID]; exists {
		return operation.PendingOperation{}, fmt.Errorf("operation %s already exists", op.ID)
	}
	now := time.Now().UTC()
	op.CreatedAt = now
	op.UpdatedAt = now
	if op.State == "" {
		op.State = operation.StateQueued
	}
	s.operations[op.ID] = op
	return op, nil
}

func (s *Store) UpdateOperation(_ context.Context, op operation.PendingOperation) (operation.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.operations[op.ID]
	if !ok {
		return operation.PendingOperation{}, storage.ErrNotFound
	}
	op.CreatedAt = existing.CreatedAt
	op.UpdatedAt = time.Now().UTC()
	s.operations[op.ID] = op
	return op, nil
}

func (s *Store) GetOperation(_ context.Context, id string) (operation.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operations[id]
	if !ok {
		return operation.PendingOperation{}, storage.ErrNotFound
	}
	return op, nil
}

func (s *Store) ListOperations(_ context.Context, userID string) ([]operation.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []operation.PendingOperation
	for _, op := range s.operations {
		if userID == "" || op.UserID == userID {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListOpenOperations(_ context.Context) ([]operation.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []operation.PendingOperation
	for _, op := range s.operations {
		if !op.State.Terminal() {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PaymentStore implementation ------------------------------------------------

func (s *Store) CreatePaymentRequest(_ context.Context, req payment.Request) (payment.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	} else if _, exists := s.payments[req.ID]; exists {
		return payment.Request{}, fmt.Errorf("payment request %s already exists", req.ID)
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	s.payments[req.ID] = req
	return req, nil
}

func (s *Store) UpdatePaymentRequest(_ context.Context, req payment.Request) (payment.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.payments[req.ID]
	if !ok {
		return payment.Request{}, storage.ErrNotFound
	}
	req.CreatedAt = existing.CreatedAt
	req.UpdatedAt = time.Now().UTC()
	s.payments[req.ID] = req
	return req, nil
}

func (s *Store) GetOpenPaymentRequest(_ context.Context, userID string, amount int64) (payment.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *payment.Request
	for id := range s.payments {
		req := s.payments[id]
		if req.UserID != userID || req.Verified {
			continue
		}
		if req.Amount.Units() != amount {
			continue
		}
		if found == nil || req.CreatedAt.Before(found.CreatedAt) {
			r := req
			found = &r
		}
	}
	if found == nil {
		return payment.Request{}, storage.ErrNotFound
	}
	return *found, nil
}
