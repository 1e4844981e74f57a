// Package sessions manages per-user conversation state with lazy expiry.
package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NairaLink/chat_layer/internal/app/domain/session"
	"github.com/NairaLink/chat_layer/internal/app/storage"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// DefaultTTL is the inactivity window after which a session is treated as
// absent.
const DefaultTTL = 30 * time.Minute

// Service provides the get/getOrCreate/update contract over a SessionStore.
// Mutations are serialized per user with a keyed mutex so two concurrent
// messages from one sender cannot interleave a read-modify-write.
type Service struct {
	store storage.SessionStore
	ttl   time.Duration
	log   *logger.Logger
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a session service. A zero ttl falls back to DefaultTTL.
func New(store storage.SessionStore, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("sessions")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store: store,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) {
	s.now = now
}

func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// GetOrCreate returns the live session for the user, synthesizing a fresh
// NONE-flow session on first access or after expiry. It never fails: store
// errors degrade to a fresh session so a flaky backend cannot block the
// conversation.
func (s *Service) GetOrCreate(ctx context.Context, userID string) session.Session {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	sess, err := s.store.GetSession(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// fresh session below
	case err != nil:
		s.log.WithError(err).WithField("user_id", userID).Warn("session read failed; starting fresh")
	case !sess.Expired(now):
		return sess
	}

	sess = session.New(userID, now, s.ttl)
	if err := s.store.PutSession(ctx, sess); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("session write failed")
	}
	return sess
}

// Get returns the live session, or absent=false when none exists or the
// session is past its TTL.
func (s *Service) Get(ctx context.Context, userID string) (session.Session, bool) {
	sess, err := s.store.GetSession(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).WithField("user_id", userID).Warn("session read failed")
		}
		return session.Session{}, false
	}
	if sess.Expired(s.now()) {
		return session.Session{}, false
	}
	return sess, true
}

// Update applies mutate to the live session under the user's lock and
// refreshes activity and expiry. If the session is absent or expired the
// update is a warned no-op, treated as already expired rather than an error.
func (s *Service) Update(ctx context.Context, userID string, mutate func(*session.Session)) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	sess, err := s.store.GetSession(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && sess.Expired(now)) {
		s.log.WithField("user_id", userID).Warn("update on absent session ignored")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("session read failed; update dropped")
		return
	}

	mutate(&sess)
	sess.UserID = userID
	sess.LastActivity = now
	sess.ExpiresAt = now.Add(s.ttl)
	if err := s.store.PutSession(ctx, sess); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("session write failed")
	}
}
