// Package engagement nudges users who have gone quiet. The scheduler only
// reads the store and enqueues notifications; it shares no state with
// message handling.
package engagement

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/NairaLink/chat_layer/internal/app/domain/notification"
	"github.com/NairaLink/chat_layer/internal/app/services/users"
	"github.com/NairaLink/chat_layer/internal/app/system"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// DefaultSchedule runs the inactivity scan every day at 10:00.
const DefaultSchedule = "0 10 * * *"

// DefaultInactiveAfter is how long a user must be silent before a nudge.
const DefaultInactiveAfter = 7 * 24 * time.Hour

const reEngageMessage = "It's been a while! Reply 'balance' to check your wallet or 'help' to see what's new."

// Notifier is the slice of the notification dispatcher the scheduler needs.
type Notifier interface {
	Enqueue(userID, message string, kind notification.Kind)
}

var _ system.Service = (*Scheduler)(nil)

// Scheduler periodically scans for inactive users and enqueues a
// re-engagement message for each.
type Scheduler struct {
	users         *users.Service
	notifier      Notifier
	schedule      string
	inactiveAfter time.Duration
	log           *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler constructs the scheduler. Empty schedule and zero
// inactiveAfter fall back to the defaults.
func NewScheduler(usersSvc *users.Service, notifier Notifier, schedule string, inactiveAfter time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("engagement")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if inactiveAfter <= 0 {
		inactiveAfter = DefaultInactiveAfter
	}
	return &Scheduler{
		users:         usersSvc,
		notifier:      notifier,
		schedule:      schedule,
		inactiveAfter: inactiveAfter,
		log:           log,
	}
}

func (s *Scheduler) Name() string { return "engagement-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Scan(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.running = true

	s.log.WithField("schedule", s.schedule).Info("engagement scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("engagement scheduler stopped")
	return nil
}

// Scan enqueues one nudge per user inactive past the threshold. Exposed so
// the admin surface and tests can trigger it directly.
func (s *Scheduler) Scan(ctx context.Context) int {
	cutoff := time.Now().Add(-s.inactiveAfter)
	inactive, err := s.users.ListInactive(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Warn("inactivity scan failed")
		return 0
	}
	for _, u := range inactive {
		s.notifier.Enqueue(u.ID, reEngageMessage, notification.KindReEngagement)
	}
	if len(inactive) > 0 {
		s.log.WithField("count", len(inactive)).Info("re-engagement nudges enqueued")
	}
	return len(inactive)
}
