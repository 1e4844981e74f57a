package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/NairaLink/chat_layer/internal/app/domain/notification"
	"github.com/NairaLink/chat_layer/internal/app/domain/user"
	"github.com/NairaLink/chat_layer/internal/app/services/users"
	"github.com/NairaLink/chat_layer/internal/app/storage/memory"
	"github.com/NairaLink/chat_layer/pkg/testutil"
)

func TestScanNudgesOnlyInactiveUsers(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, user.User{ID: "stale", LastSeen: time.Now().Add(-10 * 24 * time.Hour)}); err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	if _, err := store.CreateUser(ctx, user.User{ID: "active", LastSeen: time.Now()}); err != nil {
		t.Fatalf("seed active: %v", err)
	}

	notifier := &testutil.MockNotifier{}
	s := NewScheduler(users.New(store, nil), notifier, "", 7*24*time.Hour, nil)

	if n := s.Scan(ctx); n != 1 {
		t.Fatalf("scan count = %d, want 1", n)
	}
	if n := notifier.Count(notification.KindReEngagement); n != 1 {
		t.Fatalf("nudges = %d, want 1", n)
	}
	if len(notifier.Jobs) != 1 || notifier.Jobs[0].UserID != "stale" {
		t.Fatalf("jobs = %+v", notifier.Jobs)
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	store := memory.New()
	notifier := &testutil.MockNotifier{}
	s := NewScheduler(users.New(store, nil), notifier, "@every 1h", 0, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Idempotent start.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
