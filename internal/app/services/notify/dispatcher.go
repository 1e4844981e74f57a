// Package notify delivers outbound chat messages. Delivery is best-effort
// and at-least-once; a failed send never blocks the next recipient.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/NairaLink/chat_layer/internal/app/domain/notification"
	"github.com/NairaLink/chat_layer/internal/app/metrics"
	"github.com/NairaLink/chat_layer/internal/app/system"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// Sender is the chat channel capability: deliver text to a user id.
type Sender interface {
	Send(ctx context.Context, userID, text string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, userID, text string) error

func (f SenderFunc) Send(ctx context.Context, userID, text string) error {
	return f(ctx, userID, text)
}

const defaultQueueSize = 1024

var _ system.Service = (*Dispatcher)(nil)

// Dispatcher consumes queued notification jobs and delivers them through
// the Sender, rate-shaped to respect channel throughput limits.
type Dispatcher struct {
	sender  Sender
	log     *logger.Logger
	jobs    chan notification.Job
	limiter *rate.Limiter

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewDispatcher creates a dispatcher sending at most perSecond messages per
// second. A non-positive perSecond disables shaping.
func NewDispatcher(sender Sender, perSecond float64, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("notify")
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Dispatcher{
		sender:  sender,
		log:     log,
		jobs:    make(chan notification.Job, defaultQueueSize),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Enqueue queues a notification without blocking the caller. A full queue
// drops the job with a warning; message text is idempotent status copy, so
// a drop surfaces in logs rather than user-visible corruption.
func (d *Dispatcher) Enqueue(userID, message string, kind notification.Kind) {
	job := notification.Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   message,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case d.jobs <- job:
	default:
		d.log.WithField("user_id", userID).WithField("kind", kind).Warn("notification queue full; job dropped")
	}
}

// Broadcast enqueues the message for every user id, up to limit when
// limit > 0.
func (d *Dispatcher) Broadcast(userIDs []string, message string, limit int) int {
	count := 0
	for _, id := range userIDs {
		if limit > 0 && count >= limit {
			break
		}
		d.Enqueue(id, message, notification.KindBroadcast)
		count++
	}
	return count
}

func (d *Dispatcher) Name() string { return "notify-dispatcher" }

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case job := <-d.jobs:
				d.deliver(runCtx, job)
			}
		}
	}()

	d.log.Info("notification dispatcher started")
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.log.Info("notification dispatcher stopped")
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, job notification.Job) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := d.sender.Send(sendCtx, job.UserID, job.Message); err != nil {
		metrics.NotificationsFailed.Inc()
		d.log.WithError(err).
			WithField("user_id", job.UserID).
			WithField("kind", job.Kind).
			Warn("notification send failed")
		return
	}
	metrics.NotificationsSent.Inc()
}
