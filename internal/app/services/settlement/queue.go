// Package settlement owns pending operations after the engine commits them.
// A bounded worker pool submits each operation to the custody gateway,
// monitors the ledger transaction to a terminal state, and emits exactly
// one notification per outcome.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NairaLink/chat_layer/internal/app/domain/notification"
	"github.com/NairaLink/chat_layer/internal/app/domain/operation"
	"github.com/NairaLink/chat_layer/internal/app/metrics"
	"github.com/NairaLink/chat_layer/internal/app/services/custody"
	"github.com/NairaLink/chat_layer/internal/app/storage"
	"github.com/NairaLink/chat_layer/internal/app/system"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// ErrTimeout marks an operation whose confirmation deadline elapsed before
// the ledger reported a terminal status.
var ErrTimeout = errors.New("confirmation timed out")

// Notifier is the slice of the notification dispatcher the queue needs.
type Notifier interface {
	Enqueue(userID, message string, kind notification.Kind)
}

// Config bounds the worker pool and its retry policy.
type Config struct {
	Workers        int
	MaxAttempts    int
	BaseBackoff    time.Duration
	MonitorTimeout time.Duration
	PollInterval   time.Duration
	ScanInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MonitorTimeout <= 0 {
		c.MonitorTimeout = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = 30 * time.Second
	}
	return c
}

var _ system.Service = (*Queue)(nil)

// Queue is the durable settlement queue and its worker pool.
type Queue struct {
	store    storage.OperationStore
	users    storage.UserStore
	gateway  custody.Gateway
	notifier Notifier
	cfg      Config
	log      *logger.Logger

	work chan string

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New constructs a settlement queue.
func New(store storage.OperationStore, users storage.UserStore, gateway custody.Gateway, notifier Notifier, cfg Config, log *logger.Logger) *Queue {
	if log == nil {
		log = logger.NewDefault("settlement")
	}
	cfg = cfg.withDefaults()
	return &Queue{
		store:    store,
		users:    users,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		work:     make(chan string, 256),
	}
}

// Enqueue persists the operation as QUEUED and hands it to the worker pool.
// Fire-and-forget from the engine's perspective: after this call the
// settlement subsystem is the operation's only writer.
func (q *Queue) Enqueue(ctx context.Context, op operation.PendingOperation) (string, error) {
	op.State = operation.StateQueued
	op, err := q.store.CreateOperation(ctx, op)
	if err != nil {
		return "", fmt.Errorf("persist operation: %w", err)
	}
	select {
	case q.work <- op.ID:
	default:
		// Channel full: the scanner picks the operation up from the store.
	}
	q.log.WithField("operation_id", op.ID).
		WithField("kind", op.Kind).
		WithField("user_id", op.UserID).
		Info("operation enqueued")
	return op.ID, nil
}

func (q *Queue) Name() string { return "settlement-queue" }

func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true
	q.mu.Unlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case opID := <-q.work:
					q.process(runCtx, opID)
				}
			}
		}()
	}

	// Scanner requeues QUEUED operations left behind by a crash or a full
	// work channel.
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.cfg.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				q.scan(runCtx)
			}
		}
	}()

	q.log.WithField("workers", q.cfg.Workers).Info("settlement queue started")
	return nil
}

func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	cancel := q.cancel
	q.running = false
	q.cancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	q.log.Info("settlement queue stopped")
	return nil
}

// scan requeues every non-terminal operation, picking up work left behind
// by a crash whether it died before submission or mid-monitoring.
func (q *Queue) scan(ctx context.Context) {
	ops, err := q.store.ListOpenOperations(ctx)
	if err != nil {
		q.log.WithError(err).Warn("open operation scan failed")
		return
	}
	for _, op := range ops {
		select {
		case q.work <- op.ID:
		default:
			return
		}
	}
}

// process drives one operation to a terminal state. It is idempotent on
// re-invocation: current store state is re-read before any mutation.
func (q *Queue) process(ctx context.Context, opID string) {
	op, err := q.store.GetOperation(ctx, opID)
	if err != nil {
		q.log.WithError(err).WithField("operation_id", opID).Warn("load operation failed")
		return
	}
	if op.State.Terminal() {
		return
	}

	log := q.log.WithField("operation_id", op.ID).WithField("kind", op.Kind)

	if op.TxHash == "" {
		op, err = q.submitWithRetry(ctx, op, log)
		if err != nil {
			return
		}
		if op.State.Terminal() {
			return
		}
	} else if op.State == operation.StateQueued {
		// Crash recovery: the tx was submitted but the state move was lost.
		op.State = operation.StateMonitoring
		if op, err = q.store.UpdateOperation(ctx, op); err != nil {
			log.WithError(err).Warn("restore monitoring state failed")
			return
		}
	}

	q.monitor(ctx, op, log)
}

// submitWithRetry issues the ledger call with exponential backoff. Only
// transient errors are retried; a revert is terminal.
func (q *Queue) submitWithRetry(ctx context.Context, op operation.PendingOperation, log *logger.Logger) (operation.PendingOperation, error) {
	for op.Attempts < q.cfg.MaxAttempts {
		op.Attempts++
		txID, err := q.submit(ctx, op)
		if err == nil {
			op.TxHash = txID
			op.State = operation.StateMonitoring
			updated, uerr := q.store.UpdateOperation(ctx, op)
			if uerr != nil {
				log.WithError(uerr).Warn("persist submission failed")
				return op, uerr
			}
			return updated, nil
		}
		if errors.Is(err, custody.ErrReverted) {
			q.fail(ctx, op, "operation reverted on chain", log)
			return op, err
		}

		log.WithError(err).WithField("attempt", op.Attempts).Warn("submission failed")
		if _, uerr := q.store.UpdateOperation(ctx, op); uerr != nil {
			log.WithError(uerr).Warn("persist attempt count failed")
		}
		if op.Attempts >= q.cfg.MaxAttempts {
			break
		}

		backoff := q.cfg.BaseBackoff << (op.Attempts - 1)
		select {
		case <-ctx.Done():
			return op, ctx.Err()
		case <-time.After(backoff):
		}
	}

	q.fail(ctx, op, "settlement retries exhausted", log)
	return op, fmt.Errorf("retries exhausted for operation %s", op.ID)
}

func (q *Queue) submit(ctx context.Context, op operation.PendingOperation) (string, error) {
	u, err := q.users.GetUser(ctx, op.UserID)
	if err != nil {
		return "", fmt.Errorf("load signer: %w", err)
	}
	signer := u.WalletAddress

	amount := op.Fee.NetToRecipient
	if amount == 0 {
		amount = op.Amount
	}

	switch op.Kind {
	case operation.KindTransfer:
		return q.gateway.Transfer(ctx, signer, op.Recipient, amount)
	case operation.KindDeposit:
		return q.gateway.Deposit(ctx, signer, op.Token, amount)
	case operation.KindWithdraw:
		return q.gateway.Withdraw(ctx, signer, op.Token, amount, op.Recipient)
	case operation.KindCardCreate:
		// Card funding locks the amount in escrow for the card account.
		return q.gateway.Withdraw(ctx, signer, op.Token, amount, op.Recipient)
	default:
		return "", fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// monitor polls the ledger until the tx is terminal or the monitoring
// deadline passes. A stalled confirmation cannot hold a worker slot past
// the deadline: on timeout the operation is FAILED and never retried.
func (q *Queue) monitor(ctx context.Context, op operation.PendingOperation, log *logger.Logger) {
	deadline := time.Now().Add(q.cfg.MonitorTimeout)
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := q.gateway.TransactionStatus(ctx, op.TxHash)
		if err != nil {
			log.WithError(err).Warn("status poll failed")
		} else {
			switch status {
			case custody.TxConfirmed:
				q.complete(ctx, op, log)
				return
			case custody.TxReverted:
				q.fail(ctx, op, "operation reverted on chain", log)
				return
			}
		}

		if time.Now().After(deadline) {
			q.fail(ctx, op, ErrTimeout.Error(), log)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) complete(ctx context.Context, op operation.PendingOperation, log *logger.Logger) {
	current, err := q.store.GetOperation(ctx, op.ID)
	if err != nil {
		log.WithError(err).Warn("reload before completion failed")
		return
	}
	if current.State.Terminal() {
		return
	}

	current.State = operation.StateCompleted
	current.TxHash = op.TxHash
	if _, err := q.store.UpdateOperation(ctx, current); err != nil {
		log.WithError(err).Warn("persist completion failed")
		return
	}

	metrics.OperationsSettled.WithLabelValues(string(current.Kind), string(operation.StateCompleted)).Inc()
	log.WithField("tx_hash", current.TxHash).Info("operation completed")
	if q.notifier != nil {
		q.notifier.Enqueue(current.UserID, successMessage(current), notification.KindSettlementSuccess)
	}
}

func (q *Queue) fail(ctx context.Context, op operation.PendingOperation, reason string, log *logger.Logger) {
	current, err := q.store.GetOperation(ctx, op.ID)
	if err != nil {
		log.WithError(err).Warn("reload before failure failed")
		return
	}
	if current.State.Terminal() {
		return
	}

	current.State = operation.StateFailed
	current.FailReason = reason
	current.Attempts = op.Attempts
	if _, err := q.store.UpdateOperation(ctx, current); err != nil {
		log.WithError(err).Warn("persist failure failed")
		return
	}

	metrics.OperationsSettled.WithLabelValues(string(current.Kind), string(operation.StateFailed)).Inc()
	log.WithField("reason", reason).Warn("operation failed")
	if q.notifier != nil {
		q.notifier.Enqueue(current.UserID, failureMessage(current), notification.KindSettlementFailure)
	}
}

func successMessage(op operation.PendingOperation) string {
	switch op.Kind {
	case operation.KindTransfer:
		return fmt.Sprintf("Your transfer of %s %s to %s is complete. Ref: %s", op.Amount, op.Token, op.Recipient, op.TxHash)
	case operation.KindDeposit:
		return fmt.Sprintf("Your deposit of %s %s has been credited. Ref: %s", op.Amount, op.Token, op.TxHash)
	case operation.KindWithdraw:
		return fmt.Sprintf("Your cash out of %s %s is complete. Ref: %s", op.Amount, op.Token, op.TxHash)
	case operation.KindCardCreate:
		return "Your virtual card is ready. Reply 'my cards' to see it."
	default:
		return "Your request is complete."
	}
}

func failureMessage(op operation.PendingOperation) string {
	return fmt.Sprintf("We could not complete your %s of %s %s (%s). Your balance was not affected. Reply 'help' for options.",
		op.Kind, op.Amount, op.Token, op.FailReason)
}
