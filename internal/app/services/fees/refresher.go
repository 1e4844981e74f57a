package fees

import (
	"context"
	"sync"
	"time"

	"github.com/NairaLink/chat_layer/internal/app/system"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

var _ system.Service = (*Refresher)(nil)

// PriceSource fetches the current network gas price and the native→quote
// exchange rate (scaled by FXScale).
type PriceSource interface {
	Fetch(ctx context.Context) (gasPrice, fxRate int64, err error)
}

// PriceSourceFunc adapts a function to the PriceSource interface.
type PriceSourceFunc func(ctx context.Context) (int64, int64, error)

func (f PriceSourceFunc) Fetch(ctx context.Context) (int64, int64, error) {
	return f(ctx)
}

// Refresher periodically refreshes the fee service's price cache. Fetch
// failures keep the last-known values so quoting never blocks on oracle
// flakiness.
type Refresher struct {
	service  *Service
	source   PriceSource
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

const defaultRefreshInterval = 30 * time.Second

// NewRefresher creates a lifecycle-managed price refresher polling the
// source every interval.
func NewRefresher(service *Service, source PriceSource, interval time.Duration, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("fees-refresher")
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Refresher{
		service:  service,
		source:   source,
		log:      log,
		interval: interval,
	}
}

func (r *Refresher) Name() string { return "fees-refresher" }

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.source == nil {
		r.mu.Unlock()
		r.log.Warn("price source not configured; fee refresher disabled")
		return nil
	}
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.tick(runCtx)
			}
		}
	}()

	r.log.Info("fee price refresher started")
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("fee price refresher stopped")
	return nil
}

func (r *Refresher) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	gasPrice, fxRate, err := r.source.Fetch(ctx)
	if err != nil {
		r.log.WithError(err).Warn("price fetch failed; keeping last-known prices")
		return
	}
	r.service.UpdatePrices(gasPrice, fxRate)
}
