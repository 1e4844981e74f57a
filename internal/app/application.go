// Package app wires the assistant's services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/NairaLink/chat_layer/internal/app/httpapi"
	"github.com/NairaLink/chat_layer/internal/app/services/custody"
	"github.com/NairaLink/chat_layer/internal/app/services/engagement"
	"github.com/NairaLink/chat_layer/internal/app/services/engine"
	"github.com/NairaLink/chat_layer/internal/app/services/fees"
	"github.com/NairaLink/chat_layer/internal/app/services/kyc"
	"github.com/NairaLink/chat_layer/internal/app/services/notify"
	"github.com/NairaLink/chat_layer/internal/app/services/payments"
	"github.com/NairaLink/chat_layer/internal/app/services/sessions"
	"github.com/NairaLink/chat_layer/internal/app/services/settlement"
	"github.com/NairaLink/chat_layer/internal/app/services/users"
	"github.com/NairaLink/chat_layer/internal/app/storage"
	"github.com/NairaLink/chat_layer/internal/app/storage/memory"
	"github.com/NairaLink/chat_layer/internal/app/system"
	"github.com/NairaLink/chat_layer/internal/config"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// Stores holds the storage backends. Nil fields default to a shared
// in-memory store, which suits tests and local development.
type Stores struct {
	Sessions   storage.SessionStore
	Users      storage.UserStore
	Operations storage.OperationStore
	Payments   storage.PaymentStore
}

func (s *Stores) applyDefaults() {
	var mem *memory.Store
	fallback := func() *memory.Store {
		if mem == nil {
			mem = memory.New()
		}
		return mem
	}
	if s.Sessions == nil {
		s.Sessions = fallback()
	}
	if s.Users == nil {
		s.Users = fallback()
	}
	if s.Operations == nil {
		s.Operations = fallback()
	}
	if s.Payments == nil {
		s.Payments = fallback()
	}
}

// Options carries the capability implementations and configuration the
// application is built from.
type Options struct {
	Config       config.Config
	Stores       Stores
	Gateway      custody.Gateway
	Verifier     kyc.Verifier
	Sender       notify.Sender
	LinkProvider payments.LinkProvider
	PriceSource  fees.PriceSource
	Log          *logger.Logger
}

// Application is the fully wired assistant.
type Application struct {
	Engine     *engine.Engine
	HTTP       *httpapi.Server
	Dispatcher *notify.Dispatcher
	Queue      *settlement.Queue
	Sessions   *sessions.Service
	Users      *users.Service
	Fees       *fees.Service

	cfg     config.Config
	log     *logger.Logger
	manager *system.Manager
}

// New wires the application. The custody gateway is the one capability
// with no safe default; everything else degrades to a development
// implementation.
func New(opts Options) (*Application, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("custody gateway is required")
	}

	opts.Stores.applyDefaults()
	cfg := opts.Config

	sender := opts.Sender
	if sender == nil {
		log.Warn("chat channel not configured; outbound messages are logged only")
		sender = notify.SenderFunc(func(_ context.Context, userID, text string) error {
			log.WithField("user_id", userID).WithField("text", text).Info("outbound message")
			return nil
		})
	}
	verifier := opts.Verifier
	if verifier == nil {
		return nil, fmt.Errorf("kyc verifier is required")
	}
	linkProvider := opts.LinkProvider
	if linkProvider == nil {
		linkProvider = payments.StaticLinkProvider{BaseURL: cfg.Payments.LinkBaseURL}
	}
	priceSource := opts.PriceSource
	if priceSource == nil && cfg.Fees.OracleEndpoint != "" {
		src, err := fees.NewHTTPPriceSource(nil, cfg.Fees.OracleEndpoint, cfg.Fees.OracleAPIKey, nil)
		if err != nil {
			return nil, fmt.Errorf("price oracle: %w", err)
		}
		priceSource = src
	}

	sessionSvc := sessions.New(opts.Stores.Sessions, cfg.Session.TTL, nil)
	userSvc := users.New(opts.Stores.Users, nil)
	feeSvc := fees.New(cfg.Fees.SeedGasPrice, cfg.Fees.SeedFXRate, nil)
	paymentSvc := payments.New(opts.Stores.Payments, linkProvider, nil)

	dispatcher := notify.NewDispatcher(sender, cfg.Channel.RatePerSec, nil)
	queue := settlement.New(opts.Stores.Operations, opts.Stores.Users, opts.Gateway, dispatcher, settlement.Config{
		Workers:        cfg.Settlement.Workers,
		MaxAttempts:    cfg.Settlement.MaxAttempts,
		BaseBackoff:    cfg.Settlement.BaseBackoff,
		MonitorTimeout: cfg.Settlement.MonitorTimeout,
		PollInterval:   cfg.Settlement.PollInterval,
		ScanInterval:   cfg.Settlement.ScanInterval,
	}, nil)

	eng := engine.New(engine.Config{
		Sessions:      sessionSvc,
		Users:         userSvc,
		Fees:          feeSvc,
		Payments:      paymentSvc,
		Queue:         queue,
		Gateway:       opts.Gateway,
		Verifier:      verifier,
		Sender:        sender,
		EscrowAddress: cfg.Custody.EscrowAddress,
	}, nil)

	httpSrv := httpapi.New(httpapi.Config{
		Engine:       eng,
		Broadcaster:  dispatcher,
		Users:        userSvc,
		VerifyToken:  cfg.Channel.VerifyToken,
		JWTSecret:    cfg.Admin.JWTSecret,
		MaxBroadcast: cfg.Admin.BroadcastLimit,
	}, nil)

	manager := system.NewManager()
	for _, svc := range []system.Service{
		dispatcher,
		queue,
		fees.NewRefresher(feeSvc, priceSource, cfg.Fees.RefreshInterval, nil),
		engagement.NewScheduler(userSvc, dispatcher, cfg.Engagement.Schedule, cfg.Engagement.InactiveAfter, nil),
	} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		Engine:     eng,
		HTTP:       httpSrv,
		Dispatcher: dispatcher,
		Queue:      queue,
		Sessions:   sessionSvc,
		Users:      userSvc,
		Fees:       feeSvc,
		cfg:        cfg,
		log:        log,
		manager:    manager,
	}, nil
}

// Start brings up the background services.
func (a *Application) Start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	a.log.Info("application started")
	return nil
}

// Stop shuts the background services down in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	a.log.Info("application stopped")
	return err
}
