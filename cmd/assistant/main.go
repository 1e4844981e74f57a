// Command assistant runs the conversational custody assistant: the chat
// webhook, the settlement workers, and the notification dispatcher.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/NairaLink/chat_layer/internal/app"
	"github.com/NairaLink/chat_layer/internal/app/services/custody"
	"github.com/NairaLink/chat_layer/internal/app/services/kyc"
	"github.com/NairaLink/chat_layer/internal/app/services/notify"
	"github.com/NairaLink/chat_layer/internal/app/storage/postgres"
	"github.com/NairaLink/chat_layer/internal/app/storage/redis"
	"github.com/NairaLink/chat_layer/internal/config"
	"github.com/NairaLink/chat_layer/internal/platform/migrations"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML configuration")
		addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
	)
	flag.Parse()

	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log := logger.NewDefault("assistant")

	stores, cleanup, err := buildStores(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Custody.Endpoint == "" {
		return fmt.Errorf("custody endpoint is required (CUSTODY_ENDPOINT)")
	}
	gateway, err := custody.NewHTTPGateway(nil, cfg.Custody.Endpoint, cfg.Custody.APIKey, nil)
	if err != nil {
		return err
	}
	if cfg.KYC.Endpoint == "" {
		return fmt.Errorf("kyc endpoint is required (KYC_ENDPOINT)")
	}
	verifier, err := kyc.NewHTTPVerifier(nil, cfg.KYC.Endpoint, cfg.KYC.APIKey, nil)
	if err != nil {
		return err
	}

	var sender notify.Sender
	if cfg.Channel.Endpoint != "" {
		sender, err = notify.NewHTTPSender(nil, cfg.Channel.Endpoint, cfg.Channel.Token, nil)
		if err != nil {
			return err
		}
	}

	application, err := app.New(app.Options{
		Config:   cfg,
		Stores:   stores,
		Gateway:  gateway,
		Verifier: verifier,
		Sender:   sender,
		Log:      log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           application.HTTP,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("http server listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown failed")
	}
	return application.Stop(shutdownCtx)
}

// buildStores selects storage backends from the configuration: PostgreSQL
// for durable state when a DSN is given, Redis for sessions when an address
// is given, in-memory otherwise.
func buildStores(cfg config.Config, log *logger.Logger) (app.Stores, func(), error) {
	var stores app.Stores
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return app.Stores{}, cleanup, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { db.Close() })

		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return app.Stores{}, cleanup, fmt.Errorf("ping postgres: %w", err)
		}
		if err := migrations.Apply(pingCtx, db); err != nil {
			return app.Stores{}, cleanup, fmt.Errorf("apply migrations: %w", err)
		}

		pg := postgres.New(db)
		stores.Sessions = pg
		stores.Users = pg
		stores.Operations = pg
		stores.Payments = pg
		log.Info("using postgres storage")
	} else {
		log.Warn("no database configured; state is in-memory and volatile")
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { client.Close() })

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return app.Stores{}, cleanup, fmt.Errorf("ping redis: %w", err)
		}
		stores.Sessions = redis.NewSessionStore(client)
		log.Info("using redis session storage")
	}

	return stores, cleanup, nil
}
