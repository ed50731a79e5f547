// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires the portal's services and serves the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/kantama/portal/internal/config"
	"codeberg.org/kantama/portal/internal/database"
	"codeberg.org/kantama/portal/internal/events"
	"codeberg.org/kantama/portal/internal/handlers"
	"codeberg.org/kantama/portal/internal/i18n"
	"codeberg.org/kantama/portal/internal/jobs"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/services/applications"
	"codeberg.org/kantama/portal/internal/services/attachments"
	authsvc "codeberg.org/kantama/portal/internal/services/auth"
	"codeberg.org/kantama/portal/internal/services/email"
	"codeberg.org/kantama/portal/internal/services/financiers"
	"codeberg.org/kantama/portal/internal/services/token"
	"codeberg.org/kantama/portal/internal/sse"
	"codeberg.org/kantama/portal/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// App holds the wired services of the portal.
type App struct {
	Config       *config.Config
	Repo         *repository.Repository
	Tokens       *token.Issuer
	Auth         *authsvc.Service
	Applications *applications.Service
	Financiers   *financiers.Service
	Attachments  *attachments.Service
	// Hub streams status events to connected users.
	Hub *sse.Hub
	// Redis backs the rate limiter; nil disables it.
	Redis *redis.Client
	Now   func() time.Time
}

// Deps are the outside collaborators of an App.
type Deps struct {
	Sender    email.Sender
	Publisher events.Publisher
	Redis     *redis.Client
	Now       func() time.Time
}

// NewApp builds the services on top of an open database.
func NewApp(cfg *config.Config, db *sqlx.DB, deps Deps) (*App, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	repo := repository.New(db)

	tokens, err := token.NewIssuer(token.Config{
		Secret:          cfg.Auth.JWTSecret,
		SessionTTL:      cfg.Auth.SessionTTL,
		VerificationTTL: cfg.Auth.VerificationTTL,
		ResetTTL:        cfg.Auth.ResetTTL,
		Now:             deps.Now,
	})
	if err != nil {
		return nil, err
	}

	blobs, err := storage.NewLocal(cfg.Storage.UploadDir)
	if err != nil {
		return nil, err
	}

	hub := sse.NewHub()
	apps := applications.NewService(repo, deps.Sender, events.Fanout{deps.Publisher, hub}, deps.Now)
	return &App{
		Config:       cfg,
		Repo:         repo,
		Tokens:       tokens,
		Auth:         authsvc.NewService(repo, tokens, deps.Sender, &cfg.Auth),
		Applications: apps,
		Financiers:   financiers.NewService(repo),
		Attachments:  attachments.NewService(repo, apps, blobs, int64(cfg.Storage.MaxUploadSize)<<20),
		Hub:          hub,
		Redis:        deps.Redis,
		Now:          deps.Now,
	}, nil
}

func (a *App) rateLimitStore() redis.Scripter {
	if a.Redis == nil {
		return nil
	}
	return a.Redis
}

// NewEcho returns the HTTP API of app.
func NewEcho(app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, app.Config)
	setupRoutes(e, app)
	return e
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	SetupLogger(cfg.Log.Level, cfg.Log.Format)

	generated, err := cfg.ResolveJWTSecret()
	if err != nil {
		return err
	}
	if generated {
		slog.Warn("no jwt secret configured, generated a temporary one; sessions end on restart")
	}
	if cfg.Auth.AutoVerify {
		slog.Warn("auto-verify is enabled: new accounts skip email verification")
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database, migrated on open
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	sender, closeSender, err := newSender(cfg)
	if err != nil {
		return err
	}
	defer closeSender()

	publisher, closePublisher := newPublisher(cfg)
	defer closePublisher()

	rdb := newRedis(ctx, cfg)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	app, err := NewApp(cfg, db, Deps{Sender: sender, Publisher: publisher, Redis: rdb})
	if err != nil {
		return err
	}

	if cfg.Auth.AdminEmail != "" {
		if err := app.Auth.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("failed to ensure admin: %w", err)
		}
	}

	scheduler := jobs.NewScheduler(app.Repo, nil)
	if err := scheduler.ScheduleTokenPurge(cfg.Jobs.TokenPurgeSchedule); err != nil {
		return err
	}
	scheduler.Start()

	e := NewEcho(app)
	err = startWithGracefulShutdown(ctx, e, cfg, app.Hub.Close)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	scheduler.Stop(stopCtx)
	return err
}

// newSender delivers over SMTP through a worker queue when SMTP is
// configured and logs notices otherwise.
func newSender(cfg *config.Config) (email.Sender, func(), error) {
	if !cfg.SMTP.Enabled() {
		slog.Warn("SMTP not configured, notices are only logged")
		return email.NewLogSender(cfg.Server.FrontendURL), func() {}, nil
	}
	smtp, err := email.NewSMTPSender(&cfg.SMTP, cfg.Server.FrontendURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure SMTP: %w", err)
	}
	async := email.NewAsyncSender(smtp, cfg.SMTP.Workers, cfg.SMTP.QueueSize)
	return async, async.Close, nil
}

func newPublisher(cfg *config.Config) (events.Publisher, func()) {
	if cfg.Broker.URL == "" {
		return events.LogPublisher{}, func() {}
	}
	p := events.NewAMQPPublisher(cfg.Broker.URL, cfg.Broker.Queue)
	return p, func() {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close broker connection", "error", err)
		}
	}
}

// newRedis connects the rate limiter store. An unreachable server disables
// rate limiting instead of failing startup.
func newRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	if !cfg.RateLimit.Enabled || cfg.Redis.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unavailable, rate limiting disabled", "addr", cfg.Redis.Addr, "error", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}

// startWithGracefulShutdown serves until ctx ends or a signal arrives.
// onShutdown runs when shutdown begins so long-lived streams can end.
func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config, onShutdown func()) error {
	tlsConfig, err := setupTLS(&cfg.Server)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           e,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(onShutdown)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		var err error
		if tlsConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
