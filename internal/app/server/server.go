package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"carepay/internal/domain/audit"
	"carepay/internal/domain/household"
	"carepay/internal/domain/ledger"
	"carepay/internal/domain/payroll"
	"carepay/internal/domain/tax"
	"carepay/internal/platform/config"
	"carepay/internal/platform/crypto"
	"carepay/internal/platform/db"
	"carepay/internal/platform/jobs"
	"carepay/internal/platform/keystore"
	"carepay/internal/platform/metrics"
	audithandler "carepay/internal/transport/http/handlers/audit"
	paymentshandler "carepay/internal/transport/http/handlers/payments"
	payrollhandler "carepay/internal/transport/http/handlers/payroll"
	taxhandler "carepay/internal/transport/http/handlers/tax"
	"carepay/internal/transport/http/middleware"
)

const JobStalePayments = "stale_pending_payments"

type App struct {
	Config     config.Config
	DB         *sql.DB
	Metrics    *metrics.Metrics
	Keys       *keystore.Store
	Households *household.Store
	Tax        *tax.Store
	Payroll    *payroll.Service
	Ledger     *ledger.Store
	Audit      *audit.Service
	Jobs       *jobs.Service
	Router     http.Handler
}

type Option func(*options)

type options struct {
	keyBackend keystore.Backend
}

// WithKeyBackend replaces the OS keychain, mainly for tests.
func WithKeyBackend(backend keystore.Backend) Option {
	return func(o *options) {
		o.keyBackend = backend
	}
}

// New opens the store, migrates it, unlocks the field key and wires every
// component. The caller owns Close.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{keyBackend: keystore.KeyringBackend{}}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	m := metrics.New()
	handle, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app := &App{Config: cfg, DB: handle, Metrics: m}

	if err := app.init(ctx, o); err != nil {
		_ = handle.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context, o options) error {
	cfg := a.Config
	migrator := db.NewMigrator(a.DB, db.BaselineVersion, db.LegacyTables, a.Metrics)
	if cfg.RunMigrations {
		version, err := migrator.Migrate(ctx, db.Steps)
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		slog.Info("schema ready", "version", version)
	} else {
		if err := migrator.Verify(ctx, db.LatestVersion()); err != nil {
			return fmt.Errorf("schema check failed (run `carepay migrate`): %w", err)
		}
		slog.Info("schema verified", "version", db.LatestVersion())
	}

	a.Keys = keystore.New(cfg.KeyDir, cfg.KeyringService, o.keyBackend)
	key, err := a.Keys.GetOrCreateKey(ctx)
	if err != nil {
		return fmt.Errorf("field key: %w", err)
	}
	cipher, err := crypto.New(key, a.Metrics)
	if err != nil {
		return fmt.Errorf("field cipher: %w", err)
	}

	a.Audit = audit.New(a.DB, a.Metrics)
	a.Households = household.NewStore(a.DB, cipher, a.Audit)
	a.Tax = tax.NewStore(a.DB, a.Audit)
	a.Payroll = payroll.NewService(a.DB, a.Households, a.Tax, a.Audit, a.Metrics)
	a.Ledger = ledger.NewStore(a.DB, a.Audit, a.Metrics)

	if cfg.RunSeed {
		if _, err := tax.SeedYears(ctx, a.Tax, cfg.TaxSeedFile); err != nil {
			return fmt.Errorf("seed tax years: %w", err)
		}
	}

	a.Jobs = jobs.New(a.Audit, a.Metrics)
	a.Jobs.Every(JobStalePayments, cfg.PendingSweepInterval, a.sweepStalePayments)

	secret := cfg.JWTSecret
	if secret == "" {
		secret = ephemeralSecret()
		slog.Warn("JWT_SECRET not set; issued tokens will not survive a restart")
	}
	a.Router = a.routes(secret)
	return nil
}

func (a *App) sweepStalePayments(ctx context.Context) (any, error) {
	report, err := a.Ledger.ReportStalePending(ctx, a.Config.PendingStaleAfter)
	if err != nil {
		return nil, err
	}
	if report.Stale > 0 {
		slog.Warn("pending payments awaiting settlement", "count", report.Stale, "oldestId", report.OldestID, "cutoff", report.Cutoff)
	}
	return report, nil
}

func (a *App) routes(secret string) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(a.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(a.Config.IsProduction()))
	router.Use(middleware.BodyLimit(a.Config.MaxBodyBytes))
	router.Use(middleware.Auth(secret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.PingContext(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if err := a.Keys.Available(); err != nil {
			http.Error(w, "secure storage not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if a.Config.MetricsEnabled {
		router.Handle("/metrics", promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(a.Config.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(a.Config.RateLimitPerMinute, time.Minute))

		payrollhandler.NewHandler(a.Payroll, a.Households).RegisterRoutes(r)
		paymentshandler.NewHandler(a.Ledger, a.Payroll).RegisterRoutes(r)
		taxhandler.NewHandler(a.Tax).RegisterRoutes(r)
		audithandler.NewHandler(a.Audit).RegisterRoutes(r)
	})

	return router
}

// Serve runs the HTTP server and background jobs until ctx is cancelled, then
// drains in-flight requests within the shutdown timeout.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	a.Jobs.Start(gctx)

	g.Go(func() error {
		slog.Info("carepay listening", "addr", a.Config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		slog.Info("shutting down", "timeout", a.Config.ShutdownTimeout)
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.Jobs.Wait()
	return err
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// Run is the full lifecycle: open, migrate, serve, close.
func Run(ctx context.Context, cfg config.Config, opts ...Option) error {
	app, err := New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("database close failed", "err", err)
		}
	}()
	return app.Serve(ctx)
}

func ephemeralSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
