// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/bootstrap"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/config"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
	payAdapters "github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/adapters/payment"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/api"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/metrics"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/sched"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/security"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/worker"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, dev secrets)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("portal stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
		if cfg.Auth.JWTSecret == config.DevJWTSecret {
			logger.Warn().Msg("auth.jwt_secret not set; signing with the dev secret (INSECURE)")
		}
	}
	metrics.MustRegister()

	// ---- Storage ----
	store, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	store.Start(ctx)
	metrics.SetBuildInfo(version, commit, store.Kind)

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(store.Plans, logger)
	if _, err := planUC.Seed(ctx, model.DefaultPlans()); err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}

	codes := usecase.NewCodeRegistry(usecase.CodeRegistryConfig{
		Length:     cfg.Codes.Length,
		MaxBatch:   cfg.Codes.MaxBatch,
		PendingTTL: cfg.Codes.PendingTTL,
	}, store.Codes, store.Plans, store.TxManager, logger)
	guard := usecase.NewExclusionGuard(store.Exclusions, logger)
	sessions := usecase.NewSessionManager(codes, guard, logger)

	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	payments := usecase.NewPaymentUseCase(usecase.PaymentConfig{
		GatewayTimeout: cfg.Payment.GatewayTimeout,
		Currency:       cfg.Payment.Currency,
	}, store.Transactions, store.Plans, codes, store.Codes, guard, gateway, store.TxManager, logger)

	issuer, err := security.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Now)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}
	auth := usecase.NewAdminAuthUseCase(usecase.AdminAuthConfig{
		TempTokenTTL:  cfg.Auth.TempTokenTTL,
		AccessTTL:     cfg.Auth.AccessTTL,
		MaxAttempts:   cfg.Auth.MaxAttempts,
		AttemptWindow: cfg.Auth.AttemptWindow,
	}, store.Admins, store.Tokens, security.NewHasher(cfg.Auth.BcryptCost), security.NewTOTP(), issuer, store.Attempts, logger)

	if store.Kind == bootstrap.StorageMemory && cfg.Runtime.Dev {
		if err := enrollDevAdmin(ctx, auth, cfg.Auth.Issuer, logger); err != nil {
			return err
		}
	}

	// ---- Background jobs ----
	pool := worker.NewPool(cfg.Payment.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	expiry := sched.NewExpiryWorker(cfg.Codes.SweepInterval, codes, store.Locker, logger)
	go func() { _ = expiry.Run(ctx) }()

	reconciler := sched.NewPaymentReconciler(payments, pool, store.Locker,
		cfg.Payment.ReconcileInterval, cfg.Payment.StaleAfter, cfg.Payment.AbandonAfter, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Plans:      planUC,
		Codes:      codes,
		Sessions:   sessions,
		Payments:   payments,
		Auth:       auth,
		Exclusions: guard,
		Stats:      usecase.NewStatsUseCase(store.Codes, store.Transactions, logger),
	}, api.Options{
		ManualStart:    cfg.Network.ManualStart,
		NASSecret:      cfg.Network.NASSecret,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		Dev:            cfg.Runtime.Dev,
	}, logger)
	go srv.Run(ctx)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("payment", gateway.Name()).
			Bool("manual_start", cfg.Network.ManualStart).Bool("nas_attach", cfg.Network.NASSecret != "").
			Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	stop()

	sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("http drain incomplete")
	}
	logger.Info().Msg("bye")
	return nil
}

func newGateway(cfg *config.Config, logger *zerolog.Logger) (adapter.PaymentGateway, error) {
	switch cfg.Payment.Provider {
	case "momo":
		gw, err := payAdapters.NewMoMoGateway(cfg.Payment.MoMo, cfg.Payment.GatewayTimeout, cfg.Runtime.Dev, logger)
		if err != nil {
			return nil, fmt.Errorf("momo gateway: %w", err)
		}
		return gw, nil
	default:
		outcome, err := payAdapters.ParseSandboxOutcome(cfg.Payment.SandboxOutcome)
		if err != nil {
			return nil, err
		}
		logger.Warn().Str("outcome", string(outcome)).Msg("sandbox payment gateway in use; no money moves")
		return payAdapters.NewSandboxGateway(outcome), nil
	}
}

// enrollDevAdmin provisions a throwaway admin for the in-memory store, which
// portalctl cannot reach.
func enrollDevAdmin(ctx context.Context, auth usecase.AdminAuthUseCase, issuer string, logger *zerolog.Logger) error {
	secret, url, err := security.GenerateTOTPKey(issuer, "admin")
	if err != nil {
		return err
	}
	const password = "dev-admin-password"
	if _, err := auth.Enroll(ctx, "admin", password, secret); err != nil {
		return fmt.Errorf("enroll dev admin: %w", err)
	}
	logger.Warn().Str("username", "admin").Str("password", password).Str("totp_url", url).
		Msg("[DEV MODE] admin enrolled in the in-memory store")
	return nil
}
