// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"event-billing/internal/config"
	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/adapter"
	alertAdapters "event-billing/internal/infra/adapters/alert"
	payAdapters "event-billing/internal/infra/adapters/payment"
	"event-billing/internal/infra/api"
	pg "event-billing/internal/infra/db/postgres"
	"event-billing/internal/infra/logging"
	"event-billing/internal/infra/metrics"
	red "event-billing/internal/infra/redis"
	"event-billing/internal/infra/sched"
	"event-billing/internal/infra/security"
	"event-billing/internal/infra/worker"
	"event-billing/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, sandbox friendly)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exit")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	// ---- Repositories ----
	subRepo := pg.NewSubscriptionRepoCacheDecorator(pg.NewSubscriptionRepo(pool), redisClient, cfg.Redis.TTL, logger)

	// ---- Plans ----
	plans, err := loadPlans(cfg.Plans)
	if err != nil {
		return fmt.Errorf("plans: %w", err)
	}

	// ---- Signing & references ----
	signer, err := security.NewHashSigner(cfg.Gateway.SecretKey)
	if err != nil {
		return fmt.Errorf("signer: %w", err)
	}
	refs := red.NewReferenceRegistry(redisClient, cfg.Gateway.ReferenceTTL, logger)
	retryQueue := red.NewRetryQueue(redisClient)

	// ---- Gateway ----
	var (
		gateway adapter.CheckoutGateway
		bridge  api.EventSink
	)
	switch cfg.Gateway.Provider {
	case "sandbox":
		script, err := payAdapters.ParseScript(cfg.Gateway.SandboxScript)
		if err != nil {
			return fmt.Errorf("sandbox gateway: %w", err)
		}
		gateway = payAdapters.NewSandboxCheckout(script, 100*time.Millisecond, signer.Verify, logger)
	default:
		hosted := payAdapters.NewHostedCheckout(logger)
		gateway, bridge = hosted, hosted
	}
	logger.Info().Str("provider", gateway.Name()).Msg("checkout gateway ready")

	// ---- Alerts ----
	var alerter adapter.Alerter = alertAdapters.NewLogAlerter(logger)
	if cfg.Alert.BotToken != "" {
		tg, err := alertAdapters.NewTelegramAlerter(cfg.Alert, logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram alerter unavailable; alerts go to the log")
		} else {
			alerter = tg
		}
	}

	// ---- Use cases ----
	subUC := usecase.NewSubscriptionUseCase(subRepo, logger)

	persistPool := worker.NewPool("persist", cfg.Checkout.Workers, logger)
	persistPool.Start(ctx)
	defer persistPool.Stop()

	checkoutUC := usecase.NewCheckoutUseCase(usecase.CheckoutDeps{
		Gateway:       gateway,
		Signer:        signer,
		References:    refs,
		Plans:         plans,
		Subscriptions: subUC,
		Runner:        persistPool,
		Retry:         retryQueue,
		Alerter:       alerter,
		Limiter:       red.NewRateLimiter(redisClient),
	}, usecase.CheckoutSettings{
		MerchantID:       cfg.Gateway.MerchantID,
		TerminalID:       cfg.Gateway.TerminalID,
		CurrencyID:       cfg.Gateway.CurrencyID,
		LanguageID:       cfg.Gateway.LanguageID,
		ViewType:         model.PaymentViewType(cfg.Gateway.ViewType),
		ContactInfoType:  cfg.Gateway.ContactInfoType,
		CancelGrace:      cfg.Gateway.CancelGrace,
		SessionRetention: cfg.Gateway.SessionRetention,
		AbandonAfter:     cfg.Checkout.AbandonAfter,
		PersistTimeout:   cfg.Checkout.PersistTimeout,
		RateLimit:        cfg.Checkout.RateLimit,
		RateWindow:       cfg.Checkout.RateWindow,
	}, logger)
	go checkoutUC.RunJanitor(ctx, time.Minute)

	// ---- Background workers ----
	reconciler := sched.NewPersistenceReconciler(retryQueue, subUC, alerter,
		cfg.Scheduler.ReconcileInterval, cfg.Scheduler.ReconcileMaxTries, logger).
		WithLocker(red.NewLocker(redisClient))
	go reconciler.Start(ctx)

	stats := sched.NewStatsWorker(cfg.Scheduler.StatsInterval, subUC, retryQueue, logger).
		Also(func() { pg.ReportPoolStats(pool) })
	go func() { _ = stats.Run(ctx) }()

	// ---- HTTP ----
	srv := api.NewServer(api.ServerDeps{
		Checkout:      checkoutUC,
		Subscriptions: subUC,
		Plans:         plans,
		Bridge:        bridge,
		Tokens:        api.NewTokenManager(cfg.Auth),
		Health: map[string]api.HealthCheck{
			"postgres": pool.Ping,
			"redis":    redisClient.Ping,
		},
	}, cfg.HTTP.RequestTimeout, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.RequestTimeout + 5*time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	return nil
}

func loadPlans(cfgs []config.PlanConfig) (*usecase.PlanCatalogue, error) {
	plans := make([]*model.Plan, 0, len(cfgs))
	for _, pc := range cfgs {
		amount, err := security.ParseAmount(pc.Amount)
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", pc.Name, err)
		}
		p, err := model.NewPlan(pc.Name, amount, pc.Currency, pc.Description)
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", pc.Name, err)
		}
		plans = append(plans, p)
	}
	return usecase.NewPlanCatalogue(plans...)
}
