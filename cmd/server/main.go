// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-topup-service/config"
	"wallet-topup-service/internal/handler"
	"wallet-topup-service/internal/publisher"
	"wallet-topup-service/internal/repository"
	"wallet-topup-service/internal/router"
	"wallet-topup-service/internal/usecase"
	"wallet-topup-service/internal/worker"
	"wallet-topup-service/pkg/cache"
	"wallet-topup-service/pkg/jwtutil"
	"wallet-topup-service/pkg/qrpay"
	"wallet-topup-service/pkg/smsparser"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	allocationLockTTL  = 5 * time.Second
	allocationLockWait = 3 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, reading configuration from the environment")
	}

	// Initialize logger
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("ENVIRONMENT") == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting wallet topup service")

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	dbPool, err := config.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	if cfg.Database.MigrateOnStart {
		if err := repository.Migrate(ctx, dbPool, logger); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	// Redis: allocation lock and webhook rate limit. Without it allocation
	// is serialized in-process only.
	var (
		locker      cache.Locker
		rateLimiter router.RateLimiter
		checks      = map[string]handler.Pinger{"postgres": dbPool.Ping}
	)
	cacheSvc, err := cache.NewCacheService(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable, using in-process allocation lock and no rate limit", zap.Error(err))
		locker = cache.NewLocalLocker()
	} else {
		defer cacheSvc.Close()
		locker = cacheSvc.NewLocker(allocationLockTTL, allocationLockWait)
		rateLimiter = cacheSvc
		checks["redis"] = cacheSvc.Health
	}

	// Events
	var events interface {
		usecase.EventPublisher
		Close() error
	} = publisher.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		events = publisher.NewKafkaPublisher(publisher.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger), logger)
	}
	defer events.Close()

	// Repositories
	txm := repository.NewTxManager(dbPool)
	walletRepo := repository.NewWalletRepository(dbPool)
	lockRepo := repository.NewTopupLockRepository(dbPool)
	smsRepo := repository.NewBankSmsPaymentRepository(dbPool)
	userRepo := repository.NewUserRepository(dbPool)

	// Usecases
	loc := smsparser.LoadLocation(cfg.BankSms.TimeZone)
	smsParser := smsparser.New(loc)
	logger.Info("bank sms parser ready",
		zap.String("timezone", loc.String()),
		zap.Strings("extractors", smsParser.Order()))

	ledgerUC := usecase.NewLedgerUsecase(txm, walletRepo, cfg.Topup.DefaultCurrency, logger)
	topupUC := usecase.NewTopupUsecase(
		txm,
		lockRepo,
		ledgerUC,
		locker,
		qrpay.NewEncoder(cfg.Topup.MerchantAccount),
		events,
		usecase.TopupConfig{
			LockTTL:         cfg.Topup.LockExpiry,
			DefaultCurrency: cfg.Topup.DefaultCurrency,
			Location:        loc,
		},
		logger,
	)
	matcher := usecase.NewFallbackMatcher(smsRepo, lockRepo, userRepo, usecase.MatcherConfig{
		SimilarityThreshold: cfg.Matcher.SimilarityThreshold,
		HistoryWindow:       cfg.Matcher.HistoryWindow,
	}, logger)
	reconcileUC := usecase.NewReconcileUsecase(txm, smsRepo, lockRepo, ledgerUC, matcher, smsParser, events, logger)

	// Handlers
	smsHandler := handler.NewBankSmsHandler(reconcileUC, cfg.BankSms.Secret, logger)
	topupHandler := handler.NewTopupHandler(topupUC, ledgerUC, logger)
	adminHandler := handler.NewAdminHandler(reconcileUC, topupUC, logger)
	healthHandler := handler.NewHealthHandler(checks, logger)

	r := router.SetupRoutes(
		smsHandler,
		topupHandler,
		adminHandler,
		healthHandler,
		jwtutil.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		router.WebhookRateLimit{Limiter: rateLimiter, PerMinute: cfg.BankSms.RateLimitPerMinute},
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweeper := worker.NewLockSweeper(topupUC, cfg.Sweeper.Interval, cfg.Sweeper.ErrorBackoff, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sweeper.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", zap.Error(err))
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service exited with error", zap.Error(err))
	}
	logger.Info("server stopped")
}
