// Package main is the entry point for the Telegram shop bot.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-shop-bot/internal/api"
	"telegram-shop-bot/internal/bot"
	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/pkg/db"
	"telegram-shop-bot/internal/pkg/userlock"
	"telegram-shop-bot/internal/repository"
	"telegram-shop-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	snapshot, err := cfg.Storefront.Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid storefront settings")
	}
	runtime := config.NewRuntime("config", snapshot)

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)
	productRepo := repository.NewProductRepository(dbPool.Pool)
	orderRepo := repository.NewOrderRepository(dbPool.Pool)
	promoRepo := repository.NewPromoRepository(dbPool.Pool)
	taskRepo := repository.NewTaskRepository(dbPool.Pool)

	// Initialize services
	opTimeout := cfg.Engine.OpTimeout
	accountService := service.NewAccountService(dbPool.Pool, accountRepo, ledgerRepo, runtime, opTimeout)
	rewardService := service.NewRewardService(dbPool.Pool, accountRepo, ledgerRepo, promoRepo, taskRepo, runtime, opTimeout, cfg.Engine.ClaimCooldown)
	purchaseService := service.NewPurchaseService(dbPool.Pool, accountRepo, ledgerRepo, productRepo, orderRepo, runtime, nil, opTimeout)
	orderService := service.NewOrderService(dbPool.Pool, orderRepo, opTimeout)
	catalogService := service.NewCatalogService(dbPool.Pool, productRepo, promoRepo, taskRepo, opTimeout)

	// Periodic settings reload
	runtime.StartReloader(ctx, cfg.Engine.SettingsReload)

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:          cfg,
		Runtime:         runtime,
		AccountService:  accountService,
		PurchaseService: purchaseService,
		RewardService:   rewardService,
		OrderService:    orderService,
		CatalogService:  catalogService,
		Guard:           userlock.NewGuard(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Health endpoint
	healthServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.NewRouter(dbPool),
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Health endpoint listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health server failed")
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Health server shutdown failed")
	}
	log.Info().Msg("Bot stopped gracefully")
}
