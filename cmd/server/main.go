package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/finsight/finsight-backend/internal/adapter/httpapi"
	"github.com/finsight/finsight-backend/internal/adapter/repository/postgres"
	"github.com/finsight/finsight-backend/internal/config"
	"github.com/finsight/finsight-backend/internal/domain"
	"github.com/finsight/finsight-backend/internal/logging"
	"github.com/finsight/finsight-backend/internal/provider"
	"github.com/finsight/finsight-backend/internal/ratesource"
	"github.com/finsight/finsight-backend/internal/usecase/converter"
	"github.com/finsight/finsight-backend/internal/usecase/history"
	"github.com/finsight/finsight-backend/internal/usecase/orchestrator"
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 2. Database and repositories
	db, err := postgres.NewDB(cfg.DBConnString())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	snapshotRepo := postgres.NewSnapshotRepository(db)
	linkedAccountRepo := postgres.NewLinkedAccountRepository(db)
	rateRepo := postgres.NewRateRepository(db)
	historyRepo := postgres.NewHistoryRepository(db)

	// 3. Collaborators: provider registry and rate source
	registry := provider.NewRegistry()
	if err := registry.Register(provider.FakeID, func() domain.ProviderAdapter {
		return provider.NewFakeAdapter()
	}); err != nil {
		logger.Fatal("Failed to register provider", zap.Error(err))
	}

	rateSource := ratesource.NewStatic()
	seed, err := cfg.StaticRates()
	if err != nil {
		logger.Fatal("Failed to parse configured rates", zap.Error(err))
	}
	for pair, rate := range seed {
		rateSource.Set(pair, rate)
	}

	// 4. Services (use cases)
	converterService := converter.NewService(rateSource, rateRepo, logger)
	historyService := history.NewService(historyRepo, logger)
	orchestratorService := orchestrator.NewService(
		snapshotRepo,
		linkedAccountRepo,
		registry,
		converterService,
		historyService,
		logger,
		cfg.SnapshotWorkers,
	)

	// 5. HTTP server
	api := httpapi.NewServer(orchestratorService, logger, cfg.ReportingCurrency)
	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Router(cfg.APIToken),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve", zap.Error(err))
		}
	}()

	waitForShutdown(server, logger)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(server *http.Server, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Forced shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")
}
