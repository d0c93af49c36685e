package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joaopcs/fundledger-backend/internal/adapter/httpapi"
	"github.com/joaopcs/fundledger-backend/internal/adapter/repository/postgres"
	"github.com/joaopcs/fundledger-backend/internal/adapter/valuation"
	"github.com/joaopcs/fundledger-backend/internal/config"
	"github.com/joaopcs/fundledger-backend/internal/fundlock"
	"github.com/joaopcs/fundledger-backend/internal/logger"
	"github.com/joaopcs/fundledger-backend/internal/usecase/conversion"
	"github.com/joaopcs/fundledger-backend/internal/usecase/holdings"
	"github.com/joaopcs/fundledger-backend/internal/usecase/nav"
	"github.com/joaopcs/fundledger-backend/internal/usecase/recalc"
	"github.com/joaopcs/fundledger-backend/internal/usecase/redemption"
	"github.com/joaopcs/fundledger-backend/internal/usecase/subscription"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.InitLogger(cfg.DebugLogging, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	seedNav, err := decimal.NewFromString(cfg.InitialSeedNav)
	if err != nil {
		zapLogger.Fatal("invalid initial_seed_nav", zap.Error(err))
	}
	baselineUnits, err := decimal.NewFromString(cfg.BaselineUnits)
	if err != nil {
		zapLogger.Fatal("invalid baseline_units", zap.Error(err))
	}

	ctx := context.Background()

	db, err := postgres.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	fundRepo := postgres.NewFundRepository(db)
	holdingRepo := postgres.NewHoldingRepository(db)
	ledgerRepo := postgres.NewLedgerRepository(db)
	marketValueRepo := postgres.NewMarketValueRepository(db)

	// Valuation source and per-fund locks
	valuationSource := valuation.NewMarketValueSource(fundRepo, marketValueRepo)
	locks := fundlock.NewRegistry()

	// Use cases
	navService := nav.NewService(fundRepo, valuationSource, seedNav, zapLogger)
	recalcService := recalc.NewService(fundRepo, holdingRepo, ledgerRepo, navService, locks, zapLogger)
	subscriptionService := subscription.NewService(fundRepo, holdingRepo, ledgerRepo, locks, recalcService, zapLogger)
	redemptionService := redemption.NewService(fundRepo, holdingRepo, ledgerRepo, locks, recalcService, zapLogger)
	conversionService := conversion.NewService(fundRepo, ledgerRepo, valuationSource, baselineUnits, seedNav, locks, zapLogger)
	holdingsService := holdings.NewService(fundRepo, holdingRepo, ledgerRepo)

	server := httpapi.NewServer(cfg.HTTPAddr, cfg.AuthToken, httpapi.Services{
		Nav:          navService,
		Subscription: subscriptionService,
		Redemption:   redemptionService,
		Recalc:       recalcService,
		Conversion:   conversionService,
		Holdings:     holdingsService,
		Valuation:    valuationSource,
	}, zapLogger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	}()

	waitForShutdown(server, zapLogger)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(server *httpapi.Server, zapLogger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	zapLogger.Info("shutting down gracefully", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("shutdown failed", zap.Error(err))
	}
}
