package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-wms/meridian-wms/internal/app"
	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/observability"
	"github.com/meridian-wms/meridian-wms/internal/platform/cache"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/po"
	"github.com/meridian-wms/meridian-wms/internal/receiving"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, lot cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	masterDataService := masterdata.NewService(masterdata.NewRepository(pool))
	masterDataHandler := masterdata.NewHandler(logger, masterDataService)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, redisClient, cfg.LotCacheTTL, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	poRepo := po.NewRepository(pool)
	poService := po.NewService(poRepo, auditLogger)
	poHandler := po.NewHandler(logger, poService)

	receivingService := receiving.NewService(
		receiving.NewRepository(pool),
		masterDataService,
		poRepo,
		auditLogger,
		idempotencyStore,
		ledgerService,
		metrics,
		logger,
	)
	receivingHandler := receiving.NewHandler(logger, receivingService)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ReceivingHandler:  receivingHandler,
		LedgerHandler:     ledgerHandler,
		POHandler:         poHandler,
		MasterDataHandler: masterDataHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
