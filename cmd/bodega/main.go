package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bodega/bodega-api/internal/app"
	"github.com/bodega/bodega-api/internal/observability"
	"github.com/bodega/bodega-api/internal/platform/cache"
	"github.com/bodega/bodega-api/internal/platform/db"
	"github.com/bodega/bodega-api/internal/procurement"
	"github.com/bodega/bodega-api/internal/products"
	"github.com/bodega/bodega-api/internal/sales"
	"github.com/bodega/bodega-api/internal/shared"
	"github.com/bodega/bodega-api/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	shutdownTracer, err := app.InitTracer(ctx, cfg)
	if err != nil {
		logger.Error("init tracer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown", slog.Any("error", err))
		}
	}()

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.CacheOptions()); err != nil {
		logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	catalogCache := cache.NewVersioned(redisClient, "bodega:catalog", cfg.CacheTTL)
	if err := catalogCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("catalog cache invalidation listener", slog.Any("error", err))
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	jobClient, err := jobs.NewClient(cfg.AsynqRedis())
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	productsService := products.NewService(products.NewRepository(pool), catalogCache, auditLogger, logger)
	productsHandler := products.NewHandler(logger, productsService)

	salesService := sales.NewService(sales.NewRepository(pool), sales.ServiceDeps{
		Catalog:           productsService,
		Alerts:            jobClient,
		Idempotency:       idempotency,
		Audit:             auditLogger,
		Metrics:           metrics,
		Logger:            logger,
		LowStockThreshold: cfg.LowStockThreshold,
	})
	salesHandler := sales.NewHandler(logger, salesService)

	procurementService := procurement.NewService(procurement.NewRepository(pool), productsService, auditLogger, logger)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	inspector := asynq.NewInspector(cfg.AsynqRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Pool:               pool,
		ProductsHandler:    productsHandler,
		SalesHandler:       salesHandler,
		ProcurementHandler: procurementHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
