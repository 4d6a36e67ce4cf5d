package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/flipzon/flash-sale/internal/adapter/handler"
	"github.com/flipzon/flash-sale/internal/adapter/storage"
	"github.com/flipzon/flash-sale/internal/core/service"
	"github.com/flipzon/flash-sale/internal/pkg/clock"
	"github.com/flipzon/flash-sale/internal/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	log.Info().Msg("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("connected to redis")

	// Adapters
	mysqlAdapter := storage.NewMySQLAdapter(db)
	stockLedger := storage.NewRedisStockLedger(rdb)
	quotaKeeper := storage.NewRedisQuotaKeeper(rdb)
	leaseManager := storage.NewRedisLeaseManager(rdb)

	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	clk := clock.NewSystem()

	// Fast-path counters may be ahead of durable truth after a crash;
	// rebuild them from the transaction log before serving.
	reconciler := service.NewReconciler(mysqlAdapter, mysqlAdapter, mysqlAdapter, stockLedger, quotaKeeper, clk,
		service.WithReservedGrace(cfg.Sale.ReservedGracePeriod))
	if err := reconciler.Reconcile(ctx); err != nil {
		log.Fatal().Err(err).Msg("startup reconciliation failed")
	}
	log.Info().Msg("reconciled counters against transaction log")

	compensator := service.NewCompensator(stockLedger, quotaKeeper, cfg.Sale.CompensatorQueue)
	compensator.Start(cfg.Sale.CompensatorWorkers)
	log.Info().Int("workers", cfg.Sale.CompensatorWorkers).Msg("started compensator")

	recorder := service.NewRecorder(mysqlAdapter)
	admissions := service.NewAdmissionController(
		mysqlAdapter, stockLedger, quotaKeeper, leaseManager, recorder, compensator, clk,
		service.WithLeaseTTL(cfg.Sale.LeaseTTL),
		service.WithDefaultQuotaLimit(cfg.Sale.DefaultQuotaLimit),
	)
	seeder := service.NewStockSeeder(mysqlAdapter, stockLedger)

	// HTTP server
	httpHandler := handler.NewHTTPHandler(admissions, seeder)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sales/{saleID}/purchase", httpHandler.Purchase)
	mux.HandleFunc("POST /api/init-stock", httpHandler.InitStock)
	mux.HandleFunc("GET /health", httpHandler.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-gctx.Done():
		}

		log.Info().Msg("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("HTTP server stopped")

	// Drain pending compensations before dropping connections.
	compensator.Close()
	log.Info().Msg("compensator drained")

	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
