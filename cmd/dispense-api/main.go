// Package main provides the dispensing API service entry point.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/api"
	"github.com/drfirst/go-dispense/internal/config"
	"github.com/drfirst/go-dispense/internal/dispensing"
	"github.com/drfirst/go-dispense/internal/domain/event"
	"github.com/drfirst/go-dispense/internal/domain/patient"
	"github.com/drfirst/go-dispense/internal/domain/slot"
	"github.com/drfirst/go-dispense/internal/infrastructure/memory"
	"github.com/drfirst/go-dispense/internal/infrastructure/postgres"
	"github.com/drfirst/go-dispense/internal/infrastructure/redpanda"
	"github.com/drfirst/go-dispense/internal/observability/metrics"
	"github.com/drfirst/go-dispense/internal/observability/tracing"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dispense-api",
		Short: "Ward medicine dispensing API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			skip, _ := cmd.Flags().GetBool("skip-migrate")
			return runServer(skip)
		},
	}
	cmd.Flags().Bool("skip-migrate", false, "Do not apply schema migrations on startup")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if !cfg.UsePostgres() {
				return fmt.Errorf("DATABASE_URL is not set")
			}

			ctx := context.Background()
			pool, err := newPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			return postgres.Migrate(ctx, pool, logger)
		},
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

func runServer(skipMigrate bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()

	tcfg := tracing.DefaultConfig(api.ServiceName)
	tcfg.Enabled = cfg.TracingEnabled
	tcfg.Environment = cfg.Env
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tcfg.SampleRate = cfg.TraceSampleRate
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Error("tracer shutdown failed", zap.Error(err))
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		patients  patient.Repository
		slots     slot.Repository
		publisher event.Publisher = event.NopPublisher{}
		ready     func(context.Context) error
	)

	if cfg.UsePostgres() {
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("connected to database")

		if !skipMigrate {
			if err := postgres.Migrate(ctx, pool, logger); err != nil {
				return err
			}
		}

		patients = postgres.NewPatientRepository(pool, logger)
		slots = postgres.NewSlotRepository(pool, logger)
		ready = pool.Ping

		// event-relay drains the outbox to the brokers
		if cfg.EventsEnabled {
			ocfg := postgres.DefaultOutboxConfig()
			ocfg.PollInterval = cfg.OutboxPollInterval
			publisher = postgres.NewOutbox(pool, nil, ocfg, m, logger)
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		patients = memory.NewPatientStore(logger)
		slots = memory.NewSlotStore()

		if cfg.EventsEnabled {
			pcfg := redpanda.DefaultProducerConfig()
			pcfg.Brokers = cfg.KafkaBrokers
			producer, err := redpanda.NewProducer(pcfg, logger)
			if err != nil {
				return err
			}
			defer producer.Close()
			publisher = redpanda.NewEventPublisher(producer)
			logger.Info("publishing events directly", zap.Strings("brokers", cfg.KafkaBrokers))
		}
	}

	svc := dispensing.NewService(patients, slots, publisher, m, logger, dispensing.Options{
		StrictCatalog: cfg.StrictCatalog,
	})

	router := api.NewRouter(svc, logger, api.RouterConfig{
		Ready:       ready,
		Metrics:     metrics.Handler(),
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting dispense API", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-sigChan:
	}

	logger.Info("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}
