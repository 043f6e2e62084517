// Package main provides the event relay entry point. It drains the
// transactional outbox written by dispense-api into Redpanda.
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

	"github.com/drfirst/go-dispense/internal/config"
	"github.com/drfirst/go-dispense/internal/infrastructure/postgres"
	"github.com/drfirst/go-dispense/internal/infrastructure/redpanda"
	"github.com/drfirst/go-dispense/internal/observability/metrics"
	"github.com/drfirst/go-dispense/internal/observability/tracing"
)

func main() {
	cmd := &cobra.Command{
		Use:   "event-relay",
		Short: "Relay outbox events to Redpanda",
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			return run(metricsAddr)
		},
	}
	cmd.Flags().String("metrics-addr", ":9102", "Address for the /metrics listener")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(metricsAddr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.UsePostgres() {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()

	tcfg := tracing.DefaultConfig("event-relay")
	tcfg.Enabled = cfg.TracingEnabled
	tcfg.Environment = cfg.Env
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tcfg.SampleRate = cfg.TraceSampleRate
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if err := postgres.Migrate(ctx, pool, logger); err != nil {
		return err
	}

	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		return err
	}
	tctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = admin.EnsureTopics(tctx)
	cancel()
	admin.Close()
	if err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}

	pcfg := redpanda.DefaultProducerConfig()
	pcfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(pcfg, logger)
	if err != nil {
		return fmt.Errorf("producer creation failed: %w", err)
	}
	defer producer.Close()
	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ocfg := postgres.DefaultOutboxConfig()
	ocfg.PollInterval = cfg.OutboxPollInterval
	outbox := postgres.NewOutbox(pool, producer, ocfg, m, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := redpanda.HealthCheck(r.Context(), cfg.KafkaBrokers); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux, ReadTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	outbox.Start()
	logger.Info("event relay started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	outbox.Stop()

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := producer.Flush(sctx); err != nil {
		logger.Warn("producer flush failed", zap.Error(err))
	}
	metricsServer.Shutdown(sctx)

	logger.Info("event relay stopped")
	return nil
}
