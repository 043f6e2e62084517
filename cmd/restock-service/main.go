// Package main provides the restock service entry point.
// Consumes slot bank events and asks the pharmacy to restock Low Stock slots.
package main

import (
	"context"
	"encoding/json"
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
	"github.com/drfirst/go-dispense/internal/restock"
	"github.com/drfirst/go-dispense/pkg/circuitbreaker"
	"github.com/drfirst/go-dispense/pkg/idempotency"
	"github.com/drfirst/go-dispense/pkg/workerpool"
)

func main() {
	cmd := &cobra.Command{
		Use:   "restock-service",
		Short: "Request restocks for Low Stock slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetString("group")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			return run(group, metricsAddr)
		},
	}
	cmd.Flags().String("group", redpanda.DefaultConsumerConfig().GroupID, "Consumer group id")
	cmd.Flags().String("metrics-addr", ":9103", "Address for the /metrics listener")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(group, metricsAddr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if cfg.RestockWebhookURL == "" {
		return fmt.Errorf("RESTOCK_WEBHOOK_URL is required")
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()

	tcfg := tracing.DefaultConfig("restock-service")
	tcfg.Enabled = cfg.TracingEnabled
	tcfg.Environment = cfg.Env
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tcfg.SampleRate = cfg.TraceSampleRate
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	bcfg := circuitbreaker.DefaultConfig("pharmacy-webhook")
	bcfg.OnStateChange = func(name string, to circuitbreaker.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(to.Code())
	}
	breaker, err := circuitbreaker.New(bcfg, logger)
	if err != nil {
		return err
	}
	m.CircuitBreakerState.WithLabelValues(breaker.Name()).Set(breaker.GetState().Code())

	notifier := restock.NewNotifier(cfg.RestockWebhookURL, nil, breaker, logger)

	wcfg := workerpool.DefaultConfig()
	wcfg.Workers = cfg.RestockWorkers
	wcfg.OnResult = restock.OnResult(m)
	workers, err := workerpool.New(wcfg, restock.WorkerFunc(notifier), logger)
	if err != nil {
		return fmt.Errorf("worker pool creation failed: %w", err)
	}
	workers.Start()

	// without a database redelivered events may be sent twice
	var dedupe restock.Deduper
	if cfg.UsePostgres() {
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

		if err := postgres.Migrate(ctx, pool, logger); err != nil {
			return err
		}

		inbox := idempotency.NewInbox(pool, idempotency.DefaultInboxConfig(), logger)
		if n, err := inbox.RecoverStaleEntries(ctx); err != nil {
			logger.Warn("inbox recovery failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("recovered stale inbox entries", zap.Int64("count", n))
		}
		inbox.StartCleanup()
		defer inbox.Stop()
		dedupe = inbox
	} else {
		logger.Warn("DATABASE_URL not set, restock requests are not deduplicated")
	}

	handler := restock.NewHandler(workers, dedupe, m, logger)

	ccfg := redpanda.DefaultConsumerConfig()
	ccfg.Brokers = cfg.KafkaBrokers
	ccfg.GroupID = group
	consumer, err := redpanda.NewConsumer(ccfg, handler.HandleMessage, logger)
	if err != nil {
		return fmt.Errorf("consumer creation failed: %w", err)
	}

	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		return err
	}
	defer admin.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !workers.IsHealthy() {
			http.Error(w, "worker queue saturated", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/lag", func(w http.ResponseWriter, r *http.Request) {
		lag, err := admin.GroupLag(r.Context(), group)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"group":   group,
			"lag":     lag,
			"workers": workers.Stats(),
			"breaker": breaker.GetState(),
		})
	})
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux, ReadTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	consumer.Start()
	logger.Info("restock service started",
		zap.String("group", group),
		zap.Int("workers", wcfg.Workers))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	consumer.Stop()
	if err := workers.Stop(); err != nil {
		logger.Warn("worker pool stop", zap.Error(err))
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsServer.Shutdown(sctx)

	logger.Info("restock service stopped")
	return nil
}
