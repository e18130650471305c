package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akozyrev/ragshield/internal/bootstrap"
	"github.com/akozyrev/ragshield/internal/config"
	"github.com/akozyrev/ragshield/internal/observability/logging"
	"github.com/akozyrev/ragshield/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewLogger("indexer", cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	indexerMetrics := metrics.NewIndexerMetrics("indexer")

	metricsServer := &http.Server{
		Addr:    ":" + cfg.IndexerMetricsPort,
		Handler: metricsHandler(indexerMetrics),
	}
	go func() {
		slog.Info("indexer_metrics_listening", "port", cfg.IndexerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics_server_failed", "error", err)
		}
	}()

	slog.Info("indexer_waiting_for_work")
	err = app.Queue.SubscribeReindex(ctx, func(ctx context.Context, documentID string) error {
		start := time.Now()
		indexerMetrics.ProcessStarted()

		err := app.IndexUC.IndexByID(ctx, documentID)
		status := "ok"
		if err != nil {
			status = "error"
		}
		indexerMetrics.ProcessFinished("indexer", status, time.Since(start))

		if err != nil {
			slog.Error("index_document_failed", "document_id", documentID, "error", err)
			return err
		}
		slog.Info("document_indexed", "document_id", documentID, "duration_ms",
			float64(time.Since(start).Microseconds())/1000.0)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("reindex_subscription_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

func metricsHandler(m *metrics.IndexerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
