package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/akozyrev/ragshield/internal/adapters/http"
	"github.com/akozyrev/ragshield/internal/bootstrap"
	"github.com/akozyrev/ragshield/internal/config"
	"github.com/akozyrev/ragshield/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewLogger("api", cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go func() {
		if err := app.WatchIndexed(ctx); err != nil && ctx.Err() == nil {
			slog.Error("indexed_watcher_failed", "error", err)
		}
	}()

	router := httpadapter.NewRouter(
		app.RetrieveUC,
		app.FeedbackUC,
		app.ConversationUC,
		app.DocumentUC,
		app.AnalyticsUC,
		app.Provenance,
		app.RelAdmin,
		httpadapter.RouterOptions{
			JWTSecret:           cfg.JWTSecret,
			RateLimitPerSubject: cfg.RateLimitPerSubject,
			RateBurstPerSubject: cfg.RateBurstPerSubject,
			ServiceName:         "api",
			Metrics:             app.Metrics,
		},
	)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		slog.Error("listen_failed", "addr", server.Addr, "error", err)
		os.Exit(1)
	}
	if cfg.MaxConcurrentConns > 0 {
		listener = netutil.LimitListener(listener, cfg.MaxConcurrentConns)
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
