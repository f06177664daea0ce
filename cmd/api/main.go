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

	httpadapter "github.com/kirillkom/doc-upload-gateway/internal/adapters/http"
	"github.com/kirillkom/doc-upload-gateway/internal/bootstrap"
	"github.com/kirillkom/doc-upload-gateway/internal/config"
	"github.com/kirillkom/doc-upload-gateway/internal/observability/logging"
)

const sessionSweepInterval = time.Minute

func main() {
	cfg := config.Load()
	logging.Install(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go app.Sessions.Run(ctx, sessionSweepInterval)

	router := httpadapter.NewRouter(cfg, app.Sessions, app.Proxy, app.Storage, app.Renderer, app.Health)
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	mux.Handle("/", app.Metrics.Middleware(router.Handler()))

	// Uploads and backend relays can run for minutes, so the write timeout
	// follows the longer of the two budgets.
	writeTimeout := time.Duration(max(cfg.SubmitTimeoutSeconds, cfg.BackendTimeoutSeconds)+30) * time.Second
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
