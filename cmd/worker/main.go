package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/doc-upload-gateway/internal/bootstrap"
	"github.com/kirillkom/doc-upload-gateway/internal/config"
	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
	"github.com/kirillkom/doc-upload-gateway/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logging.Install(logging.NewJSONLogger("worker", cfg.LogLevel))

	if err := run(cfg); err != nil {
		slog.Error("worker_failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer worker.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           worker.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	return worker.Queue.SubscribeUploadDelivered(ctx, func(handlerCtx context.Context, event domain.UploadEvent) error {
		start := time.Now()
		worker.Metrics.StartEvent()
		err := worker.Auditor.HandleUploadDelivered(handlerCtx, event)
		worker.Metrics.FinishEvent("worker", time.Since(start), err)
		return err
	})
}
