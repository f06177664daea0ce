package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/doc-upload-gateway/internal/adapters/web"
	"github.com/kirillkom/doc-upload-gateway/internal/config"
	"github.com/kirillkom/doc-upload-gateway/internal/core/ports"
	"github.com/kirillkom/doc-upload-gateway/internal/core/usecase"
	"github.com/kirillkom/doc-upload-gateway/internal/infrastructure/backend"
	"github.com/kirillkom/doc-upload-gateway/internal/infrastructure/queue/nats"
	"github.com/kirillkom/doc-upload-gateway/internal/infrastructure/resilience"
	"github.com/kirillkom/doc-upload-gateway/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/doc-upload-gateway/internal/infrastructure/uploadapi"
	"github.com/kirillkom/doc-upload-gateway/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Storage  *localfs.Storage
	Sessions *usecase.SessionRegistry
	Proxy    *usecase.UploadProxy
	Renderer *web.Renderer
	Metrics  *metrics.HTTPServerMetrics

	backendExecutor *resilience.Executor
	closeFn         func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	// Sessions live in memory only, so payloads from a previous run are orphans.
	purged, err := storage.Purge(ctx)
	if err != nil {
		return nil, fmt.Errorf("purge stale payloads: %w", err)
	}
	if purged > 0 {
		slog.Info("staging_purged", "files", purged, "path", cfg.StoragePath)
	}

	httpMetrics := metrics.NewHTTPServerMetrics("api")

	backendExecutor := resilience.NewExecutor(resilience.ForBackend(cfg.BackendRetryMaxAttempts, cfg.BackendBreakerEnabled))
	forwarder := backend.New(backend.Options{
		Timeout:            time.Duration(cfg.BackendTimeoutSeconds) * time.Second,
		ResilienceExecutor: backendExecutor,
	})

	var (
		publisher ports.UploadEventPublisher
		queue     *nats.Queue
	)
	if cfg.NATSURL != "" {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ClientName:         "doc-upload-gateway-api",
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		publisher = queue
	}

	proxy := usecase.NewUploadProxy(forwarder, publisher, usecase.UploadProxyOptions{
		Mode:             cfg.ProxyMode,
		ValidateMetadata: cfg.ProxyValidateMetadata,
	}, httpMetrics)

	sessions := usecase.NewSessionRegistry(usecase.NewSessionFactory(usecase.SessionDeps{
		Storage:       storage,
		UploadClient:  uploadapi.New(cfg.UploadEndpoint, storage, nil),
		Metrics:       httpMetrics,
		Limits:        usecase.StagingLimits{MaxFiles: cfg.MaxFiles, MaxSizeBytes: cfg.MaxSizeBytes},
		SubmitTimeout: time.Duration(cfg.SubmitTimeoutSeconds) * time.Second,
	}), time.Duration(cfg.SessionIdleTTLMin)*time.Minute)
	httpMetrics.TrackSessions(sessions.Len)

	renderer, err := web.NewRenderer()
	if err != nil {
		if queue != nil {
			queue.Close()
		}
		return nil, fmt.Errorf("init renderer: %w", err)
	}

	slog.Info("app_configured",
		"proxy_mode", proxy.Mode(),
		"validate_metadata", cfg.ProxyValidateMetadata,
		"upload_endpoint", cfg.UploadEndpoint,
		"max_files", cfg.MaxFiles,
		"max_size_bytes", cfg.MaxSizeBytes,
		"events_enabled", queue != nil,
	)

	return &App{
		Config:   cfg,
		Storage:  storage,
		Sessions: sessions,
		Proxy:    proxy,
		Renderer: renderer,
		Metrics:  httpMetrics,

		backendExecutor: backendExecutor,
		closeFn: func() {
			sessions.Close(context.Background())
			if queue != nil {
				queue.Close()
			}
		},
	}, nil
}

// Health reports state worth exposing on /healthz.
func (a *App) Health() map[string]string {
	return map[string]string{
		"proxy_mode":      a.Proxy.Mode(),
		"backend_breaker": a.backendExecutor.BreakerState(backend.ForwardOperationID),
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker wires the delivered-batch audit consumer.
type Worker struct {
	Config  config.Config
	Queue   ports.UploadEventSubscriber
	Auditor ports.UploadEventHandler
	Metrics *metrics.WorkerMetrics

	closeFn func()
}

func NewWorker(cfg config.Config) (*Worker, error) {
	if cfg.NATSURL == "" {
		return nil, fmt.Errorf("NATS_URL is required for the worker")
	}
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ClientName: "doc-upload-gateway-worker",
	})
	if err != nil {
		return nil, fmt.Errorf("init event subscriber: %w", err)
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	auditor := usecase.NewDeliveryAuditor(func(mode string, files int, lag time.Duration) {
		workerMetrics.ObserveDelivery("worker", mode, files, lag)
	})
	return &Worker{
		Config:  cfg,
		Queue:   queue,
		Auditor: auditor,
		Metrics: workerMetrics,
		closeFn: queue.Close,
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
