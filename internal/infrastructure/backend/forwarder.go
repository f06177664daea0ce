package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
	"github.com/kirillkom/doc-upload-gateway/internal/infrastructure/resilience"
)

const (
	processFilePath    = "/process-file"
	apiKeyHeader       = "X-API-Key"
	maxRelayBodyBytes  = 16 << 20
	ForwardOperationID = "backend.process_file"
)

type Settings struct {
	BaseURL string
	APIKey  string
}

// SettingsFromEnv reads API_BASE and API_KEY on every call so a running
// process picks up changes without a restart.
func SettingsFromEnv() Settings {
	return Settings{
		BaseURL: os.Getenv("API_BASE"),
		APIKey:  os.Getenv("API_KEY"),
	}
}

type Options struct {
	Timeout            time.Duration
	HTTPClient         *http.Client
	Settings           func() Settings
	ResilienceExecutor *resilience.Executor
}

// Forwarder posts multipart bodies to {API_BASE}/process-file.
type Forwarder struct {
	httpClient *http.Client
	settings   func() Settings
	executor   *resilience.Executor
}

func New(options Options) *Forwarder {
	client := options.HTTPClient
	if client == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	settings := options.Settings
	if settings == nil {
		settings = SettingsFromEnv
	}
	return &Forwarder{
		httpClient: client,
		settings:   settings,
		executor:   options.ResilienceExecutor,
	}
}

// Forward sends body unchanged and returns the backend status and body as
// received. Only transport failures and an open breaker come back as errors.
func (f *Forwarder) Forward(ctx context.Context, contentType string, body domain.RelayBody) (domain.RelayResponse, error) {
	settings := f.settings()
	call := func(ctx context.Context) (domain.RelayResponse, error) {
		return f.post(ctx, settings, contentType, body)
	}

	var (
		resp domain.RelayResponse
		err  error
	)
	if f.executor != nil {
		resp, err = resilience.Do(ctx, f.executor, ForwardOperationID, call, classifyBackendError)
	} else {
		resp, err = call(ctx)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && resp.StatusCode != 0 {
		return resp, nil
	}
	if err != nil {
		return domain.RelayResponse{}, wrapTemporaryIfNeeded(ForwardOperationID, err)
	}
	return resp, nil
}

func (f *Forwarder) post(ctx context.Context, settings Settings, contentType string, body domain.RelayBody) (domain.RelayResponse, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
	if baseURL == "" {
		return domain.RelayResponse{}, fmt.Errorf("backend base url is not configured")
	}

	payload, err := openBody(body)
	if err != nil {
		return domain.RelayResponse{}, fmt.Errorf("open relay body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+processFilePath, payload)
	if err != nil {
		_ = payload.Close()
		return domain.RelayResponse{}, fmt.Errorf("create process-file request: %w", err)
	}
	req.ContentLength = body.Size
	req.Header.Set(apiKeyHeader, settings.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return domain.RelayResponse{}, fmt.Errorf("backend process-file request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBodyBytes))
	if err != nil {
		return domain.RelayResponse{}, fmt.Errorf("read process-file response: %w", err)
	}

	relay := domain.RelayResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        raw,
	}
	if isRetryableHTTPStatus(resp.StatusCode) {
		return relay, &HTTPStatusError{
			Operation:  "process-file",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw[:min(len(raw), 2048)]),
		}
	}
	return relay, nil
}

// openBody starts a fresh read of the relay body for one attempt.
func openBody(body domain.RelayBody) (io.ReadCloser, error) {
	if body.Open == nil || body.Size == 0 {
		return http.NoBody, nil
	}
	return body.Open()
}
