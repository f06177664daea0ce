package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/doc-upload-gateway/internal/adapters/web"
	"github.com/kirillkom/doc-upload-gateway/internal/config"
	"github.com/kirillkom/doc-upload-gateway/internal/core/ports"
	"github.com/kirillkom/doc-upload-gateway/internal/core/usecase"
)

const (
	defaultProxyMaxInFlight = 16
	backpressureWait        = 250 * time.Millisecond
)

// HealthReporter exposes extra fields for /healthz, such as breaker state.
type HealthReporter func() map[string]string

type Router struct {
	sessions *usecase.SessionRegistry
	relay    ports.UploadRelay
	storage  ports.ObjectStorage
	renderer *web.Renderer
	health   HealthReporter

	maxProxyBody   int64
	maxUIBody      int64
	proxyMaxFlight int
	rateLimitRPS   float64
	rateLimitBurst int
	secureCookie   bool
}

func NewRouter(
	cfg config.Config,
	sessions *usecase.SessionRegistry,
	relay ports.UploadRelay,
	storage ports.ObjectStorage,
	renderer *web.Renderer,
	health HealthReporter,
) *Router {
	limits := usecase.StagingLimits{MaxFiles: cfg.MaxFiles, MaxSizeBytes: cfg.MaxSizeBytes}.Normalize()
	maxProxyBody := cfg.ProxyMaxBodyBytes
	if maxProxyBody <= 0 {
		maxProxyBody = int64(limits.MaxFiles)*limits.MaxSizeBytes + 1<<20
	}
	maxInFlight := cfg.ProxyMaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultProxyMaxInFlight
	}
	return &Router{
		sessions:       sessions,
		relay:          relay,
		storage:        storage,
		renderer:       renderer,
		health:         health,
		maxProxyBody:   maxProxyBody,
		maxUIBody:      int64(limits.MaxFiles)*limits.MaxSizeBytes + 1<<20,
		proxyMaxFlight: maxInFlight,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		secureCookie:   cfg.CookieSecure,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("GET /{$}", rt.page)
	mux.HandleFunc("POST /ui/files", rt.addFiles)
	mux.HandleFunc("POST /ui/files/remove-last", rt.removeLastFile)
	mux.HandleFunc("POST /ui/files/{id}/remove", rt.removeFile)
	mux.HandleFunc("POST /ui/files/{id}/fields", rt.updateField)
	mux.HandleFunc("POST /ui/submit", rt.submit)
	mux.HandleFunc("GET /ui/previews/{token}", rt.preview)
	mux.Handle("GET /static/", rt.renderer.Static())

	var proxy http.Handler = http.HandlerFunc(rt.proxyUpload)
	proxy = backpressureMiddleware(proxy, rt.proxyMaxFlight, backpressureWait)
	if rt.rateLimitRPS > 0 {
		proxy = rateLimitMiddleware(proxy, rate.Limit(rt.rateLimitRPS), rt.rateLimitBurst)
	}
	mux.Handle("/api/upload", proxy)

	return requestIDMiddleware(recoverMiddleware(accessLogMiddleware(mux)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]string{"status": "ok"}
	if rt.health != nil {
		for key, value := range rt.health() {
			payload[key] = value
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
