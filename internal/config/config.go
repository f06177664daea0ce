package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string
	LogLevel string

	UploadEndpoint       string
	MaxFiles             int
	MaxSizeBytes         int64
	SubmitTimeoutSeconds int
	StoragePath          string
	SessionIdleTTLMin    int
	CookieSecure         bool

	ProxyMode             string
	ProxyValidateMetadata bool
	ProxyMaxBodyBytes     int64
	ProxyMaxInFlight      int

	APIRateLimitRPS   float64
	APIRateLimitBurst int

	BackendTimeoutSeconds   int
	BackendRetryMaxAttempts int
	BackendBreakerEnabled   bool

	NATSURL     string
	NATSSubject string

	WorkerMetricsPort string
}

// Load reads settings from the environment. When CONFIG_FILE points at a
// YAML file, its keys (environment variable names, any case) fill in what the
// environment leaves unset. An unreadable file is logged and ignored.
func Load() Config {
	var src source
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := readConfigFile(path)
		if err != nil {
			slog.Warn("config_file_ignored", "path", path, "error", err)
		} else {
			src.file = values
		}
	}
	return load(src)
}

func load(src source) Config {
	maxFiles := src.mustEnvInt("MAX_FILES", 50)
	maxSizeBytes := src.mustEnvInt64("MAX_SIZE_BYTES", 100*1024*1024)

	return Config{
		APIPort:  src.mustEnv("API_PORT", "8080"),
		LogLevel: src.mustEnv("LOG_LEVEL", "info"),

		UploadEndpoint:       src.mustEnv("UPLOAD_ENDPOINT", "http://localhost:8080/api/upload"),
		MaxFiles:             maxFiles,
		MaxSizeBytes:         maxSizeBytes,
		SubmitTimeoutSeconds: src.mustEnvInt("SUBMIT_TIMEOUT_SECONDS", 300),
		StoragePath:          src.mustEnv("STORAGE_PATH", "./data/staging"),
		SessionIdleTTLMin:    src.mustEnvInt("SESSION_IDLE_TTL_MINUTES", 60),
		CookieSecure:         src.mustEnvBool("COOKIE_SECURE", false),

		ProxyMode:             src.mustEnv("PROXY_MODE", "forward"),
		ProxyValidateMetadata: src.mustEnvBool("PROXY_VALIDATE_METADATA", true),
		ProxyMaxBodyBytes:     src.mustEnvInt64("PROXY_MAX_BODY_BYTES", int64(maxFiles)*maxSizeBytes+1<<20),
		ProxyMaxInFlight:      src.mustEnvInt("PROXY_MAX_IN_FLIGHT", 16),

		APIRateLimitRPS:   src.mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: src.mustEnvInt("API_RATE_LIMIT_BURST", 10),

		BackendTimeoutSeconds:   src.mustEnvInt("BACKEND_TIMEOUT_SECONDS", 120),
		BackendRetryMaxAttempts: src.mustEnvInt("BACKEND_RETRY_MAX_ATTEMPTS", 1),
		BackendBreakerEnabled:   src.mustEnvBool("BACKEND_BREAKER_ENABLED", true),

		NATSURL:     src.mustEnv("NATS_URL", ""),
		NATSSubject: src.mustEnv("NATS_SUBJECT", "documents.uploaded"),

		WorkerMetricsPort: src.mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

// source resolves a setting from the environment first and the optional
// config file second.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvInt64(key string, fallback int64) int64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func readConfigFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	values := make(map[string]string, len(doc))
	for key, value := range doc {
		if value == nil {
			continue
		}
		values[strings.ToUpper(strings.TrimSpace(key))] = fmt.Sprint(value)
	}
	return values, nil
}
