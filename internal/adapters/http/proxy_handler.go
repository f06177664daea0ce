package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
)

const relaySpoolPrefix = "relay_"

// proxyUpload relays a multipart batch to the processing backend and echoes
// the backend's status and body.
func (rt *Router) proxyUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// The body is spooled to storage; every relay attempt re-reads it.
	ctx := r.Context()
	key := relaySpoolPrefix + uuid.NewString()
	size, err := rt.storage.Save(ctx, key, http.MaxBytesReader(w, r.Body, rt.maxProxyBody))
	defer func() {
		if err := rt.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
			slog.Warn("upload_proxy_spool_cleanup_failed", "key", key, "error", err)
		}
	}()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
			})
			return
		}
		slog.Error("upload_proxy_spool_failed", "request_id", requestIDFromContext(ctx), "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read request body: " + err.Error()})
		return
	}

	body := domain.RelayBody{
		Size: size,
		Open: func() (io.ReadCloser, error) { return rt.storage.Open(ctx, key) },
	}
	resp, err := rt.relay.Relay(ctx, r.Header.Get("Content-Type"), body)
	if err != nil {
		status := http.StatusInternalServerError
		if domain.IsKind(err, domain.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		slog.Error("upload_proxy_failed",
			"request_id", requestIDFromContext(ctx),
			"status", status,
			"body_bytes", size,
			"error", err,
		)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
