package ports

import (
	"context"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
)

// UploadRelay is the inbound contract of the upload proxy route.
type UploadRelay interface {
	Relay(ctx context.Context, contentType string, body domain.RelayBody) (domain.RelayResponse, error)
}

// UploadEventHandler is the inbound contract for delivered-batch consumers.
type UploadEventHandler interface {
	HandleUploadDelivered(ctx context.Context, event domain.UploadEvent) error
}
