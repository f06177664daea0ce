package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
)

// ObjectStorage spools staged payloads until they are submitted or dropped.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// UploadClient sends a staged batch to the upload endpoint as one multipart request.
type UploadClient interface {
	Upload(ctx context.Context, files []domain.StagedFile) error
}

// BackendForwarder relays a raw multipart body to the processing backend.
type BackendForwarder interface {
	Forward(ctx context.Context, contentType string, body domain.RelayBody) (domain.RelayResponse, error)
}

// UploadEventPublisher announces batches that reached the backend.
type UploadEventPublisher interface {
	PublishUploadDelivered(ctx context.Context, event domain.UploadEvent) error
}

// UploadEventSubscriber consumes delivered-batch announcements.
type UploadEventSubscriber interface {
	SubscribeUploadDelivered(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error
}

// UploadMetrics records staging, submission and proxy outcomes.
type UploadMetrics interface {
	RecordStagingRejected(reason string, count int)
	RecordSubmission(status string, files int, duration time.Duration)
	RecordProxyRequest(mode, status string)
}
