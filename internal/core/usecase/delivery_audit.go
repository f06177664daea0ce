package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
)

// DeliveryObserver receives one call per audited batch. lag is negative when
// the event carries no delivery time.
type DeliveryObserver func(mode string, files int, lag time.Duration)

// DeliveryAuditor logs batches the upload proxy reported as delivered.
type DeliveryAuditor struct {
	observe DeliveryObserver
	now     func() time.Time
}

func NewDeliveryAuditor(observe DeliveryObserver) *DeliveryAuditor {
	return &DeliveryAuditor{
		observe: observe,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (a *DeliveryAuditor) HandleUploadDelivered(_ context.Context, event domain.UploadEvent) error {
	if strings.TrimSpace(event.BatchID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "audit delivery", errors.New("batch id is required"))
	}

	lag := time.Duration(-1)
	if !event.DeliveredAt.IsZero() {
		lag = max(a.now().Sub(event.DeliveredAt), 0)
	}

	slog.Info("upload_delivered",
		"batch_id", event.BatchID,
		"mode", event.Mode,
		"files", len(event.Filenames),
		"filenames", event.Filenames,
		"status_code", event.StatusCode,
		"body_bytes", event.BodyBytes,
		"lag_ms", float64(lag.Microseconds())/1000.0,
	)
	if a.observe != nil {
		a.observe(event.Mode, len(event.Filenames), lag)
	}
	return nil
}
