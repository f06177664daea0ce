package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
	"github.com/kirillkom/doc-upload-gateway/internal/core/ports"
)

const (
	ProxyModeForward = "forward"
	ProxyModeStub    = "stub"
)

const maxMetadataPartBytes = 64 * 1024

type UploadProxyOptions struct {
	Mode             string
	ValidateMetadata bool
}

// UploadProxy relays submitted batches to the processing backend, or answers
// with a canned success payload when running in stub mode.
type UploadProxy struct {
	forwarder ports.BackendForwarder
	publisher ports.UploadEventPublisher
	metrics   ports.UploadMetrics
	mode      string
	validate  bool
	newID     func() string
	now       func() time.Time
}

func NewUploadProxy(
	forwarder ports.BackendForwarder,
	publisher ports.UploadEventPublisher,
	options UploadProxyOptions,
	metrics ports.UploadMetrics,
) *UploadProxy {
	mode := strings.ToLower(strings.TrimSpace(options.Mode))
	if mode != ProxyModeStub {
		mode = ProxyModeForward
	}
	return &UploadProxy{
		forwarder: forwarder,
		publisher: publisher,
		metrics:   metrics,
		mode:      mode,
		validate:  options.ValidateMetadata,
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *UploadProxy) Mode() string {
	return p.mode
}

func (p *UploadProxy) Relay(ctx context.Context, contentType string, body domain.RelayBody) (domain.RelayResponse, error) {
	batch, err := inspectBatch(contentType, body)
	if err != nil && p.validate {
		p.record("rejected")
		return domain.RelayResponse{}, err
	}

	if p.mode == ProxyModeStub {
		resp, err := p.stubResponse(batch)
		if err != nil {
			p.record("error")
			return domain.RelayResponse{}, err
		}
		p.record(strconv.Itoa(resp.StatusCode))
		p.publish(ctx, batch, resp, body.Size)
		return resp, nil
	}

	if p.forwarder == nil {
		p.record("error")
		return domain.RelayResponse{}, fmt.Errorf("relay upload: backend forwarder is not configured")
	}
	resp, err := p.forwarder.Forward(ctx, contentType, body)
	if err != nil {
		p.record("error")
		return domain.RelayResponse{}, fmt.Errorf("relay upload: %w", err)
	}
	p.record(strconv.Itoa(resp.StatusCode))
	p.publish(ctx, batch, resp, body.Size)
	return resp, nil
}

func (p *UploadProxy) stubResponse(batch inspectedBatch) (domain.RelayResponse, error) {
	filename := ""
	if len(batch.filenames) > 0 {
		filename = batch.filenames[0]
	}
	payload, err := json.Marshal(map[string]string{
		"status":   "success",
		"file_id":  p.newID(),
		"filename": filename,
		"message":  "File uploaded successfully",
	})
	if err != nil {
		return domain.RelayResponse{}, fmt.Errorf("encode stub response: %w", err)
	}
	return domain.RelayResponse{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        payload,
	}, nil
}

func (p *UploadProxy) publish(ctx context.Context, batch inspectedBatch, resp domain.RelayResponse, bodyBytes int64) {
	if p.publisher == nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return
	}
	event := domain.UploadEvent{
		BatchID:     p.newID(),
		Mode:        p.mode,
		Filenames:   batch.filenames,
		StatusCode:  resp.StatusCode,
		BodyBytes:   bodyBytes,
		DeliveredAt: p.now(),
	}
	if err := p.publisher.PublishUploadDelivered(context.WithoutCancel(ctx), event); err != nil {
		slog.Warn("upload_event_publish_failed", "batch_id", event.BatchID, "error", err)
	}
}

func (p *UploadProxy) record(status string) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordProxyRequest(p.mode, status)
}

type inspectedBatch struct {
	filenames []string
	metadata  map[string]domain.Metadata
}

// inspectBatch walks a multipart body without altering it, collecting file
// names and checking every meta_<id> part against the catalog.
func inspectBatch(contentType string, body domain.RelayBody) (inspectedBatch, error) {
	batch := inspectedBatch{metadata: map[string]domain.Metadata{}}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return batch, domain.WrapError(domain.ErrInvalidInput, "inspect batch", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return batch, domain.WrapError(domain.ErrInvalidInput, "inspect batch", fmt.Errorf("content type %q is not multipart", mediaType))
	}

	if body.Open == nil {
		return batch, domain.WrapError(domain.ErrInvalidInput, "inspect batch", errors.New("empty request body"))
	}
	raw, err := body.Open()
	if err != nil {
		return batch, fmt.Errorf("inspect batch: open body: %w", err)
	}
	defer raw.Close()

	reader := multipart.NewReader(raw, params["boundary"])
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, domain.WrapError(domain.ErrInvalidInput, "inspect batch", err)
		}

		name := part.FormName()
		switch {
		case name == domain.FilesPartName && part.FileName() != "":
			batch.filenames = append(batch.filenames, part.FileName())
		case strings.HasPrefix(name, domain.MetadataPartPrefix):
			id := strings.TrimPrefix(name, domain.MetadataPartPrefix)
			var meta domain.Metadata
			if err := json.NewDecoder(io.LimitReader(part, maxMetadataPartBytes)).Decode(&meta); err != nil {
				_ = part.Close()
				return batch, domain.WrapError(domain.ErrInvalidInput, "inspect batch", fmt.Errorf("decode %s: %w", name, err))
			}
			if err := domain.ValidateMetadata(meta); err != nil {
				_ = part.Close()
				return batch, fmt.Errorf("%s: %w", name, err)
			}
			batch.metadata[id] = meta
		}
		_ = part.Close()
	}

	if len(batch.filenames) == 0 {
		return batch, domain.WrapError(domain.ErrInvalidInput, "inspect batch", errors.New("no files part in request"))
	}
	return batch, nil
}
