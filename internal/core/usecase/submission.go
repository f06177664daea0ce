package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
	"github.com/kirillkom/doc-upload-gateway/internal/core/ports"
)

const DefaultSubmitTimeout = 5 * time.Minute

const failureNoticeMessage = "Upload failed. Check server logs for details."

var (
	ErrNothingToSubmit   = errors.New("no staged files to submit")
	ErrSubmissionRunning = errors.New("submission already in flight")
)

// SubmissionController sends the staged batch in one request and keeps at
// most one request in flight per store.
type SubmissionController struct {
	store   *StagingStore
	client  ports.UploadClient
	metrics ports.UploadMetrics
	timeout time.Duration

	mu     sync.Mutex
	state  domain.SubmissionState
	notice *domain.Notice
}

func NewSubmissionController(
	store *StagingStore,
	client ports.UploadClient,
	timeout time.Duration,
	metrics ports.UploadMetrics,
) *SubmissionController {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	return &SubmissionController{
		store:   store,
		client:  client,
		metrics: metrics,
		timeout: timeout,
		state:   domain.SubmissionIdle,
	}
}

func (c *SubmissionController) State() domain.SubmissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TakeNotice returns the pending notice once and forgets it.
func (c *SubmissionController) TakeNotice() (domain.Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.notice == nil {
		return domain.Notice{}, false
	}
	notice := *c.notice
	c.notice = nil
	return notice, true
}

// Submit uploads every staged file. A failed upload leaves the store as it
// was so the user can retry; a successful one removes the uploaded entries.
// Files staged while the request was in flight stay for the next submit.
func (c *SubmissionController) Submit(ctx context.Context) (domain.Notice, error) {
	files, err := c.begin()
	if err != nil {
		return domain.Notice{}, err
	}
	defer c.finish(context.WithoutCancel(ctx))

	start := time.Now()
	uploadCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Upload(uploadCtx, files); err != nil {
		slog.Error("submission_failed",
			"files", len(files),
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
			"error", err,
		)
		c.record("failure", len(files), time.Since(start))
		notice := domain.Notice{Kind: domain.NoticeFailure, Message: failureNoticeMessage}
		c.setNotice(notice)
		return notice, domain.WrapError(domain.ErrTemporary, "submit batch", err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, file.ID)
	}
	cleared := c.store.RemoveIDs(context.WithoutCancel(ctx), ids)
	slog.Info("submission_succeeded",
		"files", len(files),
		"cleared", cleared,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	c.record("success", len(files), time.Since(start))
	notice := domain.Notice{
		Kind:    domain.NoticeSuccess,
		Message: fmt.Sprintf("🎉 Successfully uploaded %d file(s)!", len(files)),
	}
	c.setNotice(notice)
	return notice, nil
}

func (c *SubmissionController) begin() ([]domain.StagedFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == domain.SubmissionSubmitting {
		return nil, domain.WrapError(domain.ErrConflict, "submit batch", ErrSubmissionRunning)
	}
	files := c.store.List()
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit batch", ErrNothingToSubmit)
	}
	c.store.Pin(files)
	c.state = domain.SubmissionSubmitting
	return files, nil
}

func (c *SubmissionController) finish(ctx context.Context) {
	c.store.Unpin(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = domain.SubmissionIdle
}

func (c *SubmissionController) setNotice(notice domain.Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notice = &notice
}

func (c *SubmissionController) record(status string, files int, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordSubmission(status, files, duration)
}
