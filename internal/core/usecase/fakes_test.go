package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
)

type memStorageFake struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	deleted []string
	saveErr error
}

func newMemStorageFake() *memStorageFake {
	return &memStorageFake{blobs: map[string][]byte{}}
}

func (f *memStorageFake) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = raw
	return int64(len(raw)), nil
}

func (f *memStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", key, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *memStorageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *memStorageFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

type uploadClientFake struct {
	mu       sync.Mutex
	err      error
	calls    int
	received []domain.StagedFile
	block    chan struct{}
	started  chan struct{}

	// storage, when set, is read for every file after block is released.
	storage  *memStorageFake
	payloads map[string]string
}

func (f *uploadClientFake) Upload(ctx context.Context, files []domain.StagedFile) error {
	f.mu.Lock()
	f.calls++
	f.received = append([]domain.StagedFile(nil), files...)
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.storage != nil {
		for _, file := range files {
			body, err := f.storage.Open(ctx, file.File.Key)
			if err != nil {
				return fmt.Errorf("open staged payload %s: %w", file.File.Name, err)
			}
			raw, err := io.ReadAll(body)
			_ = body.Close()
			if err != nil {
				return err
			}
			f.mu.Lock()
			if f.payloads == nil {
				f.payloads = map[string]string{}
			}
			f.payloads[file.File.Name] = string(raw)
			f.mu.Unlock()
		}
	}
	return f.err
}

type metricsFake struct {
	mu          sync.Mutex
	rejected    map[string]int
	submissions map[string]int
	proxy       map[string]int
}

func newMetricsFake() *metricsFake {
	return &metricsFake{
		rejected:    map[string]int{},
		submissions: map[string]int{},
		proxy:       map[string]int{},
	}
}

func (m *metricsFake) RecordStagingRejected(reason string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[reason] += count
}

func (m *metricsFake) RecordSubmission(status string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[status]++
}

func (m *metricsFake) RecordProxyRequest(mode, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proxy[mode+":"+status]++
}

func textCandidate(name, body string) domain.Candidate {
	return domain.Candidate{
		Name:     name,
		Size:     int64(len(body)),
		MimeType: "text/plain",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

func sizedCandidate(name string, size int64) domain.Candidate {
	return domain.Candidate{
		Name: name,
		Size: size,
		Open: func() (io.ReadCloser, error) {
			return nil, errors.New("oversize candidates must not be opened")
		},
	}
}

var domainTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
