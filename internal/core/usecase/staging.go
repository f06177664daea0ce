package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
	"github.com/kirillkom/doc-upload-gateway/internal/core/ports"
)

const (
	DefaultMaxFiles     = 50
	DefaultMaxSizeBytes = 100 * 1024 * 1024
)

const (
	rejectTruncated = "truncated"
	rejectOversize  = "oversize"
	rejectFailed    = "spool_failed"
)

type StagingLimits struct {
	MaxFiles     int
	MaxSizeBytes int64
}

// Normalize fills zero or negative limits with the defaults.
func (l StagingLimits) Normalize() StagingLimits {
	out := l
	if out.MaxFiles <= 0 {
		out.MaxFiles = DefaultMaxFiles
	}
	if out.MaxSizeBytes <= 0 {
		out.MaxSizeBytes = DefaultMaxSizeBytes
	}
	return out
}

// AddResult reports which candidates made it into the store. Rejections are
// expected and never surface as errors.
type AddResult struct {
	Added     []domain.StagedFile
	Truncated []string
	Oversize  []string
	Failed    []string
}

// StagingStore is the ordered set of files a session has selected but not yet
// submitted. Membership changes are applied under the store lock, so
// commands from one session never interleave.
//
// Payloads of pinned entries stay in storage after removal until Unpin.
type StagingStore struct {
	storage ports.ObjectStorage
	metrics ports.UploadMetrics
	limits  StagingLimits
	newID   func() string
	now     func() time.Time

	mu       sync.Mutex
	files    []domain.StagedFile
	pinned   map[string]struct{}
	deferred []domain.FileHandle
}

func NewStagingStore(storage ports.ObjectStorage, limits StagingLimits, metrics ports.UploadMetrics) *StagingStore {
	return &StagingStore{
		storage: storage,
		metrics: metrics,
		limits:  limits.Normalize(),
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *StagingStore) Limits() StagingLimits {
	return s.limits
}

// Add stages a batch of candidates. See AddFrom for the rules.
func (s *StagingStore) Add(ctx context.Context, candidates []domain.Candidate) AddResult {
	next := 0
	result, _ := s.AddFrom(ctx, func() (domain.Candidate, error) {
		if next >= len(candidates) {
			return domain.Candidate{}, io.EOF
		}
		next++
		return candidates[next-1], nil
	})
	return result
}

// AddFrom stages candidates pulled from next until it returns io.EOF. Only
// the first MaxFiles-Size() candidates are opened; later ones are reported
// as truncated without reading their payload. Oversize payloads are dropped.
// Payloads are spooled outside the store lock and committed in order at the
// end, re-checking the cap against commands that ran in the meantime.
//
// An error from next stops the batch; whatever was spooled before it is still
// committed and the error is returned alongside the result.
func (s *StagingStore) AddFrom(ctx context.Context, next func() (domain.Candidate, error)) (AddResult, error) {
	var (
		result  AddResult
		spooled []domain.StagedFile
		srcErr  error
	)

	room := s.limits.MaxFiles - s.Size()
	for {
		candidate, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			srcErr = err
			break
		}
		if room <= 0 {
			result.Truncated = append(result.Truncated, candidate.Name)
			continue
		}
		room--

		staged, reject := s.spool(ctx, candidate)
		switch reject {
		case rejectOversize:
			result.Oversize = append(result.Oversize, candidate.Name)
		case rejectFailed:
			result.Failed = append(result.Failed, candidate.Name)
		default:
			spooled = append(spooled, staged)
		}
	}

	s.mu.Lock()
	free := s.limits.MaxFiles - len(s.files)
	for i, staged := range spooled {
		if i >= free {
			s.discard(ctx, staged.File)
			result.Truncated = append(result.Truncated, staged.File.Name)
			continue
		}
		s.files = append(s.files, staged)
		result.Added = append(result.Added, staged)
	}
	s.mu.Unlock()

	if len(result.Truncated) > 0 {
		slog.Warn("staging_batch_truncated",
			"max_files", s.limits.MaxFiles,
			"dropped", len(result.Truncated),
		)
	}
	s.recordRejected(rejectTruncated, len(result.Truncated))
	s.recordRejected(rejectOversize, len(result.Oversize))
	s.recordRejected(rejectFailed, len(result.Failed))
	return result, srcErr
}

// spool writes one candidate to storage. The returned reason is empty when
// the candidate was accepted.
func (s *StagingStore) spool(ctx context.Context, candidate domain.Candidate) (domain.StagedFile, string) {
	if candidate.Size > s.limits.MaxSizeBytes {
		slog.Warn("staging_file_oversize",
			"filename", candidate.Name,
			"size", candidate.Size,
			"max_size_bytes", s.limits.MaxSizeBytes,
		)
		return domain.StagedFile{}, rejectOversize
	}

	id := s.newID()
	handle, err := spoolCandidate(ctx, s.storage, id, candidate, s.limits.MaxSizeBytes)
	if err != nil {
		slog.Error("staging_spool_failed", "filename", candidate.Name, "error", err)
		return domain.StagedFile{}, rejectFailed
	}
	if handle.Size > s.limits.MaxSizeBytes {
		s.discard(ctx, handle)
		slog.Warn("staging_file_oversize",
			"filename", candidate.Name,
			"size", handle.Size,
			"max_size_bytes", s.limits.MaxSizeBytes,
		)
		return domain.StagedFile{}, rejectOversize
	}
	return domain.NewStagedFile(id, handle, s.now()), ""
}

// Remove deletes the entry with the given id. Unknown ids are ignored.
func (s *StagingStore) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.files, func(f domain.StagedFile) bool { return f.ID == id })
	if idx < 0 {
		return false
	}
	removed := s.files[idx]
	s.files = slices.Delete(s.files, idx, idx+1)
	s.release(ctx, removed.File)
	return true
}

// RemoveLast drops the most recently added entry.
func (s *StagingStore) RemoveLast(ctx context.Context) (domain.StagedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.files) == 0 {
		return domain.StagedFile{}, false
	}
	last := s.files[len(s.files)-1]
	s.files = s.files[:len(s.files)-1]
	s.release(ctx, last.File)
	return last, true
}

// UpdateField sets one metadata field. An unknown id is a no-op; an unknown
// field name is rejected. Enumerated values are taken as given.
func (s *StagingStore) UpdateField(id, fieldName, value string) error {
	field, err := domain.ParseField(fieldName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.files {
		if s.files[i].ID == id {
			s.files[i].Set(field, value)
			return nil
		}
	}
	return nil
}

// Clear empties the store and releases every payload. It returns how many
// entries were dropped.
func (s *StagingStore) Clear(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := s.files
	s.files = nil
	for _, file := range cleared {
		s.release(ctx, file.File)
	}
	return len(cleared)
}

// RemoveIDs drops every listed entry that is still staged and returns how
// many were removed. Entries staged after the ids were taken are kept.
func (s *StagingStore) RemoveIDs(ctx context.Context, ids []string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	s.files = slices.DeleteFunc(s.files, func(f domain.StagedFile) bool {
		if _, ok := drop[f.ID]; !ok {
			return false
		}
		s.release(ctx, f.File)
		removed++
		return true
	})
	return removed
}

// Pin keeps the payloads of files in storage until Unpin, even if their
// entries are removed in between.
func (s *StagingStore) Pin(files []domain.StagedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pinned == nil {
		s.pinned = make(map[string]struct{}, len(files))
	}
	for _, file := range files {
		if file.File.Key != "" {
			s.pinned[file.File.Key] = struct{}{}
		}
	}
}

// Unpin drops every pin and releases payloads whose entries were removed
// while pinned.
func (s *StagingStore) Unpin(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deferred := s.deferred
	s.pinned = nil
	s.deferred = nil
	for _, handle := range deferred {
		s.discard(ctx, handle)
	}
}

func (s *StagingStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// List returns an ordered copy of the staged entries.
func (s *StagingStore) List() []domain.StagedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.files)
}

func (s *StagingStore) Get(id string) (domain.StagedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, file := range s.files {
		if file.ID == id {
			return file, true
		}
	}
	return domain.StagedFile{}, false
}

// release frees the payload of a removed entry. Callers hold s.mu.
func (s *StagingStore) release(ctx context.Context, handle domain.FileHandle) {
	if _, ok := s.pinned[handle.Key]; ok {
		s.deferred = append(s.deferred, handle)
		return
	}
	s.discard(ctx, handle)
}

func (s *StagingStore) discard(ctx context.Context, handle domain.FileHandle) {
	if handle.Key == "" {
		return
	}
	if err := s.storage.Delete(context.WithoutCancel(ctx), handle.Key); err != nil {
		slog.Warn("staging_release_failed", "key", handle.Key, "error", err)
	}
}

func (s *StagingStore) recordRejected(reason string, count int) {
	if s.metrics == nil || count == 0 {
		return
	}
	s.metrics.RecordStagingRejected(reason, count)
}
