package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
)

func newTestStore(limits StagingLimits) (*StagingStore, *memStorageFake, *metricsFake) {
	storage := newMemStorageFake()
	metrics := newMetricsFake()
	return NewStagingStore(storage, limits, metrics), storage, metrics
}

func TestStagingAddTruncatesBatchToCap(t *testing.T) {
	store, storage, metrics := newTestStore(StagingLimits{MaxFiles: 50, MaxSizeBytes: 1024})

	candidates := make([]domain.Candidate, 0, 60)
	for i := range 60 {
		candidates = append(candidates, textCandidate(fmt.Sprintf("file-%02d.txt", i), "x"))
	}

	result := store.Add(context.Background(), candidates)
	require.Len(t, result.Added, 50)
	assert.Len(t, result.Truncated, 10)
	assert.Equal(t, "file-50.txt", result.Truncated[0])
	assert.Equal(t, 50, store.Size())
	assert.Equal(t, 50, storage.count())
	assert.Equal(t, 10, metrics.rejected[rejectTruncated])

	for i, file := range store.List() {
		assert.Equal(t, fmt.Sprintf("file-%02d.txt", i), file.File.Name)
	}
}

func TestStagingAddNeverExceedsCapAcrossBatches(t *testing.T) {
	store, _, _ := newTestStore(StagingLimits{MaxFiles: 5, MaxSizeBytes: 1024})

	for batch := range 4 {
		store.Add(context.Background(), []domain.Candidate{
			textCandidate(fmt.Sprintf("a-%d.txt", batch), "a"),
			textCandidate(fmt.Sprintf("b-%d.txt", batch), "b"),
		})
		assert.LessOrEqual(t, store.Size(), 5)
	}
	assert.Equal(t, 5, store.Size())

	result := store.Add(context.Background(), []domain.Candidate{textCandidate("late.txt", "c")})
	assert.Empty(t, result.Added)
	assert.Equal(t, []string{"late.txt"}, result.Truncated)
}

func TestStagingAddDropsOversizeFiles(t *testing.T) {
	store, storage, metrics := newTestStore(StagingLimits{MaxFiles: 50, MaxSizeBytes: 4})

	result := store.Add(context.Background(), []domain.Candidate{
		textCandidate("ok.txt", "1234"),
		sizedCandidate("huge.bin", 5),
		textCandidate("also-ok.png", "12"),
	})

	require.Len(t, result.Added, 2)
	assert.Equal(t, []string{"huge.bin"}, result.Oversize)
	assert.Equal(t, []string{"ok.txt", "also-ok.png"}, []string{store.List()[0].File.Name, store.List()[1].File.Name})
	assert.Equal(t, 2, storage.count())
	assert.Equal(t, 1, metrics.rejected[rejectOversize])
	for _, file := range store.List() {
		assert.LessOrEqual(t, file.File.Size, int64(4))
	}
}

func TestStagingAddRejectsPayloadLargerThanDeclared(t *testing.T) {
	store, storage, _ := newTestStore(StagingLimits{MaxFiles: 50, MaxSizeBytes: 4})

	liar := textCandidate("liar.txt", "123456789")
	liar.Size = 2

	result := store.Add(context.Background(), []domain.Candidate{liar})
	assert.Empty(t, result.Added)
	assert.Equal(t, []string{"liar.txt"}, result.Oversize)
	assert.Equal(t, 0, storage.count())
	assert.Len(t, storage.deleted, 1)
}

func TestStagingAddReportsSpoolFailures(t *testing.T) {
	store, storage, metrics := newTestStore(StagingLimits{})
	storage.saveErr = errors.New("disk full")

	result := store.Add(context.Background(), []domain.Candidate{textCandidate("a.txt", "a")})
	assert.Empty(t, result.Added)
	assert.Equal(t, []string{"a.txt"}, result.Failed)
	assert.Equal(t, 0, store.Size())
	assert.Equal(t, 1, metrics.rejected[rejectFailed])
}

func TestStagingAddAppliesDefaults(t *testing.T) {
	store, _, _ := newTestStore(StagingLimits{})

	result := store.Add(context.Background(), []domain.Candidate{textCandidate("Quarterly Report.final.PDF", "pdf")})
	require.Len(t, result.Added, 1)

	file := result.Added[0]
	assert.NotEmpty(t, file.ID)
	assert.Equal(t, domain.CategoryDocuments, file.Category)
	assert.Equal(t, "Medium", file.Priority)
	assert.Equal(t, "Level 1", file.Hierarchy)
	assert.Equal(t, "Other", file.SAPModule)
	assert.Equal(t, "Other", file.ContentType)
	assert.Equal(t, "Quarterly Report.final", file.DocumentTitle)
	assert.Equal(t, "", file.DocumentAuthor)
	assert.Equal(t, int64(3), file.File.Size)
	assert.Contains(t, file.File.Key, "_Quarterly_Report.final.PDF")
}

func TestStagingAddThenRemoveRestoresStore(t *testing.T) {
	store, storage, _ := newTestStore(StagingLimits{})
	store.Add(context.Background(), []domain.Candidate{textCandidate("keep.txt", "k")})
	before := store.List()

	result := store.Add(context.Background(), []domain.Candidate{textCandidate("temp.txt", "t")})
	require.Len(t, result.Added, 1)

	assert.True(t, store.Remove(context.Background(), result.Added[0].ID))
	assert.Equal(t, before, store.List())
	assert.Equal(t, 1, storage.count())
	assert.Contains(t, storage.deleted, result.Added[0].File.Key)
}

func TestStagingRemovePreservesOrderAndIgnoresUnknownID(t *testing.T) {
	store, _, _ := newTestStore(StagingLimits{})
	result := store.Add(context.Background(), []domain.Candidate{
		textCandidate("a.txt", "a"),
		textCandidate("b.txt", "b"),
		textCandidate("c.txt", "c"),
	})

	assert.False(t, store.Remove(context.Background(), "missing"))
	assert.Equal(t, 3, store.Size())

	assert.True(t, store.Remove(context.Background(), result.Added[1].ID))
	names := []string{}
	for _, file := range store.List() {
		names = append(names, file.File.Name)
	}
	assert.Equal(t, []string{"a.txt", "c.txt"}, names)
}

func TestStagingRemoveLast(t *testing.T) {
	store, _, _ := newTestStore(StagingLimits{})

	_, ok := store.RemoveLast(context.Background())
	assert.False(t, ok)

	store.Add(context.Background(), []domain.Candidate{textCandidate("a.txt", "a"), textCandidate("b.txt", "b")})
	removed, ok := store.RemoveLast(context.Background())
	require.True(t, ok)
	assert.Equal(t, "b.txt", removed.File.Name)
	assert.Equal(t, 1, store.Size())
}

func TestStagingUpdateField(t *testing.T) {
	store, _, _ := newTestStore(StagingLimits{})
	result := store.Add(context.Background(), []domain.Candidate{textCandidate("a.txt", "a")})
	id := result.Added[0].ID

	require.NoError(t, store.UpdateField(id, "priority", "Urgent"))
	require.NoError(t, store.UpdateField(id, "documentAuthor", "Jane Roe"))

	file, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Urgent", file.Priority)
	assert.Equal(t, "Jane Roe", file.DocumentAuthor)
}

func TestStagingUpdateFieldUnknownIDIsNoop(t *testing.T) {
	store, _, _ := newTestStore(StagingLimits{})
	store.Add(context.Background(), []domain.Candidate{textCandidate("a.txt", "a")})
	before := store.List()

	require.NoError(t, store.UpdateField("missing", "priority", "High"))
	assert.Equal(t, before, store.List())
}

func TestStagingUpdateFieldRejectsUnknownField(t *testing.T) {
	store, _, _ := newTestStore(StagingLimits{})
	result := store.Add(context.Background(), []domain.Candidate{textCandidate("a.txt", "a")})

	err := store.UpdateField(result.Added[0].ID, "id", "other")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestStagingClearReleasesPayloads(t *testing.T) {
	store, storage, _ := newTestStore(StagingLimits{})
	store.Add(context.Background(), []domain.Candidate{textCandidate("a.txt", "a"), textCandidate("b.txt", "b")})

	assert.Equal(t, 2, store.Clear(context.Background()))
	assert.Equal(t, 0, store.Size())
	assert.Equal(t, 0, storage.count())
	assert.Empty(t, store.List())
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "report_1.txt", sanitizeFilename("report 1.txt"))
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "file.bin", sanitizeFilename(""))
	assert.Equal(t, "_____.pdf", sanitizeFilename("отчёт.pdf"))
}

func TestStagingAddFromStopsOpeningAtCap(t *testing.T) {
	store, storage, metrics := newTestStore(StagingLimits{MaxFiles: 3, MaxSizeBytes: 1024})
	store.Add(context.Background(), []domain.Candidate{textCandidate("first.txt", "1")})

	pulled := 0
	result, err := store.AddFrom(context.Background(), func() (domain.Candidate, error) {
		if pulled == 1200 {
			return domain.Candidate{}, io.EOF
		}
		pulled++
		if pulled > 2 {
			return sizedCandidate(fmt.Sprintf("late-%d.txt", pulled), 0), nil
		}
		return textCandidate(fmt.Sprintf("keep-%d.txt", pulled), "x"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1200, pulled)
	require.Len(t, result.Added, 2)
	assert.Len(t, result.Truncated, 1198)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 3, store.Size())
	assert.Equal(t, 3, storage.count())
	assert.Equal(t, 1198, metrics.rejected[rejectTruncated])
}

func TestStagingAddFromKeepsFilesBeforeSourceError(t *testing.T) {
	store, _, _ := newTestStore(StagingLimits{})

	calls := 0
	result, err := store.AddFrom(context.Background(), func() (domain.Candidate, error) {
		calls++
		if calls == 1 {
			return textCandidate("a.txt", "a"), nil
		}
		return domain.Candidate{}, errors.New("multipart: unexpected EOF")
	})
	require.Error(t, err)
	require.Len(t, result.Added, 1)
	assert.Equal(t, 1, store.Size())
}

func TestStagingPinDefersPayloadRelease(t *testing.T) {
	store, storage, _ := newTestStore(StagingLimits{})
	result := store.Add(context.Background(), []domain.Candidate{textCandidate("a.txt", "a"), textCandidate("b.txt", "b")})
	store.Pin(result.Added[:1])

	require.True(t, store.Remove(context.Background(), result.Added[0].ID))
	require.True(t, store.Remove(context.Background(), result.Added[1].ID))
	assert.Equal(t, 1, storage.count())
	assert.NotContains(t, storage.deleted, result.Added[0].File.Key)

	store.Unpin(context.Background())
	assert.Equal(t, 0, storage.count())
	assert.Contains(t, storage.deleted, result.Added[0].File.Key)
}

func TestStagingRemoveIDsKeepsOthers(t *testing.T) {
	store, storage, _ := newTestStore(StagingLimits{})
	result := store.Add(context.Background(), []domain.Candidate{textCandidate("a.txt", "a"), textCandidate("b.txt", "b")})

	assert.Equal(t, 1, store.RemoveIDs(context.Background(), []string{result.Added[0].ID, "missing"}))
	assert.Equal(t, []domain.StagedFile{result.Added[1]}, store.List())
	assert.Equal(t, 1, storage.count())
}
