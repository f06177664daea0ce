package usecase

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
)

type Preview struct {
	FileID   string
	Name     string
	MimeType string
	Key      string
}

// PreviewRegistry hands out single-use tokens for inline image previews. A
// token is gone after the first fetch, and at most one token per file is live.
type PreviewRegistry struct {
	newToken func() string

	mu      sync.Mutex
	byToken map[string]Preview
	byFile  map[string]string
}

func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{
		newToken: uuid.NewString,
		byToken:  make(map[string]Preview),
		byFile:   make(map[string]string),
	}
}

// Issue returns a fresh token for the file, revoking any earlier one that was
// never fetched. Files without a previewable extension get no token.
func (r *PreviewRegistry) Issue(file domain.StagedFile) (string, bool) {
	if !domain.IsPreviewable(file.File.Name) {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byFile[file.ID]; ok {
		delete(r.byToken, old)
	}
	token := r.newToken()
	r.byToken[token] = Preview{
		FileID:   file.ID,
		Name:     file.File.Name,
		MimeType: file.File.MimeType,
		Key:      file.File.Key,
	}
	r.byFile[file.ID] = token
	return token, true
}

func (r *PreviewRegistry) Consume(token string) (Preview, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	preview, ok := r.byToken[token]
	if !ok {
		return Preview{}, false
	}
	delete(r.byToken, token)
	delete(r.byFile, preview.FileID)
	return preview, true
}

// Retain revokes tokens whose file is no longer staged.
func (r *PreviewRegistry) Retain(fileIDs []string) {
	keep := make(map[string]struct{}, len(fileIDs))
	for _, id := range fileIDs {
		keep[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for fileID, token := range r.byFile {
		if _, ok := keep[fileID]; ok {
			continue
		}
		delete(r.byToken, token)
		delete(r.byFile, fileID)
	}
}

func (r *PreviewRegistry) RevokeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byToken)
	clear(r.byFile)
}

func (r *PreviewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}
