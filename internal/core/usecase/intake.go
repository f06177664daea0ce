package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
	"github.com/kirillkom/doc-upload-gateway/internal/core/ports"
)

// spoolCandidate copies a candidate payload into storage under a key derived
// from the entry id. At most limit+1 bytes are written so a payload that lied
// about its size can still be detected and rejected.
func spoolCandidate(
	ctx context.Context,
	storage ports.ObjectStorage,
	id string,
	candidate domain.Candidate,
	limit int64,
) (domain.FileHandle, error) {
	if candidate.Open == nil {
		return domain.FileHandle{}, domain.WrapError(domain.ErrInvalidInput, "spool candidate", fmt.Errorf("candidate %q has no payload", candidate.Name))
	}
	body, err := candidate.Open()
	if err != nil {
		return domain.FileHandle{}, fmt.Errorf("open candidate payload: %w", err)
	}
	defer body.Close()

	key := spoolKey(id, candidate.Name)
	written, err := storage.Save(ctx, key, io.LimitReader(body, limit+1))
	if err != nil {
		_ = storage.Delete(ctx, key)
		return domain.FileHandle{}, fmt.Errorf("save to object storage: %w", err)
	}

	mimeType := candidate.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return domain.FileHandle{
		Name:     candidate.Name,
		Size:     written,
		MimeType: mimeType,
		Key:      key,
	}, nil
}

func spoolKey(id, filename string) string {
	return fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "file.bin"
	}
	return base
}
