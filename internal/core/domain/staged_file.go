package domain

import (
	"fmt"
	"io"
	"time"
)

type Field string

const (
	FieldCategory       Field = "category"
	FieldPriority       Field = "priority"
	FieldHierarchy      Field = "hierarchy"
	FieldSAPModule      Field = "sapModule"
	FieldContentType    Field = "contentType"
	FieldDocumentTitle  Field = "documentTitle"
	FieldDocumentAuthor Field = "documentAuthor"
)

var Fields = []Field{
	FieldCategory,
	FieldPriority,
	FieldHierarchy,
	FieldSAPModule,
	FieldContentType,
	FieldDocumentTitle,
	FieldDocumentAuthor,
}

func ParseField(name string) (Field, error) {
	for _, field := range Fields {
		if string(field) == name {
			return field, nil
		}
	}
	return "", WrapError(ErrInvalidInput, "parse field", fmt.Errorf("unknown metadata field %q", name))
}

// FileHandle references a spooled payload. Key is owned by exactly one
// StagedFile and is released when that entry is destroyed.
type FileHandle struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	Key      string `json:"key"`
}

// Candidate is a file offered for staging before its payload is spooled.
type Candidate struct {
	Name     string
	Size     int64
	MimeType string
	Open     func() (io.ReadCloser, error)
}

type StagedFile struct {
	ID             string     `json:"id"`
	File           FileHandle `json:"file"`
	Category       string     `json:"category"`
	Priority       string     `json:"priority"`
	Hierarchy      string     `json:"hierarchy"`
	SAPModule      string     `json:"sapModule"`
	ContentType    string     `json:"contentType"`
	DocumentTitle  string     `json:"documentTitle"`
	DocumentAuthor string     `json:"documentAuthor"`
	AddedAt        time.Time  `json:"added_at"`
}

func NewStagedFile(id string, file FileHandle, now time.Time) StagedFile {
	return StagedFile{
		ID:             id,
		File:           file,
		Category:       InferCategory(file.Name),
		Priority:       DefaultPriority,
		Hierarchy:      DefaultHierarchy,
		SAPModule:      DefaultSAPModule,
		ContentType:    DefaultContentType,
		DocumentTitle:  DefaultTitle(file.Name),
		DocumentAuthor: "",
		AddedAt:        now,
	}
}

func (f *StagedFile) Set(field Field, value string) {
	switch field {
	case FieldCategory:
		f.Category = value
	case FieldPriority:
		f.Priority = value
	case FieldHierarchy:
		f.Hierarchy = value
	case FieldSAPModule:
		f.SAPModule = value
	case FieldContentType:
		f.ContentType = value
	case FieldDocumentTitle:
		f.DocumentTitle = value
	case FieldDocumentAuthor:
		f.DocumentAuthor = value
	}
}

func (f StagedFile) Value(field Field) string {
	switch field {
	case FieldCategory:
		return f.Category
	case FieldPriority:
		return f.Priority
	case FieldHierarchy:
		return f.Hierarchy
	case FieldSAPModule:
		return f.SAPModule
	case FieldContentType:
		return f.ContentType
	case FieldDocumentTitle:
		return f.DocumentTitle
	case FieldDocumentAuthor:
		return f.DocumentAuthor
	default:
		return ""
	}
}

func (f StagedFile) Metadata() Metadata {
	return Metadata{
		Category:       f.Category,
		Priority:       f.Priority,
		Hierarchy:      f.Hierarchy,
		SAPModule:      f.SAPModule,
		ContentType:    f.ContentType,
		DocumentTitle:  f.DocumentTitle,
		DocumentAuthor: f.DocumentAuthor,
	}
}

// Metadata is the per-file JSON object sent in a meta_<id> part.
type Metadata struct {
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	Hierarchy      string `json:"hierarchy"`
	SAPModule      string `json:"sapModule"`
	ContentType    string `json:"contentType"`
	DocumentTitle  string `json:"documentTitle"`
	DocumentAuthor string `json:"documentAuthor"`
}

const (
	FilesPartName      = "files"
	MetadataPartPrefix = "meta_"
)
