package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

const (
	CategoryDocuments     = "Documents"
	CategoryImages        = "Images"
	CategoryVideos        = "Videos"
	CategoryAudio         = "Audio"
	CategoryArchives      = "Archives"
	CategorySpreadsheets  = "Spreadsheets"
	CategoryPresentations = "Presentations"
	CategoryCode          = "Code"
	CategoryOther         = "Other"
)

const (
	DefaultPriority    = "Medium"
	DefaultHierarchy   = "Level 1"
	DefaultSAPModule   = "Other"
	DefaultContentType = "Other"
)

var (
	Categories = []string{
		CategoryDocuments,
		CategoryImages,
		CategoryVideos,
		CategoryAudio,
		CategoryArchives,
		CategorySpreadsheets,
		CategoryPresentations,
		CategoryCode,
		CategoryOther,
	}
	Priorities  = []string{"Low", "Medium", "High", "Urgent"}
	Hierarchies = []string{"Level 1", "Level 2", "Level 3", "Level 4", "Level 5"}
	SAPModules  = []string{
		"FI - Finance",
		"CO - Controlling",
		"SD - Sales & Distribution",
		"MM - Materials Management",
		"PP - Production Planning",
		"HR - Human Resources",
		"PM - Plant Maintenance",
		"QM - Quality Management",
		"WM - Warehouse Management",
		"PS - Project Systems",
		"Other",
	}
	ContentTypes = []string{
		"Manual",
		"Process Document",
		"Training Material",
		"Policy",
		"Procedure",
		"Form",
		"Template",
		"Report",
		"Specification",
		"Other",
	}
)

var categoryByExtension = map[string]string{
	"jpg": CategoryImages, "jpeg": CategoryImages, "png": CategoryImages, "gif": CategoryImages,
	"bmp": CategoryImages, "svg": CategoryImages, "webp": CategoryImages,

	"mp4": CategoryVideos, "avi": CategoryVideos, "mkv": CategoryVideos,
	"mov": CategoryVideos, "wmv": CategoryVideos, "flv": CategoryVideos,

	"mp3": CategoryAudio, "wav": CategoryAudio, "flac": CategoryAudio, "aac": CategoryAudio, "ogg": CategoryAudio,

	"zip": CategoryArchives, "rar": CategoryArchives, "7z": CategoryArchives, "tar": CategoryArchives, "gz": CategoryArchives,

	"xls": CategorySpreadsheets, "xlsx": CategorySpreadsheets, "csv": CategorySpreadsheets,

	"ppt": CategoryPresentations, "pptx": CategoryPresentations,

	"js": CategoryCode, "html": CategoryCode, "css": CategoryCode, "py": CategoryCode,
	"java": CategoryCode, "cpp": CategoryCode, "c": CategoryCode,
}

var previewExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "webp": {}, "svg": {},
}

var byteUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FileExtension returns the lower-cased text after the last dot, or "" when
// the name has no dot.
func FileExtension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

func InferCategory(filename string) string {
	if category, ok := categoryByExtension[FileExtension(filename)]; ok {
		return category
	}
	return CategoryDocuments
}

func IsPreviewable(filename string) bool {
	_, ok := previewExtensions[FileExtension(filename)]
	return ok
}

func FormatByteSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	exp := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	exp = min(exp, len(byteUnits)-1)
	return fmt.Sprintf("%.2f %s", float64(bytes)/math.Pow(1024, float64(exp)), byteUnits[exp])
}

// DefaultTitle strips the last extension from a filename. A leading-dot name
// such as ".env" has nothing left and yields "".
func DefaultTitle(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 || strings.Contains(filename[idx+1:], "/") {
		return filename
	}
	return filename[:idx]
}

// ValidateMetadata checks enumerated fields against the catalog. Title and
// author are free text and are never rejected.
func ValidateMetadata(meta Metadata) error {
	checks := []struct {
		field  Field
		value  string
		values []string
	}{
		{FieldCategory, meta.Category, Categories},
		{FieldPriority, meta.Priority, Priorities},
		{FieldHierarchy, meta.Hierarchy, Hierarchies},
		{FieldSAPModule, meta.SAPModule, SAPModules},
		{FieldContentType, meta.ContentType, ContentTypes},
	}
	for _, check := range checks {
		if !slices.Contains(check.values, check.value) {
			return WrapError(ErrInvalidInput, "validate metadata", fmt.Errorf("%s %q is not an allowed value", check.field, check.value))
		}
	}
	return nil
}

// ChoicesFor returns the ordered value set behind an enumerated field.
func ChoicesFor(field Field) ([]string, bool) {
	switch field {
	case FieldCategory:
		return Categories, true
	case FieldPriority:
		return Priorities, true
	case FieldHierarchy:
		return Hierarchies, true
	case FieldSAPModule:
		return SAPModules, true
	case FieldContentType:
		return ContentTypes, true
	default:
		return nil, false
	}
}
