package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferCategory(t *testing.T) {
	cases := map[string]string{
		"report.PDF":       CategoryDocuments,
		"photo.JPG":        CategoryImages,
		"noext":            CategoryDocuments,
		"clip.final.mkv":   CategoryVideos,
		"song.flac":        CategoryAudio,
		"bundle.tar.gz":    CategoryArchives,
		"budget.xlsx":      CategorySpreadsheets,
		"deck.pptx":        CategoryPresentations,
		"main.c":           CategoryCode,
		"index.HTML":       CategoryCode,
		"trailing.":        CategoryDocuments,
		".bashrc":          CategoryDocuments,
		"notes.unknownext": CategoryDocuments,
	}
	for name, want := range cases {
		assert.Equal(t, want, InferCategory(name), name)
	}
}

func TestFormatByteSize(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{0, "0 Bytes"},
		{1, "1.00 Bytes"},
		{1023, "1023.00 Bytes"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{100 * 1024 * 1024, "100.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
		{2048 * 1024 * 1024 * 1024 * 1024, "2048.00 TB"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatByteSize(tc.bytes), "bytes=%d", tc.bytes)
	}
}

func TestIsPreviewable(t *testing.T) {
	assert.True(t, IsPreviewable("scan.PNG"))
	assert.True(t, IsPreviewable("logo.svg"))
	assert.False(t, IsPreviewable("photo.bmp"))
	assert.False(t, IsPreviewable("report.pdf"))
	assert.False(t, IsPreviewable("png"))
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "report.final", DefaultTitle("report.final.pdf"))
	assert.Equal(t, "noext", DefaultTitle("noext"))
	assert.Equal(t, "", DefaultTitle(".env"))
	assert.Equal(t, "archive.", DefaultTitle("archive."))
}

func TestValidateMetadata(t *testing.T) {
	valid := Metadata{
		Category:    CategoryImages,
		Priority:    "Urgent",
		Hierarchy:   "Level 3",
		SAPModule:   "SD - Sales & Distribution",
		ContentType: "Manual",
	}
	require.NoError(t, ValidateMetadata(valid))

	invalid := valid
	invalid.Priority = "Critical"
	err := ValidateMetadata(invalid)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidInput))
	assert.Contains(t, err.Error(), "priority")
}

func TestChoicesForTextFields(t *testing.T) {
	_, ok := ChoicesFor(FieldDocumentTitle)
	assert.False(t, ok)

	values, ok := ChoicesFor(FieldHierarchy)
	require.True(t, ok)
	assert.Len(t, values, 5)
}
