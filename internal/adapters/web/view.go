package web

import (
	"fmt"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
)

const (
	submitLabelIdle = "🚀 Upload Files"
	submitLabelBusy = "Uploading..."
)

type PageView struct {
	StatusLine     string
	Files          []FileView
	Submitting     bool
	SubmitDisabled bool
	SubmitLabel    string
	Notice         *domain.Notice
	MaxFiles       int
	MaxSizeLabel   string
}

type FileView struct {
	ID         string
	Name       string
	SizeLabel  string
	PreviewURL string
	Selects    []SelectView
	Inputs     []InputView
}

type SelectView struct {
	Field   string
	Label   string
	Options []OptionView
}

type OptionView struct {
	Value    string
	Selected bool
}

type InputView struct {
	Field       string
	Label       string
	Value       string
	Placeholder string
}

type PageInput struct {
	Files        []domain.StagedFile
	State        domain.SubmissionState
	Notice       *domain.Notice
	MaxFiles     int
	MaxSizeBytes int64
	// PreviewURL returns the inline preview source for a file, or "" when the
	// file gets no preview.
	PreviewURL func(domain.StagedFile) string
}

var selectFields = []struct {
	field domain.Field
	label string
}{
	{domain.FieldCategory, "Category"},
	{domain.FieldPriority, "Priority"},
	{domain.FieldHierarchy, "Hierarchy"},
	{domain.FieldSAPModule, "SAP Module"},
	{domain.FieldContentType, "Content Type"},
}

var inputFields = []struct {
	field       domain.Field
	label       string
	placeholder string
}{
	{domain.FieldDocumentTitle, "Document Title", "Enter document title"},
	{domain.FieldDocumentAuthor, "Document Author", "Enter author name"},
}

// BuildPage turns a store snapshot into the structure the templates render.
func BuildPage(in PageInput) PageView {
	submitting := in.State == domain.SubmissionSubmitting
	view := PageView{
		StatusLine:     StatusLine(len(in.Files)),
		Files:          make([]FileView, 0, len(in.Files)),
		Submitting:     submitting,
		SubmitDisabled: len(in.Files) == 0 || submitting,
		SubmitLabel:    submitLabelIdle,
		Notice:         in.Notice,
		MaxFiles:       in.MaxFiles,
		MaxSizeLabel:   domain.FormatByteSize(in.MaxSizeBytes),
	}
	if submitting {
		view.SubmitLabel = submitLabelBusy
	}

	for _, file := range in.Files {
		view.Files = append(view.Files, buildFileView(file, in.PreviewURL))
	}
	return view
}

func StatusLine(count int) string {
	switch count {
	case 0:
		return ""
	case 1:
		return "1 file ready"
	default:
		return fmt.Sprintf("%d files ready", count)
	}
}

func buildFileView(file domain.StagedFile, previewURL func(domain.StagedFile) string) FileView {
	view := FileView{
		ID:        file.ID,
		Name:      file.File.Name,
		SizeLabel: domain.FormatByteSize(file.File.Size),
	}
	if previewURL != nil && domain.IsPreviewable(file.File.Name) {
		view.PreviewURL = previewURL(file)
	}

	for _, sf := range selectFields {
		choices, _ := domain.ChoicesFor(sf.field)
		current := file.Value(sf.field)
		options := make([]OptionView, 0, len(choices))
		for _, choice := range choices {
			options = append(options, OptionView{Value: choice, Selected: choice == current})
		}
		view.Selects = append(view.Selects, SelectView{
			Field:   string(sf.field),
			Label:   sf.label,
			Options: options,
		})
	}
	for _, in := range inputFields {
		view.Inputs = append(view.Inputs, InputView{
			Field:       string(in.field),
			Label:       in.label,
			Value:       file.Value(in.field),
			Placeholder: in.placeholder,
		})
	}
	return view
}
