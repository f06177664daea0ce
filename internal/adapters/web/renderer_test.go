package web

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
)

func stagedFile(id, name string, size int64) domain.StagedFile {
	return domain.NewStagedFile(id, domain.FileHandle{Name: name, Size: size, MimeType: "application/octet-stream", Key: id}, time.Unix(0, 0))
}

func renderPanel(t *testing.T, in PageInput) *html.Node {
	t.Helper()
	renderer, err := NewRenderer()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, renderer.RenderPanel(&buf, BuildPage(in)))
	doc, err := html.Parse(&buf)
	require.NoError(t, err)
	return doc
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	value, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(value) {
		if c == class {
			return true
		}
	}
	return false
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func byClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return hasClass(n, class) }
}

func byID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		value, _ := attr(n, "id")
		return value == id
	}
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func TestRenderPanelEmptyStore(t *testing.T) {
	doc := renderPanel(t, PageInput{MaxFiles: 50, MaxSizeBytes: 100 << 20})

	assert.Empty(t, findAll(doc, byClass("file-count")))
	assert.Empty(t, findAll(doc, byClass("file-item")))

	buttons := findAll(doc, byID("submitBtn"))
	require.Len(t, buttons, 1)
	_, disabled := attr(buttons[0], "disabled")
	assert.True(t, disabled)
	assert.Equal(t, "🚀 Upload Files", text(buttons[0]))
}

func TestRenderPanelListsFilesWithMetadataControls(t *testing.T) {
	report := stagedFile("f1", "Q3 report.pdf", 1536)
	report.Set(domain.FieldPriority, "High")
	photo := stagedFile("f2", "photo.png", 2048)

	doc := renderPanel(t, PageInput{
		Files:    []domain.StagedFile{report, photo},
		State:    domain.SubmissionIdle,
		MaxFiles: 50,
		PreviewURL: func(f domain.StagedFile) string {
			return "/ui/previews/token-" + f.ID
		},
	})

	status := findAll(doc, byClass("file-count"))
	require.Len(t, status, 1)
	assert.Equal(t, "2 files ready", text(status[0]))

	items := findAll(doc, byClass("file-item"))
	require.Len(t, items, 2)
	id, _ := attr(items[0], "data-file-id")
	assert.Equal(t, "f1", id)
	assert.Equal(t, "Q3 report.pdf", text(findAll(items[0], byClass("file-name"))[0]))
	assert.Equal(t, "1.50 KB", text(findAll(items[0], byClass("file-size"))[0]))

	selects := findAll(items[0], func(n *html.Node) bool { return n.Data == "select" })
	require.Len(t, selects, 5)
	priority := findAll(items[0], byID("f1-priority"))
	require.Len(t, priority, 1)
	selected := findAll(priority[0], func(n *html.Node) bool {
		_, ok := attr(n, "selected")
		return n.Data == "option" && ok
	})
	require.Len(t, selected, 1)
	assert.Equal(t, "High", text(selected[0]))

	title := findAll(items[0], byID("f1-documentTitle"))
	require.Len(t, title, 1)
	value, _ := attr(title[0], "value")
	assert.Equal(t, "Q3 report", value)
	placeholder, _ := attr(title[0], "placeholder")
	assert.Equal(t, "Enter document title", placeholder)

	assert.Empty(t, findAll(items[0], func(n *html.Node) bool { return n.Data == "img" }))
	images := findAll(items[1], func(n *html.Node) bool { return n.Data == "img" })
	require.Len(t, images, 1)
	src, _ := attr(images[0], "src")
	assert.Equal(t, "/ui/previews/token-f2", src)

	buttons := findAll(doc, byID("submitBtn"))
	require.Len(t, buttons, 1)
	_, disabled := attr(buttons[0], "disabled")
	assert.False(t, disabled)
}

func TestRenderPanelWhileSubmitting(t *testing.T) {
	doc := renderPanel(t, PageInput{
		Files: []domain.StagedFile{stagedFile("f1", "a.txt", 1)},
		State: domain.SubmissionSubmitting,
	})

	buttons := findAll(doc, byID("submitBtn"))
	require.Len(t, buttons, 1)
	_, disabled := attr(buttons[0], "disabled")
	assert.True(t, disabled)
	assert.True(t, hasClass(buttons[0], "loading"))
	assert.Equal(t, "Uploading...", text(buttons[0]))
	assert.Equal(t, "1 file ready", text(findAll(doc, byClass("file-count"))[0]))
}

func TestRenderPanelShowsNotice(t *testing.T) {
	notice := domain.Notice{Kind: domain.NoticeFailure, Message: "Upload failed. Check server logs for details."}
	doc := renderPanel(t, PageInput{Notice: &notice})

	alerts := findAll(doc, byClass("notice-failure"))
	require.Len(t, alerts, 1)
	assert.Equal(t, notice.Message, text(alerts[0]))
}

func TestRenderPanelEscapesFileNames(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	var buf bytes.Buffer
	view := BuildPage(PageInput{Files: []domain.StagedFile{stagedFile("f1", "<script>alert(1)</script>.txt", 3)}})
	require.NoError(t, renderer.RenderPanel(&buf, view))
	assert.NotContains(t, buf.String(), "<script>alert(1)</script>")
	assert.Contains(t, buf.String(), "&lt;script&gt;")
}

func TestRenderPageEmbedsPanelAndScript(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, renderer.RenderPage(&buf, BuildPage(PageInput{MaxFiles: 50, MaxSizeBytes: 100 << 20})))
	doc, err := html.Parse(&buf)
	require.NoError(t, err)

	require.Len(t, findAll(doc, byID("panel")), 1)
	require.Len(t, findAll(doc, byID("fileInput")), 1)
	hints := findAll(doc, byClass("upload-hint"))
	require.Len(t, hints, 1)
	assert.Equal(t, "Up to 50 files, 100.00 MB each", text(hints[0]))
	scripts := findAll(doc, func(n *html.Node) bool { return n.Data == "script" })
	require.Len(t, scripts, 1)
}

func TestStaticServesScript(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	renderer.Static().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "remove-last")
}

func TestStatusLine(t *testing.T) {
	assert.Equal(t, "", StatusLine(0))
	assert.Equal(t, "1 file ready", StatusLine(1))
	assert.Equal(t, "7 files ready", StatusLine(7))
}
