package uploadapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
	"github.com/kirillkom/doc-upload-gateway/internal/core/ports"
)

type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("upload endpoint status: %s", e.Status)
	}
	return fmt.Sprintf("upload endpoint status: %s: %s", e.Status, strings.TrimSpace(e.Body))
}

// Client posts staged batches to the upload endpoint. The request body is
// streamed from storage so large batches are never held in memory.
type Client struct {
	endpoint   string
	storage    ports.ObjectStorage
	httpClient *http.Client
}

func New(endpoint string, storage ports.ObjectStorage, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint:   endpoint,
		storage:    storage,
		httpClient: httpClient,
	}
}

func (c *Client) Upload(ctx context.Context, files []domain.StagedFile) error {
	pr, pw := io.Pipe()
	defer pr.Close()
	writer := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(c.writeBatch(ctx, writer, files))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return nil
}

func (c *Client) writeBatch(ctx context.Context, writer *multipart.Writer, files []domain.StagedFile) error {
	for _, file := range files {
		if err := c.writeFilePart(ctx, writer, file); err != nil {
			return err
		}
		meta, err := json.Marshal(file.Metadata())
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", file.ID, err)
		}
		if err := writer.WriteField(domain.MetadataPartPrefix+file.ID, string(meta)); err != nil {
			return fmt.Errorf("write metadata part: %w", err)
		}
	}
	return writer.Close()
}

func (c *Client) writeFilePart(ctx context.Context, writer *multipart.Writer, file domain.StagedFile) error {
	body, err := c.storage.Open(ctx, file.File.Key)
	if err != nil {
		return fmt.Errorf("open staged payload %s: %w", file.ID, err)
	}
	defer body.Close()

	mimeType := file.File.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		domain.FilesPartName, quoteEscaper.Replace(file.File.Name)))
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("copy staged payload %s: %w", file.ID, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
