package httpadapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/doc-upload-gateway/internal/adapters/web"
	"github.com/kirillkom/doc-upload-gateway/internal/config"
	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
	"github.com/kirillkom/doc-upload-gateway/internal/core/usecase"
)

type memStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{blobs: make(map[string][]byte)}
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = raw
	return int64(len(raw)), nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.blobs[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open blob", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *memStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

type uploadClientFake struct {
	mu    sync.Mutex
	err   error
	calls int
	names []string
}

func (f *uploadClientFake) Upload(_ context.Context, files []domain.StagedFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, file := range files {
		f.names = append(f.names, file.File.Name)
	}
	return f.err
}

type relayFake struct {
	mu          sync.Mutex
	resp        domain.RelayResponse
	err         error
	calls       int
	contentType string
	body        []byte
	size        int64
}

func (f *relayFake) Relay(_ context.Context, contentType string, body domain.RelayBody) (domain.RelayResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.contentType = contentType
	f.size = body.Size
	reader, err := body.Open()
	if err != nil {
		return domain.RelayResponse{}, err
	}
	defer reader.Close()
	if f.body, err = io.ReadAll(reader); err != nil {
		return domain.RelayResponse{}, err
	}
	if f.err != nil {
		return domain.RelayResponse{}, f.err
	}
	return f.resp, nil
}

type testEnv struct {
	handler  http.Handler
	sessions *usecase.SessionRegistry
	storage  *memStorage
	uploads  *uploadClientFake
	relay    *relayFake
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	renderer, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	env := &testEnv{
		storage: newMemStorage(),
		uploads: &uploadClientFake{},
		relay: &relayFake{resp: domain.RelayResponse{
			StatusCode:  http.StatusOK,
			ContentType: "application/json",
			Body:        []byte(`{"status":"success"}`),
		}},
	}
	env.sessions = usecase.NewSessionRegistry(usecase.NewSessionFactory(usecase.SessionDeps{
		Storage:       env.storage,
		UploadClient:  env.uploads,
		Limits:        usecase.StagingLimits{MaxFiles: cfg.MaxFiles, MaxSizeBytes: cfg.MaxSizeBytes},
		SubmitTimeout: time.Second,
	}), time.Hour)
	env.handler = NewRouter(cfg, env.sessions, env.relay, env.storage, renderer, nil).Handler()
	return env
}

type filePart struct {
	name        string
	contentType string
	content     string
}

func multipartBody(t *testing.T, parts []filePart, fields map[string]string) (string, *bytes.Buffer) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, part := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+part.name+`"`)
		if part.contentType != "" {
			header.Set("Content-Type", part.contentType)
		}
		w, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := io.WriteString(w, part.content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return writer.FormDataContentType(), &body
}

// do sends a request as the browser script would, reusing cookie when set.
func (e *testEnv) do(method, target, contentType string, body io.Reader, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(fragmentHeader, fragmentValue)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	res := httptest.NewRecorder()
	e.handler.ServeHTTP(res, req)
	return res
}

func sessionCookie(t *testing.T, res *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range res.Result().Cookies() {
		if cookie.Name == sessionCookieName {
			return cookie
		}
	}
	t.Fatalf("expected %s cookie in response", sessionCookieName)
	return nil
}
