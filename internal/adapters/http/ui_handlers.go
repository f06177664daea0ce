package httpadapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/kirillkom/doc-upload-gateway/internal/adapters/web"
	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
	"github.com/kirillkom/doc-upload-gateway/internal/core/usecase"
)

const (
	sessionCookieName = "dug_session"

	// Requests carrying this header get the panel fragment back instead of
	// a redirect to the page.
	fragmentHeader = "X-Upload-UI"
	fragmentValue  = "fragment"
)

func (rt *Router) session(w http.ResponseWriter, r *http.Request) *usecase.Session {
	var id string
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		id = cookie.Value
	}

	session, created := rt.sessions.Acquire(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    session.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   rt.secureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return session
}

func (rt *Router) page(w http.ResponseWriter, r *http.Request) {
	session := rt.session(w, r)

	var buf bytes.Buffer
	if err := rt.renderer.RenderPage(&buf, rt.buildView(session)); err != nil {
		slog.Error("render_page_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "render failed"})
		return
	}
	writeHTML(w, http.StatusOK, &buf)
}

func (rt *Router) addFiles(w http.ResponseWriter, r *http.Request) {
	session := rt.session(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUIBody)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "read staged files", err))
		return
	}

	// Parts are streamed straight into the store; parts past the cap are
	// skipped without being buffered.
	result, err := session.Store.AddFrom(r.Context(), nextFilePart(reader))
	slog.Info("files_staged",
		"request_id", requestIDFromContext(r.Context()),
		"session_id", session.ID,
		"added", len(result.Added),
		"truncated", len(result.Truncated),
		"oversize", len(result.Oversize),
		"failed", len(result.Failed),
		"staged", session.Store.Size(),
	)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "read staged files", err))
		return
	}
	rt.writePanel(w, r, session, http.StatusOK)
}

// nextFilePart yields one candidate per "files" part and skips every other
// part. A candidate's payload is the part itself, so it is only valid until
// the next call.
func nextFilePart(reader *multipart.Reader) func() (domain.Candidate, error) {
	return func() (domain.Candidate, error) {
		for {
			part, err := reader.NextPart()
			if err != nil {
				return domain.Candidate{}, err
			}
			if part.FormName() != domain.FilesPartName || part.FileName() == "" {
				_ = part.Close()
				continue
			}
			return domain.Candidate{
				Name:     part.FileName(),
				MimeType: part.Header.Get("Content-Type"),
				Open:     func() (io.ReadCloser, error) { return part, nil },
			}, nil
		}
	}
}

func (rt *Router) removeFile(w http.ResponseWriter, r *http.Request) {
	session := rt.session(w, r)
	session.Store.Remove(r.Context(), r.PathValue("id"))
	rt.writePanel(w, r, session, http.StatusOK)
}

func (rt *Router) removeLastFile(w http.ResponseWriter, r *http.Request) {
	session := rt.session(w, r)
	session.Store.RemoveLast(r.Context())
	rt.writePanel(w, r, session, http.StatusOK)
}

// updateField accepts either a single field/value pair (script) or the whole
// metadata form (plain form post).
func (rt *Router) updateField(w http.ResponseWriter, r *http.Request) {
	session := rt.session(w, r)
	if err := r.ParseForm(); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "parse field update", err))
		return
	}

	id := r.PathValue("id")
	updates := make(map[string]string)
	if field := r.PostForm.Get("field"); field != "" {
		updates[field] = r.PostForm.Get("value")
	} else {
		for _, field := range domain.Fields {
			if r.PostForm.Has(string(field)) {
				updates[string(field)] = r.PostForm.Get(string(field))
			}
		}
	}
	for field, value := range updates {
		if err := session.Store.UpdateField(id, field, value); err != nil {
			writeError(w, err)
			return
		}
	}

	if !isFragmentRequest(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) submit(w http.ResponseWriter, r *http.Request) {
	session := rt.session(w, r)

	// The upload keeps going if the browser navigates away; the submit
	// timeout still bounds it.
	status := http.StatusOK
	if _, err := session.Submission.Submit(context.WithoutCancel(r.Context())); err != nil {
		status = mapErrorToHTTPStatus(err)
		if !domain.IsKind(err, domain.ErrTemporary) {
			slog.Warn("submission_rejected",
				"request_id", requestIDFromContext(r.Context()),
				"session_id", session.ID,
				"error", err,
			)
		}
	}
	rt.writePanel(w, r, session, status)
}

func (rt *Router) preview(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "preview not found"})
		return
	}
	session, ok := rt.sessions.Lookup(cookie.Value)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "preview not found"})
		return
	}
	preview, ok := session.Previews.Consume(r.PathValue("token"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "preview not found"})
		return
	}

	reader, err := rt.storage.Open(r.Context(), preview.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	contentType := preview.MimeType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension("." + domain.FileExtension(preview.Name))
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		slog.Warn("preview_stream_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

func (rt *Router) buildView(session *usecase.Session) web.PageView {
	files := session.Store.List()
	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, file.ID)
	}
	session.Previews.Retain(ids)

	limits := session.Store.Limits()
	in := web.PageInput{
		Files:        files,
		State:        session.Submission.State(),
		MaxFiles:     limits.MaxFiles,
		MaxSizeBytes: limits.MaxSizeBytes,
		PreviewURL: func(file domain.StagedFile) string {
			token, ok := session.Previews.Issue(file)
			if !ok {
				return ""
			}
			return "/ui/previews/" + url.PathEscape(token)
		},
	}
	if notice, ok := session.Submission.TakeNotice(); ok {
		in.Notice = &notice
	}
	return web.BuildPage(in)
}

// writePanel answers a UI command. Script-driven requests get the redrawn
// panel; plain form posts are sent back to the page.
func (rt *Router) writePanel(w http.ResponseWriter, r *http.Request, session *usecase.Session, status int) {
	if !isFragmentRequest(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	var buf bytes.Buffer
	if err := rt.renderer.RenderPanel(&buf, rt.buildView(session)); err != nil {
		slog.Error("render_panel_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "render failed"})
		return
	}
	writeHTML(w, status, &buf)
}

func isFragmentRequest(r *http.Request) bool {
	return r.Header.Get(fragmentHeader) == fragmentValue
}

func writeHTML(w http.ResponseWriter, status int, body *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = body.WriteTo(w)
}
