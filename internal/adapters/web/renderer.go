package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
)

//go:embed templates/*.tmpl static/*
var assets embed.FS

// Renderer draws the upload page and its panel fragment from the embedded
// templates.
type Renderer struct {
	templates *template.Template
	static    http.Handler
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(assets, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	staticFS, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}
	return &Renderer{
		templates: tmpl,
		static:    http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))),
	}, nil
}

func (r *Renderer) RenderPage(w io.Writer, view PageView) error {
	return r.render(w, "page", view)
}

// RenderPanel draws only the file list, notice and submit control.
func (r *Renderer) RenderPanel(w io.Writer, view PageView) error {
	return r.render(w, "panel", view)
}

func (r *Renderer) Static() http.Handler {
	return r.static
}

// render executes into a buffer first so a template error never leaves a
// half-written response behind.
func (r *Renderer) render(w io.Writer, name string, view PageView) error {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, view); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
