// Package web serves the server-rendered pages: the tag-filtered notes list
// with its embedded query snapshot, the note detail page and the create form.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/notedeck/internal/notes"
)

//go:embed templates
var templateFS embed.FS

const baseTemplate = "base.html"

// Renderer holds one parsed template set per page, each combined with base.html.
type Renderer struct {
	templates map[string]*template.Template
	funcMap   template.FuncMap
	mu        sync.RWMutex
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	return NewRendererFS(sub)
}

// NewRendererFS parses base.html and every other .html file in fsys. Page
// templates are keyed by their slash path, e.g. "notes/list.html".
func NewRendererFS(fsys fs.FS) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[string]*template.Template),
		funcMap:   createFuncMap(),
	}
	if err := r.parseTemplates(fsys); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return r, nil
}

// Render executes the named page inside the base layout. The page is rendered
// to a buffer first so a template error never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, templateName string, data any) error {
	r.mu.RLock()
	tmpl, ok := r.templates[templateName]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("template %q not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("failed to execute template %q: %w", templateName, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderError renders the error page with the given status code and message.
func (r *Renderer) RenderError(w http.ResponseWriter, code int, message string) {
	data := ErrorPageData{
		PageData:  PageData{Title: http.StatusText(code), Tags: notes.Tags()},
		Status:    code,
		ErrorCode: http.StatusText(code),
		Message:   message,
	}
	if err := r.Render(w, code, "error.html", data); err == nil {
		return
	}
	http.Error(w, fmt.Sprintf("Error %d: %s", code, message), code)
}

func (r *Renderer) parseTemplates(fsys fs.FS) error {
	baseContent, err := fs.ReadFile(fsys, baseTemplate)
	if err != nil {
		return fmt.Errorf("failed to read base template: %w", err)
	}

	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || p == baseTemplate || path.Ext(p) != ".html" {
			return nil
		}

		pageContent, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", p, err)
		}

		tmpl, err := template.New("base").Funcs(r.funcMap).Parse(string(baseContent))
		if err != nil {
			return fmt.Errorf("failed to parse base template for %s: %w", p, err)
		}
		if tmpl, err = tmpl.Parse(string(pageContent)); err != nil {
			return fmt.Errorf("failed to parse template %s: %w", p, err)
		}

		r.mu.Lock()
		r.templates[p] = tmpl
		r.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	if len(r.templates) == 0 {
		return fmt.Errorf("no page templates found")
	}
	return nil
}

func createFuncMap() template.FuncMap {
	return template.FuncMap{
		"formatTime": formatTime,
		"truncate":   truncate,
		"preview":    notes.ContentPreview,
		"markdown":   renderMarkdown,
		"tagSlug":    tagSlug,
		"add":        add,
		"sub":        sub,
	}
}

// formatTime formats a time as "Jan 2, 2006".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

// truncate cuts s to n characters, adding "..." if anything was cut.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// renderMarkdown converts note content to sanitized HTML.
func renderMarkdown(s string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(s))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	out := markdown.Render(doc, renderer)

	return template.HTML(bluemonday.UGCPolicy().SanitizeBytes(out))
}

// tagSlug is the filter route segment for a tag; "" is the unfiltered sentinel.
func tagSlug(tag string) string {
	if strings.TrimSpace(tag) == "" {
		return notes.AllTagsSentinel
	}
	return tag
}

func add(a, b int) int { return a + b }

func sub(a, b int) int { return a - b }
