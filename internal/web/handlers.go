package web

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/hydrate"
	"github.com/kuitang/notedeck/internal/mutation"
	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/obs"
	"github.com/kuitang/notedeck/internal/query"
)

const maxFormBytes = 16 << 10

// Handler serves the web UI pages.
type Handler struct {
	renderer *Renderer
	bridge   *hydrate.Bridge
	creator  notesapi.Creator
}

// NewHandler creates a web handler. Reads go through bridge, writes through creator.
func NewHandler(renderer *Renderer, bridge *hydrate.Bridge, creator notesapi.Creator) *Handler {
	return &Handler{renderer: renderer, bridge: bridge, creator: creator}
}

// RegisterRoutes registers all web UI routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.HandleIndex)
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	mux.HandleFunc("GET /notes/filter/{slug...}", h.HandleNotesList)
	mux.HandleFunc("GET /notes/new", h.HandleNewNotePage)
	mux.HandleFunc("POST /notes", h.HandleCreateNote)
	mux.HandleFunc("GET /notes/{id}", h.HandleViewNote)
}

// Routes returns the UI routes wrapped in request correlation and access logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("web", mux))
}

// PageData contains common data passed to all templates.
type PageData struct {
	Title        string
	ActiveTag    string // "" on unfiltered pages
	Tags         []notes.Tag
	FlashMessage string
	FlashType    string // "success", "error", "info"
	State        template.JS
}

// NotesListData contains data for the notes list page.
type NotesListData struct {
	PageData
	Notes          []notes.Note
	Page           int
	TotalPages     int
	ShowPagination bool
	NotFound       bool
}

// NoteViewData contains data for the note detail page.
type NoteViewData struct {
	PageData
	Note *notes.Note
}

// NewNoteData contains data for the create form.
type NewNoteData struct {
	PageData
	Draft  notes.Draft
	Errors notes.FieldErrors
}

// ErrorPageData contains data for the error page.
type ErrorPageData struct {
	PageData
	Status    int
	ErrorCode string
	Message   string
}

func basePage(title, tag string) PageData {
	return PageData{Title: title, ActiveTag: tag, Tags: notes.Tags()}
}

// HandleIndex handles GET / by sending the visitor to the unfiltered list.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/notes/filter/"+notes.AllTagsSentinel, http.StatusFound)
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// HandleNotesList handles GET /notes/filter/{slug...}. The first page for the
// route's tag is prefetched and embedded; when the prefetch fails the page
// still renders with an empty snapshot and the client fetches on its own.
func (h *Handler) HandleNotesList(w http.ResponseWriter, r *http.Request) {
	var slug []string
	if raw := strings.Trim(r.PathValue("slug"), "/"); raw != "" {
		slug = strings.Split(raw, "/")
	}

	page := h.bridge.PrefetchList(r.Context(), slug)

	title := "All notes"
	if page.Tag != "" {
		title = page.Tag
	}
	data := NotesListData{
		PageData: basePage(title, page.Tag),
		Page:     page.Query.Page,
	}
	data.State = h.embed(r, page.Snapshot)

	if page.Err != nil {
		data.FlashMessage = "Could not load notes. Retrying from your browser."
		data.FlashType = "error"
	} else if page.Result != nil {
		data.Notes = page.Result.Notes
		data.TotalPages = page.Result.TotalPages
		data.ShowPagination = page.Result.TotalPages > 1
		data.NotFound = len(page.Result.Notes) == 0
	}

	if err := h.renderer.Render(w, http.StatusOK, "notes/list.html", data); err != nil {
		obs.From(r.Context()).Error("render_failed", "pkg", "web", "template", "notes/list.html", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// HandleViewNote handles GET /notes/{id}.
func (h *Handler) HandleViewNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	page := h.bridge.PrefetchNote(r.Context(), id)
	if page.Err != nil {
		if errs.Is(page.Err, errs.NotFound) {
			h.renderer.RenderError(w, http.StatusNotFound, "Note not found")
			return
		}
		h.renderer.RenderError(w, errs.HTTPStatus(errs.CodeOf(page.Err)), "Failed to load note")
		return
	}

	data := NoteViewData{
		PageData: basePage(page.Note.Title, string(page.Note.Tag)),
		Note:     page.Note,
	}
	data.State = h.embed(r, page.Snapshot)

	if err := h.renderer.Render(w, http.StatusOK, "notes/detail.html", data); err != nil {
		obs.From(r.Context()).Error("render_failed", "pkg", "web", "template", "notes/detail.html", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// HandleNewNotePage handles GET /notes/new. A ?tag= parameter preselects the
// category, so the form opened from a filtered list matches that list.
func (h *Handler) HandleNewNotePage(w http.ResponseWriter, r *http.Request) {
	draft := mutation.InitialDraft()
	active := ""
	if t, err := notes.ParseTag(r.URL.Query().Get("tag")); err == nil {
		draft.Tag = t
		active = string(t)
	}
	h.renderForm(w, r, http.StatusOK, NewNoteData{
		PageData: basePage("New note", active),
		Draft:    draft,
	})
}

// HandleCreateNote handles POST /notes. The posted values go through the same
// form rules as the interactive client; a valid draft is submitted to the
// remote service and the browser lands on the list for the note's tag.
func (h *Handler) HandleCreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.renderer.RenderError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	draft := notes.Draft{
		Title:   r.PostFormValue("title"),
		Content: r.PostFormValue("content"),
		Tag:     notes.Tag(strings.TrimSpace(r.PostFormValue("tag"))),
	}
	form := mutation.FormFromDraft(draft)

	var flash string
	// Server pages never read from a long-lived cache, so this one only
	// receives the invalidation a successful submit performs.
	submitter := mutation.NewHandler(h.creator, query.New(query.WithRetry(0, 0, 0)),
		mutation.WithNotifier(mutation.NotifierFunc(func(msg string) { flash = msg })),
	)

	note, err := submitter.Submit(r.Context(), form)
	if err == nil {
		http.Redirect(w, r, "/notes/filter/"+url.PathEscape(string(note.Tag)), http.StatusFound)
		return
	}

	data := NewNoteData{
		PageData: basePage("New note", ""),
		Draft:    form.Values(),
		Errors:   form.VisibleErrors(),
	}
	status := http.StatusUnprocessableEntity

	var fields notes.FieldErrors
	switch {
	case errors.As(err, &fields):
		data.Errors = fields
	case errs.Is(err, errs.InvalidArgument):
		data.FlashMessage = errs.MessageOf(err)
		data.FlashType = "error"
	default:
		if flash == "" {
			flash = mutation.FailureMessage
		}
		data.FlashMessage = flash
		data.FlashType = "error"
		status = errs.HTTPStatus(errs.CodeOf(err))
	}
	h.renderForm(w, r, status, data)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, data NewNoteData) {
	if err := h.renderer.Render(w, status, "notes/new.html", data); err != nil {
		obs.From(r.Context()).Error("render_failed", "pkg", "web", "template", "notes/new.html", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// embed serializes snap for the page. A snapshot that cannot be encoded is
// dropped; the client then fetches everything itself.
func (h *Handler) embed(r *http.Request, snap query.Snapshot) template.JS {
	state, err := hydrate.Embed(snap)
	if err != nil {
		obs.From(r.Context()).Error("embed_state_failed", "pkg", "web", "error", err)
		state, _ = hydrate.Embed(query.Snapshot{})
	}
	return state
}
