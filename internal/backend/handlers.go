package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/obs"
	"github.com/kuitang/notedeck/internal/ratelimit"
)

// Handler exposes the service over the remote notes HTTP contract.
type Handler struct {
	svc     *Service
	limiter *ratelimit.RateLimiter
}

// NewHandler creates a handler. A nil limiter disables throttling.
func NewHandler(svc *Service, limiter *ratelimit.RateLimiter) *Handler {
	return &Handler{svc: svc, limiter: limiter}
}

// RegisterRoutes registers the notes endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /notes", h.ListNotes)
	mux.HandleFunc("GET /notes/{id}", h.GetNote)
	mux.HandleFunc("POST /notes", h.CreateNote)
}

// Throttled returns the endpoints behind the rate limiter, for mounting in a
// server that already does request logging.
func (h *Handler) Throttled() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	if h.limiter == nil {
		return mux
	}
	return ratelimit.Middleware(h.limiter, nil)(mux)
}

// Routes returns the throttled endpoints wrapped in request correlation and
// access logging.
func (h *Handler) Routes() http.Handler {
	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("backend", h.Throttled()))
}

// ListNotes handles GET /notes?page=&perPage=&search=&tag=.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := notes.ListQuery{Page: 1, Search: params.Get("search"), Tag: params.Get("tag")}
	perPage := notes.PerPage

	if raw := params.Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, errs.New(errs.InvalidArgument, "page must be a positive integer"))
			return
		}
		q.Page = parsed
	}
	if raw := params.Get("perPage"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, errs.New(errs.InvalidArgument, "perPage must be a positive integer"))
			return
		}
		perPage = parsed
	}

	result, err := h.svc.List(r.Context(), q, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetNote handles GET /notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var d notes.Draft
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&d); err != nil {
		writeError(w, errs.Wrap(errs.InvalidArgument, "invalid JSON", err))
		return
	}

	note, err := h.svc.Create(r.Context(), d)
	if err != nil {
		writeError(w, err)
		return
	}
	obs.From(r.Context()).Info("note_created", "note_id", note.ID, "tag", note.Tag)
	writeJSON(w, http.StatusCreated, note)
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: errs.MessageOf(err)}
	var fields notes.FieldErrors
	if errors.As(err, &fields) {
		resp.Fields = fields
	}
	writeJSON(w, errs.HTTPStatus(errs.CodeOf(err)), resp)
}
