// Package notesapi is the HTTP client for the Remote Notes Service.
package notesapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/logutil"
	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/obs"
)

const (
	DefaultRPS     = 10
	DefaultBurst   = 20
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 4 << 10
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	RPS        float64       // outgoing requests per second
	Burst      int           // burst size for the throttle
	Timeout    time.Duration // per request, including the body
	HTTPClient *http.Client  // overrides the default client; Timeout is ignored then
}

// Client talks to the remote notes service. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("notes service base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid notes service URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("notes service URL must be http or https, got %q", cfg.BaseURL)
	}

	if cfg.RPS <= 0 {
		cfg.RPS = DefaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		base:    base,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		log:     obs.Pkg("notesapi"),
	}, nil
}

// List fetches one page of notes. Empty search and tag are left out of the
// request so the service applies no filter.
func (c *Client) List(ctx context.Context, q notes.ListQuery) (*notes.ListResult, error) {
	q = q.Normalize()
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("perPage", strconv.Itoa(notes.PerPage))
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Tag != "" {
		params.Set("tag", q.Tag)
	}

	var out notes.ListResult
	if err := c.do(ctx, http.MethodGet, []string{"notes"}, params, nil, &out); err != nil {
		return nil, err
	}
	if out.Notes == nil {
		out.Notes = []notes.Note{}
	}
	if out.TotalPages < 0 {
		out.TotalPages = 0
	}
	return &out, nil
}

// Get fetches a single note.
func (c *Client) Get(ctx context.Context, id string) (*notes.Note, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errs.New(errs.InvalidArgument, "note id is required")
	}
	var out notes.Note
	if err := c.do(ctx, http.MethodGet, []string{"notes", id}, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create submits a draft and returns the stored note.
func (c *Client) Create(ctx context.Context, d notes.Draft) (*notes.Note, error) {
	var out notes.Note
	if err := c.do(ctx, http.MethodPost, []string{"notes"}, nil, d, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (c *Client) do(ctx context.Context, method string, path []string, params url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.Wrap(errs.Unavailable, "notes service request throttled", err)
	}

	u := c.base.JoinPath(path...)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.Internal, "failed to encode request", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := obs.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	log := obs.From(ctx).With("pkg", "notesapi")
	log.Debug("notesapi_request", "method", method, "url", logutil.FormatURLForLog(u), "headers", logutil.FormatHeadersForLog(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errs.Wrap(errs.Unavailable, "notes service request cancelled", ctxErr)
		}
		log.Warn("notesapi_transport_error", "method", method, "url", logutil.FormatURLForLog(u), "error", err)
		return errs.Wrap(errs.Unavailable, "notes service unreachable", err)
	}
	defer resp.Body.Close()

	log.Debug("notesapi_response", "method", method, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn("notesapi_error_status",
			"method", method,
			"url", logutil.FormatURLForLog(u),
			"status", resp.StatusCode,
			"body", logutil.TruncateForLog(string(raw), 200),
		)
		return statusError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(errs.Internal, "malformed notes service response", err)
	}
	return nil
}

func statusError(status int, raw []byte) error {
	code := errs.CodeForStatus(status)
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	cause := fmt.Errorf("notes service returned %d", status)
	switch code {
	case errs.NotFound:
		return errs.Wrap(code, "note not found", cause)
	case errs.InvalidArgument:
		if len(body.Fields) > 0 {
			return errs.Wrap(code, "invalid note", notes.FieldErrors(body.Fields))
		}
		if body.Error != "" {
			return errs.Wrap(code, body.Error, cause)
		}
		return errs.Wrap(code, "invalid request", cause)
	case errs.Unavailable:
		return errs.Wrap(code, "notes service unavailable", cause)
	default:
		return errs.Wrap(code, "unexpected notes service response", cause)
	}
}
