package web_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/notedeck/internal/backend"
	"github.com/kuitang/notedeck/internal/hydrate"
	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/query"
	"github.com/kuitang/notedeck/internal/web"
)

type webTestEnv struct {
	server  *httptest.Server
	service *backend.Service
	client  *http.Client
}

// setupWebTestEnv starts the mock notes service and the web UI in front of it.
func setupWebTestEnv(t *testing.T, seed bool) *webTestEnv {
	t.Helper()

	svc := backend.NewService(backend.NewMemoryStore())
	if seed {
		require.NoError(t, svc.Seed(context.Background(), backend.SampleDrafts()))
	}
	api := httptest.NewServer(backend.NewHandler(svc, nil).Routes())
	t.Cleanup(api.Close)

	return newWebServer(t, api.URL, svc)
}

func newWebServer(t *testing.T, apiURL string, svc *backend.Service) *webTestEnv {
	t.Helper()

	remote, err := notesapi.New(notesapi.Config{BaseURL: apiURL, RPS: 1000, Burst: 1000, Timeout: 2 * time.Second})
	require.NoError(t, err)
	renderer, err := web.NewRenderer()
	require.NoError(t, err)

	h := web.NewHandler(renderer, hydrate.NewBridge(remote), remote)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &webTestEnv{
		server:  srv,
		service: svc,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (env *webTestEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := env.client.Get(env.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (env *webTestEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := env.client.PostForm(env.server.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestIndex_RedirectsToUnfilteredList(t *testing.T) {
	env := setupWebTestEnv(t, false)
	resp, _ := env.get(t, "/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/notes/filter/All", resp.Header.Get("Location"))
}

func TestHealthz(t *testing.T) {
	env := setupWebTestEnv(t, false)
	resp, body := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestNotesList_EmbedsSnapshotThatSeedsClientCache(t *testing.T) {
	env := setupWebTestEnv(t, true)
	resp, body := env.get(t, "/notes/filter/All")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 12, strings.Count(body, `class="note-card"`))
	assert.Contains(t, body, "Page 1 of 2")
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	snap, err := hydrate.Extract(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, snap.Queries, 1)

	cache := query.New()
	n, err := hydrate.Seed(cache, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry := cache.Read(notesapi.ListKey(notes.ListQuery{Page: 1}))
	require.NotNil(t, entry)
	assert.True(t, cache.Fresh(entry))
	res, ok := notesapi.ListFromEntry(entry)
	require.True(t, ok)
	assert.Len(t, res.Notes, 12)
	assert.Equal(t, 2, res.TotalPages)
}

func TestNotesList_TagRouteFiltersAndHidesPagination(t *testing.T) {
	env := setupWebTestEnv(t, true)
	resp, body := env.get(t, "/notes/filter/Work")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 2, strings.Count(body, `class="note-card"`))
	assert.Contains(t, body, "Weekly planning")
	assert.Contains(t, body, "Quarterly report")
	assert.NotContains(t, body, `class="pagination"`)

	snap, err := hydrate.Extract(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, snap.Queries, 1)
	assert.Equal(t, query.Key{"notes", "1", "", "Work"}, snap.Queries[0].Key)
}

func TestNotesList_EmptyResultShowsNotFound(t *testing.T) {
	env := setupWebTestEnv(t, false)
	_, body := env.get(t, "/notes/filter/All")
	assert.Contains(t, body, "Tasks not found")
	assert.NotContains(t, body, `class="pagination"`)
}

func TestNotesList_RemoteFailureStillRendersWithEmptySnapshot(t *testing.T) {
	env := setupWebTestEnv(t, true)

	// The mock service rejects tags outside the closed set.
	resp, body := env.get(t, "/notes/filter/Bogus")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Could not load notes")

	snap, err := hydrate.Extract(strings.NewReader(body))
	require.NoError(t, err)
	assert.Empty(t, snap.Queries)
}

func TestViewNote_RendersSanitizedMarkdown(t *testing.T) {
	env := setupWebTestEnv(t, false)
	n, err := env.service.Create(context.Background(), notes.Draft{
		Title:   "Markdown note",
		Content: "**bold** <script>alert(1)</script>",
		Tag:     notes.TagPersonal,
	})
	require.NoError(t, err)

	resp, body := env.get(t, "/notes/"+n.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<strong>bold</strong>")
	assert.NotContains(t, body, "<script>alert(1)</script>")

	snap, err := hydrate.Extract(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, snap.Queries, 1)
	assert.Equal(t, query.Key{"note", n.ID}, snap.Queries[0].Key)
}

func TestViewNote_MissingIsNotFound(t *testing.T) {
	env := setupWebTestEnv(t, false)
	resp, body := env.get(t, "/notes/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Note not found")
}

func TestNewNotePage_PreselectsTag(t *testing.T) {
	env := setupWebTestEnv(t, false)
	resp, body := env.get(t, "/notes/new?tag=Meeting")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<option value="Meeting" selected>`)
}

func TestCreateNote_RedirectsToTagList(t *testing.T) {
	env := setupWebTestEnv(t, false)
	resp, _ := env.postForm(t, "/notes", url.Values{
		"title":   {"Buy milk"},
		"content": {"two litres"},
		"tag":     {"Shopping"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/notes/filter/Shopping", resp.Header.Get("Location"))

	res, err := env.service.List(context.Background(), notes.ListQuery{Page: 1, Tag: "Shopping"}, 0)
	require.NoError(t, err)
	require.Len(t, res.Notes, 1)
	assert.Equal(t, "Buy milk", res.Notes[0].Title)
}

func TestCreateNote_InvalidDraftRerendersWithFieldErrors(t *testing.T) {
	env := setupWebTestEnv(t, false)
	resp, body := env.postForm(t, "/notes", url.Values{
		"title": {"ab"},
		"tag":   {"Work"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, `data-field="title"`)
	assert.Contains(t, body, `value="ab"`)

	res, err := env.service.List(context.Background(), notes.ListQuery{Page: 1}, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Notes, "an invalid draft never reaches the service")
}

func TestCreateNote_RemoteFailureShowsNotification(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	apiURL := down.URL
	down.Close()
	env := newWebServer(t, apiURL, nil)

	resp, body := env.postForm(t, "/notes", url.Values{
		"title":   {"Buy milk"},
		"content": {""},
		"tag":     {"Shopping"},
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "something went wrong")
	assert.Contains(t, body, `value="Buy milk"`, "the form keeps what was typed")
}

func TestCreateNote_RejectsOversizedBody(t *testing.T) {
	env := setupWebTestEnv(t, false)
	big := bytes.Repeat([]byte("a"), 32<<10)
	resp, err := env.client.Post(env.server.URL+"/notes", "application/x-www-form-urlencoded",
		strings.NewReader("title="+string(big)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
