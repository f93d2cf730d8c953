package backend

import (
	"context"
	"fmt"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/ratelimit"
	"github.com/kuitang/notedeck/internal/s3client"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	svc := NewService(store)
	var n int
	svc.now = func() time.Time {
		n++
		return epoch.Add(time.Duration(n) * time.Second)
	}
	var ids int
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("note-%03d", ids)
	}
	return svc
}

type fatalHelper interface {
	Helper()
	Fatalf(format string, args ...any)
}

func mustCreate(t fatalHelper, svc *Service, title string, tag notes.Tag) *notes.Note {
	t.Helper()
	n, err := svc.Create(context.Background(), notes.Draft{Title: title, Tag: tag})
	if err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return n
}

func TestList_FiltersSearchesAndOrdersNewestFirst(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	mustCreate(t, svc, "Buy milk", notes.TagShopping)
	mustCreate(t, svc, "Standup", notes.TagMeeting)
	mustCreate(t, svc, "Milkshake recipe", notes.TagPersonal)
	mustCreate(t, svc, "Buy bread", notes.TagShopping)

	ctx := context.Background()
	res, err := svc.List(ctx, notes.ListQuery{Page: 1, Tag: "Shopping"}, 0)
	require.NoError(t, err)
	require.Len(t, res.Notes, 2)
	assert.Equal(t, "Buy bread", res.Notes[0].Title)
	assert.Equal(t, "Buy milk", res.Notes[1].Title)
	assert.Equal(t, 1, res.TotalPages)

	res, err = svc.List(ctx, notes.ListQuery{Page: 1, Search: "MILK"}, 0)
	require.NoError(t, err)
	require.Len(t, res.Notes, 2)
	assert.Equal(t, "Milkshake recipe", res.Notes[0].Title)

	res, err = svc.List(ctx, notes.ListQuery{Page: 1, Search: "milk", Tag: "Personal"}, 0)
	require.NoError(t, err)
	require.Len(t, res.Notes, 1)

	res, err = svc.List(ctx, notes.ListQuery{Page: 1, Search: "nothing matches"}, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Notes)
	assert.NotNil(t, res.Notes)
	assert.Zero(t, res.TotalPages)
}

func TestList_RejectsUnknownTag(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	_, err := svc.List(context.Background(), notes.ListQuery{Page: 1, Tag: "Errands"}, 0)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestList_PagePastTheEndIsEmpty(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	for i := 0; i < 13; i++ {
		mustCreate(t, svc, fmt.Sprintf("note %02d", i), notes.TagWork)
	}

	for _, page := range []int{3, math.MaxInt/notes.PerPage + 2, math.MaxInt/(2*notes.PerPage) + 1, math.MaxInt} {
		res, err := svc.List(context.Background(), notes.ListQuery{Page: page}, 0)
		require.NoError(t, err, "page %d", page)
		assert.Empty(t, res.Notes, "page %d", page)
		assert.Equal(t, 2, res.TotalPages, "page %d", page)
	}
}

func TestCreate_ValidatesDraft(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	_, err := svc.Create(context.Background(), notes.Draft{Title: "ab", Tag: notes.TagTodo})
	require.True(t, errs.Is(err, errs.InvalidArgument))
	var fields notes.FieldErrors
	require.ErrorAs(t, err, &fields)
	assert.Equal(t, "min length 3 symbols", fields["title"])
}

func TestGet_UnknownIDIsNotFound(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	_, err := svc.Get(context.Background(), "nope")
	assert.True(t, errs.Is(err, errs.NotFound))
}

// =============================================================================
// Property: pages partition the matching notes and totalPages = ceil(n/perPage)
// =============================================================================

func testList_PagesPartitionMatches(t *rapid.T) {
	svc := newTestService(NewMemoryStore())
	count := rapid.IntRange(0, 40).Draw(t, "count")
	perPage := rapid.IntRange(1, 15).Draw(t, "perPage")
	for i := 0; i < count; i++ {
		tag := rapid.SampledFrom(notes.Tags()).Draw(t, "tag")
		mustCreate(t, svc, fmt.Sprintf("note number %d", i), tag)
	}

	first, err := svc.List(context.Background(), notes.ListQuery{Page: 1}, perPage)
	if err != nil {
		t.Fatal(err)
	}
	wantPages := (count + perPage - 1) / perPage
	if first.TotalPages != wantPages {
		t.Fatalf("totalPages = %d, want %d", first.TotalPages, wantPages)
	}

	seen := map[string]bool{}
	for page := 1; page <= wantPages+1; page++ {
		res, err := svc.List(context.Background(), notes.ListQuery{Page: page}, perPage)
		if err != nil {
			t.Fatal(err)
		}
		if page > wantPages && len(res.Notes) != 0 {
			t.Fatalf("page %d past the end returned %d notes", page, len(res.Notes))
		}
		for _, n := range res.Notes {
			if seen[n.ID] {
				t.Fatalf("note %s appears on two pages", n.ID)
			}
			seen[n.ID] = true
		}
	}
	if len(seen) != count {
		t.Fatalf("pages cover %d notes, want %d", len(seen), count)
	}
}

func TestList_PagesPartitionMatches(t *testing.T) {
	rapid.Check(t, testList_PagesPartitionMatches)
}

func FuzzList_PagesPartitionMatches(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testList_PagesPartitionMatches))
}

// =============================================================================
// Object store and HTTP round trip
// =============================================================================

func TestObjectStore_RoundTrip(t *testing.T) {
	store := NewObjectStore(s3client.TestClient(t, "notes"))
	svc := newTestService(store)
	created := mustCreate(t, svc, "Stored in S3", notes.TagWork)

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	res, err := svc.List(context.Background(), notes.ListQuery{Page: 1, Tag: "Work"}, 0)
	require.NoError(t, err)
	require.Len(t, res.Notes, 1)

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestHandler_ServesRemoteContract(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	require.NoError(t, svc.Seed(context.Background(), SampleDrafts()))

	srv := httptest.NewServer(NewHandler(svc, nil).Routes())
	t.Cleanup(srv.Close)
	client, err := notesapi.New(notesapi.Config{BaseURL: srv.URL, RPS: 1000, Burst: 1000})
	require.NoError(t, err)
	ctx := context.Background()

	page1, err := client.List(ctx, notes.ListQuery{Page: 1})
	require.NoError(t, err)
	assert.Len(t, page1.Notes, notes.PerPage)
	assert.Equal(t, 2, page1.TotalPages)

	page2, err := client.List(ctx, notes.ListQuery{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page2.Notes, len(SampleDrafts())-notes.PerPage)

	one, err := client.Get(ctx, page1.Notes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, page1.Notes[0].Title, one.Title)

	_, err = client.Get(ctx, "does-not-exist")
	assert.True(t, errs.Is(err, errs.NotFound))

	created, err := client.Create(ctx, notes.Draft{Title: "New from client", Content: "hi", Tag: notes.TagWork})
	require.NoError(t, err)
	assert.Equal(t, notes.TagWork, created.Tag)

	_, err = client.Create(ctx, notes.Draft{Title: "x", Tag: "Errands"})
	require.True(t, errs.Is(err, errs.InvalidArgument))
	var fields notes.FieldErrors
	require.ErrorAs(t, err, &fields)
	assert.Equal(t, "invalid category", fields["tag"])
}

func TestHandler_ThrottledClientGetsUnavailable(t *testing.T) {
	rl := ratelimit.NewRateLimiter(ratelimit.Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	srv := httptest.NewServer(NewHandler(newTestService(NewMemoryStore()), rl).Routes())
	t.Cleanup(srv.Close)

	client, err := notesapi.New(notesapi.Config{BaseURL: srv.URL, RPS: 1000, Burst: 1000})
	require.NoError(t, err)
	_, err = client.List(context.Background(), notes.ListQuery{Page: 1})
	require.NoError(t, err)
	_, err = client.List(context.Background(), notes.ListQuery{Page: 1})
	require.Error(t, err)
	assert.Equal(t, errs.Unavailable, errs.CodeOf(err))
}

func TestHandler_RejectsBadPage(t *testing.T) {
	srv := httptest.NewServer(NewHandler(newTestService(NewMemoryStore()), nil).Routes())
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/notes?page=zero")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)
}
