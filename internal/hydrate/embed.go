package hydrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/query"
)

// StateElementID is the id of the script element carrying the snapshot.
const StateElementID = "notedeck-state"

// ErrNoState is returned when a page carries no snapshot element.
var ErrNoState = errors.New("page has no embedded state")

// Embed encodes snap for a <script type="application/json"> element.
// encoding/json escapes <, > and &, so the payload cannot close the element.
func Embed(snap query.Snapshot) (template.JS, error) {
	if snap.Queries == nil {
		snap.Queries = []query.DehydratedQuery{}
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return template.JS(raw), nil
}

// Extract finds the snapshot element in an HTML document and decodes it.
func Extract(r io.Reader) (query.Snapshot, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return query.Snapshot{}, fmt.Errorf("failed to parse page: %w", err)
	}

	node := findStateNode(doc)
	if node == nil {
		return query.Snapshot{}, ErrNoState
	}
	var text strings.Builder
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			text.WriteString(c.Data)
		}
	}

	var snap query.Snapshot
	if err := json.Unmarshal([]byte(text.String()), &snap); err != nil {
		return query.Snapshot{}, fmt.Errorf("failed to decode embedded state: %w", err)
	}
	return snap, nil
}

func findStateNode(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Script {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == StateElementID {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findStateNode(c); found != nil {
			return found
		}
	}
	return nil
}

// Seed hydrates cache from snap. Entries the cache already holds with data
// at least as new are kept.
func Seed(cache *query.Cache, snap query.Snapshot) (int, error) {
	return cache.Hydrate(snap, notesapi.Decode)
}

// Load fetches a rendered page and extracts its snapshot.
func Load(ctx context.Context, client *http.Client, pageURL string) (query.Snapshot, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return query.Snapshot{}, fmt.Errorf("invalid page URL: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return query.Snapshot{}, errs.Wrap(errs.Unavailable, "page unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return query.Snapshot{}, errs.Wrap(errs.CodeForStatus(resp.StatusCode), "page request failed",
			fmt.Errorf("GET %s returned %d", pageURL, resp.StatusCode))
	}
	return Extract(resp.Body)
}
