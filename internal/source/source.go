package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"techradar/internal/config"
)

// RawItem is one fetched story before deduplication.
// Body is always a plain string; adapters map absent text to "".
type RawItem struct {
	SourceID    string
	SourceKind  string // "feed" or "api"
	Title       string
	Body        string
	URL         string
	PublishedAt time.Time // zero when the source supplied none
	FetchedAt   time.Time
	Score       int // upvotes / stars, 0 when the source has no engagement signal
	Comments    int
}

// Valid reports whether the item carries enough identity to process.
// Items with neither title nor URL are dropped at ingestion.
func (r RawItem) Valid() bool {
	return strings.TrimSpace(r.Title) != "" || strings.TrimSpace(r.URL) != ""
}

// Adapter fetches raw items from one external source. Implementations
// return a source-local error on failure and never panic; they touch no
// shared state beyond their own network calls.
type Adapter interface {
	ID() string
	Fetch(ctx context.Context) ([]RawItem, error)
}

// New builds the adapter for a source descriptor. API adapters are
// selected by endpoint host; unknown API endpoints are a config error.
func New(desc config.Source, client *http.Client) (Adapter, error) {
	if client == nil {
		client = http.DefaultClient
	}

	switch desc.Kind {
	case "feed":
		return newFeedAdapter(desc), nil
	case "api":
		endpoint := strings.ToLower(desc.Endpoint)
		switch {
		case strings.Contains(endpoint, "hacker-news.firebaseio.com"):
			return newHackerNewsAdapter(desc, client), nil
		case strings.Contains(endpoint, "reddit.com"):
			return newRedditAdapter(desc, client), nil
		case strings.Contains(endpoint, "github.com/trending"):
			return newGitHubTrendingAdapter(desc, client), nil
		default:
			return nil, fmt.Errorf("source %q: no API adapter for endpoint %s", desc.ID, desc.Endpoint)
		}
	default:
		return nil, fmt.Errorf("source %q: unknown kind %q", desc.ID, desc.Kind)
	}
}

const userAgent = "techradar/1.0 (news aggregator)"

func newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// limitOr returns the descriptor's item limit, or fallback when unset.
func limitOr(desc config.Source, fallback int) int {
	if desc.Limit > 0 {
		return desc.Limit
	}
	return fallback
}
