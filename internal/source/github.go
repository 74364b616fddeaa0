package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"techradar/internal/config"
)

const defaultTrendingLimit = 20

// gitHubTrendingAdapter scrapes the GitHub trending page. There is no
// official API for it, so repository rows are extracted from the HTML.
type gitHubTrendingAdapter struct {
	desc   config.Source
	client *http.Client
}

func newGitHubTrendingAdapter(desc config.Source, client *http.Client) *gitHubTrendingAdapter {
	return &gitHubTrendingAdapter{desc: desc, client: client}
}

func (a *gitHubTrendingAdapter) ID() string { return a.desc.ID }

func (a *gitHubTrendingAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
	req, err := newRequest(ctx, a.desc.Endpoint)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, a.desc.Endpoint)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing trending page: %w", err)
	}

	limit := limitOr(a.desc, defaultTrendingLimit)
	now := time.Now().UTC()

	var items []RawItem
	doc.Find("article.Box-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if len(items) >= limit {
			return false
		}

		link := row.Find("h2 a").First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return true
		}
		repo := strings.Trim(href, "/")
		// "owner / name" with decorative whitespace in the anchor text
		name := strings.Join(strings.Fields(link.Text()), "")
		if name == "" {
			name = repo
		}

		description := strings.TrimSpace(row.Find("p").First().Text())
		stars := parseStarCount(row.Find(`a[href$="/stargazers"]`).First().Text())

		items = append(items, RawItem{
			SourceID:   a.desc.ID,
			SourceKind: "api",
			Title:      name,
			Body:       description,
			URL:        "https://github.com/" + repo,
			FetchedAt:  now,
			Score:      stars,
		})
		return true
	})

	return items, nil
}

// parseStarCount parses GitHub's star counter text ("12,345" or "1.2k").
func parseStarCount(text string) int {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	if strings.HasSuffix(s, "k") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "k"), 64)
		if err != nil {
			return 0
		}
		return int(f * 1000)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
