package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"techradar/internal/config"
)

const defaultHNLimit = 30

// hackerNewsAdapter fetches top stories from the Hacker News Firebase API.
type hackerNewsAdapter struct {
	desc   config.Source
	client *http.Client
}

func newHackerNewsAdapter(desc config.Source, client *http.Client) *hackerNewsAdapter {
	return &hackerNewsAdapter{desc: desc, client: client}
}

func (a *hackerNewsAdapter) ID() string { return a.desc.ID }

func (a *hackerNewsAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
	base := strings.TrimRight(a.desc.Endpoint, "/")

	var ids []int64
	if err := a.getJSON(ctx, base+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("top stories: %w", err)
	}

	limit := limitOr(a.desc, defaultHNLimit)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	now := time.Now().UTC()
	var items []RawItem
	for _, id := range ids {
		var story struct {
			Type        string `json:"type"`
			Title       string `json:"title"`
			URL         string `json:"url"`
			Text        string `json:"text"`
			Score       int    `json:"score"`
			Descendants int    `json:"descendants"`
			Time        int64  `json:"time"`
		}
		if err := a.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", base, id), &story); err != nil {
			// One broken item should not sink the source; only a
			// cancelled context does.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if story.Type != "story" {
			continue
		}

		var published time.Time
		if story.Time > 0 {
			published = time.Unix(story.Time, 0).UTC()
		}

		items = append(items, RawItem{
			SourceID:    a.desc.ID,
			SourceKind:  "api",
			Title:       strings.TrimSpace(story.Title),
			Body:        stripHTML(story.Text),
			URL:         story.URL,
			PublishedAt: published,
			FetchedAt:   now,
			Score:       story.Score,
			Comments:    story.Descendants,
		})
	}

	return items, nil
}

func (a *hackerNewsAdapter) getJSON(ctx context.Context, url string, v any) error {
	req, err := newRequest(ctx, url)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
