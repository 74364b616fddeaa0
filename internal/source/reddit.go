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

const defaultRedditLimit = 20

// redditAdapter fetches a subreddit listing via Reddit's public JSON API.
type redditAdapter struct {
	desc   config.Source
	client *http.Client
}

func newRedditAdapter(desc config.Source, client *http.Client) *redditAdapter {
	return &redditAdapter{desc: desc, client: client}
}

func (a *redditAdapter) ID() string { return a.desc.ID }

func (a *redditAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
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

	var listing struct {
		Data struct {
			Children []struct {
				Data struct {
					Title       string  `json:"title"`
					URL         string  `json:"url"`
					SelfText    string  `json:"selftext"`
					Score       int     `json:"score"`
					NumComments int     `json:"num_comments"`
					CreatedUTC  float64 `json:"created_utc"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}

	limit := limitOr(a.desc, defaultRedditLimit)
	now := time.Now().UTC()

	var items []RawItem
	for _, child := range listing.Data.Children {
		if len(items) >= limit {
			break
		}
		post := child.Data

		var published time.Time
		if post.CreatedUTC > 0 {
			published = time.Unix(int64(post.CreatedUTC), 0).UTC()
		}

		items = append(items, RawItem{
			SourceID:    a.desc.ID,
			SourceKind:  "api",
			Title:       strings.TrimSpace(post.Title),
			Body:        strings.TrimSpace(post.SelfText),
			URL:         post.URL,
			PublishedAt: published,
			FetchedAt:   now,
			Score:       post.Score,
			Comments:    post.NumComments,
		})
	}

	return items, nil
}
