package source

import (
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"techradar/internal/config"
)

const defaultFeedLimit = 10

// feedAdapter fetches and normalizes one RSS/Atom feed.
type feedAdapter struct {
	desc   config.Source
	parser *gofeed.Parser
}

func newFeedAdapter(desc config.Source) *feedAdapter {
	return &feedAdapter{desc: desc, parser: gofeed.NewParser()}
}

func (a *feedAdapter) ID() string { return a.desc.ID }

func (a *feedAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
	feed, err := a.parser.ParseURLWithContext(a.desc.Endpoint, ctx)
	if err != nil {
		return nil, err
	}

	limit := limitOr(a.desc, defaultFeedLimit)
	now := time.Now().UTC()

	var items []RawItem
	for _, item := range feed.Items {
		if len(items) >= limit {
			break
		}

		itemURL := item.Link
		if itemURL == "" {
			itemURL = item.GUID
		}
		// Identity-less items flow through; the orchestrator counts
		// and logs the discards centrally.
		title := strings.TrimSpace(item.Title)

		var published time.Time
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC()
		}

		var body string
		if item.Content != "" {
			body = stripHTML(item.Content)
		} else if item.Description != "" {
			body = stripHTML(item.Description)
		}

		items = append(items, RawItem{
			SourceID:    a.desc.ID,
			SourceKind:  "feed",
			Title:       title,
			Body:        body,
			URL:         itemURL,
			PublishedAt: published,
			FetchedAt:   now,
		})
	}

	return items, nil
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	// Decode common entities
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
