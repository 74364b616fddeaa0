// Package enrich backfills article bodies for canonical items whose
// sources supplied none, via HTTP fetch and readability extraction.
package enrich

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"techradar/internal/dedup"
)

const minExtractedLength = 100

// Result holds the results of a backfill pass.
type Result struct {
	Fetched int
	Skipped int
	Failed  int
}

// Enricher fetches full article text for items missing a body. Failures
// never escalate; an item simply keeps its empty body.
type Enricher struct {
	client *http.Client
}

func New(timeout time.Duration) *Enricher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Enricher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Backfill fills empty bodies in place. Once a domain fails it is
// skipped for the rest of the pass.
func (e *Enricher) Backfill(ctx context.Context, items []dedup.CanonicalItem) *Result {
	result := &Result{}
	failedDomains := make(map[string]struct{})

	for i := range items {
		if items[i].Body != "" || items[i].PrimaryURL == "" {
			result.Skipped++
			continue
		}
		if ctx.Err() != nil {
			result.Failed++
			continue
		}

		domain := hostOf(items[i].PrimaryURL)
		if _, failed := failedDomains[domain]; failed {
			result.Failed++
			continue
		}

		text, err := e.fetchText(ctx, items[i].PrimaryURL)
		if err != nil {
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Printf("Content fetch failed for %s, skipping remaining from %s", items[i].PrimaryURL, domain)
			continue
		}
		if text == "" {
			result.Failed++
			continue
		}

		items[i].Body = text
		result.Fetched++
	}

	log.Printf("Content backfill: %d fetched, %d skipped, %d failed", result.Fetched, result.Skipped, result.Failed)
	return result
}

func (e *Enricher) fetchText(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "techradar/1.0 (news aggregator)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > minExtractedLength {
		return text, nil
	}
	return "", nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}
