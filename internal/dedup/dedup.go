// Package dedup collapses near-duplicate stories reported by multiple
// sources into single canonical records.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"
	"unicode"

	"techradar/internal/source"
)

// DefaultTitleSimilarity is the token-overlap threshold above which two
// normalized titles are considered the same story.
const DefaultTitleSimilarity = 0.8

// CanonicalItem is one story after cross-source duplicate collapsing.
type CanonicalItem struct {
	ID          string // stable hash of the first-seen normalized title+url
	Title       string
	Body        string
	PrimaryURL  string
	SourceRefs  []string // source IDs in discovery order, no duplicates
	PublishedAt time.Time // earliest known
	FetchedAt   time.Time // latest fetch that touched this record
	Score       int       // strongest engagement signal among merged items
	Comments    int
}

// Deduplicator groups raw items by exact URL or fuzzy title match.
type Deduplicator struct {
	threshold float64
}

func New(threshold float64) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultTitleSimilarity
	}
	return &Deduplicator{threshold: threshold}
}

// Collapse merges the batch into canonical items in a single pass.
// Two items merge iff their URLs match exactly or their normalized-title
// similarity reaches the threshold. Deterministic and idempotent for a
// given input order.
func (d *Deduplicator) Collapse(items []source.RawItem) []CanonicalItem {
	var canonicals []*CanonicalItem
	byURL := make(map[string]*CanonicalItem)
	normTitles := make(map[*CanonicalItem][]string) // normalized title tokens per canonical

	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		url := strings.TrimSpace(item.URL)
		tokens := tokenize(normalizeTitle(title))

		var match *CanonicalItem
		if url != "" {
			match = byURL[url]
		}
		if match == nil && len(tokens) > 0 {
			for _, c := range canonicals {
				if similarity(tokens, normTitles[c]) >= d.threshold {
					match = c
					break
				}
			}
		}

		if match == nil {
			c := &CanonicalItem{
				ID:          canonicalID(normalizeTitle(title), url),
				Title:       title,
				Body:        item.Body,
				PrimaryURL:  url,
				SourceRefs:  []string{item.SourceID},
				PublishedAt: item.PublishedAt,
				FetchedAt:   item.FetchedAt,
				Score:       item.Score,
				Comments:    item.Comments,
			}
			canonicals = append(canonicals, c)
			normTitles[c] = tokens
			if url != "" {
				byURL[url] = c
			}
			continue
		}

		merge(match, item)
		if url != "" && byURL[url] == nil {
			byURL[url] = match
		}
	}

	out := make([]CanonicalItem, len(canonicals))
	for i, c := range canonicals {
		out[i] = *c
	}
	if dupes := len(items) - len(out); dupes > 0 {
		log.Printf("Collapsed %d raw items into %d stories (%d duplicates)", len(items), len(out), dupes)
	}
	return out
}

// merge folds a duplicate raw item into its canonical record.
func merge(c *CanonicalItem, item source.RawItem) {
	known := false
	for _, ref := range c.SourceRefs {
		if ref == item.SourceID {
			known = true
			break
		}
	}
	if !known {
		c.SourceRefs = append(c.SourceRefs, item.SourceID)
	}

	// Earliest publication wins; a zero time never overrides a known one.
	if !item.PublishedAt.IsZero() && (c.PublishedAt.IsZero() || item.PublishedAt.Before(c.PublishedAt)) {
		c.PublishedAt = item.PublishedAt
	}
	if item.FetchedAt.After(c.FetchedAt) {
		c.FetchedAt = item.FetchedAt
	}
	// Prefer the longest non-empty body among merged items.
	if len(item.Body) > len(c.Body) {
		c.Body = item.Body
	}
	if item.Score > c.Score {
		c.Score = item.Score
	}
	if item.Comments > c.Comments {
		c.Comments = item.Comments
	}
}

// canonicalID derives a stable identifier from the first-seen member.
func canonicalID(normalizedTitle, url string) string {
	sum := sha256.Sum256([]byte(normalizedTitle + "\n" + url))
	return hex.EncodeToString(sum[:8])
}

// normalizeTitle case-folds, strips punctuation, and collapses whitespace.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenize(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

// similarity is the Jaccard overlap of two token sets.
func similarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	both := make(map[string]struct{}, len(b))
	intersection := 0
	for _, t := range b {
		if _, dup := both[t]; dup {
			continue
		}
		both[t] = struct{}{}
		if _, ok := set[t]; ok {
			intersection++
		}
	}
	union := len(set) + len(both) - intersection
	return float64(intersection) / float64(union)
}
