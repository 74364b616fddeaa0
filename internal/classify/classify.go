// Package classify enriches canonical items with category, company, and
// technology tags plus sentiment and impact scores.
package classify

import (
	"sort"
	"strings"
	"time"

	"techradar/internal/config"
	"techradar/internal/dedup"
)

// Uncategorized is the sentinel category for items matching no keyword.
const Uncategorized = "uncategorized"

const maxKeywords = 5

// ScoredItem is a canonical item plus classification and scoring.
type ScoredItem struct {
	dedup.CanonicalItem

	Categories   []string
	Companies    []string
	Technologies []string
	Keywords     []string
	Summary      string
	Sentiment    float64 // [0.0, 1.0], 0.5 = neutral
	Impact       float64 // [0.0, 10.0]
}

// Tags returns all tags of the item: categories, companies, technologies.
func (s ScoredItem) Tags() []string {
	tags := make([]string, 0, len(s.Categories)+len(s.Companies)+len(s.Technologies))
	tags = append(tags, s.Categories...)
	tags = append(tags, s.Companies...)
	tags = append(tags, s.Technologies...)
	return tags
}

// Classifier scores items against keyword tables loaded once per run.
type Classifier struct {
	tables config.Classify
	now    time.Time
}

func New(tables config.Classify, now time.Time) *Classifier {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if tables.DefaultCredibility <= 0 {
		tables.DefaultCredibility = 0.5
	}
	return &Classifier{tables: tables, now: now}
}

// Score classifies and scores every item in the batch.
func (c *Classifier) Score(items []dedup.CanonicalItem) []ScoredItem {
	out := make([]ScoredItem, len(items))
	for i, item := range items {
		out[i] = c.scoreItem(item)
	}
	return out
}

func (c *Classifier) scoreItem(item dedup.CanonicalItem) ScoredItem {
	// Title and body are plain strings by the data-model contract; the
	// concatenation below can never see a null.
	text := strings.ToLower(item.Title + " " + item.Body)

	s := ScoredItem{CanonicalItem: item}
	s.Categories = c.matchCategories(text)
	s.Companies = matchList(text, c.tables.Companies, true)
	s.Technologies = matchList(text, c.tables.Technologies, false)
	s.Keywords = c.extractKeywords(text)
	s.Summary = summarize(item.Title, item.Body)
	s.Sentiment = c.sentiment(text)
	s.Impact = c.impact(item, text)
	return s
}

func (c *Classifier) matchCategories(text string) []string {
	var matched []string
	for category, keywords := range c.tables.Categories {
		for _, kw := range keywords {
			if containsWord(text, strings.ToLower(kw)) {
				matched = append(matched, category)
				break
			}
		}
	}
	if len(matched) == 0 {
		return []string{Uncategorized}
	}
	sort.Strings(matched)
	return matched
}

// matchList returns entries of the table found in the text, in table
// order. titleCase renders company names like "Openai" the way the
// original tracker displayed them.
func matchList(text string, table []string, titleCase bool) []string {
	var matched []string
	seen := make(map[string]struct{})
	for _, entry := range table {
		lower := strings.ToLower(entry)
		if !containsWord(text, lower) {
			continue
		}
		name := lower
		if titleCase {
			name = strings.ToUpper(lower[:1]) + lower[1:]
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		matched = append(matched, name)
	}
	return matched
}

func (c *Classifier) extractKeywords(text string) []string {
	var keywords []string
	for _, kw := range c.tables.HighImpactWords {
		if len(keywords) >= maxKeywords {
			break
		}
		if containsWord(text, strings.ToLower(kw)) {
			keywords = append(keywords, strings.ToLower(kw))
		}
	}
	return keywords
}

// sentiment is the lexicon polarity positive/(positive+negative), 0.5
// when no scored token appears. Always within [0, 1].
func (c *Classifier) sentiment(text string) float64 {
	positive := 0
	for _, w := range c.tables.PositiveWords {
		if containsWord(text, strings.ToLower(w)) {
			positive++
		}
	}
	negative := 0
	for _, w := range c.tables.NegativeWords {
		if containsWord(text, strings.ToLower(w)) {
			negative++
		}
	}

	total := positive + negative
	if total == 0 {
		return 0.5
	}
	return clamp(float64(positive)/float64(total), 0, 1)
}

// impact combines source credibility, engagement, recency, and
// high-impact keyword hits into a [0, 10] score with a 1.0 floor.
func (c *Classifier) impact(item dedup.CanonicalItem, text string) float64 {
	score := 0.0

	// Source credibility: best weight among the reporting sources.
	cred := 0.0
	for _, ref := range item.SourceRefs {
		w, ok := c.tables.Credibility[ref]
		if !ok {
			w = c.tables.DefaultCredibility
		}
		if w > cred {
			cred = w
		}
	}
	if cred == 0 {
		cred = c.tables.DefaultCredibility
	}
	score += cred

	// Engagement signals, capped so one viral thread cannot dominate.
	score += min(float64(item.Score)/1000, 0.3)
	score += min(float64(item.Comments)/100, 0.2)

	// Recency decay: full credit inside 6h, fading to zero over 48h.
	if !item.PublishedAt.IsZero() {
		age := c.now.Sub(item.PublishedAt)
		switch {
		case age <= 6*time.Hour:
			score += 0.3
		case age < 48*time.Hour:
			score += 0.3 * (1 - float64(age-6*time.Hour)/float64(42*time.Hour))
		}
	}

	// Every additional source reporting the same story is a signal.
	if n := len(item.SourceRefs); n > 1 {
		score += min(float64(n-1)*0.2, 0.6)
	}

	for _, kw := range c.tables.HighImpactWords {
		if containsWord(text, strings.ToLower(kw)) {
			score += 0.1
			break
		}
	}

	if score < 1.0 {
		score = 1.0
	}
	return clamp(score, 0, 10)
}

// summarize builds a short extractive summary: first sentence of the
// body, falling back to the title.
func summarize(title, body string) string {
	body = strings.TrimSpace(body)
	if body != "" {
		if i := strings.IndexByte(body, '.'); i > 0 {
			return body[:i+1]
		}
		return body
	}
	return strings.TrimSpace(title)
}

// containsWord reports whether needle occurs in text. Multi-word phrases
// match as substrings; single tokens must not be embedded in a larger
// word ("ai" should not match "maintain").
func containsWord(text, needle string) bool {
	if needle == "" {
		return false
	}
	if strings.ContainsAny(needle, " -.") {
		return strings.Contains(text, needle)
	}
	idx := 0
	for {
		i := strings.Index(text[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
