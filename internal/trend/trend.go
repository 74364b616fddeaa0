// Package trend maintains the rolling tag counters and delta ranking
// across run windows.
package trend

import (
	"sort"
	"time"

	"techradar/internal/classify"
)

// Tag holds the counters of one tag inside a window.
type Tag struct {
	Count      int `json:"count"`
	PriorCount int `json:"prior_count"`
}

// Delta is the percentage change against the prior window.
func (t Tag) Delta() float64 {
	prior := t.PriorCount
	if prior < 1 {
		prior = 1
	}
	return float64(t.Count-t.PriorCount) / float64(prior) * 100
}

// State is the aggregate for one window. Built fresh each run and never
// mutated after Aggregate returns.
type State struct {
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	Tags        map[string]Tag `json:"tags"`
}

// Empty returns a zeroed state for first-run semantics: every tag of the
// next window sees prior_count 0.
func Empty() State {
	return State{Tags: make(map[string]Tag)}
}

// TrendingTag pairs a tag name with its computed delta for ranking.
type TrendingTag struct {
	Name  string
	Count int
	Delta float64
}

// Aggregate counts every tag appearing in the batch and carries the
// prior window's count forward. Window boundaries come from the caller;
// the aggregator never decides cadence.
func Aggregate(items []classify.ScoredItem, prior State, windowStart, windowEnd time.Time) State {
	state := State{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Tags:        make(map[string]Tag),
	}

	for _, item := range items {
		for _, tag := range item.Tags() {
			if tag == "" {
				continue
			}
			entry := state.Tags[tag]
			entry.Count++
			state.Tags[tag] = entry
		}
	}

	for name, entry := range state.Tags {
		entry.PriorCount = prior.Tags[name].Count
		state.Tags[name] = entry
	}

	return state
}

// Trending ranks tags by delta descending, ties broken by count
// descending, then tag name ascending for determinism. n <= 0 returns
// the full ranking.
func Trending(state State, n int) []TrendingTag {
	ranked := make([]TrendingTag, 0, len(state.Tags))
	for name, entry := range state.Tags {
		ranked = append(ranked, TrendingTag{Name: name, Count: entry.Count, Delta: entry.Delta()})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Delta != ranked[j].Delta {
			return ranked[i].Delta > ranked[j].Delta
		}
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// WindowStats are the per-run aggregate metrics persisted alongside the
// trend state.
type WindowStats struct {
	TotalItems        int                `json:"total_items"`
	AverageSentiment  float64            `json:"average_sentiment"`
	AverageImpact     float64            `json:"average_impact"`
	HighImpactItems   int                `json:"high_impact_items"` // impact >= 8.0
	CategorySentiment map[string]float64 `json:"category_sentiment"`
	SourceCounts      map[string]int     `json:"source_counts"`
}

// Stats computes the window metrics for a scored batch.
func Stats(items []classify.ScoredItem) WindowStats {
	stats := WindowStats{
		TotalItems:        len(items),
		AverageSentiment:  0.5,
		CategorySentiment: make(map[string]float64),
		SourceCounts:      make(map[string]int),
	}
	if len(items) == 0 {
		return stats
	}

	var sentimentSum, impactSum float64
	categorySums := make(map[string]float64)
	categoryCounts := make(map[string]int)

	for _, item := range items {
		sentimentSum += item.Sentiment
		impactSum += item.Impact
		if item.Impact >= 8.0 {
			stats.HighImpactItems++
		}
		for _, cat := range item.Categories {
			categorySums[cat] += item.Sentiment
			categoryCounts[cat]++
		}
		for _, ref := range item.SourceRefs {
			stats.SourceCounts[ref]++
		}
	}

	stats.AverageSentiment = sentimentSum / float64(len(items))
	stats.AverageImpact = impactSum / float64(len(items))
	for cat, sum := range categorySums {
		stats.CategorySentiment[cat] = sum / float64(categoryCounts[cat])
	}
	return stats
}
