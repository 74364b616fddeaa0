package store

import (
	"encoding/json"
	"fmt"
	"time"

	"techradar/internal/classify"
)

// ArchivedItem is one scored item as read back from the archive.
type ArchivedItem struct {
	RunID       int64
	CanonicalID string
	Title       string
	URL         string
	SourceRefs  []string
	Categories  []string
	Sentiment   float64
	Impact      float64
}

// archiveBatch inserts a run row and all its items in one transaction.
func (s *Store) archiveBatch(batch []classify.ScoredItem, windowStart, windowEnd time.Time) (int64, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO runs (window_start, window_end, item_count) VALUES (?, ?, ?)",
		windowStart.UTC().Format(time.RFC3339), windowEnd.UTC().Format(time.RFC3339), len(batch),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO items
		(run_id, canonical_id, title, body, url, source_refs, categories,
		 companies, technologies, keywords, summary, sentiment, impact,
		 published_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing item insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range batch {
		var published string
		if !item.PublishedAt.IsZero() {
			published = item.PublishedAt.UTC().Format(time.RFC3339)
		}
		var fetched string
		if !item.FetchedAt.IsZero() {
			fetched = item.FetchedAt.UTC().Format(time.RFC3339)
		}

		if _, err := stmt.Exec(
			runID, item.ID, item.Title, item.Body, item.PrimaryURL,
			mustJSON(item.SourceRefs), mustJSON(item.Categories),
			mustJSON(item.Companies), mustJSON(item.Technologies),
			mustJSON(item.Keywords), item.Summary,
			item.Sentiment, item.Impact, published, fetched,
		); err != nil {
			return 0, fmt.Errorf("inserting item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive tx: %w", err)
	}
	return runID, nil
}

// ItemsForRun reads back the archived items of one run.
func (s *Store) ItemsForRun(runID int64) ([]ArchivedItem, error) {
	rows, err := s.conn.Query(
		`SELECT run_id, canonical_id, title, url, source_refs, categories, sentiment, impact
		FROM items WHERE run_id = ? ORDER BY impact DESC, canonical_id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ArchivedItem
	for rows.Next() {
		var it ArchivedItem
		var refs, cats string
		if err := rows.Scan(&it.RunID, &it.CanonicalID, &it.Title, &it.URL, &refs, &cats, &it.Sentiment, &it.Impact); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(refs), &it.SourceRefs)
		json.Unmarshal([]byte(cats), &it.Categories)
		items = append(items, it)
	}
	return items, rows.Err()
}

// RunCount returns the number of archived runs.
func (s *Store) RunCount() (int, error) {
	var n int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM runs").Scan(&n)
	return n, err
}

// ItemCount returns the total number of archived items.
func (s *Store) ItemCount() (int, error) {
	var n int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM items").Scan(&n)
	return n, err
}

func mustJSON(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
