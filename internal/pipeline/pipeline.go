package pipeline

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"techradar/internal/classify"
	"techradar/internal/config"
	"techradar/internal/dedup"
	"techradar/internal/enrich"
	"techradar/internal/fetch"
	"techradar/internal/source"
	"techradar/internal/store"
	"techradar/internal/trend"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result is the structured run summary handed to callers.
type Result struct {
	Steps          []StepResult
	Health         map[string]fetch.SourceHealth
	SourcesOK      int
	SourcesFailed  int
	ItemsFetched   int
	ItemsDiscarded int
	CanonicalItems int
	TrendingTags   []trend.TrendingTag
	StatePersisted bool
}

// Pipeline runs one fetch-dedup-classify-aggregate-persist batch.
// Everything after fetch executes single-threaded; the only shared
// state across runs is the snapshot owned by the store.
type Pipeline struct {
	cfg   *config.Config
	store *store.Store
}

func New(cfg *config.Config, st *store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, store: st}
}

// Run executes one full run. Only two conditions are run-fatal: every
// source failed, or the snapshot could not be saved. Both leave the
// previous snapshot untouched.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	r := &Result{}
	now := time.Now().UTC()

	// Step 1: fetch all sources.
	log.Println("Step 1/5: Fetching sources...")
	batch := p.runFetch(ctx, r)
	if r.SourcesOK == 0 {
		r.Steps = append(r.Steps, StepResult{Name: "Fetch", Err: fmt.Errorf("all %d sources failed", r.SourcesFailed)})
		return r, fmt.Errorf("all %d sources failed", r.SourcesFailed)
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("%d items from %d/%d sources (%d discarded)", len(batch), r.SourcesOK, r.SourcesOK+r.SourcesFailed, r.ItemsDiscarded),
	})

	// Step 2: collapse duplicates.
	log.Println("Step 2/5: Deduplicating...")
	canonical := dedup.New(p.cfg.Dedup.TitleSimilarity).Collapse(batch)
	r.CanonicalItems = len(canonical)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Dedup",
		Summary: fmt.Sprintf("%d stories from %d items", len(canonical), len(batch)),
	})

	// Step 3: optional content backfill.
	if p.cfg.Enrich.Enabled {
		log.Println("Step 3/5: Backfilling content...")
		er := enrich.New(time.Duration(p.cfg.Enrich.TimeoutSeconds) * time.Second).Backfill(ctx, canonical)
		r.Steps = append(r.Steps, StepResult{
			Name:    "Enrich",
			Summary: fmt.Sprintf("%d bodies fetched, %d failed", er.Fetched, er.Failed),
		})
	} else {
		r.Steps = append(r.Steps, StepResult{Name: "Enrich", Summary: "disabled"})
	}

	// Step 4: classify and score.
	log.Println("Step 4/5: Classifying...")
	scored := classify.New(p.cfg.Classify, now).Score(canonical)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Classify",
		Summary: fmt.Sprintf("%d items scored", len(scored)),
	})

	// Step 5: aggregate trends and persist.
	log.Println("Step 5/5: Aggregating trends and saving...")
	prior := p.store.LoadPrevious()
	windowStart := prior.WindowEnd
	if windowStart.IsZero() {
		windowStart = now.Add(-24 * time.Hour)
	}
	state := trend.Aggregate(scored, prior, windowStart, now)
	stats := trend.Stats(scored)
	r.TrendingTags = trend.Trending(state, 10)

	if err := p.store.Save(scored, state, stats); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Save", Err: err})
		return r, fmt.Errorf("persisting run: %w", err)
	}
	r.StatePersisted = true
	r.Steps = append(r.Steps, StepResult{
		Name:    "Save",
		Summary: fmt.Sprintf("%d items archived, %d tags tracked", len(scored), len(state.Tags)),
	})

	return r, nil
}

// runFetch builds the adapters and runs the orchestrator, folding
// descriptor errors into the health report as failed sources.
func (p *Pipeline) runFetch(ctx context.Context, r *Result) []source.RawItem {
	client := &http.Client{Timeout: time.Duration(p.cfg.Fetch.TimeoutSeconds) * time.Second}

	var adapters []source.Adapter
	badDescriptors := make(map[string]fetch.SourceHealth)
	for _, desc := range p.cfg.Sources {
		ad, err := source.New(desc, client)
		if err != nil {
			log.Printf("Skipping source %s: %v", desc.ID, err)
			badDescriptors[desc.ID] = fetch.SourceHealth{LastError: err.Error()}
			continue
		}
		adapters = append(adapters, ad)
	}

	o := fetch.NewOrchestrator(adapters, fetch.Options{
		Concurrency: p.cfg.Fetch.Concurrency,
		Timeout:     time.Duration(p.cfg.Fetch.TimeoutSeconds) * time.Second,
		Attempts:    p.cfg.Fetch.Retries,
		BackoffBase: time.Duration(p.cfg.Fetch.BackoffSeconds * float64(time.Second)),
		RPS:         p.cfg.Fetch.RequestsPerSecond,
	})
	result := o.Run(ctx)

	r.Health = result.Health
	for id, h := range badDescriptors {
		r.Health[id] = h
	}
	for _, h := range r.Health {
		if h.Success {
			r.SourcesOK++
		} else {
			r.SourcesFailed++
		}
	}
	r.ItemsFetched = len(result.Items)
	r.ItemsDiscarded = result.Discarded
	return result.Items
}
