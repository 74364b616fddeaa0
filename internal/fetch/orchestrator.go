package fetch

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"techradar/internal/source"
)

// SourceHealth records the outcome of fetching one source.
type SourceHealth struct {
	Success   bool
	Attempts  int
	LastError string
}

// Result holds the merged batch of one fetch run.
type Result struct {
	Items     []source.RawItem
	Health    map[string]SourceHealth
	Discarded int // items rejected at ingestion (no title and no URL)
}

// Successes returns the number of sources that eventually succeeded.
func (r *Result) Successes() int {
	n := 0
	for _, h := range r.Health {
		if h.Success {
			n++
		}
	}
	return n
}

// Options tunes the orchestrator.
type Options struct {
	Concurrency int           // max adapters fetching at once
	Timeout     time.Duration // per-attempt timeout
	Attempts    int           // total attempt budget per source
	BackoffBase time.Duration
	RPS         float64 // shared request pacing across all sources; 0 = unlimited
}

// Orchestrator runs all source adapters with bounded concurrency,
// per-attempt timeouts, and retry with exponential backoff. A source that
// exhausts its budget is recorded as failed; the batch is still returned.
type Orchestrator struct {
	adapters []source.Adapter
	opts     Options
	limiter  *rate.Limiter
}

func NewOrchestrator(adapters []source.Adapter, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
		burst = opts.Concurrency
	}

	return &Orchestrator{
		adapters: adapters,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// Run fetches all sources and merges their items. Item order within one
// source is the source's natural order; across sources it is unspecified.
// Cancelling ctx abandons in-flight sources but keeps finished results.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	result := &Result{Health: make(map[string]SourceHealth, len(o.adapters))}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.opts.Concurrency)

	for _, adapter := range o.adapters {
		wg.Add(1)
		go func(ad source.Adapter) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				result.Health[ad.ID()] = SourceHealth{LastError: "run cancelled before fetch"}
				mu.Unlock()
				return
			}

			items, health := o.fetchSource(ctx, ad)

			mu.Lock()
			defer mu.Unlock()
			result.Health[ad.ID()] = health
			for _, item := range items {
				if !item.Valid() {
					result.Discarded++
					log.Printf("Discarding item from %s with no title and no URL", ad.ID())
					continue
				}
				result.Items = append(result.Items, item)
			}
		}(adapter)
	}
	wg.Wait()

	log.Printf("Fetch complete: %d/%d sources succeeded, %d items, %d discarded",
		result.Successes(), len(o.adapters), len(result.Items), result.Discarded)
	return result
}

// fetchSource runs the retry loop for one adapter. Every failure stays
// source-local; the returned health is the only escalation channel.
func (o *Orchestrator) fetchSource(ctx context.Context, ad source.Adapter) ([]source.RawItem, SourceHealth) {
	health := SourceHealth{}

	for attempt := 1; attempt <= o.opts.Attempts; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			health.LastError = err.Error()
			return nil, health
		}

		health.Attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
		items, err := ad.Fetch(attemptCtx)
		cancel()

		if err == nil {
			health.Success = true
			health.LastError = ""
			log.Printf("Fetched %d items from %s (attempt %d)", len(items), ad.ID(), attempt)
			return items, health
		}

		health.LastError = err.Error()
		log.Printf("Fetch attempt %d/%d failed for %s: %v", attempt, o.opts.Attempts, ad.ID(), err)

		// The run itself was cancelled; retrying cannot help.
		if ctx.Err() != nil {
			return nil, health
		}

		if attempt < o.opts.Attempts {
			if !sleep(ctx, Backoff(o.opts.BackoffBase, attempt, o.opts.Attempts)) {
				return nil, health
			}
		}
	}

	return nil, health
}

// sleep waits for d or until ctx is cancelled; reports whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
