package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"techradar/internal/config"
	"techradar/internal/source"
)

// stubAdapter is a scriptable source.Adapter for orchestrator tests.
type stubAdapter struct {
	id    string
	items []source.RawItem
	errs  []error // consumed per attempt; nil entry means success
	calls int32
	delay time.Duration
}

func (s *stubAdapter) ID() string { return s.id }

func (s *stubAdapter) Fetch(ctx context.Context) ([]source.RawItem, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if int(n) <= len(s.errs) && s.errs[n-1] != nil {
		return nil, s.errs[n-1]
	}
	return s.items, nil
}

func fastOpts() Options {
	return Options{Concurrency: 4, Timeout: time.Second, Attempts: 3, BackoffBase: time.Millisecond}
}

func item(sourceID, title, url string) source.RawItem {
	return source.RawItem{SourceID: sourceID, SourceKind: "api", Title: title, URL: url}
}

func TestBackoff(t *testing.T) {
	base := 2 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{10, 16 * time.Second}, // capped at base * 2^budget
		{0, 0},
	}
	for _, tc := range cases {
		if got := Backoff(base, tc.attempt, 3); got != tc.want {
			t.Errorf("Backoff(2s, %d, 3) = %v, want %v", tc.attempt, got, tc.want)
		}
	}

	if got := Backoff(0, 5, 3); got != 0 {
		t.Errorf("zero base should yield zero delay, got %v", got)
	}
}

func TestBackoffHugeBudgetSaturates(t *testing.T) {
	// A misconfigured budget must never wrap the delay negative.
	for _, budget := range []int{62, 63, 100, 1 << 30} {
		if got := Backoff(2*time.Second, budget+1, budget); got <= 0 {
			t.Errorf("Backoff(2s, %d, %d) = %v, want positive", budget+1, budget, got)
		}
	}

	// Within sane budgets the exact doubling still holds.
	if got := Backoff(2*time.Second, 10, 400); got != 1024*time.Second {
		t.Errorf("Backoff(2s, 10, 400) = %v, want 1024s", got)
	}
}

func TestRunMergesSuccessfulSources(t *testing.T) {
	a := &stubAdapter{id: "a", items: []source.RawItem{item("a", "One", "https://a.com/1"), item("a", "Two", "https://a.com/2")}}
	b := &stubAdapter{id: "b", items: []source.RawItem{item("b", "Three", "https://b.com/3")}}

	o := NewOrchestrator([]source.Adapter{a, b}, fastOpts())
	result := o.Run(context.Background())

	if len(result.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result.Items))
	}
	if result.Successes() != 2 {
		t.Errorf("expected 2 successes, got %d", result.Successes())
	}

	// Per-source natural order must survive the merge.
	var fromA []string
	for _, it := range result.Items {
		if it.SourceID == "a" {
			fromA = append(fromA, it.Title)
		}
	}
	if len(fromA) != 2 || fromA[0] != "One" || fromA[1] != "Two" {
		t.Errorf("source order not preserved: %v", fromA)
	}
}

func TestRunRetriesExhaustedBudget(t *testing.T) {
	boom := errors.New("connection refused")
	failing := &stubAdapter{id: "down", errs: []error{boom, boom, boom}}
	healthy := &stubAdapter{id: "up", items: []source.RawItem{item("up", "Works", "https://up.com")}}

	o := NewOrchestrator([]source.Adapter{failing, healthy}, fastOpts())
	result := o.Run(context.Background())

	h := result.Health["down"]
	if h.Success {
		t.Error("expected failure for exhausted source")
	}
	if h.Attempts != 3 {
		t.Errorf("expected attempts=3, got %d", h.Attempts)
	}
	if h.LastError == "" {
		t.Error("expected last error to be recorded")
	}

	// Partial results still flow.
	if len(result.Items) != 1 || result.Items[0].SourceID != "up" {
		t.Errorf("expected healthy source's items, got %+v", result.Items)
	}
}

func TestRunRecoversAfterRetry(t *testing.T) {
	flaky := &stubAdapter{
		id:    "flaky",
		errs:  []error{errors.New("timeout"), nil},
		items: []source.RawItem{item("flaky", "Eventually", "https://f.com")},
	}

	o := NewOrchestrator([]source.Adapter{flaky}, fastOpts())
	result := o.Run(context.Background())

	h := result.Health["flaky"]
	if !h.Success {
		t.Fatalf("expected success after retry: %+v", h)
	}
	if h.Attempts != 2 {
		t.Errorf("expected attempts=2, got %d", h.Attempts)
	}
	if h.LastError != "" {
		t.Errorf("expected last error cleared on success, got %q", h.LastError)
	}
}

func TestRunAllSourcesFailed(t *testing.T) {
	boom := errors.New("unreachable")
	a := &stubAdapter{id: "a", errs: []error{boom, boom, boom}}
	b := &stubAdapter{id: "b", errs: []error{boom, boom, boom}}

	o := NewOrchestrator([]source.Adapter{a, b}, fastOpts())
	result := o.Run(context.Background())

	if result.Successes() != 0 {
		t.Errorf("expected 0 successes, got %d", result.Successes())
	}
	if len(result.Health) != 2 {
		t.Errorf("expected health entries for all sources, got %d", len(result.Health))
	}
	if len(result.Items) != 0 {
		t.Errorf("expected no items, got %d", len(result.Items))
	}
}

func TestRunDiscardsInvalidItems(t *testing.T) {
	a := &stubAdapter{id: "a", items: []source.RawItem{
		item("a", "Good", "https://a.com/1"),
		{SourceID: "a", SourceKind: "api", Body: "no identity"},
	}}

	o := NewOrchestrator([]source.Adapter{a}, fastOpts())
	result := o.Run(context.Background())

	if len(result.Items) != 1 {
		t.Errorf("expected 1 item after discard, got %d", len(result.Items))
	}
	if result.Discarded != 1 {
		t.Errorf("expected 1 discarded, got %d", result.Discarded)
	}
}

func TestRunCountsFeedDiscards(t *testing.T) {
	const rss = `<?xml version="1.0"?><rss version="2.0"><channel><title>F</title>
<item><title>Good Story</title><link>https://e.com/good</link></item>
<item><description>no title, no link</description></item>
</channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(rss))
	}))
	defer srv.Close()

	a, err := source.New(config.Source{ID: "feed", Kind: "feed", Endpoint: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("building adapter: %v", err)
	}

	o := NewOrchestrator([]source.Adapter{a}, fastOpts())
	result := o.Run(context.Background())

	if h := result.Health["feed"]; !h.Success {
		t.Fatalf("expected feed source to succeed: %+v", h)
	}
	if len(result.Items) != 1 {
		t.Errorf("expected 1 valid item, got %d", len(result.Items))
	}
	if result.Discarded != 1 {
		t.Errorf("expected 1 counted discard for identity-less feed item, got %d", result.Discarded)
	}
}

func TestRunCancellationAbandonsInFlight(t *testing.T) {
	slow := &stubAdapter{id: "slow", delay: 5 * time.Second, items: []source.RawItem{item("slow", "Late", "https://s.com")}}
	quick := &stubAdapter{id: "quick", items: []source.RawItem{item("quick", "Early", "https://q.com")}}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	opts := fastOpts()
	opts.Timeout = 10 * time.Second
	o := NewOrchestrator([]source.Adapter{quick, slow}, opts)
	result := o.Run(ctx)

	if h := result.Health["quick"]; !h.Success {
		t.Errorf("expected quick source to succeed: %+v", h)
	}
	if h := result.Health["slow"]; h.Success {
		t.Error("expected slow source to be abandoned")
	}
	if len(result.Items) != 1 || result.Items[0].SourceID != "quick" {
		t.Errorf("expected only quick source's items, got %+v", result.Items)
	}
}

func TestRunBoundedConcurrency(t *testing.T) {
	var mu sync.Mutex
	running, peak := 0, 0

	mk := func(id string) source.Adapter {
		return adapterFunc{id: id, fn: func(ctx context.Context) ([]source.RawItem, error) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil, nil
		}}
	}

	opts := fastOpts()
	opts.Concurrency = 2
	o := NewOrchestrator([]source.Adapter{mk("a"), mk("b"), mk("c"), mk("d"), mk("e")}, opts)
	o.Run(context.Background())

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent fetches, observed %d", peak)
	}
}

type adapterFunc struct {
	id string
	fn func(ctx context.Context) ([]source.RawItem, error)
}

func (a adapterFunc) ID() string { return a.id }

func (a adapterFunc) Fetch(ctx context.Context) ([]source.RawItem, error) { return a.fn(ctx) }
