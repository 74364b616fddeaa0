package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"techradar/internal/config"
	"techradar/internal/store"
)

const feedXML = `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>
<item><title>OpenAI GPT breakthrough announced</title><link>https://e.com/gpt</link>
<description>A machine learning milestone.</description></item>
<item><title>Rocket launch successful</title><link>https://e.com/rocket</link>
<description>SpaceX rocket reaches orbit.</description></item>
</channel></rss>`

func testConfig(endpoint, dataDir string) *config.Config {
	cfg := &config.Config{}
	cfg.Sources = []config.Source{{ID: "test-feed", Kind: "feed", Endpoint: endpoint}}
	cfg.Fetch = config.Fetch{Concurrency: 2, TimeoutSeconds: 5, Retries: 2, BackoffSeconds: 0.001}
	cfg.Dedup = config.Dedup{TitleSimilarity: 0.8}
	cfg.Classify = config.Classify{
		Categories: map[string][]string{
			"ai-ml":      {"gpt", "machine learning"},
			"space-tech": {"rocket", "spacex"},
		},
		PositiveWords:      []string{"breakthrough", "successful"},
		NegativeWords:      []string{"failure"},
		HighImpactWords:    []string{"breakthrough", "launch"},
		DefaultCredibility: 0.5,
	}
	cfg.Output.DataDir = dataDir
	return cfg
}

func openTestStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	dir := t.TempDir()
	st := openTestStore(t, dir)
	p := New(testConfig(srv.URL, dir), st)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.SourcesOK != 1 || result.SourcesFailed != 0 {
		t.Errorf("unexpected source health: %d ok, %d failed", result.SourcesOK, result.SourcesFailed)
	}
	if result.ItemsFetched != 2 || result.CanonicalItems != 2 {
		t.Errorf("expected 2 items/2 stories, got %d/%d", result.ItemsFetched, result.CanonicalItems)
	}
	if !result.StatePersisted {
		t.Error("expected trend state to be persisted")
	}
	if len(result.TrendingTags) == 0 {
		t.Error("expected trending tags")
	}

	// The snapshot is now readable as the next run's prior state.
	state := st.LoadPrevious()
	if state.Tags["ai-ml"].Count != 1 {
		t.Errorf("expected ai-ml count 1 in persisted state, got %d", state.Tags["ai-ml"].Count)
	}
	if state.Tags["ai-ml"].PriorCount != 0 {
		t.Errorf("first run should persist prior_count 0, got %d", state.Tags["ai-ml"].PriorCount)
	}
}

func TestRunCarriesPriorAcrossRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	dir := t.TempDir()
	st := openTestStore(t, dir)
	p := New(testConfig(srv.URL, dir), st)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	state := st.LoadPrevious()
	tag := state.Tags["ai-ml"]
	if tag.Count != 1 || tag.PriorCount != 1 {
		t.Errorf("expected {1 1} after second run, got %+v", tag)
	}

	runs, _ := st.RunCount()
	if runs != 2 {
		t.Errorf("expected 2 archived runs, got %d", runs)
	}
}

func TestRunAllSourcesFailedIsFatalAndKeepsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	st := openTestStore(t, dir)

	// Seed a prior snapshot so we can verify it survives the failed run.
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(feedXML))
	}))
	if _, err := New(testConfig(good.URL, dir), st).Run(context.Background()); err != nil {
		t.Fatalf("seed run failed: %v", err)
	}
	good.Close()
	before, err := os.ReadFile(st.StatePath())
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}

	p := New(testConfig(srv.URL, dir), st)
	result, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected run-fatal error when all sources fail")
	}

	h, ok := result.Health["test-feed"]
	if !ok {
		t.Fatal("expected health entry for failed source")
	}
	if h.Success || h.Attempts != 2 {
		t.Errorf("expected success=false attempts=2, got %+v", h)
	}

	after, err := os.ReadFile(st.StatePath())
	if err != nil {
		t.Fatalf("reading snapshot after failed run: %v", err)
	}
	if string(before) != string(after) {
		t.Error("failed run must not touch the previous snapshot")
	}
}

func TestRunBadDescriptorCountsAsFailedSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	dir := t.TempDir()
	st := openTestStore(t, dir)

	cfg := testConfig(srv.URL, dir)
	cfg.Sources = append(cfg.Sources, config.Source{ID: "mystery", Kind: "api", Endpoint: "https://api.example.com/unknown"})

	result, err := New(cfg, st).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.SourcesFailed != 1 {
		t.Errorf("expected bad descriptor recorded as failed source, got %d", result.SourcesFailed)
	}
	if h := result.Health["mystery"]; h.Success || h.LastError == "" {
		t.Errorf("expected failure with error for mystery source, got %+v", h)
	}
}
