package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newspipe/models"
	"newspipe/pkg/artifacts"
	"newspipe/pkg/collector"
	"newspipe/pkg/db"
)

type fakeSummarizer struct {
	pingErr   error
	pingBlock bool
	response  string
	err       error
	calls     int
}

func (s *fakeSummarizer) Ping(ctx context.Context) error {
	if s.pingBlock {
		<-ctx.Done()
		return nil
	}
	return s.pingErr
}

func (s *fakeSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.response, s.err
}

func (s *fakeSummarizer) Model() string { return "llama3.1:8b" }

type fakeExtractor struct {
	err error
}

func (e *fakeExtractor) Text(html, pageURL string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return "TITLE: extracted\n" + strings.Repeat("=", 80) + "\ncleaned body for " + pageURL, nil
}

type fakeFetcher struct {
	errs map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	return "<html><body><p>article body</p></body></html>", nil
}

type fakeCollector struct {
	called bool
}

func (c *fakeCollector) Collect(_ context.Context, batchID string, _ bool) (*collector.BatchReport, error) {
	c.called = true
	return &collector.BatchReport{BatchID: batchID}, nil
}

type env struct {
	db          *db.DB
	coordinator *Coordinator
	summarizer  *fakeSummarizer
	collector   *fakeCollector
}

func setupEnv(t *testing.T, summarizer *fakeSummarizer, f *fakeFetcher) *env {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	base := t.TempDir()
	workspace, err := artifacts.NewWorkspace(
		filepath.Join(base, "scraped_html"), filepath.Join(base, "cleaned_text"))
	if err != nil {
		t.Fatalf("failed to create workspace: %v", err)
	}

	cfg := models.DefaultConfig()
	cfg.Pipeline.ItemDelay = models.Duration{}
	cfg.Pipeline.MaxRetries = 1

	fc := &fakeCollector{}
	coordinator := NewCoordinator(database, f, fc, &fakeExtractor{}, summarizer,
		workspace, cfg, slog.New(slog.DiscardHandler))

	return &env{db: database, coordinator: coordinator, summarizer: summarizer, collector: fc}
}

// seedURLs creates a completed batch holding n unconsumed URLs.
func seedURLs(t *testing.T, database *db.DB, n int) []string {
	t.Helper()

	id, _, err := database.AddSource("CNBC", "https://www.cnbc.com/markets", "markets", "", true)
	if err != nil {
		t.Fatalf("AddSource failed: %v", err)
	}
	if _, err := database.CreateBatch("batch-1", 1, false); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	var urls []string
	var inserts []db.NewCollectedURL
	for i := 0; i < n; i++ {
		u := fmt.Sprintf("https://www.cnbc.com/2025/01/02/story-%d.html", i)
		urls = append(urls, u)
		inserts = append(inserts, db.NewCollectedURL{SourceID: id, URL: u, Domain: "cnbc.com"})
	}
	if _, err := database.AddCollectedURLs("batch-1", inserts); err != nil {
		t.Fatalf("AddCollectedURLs failed: %v", err)
	}
	if err := database.CompleteBatch("batch-1", n, ""); err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}
	return urls
}

const goodResponse = `{"summary": "Markets rallied.", "sentiment": "positive", "confidence_score": 0.9}`

func TestRunCompletesEndToEnd(t *testing.T) {
	e := setupEnv(t, &fakeSummarizer{response: goodResponse}, &fakeFetcher{})
	seedURLs(t, e.db, 2)

	runID, err := e.coordinator.Start(RunOptions{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.coordinator.Wait()

	status := e.coordinator.Status()
	if status.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want completed (log: %v)", status.Phase, status.Log)
	}
	if status.URLsProcessed != 2 || status.SummariesGenerated != 2 {
		t.Errorf("counts: urls=%d summaries=%d, want 2/2", status.URLsProcessed, status.SummariesGenerated)
	}

	run, err := e.db.GetRun(runID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: run=%v err=%v", run, err)
	}
	if run.Status != "completed" || run.URLsProcessed != 2 || run.SummariesGenerated != 2 {
		t.Errorf("run ledger: %+v", run)
	}

	// Every URL was consumed by this run.
	remaining, err := e.db.UnconsumedURLs(0)
	if err != nil {
		t.Fatalf("UnconsumedURLs failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected all URLs consumed, %d remain", len(remaining))
	}

	// Summaries landed with structure and the run stamp.
	count, err := e.db.SummariesCount()
	if err != nil {
		t.Fatalf("SummariesCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 summaries, got %d", count)
	}
	listings, err := e.db.ListSummaries(0)
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	for _, l := range listings {
		s, err := e.db.GetSummary(l.SourceFile)
		if err != nil || s == nil {
			t.Fatalf("GetSummary: %v", err)
		}
		if !s.PipelineRunID.Valid || s.PipelineRunID.String != runID {
			t.Errorf("summary missing run stamp: %+v", s.PipelineRunID)
		}
		if !s.Sentiment.Valid || s.Sentiment.String != "positive" {
			t.Errorf("structured fields missing: %+v", s.Sentiment)
		}
	}

	if e.collector.called {
		t.Error("collector should not run without the collect option")
	}
}

func TestRunWithCollectOption(t *testing.T) {
	e := setupEnv(t, &fakeSummarizer{response: goodResponse}, &fakeFetcher{})

	if _, err := e.coordinator.Start(RunOptions{Collect: true}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.coordinator.Wait()

	if !e.collector.called {
		t.Error("collector should run with the collect option")
	}
	if status := e.coordinator.Status(); status.Phase != PhaseCompleted {
		t.Errorf("phase = %s, want completed", status.Phase)
	}
}

func TestRunFailsWhenSummarizerUnavailable(t *testing.T) {
	e := setupEnv(t, &fakeSummarizer{pingErr: errors.New("connection refused")}, &fakeFetcher{})

	runID, err := e.coordinator.Start(RunOptions{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.coordinator.Wait()

	status := e.coordinator.Status()
	if status.Phase != PhaseFailed {
		t.Errorf("phase = %s, want failed", status.Phase)
	}
	if !strings.Contains(status.LastError, "summarizer unavailable") {
		t.Errorf("LastError = %q", status.LastError)
	}

	run, err := e.db.GetRun(runID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "failed" || !run.ErrorMessage.Valid {
		t.Errorf("run ledger: %+v", run)
	}
}

func TestSingleActiveRun(t *testing.T) {
	e := setupEnv(t, &fakeSummarizer{pingBlock: true}, &fakeFetcher{})

	if _, err := e.coordinator.Start(RunOptions{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := e.coordinator.Start(RunOptions{}); err == nil {
		t.Error("second Start should be rejected while a run is active")
	}

	if err := e.coordinator.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	e.coordinator.Wait()

	// After the run winds down a new Start is accepted again.
	e.summarizer.pingBlock = false
	if _, err := e.coordinator.Start(RunOptions{}); err != nil {
		t.Errorf("Start after completion failed: %v", err)
	}
	e.coordinator.Wait()
}

func TestStopWindsDownAtPhaseBoundary(t *testing.T) {
	e := setupEnv(t, &fakeSummarizer{pingBlock: true}, &fakeFetcher{})
	seedURLs(t, e.db, 1)

	runID, err := e.coordinator.Start(RunOptions{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.coordinator.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	e.coordinator.Wait()

	status := e.coordinator.Status()
	if status.Phase != PhaseStopped {
		t.Errorf("phase = %s, want stopped", status.Phase)
	}

	run, err := e.db.GetRun(runID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "stopped" {
		t.Errorf("run status = %q, want stopped", run.Status)
	}

	// Nothing was consumed by the stopped run.
	remaining, err := e.db.UnconsumedURLs(0)
	if err != nil {
		t.Fatalf("UnconsumedURLs failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("stopped run should leave URLs unconsumed, %d remain", len(remaining))
	}
}

func TestStopWithoutActiveRun(t *testing.T) {
	e := setupEnv(t, &fakeSummarizer{}, &fakeFetcher{})
	if err := e.coordinator.Stop(); err == nil {
		t.Error("Stop without an active run should error")
	}
}

func TestFetchFailureLeavesURLUnconsumed(t *testing.T) {
	urls := []string{
		"https://www.cnbc.com/2025/01/02/story-0.html",
		"https://www.cnbc.com/2025/01/02/story-1.html",
	}
	f := &fakeFetcher{errs: map[string]error{urls[0]: errors.New("503")}}
	e := setupEnv(t, &fakeSummarizer{response: goodResponse}, f)
	seedURLs(t, e.db, 2)

	if _, err := e.coordinator.Start(RunOptions{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.coordinator.Wait()

	status := e.coordinator.Status()
	if status.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want completed", status.Phase)
	}
	if status.URLsProcessed != 1 {
		t.Errorf("URLsProcessed = %d, want 1", status.URLsProcessed)
	}

	// The failed URL stays eligible for the next run.
	remaining, err := e.db.UnconsumedURLs(0)
	if err != nil {
		t.Fatalf("UnconsumedURLs failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].URL != urls[0] {
		t.Errorf("expected the failed URL to remain, got %v", remaining)
	}
}

func TestParseFailureKeepsRawResponse(t *testing.T) {
	e := setupEnv(t, &fakeSummarizer{response: "the model rambled instead of JSON"}, &fakeFetcher{})
	seedURLs(t, e.db, 1)

	if _, err := e.coordinator.Start(RunOptions{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.coordinator.Wait()

	status := e.coordinator.Status()
	if status.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want completed", status.Phase)
	}
	if status.SummariesGenerated != 1 {
		t.Errorf("unparseable response should still be stored, got %d", status.SummariesGenerated)
	}

	listings, err := e.db.ListSummaries(0)
	if err != nil || len(listings) != 1 {
		t.Fatalf("ListSummaries: listings=%v err=%v", listings, err)
	}
	s, err := e.db.GetSummary(listings[0].SourceFile)
	if err != nil || s == nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if s.Summary.Valid {
		t.Error("parse failure should leave structured fields NULL")
	}
	if s.RawResponse != "the model rambled instead of JSON" {
		t.Errorf("raw response lost: %q", s.RawResponse)
	}
}

func TestStatusSnapshotIsolated(t *testing.T) {
	e := setupEnv(t, &fakeSummarizer{response: goodResponse}, &fakeFetcher{})

	if _, err := e.coordinator.Start(RunOptions{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.coordinator.Wait()

	first := e.coordinator.Status()
	if len(first.Log) == 0 {
		t.Fatal("expected log entries")
	}
	first.Log[0] = "mutated"
	second := e.coordinator.Status()
	if second.Log[0] == "mutated" {
		t.Error("Status must return an isolated copy of the log")
	}

	if first.StartedAt.IsZero() || time.Since(first.StartedAt) > time.Minute {
		t.Errorf("StartedAt not set sensibly: %v", first.StartedAt)
	}
}
