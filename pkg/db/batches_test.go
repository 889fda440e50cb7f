package db

import (
	"testing"
)

func TestCreateBatchDuplicate(t *testing.T) {
	db := setupTestDB(t)

	created, err := db.CreateBatch("batch-1", 3, false)
	if err != nil || !created {
		t.Fatalf("CreateBatch failed: created=%v err=%v", created, err)
	}

	created, err = db.CreateBatch("batch-1", 3, false)
	if err != nil {
		t.Fatalf("duplicate CreateBatch returned error: %v", err)
	}
	if created {
		t.Error("duplicate batch_id should not create a second batch")
	}
}

func TestCompleteBatch(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.CreateBatch("batch-1", 2, true); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if err := db.CompleteBatch("batch-1", 17, "CoinDesk: connection refused"); err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}

	batch, err := db.GetBatch("batch-1")
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if batch == nil {
		t.Fatal("batch not found after completion")
	}
	if !batch.Completed || batch.TotalURLs != 17 {
		t.Errorf("completed=%v total_urls=%d, want true/17", batch.Completed, batch.TotalURLs)
	}
	if !batch.UseBrowser {
		t.Error("use_browser flag lost")
	}
	if !batch.ErrorMessage.Valid || batch.ErrorMessage.String != "CoinDesk: connection refused" {
		t.Errorf("error message not recorded: %+v", batch.ErrorMessage)
	}
}

func TestCompleteBatchAllSourcesFailed(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.CreateBatch("batch-1", 2, false); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	// A batch where every source failed still completes with zero URLs.
	if err := db.CompleteBatch("batch-1", 0, "all sources failed"); err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}
	batch, err := db.GetBatch("batch-1")
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if !batch.Completed || batch.TotalURLs != 0 {
		t.Errorf("completed=%v total_urls=%d, want true/0", batch.Completed, batch.TotalURLs)
	}
}

func TestAddCollectedURLsDuplicateWithinBatch(t *testing.T) {
	db := setupTestDB(t)
	sourceID := addTestSource(t, db, "CoinDesk", "https://www.coindesk.com")

	if _, err := db.CreateBatch("batch-1", 1, false); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	url := "https://www.coindesk.com/markets/2025/01/02/bitcoin-rallies"
	inserted, err := db.AddCollectedURLs("batch-1", []NewCollectedURL{
		{SourceID: sourceID, URL: url, Domain: "coindesk.com"},
		{SourceID: sourceID, URL: url, Domain: "coindesk.com"},
	})
	if err != nil {
		t.Fatalf("AddCollectedURLs failed: %v", err)
	}
	if inserted != 1 {
		t.Errorf("expected 1 new row for a within-batch duplicate, got %d", inserted)
	}

	// The same URL in a later batch is a fresh row.
	if _, err := db.CreateBatch("batch-2", 1, false); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	inserted, err = db.AddCollectedURLs("batch-2", []NewCollectedURL{
		{SourceID: sourceID, URL: url, Domain: "coindesk.com"},
	})
	if err != nil {
		t.Fatalf("AddCollectedURLs failed: %v", err)
	}
	if inserted != 1 {
		t.Errorf("expected the URL to insert in a new batch, got %d", inserted)
	}

	all, err := db.CollectedURLs(URLFilter{})
	if err != nil {
		t.Fatalf("CollectedURLs failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 rows across batches, got %d", len(all))
	}
}

func TestUnconsumedURLsOrdering(t *testing.T) {
	db := setupTestDB(t)
	sourceID := addTestSource(t, db, "Reuters", "https://www.reuters.com/markets")

	if _, err := db.CreateBatch("batch-old", 1, false); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if _, err := db.AddCollectedURLs("batch-old", []NewCollectedURL{
		{SourceID: sourceID, URL: "https://www.reuters.com/markets/old-story-2025-01-01", Domain: "reuters.com"},
	}); err != nil {
		t.Fatalf("AddCollectedURLs failed: %v", err)
	}
	if err := db.CompleteBatch("batch-old", 1, ""); err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}

	if _, err := db.CreateBatch("batch-new", 1, false); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if _, err := db.AddCollectedURLs("batch-new", []NewCollectedURL{
		{SourceID: sourceID, URL: "https://www.reuters.com/markets/new-story-2025-01-02", Domain: "reuters.com"},
	}); err != nil {
		t.Fatalf("AddCollectedURLs failed: %v", err)
	}

	// Only the completed batch is eligible.
	urls, err := db.UnconsumedURLs(0)
	if err != nil {
		t.Fatalf("UnconsumedURLs failed: %v", err)
	}
	if len(urls) != 1 || urls[0].BatchID != "batch-old" {
		t.Fatalf("expected only the completed batch's URL, got %+v", urls)
	}

	// Completing the second batch drains oldest batch first.
	if err := db.CompleteBatch("batch-new", 1, ""); err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}
	urls, err = db.UnconsumedURLs(0)
	if err != nil {
		t.Fatalf("UnconsumedURLs failed: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 unconsumed URLs, got %d", len(urls))
	}
	if urls[0].BatchID != "batch-old" {
		t.Errorf("oldest batch should drain first, got %s", urls[0].BatchID)
	}
}

func TestMarkURLsConsumed(t *testing.T) {
	db := setupTestDB(t)
	sourceID := addTestSource(t, db, "CNBC", "https://www.cnbc.com/markets")

	if _, err := db.CreateBatch("batch-1", 1, false); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if _, err := db.AddCollectedURLs("batch-1", []NewCollectedURL{
		{SourceID: sourceID, URL: "https://www.cnbc.com/2025/01/02/fed-holds-rates", Domain: "cnbc.com"},
	}); err != nil {
		t.Fatalf("AddCollectedURLs failed: %v", err)
	}
	if err := db.CompleteBatch("batch-1", 1, ""); err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}

	if _, err := db.CreateRun("run-1", "llama3.1:8b", false); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	urls, err := db.UnconsumedURLs(0)
	if err != nil || len(urls) != 1 {
		t.Fatalf("UnconsumedURLs: urls=%v err=%v", urls, err)
	}

	if err := db.MarkURLsConsumed([]int64{urls[0].ID}, "run-1"); err != nil {
		t.Fatalf("MarkURLsConsumed failed: %v", err)
	}

	remaining, err := db.UnconsumedURLs(0)
	if err != nil {
		t.Fatalf("UnconsumedURLs failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no unconsumed URLs, got %d", len(remaining))
	}

	consumed, err := db.CollectedURLs(URLFilter{UsedOnly: true})
	if err != nil {
		t.Fatalf("CollectedURLs failed: %v", err)
	}
	if len(consumed) != 1 {
		t.Fatalf("expected 1 consumed URL, got %d", len(consumed))
	}
	if !consumed[0].PipelineRunID.Valid || consumed[0].PipelineRunID.String != "run-1" {
		t.Errorf("consuming run not stamped: %+v", consumed[0].PipelineRunID)
	}

	// A second run cannot steal an already-consumed URL.
	if err := db.MarkURLsConsumed([]int64{urls[0].ID}, "run-2"); err != nil {
		t.Fatalf("second MarkURLsConsumed failed: %v", err)
	}
	consumed, err = db.CollectedURLs(URLFilter{UsedOnly: true})
	if err != nil {
		t.Fatalf("CollectedURLs failed: %v", err)
	}
	if consumed[0].PipelineRunID.String != "run-1" {
		t.Errorf("consumption stamp overwritten: %+v", consumed[0].PipelineRunID)
	}
}

func TestNormalizeTrailingSlashes(t *testing.T) {
	db := setupTestDB(t)
	sourceID := addTestSource(t, db, "Fool", "https://www.fool.com/investing-news")

	if _, err := db.CreateBatch("batch-1", 1, false); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if _, err := db.AddCollectedURLs("batch-1", []NewCollectedURL{
		// Pair that collapses: slash variant deleted, bare form kept.
		{SourceID: sourceID, URL: "https://www.fool.com/investing/2025/01/02/story", Domain: "fool.com"},
		{SourceID: sourceID, URL: "https://www.fool.com/investing/2025/01/02/story/", Domain: "fool.com"},
		// Lone slash variant: rewritten in place.
		{SourceID: sourceID, URL: "https://www.fool.com/investing/2025/01/03/other/", Domain: "fool.com"},
	}); err != nil {
		t.Fatalf("AddCollectedURLs failed: %v", err)
	}

	rewritten, deleted, err := db.NormalizeTrailingSlashes()
	if err != nil {
		t.Fatalf("NormalizeTrailingSlashes failed: %v", err)
	}
	if rewritten != 1 || deleted != 1 {
		t.Errorf("rewritten=%d deleted=%d, want 1/1", rewritten, deleted)
	}

	urls, err := db.CollectedURLs(URLFilter{BatchID: "batch-1"})
	if err != nil {
		t.Fatalf("CollectedURLs failed: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 rows after normalization, got %d", len(urls))
	}
	for _, u := range urls {
		if u.URL[len(u.URL)-1] == '/' {
			t.Errorf("URL still carries trailing slash: %s", u.URL)
		}
	}

	// Running the sweep again changes nothing.
	rewritten, deleted, err = db.NormalizeTrailingSlashes()
	if err != nil {
		t.Fatalf("second NormalizeTrailingSlashes failed: %v", err)
	}
	if rewritten != 0 || deleted != 0 {
		t.Errorf("second sweep: rewritten=%d deleted=%d, want 0/0", rewritten, deleted)
	}
}

func TestGetCollectionStats(t *testing.T) {
	db := setupTestDB(t)
	s1 := addTestSource(t, db, "CoinDesk", "https://www.coindesk.com")
	s2 := addTestSource(t, db, "Reuters", "https://www.reuters.com/markets")

	if _, err := db.CreateBatch("batch-1", 2, false); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if _, err := db.AddCollectedURLs("batch-1", []NewCollectedURL{
		{SourceID: s1, URL: "https://www.coindesk.com/markets/2025/01/02/a", Domain: "coindesk.com"},
		{SourceID: s1, URL: "https://www.coindesk.com/markets/2025/01/02/b", Domain: "coindesk.com"},
		{SourceID: s2, URL: "https://www.reuters.com/markets/c-2025-01-02", Domain: "reuters.com"},
	}); err != nil {
		t.Fatalf("AddCollectedURLs failed: %v", err)
	}

	stats, err := db.GetCollectionStats()
	if err != nil {
		t.Fatalf("GetCollectionStats failed: %v", err)
	}
	if stats.TotalURLs != 3 || stats.UniqueDomains != 2 || stats.SourcesUsed != 2 || stats.TotalBatches != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if len(stats.TopDomains) != 2 || stats.TopDomains[0].Domain != "coindesk.com" || stats.TopDomains[0].Count != 2 {
		t.Errorf("unexpected top domains: %+v", stats.TopDomains)
	}
}
