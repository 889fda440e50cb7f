// Package collector walks the active news sources, harvests article URLs
// from their listing pages, and records them as a collection batch.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newspipe/pkg/classify"
	"newspipe/pkg/db"
	"newspipe/pkg/fetcher"
)

// DefaultDelay is the politeness pause between sources.
const DefaultDelay = 2 * time.Second

// SourceResult is the outcome of crawling one source.
type SourceResult struct {
	SourceID   int64
	SourceName string
	URLsFound  int
	URLsNew    int
	Err        error
}

// BatchReport summarizes one collection pass.
type BatchReport struct {
	BatchID   string
	TotalURLs int
	Sources   []SourceResult
}

// Failures returns the per-source error messages of the batch.
func (r *BatchReport) Failures() []string {
	var msgs []string
	for _, s := range r.Sources {
		if s.Err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: %v", s.SourceName, s.Err))
		}
	}
	return msgs
}

// Collector runs collection batches. Sources are crawled strictly one at a
// time; a failing source never aborts the batch.
type Collector struct {
	DB      *db.DB
	Fetcher fetcher.Fetcher
	Delay   time.Duration
	Logger  *slog.Logger
}

func New(database *db.DB, f fetcher.Fetcher, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		DB:      database,
		Fetcher: f,
		Delay:   DefaultDelay,
		Logger:  logger,
	}
}

// Collect runs one batch over the active sources. The batch row is always
// completed exactly once, even when every source fails or the context is
// cancelled mid-pass; failures travel in the batch's error_message.
func (c *Collector) Collect(ctx context.Context, batchID string, useBrowser bool) (*BatchReport, error) {
	sources, err := c.DB.ListSources(true)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no active sources configured")
	}

	created, err := c.DB.CreateBatch(batchID, len(sources), useBrowser)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("batch %s already exists", batchID)
	}

	report := &BatchReport{BatchID: batchID}
	c.Logger.Info("collection batch started",
		"batch_id", batchID, "sources", len(sources), "use_browser", useBrowser)

	for i, source := range sources {
		if ctx.Err() != nil {
			report.Sources = append(report.Sources, SourceResult{
				SourceID:   source.ID,
				SourceName: source.Name,
				Err:        fmt.Errorf("skipped: %w", ctx.Err()),
			})
			continue
		}

		result := c.collectSource(ctx, batchID, source)
		report.Sources = append(report.Sources, result)
		report.TotalURLs += result.URLsNew

		if result.Err != nil {
			c.Logger.Warn("source collection failed",
				"source", source.Name, "error", result.Err)
		} else {
			c.Logger.Info("source collected",
				"source", source.Name, "found", result.URLsFound, "new", result.URLsNew)
		}

		if i < len(sources)-1 {
			sleep(ctx, c.Delay)
		}
	}

	errMsg := strings.Join(report.Failures(), "; ")
	if err := c.DB.CompleteBatch(batchID, report.TotalURLs, errMsg); err != nil {
		return report, err
	}

	c.Logger.Info("collection batch completed",
		"batch_id", batchID, "total_urls", report.TotalURLs,
		"failed_sources", len(report.Failures()))

	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

// collectSource crawls one listing page and records its article URLs. The
// source's rolling statistics are updated exactly once, here, regardless of
// what later pipeline phases do with the URLs.
func (c *Collector) collectSource(ctx context.Context, batchID string, source db.Source) SourceResult {
	result := SourceResult{SourceID: source.ID, SourceName: source.Name}

	doc, err := fetcher.Document(ctx, c.Fetcher, source.URL)
	if err != nil {
		result.Err = err
		return result
	}

	links := classify.ExtractArticleLinks(doc, source.URL)
	result.URLsFound = len(links)

	urls := make([]db.NewCollectedURL, 0, len(links))
	for _, link := range links {
		urls = append(urls, db.NewCollectedURL{
			SourceID: source.ID,
			URL:      link,
			Domain:   classify.Domain(link),
		})
	}

	inserted, err := c.DB.AddCollectedURLs(batchID, urls)
	if err != nil {
		result.Err = err
		return result
	}
	result.URLsNew = inserted

	if err := c.DB.UpdateCollectionStats(source.ID, result.URLsFound); err != nil {
		result.Err = err
	}
	return result
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
