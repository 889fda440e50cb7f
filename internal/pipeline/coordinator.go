// Package pipeline coordinates the end-to-end run: scrape collected URLs,
// extract text, summarize, and persist the results.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"newspipe/models"
	"newspipe/pkg/artifacts"
	"newspipe/pkg/collector"
	"newspipe/pkg/db"
	"newspipe/pkg/fetcher"
	"newspipe/pkg/summarize"
)

// Phase identifies where a run currently is.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhaseCollecting   Phase = "collecting"
	PhaseScraping     Phase = "scraping"
	PhaseParsing      Phase = "parsing"
	PhaseSummarizing  Phase = "summarizing"
	PhaseTranslating  Phase = "translating"
	PhaseCleaningUp   Phase = "cleaning_up"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseStopped      Phase = "stopped"
)

// logTailSize bounds the rolling log kept in the status snapshot.
const logTailSize = 50

// Summarizer is the model backend the pipeline generates summaries with.
type Summarizer interface {
	Ping(ctx context.Context) error
	Summarize(ctx context.Context, text string) (string, error)
	Model() string
}

// Extractor turns scraped HTML into cleaned article text.
type Extractor interface {
	Text(html, pageURL string) (string, error)
}

// URLCollector runs a collection batch ahead of the pipeline proper.
type URLCollector interface {
	Collect(ctx context.Context, batchID string, useBrowser bool) (*collector.BatchReport, error)
}

// Status is a point-in-time snapshot of the coordinator, safe to read while
// a run is in flight.
type Status struct {
	RunID              string
	Phase              Phase
	Running            bool
	StartedAt          time.Time
	URLsProcessed      int
	SummariesGenerated int
	LastError          string
	Log                []string
}

// RunOptions selects optional behavior for one run.
type RunOptions struct {
	Collect    bool
	UseBrowser bool
}

// Coordinator owns pipeline runs. At most one run is active at a time; a
// second Start is rejected until the current run reaches a terminal phase.
type Coordinator struct {
	db         *db.DB
	fetcher    fetcher.Fetcher
	collector  URLCollector
	extractor  Extractor
	summarizer Summarizer
	workspace  *artifacts.Workspace
	cfg        *models.Config
	logger     *slog.Logger

	mu      sync.Mutex
	status  Status
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewCoordinator(
	database *db.DB,
	f fetcher.Fetcher,
	urlCollector URLCollector,
	extractor Extractor,
	summarizer Summarizer,
	workspace *artifacts.Workspace,
	cfg *models.Config,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		db:         database,
		fetcher:    f,
		collector:  urlCollector,
		extractor:  extractor,
		summarizer: summarizer,
		workspace:  workspace,
		cfg:        cfg,
		logger:     logger,
		status:     Status{Phase: PhaseIdle},
	}
}

// Start launches a run in the background and returns its run_id. Fails when
// a run is already active.
func (c *Coordinator) Start(opts RunOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return "", fmt.Errorf("pipeline run %s already active", c.status.RunID)
	}

	runID := uuid.New().String()
	created, err := c.db.CreateRun(runID, c.summarizer.Model(), opts.UseBrowser)
	if err != nil {
		return "", err
	}
	if !created {
		return "", fmt.Errorf("run %s already exists", runID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.status = Status{
		RunID:     runID,
		Phase:     PhaseInitializing,
		Running:   true,
		StartedAt: time.Now(),
	}

	go c.run(ctx, runID, opts)
	return runID, nil
}

// Stop requests cancellation of the active run. The run winds down at the
// next phase boundary; a blocking fetch or model call is not preempted.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return fmt.Errorf("no active pipeline run")
	}
	c.appendLogLocked("stop requested")
	c.cancel()
	return nil
}

// Wait blocks until the active run terminates. Returns immediately when no
// run is active.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.status
	snapshot.Log = append([]string(nil), c.status.Log...)
	return snapshot
}

// scrapedArtifact pairs a saved HTML file with the URL it came from.
type scrapedArtifact struct {
	htmlPath string
	url      db.CollectedURL
}

// cleanedArtifact pairs a cleaned text file with its origin.
type cleanedArtifact struct {
	textPath string
	url      db.CollectedURL
}

func (c *Coordinator) run(ctx context.Context, runID string, opts RunOptions) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.status.Running = false
		close(c.done)
		c.mu.Unlock()
	}()

	urlsProcessed := 0
	summariesGenerated := 0

	finish := func(phase Phase, status string, errMsg string) {
		if err := c.db.CompleteRun(runID, status, urlsProcessed, summariesGenerated, errMsg); err != nil {
			c.logger.Error("failed to record run completion", "run_id", runID, "error", err)
		}
		c.mu.Lock()
		c.status.Phase = phase
		c.status.URLsProcessed = urlsProcessed
		c.status.SummariesGenerated = summariesGenerated
		c.status.LastError = errMsg
		c.mu.Unlock()
		c.logger.Info("pipeline run finished",
			"run_id", runID, "status", status,
			"urls_processed", urlsProcessed, "summaries", summariesGenerated)
	}

	fail := func(err error) {
		c.logger.Error("pipeline run failed", "run_id", runID, "error", err)
		finish(PhaseFailed, "failed", err.Error())
	}

	// enter moves to the next phase unless a stop was requested. The stop
	// flag is honored before every phase, not just the early ones.
	enter := func(phase Phase) bool {
		if ctx.Err() != nil {
			c.appendLog("run stopped before " + string(phase))
			finish(PhaseStopped, "stopped", "")
			return false
		}
		c.mu.Lock()
		c.status.Phase = phase
		c.status.URLsProcessed = urlsProcessed
		c.status.SummariesGenerated = summariesGenerated
		c.appendLogLocked("entering " + string(phase))
		c.mu.Unlock()
		c.logger.Info("pipeline phase", "run_id", runID, "phase", phase)
		return true
	}

	if !enter(PhaseInitializing) {
		return
	}
	if err := c.summarizer.Ping(ctx); err != nil {
		fail(fmt.Errorf("summarizer unavailable: %w", err))
		return
	}

	if opts.Collect {
		if !enter(PhaseCollecting) {
			return
		}
		batchID := uuid.New().String()
		report, err := c.collector.Collect(ctx, batchID, opts.UseBrowser)
		if err != nil && ctx.Err() == nil {
			fail(fmt.Errorf("collection failed: %w", err))
			return
		}
		if report != nil {
			c.appendLog(fmt.Sprintf("collected %d URLs in batch %s", report.TotalURLs, batchID))
		}
	}

	if !enter(PhaseScraping) {
		return
	}
	scraped, err := c.scrapePhase(ctx, runID)
	if err != nil {
		fail(err)
		return
	}
	urlsProcessed = len(scraped)

	if !enter(PhaseParsing) {
		return
	}
	cleaned := c.parsePhase(scraped)

	if !enter(PhaseSummarizing) {
		return
	}
	pending := c.summarizePhase(ctx, cleaned)

	if !enter(PhaseTranslating) {
		return
	}
	stored, err := c.translatePhase(runID, pending)
	if err != nil {
		fail(err)
		return
	}
	summariesGenerated = stored

	if !enter(PhaseCleaningUp) {
		return
	}
	if removed, err := c.workspace.Cleanup(c.cfg.Pipeline.Retention.Duration); err != nil {
		c.logger.Warn("artifact cleanup failed", "error", err)
	} else if removed > 0 {
		c.appendLog(fmt.Sprintf("removed %d expired artifacts", removed))
	}

	finish(PhaseCompleted, "completed", "")
}

// scrapePhase fetches the unconsumed URLs and saves their HTML. A URL is
// marked consumed only when its fetch succeeded, so failures stay eligible
// for the next run.
func (c *Coordinator) scrapePhase(ctx context.Context, runID string) ([]scrapedArtifact, error) {
	urls, err := c.db.UnconsumedURLs(c.cfg.Pipeline.MaxURLs)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		c.appendLog("no unconsumed URLs to scrape")
		return nil, nil
	}

	var scraped []scrapedArtifact
	var consumedIDs []int64
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}

		html, err := c.fetcher.Fetch(ctx, u.URL)
		if err != nil {
			c.logger.Warn("scrape failed", "url", u.URL, "error", err)
			continue
		}
		htmlPath, err := c.workspace.SaveHTML(u.URL, html, time.Now())
		if err != nil {
			c.logger.Warn("failed to save HTML artifact", "url", u.URL, "error", err)
			continue
		}

		scraped = append(scraped, scrapedArtifact{htmlPath: htmlPath, url: u})
		consumedIDs = append(consumedIDs, u.ID)
	}

	if err := c.db.MarkURLsConsumed(consumedIDs, runID); err != nil {
		return nil, err
	}
	c.appendLog(fmt.Sprintf("scraped %d of %d URLs", len(scraped), len(urls)))
	return scraped, nil
}

// parsePhase extracts cleaned text from each scraped page. Extraction
// failures (too short, wrong language, unparseable) drop the article.
func (c *Coordinator) parsePhase(scraped []scrapedArtifact) []cleanedArtifact {
	var cleaned []cleanedArtifact
	for _, s := range scraped {
		html, err := c.workspace.ReadText(s.htmlPath)
		if err != nil {
			c.logger.Warn("failed to read HTML artifact", "path", s.htmlPath, "error", err)
			continue
		}
		text, err := c.extractor.Text(html, s.url.URL)
		if err != nil {
			c.logger.Warn("text extraction failed", "url", s.url.URL, "error", err)
			continue
		}
		textPath, err := c.workspace.SaveText(s.htmlPath, text)
		if err != nil {
			c.logger.Warn("failed to save text artifact", "path", s.htmlPath, "error", err)
			continue
		}
		cleaned = append(cleaned, cleanedArtifact{textPath: textPath, url: s.url})
	}
	c.appendLog(fmt.Sprintf("parsed %d of %d articles", len(cleaned), len(scraped)))
	return cleaned
}

// summarizePhase runs each cleaned article through the model with bounded
// retries. A model response that fails to parse is not retried; the raw
// response is kept for the translation phase.
func (c *Coordinator) summarizePhase(ctx context.Context, cleaned []cleanedArtifact) []db.SummaryRecord {
	byPath := make(map[string]db.CollectedURL, len(cleaned))
	items := make([]string, 0, len(cleaned))
	for _, a := range cleaned {
		byPath[a.textPath] = a.url
		items = append(items, a.textPath)
	}

	var mu sync.Mutex
	var pending []db.SummaryRecord

	processor := &summarize.Processor{
		MaxRetries: c.cfg.Pipeline.MaxRetries,
		Delay:      c.cfg.Pipeline.ItemDelay.Duration,
		Logger:     c.logger,
	}
	result := processor.ProcessAll(ctx, items, func(ctx context.Context, textPath string) error {
		text, err := c.workspace.ReadText(textPath)
		if err != nil {
			return err
		}
		raw, err := c.summarizer.Summarize(ctx, text)
		if err != nil {
			return err
		}
		// An empty response is a backend failure, not a parse failure.
		if raw == "" {
			return fmt.Errorf("empty summarizer response")
		}

		u := byPath[textPath]
		record := db.SummaryRecord{
			SourceFile:    textPath,
			SourceURL:     u.URL,
			ProcessedAt:   time.Now().UTC(),
			ModelUsed:     c.summarizer.Model(),
			RawResponse:   raw,
			PipelineRunID: "",
			URLID:         u.ID,
		}
		if structured, err := summarize.ParseStructured(raw); err != nil {
			c.logger.Warn("summary parse failed, keeping raw response",
				"source_file", textPath, "error", err)
		} else {
			record.Parsed = true
			record.Summary = structured.Summary
			record.InvestmentImplications = structured.InvestmentImplications
			record.KeyMetrics = structured.KeyMetrics
			record.CompaniesMentioned = structured.CompaniesMentioned
			record.SectorsAffected = structured.SectorsAffected
			record.Sentiment = structured.Sentiment
			record.RiskFactors = structured.RiskFactors
			record.Opportunities = structured.Opportunities
			record.TimeHorizon = structured.TimeHorizon
			record.ConfidenceScore = structured.ConfidenceScore
		}

		mu.Lock()
		pending = append(pending, record)
		mu.Unlock()
		return nil
	})

	c.appendLog(fmt.Sprintf("summarized %d articles, %d failed",
		len(result.Succeeded), len(result.Failed)))
	return pending
}

// translatePhase upserts the generated summaries into the database. An
// existing row for the same source file is replaced with the fresh summary.
func (c *Coordinator) translatePhase(runID string, pending []db.SummaryRecord) (int, error) {
	stored := 0
	for _, record := range pending {
		exists, err := c.db.SummaryExists(record.SourceFile)
		if err != nil {
			return stored, err
		}
		if exists {
			c.logger.Info("replacing existing summary", "source_file", record.SourceFile)
		}

		record.PipelineRunID = runID
		if err := c.db.UpsertSummary(record); err != nil {
			return stored, err
		}
		stored++
	}
	c.appendLog(fmt.Sprintf("stored %d summaries", stored))
	return stored, nil
}

func (c *Coordinator) appendLog(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLogLocked(msg)
}

func (c *Coordinator) appendLogLocked(msg string) {
	entry := time.Now().Format("15:04:05") + " " + msg
	c.status.Log = append(c.status.Log, entry)
	if len(c.status.Log) > logTailSize {
		c.status.Log = c.status.Log[len(c.status.Log)-logTailSize:]
	}
}
