package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"newspipe/internal/common"
	"newspipe/pkg/artifacts"
	"newspipe/pkg/collector"
	"newspipe/pkg/extract"
	"newspipe/pkg/fetcher"
	"newspipe/pkg/summarize"
)

// CollectAction runs one URL-collection batch over the active sources.
func CollectAction(c *cli.Context) error {
	logger := common.SetupLogger(c.Bool("verbose"))
	cfg, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	useBrowser := c.Bool("browser") || cfg.Collect.UseBrowser
	col := collector.New(database, fetcher.New(useBrowser), logger)
	col.Delay = cfg.Collect.SourceDelay.Duration

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batchID := uuid.New().String()
	report, err := col.Collect(ctx, batchID, useBrowser)
	if err != nil {
		return err
	}

	fmt.Printf("Batch %s: %d new URLs from %d sources\n",
		report.BatchID, report.TotalURLs, len(report.Sources))
	for _, s := range report.Sources {
		if s.Err != nil {
			fmt.Printf("  %-28s FAILED: %v\n", s.SourceName, s.Err)
		} else {
			fmt.Printf("  %-28s %d found, %d new\n", s.SourceName, s.URLsFound, s.URLsNew)
		}
	}
	return nil
}

// RunAction executes a full pipeline run in the foreground. Ctrl-C requests
// a cooperative stop; the run winds down at the next phase boundary.
func RunAction(c *cli.Context) error {
	logger := common.SetupLogger(c.Bool("verbose"))
	cfg, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	if model := c.String("model"); model != "" {
		cfg.Ollama.Model = model
	}
	useBrowser := c.Bool("browser") || cfg.Collect.UseBrowser

	workspace, err := artifacts.NewWorkspace(cfg.Artifacts.HTMLDir, cfg.Artifacts.TextDir)
	if err != nil {
		return err
	}

	f := fetcher.New(useBrowser)
	col := collector.New(database, f, logger)
	col.Delay = cfg.Collect.SourceDelay.Duration

	coordinator := NewCoordinator(
		database,
		f,
		col,
		extract.New(),
		summarize.NewClient(cfg.Ollama.URL, cfg.Ollama.Model),
		workspace,
		cfg,
		logger,
	)

	runID, err := coordinator.Start(RunOptions{
		Collect:    c.Bool("collect"),
		UseBrowser: useBrowser,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Pipeline run %s started\n", runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = coordinator.Stop()
	}()

	coordinator.Wait()
	stop()

	status := coordinator.Status()
	fmt.Printf("Run %s %s: %d URLs processed, %d summaries stored\n",
		status.RunID, status.Phase, status.URLsProcessed, status.SummariesGenerated)
	if status.LastError != "" {
		return fmt.Errorf("pipeline run failed: %s", status.LastError)
	}
	return nil
}

// StatusAction reports the most recent runs and batches from the ledger.
func StatusAction(c *cli.Context) error {
	_, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := database.ListRuns(1)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No pipeline runs recorded")
	} else {
		r := runs[0]
		fmt.Printf("Latest run:   %s\n", r.RunID)
		fmt.Printf("  Started:    %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
		if r.CompletedAt.Valid {
			fmt.Printf("  Completed:  %s\n", r.CompletedAt.Time.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("  Status:     %s\n", r.Status)
		fmt.Printf("  URLs:       %d\n", r.URLsProcessed)
		fmt.Printf("  Summaries:  %d\n", r.SummariesGenerated)
		if r.ErrorMessage.Valid {
			fmt.Printf("  Error:      %s\n", r.ErrorMessage.String)
		}
	}

	batches, err := database.ListBatches(1)
	if err != nil {
		return fmt.Errorf("failed to list batches: %w", err)
	}
	if len(batches) > 0 {
		b := batches[0]
		fmt.Printf("\nLatest batch: %s\n", b.BatchID)
		fmt.Printf("  Created:    %s\n", b.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Completed:  %v\n", b.Completed)
		fmt.Printf("  URLs:       %d\n", b.TotalURLs)
	}

	pending, err := database.UnconsumedURLs(0)
	if err != nil {
		return fmt.Errorf("failed to count unconsumed URLs: %w", err)
	}
	fmt.Printf("\nURLs awaiting pipeline: %d\n", len(pending))
	return nil
}
