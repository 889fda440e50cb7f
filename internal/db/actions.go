// Package db implements the CLI verbs for inspecting the pipeline database.
package db

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"newspipe/internal/common"
)

func BatchesAction(c *cli.Context) error {
	_, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	batches, err := database.ListBatches(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list batches: %w", err)
	}
	if len(batches) == 0 {
		fmt.Println("No collection batches found")
		return nil
	}

	fmt.Printf("%-38s %-20s %-8s %-8s %-9s %-9s %s\n",
		"Batch ID", "Created", "URLs", "Sources", "Browser", "Done", "Error")
	fmt.Println(strings.Repeat("-", 110))
	for _, b := range batches {
		errMsg := ""
		if b.ErrorMessage.Valid {
			errMsg = truncateCol(b.ErrorMessage.String, 30)
		}
		fmt.Printf("%-38s %-20s %-8d %-8d %-9v %-9v %s\n",
			b.BatchID, b.CreatedAt.Format("2006-01-02 15:04:05"),
			b.TotalURLs, b.SourcesCount, b.UseBrowser, b.Completed, errMsg)
	}
	fmt.Printf("\nTotal: %d batches\n", len(batches))
	return nil
}

func RunsAction(c *cli.Context) error {
	_, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := database.ListRuns(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No pipeline runs found")
		return nil
	}

	fmt.Printf("%-38s %-20s %-10s %-6s %-10s %-14s %s\n",
		"Run ID", "Started", "Status", "URLs", "Summaries", "Model", "Error")
	fmt.Println(strings.Repeat("-", 120))
	for _, r := range runs {
		errMsg := ""
		if r.ErrorMessage.Valid {
			errMsg = truncateCol(r.ErrorMessage.String, 30)
		}
		fmt.Printf("%-38s %-20s %-10s %-6d %-10d %-14s %s\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status,
			r.URLsProcessed, r.SummariesGenerated, r.ModelUsed.String, errMsg)
	}
	fmt.Printf("\nTotal: %d runs\n", len(runs))
	return nil
}

func SummariesAction(c *cli.Context) error {
	_, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	listings, err := database.ListSummaries(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list summaries: %w", err)
	}
	if len(listings) == 0 {
		fmt.Println("No summaries found")
		return nil
	}

	fmt.Printf("%-48s %-20s %-10s %-6s %s\n",
		"Source File", "Processed", "Sentiment", "Conf", "URL")
	fmt.Println(strings.Repeat("-", 140))
	for _, l := range listings {
		sentiment := "-"
		if l.Sentiment.Valid {
			sentiment = l.Sentiment.String
		}
		conf := "-"
		if l.ConfidenceScore.Valid {
			conf = fmt.Sprintf("%.2f", l.ConfidenceScore.Float64)
		}
		url := ""
		if l.SourceURL.Valid {
			url = truncateCol(l.SourceURL.String, 50)
		}
		fmt.Printf("%-48s %-20s %-10s %-6s %s\n",
			truncateCol(l.SourceFile, 48), l.ProcessedAt.Format("2006-01-02 15:04:05"),
			sentiment, conf, url)
	}
	fmt.Printf("\nTotal: %d summaries\n", len(listings))
	return nil
}

func StatsAction(c *cli.Context) error {
	_, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := database.GetCollectionStats()
	if err != nil {
		return fmt.Errorf("failed to load collection stats: %w", err)
	}
	summaries, err := database.SummariesCount()
	if err != nil {
		return fmt.Errorf("failed to count summaries: %w", err)
	}

	fmt.Println("Collection")
	fmt.Printf("  URLs collected:  %d\n", stats.TotalURLs)
	fmt.Printf("  URLs consumed:   %d\n", stats.URLsConsumed)
	fmt.Printf("  Unique domains:  %d\n", stats.UniqueDomains)
	fmt.Printf("  Sources used:    %d\n", stats.SourcesUsed)
	fmt.Printf("  Batches:         %d\n", stats.TotalBatches)
	fmt.Printf("\nSummaries stored:  %d\n", summaries)

	if len(stats.TopDomains) > 0 {
		fmt.Println("\nTop domains")
		for _, d := range stats.TopDomains {
			fmt.Printf("  %-30s %d\n", d.Domain, d.Count)
		}
	}
	return nil
}

// NormalizeAction rewrites trailing-slash URL variants to their canonical
// form, deleting within-batch duplicates the rewrite would create.
func NormalizeAction(c *cli.Context) error {
	_, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	rewritten, deleted, err := database.NormalizeTrailingSlashes()
	if err != nil {
		return fmt.Errorf("failed to normalize URLs: %w", err)
	}
	fmt.Printf("Normalized %d URLs, removed %d duplicates\n", rewritten, deleted)
	return nil
}

func truncateCol(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
