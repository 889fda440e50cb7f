package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	dbactions "newspipe/internal/db"
	"newspipe/internal/pipeline"
	"newspipe/internal/sources"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "newspipe",
		Usage:   "investment news collection and summarization pipeline",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to config file (default newspipe.yaml)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},
		Commands: []*cli.Command{
			{
				Name:   "collect",
				Usage:  "collect article URLs from the active sources",
				Action: pipeline.CollectAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "browser", Usage: "render listing pages in a headless browser"},
				},
			},
			{
				Name:   "run",
				Usage:  "run the full pipeline over unconsumed URLs",
				Action: pipeline.RunAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "collect", Usage: "run a collection batch first"},
					&cli.BoolFlag{Name: "browser", Usage: "render pages in a headless browser"},
					&cli.StringFlag{Name: "model", Usage: "override the summarization model"},
				},
			},
			{
				Name:   "status",
				Usage:  "show the latest run, batch, and pending URL count",
				Action: pipeline.StatusAction,
			},
			{
				Name:  "sources",
				Usage: "manage the news source registry",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list sources",
						Action: sources.ListAction,
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "active", Usage: "only active sources"},
						},
					},
					{
						Name:   "add",
						Usage:  "add a source",
						Action: sources.AddAction,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Required: true},
							&cli.StringFlag{Name: "url", Required: true},
							&cli.StringFlag{Name: "category", Value: "General"},
							&cli.StringFlag{Name: "description"},
						},
					},
					{
						Name:   "enable",
						Usage:  "activate a source",
						Action: sources.EnableAction,
						Flags:  []cli.Flag{&cli.Int64Flag{Name: "id", Required: true}},
					},
					{
						Name:   "disable",
						Usage:  "deactivate a source",
						Action: sources.DisableAction,
						Flags:  []cli.Flag{&cli.Int64Flag{Name: "id", Required: true}},
					},
					{
						Name:   "remove",
						Usage:  "delete a source and its collected URLs",
						Action: sources.RemoveAction,
						Flags:  []cli.Flag{&cli.Int64Flag{Name: "id", Required: true}},
					},
				},
			},
			{
				Name:   "normalize",
				Usage:  "canonicalize trailing-slash URL variants in place",
				Action: dbactions.NormalizeAction,
			},
			{
				Name:  "db",
				Usage: "inspect the pipeline database",
				Subcommands: []*cli.Command{
					{
						Name:   "batches",
						Usage:  "list collection batches",
						Action: dbactions.BatchesAction,
						Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
					},
					{
						Name:   "runs",
						Usage:  "list pipeline runs",
						Action: dbactions.RunsAction,
						Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
					},
					{
						Name:   "summaries",
						Usage:  "list stored summaries",
						Action: dbactions.SummariesAction,
						Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
					},
					{
						Name:   "stats",
						Usage:  "show collection and summary statistics",
						Action: dbactions.StatsAction,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
