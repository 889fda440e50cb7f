// Package common holds helpers shared by the CLI action packages.
package common

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"newspipe/models"
	"newspipe/pkg/db"
)

// SetupLogger installs the process-wide structured logger. Debug level when
// verbose is set, JSON to stderr otherwise like any other pipeline output.
func SetupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig resolves the configuration for a CLI invocation from the
// --config flag, environment, and defaults.
func LoadConfig(c *cli.Context) (*models.Config, error) {
	return models.LoadConfig(c.String("config"))
}

// OpenDB loads configuration and opens the pipeline database, seeding the
// default source catalog on first use. The caller closes the database.
func OpenDB(c *cli.Context) (*models.Config, *db.DB, error) {
	cfg, err := LoadConfig(c)
	if err != nil {
		return nil, nil, err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := SeedSources(database, cfg.Sources); err != nil {
		_ = database.Close()
		return nil, nil, err
	}
	return cfg, database, nil
}

// SeedSources inserts the configured source catalog. Existing sources are
// left untouched, so user edits survive restarts.
func SeedSources(database *db.DB, sources []models.SeedSource) error {
	for _, s := range sources {
		if _, _, err := database.AddSource(s.Name, s.URL, s.Category, s.Description, s.Active); err != nil {
			return fmt.Errorf("failed to seed source %s: %w", s.Name, err)
		}
	}
	return nil
}
