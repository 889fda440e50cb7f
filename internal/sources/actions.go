// Package sources implements the CLI verbs for the source registry.
package sources

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"newspipe/internal/common"
	"newspipe/pkg/db"
)

func ListAction(c *cli.Context) error {
	_, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	sources, err := database.ListSources(c.Bool("active"))
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	if len(sources) == 0 {
		fmt.Println("No sources found")
		return nil
	}

	fmt.Printf("%-4s %-28s %-44s %-20s %-7s %-7s %-8s\n",
		"ID", "Name", "URL", "Category", "Active", "Crawls", "Avg URLs")
	fmt.Println(strings.Repeat("-", 125))
	for _, s := range sources {
		fmt.Printf("%-4d %-28s %-44s %-20s %-7v %-7d %-8.1f\n",
			s.ID, s.Name, s.URL, s.Category, s.Active, s.CollectionCount, s.AvgArticlesFound)
	}
	fmt.Printf("\nTotal: %d sources\n", len(sources))
	return nil
}

func AddAction(c *cli.Context) error {
	name := c.String("name")
	url := c.String("url")
	if name == "" || url == "" {
		return fmt.Errorf("both --name and --url are required")
	}

	_, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	id, created, err := database.AddSource(name, url, c.String("category"), c.String("description"), true)
	if err != nil {
		return fmt.Errorf("failed to add source: %w", err)
	}
	if !created {
		fmt.Printf("Source %q already exists\n", name)
		return nil
	}
	fmt.Printf("Added source %d: %s\n", id, name)
	return nil
}

func EnableAction(c *cli.Context) error {
	return setActive(c, true)
}

func DisableAction(c *cli.Context) error {
	return setActive(c, false)
}

func setActive(c *cli.Context, active bool) error {
	sourceID := c.Int64("id")
	if sourceID == 0 {
		return fmt.Errorf("--id is required")
	}

	_, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	updated, err := database.UpdateSource(sourceID, db.SourceUpdate{Active: &active})
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	if !updated {
		return fmt.Errorf("source %d not found", sourceID)
	}

	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Printf("Source %d %s\n", sourceID, state)
	return nil
}

func RemoveAction(c *cli.Context) error {
	sourceID := c.Int64("id")
	if sourceID == 0 {
		return fmt.Errorf("--id is required")
	}

	_, database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	deleted, err := database.DeleteSource(sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if !deleted {
		return fmt.Errorf("source %d not found", sourceID)
	}
	fmt.Printf("Source %d removed (collected URLs cascade)\n", sourceID)
	return nil
}
