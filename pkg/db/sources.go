package db

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"
)

// Source represents a crawl target in the registry.
type Source struct {
	ID               int64
	Name             string
	URL              string
	Category         string
	Description      string
	Active           bool
	AddedAt          time.Time
	LastCollected    sql.NullTime
	CollectionCount  int
	AvgArticlesFound float64
}

// SourceUpdate enumerates the mutable fields of a source. Nil means
// "leave unchanged".
type SourceUpdate struct {
	Name        *string
	URL         *string
	Category    *string
	Description *string
	Active      *bool
}

// AddSource inserts a new source. Returns (id, false, nil) with id=0 when a
// source with the same name or url already exists.
func (db *DB) AddSource(name, url, category, description string, active bool) (int64, bool, error) {
	result, err := db.Exec(`
		INSERT OR IGNORE INTO news_sources (name, url, category, description, active)
		VALUES (?, ?, ?, ?, ?)
	`, name, url, category, description, active)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert source: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return 0, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get source ID: %w", err)
	}
	return id, true, nil
}

// GetSource retrieves a source by ID. Returns nil when not found.
func (db *DB) GetSource(sourceID int64) (*Source, error) {
	var s Source
	err := db.QueryRow(`
		SELECT id, name, url, category, description, active, added_at,
		       last_collected, collection_count, avg_articles_found
		FROM news_sources
		WHERE id = ?
	`, sourceID).Scan(
		&s.ID, &s.Name, &s.URL, &s.Category, &s.Description, &s.Active,
		&s.AddedAt, &s.LastCollected, &s.CollectionCount, &s.AvgArticlesFound,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &s, nil
}

// ListSources returns sources ordered by name.
func (db *DB) ListSources(activeOnly bool) ([]Source, error) {
	query := `
		SELECT id, name, url, category, description, active, added_at,
		       last_collected, collection_count, avg_articles_found
		FROM news_sources
	`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY name"

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(
			&s.ID, &s.Name, &s.URL, &s.Category, &s.Description, &s.Active,
			&s.AddedAt, &s.LastCollected, &s.CollectionCount, &s.AvgArticlesFound,
		); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}

	return sources, rows.Err()
}

// UpdateSource applies a partial update to a source.
func (db *DB) UpdateSource(sourceID int64, update SourceUpdate) (bool, error) {
	var clauses []string
	var args []interface{}

	if update.Name != nil {
		clauses = append(clauses, "name = ?")
		args = append(args, *update.Name)
	}
	if update.URL != nil {
		clauses = append(clauses, "url = ?")
		args = append(args, *update.URL)
	}
	if update.Category != nil {
		clauses = append(clauses, "category = ?")
		args = append(args, *update.Category)
	}
	if update.Description != nil {
		clauses = append(clauses, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Active != nil {
		clauses = append(clauses, "active = ?")
		args = append(args, *update.Active)
	}

	if len(clauses) == 0 {
		return false, nil
	}

	args = append(args, sourceID)
	result, err := db.Exec(
		"UPDATE news_sources SET "+strings.Join(clauses, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return false, fmt.Errorf("failed to update source: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteSource removes a source; collected URLs cascade.
func (db *DB) DeleteSource(sourceID int64) (bool, error) {
	result, err := db.Exec("DELETE FROM news_sources WHERE id = ?", sourceID)
	if err != nil {
		return false, fmt.Errorf("failed to delete source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// Categories returns the distinct source categories.
func (db *DB) Categories() ([]string, error) {
	rows, err := db.Query("SELECT DISTINCT category FROM news_sources ORDER BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

// UpdateCollectionStats records one completed crawl of a source:
// collection_count is incremented and avg_articles_found is recomputed as
// the running mean over all completions, rounded to one decimal. Callers
// invoke this once per source per batch; retries of later pipeline phases
// must not re-apply it.
func (db *DB) UpdateCollectionStats(sourceID int64, articlesFound int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	var avg float64
	err = tx.QueryRow(
		"SELECT collection_count, avg_articles_found FROM news_sources WHERE id = ?",
		sourceID).Scan(&count, &avg)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read collection stats: %w", err)
	}

	newCount := count + 1
	var newAvg float64
	if count == 0 {
		newAvg = float64(articlesFound)
	} else {
		newAvg = (avg*float64(count) + float64(articlesFound)) / float64(newCount)
	}
	newAvg = math.Round(newAvg*10) / 10

	_, err = tx.Exec(`
		UPDATE news_sources
		SET collection_count = ?, avg_articles_found = ?, last_collected = CURRENT_TIMESTAMP
		WHERE id = ?
	`, newCount, newAvg, sourceID)
	if err != nil {
		return fmt.Errorf("failed to update collection stats: %w", err)
	}

	return tx.Commit()
}
