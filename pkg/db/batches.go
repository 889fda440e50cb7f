package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CollectionBatch represents one URL-collection pass across the sources.
type CollectionBatch struct {
	ID           int64
	BatchID      string
	CreatedAt    time.Time
	TotalURLs    int
	SourcesCount int
	UseBrowser   bool
	Completed    bool
	ErrorMessage sql.NullString
}

// CollectedURL is one canonical article URL discovered by a batch.
type CollectedURL struct {
	ID             int64
	SourceID       int64
	URL            string
	Domain         string
	CollectedAt    time.Time
	BatchID        string
	UsedInPipeline bool
	PipelineRunID  sql.NullString
}

// NewCollectedURL is the insert shape for record_urls.
type NewCollectedURL struct {
	SourceID int64
	URL      string
	Domain   string
}

// URLFilter narrows CollectedURLs queries. Zero values mean "no filter".
type URLFilter struct {
	BatchID  string
	SourceID int64
	UsedOnly bool
	Limit    int
}

// CreateBatch records the start of a collection pass. Returns false when the
// batch_id already exists.
func (db *DB) CreateBatch(batchID string, sourcesCount int, useBrowser bool) (bool, error) {
	result, err := db.Exec(`
		INSERT OR IGNORE INTO collection_batches (batch_id, sources_count, use_browser)
		VALUES (?, ?, ?)
	`, batchID, sourcesCount, useBrowser)
	if err != nil {
		return false, fmt.Errorf("failed to create batch: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// CompleteBatch marks a batch completed with its final URL count. A batch
// completes even when every source failed; errMsg carries the failures.
func (db *DB) CompleteBatch(batchID string, totalURLs int, errMsg string) error {
	_, err := db.Exec(`
		UPDATE collection_batches
		SET completed = 1, total_urls = ?, error_message = ?
		WHERE batch_id = ?
	`, totalURLs, NewNullString(errMsg), batchID)
	if err != nil {
		return fmt.Errorf("failed to complete batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch by its batch_id. Returns nil when not found.
func (db *DB) GetBatch(batchID string) (*CollectionBatch, error) {
	var b CollectionBatch
	err := db.QueryRow(`
		SELECT id, batch_id, created_at, total_urls, sources_count, use_browser, completed, error_message
		FROM collection_batches
		WHERE batch_id = ?
	`, batchID).Scan(
		&b.ID, &b.BatchID, &b.CreatedAt, &b.TotalURLs, &b.SourcesCount,
		&b.UseBrowser, &b.Completed, &b.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &b, nil
}

// ListBatches returns the most recent batches.
func (db *DB) ListBatches(limit int) ([]CollectionBatch, error) {
	query := `
		SELECT id, batch_id, created_at, total_urls, sources_count, use_browser, completed, error_message
		FROM collection_batches
		ORDER BY created_at DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []CollectionBatch
	for rows.Next() {
		var b CollectionBatch
		if err := rows.Scan(
			&b.ID, &b.BatchID, &b.CreatedAt, &b.TotalURLs, &b.SourcesCount,
			&b.UseBrowser, &b.Completed, &b.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}

	return batches, rows.Err()
}

// AddCollectedURLs inserts the discovered URLs for one source within a batch
// and returns the count of genuinely new rows. A URL already recorded for
// this batch is skipped silently.
func (db *DB) AddCollectedURLs(batchID string, urls []NewCollectedURL) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, u := range urls {
		result, err := tx.Exec(`
			INSERT OR IGNORE INTO collected_urls (source_id, url, domain, batch_id)
			VALUES (?, ?, ?, ?)
		`, u.SourceID, u.URL, u.Domain, batchID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert collected URL: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get affected rows: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit collected URLs: %w", err)
	}
	return inserted, nil
}

// CollectedURLs returns URLs matching the filter, newest first.
func (db *DB) CollectedURLs(filter URLFilter) ([]CollectedURL, error) {
	query := `
		SELECT id, source_id, url, domain, collected_at, batch_id, used_in_pipeline, pipeline_run_id
		FROM collected_urls
		WHERE 1=1
	`
	var args []interface{}

	if filter.BatchID != "" {
		query += " AND batch_id = ?"
		args = append(args, filter.BatchID)
	}
	if filter.SourceID != 0 {
		query += " AND source_id = ?"
		args = append(args, filter.SourceID)
	}
	if filter.UsedOnly {
		query += " AND used_in_pipeline = 1"
	}
	query += " ORDER BY collected_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collected URLs: %w", err)
	}
	defer rows.Close()

	return scanCollectedURLs(rows)
}

// UnconsumedURLs selects URLs from completed batches that no pipeline run
// has consumed yet, oldest batch first so earlier discoveries drain first.
func (db *DB) UnconsumedURLs(limit int) ([]CollectedURL, error) {
	query := `
		SELECT cu.id, cu.source_id, cu.url, cu.domain, cu.collected_at, cu.batch_id,
		       cu.used_in_pipeline, cu.pipeline_run_id
		FROM collected_urls cu
		JOIN collection_batches cb ON cu.batch_id = cb.batch_id
		WHERE cb.completed = 1 AND cu.used_in_pipeline = 0
		ORDER BY cb.created_at ASC, cu.id ASC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unconsumed URLs: %w", err)
	}
	defer rows.Close()

	return scanCollectedURLs(rows)
}

// MarkURLsConsumed flips used_in_pipeline exactly once and stamps the
// consuming run.
func (db *DB) MarkURLsConsumed(urlIDs []int64, runID string) error {
	if len(urlIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(urlIDs))
	args := make([]interface{}, 0, len(urlIDs)+1)
	args = append(args, runID)
	for i, id := range urlIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	_, err := db.Exec(fmt.Sprintf(`
		UPDATE collected_urls
		SET used_in_pipeline = 1, pipeline_run_id = ?
		WHERE id IN (%s) AND used_in_pipeline = 0
	`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return fmt.Errorf("failed to mark URLs consumed: %w", err)
	}
	return nil
}

// NormalizeTrailingSlashes rewrites any collected URL ending in "/" to its
// separator-stripped form. When the stripped form already exists in the same
// batch the slash row is deleted instead, so each batch ends with at most
// one row per canonical form. Returns (rewritten, deleted).
func (db *DB) NormalizeTrailingSlashes() (int, int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, url, batch_id FROM collected_urls
		WHERE url LIKE '%/'
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query trailing-slash URLs: %w", err)
	}

	type slashRow struct {
		id      int64
		url     string
		batchID string
	}
	var candidates []slashRow
	for rows.Next() {
		var r slashRow
		if err := rows.Scan(&r.id, &r.url, &r.batchID); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("failed to scan URL: %w", err)
		}
		candidates = append(candidates, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	rewritten, deleted := 0, 0
	for _, r := range candidates {
		stripped := strings.TrimSuffix(r.url, "/")
		if strings.HasSuffix(stripped, "/") {
			// Scheme-only or degenerate URL, leave it alone.
			continue
		}

		var existingID int64
		err := tx.QueryRow(
			"SELECT id FROM collected_urls WHERE url = ? AND batch_id = ?",
			stripped, r.batchID).Scan(&existingID)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.Exec("UPDATE collected_urls SET url = ? WHERE id = ?", stripped, r.id); err != nil {
				return 0, 0, fmt.Errorf("failed to rewrite URL: %w", err)
			}
			rewritten++
		case err != nil:
			return 0, 0, fmt.Errorf("failed to check canonical URL: %w", err)
		default:
			if _, err := tx.Exec("DELETE FROM collected_urls WHERE id = ?", r.id); err != nil {
				return 0, 0, fmt.Errorf("failed to delete duplicate URL: %w", err)
			}
			deleted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit normalization: %w", err)
	}
	return rewritten, deleted, nil
}

func scanCollectedURLs(rows *sql.Rows) ([]CollectedURL, error) {
	var urls []CollectedURL
	for rows.Next() {
		var u CollectedURL
		if err := rows.Scan(
			&u.ID, &u.SourceID, &u.URL, &u.Domain, &u.CollectedAt,
			&u.BatchID, &u.UsedInPipeline, &u.PipelineRunID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan collected URL: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// DomainCount pairs a domain with how many URLs it contributed.
type DomainCount struct {
	Domain string
	Count  int
}

// CollectionStats summarizes the collected-URL store.
type CollectionStats struct {
	TotalURLs     int
	UniqueDomains int
	SourcesUsed   int
	TotalBatches  int
	URLsConsumed  int
	TopDomains    []DomainCount
}

// GetCollectionStats aggregates counts across the collected-URL store.
func (db *DB) GetCollectionStats() (*CollectionStats, error) {
	var stats CollectionStats
	err := db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(DISTINCT domain),
			COUNT(DISTINCT source_id),
			COUNT(DISTINCT batch_id),
			COALESCE(SUM(CASE WHEN used_in_pipeline = 1 THEN 1 ELSE 0 END), 0)
		FROM collected_urls
	`).Scan(&stats.TotalURLs, &stats.UniqueDomains, &stats.SourcesUsed,
		&stats.TotalBatches, &stats.URLsConsumed)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate collection stats: %w", err)
	}

	rows, err := db.Query(`
		SELECT domain, COUNT(*) as count
		FROM collected_urls
		GROUP BY domain
		ORDER BY count DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query top domains: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan domain count: %w", err)
		}
		stats.TopDomains = append(stats.TopDomains, dc)
	}

	return &stats, rows.Err()
}
