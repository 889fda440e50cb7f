package db

import (
	"database/sql"
	"fmt"
	"time"
)

// PipelineRun is one end-to-end execution of the pipeline.
type PipelineRun struct {
	ID                 int64
	RunID              string
	StartedAt          time.Time
	CompletedAt        sql.NullTime
	Status             string
	URLsProcessed      int
	SummariesGenerated int
	ModelUsed          sql.NullString
	UseBrowser         bool
	ErrorMessage       sql.NullString
}

// CreateRun records the start of a pipeline run. Returns false when the
// run_id already exists.
func (db *DB) CreateRun(runID, modelUsed string, useBrowser bool) (bool, error) {
	result, err := db.Exec(`
		INSERT OR IGNORE INTO pipeline_runs (run_id, model_used, use_browser)
		VALUES (?, ?, ?)
	`, runID, modelUsed, useBrowser)
	if err != nil {
		return false, fmt.Errorf("failed to create pipeline run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// CompleteRun writes the terminal state of a run exactly once.
func (db *DB) CompleteRun(runID, status string, urlsProcessed, summariesGenerated int, errMsg string) error {
	_, err := db.Exec(`
		UPDATE pipeline_runs
		SET completed_at = CURRENT_TIMESTAMP, status = ?, urls_processed = ?,
		    summaries_generated = ?, error_message = ?
		WHERE run_id = ?
	`, status, urlsProcessed, summariesGenerated, NewNullString(errMsg), runID)
	if err != nil {
		return fmt.Errorf("failed to complete pipeline run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by run_id. Returns nil when not found.
func (db *DB) GetRun(runID string) (*PipelineRun, error) {
	var r PipelineRun
	err := db.QueryRow(`
		SELECT id, run_id, started_at, completed_at, status, urls_processed,
		       summaries_generated, model_used, use_browser, error_message
		FROM pipeline_runs
		WHERE run_id = ?
	`, runID).Scan(
		&r.ID, &r.RunID, &r.StartedAt, &r.CompletedAt, &r.Status,
		&r.URLsProcessed, &r.SummariesGenerated, &r.ModelUsed, &r.UseBrowser,
		&r.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline run: %w", err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs.
func (db *DB) ListRuns(limit int) ([]PipelineRun, error) {
	query := `
		SELECT id, run_id, started_at, completed_at, status, urls_processed,
		       summaries_generated, model_used, use_browser, error_message
		FROM pipeline_runs
		ORDER BY started_at DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []PipelineRun
	for rows.Next() {
		var r PipelineRun
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.StartedAt, &r.CompletedAt, &r.Status,
			&r.URLsProcessed, &r.SummariesGenerated, &r.ModelUsed, &r.UseBrowser,
			&r.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}
