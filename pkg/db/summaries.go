package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SummaryRecord is the insert shape for an article summary. SourceFile is
// the idempotency key: upserting the same SourceFile twice replaces the row.
type SummaryRecord struct {
	SourceFile  string
	SourceURL   string
	ProcessedAt time.Time
	ModelUsed   string
	RawResponse string

	// Parsed structured fields; Parsed=false records a parse failure and
	// leaves them empty.
	Parsed                 bool
	Summary                string
	InvestmentImplications string
	KeyMetrics             []string
	CompaniesMentioned     []string
	SectorsAffected        []string
	Sentiment              string
	RiskFactors            []string
	Opportunities          []string
	TimeHorizon            string
	ConfidenceScore        float64

	PipelineRunID string
	URLID         int64
}

// ArticleSummary is the read shape of a persisted summary row.
type ArticleSummary struct {
	ID                     int64
	SourceFile             string
	SourceURL              sql.NullString
	ProcessedAt            time.Time
	ModelUsed              string
	RawResponse            string
	Summary                sql.NullString
	InvestmentImplications sql.NullString
	KeyMetrics             []string
	CompaniesMentioned     []string
	SectorsAffected        []string
	Sentiment              sql.NullString
	RiskFactors            []string
	Opportunities          []string
	TimeHorizon            sql.NullString
	ConfidenceScore        sql.NullFloat64
	PipelineRunID          sql.NullString
	URLID                  sql.NullInt64
}

// UpsertSummary inserts or fully replaces the summary row for
// record.SourceFile. Confidence scores outside [0,1] are rejected.
func (db *DB) UpsertSummary(record SummaryRecord) error {
	if record.SourceFile == "" {
		return fmt.Errorf("summary record missing source_file")
	}
	if record.Parsed && (record.ConfidenceScore < 0 || record.ConfidenceScore > 1) {
		return fmt.Errorf("confidence score %v outside [0,1]", record.ConfidenceScore)
	}

	processedAt := record.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	var (
		summary, implications, sentiment, horizon sql.NullString
		confidence                                sql.NullFloat64
		metrics, companies, sectors, risks, opps  interface{}
	)
	if record.Parsed {
		summary = NewNullString(record.Summary)
		implications = NewNullString(record.InvestmentImplications)
		sentiment = NewNullString(record.Sentiment)
		horizon = NewNullString(record.TimeHorizon)
		confidence = sql.NullFloat64{Float64: record.ConfidenceScore, Valid: true}
		metrics = marshalList(record.KeyMetrics)
		companies = marshalList(record.CompaniesMentioned)
		sectors = marshalList(record.SectorsAffected)
		risks = marshalList(record.RiskFactors)
		opps = marshalList(record.Opportunities)
	}

	var urlID interface{}
	if record.URLID != 0 {
		urlID = record.URLID
	}

	_, err := db.Exec(`
		INSERT OR REPLACE INTO article_summaries (
			source_file, source_url, processed_at, model_used, raw_response,
			summary, investment_implications, key_metrics, companies_mentioned,
			sectors_affected, sentiment, risk_factors, opportunities,
			time_horizon, confidence_score, pipeline_run_id, url_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.SourceFile,
		NewNullString(record.SourceURL),
		processedAt,
		record.ModelUsed,
		record.RawResponse,
		summary,
		implications,
		metrics,
		companies,
		sectors,
		sentiment,
		risks,
		opps,
		horizon,
		confidence,
		NewNullString(record.PipelineRunID),
		urlID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

// SummaryExists reports whether a summary is already stored for sourceFile.
func (db *DB) SummaryExists(sourceFile string) (bool, error) {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM article_summaries WHERE source_file = ?",
		sourceFile).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check summary: %w", err)
	}
	return count > 0, nil
}

// GetSummary retrieves a summary by its source_file key. Returns nil when
// not found.
func (db *DB) GetSummary(sourceFile string) (*ArticleSummary, error) {
	var (
		s                                        ArticleSummary
		metrics, companies, sectors, risks, opps sql.NullString
	)
	err := db.QueryRow(`
		SELECT id, source_file, source_url, processed_at, model_used, raw_response,
		       summary, investment_implications, key_metrics, companies_mentioned,
		       sectors_affected, sentiment, risk_factors, opportunities,
		       time_horizon, confidence_score, pipeline_run_id, url_id
		FROM article_summaries
		WHERE source_file = ?
	`, sourceFile).Scan(
		&s.ID, &s.SourceFile, &s.SourceURL, &s.ProcessedAt, &s.ModelUsed,
		&s.RawResponse, &s.Summary, &s.InvestmentImplications,
		&metrics, &companies, &sectors, &s.Sentiment, &risks, &opps,
		&s.TimeHorizon, &s.ConfidenceScore, &s.PipelineRunID, &s.URLID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	s.KeyMetrics = unmarshalList(metrics)
	s.CompaniesMentioned = unmarshalList(companies)
	s.SectorsAffected = unmarshalList(sectors)
	s.RiskFactors = unmarshalList(risks)
	s.Opportunities = unmarshalList(opps)
	return &s, nil
}

// SummariesCount returns the number of stored summaries.
func (db *DB) SummariesCount() (int, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM article_summaries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count summaries: %w", err)
	}
	return count, nil
}

// SummaryListing is the compact row shape used by the status surfaces.
type SummaryListing struct {
	SourceFile      string
	SourceURL       sql.NullString
	ProcessedAt     time.Time
	Sentiment       sql.NullString
	ConfidenceScore sql.NullFloat64
}

// ListSummaries returns the most recently processed summaries.
func (db *DB) ListSummaries(limit int) ([]SummaryListing, error) {
	query := `
		SELECT source_file, source_url, processed_at, sentiment, confidence_score
		FROM article_summaries
		ORDER BY processed_at DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var listings []SummaryListing
	for rows.Next() {
		var l SummaryListing
		if err := rows.Scan(&l.SourceFile, &l.SourceURL, &l.ProcessedAt, &l.Sentiment, &l.ConfidenceScore); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

// marshalList serializes a string slice as a JSON array, [] when empty.
func marshalList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalList(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(ns.String), &items); err != nil {
		return nil
	}
	return items
}
