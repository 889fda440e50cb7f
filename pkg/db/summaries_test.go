package db

import (
	"testing"
)

func parsedRecord(sourceFile string) SummaryRecord {
	return SummaryRecord{
		SourceFile:             sourceFile,
		SourceURL:              "https://www.coindesk.com/markets/2025/01/02/bitcoin-rallies",
		ModelUsed:              "llama3.1:8b",
		RawResponse:            `{"summary": "Bitcoin rallied."}`,
		Parsed:                 true,
		Summary:                "Bitcoin rallied.",
		InvestmentImplications: "Momentum favors crypto-adjacent equities.",
		KeyMetrics:             []string{"BTC +5%"},
		CompaniesMentioned:     []string{"Coinbase"},
		SectorsAffected:        []string{"crypto"},
		Sentiment:              "bullish",
		RiskFactors:            []string{"regulatory pressure"},
		Opportunities:          []string{"miners"},
		TimeHorizon:            "short-term",
		ConfidenceScore:        0.8,
	}
}

func TestUpsertSummaryIdempotent(t *testing.T) {
	db := setupTestDB(t)

	record := parsedRecord("clean_coindesk_20250102.txt")
	if err := db.UpsertSummary(record); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}

	// Reprocessing the same source file replaces the row, never duplicates it.
	record.Summary = "Bitcoin rallied sharply."
	record.Sentiment = "very bullish"
	if err := db.UpsertSummary(record); err != nil {
		t.Fatalf("second UpsertSummary failed: %v", err)
	}

	count, err := db.SummariesCount()
	if err != nil {
		t.Fatalf("SummariesCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 summary row, got %d", count)
	}

	stored, err := db.GetSummary(record.SourceFile)
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if stored == nil {
		t.Fatal("summary not found")
	}
	if stored.Summary.String != "Bitcoin rallied sharply." || stored.Sentiment.String != "very bullish" {
		t.Errorf("row not replaced with second content: %+v", stored)
	}
}

func TestUpsertSummaryRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	record := parsedRecord("clean_reuters_20250102.txt")
	if err := db.UpsertSummary(record); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}

	stored, err := db.GetSummary(record.SourceFile)
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if stored == nil {
		t.Fatal("summary not found")
	}
	if len(stored.CompaniesMentioned) != 1 || stored.CompaniesMentioned[0] != "Coinbase" {
		t.Errorf("companies_mentioned lost: %v", stored.CompaniesMentioned)
	}
	if len(stored.RiskFactors) != 1 || stored.RiskFactors[0] != "regulatory pressure" {
		t.Errorf("risk_factors lost: %v", stored.RiskFactors)
	}
	if !stored.ConfidenceScore.Valid || stored.ConfidenceScore.Float64 != 0.8 {
		t.Errorf("confidence_score lost: %+v", stored.ConfidenceScore)
	}
	if !stored.SourceURL.Valid || stored.SourceURL.String != record.SourceURL {
		t.Errorf("source_url lost: %+v", stored.SourceURL)
	}
}

func TestUpsertSummaryParseFailure(t *testing.T) {
	db := setupTestDB(t)

	// A parse failure still persists the raw response with NULL structure.
	record := SummaryRecord{
		SourceFile:  "clean_cnbc_20250102.txt",
		ModelUsed:   "llama3.1:8b",
		RawResponse: "the model returned prose instead of JSON",
		Parsed:      false,
	}
	if err := db.UpsertSummary(record); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}

	stored, err := db.GetSummary(record.SourceFile)
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if stored == nil {
		t.Fatal("summary not found")
	}
	if stored.Summary.Valid || stored.Sentiment.Valid || stored.ConfidenceScore.Valid {
		t.Errorf("parse failure should leave structured fields NULL: %+v", stored)
	}
	if stored.RawResponse != record.RawResponse {
		t.Errorf("raw response lost: %q", stored.RawResponse)
	}
	if stored.KeyMetrics != nil {
		t.Errorf("key_metrics should be empty, got %v", stored.KeyMetrics)
	}
}

func TestUpsertSummaryValidation(t *testing.T) {
	db := setupTestDB(t)

	record := parsedRecord("clean_x_20250102.txt")
	record.ConfidenceScore = 1.5
	if err := db.UpsertSummary(record); err == nil {
		t.Error("confidence score above 1 should be rejected")
	}

	record = parsedRecord("clean_x_20250102.txt")
	record.SourceFile = ""
	if err := db.UpsertSummary(record); err == nil {
		t.Error("missing source_file should be rejected")
	}
}

func TestSummaryExists(t *testing.T) {
	db := setupTestDB(t)

	exists, err := db.SummaryExists("clean_nothing.txt")
	if err != nil {
		t.Fatalf("SummaryExists failed: %v", err)
	}
	if exists {
		t.Error("expected false for unknown source file")
	}

	if err := db.UpsertSummary(parsedRecord("clean_nothing.txt")); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}
	exists, err = db.SummaryExists("clean_nothing.txt")
	if err != nil {
		t.Fatalf("SummaryExists failed: %v", err)
	}
	if !exists {
		t.Error("expected true after upsert")
	}
}

func TestListSummaries(t *testing.T) {
	db := setupTestDB(t)

	for _, name := range []string{"clean_a.txt", "clean_b.txt", "clean_c.txt"} {
		if err := db.UpsertSummary(parsedRecord(name)); err != nil {
			t.Fatalf("UpsertSummary failed: %v", err)
		}
	}

	listings, err := db.ListSummaries(2)
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(listings) != 2 {
		t.Errorf("expected 2 listings with limit, got %d", len(listings))
	}
}
