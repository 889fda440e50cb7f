package summarize

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Structured is the investment analysis the model is prompted to return.
type Structured struct {
	Summary                string   `json:"summary"`
	InvestmentImplications string   `json:"investment_implications"`
	KeyMetrics             []string `json:"key_metrics"`
	CompaniesMentioned     []string `json:"companies_mentioned"`
	SectorsAffected        []string `json:"sectors_affected"`
	Sentiment              string   `json:"sentiment"`
	RiskFactors            []string `json:"risk_factors"`
	Opportunities          []string `json:"opportunities"`
	TimeHorizon            string   `json:"time_horizon"`
	ConfidenceScore        float64  `json:"confidence_score"`
}

// CleanResponse strips markdown fences and any prose surrounding the JSON
// object in a model response. Models often wrap the object in a code block
// or preface it with commentary despite the prompt.
func CleanResponse(raw string) string {
	text := raw

	if idx := strings.Index(text, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end != -1 {
			text = strings.TrimSpace(text[start : start+end])
		}
	} else if idx := strings.Index(text, "```"); idx != -1 {
		start := idx + len("```")
		if end := strings.Index(text[start:], "```"); end != -1 {
			text = strings.TrimSpace(text[start : start+end])
		}
	}

	startBrace := strings.Index(text, "{")
	endBrace := strings.LastIndex(text, "}")
	if startBrace != -1 && endBrace > startBrace {
		text = text[startBrace : endBrace+1]
	}

	return strings.TrimSpace(text)
}

// ParseStructured cleans and decodes a model response into its structured
// form. A response that is not valid JSON, or that carries a confidence
// score outside [0,1], is a parse failure; the caller persists the raw
// response instead.
func ParseStructured(raw string) (*Structured, error) {
	cleaned := CleanResponse(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var s Structured
	if err := json.Unmarshal([]byte(cleaned), &s); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	if s.ConfidenceScore < 0 || s.ConfidenceScore > 1 {
		return nil, fmt.Errorf("confidence score %v outside [0,1]", s.ConfidenceScore)
	}
	return &s, nil
}
