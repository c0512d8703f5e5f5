package consolidate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helicon-ai/mnemo/internal/core"
)

const (
	// minTranscriptTurns below which summarization is skipped entirely.
	minTranscriptTurns = 3

	maxKeyFacts = 7
	minKeyFacts = 3
)

type summaryResponse struct {
	Summary  string   `json:"summary"`
	KeyFacts []string `json:"key_facts"`
}

func buildSummaryPrompt(transcript string) string {
	return fmt.Sprintf(
		`Summarize the conversation below. Output only a JSON object of the form {"summary": "...", "key_facts": ["...", ...]} with a short prose summary and %d-%d short declarative key facts. Rules: 1. Facts must be self-contained (replace pronouns with the subject). 2. Ignore greetings and small talk. Conversation:
%s`,
		minKeyFacts, maxKeyFacts, transcript,
	)
}

// parseSummaryResponse extracts the structured summary. A malformed model
// response never hard-fails a job: the caller falls back to storing the raw
// text with an empty fact list.
func parseSummaryResponse(content string) (*summaryResponse, error) {
	jsonStr := extractJSONObject(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var parsed summaryResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	if parsed.Summary == "" {
		return nil, fmt.Errorf("summary missing from response")
	}
	if len(parsed.KeyFacts) > maxKeyFacts {
		parsed.KeyFacts = parsed.KeyFacts[:maxKeyFacts]
	}
	return &parsed, nil
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(content[start:], "}")
	if end == -1 {
		return ""
	}
	return content[start : start+end+1]
}

func extractJSONArray(content string) string {
	start := strings.Index(content, "[")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(content[start:], "]")
	if end == -1 {
		return ""
	}
	return content[start : start+end+1]
}

func formatTranscript(turns []core.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role == "system" || t.Role == "tool" {
			continue
		}
		b.WriteString(strings.ToUpper(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
