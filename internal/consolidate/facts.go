package consolidate

import (
	"encoding/json"
	"fmt"

	"github.com/helicon-ai/mnemo/internal/core"
)

// maxExtractedFacts bounds the semantic facts taken from one job.
const maxExtractedFacts = 5

type extractedFact struct {
	Fact       string   `json:"fact"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
	Scope      string   `json:"scope"`
}

func buildExtractionPrompt(transcript string) string {
	return fmt.Sprintf(
		`Extract up to %d distinct, durable facts from the conversation below. Output only a JSON list of objects {"fact": "...", "tags": ["..."], "confidence": 0.0-1.0, "scope": "conversation"|"project"|"global"}. Rules: 1. Only facts that remain true beyond this conversation. 2. Facts must be self-contained (replace "he" with the person's name). 3. Ignore greetings and small talk. Conversation:
%s`,
		maxExtractedFacts, transcript,
	)
}

func parseExtractionResponse(content string) ([]extractedFact, error) {
	jsonStr := extractJSONArray(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var facts []extractedFact
	if err := json.Unmarshal([]byte(jsonStr), &facts); err != nil {
		return nil, fmt.Errorf("unmarshal facts: %w", err)
	}

	if len(facts) > maxExtractedFacts {
		facts = facts[:maxExtractedFacts]
	}
	for i := range facts {
		if facts[i].Confidence <= 0 || facts[i].Confidence > 1 {
			facts[i].Confidence = 0.5
		}
		switch core.Scope(facts[i].Scope) {
		case core.ScopeConversation, core.ScopeProject, core.ScopeGlobal:
		default:
			facts[i].Scope = string(core.ScopeConversation)
		}
	}
	return facts, nil
}
