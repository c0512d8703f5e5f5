package privacy

import (
	"strings"

	"github.com/helicon-ai/mnemo/internal/core"
)

// FactDecision is the per-fact classification used by the consolidation
// worker before any write.
type FactDecision string

const (
	DecisionStore  FactDecision = "store"
	DecisionRedact FactDecision = "redact-then-store"
	DecisionBlock  FactDecision = "block"
)

// Categories whose raw values must never be persisted, even redacted
// elsewhere in the sentence.
var blockingCategories = map[string]struct{}{
	CategoryAPIKey:   {},
	CategoryPassword: {},
}

// Gate classifies raw text for sensitive content, forget directives, and
// sentiment. It is consulted twice per request lifecycle: once to redact
// context shown to the model and once by the consolidation worker before
// persisting extracted facts.
type Gate struct {
	strict bool
}

// NewGate returns a gate; strict mode additionally blocks episodic writes
// when sentiment is volatile.
func NewGate(strict bool) *Gate {
	return &Gate{strict: strict}
}

// Detect returns the matched sensitive category names, in pattern order.
func (g *Gate) Detect(text string) []string {
	var categories []string
	for _, p := range sensitivePatterns {
		if p.re.MatchString(text) {
			categories = append(categories, p.category)
		}
	}
	return categories
}

// Redact replaces every sensitive match with a [REDACTED:<CATEGORY>]
// placeholder. Running it on already-redacted text is a no-op.
func (g *Gate) Redact(text string) string {
	for _, p := range sensitivePatterns {
		placeholder := "[REDACTED:" + strings.ToUpper(p.category) + "]"
		text = p.re.ReplaceAllString(text, placeholder)
	}
	return text
}

// HasForgetDirective reports whether the text asks not to be remembered.
func (g *Gate) HasForgetDirective(text string) bool {
	for _, re := range forgetDirectives {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Evaluate produces the permissions object for a turn of raw text.
func (g *Gate) Evaluate(text string) core.Permissions {
	label, score := Sentiment(text)

	perms := core.Permissions{
		WriteEpisodic:       true,
		WriteSemantic:       true,
		WriteSummary:        true,
		Sentiment:           label,
		SentimentScore:      score,
		SensitiveCategories: g.Detect(text),
	}

	if g.HasForgetDirective(text) {
		perms.RetentionOverride = true
		perms.WriteEpisodic = false
		perms.WriteSemantic = false
		perms.WriteSummary = false
		return perms
	}

	if g.strict && label == core.SentimentVolatile {
		perms.WriteEpisodic = false
	}

	return perms
}

// ClassifyFact decides what the consolidation worker may do with one
// extracted fact candidate.
func (g *Gate) ClassifyFact(text string) FactDecision {
	if g.HasForgetDirective(text) {
		return DecisionBlock
	}
	categories := g.Detect(text)
	if len(categories) == 0 {
		return DecisionStore
	}
	for _, c := range categories {
		if _, ok := blockingCategories[c]; ok {
			return DecisionBlock
		}
	}
	return DecisionRedact
}
