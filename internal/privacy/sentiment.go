package privacy

import (
	"strings"
	"unicode"

	"github.com/helicon-ai/mnemo/internal/core"
)

// volatileThreshold is the hit count at which volatile takes precedence on
// its own; a single volatile signal co-occurring with any negative hit also
// promotes.
const volatileThreshold = 2

var positiveLexicon = map[string]struct{}{
	"good": {}, "great": {}, "love": {}, "loved": {}, "like": {},
	"thanks": {}, "thank": {}, "awesome": {}, "excellent": {}, "happy": {},
	"perfect": {}, "nice": {}, "glad": {}, "wonderful": {}, "appreciate": {},
	"helpful": {}, "works": {}, "solved": {},
}

var negativeLexicon = map[string]struct{}{
	"bad": {}, "hate": {}, "terrible": {}, "awful": {}, "angry": {},
	"annoyed": {}, "wrong": {}, "broken": {}, "fail": {}, "failed": {},
	"failing": {}, "frustrated": {}, "frustrating": {}, "horrible": {},
	"worst": {}, "sad": {}, "useless": {}, "stupid": {},
}

var urgencyLexicon = map[string]struct{}{
	"urgent": {}, "urgently": {}, "immediately": {}, "asap": {},
	"emergency": {}, "critical": {}, "hurry": {},
}

// Sentiment classifies text by lexicon hits plus a separate volatility
// signal (urgency words, repeated exclamation marks, emphatic all-caps
// tokens). Score is (positive−negative)/(positive+negative) in [-1,1].
func Sentiment(text string) (core.SentimentLabel, float64) {
	positive, negative, volatile := 0, 0, 0

	if strings.Contains(text, "!!") {
		volatile++
	}

	for _, raw := range strings.Fields(text) {
		if isEmphaticCaps(raw) {
			volatile++
		}
		word := strings.ToLower(strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r)
		}))
		if word == "" {
			continue
		}
		if _, ok := positiveLexicon[word]; ok {
			positive++
		}
		if _, ok := negativeLexicon[word]; ok {
			negative++
		}
		if _, ok := urgencyLexicon[word]; ok {
			volatile++
		}
	}

	score := 0.0
	if positive+negative > 0 {
		score = float64(positive-negative) / float64(positive+negative)
	}

	switch {
	case volatile >= volatileThreshold, volatile > 0 && negative > 0:
		return core.SentimentVolatile, score
	case positive > negative:
		return core.SentimentPositive, score
	case negative > positive:
		return core.SentimentNegative, score
	default:
		return core.SentimentNeutral, score
	}
}

func isEmphaticCaps(word string) bool {
	letters := 0
	for _, r := range word {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			letters++
		}
	}
	return letters >= 3
}
