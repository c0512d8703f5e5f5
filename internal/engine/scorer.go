package engine

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/helicon-ai/mnemo/internal/core"
)

// recencyHalfLife controls how fast the recency dimension fades.
const recencyHalfLife = 24.0 // hours

// weightProfile is one named constant weight vector. Two profiles exist,
// semantic and lexical, selected by whether an embedding contributed to the
// relevance dimension. They are never interpolated, so any final score can
// be decomposed by hand. Each profile sums to 1.0 across the six dimensions.
type weightProfile struct {
	relevance    float64
	recency      float64
	scopeMatch   float64
	typePriority float64
	decayPenalty float64
	skillWeight  float64
}

var (
	// semanticWeights applies when cosine similarity was available.
	semanticWeights = weightProfile{
		relevance:    0.40,
		recency:      0.15,
		scopeMatch:   0.15,
		typePriority: 0.10,
		decayPenalty: 0.10,
		skillWeight:  0.10,
	}

	// lexicalWeights compensates for token overlap being a weaker signal
	// than cosine similarity: relevance is weighted up and the decay
	// penalty down, so lexical matches are not over-credited against
	// numerically superior semantic ones.
	lexicalWeights = weightProfile{
		relevance:    0.45,
		recency:      0.15,
		scopeMatch:   0.15,
		typePriority: 0.10,
		decayPenalty: 0.05,
		skillWeight:  0.10,
	}
)

var typePriorities = map[core.MemoryKind]float64{
	core.KindSummary:  1.0,
	core.KindSemantic: 0.8,
	core.KindEpisodic: 0.6,
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "has": {}, "have": {}, "this": {},
	"that": {}, "with": {}, "they": {}, "what": {}, "when": {}, "where": {},
	"will": {}, "your": {}, "from": {}, "about": {}, "into": {}, "them": {},
	"then": {}, "than": {}, "were": {}, "been": {}, "their": {}, "there": {},
	"which": {}, "would": {}, "could": {}, "should": {},
}

// Scorer rates memory records against a query across six dimensions.
type Scorer struct {
	now func() time.Time
}

func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score produces the six-dimension vector and the aggregated final score
// for one candidate record.
func (s *Scorer) Score(query string, rec core.MemoryRecord, req core.RequestContext) (core.ScoreVector, float64) {
	relevance, semantic := s.relevance(query, rec, req)

	vec := core.ScoreVector{
		Relevance:    relevance,
		Recency:      s.recency(rec.LastAccessedAt),
		ScopeMatch:   scopeMatch(rec.Scope, req.Scopes),
		TypePriority: typePriorities[rec.Kind],
		DecayPenalty: rec.Decay,
		SkillWeight:  tagOverlap(rec.Tags, req.SkillTags),
	}

	return vec, combine(vec, semantic)
}

func combine(v core.ScoreVector, semantic bool) float64 {
	w := lexicalWeights
	if semantic {
		w = semanticWeights
	}
	return w.relevance*v.Relevance +
		w.recency*v.Recency +
		w.scopeMatch*v.ScopeMatch +
		w.typePriority*v.TypePriority -
		w.decayPenalty*v.DecayPenalty +
		w.skillWeight*v.SkillWeight
}

// relevance returns the relevance score and whether a semantic embedding
// contributed to it. Cosine similarity needs embeddings on both sides;
// anything less falls back to lexical overlap.
func (s *Scorer) relevance(query string, rec core.MemoryRecord, req core.RequestContext) (float64, bool) {
	if len(req.QueryEmbedding) > 0 && len(rec.Embedding) > 0 {
		sim := core.Cosine(req.QueryEmbedding, rec.Embedding)
		if sim < 0 {
			sim = 0
		}
		return sim, true
	}
	return LexicalOverlap(query, rec.Content), false
}

func (s *Scorer) recency(lastAccess time.Time) float64 {
	hours := s.now().Sub(lastAccess).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp2(-hours / recencyHalfLife)
}

func scopeMatch(scope core.Scope, requested []core.Scope) float64 {
	if scope == core.ScopeGlobal {
		return 1.0
	}
	for _, s := range requested {
		if s == scope {
			return 0.9
		}
	}
	return 0.3
}

// tagOverlap is the fraction of the candidate's tags present in the active
// skill/topic tags.
func tagOverlap(tags, active []string) float64 {
	if len(tags) == 0 || len(active) == 0 {
		return 0
	}
	activeSet := make(map[string]struct{}, len(active))
	for _, t := range active {
		activeSet[strings.ToLower(t)] = struct{}{}
	}
	matched := 0
	for _, t := range tags {
		if _, ok := activeSet[strings.ToLower(t)]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(tags))
}

// LexicalOverlap is the normalized token-overlap ratio between query and
// content: case-folded, stop words removed, tokens shorter than 3 runes
// discarded.
func LexicalOverlap(query, content string) float64 {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}
	contentSet := make(map[string]struct{})
	for _, t := range tokenize(content) {
		contentSet[t] = struct{}{}
	}
	matched := 0
	for _, t := range queryTokens {
		if _, ok := contentSet[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, ok := stopWords[f]; ok {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
