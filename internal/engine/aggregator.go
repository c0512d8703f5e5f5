package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/pkg/log"
)

const (
	// poolFactor bounds how many candidates each source may contribute
	// relative to the eventual top-k.
	poolFactor = 3

	// excerptLimit caps citation excerpts.
	excerptLimit = 140

	touchTimeout = 5 * time.Second
)

// Aggregator fans a query out to the enabled memory sources, scores and
// deduplicates the results, and returns a single descending-sorted
// candidate list with citations attached.
type Aggregator struct {
	records      core.RecordRepository
	index        core.SemanticIndex // optional
	scorer       *Scorer
	decayCeiling float64
}

func NewAggregator(records core.RecordRepository, index core.SemanticIndex, scorer *Scorer, decayCeiling float64) *Aggregator {
	return &Aggregator{
		records:      records,
		index:        index,
		scorer:       scorer,
		decayCeiling: decayCeiling,
	}
}

// Retrieve gathers scored candidates from the long-term store, the optional
// semantic index, and the short-term transcript. Sources may overlap; the
// same record surviving in two pools keeps its higher-scoring incarnation.
// Surfaced records are touched asynchronously; the scoring path never
// waits on the bump and touch failures are swallowed.
func (a *Aggregator) Retrieve(ctx context.Context, query string, req core.RequestContext, window []core.Turn, topK int) ([]core.ScoredCandidate, error) {
	if topK <= 0 {
		topK = 10
	}
	pool := topK * poolFactor

	best := make(map[string]core.ScoredCandidate)

	if err := a.collectLongTerm(ctx, query, req, pool, best); err != nil {
		return nil, err
	}
	a.collectSemantic(ctx, query, req, pool, best)
	a.collectShortTerm(query, req, window, best)

	candidates := make([]core.ScoredCandidate, 0, len(best))
	for _, c := range best {
		candidates = append(candidates, c)
	}

	// Deterministic ordering: score descending, record id as tie-break.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Final != candidates[j].Final {
			return candidates[i].Final > candidates[j].Final
		}
		return candidates[i].RecordID < candidates[j].RecordID
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	a.touchAsync(ctx, candidates)

	return candidates, nil
}

func (a *Aggregator) collectLongTerm(ctx context.Context, query string, req core.RequestContext, pool int, best map[string]core.ScoredCandidate) error {
	recs, err := a.records.QueryRecords(ctx, core.RecordFilter{
		Scopes:       append([]core.Scope{core.ScopeGlobal}, req.Scopes...),
		UserID:       req.UserID,
		DecayCeiling: a.decayCeiling,
		Limit:        pool,
	})
	if err != nil {
		return fmt.Errorf("query long-term store: %w", err)
	}
	for _, rec := range recs {
		keepBest(best, a.candidateFromRecord(query, rec, req))
	}
	return nil
}

// collectSemantic adds vector-index hits. The index is optional and its
// failure only degrades retrieval to the lexical pool.
func (a *Aggregator) collectSemantic(ctx context.Context, query string, req core.RequestContext, pool int, best map[string]core.ScoredCandidate) {
	if a.index == nil || len(req.QueryEmbedding) == 0 {
		return
	}
	logger := log.FromCtx(ctx)

	hits, err := a.index.Search(ctx, req.QueryEmbedding, 0, pool)
	if err != nil {
		logger.Warn().Err(err).Msg("semantic index unavailable, degrading to lexical scoring")
		return
	}
	if len(hits) == 0 {
		return
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	recs, err := a.records.QueryRecords(ctx, core.RecordFilter{IDs: ids, DecayCeiling: a.decayCeiling})
	if err != nil {
		logger.Warn().Err(err).Msg("resolve semantic hits failed")
		return
	}
	for _, rec := range recs {
		keepBest(best, a.candidateFromRecord(query, rec, req))
	}
}

// collectShortTerm scores raw window turns lexically so that recent
// on-topic exchanges can surface as context even when the packer's history
// selection has already scrolled past them.
func (a *Aggregator) collectShortTerm(query string, req core.RequestContext, window []core.Turn, best map[string]core.ScoredCandidate) {
	for _, turn := range window {
		rec := core.MemoryRecord{
			ID:             fmt.Sprintf("turn:%d", turn.ID),
			Kind:           core.KindEpisodic,
			Scope:          core.ScopeConversation,
			Content:        turn.Content,
			Tokens:         turn.Tokens,
			LastAccessedAt: turn.CreatedAt,
		}
		vec, final := a.scorer.Score(query, rec, req)
		if vec.Relevance == 0 {
			continue
		}
		keepBest(best, candidate(rec, core.OriginShortTerm, vec, final))
	}
}

func (a *Aggregator) candidateFromRecord(query string, rec core.MemoryRecord, req core.RequestContext) core.ScoredCandidate {
	vec, final := a.scorer.Score(query, rec, req)
	return candidate(rec, core.OriginLongTerm, vec, final)
}

func candidate(rec core.MemoryRecord, origin string, vec core.ScoreVector, final float64) core.ScoredCandidate {
	return core.ScoredCandidate{
		RecordID: rec.ID,
		Origin:   origin,
		Content:  rec.Content,
		Tokens:   rec.Tokens,
		Scores:   vec,
		Final:    final,
		Citation: &core.Citation{
			Origin:    origin,
			Relevance: vec.Relevance,
			Excerpt:   excerpt(rec.Content),
		},
	}
}

// keepBest deduplicates by record id, keeping the higher-scoring duplicate.
func keepBest(best map[string]core.ScoredCandidate, c core.ScoredCandidate) {
	if prev, ok := best[c.RecordID]; ok && prev.Final >= c.Final {
		return
	}
	best[c.RecordID] = c
}

func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLimit {
		return content
	}
	return string(runes[:excerptLimit]) + "…"
}

// touchAsync bumps last-accessed for surfaced records off the request path.
// No ordering is guaranteed relative to subsequent reads; failures are
// logged at debug and otherwise swallowed.
func (a *Aggregator) touchAsync(ctx context.Context, candidates []core.ScoredCandidate) {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.Origin == core.OriginLongTerm {
			ids = append(ids, c.RecordID)
		}
	}
	if len(ids) == 0 {
		return
	}

	logger := log.FromCtx(ctx)
	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		for _, id := range ids {
			if err := a.records.Touch(touchCtx, id); err != nil {
				logger.Debug().Err(err).Str("id", id).Msg("touch failed")
			}
		}
	}()
}
