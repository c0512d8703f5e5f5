package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/helicon-ai/mnemo/internal/core"
)

// VectorIndex implements the semantic-index boundary with brute-force
// cosine similarity over the stored embedding BLOBs. Fine at the scale of a
// per-user memory store; swap for a real vector engine behind the same
// interface when the corpus outgrows it.
type VectorIndex struct {
	db *sql.DB
}

func NewVectorIndex(db *sql.DB) *VectorIndex {
	return &VectorIndex{db: db}
}

func (v *VectorIndex) Search(ctx context.Context, queryEmbedding []float32, threshold float64, count int) ([]core.SemanticHit, error) {
	if len(queryEmbedding) == 0 {
		return nil, nil
	}

	rows, err := v.db.QueryContext(ctx,
		`SELECT id, content, embedding FROM memory_records WHERE embedding IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan embeddings: %w", err)
	}
	defer rows.Close()

	var hits []core.SemanticHit
	for rows.Next() {
		var (
			id      string
			content string
			blob    []byte
		)
		if err := rows.Scan(&id, &content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		vec, err := deserializeVector(blob)
		if err != nil {
			continue
		}
		sim := core.Cosine(queryEmbedding, vec)
		if sim < threshold {
			continue
		}
		hits = append(hits, core.SemanticHit{ID: id, Content: content, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if count > 0 && len(hits) > count {
		hits = hits[:count]
	}
	return hits, nil
}
