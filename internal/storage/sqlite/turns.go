package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/helicon-ai/mnemo/internal/core"
)

type TurnRepo struct {
	db *sql.DB
}

func NewTurnRepo(db *sql.DB) *TurnRepo {
	return &TurnRepo{db: db}
}

func (t *TurnRepo) AppendTurn(ctx context.Context, conversationID string, turn core.Turn) (int64, error) {
	res, err := t.db.ExecContext(ctx,
		`INSERT INTO turns (conversation_id, role, content, tokens) VALUES (?, ?, ?, ?)`,
		conversationID, turn.Role, turn.Content, turn.Tokens,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert turn: %w", err)
	}
	return res.LastInsertId()
}

// Window returns the stored short-term window in chronological order.
func (t *TurnRepo) Window(ctx context.Context, conversationID string) ([]core.Turn, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, role, content, tokens, created_at FROM turns WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []core.Turn
	for rows.Next() {
		var turn core.Turn
		if err := rows.Scan(&turn.ID, &turn.Role, &turn.Content, &turn.Tokens, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (t *TurnRepo) EvictOldest(ctx context.Context, conversationID string, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM turns WHERE id IN (
			SELECT id FROM turns WHERE conversation_id = ? ORDER BY id ASC LIMIT ?
		)`,
		conversationID, n,
	)
	if err != nil {
		return fmt.Errorf("failed to evict turns: %w", err)
	}
	return nil
}

func (t *TurnRepo) CompactionPass(ctx context.Context, conversationID string) (int, error) {
	var pass int
	err := t.db.QueryRowContext(ctx,
		`SELECT compaction_pass FROM conversations WHERE id = ?`, conversationID,
	).Scan(&pass)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read compaction pass: %w", err)
	}
	return pass, nil
}

func (t *TurnRepo) IncrementCompactionPass(ctx context.Context, conversationID string) (int, error) {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO conversations (id, compaction_pass) VALUES (?, 1)
		 ON CONFLICT(id) DO UPDATE SET compaction_pass = compaction_pass + 1`,
		conversationID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bump compaction pass: %w", err)
	}
	return t.CompactionPass(ctx, conversationID)
}
