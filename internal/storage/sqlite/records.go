package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/helicon-ai/mnemo/internal/core"
)

type RecordRepo struct {
	db *sql.DB
}

func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

const recordColumns = `id, kind, scope, content, embedding, tags, confidence, decay, tokens, user_id, session_id, project_id, created_at, last_accessed_at`

func (r *RecordRepo) InsertRecord(ctx context.Context, rec core.MemoryRecord) error {
	vecBlob, err := serializeVector(rec.Embedding)
	if err != nil {
		return err
	}
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO memory_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), string(rec.Scope), rec.Content, vecBlob, string(tagsJSON),
		rec.Confidence, rec.Decay, rec.Tokens, rec.UserID, rec.SessionID, rec.ProjectID,
		rec.CreatedAt, rec.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (r *RecordRepo) QueryRecords(ctx context.Context, filter core.RecordFilter) ([]core.MemoryRecord, error) {
	var (
		where []string
		args  []any
	)

	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if len(filter.Kinds) > 0 {
		where = append(where, "kind IN ("+placeholders(len(filter.Kinds))+")")
		for _, k := range filter.Kinds {
			args = append(args, string(k))
		}
	}
	if len(filter.Scopes) > 0 {
		where = append(where, "scope IN ("+placeholders(len(filter.Scopes))+")")
		for _, s := range filter.Scopes {
			args = append(args, string(s))
		}
	}
	if filter.UserID != "" {
		where = append(where, "(user_id = ? OR user_id = '')")
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" && filter.ProjectID != "" {
		where = append(where, "(session_id = ? OR project_id = ?)")
		args = append(args, filter.SessionID, filter.ProjectID)
	} else if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	} else if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.DecayCeiling > 0 {
		where = append(where, "decay < ?")
		args = append(args, filter.DecayCeiling)
	}

	query := "SELECT " + recordColumns + " FROM memory_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_accessed_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []core.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *RecordRepo) UpdateDecay(ctx context.Context, id string, score float64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE memory_records SET decay = ? WHERE id = ?`, score, id)
	if err != nil {
		return fmt.Errorf("failed to update decay: %w", err)
	}
	return nil
}

func (r *RecordRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE memory_records SET last_accessed_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch record: %w", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (core.MemoryRecord, error) {
	var (
		rec      core.MemoryRecord
		kind     string
		scope    string
		vecBlob  []byte
		tagsJSON string
	)
	if err := rows.Scan(
		&rec.ID, &kind, &scope, &rec.Content, &vecBlob, &tagsJSON,
		&rec.Confidence, &rec.Decay, &rec.Tokens, &rec.UserID, &rec.SessionID, &rec.ProjectID,
		&rec.CreatedAt, &rec.LastAccessedAt,
	); err != nil {
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.Kind = core.MemoryKind(kind)
	rec.Scope = core.Scope(scope)

	vec, err := deserializeVector(vecBlob)
	if err != nil {
		return rec, err
	}
	rec.Embedding = vec

	if tagsJSON != "" && tagsJSON != "null" {
		if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
			return rec, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	return rec, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
