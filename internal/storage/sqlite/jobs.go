package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helicon-ai/mnemo/internal/core"
)

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

func (j *JobRepo) EnqueueJob(ctx context.Context, job core.ConsolidationJob) error {
	transcript, err := json.Marshal(job.Transcript)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	permissions, err := json.Marshal(job.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO consolidation_jobs (id, conversation_id, project_id, user_id, reason, transcript, evicted, permissions, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ConversationID, job.ProjectID, job.UserID, job.Reason,
		string(transcript), job.Evicted, string(permissions), string(core.JobPending),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (j *JobRepo) PendingJobs(ctx context.Context, limit int) ([]core.ConsolidationJob, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, conversation_id, project_id, user_id, reason, transcript, evicted, permissions, status, result, error, created_at
		 FROM consolidation_jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		string(core.JobPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []core.ConsolidationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (j *JobRepo) SetJobStatus(ctx context.Context, id string, status core.JobStatus, result *core.MemoryDiff, errMsg string) error {
	var resultJSON sql.NullString
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal job result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := j.db.ExecContext(ctx,
		`UPDATE consolidation_jobs SET status = ?, result = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), resultJSON, errMsg, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	return nil
}

func (j *JobRepo) GetJob(ctx context.Context, id string) (*core.ConsolidationJob, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, conversation_id, project_id, user_id, reason, transcript, evicted, permissions, status, result, error, created_at
		 FROM consolidation_jobs WHERE id = ?`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	job, err := scanJob(rows)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func scanJob(rows *sql.Rows) (core.ConsolidationJob, error) {
	var (
		job         core.ConsolidationJob
		status      string
		transcript  string
		permissions string
		result      sql.NullString
		errMsg      sql.NullString
	)
	if err := rows.Scan(
		&job.ID, &job.ConversationID, &job.ProjectID, &job.UserID, &job.Reason,
		&transcript, &job.Evicted, &permissions, &status, &result, &errMsg, &job.CreatedAt,
	); err != nil {
		return job, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Status = core.JobStatus(status)
	job.Error = errMsg.String

	if err := json.Unmarshal([]byte(transcript), &job.Transcript); err != nil {
		return job, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	if err := json.Unmarshal([]byte(permissions), &job.Permissions); err != nil {
		return job, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if result.Valid && result.String != "" {
		job.Result = &core.MemoryDiff{}
		if err := json.Unmarshal([]byte(result.String), job.Result); err != nil {
			return job, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
	}
	return job, nil
}
