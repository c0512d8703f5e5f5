package consolidate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/internal/engine"
	"github.com/helicon-ai/mnemo/internal/privacy"
	"github.com/helicon-ai/mnemo/pkg/log"
	"github.com/helicon-ai/mnemo/pkg/retry"
	"github.com/helicon-ai/mnemo/pkg/tokens"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 5

	// decayEpsilon bounds write volume on refresh: only records whose
	// recomputed decay moved by more than this are persisted.
	decayEpsilon = 0.05

	generateMaxTokens = 512
)

// Worker is the asynchronous consumer of pending consolidation jobs.
// At-least-once: there is no visibility timeout, so two concurrent workers
// can pick up the same pending job; processing is idempotent enough that
// the duplicate-fact risk is an accepted tradeoff. A job stuck in
// processing after a crash is an accepted operational gap.
type Worker struct {
	jobs     core.JobRepository
	records  core.RecordRepository
	gen      core.Generator
	embedder core.Embedder // optional
	gate     *privacy.Gate
	retrier  *retry.Retrier
	counter  tokens.Counter

	Interval  time.Duration
	BatchSize int

	now    func() time.Time
	stopCh chan struct{}
}

func NewWorker(jobs core.JobRepository, records core.RecordRepository, gen core.Generator, embedder core.Embedder, gate *privacy.Gate, counter tokens.Counter) *Worker {
	return &Worker{
		jobs:      jobs,
		records:   records,
		gen:       gen,
		embedder:  embedder,
		gate:      gate,
		retrier:   retry.NewRetrier(retry.NewGenerationConfig()),
		counter:   counter,
		Interval:  defaultInterval,
		BatchSize: defaultBatchSize,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start polls for pending jobs until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Dur("interval", w.Interval).Msg("starting consolidation worker")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				logger.Error().Err(err).Msg("consolidation batch failed")
			}
		}
	}
}

func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.stopCh)
	return nil
}

// RunOnce pulls one bounded batch of pending jobs and processes them
// sequentially. Returns the number of jobs processed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.jobs.PendingJobs(ctx, w.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending jobs: %w", err)
	}

	logger := log.FromCtx(ctx)
	for _, job := range jobs {
		if err := w.jobs.SetJobStatus(ctx, job.ID, core.JobProcessing, nil, ""); err != nil {
			logger.Error().Err(err).Str("job", job.ID).Msg("claim job failed")
			continue
		}

		diff, err := w.process(ctx, job)
		if err != nil {
			logger.Error().Err(err).Str("job", job.ID).Msg("job failed")
			if serr := w.jobs.SetJobStatus(ctx, job.ID, core.JobFailed, nil, err.Error()); serr != nil {
				logger.Error().Err(serr).Str("job", job.ID).Msg("mark job failed")
			}
			continue
		}

		if err := w.jobs.SetJobStatus(ctx, job.ID, core.JobDone, &diff, ""); err != nil {
			logger.Error().Err(err).Str("job", job.ID).Msg("mark job done")
			continue
		}
		logger.Info().
			Str("job", job.ID).
			Int("added", diff.Added).
			Int("updated", diff.Updated).
			Msg("consolidation job done")
	}

	return len(jobs), nil
}

// process runs the four consolidation steps. Each step is independently
// failure-tolerant: a failed summarize never aborts extraction or decay
// refresh. The job as a whole fails only when every attempted step failed.
func (w *Worker) process(ctx context.Context, job core.ConsolidationJob) (core.MemoryDiff, error) {
	logger := log.FromCtx(ctx)
	diff := core.MemoryDiff{}

	var stepErrs []error
	attempted := 0

	// Eviction overrides the minimum-length skip: the transcript is the
	// last copy of the evicted turns, so it gets summarized regardless.
	if job.Permissions.WriteSummary && (len(job.Transcript) >= minTranscriptTurns || job.Evicted > 0) {
		attempted++
		if err := w.summarize(ctx, job, &diff); err != nil {
			logger.Warn().Err(err).Str("job", job.ID).Msg("summarize step failed")
			stepErrs = append(stepErrs, fmt.Errorf("summarize: %w", err))
		}
	}

	if job.Permissions.WriteSemantic && len(job.Transcript) > 0 {
		attempted++
		if err := w.extractFacts(ctx, job, &diff); err != nil {
			logger.Warn().Err(err).Str("job", job.ID).Msg("fact extraction step failed")
			stepErrs = append(stepErrs, fmt.Errorf("extract: %w", err))
		}
	}

	attempted++
	if err := w.refreshDecay(ctx, job, &diff); err != nil {
		logger.Warn().Err(err).Str("job", job.ID).Msg("decay refresh step failed")
		stepErrs = append(stepErrs, fmt.Errorf("refresh decay: %w", err))
	}

	if attempted > 0 && len(stepErrs) == attempted {
		return diff, errors.Join(stepErrs...)
	}
	return diff, nil
}

// summarize asks the generator for a structured summary and persists it as
// a summary record. On a malformed response the raw text becomes the
// summary with an empty fact list.
func (w *Worker) summarize(ctx context.Context, job core.ConsolidationJob, diff *core.MemoryDiff) error {
	transcript := formatTranscript(job.Transcript)
	raw, err := w.generate(ctx, buildSummaryPrompt(transcript))
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}

	parsed, perr := parseSummaryResponse(raw)
	if perr != nil {
		log.FromCtx(ctx).Warn().Err(perr).Str("job", job.ID).Msg("summary response malformed, storing raw text")
		parsed = &summaryResponse{Summary: raw}
	}

	rec := w.newRecord(job, core.KindSummary, core.ScopeConversation, parsed.Summary, nil, 1.0)
	if err := w.records.InsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("insert summary record: %w", err)
	}
	diff.Added++
	diff.TouchedIDs = append(diff.TouchedIDs, rec.ID)
	diff.Facts = append(diff.Facts, parsed.KeyFacts...)
	return nil
}

// extractFacts asks the generator for durable fact tuples; every candidate
// is independently classified by the privacy gate before any write.
func (w *Worker) extractFacts(ctx context.Context, job core.ConsolidationJob, diff *core.MemoryDiff) error {
	transcript := formatTranscript(job.Transcript)
	raw, err := w.generate(ctx, buildExtractionPrompt(transcript))
	if err != nil {
		return fmt.Errorf("generate facts: %w", err)
	}

	facts, err := parseExtractionResponse(raw)
	if err != nil {
		// Unlike summaries there is no safe raw-text fallback for facts;
		// skip the step and keep the rest of the job.
		log.FromCtx(ctx).Warn().Err(err).Str("job", job.ID).Msg("fact response malformed, skipping")
		return nil
	}

	logger := log.FromCtx(ctx)
	for _, f := range facts {
		content := f.Fact
		switch w.gate.ClassifyFact(content) {
		case privacy.DecisionBlock:
			logger.Debug().Str("job", job.ID).Msg("fact blocked by privacy gate")
			continue
		case privacy.DecisionRedact:
			content = w.gate.Redact(content)
		}

		var embedding []float32
		if w.embedder != nil {
			if vec, eerr := w.embedder.Embed(ctx, content); eerr != nil {
				logger.Debug().Err(eerr).Msg("fact embedding failed")
			} else {
				embedding = vec
			}
		}

		rec := w.newRecord(job, core.KindSemantic, core.Scope(f.Scope), content, f.Tags, f.Confidence)
		rec.Embedding = embedding
		if err := w.records.InsertRecord(ctx, rec); err != nil {
			logger.Warn().Err(err).Str("job", job.ID).Msg("insert fact failed")
			continue
		}
		diff.Added++
		diff.TouchedIDs = append(diff.TouchedIDs, rec.ID)
		diff.Facts = append(diff.Facts, f.Fact)
	}
	return nil
}

// refreshDecay recomputes staleness for every record touched by this
// conversation or project, persisting only movements beyond the epsilon.
func (w *Worker) refreshDecay(ctx context.Context, job core.ConsolidationJob, diff *core.MemoryDiff) error {
	recs, err := w.records.QueryRecords(ctx, core.RecordFilter{
		SessionID: job.ConversationID,
		ProjectID: job.ProjectID,
	})
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}

	now := w.now()
	logger := log.FromCtx(ctx)
	for _, rec := range recs {
		score := engine.Decay(rec.LastAccessedAt, now)
		if math.Abs(score-rec.Decay) <= decayEpsilon {
			continue
		}
		if err := w.records.UpdateDecay(ctx, rec.ID, score); err != nil {
			logger.Warn().Err(err).Str("id", rec.ID).Msg("decay update failed")
			continue
		}
		diff.Updated++
		diff.TouchedIDs = append(diff.TouchedIDs, rec.ID)
	}
	return nil
}

func (w *Worker) generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := w.retrier.Do(ctx, func() error {
		var gerr error
		out, gerr = w.gen.Generate(ctx, prompt, generateMaxTokens)
		if gerr != nil {
			return gerr
		}
		if out == "" {
			return fmt.Errorf("empty generation result")
		}
		return nil
	})
	return out, err
}

func (w *Worker) newRecord(job core.ConsolidationJob, kind core.MemoryKind, scope core.Scope, content string, tags []string, confidence float64) core.MemoryRecord {
	now := w.now()
	return core.MemoryRecord{
		ID:             ulid.Make().String(),
		Kind:           kind,
		Scope:          scope,
		Content:        content,
		Tags:           tags,
		Confidence:     confidence,
		Decay:          0,
		Tokens:         w.counter.Count(content),
		UserID:         job.UserID,
		SessionID:      job.ConversationID,
		ProjectID:      job.ProjectID,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
}
