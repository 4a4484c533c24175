// Package worker runs queued bulk registrations outside the request cycle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/auth"
	"github.com/upeu-eventos/gateway/internal/bulk"
	"github.com/upeu-eventos/gateway/internal/events"
	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
	"github.com/upeu-eventos/gateway/pkg/queue"
)

// Jobs is the queue surface used by the processor.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
	SetResult(ctx context.Context, r queue.BulkResult) error
}

// Sessions loads the submitting admin's session.
type Sessions interface {
	Get(ctx context.Context, id string) (*models.Session, error)
}

// Registerer runs one bulk submission.
type Registerer interface {
	Register(ctx context.Context, eventID int64, codes []string, payment *models.PaymentInfo) ([]models.BulkOperationResult, error)
}

// BulkProcessor processes bulk registration jobs.
type BulkProcessor struct {
	jobs     Jobs
	sessions Sessions
	bulk     Registerer
	backoff  time.Duration
	logger   *zap.Logger
}

// NewBulkProcessor creates a bulk registration processor.
func NewBulkProcessor(jobs Jobs, sessions Sessions, r Registerer, logger *zap.Logger) *BulkProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkProcessor{jobs: jobs, sessions: sessions, bulk: r, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one job. A returned error means the job may succeed on retry;
// permanent failures are recorded in the job result and return nil.
func (p *BulkProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeBulk(job)
	if err != nil {
		p.logger.Error("drop undecodable job", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	fail := func(msg string) error {
		return p.jobs.SetResult(ctx, queue.BulkResult{JobID: job.ID, EventID: payload.EventID, Status: queue.StatusFailed, Error: msg})
	}

	s, err := p.sessions.Get(ctx, payload.SessionID)
	if errors.Is(err, auth.ErrSessionNotFound) {
		return fail("session expired before the job ran")
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if err := p.jobs.SetResult(ctx, queue.BulkResult{JobID: job.ID, EventID: payload.EventID, Status: queue.StatusRunning}); err != nil {
		p.logger.Warn("mark job running", zap.String("job_id", job.ID), zap.Error(err))
	}

	runCtx := upstream.WithToken(bulk.WithJob(ctx, job.ID, true), s.UpstreamToken)
	results, err := p.bulk.Register(runCtx, payload.EventID, payload.Codes, payload.Payment)
	switch {
	case errors.Is(err, bulk.ErrPaymentInfoRequired), errors.Is(err, events.ErrUnknownEvent):
		return fail(err.Error())
	case err != nil:
		return fmt.Errorf("register: %w", err)
	}

	if err := p.jobs.SetResult(ctx, queue.BulkResult{
		JobID:   job.ID,
		EventID: payload.EventID,
		Status:  queue.StatusCompleted,
		Results: results,
		Summary: models.Summarize(results),
	}); err != nil {
		p.logger.Error("store job result", zap.String("job_id", job.ID), zap.Error(err))
	}
	p.logger.Info("bulk job completed",
		zap.String("job_id", job.ID),
		zap.Int64("event_id", payload.EventID),
		zap.Int64("requested_by", payload.RequestedBy),
		zap.String("outcome", bulk.Describe(results)),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *BulkProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("bulk worker stopping")
			return
		default:
		}

		job, _, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			if job.Attempt >= queue.MaxRetries {
				_ = p.jobs.SetResult(ctx, queue.BulkResult{JobID: job.ID, Status: queue.StatusFailed, Error: err.Error()})
			}
			p.sleep(ctx)
		}
	}
}

func (p *BulkProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
