package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/models"
)

const (
	// QueueBulk is the Redis list key for bulk registration jobs.
	QueueBulk = "worker:bulk"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// ResultPrefix prefixes the key holding a job's status and results.
	ResultPrefix = "bulk:result:"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// ErrJobNotFound is returned for unknown or expired job IDs.
var ErrJobNotFound = errors.New("job not found")

// JobType identifies the job kind.
type JobType string

const (
	JobTypeBulkRegistration JobType = "bulk_registration"
)

// BulkPayload is the payload for bulk registration jobs. SessionID lets the
// worker call the upstream with the submitting admin's token.
type BulkPayload struct {
	EventID     int64               `json:"event_id"`
	Codes       []string            `json:"codes"`
	Payment     *models.PaymentInfo `json:"payment,omitempty"`
	SessionID   string              `json:"session_id"`
	RequestedBy int64               `json:"requested_by"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Job states stored with the result.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// BulkResult is the transient status of a bulk job, kept for the result TTL.
type BulkResult struct {
	JobID     string                       `json:"job_id"`
	EventID   int64                        `json:"event_id"`
	Status    string                       `json:"status"`
	Results   []models.BulkOperationResult `json:"results,omitempty"`
	Summary   models.BulkSummary           `json:"summary"`
	Error     string                       `json:"error,omitempty"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client    *redis.Client
	resultTTL time.Duration
	logger    *zap.Logger
}

// NewQueue creates a new Redis-backed job queue. Results expire after resultTTL.
func NewQueue(client *redis.Client, resultTTL time.Duration, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resultTTL <= 0 {
		resultTTL = time.Hour
	}
	return &Queue{client: client, resultTTL: resultTTL, logger: logger}
}

// EnqueueBulk enqueues a bulk registration job and records it as queued.
func (q *Queue) EnqueueBulk(ctx context.Context, payload BulkPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeBulkRegistration,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.SetResult(ctx, BulkResult{JobID: job.ID, EventID: payload.EventID, Status: StatusQueued}); err != nil {
		return "", err
	}
	if err := q.client.RPush(ctx, QueueBulk, raw).Err(); err != nil {
		return "", fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued bulk job", zap.String("job_id", job.ID), zap.Int64("event_id", payload.EventID), zap.Int("codes", len(payload.Codes)))
	return job.ID, nil
}

// Dequeue blocks until a job is available or ctx is done. Returns job and key (queue name).
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, 0, QueueBulk).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueBulk, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// SetResult stores a job status under bulk:result:<jobID> with the result TTL.
func (q *Queue) SetResult(ctx context.Context, r BulkResult) error {
	r.UpdatedAt = time.Now()
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := q.client.Set(ctx, ResultPrefix+r.JobID, raw, q.resultTTL).Err(); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

// Result returns the stored status of a job.
func (q *Queue) Result(ctx context.Context, jobID string) (*BulkResult, error) {
	raw, err := q.client.Get(ctx, ResultPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	var r BulkResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}

// DecodeBulk extracts the bulk payload of a job.
func DecodeBulk(job *Job) (*BulkPayload, error) {
	if job.Type != JobTypeBulkRegistration {
		return nil, fmt.Errorf("unknown job type: %s", job.Type)
	}
	var p BulkPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &p, nil
}
