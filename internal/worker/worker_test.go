package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/upeu-eventos/gateway/internal/auth"
	"github.com/upeu-eventos/gateway/internal/bulk"
	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/pkg/queue"
)

type fakeJobs struct {
	results []queue.BulkResult
}

func (f *fakeJobs) Dequeue(ctx context.Context) (*queue.Job, string, error) { return nil, "", nil }
func (f *fakeJobs) Retry(ctx context.Context, job *queue.Job) error         { return nil }
func (f *fakeJobs) SetResult(ctx context.Context, r queue.BulkResult) error {
	f.results = append(f.results, r)
	return nil
}

func (f *fakeJobs) last() queue.BulkResult { return f.results[len(f.results)-1] }

type fakeSessions struct {
	s   *models.Session
	err error
}

func (f fakeSessions) Get(ctx context.Context, id string) (*models.Session, error) { return f.s, f.err }

type fakeRegisterer struct {
	jobID  string
	remote bool
	err    error
}

func (f *fakeRegisterer) Register(ctx context.Context, eventID int64, codes []string, payment *models.PaymentInfo) ([]models.BulkOperationResult, error) {
	f.jobID = bulk.JobIDFrom(ctx)
	f.remote = bulk.IsRemote(ctx)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.BulkOperationResult, 0, len(codes))
	for _, c := range codes {
		out = append(out, models.BulkOperationResult{Code: c, Outcome: models.OutcomeRegistered})
	}
	return out, nil
}

func bulkJob(t *testing.T) *queue.Job {
	t.Helper()
	body, err := json.Marshal(queue.BulkPayload{EventID: 9, Codes: []string{"2024001", "2024002"}, SessionID: "sid"})
	if err != nil {
		t.Fatal(err)
	}
	return &queue.Job{ID: "job-1", Type: queue.JobTypeBulkRegistration, Payload: body}
}

func TestProcessStoresResults(t *testing.T) {
	jobs := &fakeJobs{}
	reg := &fakeRegisterer{}
	p := NewBulkProcessor(jobs, fakeSessions{s: &models.Session{ID: "sid", UpstreamToken: "tok"}}, reg, nil)

	if err := p.Process(context.Background(), bulkJob(t)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got := jobs.last()
	if got.Status != queue.StatusCompleted || got.Summary.Registered != 2 || len(got.Results) != 2 {
		t.Fatalf("result = %+v", got)
	}
	if reg.jobID != "job-1" || !reg.remote {
		t.Fatalf("job context = %q %v", reg.jobID, reg.remote)
	}
}

func TestProcessPermanentFailures(t *testing.T) {
	tests := []struct {
		name     string
		sessions fakeSessions
		regErr   error
	}{
		{"expired session", fakeSessions{err: auth.ErrSessionNotFound}, nil},
		{"missing payment", fakeSessions{s: &models.Session{}}, bulk.ErrPaymentInfoRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &fakeJobs{}
			p := NewBulkProcessor(jobs, tt.sessions, &fakeRegisterer{err: tt.regErr}, nil)
			if err := p.Process(context.Background(), bulkJob(t)); err != nil {
				t.Fatalf("Process returned %v, want nil", err)
			}
			if got := jobs.last(); got.Status != queue.StatusFailed || got.Error == "" {
				t.Fatalf("result = %+v", got)
			}
		})
	}
}

func TestProcessTransientFailureRetries(t *testing.T) {
	jobs := &fakeJobs{}
	p := NewBulkProcessor(jobs, fakeSessions{err: errors.New("db down")}, &fakeRegisterer{}, nil)
	if err := p.Process(context.Background(), bulkJob(t)); err == nil {
		t.Fatal("expected retryable error")
	}
}

func TestProcessDropsUnknownJobType(t *testing.T) {
	p := NewBulkProcessor(&fakeJobs{}, fakeSessions{}, &fakeRegisterer{}, nil)
	if err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "email"}); err != nil {
		t.Fatalf("err = %v", err)
	}
}
