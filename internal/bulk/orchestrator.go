// Package bulk registers many students to one event from a list of codes.
package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/upeu-eventos/gateway/internal/codes"
	"github.com/upeu-eventos/gateway/internal/models"
)

// EventBulkCompleted is the realtime event published after every submission.
const EventBulkCompleted = "bulk_completed"

const reloadTimeout = 30 * time.Second

// ErrPaymentInfoRequired fails a paid submission that lacks method or reference.
var ErrPaymentInfoRequired = errors.New("paid events require payment method and reference")

// Registrar is the upstream registration API.
type Registrar interface {
	CreateInscripcion(ctx context.Context, in models.Inscripcion) (*models.Inscripcion, error)
	BulkInscribir(ctx context.Context, eventID int64, codes []string) ([]models.Inscripcion, error)
}

// Confirmer checks per-code existence in the student directory.
type Confirmer interface {
	ConfirmEach(ctx context.Context, codes []string) (confirmed, unconfirmed []string)
}

// EventResolver tells whether an event is paid. Fresh must read the upstream,
// not a cached view.
type EventResolver interface {
	Fresh(ctx context.Context, eventID int64) (models.EventView, error)
}

// Publisher receives the completion notice.
type Publisher interface {
	BroadcastToEventAndPublish(eventID int64, event string, payload interface{})
}

// ReloadFunc refreshes local registration state of an event after a submission.
type ReloadFunc func(ctx context.Context, eventID int64) error

// Completed is the payload of EventBulkCompleted.
type Completed struct {
	EventID int64              `json:"event_id"`
	JobID   string             `json:"job_id,omitempty"`
	Summary models.BulkSummary `json:"summary"`
	Remote  bool               `json:"remote,omitempty"`
}

// Orchestrator runs bulk submissions.
type Orchestrator struct {
	reg         Registrar
	confirmer   Confirmer
	events      EventResolver
	pub         Publisher
	reloads     []ReloadFunc
	concurrency int
	logger      *zap.Logger
}

// NewOrchestrator creates an orchestrator. pub may be nil. reloads run after every
// submission that reached the network.
func NewOrchestrator(reg Registrar, confirmer Confirmer, events EventResolver, pub Publisher, concurrency int, logger *zap.Logger, reloads ...ReloadFunc) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Orchestrator{
		reg:         reg,
		confirmer:   confirmer,
		events:      events,
		pub:         pub,
		reloads:     reloads,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Register submits codes to an event and returns one result per distinct code:
// well-formed codes first in submission order, then the malformed ones.
// Capacity is not checked; the upstream decides.
func (o *Orchestrator) Register(ctx context.Context, eventID int64, codeList []string, payment *models.PaymentInfo) ([]models.BulkOperationResult, error) {
	batch := codes.NormalizeList(codeList)
	results := make([]models.BulkOperationResult, 0, len(batch.Valid)+len(batch.Invalid))
	if len(batch.Valid) == 0 && len(batch.Invalid) == 0 {
		return results, nil
	}
	formatRejects := make([]models.BulkOperationResult, 0, len(batch.Invalid))
	for _, c := range batch.Invalid {
		formatRejects = append(formatRejects, models.BulkOperationResult{Code: c, Outcome: models.OutcomeRejectedFormat, Error: "code must be 7 or 8 digits"})
	}
	if len(batch.Valid) == 0 {
		return formatRejects, nil
	}

	ev, err := o.Check(ctx, eventID, payment)
	if err != nil {
		return nil, err
	}

	if ev.IsFree {
		results = append(results, o.registerFree(ctx, eventID, batch.Valid)...)
	} else {
		results = append(results, o.registerPaid(ctx, eventID, batch.Valid, *payment)...)
	}
	results = append(results, formatRejects...)

	o.reload(ctx, eventID)
	summary := models.Summarize(results)
	o.logger.Info("bulk registration settled",
		zap.Int64("event_id", eventID),
		zap.Bool("paid", !ev.IsFree),
		zap.Int("attempted", summary.Attempted),
		zap.Int("registered", summary.Registered),
		zap.Int("rejected", summary.Rejected),
	)
	if o.pub != nil {
		o.pub.BroadcastToEventAndPublish(eventID, EventBulkCompleted, Completed{EventID: eventID, JobID: JobIDFrom(ctx), Summary: summary, Remote: IsRemote(ctx)})
	}
	return results, nil
}

// Check resolves the event from the upstream and verifies paid events carry
// payment info.
func (o *Orchestrator) Check(ctx context.Context, eventID int64, payment *models.PaymentInfo) (models.EventView, error) {
	ev, err := o.events.Fresh(ctx, eventID)
	if err != nil {
		return models.EventView{}, err
	}
	if !ev.IsFree && !payment.Complete() {
		return models.EventView{}, ErrPaymentInfoRequired
	}
	return ev, nil
}

// registerFree sends every code in one batch call. Codes missing from the echo
// were not registered.
func (o *Orchestrator) registerFree(ctx context.Context, eventID int64, valid []string) []models.BulkOperationResult {
	out := make([]models.BulkOperationResult, 0, len(valid))
	created, err := o.reg.BulkInscribir(ctx, eventID, valid)
	if err != nil {
		o.logger.Warn("bulk registration call failed", zap.Int64("event_id", eventID), zap.Int("codes", len(valid)), zap.Error(err))
		for _, c := range valid {
			out = append(out, models.BulkOperationResult{Code: c, Outcome: models.OutcomeRejectedRemote, Error: err.Error()})
		}
		return out
	}
	echoed := make(map[string]struct{}, len(created))
	for _, in := range created {
		echoed[in.Code()] = struct{}{}
	}
	for _, c := range valid {
		if _, ok := echoed[c]; ok {
			out = append(out, models.BulkOperationResult{Code: c, Outcome: models.OutcomeRegistered})
		} else {
			out = append(out, models.BulkOperationResult{Code: c, Outcome: models.OutcomeRejectedRemote, Error: "not registered by backend"})
		}
	}
	return out
}

// registerPaid confirms every code, then registers the confirmed ones concurrently.
func (o *Orchestrator) registerPaid(ctx context.Context, eventID int64, valid []string, payment models.PaymentInfo) []models.BulkOperationResult {
	confirmed, _ := o.confirmer.ConfirmEach(ctx, valid)
	ok := make(map[string]struct{}, len(confirmed))
	for _, c := range confirmed {
		ok[c] = struct{}{}
	}

	out := make([]models.BulkOperationResult, len(valid))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, code := range valid {
		i, code := i, code
		if _, found := ok[code]; !found {
			out[i] = models.BulkOperationResult{Code: code, Outcome: models.OutcomeRejectedValidation, Error: "student not found"}
			continue
		}
		g.Go(func() error {
			_, err := o.reg.CreateInscripcion(ctx, models.Inscripcion{
				EventoID:            eventID,
				CodigoEstudiante:    code,
				EsInscripcionMasiva: "S",
				Estado:              models.EstadoConfirmado,
				MetodoPago:          payment.Method,
				NumeroOperacion:     payment.Reference,
			})
			if err != nil {
				o.logger.Debug("registration failed", zap.Int64("event_id", eventID), zap.String("code", code), zap.Error(err))
				out[i] = models.BulkOperationResult{Code: code, Outcome: models.OutcomeRejectedRemote, Error: err.Error()}
				return nil
			}
			out[i] = models.BulkOperationResult{Code: code, Outcome: models.OutcomeRegistered}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) reload(ctx context.Context, eventID int64) {
	var wg sync.WaitGroup
	for _, fn := range o.reloads {
		wg.Add(1)
		go func(fn ReloadFunc) {
			defer wg.Done()
			if err := fn(ctx, eventID); err != nil {
				o.logger.Warn("reload after bulk failed", zap.Int64("event_id", eventID), zap.Error(err))
			}
		}(fn)
	}
	wg.Wait()
}

type jobKey struct{}

type jobInfo struct {
	id     string
	remote bool
}

// WithJob marks ctx as running the given queued job. remote is true in the worker process.
func WithJob(ctx context.Context, jobID string, remote bool) context.Context {
	return context.WithValue(ctx, jobKey{}, jobInfo{id: jobID, remote: remote})
}

// JobIDFrom returns the job ID set by WithJob.
func JobIDFrom(ctx context.Context) string {
	j, _ := ctx.Value(jobKey{}).(jobInfo)
	return j.id
}

// IsRemote reports whether ctx runs in the worker process.
func IsRemote(ctx context.Context) bool {
	j, _ := ctx.Value(jobKey{}).(jobInfo)
	return j.remote
}

// Describe renders a one-line summary for logs and notifications.
func Describe(results []models.BulkOperationResult) string {
	s := models.Summarize(results)
	return fmt.Sprintf("%d registered, %d rejected of %d codes", s.Registered, s.Rejected, len(results))
}

// HandleRemote reloads local registration state when a worker process finished a
// queued submission. It has the signature of a realtime subscriber callback.
func (o *Orchestrator) HandleRemote(event string, payload []byte) {
	if event != EventBulkCompleted {
		return
	}
	var c Completed
	if err := json.Unmarshal(payload, &c); err != nil || !c.Remote {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()
	o.reload(ctx, c.EventID)
}
