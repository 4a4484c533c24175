package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/models"
)

var (
	// ErrInvalidEvent is returned for input rejected before any request.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrNoPaymentMethods means a paid event was submitted without accepted methods.
	ErrNoPaymentMethods = errors.New("paid events need at least one accepted payment method")
)

// Writer is the write side of the upstream API used by the pipelines.
type Writer interface {
	CreateEvento(ctx context.Context, e models.Evento) (*models.Evento, error)
	UpdateEvento(ctx context.Context, id int64, e models.Evento) (*models.Evento, error)
	DeleteEvento(ctx context.Context, id int64) error
	ListSessions(ctx context.Context, eventID int64) ([]models.FechaEvento, error)
	CreateSession(ctx context.Context, f models.FechaEvento) (*models.FechaEvento, error)
	DeleteSession(ctx context.Context, id int64) error
	ListPaymentMethods(ctx context.Context, eventID int64) ([]models.MetodoPagoEvento, error)
	CreatePaymentMethod(ctx context.Context, m models.MetodoPagoEvento) (*models.MetodoPagoEvento, error)
}

// SessionInput is one extra date of an event.
type SessionInput struct {
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
	Location  string    `json:"location"`
}

// EventInput is the admin form for creating or updating an event.
type EventInput struct {
	Title                  string             `json:"title" binding:"required"`
	Description            string             `json:"description"`
	Type                   models.EventType   `json:"type"`
	Location               string             `json:"location"`
	Capacity               int                `json:"capacity" binding:"min=0"`
	IsFree                 bool               `json:"is_free"`
	Price                  float64            `json:"price" binding:"min=0"`
	ImageURL               string             `json:"image_url"`
	Status                 models.EventStatus `json:"status"`
	StartDate              *time.Time         `json:"start_date"`
	EndDate                *time.Time         `json:"end_date"`
	Dates                  []SessionInput     `json:"dates"`
	AcceptedPaymentMethods []string           `json:"accepted_payment_methods"`
}

func (in EventInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if in.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidEvent)
	}
	if !in.IsFree && len(in.methods()) == 0 {
		return ErrNoPaymentMethods
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return fmt.Errorf("%w: end_date before start_date", ErrInvalidEvent)
	}
	for _, d := range in.Dates {
		if d.EndDate.Before(d.StartDate) {
			return fmt.Errorf("%w: session ends before it starts", ErrInvalidEvent)
		}
	}
	return nil
}

func (in EventInput) methods() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range in.AcceptedPaymentMethods {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(m)]; dup {
			continue
		}
		seen[strings.ToLower(m)] = struct{}{}
		out = append(out, m)
	}
	return out
}

func (in EventInput) evento(published bool, creatorID int64) models.Evento {
	price := in.Price
	if in.IsFree {
		price = 0
	}
	return models.Evento{
		Nombre:      strings.TrimSpace(in.Title),
		Descripcion: in.Description,
		Tipo:        in.Type.Backend(),
		Categoria:   "GENERAL",
		Ubicacion:   in.Location,
		Capacidad:   in.Capacity,
		EsPago:      !in.IsFree,
		Precio:      price,
		ImagenURL:   in.ImageURL,
		Estado:      published,
		CreadoPorID: creatorID,
	}
}

func (in EventInput) sessions(eventID int64) []models.FechaEvento {
	var out []models.FechaEvento
	if in.StartDate != nil && in.EndDate != nil {
		out = append(out, models.FechaEvento{
			EventoID:    eventID,
			FechaInicio: in.StartDate.Format(time.RFC3339),
			FechaFin:    in.EndDate.Format(time.RFC3339),
			Descripcion: in.Description,
		})
	}
	for _, d := range in.Dates {
		out = append(out, models.FechaEvento{
			EventoID:    eventID,
			FechaInicio: d.StartDate.Format(time.RFC3339),
			FechaFin:    d.EndDate.Format(time.RFC3339),
			Descripcion: d.Location,
		})
	}
	return out
}

// PipelineReport collects the fan-out outcomes of a create or update.
type PipelineReport struct {
	SessionsCreated int      `json:"sessions_created"`
	SessionsDeleted int      `json:"sessions_deleted"`
	MethodsCreated  int      `json:"methods_created"`
	Published       bool     `json:"published"`
	Errors          []string `json:"errors,omitempty"`
}

// OK reports whether every fan-out step succeeded.
func (r PipelineReport) OK() bool { return len(r.Errors) == 0 }

// Service runs the admin event pipelines against the upstream and keeps the
// admin view store in step.
type Service struct {
	w       Writer
	loaders []*Loader
	logger  *zap.Logger
}

// NewService creates the event service. The first loader is the admin view;
// mirrors (e.g. the student view) receive the same changes.
func NewService(w Writer, loader *Loader, logger *zap.Logger, mirrors ...*Loader) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{w: w, loaders: append([]*Loader{loader}, mirrors...), logger: logger}
}

// Create creates the event as a draft, attaches its sessions and payment methods
// and publishes it when requested and every attachment succeeded.
func (s *Service) Create(ctx context.Context, in EventInput, creatorID int64) (*models.EventView, PipelineReport, error) {
	var report PipelineReport
	if err := in.validate(); err != nil {
		return nil, report, err
	}
	base := in.evento(false, creatorID)
	created, err := s.w.CreateEvento(ctx, base)
	if err != nil {
		return nil, report, fmt.Errorf("create event: %w", err)
	}
	id := created.ID

	s.attach(ctx, id, in.sessions(id), in.methods(), &report)

	final := created
	if in.Status == models.EventPublished {
		if report.OK() {
			published, err := s.w.UpdateEvento(ctx, id, in.evento(true, creatorID))
			if err != nil {
				report.Errors = append(report.Errors, "publish: "+err.Error())
			} else {
				final = published
				report.Published = true
			}
		} else {
			s.logger.Warn("event left as draft after partial failure", zap.Int64("event_id", id), zap.Strings("errors", report.Errors))
		}
	}
	return s.install(ctx, *final), report, nil
}

// Update rewrites the event, replaces all of its sessions and adds missing payment methods.
func (s *Service) Update(ctx context.Context, id int64, in EventInput, editorID int64) (*models.EventView, PipelineReport, error) {
	var report PipelineReport
	if err := in.validate(); err != nil {
		return nil, report, err
	}
	updated, err := s.w.UpdateEvento(ctx, id, in.evento(in.Status == models.EventPublished, editorID))
	if err != nil {
		return nil, report, fmt.Errorf("update event: %w", err)
	}
	report.Published = updated.Estado

	existing, err := s.w.ListSessions(ctx, id)
	if err != nil {
		report.Errors = append(report.Errors, "list sessions: "+err.Error())
	} else {
		var stale []int64
		for _, f := range existing {
			if f.ID != 0 && (f.EventoID == 0 || f.EventoID == id) {
				stale = append(stale, f.ID)
			}
		}
		errs := gather(len(stale), func(i int) error { return s.w.DeleteSession(ctx, stale[i]) })
		report.SessionsDeleted = len(stale) - len(errs)
		report.Errors = append(report.Errors, prefix("delete session", errs)...)
	}

	methods := in.methods()
	if current, err := s.w.ListPaymentMethods(ctx, id); err == nil {
		have := make(map[string]struct{}, len(current))
		for _, m := range current {
			have[strings.ToLower(m.NombreMetodo)] = struct{}{}
		}
		missing := methods[:0:0]
		for _, m := range methods {
			if _, ok := have[strings.ToLower(m)]; !ok {
				missing = append(missing, m)
			}
		}
		methods = missing
	}
	s.attach(ctx, id, in.sessions(id), methods, &report)

	return s.install(ctx, *updated), report, nil
}

// Delete removes the event locally, deletes it upstream and restores the local
// view when the upstream call fails.
func (s *Service) Delete(ctx context.Context, id int64) error {
	type snapshot struct {
		store *Store
		view  models.EventView
		idx   int
	}
	var removed []snapshot
	for _, l := range s.loaders {
		if v, idx, ok := l.Store().Remove(id); ok {
			removed = append(removed, snapshot{l.Store(), v, idx})
		}
	}
	if err := s.w.DeleteEvento(ctx, id); err != nil {
		for _, r := range removed {
			r.store.Reinsert(r.view, r.idx)
		}
		s.logger.Error("delete event failed, view restored", zap.Int64("event_id", id), zap.Error(err))
		return fmt.Errorf("delete event: %w", err)
	}
	s.logger.Info("event deleted", zap.Int64("event_id", id))
	return nil
}

func (s *Service) attach(ctx context.Context, id int64, sessions []models.FechaEvento, methods []string, report *PipelineReport) {
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs := gather(len(sessions), func(i int) error {
			_, err := s.w.CreateSession(ctx, sessions[i])
			return err
		})
		mu.Lock()
		report.SessionsCreated += len(sessions) - len(errs)
		report.Errors = append(report.Errors, prefix("create session", errs)...)
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		errs := gather(len(methods), func(i int) error {
			_, err := s.w.CreatePaymentMethod(ctx, models.MetodoPagoEvento{NombreMetodo: methods[i], Activo: true, EventoID: id})
			return err
		})
		mu.Lock()
		report.MethodsCreated += len(methods) - len(errs)
		report.Errors = append(report.Errors, prefix("create payment method", errs)...)
		mu.Unlock()
	}()
	wg.Wait()
}

// install puts the fresh base view into every store and reloads its aspects.
func (s *Service) install(ctx context.Context, e models.Evento) *models.EventView {
	base := models.EventViewFromEvento(e)
	var wg sync.WaitGroup
	for _, l := range s.loaders {
		v := base
		if cur, ok := l.Store().Get(v.ID); ok {
			v.RegisteredCount = cur.RegisteredCount
			v.CountAspect = cur.CountAspect
		}
		l.Store().Put(v)
		wg.Add(1)
		go func(l *Loader) {
			defer wg.Done()
			l.RefreshEvent(ctx, base.ID)
		}(l)
	}
	wg.Wait()
	if out, ok := s.loaders[0].Store().Get(base.ID); ok {
		return &out
	}
	return &base
}

// gather runs n calls concurrently and returns every error once all settled.
func gather(n int, call func(i int) error) []error {
	if n == 0 {
		return nil
	}
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = call(i)
		}(i)
	}
	wg.Wait()
	out := errs[:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

func prefix(stage string, errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, stage+": "+err.Error())
	}
	return out
}

// Filter narrows a list by search query (title, description, type, location) and tab.
func Filter(views []models.EventView, query, tab string) []models.EventView {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.EventView, 0, len(views))
	for _, v := range views {
		switch tab {
		case string(models.EventPublished), string(models.EventDraft):
			if string(v.Status) != tab {
				continue
			}
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(v.Title), q) &&
			!strings.Contains(strings.ToLower(v.Description), q) &&
			!strings.Contains(strings.ToLower(string(v.Type)), q) &&
			!strings.Contains(strings.ToLower(v.Location), q) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Totals are the admin dashboard counters.
type Totals struct {
	Events        int `json:"events"`
	Published     int `json:"published"`
	Registrations int `json:"registrations"`
}

// Summarize computes Totals from views.
func Summarize(views []models.EventView) Totals {
	t := Totals{Events: len(views)}
	for _, v := range views {
		if v.Status == models.EventPublished {
			t.Published++
		}
		t.Registrations += v.RegisteredCount
	}
	return t
}
