// Package events aggregates upstream events with their sessions, payment
// methods and registration counts, and runs the admin event pipelines.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
)

// ErrUnknownEvent is returned for an event ID missing from the upstream list.
var ErrUnknownEvent = errors.New("unknown event")

// Source is the read side of the upstream API used by the loader.
type Source interface {
	ListEventos(ctx context.Context) ([]models.Evento, error)
	ListInscripciones(ctx context.Context, f upstream.InscripcionFilter) ([]models.Inscripcion, error)
	ListSessions(ctx context.Context, eventID int64) ([]models.FechaEvento, error)
	ListPaymentMethods(ctx context.Context, eventID int64) ([]models.MetodoPagoEvento, error)
}

// LoaderOptions controls payment-method defaults.
type LoaderOptions struct {
	// FallbackMethods replace the method list when its fetch fails.
	FallbackMethods []string
	// FallbackOnEmpty also applies FallbackMethods when an event has no active methods.
	FallbackOnEmpty bool
}

// Loader builds EventViews. Aspects of each event are fetched concurrently and
// merged into the store as soon as each one settles.
type Loader struct {
	src    Source
	store  *Store
	opts   LoaderOptions
	logger *zap.Logger
}

// NewLoader creates a loader writing into store.
func NewLoader(src Source, store *Store, opts LoaderOptions, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{src: src, store: store, opts: opts, logger: logger}
}

// Store returns the store the loader merges into.
func (l *Loader) Store() *Store { return l.store }

// LoadAll fetches the base list, then every aspect of every event, and returns
// the views once all fetches settled.
func (l *Loader) LoadAll(ctx context.Context) ([]models.EventView, error) {
	wait, err := l.Start(ctx)
	if err != nil {
		return nil, err
	}
	wait()
	return l.store.List(), nil
}

// Start installs the base list and launches the aspect fetches without waiting.
// The returned wait blocks until every fetch settled.
func (l *Loader) Start(ctx context.Context) (wait func(), err error) {
	items, err := l.src.ListEventos(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	views := make([]models.EventView, 0, len(items))
	for _, e := range items {
		views = append(views, models.EventViewFromEvento(e))
	}
	gen := l.store.Reset(views)

	var wg sync.WaitGroup
	for _, v := range views {
		l.loadAspects(ctx, &wg, gen, v.ID)
	}
	return wg.Wait, nil
}

// Event returns one view, loading the whole list first when the event is not
// in the store yet.
func (l *Loader) Event(ctx context.Context, eventID int64) (models.EventView, error) {
	if v, ok := l.store.Get(eventID); ok {
		return v, nil
	}
	if _, err := l.LoadAll(ctx); err != nil {
		return models.EventView{}, err
	}
	if v, ok := l.store.Get(eventID); ok {
		return v, nil
	}
	return models.EventView{}, fmt.Errorf("%w: %d", ErrUnknownEvent, eventID)
}

// Fresh refetches the base list and returns the current view of one event.
// Aspects already in the store are kept. An event the store has not seen
// triggers a full load.
func (l *Loader) Fresh(ctx context.Context, eventID int64) (models.EventView, error) {
	items, err := l.src.ListEventos(ctx)
	if err != nil {
		return models.EventView{}, fmt.Errorf("list events: %w", err)
	}
	for _, e := range items {
		if e.ID != eventID {
			continue
		}
		base := models.EventViewFromEvento(e)
		if l.store.Merge(l.store.Generation(), eventID, func(v *models.EventView) { applyBase(v, base) }) {
			if v, ok := l.store.Get(eventID); ok {
				return v, nil
			}
		}
		return l.Event(ctx, eventID)
	}
	return models.EventView{}, fmt.Errorf("%w: %d", ErrUnknownEvent, eventID)
}

// Peek returns the stored view of one event without loading.
func (l *Loader) Peek(eventID int64) (models.EventView, bool) {
	return l.store.Get(eventID)
}

// RefreshEvent refetches every aspect of one event and waits for them.
func (l *Loader) RefreshEvent(ctx context.Context, eventID int64) {
	var wg sync.WaitGroup
	l.loadAspects(ctx, &wg, l.store.Generation(), eventID)
	wg.Wait()
}

// RefreshCount refetches the registration count of one event.
func (l *Loader) RefreshCount(ctx context.Context, eventID int64) error {
	return l.loadCount(ctx, l.store.Generation(), eventID)
}

func (l *Loader) loadAspects(ctx context.Context, wg *sync.WaitGroup, gen uint64, id int64) {
	wg.Add(3)
	go func() {
		defer wg.Done()
		_ = l.loadCount(ctx, gen, id)
	}()
	go func() {
		defer wg.Done()
		l.loadSessions(ctx, gen, id)
	}()
	go func() {
		defer wg.Done()
		l.loadMethods(ctx, gen, id)
	}()
}

func (l *Loader) loadCount(ctx context.Context, gen uint64, id int64) error {
	regs, err := l.src.ListInscripciones(ctx, upstream.InscripcionFilter{EventoID: id})
	if err != nil {
		l.logger.Warn("registration count fetch failed", zap.Int64("event_id", id), zap.Error(err))
		l.store.Merge(gen, id, func(v *models.EventView) {
			v.CountAspect = models.AspectResult{Defaulted: true, Err: err.Error()}
		})
		return err
	}
	count := 0
	for _, r := range regs {
		// the filter is advisory on some deployments
		if r.EventoID == 0 || r.EventoID == id {
			count++
		}
	}
	l.store.Merge(gen, id, func(v *models.EventView) {
		v.RegisteredCount = count
		v.CountAspect = models.AspectResult{Loaded: true}
	})
	return nil
}

func (l *Loader) loadSessions(ctx context.Context, gen uint64, id int64) {
	items, err := l.src.ListSessions(ctx, id)
	if err != nil {
		l.logger.Warn("session fetch failed", zap.Int64("event_id", id), zap.Error(err))
		l.store.Merge(gen, id, func(v *models.EventView) {
			v.SessionAspect = models.AspectResult{Defaulted: true, Err: err.Error()}
		})
		return
	}
	sessions := make([]models.EventSession, 0, len(items))
	for _, f := range items {
		if f.EventoID != 0 && f.EventoID != id {
			continue
		}
		sessions = append(sessions, models.EventSession{
			ID:          f.ID,
			StartDate:   models.ParseTime(f.FechaInicio),
			EndDate:     models.ParseTime(f.FechaFin),
			Description: f.Descripcion,
		})
	}
	l.store.Merge(gen, id, func(v *models.EventView) {
		v.ApplySessions(sessions)
		v.SessionAspect = models.AspectResult{Loaded: true}
	})
}

func (l *Loader) loadMethods(ctx context.Context, gen uint64, id int64) {
	items, err := l.src.ListPaymentMethods(ctx, id)
	if err != nil {
		l.logger.Warn("payment method fetch failed", zap.Int64("event_id", id), zap.Error(err))
		fallback := l.fallback()
		l.store.Merge(gen, id, func(v *models.EventView) {
			v.AcceptedPaymentMethods = fallback
			v.MethodAspect = models.AspectResult{Defaulted: true, Err: err.Error()}
		})
		return
	}
	methods := make([]string, 0, len(items))
	for _, m := range items {
		if m.Activo && (m.EventoID == 0 || m.EventoID == id) {
			methods = append(methods, m.NombreMetodo)
		}
	}
	aspect := models.AspectResult{Loaded: true}
	if len(methods) == 0 && l.opts.FallbackOnEmpty {
		methods = l.fallback()
		aspect.Defaulted = true
	}
	l.store.Merge(gen, id, func(v *models.EventView) {
		v.AcceptedPaymentMethods = methods
		v.MethodAspect = aspect
	})
}

// applyBase overwrites the upstream-owned fields of v. Session-derived dates stay.
func applyBase(v *models.EventView, base models.EventView) {
	v.Title = base.Title
	v.Description = base.Description
	v.Type = base.Type
	v.Status = base.Status
	v.Location = base.Location
	v.Capacity = base.Capacity
	v.IsFree = base.IsFree
	v.Price = base.Price
	v.ImageURL = base.ImageURL
	v.CreatedBy = base.CreatedBy
	v.CreatedAt = base.CreatedAt
}

func (l *Loader) fallback() []string {
	out := make([]string, len(l.opts.FallbackMethods))
	copy(out, l.opts.FallbackMethods)
	return out
}
