package events

import (
	"context"
	"errors"
	"sync"

	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
)

var errBoom = errors.New("boom")

// fakeUpstream implements Source and Writer in memory.
type fakeUpstream struct {
	mu           sync.Mutex
	eventos      []models.Evento
	inscripcion  map[int64]int
	sessions     map[int64][]models.FechaEvento
	methods      map[int64][]models.MetodoPagoEvento
	failCount    map[int64]bool
	failSessions map[int64]bool
	failMethods  map[int64]bool
	failCreate   bool
	failSession  bool
	failDelete   bool
	calls        int
	deletes      int
	nextID       int64
	updates      []models.Evento
}

func newFakeUpstream(eventos ...models.Evento) *fakeUpstream {
	return &fakeUpstream{
		eventos:      eventos,
		inscripcion:  map[int64]int{},
		sessions:     map[int64][]models.FechaEvento{},
		methods:      map[int64][]models.MetodoPagoEvento{},
		failCount:    map[int64]bool{},
		failSessions: map[int64]bool{},
		failMethods:  map[int64]bool{},
		nextID:       100,
	}
}

func (f *fakeUpstream) call() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeUpstream) ListEventos(ctx context.Context) ([]models.Evento, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Evento(nil), f.eventos...), nil
}

func (f *fakeUpstream) ListInscripciones(ctx context.Context, flt upstream.InscripcionFilter) ([]models.Inscripcion, error) {
	f.call()
	if f.failCount[flt.EventoID] {
		return nil, errBoom
	}
	out := make([]models.Inscripcion, f.inscripcion[flt.EventoID])
	for i := range out {
		out[i].EventoID = flt.EventoID
	}
	return out, nil
}

func (f *fakeUpstream) ListSessions(ctx context.Context, id int64) ([]models.FechaEvento, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSessions[id] {
		return nil, errBoom
	}
	return append([]models.FechaEvento(nil), f.sessions[id]...), nil
}

func (f *fakeUpstream) ListPaymentMethods(ctx context.Context, id int64) ([]models.MetodoPagoEvento, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMethods[id] {
		return nil, errBoom
	}
	return append([]models.MetodoPagoEvento(nil), f.methods[id]...), nil
}

func (f *fakeUpstream) CreateEvento(ctx context.Context, e models.Evento) (*models.Evento, error) {
	f.call()
	if f.failCreate {
		return nil, errBoom
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.ID = f.nextID
	f.eventos = append(f.eventos, e)
	return &e, nil
}

func (f *fakeUpstream) UpdateEvento(ctx context.Context, id int64, e models.Evento) (*models.Evento, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = id
	f.updates = append(f.updates, e)
	return &e, nil
}

func (f *fakeUpstream) DeleteEvento(ctx context.Context, id int64) error {
	f.call()
	f.mu.Lock()
	f.deletes++
	f.mu.Unlock()
	if f.failDelete {
		return errBoom
	}
	return nil
}

func (f *fakeUpstream) CreateSession(ctx context.Context, s models.FechaEvento) (*models.FechaEvento, error) {
	f.call()
	if f.failSession {
		return nil, errBoom
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	f.sessions[s.EventoID] = append(f.sessions[s.EventoID], s)
	return &s, nil
}

func (f *fakeUpstream) DeleteSession(ctx context.Context, id int64) error {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	for ev, list := range f.sessions {
		kept := list[:0]
		for _, s := range list {
			if s.ID != id {
				kept = append(kept, s)
			}
		}
		f.sessions[ev] = kept
	}
	return nil
}

func (f *fakeUpstream) CreatePaymentMethod(ctx context.Context, m models.MetodoPagoEvento) (*models.MetodoPagoEvento, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	f.methods[m.EventoID] = append(f.methods[m.EventoID], m)
	return &m, nil
}

type recPublisher struct {
	mu     sync.Mutex
	events []int64
}

func (r *recPublisher) BroadcastToEventAndPublish(eventID int64, event string, payload interface{}) {
	r.mu.Lock()
	r.events = append(r.events, eventID)
	r.mu.Unlock()
}
