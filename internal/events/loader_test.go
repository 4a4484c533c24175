package events

import (
	"context"
	"errors"
	"testing"

	"github.com/upeu-eventos/gateway/internal/models"
)

func TestLoadAllAggregates(t *testing.T) {
	up := newFakeUpstream(
		models.Evento{ID: 1, Nombre: "Congreso", Estado: true, EsPago: true, Precio: 20, CreatedAt: "2024-01-10T08:00:00"},
	)
	up.inscripcion[1] = 4
	up.sessions[1] = []models.FechaEvento{
		{ID: 11, EventoID: 1, FechaInicio: "2024-03-02T09:00:00", FechaFin: "2024-03-02T12:00:00"},
		{ID: 12, EventoID: 1, FechaInicio: "2024-03-01T09:00:00", FechaFin: "2024-03-03T18:00:00"},
	}
	up.methods[1] = []models.MetodoPagoEvento{
		{NombreMetodo: "Yape", Activo: true, EventoID: 1},
		{NombreMetodo: "Plin", Activo: false, EventoID: 1},
	}

	l := NewLoader(up, NewStore(nil), LoaderOptions{}, nil)
	got, err := l.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	v := got[0]
	if v.RegisteredCount != 4 || v.Status != models.EventPublished || v.IsFree {
		t.Fatalf("view = %+v", v)
	}
	if v.StartDate.Day() != 1 || v.EndDate.Day() != 3 {
		t.Fatalf("schedule = %v .. %v", v.StartDate, v.EndDate)
	}
	if len(v.AcceptedPaymentMethods) != 1 || v.AcceptedPaymentMethods[0] != "Yape" {
		t.Fatalf("methods = %v", v.AcceptedPaymentMethods)
	}
}

func TestLoadAllSurvivesAspectFailures(t *testing.T) {
	up := newFakeUpstream(models.Evento{ID: 1, Nombre: "A"}, models.Evento{ID: 2, Nombre: "B"})
	up.inscripcion[1] = 2
	up.inscripcion[2] = 7
	up.failCount[1] = true
	up.failMethods[1] = true
	up.failSessions[2] = true
	up.sessions[1] = []models.FechaEvento{
		{ID: 21, EventoID: 1, FechaInicio: "2024-05-06T08:00:00", FechaFin: "2024-05-06T12:00:00"},
		{ID: 22, EventoID: 1, FechaInicio: "2024-05-04T08:00:00", FechaFin: "2024-05-08T18:00:00"},
	}

	l := NewLoader(up, NewStore(nil), LoaderOptions{FallbackMethods: []string{"Efectivo"}}, nil)
	got, err := l.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	a, b := got[0], got[1]
	if a.RegisteredCount != 0 || !a.CountAspect.Defaulted {
		t.Fatalf("event 1 count = %d %+v", a.RegisteredCount, a.CountAspect)
	}
	if len(a.AcceptedPaymentMethods) != 1 || a.AcceptedPaymentMethods[0] != "Efectivo" || !a.MethodAspect.Defaulted {
		t.Fatalf("event 1 methods = %v", a.AcceptedPaymentMethods)
	}
	if !a.SessionAspect.Loaded || len(a.Sessions) != 2 {
		t.Fatalf("event 1 sessions not loaded: %+v", a.SessionAspect)
	}
	if a.StartDate.Day() != 4 || a.EndDate.Day() != 8 {
		t.Fatalf("event 1 schedule = %v .. %v", a.StartDate, a.EndDate)
	}
	if b.RegisteredCount != 7 || !b.SessionAspect.Defaulted || b.MethodAspect.Defaulted {
		t.Fatalf("event 2 = %+v", b)
	}
}

func TestFallbackOnEmpty(t *testing.T) {
	up := newFakeUpstream(models.Evento{ID: 1})
	student := NewLoader(up, NewStore(nil), LoaderOptions{FallbackMethods: []string{"Efectivo"}, FallbackOnEmpty: true}, nil)
	admin := NewLoader(up, NewStore(nil), LoaderOptions{}, nil)

	s, _ := student.LoadAll(context.Background())
	a, _ := admin.LoadAll(context.Background())
	if len(s[0].AcceptedPaymentMethods) != 1 {
		t.Fatalf("student methods = %v", s[0].AcceptedPaymentMethods)
	}
	if len(a[0].AcceptedPaymentMethods) != 0 {
		t.Fatalf("admin methods = %v", a[0].AcceptedPaymentMethods)
	}
}

func TestRefreshCount(t *testing.T) {
	up := newFakeUpstream(models.Evento{ID: 1})
	l := NewLoader(up, NewStore(nil), LoaderOptions{}, nil)
	if _, err := l.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	up.inscripcion[1] = 12
	if err := l.RefreshCount(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	v, _ := l.Store().Get(1)
	if v.RegisteredCount != 12 {
		t.Fatalf("count = %d", v.RegisteredCount)
	}
}

func TestEventLoadsOnMissAndPeekDoesNot(t *testing.T) {
	up := newFakeUpstream(models.Evento{ID: 3, Nombre: "Feria", Estado: true})
	l := NewLoader(up, NewStore(nil), LoaderOptions{}, nil)

	if _, ok := l.Peek(3); ok {
		t.Fatal("Peek found an event before any load")
	}
	if up.calls != 0 {
		t.Fatalf("Peek reached upstream: %d calls", up.calls)
	}
	v, err := l.Event(context.Background(), 3)
	if err != nil || v.Title != "Feria" {
		t.Fatalf("Event = %+v, %v", v, err)
	}
	if _, ok := l.Peek(3); !ok {
		t.Error("Peek misses a loaded event")
	}
	if _, err := l.Event(context.Background(), 99); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("err = %v, want ErrUnknownEvent", err)
	}
}

func TestFreshRereadsBaseAndKeepsAspects(t *testing.T) {
	up := newFakeUpstream(models.Evento{ID: 1, Nombre: "Charla", Estado: true})
	up.inscripcion[1] = 3
	up.sessions[1] = []models.FechaEvento{{ID: 5, EventoID: 1, FechaInicio: "2024-06-01T09:00:00", FechaFin: "2024-06-02T18:00:00"}}
	l := NewLoader(up, NewStore(nil), LoaderOptions{}, nil)
	if _, err := l.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	up.mu.Lock()
	up.eventos[0].EsPago = true
	up.eventos[0].Precio = 25
	up.mu.Unlock()

	if v, _ := l.Event(context.Background(), 1); !v.IsFree {
		t.Fatal("Event should serve the cached view")
	}
	v, err := l.Fresh(context.Background(), 1)
	if err != nil {
		t.Fatalf("Fresh: %v", err)
	}
	if v.IsFree || v.Price != 25 {
		t.Fatalf("fresh view = %+v", v)
	}
	if v.RegisteredCount != 3 || len(v.Sessions) != 1 || v.StartDate.Day() != 1 || v.EndDate.Day() != 2 {
		t.Fatalf("aspects lost: %+v", v)
	}
	if _, err := l.Fresh(context.Background(), 99); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("err = %v, want ErrUnknownEvent", err)
	}

	// an event created after the last load is picked up by a full load
	up.mu.Lock()
	up.eventos = append(up.eventos, models.Evento{ID: 2, Nombre: "Nuevo"})
	up.mu.Unlock()
	if v, err := l.Fresh(context.Background(), 2); err != nil || v.Title != "Nuevo" {
		t.Fatalf("Fresh new = %+v, %v", v, err)
	}
}
