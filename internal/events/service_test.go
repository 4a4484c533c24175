package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/upeu-eventos/gateway/internal/models"
)

func newService(up *fakeUpstream) (*Service, *Loader, *Loader) {
	admin := NewLoader(up, NewStore(nil), LoaderOptions{}, nil)
	student := NewLoader(up, NewStore(nil), LoaderOptions{FallbackMethods: []string{"Efectivo"}, FallbackOnEmpty: true}, nil)
	return NewService(up, admin, nil, student), admin, student
}

func TestCreatePaidWithoutMethodsFailsBeforeRequests(t *testing.T) {
	up := newFakeUpstream()
	svc, _, _ := newService(up)
	_, _, err := svc.Create(context.Background(), EventInput{Title: "Taller", IsFree: false, Price: 10}, 1)
	if !errors.Is(err, ErrNoPaymentMethods) {
		t.Fatalf("err = %v", err)
	}
	if up.calls != 0 {
		t.Fatalf("made %d upstream calls", up.calls)
	}
}

func TestCreatePublishesAfterFanOut(t *testing.T) {
	up := newFakeUpstream()
	svc, admin, student := newService(up)
	start := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	in := EventInput{
		Title:                  "Feria",
		Type:                   models.TypeCultural,
		IsFree:                 false,
		Price:                  15,
		Status:                 models.EventPublished,
		StartDate:              &start,
		EndDate:                &end,
		Dates:                  []SessionInput{{StartDate: start.Add(24 * time.Hour), EndDate: end.Add(24 * time.Hour)}},
		AcceptedPaymentMethods: []string{"Yape", "yape", "Efectivo"},
	}
	v, report, err := svc.Create(context.Background(), in, 7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !report.OK() || !report.Published || report.SessionsCreated != 2 || report.MethodsCreated != 2 {
		t.Fatalf("report = %+v", report)
	}
	if v.Status != models.EventPublished || len(v.Sessions) != 2 || len(v.AcceptedPaymentMethods) != 2 {
		t.Fatalf("view = %+v", v)
	}
	if _, ok := student.Store().Get(v.ID); !ok {
		t.Fatal("student view not updated")
	}
	if got := admin.Store().List(); len(got) != 1 {
		t.Fatalf("admin list = %d", len(got))
	}
}

func TestCreateLeavesDraftOnPartialFailure(t *testing.T) {
	up := newFakeUpstream()
	up.failSession = true
	svc, _, _ := newService(up)
	start := time.Now()
	in := EventInput{Title: "Charla", IsFree: true, Status: models.EventPublished, StartDate: &start, EndDate: &start}
	v, report, err := svc.Create(context.Background(), in, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if report.OK() || report.Published {
		t.Fatalf("report = %+v", report)
	}
	if v.Status != models.EventDraft {
		t.Fatalf("status = %s, want draft", v.Status)
	}
	if len(up.updates) != 0 {
		t.Fatalf("publish attempted: %+v", up.updates)
	}
}

func TestUpdateReplacesSessionsAndAddsMissingMethods(t *testing.T) {
	up := newFakeUpstream(models.Evento{ID: 5, Nombre: "Old", EsPago: true})
	up.sessions[5] = []models.FechaEvento{{ID: 50, EventoID: 5}, {ID: 51, EventoID: 5}}
	up.methods[5] = []models.MetodoPagoEvento{{ID: 60, NombreMetodo: "Yape", Activo: true, EventoID: 5}}
	svc, admin, _ := newService(up)
	if _, err := admin.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	in := EventInput{Title: "New", IsFree: false, Price: 5, StartDate: &start, EndDate: &start, AcceptedPaymentMethods: []string{"Yape", "Plin"}}
	v, report, err := svc.Update(context.Background(), 5, in, 1)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if report.SessionsDeleted != 2 || report.SessionsCreated != 1 || report.MethodsCreated != 1 {
		t.Fatalf("report = %+v", report)
	}
	if v.Title != "New" || len(v.Sessions) != 1 || len(v.AcceptedPaymentMethods) != 2 {
		t.Fatalf("view = %+v", v)
	}
}

func TestDeleteRestoresViewOnFailure(t *testing.T) {
	up := newFakeUpstream(models.Evento{ID: 1}, models.Evento{ID: 2}, models.Evento{ID: 3})
	up.failDelete = true
	svc, admin, student := newService(up)
	admin.LoadAll(context.Background())
	student.LoadAll(context.Background())

	if err := svc.Delete(context.Background(), 2); err == nil {
		t.Fatal("expected error")
	}
	for _, l := range []*Loader{admin, student} {
		got := l.Store().List()
		if len(got) != 3 || got[1].ID != 2 {
			t.Fatalf("after rollback = %+v", got)
		}
	}

	up.failDelete = false
	if err := svc.Delete(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if _, ok := admin.Store().Get(2); ok {
		t.Fatal("event still present")
	}
}

func TestFilter(t *testing.T) {
	all := []models.EventView{
		{ID: 1, Title: "Congreso de Ingeniería", Status: models.EventPublished, Type: models.TypeAcademic},
		{ID: 2, Title: "Feria", Location: "Auditorio", Status: models.EventDraft, Type: models.TypeCultural},
		{ID: 3, Title: "Maratón", Description: "5k ingeniería", Status: models.EventPublished, Type: models.TypeSports},
	}
	tests := []struct {
		q, tab string
		want   []int64
	}{
		{"", "all", []int64{1, 2, 3}},
		{"", "draft", []int64{2}},
		{"INGENIERÍA", "all", []int64{1, 3}},
		{"auditorio", "published", nil},
		{"sports", "", []int64{3}},
	}
	for _, tt := range tests {
		got := Filter(all, tt.q, tt.tab)
		if len(got) != len(tt.want) {
			t.Fatalf("Filter(%q, %q) = %d views, want %d", tt.q, tt.tab, len(got), len(tt.want))
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Fatalf("Filter(%q, %q)[%d] = %d", tt.q, tt.tab, i, got[i].ID)
			}
		}
	}
}
