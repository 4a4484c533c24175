package events

import (
	"testing"

	"github.com/upeu-eventos/gateway/internal/models"
)

func views(ids ...int64) []models.EventView {
	out := make([]models.EventView, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.EventView{ID: id, Title: "e"})
	}
	return out
}

func TestMergeDropsStaleGeneration(t *testing.T) {
	pub := &recPublisher{}
	s := NewStore(pub)
	old := s.Reset(views(1, 2))
	cur := s.Reset(views(1, 2))

	if s.Merge(old, 1, func(v *models.EventView) { v.RegisteredCount = 99 }) {
		t.Fatal("stale merge applied")
	}
	if !s.Merge(cur, 1, func(v *models.EventView) { v.RegisteredCount = 3 }) {
		t.Fatal("current merge dropped")
	}
	v, _ := s.Get(1)
	if v.RegisteredCount != 3 {
		t.Fatalf("count = %d, want 3", v.RegisteredCount)
	}
	if len(pub.events) != 1 || pub.events[0] != 1 {
		t.Fatalf("published = %v", pub.events)
	}
}

func TestMergesOnDifferentEventsDoNotClobber(t *testing.T) {
	s := NewStore(nil)
	gen := s.Reset(views(1, 2))
	s.Merge(gen, 1, func(v *models.EventView) { v.RegisteredCount = 5 })
	s.Merge(gen, 2, func(v *models.EventView) { v.AcceptedPaymentMethods = []string{"Yape"} })
	s.Merge(gen, 1, func(v *models.EventView) { v.Sessions = []models.EventSession{{ID: 9}} })

	a, _ := s.Get(1)
	b, _ := s.Get(2)
	if a.RegisteredCount != 5 || len(a.Sessions) != 1 {
		t.Fatalf("event 1 = %+v", a)
	}
	if b.RegisteredCount != 0 || len(b.AcceptedPaymentMethods) != 1 {
		t.Fatalf("event 2 = %+v", b)
	}
}

func TestRemoveReinsertKeepsPosition(t *testing.T) {
	s := NewStore(nil)
	s.Reset(views(1, 2, 3))
	v, idx, ok := s.Remove(2)
	if !ok || idx != 1 {
		t.Fatalf("Remove = %v %d", ok, idx)
	}
	if got := s.List(); len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	s.Reinsert(v, idx)
	got := s.List()
	if len(got) != 3 || got[1].ID != 2 {
		t.Fatalf("order = %+v", got)
	}
}

func TestPutPrependsNewViews(t *testing.T) {
	s := NewStore(nil)
	s.Reset(views(1))
	s.Put(models.EventView{ID: 7})
	s.Put(models.EventView{ID: 1, Title: "renamed"})
	got := s.List()
	if len(got) != 2 || got[0].ID != 7 || got[1].Title != "renamed" {
		t.Fatalf("list = %+v", got)
	}
}
