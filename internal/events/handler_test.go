package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/upeu-eventos/gateway/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	up := newFakeUpstream(models.Evento{ID: 1, Nombre: "Congreso"}, models.Evento{ID: 2, Nombre: "Feria"})
	svc, admin, student := newService(up)
	if _, err := admin.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	h := NewHandler(svc, admin, student, nil)
	r := gin.New()
	r.DELETE("/admin/events/:id", h.Delete)

	tests := []struct {
		name        string
		path        string
		want        int
		wantDeletes int
	}{
		{"missing confirm", "/admin/events/1", http.StatusBadRequest, 0},
		{"confirm false", "/admin/events/1?confirm=false", http.StatusBadRequest, 0},
		{"confirm yes", "/admin/events/1?confirm=yes", http.StatusBadRequest, 0},
		{"bad id", "/admin/events/abc?confirm=true", http.StatusBadRequest, 0},
		{"confirmed", "/admin/events/1?confirm=true", http.StatusNoContent, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, tt.path, nil))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if up.deletes != tt.wantDeletes {
				t.Fatalf("upstream deletes = %d, want %d", up.deletes, tt.wantDeletes)
			}
		})
	}
	if _, ok := admin.Store().Get(1); ok {
		t.Error("confirmed delete left the view in the store")
	}
	if _, ok := admin.Store().Get(2); !ok {
		t.Error("unrelated view removed")
	}
}
