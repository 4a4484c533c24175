package registrations

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/upeu-eventos/gateway/internal/auth"
	"github.com/upeu-eventos/gateway/internal/upstream"
	"github.com/upeu-eventos/gateway/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(up *fakeUpstream, signedIn bool) *gin.Engine {
	h := NewHandler(NewService(up, testEvents(), []string{"Efectivo"}, nil), nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if signedIn {
			c.Set(auth.ContextUser, student)
		}
		c.Next()
	})
	r.POST("/events/:id/register", h.Register)
	r.GET("/me/registrations", h.Mine)
	r.GET("/events/:id/payment-methods", h.PaymentMethods)
	return r
}

func do(r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, response.Body) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out response.Body
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHandlerRegisterStatuses(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     interface{}
		up       *fakeUpstream
		signedIn bool
		want     int
		wantErr  string
	}{
		{"created", "/events/1/register", nil, &fakeUpstream{}, true, http.StatusCreated, ""},
		{"not signed in", "/events/1/register", nil, &fakeUpstream{}, false, http.StatusUnauthorized, ""},
		{"bad id", "/events/abc/register", nil, &fakeUpstream{}, true, http.StatusBadRequest, ""},
		{"unknown event", "/events/99/register", nil, &fakeUpstream{}, true, http.StatusNotFound, ""},
		{"draft", "/events/3/register", nil, &fakeUpstream{}, true, http.StatusBadRequest, ""},
		{"paid without payment", "/events/2/register", RegisterRequest{PaymentMethod: "Yape"}, &fakeUpstream{}, true, http.StatusBadRequest, ""},
		{"paid", "/events/2/register", RegisterRequest{PaymentMethod: "Yape", PaymentReference: "555"}, &fakeUpstream{}, true, http.StatusCreated, ""},
		{
			"payment required", "/events/1/register", nil,
			&fakeUpstream{yape: "987654321", createErr: &upstream.Error{StatusCode: http.StatusPaymentRequired}},
			true, http.StatusPaymentRequired, "Pago requerido. Número Yape: 987654321",
		},
		{
			"upstream down", "/events/1/register", nil,
			&fakeUpstream{createErr: &upstream.Error{StatusCode: http.StatusInternalServerError}},
			true, http.StatusBadGateway, "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(newRouter(tt.up, tt.signedIn), http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.wantErr != "" && body.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", body.Error, tt.wantErr)
			}
		})
	}
}

func TestHandlerConflictWhenRegistered(t *testing.T) {
	up := &fakeUpstream{}
	r := newRouter(up, true)
	if w, _ := do(r, http.MethodPost, "/events/1/register", nil); w.Code != http.StatusCreated {
		t.Fatalf("first status = %d", w.Code)
	}
	up.existing = up.created
	if w, _ := do(r, http.MethodPost, "/events/1/register", nil); w.Code != http.StatusConflict {
		t.Fatalf("second status = %d, want 409", w.Code)
	}
}

func TestHandlerMineAndPaymentMethods(t *testing.T) {
	up := &fakeUpstream{yape: "900111222"}
	r := newRouter(up, true)
	do(r, http.MethodPost, "/events/1/register", nil)
	up.existing = up.created

	w, body := do(r, http.MethodGet, "/me/registrations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("mine status = %d", w.Code)
	}
	if list, _ := body.Data.([]interface{}); len(list) != 1 {
		t.Errorf("mine = %v", body.Data)
	}

	w, body = do(r, http.MethodGet, "/events/5/payment-methods", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("methods status = %d", w.Code)
	}
	data, _ := body.Data.(map[string]interface{})
	methods, _ := data["methods"].([]interface{})
	if len(methods) != 1 || methods[0] != "Efectivo" || data["yape_number"] != "900111222" {
		t.Errorf("payment options = %v", data)
	}
}
