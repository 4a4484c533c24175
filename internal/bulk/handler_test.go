package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/validation"
	"github.com/upeu-eventos/gateway/pkg/queue"
	"github.com/upeu-eventos/gateway/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type batchDown struct{}

func (batchDown) ValidarCodigos(ctx context.Context, codes []string) (*models.ValidationResponse, error) {
	return nil, errors.New("connection refused")
}

type noDirectory struct{}

func (noDirectory) GetEstudiante(ctx context.Context, code string) (*models.Estudiante, error) {
	return &models.Estudiante{CodigoEstudiante: code}, nil
}

func (noDirectory) ListEstudiantes(ctx context.Context) ([]models.Estudiante, error) {
	return []models.Estudiante{{CodigoEstudiante: "2024001"}, {CodigoEstudiante: "bad"}, {CodigoEstudiante: "2024001"}}, nil
}

type memJobs struct{ payloads []queue.BulkPayload }

func (m *memJobs) EnqueueBulk(ctx context.Context, p queue.BulkPayload) (string, error) {
	m.payloads = append(m.payloads, p)
	return "job-1", nil
}

func (m *memJobs) Result(ctx context.Context, jobID string) (*queue.BulkResult, error) {
	if jobID != "job-1" {
		return nil, queue.ErrJobNotFound
	}
	return &queue.BulkResult{JobID: jobID, Status: queue.StatusQueued}, nil
}

func newRouter(t *testing.T, jobs Jobs) (*gin.Engine, *backend) {
	t.Helper()
	b, _, o, _ := setup(t)
	v := validation.NewValidator(batchDown{}, noDirectory{}, 2, nil)
	h := NewHandler(o, v, noDirectory{}, jobs, nil)
	r := gin.New()
	r.POST("/admin/codes/normalize", h.Normalize)
	r.POST("/admin/codes/validate", h.Validate)
	r.POST("/admin/codes/upload", h.Upload)
	r.GET("/admin/codes/directory", h.Directory)
	r.POST("/admin/events/:id/bulk", h.Submit)
	r.GET("/admin/bulk/jobs/:jobId", h.JobStatus)
	return r, b
}

func do(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNormalizeEndpoint(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := do(r, http.MethodPost, "/admin/codes/normalize", CodesRequest{Raw: "2024001, 2024001;abc\n12345678"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Data models.CodeBatch `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data.Valid) != 2 || len(body.Data.Invalid) != 1 {
		t.Fatalf("batch = %+v", body.Data)
	}
}

func TestValidateUnavailableKeepsCodes(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := do(r, http.MethodPost, "/admin/codes/validate", CodesRequest{Codes: []string{"2024001"}})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Data models.CodeBatch `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Data.Valid) != 1 {
		t.Fatalf("codes dropped: %s", w.Body.String())
	}

	w = do(r, http.MethodPost, "/admin/codes/validate?strategy=each", CodesRequest{Codes: []string{"2024001"}})
	if w.Code != http.StatusOK {
		t.Fatalf("per-code status = %d", w.Code)
	}
}

func TestDirectoryEndpoint(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := do(r, http.MethodGet, "/admin/codes/directory", nil)
	var body struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusOK || body.Data.Count != 1 {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestUploadEndpoint(t *testing.T) {
	r, _ := newRouter(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "codes.csv")
	_, _ = fw.Write([]byte("\ufeff20240001\n20241002\n20240001\nnombre\n"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/admin/codes/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Data struct {
			Codes   []string `json:"codes"`
			Invalid []string `json:"invalid"`
		} `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Data.Codes) != 2 || len(body.Data.Invalid) != 1 {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestSubmitErrors(t *testing.T) {
	r, b := newRouter(t, nil)
	tests := []struct {
		name string
		path string
		body SubmitRequest
		want int
	}{
		{"paid without payment", "/admin/events/2/bulk", SubmitRequest{CodesRequest: CodesRequest{Codes: []string{"2024001"}}}, http.StatusBadRequest},
		{"unknown event", "/admin/events/77/bulk", SubmitRequest{CodesRequest: CodesRequest{Codes: []string{"2024001"}}}, http.StatusNotFound},
		{"bad id", "/admin/events/x/bulk", SubmitRequest{}, http.StatusBadRequest},
		{"async disabled", "/admin/events/1/bulk?async=true", SubmitRequest{CodesRequest: CodesRequest{Codes: []string{"2024001"}}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
	if b.calls() != 0 {
		t.Fatalf("registration calls = %d", b.calls())
	}
}

func TestSubmitSync(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := do(r, http.MethodPost, "/admin/events/1/bulk", SubmitRequest{CodesRequest: CodesRequest{Raw: "1000001 1000002 zz"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body response.Body
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	data, _ := body.Data.(map[string]interface{})
	summary, _ := data["summary"].(map[string]interface{})
	if summary["registered"] != float64(2) || summary["rejected"] != float64(1) {
		t.Fatalf("summary = %v", summary)
	}
}

func TestSubmitAsync(t *testing.T) {
	jobs := &memJobs{}
	r, b := newRouter(t, jobs)
	w := do(r, http.MethodPost, "/admin/events/2/bulk?async=true", SubmitRequest{
		CodesRequest:     CodesRequest{Codes: []string{"2024001"}},
		PaymentMethod:    "Yape",
		PaymentReference: "OP-1",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if len(jobs.payloads) != 1 || jobs.payloads[0].EventID != 2 || !jobs.payloads[0].Payment.Complete() {
		t.Fatalf("payloads = %+v", jobs.payloads)
	}
	if b.calls() != 0 {
		t.Fatal("async submission must not register inline")
	}

	if w := do(r, http.MethodGet, "/admin/bulk/jobs/job-1", nil); w.Code != http.StatusOK {
		t.Fatalf("job status = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/admin/bulk/jobs/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d", w.Code)
	}
}

func TestSubmitAsyncWithoutValidCodesIsNoop(t *testing.T) {
	jobs := &memJobs{}
	r, b := newRouter(t, jobs)
	tests := []struct {
		name         string
		req          SubmitRequest
		wantRejected float64
	}{
		{"empty", SubmitRequest{}, 0},
		{"only malformed", SubmitRequest{CodesRequest: CodesRequest{Raw: "abc 12"}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/admin/events/2/bulk?async=true", tt.req)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			var body response.Body
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			data, _ := body.Data.(map[string]interface{})
			summary, _ := data["summary"].(map[string]interface{})
			if summary["attempted"] != float64(0) || summary["registered"] != float64(0) || summary["rejected"] != tt.wantRejected {
				t.Fatalf("summary = %v", summary)
			}
		})
	}
	if len(jobs.payloads) != 0 || b.calls() != 0 {
		t.Fatalf("payloads = %d, calls = %d", len(jobs.payloads), b.calls())
	}
}

func TestHandleRemoteReloads(t *testing.T) {
	b, loader, o, _ := setup(t)
	b.regs[freeEvent] = []models.Inscripcion{{EventoID: freeEvent}, {EventoID: freeEvent}}
	payload, _ := json.Marshal(Completed{EventID: freeEvent, Remote: true})
	o.HandleRemote(EventBulkCompleted, payload)
	v, _ := loader.Store().Get(freeEvent)
	if v.RegisteredCount != 2 {
		t.Fatalf("count = %d", v.RegisteredCount)
	}
}
