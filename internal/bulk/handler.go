package bulk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/auth"
	"github.com/upeu-eventos/gateway/internal/codes"
	"github.com/upeu-eventos/gateway/internal/events"
	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/validation"
	"github.com/upeu-eventos/gateway/pkg/queue"
	"github.com/upeu-eventos/gateway/pkg/response"
)

const maxUploadBytes = 1 << 20

// Jobs is the async submission queue.
type Jobs interface {
	EnqueueBulk(ctx context.Context, payload queue.BulkPayload) (string, error)
	Result(ctx context.Context, jobID string) (*queue.BulkResult, error)
}

// CodesRequest carries codes either as a list or as free text.
type CodesRequest struct {
	Codes []string `json:"codes"`
	Raw   string   `json:"raw"`
}

func (r CodesRequest) all() []string {
	out := append([]string(nil), r.Codes...)
	if strings.TrimSpace(r.Raw) != "" {
		out = append(out, r.Raw)
	}
	return out
}

// SubmitRequest is the body for POST /admin/events/:id/bulk.
type SubmitRequest struct {
	CodesRequest
	PaymentMethod    string `json:"payment_method"`
	PaymentReference string `json:"payment_reference"`
}

func (r SubmitRequest) payment() *models.PaymentInfo {
	if r.PaymentMethod == "" && r.PaymentReference == "" {
		return nil
	}
	return &models.PaymentInfo{Method: strings.TrimSpace(r.PaymentMethod), Reference: strings.TrimSpace(r.PaymentReference)}
}

// Handler handles code tooling and bulk submission endpoints.
type Handler struct {
	orch      *Orchestrator
	validator *validation.Validator
	directory validation.DirectoryLister
	jobs      Jobs
	logger    *zap.Logger
}

// NewHandler creates a bulk handler. jobs may be nil, which disables async submissions.
func NewHandler(orch *Orchestrator, validator *validation.Validator, directory validation.DirectoryLister, jobs Jobs, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{orch: orch, validator: validator, directory: directory, jobs: jobs, logger: logger}
}

// Normalize handles POST /admin/codes/normalize.
func (h *Handler) Normalize(c *gin.Context) {
	var req CodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	response.OK(c, codes.NormalizeList(req.all()))
}

// Validate handles POST /admin/codes/validate?strategy=batch|each.
func (h *Handler) Validate(c *gin.Context) {
	var req CodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	if c.Query("strategy") == "each" {
		batch := codes.NormalizeList(req.all())
		batch.Confirmed, batch.Unknown = h.validator.ConfirmEach(ctx, batch.Valid)
		response.OK(c, batch)
		return
	}
	batch, err := h.validator.ValidateBatch(ctx, req.all())
	if errors.Is(err, validation.ErrValidationUnavailable) {
		c.JSON(http.StatusServiceUnavailable, response.Body{Success: false, Error: "code validation is unavailable, codes were not validated", Data: batch})
		return
	}
	if err != nil {
		response.Internal(c, "failed to validate codes")
		return
	}
	response.OK(c, batch)
}

// Upload handles POST /admin/codes/upload (multipart field "file", CSV or plain text).
func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if fh.Size > maxUploadBytes {
		response.BadRequest(c, "file too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "cannot read file")
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		response.BadRequest(c, "cannot read file")
		return
	}
	batch := codes.ParseCSV(string(raw))
	response.OK(c, gin.H{"file": fh.Filename, "codes": batch.Valid, "invalid": batch.Invalid})
}

// Directory handles GET /admin/codes/directory.
func (h *Handler) Directory(c *gin.Context) {
	list, err := validation.DirectoryCodes(c.Request.Context(), h.directory)
	if err != nil {
		h.logger.Warn("directory listing failed", zap.Error(err))
		response.BadGateway(c, "student directory unavailable")
		return
	}
	response.OK(c, gin.H{"codes": list, "count": len(list)})
}

// Submit handles POST /admin/events/:id/bulk[?async=true].
func (h *Handler) Submit(c *gin.Context) {
	eventID, ok := events.ParseID(c, "id")
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		h.enqueue(c, eventID, req)
		return
	}

	results, err := h.orch.Register(c.Request.Context(), eventID, req.all(), req.payment())
	if h.writeError(c, err) {
		return
	}
	response.OK(c, gin.H{"event_id": eventID, "results": results, "summary": models.Summarize(results)})
}

func (h *Handler) enqueue(c *gin.Context, eventID int64, req SubmitRequest) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "async submissions are disabled")
		return
	}
	// Nothing to send: answer like the synchronous path without a job.
	if batch := codes.NormalizeList(req.all()); len(batch.Valid) == 0 {
		results, err := h.orch.Register(c.Request.Context(), eventID, req.all(), req.payment())
		if h.writeError(c, err) {
			return
		}
		response.OK(c, gin.H{"event_id": eventID, "results": results, "summary": models.Summarize(results)})
		return
	}
	if _, err := h.orch.Check(c.Request.Context(), eventID, req.payment()); h.writeError(c, err) {
		return
	}
	uid, _ := c.Get(auth.ContextUserID)
	requester, _ := uid.(int64)
	jobID, err := h.jobs.EnqueueBulk(c.Request.Context(), queue.BulkPayload{
		EventID:     eventID,
		Codes:       req.all(),
		Payment:     req.payment(),
		SessionID:   c.GetString(auth.ContextSession),
		RequestedBy: requester,
	})
	if err != nil {
		h.logger.Error("enqueue bulk job", zap.Int64("event_id", eventID), zap.Error(err))
		response.ServiceUnavailable(c, "job queue unavailable")
		return
	}
	response.Accepted(c, gin.H{"job_id": jobID, "status": queue.StatusQueued})
}

// JobStatus handles GET /admin/bulk/jobs/:jobId.
func (h *Handler) JobStatus(c *gin.Context) {
	if h.jobs == nil {
		response.NotFound(c, "job not found")
		return
	}
	r, err := h.jobs.Result(c.Request.Context(), c.Param("jobId"))
	if errors.Is(err, queue.ErrJobNotFound) {
		response.NotFound(c, "job not found or expired")
		return
	}
	if err != nil {
		response.ServiceUnavailable(c, "job store unavailable")
		return
	}
	response.OK(c, r)
}

func (h *Handler) writeError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrPaymentInfoRequired):
		response.BadRequest(c, err.Error())
	case errors.Is(err, events.ErrUnknownEvent):
		response.NotFound(c, "event not found")
	default:
		h.logger.Error("bulk registration failed", zap.Error(err))
		response.BadGateway(c, "registration service unavailable")
	}
	return true
}
