// Package reports exports event registrations as CSV.
package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
	"github.com/upeu-eventos/gateway/pkg/storage"
)

// TemplateFilename is the name of the bulk code template download.
const TemplateFilename = "plantilla-codigos.csv"

// ErrStorageDisabled is returned by Upload when no object store is configured.
var ErrStorageDisabled = errors.New("report storage not configured")

// Columns is the header row of every report.
var Columns = []string{"codigoEstudiante", "nombre", "apellidos", "email", "estado", "fechaInscripcion", "fechaConfirmacion"}

// TemplateCodes are the sample codes of the bulk template.
var TemplateCodes = []string{"20240001", "20241002", "20242003"}

// Source lists registrations of an event.
type Source interface {
	ListInscripciones(ctx context.Context, f upstream.InscripcionFilter) ([]models.Inscripcion, error)
}

// ObjectStore keeps uploaded reports.
type ObjectStore interface {
	UploadReport(ctx context.Context, key string, body io.Reader, filename string) error
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
}

// Uploaded describes a report stored in the object store.
type Uploaded struct {
	EventID   int64     `json:"event_id"`
	Filename  string    `json:"filename"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Filename returns the download name of an event report.
func Filename(eventID int64) string {
	return fmt.Sprintf("reporte_evento_%d.csv", eventID)
}

// Template returns the bulk code template: one sample code per line.
func Template() []byte {
	return []byte(strings.Join(TemplateCodes, "\n"))
}

// WriteCSV writes the header and one row per registration. Every value is
// quoted and rows are separated by "\n".
func WriteCSV(w io.Writer, regs []models.Inscripcion) error {
	rows := make([]string, 0, len(regs)+1)
	rows = append(rows, row(Columns))
	for _, r := range regs {
		rows = append(rows, row([]string{
			r.Code(),
			r.NombreEstudiante,
			r.ApellidosEstudiante,
			r.EmailEstudiante,
			r.Estado,
			r.FechaInscripcion,
			r.FechaConfirmacion,
		}))
	}
	_, err := io.WriteString(w, strings.Join(rows, "\n"))
	return err
}

func row(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",")
}

// Exporter builds reports from the upstream and optionally stores them.
type Exporter struct {
	src     Source
	store   ObjectStore
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewExporter creates an exporter. store may be nil, which disables Upload.
func NewExporter(src Source, store ObjectStore, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{src: src, store: store, logger: logger, nowFunc: time.Now}
}

// Export returns the CSV report of eventID and its row count.
func (e *Exporter) Export(ctx context.Context, eventID int64) ([]byte, int, error) {
	regs, err := e.src.ListInscripciones(ctx, upstream.InscripcionFilter{EventoID: eventID})
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, regs); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(regs), nil
}

// Upload exports eventID, stores the file and returns a presigned download URL.
func (e *Exporter) Upload(ctx context.Context, eventID int64) (*Uploaded, error) {
	if e.store == nil {
		return nil, ErrStorageDisabled
	}
	data, n, err := e.Export(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := e.nowFunc()
	name := Filename(eventID)
	key := storage.ReportKey(eventID, name, now)
	if err := e.store.UploadReport(ctx, key, bytes.NewReader(data), name); err != nil {
		return nil, err
	}
	url, err := e.store.PresignedDownloadURL(ctx, key)
	if err != nil {
		return nil, err
	}
	e.logger.Info("report uploaded", zap.Int64("event_id", eventID), zap.String("key", key), zap.Int("rows", n))
	return &Uploaded{
		EventID:   eventID,
		Filename:  name,
		Key:       key,
		URL:       url,
		Rows:      n,
		ExpiresAt: now.Add(e.store.PresignExpire()),
	}, nil
}
