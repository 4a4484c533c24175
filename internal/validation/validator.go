// Package validation confirms which student codes exist in the student directory.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/upeu-eventos/gateway/internal/codes"
	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
)

// ErrValidationUnavailable means the batch validation call itself failed.
// Per-code non-existence is never reported through this error.
var ErrValidationUnavailable = errors.New("code validation unavailable")

// BatchEndpoint is the upstream bulk validation endpoint.
type BatchEndpoint interface {
	ValidarCodigos(ctx context.Context, codes []string) (*models.ValidationResponse, error)
}

// Directory looks up single students.
type Directory interface {
	GetEstudiante(ctx context.Context, code string) (*models.Estudiante, error)
}

// DirectoryLister lists the whole student directory.
type DirectoryLister interface {
	ListEstudiantes(ctx context.Context) ([]models.Estudiante, error)
}

// Validator implements batch (one request) and per-code (concurrent lookups) validation.
type Validator struct {
	batch       BatchEndpoint
	dir         Directory
	concurrency int
	logger      *zap.Logger
}

// NewValidator creates a validator. concurrency bounds in-flight per-code lookups.
func NewValidator(batch BatchEndpoint, dir Directory, concurrency int, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Validator{batch: batch, dir: dir, concurrency: concurrency, logger: logger}
}

// ValidateBatch validates codes with a single upstream request. The response's
// invalidos list is trusted verbatim and converted to the Confirmed/Unknown split.
func (v *Validator) ValidateBatch(ctx context.Context, codeList []string) (models.CodeBatch, error) {
	batch := codes.NormalizeList(codeList)
	batch.Confirmed = []string{}
	batch.Unknown = []string{}
	if len(batch.Valid) == 0 {
		return batch, nil
	}
	res, err := v.batch.ValidarCodigos(ctx, batch.Valid)
	if err != nil {
		v.logger.Warn("batch code validation failed", zap.Int("codes", len(batch.Valid)), zap.Error(err))
		return batch, fmt.Errorf("%w: %v", ErrValidationUnavailable, err)
	}
	rejected := make(map[string]struct{}, len(res.Invalidos))
	for _, c := range res.Invalidos {
		rejected[strings.TrimSpace(c)] = struct{}{}
	}
	for _, c := range batch.Valid {
		if _, bad := rejected[c]; bad {
			batch.Unknown = append(batch.Unknown, c)
		} else {
			batch.Confirmed = append(batch.Confirmed, c)
		}
	}
	if res.CantidadValidos != len(batch.Confirmed) {
		v.logger.Warn("validation count mismatch",
			zap.Int("reported", res.CantidadValidos),
			zap.Int("derived", len(batch.Confirmed)),
		)
	}
	return batch, nil
}

// ConfirmEach looks every code up concurrently. A failed lookup, for any reason,
// marks only that code as unconfirmed. Both results keep input order and
// together contain every input code exactly once.
func (v *Validator) ConfirmEach(ctx context.Context, codeList []string) (confirmed, unconfirmed []string) {
	found := make([]bool, len(codeList))
	var g errgroup.Group
	g.SetLimit(v.concurrency)
	for i, code := range codeList {
		i, code := i, code
		g.Go(func() error {
			if _, err := v.dir.GetEstudiante(ctx, code); err != nil {
				if !errors.Is(err, upstream.ErrNotFound) {
					v.logger.Warn("student lookup failed", zap.String("code", code), zap.Error(err))
				}
				return nil
			}
			found[i] = true
			return nil
		})
	}
	_ = g.Wait()

	confirmed, unconfirmed = []string{}, []string{}
	for i, code := range codeList {
		if found[i] {
			confirmed = append(confirmed, code)
		} else {
			unconfirmed = append(unconfirmed, code)
		}
	}
	return confirmed, unconfirmed
}

// DirectoryCodes returns every well-formed code in the student directory, deduplicated.
func DirectoryCodes(ctx context.Context, lister DirectoryLister) ([]string, error) {
	students, err := lister.ListEstudiantes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	raw := make([]string, 0, len(students))
	for _, s := range students {
		if codes.IsValid(s.CodigoEstudiante) {
			raw = append(raw, s.CodigoEstudiante)
		}
	}
	return codes.NormalizeList(raw).Valid, nil
}
