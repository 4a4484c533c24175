package validation

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
)

type fakeBatch struct {
	res   *models.ValidationResponse
	err   error
	calls [][]string
}

func (f *fakeBatch) ValidarCodigos(_ context.Context, codes []string) (*models.ValidationResponse, error) {
	f.calls = append(f.calls, codes)
	return f.res, f.err
}

type fakeDir struct {
	mu       sync.Mutex
	known    map[string]bool
	failWith map[string]error
	looked   []string
}

func (f *fakeDir) GetEstudiante(_ context.Context, code string) (*models.Estudiante, error) {
	f.mu.Lock()
	f.looked = append(f.looked, code)
	f.mu.Unlock()
	if err := f.failWith[code]; err != nil {
		return nil, err
	}
	if f.known[code] {
		return &models.Estudiante{CodigoEstudiante: code}, nil
	}
	return nil, &upstream.Error{StatusCode: 404}
}

func (f *fakeDir) ListEstudiantes(context.Context) ([]models.Estudiante, error) {
	return []models.Estudiante{
		{CodigoEstudiante: "2024001"}, {CodigoEstudiante: "bad"}, {CodigoEstudiante: "2024001"}, {CodigoEstudiante: "20240002"},
	}, nil
}

func TestValidateBatch(t *testing.T) {
	fb := &fakeBatch{res: &models.ValidationResponse{CantidadValidos: 1, Invalidos: []string{"2024002"}}}
	v := NewValidator(fb, nil, 0, nil)

	got, err := v.ValidateBatch(context.Background(), []string{"2024001", "abc", "2024002", "2024001"})
	if err != nil {
		t.Fatalf("ValidateBatch() error = %v", err)
	}
	if !reflect.DeepEqual(fb.calls, [][]string{{"2024001", "2024002"}}) {
		t.Errorf("batch calls = %v", fb.calls)
	}
	if !reflect.DeepEqual(got.Confirmed, []string{"2024001"}) || !reflect.DeepEqual(got.Unknown, []string{"2024002"}) {
		t.Errorf("ValidateBatch() = %+v", got)
	}
	if !reflect.DeepEqual(got.Invalid, []string{"abc"}) {
		t.Errorf("Invalid = %v", got.Invalid)
	}
}

func TestValidateBatchTransportFailure(t *testing.T) {
	v := NewValidator(&fakeBatch{err: errors.New("connection refused")}, nil, 0, nil)
	got, err := v.ValidateBatch(context.Background(), []string{"2024001"})
	if !errors.Is(err, ErrValidationUnavailable) {
		t.Fatalf("error = %v, want ErrValidationUnavailable", err)
	}
	if !reflect.DeepEqual(got.Valid, []string{"2024001"}) || len(got.Confirmed) != 0 {
		t.Errorf("batch = %+v, want codes kept as unvalidated", got)
	}
}

func TestValidateBatchEmptySkipsNetwork(t *testing.T) {
	fb := &fakeBatch{}
	if _, err := NewValidator(fb, nil, 0, nil).ValidateBatch(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("error = %v", err)
	}
	if len(fb.calls) != 0 {
		t.Errorf("batch endpoint called %d times", len(fb.calls))
	}
}

func TestConfirmEach(t *testing.T) {
	dir := &fakeDir{
		known:    map[string]bool{"1000001": true, "1000003": true},
		failWith: map[string]error{"1000004": errors.New("timeout")},
	}
	v := NewValidator(nil, dir, 2, nil)
	confirmed, unconfirmed := v.ConfirmEach(context.Background(), []string{"1000001", "1000002", "1000003", "1000004"})

	if !reflect.DeepEqual(confirmed, []string{"1000001", "1000003"}) {
		t.Errorf("confirmed = %v", confirmed)
	}
	if !reflect.DeepEqual(unconfirmed, []string{"1000002", "1000004"}) {
		t.Errorf("unconfirmed = %v", unconfirmed)
	}
	if len(dir.looked) != 4 {
		t.Errorf("lookups = %d, want 4", len(dir.looked))
	}
}

func TestDirectoryCodes(t *testing.T) {
	got, err := DirectoryCodes(context.Background(), &fakeDir{})
	if err != nil {
		t.Fatalf("DirectoryCodes() error = %v", err)
	}
	if want := []string{"2024001", "20240002"}; !reflect.DeepEqual(got, want) {
		t.Errorf("DirectoryCodes() = %v, want %v", got, want)
	}
}
