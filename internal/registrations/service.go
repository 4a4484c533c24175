// Package registrations handles student self-registration to events.
package registrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
)

const reloadTimeout = 15 * time.Second

var (
	ErrEventNotOpen        = errors.New("event is not open for registration")
	ErrAlreadyRegistered   = errors.New("already registered for this event")
	ErrPaymentInfoRequired = errors.New("paid events require payment method and reference")
	ErrMethodNotAccepted   = errors.New("payment method not accepted for this event")
)

// PaymentRequiredError is returned when the upstream answers 402.
type PaymentRequiredError struct {
	YapeNumber string
}

func (e *PaymentRequiredError) Error() string {
	n := e.YapeNumber
	if n == "" {
		n = "N/D"
	}
	return "Pago requerido. Número Yape: " + n
}

func (e *PaymentRequiredError) Unwrap() error { return upstream.ErrPaymentRequired }

// Upstream is the part of the REST backend used for self-registration.
type Upstream interface {
	CreateInscripcion(ctx context.Context, in models.Inscripcion) (*models.Inscripcion, error)
	ListInscripciones(ctx context.Context, f upstream.InscripcionFilter) ([]models.Inscripcion, error)
	GetEstudiante(ctx context.Context, code string) (*models.Estudiante, error)
	GetEstudianteByEmail(ctx context.Context, email string) (*models.Estudiante, error)
	PagosConfig(ctx context.Context) (*models.PagosConfig, error)
}

// EventResolver returns the student view of an event. Fresh rereads the
// upstream event first. Peek never loads.
type EventResolver interface {
	Event(ctx context.Context, eventID int64) (models.EventView, error)
	Fresh(ctx context.Context, eventID int64) (models.EventView, error)
	Peek(eventID int64) (models.EventView, bool)
}

// ReloadFunc refreshes local state of an event after a registration.
type ReloadFunc func(ctx context.Context, eventID int64) error

// Receipt is the result of a successful self-registration.
type Receipt struct {
	Registration models.Registration `json:"registration"`
	EventTitle   string              `json:"event_title"`
	OverCapacity bool                `json:"over_capacity"`
	Warning      string              `json:"warning,omitempty"`
}

// MyRegistration pairs one of the caller's registrations with its event, when known.
type MyRegistration struct {
	models.Registration
	Event *models.EventView `json:"event,omitempty"`
}

// PaymentOptions lists how a student can pay for an event.
type PaymentOptions struct {
	EventID    int64    `json:"event_id"`
	IsFree     bool     `json:"is_free"`
	Price      float64  `json:"price"`
	Methods    []string `json:"methods"`
	YapeNumber string   `json:"yape_number,omitempty"`
}

// Service registers signed-in students.
type Service struct {
	up       Upstream
	events   EventResolver
	fallback []string
	reloads  []ReloadFunc
	logger   *zap.Logger
}

// NewService creates a registration service. fallback is the method list shown
// when an event has none.
func NewService(up Upstream, events EventResolver, fallback []string, logger *zap.Logger, reloads ...ReloadFunc) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{up: up, events: events, fallback: fallback, reloads: reloads, logger: logger}
}

// Register signs user up for eventID. Paid events need a complete payment with
// a method the event accepts. A full event only produces a warning.
func (s *Service) Register(ctx context.Context, user models.User, eventID int64, payment *models.PaymentInfo) (*Receipt, error) {
	ev, err := s.events.Fresh(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status != models.EventPublished && ev.Status != models.EventOngoing {
		return nil, ErrEventNotOpen
	}
	var method, reference string
	if !ev.IsFree {
		if !payment.Complete() {
			return nil, ErrPaymentInfoRequired
		}
		method = strings.TrimSpace(payment.Method)
		reference = strings.TrimSpace(payment.Reference)
		if !accepts(ev.AcceptedPaymentMethods, method) {
			return nil, ErrMethodNotAccepted
		}
	}

	mine, err := s.up.ListInscripciones(ctx, upstream.InscripcionFilter{UsuarioID: user.ID})
	if err != nil {
		s.logger.Warn("list own registrations", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	for _, i := range mine {
		if i.EventoID == eventID {
			return nil, ErrAlreadyRegistered
		}
	}

	p := s.profile(ctx, user)
	in := models.Inscripcion{
		EventoID:            eventID,
		UsuarioID:           user.ID,
		CodigoAlumno:        p.CodigoEstudiante,
		CodigoEstudiante:    p.CodigoEstudiante,
		NombreEstudiante:    p.Nombre,
		ApellidosEstudiante: p.Apellidos,
		EmailEstudiante:     p.Email,
		Facultad:            p.Facultad,
		EscuelaProfesional:  p.EscuelaProfesional,
		Semestre:            p.Semestre,
		MetodoPago:          method,
		NumeroOperacion:     reference,
	}
	created, err := s.up.CreateInscripcion(ctx, in)
	if errors.Is(err, upstream.ErrPaymentRequired) {
		return nil, &PaymentRequiredError{YapeNumber: s.yapeNumber(ctx)}
	}
	if err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}
	if created == nil {
		created = &in
	}
	s.reload(ctx, eventID)

	r := &Receipt{
		Registration: models.RegistrationFromInscripcion(*created),
		EventTitle:   ev.Title,
		OverCapacity: ev.OverCapacity(),
	}
	if r.OverCapacity {
		r.Warning = "event has reached its capacity"
	}
	s.logger.Info("student registered",
		zap.Int64("event_id", eventID),
		zap.Int64("user_id", user.ID),
		zap.String("code", p.CodigoEstudiante),
		zap.Bool("paid", !ev.IsFree))
	return r, nil
}

// Mine lists the registrations of userID, each with its event view when known.
// The event list is reloaded at most once per call.
func (s *Service) Mine(ctx context.Context, userID int64) ([]MyRegistration, error) {
	list, err := s.up.ListInscripciones(ctx, upstream.InscripcionFilter{UsuarioID: userID})
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	out := make([]MyRegistration, 0, len(list))
	reloaded := false
	for _, i := range list {
		m := MyRegistration{Registration: models.RegistrationFromInscripcion(i)}
		ev, ok := s.events.Peek(i.EventoID)
		if !ok && !reloaded {
			reloaded = true
			if v, err := s.events.Event(ctx, i.EventoID); err == nil {
				ev, ok = v, true
			}
		}
		if ok {
			m.Event = &ev
		}
		out = append(out, m)
	}
	return out, nil
}

// PaymentOptions returns the methods a student may pick for eventID.
func (s *Service) PaymentOptions(ctx context.Context, eventID int64) (PaymentOptions, error) {
	ev, err := s.events.Event(ctx, eventID)
	if err != nil {
		return PaymentOptions{}, err
	}
	methods := ev.AcceptedPaymentMethods
	if len(methods) == 0 {
		methods = append([]string(nil), s.fallback...)
	}
	opts := PaymentOptions{EventID: eventID, IsFree: ev.IsFree, Price: ev.Price, Methods: methods}
	if !ev.IsFree {
		opts.YapeNumber = s.yapeNumber(ctx)
	}
	return opts, nil
}

// profile resolves the directory record by code, then by email. When the
// directory has neither, the session user is used.
func (s *Service) profile(ctx context.Context, user models.User) models.Estudiante {
	if user.CodigoEstudiante != "" {
		if e, err := s.up.GetEstudiante(ctx, user.CodigoEstudiante); err == nil && e != nil {
			return fill(*e, user)
		}
	}
	if user.Email != "" {
		if e, err := s.up.GetEstudianteByEmail(ctx, user.Email); err == nil && e != nil {
			return fill(*e, user)
		}
	}
	s.logger.Debug("student not in directory", zap.Int64("user_id", user.ID))
	return fill(models.Estudiante{}, user)
}

func fill(e models.Estudiante, user models.User) models.Estudiante {
	if e.CodigoEstudiante == "" {
		e.CodigoEstudiante = user.CodigoEstudiante
	}
	if e.Email == "" {
		e.Email = user.Email
	}
	if e.Nombre == "" && e.Apellidos == "" {
		e.Nombre, e.Apellidos = splitName(user.FullName())
	}
	return e
}

// splitName takes the first word as the given name and the rest as surnames.
func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func accepts(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if strings.EqualFold(strings.TrimSpace(m), method) {
			return true
		}
	}
	return false
}

func (s *Service) yapeNumber(ctx context.Context) string {
	cfg, err := s.up.PagosConfig(ctx)
	if err != nil || cfg == nil {
		return ""
	}
	return cfg.YapeNumber
}

// reload runs every ReloadFunc and waits for them. The caller's cancellation is dropped.
func (s *Service) reload(parent context.Context, eventID int64) {
	if len(s.reloads) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), reloadTimeout)
	defer cancel()
	var wg sync.WaitGroup
	for _, fn := range s.reloads {
		wg.Add(1)
		go func(fn ReloadFunc) {
			defer wg.Done()
			if err := fn(ctx, eventID); err != nil {
				s.logger.Warn("reload after registration", zap.Int64("event_id", eventID), zap.Error(err))
			}
		}(fn)
	}
	wg.Wait()
}
