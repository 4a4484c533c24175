// Package attendance keeps per-event check-in boards and marks registrations attended.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/codes"
	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
)

// EventAttendanceRecorded is the realtime event published after each check-in.
const EventAttendanceRecorded = "attendance_recorded"

// DefaultRecentLimit bounds the recent-activity log.
const DefaultRecentLimit = 10

// ErrUnknownMode is returned for a mode other than qr or manual.
var ErrUnknownMode = errors.New("mode must be qr or manual")

// Mode is how the code was captured.
type Mode string

const (
	ModeQR     Mode = "qr"
	ModeManual Mode = "manual"
)

// Reasons a check-in was ignored.
const (
	ReasonBadFormat       = "bad-format"
	ReasonNotRegistered   = "not-registered"
	ReasonAlreadyAttended = "already-attended"
	ReasonInProgress      = "in-progress"
)

// Registrations is the upstream registration API.
type Registrations interface {
	ListInscripciones(ctx context.Context, f upstream.InscripcionFilter) ([]models.Inscripcion, error)
	UpdateInscripcionEstado(ctx context.Context, id int64, estado string) (*models.Inscripcion, error)
}

// Publisher receives check-in notifications.
type Publisher interface {
	BroadcastToEventAndPublish(eventID int64, event string, payload interface{})
}

// Entry is one line of the recent-activity log.
type Entry struct {
	Code string    `json:"code"`
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// Stats are the board counters. Attended + Pending == Enrolled.
type Stats struct {
	Enrolled int `json:"enrolled"`
	Attended int `json:"attended"`
	Pending  int `json:"pending"`
}

// Outcome reports what a check-in did. Ignored check-ins are not errors.
type Outcome struct {
	Recorded bool   `json:"recorded"`
	Code     string `json:"code,omitempty"`
	Name     string `json:"name,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Stats    Stats  `json:"stats"`
}

// Recorded is the payload of EventAttendanceRecorded.
type Recorded struct {
	EventID int64 `json:"event_id"`
	Entry   Entry `json:"entry"`
	Stats   Stats `json:"stats"`
}

// Snapshot is the full board of one event.
type Snapshot struct {
	EventID       int64                 `json:"event_id"`
	Registrations []models.Registration `json:"registrations"`
	Stats         Stats                 `json:"stats"`
	Recent        []Entry               `json:"recent"`
}

type board struct {
	regs     []models.Registration
	recent   []Entry
	inflight map[int64]struct{}
}

// Recorder owns the check-in boards.
type Recorder struct {
	regs    Registrations
	pub     Publisher
	limit   int
	logger  *zap.Logger
	nowFunc func() time.Time

	mu     sync.Mutex
	boards map[int64]*board
}

// NewRecorder creates a recorder. pub may be nil; limit <= 0 uses DefaultRecentLimit.
func NewRecorder(regs Registrations, pub Publisher, limit int, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &Recorder{
		regs:    regs,
		pub:     pub,
		limit:   limit,
		logger:  logger,
		nowFunc: time.Now,
		boards:  make(map[int64]*board),
	}
}

// Open loads the registrations of an event and returns its board. The recent
// log survives reopening.
func (r *Recorder) Open(ctx context.Context, eventID int64) (Snapshot, error) {
	list, err := r.regs.ListInscripciones(ctx, upstream.InscripcionFilter{EventoID: eventID})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load registrations: %w", err)
	}
	regs := make([]models.Registration, 0, len(list))
	for _, in := range list {
		if in.EventoID != 0 && in.EventoID != eventID {
			continue
		}
		reg := models.RegistrationFromInscripcion(in)
		reg.EventID = eventID
		regs = append(regs, reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[eventID]
	if !ok {
		b = &board{inflight: make(map[int64]struct{})}
		r.boards[eventID] = b
	}
	b.regs = regs
	return r.snapshotLocked(eventID, b), nil
}

// Reload refreshes an already opened board. Unopened events are left alone.
func (r *Recorder) Reload(ctx context.Context, eventID int64) error {
	r.mu.Lock()
	_, open := r.boards[eventID]
	r.mu.Unlock()
	if !open {
		return nil
	}
	_, err := r.Open(ctx, eventID)
	return err
}

// Record checks in the student identified by input. Malformed input, unknown
// codes and already attended registrations are ignored without error.
func (r *Recorder) Record(ctx context.Context, eventID int64, input string, mode Mode) (Outcome, error) {
	var code string
	switch mode {
	case ModeQR:
		c, ok := codes.ExtractFromScan(input)
		if !ok {
			return r.ignored(eventID, "", ReasonBadFormat), nil
		}
		code = c
	case ModeManual:
		code = strings.TrimSpace(input)
		if !codes.IsValid(code) {
			return r.ignored(eventID, "", ReasonBadFormat), nil
		}
	default:
		return Outcome{}, ErrUnknownMode
	}
	if err := r.ensureOpen(ctx, eventID); err != nil {
		return Outcome{}, err
	}
	return r.mark(ctx, eventID, func(reg models.Registration) bool { return reg.StudentCode == code }, code)
}

// RecordByID checks in one registration picked from the board.
func (r *Recorder) RecordByID(ctx context.Context, eventID, registrationID int64) (Outcome, error) {
	if err := r.ensureOpen(ctx, eventID); err != nil {
		return Outcome{}, err
	}
	return r.mark(ctx, eventID, func(reg models.Registration) bool { return reg.ID == registrationID }, "")
}

// Stats returns the counters of an event board.
func (r *Recorder) Stats(eventID int64) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.boards[eventID]; ok {
		return computeStats(b.regs)
	}
	return Stats{}
}

// Recent returns the recent-activity log, most recent first.
func (r *Recorder) Recent(eventID int64) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[eventID]
	if !ok {
		return []Entry{}
	}
	return append([]Entry{}, b.recent...)
}

// Snapshot returns the board of an event, opening it when needed.
func (r *Recorder) Snapshot(ctx context.Context, eventID int64) (Snapshot, error) {
	r.mu.Lock()
	b, ok := r.boards[eventID]
	if ok {
		s := r.snapshotLocked(eventID, b)
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()
	return r.Open(ctx, eventID)
}

func (r *Recorder) ensureOpen(ctx context.Context, eventID int64) error {
	r.mu.Lock()
	_, ok := r.boards[eventID]
	r.mu.Unlock()
	if ok {
		return nil
	}
	_, err := r.Open(ctx, eventID)
	return err
}

func (r *Recorder) mark(ctx context.Context, eventID int64, match func(models.Registration) bool, code string) (Outcome, error) {
	r.mu.Lock()
	b := r.boards[eventID]
	idx := -1
	for i, reg := range b.regs {
		if match(reg) {
			idx = i
			break
		}
	}
	if idx < 0 {
		out := Outcome{Code: code, Reason: ReasonNotRegistered, Stats: computeStats(b.regs)}
		r.mu.Unlock()
		return out, nil
	}
	reg := b.regs[idx]
	if reg.Status == models.StatusAttended {
		out := Outcome{Code: reg.StudentCode, Name: reg.Name, Reason: ReasonAlreadyAttended, Stats: computeStats(b.regs)}
		r.mu.Unlock()
		return out, nil
	}
	if _, busy := b.inflight[reg.ID]; busy {
		out := Outcome{Code: reg.StudentCode, Name: reg.Name, Reason: ReasonInProgress, Stats: computeStats(b.regs)}
		r.mu.Unlock()
		return out, nil
	}
	b.inflight[reg.ID] = struct{}{}
	r.mu.Unlock()

	_, err := r.regs.UpdateInscripcionEstado(ctx, reg.ID, models.EstadoAsistio)

	r.mu.Lock()
	delete(b.inflight, reg.ID)
	if err != nil {
		r.mu.Unlock()
		r.logger.Warn("mark attended failed", zap.Int64("event_id", eventID), zap.Int64("registration_id", reg.ID), zap.Error(err))
		return Outcome{}, fmt.Errorf("mark attended: %w", err)
	}
	now := r.nowFunc()
	// the board may have been reloaded while the request was in flight
	for i := range b.regs {
		if b.regs[i].ID == reg.ID {
			b.regs[i].Status = models.StatusAttended
			b.regs[i].AttendedAt = &now
		}
	}
	b.recent = append([]Entry{{Code: reg.StudentCode, Name: reg.Name, At: now}}, b.recent...)
	if len(b.recent) > r.limit {
		b.recent = b.recent[:r.limit]
	}
	out := Outcome{Recorded: true, Code: reg.StudentCode, Name: reg.Name, Stats: computeStats(b.regs)}
	entry := b.recent[0]
	r.mu.Unlock()

	r.logger.Info("attendance recorded", zap.Int64("event_id", eventID), zap.String("code", reg.StudentCode))
	if r.pub != nil {
		r.pub.BroadcastToEventAndPublish(eventID, EventAttendanceRecorded, Recorded{EventID: eventID, Entry: entry, Stats: out.Stats})
	}
	return out, nil
}

func (r *Recorder) ignored(eventID int64, code, reason string) Outcome {
	return Outcome{Code: code, Reason: reason, Stats: r.Stats(eventID)}
}

func (r *Recorder) snapshotLocked(eventID int64, b *board) Snapshot {
	return Snapshot{
		EventID:       eventID,
		Registrations: append([]models.Registration{}, b.regs...),
		Stats:         computeStats(b.regs),
		Recent:        append([]Entry{}, b.recent...),
	}
}

func computeStats(regs []models.Registration) Stats {
	s := Stats{Enrolled: len(regs)}
	for _, reg := range regs {
		if reg.Status == models.StatusAttended {
			s.Attended++
		}
	}
	s.Pending = s.Enrolled - s.Attended
	return s
}
