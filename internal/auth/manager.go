// Package auth owns gateway sign-in sessions: it trades credentials with the
// upstream API, persists the session and issues the gateway token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
)

// ErrInvalidCredentials is returned when the upstream rejects a login.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Session change kinds.
const (
	SignedIn  = "signed_in"
	SignedOut = "signed_out"
)

// SessionEvent describes a session change.
type SessionEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
	Origin    string `json:"origin"`
}

// Upstream is the part of the upstream API used for credentials.
type Upstream interface {
	Login(ctx context.Context, req upstream.LoginRequest) (*models.AuthResponse, error)
	Register(ctx context.Context, req upstream.RegisterRequest) (*models.AuthResponse, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

// Notifier publishes session changes to other instances.
type Notifier interface {
	Publish(ctx context.Context, ev SessionEvent) error
}

// Result is returned by Login and Register.
type Result struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// Manager is the single owner of the session lifecycle.
type Manager struct {
	up       Upstream
	store    SessionStore
	jwt      *JWTService
	notifier Notifier
	logger   *zap.Logger
	origin   string
	nowFunc  func() time.Time

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(SessionEvent)
}

// NewManager creates a session manager. notifier may be nil.
func NewManager(up Upstream, store SessionStore, jwt *JWTService, notifier Notifier, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		up:       up,
		store:    store,
		jwt:      jwt,
		notifier: notifier,
		logger:   logger,
		origin:   uuid.New().String(),
		nowFunc:  time.Now,
		subs:     make(map[int]func(SessionEvent)),
	}
}

// Login signs in against the upstream and opens a session.
func (m *Manager) Login(ctx context.Context, email, password string) (*Result, error) {
	resp, err := m.up.Login(ctx, upstream.LoginRequest{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		var ue *upstream.Error
		if errors.As(err, &ue) && (ue.StatusCode == 400 || ue.StatusCode == 401 || ue.StatusCode == 403) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("upstream login: %w", err)
	}
	return m.open(ctx, resp)
}

// Register creates the upstream account and opens a session for it.
func (m *Manager) Register(ctx context.Context, req upstream.RegisterRequest) (*Result, error) {
	req.Email = strings.TrimSpace(req.Email)
	resp, err := m.up.Register(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("upstream register: %w", err)
	}
	if resp.Token == "" {
		// some deployments do not sign in on register
		return m.Login(ctx, req.Email, req.Password)
	}
	return m.open(ctx, resp)
}

func (m *Manager) open(ctx context.Context, resp *models.AuthResponse) (*Result, error) {
	if resp.Token == "" {
		return nil, fmt.Errorf("upstream login: empty token")
	}
	now := m.nowFunc()
	s := &models.Session{
		ID:            uuid.New().String(),
		User:          resp.ToUser(),
		UpstreamToken: resp.Token,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.jwt.TTL()),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	token, err := m.jwt.Generate(s.User.ID, s.User.Email, string(s.User.Role), s.ID, s.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	m.logger.Info("session opened", zap.String("session_id", s.ID), zap.Int64("user_id", s.User.ID), zap.String("role", string(s.User.Role)))
	m.emit(ctx, SessionEvent{Type: SignedIn, SessionID: s.ID, UserID: s.User.ID})
	return &Result{Token: token, ExpiresAt: s.ExpiresAt, User: s.User}, nil
}

// Logout ends a session. Ending an unknown session is not an error.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	ev := SessionEvent{Type: SignedOut, SessionID: sessionID}
	if s != nil {
		ev.UserID = s.User.ID
	}
	m.logger.Info("session closed", zap.String("session_id", sessionID))
	m.emit(ctx, ev)
	return nil
}

// Current returns the live session with the given ID.
func (m *Manager) Current(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.ExpiresAt.After(m.nowFunc()) {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Subscribe registers fn for every session change, local or remote.
func (m *Manager) Subscribe(fn func(SessionEvent)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Deliver hands a change received from another instance to local subscribers.
func (m *Manager) Deliver(ev SessionEvent) {
	if ev.Origin == m.origin {
		return
	}
	m.notify(ev)
}

func (m *Manager) emit(ctx context.Context, ev SessionEvent) {
	ev.Origin = m.origin
	m.notify(ev)
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), ev); err != nil {
		m.logger.Warn("publish session event", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (m *Manager) notify(ev SessionEvent) {
	m.mu.RLock()
	fns := make([]func(SessionEvent), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}
