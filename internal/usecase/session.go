package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/domain"
)

// Session duration bounds: one minute to eight hours.
const (
	MinSessionDuration = time.Minute
	MaxSessionDuration = 8 * time.Hour
)

// SessionMachine owns the focus-session lifecycle:
// idle -> running -> {expired, stopped_by_user, stopped_by_override}.
//
// Not safe for concurrent use; the coordinator serializes all access,
// including credential overrides, so a session cannot expire "for free"
// while a verification is in flight.
type SessionMachine struct {
	clock    domain.Clock
	verifier domain.CredentialVerifier
	store    domain.SessionStore
	logger   *zap.Logger

	current *domain.FocusSession
}

// NewSessionMachine creates a session machine.
// store may be nil (no restart survival).
func NewSessionMachine(
	clock domain.Clock,
	verifier domain.CredentialVerifier,
	store domain.SessionStore,
	logger *zap.Logger,
) *SessionMachine {
	return &SessionMachine{
		clock:    clock,
		verifier: verifier,
		store:    store,
		logger:   logger,
	}
}

// Restore reloads a persisted running session after a process restart.
// The hardcore lock survives the restart; an already-elapsed session
// expires naturally on the first tick.
func (m *SessionMachine) Restore() error {
	if m.store == nil {
		return nil
	}
	s, err := m.store.LoadActiveSession()
	if err != nil {
		return fmt.Errorf("failed to load persisted session: %w", err)
	}
	if s == nil || s.Status != domain.StatusRunning {
		return nil
	}
	m.current = s
	m.logger.Info("restored focus session",
		zap.String("id", s.ID),
		zap.Bool("hardcore", s.Hardcore))
	return nil
}

// Start begins a new focus session.
func (m *SessionMachine) Start(label string, duration time.Duration, hardcore bool) (*domain.FocusSession, error) {
	m.advance(m.clock.Now())

	if duration < MinSessionDuration || duration > MaxSessionDuration {
		return nil, domain.ErrInvalidDuration
	}
	if m.current != nil && m.current.Status == domain.StatusRunning {
		return nil, domain.ErrAlreadyRunning
	}

	s := &domain.FocusSession{
		ID:              uuid.New().String(),
		Label:           label,
		PlannedDuration: duration,
		StartedAt:       m.clock.Now(),
		Hardcore:        hardcore,
		Status:          domain.StatusRunning,
	}
	m.current = s
	m.persist()

	m.logger.Info("focus session started",
		zap.String("id", s.ID),
		zap.String("label", label),
		zap.Duration("duration", duration),
		zap.Bool("hardcore", hardcore))
	return s, nil
}

// Tick advances the machine to now and returns a snapshot.
// The running -> expired transition happens exactly once; further ticks
// are no-ops.
func (m *SessionMachine) Tick(now time.Time) domain.SessionSnapshot {
	m.advance(now)
	return m.snapshot(now)
}

// Stop ends the current session. Fails with ErrLocked for hardcore
// sessions; the override path is the only way out of those.
func (m *SessionMachine) Stop() error {
	now := m.clock.Now()
	m.advance(now)

	if m.current == nil || m.current.Status != domain.StatusRunning {
		return domain.ErrNoSession
	}
	if m.current.Hardcore {
		return domain.ErrLocked
	}

	m.current.Status = domain.StatusStoppedByUser
	m.clearPersisted()
	m.logger.Info("focus session stopped", zap.String("id", m.current.ID))
	return nil
}

// OverrideStop ends the current session after a successful credential
// check, regardless of the hardcore lock. Wrong, missing, or unconfigured
// credentials all yield ErrUnauthorized with no state change.
func (m *SessionMachine) OverrideStop(secret string) error {
	now := m.clock.Now()
	m.advance(now)

	if m.current == nil || m.current.Status != domain.StatusRunning {
		return domain.ErrNoSession
	}

	ok, err := m.verifier.Verify(secret)
	if err != nil || !ok {
		return domain.ErrUnauthorized
	}

	m.current.Status = domain.StatusStoppedByOverride
	m.clearPersisted()
	m.logger.Info("focus session stopped by override", zap.String("id", m.current.ID))
	return nil
}

// HardcoreLocked reports whether a hardcore session is currently running.
// Consulted by the phase machine before honoring its mutators.
func (m *SessionMachine) HardcoreLocked() bool {
	return m.current != nil && m.current.Status == domain.StatusRunning && m.current.Hardcore
}

// advance applies time decay: a running session whose remaining time has
// reached zero becomes expired, regardless of caller intent.
func (m *SessionMachine) advance(now time.Time) {
	if m.current == nil || m.current.Status != domain.StatusRunning {
		return
	}
	if m.remainingAt(now) > 0 {
		return
	}
	m.current.Status = domain.StatusExpired
	m.clearPersisted()
	m.logger.Info("focus session expired", zap.String("id", m.current.ID))
}

func (m *SessionMachine) remainingAt(now time.Time) time.Duration {
	return m.current.PlannedDuration - now.Sub(m.current.StartedAt)
}

func (m *SessionMachine) snapshot(now time.Time) domain.SessionSnapshot {
	if m.current == nil {
		return domain.SessionSnapshot{}
	}
	remaining := m.remainingAt(now)
	if remaining < 0 {
		remaining = 0
	}
	return domain.SessionSnapshot{
		Active:         m.current.Status == domain.StatusRunning,
		ID:             m.current.ID,
		Label:          m.current.Label,
		Remaining:      remaining,
		Status:         m.current.Status,
		HardcoreLocked: m.HardcoreLocked(),
	}
}

func (m *SessionMachine) persist() {
	if m.store == nil {
		return
	}
	if err := m.store.SaveActiveSession(m.current); err != nil {
		m.logger.Warn("failed to persist session", zap.Error(err))
	}
}

func (m *SessionMachine) clearPersisted() {
	if m.store == nil {
		return
	}
	if err := m.store.ClearActiveSession(); err != nil {
		m.logger.Warn("failed to clear persisted session", zap.Error(err))
	}
}
