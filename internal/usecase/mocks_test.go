package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/bastionhq/bastion/internal/domain"
)

// fakeClock implements domain.Clock with manual advancement
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memSettings implements domain.SettingStore in memory
type memSettings struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (s *memSettings) SetSetting(key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *memSettings) GetSetting(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// stubVerifier implements domain.CredentialVerifier with a fixed secret
type stubVerifier struct {
	secret    string
	verifyErr error
}

func (v *stubVerifier) SetSecret(newSecret string) error {
	if len(newSecret) < minSecretLength {
		return domain.ErrInvalidSecret
	}
	v.secret = newSecret
	return nil
}

func (v *stubVerifier) Verify(candidate string) (bool, error) {
	if v.verifyErr != nil {
		return false, v.verifyErr
	}
	if candidate == "" {
		return false, domain.ErrEmptyCredential
	}
	return v.secret != "" && candidate == v.secret, nil
}

// memSessionStore implements domain.SessionStore in memory
type memSessionStore struct {
	saved   *domain.FocusSession
	loadErr error
}

func (s *memSessionStore) SaveActiveSession(sess *domain.FocusSession) error {
	cp := *sess
	s.saved = &cp
	return nil
}

func (s *memSessionStore) LoadActiveSession() (*domain.FocusSession, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.saved, nil
}

func (s *memSessionStore) ClearActiveSession() error {
	s.saved = nil
	return nil
}

// stubApplier implements domain.BlockApplier with canned results
type stubApplier struct {
	mu         sync.Mutex
	intercepts map[string]bool
	err        error
	delay      time.Duration
	calls      []string
}

func (a *stubApplier) Apply(ctx context.Context, target domain.BlockTarget) (bool, error) {
	a.mu.Lock()
	a.calls = append(a.calls, target.Identifier)
	a.mu.Unlock()

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if a.err != nil {
		return false, a.err
	}
	return a.intercepts[target.Identifier], nil
}

func (a *stubApplier) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}
