package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/domain"
)

func newTestPhaseMachine(locked func() bool) *PhaseMachine {
	if locked == nil {
		locked = func() bool { return false }
	}
	return NewPhaseMachine(domain.DefaultPhaseConfig(), locked, nil, zap.NewNop())
}

// driveToPhaseEnd ticks the machine just past the current phase boundary
func driveToPhaseEnd(t *testing.T, p *PhaseMachine, clock *fakeClock) domain.Phase {
	t.Helper()
	snap := p.Snapshot()
	clock.Advance(snap.Remaining + time.Second)
	completed, _ := p.Tick(clock.Now())
	require.NotNil(t, completed, "expected a phase completion")
	return *completed
}

// TestPhaseTick_PausedDoesNotDecrement verifies time only decays while running
func TestPhaseTick_PausedDoesNotDecrement(t *testing.T) {
	clock := newFakeClock()
	p := newTestPhaseMachine(nil)

	clock.Advance(10 * time.Minute)
	_, snap := p.Tick(clock.Now())
	assert.Equal(t, 25*time.Minute, snap.Remaining)
	assert.False(t, snap.Running)
}

// TestPhaseTick_WorkDecrements verifies elapsed time is subtracted
func TestPhaseTick_WorkDecrements(t *testing.T) {
	clock := newFakeClock()
	p := newTestPhaseMachine(nil)
	require.NoError(t, p.Start())

	p.Tick(clock.Now()) // establish the tick baseline
	clock.Advance(5 * time.Minute)
	_, snap := p.Tick(clock.Now())

	assert.Equal(t, 20*time.Minute, snap.Remaining)
	assert.Equal(t, domain.PhaseWork, snap.Phase)
}

// TestPhaseTransitions_ShortThenLongBreak verifies the 4th work completion
// routes to the long break and all others to the short break
func TestPhaseTransitions_ShortThenLongBreak(t *testing.T) {
	clock := newFakeClock()
	p := newTestPhaseMachine(nil)
	require.NoError(t, p.Reconfigure(domain.PhaseConfig{
		Work:                    1500 * time.Second,
		ShortBreak:              5 * time.Minute,
		LongBreak:               15 * time.Minute,
		IntervalsUntilLongBreak: 4,
	}))
	require.NoError(t, p.Start())
	p.Tick(clock.Now())

	for i := 1; i <= 3; i++ {
		done := driveToPhaseEnd(t, p, clock)
		assert.Equal(t, domain.PhaseWork, done)
		snap := p.Snapshot()
		assert.Equal(t, domain.PhaseShortBreak, snap.Phase, "work completion %d", i)
		assert.Equal(t, i, snap.CompletedWorkIntervals)

		done = driveToPhaseEnd(t, p, clock)
		assert.Equal(t, domain.PhaseShortBreak, done)
		assert.Equal(t, domain.PhaseWork, p.Snapshot().Phase)
	}

	// 4th work completion lands on the long break.
	done := driveToPhaseEnd(t, p, clock)
	assert.Equal(t, domain.PhaseWork, done)
	snap := p.Snapshot()
	assert.Equal(t, domain.PhaseLongBreak, snap.Phase)
	assert.Equal(t, 4, snap.CompletedWorkIntervals)
	assert.Equal(t, 15*time.Minute, snap.Remaining)

	// Long break returns to work.
	done = driveToPhaseEnd(t, p, clock)
	assert.Equal(t, domain.PhaseLongBreak, done)
	assert.Equal(t, domain.PhaseWork, p.Snapshot().Phase)
}

// TestPhaseStartPause_NoOps verifies toggles are idempotent
func TestPhaseStartPause_NoOps(t *testing.T) {
	p := newTestPhaseMachine(nil)

	require.NoError(t, p.Start())
	require.NoError(t, p.Start())
	assert.True(t, p.Snapshot().Running)

	require.NoError(t, p.Pause())
	require.NoError(t, p.Pause())
	assert.False(t, p.Snapshot().Running)
}

// TestPhaseReset_ReloadsCurrentPhase verifies reset keeps phase and counter
func TestPhaseReset_ReloadsCurrentPhase(t *testing.T) {
	clock := newFakeClock()
	p := newTestPhaseMachine(nil)
	require.NoError(t, p.Start())
	p.Tick(clock.Now())

	// Complete one work phase, then burn some break time.
	driveToPhaseEnd(t, p, clock)
	clock.Advance(2 * time.Minute)
	p.Tick(clock.Now())

	require.NoError(t, p.Reset())
	snap := p.Snapshot()
	assert.Equal(t, domain.PhaseShortBreak, snap.Phase)
	assert.Equal(t, 5*time.Minute, snap.Remaining)
	assert.Equal(t, 1, snap.CompletedWorkIntervals)
	assert.False(t, snap.Running)
}

// TestReconfigure_Invalid verifies validation happens before any mutation
func TestReconfigure_Invalid(t *testing.T) {
	p := newTestPhaseMachine(nil)
	before := p.Snapshot()

	bad := domain.PhaseConfig{Work: 0, ShortBreak: time.Minute, LongBreak: time.Minute, IntervalsUntilLongBreak: 4}
	assert.ErrorIs(t, p.Reconfigure(bad), domain.ErrInvalidConfig)

	bad = domain.PhaseConfig{Work: time.Minute, ShortBreak: time.Minute, LongBreak: time.Minute, IntervalsUntilLongBreak: 0}
	assert.ErrorIs(t, p.Reconfigure(bad), domain.ErrInvalidConfig)

	assert.Equal(t, before, p.Snapshot(), "rejected config must not touch state")
}

// TestReconfigure_RebasesCurrentPhase verifies the immediate re-base
func TestReconfigure_RebasesCurrentPhase(t *testing.T) {
	clock := newFakeClock()
	p := newTestPhaseMachine(nil)
	require.NoError(t, p.Start())
	p.Tick(clock.Now())
	clock.Advance(10 * time.Minute)
	p.Tick(clock.Now())

	require.NoError(t, p.Reconfigure(domain.PhaseConfig{
		Work:                    50 * time.Minute,
		ShortBreak:              10 * time.Minute,
		LongBreak:               20 * time.Minute,
		IntervalsUntilLongBreak: 2,
	}))

	snap := p.Snapshot()
	assert.Equal(t, 50*time.Minute, snap.Remaining)
	assert.Equal(t, domain.PhaseWork, snap.Phase)
	assert.Equal(t, 0, snap.CompletedWorkIntervals, "reconfiguration restarts the counter")
}

// TestPhaseMachine_HardcoreLockGuardsMutators verifies all four mutators
// fail while a hardcore session is active
func TestPhaseMachine_HardcoreLockGuardsMutators(t *testing.T) {
	locked := true
	p := NewPhaseMachine(domain.DefaultPhaseConfig(), func() bool { return locked }, nil, zap.NewNop())

	assert.ErrorIs(t, p.Start(), domain.ErrLocked)
	assert.ErrorIs(t, p.Pause(), domain.ErrLocked)
	assert.ErrorIs(t, p.Reset(), domain.ErrLocked)
	assert.ErrorIs(t, p.Reconfigure(domain.DefaultPhaseConfig()), domain.ErrLocked)

	locked = false
	assert.NoError(t, p.Start())
}
