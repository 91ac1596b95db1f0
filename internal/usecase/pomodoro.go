package usecase

import (
	"time"

	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/domain"
)

// PhaseMachine is the interval (pomodoro) timer: work and short breaks
// alternate, with every Nth work completion routing to a long break.
// Its state is independent of the focus session, but every mutator
// consults the hardcore lock first.
//
// Not safe for concurrent use; the coordinator serializes all access.
type PhaseMachine struct {
	config    domain.PhaseConfig
	phase     domain.Phase
	remaining time.Duration
	running   bool
	completed int

	lastTick time.Time
	locked   func() bool
	store    domain.PhaseConfigStore
	logger   *zap.Logger
}

// NewPhaseMachine creates a phase machine in the Work phase.
// locked reports the hardcore lock; store may be nil.
func NewPhaseMachine(
	config domain.PhaseConfig,
	locked func() bool,
	store domain.PhaseConfigStore,
	logger *zap.Logger,
) *PhaseMachine {
	if config.Validate() != nil {
		config = domain.DefaultPhaseConfig()
	}
	return &PhaseMachine{
		config:    config,
		phase:     domain.PhaseWork,
		remaining: config.Work,
		locked:    locked,
		store:     store,
		logger:    logger,
	}
}

// Tick advances the timer to now. While running, elapsed time is
// subtracted from the current phase; hitting zero advances the phase.
// Returns the phase just completed, if any, plus the snapshot.
func (p *PhaseMachine) Tick(now time.Time) (completed *domain.Phase, snap domain.PhaseSnapshot) {
	if !p.running {
		p.lastTick = now
		return nil, p.snapshot()
	}
	if p.lastTick.IsZero() {
		p.lastTick = now
		return nil, p.snapshot()
	}

	elapsed := now.Sub(p.lastTick)
	p.lastTick = now
	if elapsed < 0 {
		elapsed = 0
	}
	p.remaining -= elapsed

	if p.remaining > 0 {
		return nil, p.snapshot()
	}

	done := p.phase
	p.advancePhase()
	return &done, p.snapshot()
}

// Start resumes the timer. No-op while already running.
func (p *PhaseMachine) Start() error {
	if p.locked() {
		return domain.ErrLocked
	}
	if p.running {
		return nil
	}
	p.running = true
	p.lastTick = time.Time{}
	return nil
}

// Pause suspends the timer. No-op while already paused.
func (p *PhaseMachine) Pause() error {
	if p.locked() {
		return domain.ErrLocked
	}
	p.running = false
	return nil
}

// Reset reloads the current phase's duration from config and stops the
// timer. Phase and completion counter are untouched.
func (p *PhaseMachine) Reset() error {
	if p.locked() {
		return domain.ErrLocked
	}
	p.remaining = p.config.DurationFor(p.phase)
	p.running = false
	return nil
}

// Reconfigure applies a fully-specified configuration atomically.
// The current phase's remaining time is re-based to the new duration and
// the completion counter restarts.
func (p *PhaseMachine) Reconfigure(config domain.PhaseConfig) error {
	if p.locked() {
		return domain.ErrLocked
	}
	if err := config.Validate(); err != nil {
		return err
	}

	p.config = config
	p.remaining = config.DurationFor(p.phase)
	p.completed = 0
	p.persistConfig()

	p.logger.Info("phase configuration updated",
		zap.Duration("work", config.Work),
		zap.Duration("short_break", config.ShortBreak),
		zap.Duration("long_break", config.LongBreak),
		zap.Int("intervals_until_long_break", config.IntervalsUntilLongBreak))
	return nil
}

// Snapshot returns the current state without advancing time.
func (p *PhaseMachine) Snapshot() domain.PhaseSnapshot {
	return p.snapshot()
}

// advancePhase applies the transition rule. Leaving Work increments the
// completion counter; every IntervalsUntilLongBreak-th completion routes
// to the long break. Overshoot past zero is dropped, matching a timer
// that restarts full on each phase change.
func (p *PhaseMachine) advancePhase() {
	switch p.phase {
	case domain.PhaseWork:
		p.completed++
		if p.completed%p.config.IntervalsUntilLongBreak == 0 {
			p.phase = domain.PhaseLongBreak
		} else {
			p.phase = domain.PhaseShortBreak
		}
	default:
		p.phase = domain.PhaseWork
	}
	p.remaining = p.config.DurationFor(p.phase)

	p.logger.Debug("phase advanced",
		zap.String("phase", string(p.phase)),
		zap.Int("completed_work_intervals", p.completed))
}

func (p *PhaseMachine) snapshot() domain.PhaseSnapshot {
	remaining := p.remaining
	if remaining < 0 {
		remaining = 0
	}
	return domain.PhaseSnapshot{
		Phase:                  p.phase,
		Remaining:              remaining,
		Running:                p.running,
		CompletedWorkIntervals: p.completed,
		Config:                 p.config,
	}
}

func (p *PhaseMachine) persistConfig() {
	if p.store == nil {
		return
	}
	if err := p.store.SavePhaseConfig(p.config); err != nil {
		p.logger.Warn("failed to persist phase config", zap.Error(err))
	}
}
