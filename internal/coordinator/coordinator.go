// Package coordinator runs the periodic loop that ticks the session
// machine, the enforcement driver and the interval timer, and publishes
// combined snapshots to the presentation layer.
package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/domain"
	"github.com/bastionhq/bastion/internal/usecase"
)

// Config holds coordinator timing knobs.
type Config struct {
	// TickInterval is the enforcement cadence. Short, because the target
	// is adversarial: correctness rests on bounded re-assertion latency.
	TickInterval time.Duration

	// DedupCooldown suppresses repeat notifications for the same target.
	DedupCooldown time.Duration
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:  3 * time.Second,
		DedupCooldown: 30 * time.Second,
	}
}

// Drainer hands over intercept events collected outside the tick, such
// as live traffic hits on the sentinel listener.
type Drainer interface {
	Drain() []domain.InterceptEvent
}

// Coordinator owns all session, enforcement and phase state. Every
// mutation runs under one mutex, so an override request serializes with
// tick writes: a session cannot expire "for free" while a credential
// verification is in flight.
type Coordinator struct {
	config    Config
	clock     domain.Clock
	session   *usecase.SessionMachine
	phase     *usecase.PhaseMachine
	enforcer  domain.Enforcer
	catalog   domain.BlockCatalog
	releaser  domain.BlockReleaser
	drainer   Drainer
	events    domain.EventSink
	schedules domain.ScheduleStore
	logger    *zap.Logger

	mu             sync.Mutex
	lastNotified   map[string]time.Time
	firedWindows   map[string]struct{}
	wasRunning     bool
	lastAccrual    time.Time
	protectedAccum time.Duration

	subsMu sync.Mutex
	subs   map[int]func(domain.Snapshot)
	nextID int
}

// New creates a coordinator. releaser, drainer, events and schedules are
// optional; nil disables the corresponding behavior.
func New(
	config Config,
	clock domain.Clock,
	session *usecase.SessionMachine,
	phase *usecase.PhaseMachine,
	enforcer domain.Enforcer,
	catalog domain.BlockCatalog,
	releaser domain.BlockReleaser,
	drainer Drainer,
	events domain.EventSink,
	schedules domain.ScheduleStore,
	logger *zap.Logger,
) *Coordinator {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}
	if config.DedupCooldown <= 0 {
		config.DedupCooldown = DefaultConfig().DedupCooldown
	}
	return &Coordinator{
		config:       config,
		clock:        clock,
		session:      session,
		phase:        phase,
		enforcer:     enforcer,
		catalog:      catalog,
		releaser:     releaser,
		drainer:      drainer,
		events:       events,
		schedules:    schedules,
		logger:       logger,
		lastNotified: make(map[string]time.Time),
		firedWindows: make(map[string]struct{}),
		subs:         make(map[int]func(domain.Snapshot)),
	}
}

// Run drives the loop until the context is canceled. Stopping the loop
// stops all sub-ticks; no component keeps mutating state afterwards.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("coordinator started",
		zap.Duration("tick_interval", c.config.TickInterval))

	// First evaluation immediately, not one interval in.
	c.tick(ctx)

	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick runs one evaluation of all sub-state machines. No single tick's
// failure may kill the loop; the next cadence retries everything.
func (c *Coordinator) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("tick recovered", zap.Any("panic", r))
		}
	}()

	c.mu.Lock()
	now := c.clock.Now()

	sessionSnap := c.session.Tick(now)

	var fresh []domain.InterceptEvent
	if sessionSnap.Active {
		fresh = c.enforceLocked(ctx, now)
		c.accrueProtectedLocked(now)
	} else {
		if c.wasRunning {
			c.endEnforcementLocked(ctx)
		}
		c.maybeStartScheduledLocked(now)
	}
	c.wasRunning = sessionSnap.Active

	_, phaseSnap := c.phase.Tick(now)

	snap := domain.Snapshot{
		TakenAt:       now,
		Session:       sessionSnap,
		Phase:         phaseSnap,
		NewIntercepts: fresh,
	}
	c.mu.Unlock()

	c.publish(snap)
}

// enforceLocked runs one enforcement cycle and returns the deduplicated
// intercepts to surface. Caller holds c.mu.
func (c *Coordinator) enforceLocked(ctx context.Context, now time.Time) []domain.InterceptEvent {
	targets, err := c.catalog.GetEnabledTargets(ctx)
	if err != nil {
		// Transient catalog failure: no targets this tick, retry next.
		c.logger.Warn("catalog fetch failed", zap.Error(err))
		targets = nil
	}

	events := c.enforcer.Enforce(ctx, targets)
	if c.drainer != nil {
		events = append(events, c.drainer.Drain()...)
	}

	var fresh []domain.InterceptEvent
	for _, ev := range events {
		if last, seen := c.lastNotified[ev.Target]; seen && now.Sub(last) < c.config.DedupCooldown {
			continue
		}
		c.lastNotified[ev.Target] = now
		fresh = append(fresh, ev)

		if c.events != nil {
			if err := c.events.LogBlockEvent(ev.Target, ev.Kind); err != nil {
				c.logger.Warn("failed to log block event", zap.Error(err))
			}
		}
	}
	return fresh
}

// endEnforcementLocked lifts environment blocks and resets per-session
// notification state after a session leaves Running. Caller holds c.mu.
func (c *Coordinator) endEnforcementLocked(ctx context.Context) {
	if c.releaser != nil {
		if err := c.releaser.Release(ctx); err != nil {
			c.logger.Warn("failed to release blocks", zap.Error(err))
		}
	}
	if c.drainer != nil {
		c.drainer.Drain() // discard hits that raced the session end
	}
	c.lastNotified = make(map[string]time.Time)
	c.flushProtectedLocked()
}

// accrueProtectedLocked converts running time into protected minutes.
func (c *Coordinator) accrueProtectedLocked(now time.Time) {
	if c.events == nil {
		return
	}
	if !c.wasRunning || c.lastAccrual.IsZero() {
		c.lastAccrual = now
		return
	}
	c.protectedAccum += now.Sub(c.lastAccrual)
	c.lastAccrual = now

	minutes := int64(c.protectedAccum / time.Minute)
	if minutes > 0 {
		c.protectedAccum -= time.Duration(minutes) * time.Minute
		if err := c.events.AddProtectedTime(minutes); err != nil {
			c.logger.Warn("failed to record protected time", zap.Error(err))
		}
	}
}

func (c *Coordinator) flushProtectedLocked() {
	c.protectedAccum = 0
	c.lastAccrual = time.Time{}
}

func (c *Coordinator) shutdown() {
	c.mu.Lock()
	running := c.wasRunning
	c.mu.Unlock()

	if running && c.releaser != nil {
		if err := c.releaser.Release(context.Background()); err != nil {
			c.logger.Warn("failed to release blocks on shutdown", zap.Error(err))
		}
	}
	c.logger.Info("coordinator stopped")
}

// publish pushes a snapshot to every subscriber.
func (c *Coordinator) publish(snap domain.Snapshot) {
	c.subsMu.Lock()
	fns := make([]func(domain.Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Subscribe registers a snapshot callback, pushed once per tick.
// Callbacks must not block; slow consumers should buffer on their side.
// Returns an unsubscribe function.
func (c *Coordinator) Subscribe(fn func(domain.Snapshot)) func() {
	c.subsMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// Snapshot evaluates and returns the current combined state on demand.
func (c *Coordinator) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	sessionSnap := c.session.Tick(now)
	_, phaseSnap := c.phase.Tick(now)
	return domain.Snapshot{
		TakenAt: now,
		Session: sessionSnap,
		Phase:   phaseSnap,
	}
}

// StartSession begins a focus session.
func (c *Coordinator) StartSession(label string, duration time.Duration, hardcore bool) (*domain.FocusSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Start(label, duration, hardcore)
}

// StopSession ends the current session; hardcore sessions refuse.
func (c *Coordinator) StopSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Stop()
}

// OverrideStopSession ends the current session after credential
// verification. The coordinator mutex is held for the duration of the
// check, suspending tick writes until the outcome is known.
func (c *Coordinator) OverrideStopSession(secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.OverrideStop(secret)
}

// ConfigurePhases applies a new interval timer configuration.
func (c *Coordinator) ConfigurePhases(config domain.PhaseConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase.Reconfigure(config)
}

// TogglePhaseRunning starts or pauses the interval timer.
func (c *Coordinator) TogglePhaseRunning(running bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if running {
		return c.phase.Start()
	}
	return c.phase.Pause()
}

// ResetPhase reloads the current phase from config.
func (c *Coordinator) ResetPhase() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase.Reset()
}
