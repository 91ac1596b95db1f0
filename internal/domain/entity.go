// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// SessionStatus is the lifecycle state of a focus session.
type SessionStatus string

const (
	StatusRunning           SessionStatus = "running"
	StatusExpired           SessionStatus = "expired"
	StatusStoppedByUser     SessionStatus = "stopped_by_user"
	StatusStoppedByOverride SessionStatus = "stopped_by_override"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == StatusExpired || s == StatusStoppedByUser || s == StatusStoppedByOverride
}

// FocusSession is a single time-boxed focus window.
// Hardcore sessions cannot be stopped without a credential override.
type FocusSession struct {
	ID              string        `json:"id"`
	Label           string        `json:"label"`
	PlannedDuration time.Duration `json:"planned_duration"`
	StartedAt       time.Time     `json:"started_at"`
	Hardcore        bool          `json:"hardcore"`
	Status          SessionStatus `json:"status"`
}

// SessionSnapshot is the per-tick view of the session machine.
// Active is false when no session exists (machine is idle).
type SessionSnapshot struct {
	Active         bool          `json:"active"`
	ID             string        `json:"id,omitempty"`
	Label          string        `json:"label,omitempty"`
	Remaining      time.Duration `json:"remaining"`
	Status         SessionStatus `json:"status,omitempty"`
	HardcoreLocked bool          `json:"hardcore_locked"`
}

// TargetKind distinguishes site and application block targets.
type TargetKind string

const (
	KindSite        TargetKind = "site"
	KindApplication TargetKind = "application"
)

// BlockTarget is one entry of the enforcement set for a tick.
// The catalog owns the full record; this is just the enforcement tuple.
type BlockTarget struct {
	Kind       TargetKind `json:"kind"`
	Identifier string     `json:"identifier"`
}

// InterceptEvent records one confirmed block of a target during a tick.
// Ephemeral: it exists to drive a single notification.
type InterceptEvent struct {
	Target string     `json:"target"`
	Kind   TargetKind `json:"kind"`
	At     time.Time  `json:"at"`
}

// Phase is the current segment of the interval timer.
type Phase string

const (
	PhaseWork       Phase = "work"
	PhaseShortBreak Phase = "short_break"
	PhaseLongBreak  Phase = "long_break"
)

// PhaseConfig holds the interval timer durations.
// All durations must be positive and IntervalsUntilLongBreak >= 1.
type PhaseConfig struct {
	Work                    time.Duration `json:"work"`
	ShortBreak              time.Duration `json:"short_break"`
	LongBreak               time.Duration `json:"long_break"`
	IntervalsUntilLongBreak int           `json:"intervals_until_long_break"`
}

// DefaultPhaseConfig returns the classic 25/5/15 pomodoro configuration.
func DefaultPhaseConfig() PhaseConfig {
	return PhaseConfig{
		Work:                    25 * time.Minute,
		ShortBreak:              5 * time.Minute,
		LongBreak:               15 * time.Minute,
		IntervalsUntilLongBreak: 4,
	}
}

// Validate checks the configuration invariants.
func (c PhaseConfig) Validate() error {
	if c.Work <= 0 || c.ShortBreak <= 0 || c.LongBreak <= 0 {
		return ErrInvalidConfig
	}
	if c.IntervalsUntilLongBreak < 1 {
		return ErrInvalidConfig
	}
	return nil
}

// DurationFor returns the configured duration of a phase.
func (c PhaseConfig) DurationFor(p Phase) time.Duration {
	switch p {
	case PhaseShortBreak:
		return c.ShortBreak
	case PhaseLongBreak:
		return c.LongBreak
	default:
		return c.Work
	}
}

// PhaseSnapshot is the per-tick view of the interval timer.
type PhaseSnapshot struct {
	Phase                  Phase         `json:"phase"`
	Remaining              time.Duration `json:"remaining"`
	Running                bool          `json:"running"`
	CompletedWorkIntervals int           `json:"completed_work_intervals"`
	Config                 PhaseConfig   `json:"config"`
}

// Snapshot is the combined state published to the presentation layer
// after every coordinator tick.
type Snapshot struct {
	TakenAt       time.Time        `json:"taken_at"`
	Session       SessionSnapshot  `json:"session"`
	Phase         PhaseSnapshot    `json:"phase"`
	NewIntercepts []InterceptEvent `json:"new_intercepts,omitempty"`
}

// BlockedSite is a catalog entry for a website block.
type BlockedSite struct {
	ID        int64     `json:"id"`
	Domain    string    `json:"domain"`
	Category  string    `json:"category"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// BlockedApp is a catalog entry for an application block.
type BlockedApp struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ProcessName string    `json:"process_name"`
	Category    string    `json:"category"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// Schedule is a weekly recurring focus window.
// Days use three-letter names ("Mon".."Sun"); times are "HH:MM" local.
type Schedule struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Days      []string `json:"days"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Hardcore  bool     `json:"hardcore"`
	Enabled   bool     `json:"enabled"`
}

// BlockEvent is one persisted interception, kept for history/stats.
type BlockEvent struct {
	ID        int64      `json:"id"`
	Target    string     `json:"target"`
	Kind      TargetKind `json:"kind"`
	BlockedAt time.Time  `json:"blocked_at"`
}

// FocusStats aggregates protection per calendar day.
type FocusStats struct {
	Date             string `json:"date"`
	MinutesProtected int64  `json:"minutes_protected"`
	BlocksCount      int64  `json:"blocks_count"`
}

// RunningProcess is one entry of the process enumeration.
type RunningProcess struct {
	PID  int32  `json:"pid"`
	Name string `json:"name"`
}
