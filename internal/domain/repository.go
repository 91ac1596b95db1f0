package domain

import (
	"context"
	"time"
)

// Clock abstracts time for the state machines.
// Implementations must be monotonic within a process lifetime: wall-clock
// jumps (DST, NTP correction) must not affect remaining-time arithmetic.
type Clock interface {
	Now() time.Time
}

// BlockCatalog is the persisted catalog of blocked sites and applications.
// A transient failure is treated as "no targets this tick", not as fatal.
type BlockCatalog interface {
	// GetEnabledTargets returns the enforcement set for the current tick.
	GetEnabledTargets(ctx context.Context) ([]BlockTarget, error)
}

// BlockApplier applies one blocking action against the environment.
// Returns true if the target was actively intercepted this cycle (a running
// process killed, a network block freshly applied). Failure means
// "not intercepted", never a batch abort.
type BlockApplier interface {
	Apply(ctx context.Context, target BlockTarget) (intercepted bool, err error)
}

// BlockReleaser lifts environment-level blocks when enforcement stops,
// e.g. when a session ends and site blocks should come off again.
type BlockReleaser interface {
	Release(ctx context.Context) error
}

// Enforcer re-asserts the enabled block list against the environment.
type Enforcer interface {
	// Enforce invokes the applier once per target and returns the subset
	// actually intercepted this cycle. Safe on an empty set.
	Enforce(ctx context.Context, targets []BlockTarget) []InterceptEvent
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// List returns running processes, sorted by name and deduplicated.
	List() ([]RunningProcess, error)

	// KillByName terminates all processes whose name matches (case-insensitive).
	// Returns the PIDs that were killed.
	KillByName(name string) ([]int32, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool
}

// CredentialVerifier holds the salted hash of the master secret.
type CredentialVerifier interface {
	// SetSecret replaces the stored hash atomically.
	SetSecret(newSecret string) error

	// Verify compares a candidate against the stored hash in constant time.
	// A false result is a legitimate outcome, not an error; only a malformed
	// (empty) candidate is rejected with an error.
	Verify(candidate string) (bool, error)
}

// SessionStore persists the active focus session for restart survival.
// Saves must be atomic: a crash mid-save must not corrupt the lock flag.
type SessionStore interface {
	SaveActiveSession(s *FocusSession) error

	// LoadActiveSession returns nil when no session is persisted.
	LoadActiveSession() (*FocusSession, error)

	ClearActiveSession() error
}

// PhaseConfigStore persists the interval timer configuration.
type PhaseConfigStore interface {
	SavePhaseConfig(c PhaseConfig) error

	// LoadPhaseConfig returns nil when nothing has been saved yet.
	LoadPhaseConfig() (*PhaseConfig, error)
}

// SettingStore is generic key/value persistence (credential hash, flags).
type SettingStore interface {
	SetSetting(key, value string) error

	// GetSetting returns ok=false when the key is absent.
	GetSetting(key string) (value string, ok bool, err error)
}

// EventSink records interceptions and protected time for history and stats.
type EventSink interface {
	LogBlockEvent(target string, kind TargetKind) error
	AddProtectedTime(minutes int64) error
}

// CatalogStore is the full CRUD surface over the block catalog.
type CatalogStore interface {
	BlockCatalog

	AddBlockedSite(domain, category string) (int64, error)
	GetBlockedSites() ([]BlockedSite, error)
	SetBlockedSiteEnabled(id int64, enabled bool) error
	DeleteBlockedSite(id int64) error

	AddBlockedApp(name, processName, category string) (int64, error)
	GetBlockedApps() ([]BlockedApp, error)
	SetBlockedAppEnabled(id int64, enabled bool) error
	DeleteBlockedApp(id int64) error
}

// ScheduleStore persists weekly recurring focus windows.
type ScheduleStore interface {
	AddSchedule(s Schedule) (int64, error)
	GetSchedules() ([]Schedule, error)
	DeleteSchedule(id int64) error
}

// HistoryStore reads back persisted interceptions and daily stats.
type HistoryStore interface {
	GetRecentBlocks(limit int) ([]BlockEvent, error)
	GetStats(days int) ([]FocusStats, error)
}
