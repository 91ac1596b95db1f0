package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/bastionhq/bastion/internal/domain"
)

const storeDBName = "bastion.db"

// Store is the SQLCipher-encrypted persistence layer. It implements the
// catalog, schedule, session, phase-config, settings, event and history
// ports on a single database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the encrypted database in dataDir.
// The key is used as the SQLCipher passphrase via the DSN pragma.
func NewStore(dataDir string, key []byte) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blocked_sites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL UNIQUE,
		category TEXT DEFAULT 'other',
		enabled INTEGER DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blocked_apps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		process_name TEXT NOT NULL UNIQUE,
		category TEXT DEFAULT 'other',
		enabled INTEGER DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		days TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		hardcore INTEGER DEFAULT 0,
		enabled INTEGER DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS active_session (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		id TEXT NOT NULL,
		label TEXT NOT NULL,
		planned_seconds INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		hardcore INTEGER NOT NULL,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS block_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		kind TEXT NOT NULL,
		blocked_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS focus_stats (
		date TEXT PRIMARY KEY,
		minutes_protected INTEGER DEFAULT 0,
		blocks_count INTEGER DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.SettingStore ---

// SetSetting stores a key/value pair. The REPLACE runs in an implicit
// transaction, so readers never see a half-written value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetSetting retrieves a value; ok is false when the key is absent.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// --- domain.CatalogStore ---

// GetEnabledTargets returns the enforcement set for the current tick.
func (s *Store) GetEnabledTargets(ctx context.Context) ([]domain.BlockTarget, error) {
	var targets []domain.BlockTarget

	rows, err := s.db.QueryContext(ctx, "SELECT domain FROM blocked_sites WHERE enabled = 1")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		targets = append(targets, domain.BlockTarget{Kind: domain.KindSite, Identifier: d})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	appRows, err := s.db.QueryContext(ctx, "SELECT process_name FROM blocked_apps WHERE enabled = 1")
	if err != nil {
		return nil, err
	}
	defer appRows.Close()
	for appRows.Next() {
		var p string
		if err := appRows.Scan(&p); err != nil {
			return nil, err
		}
		targets = append(targets, domain.BlockTarget{Kind: domain.KindApplication, Identifier: p})
	}
	return targets, appRows.Err()
}

// AddBlockedSite inserts a site catalog entry.
func (s *Store) AddBlockedSite(siteDomain, category string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO blocked_sites (domain, category, created_at) VALUES (?, ?, ?)",
		siteDomain, category, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetBlockedSites returns all site catalog entries.
func (s *Store) GetBlockedSites() ([]domain.BlockedSite, error) {
	rows, err := s.db.Query(
		"SELECT id, domain, category, enabled, created_at FROM blocked_sites ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []domain.BlockedSite
	for rows.Next() {
		var site domain.BlockedSite
		var enabled int
		var createdAt int64
		if err := rows.Scan(&site.ID, &site.Domain, &site.Category, &enabled, &createdAt); err != nil {
			return nil, err
		}
		site.Enabled = enabled == 1
		site.CreatedAt = time.Unix(createdAt, 0)
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// SetBlockedSiteEnabled toggles a site entry.
func (s *Store) SetBlockedSiteEnabled(id int64, enabled bool) error {
	_, err := s.db.Exec("UPDATE blocked_sites SET enabled = ? WHERE id = ?", boolToInt(enabled), id)
	return err
}

// DeleteBlockedSite removes a site entry.
func (s *Store) DeleteBlockedSite(id int64) error {
	_, err := s.db.Exec("DELETE FROM blocked_sites WHERE id = ?", id)
	return err
}

// AddBlockedApp inserts an application catalog entry.
func (s *Store) AddBlockedApp(name, processName, category string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO blocked_apps (name, process_name, category, created_at) VALUES (?, ?, ?, ?)",
		name, processName, category, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetBlockedApps returns all application catalog entries.
func (s *Store) GetBlockedApps() ([]domain.BlockedApp, error) {
	rows, err := s.db.Query(
		"SELECT id, name, process_name, category, enabled, created_at FROM blocked_apps ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.BlockedApp
	for rows.Next() {
		var app domain.BlockedApp
		var enabled int
		var createdAt int64
		if err := rows.Scan(&app.ID, &app.Name, &app.ProcessName, &app.Category, &enabled, &createdAt); err != nil {
			return nil, err
		}
		app.Enabled = enabled == 1
		app.CreatedAt = time.Unix(createdAt, 0)
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// SetBlockedAppEnabled toggles an application entry.
func (s *Store) SetBlockedAppEnabled(id int64, enabled bool) error {
	_, err := s.db.Exec("UPDATE blocked_apps SET enabled = ? WHERE id = ?", boolToInt(enabled), id)
	return err
}

// DeleteBlockedApp removes an application entry.
func (s *Store) DeleteBlockedApp(id int64) error {
	_, err := s.db.Exec("DELETE FROM blocked_apps WHERE id = ?", id)
	return err
}

// --- domain.ScheduleStore ---

// AddSchedule inserts a recurring focus window.
func (s *Store) AddSchedule(sched domain.Schedule) (int64, error) {
	days, err := json.Marshal(sched.Days)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		"INSERT INTO schedules (name, days, start_time, end_time, hardcore, enabled) VALUES (?, ?, ?, ?, ?, ?)",
		sched.Name, string(days), sched.StartTime, sched.EndTime,
		boolToInt(sched.Hardcore), boolToInt(sched.Enabled))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetSchedules returns all recurring focus windows.
func (s *Store) GetSchedules() ([]domain.Schedule, error) {
	rows, err := s.db.Query(
		"SELECT id, name, days, start_time, end_time, hardcore, enabled FROM schedules ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		var sched domain.Schedule
		var days string
		var hardcore, enabled int
		if err := rows.Scan(&sched.ID, &sched.Name, &days, &sched.StartTime, &sched.EndTime, &hardcore, &enabled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(days), &sched.Days); err != nil {
			return nil, err
		}
		sched.Hardcore = hardcore == 1
		sched.Enabled = enabled == 1
		schedules = append(schedules, sched)
	}
	return schedules, rows.Err()
}

// DeleteSchedule removes a recurring focus window.
func (s *Store) DeleteSchedule(id int64) error {
	_, err := s.db.Exec("DELETE FROM schedules WHERE id = ?", id)
	return err
}

// --- domain.SessionStore ---

// SaveActiveSession persists the session in the singleton slot.
// The REPLACE is a single transaction: a crash cannot leave a session row
// with a half-written hardcore flag.
func (s *Store) SaveActiveSession(sess *domain.FocusSession) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO active_session
		 (slot, id, label, planned_seconds, started_at, hardcore, status)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Label, int64(sess.PlannedDuration.Seconds()),
		sess.StartedAt.Unix(), boolToInt(sess.Hardcore), string(sess.Status))
	return err
}

// LoadActiveSession returns the persisted session, or nil if none.
func (s *Store) LoadActiveSession() (*domain.FocusSession, error) {
	var sess domain.FocusSession
	var plannedSeconds, startedAt int64
	var hardcore int
	var status string

	err := s.db.QueryRow(
		"SELECT id, label, planned_seconds, started_at, hardcore, status FROM active_session WHERE slot = 1").
		Scan(&sess.ID, &sess.Label, &plannedSeconds, &startedAt, &hardcore, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess.PlannedDuration = time.Duration(plannedSeconds) * time.Second
	sess.StartedAt = time.Unix(startedAt, 0)
	sess.Hardcore = hardcore == 1
	sess.Status = domain.SessionStatus(status)
	return &sess, nil
}

// ClearActiveSession removes the persisted session.
func (s *Store) ClearActiveSession() error {
	_, err := s.db.Exec("DELETE FROM active_session WHERE slot = 1")
	return err
}

// --- domain.PhaseConfigStore ---

const phaseConfigKey = "phase_config"

// SavePhaseConfig persists the interval timer configuration.
func (s *Store) SavePhaseConfig(c domain.PhaseConfig) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.SetSetting(phaseConfigKey, string(data))
}

// LoadPhaseConfig returns the persisted configuration, or nil if none.
func (s *Store) LoadPhaseConfig() (*domain.PhaseConfig, error) {
	raw, ok, err := s.GetSetting(phaseConfigKey)
	if err != nil || !ok {
		return nil, err
	}
	var c domain.PhaseConfig
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// --- domain.EventSink / domain.HistoryStore ---

// LogBlockEvent records one interception and bumps the daily counter.
func (s *Store) LogBlockEvent(target string, kind domain.TargetKind) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO block_events (target, kind, blocked_at) VALUES (?, ?, ?)",
		target, string(kind), time.Now().Unix()); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO focus_stats (date, blocks_count) VALUES (?, 1)
		 ON CONFLICT(date) DO UPDATE SET blocks_count = blocks_count + 1`,
		today()); err != nil {
		return err
	}
	return tx.Commit()
}

// AddProtectedTime accrues protected minutes on today's stats row.
func (s *Store) AddProtectedTime(minutes int64) error {
	_, err := s.db.Exec(
		`INSERT INTO focus_stats (date, minutes_protected) VALUES (?, ?)
		 ON CONFLICT(date) DO UPDATE SET minutes_protected = minutes_protected + ?`,
		today(), minutes, minutes)
	return err
}

// GetRecentBlocks returns the newest interceptions, most recent first.
func (s *Store) GetRecentBlocks(limit int) ([]domain.BlockEvent, error) {
	rows, err := s.db.Query(
		"SELECT id, target, kind, blocked_at FROM block_events ORDER BY blocked_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.BlockEvent
	for rows.Next() {
		var e domain.BlockEvent
		var kind string
		var blockedAt int64
		if err := rows.Scan(&e.ID, &e.Target, &kind, &blockedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.TargetKind(kind)
		e.BlockedAt = time.Unix(blockedAt, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetStats returns per-day stats, most recent first.
func (s *Store) GetStats(days int) ([]domain.FocusStats, error) {
	rows, err := s.db.Query(
		"SELECT date, minutes_protected, blocks_count FROM focus_stats ORDER BY date DESC LIMIT ?",
		days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.FocusStats
	for rows.Next() {
		var st domain.FocusStats
		if err := rows.Scan(&st.Date, &st.MinutesProtected, &st.BlocksCount); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func today() string {
	return time.Now().Format("2006-01-02")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Interface conformance.
var (
	_ domain.SettingStore     = (*Store)(nil)
	_ domain.CatalogStore     = (*Store)(nil)
	_ domain.ScheduleStore    = (*Store)(nil)
	_ domain.SessionStore     = (*Store)(nil)
	_ domain.PhaseConfigStore = (*Store)(nil)
	_ domain.EventSink        = (*Store)(nil)
	_ domain.HistoryStore     = (*Store)(nil)
)
