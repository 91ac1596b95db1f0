package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const runFileName = "bastiond.run"

// RunState describes the live daemon for CLI discovery: which PID serves
// the control API and where.
type RunState struct {
	PID         int    `json:"pid"`
	ControlAddr string `json:"control_addr"`
	StartedAt   int64  `json:"started_at"`
	Version     string `json:"version"`
}

// RunFile persists the daemon run state in the data directory.
// Single writer (the daemon), so atomic write+rename is enough.
type RunFile struct {
	path string
}

// NewRunFile creates a run file handle for the data directory.
func NewRunFile(dataDir string) *RunFile {
	return &RunFile{path: filepath.Join(dataDir, runFileName)}
}

// Path returns the run file location.
func (r *RunFile) Path() string {
	return r.path
}

// Write records the daemon run state atomically.
func (r *RunFile) Write(state RunState) error {
	if state.StartedAt == 0 {
		state.StartedAt = time.Now().Unix()
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}

// Read returns the recorded run state, or nil if the daemon never ran.
func (r *RunFile) Read() (*RunState, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Clear removes the run file.
func (r *RunFile) Clear() error {
	err := os.Remove(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
