package infra

import (
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/bastionhq/bastion/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() *ProcessManagerImpl {
	return &ProcessManagerImpl{}
}

// List returns running processes, sorted by name and deduplicated.
func (pm *ProcessManagerImpl) List() ([]domain.RunningProcess, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var out []domain.RunningProcess
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		out = append(out, domain.RunningProcess{PID: p.Pid, Name: name})
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})

	deduped := out[:0]
	var prev string
	for _, p := range out {
		lower := strings.ToLower(p.Name)
		if lower == prev {
			continue
		}
		prev = lower
		deduped = append(deduped, p)
	}
	return deduped, nil
}

// KillByName terminates all processes whose name matches, case-insensitively.
// Tries SIGTERM first, then SIGKILL. Returns the PIDs that went down.
func (pm *ProcessManagerImpl) KillByName(name string) ([]int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var killed []int32
	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue
		}
		if !strings.EqualFold(pname, name) {
			continue
		}
		if err := p.Terminate(); err != nil {
			if err := p.Kill(); err != nil {
				continue
			}
		}
		killed = append(killed, p.Pid)
	}
	return killed, nil
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
