package infra

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/domain"
)

// systemWhitelist holds process names that are never killed, even when a
// user manages to put them on the block list. Losing any of these takes
// the desktop session or the OS down with it.
var systemWhitelist = map[string]struct{}{
	// Windows
	"explorer.exe":                  {},
	"dwm.exe":                       {},
	"taskhostw.exe":                 {},
	"lsass.exe":                     {},
	"csrss.exe":                     {},
	"wininit.exe":                   {},
	"winlogon.exe":                  {},
	"services.exe":                  {},
	"system":                        {},
	"registry":                      {},
	"smss.exe":                      {},
	"fontdrvhost.exe":               {},
	"svchost.exe":                   {},
	"taskmgr.exe":                   {},
	"shellexperiencehost.exe":       {},
	"searchhost.exe":                {},
	"startmenuexperiencehost.exe":   {},
	// macOS / Linux
	"launchd":      {},
	"kernel_task":  {},
	"windowserver": {},
	"loginwindow":  {},
	"systemd":      {},
	"init":         {},
}

// IsWhitelistedProcess reports whether a process name must never be killed.
func IsWhitelistedProcess(name string) bool {
	_, ok := systemWhitelist[strings.ToLower(name)]
	return ok
}

// AppApplier implements domain.BlockApplier for application targets by
// killing matching processes. An intercept is reported when at least one
// process actually went down this cycle.
type AppApplier struct {
	processManager domain.ProcessManager
	logger         *zap.Logger
}

// NewAppApplier creates an application block applier.
func NewAppApplier(pm domain.ProcessManager, logger *zap.Logger) *AppApplier {
	return &AppApplier{processManager: pm, logger: logger}
}

// Apply kills every process matching the target's process name.
func (a *AppApplier) Apply(ctx context.Context, target domain.BlockTarget) (bool, error) {
	if IsWhitelistedProcess(target.Identifier) {
		a.logger.Warn("refusing to kill whitelisted system process",
			zap.String("process", target.Identifier))
		return false, nil
	}

	killed, err := a.processManager.KillByName(target.Identifier)
	if err != nil {
		return false, err
	}
	if len(killed) == 0 {
		return false, nil
	}

	a.logger.Info("killed blocked application",
		zap.String("process", target.Identifier),
		zap.Int32s("pids", killed))
	return true, nil
}

// Ensure AppApplier implements domain.BlockApplier.
var _ domain.BlockApplier = (*AppApplier)(nil)
