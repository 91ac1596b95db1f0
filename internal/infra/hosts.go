package infra

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/domain"
)

// Managed block markers inside the hosts file. Everything between them
// belongs to bastion and is rewritten wholesale.
const (
	hostsMarkerStart = "# === BASTION BLOCK START ==="
	hostsMarkerEnd   = "# === BASTION BLOCK END ==="
)

// DefaultHostsPath returns the platform hosts file location.
func DefaultHostsPath() string {
	if runtime.GOOS == "windows" {
		return `C:\Windows\System32\drivers\etc\hosts`
	}
	return "/etc/hosts"
}

// HostsManager implements domain.BlockApplier for site targets by mapping
// blocked domains to localhost in the hosts file. It also implements
// domain.BlockReleaser to lift the whole managed block when enforcement
// stops. All file access is serialized internally, so concurrent Apply
// calls from the enforcement fan-out are safe.
type HostsManager struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewHostsManager creates a hosts-file manager for the given path.
// An empty path selects the platform default.
func NewHostsManager(path string, logger *zap.Logger) *HostsManager {
	if path == "" {
		path = DefaultHostsPath()
	}
	return &HostsManager{path: path, logger: logger}
}

// Apply ensures the target domain is present in the managed block.
// An intercept is reported only when the entry had to be freshly applied;
// a domain already in place returns false (the sentinel listener reports
// live traffic hits instead).
func (h *HostsManager) Apply(ctx context.Context, target domain.BlockTarget) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	contents, err := os.ReadFile(h.path)
	if err != nil {
		return false, fmt.Errorf("failed to read hosts file: %w", err)
	}

	domains := parseManagedDomains(string(contents))
	if _, present := domains[target.Identifier]; present {
		return false, nil
	}

	domains[target.Identifier] = struct{}{}
	if err := h.writeManagedBlock(string(contents), domains); err != nil {
		return false, err
	}

	h.logger.Info("hosts block applied", zap.String("domain", target.Identifier))
	return true, nil
}

// Release removes the whole managed block from the hosts file.
func (h *HostsManager) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	contents, err := os.ReadFile(h.path)
	if err != nil {
		return fmt.Errorf("failed to read hosts file: %w", err)
	}

	stripped, found := stripManagedBlock(string(contents))
	if !found {
		return nil
	}
	if err := os.WriteFile(h.path, []byte(stripped), 0644); err != nil {
		return fmt.Errorf("failed to write hosts file: %w", err)
	}

	h.logger.Info("hosts block released")
	return nil
}

// Writable reports whether the process can modify the hosts file.
// Blocking sites requires elevated privileges on most systems.
func (h *HostsManager) Writable() bool {
	f, err := os.OpenFile(h.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// writeManagedBlock rewrites the file with the given domain set.
// Caller holds the mutex.
func (h *HostsManager) writeManagedBlock(contents string, domains map[string]struct{}) error {
	stripped, _ := stripManagedBlock(contents)

	var b strings.Builder
	b.WriteString(strings.TrimRight(stripped, "\n"))
	b.WriteString("\n\n")
	b.WriteString(renderManagedBlock(domains))
	b.WriteString("\n")

	if err := os.WriteFile(h.path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write hosts file: %w", err)
	}
	return nil
}

// renderManagedBlock emits the marker-delimited section. Each domain is
// blocked with and without the www prefix, for IPv4 and IPv6 loopback.
func renderManagedBlock(domains map[string]struct{}) string {
	ordered := make([]string, 0, len(domains))
	for d := range domains {
		ordered = append(ordered, d)
	}
	// Stable output keeps the file diff-friendly.
	sort.Strings(ordered)

	var b strings.Builder
	b.WriteString(hostsMarkerStart)
	b.WriteString("\n")
	for _, d := range ordered {
		fmt.Fprintf(&b, "127.0.0.1 %s\n", d)
		fmt.Fprintf(&b, "127.0.0.1 www.%s\n", d)
		fmt.Fprintf(&b, "::1 %s\n", d)
		fmt.Fprintf(&b, "::1 www.%s\n", d)
	}
	b.WriteString(hostsMarkerEnd)
	return b.String()
}

// parseManagedDomains extracts the domain set from the managed block.
func parseManagedDomains(contents string) map[string]struct{} {
	domains := make(map[string]struct{})
	inBlock := false
	for _, line := range strings.Split(contents, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == hostsMarkerStart:
			inBlock = true
		case trimmed == hostsMarkerEnd:
			inBlock = false
		case inBlock:
			fields := strings.Fields(trimmed)
			if len(fields) < 2 {
				continue
			}
			name := strings.TrimPrefix(fields[1], "www.")
			domains[name] = struct{}{}
		}
	}
	return domains
}

// stripManagedBlock removes the marker-delimited section, if present.
func stripManagedBlock(contents string) (string, bool) {
	start := strings.Index(contents, hostsMarkerStart)
	end := strings.Index(contents, hostsMarkerEnd)
	if start == -1 || end == -1 || end < start {
		return contents, false
	}
	end += len(hostsMarkerEnd)
	// Swallow the newline following the block.
	if end < len(contents) && contents[end] == '\n' {
		end++
	}
	return strings.TrimRight(contents[:start], "\n") + "\n" + contents[end:], true
}

// Ensure HostsManager satisfies both applier and releaser.
var (
	_ domain.BlockApplier  = (*HostsManager)(nil)
	_ domain.BlockReleaser = (*HostsManager)(nil)
)
