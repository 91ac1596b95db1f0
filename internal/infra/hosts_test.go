package infra

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/domain"
)

func newTestHosts(t *testing.T, initial string) (*HostsManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte(initial), 0644))
	return NewHostsManager(path, zap.NewNop()), path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

const baseHosts = "127.0.0.1 localhost\n::1 localhost\n"

// TestHostsApply_FreshDomainIntercepts verifies a new entry reports an intercept
func TestHostsApply_FreshDomainIntercepts(t *testing.T) {
	h, path := newTestHosts(t, baseHosts)

	hit, err := h.Apply(context.Background(), domain.BlockTarget{Kind: domain.KindSite, Identifier: "reddit.com"})
	require.NoError(t, err)
	assert.True(t, hit, "fresh application counts as an intercept")

	contents := readFile(t, path)
	assert.Contains(t, contents, hostsMarkerStart)
	assert.Contains(t, contents, "127.0.0.1 reddit.com")
	assert.Contains(t, contents, "127.0.0.1 www.reddit.com")
	assert.Contains(t, contents, "::1 reddit.com")
	assert.Contains(t, contents, "127.0.0.1 localhost", "existing entries survive")
}

// TestHostsApply_ExistingDomainIsQuiet verifies idempotence per tick
func TestHostsApply_ExistingDomainIsQuiet(t *testing.T) {
	h, path := newTestHosts(t, baseHosts)
	target := domain.BlockTarget{Kind: domain.KindSite, Identifier: "reddit.com"}

	_, err := h.Apply(context.Background(), target)
	require.NoError(t, err)
	before := readFile(t, path)

	hit, err := h.Apply(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, hit, "already-applied entry is not a fresh intercept")
	assert.Equal(t, before, readFile(t, path))
}

// TestHostsApply_MultipleDomains verifies the block accumulates entries
func TestHostsApply_MultipleDomains(t *testing.T) {
	h, path := newTestHosts(t, baseHosts)

	for _, d := range []string{"reddit.com", "twitter.com", "news.ycombinator.com"} {
		_, err := h.Apply(context.Background(), domain.BlockTarget{Kind: domain.KindSite, Identifier: d})
		require.NoError(t, err)
	}

	contents := readFile(t, path)
	assert.Contains(t, contents, "127.0.0.1 reddit.com")
	assert.Contains(t, contents, "127.0.0.1 twitter.com")
	assert.Contains(t, contents, "127.0.0.1 news.ycombinator.com")

	// Exactly one managed block.
	assert.Equal(t, 1, strings.Count(contents, hostsMarkerStart))
	assert.Equal(t, 1, strings.Count(contents, hostsMarkerEnd))
}

// TestHostsRelease_RemovesBlockOnly verifies release keeps user entries
func TestHostsRelease_RemovesBlockOnly(t *testing.T) {
	h, path := newTestHosts(t, baseHosts)

	_, err := h.Apply(context.Background(), domain.BlockTarget{Kind: domain.KindSite, Identifier: "reddit.com"})
	require.NoError(t, err)

	require.NoError(t, h.Release(context.Background()))
	contents := readFile(t, path)
	assert.NotContains(t, contents, hostsMarkerStart)
	assert.NotContains(t, contents, "reddit.com")
	assert.Contains(t, contents, "127.0.0.1 localhost")
}

// TestHostsRelease_NoBlockIsNoOp verifies release tolerates a clean file
func TestHostsRelease_NoBlockIsNoOp(t *testing.T) {
	h, path := newTestHosts(t, baseHosts)

	require.NoError(t, h.Release(context.Background()))
	assert.Equal(t, baseHosts, readFile(t, path))
}

// TestParseManagedDomains verifies www and IPv6 lines collapse to one domain
func TestParseManagedDomains(t *testing.T) {
	contents := baseHosts + "\n" + renderManagedBlock(map[string]struct{}{
		"reddit.com":  {},
		"twitter.com": {},
	}) + "\n"

	domains := parseManagedDomains(contents)
	assert.Len(t, domains, 2)
	assert.Contains(t, domains, "reddit.com")
	assert.Contains(t, domains, "twitter.com")
}
