package infra

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunFile_WriteReadClear verifies the round trip
func TestRunFile_WriteReadClear(t *testing.T) {
	rf := NewRunFile(t.TempDir())

	state, err := rf.Read()
	require.NoError(t, err)
	assert.Nil(t, state, "no state before the daemon ever ran")

	require.NoError(t, rf.Write(RunState{
		PID:         os.Getpid(),
		ControlAddr: "127.0.0.1:7177",
		Version:     "1.0.0",
	}))

	state, err = rf.Read()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, os.Getpid(), state.PID)
	assert.Equal(t, "127.0.0.1:7177", state.ControlAddr)
	assert.NotZero(t, state.StartedAt, "write stamps the start time")

	require.NoError(t, rf.Clear())
	state, err = rf.Read()
	require.NoError(t, err)
	assert.Nil(t, state)

	// Clearing twice is fine.
	assert.NoError(t, rf.Clear())
}

// TestEnsureStoreKey verifies key generation and stability across calls
func TestEnsureStoreKey(t *testing.T) {
	dir := t.TempDir()

	key1, err := EnsureStoreKey(dir)
	require.NoError(t, err)
	assert.Len(t, key1, keySize)

	key2, err := EnsureStoreKey(dir)
	require.NoError(t, err)
	assert.Equal(t, key1, key2, "existing key is reused")

	info, err := os.Stat(dir + "/" + keyFileName)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
