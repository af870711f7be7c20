package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/tessera/internal/config"
	"github.com/dyluth/tessera/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Initialize(dir, false))

	cfg, err := config.Load(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Ledger.Instance)
	assert.Equal(t, config.StoreRedis, cfg.FastTier.Store)
	assert.Equal(t, 50, *cfg.Cooldown.BurstLimit)

	root, err := identity.LoadKeyPair(filepath.Join(dir, KeysDir, "root.json"))
	require.NoError(t, err)
	authority, err := identity.LoadKeyPair(filepath.Join(dir, KeysDir, "authority.json"))
	require.NoError(t, err)
	assert.NotEqual(t, root.Identity(), authority.Identity())

	info, err := os.Stat(filepath.Join(dir, KeysDir, "root.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestInitialize_RefusesExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, false))

	err := Initialize(dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace already initialized")
}

func TestInitialize_ForceReplaces(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("old content"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, KeysDir), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeysDir, "root.json"), []byte("old"), 0600))

	require.NoError(t, Initialize(dir, true))

	_, err := config.Load(filepath.Join(dir, ConfigFile))
	assert.NoError(t, err)
	_, err = identity.LoadKeyPair(filepath.Join(dir, KeysDir, "root.json"))
	assert.NoError(t, err)
}
