package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/tessera/internal/config"
	"github.com/dyluth/tessera/internal/identity"
	"github.com/dyluth/tessera/internal/printer"
	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cli runs commands against a miniredis instance with default configuration.
type cli struct {
	t      *testing.T
	dir    string
	config string
	mr     *miniredis.Miniredis
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv(config.EnvRedisURL, "redis://"+mr.Addr())
	t.Setenv(config.EnvInstance, "test")

	dir := t.TempDir()
	return &cli{t: t, dir: dir, config: filepath.Join(dir, "tessera.yml"), mr: mr}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--config", c.config}, args...))
	err := root.Execute()
	return buf.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "tessera %s", strings.Join(args, " "))
	return out
}

func (c *cli) path(name string) string {
	return filepath.Join(c.dir, name)
}

// user generates a root and authority key pair and binds their session.
func (c *cli) user() (root canvas.Identity, authorityPath string) {
	c.t.Helper()
	rootPath := c.path("root.json")
	authorityPath = c.path("authority.json")

	out := c.mustRun("keygen", "--out", rootPath)
	root = canvas.Identity(strings.TrimSpace(out))
	c.mustRun("keygen", "--out", authorityPath)
	c.mustRun("session", "bind", "--root", rootPath, "--authority", authorityPath)
	return root, authorityPath
}

func TestKeygen(t *testing.T) {
	c := newCLI(t)
	path := c.path("key.json")

	out := c.mustRun("keygen", "--out", path)

	kp, err := identity.LoadKeyPair(path)
	require.NoError(t, err)
	assert.Equal(t, string(kp.Identity()), strings.TrimSpace(out))

	_, err = c.run("keygen", "--out", path)
	require.Error(t, err)
	assert.True(t, printer.IsPrinted(err))
	assert.Equal(t, "key file already exists", err.Error())
}

func TestSessionBindAndShow(t *testing.T) {
	c := newCLI(t)
	root, authority := c.user()

	out := c.mustRun("session", "show", string(root), "--json")
	var session canvas.SessionRecord
	require.NoError(t, json.Unmarshal([]byte(out), &session))
	assert.Equal(t, root, session.RootIdentity)
	assert.Equal(t, canvas.TierDurable, session.Tier)

	kp, err := identity.LoadKeyPair(authority)
	require.NoError(t, err)
	assert.Equal(t, kp.Identity(), session.SessionAuthority)

	_, err = c.run("session", "bind", "--root", c.path("root.json"), "--authority", authority)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AlreadyExists")
}

func TestSessionShow_NotFound(t *testing.T) {
	c := newCLI(t)
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	_, err = c.run("session", "show", string(kp.Identity()))
	require.Error(t, err)
	assert.Equal(t, "session not found", err.Error())
}

func TestShardCreateShowList(t *testing.T) {
	c := newCLI(t)
	root, authority := c.user()

	c.mustRun("shard", "create", "0", "0", "--key", authority)
	c.mustRun("shard", "create", "1", "0", "--key", authority)

	_, err := c.run("shard", "create", "0", "0", "--key", authority)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AlreadyExists")

	out := c.mustRun("shard", "show", "0", "0", "--view", "json")
	var shard canvas.ShardRecord
	require.NoError(t, json.Unmarshal([]byte(out), &shard))
	assert.Equal(t, root, shard.Creator)
	assert.Len(t, shard.Pixels, canvas.DefaultGeometry().BufferLen())

	out = c.mustRun("shard", "list", "-o", "jsonl")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"shard_x":0`)
	assert.Contains(t, lines[1], `"shard_x":1`)

	out = c.mustRun("shard", "list", "--tier-state", "delegated", "-o", "jsonl")
	assert.Empty(t, strings.TrimSpace(out))

	_, err = c.run("shard", "show", "5", "5")
	require.Error(t, err)
	assert.Equal(t, "shard not found", err.Error())

	_, err = c.run("shard", "show", "0", "0", "--view", "bogus")
	require.Error(t, err)
	assert.Equal(t, "invalid view", err.Error())
}

func TestPixelPutGetErase(t *testing.T) {
	c := newCLI(t)
	_, authority := c.user()

	// Unmaterialized shards read as 0.
	assert.Equal(t, "0", strings.TrimSpace(c.mustRun("pixel", "get", "1", "1")))

	_, err := c.run("pixel", "put", "1", "1", "7", "--key", authority)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotFound")

	c.mustRun("shard", "create", "0", "0", "--key", authority)
	c.mustRun("pixel", "put", "1", "1", "7", "--key", authority)
	assert.Equal(t, "7", strings.TrimSpace(c.mustRun("pixel", "get", "1", "1")))

	c.mustRun("pixel", "erase", "1", "1", "--key", authority)
	assert.Equal(t, "0", strings.TrimSpace(c.mustRun("pixel", "get", "1", "1")))

	_, err = c.run("pixel", "put", "1", "1", "7", "--key", authority, "--shard", "1,0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ShardMismatch")

	_, err = c.run("pixel", "put", "1", "1", "7")
	require.Error(t, err)
	assert.Equal(t, "missing signing key", err.Error())

	_, err = c.run("pixel", "put", "1", "1", "7", "--key", c.path("missing.json"))
	require.Error(t, err)
	assert.Equal(t, "key file not found", err.Error())

	_, err = c.run("pixel", "get", "1", "1", "--tier", "warp")
	require.Error(t, err)
	assert.Equal(t, "invalid tier", err.Error())
}

func TestDelegateWriteCommit(t *testing.T) {
	c := newCLI(t)
	root, authority := c.user()
	session := "session:" + string(root)

	c.mustRun("shard", "create", "0", "0", "--key", authority)
	c.mustRun("pixel", "put", "1", "1", "7", "--key", authority)

	c.mustRun("delegate", "shard:0:0", session, "--key", authority)

	out := c.mustRun("delegations", "-o", "jsonl")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var shardDelegation *ledger.Delegation
	for _, line := range lines {
		var d ledger.Delegation
		require.NoError(t, json.Unmarshal([]byte(line), &d))
		if d.Resource.Kind == canvas.ResourceShard {
			shardDelegation = &d
		}
	}
	require.NotNil(t, shardDelegation)
	assert.Equal(t, canvas.ShardResource(0, 0), shardDelegation.Resource)

	_, err := c.run("pixel", "put", "1", "1", "3", "--key", authority)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WrongTier")

	c.mustRun("pixel", "put", "1", "1", "3", "--key", authority, "--tier", "fast")
	assert.Equal(t, "3", strings.TrimSpace(c.mustRun("pixel", "get", "1", "1", "--tier", "fast")))

	c.mustRun("await", "shard:0:0", "--state", "delegated", "--timeout", "1s")

	// The shard named twice, by delegation ID prefix and by resource; the
	// session later by resource alone.
	c.mustRun("commit", shardDelegation.ID[:8], "shard:0:0")
	_, err = c.run("commit", "shard:0:0")
	require.Error(t, err)
	assert.Equal(t, "delegation not found", err.Error())

	_, err = c.run("pixel", "put", "2", "2", "5", "--key", authority)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WrongTier")

	c.mustRun("commit", session)

	assert.Equal(t, "3", strings.TrimSpace(c.mustRun("pixel", "get", "1", "1")))
	c.mustRun("pixel", "put", "2", "2", "5", "--key", authority)
	c.mustRun("await", "shard:0:0", "--state", "durable", "--timeout", "1s")
	assert.Empty(t, strings.TrimSpace(c.mustRun("delegations", "-o", "jsonl")))
}

func TestDelegate_InvalidResource(t *testing.T) {
	c := newCLI(t)
	_, authority := c.user()

	_, err := c.run("delegate", "tile:0:0", "--key", authority)
	require.Error(t, err)
	assert.Equal(t, "invalid resource", err.Error())
}

func TestInvalidConfig(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, writeFile(c.config, "version: \"1.0\"\nlogging:\n  level: loud\n"))

	_, err := c.run("pixel", "get", "0", "0")
	require.Error(t, err)
	assert.Equal(t, "invalid configuration", err.Error())
}

func TestRedisUnavailable(t *testing.T) {
	c := newCLI(t)
	c.mr.Close()

	_, err := c.run("pixel", "get", "0", "0")
	require.Error(t, err)
	assert.Equal(t, "Redis connection failed", err.Error())
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func TestInitWorkspace(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init", "--dir", c.dir)

	// The generated keys and configuration drive the rest of the CLI.
	c.mustRun("session", "bind",
		"--root", filepath.Join(c.dir, "keys", "root.json"),
		"--authority", filepath.Join(c.dir, "keys", "authority.json"))
	c.mustRun("shard", "create", "0", "0", "--key", filepath.Join(c.dir, "keys", "authority.json"))

	_, err := c.run("init", "--dir", c.dir)
	require.Error(t, err)
	assert.Equal(t, "workspace already initialized", err.Error())

	c.mustRun("init", "--dir", c.dir, "--force")
}
