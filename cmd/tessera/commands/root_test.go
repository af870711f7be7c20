package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding when invoked without a subcommand
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	root := NewRootCmd()

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{})

	err := root.Execute()

	assert.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Usage:", "Help should be displayed")
	assert.Contains(t, output, "tessera", "Help should show command name")
	assert.Contains(t, output, "delegate", "Help should list subcommands")
}

// TestRootCommand_RejectsUnknownFlags tests that unknown flags
// passed to the root command cause an error instead of being silently ignored
func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"--unknown-flag", "value"})

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)

	err := root.Execute()
	assert.Error(t, err, "Unknown flag should cause an error")
	assert.Contains(t, err.Error(), "unknown flag", "Error should mention unknown flag")
}

// TestRootCommand_RejectsSubcommandFlags tests that flags meant for
// subcommands (like --tier) are rejected when passed to root command
func TestRootCommand_RejectsSubcommandFlags(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"--tier", "fast"})

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)

	err := root.Execute()
	assert.Error(t, err, "Subcommand flag passed to root should cause error")
	assert.Contains(t, err.Error(), "unknown flag: --tier")
}

// TestRootCommand_FreshFlagState tests that each tree starts from defaults.
func TestRootCommand_FreshFlagState(t *testing.T) {
	first := NewRootCmd()
	require.NoError(t, first.PersistentFlags().Set("config", "other.yml"))

	second := NewRootCmd()
	assert.Equal(t, "tessera.yml", second.PersistentFlags().Lookup("config").Value.String())
}

func TestParseShardFlag(t *testing.T) {
	shard, err := parseShardFlag("3, 4")
	require.NoError(t, err)
	assert.Equal(t, &[2]uint16{3, 4}, shard)

	shard, err = parseShardFlag("")
	require.NoError(t, err)
	assert.Nil(t, shard)

	_, err = parseShardFlag("3")
	assert.Error(t, err)

	_, err = parseShardFlag("3,70000")
	assert.Error(t, err)
}

func TestParsePixelArgs(t *testing.T) {
	px, py, err := parsePixelArgs([]string{"12", "40"})
	require.NoError(t, err)
	assert.Equal(t, uint32(12), px)
	assert.Equal(t, uint32(40), py)

	_, _, err = parsePixelArgs([]string{"-1", "0"})
	assert.Error(t, err)
}
