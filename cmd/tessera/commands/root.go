package commands

import (
	"fmt"

	"github.com/dyluth/tessera/internal/config"
	"github.com/dyluth/tessera/internal/printer"
	"github.com/spf13/cobra"
)

var versionString = "dev"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
}

// NewRootCmd builds the full command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "tessera",
		Short: "Tessera - sharded collaborative pixel canvas",
		Long: `Tessera is a sharded, collaborative pixel canvas.

The canvas is cut into fixed-size shards that are materialized on demand.
Writes are signed by session authorities bound to root identities and are
rate limited per session. Shards and sessions can be delegated to a fast
tier for high-throughput painting and committed back to the durable ledger.

Both tiers keep their records in Redis, namespaced by instance name.`,
		Version: versionString,
		// Prevent silent success when unknown flags are passed to root command
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		// Enable strict flag parsing - unknown flags will cause an error
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Path to tessera.yml (defaults apply if missing)")

	rootCmd.AddCommand(
		newInitCmd(),
		newKeygenCmd(),
		newSessionCmd(opts),
		newShardCmd(opts),
		newPixelCmd(opts),
		newDelegateCmd(opts),
		newCommitCmd(opts),
		newDelegationsCmd(opts),
		newWatchCmd(opts),
		newAwaitCmd(opts),
		newServeCmd(opts),
	)
	return rootCmd
}

// Execute runs the command tree against os.Args.
// This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// printed wraps a RunE so every error reaches the user formatted exactly once.
func printed(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err == nil || printer.IsPrinted(err) {
			return err
		}
		return printer.CanvasError(err, nil)
	}
}
