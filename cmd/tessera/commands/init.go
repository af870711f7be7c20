package commands

import (
	"fmt"
	"path/filepath"

	"github.com/dyluth/tessera/internal/git"
	"github.com/dyluth/tessera/internal/printer"
	"github.com/dyluth/tessera/internal/scaffold"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var force bool
	var dir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a Tessera workspace",
		Long: `Initialize a workspace with default configuration and a pair of identities.

Creates:
  • tessera.yml - Canvas, cooldown, ledger and fast tier configuration
  • keys/root.json - Root identity
  • keys/authority.json - Session authority for that root

If the workspace is inside a Git repository, init warns when keys/ is not
ignored or already tracked.

Use --force to reinitialize an existing workspace (WARNING: replaces the keys).`,
		Args: cobra.NoArgs,
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			if !force {
				if err := scaffold.CheckExisting(dir); err != nil {
					return printer.Error("workspace already initialized", err.Error(), nil)
				}
			}

			if err := scaffold.Initialize(dir, force); err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			scaffold.PrintSuccess()

			exposure, err := git.NewChecker(dir).CheckKeys(scaffold.KeysDir)
			if err != nil {
				printer.Warning("Could not check Git ignore rules: %v\n", err)
				return nil
			}
			if len(exposure.Tracked) > 0 {
				printer.Warning("Key files are tracked by Git: %v\n", exposure.Tracked)
				printer.Info("  Remove them from the index: git rm --cached -r %s\n", filepath.Join(dir, scaffold.KeysDir))
			} else if exposure.NotIgnored {
				printer.Warning("%s/ is not in .gitignore; private keys could be committed\n", scaffold.KeysDir)
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&force, "force", false, "Force reinitialization (replaces tessera.yml and keys/)")
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to initialize")
	return cmd
}
