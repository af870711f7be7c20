package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/dyluth/tessera/internal/identity"
	"github.com/dyluth/tessera/internal/printer"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 identity key file",
		Long: `Generate an Ed25519 keypair and write it to a key file (mode 0600).

The same format serves root identities and session authorities. A root key
binds a session; the authority key signs every write made in that session.

Examples:
  tessera keygen --out root.json
  tessera keygen --out authority.json`,
		Args: cobra.NoArgs,
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			kp, err := identity.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := identity.SaveKeyPair(out, kp); err != nil {
				if errors.Is(err, os.ErrExist) {
					return printer.Error(
						"key file already exists",
						fmt.Sprintf("Refusing to overwrite %s", out),
						[]string{"Choose another path with --out"},
					)
				}
				return err
			}

			printer.Success("Wrote %s\n", out)
			fmt.Fprintln(cmd.OutOrStdout(), kp.Identity())
			return nil
		}),
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Key file to create")
	cmd.MarkFlagRequired("out")
	return cmd
}
