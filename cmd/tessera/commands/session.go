package commands

import (
	"fmt"

	"github.com/dyluth/tessera/internal/identity"
	"github.com/dyluth/tessera/internal/inspect"
	"github.com/dyluth/tessera/internal/printer"
	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/spf13/cobra"
)

func newSessionCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Bind and inspect sessions",
	}
	cmd.AddCommand(newSessionBindCmd(opts), newSessionShowCmd(opts))
	return cmd
}

func newSessionBindCmd(opts *globalOptions) *cobra.Command {
	var rootPath, authorityPath string

	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Bind a session authority to a root identity",
		Long: `Bind a session authority to a root identity on the durable ledger.

The root key signs a proof naming the authority; the ledger verifies it and
creates the session. Each root identity may bind one session, and each
authority may serve one root.

Example:
  tessera session bind --root root.json --authority authority.json`,
		Args: cobra.NoArgs,
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			root, err := identity.LoadKeyPair(rootPath)
			if err != nil {
				return err
			}
			authority, err := identity.LoadKeyPair(authorityPath)
			if err != nil {
				return err
			}

			proof, err := identity.MakeProof(root.Private, authority.Identity())
			if err != nil {
				return err
			}

			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			session, err := e.durable.BindSession(ctx, root.Identity(), authority.Identity(), proof)
			if err != nil {
				return printer.CanvasError(err, map[string]string{"Root": string(root.Identity())})
			}

			printer.Success("Session bound on instance '%s'\n", e.cfg.Ledger.Instance)
			printer.Info("  Root:      %s\n", session.RootIdentity)
			printer.Info("  Authority: %s\n", session.SessionAuthority)
			return nil
		}),
	}

	cmd.Flags().StringVar(&rootPath, "root", "", "Root identity key file")
	cmd.Flags().StringVar(&authorityPath, "authority", "", "Session authority key file")
	cmd.MarkFlagRequired("root")
	cmd.MarkFlagRequired("authority")
	return cmd
}

func newSessionShowCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	var tier string

	cmd := &cobra.Command{
		Use:   "show ROOT_IDENTITY",
		Short: "Show a session record",
		Args:  cobra.ExactArgs(1),
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			var store inspect.RecordGetter = e.ledger
			if tier == tierFast {
				store = e.fastStore
			}

			err = inspect.GetSession(ctx, store, e.cfg.CooldownPolicy(), canvas.Identity(args[0]), asJSON, cmd.OutOrStdout())
			if inspect.IsNotFound(err) {
				return printer.Error(
					"session not found",
					fmt.Sprintf("No session on the %s tier for %s", orDefault(tier, tierDurable), args[0]),
					[]string{"Bind one first:\n  tessera session bind --root root.json --authority authority.json"},
				)
			}
			return err
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")
	cmd.Flags().StringVar(&tier, "tier", tierDurable, "Tier to read from: durable or fast")
	return cmd
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
