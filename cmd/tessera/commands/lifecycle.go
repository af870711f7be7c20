package commands

import (
	"fmt"

	"github.com/dyluth/tessera/internal/config"
	"github.com/dyluth/tessera/internal/inspect"
	"github.com/dyluth/tessera/internal/printer"
	"github.com/dyluth/tessera/internal/resolver"
	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/spf13/cobra"
)

func newDelegateCmd(opts *globalOptions) *cobra.Command {
	var keyPath, target string

	cmd := &cobra.Command{
		Use:   "delegate RESOURCE...",
		Short: "Hand resources to the fast tier",
		Long: `Delegate shards or sessions to the fast tier.

A resource is shard:SX:SY or session:ROOT. Once delegated, writes to the
resource are only accepted on the fast tier until it is committed back.
A session may only be delegated by its own authority; any bound authority
may delegate a shard.

Examples:
  tessera delegate shard:0:0 --key authority.json
  tessera delegate shard:0:0 session:<root> --key authority.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			resources := make([]canvas.Resource, 0, len(args))
			for _, arg := range args {
				r, err := canvas.ParseResource(arg)
				if err != nil {
					return printer.Error("invalid resource", err.Error(),
						[]string{"Use shard:SX:SY or session:ROOT"})
				}
				resources = append(resources, r)
			}
			signer, err := loadSigner(keyPath)
			if err != nil {
				return err
			}

			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			for _, r := range resources {
				addr, err := e.durable.DelegateResource(ctx, signer, r, target)
				if err != nil {
					return printer.CanvasError(err, map[string]string{"Resource": r.String()})
				}
				printer.Success("Delegated %s\n", r)
				printer.Info("  Address: %s\n", addr)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "Session authority key file")
	cmd.Flags().StringVar(&target, "target", "", "Fast tier validator to place the resources on")
	return cmd
}

func newCommitCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit REF...",
		Short: "Commit delegated resources back to the durable ledger",
		Long: `Pull delegated resources back from the fast tier.

A reference is a resource (shard:SX:SY, session:ROOT), a delegation ID or
address, or an unambiguous prefix of at least 6 characters. All references
are committed together: if any of them fails, all stay delegated.

Examples:
  tessera commit shard:0:0
  tessera commit 3f9a1c`,
		Args: cobra.MinimumNArgs(1),
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			resources := make([]canvas.Resource, 0, len(args))
			seen := make(map[canvas.Resource]bool, len(args))
			for _, ref := range args {
				d, err := resolver.ResolveDelegation(ctx, e.fastStore, ref)
				if err != nil {
					if resolver.IsNotFoundError(err) {
						return printer.Error(
							"delegation not found",
							err.Error(),
							[]string{"List held delegations:\n  tessera delegations"},
						)
					}
					if amb, ok := err.(*resolver.AmbiguousError); ok {
						return printer.Error("ambiguous reference", resolver.FormatAmbiguousError(amb), nil)
					}
					return err
				}
				if !seen[d.Resource] {
					seen[d.Resource] = true
					resources = append(resources, d.Resource)
				}
			}

			if err := e.durable.CommitResource(ctx, resources...); err != nil {
				return printer.CanvasError(err, nil)
			}

			for _, r := range resources {
				printer.Success("Committed %s\n", r)
			}
			return nil
		}),
	}
	return cmd
}

func newDelegationsCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "delegations",
		Short: "List resources held by the fast tier",
		Args:  cobra.NoArgs,
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			format := inspect.OutputFormat(output)
			if format != inspect.OutputFormatDefault && format != inspect.OutputFormatJSONL {
				return printer.Error(
					"invalid output format",
					fmt.Sprintf("Unknown format: %s", output),
					[]string{"Valid formats: default, jsonl"},
				)
			}

			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			return inspect.ListDelegations(ctx, e.fastStore, orDefault(e.cfg.FastTier.Instance, config.StoreMemory), format, cmd.OutOrStdout())
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", string(inspect.OutputFormatDefault), "Output format: default or jsonl")
	return cmd
}
