package commands

import (
	"fmt"
	"time"

	"github.com/dyluth/tessera/internal/filter"
	"github.com/dyluth/tessera/internal/inspect"
	"github.com/dyluth/tessera/internal/printer"
	"github.com/dyluth/tessera/internal/timespec"
	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/spf13/cobra"
)

func newShardCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shard",
		Short: "Create and inspect shards",
	}
	cmd.AddCommand(newShardCreateCmd(opts), newShardShowCmd(opts), newShardListCmd(opts))
	return cmd
}

func newShardCreateCmd(opts *globalOptions) *cobra.Command {
	var keyPath string

	cmd := &cobra.Command{
		Use:   "create SX SY",
		Short: "Materialize a shard",
		Long: `Materialize shard (SX, SY) with every pixel set to 0.

The write is signed by a session authority; the session's root identity
becomes the shard creator and paints the shard without cooldown.

Example:
  tessera shard create 0 0 --key authority.json`,
		Args: cobra.ExactArgs(2),
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sx, sy, err := parseShardArgs(args)
			if err != nil {
				return err
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

			shard, err := e.durable.CreateShard(ctx, signer, sx, sy)
			if err != nil {
				return printer.CanvasError(err, map[string]string{"Shard": fmt.Sprintf("(%d, %d)", sx, sy)})
			}

			printer.Success("Shard (%d, %d) created\n", shard.ShardX, shard.ShardY)
			printer.Info("  Creator: %s\n", shard.Creator)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "Session authority key file")
	return cmd
}

func newShardShowCmd(opts *globalOptions) *cobra.Command {
	var view, tier string

	cmd := &cobra.Command{
		Use:   "show SX SY",
		Short: "Show one shard",
		Long: `Show shard (SX, SY).

Views:
  summary  Owner, tier and a color histogram (default)
  grid     One glyph per pixel, '.' for unpainted
  json     The complete record

Example:
  tessera shard show 0 0 --view grid`,
		Args: cobra.ExactArgs(2),
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sx, sy, err := parseShardArgs(args)
			if err != nil {
				return err
			}

			v := inspect.ShardView(view)
			if v != inspect.ShardViewSummary && v != inspect.ShardViewGrid && v != inspect.ShardViewJSON {
				return printer.Error(
					"invalid view",
					fmt.Sprintf("Unknown view: %s", view),
					[]string{"Valid views: summary, grid, json"},
				)
			}

			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			var store inspect.RecordGetter
			switch tier {
			case tierDurable:
				store = e.ledger
			case tierFast:
				store = e.fastStore
			default:
				_, err := e.engineFor(tier)
				return err
			}

			err = inspect.GetShard(ctx, store, e.cfg.Geometry(), sx, sy, v, cmd.OutOrStdout())
			if inspect.IsNotFound(err) {
				return printer.Error(
					"shard not found",
					fmt.Sprintf("Shard (%d, %d) is not materialized on the %s tier", sx, sy, tier),
					[]string{fmt.Sprintf("Create it first:\n  tessera shard create %d %d --key authority.json", sx, sy)},
				)
			}
			return err
		}),
	}

	cmd.Flags().StringVar(&view, "view", string(inspect.ShardViewSummary), "Output view: summary, grid, or json")
	cmd.Flags().StringVar(&tier, "tier", tierDurable, "Tier to read from: durable or fast")
	return cmd
}

func newShardListCmd(opts *globalOptions) *cobra.Command {
	var creator, tierState, since, until, output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List materialized shards",
		Long: `List every materialized shard on the durable ledger in row-major order.

Filters:
  --creator PATTERN       Only shards whose creator matches this glob
  --tier-state STATE      Only shards in this tier state (durable, delegated)
  --since / --until       Creation time bounds (duration like 1h30m, 2d, or RFC3339)

Examples:
  tessera shard list
  tessera shard list --tier-state delegated
  tessera shard list --since 1h -o jsonl`,
		Args: cobra.NoArgs,
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

			sinceMs, untilMs, err := timespec.ParseRange(since, until, time.Now())
			if err != nil {
				return printer.Error("invalid time range", err.Error(),
					[]string{"Use a duration like 1h30m or 2d, or an RFC3339 timestamp"})
			}

			filters := &filter.Criteria{
				CreatorGlob:      creator,
				SinceTimestampMs: sinceMs,
				UntilTimestampMs: untilMs,
			}
			if tierState != "" {
				filters.Tier = canvas.TierState(tierState)
				if err := filters.Tier.Validate(); err != nil {
					return printer.Error("invalid tier state", err.Error(),
						[]string{"Valid states: durable, delegated"})
				}
			}

			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			return inspect.ListShards(ctx, e.ledger, e.cfg.Geometry(), e.cfg.Ledger.Instance, format, filters, cmd.OutOrStdout())
		}),
	}

	cmd.Flags().StringVar(&creator, "creator", "", "Filter by creator identity (glob pattern)")
	cmd.Flags().StringVar(&tierState, "tier-state", "", "Filter by tier state")
	cmd.Flags().StringVar(&since, "since", "", "Only shards created after this time")
	cmd.Flags().StringVar(&until, "until", "", "Only shards created before this time")
	cmd.Flags().StringVarP(&output, "output", "o", string(inspect.OutputFormatDefault), "Output format: default or jsonl")
	return cmd
}
