package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/tessera/internal/printer"
	"github.com/dyluth/tessera/internal/watch"
	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var shard, writer, output, tier string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream canvas activity",
		Long: `Stream pixel and shard events as they happen.

Filters:
  --shard SX,SY     Only events inside this shard
  --writer ID       Only pixel writes signed by this session authority

Examples:
  tessera watch
  tessera watch --shard 0,0 -o json
  tessera watch --tier fast`,
		Args: cobra.NoArgs,
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			format := watch.OutputFormat(output)
			if format != watch.OutputFormatDefault && format != watch.OutputFormatJSON {
				return printer.Error(
					"invalid output format",
					fmt.Sprintf("Unknown format: %s", output),
					[]string{"Valid formats: default, json"},
				)
			}
			filterShard, err := parseShardFlag(shard)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			var src watch.Source = e.ledger
			switch tier {
			case tierDurable:
			case tierFast:
				if e.fastClient == nil {
					return printer.Error(
						"fast tier events unavailable",
						"The fast tier runs on an in-process store, which has no event stream.",
						[]string{"Set fast_tier.store: redis in tessera.yml"},
					)
				}
				src = e.fastClient
			default:
				_, err := e.engineFor(tier)
				return err
			}

			filter := watch.Filter{Shard: filterShard, Writer: canvas.Identity(writer)}
			return watch.StreamActivity(ctx, src, e.cfg.Geometry(), filter, format, cmd.OutOrStdout())
		}),
	}

	cmd.Flags().StringVar(&shard, "shard", "", "Only events inside shard SX,SY")
	cmd.Flags().StringVar(&writer, "writer", "", "Only pixel writes by this session authority")
	cmd.Flags().StringVarP(&output, "output", "o", string(watch.OutputFormatDefault), "Output format: default or json")
	cmd.Flags().StringVar(&tier, "tier", tierDurable, "Tier to watch: durable or fast")
	return cmd
}

func newAwaitCmd(opts *globalOptions) *cobra.Command {
	var state string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "await RESOURCE",
		Short: "Wait for a resource to reach a tier state",
		Long: `Block until RESOURCE reaches the given tier state on the durable ledger.

Examples:
  tessera await shard:0:0 --state delegated
  tessera await session:<root> --state durable --timeout 1m`,
		Args: cobra.ExactArgs(1),
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			r, err := canvas.ParseResource(args[0])
			if err != nil {
				return printer.Error("invalid resource", err.Error(),
					[]string{"Use shard:SX:SY or session:ROOT"})
			}
			want := canvas.TierState(state)
			if err := want.Validate(); err != nil {
				return printer.Error("invalid tier state", err.Error(),
					[]string{"Valid states: durable, delegated"})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := watch.PollForTier(ctx, e.ledger, r, want, timeout); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return printer.Error("await failed", err.Error(), nil)
			}

			printer.Success("%s is %s\n", r, want)
			return nil
		}),
	}

	cmd.Flags().StringVar(&state, "state", string(canvas.TierDurable), "Tier state to wait for: durable or delegated")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait")
	return cmd
}
