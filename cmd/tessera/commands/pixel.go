package commands

import (
	"fmt"
	"strconv"

	"github.com/dyluth/tessera/internal/engine"
	"github.com/dyluth/tessera/internal/printer"
	"github.com/spf13/cobra"
)

func newPixelCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pixel",
		Short: "Paint, erase and read pixels",
	}
	cmd.AddCommand(newPixelPutCmd(opts), newPixelEraseCmd(opts), newPixelGetCmd(opts))
	return cmd
}

// pixelTarget resolves the shard a pixel write names. An explicit --shard is
// passed through unchanged so the engine can reject a mismatch.
func pixelTarget(e *env, px, py uint32, shardFlag string) (uint16, uint16, error) {
	explicit, err := parseShardFlag(shardFlag)
	if err != nil {
		return 0, 0, err
	}
	if explicit != nil {
		return explicit[0], explicit[1], nil
	}
	return e.cfg.Geometry().ShardOf(px, py)
}

func newPixelPutCmd(opts *globalOptions) *cobra.Command {
	var keyPath, tier, shard string

	cmd := &cobra.Command{
		Use:   "put PX PY COLOR",
		Short: "Paint one pixel",
		Long: `Paint pixel (PX, PY) with COLOR.

The write is signed by a session authority and counts against the session's
cooldown unless the session's root created the shard. Use --tier fast for
resources that have been delegated.

Examples:
  tessera pixel put 12 40 7 --key authority.json
  tessera pixel put 12 40 7 --key authority.json --tier fast`,
		Args: cobra.ExactArgs(3),
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			px, py, err := parsePixelArgs(args[:2])
			if err != nil {
				return err
			}
			color, err := strconv.ParseUint(args[2], 10, 8)
			if err != nil {
				return invalidArg("color", args[2], "0-255")
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

			eng, err := e.engineFor(tier)
			if err != nil {
				return err
			}
			sx, sy, err := pixelTarget(e, px, py, shard)
			if err != nil {
				return printer.CanvasError(err, nil)
			}

			err = eng.WritePixel(ctx, engine.WriteRequest{
				Signer: signer,
				ShardX: sx,
				ShardY: sy,
				PX:     px,
				PY:     py,
				Color:  uint8(color),
			})
			if err != nil {
				return printer.CanvasError(err, map[string]string{
					"Pixel": fmt.Sprintf("(%d, %d)", px, py),
					"Tier":  tier,
				})
			}

			printer.Success("Pixel (%d, %d) = %d\n", px, py, color)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "Session authority key file")
	cmd.Flags().StringVar(&tier, "tier", tierDurable, "Tier to write to: durable or fast")
	cmd.Flags().StringVar(&shard, "shard", "", "Shard the pixel lives in as SX,SY (derived when omitted)")
	return cmd
}

func newPixelEraseCmd(opts *globalOptions) *cobra.Command {
	var keyPath, tier, shard string

	cmd := &cobra.Command{
		Use:   "erase PX PY",
		Short: "Reset one pixel to 0",
		Args:  cobra.ExactArgs(2),
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			px, py, err := parsePixelArgs(args)
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

			eng, err := e.engineFor(tier)
			if err != nil {
				return err
			}
			sx, sy, err := pixelTarget(e, px, py, shard)
			if err != nil {
				return printer.CanvasError(err, nil)
			}

			if err := eng.ErasePixel(ctx, signer, sx, sy, px, py); err != nil {
				return printer.CanvasError(err, map[string]string{
					"Pixel": fmt.Sprintf("(%d, %d)", px, py),
					"Tier":  tier,
				})
			}

			printer.Success("Pixel (%d, %d) erased\n", px, py)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "Session authority key file")
	cmd.Flags().StringVar(&tier, "tier", tierDurable, "Tier to write to: durable or fast")
	cmd.Flags().StringVar(&shard, "shard", "", "Shard the pixel lives in as SX,SY (derived when omitted)")
	return cmd
}

func newPixelGetCmd(opts *globalOptions) *cobra.Command {
	var tier string

	cmd := &cobra.Command{
		Use:   "get PX PY",
		Short: "Read one pixel",
		Long: `Print the color at (PX, PY). Pixels in shards that were never created read as 0.

Example:
  tessera pixel get 12 40`,
		Args: cobra.ExactArgs(2),
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			px, py, err := parsePixelArgs(args)
			if err != nil {
				return err
			}

			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			eng, err := e.engineFor(tier)
			if err != nil {
				return err
			}

			color, err := eng.ReadPixel(ctx, px, py)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color)
			return nil
		}),
	}

	cmd.Flags().StringVar(&tier, "tier", tierDurable, "Tier to read from: durable or fast")
	return cmd
}
