package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
)

// OutputFormat specifies how streamed events are written.
type OutputFormat string

const (
	// OutputFormatDefault is human-readable with timestamps and emojis
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON is line-delimited JSON, one event per line
	OutputFormatJSON OutputFormat = "json"
)

// Source publishes canvas events. Implemented by *ledger.Client.
type Source interface {
	SubscribePixelEvents(ctx context.Context) (*ledger.Subscription[canvas.PixelChanged], error)
	SubscribeShardEvents(ctx context.Context) (*ledger.Subscription[canvas.ShardInitialized], error)
}

// TierReader reports which tier owns a record.
type TierReader interface {
	Tier(ctx context.Context, r canvas.Resource) (canvas.TierState, error)
}

// Filter narrows a stream. The zero value passes everything.
type Filter struct {
	Shard  *[2]uint16      // Only events inside this shard
	Writer canvas.Identity // Only pixel events by this session authority; shard events pass
}

// event is the JSON envelope for OutputFormatJSON.
type event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// StreamActivity writes pixel and shard events from src to w until ctx is
// cancelled. Subscription errors (malformed payloads) are reported inline and
// do not stop the stream.
func StreamActivity(ctx context.Context, src Source, geometry canvas.Geometry, filter Filter, format OutputFormat, w io.Writer) error {
	pixels, err := src.SubscribePixelEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to pixel events: %w", err)
	}
	defer pixels.Close()

	shards, err := src.SubscribeShardEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to shard events: %w", err)
	}
	defer shards.Close()

	if format == OutputFormatDefault {
		fmt.Fprintf(w, "👀 Watching canvas activity (Ctrl+C to stop)...\n")
	}

	pixelEvents, shardEvents := pixels.Events(), shards.Events()
	pixelErrs, shardErrs := pixels.Errors(), shards.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-pixelEvents:
			if !ok {
				return closed(ctx, "pixel")
			}
			if !filter.matchesPixel(geometry, ev) {
				continue
			}
			if err := writeEvent(w, format, "pixel_changed", ev, formatPixel(ev)); err != nil {
				return err
			}

		case ev, ok := <-shardEvents:
			if !ok {
				return closed(ctx, "shard")
			}
			if !filter.matchesShard(ev) {
				continue
			}
			if err := writeEvent(w, format, "shard_initialized", ev, formatShard(ev)); err != nil {
				return err
			}

		case err, ok := <-pixelErrs:
			if ok {
				fmt.Fprintf(w, "⚠️  %v\n", err)
			} else {
				pixelErrs = nil
			}

		case err, ok := <-shardErrs:
			if ok {
				fmt.Fprintf(w, "⚠️  %v\n", err)
			} else {
				shardErrs = nil
			}
		}
	}
}

// closed reports a subscription ending on its own as an error.
func closed(ctx context.Context, label string) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%s subscription closed unexpectedly", label)
}

func (f Filter) matchesPixel(g canvas.Geometry, ev *canvas.PixelChanged) bool {
	if f.Writer != "" && ev.WriterIdentity != f.Writer {
		return false
	}
	if f.Shard != nil {
		sx, sy, err := g.ShardOf(ev.PX, ev.PY)
		if err != nil || sx != f.Shard[0] || sy != f.Shard[1] {
			return false
		}
	}
	return true
}

func (f Filter) matchesShard(ev *canvas.ShardInitialized) bool {
	return f.Shard == nil || (ev.ShardX == f.Shard[0] && ev.ShardY == f.Shard[1])
}

func writeEvent(w io.Writer, format OutputFormat, name string, data any, line string) error {
	if format == OutputFormatJSON {
		out, err := json.Marshal(event{Event: name, Data: data})
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", name, err)
		}
		_, err = fmt.Fprintf(w, "%s\n", out)
		return err
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func formatPixel(ev *canvas.PixelChanged) string {
	action := fmt.Sprintf("🎨 Pixel (%d, %d) = %d", ev.PX, ev.PY, ev.Color)
	if ev.Color == 0 {
		action = fmt.Sprintf("🧽 Pixel (%d, %d) erased", ev.PX, ev.PY)
	}
	return fmt.Sprintf("[%s] %s by=%s", formatTime(ev.Timestamp), action, shortID(ev.WriterIdentity))
}

func formatShard(ev *canvas.ShardInitialized) string {
	return fmt.Sprintf("[%s] 🧩 Shard (%d, %d) initialized by=%s",
		formatTime(ev.Timestamp), ev.ShardX, ev.ShardY, shortID(ev.Creator))
}

func formatTime(unix uint64) string {
	return time.Unix(int64(unix), 0).UTC().Format("15:04:05")
}

// shortID truncates an identity to its first 8 characters for display.
func shortID(id canvas.Identity) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// PollForTier polls until r is owned by the wanted tier.
// Polls every 200ms for the specified timeout duration.
func PollForTier(ctx context.Context, store TierReader, r canvas.Resource, want canvas.TierState, timeout time.Duration) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		tier, err := store.Tier(ctx, r)
		if err != nil && !ledger.IsNotFound(err) {
			return fmt.Errorf("failed to query tier of %s: %w", r, err)
		}
		if err == nil && tier == want {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeoutCh:
			return fmt.Errorf("timeout waiting for %s to become %s after %v", r, want, timeout)
		case <-ticker.C:
		}
	}
}
