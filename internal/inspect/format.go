package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
)

// now is replaced in tests to make relative ages deterministic.
var now = time.Now

// FormatShardTable writes shards as a formatted table to the provided writer.
// Returns the number of shards formatted.
func FormatShardTable(w io.Writer, shards []*canvas.ShardRecord, geometry canvas.Geometry, instanceName string) int {
	if len(shards) == 0 {
		fmt.Fprintf(w, "No shards found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Shards for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-12s %-10s %-10s %-8s %s\n",
		"SHARD", "CREATOR", "TIER", "AGE", "PAINTED")
	fmt.Fprintf(w, "%-12s %-10s %-10s %-8s %s\n",
		"------------", "----------", "----------", "--------", "----------")

	for _, s := range shards {
		fmt.Fprintf(w, "%-12s %-10s %-10s %-8s %s\n",
			fmt.Sprintf("(%d, %d)", s.ShardX, s.ShardY),
			formatIdentity(s.Creator),
			s.Tier,
			formatTimestamp(s.CreatedAtMs),
			formatPainted(painted(s, geometry), geometry.PixelsPerShard()),
		)
	}

	countMsg := "shard"
	if len(shards) != 1 {
		countMsg = "shards"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(shards), countMsg)

	return len(shards)
}

// FormatDelegationTable writes fast tier delegations as a formatted table.
// Returns the number of delegations formatted.
func FormatDelegationTable(w io.Writer, delegations []*ledger.Delegation, instanceName string) int {
	if len(delegations) == 0 {
		fmt.Fprintf(w, "No delegations held by '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Delegations held by '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-24s %-10s %-12s %-8s %s\n",
		"ID", "RESOURCE", "OWNER", "TARGET", "AGE", "ADDRESS")
	fmt.Fprintf(w, "%-10s %-24s %-10s %-12s %-8s %s\n",
		"----------", "------------------------", "----------", "------------", "--------", "----------------")

	for _, d := range delegations {
		fmt.Fprintf(w, "%-10s %-24s %-10s %-12s %-8s %s\n",
			formatID(d.ID),
			formatResource(d.Resource),
			formatIdentity(d.OwnerAuthority),
			orDash(d.Target),
			formatTimestamp(d.DelegatedAtMs),
			formatAddress(d.Address),
		)
	}

	countMsg := "delegation"
	if len(delegations) != 1 {
		countMsg = "delegations"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(delegations), countMsg)

	return len(delegations)
}

// FormatSession writes a session record as labelled lines.
func FormatSession(w io.Writer, s *canvas.SessionRecord, cooldown canvas.Cooldown) {
	fmt.Fprintf(w, "Root identity:      %s\n", s.RootIdentity)
	fmt.Fprintf(w, "Session authority:  %s\n", s.SessionAuthority)
	fmt.Fprintf(w, "Tier:               %s\n", s.Tier)
	fmt.Fprintf(w, "Owned shards:       %d\n", s.OwnedShardCount)
	fmt.Fprintf(w, "Cooldown:           %s\n", formatCooldown(s, cooldown, uint64(now().Unix())))
	fmt.Fprintf(w, "Created:            %s\n", formatTimestamp(s.CreatedAtMs))
}

// FormatShard writes a shard summary: coordinates, ownership, and the
// palette entries in use, most frequent first.
func FormatShard(w io.Writer, s *canvas.ShardRecord, geometry canvas.Geometry) {
	x0, y0 := geometry.PixelAt(s.ShardX, s.ShardY, 0)
	dim := geometry.ShardDimension

	fmt.Fprintf(w, "Shard:     (%d, %d)\n", s.ShardX, s.ShardY)
	fmt.Fprintf(w, "Pixels:    (%d, %d) to (%d, %d)\n", x0, y0, x0+dim-1, y0+dim-1)
	fmt.Fprintf(w, "Creator:   %s\n", s.Creator)
	fmt.Fprintf(w, "Tier:      %s\n", s.Tier)
	fmt.Fprintf(w, "Created:   %s\n", formatTimestamp(s.CreatedAtMs))
	fmt.Fprintf(w, "Painted:   %s\n", formatPainted(painted(s, geometry), geometry.PixelsPerShard()))

	hist := histogram(s, geometry)
	if len(hist) == 0 {
		return
	}
	fmt.Fprintf(w, "Palette:  ")
	for _, e := range hist {
		fmt.Fprintf(w, " %d×%d", e.color, e.count)
	}
	fmt.Fprintln(w)
}

// FormatShardGrid draws the shard one character per pixel: '.' for unset,
// otherwise the color in hex for 4-bit canvases or base-36 bucketed for 8-bit.
func FormatShardGrid(w io.Writer, s *canvas.ShardRecord, geometry canvas.Geometry) {
	if len(s.Pixels) != geometry.BufferLen() {
		fmt.Fprintf(w, "pixel buffer is %d bytes, want %d\n", len(s.Pixels), geometry.BufferLen())
		return
	}

	dim := int(geometry.ShardDimension)
	var line strings.Builder
	for y := 0; y < dim; y++ {
		line.Reset()
		for x := 0; x < dim; x++ {
			line.WriteByte(glyph(geometry.BitDepth.Get(s.Pixels, y*dim+x), geometry.BitDepth))
		}
		fmt.Fprintln(w, line.String())
	}
}

const glyphs = "0123456789abcdefghijklmnopqrstuvwxyz"

func glyph(color uint8, depth canvas.BitDepth) byte {
	if color == 0 {
		return '.'
	}
	if depth == canvas.BitDepth4 {
		return glyphs[color]
	}
	// 1..255 onto 1..35
	return glyphs[1+int(color-1)*35/255]
}

// FormatJSONL writes each value as a single JSON object on its own line.
// This format is ideal for streaming and processing with tools like jq.
func FormatJSONL[T any](w io.Writer, values []T) error {
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes a single value as pretty-printed JSON to the provided writer.
func FormatSingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	// Add newline for clean output
	fmt.Fprintln(w)

	return nil
}

type colorCount struct {
	color uint8
	count int
}

func histogram(s *canvas.ShardRecord, geometry canvas.Geometry) []colorCount {
	var counts [256]int
	n := geometry.PixelsPerShard()
	if len(s.Pixels) != geometry.BufferLen() {
		return nil
	}
	for i := 0; i < n; i++ {
		counts[geometry.BitDepth.Get(s.Pixels, i)]++
	}

	var out []colorCount
	for c := 1; c < len(counts); c++ {
		if counts[c] > 0 {
			out = append(out, colorCount{color: uint8(c), count: counts[c]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	return out
}

func painted(s *canvas.ShardRecord, geometry canvas.Geometry) int {
	total := 0
	for _, e := range histogram(s, geometry) {
		total += e.count
	}
	return total
}

func formatPainted(n, total int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d (%.1f%%)", n, total, float64(n)*100/float64(total))
}

// formatCooldown describes where a session sits in its write window.
func formatCooldown(s *canvas.SessionRecord, c canvas.Cooldown, nowUnix uint64) string {
	if s.CooldownCounter < c.BurstLimit {
		return fmt.Sprintf("%d/%d writes used", s.CooldownCounter, c.BurstLimit)
	}
	window := uint64(c.Window / time.Second)
	elapsed := uint64(0)
	if nowUnix > s.LastWriteTime {
		elapsed = nowUnix - s.LastWriteTime
	}
	if elapsed >= window {
		return fmt.Sprintf("0/%d writes used (window reset)", c.BurstLimit)
	}
	return fmt.Sprintf("locked, %ds remaining", window-elapsed)
}

// formatID truncates an ID to its first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatIdentity(id canvas.Identity) string {
	if id == "" {
		return "-"
	}
	return formatID(string(id))
}

func formatResource(r canvas.Resource) string {
	if r.Kind == canvas.ResourceSession {
		return "session:" + formatID(string(r.Root))
	}
	return r.String()
}

// formatAddress shortens a hex address to its first and last 6 characters.
func formatAddress(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatTimestamp formats Unix timestamp in milliseconds as a relative age,
// like "2m ago" or "1h ago".
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	t := time.UnixMilli(timestampMs)
	diff := now().Sub(t)

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}
