package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dyluth/tessera/internal/printer"
)

// parseShardArgs parses "SX SY" positional arguments.
func parseShardArgs(args []string) (uint16, uint16, error) {
	sx, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return 0, 0, invalidArg("shard x", args[0], "0-65535")
	}
	sy, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return 0, 0, invalidArg("shard y", args[1], "0-65535")
	}
	return uint16(sx), uint16(sy), nil
}

// parsePixelArgs parses "PX PY" positional arguments.
func parsePixelArgs(args []string) (uint32, uint32, error) {
	px, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, 0, invalidArg("pixel x", args[0], "a non-negative integer")
	}
	py, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return 0, 0, invalidArg("pixel y", args[1], "a non-negative integer")
	}
	return uint32(px), uint32(py), nil
}

// parseShardFlag parses a "SX,SY" flag value. Empty means unset.
func parseShardFlag(s string) (*[2]uint16, error) {
	if s == "" {
		return nil, nil
	}
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return nil, invalidArg("--shard", s, "SX,SY")
	}
	sx, sy, err := parseShardArgs([]string{strings.TrimSpace(xs), strings.TrimSpace(ys)})
	if err != nil {
		return nil, err
	}
	return &[2]uint16{sx, sy}, nil
}

func invalidArg(name, value, want string) error {
	return printer.Error(
		fmt.Sprintf("invalid %s", name),
		fmt.Sprintf("Could not parse '%s'", value),
		[]string{"Expected " + want},
	)
}
