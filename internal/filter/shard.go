// Package filter narrows shard listings.
package filter

import (
	"path/filepath"

	"github.com/dyluth/tessera/pkg/canvas"
)

// Criteria defines filtering criteria for shards.
// All filters are ANDed together - a shard must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64            // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64            // Unix timestamp in milliseconds, 0 = no filter
	CreatorGlob      string           // Glob pattern for the creator identity, empty = no filter
	Tier             canvas.TierState // Exact tier match, empty = no filter
}

// Matches returns true if the shard matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(s *canvas.ShardRecord) bool {
	// Time filtering - check CreatedAtMs field
	if c.SinceTimestampMs > 0 && s.CreatedAtMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && s.CreatedAtMs > c.UntilTimestampMs {
		return false
	}

	// Creator filtering - glob pattern matching, so a plain identity is an exact match
	if c.CreatorGlob != "" {
		matched, err := filepath.Match(c.CreatorGlob, string(s.Creator))
		if err != nil || !matched {
			return false
		}
	}

	if c.Tier != "" && s.Tier != c.Tier {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.CreatorGlob != "" ||
		c.Tier != ""
}
