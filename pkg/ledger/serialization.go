package ledger

import (
	"fmt"
	"strconv"

	"github.com/dyluth/tessera/pkg/canvas"
)

// Serialization helpers for converting between canvas records and Redis hashes.
//
// Scalar fields map one-to-one onto hash fields so that the tier and cooldown
// state stay individually readable with HGET. The packed pixel buffer is stored
// as a single binary-safe field.

// SessionToHash converts a SessionRecord to a Redis hash.
func SessionToHash(s *canvas.SessionRecord) map[string]interface{} {
	return map[string]interface{}{
		"root_identity":     string(s.RootIdentity),
		"session_authority": string(s.SessionAuthority),
		"cooldown_counter":  s.CooldownCounter,
		"last_write_time":   s.LastWriteTime,
		"owned_shard_count": s.OwnedShardCount,
		"tier":              string(s.Tier),
		"created_at_ms":     s.CreatedAtMs,
	}
}

// HashToSession converts a Redis hash to a SessionRecord.
func HashToSession(hash map[string]string) (*canvas.SessionRecord, error) {
	counter, err := strconv.ParseUint(hash["cooldown_counter"], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid cooldown_counter field: %w", err)
	}

	lastWrite, err := strconv.ParseUint(hash["last_write_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid last_write_time field: %w", err)
	}

	owned, err := strconv.ParseUint(hash["owned_shard_count"], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid owned_shard_count field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &canvas.SessionRecord{
		RootIdentity:     canvas.Identity(hash["root_identity"]),
		SessionAuthority: canvas.Identity(hash["session_authority"]),
		CooldownCounter:  uint8(counter),
		LastWriteTime:    lastWrite,
		OwnedShardCount:  uint32(owned),
		Tier:             canvas.TierState(hash["tier"]),
		CreatedAtMs:      createdAtMs,
	}, nil
}

// ShardToHash converts a ShardRecord to a Redis hash.
func ShardToHash(s *canvas.ShardRecord) map[string]interface{} {
	return map[string]interface{}{
		"shard_x":       s.ShardX,
		"shard_y":       s.ShardY,
		"pixels":        s.Pixels,
		"creator":       string(s.Creator),
		"tier":          string(s.Tier),
		"created_at_ms": s.CreatedAtMs,
	}
}

// HashToShard converts a Redis hash to a ShardRecord.
func HashToShard(hash map[string]string) (*canvas.ShardRecord, error) {
	sx, err := strconv.ParseUint(hash["shard_x"], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid shard_x field: %w", err)
	}

	sy, err := strconv.ParseUint(hash["shard_y"], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid shard_y field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &canvas.ShardRecord{
		ShardX:      uint16(sx),
		ShardY:      uint16(sy),
		Pixels:      []byte(hash["pixels"]),
		Creator:     canvas.Identity(hash["creator"]),
		Tier:        canvas.TierState(hash["tier"]),
		CreatedAtMs: createdAtMs,
	}, nil
}
