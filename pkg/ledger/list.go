package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/dyluth/tessera/pkg/canvas"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

func sortShards(out []*canvas.ShardRecord) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShardY == out[j].ShardY {
			return out[i].ShardX < out[j].ShardX
		}
		return out[i].ShardY < out[j].ShardY
	})
}

// ListShards returns every materialized shard in row-major order.
// Uses SCAN so a large canvas does not block the server.
func (c *Client) ListShards(ctx context.Context) ([]*canvas.ShardRecord, error) {
	pattern := fmt.Sprintf("tessera:%s:shard:*", c.instanceName)
	iter := c.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()

	var shards []*canvas.ShardRecord
	for iter.Next(ctx) {
		key := iter.Val()
		hashData, err := c.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if len(hashData) == 0 {
			continue // removed between SCAN and HGETALL
		}
		shard, err := HashToShard(hashData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize %s: %w", key, err)
		}
		shards = append(shards, shard)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan shards: %w", err)
	}

	sortShards(shards)
	return shards, nil
}

// ListShards returns every shard in row-major order.
func (m *Memory) ListShards(_ context.Context) ([]*canvas.ShardRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	shards := make([]*canvas.ShardRecord, 0, len(m.shards))
	for _, s := range m.shards {
		shards = append(shards, cloneShard(s))
	}
	sortShards(shards)
	return shards, nil
}
