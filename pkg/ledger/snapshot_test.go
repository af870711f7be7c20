package ledger

import (
	"context"
	"testing"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotValidate(t *testing.T) {
	session := newSession(t)
	shard := newShard(t, 2, 3, session.RootIdentity)

	tests := []struct {
		name    string
		snap    *Snapshot
		wantErr bool
	}{
		{"shard", &Snapshot{Resource: shard.Resource(), Shard: shard}, false},
		{"session", &Snapshot{Resource: session.Resource(), Session: session}, false},
		{"empty", &Snapshot{Resource: shard.Resource()}, true},
		{"both records", &Snapshot{Resource: shard.Resource(), Shard: shard, Session: session}, true},
		{"wrong shard", &Snapshot{Resource: canvas.ShardResource(2, 4), Shard: shard}, true},
		{"wrong root", &Snapshot{Resource: canvas.SessionResource(newIdentity(t)), Session: session}, true},
		{"kind mismatch", &Snapshot{Resource: session.Resource(), Shard: shard}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSnapshotEncodeDecode(t *testing.T) {
	shard := newShard(t, 2, 3, newIdentity(t))
	shard.Pixels[17] = 4
	snap := &Snapshot{Resource: shard.Resource(), Shard: shard}

	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)
	assert.Less(t, len(data), len(shard.Pixels), "sparse shard should compress")

	got, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	again, err := EncodeSnapshot(got)
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding is deterministic")
}

func TestSnapshotDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeSnapshot([]byte("definitely not zstd"))
	assert.Error(t, err)
}

func TestSnapshotWithTierCopies(t *testing.T) {
	shard := newShard(t, 0, 0, newIdentity(t))
	snap := &Snapshot{Resource: shard.Resource(), Shard: shard}

	out := snap.WithTier(canvas.TierDelegated)
	out.Shard.Pixels[0] = 1

	assert.Equal(t, canvas.TierDelegated, out.Tier())
	assert.Equal(t, canvas.TierDurable, snap.Tier())
	assert.Equal(t, byte(0), snap.Shard.Pixels[0])
}

func TestMemoryEventLog(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.PublishPixelChanged(ctx, &canvas.PixelChanged{PX: 1, Color: 2}))
	require.NoError(t, m.PublishPixelChanged(ctx, &canvas.PixelChanged{PX: 3, Color: 0}))
	require.NoError(t, m.PublishShardInitialized(ctx, &canvas.ShardInitialized{ShardX: 4}))

	pixels := m.PixelEvents()
	require.Len(t, pixels, 2)
	assert.Equal(t, uint32(1), pixels[0].PX)
	assert.Equal(t, uint8(0), pixels[1].Color)

	pixels[0].PX = 99
	assert.Equal(t, uint32(1), m.PixelEvents()[0].PX, "returned slice is a copy")

	assert.Len(t, m.ShardEvents(), 1)
}
