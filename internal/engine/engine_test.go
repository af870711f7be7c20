package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)

	_, err = New(ledger.NewMemory(), Options{Geometry: canvas.Geometry{Resolution: 10, ShardDimension: 20, BitDepth: canvas.BitDepth8}})
	assert.Error(t, err)

	_, err = New(ledger.NewMemory(), Options{Cooldown: canvas.Cooldown{BurstLimit: 0, Window: 1}})
	assert.Error(t, err)

	eng, err := New(ledger.NewMemory(), Options{})
	require.NoError(t, err)
	assert.Equal(t, canvas.DefaultGeometry(), eng.Geometry())
	assert.Equal(t, canvas.TierDurable, eng.Tier())
}

func TestBindSession(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	alice := newActor(t)

	session, err := f.engine.BindSession(ctx, alice.Root(), alice.Signer(), alice.proof(t))
	require.NoError(t, err)
	assert.Equal(t, alice.Signer(), session.SessionAuthority)
	assert.Equal(t, uint8(0), session.CooldownCounter)

	t.Run("rebinding a root fails", func(t *testing.T) {
		other := newActor(t)
		other.root = alice.root
		_, err := f.engine.BindSession(ctx, alice.Root(), other.Signer(), other.proof(t))
		assert.ErrorIs(t, err, canvas.ErrAlreadyExists)
	})

	t.Run("reusing an authority fails", func(t *testing.T) {
		bob := newActor(t)
		bob.authority = alice.authority
		_, err := f.engine.BindSession(ctx, bob.Root(), bob.Signer(), bob.proof(t))
		assert.ErrorIs(t, err, canvas.ErrAlreadyExists)
	})

	t.Run("proof from another identity", func(t *testing.T) {
		bob, mallory := newActor(t), newActor(t)
		_, err := f.engine.BindSession(ctx, bob.Root(), bob.Signer(), mallory.proof(t))
		assert.ErrorIs(t, err, canvas.ErrInvalidAuth)
	})

	t.Run("missing proof", func(t *testing.T) {
		bob := newActor(t)
		_, err := f.engine.BindSession(ctx, bob.Root(), bob.Signer(), nil)
		assert.ErrorIs(t, err, canvas.ErrInvalidAuth)
		assert.Equal(t, canvas.KindAuthorization, canvas.KindOf(err))
	})
}

func TestCreateShard(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	alice := newActor(t)
	f.bind(t, alice)

	shard, err := f.engine.CreateShard(ctx, alice.Signer(), 4, 9)
	require.NoError(t, err)
	assert.Equal(t, alice.Root(), shard.Creator)
	assert.Len(t, shard.Pixels, 8100)
	assert.Equal(t, canvas.TierDurable, shard.Tier)

	session, err := f.engine.Session(ctx, alice.Root())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), session.OwnedShardCount)

	events := f.store.ShardEvents()
	require.Len(t, events, 1)
	assert.Equal(t, uint16(4), events[0].ShardX)
	assert.Equal(t, uint16(9), events[0].ShardY)
	assert.Equal(t, alice.Root(), events[0].Creator)

	t.Run("create once", func(t *testing.T) {
		_, err := f.engine.CreateShard(ctx, alice.Signer(), 4, 9)
		assert.ErrorIs(t, err, canvas.ErrAlreadyExists)
	})

	t.Run("out of bounds", func(t *testing.T) {
		_, err := f.engine.CreateShard(ctx, alice.Signer(), 5826, 0)
		assert.ErrorIs(t, err, canvas.ErrOutOfBounds)
		assert.ErrorIs(t, err, canvas.ErrInvalidShardCoord)
	})

	t.Run("root key is not the session authority", func(t *testing.T) {
		_, err := f.engine.CreateShard(ctx, alice.Root(), 1, 1)
		assert.ErrorIs(t, err, canvas.ErrInvalidAuth)
	})

	t.Run("unbound signer", func(t *testing.T) {
		_, err := f.engine.CreateShard(ctx, newActor(t).Signer(), 1, 1)
		assert.ErrorIs(t, err, canvas.ErrInvalidAuth)
	})
}

func TestWritePixelCoordinateExamples(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)
	f.shard(t, alice, 1, 0)

	require.NoError(t, f.write(alice, 89, 89, 7))
	require.NoError(t, f.write(alice, 90, 0, 8))

	assert.Equal(t, uint8(7), f.read(t, 89, 89))
	assert.Equal(t, uint8(8), f.read(t, 90, 0))

	s00, err := f.engine.Shard(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(7), s00.Pixels[8099])

	s10, err := f.engine.Shard(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(8), s10.Pixels[0])
}

func TestWritePixelEmitsEvent(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)
	f.clock.Set(1700000000)

	require.NoError(t, f.write(alice, 3, 4, 200))

	events := f.store.PixelEvents()
	require.Len(t, events, 1)
	assert.Equal(t, canvas.PixelChanged{
		PX:             3,
		PY:             4,
		Color:          200,
		WriterIdentity: alice.Signer(),
		RootIdentity:   alice.Root(),
		Timestamp:      1700000000,
	}, events[0])
}

func TestWritePixelRejections(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)

	tests := []struct {
		name    string
		req     WriteRequest
		wantErr error
	}{
		{"pixel off canvas", WriteRequest{Signer: alice.Signer(), PX: 524288, PY: 0, Color: 1}, canvas.ErrInvalidPixelCoord},
		{"shard mismatch", WriteRequest{Signer: alice.Signer(), ShardX: 0, ShardY: 0, PX: 90, PY: 0, Color: 1}, canvas.ErrShardMismatch},
		{"color zero", WriteRequest{Signer: alice.Signer(), PX: 1, PY: 1, Color: 0}, canvas.ErrInvalidColor},
		{"root signs instead of authority", WriteRequest{Signer: alice.Root(), PX: 1, PY: 1, Color: 1}, canvas.ErrInvalidAuth},
		{"unbound signer", WriteRequest{Signer: newActor(t).Signer(), PX: 1, PY: 1, Color: 1}, canvas.ErrInvalidAuth},
		{"unmaterialized shard", WriteRequest{Signer: alice.Signer(), ShardX: 2, ShardY: 2, PX: 180, PY: 180, Color: 1}, canvas.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.WritePixel(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Empty(t, f.store.PixelEvents(), "rejected writes emit nothing")
	assert.Equal(t, uint8(0), f.read(t, 1, 1))
}

func TestInvalidColorForBitDepth(t *testing.T) {
	g := canvas.Geometry{Resolution: 1000, ShardDimension: 100, BitDepth: canvas.BitDepth4}
	f := newFixture(t, g)
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)

	assert.ErrorIs(t, f.write(alice, 0, 0, 16), canvas.ErrInvalidColor)
	assert.NoError(t, f.write(alice, 0, 0, 15))
}

func TestFourBitWritesAreSymmetric(t *testing.T) {
	g := canvas.Geometry{Resolution: 1000, ShardDimension: 100, BitDepth: canvas.BitDepth4}
	f := newFixture(t, g)
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)

	// Local indices 10 and 11 share a byte.
	require.NoError(t, f.write(alice, 11, 0, 9))
	assert.Equal(t, uint8(9), f.read(t, 11, 0), "odd index must be written")
	assert.Equal(t, uint8(0), f.read(t, 10, 0))

	require.NoError(t, f.write(alice, 10, 0, 4))
	assert.Equal(t, uint8(4), f.read(t, 10, 0))
	assert.Equal(t, uint8(9), f.read(t, 11, 0), "neighbour nibble unchanged")

	require.NoError(t, f.engine.ErasePixel(context.Background(), alice.Signer(), 0, 0, 11, 0))
	assert.Equal(t, uint8(4), f.read(t, 10, 0))
	assert.Equal(t, uint8(0), f.read(t, 11, 0))
}

func TestCooldownThroughEngine(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	creator, painter := newActor(t), newActor(t)
	f.bind(t, creator)
	f.bind(t, painter)
	f.shard(t, creator, 0, 0)

	for i := int64(0); i < 50; i++ {
		f.clock.Set(i)
		require.NoError(t, f.write(painter, uint32(i), 0, 1), "write at t=%d", i)
	}

	session, err := f.engine.Session(ctx, painter.Root())
	require.NoError(t, err)
	assert.Equal(t, uint8(50), session.CooldownCounter)
	assert.Equal(t, uint64(49), session.LastWriteTime)

	f.clock.Set(50)
	err = f.write(painter, 60, 0, 1)
	assert.ErrorIs(t, err, canvas.ErrCooldownActive)
	assert.Equal(t, canvas.KindRateLimit, canvas.KindOf(err))
	assert.Equal(t, uint8(0), f.read(t, 60, 0), "rejected write must not land")

	f.clock.Set(78)
	assert.ErrorIs(t, f.write(painter, 60, 0, 1), canvas.ErrCooldownActive)

	after, err := f.engine.Session(ctx, painter.Root())
	require.NoError(t, err)
	assert.Equal(t, session, after, "rejections never mutate the session")

	f.clock.Set(79)
	require.NoError(t, f.write(painter, 60, 0, 1))
	session, err = f.engine.Session(ctx, painter.Root())
	require.NoError(t, err)
	assert.Equal(t, uint8(1), session.CooldownCounter)
}

func TestCreatorIsExemptFromCooldown(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	creator := newActor(t)
	f.bind(t, creator)
	f.shard(t, creator, 0, 0)
	f.shard(t, creator, 1, 0)

	for i := uint32(0); i < 200; i++ {
		require.NoError(t, f.write(creator, i%90, i/90, 3))
	}

	session, err := f.engine.Session(context.Background(), creator.Root())
	require.NoError(t, err)
	assert.Equal(t, uint8(0), session.CooldownCounter)
}

func TestConcurrentWritesRespectBurstLimit(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	creator, painter := newActor(t), newActor(t)
	f.bind(t, creator)
	f.bind(t, painter)
	f.shard(t, creator, 0, 0)

	var ok, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.write(painter, uint32(i), 1, 2)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, canvas.ErrCooldownActive):
				limited.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(50), ok.Load())
	assert.Equal(t, int32(30), limited.Load())
}

func TestErasePixel(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	creator, painter := newActor(t), newActor(t)
	f.bind(t, creator)
	f.bind(t, painter)
	f.shard(t, creator, 0, 0)

	require.NoError(t, f.write(painter, 5, 5, 9))
	require.NoError(t, f.engine.ErasePixel(ctx, painter.Signer(), 0, 0, 5, 5))
	assert.Equal(t, uint8(0), f.read(t, 5, 5))

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, f.engine.ErasePixel(ctx, painter.Signer(), 0, 0, 5, 5))
		assert.Equal(t, uint8(0), f.read(t, 5, 5))
	})

	t.Run("does not consume cooldown", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			require.NoError(t, f.engine.ErasePixel(ctx, painter.Signer(), 0, 0, 6, 6))
		}
		session, err := f.engine.Session(ctx, painter.Root())
		require.NoError(t, err)
		assert.Equal(t, uint8(1), session.CooldownCounter)
	})

	t.Run("emits color zero", func(t *testing.T) {
		events := f.store.PixelEvents()
		require.GreaterOrEqual(t, len(events), 2)
		assert.Equal(t, uint8(0), events[1].Color)
	})

	t.Run("requires authorization", func(t *testing.T) {
		err := f.engine.ErasePixel(ctx, painter.Root(), 0, 0, 5, 5)
		assert.ErrorIs(t, err, canvas.ErrInvalidAuth)
	})

	t.Run("shard mismatch", func(t *testing.T) {
		err := f.engine.ErasePixel(ctx, painter.Signer(), 1, 0, 5, 5)
		assert.ErrorIs(t, err, canvas.ErrShardMismatch)
	})
}

func TestReadPixel(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())

	c, err := f.engine.ReadPixel(context.Background(), 500000, 500000)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), c, "unmaterialized shards read as 0")

	_, err = f.engine.ReadPixel(context.Background(), 0, 524288)
	assert.ErrorIs(t, err, canvas.ErrOutOfBounds)
}
