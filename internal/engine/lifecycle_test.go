package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelegateAndCommitShard(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	creator, painter := newActor(t), newActor(t)
	f.bind(t, creator)
	f.bind(t, painter)
	f.shard(t, creator, 0, 0)
	shard := canvas.ShardResource(0, 0)

	t.Run("commit before delegate fails", func(t *testing.T) {
		err := f.engine.CommitResource(ctx, shard)
		assert.ErrorIs(t, err, canvas.ErrNotDelegated)
		assert.Equal(t, canvas.KindTier, canvas.KindOf(err))
	})

	addr, err := f.engine.DelegateResource(ctx, painter.Signer(), shard, "validator-1")
	require.NoError(t, err)
	assert.Equal(t, shard.Address(), addr)

	require.Len(t, f.fast.requests, 1)
	req := f.fast.requests[0]
	assert.Equal(t, painter.Signer(), req.OwnerAuthority)
	assert.Equal(t, "validator-1", req.Target)
	assert.Equal(t, shard.SeedPath(), req.SeedPath)

	t.Run("delegate twice fails", func(t *testing.T) {
		_, err := f.engine.DelegateResource(ctx, painter.Signer(), shard, "")
		assert.ErrorIs(t, err, canvas.ErrAlreadyDelegated)
	})

	t.Run("durable writes are refused while delegated", func(t *testing.T) {
		err := f.write(painter, 1, 1, 5)
		assert.ErrorIs(t, err, canvas.ErrWrongTier)
	})

	t.Run("reads still work", func(t *testing.T) {
		assert.Equal(t, uint8(0), f.read(t, 1, 1))
	})

	// The fast tier paints while it holds the shard.
	f.fast.mutate(t, addr, func(s *ledger.Snapshot) {
		s.Shard.Pixels[f.engine.Geometry().LocalIndex(2, 3)] = 77
	})

	require.NoError(t, f.engine.CommitResource(ctx, shard))

	tier, err := f.store.Tier(ctx, shard)
	require.NoError(t, err)
	assert.Equal(t, canvas.TierDurable, tier)
	assert.Equal(t, uint8(77), f.read(t, 2, 3), "fast tier writes are committed back")

	t.Run("writable on the durable tier again", func(t *testing.T) {
		require.NoError(t, f.write(painter, 1, 1, 5))
		assert.Equal(t, uint8(5), f.read(t, 1, 1))
	})

	t.Run("commit after commit fails", func(t *testing.T) {
		assert.ErrorIs(t, f.engine.CommitResource(ctx, shard), canvas.ErrNotDelegated)
	})
}

func TestDelegateSession(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	creator, painter := newActor(t), newActor(t)
	f.bind(t, creator)
	f.bind(t, painter)
	f.shard(t, creator, 0, 0)
	res := canvas.SessionResource(painter.Root())

	t.Run("only the session authority may delegate it", func(t *testing.T) {
		_, err := f.engine.DelegateResource(ctx, creator.Signer(), res, "")
		assert.ErrorIs(t, err, canvas.ErrInvalidAuth)
	})

	addr, err := f.engine.DelegateResource(ctx, painter.Signer(), res, "")
	require.NoError(t, err)

	t.Run("durable writes need a durable session", func(t *testing.T) {
		assert.ErrorIs(t, f.write(painter, 1, 1, 5), canvas.ErrWrongTier)
	})

	f.fast.mutate(t, addr, func(s *ledger.Snapshot) {
		s.Session.CooldownCounter = 50
		s.Session.LastWriteTime = 0
		s.Session.OwnedShardCount = 1000
	})
	require.NoError(t, f.engine.CommitResource(ctx, res))

	session, err := f.engine.Session(ctx, painter.Root())
	require.NoError(t, err)
	assert.Equal(t, canvas.TierDurable, session.Tier)
	assert.Equal(t, uint8(50), session.CooldownCounter, "cooldown state carries back")
	assert.Equal(t, uint32(0), session.OwnedShardCount, "owned count is durable-only")

	assert.ErrorIs(t, f.write(painter, 1, 1, 5), canvas.ErrCooldownActive)
}

func TestDelegateRollsBackOnFastTierFailure(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)

	f.fast.delegateErr = errors.New("validator unavailable")
	_, err := f.engine.DelegateResource(ctx, alice.Signer(), canvas.ShardResource(0, 0), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validator unavailable")

	tier, err := f.store.Tier(ctx, canvas.ShardResource(0, 0))
	require.NoError(t, err)
	assert.Equal(t, canvas.TierDurable, tier)
	assert.NoError(t, f.write(alice, 0, 0, 1))
}

func TestDelegateRejections(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	alice := newActor(t)
	f.bind(t, alice)

	t.Run("uninitialized shard", func(t *testing.T) {
		_, err := f.engine.DelegateResource(ctx, alice.Signer(), canvas.ShardResource(3, 3), "")
		assert.ErrorIs(t, err, canvas.ErrNotFound)
	})

	t.Run("shard off grid", func(t *testing.T) {
		_, err := f.engine.DelegateResource(ctx, alice.Signer(), canvas.ShardResource(6000, 0), "")
		assert.ErrorIs(t, err, canvas.ErrOutOfBounds)
	})

	t.Run("unbound signer", func(t *testing.T) {
		f.shard(t, alice, 3, 3)
		_, err := f.engine.DelegateResource(ctx, newActor(t).Signer(), canvas.ShardResource(3, 3), "")
		assert.ErrorIs(t, err, canvas.ErrInvalidAuth)
	})

	t.Run("commit of unknown resource", func(t *testing.T) {
		err := f.engine.CommitResource(ctx, canvas.ShardResource(9, 9))
		assert.ErrorIs(t, err, canvas.ErrNotFound)
	})

	t.Run("no fast tier configured", func(t *testing.T) {
		eng, err := New(f.store, Options{})
		require.NoError(t, err)
		_, err = eng.DelegateResource(ctx, alice.Signer(), canvas.ShardResource(3, 3), "")
		assert.Error(t, err)
		assert.Error(t, eng.CommitResource(ctx, canvas.ShardResource(3, 3)))
	})
}

func TestCommitChecksEveryResourceFirst(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)
	f.shard(t, alice, 0, 1)

	_, err := f.engine.DelegateResource(ctx, alice.Signer(), canvas.ShardResource(0, 0), "")
	require.NoError(t, err)

	err = f.engine.CommitResource(ctx, canvas.ShardResource(0, 0), canvas.ShardResource(0, 1))
	assert.ErrorIs(t, err, canvas.ErrNotDelegated)

	tier, err := f.store.Tier(ctx, canvas.ShardResource(0, 0))
	require.NoError(t, err)
	assert.Equal(t, canvas.TierDelegated, tier, "nothing was committed")
	assert.Len(t, f.fast.held, 1)
	assert.Empty(t, f.fast.frozen)
}

func TestCommitNamesEachResourceOnce(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)

	shard := canvas.ShardResource(0, 0)
	addr, err := f.engine.DelegateResource(ctx, alice.Signer(), shard, "")
	require.NoError(t, err)
	f.fast.mutate(t, addr, func(s *ledger.Snapshot) {
		s.Shard.Pixels[5*90+5] = 9
	})

	require.NoError(t, f.engine.CommitResource(ctx, shard, shard))

	assert.Equal(t, uint8(9), f.read(t, 5, 5))
	assert.Empty(t, f.fast.held)
	assert.NoError(t, f.write(alice, 5, 5, 1))
}

func TestCommitKeepsDelegationWhenReconcileFails(t *testing.T) {
	store := &failingReconcile{Memory: ledger.NewMemory()}
	fast := newMockFastTier()
	clock := &fakeClock{now: time.Unix(0, 0)}
	eng, err := New(store, Options{Now: clock.Now, FastTier: fast})
	require.NoError(t, err)
	f := &fixture{engine: eng, store: store.Memory, clock: clock, fast: fast}

	ctx := context.Background()
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)

	shard := canvas.ShardResource(0, 0)
	session := canvas.SessionResource(alice.Root())
	shardAddr, err := eng.DelegateResource(ctx, alice.Signer(), shard, "")
	require.NoError(t, err)
	_, err = eng.DelegateResource(ctx, alice.Signer(), session, "")
	require.NoError(t, err)
	f.fast.mutate(t, shardAddr, func(s *ledger.Snapshot) {
		s.Shard.Pixels[0] = 9
	})

	store.err = errors.New("ledger unavailable")
	err = eng.CommitResource(ctx, shard, session)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger unavailable")

	for _, r := range []canvas.Resource{shard, session} {
		tier, err := f.store.Tier(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, canvas.TierDelegated, tier, "%s stays delegated", r)
	}
	assert.Len(t, f.fast.held, 2, "fast tier keeps its copies")
	assert.Empty(t, f.fast.frozen, "fast tier serves writes again")

	store.err = nil
	require.NoError(t, eng.CommitResource(ctx, shard, session))
	assert.Equal(t, uint8(9), f.read(t, 0, 0))
	assert.Empty(t, f.fast.held)
}

func TestCommitSucceedsWhenReleaseFails(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)

	shard := canvas.ShardResource(0, 0)
	_, err := f.engine.DelegateResource(ctx, alice.Signer(), shard, "")
	require.NoError(t, err)

	f.fast.releaseErr = errors.New("fast tier unreachable")
	require.NoError(t, f.engine.CommitResource(ctx, shard))

	tier, err := f.store.Tier(ctx, shard)
	require.NoError(t, err)
	assert.Equal(t, canvas.TierDurable, tier)
	assert.NoError(t, f.write(alice, 0, 0, 1))
}

func TestDurableOperationsWithDelegatedSession(t *testing.T) {
	f := newFixture(t, canvas.DefaultGeometry())
	ctx := context.Background()
	alice := newActor(t)
	f.bind(t, alice)
	f.shard(t, alice, 0, 0)

	session := canvas.SessionResource(alice.Root())
	_, err := f.engine.DelegateResource(ctx, alice.Signer(), session, "")
	require.NoError(t, err)

	t.Run("shard creation", func(t *testing.T) {
		_, err := f.engine.CreateShard(ctx, alice.Signer(), 3, 3)
		assert.ErrorIs(t, err, canvas.ErrWrongTier)

		_, err = f.engine.Shard(ctx, 3, 3)
		assert.ErrorIs(t, err, canvas.ErrNotFound)
		s, err := f.engine.Session(ctx, alice.Root())
		require.NoError(t, err)
		assert.Equal(t, uint32(1), s.OwnedShardCount)
	})

	t.Run("erase", func(t *testing.T) {
		err := f.engine.ErasePixel(ctx, alice.Signer(), 0, 0, 1, 1)
		assert.ErrorIs(t, err, canvas.ErrWrongTier)
	})

	t.Run("second delegation", func(t *testing.T) {
		_, err := f.engine.DelegateResource(ctx, alice.Signer(), session, "")
		assert.ErrorIs(t, err, canvas.ErrAlreadyDelegated)
	})

	require.NoError(t, f.engine.CommitResource(ctx, session))
	_, err = f.engine.CreateShard(ctx, alice.Signer(), 3, 3)
	assert.NoError(t, err)
}

func TestDelegatedEngineRefusesDurableOperations(t *testing.T) {
	eng, err := New(ledger.NewMemory(), Options{Tier: canvas.TierDelegated})
	require.NoError(t, err)
	ctx := context.Background()
	alice := newActor(t)

	_, err = eng.BindSession(ctx, alice.Root(), alice.Signer(), alice.proof(t))
	assert.ErrorIs(t, err, canvas.ErrWrongTier)

	_, err = eng.CreateShard(ctx, alice.Signer(), 0, 0)
	assert.ErrorIs(t, err, canvas.ErrWrongTier)

	_, err = eng.DelegateResource(ctx, alice.Signer(), canvas.ShardResource(0, 0), "")
	assert.ErrorIs(t, err, canvas.ErrWrongTier)

	assert.ErrorIs(t, eng.CommitResource(ctx, canvas.ShardResource(0, 0)), canvas.ErrWrongTier)

	err = eng.WritePixel(ctx, WriteRequest{Signer: alice.Signer(), PX: 1, PY: 1, Color: 1})
	assert.ErrorIs(t, err, canvas.ErrWrongTier, "a session the fast tier does not hold")
}
