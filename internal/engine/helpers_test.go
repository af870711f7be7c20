package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/tessera/internal/identity"
	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock for cooldown tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(unix, 0)
}

// actor is a root identity plus the session authority it delegates to.
type actor struct {
	root      *identity.KeyPair
	authority *identity.KeyPair
}

func newActor(t *testing.T) *actor {
	t.Helper()
	root, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	authority, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	return &actor{root: root, authority: authority}
}

func (a *actor) Root() canvas.Identity   { return a.root.Identity() }
func (a *actor) Signer() canvas.Identity { return a.authority.Identity() }

func (a *actor) proof(t *testing.T) []byte {
	t.Helper()
	proof, err := identity.MakeProof(a.root.Private, a.authority.Identity())
	require.NoError(t, err)
	return proof
}

// mockFastTier holds delegated snapshots in a map.
type mockFastTier struct {
	mu          sync.Mutex
	held        map[canvas.Address][]byte
	frozen      map[canvas.Address]bool
	requests    []DelegateRequest
	delegateErr error
	releaseErr  error
}

func newMockFastTier() *mockFastTier {
	return &mockFastTier{
		held:   make(map[canvas.Address][]byte),
		frozen: make(map[canvas.Address]bool),
	}
}

func (m *mockFastTier) Delegate(_ context.Context, req DelegateRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delegateErr != nil {
		return m.delegateErr
	}
	m.requests = append(m.requests, req)
	m.held[req.Address] = req.Snapshot
	delete(m.frozen, req.Address)
	return nil
}

func (m *mockFastTier) Freeze(_ context.Context, addrs []canvas.Address) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, 0, len(addrs))
	for _, addr := range addrs {
		data, ok := m.held[addr]
		if !ok || m.frozen[addr] {
			return nil, canvas.ErrNotDelegated
		}
		out = append(out, data)
	}
	for _, addr := range addrs {
		m.frozen[addr] = true
	}
	return out, nil
}

func (m *mockFastTier) Thaw(_ context.Context, addrs []canvas.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, addr := range addrs {
		delete(m.frozen, addr)
	}
	return nil
}

func (m *mockFastTier) Release(_ context.Context, addrs []canvas.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.releaseErr != nil {
		return m.releaseErr
	}
	for _, addr := range addrs {
		delete(m.held, addr)
		delete(m.frozen, addr)
	}
	return nil
}

// mutate rewrites a held snapshot, standing in for writes on the fast tier.
func (m *mockFastTier) mutate(t *testing.T, addr canvas.Address, fn func(s *ledger.Snapshot)) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, err := ledger.DecodeSnapshot(m.held[addr])
	require.NoError(t, err)
	fn(snap)
	data, err := ledger.EncodeSnapshot(snap)
	require.NoError(t, err)
	m.held[addr] = data
}

// failingReconcile is a ledger whose Reconcile fails while err is set.
type failingReconcile struct {
	*ledger.Memory
	err error
}

func (f *failingReconcile) Reconcile(ctx context.Context, snaps ...*ledger.Snapshot) error {
	if f.err != nil {
		return f.err
	}
	return f.Memory.Reconcile(ctx, snaps...)
}

type fixture struct {
	engine *Engine
	store  *ledger.Memory
	clock  *fakeClock
	fast   *mockFastTier
}

func newFixture(t *testing.T, geometry canvas.Geometry) *fixture {
	t.Helper()
	f := &fixture{
		store: ledger.NewMemory(),
		clock: &fakeClock{now: time.Unix(0, 0)},
		fast:  newMockFastTier(),
	}
	eng, err := New(f.store, Options{
		Geometry: geometry,
		Now:      f.clock.Now,
		FastTier: f.fast,
	})
	require.NoError(t, err)
	f.engine = eng
	return f
}

func (f *fixture) bind(t *testing.T, a *actor) {
	t.Helper()
	_, err := f.engine.BindSession(context.Background(), a.Root(), a.Signer(), a.proof(t))
	require.NoError(t, err)
}

func (f *fixture) shard(t *testing.T, creator *actor, sx, sy uint16) {
	t.Helper()
	_, err := f.engine.CreateShard(context.Background(), creator.Signer(), sx, sy)
	require.NoError(t, err)
}

func (f *fixture) write(a *actor, px, py uint32, color uint8) error {
	g := f.engine.Geometry()
	sx, sy, err := g.ShardOf(px, py)
	if err != nil {
		return err
	}
	return f.engine.WritePixel(context.Background(), WriteRequest{
		Signer: a.Signer(),
		ShardX: sx,
		ShardY: sy,
		PX:     px,
		PY:     py,
		Color:  color,
	})
}

func (f *fixture) read(t *testing.T, px, py uint32) uint8 {
	t.Helper()
	c, err := f.engine.ReadPixel(context.Background(), px, py)
	require.NoError(t, err)
	return c
}
