package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/tessera/pkg/canvas"
)

type shardCoord struct{ x, y uint16 }

// Memory is an in-process ledger with the same semantics as Client.
// A single mutex serializes every operation, which gives the same
// all-or-nothing behaviour as a Redis transaction. Records are copied on the
// way in and on the way out so callers never alias stored state.
//
// Memory backs the in-process fast tier and the engine tests.
type Memory struct {
	mu          sync.Mutex
	sessions    map[canvas.Identity]*canvas.SessionRecord
	authorities map[canvas.Identity]canvas.Identity
	shards      map[shardCoord]*canvas.ShardRecord
	delegations map[string]*Delegation

	pixelEvents []canvas.PixelChanged
	shardEvents []canvas.ShardInitialized
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[canvas.Identity]*canvas.SessionRecord),
		authorities: make(map[canvas.Identity]canvas.Identity),
		shards:      make(map[shardCoord]*canvas.ShardRecord),
		delegations: make(map[string]*Delegation),
	}
}

// CreateSession stores a new session record and its authority index entry.
func (m *Memory) CreateSession(_ context.Context, s *canvas.SessionRecord) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.RootIdentity]; ok {
		return fmt.Errorf("%w: session for %s is already bound", canvas.ErrAlreadyExists, s.RootIdentity)
	}
	if _, ok := m.authorities[s.SessionAuthority]; ok {
		return fmt.Errorf("%w: authority %s is already bound", canvas.ErrAlreadyExists, s.SessionAuthority)
	}

	m.sessions[s.RootIdentity] = cloneSession(s)
	m.authorities[s.SessionAuthority] = s.RootIdentity
	return nil
}

// GetSession retrieves the session of a root identity.
func (m *Memory) GetSession(_ context.Context, root canvas.Identity) (*canvas.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[root]
	if !ok {
		return nil, fmt.Errorf("%w: no session for %s", canvas.ErrNotFound, root)
	}
	return cloneSession(s), nil
}

// SessionByAuthority retrieves the session a session authority is bound to.
func (m *Memory) SessionByAuthority(_ context.Context, authority canvas.Identity) (*canvas.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	root, ok := m.authorities[authority]
	if !ok {
		return nil, fmt.Errorf("%w: authority %s is not bound", canvas.ErrNotFound, authority)
	}
	s, ok := m.sessions[root]
	if !ok {
		return nil, fmt.Errorf("%w: no session for %s", canvas.ErrNotFound, root)
	}
	return cloneSession(s), nil
}

// CreateShard stores a new shard and increments its creator's owned shard count.
func (m *Memory) CreateShard(_ context.Context, shard *canvas.ShardRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := shardCoord{shard.ShardX, shard.ShardY}
	if _, ok := m.shards[key]; ok {
		return fmt.Errorf("%w: shard (%d, %d)", canvas.ErrAlreadyExists, shard.ShardX, shard.ShardY)
	}
	session, ok := m.sessions[shard.Creator]
	if !ok {
		return fmt.Errorf("%w: creator %s has no session", canvas.ErrNotFound, shard.Creator)
	}
	if session.Tier != canvas.TierDurable {
		return fmt.Errorf("%w: session of creator %s is %s", canvas.ErrWrongTier, shard.Creator, session.Tier)
	}

	m.shards[key] = cloneShard(shard)
	session.OwnedShardCount++
	return nil
}

// GetShard retrieves shard (sx, sy).
func (m *Memory) GetShard(_ context.Context, sx, sy uint16) (*canvas.ShardRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shards[shardCoord{sx, sy}]
	if !ok {
		return nil, fmt.Errorf("%w: shard (%d, %d)", canvas.ErrNotFound, sx, sy)
	}
	return cloneShard(s), nil
}

// ApplyWrite runs fn against copies of the session and shard and stores the
// copies only if fn succeeds.
func (m *Memory) ApplyWrite(_ context.Context, root canvas.Identity, sx, sy uint16, fn WriteFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	storedSession, ok := m.sessions[root]
	if !ok {
		return fmt.Errorf("%w: no session for %s", canvas.ErrNotFound, root)
	}
	key := shardCoord{sx, sy}
	storedShard, ok := m.shards[key]
	if !ok {
		return fmt.Errorf("%w: shard (%d, %d)", canvas.ErrNotFound, sx, sy)
	}

	session, shard := cloneSession(storedSession), cloneShard(storedShard)
	if err := fn(session, shard); err != nil {
		return err
	}

	m.sessions[root] = session
	m.shards[key] = shard
	return nil
}

// Tier returns the tier state of a resource.
func (m *Memory) Tier(_ context.Context, r canvas.Resource) (canvas.TierState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.lookup(r)
	if err != nil {
		return "", err
	}
	return snap.Tier(), nil
}

// CompareAndSetTier moves a resource from tier `from` to tier `to`.
func (m *Memory) CompareAndSetTier(_ context.Context, r canvas.Resource, from, to canvas.TierState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.lookup(r)
	if err != nil {
		return false, err
	}
	if snap.Tier() != from {
		return false, nil
	}
	snap.setTier(to)
	return true, nil
}

// Export reads the current state of a resource as a Snapshot.
func (m *Memory) Export(_ context.Context, r canvas.Resource) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.lookup(r)
	if err != nil {
		return nil, err
	}
	return snap.WithTier(snap.Tier()), nil
}

// Import writes a snapshot verbatim, replacing any existing record.
func (m *Memory) Import(_ context.Context, s *Snapshot) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Shard != nil {
		m.shards[shardCoord{s.Shard.ShardX, s.Shard.ShardY}] = cloneShard(s.Shard)
		return nil
	}
	m.sessions[s.Session.RootIdentity] = cloneSession(s.Session)
	m.authorities[s.Session.SessionAuthority] = s.Session.RootIdentity
	return nil
}

// Reconcile folds committed snapshots back into their delegated records and
// returns them to the durable tier. Every record is checked before any is
// changed.
func (m *Memory) Reconcile(_ context.Context, snaps ...*Snapshot) error {
	if err := checkReconcile(snaps); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := make([]*Snapshot, len(snaps))
	for i, s := range snaps {
		rec, err := m.lookup(s.Resource)
		if err != nil {
			return err
		}
		if rec.Tier() != canvas.TierDelegated {
			return fmt.Errorf("%w: %s", canvas.ErrNotDelegated, s.Resource)
		}
		current[i] = rec
	}

	for i, s := range snaps {
		if s.Shard != nil {
			current[i].Shard.Pixels = append([]byte(nil), s.Shard.Pixels...)
		} else {
			current[i].Session.CooldownCounter = s.Session.CooldownCounter
			current[i].Session.LastWriteTime = s.Session.LastWriteTime
		}
		current[i].setTier(canvas.TierDurable)
	}
	return nil
}

// Remove deletes a resource's record.
func (m *Memory) Remove(_ context.Context, r canvas.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch r.Kind {
	case canvas.ResourceShard:
		delete(m.shards, shardCoord{r.ShardX, r.ShardY})
	case canvas.ResourceSession:
		if s, ok := m.sessions[r.Root]; ok {
			delete(m.authorities, s.SessionAuthority)
			delete(m.sessions, r.Root)
		}
	}
	return nil
}

// PublishPixelChanged records a PixelChanged event.
func (m *Memory) PublishPixelChanged(_ context.Context, ev *canvas.PixelChanged) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pixelEvents = append(m.pixelEvents, *ev)
	return nil
}

// PublishShardInitialized records a ShardInitialized event.
func (m *Memory) PublishShardInitialized(_ context.Context, ev *canvas.ShardInitialized) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shardEvents = append(m.shardEvents, *ev)
	return nil
}

// PixelEvents returns every PixelChanged event published so far, oldest first.
func (m *Memory) PixelEvents() []canvas.PixelChanged {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]canvas.PixelChanged(nil), m.pixelEvents...)
}

// ShardEvents returns every ShardInitialized event published so far, oldest first.
func (m *Memory) ShardEvents() []canvas.ShardInitialized {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]canvas.ShardInitialized(nil), m.shardEvents...)
}

// lookup returns a Snapshot whose record pointers alias stored state.
// Caller must hold m.mu.
func (m *Memory) lookup(r canvas.Resource) (*Snapshot, error) {
	switch r.Kind {
	case canvas.ResourceShard:
		s, ok := m.shards[shardCoord{r.ShardX, r.ShardY}]
		if !ok {
			return nil, fmt.Errorf("%w: %s", canvas.ErrNotFound, r)
		}
		return &Snapshot{Resource: r, Shard: s}, nil
	case canvas.ResourceSession:
		s, ok := m.sessions[r.Root]
		if !ok {
			return nil, fmt.Errorf("%w: %s", canvas.ErrNotFound, r)
		}
		return &Snapshot{Resource: r, Session: s}, nil
	default:
		return nil, fmt.Errorf("unknown resource kind: %q", r.Kind)
	}
}
