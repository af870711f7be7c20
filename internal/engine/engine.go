// Package engine runs canvas operations against a record store.
//
// An Engine serves exactly one tier. The durable engine owns records in
// canvas.TierDurable and drives the delegate/commit lifecycle; a fast tier
// runs its own engine over its own store serving canvas.TierDelegated. A write
// that reaches an engine for a record held by the other tier fails with
// canvas.ErrWrongTier.
//
// Every write follows the same pipeline: authorize the signer, admit it
// through the cooldown limiter, map the pixel to its shard and index, mutate
// the packed buffer, then emit a PixelChanged event. The authorize, cooldown
// and mutate steps run inside one store transaction.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dyluth/tessera/internal/identity"
	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
)

// Store is the record store an Engine runs against. ledger.Client and
// ledger.Memory both satisfy it.
type Store interface {
	CreateSession(ctx context.Context, s *canvas.SessionRecord) error
	GetSession(ctx context.Context, root canvas.Identity) (*canvas.SessionRecord, error)
	SessionByAuthority(ctx context.Context, authority canvas.Identity) (*canvas.SessionRecord, error)
	CreateShard(ctx context.Context, shard *canvas.ShardRecord) error
	GetShard(ctx context.Context, sx, sy uint16) (*canvas.ShardRecord, error)
	ApplyWrite(ctx context.Context, root canvas.Identity, sx, sy uint16, fn ledger.WriteFunc) error
	Tier(ctx context.Context, r canvas.Resource) (canvas.TierState, error)
	CompareAndSetTier(ctx context.Context, r canvas.Resource, from, to canvas.TierState) (bool, error)
	Export(ctx context.Context, r canvas.Resource) (*ledger.Snapshot, error)
	Reconcile(ctx context.Context, snaps ...*ledger.Snapshot) error
	PublishPixelChanged(ctx context.Context, ev *canvas.PixelChanged) error
	PublishShardInitialized(ctx context.Context, ev *canvas.ShardInitialized) error
}

// DelegateRequest hands one resource to a fast tier.
type DelegateRequest struct {
	Address        canvas.Address
	Resource       canvas.Resource
	OwnerAuthority canvas.Identity
	SeedPath       [][]byte
	Target         string // validator the fast tier should place the resource on; empty means any
	Snapshot       []byte // ledger.EncodeSnapshot output
}

// FastTier is the low-latency execution tier delegated resources move to.
type FastTier interface {
	// Delegate takes ownership of a resource snapshot.
	Delegate(ctx context.Context, req DelegateRequest) error

	// Freeze stops writes to the addressed resources and returns their
	// final encoded snapshots in the same order. Fails with
	// canvas.ErrNotDelegated if any address is not held; on any error no
	// resource is left frozen.
	Freeze(ctx context.Context, addrs []canvas.Address) ([][]byte, error)

	// Thaw reopens frozen resources for writes.
	Thaw(ctx context.Context, addrs []canvas.Address) error

	// Release drops frozen resources once the durable ledger holds their
	// state.
	Release(ctx context.Context, addrs []canvas.Address) error
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Geometry canvas.Geometry
	Cooldown canvas.Cooldown

	// Tier is the tier this engine serves. Defaults to canvas.TierDurable.
	Tier canvas.TierState

	// Verifier checks session binding proofs. Defaults to identity.Ed25519Verifier.
	Verifier identity.Verifier

	// FastTier receives delegated resources. Nil disables delegation.
	FastTier FastTier

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// Logger receives one structured record per operation. If nil, a
	// no-op logger is used.
	Logger *slog.Logger
}

// Engine executes canvas operations. It is safe for concurrent use; all
// serialization happens in the store.
type Engine struct {
	store    Store
	geometry canvas.Geometry
	cooldown canvas.Cooldown
	tier     canvas.TierState
	identity *identity.Manager
	fast     FastTier
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an Engine over store.
func New(store Store, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}

	if opts.Geometry == (canvas.Geometry{}) {
		opts.Geometry = canvas.DefaultGeometry()
	}
	if err := opts.Geometry.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid geometry: %w", err)
	}

	if opts.Cooldown == (canvas.Cooldown{}) {
		opts.Cooldown = canvas.DefaultCooldown()
	}
	if err := opts.Cooldown.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid cooldown: %w", err)
	}

	if opts.Tier == "" {
		opts.Tier = canvas.TierDurable
	}
	if err := opts.Tier.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	if opts.Verifier == nil {
		opts.Verifier = identity.Ed25519Verifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		store:    store,
		geometry: opts.Geometry,
		cooldown: opts.Cooldown,
		tier:     opts.Tier,
		identity: identity.NewManager(opts.Verifier),
		fast:     opts.FastTier,
		now:      opts.Now,
		logger:   logger.With("tier", string(opts.Tier)),
	}, nil
}

// Geometry returns the canvas geometry the engine maps pixels with.
func (e *Engine) Geometry() canvas.Geometry {
	return e.geometry
}

// Tier returns the tier this engine serves.
func (e *Engine) Tier() canvas.TierState {
	return e.tier
}

// Session returns the session bound to root.
func (e *Engine) Session(ctx context.Context, root canvas.Identity) (*canvas.SessionRecord, error) {
	return e.store.GetSession(ctx, root)
}

// Shard returns shard (sx, sy).
func (e *Engine) Shard(ctx context.Context, sx, sy uint16) (*canvas.ShardRecord, error) {
	if err := e.geometry.CheckShardCoord(sx, sy); err != nil {
		return nil, err
	}
	return e.store.GetShard(ctx, sx, sy)
}

// requireTier fails with canvas.ErrWrongTier when this engine does not serve want.
func (e *Engine) requireTier(op string, want canvas.TierState) error {
	if e.tier != want {
		return fmt.Errorf("%w: %s runs on the %s tier, this engine serves %s", canvas.ErrWrongTier, op, want, e.tier)
	}
	return nil
}

// signerSession resolves the session a signer acts for. On a fast tier a
// signer whose session is not delegated there has no record at all, which is
// reported as canvas.ErrWrongTier rather than an authorization failure.
func (e *Engine) signerSession(ctx context.Context, signer canvas.Identity) (*canvas.SessionRecord, error) {
	session, err := e.store.SessionByAuthority(ctx, signer)
	if err == nil {
		return session, nil
	}
	if !ledger.IsNotFound(err) {
		return nil, fmt.Errorf("failed to resolve signer session: %w", err)
	}
	if e.tier != canvas.TierDurable {
		return nil, fmt.Errorf("%w: no session for signer %s is delegated to this tier", canvas.ErrWrongTier, signer)
	}
	return nil, fmt.Errorf("%w: signer %s has no bound session", canvas.ErrInvalidAuth, signer)
}

func (e *Engine) unixNow() uint64 {
	now := e.now().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}
