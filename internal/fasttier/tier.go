// Package fasttier is an in-process fast execution tier.
//
// A Tier holds delegated resources in its own record store and serves writes
// to them through an engine bound to canvas.TierDelegated. The store can be a
// ledger.Memory for a single process or a ledger.Client on a separate Redis
// namespace, in which case delegations survive the process and several
// processes can share the tier.
package fasttier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dyluth/tessera/internal/engine"
	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
	"github.com/google/uuid"
)

// Store is the record store a Tier keeps delegated resources in.
type Store interface {
	engine.Store
	Import(ctx context.Context, s *ledger.Snapshot) error
	Remove(ctx context.Context, r canvas.Resource) error

	PutDelegation(ctx context.Context, d *ledger.Delegation) error
	GetDelegation(ctx context.Context, addr canvas.Address) (*ledger.Delegation, error)
	DeleteDelegation(ctx context.Context, addr canvas.Address) error
	ListDelegations(ctx context.Context) ([]*ledger.Delegation, error)
}

// Options configures a Tier. Geometry and Cooldown must match the durable
// engine's.
type Options struct {
	Geometry canvas.Geometry
	Cooldown canvas.Cooldown
	Now      func() time.Time
	Logger   *slog.Logger
}

// Tier implements engine.FastTier. A commit moves each held resource
// through frozen (Durable in this store, refusing writes) to released.
type Tier struct {
	store  Store
	engine *engine.Engine
	now    func() time.Time
	logger *slog.Logger

	// mu serializes Delegate, Freeze, Thaw and Release within this process.
	mu sync.Mutex
}

var _ engine.FastTier = (*Tier)(nil)

// New creates a Tier over store.
func New(store Store, opts Options) (*Tier, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	eng, err := engine.New(store, engine.Options{
		Geometry: opts.Geometry,
		Cooldown: opts.Cooldown,
		Tier:     canvas.TierDelegated,
		Now:      opts.Now,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("fasttier: %w", err)
	}

	return &Tier{
		store:  store,
		engine: eng,
		now:    opts.Now,
		logger: logger.With("component", "fasttier"),
	}, nil
}

// Engine returns the engine that serves writes to delegated resources.
func (t *Tier) Engine() *engine.Engine {
	return t.engine
}

// Delegate imports a delegated resource snapshot.
func (t *Tier) Delegate(ctx context.Context, req engine.DelegateRequest) error {
	snap, err := ledger.DecodeSnapshot(req.Snapshot)
	if err != nil {
		return err
	}

	seeded, err := canvas.ResourceFromSeedPath(req.SeedPath)
	if err != nil {
		return fmt.Errorf("invalid seed path: %w", err)
	}
	if seeded != snap.Resource || seeded.Address() != req.Address {
		return fmt.Errorf("delegation of %s does not match its seed path or address", snap.Resource)
	}
	if snap.Tier() != canvas.TierDelegated {
		return fmt.Errorf("%w: snapshot of %s is %s", canvas.ErrWrongTier, snap.Resource, snap.Tier())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.dropStale(ctx, req.Address); err != nil {
		return err
	}

	d := &ledger.Delegation{
		ID:             uuid.New().String(),
		Address:        req.Address.String(),
		Resource:       snap.Resource,
		OwnerAuthority: req.OwnerAuthority,
		Target:         req.Target,
		DelegatedAtMs:  t.now().UnixMilli(),
	}
	if err := t.store.PutDelegation(ctx, d); err != nil {
		return err
	}
	if err := t.store.Import(ctx, snap); err != nil {
		if delErr := t.store.DeleteDelegation(ctx, req.Address); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return fmt.Errorf("failed to import %s: %w", snap.Resource, err)
	}

	t.logger.Info("resource accepted",
		"delegation_id", d.ID,
		"resource", d.Resource.String(),
		"owner", string(d.OwnerAuthority),
	)
	return nil
}

// dropStale removes a held copy of addr left frozen by a commit whose release
// failed. A copy that still serves writes is left alone, so PutDelegation
// reports it as ErrAlreadyDelegated.
func (t *Tier) dropStale(ctx context.Context, addr canvas.Address) error {
	d, err := t.store.GetDelegation(ctx, addr)
	if errors.Is(err, canvas.ErrNotDelegated) {
		return nil
	}
	if err != nil {
		return err
	}

	tier, err := t.store.Tier(ctx, d.Resource)
	if err != nil && !errors.Is(err, canvas.ErrNotFound) {
		return err
	}
	if tier == canvas.TierDelegated {
		return nil
	}

	t.logger.Warn("dropping stale copy", "delegation_id", d.ID, "resource", d.Resource.String())
	return t.release(ctx, d)
}

// Freeze stops writes to the addressed resources and exports them. A frozen
// resource is moved to Durable in this store, so the fast engine rejects
// writes to it with ErrWrongTier. If any address is not held, is repeated, or
// fails to export, every resource frozen so far is thawed again.
func (t *Tier) Freeze(ctx context.Context, addrs []canvas.Address) ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	held := make([]*ledger.Delegation, 0, len(addrs))
	seen := make(map[canvas.Address]bool, len(addrs))
	for _, addr := range addrs {
		if seen[addr] {
			return nil, fmt.Errorf("address %s appears twice in one commit", addr)
		}
		seen[addr] = true

		d, err := t.store.GetDelegation(ctx, addr)
		if err != nil {
			return nil, err
		}
		held = append(held, d)
	}

	out := make([][]byte, 0, len(held))
	frozen := make([]*ledger.Delegation, 0, len(held))
	for _, d := range held {
		data, err := t.freeze(ctx, d)
		if err != nil {
			if thawErr := t.thaw(ctx, frozen); thawErr != nil {
				err = errors.Join(err, thawErr)
			}
			return nil, err
		}
		frozen = append(frozen, d)
		out = append(out, data)
	}
	return out, nil
}

func (t *Tier) freeze(ctx context.Context, d *ledger.Delegation) ([]byte, error) {
	ok, err := t.store.CompareAndSetTier(ctx, d.Resource, canvas.TierDelegated, canvas.TierDurable)
	if err != nil {
		return nil, fmt.Errorf("failed to freeze %s: %w", d.Resource, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is already being committed", canvas.ErrNotDelegated, d.Resource)
	}

	snap, err := t.store.Export(ctx, d.Resource)
	if err != nil {
		// Reopen this one; Freeze thaws the ones before it.
		if _, thawErr := t.store.CompareAndSetTier(ctx, d.Resource, canvas.TierDurable, canvas.TierDelegated); thawErr != nil {
			err = errors.Join(err, thawErr)
		}
		return nil, fmt.Errorf("failed to export %s: %w", d.Resource, err)
	}
	return ledger.EncodeSnapshot(snap)
}

// Thaw reopens frozen resources for writes after an aborted commit.
func (t *Tier) Thaw(ctx context.Context, addrs []canvas.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	held := make([]*ledger.Delegation, 0, len(addrs))
	var errs []error
	for _, addr := range addrs {
		d, err := t.store.GetDelegation(ctx, addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		held = append(held, d)
	}
	return errors.Join(append(errs, t.thaw(ctx, held))...)
}

func (t *Tier) thaw(ctx context.Context, held []*ledger.Delegation) error {
	var errs []error
	for _, d := range held {
		if _, err := t.store.CompareAndSetTier(ctx, d.Resource, canvas.TierDurable, canvas.TierDelegated); err != nil {
			errs = append(errs, fmt.Errorf("failed to thaw %s: %w", d.Resource, err))
		}
	}
	return errors.Join(errs...)
}

// Release drops committed resources and their delegations. It keeps going
// past failures and reports all of them.
func (t *Tier) Release(ctx context.Context, addrs []canvas.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for _, addr := range addrs {
		d, err := t.store.GetDelegation(ctx, addr)
		if errors.Is(err, canvas.ErrNotDelegated) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := t.release(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tier) release(ctx context.Context, d *ledger.Delegation) error {
	if err := t.store.Remove(ctx, d.Resource); err != nil {
		return fmt.Errorf("failed to release %s: %w", d.Resource, err)
	}
	if err := t.store.DeleteDelegation(ctx, d.Resource.Address()); err != nil {
		return err
	}

	t.logger.Info("resource released",
		"delegation_id", d.ID,
		"resource", d.Resource.String(),
		"held_for", t.now().Sub(time.UnixMilli(d.DelegatedAtMs)).String(),
	)
	return nil
}

// Delegations lists the resources currently held, oldest first.
func (t *Tier) Delegations(ctx context.Context) ([]*ledger.Delegation, error) {
	return t.store.ListDelegations(ctx)
}
