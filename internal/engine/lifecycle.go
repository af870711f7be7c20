package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
)

// BindSession creates the session of root, delegating write authority to
// authority. proof must certify that root authorized authority.
// A root binds once; so does an authority.
//
// Errors: InvalidAuth, AlreadyExists, WrongTier.
func (e *Engine) BindSession(ctx context.Context, root, authority canvas.Identity, proof []byte) (*canvas.SessionRecord, error) {
	if err := e.requireTier("session binding", canvas.TierDurable); err != nil {
		return nil, err
	}

	session, err := e.identity.NewSession(root, authority, proof, e.now())
	if err != nil {
		e.logger.Info("session binding rejected", "root", string(root), "error", err)
		return nil, err
	}

	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to bind session: %w", err)
	}

	e.logger.Info("session bound",
		"root", string(root),
		"authority", string(authority),
	)
	return session, nil
}

// CreateShard materializes shard (sx, sy) with a zero-filled buffer. The
// creator is the root identity of the signer's session, which is credited
// with the shard and exempt from cooldown when painting it.
//
// Errors: InvalidShardCoord (an OutOfBounds), InvalidAuth, AlreadyExists, WrongTier.
func (e *Engine) CreateShard(ctx context.Context, signer canvas.Identity, sx, sy uint16) (*canvas.ShardRecord, error) {
	if err := e.requireTier("shard creation", canvas.TierDurable); err != nil {
		return nil, err
	}

	shard, err := canvas.NewShardRecord(e.geometry, sx, sy, "")
	if err != nil {
		return nil, err
	}

	session, err := e.signerSession(ctx, signer)
	if err != nil {
		return nil, err
	}
	if err := e.identity.AuthorizeWrite(session, signer); err != nil {
		return nil, err
	}

	now := e.now()
	shard.Creator = session.RootIdentity
	shard.CreatedAtMs = now.UnixMilli()

	if err := e.store.CreateShard(ctx, shard); err != nil {
		return nil, fmt.Errorf("failed to create shard (%d, %d): %w", sx, sy, err)
	}

	e.logger.Info("shard created",
		"shard_x", sx,
		"shard_y", sy,
		"creator", string(shard.Creator),
	)

	ev := &canvas.ShardInitialized{
		ShardX:       sx,
		ShardY:       sy,
		Creator:      shard.Creator,
		RootIdentity: session.RootIdentity,
		Timestamp:    uint64(now.Unix()),
	}
	if err := e.store.PublishShardInitialized(ctx, ev); err != nil {
		e.logger.Warn("failed to publish shard event", "shard_x", sx, "shard_y", sy, "error", err)
	}

	return shard, nil
}

// DelegateResource hands a durable resource to the fast tier. The resource
// moves to Delegated before the fast tier sees it; if the fast tier refuses,
// it moves back.
//
// A session can only be delegated by its own authority. A shard can be
// delegated by any bound session authority.
//
// Errors: AlreadyDelegated, NotFound, InvalidAuth, WrongTier.
func (e *Engine) DelegateResource(ctx context.Context, signer canvas.Identity, r canvas.Resource, target string) (canvas.Address, error) {
	if err := e.requireTier("delegation", canvas.TierDurable); err != nil {
		return canvas.Address{}, err
	}
	if e.fast == nil {
		return canvas.Address{}, fmt.Errorf("no fast tier configured")
	}
	if err := r.Validate(); err != nil {
		return canvas.Address{}, err
	}
	if r.Kind == canvas.ResourceShard {
		if err := e.geometry.CheckShardCoord(r.ShardX, r.ShardY); err != nil {
			return canvas.Address{}, err
		}
	}

	if err := e.authorizeDelegation(ctx, signer, r); err != nil {
		return canvas.Address{}, err
	}

	ok, err := e.store.CompareAndSetTier(ctx, r, canvas.TierDurable, canvas.TierDelegated)
	if err != nil {
		return canvas.Address{}, fmt.Errorf("failed to delegate %s: %w", r, err)
	}
	if !ok {
		return canvas.Address{}, fmt.Errorf("%w: %s", canvas.ErrAlreadyDelegated, r)
	}

	addr := r.Address()
	if err := e.handOff(ctx, signer, r, addr, target); err != nil {
		if _, rbErr := e.store.CompareAndSetTier(ctx, r, canvas.TierDelegated, canvas.TierDurable); rbErr != nil {
			e.logger.Error("failed to roll back delegation",
				"resource", r.String(),
				"error", rbErr,
			)
			return canvas.Address{}, errors.Join(err, rbErr)
		}
		return canvas.Address{}, err
	}

	e.logger.Info("resource delegated",
		"resource", r.String(),
		"address", addr.String(),
		"target", target,
	)
	return addr, nil
}

func (e *Engine) authorizeDelegation(ctx context.Context, signer canvas.Identity, r canvas.Resource) error {
	if r.Kind == canvas.ResourceSession {
		session, err := e.store.GetSession(ctx, r.Root)
		if err != nil {
			return fmt.Errorf("failed to delegate %s: %w", r, err)
		}
		return e.identity.AuthorizeWrite(session, signer)
	}

	session, err := e.signerSession(ctx, signer)
	if err != nil {
		return err
	}
	return e.identity.AuthorizeWrite(session, signer)
}

func (e *Engine) handOff(ctx context.Context, signer canvas.Identity, r canvas.Resource, addr canvas.Address, target string) error {
	snap, err := e.store.Export(ctx, r)
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", r, err)
	}
	data, err := ledger.EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	err = e.fast.Delegate(ctx, DelegateRequest{
		Address:        addr,
		Resource:       r,
		OwnerAuthority: signer,
		SeedPath:       r.SeedPath(),
		Target:         target,
		Snapshot:       data,
	})
	if err != nil {
		return fmt.Errorf("fast tier refused %s: %w", r, err)
	}
	return nil
}

// CommitResource pulls delegated resources back from the fast tier and
// returns them to Durable. The batch commits as a whole: the fast tier
// freezes every resource, the durable ledger reconciles all of them in one
// transaction, and only then does the fast tier drop its copies. If any step
// before the release fails, every resource stays delegated with its fast
// tier state intact. A resource named more than once is committed once.
//
// Errors: NotDelegated, NotFound, WrongTier.
func (e *Engine) CommitResource(ctx context.Context, resources ...canvas.Resource) error {
	if err := e.requireTier("commit", canvas.TierDurable); err != nil {
		return err
	}
	if e.fast == nil {
		return fmt.Errorf("no fast tier configured")
	}

	resources = uniqueResources(resources)
	if len(resources) == 0 {
		return nil
	}

	addrs := make([]canvas.Address, 0, len(resources))
	for _, r := range resources {
		if err := r.Validate(); err != nil {
			return err
		}
		tier, err := e.store.Tier(ctx, r)
		if err != nil {
			return fmt.Errorf("failed to commit %s: %w", r, err)
		}
		if tier != canvas.TierDelegated {
			return fmt.Errorf("%w: %s", canvas.ErrNotDelegated, r)
		}
		addrs = append(addrs, r.Address())
	}

	encoded, err := e.fast.Freeze(ctx, addrs)
	if err != nil {
		return fmt.Errorf("fast tier commit failed: %w", err)
	}

	if err := e.reconcile(ctx, resources, encoded); err != nil {
		if thawErr := e.fast.Thaw(ctx, addrs); thawErr != nil {
			e.logger.Error("failed to thaw resources after aborted commit",
				"resources", len(addrs),
				"error", thawErr,
			)
			return errors.Join(err, thawErr)
		}
		return err
	}

	// The ledger is authoritative from here on. Frozen leftovers on the fast
	// tier reject writes and are replaced by the next delegation.
	if err := e.fast.Release(ctx, addrs); err != nil {
		e.logger.Error("fast tier failed to release committed resources", "error", err)
	}

	for i, r := range resources {
		e.logger.Info("resource committed",
			"resource", r.String(),
			"address", addrs[i].String(),
		)
	}
	return nil
}

// reconcile decodes the frozen snapshots and folds them into the ledger in
// one call.
func (e *Engine) reconcile(ctx context.Context, resources []canvas.Resource, encoded [][]byte) error {
	if len(encoded) != len(resources) {
		return fmt.Errorf("fast tier returned %d snapshots for %d resources", len(encoded), len(resources))
	}

	snaps := make([]*ledger.Snapshot, len(encoded))
	for i, data := range encoded {
		snap, err := ledger.DecodeSnapshot(data)
		if err != nil {
			return fmt.Errorf("failed to commit %s: %w", resources[i], err)
		}
		if snap.Resource != resources[i] {
			return fmt.Errorf("fast tier returned %s for %s", snap.Resource, resources[i])
		}
		snaps[i] = snap
	}

	if err := e.store.Reconcile(ctx, snaps...); err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}
	return nil
}

func uniqueResources(resources []canvas.Resource) []canvas.Resource {
	seen := make(map[canvas.Resource]bool, len(resources))
	out := make([]canvas.Resource, 0, len(resources))
	for _, r := range resources {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
