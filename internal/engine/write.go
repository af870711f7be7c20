package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/tessera/pkg/canvas"
)

// WriteRequest places one pixel. ShardX/ShardY is the shard the caller
// believes the pixel lives in; it must match the pixel coordinates.
type WriteRequest struct {
	Signer canvas.Identity
	ShardX uint16
	ShardY uint16
	PX     uint32
	PY     uint32
	Color  uint8
}

// WritePixel places a pixel on behalf of the session whose authority signed
// the request. The shard creator is exempt from the cooldown.
//
// Errors: InvalidPixelCoord, ShardMismatch, InvalidColor, InvalidAuth,
// CooldownActive, WrongTier, NotFound.
func (e *Engine) WritePixel(ctx context.Context, req WriteRequest) error {
	return e.mutate(ctx, req, false)
}

// ErasePixel clears a pixel back to 0. It needs a bound session signed by its
// authority but does not consume cooldown.
//
// Errors: InvalidPixelCoord, ShardMismatch, InvalidAuth, WrongTier, NotFound.
func (e *Engine) ErasePixel(ctx context.Context, signer canvas.Identity, sx, sy uint16, px, py uint32) error {
	return e.mutate(ctx, WriteRequest{Signer: signer, ShardX: sx, ShardY: sy, PX: px, PY: py}, true)
}

func (e *Engine) mutate(ctx context.Context, req WriteRequest, erase bool) error {
	// Pure validation first: nothing below may observe a rejected request.
	idx, err := e.geometry.Locate(req.ShardX, req.ShardY, req.PX, req.PY)
	if err != nil {
		return err
	}
	depth := e.geometry.BitDepth
	if !erase {
		if err := depth.CheckColor(req.Color); err != nil {
			return err
		}
	}

	session, err := e.signerSession(ctx, req.Signer)
	if err != nil {
		return err
	}
	root := session.RootIdentity
	now := e.unixNow()

	err = e.store.ApplyWrite(ctx, root, req.ShardX, req.ShardY, func(s *canvas.SessionRecord, shard *canvas.ShardRecord) error {
		if err := e.identity.AuthorizeWrite(s, req.Signer); err != nil {
			return err
		}
		if s.Tier != e.tier {
			return fmt.Errorf("%w: session of %s is %s", canvas.ErrWrongTier, root, s.Tier)
		}
		if shard.Tier != e.tier {
			return fmt.Errorf("%w: shard (%d, %d) is %s", canvas.ErrWrongTier, shard.ShardX, shard.ShardY, shard.Tier)
		}
		if len(shard.Pixels) != e.geometry.BufferLen() {
			return fmt.Errorf("shard (%d, %d) has a %d byte buffer, geometry needs %d",
				shard.ShardX, shard.ShardY, len(shard.Pixels), e.geometry.BufferLen())
		}

		if erase {
			depth.Erase(shard.Pixels, idx)
			return nil
		}
		if shard.Creator != s.RootIdentity {
			if err := e.cooldown.Admit(s, now); err != nil {
				return err
			}
		}
		return depth.Place(shard.Pixels, idx, req.Color)
	})
	if err != nil {
		if e.tier != canvas.TierDurable && errors.Is(err, canvas.ErrNotFound) {
			err = fmt.Errorf("%w: %v", canvas.ErrWrongTier, err)
		}
		e.logger.Debug("pixel write rejected",
			"px", req.PX,
			"py", req.PY,
			"signer", string(req.Signer),
			"code", canvas.CodeOf(err),
			"error", err,
		)
		return err
	}

	color := req.Color
	if erase {
		color = 0
	}
	e.logger.Debug("pixel written",
		"px", req.PX,
		"py", req.PY,
		"color", color,
		"signer", string(req.Signer),
		"root", string(root),
	)

	e.emitPixelChanged(ctx, &canvas.PixelChanged{
		PX:             req.PX,
		PY:             req.PY,
		Color:          color,
		WriterIdentity: req.Signer,
		RootIdentity:   root,
		Timestamp:      now,
	})
	return nil
}

// ReadPixel returns the color at (px, py). A pixel in a shard that has never
// been materialized reads as 0. Reads need no authorization and ignore tier.
func (e *Engine) ReadPixel(ctx context.Context, px, py uint32) (uint8, error) {
	sx, sy, err := e.geometry.ShardOf(px, py)
	if err != nil {
		return 0, err
	}

	shard, err := e.store.GetShard(ctx, sx, sy)
	if errors.Is(err, canvas.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read shard (%d, %d): %w", sx, sy, err)
	}
	if len(shard.Pixels) != e.geometry.BufferLen() {
		return 0, fmt.Errorf("shard (%d, %d) has a %d byte buffer, geometry needs %d",
			sx, sy, len(shard.Pixels), e.geometry.BufferLen())
	}

	return e.geometry.BitDepth.Get(shard.Pixels, e.geometry.LocalIndex(px, py)), nil
}

// emitPixelChanged publishes after the write has committed. A failed publish
// is logged; the write itself stands.
func (e *Engine) emitPixelChanged(ctx context.Context, ev *canvas.PixelChanged) {
	if err := e.store.PublishPixelChanged(ctx, ev); err != nil {
		e.logger.Warn("failed to publish pixel event",
			"px", ev.PX,
			"py", ev.PY,
			"error", err,
		)
	}
}
