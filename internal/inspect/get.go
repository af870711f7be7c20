package inspect

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
)

// RecordGetter reads single records. Implemented by *ledger.Client and *ledger.Memory.
type RecordGetter interface {
	GetSession(ctx context.Context, root canvas.Identity) (*canvas.SessionRecord, error)
	GetShard(ctx context.Context, sx, sy uint16) (*canvas.ShardRecord, error)
}

// ShardView selects how GetShard renders a shard.
type ShardView string

const (
	ShardViewSummary ShardView = "summary"
	ShardViewGrid    ShardView = "grid"
	ShardViewJSON    ShardView = "json"
)

// NotFoundError reports a record that does not exist.
// This allows callers to distinguish not-found errors from other failures.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.What)
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// GetShard writes shard (sx, sy) to w in the requested view.
func GetShard(ctx context.Context, store RecordGetter, geometry canvas.Geometry, sx, sy uint16, view ShardView, w io.Writer) error {
	if err := geometry.CheckShardCoord(sx, sy); err != nil {
		return err
	}

	shard, err := store.GetShard(ctx, sx, sy)
	if err != nil {
		if ledger.IsNotFound(err) {
			return &NotFoundError{What: fmt.Sprintf("shard (%d, %d)", sx, sy)}
		}
		return fmt.Errorf("failed to fetch shard: %w", err)
	}

	switch view {
	case ShardViewSummary, "":
		FormatShard(w, shard, geometry)
	case ShardViewGrid:
		FormatShardGrid(w, shard, geometry)
	case ShardViewJSON:
		if err := FormatSingleJSON(w, shard); err != nil {
			return fmt.Errorf("failed to format shard: %w", err)
		}
	default:
		return fmt.Errorf("unknown shard view: %s", view)
	}
	return nil
}

// GetSession writes the session of root to w, as labelled lines or JSON.
func GetSession(ctx context.Context, store RecordGetter, cooldown canvas.Cooldown, root canvas.Identity, asJSON bool, w io.Writer) error {
	if err := root.Validate(); err != nil {
		return fmt.Errorf("invalid root identity: %w", err)
	}

	session, err := store.GetSession(ctx, root)
	if err != nil {
		if ledger.IsNotFound(err) {
			return &NotFoundError{What: fmt.Sprintf("session for %s", root)}
		}
		return fmt.Errorf("failed to fetch session: %w", err)
	}

	if asJSON {
		if err := FormatSingleJSON(w, session); err != nil {
			return fmt.Errorf("failed to format session: %w", err)
		}
		return nil
	}
	FormatSession(w, session, cooldown)
	return nil
}
