package inspect

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/tessera/internal/filter"
	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
)

// OutputFormat specifies how list output is formatted.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ShardLister lists materialized shards. Implemented by *ledger.Client and *ledger.Memory.
type ShardLister interface {
	ListShards(ctx context.Context) ([]*canvas.ShardRecord, error)
}

// DelegationLister lists fast tier delegations.
type DelegationLister interface {
	ListDelegations(ctx context.Context) ([]*ledger.Delegation, error)
}

// ListShards writes every shard matching filters to w, in row-major order.
func ListShards(ctx context.Context, store ShardLister, geometry canvas.Geometry, instanceName string, format OutputFormat, filters *filter.Criteria, w io.Writer) error {
	all, err := store.ListShards(ctx)
	if err != nil {
		return fmt.Errorf("failed to list shards: %w", err)
	}

	shards := all[:0]
	for _, s := range all {
		if filters != nil && !filters.Matches(s) {
			continue
		}
		shards = append(shards, s)
	}

	switch format {
	case OutputFormatDefault:
		FormatShardTable(w, shards, geometry, instanceName)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, shards); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}

// ListDelegations writes every delegation held by a fast tier to w, oldest first.
func ListDelegations(ctx context.Context, store DelegationLister, instanceName string, format OutputFormat, w io.Writer) error {
	delegations, err := store.ListDelegations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list delegations: %w", err)
	}

	switch format {
	case OutputFormatDefault:
		FormatDelegationTable(w, delegations, instanceName)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, delegations); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
