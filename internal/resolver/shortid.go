package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
// Set to 6 characters to balance usability with collision avoidance.
const MinShortIDLength = 6

// DelegationLister lists fast tier delegations.
type DelegationLister interface {
	ListDelegations(ctx context.Context) ([]*ledger.Delegation, error)
}

// ResolveDelegation finds the held delegation a reference names.
//
// A reference is one of:
//  1. A resource string (shard:SX:SY or session:ROOT)
//  2. A delegation ID or hex address, in full
//  3. A prefix (>= 6 chars) of a delegation ID or hex address
func ResolveDelegation(ctx context.Context, store DelegationLister, ref string) (*ledger.Delegation, error) {
	delegations, err := store.ListDelegations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list delegations: %w", err)
	}

	if strings.HasPrefix(ref, string(canvas.ResourceShard)+":") || strings.HasPrefix(ref, string(canvas.ResourceSession)+":") {
		r, err := canvas.ParseResource(ref)
		if err != nil {
			return nil, err
		}
		for _, d := range delegations {
			if d.Resource == r {
				return d, nil
			}
		}
		return nil, &NotFoundError{ShortID: ref}
	}

	// Exact matches win over prefixes
	for _, d := range delegations {
		if d.ID == ref || d.Address == ref {
			return d, nil
		}
	}

	if len(ref) < MinShortIDLength {
		return nil, fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(ref))
	}

	var matches []*ledger.Delegation
	for _, d := range delegations {
		if strings.HasPrefix(d.ID, ref) || strings.HasPrefix(d.Address, ref) {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &NotFoundError{ShortID: ref}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, d := range matches {
			ids[i] = d.ID + " (" + d.Resource.String() + ")"
		}
		sort.Strings(ids)
		return nil, &AmbiguousError{ShortID: ref, Matches: ids}
	}
}

// NotFoundError indicates no delegations matched the reference.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no delegations found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple delegations matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d delegations", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly error message for ambiguous short IDs.
// Lists all matches (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("Error: ambiguous short ID '%s' matches %d delegations:\n", err.ShortID, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}

	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the delegation."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
