package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/redis/go-redis/v9"
)

// Delegation records one resource held by a fast tier.
type Delegation struct {
	ID             string          `json:"id"`
	Address        string          `json:"address"` // hex canvas.Address
	Resource       canvas.Resource `json:"resource"`
	OwnerAuthority canvas.Identity `json:"owner_authority"`
	Target         string          `json:"target,omitempty"`
	DelegatedAtMs  int64           `json:"delegated_at_ms"`
}

// Validate checks if the Delegation has valid field values.
func (d *Delegation) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("delegation id cannot be empty")
	}
	if err := d.Resource.Validate(); err != nil {
		return err
	}
	if d.Address != d.Resource.Address().String() {
		return fmt.Errorf("delegation address %s does not match %s", d.Address, d.Resource)
	}
	return nil
}

func sortDelegations(out []*Delegation) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].DelegatedAtMs == out[j].DelegatedAtMs {
			return out[i].ID < out[j].ID
		}
		return out[i].DelegatedAtMs < out[j].DelegatedAtMs
	})
}

// PutDelegation records a delegation. Fails with canvas.ErrAlreadyDelegated
// if its address is already held.
func (c *Client) PutDelegation(ctx context.Context, d *Delegation) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid delegation: %w", err)
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delegation: %w", err)
	}

	ok, err := c.rdb.HSetNX(ctx, DelegationsKey(c.instanceName), d.Address, data).Result()
	if err != nil {
		return fmt.Errorf("failed to write delegation: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", canvas.ErrAlreadyDelegated, d.Resource)
	}
	return nil
}

// GetDelegation returns the delegation held at addr.
// Fails with canvas.ErrNotDelegated if there is none.
func (c *Client) GetDelegation(ctx context.Context, addr canvas.Address) (*Delegation, error) {
	data, err := c.rdb.HGet(ctx, DelegationsKey(c.instanceName), addr.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: address %s", canvas.ErrNotDelegated, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read delegation: %w", err)
	}

	var d Delegation
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delegation: %w", err)
	}
	return &d, nil
}

// DeleteDelegation forgets the delegation at addr.
func (c *Client) DeleteDelegation(ctx context.Context, addr canvas.Address) error {
	if err := c.rdb.HDel(ctx, DelegationsKey(c.instanceName), addr.String()).Err(); err != nil {
		return fmt.Errorf("failed to delete delegation: %w", err)
	}
	return nil
}

// ListDelegations returns every held delegation, oldest first.
func (c *Client) ListDelegations(ctx context.Context) ([]*Delegation, error) {
	all, err := c.rdb.HGetAll(ctx, DelegationsKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read delegations: %w", err)
	}

	out := make([]*Delegation, 0, len(all))
	for addr, data := range all {
		var d Delegation
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delegation %s: %w", addr, err)
		}
		out = append(out, &d)
	}
	sortDelegations(out)
	return out, nil
}

// PutDelegation records a delegation.
func (m *Memory) PutDelegation(_ context.Context, d *Delegation) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid delegation: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.delegations[d.Address]; held {
		return fmt.Errorf("%w: %s", canvas.ErrAlreadyDelegated, d.Resource)
	}
	cp := *d
	m.delegations[d.Address] = &cp
	return nil
}

// GetDelegation returns the delegation held at addr.
func (m *Memory) GetDelegation(_ context.Context, addr canvas.Address) (*Delegation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, held := m.delegations[addr.String()]
	if !held {
		return nil, fmt.Errorf("%w: address %s", canvas.ErrNotDelegated, addr)
	}
	cp := *d
	return &cp, nil
}

// DeleteDelegation forgets the delegation at addr.
func (m *Memory) DeleteDelegation(_ context.Context, addr canvas.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.delegations, addr.String())
	return nil
}

// ListDelegations returns every held delegation, oldest first.
func (m *Memory) ListDelegations(_ context.Context) ([]*Delegation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Delegation, 0, len(m.delegations))
	for _, d := range m.delegations {
		cp := *d
		out = append(out, &cp)
	}
	sortDelegations(out)
	return out, nil
}
