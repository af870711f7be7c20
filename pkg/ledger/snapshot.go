package ledger

import (
	"fmt"

	"github.com/dyluth/tessera/internal/codec"
	"github.com/dyluth/tessera/pkg/canvas"
)

// Snapshot is the transferable state of one resource. It is what moves from
// the durable store into the fast tier on delegate, and back on commit.
// Exactly one of Session and Shard is set, matching Resource.Kind.
type Snapshot struct {
	Resource canvas.Resource       `cbor:"1,keyasint"`
	Session  *canvas.SessionRecord `cbor:"2,keyasint,omitempty"`
	Shard    *canvas.ShardRecord   `cbor:"3,keyasint,omitempty"`
}

// Validate checks that the snapshot carries the record its resource names.
func (s *Snapshot) Validate() error {
	if err := s.Resource.Validate(); err != nil {
		return err
	}

	switch s.Resource.Kind {
	case canvas.ResourceShard:
		if s.Shard == nil || s.Session != nil {
			return fmt.Errorf("shard snapshot must carry exactly a shard record")
		}
		if s.Shard.ShardX != s.Resource.ShardX || s.Shard.ShardY != s.Resource.ShardY {
			return fmt.Errorf("shard snapshot for %s carries shard (%d, %d)", s.Resource, s.Shard.ShardX, s.Shard.ShardY)
		}
	case canvas.ResourceSession:
		if s.Session == nil || s.Shard != nil {
			return fmt.Errorf("session snapshot must carry exactly a session record")
		}
		if s.Session.RootIdentity != s.Resource.Root {
			return fmt.Errorf("session snapshot for %s carries root %s", s.Resource, s.Session.RootIdentity)
		}
	}
	return nil
}

// Tier returns the tier state recorded in the snapshot's record.
func (s *Snapshot) Tier() canvas.TierState {
	if s.Shard != nil {
		return s.Shard.Tier
	}
	if s.Session != nil {
		return s.Session.Tier
	}
	return ""
}

// setTier overwrites the tier state of the snapshot's record.
func (s *Snapshot) setTier(t canvas.TierState) {
	if s.Shard != nil {
		s.Shard.Tier = t
	}
	if s.Session != nil {
		s.Session.Tier = t
	}
}

// WithTier returns a copy of the snapshot whose record is in tier t.
func (s *Snapshot) WithTier(t canvas.TierState) *Snapshot {
	out := &Snapshot{Resource: s.Resource}
	if s.Shard != nil {
		out.Shard = cloneShard(s.Shard)
	}
	if s.Session != nil {
		out.Session = cloneSession(s.Session)
	}
	out.setTier(t)
	return out
}

// checkReconcile validates a reconcile batch: every snapshot well formed and
// no resource named twice.
func checkReconcile(snaps []*Snapshot) error {
	seen := make(map[canvas.Resource]bool, len(snaps))
	for _, s := range snaps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid snapshot: %w", err)
		}
		if seen[s.Resource] {
			return fmt.Errorf("%s appears twice in one reconcile", s.Resource)
		}
		seen[s.Resource] = true
	}
	return nil
}

// EncodeSnapshot serializes a snapshot as deterministic CBOR compressed with zstd.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	data, err := codec.MarshalCompressed(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot reverses EncodeSnapshot and validates the result.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := codec.UnmarshalCompressed(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return &s, nil
}

func cloneShard(s *canvas.ShardRecord) *canvas.ShardRecord {
	out := *s
	out.Pixels = append([]byte(nil), s.Pixels...)
	return &out
}

func cloneSession(s *canvas.SessionRecord) *canvas.SessionRecord {
	out := *s
	return &out
}
