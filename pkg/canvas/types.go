package canvas

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// Identity is the base58 text form of a 32-byte Ed25519 public key.
// Root identities and session authorities are both Identities.
type Identity string

// IdentityFromPublicKey encodes an Ed25519 public key as an Identity.
func IdentityFromPublicKey(pub ed25519.PublicKey) Identity {
	return Identity(base58.Encode(pub))
}

// PublicKey decodes the identity back into an Ed25519 public key.
func (id Identity) PublicKey() (ed25519.PublicKey, error) {
	raw, err := base58.Decode(string(id))
	if err != nil {
		return nil, fmt.Errorf("invalid identity %q: %w", id, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid identity %q: %d bytes, want %d", id, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// Validate checks that the identity decodes to a public key.
func (id Identity) Validate() error {
	if id == "" {
		return fmt.Errorf("identity cannot be empty")
	}
	_, err := id.PublicKey()
	return err
}

// TierState records which execution tier currently owns a record.
type TierState string

const (
	// TierDurable means the durable ledger linearizes writes to the record.
	TierDurable TierState = "durable"

	// TierDelegated means write authority has been handed to the fast tier.
	TierDelegated TierState = "delegated"
)

// Validate checks if the TierState is a valid enum value.
func (t TierState) Validate() error {
	switch t {
	case TierDurable, TierDelegated:
		return nil
	default:
		return fmt.Errorf("unknown tier state: %q", t)
	}
}

// SessionRecord is the delegated write authority of one root identity.
// Exactly one exists per root identity; SessionAuthority must sign every
// write attributed to it.
type SessionRecord struct {
	RootIdentity     Identity  `json:"root_identity" cbor:"1,keyasint"`
	SessionAuthority Identity  `json:"session_authority" cbor:"2,keyasint"`
	CooldownCounter  uint8     `json:"cooldown_counter" cbor:"3,keyasint"`
	LastWriteTime    uint64    `json:"last_write_time" cbor:"4,keyasint"` // Unix seconds when the counter last reached the limit
	OwnedShardCount  uint32    `json:"owned_shard_count" cbor:"5,keyasint"`
	Tier             TierState `json:"tier" cbor:"6,keyasint"`
	CreatedAtMs      int64     `json:"created_at_ms" cbor:"7,keyasint"`
}

// Validate checks if the SessionRecord has valid field values.
func (s *SessionRecord) Validate() error {
	if err := s.RootIdentity.Validate(); err != nil {
		return fmt.Errorf("invalid root identity: %w", err)
	}
	if err := s.SessionAuthority.Validate(); err != nil {
		return fmt.Errorf("invalid session authority: %w", err)
	}
	if err := s.Tier.Validate(); err != nil {
		return fmt.Errorf("invalid tier: %w", err)
	}
	return nil
}

// Resource returns the lifecycle handle of this session.
func (s *SessionRecord) Resource() Resource {
	return SessionResource(s.RootIdentity)
}

// ShardRecord is one fixed-size tile of the canvas.
type ShardRecord struct {
	ShardX      uint16    `json:"shard_x" cbor:"1,keyasint"`
	ShardY      uint16    `json:"shard_y" cbor:"2,keyasint"`
	Pixels      []byte    `json:"pixels" cbor:"3,keyasint"` // Packed buffer, length fixed at creation
	Creator     Identity  `json:"creator" cbor:"4,keyasint"`
	Tier        TierState `json:"tier" cbor:"5,keyasint"`
	CreatedAtMs int64     `json:"created_at_ms" cbor:"6,keyasint"`
}

// NewShardRecord allocates a zero-filled shard owned by creator in the durable tier.
func NewShardRecord(g Geometry, sx, sy uint16, creator Identity) (*ShardRecord, error) {
	if err := g.CheckShardCoord(sx, sy); err != nil {
		return nil, err
	}
	return &ShardRecord{
		ShardX:  sx,
		ShardY:  sy,
		Pixels:  make([]byte, g.BufferLen()),
		Creator: creator,
		Tier:    TierDurable,
	}, nil
}

// Validate checks the record against the canvas geometry.
func (s *ShardRecord) Validate(g Geometry) error {
	if err := g.CheckShardCoord(s.ShardX, s.ShardY); err != nil {
		return err
	}
	if len(s.Pixels) != g.BufferLen() {
		return fmt.Errorf("invalid pixel buffer: %d bytes, want %d", len(s.Pixels), g.BufferLen())
	}
	if err := s.Creator.Validate(); err != nil {
		return fmt.Errorf("invalid creator: %w", err)
	}
	if err := s.Tier.Validate(); err != nil {
		return fmt.Errorf("invalid tier: %w", err)
	}
	return nil
}

// Resource returns the lifecycle handle of this shard.
func (s *ShardRecord) Resource() Resource {
	return ShardResource(s.ShardX, s.ShardY)
}

// PixelChanged is emitted for every placed or erased pixel. Color 0 means erased.
// Field order is part of the indexer contract.
type PixelChanged struct {
	PX             uint32   `json:"px" cbor:"1,keyasint"`
	PY             uint32   `json:"py" cbor:"2,keyasint"`
	Color          uint8    `json:"color" cbor:"3,keyasint"`
	WriterIdentity Identity `json:"writer_identity" cbor:"4,keyasint"`
	RootIdentity   Identity `json:"root_identity,omitempty" cbor:"5,keyasint,omitempty"`
	Timestamp      uint64   `json:"timestamp" cbor:"6,keyasint"`
}

// ShardInitialized is emitted once when a shard is materialized.
type ShardInitialized struct {
	ShardX       uint16   `json:"shard_x" cbor:"1,keyasint"`
	ShardY       uint16   `json:"shard_y" cbor:"2,keyasint"`
	Creator      Identity `json:"creator" cbor:"3,keyasint"`
	RootIdentity Identity `json:"root_identity,omitempty" cbor:"4,keyasint,omitempty"`
	Timestamp    uint64   `json:"timestamp" cbor:"5,keyasint"`
}
