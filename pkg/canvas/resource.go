package canvas

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// ResourceKind names the two kinds of delegable records.
type ResourceKind string

const (
	ResourceShard   ResourceKind = "shard"
	ResourceSession ResourceKind = "session"
)

// Resource is a handle on one delegable record. Shards are addressed by
// coordinate, sessions by root identity.
type Resource struct {
	Kind   ResourceKind `json:"kind" cbor:"1,keyasint"`
	ShardX uint16       `json:"shard_x,omitempty" cbor:"2,keyasint,omitempty"`
	ShardY uint16       `json:"shard_y,omitempty" cbor:"3,keyasint,omitempty"`
	Root   Identity     `json:"root,omitempty" cbor:"4,keyasint,omitempty"`
}

// ShardResource returns the handle for shard (sx, sy).
func ShardResource(sx, sy uint16) Resource {
	return Resource{Kind: ResourceShard, ShardX: sx, ShardY: sy}
}

// SessionResource returns the handle for the session of root.
func SessionResource(root Identity) Resource {
	return Resource{Kind: ResourceSession, Root: root}
}

// Validate checks if the Resource is well formed.
func (r Resource) Validate() error {
	switch r.Kind {
	case ResourceShard:
		return nil
	case ResourceSession:
		if err := r.Root.Validate(); err != nil {
			return fmt.Errorf("invalid session resource: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown resource kind: %q", r.Kind)
	}
}

// String renders shard:SX:SY or session:ROOT.
func (r Resource) String() string {
	if r.Kind == ResourceShard {
		return fmt.Sprintf("shard:%d:%d", r.ShardX, r.ShardY)
	}
	return fmt.Sprintf("%s:%s", r.Kind, r.Root)
}

// ParseResource parses the String form of a Resource.
func ParseResource(s string) (Resource, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Resource{}, fmt.Errorf("invalid resource %q (use shard:SX:SY or session:ROOT)", s)
	}

	switch ResourceKind(kind) {
	case ResourceShard:
		xs, ys, ok := strings.Cut(rest, ":")
		if !ok {
			return Resource{}, fmt.Errorf("invalid shard resource %q (use shard:SX:SY)", s)
		}
		sx, err := strconv.ParseUint(xs, 10, 16)
		if err != nil {
			return Resource{}, fmt.Errorf("invalid shard x in %q: %w", s, err)
		}
		sy, err := strconv.ParseUint(ys, 10, 16)
		if err != nil {
			return Resource{}, fmt.Errorf("invalid shard y in %q: %w", s, err)
		}
		return ShardResource(uint16(sx), uint16(sy)), nil
	case ResourceSession:
		r := SessionResource(Identity(rest))
		if err := r.Validate(); err != nil {
			return Resource{}, err
		}
		return r, nil
	default:
		return Resource{}, fmt.Errorf("unknown resource kind %q in %q", kind, s)
	}
}

// SeedPath is the stable seed tuple the resource address is derived from:
// ("shard", le16 x, le16 y) or ("session", root).
func (r Resource) SeedPath() [][]byte {
	if r.Kind == ResourceShard {
		x := binary.LittleEndian.AppendUint16(nil, r.ShardX)
		y := binary.LittleEndian.AppendUint16(nil, r.ShardY)
		return [][]byte{[]byte(ResourceShard), x, y}
	}
	return [][]byte{[]byte(ResourceSession), []byte(r.Root)}
}

// ResourceFromSeedPath reverses SeedPath.
func ResourceFromSeedPath(seeds [][]byte) (Resource, error) {
	if len(seeds) == 0 {
		return Resource{}, fmt.Errorf("empty seed path")
	}
	switch ResourceKind(seeds[0]) {
	case ResourceShard:
		if len(seeds) != 3 || len(seeds[1]) != 2 || len(seeds[2]) != 2 {
			return Resource{}, fmt.Errorf("malformed shard seed path")
		}
		return ShardResource(binary.LittleEndian.Uint16(seeds[1]), binary.LittleEndian.Uint16(seeds[2])), nil
	case ResourceSession:
		if len(seeds) != 2 {
			return Resource{}, fmt.Errorf("malformed session seed path")
		}
		return SessionResource(Identity(seeds[1])), nil
	default:
		return Resource{}, fmt.Errorf("unknown seed prefix %q", seeds[0])
	}
}

// Address is the deterministic 32-byte address of a resource.
type Address [32]byte

// addressDomainKey separates address hashes from any other BLAKE3 use.
// Changing it moves every resource to a new address.
var addressDomainKey = [32]byte{
	't', 'e', 's', 's', 'e', 'r', 'a', '.', 'a', 'd', 'd', 'r', 'e', 's', 's', 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DeriveAddress hashes a seed tuple into an Address. Each seed is length
// prefixed so ("ab", "c") and ("a", "bc") never collide.
func DeriveAddress(seeds ...[]byte) Address {
	hasher, err := blake3.NewKeyed(addressDomainKey[:])
	if err != nil {
		panic("canvas: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var prefix [4]byte
	for _, seed := range seeds {
		binary.LittleEndian.PutUint32(prefix[:], uint32(len(seed)))
		hasher.Write(prefix[:])
		hasher.Write(seed)
	}
	var addr Address
	copy(addr[:], hasher.Sum(nil))
	return addr
}

// Address derives the resource's address from its seed path.
func (r Resource) Address() Address {
	return DeriveAddress(r.SeedPath()...)
}

// String returns the hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAddress parses a 64-character hex string into an Address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("parsing address: %w", err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address is %d bytes, want %d", len(raw), len(addr))
	}
	copy(addr[:], raw)
	return addr, nil
}
