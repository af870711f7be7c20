package ledger

import (
	"fmt"

	"github.com/dyluth/tessera/pkg/canvas"
)

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several canvases, or the durable and fast tiers of one canvas, can share a
// Redis server without interference.
//
// Key pattern: tessera:{instance_name}:{entity}:{id}
// Channel pattern: tessera:{instance_name}:{event_type}_events

// ShardKey returns the Redis key for a shard record.
// Pattern: tessera:{instance_name}:shard:{shard_x}:{shard_y}
func ShardKey(instanceName string, sx, sy uint16) string {
	return fmt.Sprintf("tessera:%s:shard:%d:%d", instanceName, sx, sy)
}

// SessionKey returns the Redis key for the session record of a root identity.
// Pattern: tessera:{instance_name}:session:{root_identity}
func SessionKey(instanceName string, root canvas.Identity) string {
	return fmt.Sprintf("tessera:%s:session:%s", instanceName, root)
}

// AuthorityKey returns the Redis key of the authority -> root identity index.
// It lets a write signed by a session authority find its session, and keeps
// an authority bound to at most one root.
// Pattern: tessera:{instance_name}:authority:{session_authority}
func AuthorityKey(instanceName string, authority canvas.Identity) string {
	return fmt.Sprintf("tessera:%s:authority:%s", instanceName, authority)
}

// ResourceKey returns the record key a lifecycle Resource lives at.
func ResourceKey(instanceName string, r canvas.Resource) string {
	if r.Kind == canvas.ResourceShard {
		return ShardKey(instanceName, r.ShardX, r.ShardY)
	}
	return SessionKey(instanceName, r.Root)
}

// DelegationsKey returns the Redis hash of resources held by a fast tier,
// keyed by hex resource address.
// Pattern: tessera:{instance_name}:delegations
func DelegationsKey(instanceName string) string {
	return fmt.Sprintf("tessera:%s:delegations", instanceName)
}

// PixelEventsChannel returns the Pub/Sub channel for PixelChanged events.
// Pattern: tessera:{instance_name}:pixel_events
func PixelEventsChannel(instanceName string) string {
	return fmt.Sprintf("tessera:%s:pixel_events", instanceName)
}

// ShardEventsChannel returns the Pub/Sub channel for ShardInitialized events.
// Pattern: tessera:{instance_name}:shard_events
func ShardEventsChannel(instanceName string) string {
	return fmt.Sprintf("tessera:%s:shard_events", instanceName)
}
