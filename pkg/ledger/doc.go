// Package ledger stores canvas records and carries canvas events.
//
// # Overview
//
// The ledger is the system of record for sessions and shards. Client keeps
// records in Redis and runs every mutation as a WATCH/MULTI/EXEC transaction,
// so concurrent writers to the same shard or session are serialized by Redis
// itself. Memory implements the same operations in process behind a mutex; it
// backs the in-process fast tier and tests.
//
// # Lifecycle
//
// A resource (a shard or a session) is in one of two tiers. CompareAndSetTier
// flips a resource between them atomically, Export and Import move a Snapshot
// across stores, and Reconcile folds the snapshots that come back from the
// fast tier into their durable records and returns them to durable, all in
// one transaction.
//
// # Redis Schema
//
// All Redis keys follow the pattern: tessera:{instance_name}:{entity}:{id}
//
// Shards: tessera:{instance_name}:shard:{shard_x}:{shard_y}
// Sessions: tessera:{instance_name}:session:{root_identity}
// Authority index: tessera:{instance_name}:authority:{session_authority}
// Fast tier delegations: tessera:{instance_name}:delegations
//
// Pub/Sub channels: tessera:{instance_name}:{event_type}_events
//
// Pixel Events: tessera:{instance_name}:pixel_events
// Shard Events: tessera:{instance_name}:shard_events
//
// Events are published as JSON. Delivery is at-most-once.
//
// # Usage Example
//
//	client, err := ledger.NewClient(&redis.Options{Addr: "localhost:6379"}, "main")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	shard, err := client.GetShard(ctx, 3, 7)
//	if ledger.IsNotFound(err) {
//		// region never materialized; every pixel reads as 0
//	}
package ledger
