package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic transaction retries when a watched key
// changes between WATCH and EXEC.
const maxTxRetries = 16

// WriteFunc mutates a session and a shard as one unit. Returning an error
// aborts the transaction and leaves both records untouched.
type WriteFunc func(session *canvas.SessionRecord, shard *canvas.ShardRecord) error

// Client provides instance-scoped Redis operations for canvas records.
// All keys and channels are automatically namespaced with the instance name.
// Every mutation is a single WATCH/MULTI/EXEC transaction, so Redis is the
// serializing ledger for the records it holds.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new ledger client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: canvas instance identifier (see ValidateInstanceName)
//
// Returns an error if instanceName is not a valid namespace.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if err := ValidateInstanceName(instanceName); err != nil {
		return nil, err
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// InstanceName returns the namespace this client operates in.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// transact runs fn under WATCH on keys, retrying when EXEC aborts because a
// watched key changed.
func (c *Client) transact(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := c.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("transaction on %v aborted after %d retries: %w", keys, maxTxRetries, redis.TxFailedErr)
}

// CreateSession stores a new session record and its authority index entry.
// Fails with canvas.ErrAlreadyExists if the root identity already has a
// session or the authority is already bound to a root.
func (c *Client) CreateSession(ctx context.Context, s *canvas.SessionRecord) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	sessionKey := SessionKey(c.instanceName, s.RootIdentity)
	authorityKey := AuthorityKey(c.instanceName, s.SessionAuthority)

	return c.transact(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, sessionKey, authorityKey).Result()
		if err != nil {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: session for %s or authority %s is already bound",
				canvas.ErrAlreadyExists, s.RootIdentity, s.SessionAuthority)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, sessionKey, SessionToHash(s))
			pipe.Set(ctx, authorityKey, string(s.RootIdentity), 0)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write session to Redis: %w", err)
		}
		return nil
	}, sessionKey, authorityKey)
}

// GetSession retrieves the session of a root identity.
// Returns canvas.ErrNotFound if none is bound.
func (c *Client) GetSession(ctx context.Context, root canvas.Identity) (*canvas.SessionRecord, error) {
	hashData, err := c.rdb.HGetAll(ctx, SessionKey(c.instanceName, root)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, fmt.Errorf("%w: no session for %s", canvas.ErrNotFound, root)
	}

	session, err := HashToSession(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}
	return session, nil
}

// SessionByAuthority retrieves the session a session authority is bound to.
// Returns canvas.ErrNotFound if the authority is unknown.
func (c *Client) SessionByAuthority(ctx context.Context, authority canvas.Identity) (*canvas.SessionRecord, error) {
	root, err := c.rdb.Get(ctx, AuthorityKey(c.instanceName, authority)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: authority %s is not bound", canvas.ErrNotFound, authority)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read authority index: %w", err)
	}
	return c.GetSession(ctx, canvas.Identity(root))
}

// CreateShard stores a new shard and increments the owned shard count of
// its creator's session in the same transaction.
// Fails with canvas.ErrAlreadyExists if the shard exists, with
// canvas.ErrNotFound if the creator has no session and with
// canvas.ErrWrongTier if that session is delegated.
func (c *Client) CreateShard(ctx context.Context, shard *canvas.ShardRecord) error {
	shardKey := ShardKey(c.instanceName, shard.ShardX, shard.ShardY)
	sessionKey := SessionKey(c.instanceName, shard.Creator)

	return c.transact(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, shardKey).Result()
		if err != nil {
			return fmt.Errorf("failed to check shard existence: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: shard (%d, %d)", canvas.ErrAlreadyExists, shard.ShardX, shard.ShardY)
		}

		sessionTier, err := tx.HGet(ctx, sessionKey, "tier").Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: creator %s has no session", canvas.ErrNotFound, shard.Creator)
		}
		if err != nil {
			return fmt.Errorf("failed to check creator session: %w", err)
		}
		if canvas.TierState(sessionTier) != canvas.TierDurable {
			return fmt.Errorf("%w: session of creator %s is %s", canvas.ErrWrongTier, shard.Creator, sessionTier)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, shardKey, ShardToHash(shard))
			pipe.HIncrBy(ctx, sessionKey, "owned_shard_count", 1)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write shard to Redis: %w", err)
		}
		return nil
	}, shardKey, sessionKey)
}

// GetShard retrieves shard (sx, sy). Returns canvas.ErrNotFound if the
// region has never been materialized.
func (c *Client) GetShard(ctx context.Context, sx, sy uint16) (*canvas.ShardRecord, error) {
	hashData, err := c.rdb.HGetAll(ctx, ShardKey(c.instanceName, sx, sy)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read shard from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, fmt.Errorf("%w: shard (%d, %d)", canvas.ErrNotFound, sx, sy)
	}

	shard, err := HashToShard(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize shard: %w", err)
	}
	return shard, nil
}

// ApplyWrite loads the session of root and shard (sx, sy), hands both to fn,
// and persists both if fn succeeds. The whole sequence is one transaction:
// no other writer can interleave with the cooldown evaluation or the pixel
// read-modify-write.
func (c *Client) ApplyWrite(ctx context.Context, root canvas.Identity, sx, sy uint16, fn WriteFunc) error {
	sessionKey := SessionKey(c.instanceName, root)
	shardKey := ShardKey(c.instanceName, sx, sy)

	return c.transact(ctx, func(tx *redis.Tx) error {
		sessionHash, err := tx.HGetAll(ctx, sessionKey).Result()
		if err != nil {
			return fmt.Errorf("failed to read session from Redis: %w", err)
		}
		if len(sessionHash) == 0 {
			return fmt.Errorf("%w: no session for %s", canvas.ErrNotFound, root)
		}

		shardHash, err := tx.HGetAll(ctx, shardKey).Result()
		if err != nil {
			return fmt.Errorf("failed to read shard from Redis: %w", err)
		}
		if len(shardHash) == 0 {
			return fmt.Errorf("%w: shard (%d, %d)", canvas.ErrNotFound, sx, sy)
		}

		session, err := HashToSession(sessionHash)
		if err != nil {
			return fmt.Errorf("failed to deserialize session: %w", err)
		}
		shard, err := HashToShard(shardHash)
		if err != nil {
			return fmt.Errorf("failed to deserialize shard: %w", err)
		}

		if err := fn(session, shard); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, sessionKey, SessionToHash(session))
			pipe.HSet(ctx, shardKey, ShardToHash(shard))
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write records to Redis: %w", err)
		}
		return nil
	}, sessionKey, shardKey)
}

// Tier returns the tier state of a resource.
func (c *Client) Tier(ctx context.Context, r canvas.Resource) (canvas.TierState, error) {
	tier, err := c.rdb.HGet(ctx, ResourceKey(c.instanceName, r), "tier").Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", canvas.ErrNotFound, r)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read tier of %s: %w", r, err)
	}
	return canvas.TierState(tier), nil
}

// CompareAndSetTier moves a resource from tier `from` to tier `to`.
// Returns false without error if the resource is not currently in `from`.
func (c *Client) CompareAndSetTier(ctx context.Context, r canvas.Resource, from, to canvas.TierState) (bool, error) {
	key := ResourceKey(c.instanceName, r)
	var swapped bool

	err := c.transact(ctx, func(tx *redis.Tx) error {
		swapped = false

		current, err := tx.HGet(ctx, key, "tier").Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", canvas.ErrNotFound, r)
		}
		if err != nil {
			return fmt.Errorf("failed to read tier of %s: %w", r, err)
		}
		if canvas.TierState(current) != from {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "tier", string(to))
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write tier of %s: %w", r, err)
		}
		swapped = true
		return nil
	}, key)

	return swapped, err
}

// Export reads the current state of a resource as a Snapshot.
func (c *Client) Export(ctx context.Context, r canvas.Resource) (*Snapshot, error) {
	switch r.Kind {
	case canvas.ResourceShard:
		shard, err := c.GetShard(ctx, r.ShardX, r.ShardY)
		if err != nil {
			return nil, err
		}
		return &Snapshot{Resource: r, Shard: shard}, nil
	case canvas.ResourceSession:
		session, err := c.GetSession(ctx, r.Root)
		if err != nil {
			return nil, err
		}
		return &Snapshot{Resource: r, Session: session}, nil
	default:
		return nil, fmt.Errorf("unknown resource kind: %q", r.Kind)
	}
}

// Import writes a snapshot verbatim, replacing any existing record.
// Used by a fast tier to take a copy of a delegated resource.
func (c *Client) Import(ctx context.Context, s *Snapshot) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	key := ResourceKey(c.instanceName, s.Resource)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if s.Shard != nil {
			pipe.HSet(ctx, key, ShardToHash(s.Shard))
		} else {
			pipe.HSet(ctx, key, SessionToHash(s.Session))
			pipe.Set(ctx, AuthorityKey(c.instanceName, s.Session.SessionAuthority), string(s.Session.RootIdentity), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", s.Resource, err)
	}
	return nil
}

// Reconcile folds committed snapshots back into their delegated records and
// returns them to the durable tier in one transaction: either every record
// is reconciled or none is. Only state the fast tier may change is copied:
// the pixel buffer of a shard, the cooldown state of a session.
// Fails with canvas.ErrNotDelegated if any record is not delegated.
func (c *Client) Reconcile(ctx context.Context, snaps ...*Snapshot) error {
	if err := checkReconcile(snaps); err != nil {
		return err
	}

	keys := make([]string, len(snaps))
	for i, s := range snaps {
		keys[i] = ResourceKey(c.instanceName, s.Resource)
	}

	return c.transact(ctx, func(tx *redis.Tx) error {
		for i, s := range snaps {
			current, err := tx.HGet(ctx, keys[i], "tier").Result()
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", canvas.ErrNotFound, s.Resource)
			}
			if err != nil {
				return fmt.Errorf("failed to read tier of %s: %w", s.Resource, err)
			}
			if canvas.TierState(current) != canvas.TierDelegated {
				return fmt.Errorf("%w: %s", canvas.ErrNotDelegated, s.Resource)
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, s := range snaps {
				fields := map[string]interface{}{"tier": string(canvas.TierDurable)}
				if s.Shard != nil {
					fields["pixels"] = s.Shard.Pixels
				} else {
					fields["cooldown_counter"] = s.Session.CooldownCounter
					fields["last_write_time"] = s.Session.LastWriteTime
				}
				pipe.HSet(ctx, keys[i], fields)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to reconcile: %w", err)
		}
		return nil
	}, keys...)
}

// Remove deletes a resource's record. Only fast tiers drop records; the
// durable store never does.
func (c *Client) Remove(ctx context.Context, r canvas.Resource) error {
	key := ResourceKey(c.instanceName, r)
	keys := []string{key}

	if r.Kind == canvas.ResourceSession {
		authority, err := c.rdb.HGet(ctx, key, "session_authority").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read session authority: %w", err)
		}
		if authority != "" {
			keys = append(keys, AuthorityKey(c.instanceName, canvas.Identity(authority)))
		}
	}

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to remove %s: %w", r, err)
	}
	return nil
}

// PublishPixelChanged publishes a PixelChanged event as JSON on
// tessera:{instance}:pixel_events.
func (c *Client) PublishPixelChanged(ctx context.Context, ev *canvas.PixelChanged) error {
	return c.publish(ctx, PixelEventsChannel(c.instanceName), ev)
}

// PublishShardInitialized publishes a ShardInitialized event as JSON on
// tessera:{instance}:shard_events.
func (c *Client) PublishShardInitialized(ctx context.Context, ev *canvas.ShardInitialized) error {
	return c.publish(ctx, ShardEventsChannel(c.instanceName), ev)
}

func (c *Client) publish(ctx context.Context, channel string, ev any) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event on %s: %w", channel, err)
	}
	return nil
}

// IsNotFound returns true if err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, canvas.ErrNotFound) || errors.Is(err, redis.Nil)
}
