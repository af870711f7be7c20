// Package canvas provides the pure, storage-independent core of the Tessera
// pixel canvas: coordinate addressing, bit-packed pixel encoding, the cooldown
// limiter, record and event types, and the structured error taxonomy.
//
// # Overview
//
// The canvas is a square bitmap of Resolution x Resolution pixels cut into
// ShardDimension x ShardDimension shards. Shards are materialized on demand,
// so only painted regions cost storage. Every pixel maps to exactly one shard
// and one local index inside it:
//
//	sx, sy = px / ShardDimension, py / ShardDimension
//	idx    = (py % ShardDimension) * ShardDimension + (px % ShardDimension)
//
// With the default geometry (524,288 pixels per axis, 90 pixel shards) the grid
// has 5,826 shards per axis and every shard holds 8,100 pixels.
//
// # Pixel Encoding
//
// Shards store a packed buffer whose length never changes after creation.
// BitDepth8 uses one byte per pixel; BitDepth4 packs two pixels per byte with
// the even local index in the high nibble. Color 0 means unset/transparent.
//
// # Records and Resources
//
// SessionRecord binds a root identity to the session authority that signs its
// writes and carries the cooldown state. ShardRecord holds one tile. Both are
// delegable Resources with a deterministic Address derived from a seed tuple:
//
//	("shard", le16 shard_x, le16 shard_y)
//	("session", root_identity)
//
// # Usage Example
//
//	g := canvas.DefaultGeometry()
//	sx, sy, err := g.ShardOf(90, 0) // shard (1, 0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	shard, _ := canvas.NewShardRecord(g, sx, sy, creator)
//	idx, _ := g.Locate(sx, sy, 90, 0)
//	_ = g.BitDepth.Place(shard.Pixels, idx, 7)
//
// # Errors
//
// Every failure is a *Error with a stable Code and Kind. Match with errors.Is
// against the exported sentinels (ErrShardMismatch, ErrCooldownActive, ...).
package canvas
