package canvas

import "fmt"

// Canvas defaults, matching the deployed 524,288 x 524,288 canvas.
const (
	// DefaultResolution is the number of pixels per canvas axis (2^19).
	DefaultResolution uint32 = 524288

	// DefaultShardDimension is the edge length of a square shard in pixels.
	DefaultShardDimension uint32 = 90

	// DefaultBitDepth stores one byte per pixel.
	DefaultBitDepth = BitDepth8

	// maxShardsPerDim keeps shard coordinates inside uint16.
	maxShardsPerDim = 1 << 16
)

// Geometry describes how the canvas is cut into shards and how pixels are packed.
// The zero value is not usable; start from DefaultGeometry.
type Geometry struct {
	Resolution     uint32   `json:"resolution" yaml:"resolution"`
	ShardDimension uint32   `json:"shard_dimension" yaml:"shard_dimension"`
	BitDepth       BitDepth `json:"bit_depth" yaml:"bit_depth"`
}

// DefaultGeometry returns the deployed canvas configuration.
func DefaultGeometry() Geometry {
	return Geometry{
		Resolution:     DefaultResolution,
		ShardDimension: DefaultShardDimension,
		BitDepth:       DefaultBitDepth,
	}
}

// Validate checks that the geometry is usable.
func (g Geometry) Validate() error {
	if g.Resolution == 0 {
		return fmt.Errorf("resolution must be > 0")
	}
	if g.ShardDimension == 0 {
		return fmt.Errorf("shard_dimension must be > 0")
	}
	if g.ShardDimension > g.Resolution {
		return fmt.Errorf("shard_dimension %d exceeds resolution %d", g.ShardDimension, g.Resolution)
	}
	if g.ShardDimension > 1<<15 {
		return fmt.Errorf("shard_dimension %d too large (max %d)", g.ShardDimension, 1<<15)
	}
	if g.ShardsPerDim() > maxShardsPerDim {
		return fmt.Errorf("%d shards per dimension do not fit 16-bit shard coordinates", g.ShardsPerDim())
	}
	if err := g.BitDepth.Validate(); err != nil {
		return err
	}
	return nil
}

// ShardsPerDim is ceil(Resolution / ShardDimension).
func (g Geometry) ShardsPerDim() uint32 {
	return uint32((uint64(g.Resolution) + uint64(g.ShardDimension) - 1) / uint64(g.ShardDimension))
}

// PixelsPerShard is ShardDimension squared.
func (g Geometry) PixelsPerShard() int {
	return int(g.ShardDimension) * int(g.ShardDimension)
}

// BufferLen is the fixed packed buffer length of every shard.
func (g Geometry) BufferLen() int {
	return g.BitDepth.BufferLen(g.PixelsPerShard())
}

// ShardOf maps a global pixel to the shard containing it.
// Fails with ErrInvalidPixelCoord (an ErrOutOfBounds) outside the canvas.
func (g Geometry) ShardOf(px, py uint32) (sx, sy uint16, err error) {
	if px >= g.Resolution || py >= g.Resolution {
		return 0, 0, fmt.Errorf("%w: (%d, %d) must be below %d", ErrInvalidPixelCoord, px, py, g.Resolution)
	}
	return uint16(px / g.ShardDimension), uint16(py / g.ShardDimension), nil
}

// LocalIndex is the row-major index of a pixel inside its shard.
func (g Geometry) LocalIndex(px, py uint32) int {
	d := g.ShardDimension
	return int((py%d)*d + px%d)
}

// PixelAt is the inverse of ShardOf and LocalIndex.
func (g Geometry) PixelAt(sx, sy uint16, idx int) (px, py uint32) {
	d := g.ShardDimension
	return uint32(sx)*d + uint32(idx)%d, uint32(sy)*d + uint32(idx)/d
}

// CheckShardCoord fails with ErrInvalidShardCoord when (sx, sy) is off the shard grid.
func (g Geometry) CheckShardCoord(sx, sy uint16) error {
	n := g.ShardsPerDim()
	if uint32(sx) >= n || uint32(sy) >= n {
		return fmt.Errorf("%w: (%d, %d) must be below %d", ErrInvalidShardCoord, sx, sy, n)
	}
	return nil
}

// Locate validates a pixel against the shard handle the caller supplied and
// returns its local index. The handle must equal ShardOf(px, py).
func (g Geometry) Locate(sx, sy uint16, px, py uint32) (int, error) {
	wantX, wantY, err := g.ShardOf(px, py)
	if err != nil {
		return 0, err
	}
	if sx != wantX || sy != wantY {
		return 0, fmt.Errorf("%w: pixel (%d, %d) lives in shard (%d, %d), not (%d, %d)",
			ErrShardMismatch, px, py, wantX, wantY, sx, sy)
	}
	return g.LocalIndex(px, py), nil
}
