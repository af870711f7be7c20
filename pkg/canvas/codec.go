package canvas

import "fmt"

// BitDepth is the number of bits stored per pixel. It doubles as the pixel codec:
// 8-bit buffers hold one pixel per byte, 4-bit buffers pack two pixels per byte
// with the even local index in the high nibble.
//
// Color 0 is reserved for unset/transparent. Paintable colors are 1..MaxColor.
type BitDepth uint8

const (
	BitDepth4 BitDepth = 4
	BitDepth8 BitDepth = 8
)

// Validate checks if the BitDepth is supported.
func (d BitDepth) Validate() error {
	switch d {
	case BitDepth4, BitDepth8:
		return nil
	default:
		return fmt.Errorf("unsupported bit depth: %d (must be 4 or 8)", d)
	}
}

// MaxColor is the highest paintable palette index, 2^d - 1.
func (d BitDepth) MaxColor() uint8 {
	return uint8(uint16(1)<<d - 1)
}

// BufferLen is the packed length in bytes of a buffer holding pixels values.
func (d BitDepth) BufferLen(pixels int) int {
	return (pixels*int(d) + 7) / 8
}

// CheckColor fails with ErrInvalidColor unless color is paintable.
// Use Erase, not color 0, to clear a pixel.
func (d BitDepth) CheckColor(color uint8) error {
	if color == 0 || color > d.MaxColor() {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidColor, color, d.MaxColor())
	}
	return nil
}

// Get returns the color stored at idx.
func (d BitDepth) Get(buf []byte, idx int) uint8 {
	if d == BitDepth4 {
		b := buf[idx/2]
		if idx%2 == 0 {
			return b >> 4
		}
		return b & 0x0f
	}
	return buf[idx]
}

// Place stores color at idx, leaving every other pixel untouched.
func (d BitDepth) Place(buf []byte, idx int, color uint8) error {
	if err := d.CheckColor(color); err != nil {
		return err
	}
	d.put(buf, idx, color)
	return nil
}

// Erase clears the pixel at idx. Erasing an unset pixel is a no-op.
func (d BitDepth) Erase(buf []byte, idx int) {
	d.put(buf, idx, 0)
}

func (d BitDepth) put(buf []byte, idx int, v uint8) {
	if d != BitDepth4 {
		buf[idx] = v
		return
	}
	i := idx / 2
	if idx%2 == 0 {
		buf[i] = buf[i]&0x0f | v<<4
	} else {
		buf[i] = buf[i]&0xf0 | v&0x0f
	}
}
