// Package decompress implements the sample and pattern compression schemes used by
// tracker formats. Every decoder takes its input through a cursor, never reads beyond
// it, never writes beyond the requested output length, and caps its internal tables at
// fixed sizes whatever the stream claims.
package decompress

import (
	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
)

var (
	// ErrStreamExhausted means the input ended before the stream was complete.
	ErrStreamExhausted = errors.New("compressed stream ended early")
	// ErrCorruptStream means the stream contains a code that cannot occur in valid data.
	ErrCorruptStream = errors.New("corrupt compressed stream")
)

// BitReader reads bit fields least significant bit first.
type BitReader struct {
	c     *cursor.Cursor
	buf   uint64
	nbits uint
}

// NewBitReader reads bits from c, starting at its current position.
func NewBitReader(c *cursor.Cursor) *BitReader {
	return &BitReader{c: c}
}

// ReadBits returns the next n (at most 32) bits. It fails if the input runs out.
func (b *BitReader) ReadBits(n uint) (uint32, bool) {
	if n > 32 {
		return 0, false
	}
	for b.nbits < n {
		if !b.c.CanRead(1) {
			return 0, false
		}
		b.buf |= uint64(b.c.ReadUint8()) << b.nbits
		b.nbits += 8
	}
	v := uint32(b.buf & (1<<n - 1))
	b.buf >>= n
	b.nbits -= n
	return v, true
}

// Align drops the bits left in the current byte.
func (b *BitReader) Align() {
	b.buf = 0
	b.nbits = 0
}
