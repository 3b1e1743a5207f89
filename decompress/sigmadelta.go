package decompress

import (
	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
)

const sigmaDeltaMaxBits = 9

// SigmaDelta decodes Digital Symphony's adaptive sigma-delta stream into size unsigned
// 8-bit values (0x80 is silence).
//
// The first byte is the run length. The first value is stored in 8 bits and becomes the
// accumulator. Each following field is read at the current width: 0 widens by one bit,
// anything else adjusts the accumulator by value>>1, subtracting when the low bit is set.
// A value using the top bit of its field restarts the run; after run-length narrower
// values in a row, the width shrinks by one bit. The stream is
// padded to a multiple of four bytes, and the cursor is left after it.
func SigmaDelta(c *cursor.Cursor, size int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Wrap(ErrCorruptStream, "negative output size")
	}
	if !c.CanRead(1) {
		return nil, errors.Wrap(ErrStreamExhausted, "sigma-delta header missing")
	}
	maxRun := max(int(c.ReadUint8()), 1)
	if size == 0 {
		return []byte{}, nil
	}
	start := c.Position()
	br := NewBitReader(c)

	// Every value takes at least one bit.
	if size > c.Remaining()*8 {
		return nil, errors.Wrapf(ErrStreamExhausted, "sigma-delta stream too short for %d values", size)
	}
	out := make([]byte, size)

	first, ok := br.ReadBits(8)
	if !ok {
		return nil, errors.Wrap(ErrStreamExhausted, "sigma-delta stream ended at the first value")
	}
	accum := uint8(first)
	out[0] = accum
	width := uint(8)
	run := maxRun

	for i := 1; i < size; {
		v, ok := br.ReadBits(width)
		if !ok {
			return nil, errors.Wrapf(ErrStreamExhausted, "sigma-delta stream ended after %d of %d values", i, size)
		}
		if v == 0 {
			if width >= sigmaDeltaMaxBits {
				return nil, errors.Wrapf(ErrCorruptStream, "sigma-delta width beyond %d bits", sigmaDeltaMaxBits)
			}
			width++
			run = maxRun
			continue
		}
		if v&1 != 0 {
			accum -= uint8(v >> 1)
		} else {
			accum += uint8(v >> 1)
		}
		out[i] = accum
		i++
		if v>>(width-1) != 0 {
			run = maxRun
			continue
		}
		run--
		if run == 0 {
			width = max(width-1, 1)
			run = maxRun
		}
	}

	br.Align()
	consumed := c.Position() - start
	c.Skip(min((4-consumed%4)%4, c.Remaining()))
	return out, nil
}
