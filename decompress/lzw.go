package decompress

import (
	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
)

const (
	lzwMaxBits   = 13
	lzwMaxNodes  = 1 << lzwMaxBits
	lzwResetDict = 256
	lzwEnd       = 257
)

type lzwEntry struct {
	prev  uint16
	value byte
}

// LZW decodes the Digital Symphony variant of LZW: codes are 9 to 13 bits wide, code 256
// resets the dictionary, code 257 ends the stream and the dictionary never holds more than
// 8192 entries. Exactly size bytes are returned; if the end code arrives early the rest is
// zero. The stream is padded to a multiple of four bytes, and the cursor is left after it.
func LZW(c *cursor.Cursor, size int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Wrap(ErrCorruptStream, "negative output size")
	}
	start := c.Position()
	br := NewBitReader(c)

	// 13 bits decode to at most 8192 bytes, but do not trust size until data shows up.
	out := make([]byte, 0, min(size, c.Remaining()*8))

	var dict [lzwMaxNodes]lzwEntry
	var match [lzwMaxNodes]byte
	for i := range 256 {
		dict[i] = lzwEntry{prev: lzwMaxNodes, value: byte(i)}
	}
	width := uint(9)
	prevCode := uint16(0)
	next := uint16(lzwEnd)

	for {
		v, ok := br.ReadBits(width)
		if !ok {
			return nil, errors.Wrapf(ErrStreamExhausted, "LZW stream ended after %d of %d bytes", len(out), size)
		}
		code := uint16(v)
		if code == lzwEnd || len(out) >= size {
			break
		}
		if code == lzwResetDict {
			width = 9
			prevCode = 0
			next = lzwEnd
			continue
		}
		if code > next {
			return nil, errors.Wrapf(ErrCorruptStream, "LZW code %d beyond dictionary size %d", code, next)
		}

		walk := code
		if code == next {
			walk = prevCode
		}
		pos := lzwMaxNodes
		for walk < lzwMaxNodes {
			if pos == 0 {
				return nil, errors.Wrap(ErrCorruptStream, "LZW dictionary loop")
			}
			pos--
			match[pos] = dict[walk].value
			walk = dict[walk].prev
		}
		out = append(out, match[pos:]...)
		if code == next {
			out = append(out, match[pos])
		}
		if len(out) > size {
			out = out[:size]
		}

		if next < lzwMaxNodes && len(out) < size {
			dict[next] = lzwEntry{prev: prevCode, value: match[pos]}
			next++
			if next != lzwMaxNodes && next == 1<<width {
				width++
			}
		}
		prevCode = code
	}

	// Streams are padded to a multiple of four bytes.
	br.Align()
	consumed := c.Position() - start
	c.Skip(min((4-consumed%4)%4, c.Remaining()))

	if len(out) < size {
		out = append(out, make([]byte, size-len(out))...)
	}
	return out, nil
}
