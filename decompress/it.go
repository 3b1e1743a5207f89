package decompress

import (
	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
)

// itParams describes one sample width of Impulse Tracker compression.
type itParams struct {
	blockSize  int  // samples per block
	fullWidth  uint // initial and widest bit width
	method1Ext uint // bits holding the new width in method 1
	borderMask uint32
	borderSub  uint32
	borderSpan uint32
	sampleBits uint
}

var (
	it8Bit  = itParams{blockSize: 0x8000, fullWidth: 9, method1Ext: 3, borderMask: 0xFF, borderSub: 4, borderSpan: 8, sampleBits: 8}
	it16Bit = itParams{blockSize: 0x4000, fullWidth: 17, method1Ext: 4, borderMask: 0xFFFF, borderSub: 8, borderSpan: 16, sampleBits: 16}
)

// IT8 decodes n samples of Impulse Tracker 2.14 (or, with it215 set, 2.15) compressed 8-bit data.
func IT8(c *cursor.Cursor, n int, it215 bool) ([]int8, error) {
	raw, err := decodeIT(c, n, it215, it8Bit)
	if err != nil {
		return nil, err
	}
	out := make([]int8, n)
	for i, v := range raw {
		out[i] = int8(v)
	}
	return out, nil
}

// IT16 decodes n samples of Impulse Tracker compressed 16-bit data.
func IT16(c *cursor.Cursor, n int, it215 bool) ([]int16, error) {
	raw, err := decodeIT(c, n, it215, it16Bit)
	if err != nil {
		return nil, err
	}
	out := make([]int16, n)
	for i, v := range raw {
		out[i] = int16(v)
	}
	return out, nil
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// decodeIT returns the samples as int32 values already wrapped to the sample width.
// Data comes in blocks, each preceded by its 16-bit compressed length; the integrators
// are reset at every block.
func decodeIT(c *cursor.Cursor, n int, it215 bool, p itParams) ([]int32, error) {
	if n < 0 {
		return nil, errors.Wrap(ErrCorruptStream, "negative output size")
	}
	// A block of compressed data holds at most blockSize samples and is at least 3 bytes.
	if n > 0 && (n+p.blockSize-1)/p.blockSize*3 > c.Remaining() {
		return nil, errors.Wrapf(ErrStreamExhausted, "IT stream too short for %d samples", n)
	}
	out := make([]int32, 0, n)
	for len(out) < n {
		if !c.CanRead(2) {
			return nil, errors.Wrapf(ErrStreamExhausted, "IT block header missing after %d of %d samples", len(out), n)
		}
		blockBytes := int(c.ReadUint16LE())
		if !c.CanRead(blockBytes) {
			return nil, errors.Wrapf(ErrStreamExhausted, "IT block of %d bytes, %d left", blockBytes, c.Remaining())
		}
		br := NewBitReader(c.ReadChunk(blockBytes))

		blockLen := min(p.blockSize, n-len(out))
		width := p.fullWidth
		var mem1, mem2 int32
		for done := 0; done < blockLen; {
			v, ok := br.ReadBits(width)
			if !ok {
				return nil, errors.Wrapf(ErrStreamExhausted, "IT block ended after %d of %d samples", len(out)+done, n)
			}
			switch {
			case width < 7:
				// Method 1: a single escape value, the new width follows.
				if v == 1<<(width-1) {
					w, ok := br.ReadBits(p.method1Ext)
					if !ok {
						return nil, errors.Wrap(ErrStreamExhausted, "IT width change cut off")
					}
					width = nextWidth(uint(w)+1, width)
					continue
				}
			case width < p.fullWidth:
				// Method 2: a range of values near the top encodes the new width.
				border := (p.borderMask >> (p.fullWidth - width)) - p.borderSub
				if v > border && v <= border+p.borderSpan {
					width = nextWidth(uint(v-border), width)
					continue
				}
			default:
				// Method 3: the top bit flags a width change in the low bits.
				if v&(1<<(p.fullWidth-1)) != 0 {
					w := uint((v + 1) & 0xFF)
					if w < 1 || w > p.fullWidth {
						return nil, errors.Wrapf(ErrCorruptStream, "IT bit width %d", w)
					}
					width = w
					continue
				}
			}
			var d int32
			if width < p.sampleBits {
				d = signExtend(v, width)
			} else {
				d = signExtend(v, p.sampleBits)
			}
			mem1 = signExtend(uint32(mem1+d), p.sampleBits)
			mem2 = signExtend(uint32(mem2+mem1), p.sampleBits)
			if it215 {
				out = append(out, mem2)
			} else {
				out = append(out, mem1)
			}
			done++
		}
	}
	return out, nil
}

// nextWidth maps a decoded width code to a width; codes at or above the current width
// skip it, since switching to the current width is never encoded.
func nextWidth(code, current uint) uint {
	if code < current {
		return code
	}
	return code + 1
}
