// Package sampleio reads raw PCM sample data in the many layouts tracker formats use.
package sampleio

import (
	"encoding/binary"
	"fmt"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/song"
)

// Layout is the channel layout of stored sample data.
type Layout int

const (
	Mono        Layout = iota
	Interleaved        // stereo, L R L R ...
	Split              // stereo, all left samples, then all right samples
)

// Encoding describes how sample values are stored.
type Encoding struct {
	Bits      int // 8 or 16
	Unsigned  bool
	BigEndian bool
	Delta     bool // each value is the difference to the previous one
	Layout    Layout
}

var (
	Signed8     = Encoding{Bits: 8}
	Unsigned8   = Encoding{Bits: 8, Unsigned: true}
	Delta8      = Encoding{Bits: 8, Delta: true}
	Signed16LE  = Encoding{Bits: 16}
	Signed16BE  = Encoding{Bits: 16, BigEndian: true}
	Unsigned16  = Encoding{Bits: 16, Unsigned: true}
	Delta16LE   = Encoding{Bits: 16, Delta: true}
	Signed8Pair = Encoding{Bits: 8, Layout: Split}
)

func (e Encoding) String() string {
	sign := "signed"
	if e.Unsigned {
		sign = "unsigned"
	}
	if e.Delta {
		sign = "delta"
	}
	return fmt.Sprintf("%d-bit %s", e.Bits, sign)
}

func (e Encoding) channels() int {
	if e.Layout == Mono {
		return 1
	}
	return 2
}

// FrameSize returns the number of bytes one frame takes.
func (e Encoding) FrameSize() int {
	return e.Bits / 8 * e.channels()
}

// Size returns the number of bytes length frames take.
func (e Encoding) Size(length int) int {
	return length * e.FrameSize()
}

// Read decodes smp.Length frames from c into smp and sets its bit depth and channel flags.
// If fewer bytes are available, the sample is shortened to what is there, its loops are
// sanitized again, and truncated is true. The cursor ends up after the data read.
func Read(c *cursor.Cursor, smp *song.Sample, enc Encoding) (truncated bool, err error) {
	if enc.Bits != 8 && enc.Bits != 16 {
		return false, fmt.Errorf("unsupported sample bit depth %d", enc.Bits)
	}
	smp.Flags &^= song.Sample16Bit | song.SampleStereo
	if enc.Bits == 16 {
		smp.Flags |= song.Sample16Bit
	}
	if enc.Layout != Mono {
		smp.Flags |= song.SampleStereo
	}

	frameSize := enc.FrameSize()
	frames := max(smp.Length, 0)
	if avail := c.Remaining() / frameSize; avail < frames {
		truncated = true
		frames = avail
		if enc.Layout == Split {
			// the right channel would start in the wrong place
			frames = 0
		}
	}
	smp.Length = frames
	if err := smp.AllocatePCM(); err != nil {
		return truncated, err
	}
	n := frames * enc.channels()
	raw := c.PeekBytes(frames * frameSize)
	c.Skip(len(raw))
	if truncated {
		c.Skip(c.Remaining())
	}

	order := binary.ByteOrder(binary.LittleEndian)
	if enc.BigEndian {
		order = binary.BigEndian
	}
	// place returns the output index and channel of the k-th stored value.
	place := func(k int) (int, int) {
		switch enc.Layout {
		case Interleaved:
			return k, k % 2
		case Split:
			if k < frames {
				return k * 2, 0
			}
			return (k-frames)*2 + 1, 1
		default:
			return k, 0
		}
	}

	if enc.Bits == 8 {
		var acc [2]int8
		for k := range n {
			v := raw[k]
			if enc.Unsigned {
				v ^= 0x80
			}
			i, ch := place(k)
			if enc.Delta {
				acc[ch] += int8(v)
				smp.PCM8[i] = acc[ch]
			} else {
				smp.PCM8[i] = int8(v)
			}
		}
	} else {
		var acc [2]int16
		for k := range n {
			v := order.Uint16(raw[k*2 : k*2+2])
			if enc.Unsigned {
				v ^= 0x8000
			}
			i, ch := place(k)
			if enc.Delta {
				acc[ch] += int16(v)
				smp.PCM16[i] = acc[ch]
			} else {
				smp.PCM16[i] = int16(v)
			}
		}
	}
	smp.SanitizeLoops()
	return truncated, nil
}

// SetPCM8 stores already decoded 8-bit data, shortening the sample if data is short.
func SetPCM8(smp *song.Sample, data []int8) (truncated bool) {
	smp.Flags &^= song.Sample16Bit | song.SampleStereo
	smp.PCM16 = nil
	if len(data) < smp.Length {
		smp.Length = len(data)
		truncated = true
	}
	smp.PCM8 = data[:smp.Length:smp.Length]
	smp.SanitizeLoops()
	return truncated
}

// SetPCM16 stores already decoded 16-bit data, shortening the sample if data is short.
func SetPCM16(smp *song.Sample, data []int16) (truncated bool) {
	smp.Flags &^= song.SampleStereo
	smp.Flags |= song.Sample16Bit
	smp.PCM8 = nil
	if len(data) < smp.Length {
		smp.Length = len(data)
		truncated = true
	}
	smp.PCM16 = data[:smp.Length:smp.Length]
	smp.SanitizeLoops()
	return truncated
}

// ReadAt seeks to pos in c's window and reads the sample from there. A position past the
// end of the window leaves an empty sample and reports truncation.
func ReadAt(c *cursor.Cursor, pos int, smp *song.Sample, enc Encoding) (truncated bool, err error) {
	if !c.Seek(pos) {
		c.Seek(c.Len())
	}
	return Read(c, smp, enc)
}
