// Package cursor provides a bounds-checked read window over an in-memory byte buffer.
//
// Every read either succeeds completely or leaves the cursor where it was and reports
// failure; nothing here panics on short input. A Cursor never mutates the bytes it views.
package cursor

import (
	"bytes"
	"encoding/binary"
)

// A Cursor is a window over a byte buffer with an explicit read position.
// Copying a Cursor value yields an independent position over the same bytes.
type Cursor struct {
	data []byte // the visible window
	base int64  // absolute offset of data[0] in the outermost buffer
	pos  int
}

// New creates a cursor over the whole of data.
func New(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Len returns the size of the window.
func (c *Cursor) Len() int {
	return len(c.data)
}

// Position returns the read position relative to the start of the window.
func (c *Cursor) Position() int {
	return c.pos
}

// AbsolutePosition returns the read position relative to the outermost buffer,
// which is what warnings and errors report.
func (c *Cursor) AbsolutePosition() int64 {
	return c.base + int64(c.pos)
}

// Remaining returns the number of bytes between the read position and the end of the window.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

// CanRead reports whether n bytes can be read from the current position.
func (c *Cursor) CanRead(n int) bool {
	return n >= 0 && n <= len(c.data)-c.pos
}

// EOF reports whether the read position is at the end of the window.
func (c *Cursor) EOF() bool {
	return c.pos >= len(c.data)
}

// Seek moves to an absolute position within the window.
// It fails, leaving the position unchanged, if pos lies outside the window.
func (c *Cursor) Seek(pos int) bool {
	if pos < 0 || pos > len(c.data) {
		return false
	}
	c.pos = pos
	return true
}

// Skip advances the position by n bytes. It fails without moving if fewer than n bytes remain.
func (c *Cursor) Skip(n int) bool {
	if !c.CanRead(n) {
		return false
	}
	c.pos += n
	return true
}

// SkipBack moves the position back by n bytes. It fails without moving if that would
// go before the start of the window.
func (c *Cursor) SkipBack(n int) bool {
	if n < 0 || n > c.pos {
		return false
	}
	c.pos -= n
	return true
}

// Rewind moves back to the start of the window.
func (c *Cursor) Rewind() {
	c.pos = 0
}

// Bytes returns the whole window. The caller must not modify it.
func (c *Cursor) Bytes() []byte {
	return c.data
}

// PeekBytes returns the next n bytes without advancing. The returned slice aliases the
// underlying buffer and must not be modified. It returns nil if n bytes are not available.
func (c *Cursor) PeekBytes(n int) []byte {
	if !c.CanRead(n) {
		return nil
	}
	return c.data[c.pos : c.pos+n : c.pos+n]
}

// ReadBytes returns a copy of the next n bytes and advances past them.
func (c *Cursor) ReadBytes(n int) ([]byte, bool) {
	b := c.PeekBytes(n)
	if b == nil {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, b)
	c.pos += n
	return out, true
}

// ReadInto fills dst from the current position. On a short read dst is zeroed.
func (c *Cursor) ReadInto(dst []byte) bool {
	if !c.CanRead(len(dst)) {
		clear(dst)
		return false
	}
	copy(dst, c.data[c.pos:])
	c.pos += len(dst)
	return true
}

// ReadChunk returns a cursor restricted to the next n bytes and advances past them.
// If fewer than n bytes remain, the chunk covers what is left; callers that need the
// full size should check the chunk's Len.
func (c *Cursor) ReadChunk(n int) *Cursor {
	chunk := c.ChunkAt(c.pos, n)
	c.pos += chunk.Len()
	return chunk
}

// ChunkAt returns a cursor restricted to n bytes starting at pos, without moving c.
// The chunk is clamped to the window; a pos outside the window yields an empty chunk.
func (c *Cursor) ChunkAt(pos, n int) *Cursor {
	if pos < 0 || pos > len(c.data) || n < 0 {
		return &Cursor{base: c.base + int64(len(c.data))}
	}
	end := pos + min(n, len(c.data)-pos)
	return &Cursor{
		data: c.data[pos:end:end],
		base: c.base + int64(pos),
	}
}

// ReadMagic consumes magic if the next bytes match it exactly.
// Nothing is consumed on mismatch.
func (c *Cursor) ReadMagic(magic string) bool {
	b := c.PeekBytes(len(magic))
	if b == nil || string(b) != magic {
		return false
	}
	c.pos += len(magic)
	return true
}

// HasMagicAt reports whether magic is present at pos, without moving.
func (c *Cursor) HasMagicAt(pos int, magic string) bool {
	if pos < 0 || pos+len(magic) > len(c.data) {
		return false
	}
	return bytes.Equal(c.data[pos:pos+len(magic)], []byte(magic))
}

// ReadUint8 reads one byte; it returns 0 at the end of the window.
func (c *Cursor) ReadUint8() uint8 {
	if !c.CanRead(1) {
		return 0
	}
	v := c.data[c.pos]
	c.pos++
	return v
}

// PeekUint8 returns the next byte without advancing.
func (c *Cursor) PeekUint8() uint8 {
	if !c.CanRead(1) {
		return 0
	}
	return c.data[c.pos]
}

func (c *Cursor) ReadInt8() int8 {
	return int8(c.ReadUint8())
}

func (c *Cursor) ReadUint16LE() uint16 {
	b := c.PeekBytes(2)
	if b == nil {
		return 0
	}
	c.pos += 2
	return binary.LittleEndian.Uint16(b)
}

func (c *Cursor) ReadUint16BE() uint16 {
	b := c.PeekBytes(2)
	if b == nil {
		return 0
	}
	c.pos += 2
	return binary.BigEndian.Uint16(b)
}

func (c *Cursor) ReadInt16LE() int16 {
	return int16(c.ReadUint16LE())
}

func (c *Cursor) ReadInt16BE() int16 {
	return int16(c.ReadUint16BE())
}

// ReadUint24LE reads a three byte little-endian integer.
func (c *Cursor) ReadUint24LE() uint32 {
	b := c.PeekBytes(3)
	if b == nil {
		return 0
	}
	c.pos += 3
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// ReadUint24BE reads a three byte big-endian integer.
func (c *Cursor) ReadUint24BE() uint32 {
	b := c.PeekBytes(3)
	if b == nil {
		return 0
	}
	c.pos += 3
	return uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16
}

func (c *Cursor) ReadUint32LE() uint32 {
	b := c.PeekBytes(4)
	if b == nil {
		return 0
	}
	c.pos += 4
	return binary.LittleEndian.Uint32(b)
}

func (c *Cursor) ReadUint32BE() uint32 {
	b := c.PeekBytes(4)
	if b == nil {
		return 0
	}
	c.pos += 4
	return binary.BigEndian.Uint32(b)
}
