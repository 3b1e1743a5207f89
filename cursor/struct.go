package cursor

import (
	"encoding/binary"
)

// SizeOf returns the packed wire size of the fixed-layout type T, or -1 if T contains
// anything without a fixed size. Struct fields are laid out with alignment 1 and no
// padding, which is exactly how every file header in this module is described.
func SizeOf[T any]() int {
	var v T
	return binary.Size(&v)
}

// ReadStruct decodes the next SizeOf[T]() bytes into v and advances past them.
// On a short read v is zero-filled, the cursor does not move, and false is returned.
func ReadStruct[T any](c *Cursor, order binary.ByteOrder, v *T) bool {
	var zero T
	*v = zero
	size := binary.Size(v)
	if size < 0 || !c.CanRead(size) {
		return false
	}
	if _, err := binary.Decode(c.data[c.pos:c.pos+size], order, v); err != nil {
		*v = zero
		return false
	}
	c.pos += size
	return true
}

// PeekStruct is ReadStruct without advancing.
func PeekStruct[T any](c *Cursor, order binary.ByteOrder, v *T) bool {
	pos := c.pos
	ok := ReadStruct(c, order, v)
	c.pos = pos
	return ok
}

// ReadStructPartial reads up to n bytes into the front of v and zero-fills the rest.
// It is used where a header grew between format versions. The cursor advances by
// min(n, SizeOf[T]()) bytes; if those bytes are not available, v is zeroed and false is returned.
func ReadStructPartial[T any](c *Cursor, order binary.ByteOrder, v *T, n int) bool {
	var zero T
	*v = zero
	size := binary.Size(v)
	if size < 0 || n < 0 {
		return false
	}
	n = min(n, size)
	if !c.CanRead(n) {
		return false
	}
	buf := make([]byte, size)
	copy(buf, c.data[c.pos:c.pos+n])
	if _, err := binary.Decode(buf, order, v); err != nil {
		*v = zero
		return false
	}
	c.pos += n
	return true
}

// ReadArray fills dst with len(dst) fixed-size elements.
// On a short read dst is zeroed and the cursor does not move.
func ReadArray[T any](c *Cursor, order binary.ByteOrder, dst []T) bool {
	size := binary.Size(dst)
	if size < 0 || !c.CanRead(size) {
		clear(dst)
		return false
	}
	if _, err := binary.Decode(c.data[c.pos:c.pos+size], order, dst); err != nil {
		clear(dst)
		return false
	}
	c.pos += size
	return true
}

// ReadVector reads n fixed-size elements into a new slice.
// The available input is checked before anything is allocated, so a hostile n cannot
// cause a large allocation.
func ReadVector[T any](c *Cursor, order binary.ByteOrder, n int) ([]T, bool) {
	elem := SizeOf[T]()
	if n < 0 || elem < 0 {
		return nil, false
	}
	if elem > 0 && n > c.Remaining()/elem {
		return nil, false
	}
	out := make([]T, n)
	if !ReadArray(c, order, out) {
		return nil, false
	}
	return out, true
}
