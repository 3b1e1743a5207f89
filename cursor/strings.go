package cursor

import "bytes"

// StringMode selects how a fixed-size text field is terminated in the file.
type StringMode int

const (
	// NullTerminated stops at the first NUL; the field may be completely full.
	NullTerminated StringMode = iota
	// SpacePadded trims trailing spaces and NULs.
	SpacePadded
	// SpacePaddedNull trims trailing spaces, and also stops at the first NUL.
	SpacePaddedNull
)

// ReadRawString reads an n byte text field and returns its bytes without charset
// conversion. Use song.DecodeText to turn the result into a Go string.
func (c *Cursor) ReadRawString(n int, mode StringMode) ([]byte, bool) {
	b, ok := c.ReadBytes(n)
	if !ok {
		return nil, false
	}
	return TrimString(b, mode), true
}

// TrimString applies the termination rules of mode to a raw text field.
func TrimString(b []byte, mode StringMode) []byte {
	switch mode {
	case NullTerminated:
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
	case SpacePadded:
		b = bytes.TrimRight(b, " \x00")
	case SpacePaddedNull:
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
		b = bytes.TrimRight(b, " ")
	}
	return b
}

// ReadSizedString8 reads a string preceded by an 8-bit length.
func (c *Cursor) ReadSizedString8() ([]byte, bool) {
	if !c.CanRead(1) {
		return nil, false
	}
	n := int(c.PeekUint8())
	if !c.CanRead(1 + n) {
		return nil, false
	}
	c.pos++
	return c.ReadBytes(n)
}
