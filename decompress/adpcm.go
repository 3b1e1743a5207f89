package decompress

import (
	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
)

// ADPCM4Size returns the number of input bytes an ADPCM4 stream of n samples takes.
func ADPCM4Size(n int) int {
	return 16 + (n+1)/2
}

// ADPCM4 decodes ModPlug's 4-bit ADPCM: a 16-entry table of signed deltas followed by one
// nibble per sample, low nibble first, each indexing the table.
func ADPCM4(c *cursor.Cursor, n int) ([]int8, error) {
	if n < 0 {
		return nil, errors.Wrap(ErrCorruptStream, "negative output size")
	}
	if !c.CanRead(ADPCM4Size(n)) {
		return nil, errors.Wrapf(ErrStreamExhausted, "ADPCM stream needs %d bytes, %d left", ADPCM4Size(n), c.Remaining())
	}
	var table [16]int8
	for i := range table {
		table[i] = c.ReadInt8()
	}
	out := make([]int8, n)
	var delta int8
	for i := 0; i < n; i += 2 {
		b := c.ReadUint8()
		delta += table[b&0x0F]
		out[i] = delta
		if i+1 < n {
			delta += table[b>>4]
			out[i+1] = delta
		}
	}
	return out, nil
}
