package xm

import (
	"testing"

	"github.com/QEStudios/TrackerLoader/cursor"
)

func TestStructSizes(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  int
		want int
	}{
		{"fileHeader", cursor.SizeOf[fileHeader](), HeaderSize},
		{"patternHeader", cursor.SizeOf[patternHeader](), 9},
		{"instrumentHeader", cursor.SizeOf[instrumentHeader](), InstrumentHeaderSize},
		{"sampleHeader", cursor.SizeOf[sampleHeader](), sampleHeaderSize},
	} {
		if tc.got != tc.want {
			t.Errorf("%s: got %d bytes, expected %d", tc.name, tc.got, tc.want)
		}
	}
}
