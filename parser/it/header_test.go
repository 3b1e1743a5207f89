package it

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
		{"instrumentHeader", cursor.SizeOf[instrumentHeader](), InstrumentHeaderSize},
		{"oldInstrumentHeader", cursor.SizeOf[oldInstrumentHeader](), InstrumentHeaderSize},
		{"envelope", cursor.SizeOf[envelope](), 82},
		{"sampleHeader", cursor.SizeOf[sampleHeader](), SampleHeaderSize},
		{"patternHeader", cursor.SizeOf[patternHeader](), patternHeaderSize},
	} {
		if tc.got != tc.want {
			t.Errorf("%s: got %d bytes, expected %d", tc.name, tc.got, tc.want)
		}
	}
}

func TestConvertNote(t *testing.T) {
	for _, tc := range []struct {
		in   uint8
		want string
	}{
		{0, "C-0"},
		{60, "C-5"},
		{119, "B-9"},
		{120, "~~~"},
		{254, "^^^"},
		{255, "==="},
	} {
		if got := convertNote(tc.in).String(); got != tc.want {
			t.Errorf("note %d: got %s, expected %s", tc.in, got, tc.want)
		}
	}
}
