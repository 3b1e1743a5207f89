package sfx_test

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/sfx"
	"github.com/QEStudios/TrackerLoader/song"
)

// buildSFX returns a one-pattern module with a 4-byte first sample.
func buildSFX(numSamples int) []byte {
	magicAt := numSamples * 4
	samplesAt := magicAt + 4 + 16
	ordersAt := samplesAt + numSamples*30
	patternAt := ordersAt + 130
	b := make([]byte, patternAt+1024)
	binary.BigEndian.PutUint32(b, 4)
	if numSamples == 15 {
		copy(b[magicAt:], "SONG")
	} else {
		copy(b[magicAt:], "SO31")
	}
	binary.BigEndian.PutUint16(b[magicAt+4:], 14565)
	copy(b[samplesAt:], "snare")
	binary.BigEndian.PutUint16(b[samplesAt+24:], 64)
	binary.BigEndian.PutUint16(b[samplesAt+28:], 1)
	b[ordersAt] = 1
	// row 0, channel 0: stop; row 1, channel 1: sample 1 at C-5 with volume up 3
	binary.BigEndian.PutUint16(b[patternAt:], 0xFFFE)
	copy(b[patternAt+(4+1)*4:], []byte{0x01, 0xAC, 0x15, 0x03})
	return append(b, 1, 2, 3, 4)
}

func TestProbe(t *testing.T) {
	for _, n := range []int{15, 31} {
		data := buildSFX(n)
		if got := sfx.Probe(cursor.New(data), parser.UnknownSize); got != parser.ProbeSuccess {
			t.Errorf("%d samples: got %s", n, got)
		}
		for size := range len(data) - 4 {
			if got := sfx.Probe(cursor.New(data[:size]), parser.UnknownSize); got != parser.ProbeWantMoreData {
				t.Fatalf("%d samples, prefix of %d bytes: got %s", n, size, got)
			}
		}
	}
	if got := sfx.Probe(cursor.New(make([]byte, 2000)), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("zeroes: got %s", got)
	}
}

func TestLoad(t *testing.T) {
	for _, n := range []int{15, 31} {
		res, err := parser.LoadAs(&sfx.Format, buildSFX(n), parser.DefaultOptions())
		if err != nil {
			t.Fatalf("%d samples: %v", n, err)
		}
		s := res.Song
		if len(s.Samples) != n {
			t.Errorf("expected %d samples, got %d", n, len(s.Samples))
		}
		if c := s.Pattern(0).Cell(0, 0); c.Note != song.NoteCut {
			t.Errorf("expected note cut, got %s", c)
		}
		c := s.Pattern(0).Cell(1, 1)
		if c.Note != song.NoteMiddleC || c.Instrument != 1 || c.Command != song.CmdVolumeSlide || c.Param != 0x3F {
			t.Errorf("unexpected cell %s", c)
		}
		smp := s.Sample(1)
		if smp.Name != "snare" || smp.Volume != 256 || !reflect.DeepEqual(smp.PCM8, []int8{1, 2, 3, 4}) {
			t.Errorf("unexpected sample %+v", smp)
		}
		if s.InitialTempo != 121 {
			t.Errorf("unexpected tempo %d", s.InitialTempo)
		}
	}
}
