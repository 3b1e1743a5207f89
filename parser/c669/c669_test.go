package c669_test

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/c669"
	"github.com/QEStudios/TrackerLoader/song"
)

// build669 returns a module with one 4-byte sample and one pattern.
func build669(magic string) []byte {
	h := make([]byte, c669.HeaderSize)
	copy(h, magic)
	copy(h[2:], "first line")
	copy(h[2+36:], "second line")
	h[110] = 1 // samples
	h[111] = 1 // patterns
	orders := h[113:241]
	for i := range orders {
		orders[i] = 0xFF
	}
	orders[0] = 0
	h[241] = 4  // speed of pattern 0
	h[369] = 31 // last row of pattern 0

	smp := make([]byte, 25)
	copy(smp, "tom.smp")
	binary.LittleEndian.PutUint32(smp[13:], 4)
	binary.LittleEndian.PutUint32(smp[17:], 0)
	binary.LittleEndian.PutUint32(smp[21:], 0xFFFFF)

	pattern := make([]byte, 64*8*3)
	for i := 0; i < len(pattern); i += 3 {
		pattern[i], pattern[i+2] = 0xFF, 0xFF
	}
	// row 0, channel 0: note 24, sample 1, volume 15, speed 2
	copy(pattern, []byte{24 << 2, 0x0F, 0x52})
	// row 1, channel 3: volume 0 only
	copy(pattern[(8+3)*3:], []byte{0xFE, 0x00, 0xFF})

	data := append(h, smp...)
	data = append(data, pattern...)
	return append(data, 0x80, 0xFF, 0x00, 0x81)
}

func TestProbe(t *testing.T) {
	for _, magic := range []string{"if", "JN"} {
		if got := c669.Probe(cursor.New(build669(magic)), parser.UnknownSize); got != parser.ProbeSuccess {
			t.Errorf("%s: got %s", magic, got)
		}
	}
	data := build669("if")
	if got := c669.Probe(cursor.New(data[:c669.HeaderSize+25]), parser.UnknownSize); got != parser.ProbeWantMoreData {
		t.Errorf("missing patterns: got %s", got)
	}
	bad := build669("if")
	bad[241] = 0
	if got := c669.Probe(cursor.New(bad), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("speed 0: got %s", got)
	}
	bad = build669("if")
	bad[114] = 1
	if got := c669.Probe(cursor.New(bad), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("order references pattern 1 of 1: got %s", got)
	}
}

func TestLoad(t *testing.T) {
	res, err := parser.LoadAs(&c669.Format, build669("if"), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Song
	if s.Title != "first line" || s.Message != "first line\nsecond line" {
		t.Errorf("unexpected text %q / %q", s.Title, s.Message)
	}
	if !reflect.DeepEqual(s.Order, song.Order{0}) || s.InitialSpeed != 4 {
		t.Errorf("unexpected order %v or speed %d", s.Order, s.InitialSpeed)
	}
	p := s.Pattern(0)
	c := p.Cell(0, 0)
	if c.Note != song.NoteMiddleC || c.Instrument != 1 || c.Vol != 64 || c.Command != song.CmdSpeed || c.Param != 2 {
		t.Errorf("unexpected cell %s", c)
	}
	if c := p.Cell(1, 3); c.Note != song.NoteNone || c.VolCmd != song.VolVolume || c.Vol != 0 {
		t.Errorf("unexpected volume-only cell %s", c)
	}
	if !hasCommand(p.Row(0), song.CmdSpeed, 4) {
		t.Error("expected the pattern speed on row 0")
	}
	if !hasCommand(p.Row(31), song.CmdPatternBreak, 0) {
		t.Error("expected a pattern break on row 31")
	}
	smp := s.Sample(1)
	if smp.Name != "tom.smp" || smp.Flags&song.SampleLoop != 0 {
		t.Errorf("unexpected sample %+v", smp)
	}
	if !reflect.DeepEqual(smp.PCM8, []int8{0, 127, -128, 1}) {
		t.Errorf("unexpected sample data %v", smp.PCM8)
	}
	if s.Channels[0].Panning >= s.Channels[1].Panning {
		t.Error("expected alternating panning")
	}
}

func hasCommand(cells []song.Cell, cmd song.Command, param uint8) bool {
	for _, c := range cells {
		if c.Command == cmd && c.Param == param {
			return true
		}
	}
	return false
}

func TestLoadTruncatedStructure(t *testing.T) {
	data := build669("if")
	end := c669.HeaderSize + 25 + 64*8*3
	headerOnly := parser.Options{Flags: parser.OnlyVerifyHeader, FileSize: parser.UnknownSize}
	for n := c669.HeaderSize; n < end; n++ {
		for _, opts := range []parser.Options{parser.DefaultOptions(), headerOnly} {
			if _, err := parser.LoadAs(&c669.Format, data[:n], opts); !errors.Is(err, parser.ErrTruncated) {
				t.Fatalf("cut to %d bytes with flags %v: expected a truncation error, got %v", n, opts.Flags, err)
			}
		}
	}
}
