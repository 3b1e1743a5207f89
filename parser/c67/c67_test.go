package c67_test

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/c67"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	pcmAt      = 2 + 32*13
	fmNamesAt  = pcmAt + 32*16
	fmAt       = fmNamesAt + 32*13
	ordersAt   = fmAt + 32*11
	offsetsAt  = ordersAt + 256
	lengthsAt  = offsetsAt + 128*4
	firstEvent = c67.HeaderSize
)

var pattern0 = []byte{
	0x00, 0x34, 0x2F, // channel 0: octave 3, semitone 4, sample 3, volume 15
	0x05, 0xA0, 0x1A, // channel 5: octave 2, semitone 0, FM instrument 18, volume 10
	0x40, 0x02, // skip to row 2
	0x21, 0x08, // channel 1: volume 8
	0x40, 0x02,
	0x60,
}

func buildC67() []byte {
	b := make([]byte, c67.HeaderSize)
	b[0] = 6
	copy(b[2:], "piano")
	binary.LittleEndian.PutUint32(b[pcmAt+4:], 4)
	copy(b[fmNamesAt+17*13:], "organ")
	b[fmAt+17*11] = 0x21
	for i := range 256 {
		b[ordersAt+i] = 0xFF
	}
	b[ordersAt] = 0
	binary.LittleEndian.PutUint32(b[lengthsAt:], uint32(len(pattern0)))
	for i := 1; i < 128; i++ {
		binary.LittleEndian.PutUint32(b[offsetsAt+i*4:], uint32(len(pattern0)))
		binary.LittleEndian.PutUint32(b[lengthsAt+i*4:], 1)
	}
	b = append(b, pattern0...)
	b = append(b, 0x60)
	return append(b, 0x80, 0x90, 0x70, 0x80)
}

func TestProbe(t *testing.T) {
	data := buildC67()
	if got := c67.Probe(cursor.New(data), parser.UnknownSize); got != parser.ProbeSuccess {
		t.Fatalf("got %s", got)
	}
	if got := c67.Probe(cursor.New(data[:c67.HeaderSize-1]), parser.UnknownSize); got != parser.ProbeWantMoreData {
		t.Errorf("short header: got %s", got)
	}
	bad := buildC67()
	bad[0] = 16
	if got := c67.Probe(cursor.New(bad), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("speed 16: got %s", got)
	}
	bad = buildC67()
	bad[fmAt+3*11+9] = 0x04
	if got := c67.Probe(cursor.New(bad), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("invalid waveform register: got %s", got)
	}
}

func TestLoad(t *testing.T) {
	res, err := parser.LoadAs(&c67.Format, buildC67(), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Song
	if s.NumChannels() != 13 || len(s.Samples) != 64 || !reflect.DeepEqual(s.Order, song.Order{0}) {
		t.Fatalf("unexpected layout: %d channels, %d samples, order %v", s.NumChannels(), len(s.Samples), s.Order)
	}
	p := s.Pattern(0)
	if c := p.Cell(0, 0); c.Note != song.NoteFromOctave(4, 4) || c.Instrument != 3 || c.Vol != 64 {
		t.Errorf("unexpected PCM cell %s", c)
	}
	if c := p.Cell(0, 5); c.Note != song.NoteFromOctave(3, 0) || c.Instrument != 50 || c.Vol != 42 {
		t.Errorf("unexpected FM cell %s", c)
	}
	if c := p.Cell(2, 1); c.VolCmd != song.VolVolume || c.Vol != 34 {
		t.Errorf("unexpected volume cell %s", c)
	}
	found := false
	for _, c := range p.Row(3) {
		found = found || c.Command == song.CmdPatternBreak
	}
	if !found {
		t.Error("expected a pattern break on row 3")
	}
	if fm := s.Sample(50); fm.Name != "organ" || fm.AdlibPatch[0] != 0x21 {
		t.Errorf("unexpected FM instrument %+v", fm)
	}
	if smp := s.Sample(1); smp.Name != "piano" || !reflect.DeepEqual(smp.PCM8, []int8{0, 16, -16, 0}) {
		t.Errorf("unexpected sample %+v", smp)
	}
}

func TestLoadUnknownEvent(t *testing.T) {
	data := buildC67()
	data[firstEvent] = 0x0D
	if _, err := parser.LoadAs(&c67.Format, data, parser.DefaultOptions()); !errors.Is(err, parser.ErrCorrupt) {
		t.Errorf("expected corrupt error for channel 13, got %v", err)
	}
}
