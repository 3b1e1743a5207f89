package ptm_test

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/ptm"
	"github.com/QEStudios/TrackerLoader/song"
)

const patternAt = ptm.HeaderSize + ptm.SampleHeaderSize

var le = binary.LittleEndian

// buildPTM returns a two-channel module with one pattern and one sample.
func buildPTM(sampleFlags uint8, data []byte) []byte {
	b := make([]byte, ptm.HeaderSize)
	copy(b, "poly")
	b[28] = 0x1A
	b[29], b[30] = 0x03, 0x02
	le.PutUint16(b[32:], 1) // orders
	le.PutUint16(b[34:], 1) // samples
	le.PutUint16(b[36:], 1) // patterns
	le.PutUint16(b[38:], 2) // channels
	copy(b[44:], "PTMF")
	b[64], b[65] = 0, 15
	for i := range 256 {
		b[96+i] = 0xFF
	}
	b[96] = 0
	le.PutUint16(b[352:], patternAt/16)

	pat := []byte{
		0xE0, 61, 1, 0x0F, 4, 40, // channel 0: C-5, instrument 1, speed 4, volume 40
		0x21, 254, 0, // channel 1: note cut
		0,
		0x41, 0x10, 0x50, // channel 1: global volume
		0,
	}
	pat = append(pat, make([]byte, 62)...)

	smp := make([]byte, ptm.SampleHeaderSize)
	smp[0] = 0x01 | 0x04 | sampleFlags
	copy(smp[1:], "tone.smp")
	smp[13] = 48
	le.PutUint16(smp[14:], 4181)
	le.PutUint32(smp[18:], uint32(patternAt+len(pat)))
	le.PutUint32(smp[22:], uint32(len(data)))
	le.PutUint32(smp[30:], uint32(len(data)))
	copy(smp[48:], "tone")
	copy(smp[76:], "PTMS")

	b = append(b, smp...)
	b = append(b, pat...)
	return append(b, data...)
}

func TestProbe(t *testing.T) {
	data := buildPTM(0, []byte{1, 1, 1, 1})
	if got := ptm.Probe(cursor.New(data), int64(len(data))); got != parser.ProbeSuccess {
		t.Errorf("got %s", got)
	}
	if got := ptm.Probe(cursor.New(data[:50]), parser.UnknownSize); got != parser.ProbeWantMoreData {
		t.Errorf("short header: got %s", got)
	}
	if got := ptm.Probe(cursor.New(make([]byte, 60)), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("wrong magic: got %s", got)
	}
	if got := ptm.Probe(cursor.New(data[:ptm.HeaderSize]), ptm.HeaderSize); got != parser.ProbeFailure {
		t.Errorf("missing sample headers: got %s", got)
	}
}

func TestLoad(t *testing.T) {
	res, err := parser.LoadAs(&ptm.Format, buildPTM(0, []byte{1, 1, 1, 1}), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Song
	if s.Title != "poly" || s.Format.Tracker != "PolyTracker 2.03" {
		t.Errorf("unexpected song %q by %q", s.Title, s.Format.Tracker)
	}
	if s.NumChannels() != 2 || s.Channels[0].Panning != 0 || s.Channels[1].Panning != 256 {
		t.Errorf("unexpected channels %+v", s.Channels)
	}
	if !reflect.DeepEqual(s.Order, song.Order{0}) {
		t.Errorf("unexpected order list %v", s.Order)
	}

	p := s.Pattern(0)
	want := song.Cell{Note: song.NoteMiddleC, Instrument: 1, VolCmd: song.VolVolume, Vol: 40, Command: song.CmdSpeed, Param: 4}
	if c := *p.Cell(0, 0); c != want {
		t.Errorf("got %s, expected %s", c, want)
	}
	if c := p.Cell(0, 1); c.Note != song.NoteCut {
		t.Errorf("expected a note cut, got %s", c)
	}
	if c := p.Cell(1, 1); c.Command != song.CmdGlobalVolume || c.Param != 64 {
		t.Errorf("expected a clamped global volume, got %s", c)
	}

	smp := s.Sample(1)
	if smp.Name != "tone" || smp.Filename != "tone.smp" || smp.Volume != 192 || smp.C5Speed != 8362 || smp.LoopEnd != 4 {
		t.Errorf("unexpected sample %+v", smp)
	}
	if !reflect.DeepEqual(smp.PCM8, []int8{1, 2, 3, 4}) {
		t.Errorf("unexpected sample data %v", smp.PCM8)
	}
}

func TestLoad16BitSample(t *testing.T) {
	res, err := parser.LoadAs(&ptm.Format, buildPTM(0x10, []byte{0x34, 0xDE, 0x00, 0x00}), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	smp := res.Song.Sample(1)
	if !smp.Is16Bit() || !reflect.DeepEqual(smp.PCM16, []int16{0x1234, 0x1212}) {
		t.Errorf("unexpected sample data %v", smp.PCM16)
	}
}

func TestLoadTruncatedSample(t *testing.T) {
	data := buildPTM(0, []byte{1, 1, 1, 1})
	res, err := parser.LoadAs(&ptm.Format, data[:len(data)-1], parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if smp := res.Song.Sample(1); smp.Length != 3 {
		t.Errorf("expected 3 frames, got %d", smp.Length)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", res.Warnings)
	}
}
