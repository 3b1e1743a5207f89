package dbm_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/dbm"
	"github.com/QEStudios/TrackerLoader/song"
)

var be = binary.BigEndian

func chunk(b []byte, id string, data []byte) []byte {
	b = append(b, id...)
	b = be.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

func envelope(ins uint16, flags uint8, points ...uint16) []byte {
	e := make([]byte, 136)
	be.PutUint16(e, ins)
	e[2], e[3] = flags, uint8(len(points)/2-1)
	for i, v := range points {
		be.PutUint16(e[8+i*2:], v)
	}
	return append([]byte{0, 1}, e...)
}

// buildDBM returns a four-channel module with one instrument, two samples and one
// four-row pattern played twice.
func buildDBM() []byte {
	b := []byte("DBM0\x03\x00\x00\x00")
	b = chunk(b, "NAME", []byte("booster"))
	b = chunk(b, "INFO", []byte{0, 1, 0, 2, 0, 1, 0, 1, 0, 4})

	songData := make([]byte, 44)
	copy(songData, "main")
	songData = append(songData, 0, 2, 0, 0, 0, 0)
	b = chunk(b, "SONG", songData)

	inst := make([]byte, dbm.InstrumentHeaderSize)
	copy(inst, "piano")
	be.PutUint16(inst[30:], 1)
	be.PutUint16(inst[32:], 48)
	be.PutUint32(inst[34:], 16000)
	be.PutUint32(inst[42:], 2)
	be.PutUint16(inst[46:], 0xFF80) // hard left
	be.PutUint16(inst[48:], 1)
	b = chunk(b, "INST", inst)
	b = chunk(b, "VENV", envelope(1, 0x03, 0, 64, 20, 32))
	b = chunk(b, "PENV", envelope(1, 0x01, 0, 0xFF80, 10, 128))

	pat := []byte{
		1, 0x3F, 0x40, 1, 0x0C, 0x20, 0x0F, 0x06, // C-5, instrument 1, volume 32 and speed 6
		2, 0x01, 0x1F, // key off
		0,
		3, 0x0C, 0x0D, 0x12, // break to row 12
		0,
	}
	patt := be.AppendUint16(nil, 4)
	patt = be.AppendUint32(patt, uint32(len(pat)))
	b = chunk(b, "PATT", append(patt, pat...))

	smpl := []byte{0, 0, 0, 1, 0, 0, 0, 4, 1, 2, 3, 4}
	smpl = append(smpl, 0, 0, 0, 2, 0, 0, 0, 2, 0x12, 0x34, 0xFE, 0xDC)
	return chunk(b, "SMPL", smpl)
}

func TestProbe(t *testing.T) {
	data := buildDBM()
	if got := dbm.Probe(cursor.New(data), int64(len(data))); got != parser.ProbeSuccess {
		t.Errorf("got %s", got)
	}
	if got := dbm.Probe(cursor.New(data[:3]), parser.UnknownSize); got != parser.ProbeWantMoreData {
		t.Errorf("short header: got %s", got)
	}
	if got := dbm.Probe(cursor.New([]byte("DBX")), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("short wrong magic: got %s", got)
	}
	if got := dbm.Probe(cursor.New([]byte("DBM0\x04\x00\x00\x00")), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("unknown version: got %s", got)
	}
}

func TestLoad(t *testing.T) {
	res, err := parser.LoadAs(&dbm.Format, buildDBM(), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Song
	if s.Title != "booster" || s.NumChannels() != 4 || s.Format.Tracker != "DigiBooster Pro 3.0" {
		t.Errorf("unexpected song header %s", spew.Sdump(s.Title, s.NumChannels(), s.Format))
	}
	if !reflect.DeepEqual(s.Order, song.Order{0, 0}) {
		t.Errorf("unexpected order list %v", s.Order)
	}

	p := s.Pattern(0)
	if p.Rows() != 4 {
		t.Fatalf("expected 4 rows, got %d", p.Rows())
	}
	want := song.Cell{Note: song.NoteMiddleC, Instrument: 1, VolCmd: song.VolVolume, Vol: 32, Command: song.CmdSpeed, Param: 6}
	if c := *p.Cell(0, 0); c != want {
		t.Errorf("got %s, expected %s", c, want)
	}
	if c := p.Cell(0, 1); c.Note != song.NoteKeyOff {
		t.Errorf("expected key off, got %s", c)
	}
	if c := p.Cell(1, 2); c.Command != song.CmdPatternBreak || c.Param != 12 {
		t.Errorf("expected a break to row 12, got %s", c)
	}

	ins := s.Instruments[0]
	if ins.Name != "piano" || ins.Panning != 0 || !ins.PanningSet || ins.SampleMap[0] != 1 {
		t.Errorf("unexpected instrument %s", spew.Sdump(ins))
	}
	if env := ins.VolumeEnvelope; !env.Enabled || !env.Sustain || !reflect.DeepEqual(env.Points, []song.EnvelopePoint{{Tick: 0, Value: 64}, {Tick: 20, Value: 32}}) {
		t.Errorf("unexpected volume envelope %+v", env)
	}
	if env := ins.PanningEnvelope; !env.Enabled || !reflect.DeepEqual(env.Points, []song.EnvelopePoint{{Tick: 0, Value: 0}, {Tick: 10, Value: 64}}) {
		t.Errorf("unexpected panning envelope %+v", env)
	}

	piano := s.Sample(1)
	if piano.Name != "piano" || piano.Volume != 192 || piano.C5Speed != 16000 || piano.LoopEnd != 2 || piano.Flags&song.SampleLoop == 0 {
		t.Errorf("unexpected sample %s", spew.Sdump(piano))
	}
	if !reflect.DeepEqual(piano.PCM8, []int8{1, 2, 3, 4}) {
		t.Errorf("unexpected sample data %v", piano.PCM8)
	}
	if second := s.Sample(2); !reflect.DeepEqual(second.PCM16, []int16{0x1234, -0x124}) {
		t.Errorf("unexpected 16-bit data %v", second.PCM16)
	}
}

func TestLoadHighSampleRate(t *testing.T) {
	data := buildDBM()
	ins := bytes.Index(data, []byte("piano"))
	be.PutUint32(data[ins+34:], 96000)
	res, err := parser.LoadAs(&dbm.Format, data, parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Song.Sample(1).C5Speed; got != 96000 {
		t.Errorf("expected a rate of 96000 Hz, got %d", got)
	}
}

func TestLoadTruncatedSample(t *testing.T) {
	data := buildDBM()
	res, err := parser.LoadAs(&dbm.Format, data[:len(data)-1], parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if smp := res.Song.Sample(2); smp.Length != 1 {
		t.Errorf("expected 1 frame, got %d", smp.Length)
	}
	// one for the chunk, one for the sample
	if len(res.Warnings) != 2 {
		t.Errorf("expected two warnings, got %v", res.Warnings)
	}
}

func TestLoadWithoutSamples(t *testing.T) {
	opts := parser.DefaultOptions()
	opts.Flags = parser.LoadPatternData
	res, err := parser.LoadAs(&dbm.Format, buildDBM(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if smp := res.Song.Sample(1); smp.Length != 4 || smp.PCM8 != nil || smp.Flags&song.SampleLoop == 0 {
		t.Errorf("unexpected sample %s", spew.Sdump(smp))
	}
}

func TestLoadMissingInfo(t *testing.T) {
	data := chunk([]byte("DBM0\x02\x00\x00\x00"), "NAME", []byte("x"))
	if _, err := parser.LoadAs(&dbm.Format, data, parser.DefaultOptions()); !errors.Is(err, parser.ErrCorrupt) {
		t.Errorf("expected a corruption error, got %v", err)
	}
}
