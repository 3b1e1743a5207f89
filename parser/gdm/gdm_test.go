package gdm_test

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/gdm"
	"github.com/QEStudios/TrackerLoader/song"
)

var le = binary.LittleEndian

const message = "hi there"

// buildGDM returns a three-channel conversion of an S3M with one sample, one
// two-row pattern and a song message.
func buildGDM() []byte {
	b := make([]byte, gdm.HeaderSize)
	copy(b, "GDM\xFE")
	copy(b[4:], "conversion")
	copy(b[36:], "Unknown")
	copy(b[68:], "\r\n\x1AGMFS")
	b[75], b[76] = 1, 0
	b[79], b[80] = 1, 17
	for i := range 32 {
		b[81+i] = 0xFF
	}
	b[81], b[82], b[83] = 0, 15, 16
	b[113], b[114], b[115] = 48, 6, 125
	le.PutUint16(b[116:], 3) // Scream Tracker 3

	const (
		orderOffset  = gdm.HeaderSize
		sampleHeader = orderOffset + 1
		sampleData   = sampleHeader + gdm.SampleHeaderSize
		patterns     = sampleData + 4
	)
	le.PutUint32(b[118:], orderOffset)
	le.PutUint32(b[123:], patterns)
	le.PutUint32(b[128:], sampleHeader)
	le.PutUint32(b[132:], sampleData)

	b = append(b, 0) // order list

	smp := make([]byte, gdm.SampleHeaderSize)
	copy(smp, "bass")
	copy(smp[32:], "bass.raw")
	le.PutUint32(smp[45:], 4)
	le.PutUint32(smp[53:], 4)
	smp[57] = 0x01 | 0x04 | 0x08
	le.PutUint16(smp[58:], 8363)
	smp[60], smp[61] = 32, 0
	b = append(b, smp...)
	b = append(b, 0x80, 0x81, 0x7F, 0x00)

	pat := []byte{
		0x60, 0x41, 1, 0x2C, 32, 0x0F, 4, // channel 0: C-5, instrument 1, volume 32 and speed 4
		0x41, 0x1E, 0x01, // channel 1: surround on
		0,
		0x40, 0x0E, 0x82, // channel 0: extra fine portamento up
		0,
	}
	b = le.AppendUint16(b, uint16(2+len(pat)))
	b = append(b, pat...)

	le.PutUint32(b[137:], uint32(len(b)))
	le.PutUint32(b[141:], uint32(len(message)))
	return append(b, message...)
}

func TestProbe(t *testing.T) {
	data := buildGDM()
	if got := gdm.Probe(cursor.New(data), int64(len(data))); got != parser.ProbeSuccess {
		t.Errorf("got %s", got)
	}
	if got := gdm.Probe(cursor.New(data[:100]), parser.UnknownSize); got != parser.ProbeWantMoreData {
		t.Errorf("short header: got %s", got)
	}
	if got := gdm.Probe(cursor.New([]byte("GDM!")), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("wrong magic: got %s", got)
	}
	bad := buildGDM()
	le.PutUint16(bad[116:], 10)
	if got := gdm.Probe(cursor.New(bad), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("unknown source format: got %s", got)
	}
}

func TestLoad(t *testing.T) {
	res, err := parser.LoadAs(&gdm.Format, buildGDM(), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Song
	wantFormat := song.FormatInfo{
		Name:         "General Digimusic",
		Type:         "gdm",
		Tracker:      "BWSB 2GDM 1.17",
		Charset:      song.CharsetCP437,
		OriginalName: "Scream Tracker 3",
		OriginalType: "s3m",
	}
	if s.Format != wantFormat {
		t.Errorf("got format %s", spew.Sdump(s.Format))
	}
	if s.Title != "conversion" || s.Artist != "" || s.Message != message || s.InitialGlobalVolume != 192 {
		t.Errorf("unexpected song header %s", spew.Sdump(s.Title, s.Artist, s.Message, s.InitialGlobalVolume))
	}
	if s.NumChannels() != 3 || s.Channels[0].Panning != 8 || s.Channels[1].Panning != 248 || !s.Channels[2].Surround {
		t.Errorf("unexpected channels %+v", s.Channels)
	}
	if !reflect.DeepEqual(s.Order, song.Order{0}) {
		t.Errorf("unexpected order list %v", s.Order)
	}

	p := s.Pattern(0)
	want := song.Cell{Note: song.NoteMiddleC, Instrument: 1, VolCmd: song.VolVolume, Vol: 32, Command: song.CmdSpeed, Param: 4}
	if c := *p.Cell(0, 0); c != want {
		t.Errorf("got %s, expected %s", c, want)
	}
	if c := p.Cell(0, 1); c.Command != song.CmdS3MCmdEx || c.Param != 0x91 {
		t.Errorf("expected surround, got %s", c)
	}
	if c := p.Cell(1, 0); c.Command != song.CmdPortamentoUp || c.Param != 0xE2 {
		t.Errorf("expected extra fine portamento, got %s", c)
	}

	smp := s.Sample(1)
	if smp.Name != "bass" || smp.Filename != "bass.raw" || smp.Volume != 128 || smp.Panning != 8 || smp.LoopEnd != 3 || smp.Flags&song.SampleLoop == 0 {
		t.Errorf("unexpected sample %s", spew.Sdump(smp))
	}
	if !reflect.DeepEqual(smp.PCM8, []int8{0, 1, -1, -128}) {
		t.Errorf("unexpected sample data %v", smp.PCM8)
	}
}

func TestLoadHighSampleRate(t *testing.T) {
	data := buildGDM()
	le.PutUint16(data[gdm.HeaderSize+1+58:], 44100)
	res, err := parser.LoadAs(&gdm.Format, data, parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Song.Sample(1).C5Speed; got != 44100 {
		t.Errorf("expected a rate of 44100 Hz, got %d", got)
	}
}

func TestLoadTruncatedPattern(t *testing.T) {
	data := buildGDM()
	res, err := parser.LoadAs(&gdm.Format, data[:len(data)-len(message)-2], parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if c := res.Song.Pattern(0).Cell(0, 0); c.Note != song.NoteMiddleC {
		t.Errorf("expected the first row to survive, got %s", c)
	}
	if res.Song.Message != "" || len(res.Warnings) != 1 {
		t.Errorf("got message %q and warnings %v", res.Song.Message, res.Warnings)
	}
}

func TestLoadHeaderOnly(t *testing.T) {
	opts := parser.Options{Flags: parser.OnlyVerifyHeader, FileSize: parser.UnknownSize}
	res, err := parser.LoadAs(&gdm.Format, buildGDM(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Song.Format.OriginalType != "s3m" || len(res.Song.Samples) == 0 {
		t.Errorf("unexpected header-only song %s", spew.Sdump(res.Song.Format))
	}
	for i, smp := range res.Song.Samples {
		if smp.HasData() {
			t.Errorf("header-only load stored data for sample %d", i+1)
		}
	}
	for i, p := range res.Song.Patterns {
		if p != nil {
			t.Errorf("header-only load stored pattern %d", i)
		}
	}
}
