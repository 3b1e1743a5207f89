package okt_test

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/okt"
	"github.com/QEStudios/TrackerLoader/song"
)

func chunk(b []byte, id string, data []byte) []byte {
	b = append(b, id...)
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

func u16(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

// buildOKT returns a module with the second voice split, one two-row pattern and one
// sample holding data.
func buildOKT(sampleData []byte) []byte {
	b := []byte("OKTASONG")
	b = chunk(b, "CMOD", []byte{0, 0, 0, 1, 0, 0, 0, 0})

	samp := make([]byte, 2*okt.SampleHeaderSize)
	copy(samp, "kick")
	binary.BigEndian.PutUint32(samp[20:], 4)
	binary.BigEndian.PutUint16(samp[26:], 1) // one-word loop, too short to play
	binary.BigEndian.PutUint16(samp[28:], 64)
	binary.BigEndian.PutUint16(samp[30:], 1)
	b = chunk(b, "SAMP", samp)
	b = chunk(b, "SPEE", u16(3))
	b = chunk(b, "SLEN", u16(1))
	b = chunk(b, "PLEN", u16(1))
	b = chunk(b, "PATT", make([]byte, 128))

	pat := u16(2)
	cells := make([]byte, 2*5*4)
	copy(cells[0:], []byte{13, 0, 31, 0x20}) // C-5, instrument 1, volume 32
	copy(cells[4:], []byte{0, 0, 28, 4})     // speed 4
	copy(cells[28:], []byte{0, 0, 31, 0x55}) // row 1, channel 2: volume slide up
	b = chunk(b, "PBOD", append(pat, cells...))
	return chunk(b, "SBOD", sampleData)
}

func TestProbe(t *testing.T) {
	data := buildOKT([]byte{1, 2, 3, 4})
	if got := okt.Probe(cursor.New(data), int64(len(data))); got != parser.ProbeSuccess {
		t.Errorf("got %s", got)
	}
	if got := okt.Probe(cursor.New(data[:10]), parser.UnknownSize); got != parser.ProbeWantMoreData {
		t.Errorf("short header: got %s", got)
	}
	if got := okt.Probe(cursor.New([]byte("OKTASONGSAMP\x00\x00\x00\x08")), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("missing channel modes: got %s", got)
	}
	if got := okt.Probe(cursor.New([]byte("FORM1234MODL")), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("wrong magic: got %s", got)
	}
}

func TestLoad(t *testing.T) {
	res, err := parser.LoadAs(&okt.Format, buildOKT([]byte{1, 2, 3, 4}), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Song
	if s.NumChannels() != 5 || s.InitialSpeed != 3 {
		t.Fatalf("got %d channels at speed %d", s.NumChannels(), s.InitialSpeed)
	}
	var pans []int
	for _, ch := range s.Channels {
		pans = append(pans, ch.Panning)
	}
	if !reflect.DeepEqual(pans, []int{64, 192, 192, 192, 64}) {
		t.Errorf("unexpected panning %v", pans)
	}
	if !reflect.DeepEqual(s.Order, song.Order{0}) {
		t.Errorf("unexpected order list %v", s.Order)
	}

	p := s.Pattern(0)
	if p.Rows() != 2 {
		t.Fatalf("expected 2 rows, got %d", p.Rows())
	}
	want := song.Cell{Note: song.NoteMiddleC, Instrument: 1, VolCmd: song.VolVolume, Vol: 32}
	if c := *p.Cell(0, 0); c != want {
		t.Errorf("got %s, expected %s", c, want)
	}
	if c := p.Cell(0, 1); c.Command != song.CmdSpeed || c.Param != 4 {
		t.Errorf("expected speed 4, got %s", c)
	}
	if c := p.Cell(1, 2); c.Command != song.CmdVolumeSlide || c.Param != 0x50 {
		t.Errorf("expected a volume slide, got %s", c)
	}

	if len(s.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(s.Samples))
	}
	smp := s.Sample(1)
	if smp.Name != "kick" || smp.Volume != 256 || smp.Flags&song.SampleLoop != 0 {
		t.Errorf("unexpected sample %+v", smp)
	}
	if !reflect.DeepEqual(smp.PCM8, []int8{1, 2, 3, 4}) {
		t.Errorf("unexpected sample data %v", smp.PCM8)
	}
}

func TestLoadTruncatedSample(t *testing.T) {
	data := buildOKT([]byte{1, 2, 3, 4})
	res, err := parser.LoadAs(&okt.Format, data[:len(data)-1], parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if smp := res.Song.Sample(1); smp.Length != 3 {
		t.Errorf("expected 3 frames, got %d", smp.Length)
	}
	// one for the chunk, one for the sample
	if len(res.Warnings) != 2 {
		t.Errorf("expected two warnings, got %v", res.Warnings)
	}
}
