package far_test

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/far"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	messageLength = 5
	patternAt     = far.HeaderSize + messageLength + 771
	patternSize   = 2 + 4*16*4
)

// buildFAR returns a module with one four-row pattern and a single sample in slot 2.
func buildFAR() []byte {
	le := binary.LittleEndian
	b := make([]byte, far.HeaderSize)
	copy(b, "FAR\xFE")
	copy(b[4:], "farandole")
	copy(b[44:], "\r\n\x1A")
	le.PutUint16(b[47:], patternAt)
	b[49] = 0x10
	for i := range 4 {
		b[50+i] = 1
	}
	b[75] = 4 // speed
	b[76] = 0
	b[77] = 15
	le.PutUint16(b[96:], messageLength)
	b = append(b, "notes"...)

	oh := make([]byte, 771)
	oh[256] = 1 // patterns
	oh[257] = 1 // orders
	le.PutUint16(oh[259:], patternSize)
	b = append(b, oh...)

	pat := make([]byte, patternSize)
	pat[0] = 1 // break after row 2
	copy(pat[2:], []byte{25, 0, 16, 0xF3, 0, 0, 0, 0x74})
	b = append(b, pat...)

	b = append(b, 0x02, 0, 0, 0, 0, 0, 0, 0)
	smp := make([]byte, far.SampleHeaderSize)
	copy(smp, "hit")
	le.PutUint32(smp[32:], 4)
	smp[37] = 15
	le.PutUint32(smp[42:], 4)
	smp[47] = 0x08
	b = append(b, smp...)
	return append(b, 5, 6, 7, 8)
}

func TestProbe(t *testing.T) {
	data := buildFAR()
	if got := far.Probe(cursor.New(data), int64(len(data))); got != parser.ProbeSuccess {
		t.Errorf("got %s", got)
	}
	if got := far.Probe(cursor.New(data[:far.HeaderSize]), far.HeaderSize); got != parser.ProbeFailure {
		t.Errorf("file ends after the header: got %s", got)
	}
	if got := far.Probe(cursor.New(data[:far.HeaderSize]), parser.UnknownSize); got != parser.ProbeWantMoreData {
		t.Errorf("prefix: got %s", got)
	}
	bad := buildFAR()
	bad[46] = 0
	if got := far.Probe(cursor.New(bad), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("missing EOF marker: got %s", got)
	}
}

func TestLoad(t *testing.T) {
	res, err := parser.LoadAs(&far.Format, buildFAR(), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Song
	if s.Title != "farandole" || s.Message != "notes" || s.InitialSpeed != 4 || s.Format.Tracker != "Farandole Composer 1.0" {
		t.Errorf("unexpected song %q by %q, message %q, speed %d", s.Title, s.Format.Tracker, s.Message, s.InitialSpeed)
	}
	if s.Channels[0].Panning != 8 || s.Channels[1].Panning != 248 || s.Channels[3].Mute || !s.Channels[4].Mute {
		t.Errorf("unexpected channels %+v", s.Channels[:5])
	}

	p := s.Pattern(0)
	if p.Rows() != 4 {
		t.Fatalf("expected 4 rows, got %d", p.Rows())
	}
	want := song.Cell{Note: song.NoteMiddleC, Instrument: 1, VolCmd: song.VolVolume, Vol: 64, Command: song.CmdSpeed, Param: 3}
	if c := *p.Cell(0, 0); c != want {
		t.Errorf("got %s, expected %s", c, want)
	}
	if c := p.Cell(0, 1); c.Command != song.CmdVolumeSlide || c.Param != 0x40 {
		t.Errorf("unexpected cell %s", c)
	}
	if c := p.Cell(2, 0); c.Command != song.CmdPatternBreak {
		t.Errorf("expected a pattern break on row 2, got %s", c)
	}

	if len(s.Samples) != 2 || s.Sample(1).Length != 0 {
		t.Fatalf("expected an empty first slot and one sample, got %d samples", len(s.Samples))
	}
	smp := s.Sample(2)
	if smp.Name != "hit" || smp.Volume != 256 || smp.LoopEnd != 4 || !reflect.DeepEqual(smp.PCM8, []int8{5, 6, 7, 8}) {
		t.Errorf("unexpected sample %+v", smp)
	}
}

func TestLoadTruncatedPattern(t *testing.T) {
	data := buildFAR()
	if _, err := parser.LoadAs(&far.Format, data[:patternAt+10], parser.DefaultOptions()); !errors.Is(err, parser.ErrTruncated) {
		t.Errorf("expected a truncation error, got %v", err)
	}
}
