package furnace

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/song"
)

const export = "# Furnace Text Export\n" +
	"\n" +
	"generated by Furnace 0.6.8.1 (232)\n" +
	"\n" +
	"# Song Information\n" +
	"\n" +
	"- name: Demo\n" +
	"- author: someone\n" +
	"- album: Tests\n" +
	"- system: Sega Master System\n" +
	"- tuning: 440\n" +
	"\n" +
	"# Sound Chips\n" +
	"\n" +
	"- TI SN76489\n" +
	"  - id: 03\n" +
	"  - flags:\n" +
	"```\n" +
	"chipType=0\n" +
	"```\n" +
	"\n" +
	"# Instruments\n" +
	"\n" +
	"## 00: Lead\n" +
	"\n" +
	"- type: 0\n" +
	"\n" +
	"# Wavetables\n" +
	"\n" +
	"# Samples\n" +
	"\n" +
	"# Subsongs\n" +
	"\n" +
	"## 0: Intro\n" +
	"\n" +
	"- tick rate: 60\n" +
	"- speeds: 6\n" +
	"- virtual tempo: 150/150\n" +
	"- time base: 0\n" +
	"- pattern length: 4\n" +
	"\n" +
	"orders:\n" +
	"```\n" +
	"00 | 00 00 00 00\n" +
	"01 | 01 01 01 01\n" +
	"02 | 02 02 02 02\n" +
	"```\n" +
	"\n" +
	"## Patterns\n" +
	"\n" +
	"----- ORDER 00\n" +
	"00 |C-4 00 0F ....|... .. .. ....|... .. .. ....|... .. .. 0F03|\n" +
	"01 |... .. .. ....|OFF .. .. ....|... .. .. ....|... .. .. ....|\n" +
	"02 |REL .. .. 0A0F|... .. .. ....|... .. .. ....|... .. .. ....|\n" +
	"03 |... .. .. ....|... .. .. ....|... .. .. ....|... .. .. ....|\n" +
	"\n" +
	"----- ORDER 01\n" +
	"00 |D#4 00 08 FF00|... .. .. ....|... .. .. ....|... .. .. ....|\n" +
	"01 |... .. .. ....|... .. .. ....|... .. .. ....|... .. .. ....|\n" +
	"02 |... .. .. ....|... .. .. ....|... .. .. ....|... .. .. ....|\n" +
	"03 |... .. .. ....|... .. .. ....|... .. .. ....|... .. .. ....|\n" +
	"\n" +
	"----- ORDER 02\n" +
	"00 |... .. .. ....|... .. .. ....|... .. .. ....|... .. .. 2001|\n" +
	"01 |... .. .. ....|... .. .. ....|... .. .. ....|... .. .. ....|\n" +
	"02 |... .. .. ....|... .. .. ....|... .. .. ....|... .. .. ....|\n" +
	"03 |... .. .. ....|... .. .. ....|... .. .. ....|... .. .. ....|\n"

func TestParsePitchString(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"C-4", 60},
		{"A-4", 69},
		{"C#0", 13},
		{"C_1", 0},
		{"B+1", 12},
	}
	for _, tt := range tests {
		got, err := parsePitchString(tt.in)
		if err != nil {
			t.Errorf("%s: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %d, expected %d", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"H-4", "C_9", "C-", "C?4"} {
		if _, err := parsePitchString(bad); err == nil {
			t.Errorf("%s: expected an error", bad)
		}
	}
}

func TestParseNote(t *testing.T) {
	n, err := parseNote("D#4 01 7F 0A0F 04..")
	if err != nil {
		t.Fatal(err)
	}
	want := note{
		Pitch: 63, HasPitch: true,
		Instrument: 1, HasInstrument: true,
		Volume: 0x7F, HasVolume: true,
		Effects: []effect{{ID: 0x0A, Value: 0x0F, HasValue: true}, {ID: 0x04}},
	}
	if !reflect.DeepEqual(n, want) {
		t.Errorf("got %s", spew.Sdump(n))
	}
	if _, err := parseNote("C-4 00"); err == nil {
		t.Error("expected an error for a short note")
	}
}

func TestProbe(t *testing.T) {
	if got := Probe(cursor.New([]byte("\xEF\xBB\xBF"+export)), parser.UnknownSize); got != parser.ProbeSuccess {
		t.Errorf("got %s", got)
	}
	if got := Probe(cursor.New([]byte("# Furn")), parser.UnknownSize); got != parser.ProbeWantMoreData {
		t.Errorf("short signature: got %s", got)
	}
	if got := Probe(cursor.New([]byte("# Some other markdown file")), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("markdown: got %s", got)
	}
}

func TestLoad(t *testing.T) {
	res, err := parser.LoadAs(&Format, []byte(export), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Song
	if s.Title != "Demo - Intro (from Tests)" || s.Artist != "someone" || s.Format.Tracker != "Furnace (232)" {
		t.Errorf("unexpected song header %s", spew.Sdump(s.Title, s.Artist, s.Format))
	}
	if s.InitialSpeed != 6 || s.InitialTempo != 150 {
		t.Errorf("got speed %d tempo %d", s.InitialSpeed, s.InitialTempo)
	}
	if s.NumChannels() != 4 || s.Channels[3].Name != "Noise" {
		t.Errorf("unexpected channels %+v", s.Channels)
	}
	// the stop effect in the second order ends the song there
	if !reflect.DeepEqual(s.Order, song.Order{0, 1}) {
		t.Errorf("unexpected order list %v", s.Order)
	}
	if len(s.Samples) != 1 || s.Sample(1).Name != "Lead" {
		t.Errorf("unexpected samples %s", spew.Sdump(s.Samples))
	}

	p := s.Pattern(0)
	want := song.Cell{Note: song.NoteMiddleC, Instrument: 1, VolCmd: song.VolVolume, Vol: 64}
	if c := *p.Cell(0, 0); c != want {
		t.Errorf("got %s, expected %s", c, want)
	}
	if c := p.Cell(0, 3); c.Command != song.CmdSpeed || c.Param != 3 {
		t.Errorf("expected speed 3, got %s", c)
	}
	if c := p.Cell(1, 1); c.Note != song.NoteCut {
		t.Errorf("expected a note cut, got %s", c)
	}
	if c := p.Cell(2, 0); c.Note != song.NoteKeyOff || c.Command != song.CmdVolumeSlide || c.Param != 0x0F {
		t.Errorf("expected key off with a volume slide, got %s", c)
	}
	if c := s.Pattern(1).Cell(0, 0); c.Note != song.NoteMiddleC+3 || c.Vol != 34 {
		t.Errorf("got %s", c)
	}

	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0].Message, "effect 20") {
		t.Errorf("expected one warning for the noise effect, got %v", res.Warnings)
	}
}

func TestLoadHeaderOnly(t *testing.T) {
	opts := parser.Options{Flags: parser.OnlyVerifyHeader, FileSize: parser.UnknownSize}
	res, err := parser.LoadAs(&Format, []byte(export), opts)
	if err != nil {
		t.Fatal(err)
	}
	full, err := parser.LoadAs(&Format, []byte(export), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if res.Song.Title != "Demo - Intro (from Tests)" || !reflect.DeepEqual(res.Song.Order, full.Song.Order) {
		t.Errorf("unexpected header-only song %s", spew.Sdump(res.Song.Title, res.Song.Order))
	}
	for i, p := range res.Song.Patterns {
		if p != nil {
			t.Errorf("header-only load stored pattern %d", i)
		}
	}
	if len(res.Warnings) != len(full.Warnings) {
		t.Errorf("header-only load gave warnings %v, full load %v", res.Warnings, full.Warnings)
	}
}

func TestLoadMissingAuthor(t *testing.T) {
	data := strings.Replace(export, "- author: someone\n", "", 1)
	if _, err := parser.LoadAs(&Format, []byte(data), parser.DefaultOptions()); !errors.Is(err, parser.ErrCorrupt) {
		t.Errorf("expected a corruption error, got %v", err)
	}
}

func TestLoadTruncated(t *testing.T) {
	data := export[:strings.Index(export, "## Patterns")]
	if _, err := parser.LoadAs(&Format, []byte(data), parser.DefaultOptions()); !errors.Is(err, parser.ErrTruncated) {
		t.Errorf("expected a truncation error, got %v", err)
	}
}
