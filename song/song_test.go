package song_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/QEStudios/TrackerLoader/song"
)

func TestReadOrderFromArray(t *testing.T) {
	native := []uint8{0, 1, 0xFE, 2, 0xFF, 7}
	got := song.ReadOrderFromArray(native, 0xFF, 0xFE)
	expected := song.Order{0, 1, song.OrderSkip, 2, song.OrderStop, 7}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("got different order than expected. got: %v expected: %v", got, expected)
	}
	if got.Length() != 4 {
		t.Errorf("expected length 4 before the stop entry, got %d", got.Length())
	}
	if got.MaxPattern() != 2 {
		t.Errorf("expected highest pattern 2, got %d", got.MaxPattern())
	}
}

func TestReadOrderFromArrayWithoutSentinels(t *testing.T) {
	native := []uint16{0xFF, 0xFE, 3}
	got := song.ReadOrderFromArray(native, -1, -1)
	expected := song.Order{0xFF, 0xFE, 3}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("got different order than expected. got: %v expected: %v", got, expected)
	}
}

func TestReadOrderFromArrayIsBounded(t *testing.T) {
	native := make([]uint16, song.MaxOrders+100)
	if got := song.ReadOrderFromArray(native, -1, -1); len(got) != song.MaxOrders {
		t.Fatalf("expected order list truncated to %d entries, got %d", song.MaxOrders, len(got))
	}
}

func TestSanitizeLoops(t *testing.T) {
	tests := []struct {
		name               string
		length, start, end int
		loop               bool
		expStart, expEnd   int
		expLoop            bool
	}{
		{"valid", 100, 10, 50, true, 10, 50, true},
		{"end beyond length", 100, 10, 500, true, 10, 100, true},
		{"inverted", 100, 60, 20, true, 0, 0, false},
		{"start beyond length", 100, 200, 300, true, 0, 0, false},
		{"negative start", 100, -5, 20, true, 0, 20, true},
		{"empty sample", 0, 0, 10, true, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			smp := song.NewSample()
			smp.Length = tt.length
			smp.LoopStart, smp.LoopEnd = tt.start, tt.end
			if tt.loop {
				smp.Flags |= song.SampleLoop
			}
			smp.SustainStart, smp.SustainEnd = tt.end, tt.start
			smp.Flags |= song.SampleSustain
			smp.SanitizeLoops()
			if smp.LoopStart != tt.expStart || smp.LoopEnd != tt.expEnd {
				t.Errorf("loop: got %d-%d, expected %d-%d", smp.LoopStart, smp.LoopEnd, tt.expStart, tt.expEnd)
			}
			if (smp.Flags&song.SampleLoop != 0) != tt.expLoop {
				t.Errorf("loop flag: got %v, expected %v", smp.Flags&song.SampleLoop != 0, tt.expLoop)
			}
			if !(0 <= smp.SustainStart && smp.SustainStart <= smp.SustainEnd && smp.SustainEnd <= smp.Length) {
				t.Errorf("sustain loop %d-%d not within 0-%d", smp.SustainStart, smp.SustainEnd, smp.Length)
			}
		})
	}
}

func TestTransposeFrequencyRoundTrip(t *testing.T) {
	if f := song.TransposeToFrequency(0, 0); f != 8363 {
		t.Errorf("expected 8363 Hz for no transpose, got %d", f)
	}
	if f := song.TransposeToFrequency(12, 0); f != 16726 {
		t.Errorf("expected 16726 Hz one octave up, got %d", f)
	}
	for _, freq := range []uint32{8363, 16726, 22050, 44100, 4181} {
		tr, ft := song.FrequencyToTranspose(freq)
		back := song.TransposeToFrequency(int(tr), int(ft))
		if diff := int(back) - int(freq); diff < -5 || diff > 5 {
			t.Errorf("%d Hz: transpose %d finetune %d gives %d Hz", freq, tr, ft, back)
		}
	}
}

func TestPatternBounds(t *testing.T) {
	p, err := song.NewPattern(64, 4)
	if err != nil {
		t.Fatalf("error creating pattern: %v", err)
	}
	if p.Cell(63, 3) == nil {
		t.Error("expected cell (63, 3) to exist")
	}
	for _, rc := range [][2]int{{64, 0}, {0, 4}, {-1, 0}, {0, -1}} {
		if p.Cell(rc[0], rc[1]) != nil {
			t.Errorf("expected cell (%d, %d) to be rejected", rc[0], rc[1])
		}
	}
	if p.Row(64) != nil {
		t.Error("expected row 64 to be rejected")
	}
	if _, err := song.NewPattern(0, 4); err == nil {
		t.Error("expected error for a pattern without rows")
	}
	if _, err := song.NewPattern(64, song.MaxChannels+1); err == nil {
		t.Error("expected error for too many channels")
	}
}

func TestShapeMatchesPatternBounds(t *testing.T) {
	p, _ := song.NewPattern(16, 3)
	sh, err := song.NewShape(16, 3)
	if err != nil {
		t.Fatalf("error creating shape: %v", err)
	}
	for row := -1; row <= 16; row++ {
		for ch := -1; ch <= 3; ch++ {
			if (p.Cell(row, ch) == nil) != (sh.Cell(row, ch) == nil) {
				t.Errorf("cell (%d, %d): pattern and shape disagree", row, ch)
			}
		}
	}
	c := sh.Cell(2, 1)
	c.Note = song.NoteMiddleC
	if !sh.Cell(3, 0).IsEmpty() {
		t.Error("expected a cleared scratch cell")
	}
	if !sh.WriteEffect(15, 0, song.CmdSpeed, 3) || sh.WriteEffect(16, 0, song.CmdSpeed, 3) {
		t.Error("unexpected WriteEffect result")
	}
	if _, err := song.NewShape(song.MaxRows+1, 3); err == nil {
		t.Error("expected error for too many rows")
	}
}

func TestShapeReportsInvalidCell(t *testing.T) {
	sh, _ := song.NewShape(8, 2)
	sh.Cell(0, 0).Note = song.NoteMiddleC
	sh.Cell(1, 1).SetEffect(song.CmdSpeed, 6)
	if err := sh.Err(); err != nil {
		t.Fatalf("unexpected error for valid cells: %v", err)
	}

	// the last cell handed out is checked too
	sh.Cell(4, 1).Note = song.NoteMax + 1
	if sh.Err() == nil {
		t.Fatal("expected an error for an invalid note")
	}
	sh.Cell(5, 0)
	if sh.Err() == nil {
		t.Error("expected the first error to be kept")
	}

	// a stored pattern with the same cell fails validation
	s, _ := song.New(2)
	p, _ := s.InsertPattern(0, 8)
	p.Cell(4, 1).Note = song.NoteMax + 1
	if s.Validate() == nil {
		t.Error("expected Validate to reject the same cell")
	}
}

func TestPatternResize(t *testing.T) {
	p, _ := song.NewPattern(64, 2)
	p.Cell(10, 1).Note = song.NoteMiddleC
	p.Cell(40, 0).Note = song.NoteCut
	np, err := p.Resize(32)
	if err != nil {
		t.Fatalf("error resizing: %v", err)
	}
	if np.Rows() != 32 || np.Channels() != 2 {
		t.Fatalf("unexpected dimensions %dx%d", np.Rows(), np.Channels())
	}
	if np.Cell(10, 1).Note != song.NoteMiddleC {
		t.Errorf("expected note to survive resize, got %s", np.Cell(10, 1).Note)
	}
	if p.Rows() != 64 {
		t.Error("resize must not modify the original pattern")
	}
}

func TestWriteEffectPrefersGlobalCommands(t *testing.T) {
	p, _ := song.NewPattern(4, 2)
	p.Cell(0, 0).SetEffect(song.CmdArpeggio, 0x37)
	p.Cell(0, 1).SetEffect(song.CmdTremor, 0x11)
	if !p.WriteEffect(0, 1, song.CmdSpeed, 3) {
		t.Fatal("expected speed command to be written")
	}
	if c := p.Cell(0, 1); c.Command != song.CmdSpeed || c.Param != 3 {
		t.Errorf("expected speed on preferred channel, got %s", spew.Sdump(c))
	}

	// a full row of global commands cannot take another one
	p.Cell(1, 0).SetEffect(song.CmdTempo, 125)
	p.Cell(1, 1).SetEffect(song.CmdPositionJump, 0)
	if p.WriteEffect(1, 0, song.CmdPatternBreak, 0) {
		t.Error("expected pattern break to be dropped on a row of global commands")
	}

	// volume column takes over when the effect slots are busy
	p.Cell(2, 0).SetEffect(song.CmdArpeggio, 1)
	p.Cell(2, 1).SetEffect(song.CmdArpeggio, 2)
	if !p.WriteEffect(2, 0, song.CmdVolume, 32) {
		t.Fatal("expected volume to go into the volume column")
	}
	if c := p.Cell(2, 0); c.VolCmd != song.VolVolume || c.Vol != 32 || c.Command != song.CmdArpeggio {
		t.Errorf("unexpected cell %s", c)
	}
}

func TestCombineEffects(t *testing.T) {
	var c song.Cell
	if !c.CombineEffects(song.CmdVolume, 20, song.CmdSpeed, 4) {
		t.Error("expected both effects to fit")
	}
	if c.VolCmd != song.VolVolume || c.Vol != 20 || c.Command != song.CmdSpeed || c.Param != 4 {
		t.Errorf("unexpected cell %s", c)
	}

	c = song.Cell{}
	if c.CombineEffects(song.CmdTremor, 0x21, song.CmdPatternBreak, 0) {
		t.Error("expected one effect to be dropped")
	}
	if c.Command != song.CmdPatternBreak {
		t.Errorf("expected the global command to win, got %s", c.Command)
	}
}

func TestValidate(t *testing.T) {
	s, err := song.New(4)
	if err != nil {
		t.Fatalf("error creating song: %v", err)
	}
	if _, err := s.InsertPattern(1, 64); err != nil {
		t.Fatalf("error inserting pattern: %v", err)
	}
	s.Order = song.Order{0, 1, song.OrderSkip, song.OrderStop}
	smp := song.NewSample()
	smp.Length = 10
	smp.SetLoop(2, 8, true, false)
	if err := smp.AllocatePCM(); err != nil {
		t.Fatal(err)
	}
	s.AddSample(smp)
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid song, got %v", err)
	}

	s.Order = append(s.Order, 5)
	if err := s.Validate(); err == nil {
		t.Error("expected error for order referencing a missing pattern")
	}
	if n := s.SanitizeOrders(); n != 1 {
		t.Errorf("expected one order entry fixed, got %d", n)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("expected valid song after SanitizeOrders, got %v", err)
	}

	smp.LoopEnd = 20
	if err := s.Validate(); err == nil {
		t.Error("expected error for loop beyond the sample end")
	}
	smp.SanitizeLoops()

	smp.PCM8 = smp.PCM8[:5]
	if err := s.Validate(); err == nil {
		t.Error("expected error for short PCM data")
	}
}

func TestNoteString(t *testing.T) {
	tests := map[song.Note]string{
		song.NoteNone:              "...",
		song.NoteMiddleC:           "C-5",
		song.NoteFromOctave(3, 10): "A#3",
		song.NoteKeyOff:            "===",
		song.NoteCut:               "^^^",
	}
	for n, expected := range tests {
		if n.String() != expected {
			t.Errorf("got %q, expected %q", n.String(), expected)
		}
	}
	if song.NoteFromOctave(10, 0) != song.NoteNone {
		t.Error("expected octave 10 to be out of range")
	}
}

func TestQuirkSet(t *testing.T) {
	var q song.QuirkSet
	q.Set(song.QuirkLinearSlides, song.QuirkAmigaLimits)
	if !q.Has(song.QuirkAmigaLimits) || q.Has(song.QuirkOPL) {
		t.Errorf("unexpected quirk set %v", q.Sorted())
	}
	q.Clear(song.QuirkAmigaLimits)
	expected := []song.Quirk{song.QuirkLinearSlides}
	if !reflect.DeepEqual(q.Sorted(), expected) {
		t.Errorf("got %v, expected %v", q.Sorted(), expected)
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		raw      []byte
		cs       song.Charset
		expected string
	}{
		{[]byte("Hello\x00\x00"), song.CharsetASCII, "Hello"},
		{[]byte{'C', 'a', 'f', 0x82}, song.CharsetCP437, "Café"},
		{[]byte{'C', 'a', 'f', 0xE9}, song.CharsetWindows1252, "Café"},
		{[]byte{'C', 'a', 'f', 0xE9}, song.CharsetISO8859_1, "Café"},
		{[]byte("a\x01b "), song.CharsetCP437, "a b"},
	}
	for _, tt := range tests {
		if got := song.DecodeName(tt.raw, tt.cs); got != tt.expected {
			t.Errorf("DecodeName(%q, %s) = %q, expected %q", tt.raw, tt.cs, got, tt.expected)
		}
	}
}

func TestDecodeMessage(t *testing.T) {
	raw := []byte("line one  line two  \x00\x00\x00\x00\x00\x00\x00\x00\x00\x00")
	if got := song.DecodeMessage(raw, song.CharsetCP437, 10); got != "line one\nline two" {
		t.Errorf("fixed width message: got %q", got)
	}
	if got := song.DecodeMessage([]byte("a\rb\r\nc\n"), song.CharsetASCII, 0); got != "a\nb\nc" {
		t.Errorf("line ended message: got %q", got)
	}
}

func TestSongString(t *testing.T) {
	s, _ := song.New(2)
	s.Title = "test song"
	s.Format.Name = "Test"
	p, _ := s.InsertPattern(0, 2)
	p.Cell(1, 1).Note = song.NoteMiddleC
	s.Order = song.Order{0, song.OrderStop}
	out := s.String()
	for _, want := range []string{"Test module", "test song", "Order (2): 0 ---"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	table := s.FormatPattern(0)
	if !strings.Contains(table, "C-5 .. ... ...") || !strings.Contains(table, "Channel 1") {
		t.Errorf("unexpected pattern table:\n%s", table)
	}
}
