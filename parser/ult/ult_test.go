package ult_test

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/ult"
	"github.com/QEStudios/TrackerLoader/song"
)

var tracks = []byte{
	25, 1, 0xCF, 6, 128, // C-5, sample 1, speed 6 and volume 128
	0xFC, 63, 0, 0, 0, 0, 0,
	0xFC, 2, 30, 0, 0, 0, 0, // F-5 for two rows
	0xFC, 0, 0, 0, 0, 0, 0,  // end of track
}

// buildULT returns a two-channel module with one pattern and one looped sample.
func buildULT(version byte) []byte {
	le := binary.LittleEndian
	b := make([]byte, ult.HeaderSize)
	copy(b, "MAS_UTrack_V00")
	b[14] = version
	copy(b[15:], "ultra")
	b[47] = 1
	msg := make([]byte, 32)
	copy(msg, "first line")
	b = append(b, msg...)

	b = append(b, 1)
	smp := make([]byte, 66)
	copy(smp, "bell")
	copy(smp[32:], "bell.smp")
	le.PutUint32(smp[48:], 4)
	le.PutUint32(smp[56:], 4)
	smp[60] = 255
	smp[61] = 0x08
	le.PutUint16(smp[62:], 8363)
	if version < '4' {
		smp = smp[:64]
		le.PutUint16(smp[62:], 0)
	}
	b = append(b, smp...)

	orders := make([]byte, 256)
	for i := range orders {
		orders[i] = 0xFF
	}
	orders[0] = 0
	b = append(b, orders...)
	b = append(b, 1, 0)
	if version >= '3' {
		b = append(b, 0, 15)
	}
	b = append(b, tracks...)
	return append(b, 1, 2, 3, 4)
}

func TestProbe(t *testing.T) {
	data := buildULT('4')
	if got := ult.Probe(cursor.New(data), int64(len(data))); got != parser.ProbeSuccess {
		t.Errorf("got %s", got)
	}
	if got := ult.Probe(cursor.New(data[:20]), parser.UnknownSize); got != parser.ProbeWantMoreData {
		t.Errorf("short header: got %s", got)
	}
	bad := buildULT('5')
	if got := ult.Probe(cursor.New(bad), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("unknown version: got %s", got)
	}
	if got := ult.Probe(cursor.New([]byte("MAS_UTrack_V01")), parser.UnknownSize); got != parser.ProbeFailure {
		t.Errorf("wrong magic: got %s", got)
	}
}

func TestLoad(t *testing.T) {
	res, err := parser.LoadAs(&ult.Format, buildULT('4'), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Song
	if s.Title != "ultra" || s.Message != "first line" || s.Format.Tracker != "UltraTracker 1.6" {
		t.Errorf("unexpected song %q by %q, message %q", s.Title, s.Format.Tracker, s.Message)
	}
	if s.NumChannels() != 2 || s.Channels[0].Panning != 8 || s.Channels[1].Panning != 248 {
		t.Errorf("unexpected channels %+v", s.Channels)
	}
	if !reflect.DeepEqual(s.Order, song.Order{0}) {
		t.Errorf("unexpected order list %v", s.Order)
	}

	p := s.Pattern(0)
	want := song.Cell{Note: song.NoteMiddleC, Instrument: 1, VolCmd: song.VolVolume, Vol: 32, Command: song.CmdSpeed, Param: 6}
	if c := *p.Cell(0, 0); c != want {
		t.Errorf("got %s, expected %s", c, want)
	}
	if c := p.Cell(1, 0); !c.IsEmpty() {
		t.Errorf("expected an empty cell, got %s", c)
	}
	for row, note := range []song.Note{song.NoteMiddleC + 5, song.NoteMiddleC + 5, song.NoteNone} {
		if c := p.Cell(row, 1); c.Note != note {
			t.Errorf("row %d: got %s, expected %s", row, c.Note, note)
		}
	}

	smp := s.Sample(1)
	if smp.Name != "bell" || smp.Filename != "bell.smp" || smp.Volume != 256 || smp.LoopEnd != 4 || smp.C5Speed != 8363 {
		t.Errorf("unexpected sample %+v", smp)
	}
	if !reflect.DeepEqual(smp.PCM8, []int8{1, 2, 3, 4}) {
		t.Errorf("unexpected sample data %v", smp.PCM8)
	}
}

func TestLoadOldVersion(t *testing.T) {
	res, err := parser.LoadAs(&ult.Format, buildULT('2'), parser.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Song
	if s.Channels[0].Panning != 64 || s.Channels[1].Panning != 192 {
		t.Errorf("unexpected channels %+v", s.Channels)
	}
	if smp := s.Sample(1); smp.C5Speed != 8363 || !reflect.DeepEqual(smp.PCM8, []int8{1, 2, 3, 4}) {
		t.Errorf("unexpected sample %+v", smp)
	}
}

func TestLoadTruncatedTracks(t *testing.T) {
	data := buildULT('4')
	cut := len(data) - 4 - 3
	if _, err := parser.LoadAs(&ult.Format, data[:cut], parser.DefaultOptions()); !errors.Is(err, parser.ErrTruncated) {
		t.Errorf("expected a truncation error, got %v", err)
	}
}

func TestLoadHeaderOnly(t *testing.T) {
	data := buildULT('4')
	res, err := parser.LoadAs(&ult.Format, data, parser.Options{Flags: parser.OnlyVerifyHeader, FileSize: parser.UnknownSize})
	if err != nil {
		t.Fatal(err)
	}
	if res.Song.Title != "ultra" || len(res.Song.Patterns) == 0 {
		t.Errorf("unexpected song %+v", res.Song)
	}
	for i, p := range res.Song.Patterns {
		if p != nil {
			t.Errorf("header-only load stored pattern %d", i)
		}
	}

	cut := len(data) - 4 - 3
	_, err = parser.LoadAs(&ult.Format, data[:cut], parser.Options{Flags: parser.OnlyVerifyHeader, FileSize: parser.UnknownSize})
	if !errors.Is(err, parser.ErrTruncated) {
		t.Errorf("expected header-only to report the truncated track, got %v", err)
	}
}
