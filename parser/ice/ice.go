// Package ice loads Ice Tracker and Soundtracker 2.6 modules. Both store independent
// 64-row channel tracks, and every order position names one track per channel.
package ice

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/amiga"
	"github.com/QEStudios/TrackerLoader/parser/mod"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	numSamples   = 31
	numChannels  = 4
	rowsPerTrack = 64
	trackSize    = rowsPerTrack * amiga.CellSize
	maxOrders    = 128
)

// HeaderSize is the size of the header up to and including the tag.
const HeaderSize = 1468

type fileHeader struct {
	Title     [20]byte
	Samples   [numSamples]amiga.SampleHeader
	NumOrders uint8
	NumTracks uint8
	Tracks    [maxOrders][numChannels]uint8
	Magic     [4]byte
}

func (h *fileHeader) tracker() (string, bool) {
	switch string(h.Magic[:]) {
	case "MTN\x00":
		return "Soundtracker 2.6", true
	case "IT10":
		return "Ice Tracker", true
	}
	return "", false
}

func (h *fileHeader) isValid() bool {
	if _, ok := h.tracker(); !ok {
		return false
	}
	if h.NumOrders == 0 || h.NumOrders > maxOrders || h.NumTracks == 0 {
		return false
	}
	for i := range h.Samples {
		if h.Samples[i].Volume > 64 {
			return false
		}
	}
	for _, tracks := range h.Tracks[:h.NumOrders] {
		for _, t := range tracks {
			if t >= h.NumTracks {
				return false
			}
		}
	}
	return true
}

// Probe checks for the Ice Tracker or Soundtracker 2.6 tag.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.BigEndian, &h) {
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, int64(h.NumTracks)*trackSize)
}

// Load reads an Ice Tracker or Soundtracker 2.6 module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.BigEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("not an Ice Tracker module")
	}
	tracker, _ := h.tracker()

	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	s.Title = song.DecodeName(cursor.TrimString(h.Title[:], cursor.SpacePaddedNull), song.CharsetISO8859_1)
	s.Format = song.FormatInfo{Name: "Ice Tracker", Type: "ice", Tracker: tracker, Charset: song.CharsetISO8859_1}

	tracks := c.ReadChunk(int(h.NumTracks) * trackSize)
	if tracks.Len() < int(h.NumTracks)*trackSize {
		return nil, parser.Truncated(c, "track data")
	}
	s.SetAmigaPanning(128)
	s.Quirks.Set(song.QuirkAmigaLimits, song.QuirkProTrackerLoops)
	for i := range h.Samples {
		if _, err := s.AddSample(h.Samples[i].ConvertSample(s.Format.Charset)); err != nil {
			return nil, err
		}
	}

	// every order position becomes its own pattern
	numPatterns := int(h.NumOrders)
	if err := s.AllocatePatterns(numPatterns); err != nil {
		return nil, err
	}
	s.Order = make(song.Order, numPatterns)
	for pat := range numPatterns {
		s.Order[pat] = song.PatternIndex(pat)
		p, err := l.PatternGrid(s, pat, rowsPerTrack)
		if err != nil {
			return nil, err
		}
		for ch, track := range h.Tracks[pat] {
			data := tracks.Bytes()[int(track)*trackSize:]
			for row := range rowsPerTrack {
				amiga.ReadCell(data[row*amiga.CellSize:], p.Cell(row, ch))
			}
		}
	}

	if l.WantSamples() {
		if err := mod.ReadSampleData(c, s, l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Format describes Ice Tracker modules for format dispatch.
var Format = parser.Format{
	Name:       "Ice Tracker",
	Tag:        "ice",
	Extensions: []string{"ice", "st26"},
	Probe:      Probe,
	Load:       Load,
}
