// Package stk loads the original 15-sample Soundtracker modules. They carry no tag, so
// detection relies on the sample headers and order list looking like something a real
// tracker wrote.
package stk

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/amiga"
	"github.com/QEStudios/TrackerLoader/parser/mod"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	numSamples     = 15
	rowsPerPattern = 64
	numChannels    = 4
	maxOrders      = 128
	maxPatterns    = 64
	patternSize    = rowsPerPattern * numChannels * amiga.CellSize

	// maxInvalidBytes is how many implausible header bytes are tolerated before the
	// file is considered not to be a Soundtracker module.
	maxInvalidBytes = 40
	// maxSampleWords is the largest sample Soundtracker could handle.
	maxSampleWords = 0x8000
)

type fileHeader struct {
	Title     [20]byte
	Samples   [numSamples]amiga.SampleHeader
	NumOrders uint8
	Tempo     uint8 // CIA tempo in later versions, 0x78 or 0 for VBlank timing
	Orders    [maxOrders]uint8
}

// HeaderSize is the size of the Soundtracker header.
const HeaderSize = 600

func (h *fileHeader) isValid() bool {
	if h.NumOrders == 0 || h.NumOrders > maxOrders {
		return false
	}
	invalid := amiga.CountInvalidChars(h.Title[:])
	totalLength := 0
	for i := range h.Samples {
		smp := &h.Samples[i]
		invalid += smp.InvalidBytes()
		if smp.Length > maxSampleWords || smp.Volume > 64 {
			return false
		}
		totalLength += int(smp.Length)
	}
	if invalid > maxInvalidBytes || totalLength == 0 {
		return false
	}
	for _, o := range h.Orders {
		if o >= maxPatterns {
			return false
		}
	}
	return true
}

func (h *fileHeader) numPatterns() int {
	n := 0
	for _, o := range h.Orders {
		n = max(n, int(o)+1)
	}
	return n
}

// Probe checks for a plausible Soundtracker header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.BigEndian, &h) {
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, int64(h.numPatterns())*patternSize)
}

// Load reads a Soundtracker module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.BigEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("implausible Soundtracker header")
	}
	numPatterns := h.numPatterns()
	if !c.CanRead(numPatterns * patternSize) {
		return nil, parser.Truncated(c, "pattern data")
	}

	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	s.Title = song.DecodeName(cursor.TrimString(h.Title[:], cursor.SpacePaddedNull), song.CharsetISO8859_1)
	s.Format = song.FormatInfo{Name: "Soundtracker", Type: "stk", Tracker: "Soundtracker", Charset: song.CharsetISO8859_1}

	s.Order = song.ReadOrderFromArray(h.Orders[:h.NumOrders], -1, -1)
	s.SetAmigaPanning(128)
	s.Quirks.Set(song.QuirkAmigaLimits, song.QuirkProTrackerLoops, song.QuirkNoteCutOnEmptyNote)
	switch {
	case h.Tempo == 0 || h.Tempo == 0x78:
		s.Quirks.Set(song.QuirkVBlankTiming)
	default:
		s.InitialTempo = ciaTempo(h.Tempo)
	}

	for i := range h.Samples {
		hdr := &h.Samples[i]
		smp := hdr.ConvertSample(s.Format.Charset)
		// loop starts are in bytes, not words
		loopStart := int(hdr.LoopStart)
		smp.SetLoop(loopStart, loopStart+int(hdr.LoopLength)*2, hdr.LoopLength > 1, false)
		smp.SanitizeLoops()
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
	}

	if err := s.AllocatePatterns(numPatterns); err != nil {
		return nil, err
	}
	for pat := range numPatterns {
		p, err := l.PatternGrid(s, pat, rowsPerPattern)
		if err != nil {
			return nil, err
		}
		if !amiga.ReadPattern(c, p, 0, numChannels) {
			return nil, parser.Truncated(c, "pattern data")
		}
		speedOnly(p)
	}

	if l.WantSamples() {
		if err := mod.ReadSampleData(c, s, l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ciaTempo converts the CIA timer value of later Soundtracker versions to a tempo.
func ciaTempo(v uint8) int {
	if v >= 240 {
		return 255
	}
	return max(32, min(255, 709379*125/50/((240-int(v))*122)))
}

// speedOnly turns tempo commands into speed changes.
func speedOnly(p song.Grid) {
	for row := range p.Rows() {
		for ch := range p.Channels() {
			if c := p.Cell(row, ch); c.Command == song.CmdTempo {
				c.SetEffect(song.CmdSpeed, min(c.Param, 0x1F))
			}
		}
	}
}

// Format describes 15-sample Soundtracker modules for format dispatch.
var Format = parser.Format{
	Name:       "Soundtracker",
	Tag:        "stk",
	Extensions: []string{"stk", "mod"},
	Probe:      Probe,
	Load:       Load,
}
