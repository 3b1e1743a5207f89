// Package c669 loads Composer 669 and UNIS 669 modules: eight channels, 64-row patterns
// and per-pattern speed and break tables.
package c669

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	numChannels    = 8
	rowsPerPattern = 64
	cellSize       = 3
	patternSize    = rowsPerPattern * numChannels * cellSize
	maxSamples     = 64
	maxPatterns    = 128
	sampleSize     = 25
)

type fileHeader struct {
	Magic       [2]byte // "if" or "JN"
	Message     [108]byte
	NumSamples  uint8
	NumPatterns uint8
	Restart     uint8
	Orders      [128]uint8
	Tempos      [128]uint8
	Breaks      [128]uint8
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 497

type sampleHeader struct {
	Filename  [13]byte
	Length    uint32
	LoopStart uint32
	LoopEnd   uint32
}

func (h *fileHeader) isUNIS() bool {
	return string(h.Magic[:]) == "JN"
}

func (h *fileHeader) isValid() bool {
	if string(h.Magic[:]) != "if" && !h.isUNIS() {
		return false
	}
	if h.NumSamples > maxSamples || h.NumPatterns == 0 || h.NumPatterns > maxPatterns || h.Restart >= 128 {
		return false
	}
	for i, o := range h.Orders {
		if o != 0xFF && o >= h.NumPatterns {
			return false
		}
		if i < int(h.NumPatterns) && (h.Tempos[i] == 0 || h.Tempos[i] > 15 || h.Breaks[i] >= rowsPerPattern) {
			return false
		}
	}
	return true
}

func (h *fileHeader) additionalSize() int64 {
	return int64(h.NumSamples)*sampleSize + int64(h.NumPatterns)*patternSize
}

// Probe checks for a 669 header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, h.additionalSize())
}

// Load reads a 669 module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid 669 header")
	}
	if !c.CanRead(int(h.additionalSize())) {
		return nil, parser.Truncated(c, "samples and patterns")
	}

	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	tracker := "Composer 669"
	if h.isUNIS() {
		tracker = "UNIS 669"
	}
	s.Format = song.FormatInfo{Name: "Composer 669", Type: "669", Tracker: tracker, Charset: song.CharsetCP437}
	// the first of the three message lines doubles as the title
	s.Message = song.DecodeMessage(h.Message[:], s.Format.Charset, 36)
	s.Title = song.DecodeName(cursor.TrimString(h.Message[:36], cursor.SpacePaddedNull), s.Format.Charset)

	s.InitialSpeed = int(h.Tempos[0])
	s.InitialTempo = 78
	s.Order = song.ReadOrderFromArray(h.Orders[:], 0xFF, -1).TrimStops()
	s.RestartPosition = int(h.Restart)
	s.Quirks.Set(song.QuirkPeriodsAreHertz, song.QuirkPerPatternTempo, song.QuirkSlidesAtSpeed1)
	for i := range s.Channels {
		s.Channels[i].Panning = 64
		if i%2 == 1 {
			s.Channels[i].Panning = 192
		}
	}

	for range int(h.NumSamples) {
		var sh sampleHeader
		if !cursor.ReadStruct(c, binary.LittleEndian, &sh) {
			return nil, parser.Truncated(c, "sample headers")
		}
		smp := song.NewSample()
		smp.Filename = song.DecodeName(cursor.TrimString(sh.Filename[:], cursor.NullTerminated), s.Format.Charset)
		smp.Name = smp.Filename
		smp.Length = int(min(sh.Length, song.MaxSampleLength))
		// an end past the sample means no loop
		smp.SetLoop(int(sh.LoopStart), int(sh.LoopEnd), int(sh.LoopEnd) <= smp.Length, false)
		smp.SanitizeLoops()
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
	}

	numPatterns := int(h.NumPatterns)
	if err := s.AllocatePatterns(numPatterns); err != nil {
		return nil, err
	}
	for pat := range numPatterns {
		p, err := l.PatternGrid(s, pat, rowsPerPattern)
		if err != nil {
			return nil, err
		}
		data, ok := c.ReadBytes(patternSize)
		if !ok {
			return nil, parser.Truncated(c, "pattern data")
		}
		for row := range rowsPerPattern {
			for ch := range numChannels {
				off := (row*numChannels + ch) * cellSize
				readCell(data[off:off+cellSize], p.Cell(row, ch), h.isUNIS())
			}
		}
		// speed and break length live outside the pattern data
		p.WriteEffect(0, 0, song.CmdSpeed, h.Tempos[pat])
		if brk := int(h.Breaks[pat]); brk < rowsPerPattern-1 {
			p.WriteEffect(brk, 0, song.CmdPatternBreak, 0)
		}
	}

	if l.WantSamples() {
		for i, smp := range s.Samples {
			offset := c.AbsolutePosition()
			truncated, err := sampleio.Read(c, smp, sampleio.Unsigned8)
			if err != nil {
				return nil, err
			}
			if truncated {
				l.Warnf(offset, "sample %d is truncated to %d bytes", i+1, smp.Length)
			}
		}
	}
	s.SanitizeOrders()
	return s, nil
}

func volume(b uint8) uint8 {
	return uint8(int(b&0x0F) * 64 / 15)
}

func readCell(b []byte, cell *song.Cell, unis bool) {
	switch b[0] {
	case 0xFF:
	case 0xFE:
		cell.SetVolume(song.VolVolume, volume(b[1]))
	default:
		cell.Note = song.NoteMiddleC - 24 + song.Note(b[0]>>2)
		cell.Instrument = ((b[0]&0x03)<<4 | b[1]>>4) + 1
		cell.SetVolume(song.VolVolume, volume(b[1]))
	}
	if b[2] == 0xFF {
		return
	}
	param := b[2] & 0x0F
	switch b[2] >> 4 {
	case 0:
		cell.SetEffect(song.CmdPortamentoUp, param)
	case 1:
		cell.SetEffect(song.CmdPortamentoDown, param)
	case 2:
		cell.SetEffect(song.CmdTonePortamento, param)
	case 3:
		cell.SetEffect(song.CmdPortamentoUp, 1)
	case 4:
		cell.SetEffect(song.CmdVibrato, param<<4|1)
	case 5:
		if param > 0 {
			cell.SetEffect(song.CmdSpeed, param)
		}
	case 6:
		if unis {
			cell.SetEffect(song.CmdPanningSlide, param<<4)
		}
	case 7:
		if unis {
			cell.SetEffect(song.CmdRetrig, param)
		}
	}
}

// Format describes 669 modules for format dispatch.
var Format = parser.Format{
	Name:       "Composer 669",
	Tag:        "669",
	Extensions: []string{"669"},
	Probe:      Probe,
	Load:       Load,
}
