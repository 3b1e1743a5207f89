// Package c67 loads CDFM Composer 670 modules: four PCM channels followed by nine OPL2
// FM channels.
package c67

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	numPCMChannels = 4
	numFMChannels  = 9
	numChannels    = numPCMChannels + numFMChannels
	numInstruments = 32
	numPatterns    = 128
	rowsPerPattern = 64
	maxSampleSize  = 0xFFFFF
)

type pcmSample struct {
	Unknown   uint32
	Length    uint32
	LoopStart uint32
	LoopEnd   uint32
}

type fileHeader struct {
	Speed      uint8
	Restart    uint8
	PCMNames   [numInstruments][13]byte
	PCM        [numInstruments]pcmSample
	FMNames    [numInstruments][13]byte
	FM         [numInstruments][11]byte
	Orders     [256]uint8
	PatOffsets [numPatterns]uint32 // relative to the start of the pattern data
	PatLengths [numPatterns]uint32
}

// HeaderSize is the size of fileHeader in the file, including the pattern tables.
const HeaderSize = 2978

func validName(name [13]byte) bool {
	for _, c := range name {
		if c != 0 && c < 0x20 {
			return false
		}
	}
	return true
}

func (h *fileHeader) isValid() bool {
	if h.Speed < 1 || h.Speed > 15 || h.Restart >= 128 {
		return false
	}
	for i := range numInstruments {
		if !validName(h.PCMNames[i]) || !validName(h.FMNames[i]) {
			return false
		}
		smp := h.PCM[i]
		if smp.Length > maxSampleSize || smp.LoopStart > maxSampleSize || smp.LoopEnd > maxSampleSize+1 {
			return false
		}
		// the upper bits of the feedback/connection and waveform registers are unused
		fm := h.FM[i]
		if fm[8]&0xF0 != 0 || fm[9]&0xFC != 0 || fm[10]&0xFC != 0 {
			return false
		}
	}
	for _, o := range h.Orders {
		if o >= numPatterns && o != 0xFF {
			return false
		}
	}
	for i := range numPatterns {
		if h.PatLengths[i] < 1 || h.PatLengths[i] > 0x1000 || h.PatOffsets[i] > 0x100000 {
			return false
		}
	}
	return true
}

// Probe checks for a CDFM header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeSuccess
}

// Load reads a CDFM module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid CDFM header")
	}

	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{Name: "CDFM Composer 670", Type: "c67", Tracker: "CDFM Composer", Charset: song.CharsetCP437}

	s.InitialSpeed = int(h.Speed)
	s.Order = song.ReadOrderFromArray(h.Orders[:], 0xFF, -1).TrimStops()
	s.RestartPosition = int(h.Restart)
	s.Quirks.Set(song.QuirkOPL)
	for i := range numPCMChannels {
		s.Channels[i].Panning = 64
		if i%2 == 1 {
			s.Channels[i].Panning = 192
		}
	}

	for i := range numInstruments {
		ph := h.PCM[i]
		smp := song.NewSample()
		smp.Name = song.DecodeName(cursor.TrimString(h.PCMNames[i][:], cursor.NullTerminated), s.Format.Charset)
		smp.Length = int(ph.Length)
		smp.SetLoop(int(ph.LoopStart), int(ph.LoopEnd), ph.LoopEnd <= ph.Length && ph.LoopEnd > ph.LoopStart, false)
		smp.SanitizeLoops()
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
	}
	for i := range numInstruments {
		smp := song.NewSample()
		smp.Name = song.DecodeName(cursor.TrimString(h.FMNames[i][:], cursor.NullTerminated), s.Format.Charset)
		smp.Flags |= song.SampleAdlib
		smp.AdlibPatch = &song.AdlibPatch{}
		copy(smp.AdlibPatch[:], h.FM[i][:])
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
	}

	patData := c.ChunkAt(c.Position(), c.Remaining())
	dataEnd := 0
	for i := range numPatterns {
		dataEnd = max(dataEnd, int(h.PatOffsets[i]+h.PatLengths[i]))
	}
	if patData.Len() < dataEnd {
		return nil, parser.Truncated(c, "pattern data")
	}
	if err := s.AllocatePatterns(numPatterns); err != nil {
		return nil, err
	}
	for pat := range numPatterns {
		chunk := patData.ChunkAt(int(h.PatOffsets[pat]), int(h.PatLengths[pat]))
		if err := readPattern(s, l, chunk, pat); err != nil {
			return nil, err
		}
	}

	if l.WantSamples() {
		c.Skip(dataEnd)
		for i, smp := range s.Samples[:numInstruments] {
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

func volume(v uint8) uint8 {
	return uint8(int(v&0x0F) * 64 / 15)
}

func readPattern(s *song.Song, l *parser.Loader, data *cursor.Cursor, pat int) error {
	p, err := l.PatternGrid(s, pat, rowsPerPattern)
	if err != nil {
		return err
	}
	row := 0
	for row < rowsPerPattern {
		if !data.CanRead(1) {
			return parser.Truncated(data, "pattern data")
		}
		cmd := data.ReadUint8()
		switch {
		case cmd <= 0x0C:
			b, ok := data.ReadBytes(2)
			if !ok {
				return parser.Truncated(data, "note event")
			}
			cell := p.Cell(row, int(cmd))
			note, instrVol := b[0], b[1]
			cell.Note = song.NoteFromOctave(int(note>>4&0x07)+1, int(note&0x0F))
			cell.Instrument = instrVol>>4 + 1
			if note&0x80 != 0 {
				cell.Instrument += 16
			}
			if cmd >= numPCMChannels {
				cell.Instrument += numInstruments
			}
			cell.SetVolume(song.VolVolume, volume(instrVol))
		case cmd >= 0x20 && cmd <= 0x2C:
			if !data.CanRead(1) {
				return parser.Truncated(data, "volume event")
			}
			p.Cell(row, int(cmd-0x20)).SetVolume(song.VolVolume, volume(data.ReadUint8()))
		case cmd == 0x40:
			if !data.CanRead(1) {
				return parser.Truncated(data, "delay event")
			}
			row += int(data.ReadUint8())
		case cmd == 0x60:
			// the pattern ends before the current row
			if row > 0 && row < rowsPerPattern {
				p.WriteEffect(row-1, 0, song.CmdPatternBreak, 0)
			}
			return nil
		default:
			return parser.Corruptf("pattern %d: unknown event 0x%02X", pat, cmd)
		}
	}
	return nil
}

// Format describes CDFM modules for format dispatch.
var Format = parser.Format{
	Name:       "CDFM Composer 670",
	Tag:        "c67",
	Extensions: []string{"c67"},
	Probe:      Probe,
	Load:       Load,
}
