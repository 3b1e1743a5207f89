// Package c667 loads Composer 667 modules: nine OPL2 FM channels, 64 instruments and
// event-stream patterns of 32 rows.
package c667

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	numChannels    = 9
	numInstruments = 64
	instrumentSize = 11
	rowsPerPattern = 32
	maxPatterns    = 128
)

type fileHeader struct {
	Magic      [2]byte // "gf"
	Names      [numInstruments][8]byte
	Speed      uint8
	NumOrders  uint8
	PatOffsets [maxPatterns]uint16 // relative to the end of the instrument definitions
}

const headerSize = 772

func (h *fileHeader) isValid() bool {
	if string(h.Magic[:]) != "gf" || h.Speed < 1 || h.Speed > 15 || h.NumOrders > maxPatterns {
		return false
	}
	for _, name := range h.Names {
		for _, c := range name {
			if c != 0 && c < 0x20 {
				return false
			}
		}
	}
	return h.numPatterns() > 0
}

// numPatterns returns the number of patterns, or 0 if the offset table is not
// increasing. Unused trailing entries are zero.
func (h *fileHeader) numPatterns() int {
	n := 1
	for i := 1; i < len(h.PatOffsets); i++ {
		if h.PatOffsets[i] == 0 {
			for _, o := range h.PatOffsets[i:] {
				if o != 0 {
					return 0
				}
			}
			break
		}
		if h.PatOffsets[i] <= h.PatOffsets[i-1] {
			return 0
		}
		n++
	}
	return n
}

// additionalSize is the data that must follow the header: the order list and the
// instrument definitions.
func (h *fileHeader) additionalSize() int64 {
	return int64(h.NumOrders) + numInstruments*instrumentSize
}

// Probe checks for a Composer 667 header.
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

// Load reads a Composer 667 module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid Composer 667 header")
	}
	if !c.CanRead(int(h.additionalSize())) {
		return nil, parser.Truncated(c, "order list and instruments")
	}

	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{Name: "Composer 667", Type: "667", Tracker: "Composer 667", Charset: song.CharsetCP437}

	s.InitialSpeed = int(h.Speed)
	s.Quirks.Set(song.QuirkOPL, song.QuirkPeriodsAreHertz)

	orders, _ := c.ReadBytes(int(h.NumOrders))
	s.Order = song.ReadOrderFromArray(orders, 0xFF, -1)

	for i := range numInstruments {
		var regs [instrumentSize]byte
		c.ReadInto(regs[:])
		smp := song.NewSample()
		smp.Name = song.DecodeName(cursor.TrimString(h.Names[i][:], cursor.NullTerminated), s.Format.Charset)
		smp.Flags |= song.SampleAdlib
		smp.AdlibPatch = &song.AdlibPatch{}
		copy(smp.AdlibPatch[:], regs[:])
		smp.Volume = 256
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
	}

	numPatterns := h.numPatterns()
	if err := s.AllocatePatterns(numPatterns); err != nil {
		return nil, err
	}
	patData := c.ChunkAt(c.Position(), c.Remaining())
	for pat := range numPatterns {
		if err := readPattern(s, l, patData, pat, int(h.PatOffsets[pat])); err != nil {
			return nil, err
		}
	}
	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(headerSize, "%d order entries reference missing patterns", n)
	}
	return s, nil
}

func readPattern(s *song.Song, l *parser.Loader, data *cursor.Cursor, pat, offset int) error {
	if !data.Seek(offset) {
		return parser.Corruptf("pattern %d starts at 0x%X, beyond the end of the file", pat, offset)
	}
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
		case cmd == 0xFF:
			return nil
		case cmd == 0xFE:
			row++
		case cmd == 0xFD:
			if !data.CanRead(1) {
				return parser.Truncated(data, "speed event")
			}
			if speed := data.ReadUint8(); speed > 0 {
				p.WriteEffect(row, numChannels-1, song.CmdSpeed, speed)
			}
		default:
			ch := int(cmd & 0x0F)
			cell := p.Cell(row, ch)
			if cell == nil {
				return parser.Corruptf("pattern %d: event 0x%02X for channel %d", pat, cmd, ch)
			}
			switch cmd & 0xF0 {
			case 0x00:
				b, ok := data.ReadBytes(2)
				if !ok {
					return parser.Truncated(data, "note event")
				}
				cell.Note = song.NoteFromOctave(int(b[0]>>4), int(b[0]&0x0F))
				if b[1] < numInstruments {
					cell.Instrument = b[1] + 1
				}
			case 0x10:
				if !data.CanRead(1) {
					return parser.Truncated(data, "volume event")
				}
				vol := min(int(data.ReadUint8()), 63)
				cell.SetVolume(song.VolVolume, uint8(vol*64/63))
			case 0x20:
				cell.Note = song.NoteKeyOff
			default:
				return parser.Corruptf("pattern %d: unknown event 0x%02X", pat, cmd)
			}
		}
	}
	return nil
}

// Format describes Composer 667 for format dispatch.
var Format = parser.Format{
	Name:       "Composer 667",
	Tag:        "667",
	Extensions: []string{"667"},
	Probe:      Probe,
	Load:       Load,
}
