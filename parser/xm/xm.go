// Package xm loads FastTracker 2 extended modules, including the files written by the
// trackers that adopted the format (OpenMPT, MilkyTracker, Skale and others).
package xm

import (
	"encoding/binary"
	"strings"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/modcmd"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	magic          = "Extended Module: "
	maxOrders      = 256
	maxPatterns    = 256
	maxInstruments = 255
	maxRows        = 256
	minVersion     = 0x0104
	flagLinear     = 0x0001
	orderStop      = 0xFF
	orderSkip      = 0xFE
	noteKeyOff     = 97
	headerBase     = 60 // HeaderLength counts from here
)

type fileHeader struct {
	Magic          [17]byte
	Name           [20]byte
	EOF            uint8
	Tracker        [20]byte
	Version        uint16
	HeaderLength   uint32
	NumOrders      uint16
	Restart        uint16
	NumChannels    uint16
	NumPatterns    uint16
	NumInstruments uint16
	Flags          uint16
	Speed          uint16
	Tempo          uint16
	Orders         [maxOrders]uint8
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 336

func (h *fileHeader) isValid() bool {
	return strings.EqualFold(string(h.Magic[:]), magic) &&
		h.NumChannels >= 1 && h.NumChannels <= song.MaxChannels &&
		h.NumOrders <= maxOrders && h.NumPatterns <= maxPatterns &&
		h.NumInstruments <= maxInstruments && h.HeaderLength >= 20
}

// patternStart returns the offset of the first pattern header.
func (h *fileHeader) patternStart() int64 {
	return headerBase + int64(h.HeaderLength)
}

// Probe checks for an XM header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	if !c.CanRead(len(magic)) {
		if !strings.EqualFold(string(c.PeekBytes(c.Remaining())), magic[:c.Remaining()]) {
			return parser.ProbeFailure
		}
		return parser.ProbeWantMoreData
	}
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		if !strings.EqualFold(string(c.PeekBytes(len(magic))), magic) {
			return parser.ProbeFailure
		}
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, max(0, h.patternStart()-HeaderSize))
}

func trackerName(h *fileHeader) string {
	name := strings.TrimSpace(string(cursor.TrimString(h.Tracker[:], cursor.NullTerminated)))
	switch {
	case name == "":
		return "FastTracker 2"
	case strings.HasPrefix(name, "FastTracker v2.00") && h.Version == minVersion:
		// also written by many other trackers that copied the string
		return "FastTracker 2 (or compatible)"
	}
	return song.DecodeName([]byte(name), song.CharsetCP437)
}

// Load reads an XM module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid XM header")
	}
	if h.Version < minVersion {
		return nil, parser.Corruptf("XM version %X.%02X is not supported", h.Version>>8, h.Version&0xFF)
	}

	s, err := song.New(int(h.NumChannels))
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{Name: "FastTracker 2", Type: "xm", Tracker: trackerName(&h), Charset: song.CharsetCP437}
	s.Title = song.DecodeName(cursor.TrimString(h.Name[:], cursor.NullTerminated), s.Format.Charset)
	l.Logf("xm: %s, %d channels, %d instruments", s.Format.Tracker, h.NumChannels, h.NumInstruments)

	s.Order = song.ReadOrderFromArray(h.Orders[:h.NumOrders], orderStop, orderSkip)
	s.RestartPosition = int(h.Restart)
	if h.Speed > 0 && h.Speed < 256 {
		s.InitialSpeed = int(h.Speed)
	}
	if h.Tempo >= 32 && h.Tempo < 1000 {
		s.InitialTempo = int(h.Tempo)
	}
	s.Quirks.Set(song.QuirkFT2Compatible)
	if h.Flags&flagLinear != 0 {
		s.Quirks.Set(song.QuirkLinearSlides)
	}

	if !c.Seek(int(h.patternStart())) {
		return nil, parser.Truncated(c, "pattern data")
	}
	if err := s.AllocatePatterns(int(h.NumPatterns)); err != nil {
		return nil, err
	}
	for pat := range int(h.NumPatterns) {
		if err := readPattern(c, s, pat, l); err != nil {
			return nil, err
		}
	}

	for ins := range int(h.NumInstruments) {
		if c.EOF() {
			l.Warnf(c.AbsolutePosition(), "file ends before instrument %d", ins+1)
			break
		}
		if err := readInstrument(c, s, ins, l); err != nil {
			return nil, err
		}
	}

	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(headerBase+20, "%d order entries reference missing patterns", n)
	}
	return s, nil
}

type patternHeader struct {
	HeaderLength uint32
	Packing      uint8
	Rows         uint16
	PackedSize   uint16
}

func readPattern(c *cursor.Cursor, s *song.Song, pat int, l *parser.Loader) error {
	start := c.Position()
	var ph patternHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &ph) {
		return parser.Truncated(c, "pattern header")
	}
	if ph.HeaderLength < 9 {
		return parser.Corruptf("pattern %d: header length %d", pat, ph.HeaderLength)
	}
	if !c.Seek(start + int(ph.HeaderLength)) {
		return parser.Truncated(c, "pattern header")
	}
	rows := int(ph.Rows)
	if rows == 0 || rows > maxRows {
		rows = 64
	}
	data := c.ReadChunk(int(ph.PackedSize))
	if data.Len() < int(ph.PackedSize) {
		return parser.Truncated(c, "pattern data")
	}
	p, err := l.PatternGrid(s, pat, rows)
	if err != nil {
		return err
	}
	if ph.PackedSize == 0 {
		return nil
	}

	for row := range rows {
		for ch := range s.NumChannels() {
			if data.EOF() {
				l.Warnf(data.AbsolutePosition(), "pattern %d: data ends at row %d", pat, row)
				return nil
			}
			if !readCell(data, p.Cell(row, ch)) {
				l.Warnf(data.AbsolutePosition(), "pattern %d: cell at row %d is truncated", pat, row)
				return nil
			}
		}
	}
	if !data.EOF() {
		l.Warnf(data.AbsolutePosition(), "pattern %d has %d bytes of extra data", pat, data.Remaining())
	}
	return nil
}

// readCell decodes one packed cell. If the first byte has its high bit set, its low five
// bits say which of the following fields are present; otherwise it is the note and all
// fields follow.
func readCell(c *cursor.Cursor, cell *song.Cell) bool {
	info := c.ReadUint8()
	var fields [5]uint8
	if info&0x80 == 0 {
		fields[0] = info
		rest, ok := c.ReadBytes(4)
		if !ok {
			return false
		}
		copy(fields[1:], rest)
	} else {
		for i := range fields {
			if info&(1<<i) == 0 {
				continue
			}
			if !c.CanRead(1) {
				return false
			}
			fields[i] = c.ReadUint8()
		}
	}
	note, instr, vol, cmd, param := fields[0], fields[1], fields[2], fields[3], fields[4]
	switch {
	case note == noteKeyOff:
		cell.Note = song.NoteKeyOff
	case note > 0 && note < noteKeyOff:
		cell.Note = song.Note(note) + 12
	}
	cell.Instrument = instr
	cell.SetVolume(modcmd.XMVolumeColumn(vol))
	if cmd != 0 || param != 0 {
		cell.SetEffect(modcmd.MOD(cmd, param))
	}
	return true
}

// Format describes XM modules for format dispatch.
var Format = parser.Format{
	Name:       "FastTracker 2",
	Tag:        "xm",
	Extensions: []string{"xm"},
	Probe:      Probe,
	Load:       Load,
}
