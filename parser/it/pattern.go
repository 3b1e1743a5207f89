package it

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/modcmd"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	patternHeaderSize = 8
	defaultRows       = 64
)

// Mask bits of packed pattern data.
const (
	maskNote       = 0x01
	maskInstrument = 0x02
	maskVolume     = 0x04
	maskCommand    = 0x08
	maskLastNote   = 0x10
	maskLastInstr  = 0x20
	maskLastVolume = 0x40
	maskLastCmd    = 0x80
)

const (
	noteKeyOff = 255
	noteCut    = 254
	maxNote    = 119
)

type patternHeader struct {
	Length   uint16 // packed bytes
	Rows     uint16
	Reserved [4]byte
}

// unpacker carries the per-channel memory of the packed pattern format across rows.
type unpacker struct {
	mask [maxChannels]uint8
	last [maxChannels]song.Cell
}

// next decodes the next channel entry of the current row. end is true at the end of a
// row; ok is false if the data runs out.
func (u *unpacker) next(c *cursor.Cursor) (ch int, cell song.Cell, end, ok bool) {
	if !c.CanRead(1) {
		return 0, cell, false, false
	}
	b := c.ReadUint8()
	if b == 0 {
		return 0, cell, true, true
	}
	ch = int(b-1) & (maxChannels - 1)
	if b&0x80 != 0 {
		if !c.CanRead(1) {
			return 0, cell, false, false
		}
		u.mask[ch] = c.ReadUint8()
	}
	mask := u.mask[ch]
	last := &u.last[ch]
	if mask&maskNote != 0 {
		if !c.CanRead(1) {
			return 0, cell, false, false
		}
		last.Note = convertNote(c.ReadUint8())
	}
	if mask&maskInstrument != 0 {
		if !c.CanRead(1) {
			return 0, cell, false, false
		}
		last.Instrument = c.ReadUint8()
	}
	if mask&maskVolume != 0 {
		if !c.CanRead(1) {
			return 0, cell, false, false
		}
		last.VolCmd, last.Vol = modcmd.ITVolumeColumn(c.ReadUint8())
	}
	if mask&maskCommand != 0 {
		b, got := c.ReadBytes(2)
		if !got {
			return 0, cell, false, false
		}
		last.Command, last.Param = modcmd.S3M(b[0], b[1], modcmd.ImpulseTracker)
	}
	if mask&(maskNote|maskLastNote) != 0 {
		cell.Note = last.Note
	}
	if mask&(maskInstrument|maskLastInstr) != 0 {
		cell.Instrument = last.Instrument
	}
	if mask&(maskVolume|maskLastVolume) != 0 {
		cell.VolCmd, cell.Vol = last.VolCmd, last.Vol
	}
	if mask&(maskCommand|maskLastCmd) != 0 {
		cell.Command, cell.Param = last.Command, last.Param
	}
	return ch, cell, false, true
}

func convertNote(n uint8) song.Note {
	switch {
	case n <= maxNote:
		return song.NoteMin + song.Note(n)
	case n == noteKeyOff:
		return song.NoteKeyOff
	case n == noteCut:
		return song.NoteCut
	}
	// anything else is a note fade
	return song.NoteFade
}

// patternData returns the pattern's row count and packed data, or ok false if the header
// is missing.
func patternData(c *cursor.Cursor, pos int) (rows int, data *cursor.Cursor, ok bool) {
	hc := c.ChunkAt(pos, patternHeaderSize)
	var ph patternHeader
	if !cursor.ReadStruct(hc, binary.LittleEndian, &ph) {
		return 0, nil, false
	}
	rows = int(ph.Rows)
	if rows == 0 || rows > song.MaxRows {
		rows = defaultRows
	}
	return rows, c.ChunkAt(pos+patternHeaderSize, int(ph.Length)), true
}

// usedChannels returns one more than the highest channel with data in the pattern at pos.
func usedChannels(c *cursor.Cursor, pos int) int {
	if pos == 0 {
		return 0
	}
	rows, data, ok := patternData(c, pos)
	if !ok {
		return 0
	}
	var u unpacker
	n := 0
	for row := 0; row < rows; {
		ch, cell, end, ok := u.next(data)
		switch {
		case !ok:
			return n
		case end:
			row++
		case !cell.IsEmpty():
			n = max(n, ch+1)
		}
	}
	return n
}

// readPattern decodes the pattern at pos. A zero pointer is a 64-row empty pattern.
func readPattern(c *cursor.Cursor, pos int, s *song.Song, pat int, l *parser.Loader) error {
	if pos == 0 {
		_, err := l.PatternGrid(s, pat, defaultRows)
		return err
	}
	rows, data, ok := patternData(c, pos)
	if !ok {
		l.Warnf(int64(pos), "pattern %d header is truncated", pat)
		return nil
	}
	p, err := l.PatternGrid(s, pat, rows)
	if err != nil {
		return err
	}
	var u unpacker
	for row := 0; row < rows; {
		ch, cell, end, ok := u.next(data)
		switch {
		case !ok:
			l.Warnf(data.AbsolutePosition(), "pattern %d is truncated at row %d", pat, row)
			return nil
		case end:
			row++
		case ch < p.Channels():
			*p.Cell(row, ch) = cell
		}
	}
	return nil
}
