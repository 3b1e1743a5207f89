// Package amiga holds what the Amiga MOD family shares: the ProTracker period table,
// the 30-byte sample header and the name sanity checks used to detect headerless formats.
package amiga

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser/internal/modcmd"
	"github.com/QEStudios/TrackerLoader/song"
)

// Periods for finetune 0, five octaves from C-3 (ProTracker's extended "C-0") upwards.
var periodTable = [5 * 12]uint16{
	1712, 1616, 1524, 1440, 1356, 1280, 1208, 1140, 1076, 1016, 960, 907,
	856, 808, 762, 720, 678, 640, 604, 570, 538, 508, 480, 453,
	428, 404, 381, 360, 339, 320, 302, 285, 269, 254, 240, 226,
	214, 202, 190, 180, 170, 160, 151, 143, 135, 127, 120, 113,
	107, 101, 95, 90, 85, 80, 75, 71, 67, 63, 60, 56,
}

// firstPeriodNote is the note of periodTable[0]; period 428 is middle C.
const firstPeriodNote = song.NoteMiddleC - 24

// Standard Amiga period limits for three-octave ProTracker modules.
const (
	MinPeriod = 113
	MaxPeriod = 856
)

// PeriodToNote returns the note whose finetune-0 period is closest to period.
// A zero period is no note.
func PeriodToNote(period uint16) song.Note {
	if period == 0 {
		return song.NoteNone
	}
	best, bestDiff := 0, -1
	for i, p := range periodTable {
		diff := int(p) - int(period)
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return firstPeriodNote + song.Note(best)
}

// NoteToPeriod returns the finetune-0 period of a note, or 0 if it is outside the table.
func NoteToPeriod(n song.Note) uint16 {
	i := int(n) - int(firstPeriodNote)
	if i < 0 || i >= len(periodTable) {
		return 0
	}
	return periodTable[i]
}

// IsTablePeriod reports whether period is close to an entry in the period table,
// allowing for finetuned periods.
func IsTablePeriod(period uint16) bool {
	return period >= 50 && period <= 1800
}

// SampleHeader is the 30-byte sample header shared by the MOD family. Lengths are in
// 16-bit words.
type SampleHeader struct {
	Name       [22]byte
	Length     uint16
	FineTune   uint8
	Volume     uint8
	LoopStart  uint16
	LoopLength uint16
}

// SampleHeaderSize is the size of SampleHeader in the file.
const SampleHeaderSize = 30

// ReadSampleHeader reads one big-endian sample header.
func ReadSampleHeader(c *cursor.Cursor, h *SampleHeader) bool {
	return cursor.ReadStruct(c, binary.BigEndian, h)
}

// InvalidBytes counts the problems in a sample header that real trackers never write:
// control characters in the name, a volume above 64 and finetune bits above the nibble.
func (h *SampleHeader) InvalidBytes() int {
	n := CountInvalidChars(h.Name[:])
	if h.Volume > 64 {
		n++
	}
	if h.FineTune > 15 {
		n++
	}
	return n
}

// CountInvalidChars counts bytes that are neither printable nor padding. Text after the
// first NUL is ignored, since trackers leave garbage behind the terminator.
func CountInvalidChars(name []byte) int {
	n := 0
	for _, b := range name {
		if b == 0 {
			break
		}
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			n++
		}
	}
	return n
}

// ConvertSample fills in a sample from the header. Loops of at most one word are the
// format's way of saying "no loop".
func (h *SampleHeader) ConvertSample(cs song.Charset) *song.Sample {
	smp := song.NewSample()
	smp.Name = song.DecodeName(cursor.TrimString(h.Name[:], cursor.NullTerminated), cs)
	smp.Length = int(h.Length) * 2
	smp.Volume = int(min(h.Volume, 64)) * 4
	finetune := int(h.FineTune & 0x0F)
	if finetune > 7 {
		finetune -= 16
	}
	smp.FineTune = int8(finetune * 16)
	smp.C5Speed = song.ModFinetuneToFrequency(finetune)

	loopStart := int(h.LoopStart) * 2
	loopEnd := loopStart + int(h.LoopLength)*2
	smp.SetLoop(loopStart, loopEnd, h.LoopLength > 1, false)
	smp.SanitizeLoops()
	return smp
}

// CellSize is the size of one packed ProTracker pattern cell.
const CellSize = 4

// ReadCell decodes a packed ProTracker cell: 4 bits of sample number, 12 bits of period,
// the low half of the sample number, the command nibble and its parameter.
func ReadCell(b []byte, cell *song.Cell) {
	cell.Instrument = b[0]&0xF0 | b[2]>>4
	cell.Note = PeriodToNote(uint16(b[0]&0x0F)<<8 | uint16(b[1]))
	cell.SetEffect(modcmd.MOD(b[2]&0x0F, b[3]))
}

// ReadPattern fills rows of p from packed ProTracker cells, starting at channel firstChannel
// and covering channels channels per row.
func ReadPattern(c *cursor.Cursor, p song.Grid, firstChannel, channels int) bool {
	rows := p.Rows()
	data, ok := c.ReadBytes(rows * channels * CellSize)
	if !ok {
		return false
	}
	for row := range rows {
		for ch := range channels {
			off := (row*channels + ch) * CellSize
			if cell := p.Cell(row, firstChannel+ch); cell != nil {
				ReadCell(data[off:off+CellSize], cell)
			}
		}
	}
	return true
}
