// Package ptm loads PolyTracker modules.
package ptm

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/modcmd"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	maxChannels    = 32
	maxPatterns    = 128
	maxSamples     = 255
	rowsPerPattern = 64
	noteCut        = 254
)

type fileHeader struct {
	Name        [28]byte
	DOSEOF      uint8
	VersionLo   uint8
	VersionHi   uint8
	Reserved1   uint8
	NumOrders   uint16
	NumSamples  uint16
	NumPatterns uint16
	NumChannels uint16
	Flags       uint16
	Reserved2   [2]byte
	Magic       [4]byte // "PTMF"
	Reserved3   [16]byte
	ChannelPan  [maxChannels]uint8
	Orders      [256]uint8
	PatOffsets  [maxPatterns]uint16 // in 16-byte units
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 608

// Sample flags.
const (
	smpTypeMask = 0x03
	smpPCM      = 0x01
	smpLoop     = 0x04
	smpPingPong = 0x08
	smp16Bit    = 0x10
)

type sampleHeader struct {
	Flags      uint8
	Filename   [12]byte
	Volume     uint8
	C4Speed    uint16
	Segment    [2]byte
	DataOffset uint32
	Length     uint32 // bytes
	LoopStart  uint32
	LoopEnd    uint32
	GUSData    [14]byte
	Name       [28]byte
	Magic      [4]byte // "PTMS"
}

// SampleHeaderSize is the size of sampleHeader in the file.
const SampleHeaderSize = 80

func (h *fileHeader) isValid() bool {
	return string(h.Magic[:]) == "PTMF" && h.DOSEOF == 0x1A && h.VersionHi <= 2 &&
		h.NumChannels >= 1 && h.NumChannels <= maxChannels &&
		h.NumOrders <= 256 && h.NumSamples >= 1 && h.NumSamples <= maxSamples &&
		h.NumPatterns >= 1 && h.NumPatterns <= maxPatterns
}

// Probe checks for a PolyTracker header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		if c.CanRead(48) && !c.HasMagicAt(44, "PTMF") {
			return parser.ProbeFailure
		}
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, int64(h.NumSamples)*SampleHeaderSize)
}

// Load reads a PolyTracker module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid PolyTracker header")
	}

	s, err := song.New(int(h.NumChannels))
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{
		Name:    "PolyTracker",
		Type:    "ptm",
		Tracker: fmt.Sprintf("PolyTracker %d.%02X", h.VersionHi, h.VersionLo),
		Charset: song.CharsetCP437,
	}
	s.Title = song.DecodeName(cursor.TrimString(h.Name[:], cursor.NullTerminated), s.Format.Charset)

	for i := range s.Channels {
		s.Channels[i].Panning = int(h.ChannelPan[i]&0x0F) * 256 / 15
	}
	s.Order = song.ReadOrderFromArray(h.Orders[:h.NumOrders], 0xFF, -1)

	headers := make([]sampleHeader, h.NumSamples)
	if !cursor.ReadArray(c, binary.LittleEndian, headers) {
		return nil, parser.Truncated(c, "sample headers")
	}
	for i, sh := range headers {
		smp := convertSample(&sh, s.Format.Charset)
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
		if !l.WantSamples() || smp.Length == 0 {
			continue
		}
		truncated, err := readSampleData(c.ChunkAt(int(sh.DataOffset), int(sh.Length)), smp)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d", i+1)
		}
		if truncated {
			l.Warnf(int64(sh.DataOffset), "sample %d is truncated to %d frames", i+1, smp.Length)
		}
	}

	if err := s.AllocatePatterns(int(h.NumPatterns)); err != nil {
		return nil, err
	}
	for pat, ptr := range h.PatOffsets[:h.NumPatterns] {
		if ptr == 0 {
			continue
		}
		if err := readPattern(c, int(ptr)<<4, s, pat, l); err != nil {
			return nil, err
		}
	}
	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(HeaderSize, "%d order entries reference missing patterns", n)
	}
	return s, nil
}

func convertSample(sh *sampleHeader, cs song.Charset) *song.Sample {
	smp := song.NewSample()
	smp.Name = song.DecodeName(cursor.TrimString(sh.Name[:], cursor.NullTerminated), cs)
	smp.Filename = song.DecodeName(cursor.TrimString(sh.Filename[:], cursor.NullTerminated), cs)
	smp.Volume = int(min(sh.Volume, 64)) * 4
	// the stored rate is for C-4
	smp.C5Speed = uint32(sh.C4Speed) * 2
	if smp.C5Speed == 0 {
		smp.C5Speed = 8363
	}
	if sh.Flags&smpTypeMask != smpPCM {
		return smp
	}
	length, start, end := int(sh.Length), int(sh.LoopStart), int(sh.LoopEnd)
	if sh.Flags&smp16Bit != 0 {
		smp.Flags |= song.Sample16Bit
		length, start, end = length/2, start/2, end/2
	}
	smp.Length = min(length, song.MaxSampleLength)
	smp.SetLoop(start, end, sh.Flags&smpLoop != 0 && end > start, sh.Flags&smpPingPong != 0)
	smp.SanitizeLoops()
	return smp
}

// readSampleData decodes the delta-coded data. 16-bit samples are delta coded byte by
// byte as well, and the resulting bytes are then paired up.
func readSampleData(c *cursor.Cursor, smp *song.Sample) (truncated bool, err error) {
	if !smp.Is16Bit() {
		return sampleio.Read(c, smp, sampleio.Delta8)
	}
	raw := c.Bytes()
	var acc uint8
	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		acc += raw[i*2]
		lo := acc
		acc += raw[i*2+1]
		pcm[i] = int16(uint16(lo) | uint16(acc)<<8)
	}
	return sampleio.SetPCM16(smp, pcm), nil
}

func readPattern(c *cursor.Cursor, pos int, s *song.Song, pat int, l *parser.Loader) error {
	p, err := l.PatternGrid(s, pat, rowsPerPattern)
	if err != nil {
		return err
	}
	data := c.ChunkAt(pos, c.Len()-pos)
	for row := 0; row < rowsPerPattern; {
		if !data.CanRead(1) {
			l.Warnf(data.AbsolutePosition(), "pattern %d is truncated at row %d", pat, row)
			return nil
		}
		what := data.ReadUint8()
		if what == 0 {
			row++
			continue
		}
		var cell song.Cell
		if what&0x20 != 0 {
			b, ok := data.ReadBytes(2)
			if !ok {
				l.Warnf(data.AbsolutePosition(), "pattern %d is truncated at row %d", pat, row)
				return nil
			}
			switch n := b[0]; {
			case n == noteCut:
				cell.Note = song.NoteCut
			case n > 0 && n <= 120:
				cell.Note = song.NoteMin + song.Note(n-1)
			}
			cell.Instrument = b[1]
		}
		if what&0x40 != 0 {
			b, ok := data.ReadBytes(2)
			if !ok {
				l.Warnf(data.AbsolutePosition(), "pattern %d is truncated at row %d", pat, row)
				return nil
			}
			cell.SetEffect(convertEffect(b[0], b[1]))
		}
		if what&0x80 != 0 {
			if !data.CanRead(1) {
				l.Warnf(data.AbsolutePosition(), "pattern %d is truncated at row %d", pat, row)
				return nil
			}
			cell.SetVolume(song.VolVolume, min(data.ReadUint8(), 64))
		}
		if ch := int(what & 0x1F); ch < p.Channels() {
			*p.Cell(row, ch) = cell
		}
	}
	return nil
}

func convertEffect(cmd, param uint8) (song.Command, uint8) {
	if cmd < 0x10 {
		return modcmd.MOD(cmd, param)
	}
	switch cmd {
	case 0x10:
		return song.CmdGlobalVolume, min(param, 64)
	case 0x11:
		return song.CmdRetrig, param
	case 0x12:
		return song.CmdFineVibrato, param
	case 0x13:
		return song.CmdNoteSlideDown, param
	case 0x14:
		return song.CmdNoteSlideUp, param
	case 0x15:
		return song.CmdNoteSlideDownRetrig, param
	case 0x16:
		return song.CmdNoteSlideUpRetrig, param
	case 0x17:
		return song.CmdReverseOffset, param
	}
	return song.CmdNone, 0
}

// Format describes PolyTracker modules for format dispatch.
var Format = parser.Format{
	Name:       "PolyTracker",
	Tag:        "ptm",
	Extensions: []string{"ptm"},
	Probe:      Probe,
	Load:       Load,
}
