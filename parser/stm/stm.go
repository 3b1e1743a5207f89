// Package stm loads Scream Tracker 2 modules and the converters that write the same
// format.
package stm

import (
	"encoding/binary"
	"fmt"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/modcmd"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	numChannels    = 4
	numSamples     = 31
	rowsPerPattern = 64
	maxPatterns    = 64
	fileTypeModule = 2
)

// trackers maps the tracker name field to a display name.
var trackers = map[string]string{
	"!Scream!": "Scream Tracker",
	"BMOD2STM": "BMOD2STM",
	"WUZAMOD!": "Wuzamod",
	"SWavePro": "SoundWave Pro",
}

type fileHeader struct {
	Name         [20]byte
	Tracker      [8]byte
	DOSEOF       uint8
	FileType     uint8
	VerMajor     uint8
	VerMinor     uint8
	InitTempo    uint8 // speed in the high nibble
	NumPatterns  uint8
	GlobalVolume uint8
	Reserved     [13]byte
}

type sampleHeader struct {
	Filename  [12]byte
	Zero      uint8
	Disk      uint8
	Offset    uint16 // in 16-byte units
	Length    uint16
	LoopStart uint16
	LoopEnd   uint16
	Volume    uint8
	Reserved  uint8
	C2Speed   uint16
	Reserved2 [4]byte
	Segment   uint16
}

// HeaderSize is the size of the file header and the sample headers.
const HeaderSize = 48 + numSamples*32

func (h *fileHeader) isValid() bool {
	if _, ok := trackers[string(h.Tracker[:])]; !ok {
		return false
	}
	return (h.DOSEOF == 0x1A || h.DOSEOF == 0x02) && h.FileType == fileTypeModule &&
		h.VerMajor == 2 && h.NumPatterns <= maxPatterns && h.GlobalVolume <= 64
}

func (h *fileHeader) numOrders() int {
	if h.VerMinor == 0 {
		return 64
	}
	return 128
}

func readHeader(c *cursor.Cursor) (*fileHeader, []sampleHeader, parser.ProbeResult) {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, nil, parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return nil, nil, parser.ProbeFailure
	}
	samples := make([]sampleHeader, numSamples)
	if !cursor.ReadArray(c, binary.LittleEndian, samples) {
		return nil, nil, parser.ProbeWantMoreData
	}
	for _, smp := range samples {
		if smp.Volume > 64 {
			return nil, nil, parser.ProbeFailure
		}
	}
	return &h, samples, parser.ProbeSuccess
}

// Probe checks for a Scream Tracker 2 header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	h, _, res := readHeader(c)
	if res != parser.ProbeSuccess {
		return res
	}
	return parser.ProbeAdditionalSize(c, fileSize, int64(h.numOrders()))
}

// Load reads a Scream Tracker 2 module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	h, samples, res := readHeader(c)
	switch res {
	case parser.ProbeWantMoreData:
		return nil, parser.Truncated(c, "header")
	case parser.ProbeFailure:
		return nil, parser.WrongFormatf("invalid Scream Tracker 2 header")
	}

	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	tracker := trackers[string(h.Tracker[:])]
	if tracker == "Scream Tracker" {
		tracker = fmt.Sprintf("Scream Tracker %d.%02d", h.VerMajor, h.VerMinor)
	}
	s.Format = song.FormatInfo{Name: "Scream Tracker 2", Type: "stm", Tracker: tracker, Charset: song.CharsetCP437}
	s.Title = song.DecodeName(cursor.TrimString(h.Name[:], cursor.NullTerminated), s.Format.Charset)

	orders, ok := c.ReadBytes(h.numOrders())
	if !ok {
		return nil, parser.Truncated(c, "order list")
	}
	for i, o := range orders {
		// both 99 and 255 end the song
		if o == 99 {
			orders[i] = 0xFF
		}
	}
	s.Order = song.ReadOrderFromArray(orders, 0xFF, -1).TrimStops()
	if speed := int(h.InitTempo >> 4); speed > 0 {
		s.InitialSpeed = speed
	}
	s.InitialGlobalVolume = int(h.GlobalVolume) * 4
	s.Quirks.Set(song.QuirkST2Tempo, song.QuirkST3Compatible)

	for _, sh := range samples {
		smp := song.NewSample()
		smp.Filename = song.DecodeName(cursor.TrimString(sh.Filename[:], cursor.NullTerminated), s.Format.Charset)
		smp.Name = smp.Filename
		smp.Volume = int(sh.Volume) * 4
		if sh.C2Speed != 0 {
			smp.C5Speed = uint32(sh.C2Speed)
		}
		if sh.Offset != 0 && sh.Length >= 2 {
			smp.Length = int(sh.Length)
		}
		smp.SetLoop(int(sh.LoopStart), int(sh.LoopEnd), sh.LoopEnd != 0xFFFF, false)
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
		if err := readPattern(c, p); err != nil {
			return nil, err
		}
	}

	if l.WantSamples() {
		for i, sh := range samples {
			smp := s.Samples[i]
			if smp.Length == 0 {
				continue
			}
			pos := int(sh.Offset) << 4
			truncated, err := sampleio.ReadAt(c, pos, smp, sampleio.Signed8)
			if err != nil {
				return nil, err
			}
			if truncated {
				l.Warnf(int64(pos), "sample %d is truncated to %d bytes", i+1, smp.Length)
			}
		}
	}
	s.SanitizeOrders()
	return s, nil
}

// Special values of the first cell byte.
const (
	cellEmpty    = 0xFB
	cellContinue = 0xFC
	cellCut      = 0xFD
	noteCut      = 0xFE
)

// readPattern decodes one pattern. Cells are four bytes, except for the one-byte
// special cells, so the data has to be walked even if the patterns are not wanted.
func readPattern(c *cursor.Cursor, p song.Grid) error {
	for row := range rowsPerPattern {
		for ch := range numChannels {
			if !c.CanRead(1) {
				return parser.Truncated(c, "pattern data")
			}
			cell := p.Cell(row, ch)
			switch b := c.ReadUint8(); b {
			case cellEmpty, cellContinue:
			case cellCut:
				cell.Note = song.NoteCut
			default:
				rest, ok := c.ReadBytes(3)
				if !ok {
					return parser.Truncated(c, "pattern cell")
				}
				readCell([4]byte{b, rest[0], rest[1], rest[2]}, cell)
			}
		}
	}
	return nil
}

func readCell(b [4]byte, cell *song.Cell) {
	switch {
	case b[0] == noteCut:
		cell.Note = song.NoteCut
	case b[0] < 0x60:
		cell.Note = song.NoteFromOctave(int(b[0]>>4)+3, int(b[0]&0x0F))
	}
	cell.Instrument = b[1] >> 3
	if vol := b[1]&0x07 | (b[2]&0xF0)>>1; vol <= 64 {
		cell.SetVolume(song.VolVolume, vol)
	}
	cmd, param := b[2]&0x0F, b[3]
	switch {
	case cmd == 1:
		// the speed lives in the high nibble
		if param>>4 != 0 {
			cell.SetEffect(song.CmdSpeed, param>>4)
		}
	case cmd <= 10:
		cell.SetEffect(modcmd.S3M(cmd, param, modcmd.ScreamTracker))
	}
}

// Format describes Scream Tracker 2 modules for format dispatch.
var Format = parser.Format{
	Name:       "Scream Tracker 2",
	Tag:        "stm",
	Extensions: []string{"stm"},
	Probe:      Probe,
	Load:       Load,
}
