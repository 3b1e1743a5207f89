// Package sfx loads SoundFX modules: version 1 with 15 samples and the "SONG" tag, and
// version 2 with 31 samples and the "SO31" tag.
package sfx

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/amiga"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	numChannels    = 4
	rowsPerPattern = 64
	patternSize    = rowsPerPattern * numChannels * amiga.CellSize
	maxOrders      = 128
	maxPatterns    = 128
)

// sampleHeader differs from the ProTracker one in its 16-bit volume and byte loop start.
type sampleHeader struct {
	Name       [22]byte
	Length     uint16 // words, superseded by the size table
	Volume     uint16
	LoopStart  uint16 // bytes
	LoopLength uint16 // words
}

type fileHeader struct {
	Tempo    uint16 // CIA timer value
	Reserved [14]byte
}

type orderHeader struct {
	NumOrders uint8
	Restart   uint8
	Orders    [maxOrders]uint8
}

// layout is the part of the file structure that depends on the version.
type layout struct {
	numSamples int
	version    string
}

// detect finds the tag. It needs up to 128 bytes to decide.
func detect(c *cursor.Cursor) (layout, parser.ProbeResult) {
	if !c.CanRead(64) {
		return layout{}, parser.ProbeWantMoreData
	}
	if c.HasMagicAt(60, "SONG") {
		return layout{numSamples: 15, version: "SoundFX 1.3"}, parser.ProbeSuccess
	}
	if !c.CanRead(128) {
		return layout{}, parser.ProbeWantMoreData
	}
	if c.HasMagicAt(124, "SO31") {
		return layout{numSamples: 31, version: "SoundFX 2.0"}, parser.ProbeSuccess
	}
	return layout{}, parser.ProbeFailure
}

type header struct {
	sizes   []uint32
	samples []sampleHeader
	file    fileHeader
	orders  orderHeader
}

// readHeader reads everything up to the pattern data. result is ProbeWantMoreData if
// the buffer ends early and ProbeFailure if the values are implausible.
func readHeader(c *cursor.Cursor, lay layout) (*header, parser.ProbeResult) {
	h := &header{
		sizes:   make([]uint32, lay.numSamples),
		samples: make([]sampleHeader, lay.numSamples),
	}
	ok := cursor.ReadArray(c, binary.BigEndian, h.sizes) &&
		c.Skip(4) &&
		cursor.ReadStruct(c, binary.BigEndian, &h.file) &&
		cursor.ReadArray(c, binary.BigEndian, h.samples) &&
		cursor.ReadStruct(c, binary.BigEndian, &h.orders)
	if !ok {
		return nil, parser.ProbeWantMoreData
	}
	if h.orders.NumOrders == 0 || h.orders.NumOrders > maxOrders {
		return nil, parser.ProbeFailure
	}
	for i, smp := range h.samples {
		if smp.Volume > 64 || h.sizes[i] > song.MaxSampleLength {
			return nil, parser.ProbeFailure
		}
	}
	for _, o := range h.orders.Orders[:h.orders.NumOrders] {
		if o >= maxPatterns {
			return nil, parser.ProbeFailure
		}
	}
	return h, parser.ProbeSuccess
}

func (h *header) numPatterns() int {
	n := 0
	for _, o := range h.orders.Orders[:h.orders.NumOrders] {
		n = max(n, int(o)+1)
	}
	return n
}

// Probe checks for a SoundFX header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	lay, res := detect(c)
	if res != parser.ProbeSuccess {
		return res
	}
	h, res := readHeader(c, lay)
	if res != parser.ProbeSuccess {
		return res
	}
	return parser.ProbeAdditionalSize(c, fileSize, int64(h.numPatterns())*patternSize)
}

// Load reads a SoundFX module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	lay, res := detect(c)
	if res != parser.ProbeSuccess {
		return nil, parser.WrongFormatf("missing SoundFX tag")
	}
	h, res := readHeader(c, lay)
	switch res {
	case parser.ProbeWantMoreData:
		return nil, parser.Truncated(c, "header")
	case parser.ProbeFailure:
		return nil, parser.WrongFormatf("implausible SoundFX header")
	}
	numPatterns := h.numPatterns()
	if !c.CanRead(numPatterns * patternSize) {
		return nil, parser.Truncated(c, "pattern data")
	}

	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{Name: "SoundFX", Type: "sfx", Tracker: lay.version, Charset: song.CharsetISO8859_1}

	if h.file.Tempo > 0 {
		s.InitialTempo = max(32, min(255, 1773447/int(h.file.Tempo)))
	}
	s.Order = song.ReadOrderFromArray(h.orders.Orders[:h.orders.NumOrders], -1, -1)
	s.SetAmigaPanning(128)
	s.Quirks.Set(song.QuirkAmigaLimits, song.QuirkVBlankTiming)

	for i, hdr := range h.samples {
		smp := song.NewSample()
		smp.Name = song.DecodeName(cursor.TrimString(hdr.Name[:], cursor.NullTerminated), s.Format.Charset)
		smp.Length = int(h.sizes[i])
		smp.Volume = int(hdr.Volume) * 4
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
		data, ok := c.ReadBytes(patternSize)
		if !ok {
			return nil, parser.Truncated(c, "pattern data")
		}
		for row := range rowsPerPattern {
			for ch := range numChannels {
				off := (row*numChannels + ch) * amiga.CellSize
				readCell(data[off:off+amiga.CellSize], p.Cell(row, ch), lay.numSamples == 31)
			}
		}
	}

	if l.WantSamples() {
		for i, smp := range s.Samples {
			if smp.Length == 0 {
				continue
			}
			offset := c.AbsolutePosition()
			truncated, err := sampleio.Read(c, smp, sampleio.Signed8)
			if err != nil {
				return nil, err
			}
			if truncated {
				l.Warnf(offset, "sample %d is truncated to %d bytes", i+1, smp.Length)
			}
		}
	}
	return s, nil
}

// Special period values.
const (
	periodPic = 0xFFFD // ignored
	periodStp = 0xFFFE // stop the note
)

func readCell(b []byte, cell *song.Cell, highSamples bool) {
	period := binary.BigEndian.Uint16(b)
	switch period {
	case periodStp:
		cell.Note = song.NoteCut
		return
	case periodPic:
		return
	}
	cell.Instrument = b[2] >> 4
	if highSamples {
		cell.Instrument |= b[0] & 0x10
	}
	cell.Note = amiga.PeriodToNote(period & 0x0FFF)

	param := b[3]
	switch b[2] & 0x0F {
	case 1:
		cell.SetEffect(song.CmdArpeggio, param)
	case 2:
		if param&0x0F != 0 {
			cell.SetEffect(song.CmdPortamentoUp, param&0x0F)
		} else if param>>4 != 0 {
			cell.SetEffect(song.CmdPortamentoDown, param>>4)
		}
	case 3:
		cell.SetEffect(song.CmdModCmdEx, 0x00) // LED filter on
	case 4:
		cell.SetEffect(song.CmdModCmdEx, 0x01)
	case 5:
		cell.SetEffect(song.CmdVolumeSlide, min(param, 15)<<4|0x0F)
	case 6:
		cell.SetEffect(song.CmdVolumeSlide, 0xF0|min(param, 15))
	case 7:
		cell.SetEffect(song.CmdPortamentoUp, param)
	case 8:
		cell.SetEffect(song.CmdPortamentoDown, param)
	}
}

// Format describes SoundFX modules for format dispatch.
var Format = parser.Format{
	Name:       "SoundFX",
	Tag:        "sfx",
	Extensions: []string{"sfx", "sfx2"},
	Probe:      Probe,
	Load:       Load,
}
