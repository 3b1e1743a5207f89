// Package far loads Farandole Composer modules.
package far

import (
	"encoding/binary"
	"fmt"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	magic        = "FAR\xFE"
	eofMarker    = "\r\n\x1A"
	numChannels  = 16
	numPatterns  = 256
	maxSamples   = 64
	messageWidth = 132
	cellSize     = 4
	maxNote      = 72
	defaultTempo = 80
	farC5Speed   = 16726
)

type fileHeader struct {
	Magic         [4]byte
	Title         [40]byte
	EOF           [3]byte
	HeaderLength  uint16 // offset of the pattern data
	Version       uint8
	OnOff         [numChannels]uint8
	EditingState  [9]byte
	DefaultSpeed  uint8
	ChannelPan    [numChannels]uint8
	PatternState  [4]byte
	MessageLength uint16
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 98

type orderHeader struct {
	Orders      [256]uint8
	NumPatterns uint8 // not reliable
	NumOrders   uint8
	Restart     uint8
	PatternSize [numPatterns]uint16
}

const orderHeaderSize = 771

// Sample flags.
const (
	smp16Bit = 0x01
	smpLoop  = 0x08
)

type sampleHeader struct {
	Name      [32]byte
	Length    uint32 // bytes
	Finetune  uint8
	Volume    uint8 // 0..15
	LoopStart uint32
	LoopEnd   uint32
	Type      uint8
	Loop      uint8
}

// SampleHeaderSize is the size of sampleHeader in the file.
const SampleHeaderSize = 48

func (h *fileHeader) isValid() bool {
	return string(h.Magic[:]) == magic && string(h.EOF[:]) == eofMarker &&
		int(h.HeaderLength) >= HeaderSize+int(h.MessageLength)+orderHeaderSize
}

// Probe checks for a Farandole header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		if c.CanRead(len(magic)) && !c.HasMagicAt(0, magic) {
			return parser.ProbeFailure
		}
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, int64(h.HeaderLength)-HeaderSize)
}

// Load reads a Farandole module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid Farandole header")
	}

	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{
		Name:    "Farandole Composer",
		Type:    "far",
		Tracker: fmt.Sprintf("Farandole Composer %d.%d", h.Version>>4, h.Version&0x0F),
		Charset: song.CharsetCP437,
	}
	s.Title = song.DecodeName(cursor.TrimString(h.Title[:], cursor.SpacePaddedNull), s.Format.Charset)

	for i := range s.Channels {
		s.Channels[i].Mute = h.OnOff[i] == 0
		s.Channels[i].Panning = int(h.ChannelPan[i]&0x0F)<<4 + 8
	}
	if h.DefaultSpeed > 0 {
		s.InitialSpeed = int(h.DefaultSpeed)
	}
	s.InitialTempo = defaultTempo
	s.Quirks.Set(song.QuirkPeriodsAreHertz)

	message, ok := c.ReadBytes(int(h.MessageLength))
	if !ok {
		return nil, parser.Truncated(c, "song message")
	}
	s.Message = song.DecodeMessage(message, s.Format.Charset, messageWidth)

	var oh orderHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &oh) {
		return nil, parser.Truncated(c, "order list")
	}
	s.Order = song.ReadOrderFromArray(oh.Orders[:oh.NumOrders], 0xFF, -1)
	s.RestartPosition = int(oh.Restart)

	if !c.Seek(int(h.HeaderLength)) {
		return nil, parser.Truncated(c, "pattern data")
	}
	// the stored pattern count is wrong in many files; the size table is authoritative
	last := -1
	for pat, size := range oh.PatternSize {
		if size != 0 {
			last = pat
		}
	}
	if err := s.AllocatePatterns(last + 1); err != nil {
		return nil, err
	}
	for pat, size := range oh.PatternSize[:last+1] {
		data := c.ReadChunk(int(size))
		if data.Len() < int(size) {
			return nil, parser.Truncated(c, "pattern data")
		}
		rows := (int(size) - 2) / (numChannels * cellSize)
		if rows <= 0 {
			continue
		}
		if err := readPattern(data, s, l, pat, rows); err != nil {
			return nil, err
		}
	}

	var smpMap [maxSamples / 8]uint8
	if !c.ReadInto(smpMap[:]) {
		l.Warnf(c.AbsolutePosition(), "sample map is missing")
		s.SanitizeOrders()
		return s, nil
	}
	for i := range maxSamples {
		smp := song.NewSample()
		if smpMap[i/8]&(1<<(i%8)) != 0 {
			if err := readSample(c, smp, s.Format.Charset, l); err != nil {
				return nil, err
			}
		}
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
	}
	// trailing unused slots
	for len(s.Samples) > 0 && s.Samples[len(s.Samples)-1].Length == 0 && s.Samples[len(s.Samples)-1].Name == "" {
		s.Samples = s.Samples[:len(s.Samples)-1]
	}
	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(HeaderSize, "%d order entries reference missing patterns", n)
	}
	return s, nil
}

func readPattern(data *cursor.Cursor, s *song.Song, l *parser.Loader, pat, rows int) error {
	p, err := l.PatternGrid(s, pat, rows)
	if err != nil {
		return err
	}
	breakRow := int(data.ReadUint8())
	data.Skip(1) // old pattern tempo
	for row := range rows {
		for ch := range numChannels {
			b, ok := data.ReadBytes(cellSize)
			if !ok {
				return parser.Truncated(data, "pattern cell")
			}
			readCell(b, p.Cell(row, ch))
		}
	}
	if breakRow > 0 && breakRow < rows-2 {
		p.WriteEffect(breakRow+1, 0, song.CmdPatternBreak, 0)
	}
	return nil
}

func readCell(b []byte, cell *song.Cell) {
	note, instr, vol, eff := b[0], b[1], b[2], b[3]
	if note > 0 && note <= maxNote {
		cell.Note = song.NoteMin + 35 + song.Note(note)
		cell.Instrument = instr + 1
	}
	// the volume is stored plus one so that zero leaves it unchanged
	if vol > 0 {
		cell.SetVolume(song.VolVolume, uint8(int(min(vol, 16)-1)*64/15))
	}
	param := eff & 0x0F
	switch eff >> 4 {
	case 0x1:
		cell.SetEffect(song.CmdPortamentoUp, 0xF0|param)
	case 0x2:
		cell.SetEffect(song.CmdPortamentoDown, 0xF0|param)
	case 0x3:
		cell.SetEffect(song.CmdTonePortamento, param<<2)
	case 0x4:
		cell.SetEffect(song.CmdRetrig, 6/(1+param)+1)
	case 0x5:
		cell.SetEffect(song.CmdVibrato, param)
	case 0x6:
		cell.SetEffect(song.CmdVibrato, param<<4)
	case 0x7:
		cell.SetEffect(song.CmdVolumeSlide, param<<4)
	case 0x8:
		cell.SetEffect(song.CmdVolumeSlide, param)
	case 0xB:
		cell.SetEffect(song.CmdPanning8, param*0x11)
	case 0xF:
		if param != 0 {
			cell.SetEffect(song.CmdSpeed, param)
		}
	}
}

func readSample(c *cursor.Cursor, smp *song.Sample, cs song.Charset, l *parser.Loader) error {
	var sh sampleHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &sh) {
		return parser.Truncated(c, "sample header")
	}
	smp.Name = song.DecodeName(cursor.TrimString(sh.Name[:], cursor.NullTerminated), cs)
	smp.Volume = int(sh.Volume&0x0F) * 256 / 15
	smp.C5Speed = farC5Speed
	length, start, end := int(sh.Length), int(sh.LoopStart), int(sh.LoopEnd)
	enc := sampleio.Signed8
	if sh.Type&smp16Bit != 0 {
		enc = sampleio.Signed16LE
		smp.Flags |= song.Sample16Bit
		length, start, end = length/2, start/2, end/2
	}
	smp.Length = min(length, song.MaxSampleLength)
	smp.SetLoop(start, end, sh.Loop&smpLoop != 0, false)
	smp.SanitizeLoops()

	offset := c.AbsolutePosition()
	if !l.WantSamples() {
		if !c.Skip(enc.Size(smp.Length)) {
			c.Skip(c.Remaining())
		}
		return nil
	}
	truncated, err := sampleio.Read(c, smp, enc)
	if err != nil {
		return err
	}
	if truncated {
		l.Warnf(offset, "sample %q is truncated to %d frames", smp.Name, smp.Length)
	}
	return nil
}

// Format describes Farandole modules for format dispatch.
var Format = parser.Format{
	Name:       "Farandole Composer",
	Tag:        "far",
	Extensions: []string{"far"},
	Probe:      Probe,
	Load:       Load,
}
