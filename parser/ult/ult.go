// Package ult loads UltraTracker modules. Pattern data is stored per channel rather than
// per row, run-length compressed, with two effect columns per cell.
package ult

import (
	"encoding/binary"
	"math"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/modcmd"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	magic          = "MAS_UTrack_V00"
	messageWidth   = 32
	numOrders      = 256
	rowsPerPattern = 64
	maxChannels    = 32
	orderStop      = 0xFF
	repeatMarker   = 0xFC
)

// Sample flags.
const (
	smp16Bit    = 0x04
	smpLoop     = 0x08
	smpPingPong = 0x10
)

type fileHeader struct {
	Magic         [14]byte
	Version       uint8 // '1' to '4'
	Title         [32]byte
	MessageLength uint8 // lines of 32 characters
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 48

type sampleHeader struct {
	Name      [32]byte
	Filename  [12]byte
	LoopStart uint32
	LoopEnd   uint32
	SizeStart uint32
	SizeEnd   uint32
	Volume    uint8
	Flags     uint8
	Speed     uint16 // only present from version 4
	Finetune  int16
}

const (
	sampleHeaderSize    = 66
	oldSampleHeaderSize = 64
)

var versions = map[uint8]string{'1': "1.3", '2': "1.4", '3': "1.5", '4': "1.6"}

func (h *fileHeader) isValid() bool {
	_, ok := versions[h.Version]
	return string(h.Magic[:]) == magic && ok
}

// Probe checks for an UltraTracker header.
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
	return parser.ProbeAdditionalSize(c, fileSize, int64(h.MessageLength)*messageWidth+1)
}

// Load reads an UltraTracker module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid UltraTracker header")
	}

	message, ok := c.ReadBytes(int(h.MessageLength) * messageWidth)
	if !ok {
		return nil, parser.Truncated(c, "song message")
	}
	numSamples := int(c.ReadUint8())
	headerSize := sampleHeaderSize
	if h.Version < '4' {
		headerSize = oldSampleHeaderSize
	}
	headers := make([]sampleHeader, numSamples)
	for i := range headers {
		if !cursor.ReadStructPartial(c, binary.LittleEndian, &headers[i], headerSize) {
			return nil, parser.Truncated(c, "sample headers")
		}
	}
	orders, ok := c.ReadBytes(numOrders)
	if !ok {
		return nil, parser.Truncated(c, "order list")
	}
	counts, ok := c.ReadBytes(2)
	if !ok {
		return nil, parser.Truncated(c, "channel count")
	}
	numChannels, numPatterns := int(counts[0])+1, int(counts[1])+1
	if numChannels > maxChannels {
		return nil, parser.Corruptf("%d channels", numChannels)
	}

	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{
		Name:    "UltraTracker",
		Type:    "ult",
		Tracker: "UltraTracker " + versions[h.Version],
		Charset: song.CharsetCP437,
	}
	s.Title = song.DecodeName(cursor.TrimString(h.Title[:], cursor.NullTerminated), s.Format.Charset)
	l.Logf("ult: %s, %d channels, %d samples", s.Format.Tracker, numChannels, numSamples)

	s.Message = song.DecodeMessage(message, s.Format.Charset, messageWidth)
	s.Order = song.ReadOrderFromArray(orders, orderStop, -1).TrimStops()
	s.Quirks.Set(song.QuirkPeriodsAreHertz, song.QuirkDualEffectColumns)
	if h.Version >= '3' {
		pan, ok := c.ReadBytes(numChannels)
		if !ok {
			return nil, parser.Truncated(c, "channel panning")
		}
		for i, p := range pan {
			s.Channels[i].Panning = int(p&0x0F)*16 + 8
		}
	} else {
		for i := range s.Channels {
			s.Channels[i].Panning = 64
			if i%2 == 1 {
				s.Channels[i].Panning = 192
			}
		}
	}

	for _, sh := range headers {
		if _, err := s.AddSample(convertSample(&sh, h.Version, s.Format.Charset)); err != nil {
			return nil, err
		}
	}

	if err := s.AllocatePatterns(numPatterns); err != nil {
		return nil, err
	}
	grids := make([]song.Grid, numPatterns)
	for pat := range grids {
		if grids[pat], err = l.PatternGrid(s, pat, rowsPerPattern); err != nil {
			return nil, err
		}
	}
	// channel-major: all patterns of channel 0, then all of channel 1, ...
	for ch := range numChannels {
		for _, p := range grids {
			if err := readTrack(c, p, ch, h.Version); err != nil {
				return nil, err
			}
		}
	}

	if l.WantSamples() {
		for i, smp := range s.Samples {
			enc := sampleio.Signed8
			if smp.Is16Bit() {
				enc = sampleio.Signed16LE
			}
			offset := c.AbsolutePosition()
			truncated, err := sampleio.Read(c, smp, enc)
			if err != nil {
				return nil, err
			}
			if truncated {
				l.Warnf(offset, "sample %d is truncated to %d frames", i+1, smp.Length)
				break
			}
		}
	}
	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(0, "%d order entries reference missing patterns", n)
	}
	return s, nil
}

func convertSample(sh *sampleHeader, version uint8, cs song.Charset) *song.Sample {
	smp := song.NewSample()
	smp.Name = song.DecodeName(cursor.TrimString(sh.Name[:], cursor.NullTerminated), cs)
	smp.Filename = song.DecodeName(cursor.TrimString(sh.Filename[:], cursor.NullTerminated), cs)
	smp.Volume = int(sh.Volume) * 256 / 255

	speed, finetune := uint32(sh.Speed), int(sh.Finetune)
	if version < '4' {
		// the old header ends with the finetune where the speed is now
		speed, finetune = 8363, int(int16(sh.Speed))
	}
	if speed == 0 {
		speed = 8363
	}
	if finetune != 0 {
		speed = uint32(float64(speed) * math.Pow(2, float64(finetune)/(12*32768)))
	}
	smp.C5Speed = speed

	length := 0
	if sh.SizeEnd > sh.SizeStart {
		length = int(sh.SizeEnd - sh.SizeStart)
	}
	start, end := int(sh.LoopStart), int(sh.LoopEnd)
	if sh.Flags&smp16Bit != 0 {
		smp.Flags |= song.Sample16Bit
		length /= 2
		start /= 2
		end /= 2
	}
	smp.Length = min(length, song.MaxSampleLength)
	smp.SetLoop(start, end, sh.Flags&smpLoop != 0, sh.Flags&smpPingPong != 0)
	smp.SanitizeLoops()
	return smp
}

// readTrack decodes one channel of one pattern. An event may repeat for several rows;
// a repeat count of zero ends the track early.
func readTrack(c *cursor.Cursor, p song.Grid, ch int, version uint8) error {
	for row := 0; row < rowsPerPattern; {
		if !c.CanRead(1) {
			return parser.Truncated(c, "pattern data")
		}
		repeat := 1
		b := c.ReadUint8()
		if b == repeatMarker {
			rb, ok := c.ReadBytes(2)
			if !ok {
				return parser.Truncated(c, "pattern data")
			}
			repeat, b = int(rb[0]), rb[1]
		}
		ev, ok := c.ReadBytes(4)
		if !ok {
			return parser.Truncated(c, "pattern data")
		}
		var cell song.Cell
		if b > 0 && b < 61 {
			cell.Note = song.NoteMin + 35 + song.Note(b)
		}
		cell.Instrument = ev[0]
		cmd1, param1 := convertEffect(ev[1]&0x0F, ev[2], version)
		cmd2, param2 := convertEffect(ev[1]>>4, ev[3], version)
		cell.CombineEffects(cmd1, param1, cmd2, param2)

		repeat = min(repeat, rowsPerPattern-row)
		if repeat == 0 {
			break
		}
		for range repeat {
			*p.Cell(row, ch) = cell
			row++
		}
	}
	return nil
}

var effects = [16]song.Command{
	song.CmdArpeggio, song.CmdPortamentoUp, song.CmdPortamentoDown, song.CmdTonePortamento,
	song.CmdVibrato, song.CmdNone, song.CmdNone, song.CmdTremolo,
	song.CmdNone, song.CmdOffset, song.CmdVolumeSlide, song.CmdPanning8,
	song.CmdVolume, song.CmdPatternBreak, song.CmdNone, song.CmdSpeed,
}

func convertEffect(e, param uint8, version uint8) (song.Command, uint8) {
	cmd := effects[e&0x0F]
	switch e {
	case 0x0:
		if param == 0 || version < '3' {
			return song.CmdNone, 0
		}
	case 0x5:
		// play backwards
		if param&0x0F == 0x02 || param&0xF0 == 0x20 {
			return song.CmdS3MCmdEx, 0x9F
		}
	case 0xA:
		// sliding up takes precedence
		if param&0xF0 != 0 {
			param &= 0xF0
		}
	case 0xB:
		param = (param & 0x0F) * 0x11
	case 0xC:
		param = min(param>>2, 64)
	case 0xD:
		param = modcmd.BCD(param)
	case 0xE:
		x := param & 0x0F
		switch param >> 4 {
		case 0x1:
			return song.CmdPortamentoUp, 0xF0 | x
		case 0x2:
			return song.CmdPortamentoDown, 0xF0 | x
		case 0x9:
			return song.CmdRetrig, x
		case 0xA:
			return song.CmdVolumeSlide, x<<4 | 0x0F
		case 0xB:
			return song.CmdVolumeSlide, 0xF0 | x
		case 0xC:
			return song.CmdS3MCmdEx, 0xC0 | x
		case 0xD:
			return song.CmdS3MCmdEx, 0xD0 | x
		}
		return song.CmdNone, 0
	case 0xF:
		switch {
		case param == 0:
			return song.CmdNone, 0
		case param > 0x2F:
			cmd = song.CmdTempo
		}
	}
	if cmd == song.CmdNone {
		param = 0
	}
	return cmd, param
}

// Format describes UltraTracker modules for format dispatch.
var Format = parser.Format{
	Name:       "UltraTracker",
	Tag:        "ult",
	Extensions: []string{"ult"},
	Probe:      Probe,
	Load:       Load,
}
