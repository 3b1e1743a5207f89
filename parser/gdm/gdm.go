// Package gdm loads General Digimusic modules as written by BWSB's 2GDM converter.
// Every GDM file is a conversion of some other format, which is kept in the song's
// format info.
package gdm

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
	maxChannels = 32
	numRows     = 64

	panSurround = 16
	panUnused   = 0xFF

	sampleLoop    = 0x01
	sample16Bit   = 0x02
	sampleVolume  = 0x04
	samplePanning = 0x08

	cellChannel = 0x1F
	cellNote    = 0x20
	cellEffect  = 0x40
	effectMore  = 0x20
)

type fileHeader struct {
	Magic           [4]byte // "GDM\xFE"
	Title           [32]byte
	Musician        [32]byte
	DOSEOF          [3]byte // "\r\n\x1A"
	Magic2          [4]byte // "GMFS"
	FormatMajor     uint8
	FormatMinor     uint8
	TrackerID       uint16
	TrackerMajor    uint8
	TrackerMinor    uint8
	PanMap          [maxChannels]uint8 // 0..15, 16 surround, 0xFF unused
	MasterVolume    uint8
	Speed           uint8
	Tempo           uint8
	OriginalFormat  uint16
	OrderOffset     uint32
	LastOrder       uint8
	PatternOffset   uint32
	LastPattern     uint8
	SampleHdrOffset uint32
	SampleOffset    uint32
	LastSample      uint8
	MessageOffset   uint32
	MessageLength   uint32
	ScrollyOffset   uint32
	ScrollyLength   uint16
	GraphicOffset   uint32
	GraphicLength   uint16
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 157

type sampleHeader struct {
	Name      [32]byte
	Filename  [12]byte
	EMSHandle uint8
	Length    uint32 // bytes
	LoopStart uint32
	LoopEnd   uint32
	Flags     uint8
	C4Speed   uint16
	Volume    uint8
	Panning   uint8
}

// SampleHeaderSize is the size of sampleHeader in the file.
const SampleHeaderSize = 62

type origin struct {
	name, tag string
}

// indexed by fileHeader.OriginalFormat
var origins = []origin{
	{},
	{"Generic MOD", "mod"},
	{"MultiTracker", "mtm"},
	{"Scream Tracker 3", "s3m"},
	{"Composer 669 / UNIS 669", "669"},
	{"Farandole Composer", "far"},
	{"UltraTracker", "ult"},
	{"Scream Tracker 2", "stm"},
	{"OctaMED", "med"},
	{"Epic Megagames MASI", "psm"},
}

func (h *fileHeader) isValid() bool {
	return string(h.Magic[:]) == "GDM\xFE" && string(h.DOSEOF[:]) == "\r\n\x1A" &&
		string(h.Magic2[:]) == "GMFS" && h.FormatMajor == 1 && h.FormatMinor == 0 &&
		h.OriginalFormat >= 1 && int(h.OriginalFormat) < len(origins)
}

// Probe checks for a General Digimusic header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	if b := c.PeekBytes(4); b == nil {
		return parser.ProbeWantMoreData
	} else if string(b) != "GDM\xFE" {
		return parser.ProbeFailure
	}
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, 0)
}

// Load reads a General Digimusic module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid General Digimusic header")
	}

	numChannels := maxChannels
	for i, pan := range h.PanMap {
		if pan == panUnused {
			numChannels = i
			break
		}
	}
	if numChannels == 0 {
		return nil, parser.Corruptf("module has no channels")
	}

	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	orig := origins[h.OriginalFormat]
	s.Format = song.FormatInfo{
		Name:         "General Digimusic",
		Type:         "gdm",
		Tracker:      fmt.Sprintf("BWSB 2GDM %d.%d", h.TrackerMajor, h.TrackerMinor),
		Charset:      song.CharsetCP437,
		OriginalName: orig.name,
		OriginalType: orig.tag,
	}
	s.Title = song.DecodeName(cursor.TrimString(h.Title[:], cursor.SpacePaddedNull), s.Format.Charset)
	// 2GDM fills in a placeholder when the source has no artist
	if artist := song.DecodeName(cursor.TrimString(h.Musician[:], cursor.SpacePaddedNull), s.Format.Charset); artist != "Unknown" {
		s.Artist = artist
	}
	l.Logf("%s, converted from %s, %d channels", s.Format.Tracker, orig.name, numChannels)

	for i := range s.Channels {
		switch pan := int(h.PanMap[i]); {
		case pan < panSurround:
			s.Channels[i].Panning = min(pan*16+8, 256)
		case pan == panSurround:
			s.Channels[i].Surround = true
		}
	}
	s.InitialGlobalVolume = min(int(h.MasterVolume)*4, 256)
	s.InitialSpeed = int(h.Speed)
	s.InitialTempo = int(h.Tempo)

	if c.Seek(int(h.OrderOffset)) {
		orders, _ := c.ReadBytes(int(h.LastOrder) + 1)
		s.Order = song.ReadOrderFromArray(orders, 0xFF, 0xFE)
	} else {
		l.Warnf(int64(h.OrderOffset), "order list lies outside the file")
	}

	if !c.Seek(int(h.SampleHdrOffset)) {
		return nil, parser.Truncated(c, "sample headers")
	}
	for i := range int(h.LastSample) + 1 {
		var sh sampleHeader
		if !cursor.ReadStruct(c, binary.LittleEndian, &sh) {
			l.Warnf(c.AbsolutePosition(), "sample headers end after %d of %d", i, int(h.LastSample)+1)
			break
		}
		if _, err := s.AddSample(convertSample(&sh, s.Format.Charset)); err != nil {
			return nil, err
		}
	}

	if l.WantSamples() {
		if c.Seek(int(h.SampleOffset)) {
			for i, smp := range s.Samples {
				offset := c.AbsolutePosition()
				enc := sampleio.Unsigned8
				if smp.Is16Bit() {
					enc = sampleio.Unsigned16
				}
				truncated, err := sampleio.Read(c, smp, enc)
				if err != nil {
					return nil, err
				}
				if truncated {
					l.Warnf(offset, "sample %d is truncated to %d frames", i+1, smp.Length)
				}
			}
		} else {
			l.Warnf(int64(h.SampleOffset), "sample data lies outside the file")
		}
	}

	numPatterns := int(h.LastPattern) + 1
	if err := s.AllocatePatterns(numPatterns); err != nil {
		return nil, err
	}
	if !c.Seek(int(h.PatternOffset)) {
		return nil, parser.Truncated(c, "patterns")
	}
	amigaNotes := true
	for pat := range numPatterns {
		offset := c.AbsolutePosition()
		if !c.CanRead(2) {
			l.Warnf(offset, "patterns end after %d of %d", pat, numPatterns)
			break
		}
		// the length includes its own two bytes
		length := int(c.ReadUint16LE())
		p, err := l.PatternGrid(s, pat, numRows)
		if err != nil {
			return nil, err
		}
		if length <= 2 {
			continue
		}
		data := c.ReadChunk(length - 2)
		if data.Len() < length-2 {
			l.Warnf(offset, "pattern %d is truncated", pat)
		}
		if !readPattern(data, p, orig.tag) {
			amigaNotes = false
		}
	}
	if orig.tag == "mod" && numChannels == 4 && amigaNotes {
		s.Quirks.Set(song.QuirkAmigaLimits)
	}

	if h.MessageLength > 0 {
		if msg := c.ChunkAt(int(h.MessageOffset), int(h.MessageLength)); msg.Len() > 0 {
			s.Message = song.DecodeMessage(msg.Bytes(), s.Format.Charset, 0)
		}
	}

	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(int64(h.OrderOffset), "removed %d order entries pointing to missing patterns", n)
	}
	return s, nil
}

func convertSample(sh *sampleHeader, cs song.Charset) *song.Sample {
	smp := song.NewSample()
	smp.Name = song.DecodeName(cursor.TrimString(sh.Name[:], cursor.SpacePaddedNull), cs)
	smp.Filename = song.DecodeName(cursor.TrimString(sh.Filename[:], cursor.SpacePaddedNull), cs)
	smp.C5Speed = uint32(sh.C4Speed)
	smp.GlobalVolume = 64
	smp.Length = int(sh.Length)
	if sh.Flags&sample16Bit != 0 {
		smp.Flags |= song.Sample16Bit
		smp.Length /= 2
	}
	// the stored loop end is inclusive
	end := int(sh.LoopEnd)
	if end > 0 {
		end--
	}
	smp.SetLoop(int(sh.LoopStart), end, sh.Flags&sampleLoop != 0, false)
	smp.SanitizeLoops()
	if sh.Flags&sampleVolume != 0 && sh.Volume != 0xFF {
		smp.Volume = int(min(sh.Volume, 64)) * 4
	}
	if sh.Flags&samplePanning != 0 && sh.Panning <= 15 {
		smp.Flags |= song.SamplePanning
		smp.Panning = min(int(sh.Panning)*16+8, 256)
	}
	return smp
}

// readPattern decodes one packed pattern. It reports whether every note lies within
// ProTracker's three octaves.
func readPattern(data *cursor.Cursor, p song.Grid, originTag string) bool {
	amigaNotes := true
	for row := 0; row < p.Rows() && !data.EOF(); row++ {
		for {
			flags := data.ReadUint8()
			if flags == 0 {
				break
			}
			ch := int(flags & cellChannel)
			var scratch song.Cell
			cell := &scratch
			if ch < p.Channels() {
				cell = p.Cell(row, ch)
			}
			if flags&cellNote != 0 {
				note, instr := data.ReadUint8(), data.ReadUint8()
				if note != 0 {
					// the high bit marks notes that do not retrigger
					n := (note & 0x7F) - 1
					cell.Note = song.NoteMin + 12 + song.Note(n>>4)*12 + song.Note(n&0x0F)
					if cell.Note < song.NoteMiddleC-12 || cell.Note >= song.NoteMiddleC+24 {
						amigaNotes = false
					}
				}
				cell.Instrument = instr
			}
			if flags&cellEffect != 0 {
				readEffects(data, cell, originTag)
			}
		}
	}
	return amigaNotes
}

func readEffects(data *cursor.Cursor, cell *song.Cell, originTag string) {
	for data.CanRead(2) {
		b, param := data.ReadUint8(), data.ReadUint8()
		cmd, param := convertEffect(b&0x1F, param, originTag)
		switch {
		case cmd == song.CmdVolume && cell.VolCmd == song.VolNone:
			cell.SetVolume(song.VolVolume, param)
		case cmd == song.CmdS3MCmdEx && param>>4 == 0x8 && cell.VolCmd == song.VolNone:
			cell.SetVolume(song.VolPanning, ((param&0x0F)*64+8)/15)
		case cell.Command == song.CmdNone:
			cell.SetEffect(cmd, param)
		default:
			cell.CombineEffects(cell.Command, cell.Param, cmd, param)
		}
		if b&effectMore == 0 {
			break
		}
	}
}

var effects = [32]song.Command{
	song.CmdNone, song.CmdPortamentoUp, song.CmdPortamentoDown, song.CmdTonePortamento,
	song.CmdVibrato, song.CmdTonePortaVol, song.CmdVibratoVol, song.CmdTremolo,
	song.CmdTremor, song.CmdOffset, song.CmdVolumeSlide, song.CmdPositionJump,
	song.CmdVolume, song.CmdPatternBreak, song.CmdModCmdEx, song.CmdSpeed,
	song.CmdArpeggio, song.CmdNone, song.CmdRetrig, song.CmdGlobalVolume,
	song.CmdFineVibrato, song.CmdNone, song.CmdNone, song.CmdNone,
	song.CmdNone, song.CmdNone, song.CmdNone, song.CmdNone,
	song.CmdNone, song.CmdNone, song.CmdS3MCmdEx, song.CmdTempo,
}

func convertEffect(b, param uint8, originTag string) (song.Command, uint8) {
	cmd := effects[b]
	switch cmd {
	case song.CmdPortamentoUp, song.CmdPortamentoDown:
		if param >= 0xE0 && originTag != "mod" {
			param = 0xDF
		}
	case song.CmdTonePortaVol, song.CmdVibratoVol:
		if param&0xF0 != 0 {
			param &= 0xF0
		}
	case song.CmdVolume:
		param = min(param, 64)
	case song.CmdGlobalVolume:
		param = min(param, 64)
	case song.CmdModCmdEx:
		switch param >> 4 {
		case 0x8:
			return song.CmdPortamentoUp, 0xE0 | param&0x0F
		case 0x9:
			return song.CmdPortamentoDown, 0xE0 | param&0x0F
		}
		if originTag != "mod" {
			if c, p, ok := modcmd.ModExToS3M(param); ok {
				return c, p
			}
		}
	case song.CmdS3MCmdEx:
		// 2GDM only emits surround toggles here
		switch param {
		case 0x00:
			return song.CmdS3MCmdEx, 0x90
		case 0x01:
			return song.CmdS3MCmdEx, 0x91
		}
		return song.CmdNone, 0
	case song.CmdTempo:
		if param < 0x20 {
			return song.CmdNone, 0
		}
	}
	return cmd, param
}

// Format describes General Digimusic modules for format dispatch.
var Format = parser.Format{
	Name:       "General Digimusic",
	Tag:        "gdm",
	Extensions: []string{"gdm"},
	Probe:      Probe,
	Load:       Load,
}
