// Package imf loads Imago Orpheus modules. Cells carry two effect columns, and samples
// are stored with the instrument they belong to.
package imf

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	magic          = "IM10"
	maxChannels    = 32
	maxOrders      = 256
	numEnvelopes   = 3
	maxEnvPoints   = 16
	noteKeyOff     = 160
	noteEmpty      = 255
	orderIgnore    = 0xFF
	linearSlides   = 0x01
	channelMuted   = 1
	channelIgnored = 2
)

type channelHeader struct {
	Name    [12]byte
	Chorus  uint8
	Reverb  uint8
	Panning uint8 // 0..255
	Status  uint8 // 0: enabled, 1: muted, 2: disabled
}

type fileHeader struct {
	Title        [32]byte
	NumOrders    uint16
	NumPatterns  uint16
	NumInstrs    uint16
	Flags        uint16
	Unused1      [8]byte
	Speed        uint8
	Tempo        uint8
	GlobalVolume uint8 // 0..64
	Amplify      uint8 // 4..127
	Unused2      [8]byte
	Magic        [4]byte
	Channels     [maxChannels]channelHeader
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 576

type envNode struct {
	Tick  uint16
	Value uint16
}

// Envelope flags.
const (
	envEnabled = 0x01
	envSustain = 0x02
	envLoop    = 0x04
)

type envelope struct {
	Points    uint8
	Sustain   uint8
	LoopStart uint8
	LoopEnd   uint8
	Flags     uint8
	Unused    [3]byte
}

type instrumentHeader struct {
	Name       [32]byte
	Map        [120]uint8
	Unused     [8]byte
	Nodes      [numEnvelopes][maxEnvPoints]envNode // volume, panning, filter
	Envelopes  [numEnvelopes]envelope
	FadeOut    uint16
	NumSamples uint16
	Magic      [4]byte // "II10", not checked by the tracker either
}

// InstrumentHeaderSize is the size of instrumentHeader in the file.
const InstrumentHeaderSize = 384

// Sample flags.
const (
	smpLoop     = 0x01
	smpPingPong = 0x02
	smp16Bit    = 0x04
	smpPanning  = 0x08
)

type sampleHeader struct {
	Filename  [13]byte
	Unused1   [3]byte
	Length    uint32 // bytes
	LoopStart uint32
	LoopEnd   uint32
	C5Speed   uint32
	Volume    uint8
	Panning   uint8
	Unused2   [14]byte
	Flags     uint8
	Unused3   [5]byte
	EMS       uint16
	DRAM      uint32
	Magic     [4]byte // "IS10" or "IW10"
}

// SampleHeaderSize is the size of sampleHeader in the file.
const SampleHeaderSize = 64

func (h *fileHeader) isValid() bool {
	if string(h.Magic[:]) != magic || h.NumOrders > maxOrders || h.NumInstrs >= song.MaxInstruments ||
		h.Tempo < 32 || h.GlobalVolume > 64 || h.Amplify < 4 || h.Amplify > 127 {
		return false
	}
	for _, ch := range h.Channels {
		if ch.Status > channelIgnored {
			return false
		}
	}
	return h.numChannels() > 0
}

// numChannels is one past the last channel that is not disabled.
func (h *fileHeader) numChannels() int {
	n := 0
	for i, ch := range h.Channels {
		if ch.Status != channelIgnored {
			n = i + 1
		}
	}
	return n
}

// Probe checks for an Imago Orpheus header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		if c.CanRead(64) && !c.HasMagicAt(60, magic) {
			return parser.ProbeFailure
		}
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, maxOrders)
}

// Load reads an Imago Orpheus module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid Imago Orpheus header")
	}

	s, err := song.New(h.numChannels())
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{
		Name:    "Imago Orpheus",
		Type:    "imf",
		Tracker: "Imago Orpheus",
		Charset: song.CharsetCP437,
	}
	s.Title = song.DecodeName(cursor.TrimString(h.Title[:], cursor.NullTerminated), s.Format.Charset)
	l.Logf("imf: %d channels, %d patterns, %d instruments", s.NumChannels(), h.NumPatterns, h.NumInstrs)

	var ignored [maxChannels]bool
	for i, ch := range h.Channels {
		ignored[i] = ch.Status == channelIgnored
		if i >= s.NumChannels() {
			continue
		}
		s.Channels[i] = song.ChannelSetting{
			Name:    song.DecodeName(cursor.TrimString(ch.Name[:], cursor.NullTerminated), s.Format.Charset),
			Panning: int(ch.Panning) * 256 / 255,
			Volume:  64,
			Mute:    ch.Status == channelMuted,
		}
	}
	if h.Speed > 0 {
		s.InitialSpeed = int(h.Speed)
	}
	s.InitialTempo = int(h.Tempo)
	s.InitialGlobalVolume = int(h.GlobalVolume) * 4
	s.Quirks.Set(song.QuirkITCompatible, song.QuirkDualEffectColumns)
	if h.Flags&linearSlides != 0 {
		s.Quirks.Set(song.QuirkLinearSlides)
	}

	orders, ok := c.ReadBytes(maxOrders)
	if !ok {
		return nil, parser.Truncated(c, "order list")
	}
	s.Order = song.ReadOrderFromArray(orders[:h.NumOrders], -1, orderIgnore)

	if err := s.AllocatePatterns(int(h.NumPatterns)); err != nil {
		return nil, err
	}
	for pat := range int(h.NumPatterns) {
		if !c.CanRead(4) {
			return nil, parser.Truncated(c, "pattern header")
		}
		length, rows := int(c.ReadUint16LE()), int(c.ReadUint16LE())
		if length < 4 {
			return nil, parser.Corruptf("pattern %d: length %d", pat, length)
		}
		offset := c.AbsolutePosition()
		data := c.ReadChunk(length - 4)
		if data.Len() < length-4 {
			return nil, parser.Truncated(c, "pattern data")
		}
		if rows < 1 || rows > song.MaxRows {
			l.Warnf(offset, "pattern %d has %d rows", pat, rows)
			continue
		}
		p, err := l.PatternGrid(s, pat, rows)
		if err != nil {
			return nil, err
		}
		readPattern(data, p, &ignored, pat, l)
	}

	for ins := range int(h.NumInstrs) {
		if err := readInstrument(c, s, ins, l); err != nil {
			return nil, err
		}
	}
	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(HeaderSize, "%d order entries reference missing patterns", n)
	}
	return s, nil
}

func readPattern(data *cursor.Cursor, p song.Grid, ignored *[maxChannels]bool, pat int, l *parser.Loader) {
	for row := 0; row < p.Rows(); {
		if !data.CanRead(1) {
			l.Warnf(data.AbsolutePosition(), "pattern %d ends at row %d", pat, row)
			return
		}
		mask := data.ReadUint8()
		if mask == 0 {
			row++
			continue
		}
		ch := int(mask & 0x1F)
		var cell song.Cell
		if mask&0x20 != 0 {
			b, ok := data.ReadBytes(2)
			if !ok {
				l.Warnf(data.AbsolutePosition(), "pattern %d ends at row %d", pat, row)
				return
			}
			cell.Note = convertNote(b[0])
			cell.Instrument = b[1]
		}
		switch mask & 0xC0 {
		case 0xC0:
			b, ok := data.ReadBytes(4)
			if !ok {
				l.Warnf(data.AbsolutePosition(), "pattern %d ends at row %d", pat, row)
				return
			}
			cmd1, param1 := convertEffect(b[0], b[1])
			cmd2, param2 := convertEffect(b[2], b[3])
			cell.CombineEffects(cmd1, param1, cmd2, param2)
		case 0x40, 0x80:
			b, ok := data.ReadBytes(2)
			if !ok {
				l.Warnf(data.AbsolutePosition(), "pattern %d ends at row %d", pat, row)
				return
			}
			cell.SetEffect(convertEffect(b[0], b[1]))
		}
		if cell.Command == song.CmdVolume && cell.VolCmd == song.VolNone {
			cell.SetVolume(song.VolVolume, min(cell.Param, 64))
			cell.SetEffect(song.CmdNone, 0)
		}
		// disabled channels do not trigger global effects
		if ignored[ch] && cell.Command.IsGlobal() {
			cell.SetEffect(song.CmdNone, 0)
		}
		if ch < p.Channels() {
			*p.Cell(row, ch) = cell
		}
	}
}

func convertNote(n uint8) song.Note {
	switch n {
	case noteKeyOff:
		return song.NoteKeyOff
	case noteEmpty:
		return song.NoteNone
	}
	note := int(n>>4)*12 + int(n&0x0F) + 12 + int(song.NoteMin)
	if note > int(song.NoteMax) {
		return song.NoteNone
	}
	return song.Note(note)
}

var effects = [...]song.Command{
	song.CmdNone,
	song.CmdSpeed,          // 1xx
	song.CmdTempo,          // 2xx
	song.CmdTonePortamento, // 3xx
	song.CmdTonePortaVol,   // 4xy
	song.CmdVibrato,        // 5xy
	song.CmdVibratoVol,     // 6xy
	song.CmdFineVibrato,    // 7xy
	song.CmdTremolo,        // 8xy
	song.CmdArpeggio,       // 9xy
	song.CmdPanning8,       // Axx
	song.CmdPanningSlide,   // Bxy
	song.CmdVolume,         // Cxx
	song.CmdVolumeSlide,    // Dxy
	song.CmdVolumeSlide,    // Exy fine
	song.CmdNone,           // Fxx finetune
	song.CmdNoteSlideUp,    // Gxy
	song.CmdNoteSlideDown,  // Hxy
	song.CmdPortamentoUp,   // Ixx
	song.CmdPortamentoDown, // Jxx
	song.CmdPortamentoUp,   // Kxx fine
	song.CmdPortamentoDown, // Lxx fine
	song.CmdNone,           // Mxx filter cutoff
	song.CmdNone,           // Nxy filter slide
	song.CmdOffset,         // Oxx
	song.CmdNone,           // Pxx fine offset
	song.CmdKeyOff,         // Qxx
	song.CmdRetrig,         // Rxy
	song.CmdTremor,         // Sxy
	song.CmdPositionJump,   // Txx
	song.CmdPatternBreak,   // Uxx
	song.CmdGlobalVolume,   // Vxx
	song.CmdGlobalVolSlide, // Wxy
	song.CmdS3MCmdEx,       // Xxx
	song.CmdNone,           // Yxx chorus
	song.CmdNone,           // Zxx reverb
}

func convertEffect(cmd, param uint8) (song.Command, uint8) {
	if int(cmd) >= len(effects) {
		return song.CmdNone, 0
	}
	switch cmd {
	case 0x0E:
		switch {
		case param == 0:
		case param == 0xF0:
			param = 0xEF
		case param == 0x0F:
			param = 0xFE
		case param&0xF0 != 0:
			param |= 0x0F
		default:
			param |= 0xF0
		}
	case 0x14, 0x15:
		if param>>4 != 0 {
			param = 0xF0 | param>>4
		} else {
			param |= 0xE0
		}
	case 0x18:
		// O00 does not recall the previous offset
		if param == 0 {
			return song.CmdNone, 0
		}
	case 0x1F:
		param = uint8(min(int(param)*2, 255))
	case 0x21:
		return convertExtended(param)
	}
	return effects[cmd], param
}

func convertExtended(param uint8) (song.Command, uint8) {
	x := param & 0x0F
	switch param >> 4 {
	case 0x0:
		return song.CmdS3MCmdEx, param
	case 0x3:
		return song.CmdS3MCmdEx, 0x10 | x // glissando
	case 0x5:
		return song.CmdS3MCmdEx, 0x30 | x
	case 0x8:
		return song.CmdS3MCmdEx, 0x40 | x
	case 0xA:
		return song.CmdS3MCmdEx, 0xB0 | x
	case 0xB:
		return song.CmdS3MCmdEx, 0xE0 | x
	case 0xC, 0xD:
		// no cut or delay on the first tick
		if x == 0 {
			return song.CmdNone, 0
		}
		return song.CmdS3MCmdEx, param
	case 0xE:
		// only one envelope can be switched off at a time
		switch x {
		case 0, 1:
			return song.CmdS3MCmdEx, 0x77
		case 2:
			return song.CmdS3MCmdEx, 0x79
		case 3:
			return song.CmdS3MCmdEx, 0x7B
		}
	}
	return song.CmdNone, 0
}

func readInstrument(c *cursor.Cursor, s *song.Song, index int, l *parser.Loader) error {
	var ih instrumentHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &ih) {
		return parser.Truncated(c, "instrument header")
	}
	firstSample := len(s.Samples)
	ins := song.NewInstrument()
	ins.Name = song.DecodeName(cursor.TrimString(ih.Name[:], cursor.NullTerminated), s.Format.Charset)
	ins.FadeOut = int(ih.FadeOut)
	for i, smp := range ih.Map {
		if int(smp) < int(ih.NumSamples) {
			ins.SampleMap[i] = uint16(firstSample + int(smp) + 1)
		}
	}
	ins.VolumeEnvelope = convertEnvelope(&ih, 0)
	ins.PanningEnvelope = convertEnvelope(&ih, 1)
	// keep note-off working for instruments without any way to fade
	if !ins.VolumeEnvelope.Enabled && ins.FadeOut == 0 {
		ins.FadeOut = 32767
	}
	s.Instruments = append(s.Instruments, ins)

	for n := range int(ih.NumSamples) {
		var sh sampleHeader
		if !cursor.ReadStruct(c, binary.LittleEndian, &sh) {
			return parser.Truncated(c, "sample header")
		}
		if m := string(sh.Magic[:]); m != "IS10" && m != "IW10" {
			return parser.Corruptf("instrument %d sample %d: bad signature %q", index+1, n+1, m)
		}
		smp := convertSample(&sh, s.Format.Charset)
		num, err := s.AddSample(smp)
		if err != nil {
			return err
		}
		data := c.ReadChunk(int(sh.Length))
		if !l.WantSamples() || smp.Length == 0 {
			continue
		}
		enc := sampleio.Signed8
		if sh.Flags&smp16Bit != 0 {
			enc = sampleio.Signed16LE
		}
		pos := data.AbsolutePosition()
		truncated, err := sampleio.Read(data, smp, enc)
		if err != nil {
			return err
		}
		if truncated {
			l.Warnf(pos, "sample %d is truncated to %d frames", num, smp.Length)
		}
	}
	return nil
}

func convertEnvelope(ih *instrumentHeader, which int) song.Envelope {
	e := ih.Envelopes[which]
	shift := 0
	if which > 0 {
		shift = 2
	}
	env := song.Envelope{
		Enabled:      e.Flags&envEnabled != 0,
		Sustain:      e.Flags&envSustain != 0,
		Loop:         e.Flags&envLoop != 0,
		LoopStart:    int(e.LoopStart),
		LoopEnd:      int(e.LoopEnd),
		SustainStart: int(e.Sustain),
		SustainEnd:   int(e.Sustain),
	}
	n := max(2, min(int(e.Points), maxEnvPoints))
	var minTick uint16
	for _, node := range ih.Nodes[which][:n] {
		tick := max(minTick, node.Tick)
		minTick = tick + 1
		env.Points = append(env.Points, song.EnvelopePoint{Tick: tick, Value: uint8(min(int(uint8(node.Value))>>shift, 64))})
	}
	env.Sanitize()
	return env
}

func convertSample(sh *sampleHeader, cs song.Charset) *song.Sample {
	smp := song.NewSample()
	name := song.DecodeName(cursor.TrimString(sh.Filename[:], cursor.NullTerminated), cs)
	smp.Name, smp.Filename = name, name
	smp.C5Speed = sh.C5Speed
	smp.Volume = int(min(sh.Volume, 64)) * 4
	smp.Panning = int(sh.Panning) * 256 / 255
	if sh.Flags&smpPanning != 0 {
		smp.Flags |= song.SamplePanning
	}
	length, start, end := int(sh.Length), int(sh.LoopStart), int(sh.LoopEnd)
	if sh.Flags&smp16Bit != 0 {
		smp.Flags |= song.Sample16Bit
		length, start, end = length/2, start/2, end/2
	}
	smp.Length = min(length, song.MaxSampleLength)
	smp.SetLoop(start, end, sh.Flags&smpLoop != 0, sh.Flags&smpPingPong != 0)
	smp.SanitizeLoops()
	return smp
}

// Format describes Imago Orpheus modules for format dispatch.
var Format = parser.Format{
	Name:       "Imago Orpheus",
	Tag:        "imf",
	Extensions: []string{"imf"},
	Probe:      Probe,
	Load:       Load,
}
