// Package dbm loads DigiBooster Pro modules. The file is a sequence of IFF-style chunks
// behind a short header; instruments own the loop and volume settings of their sample.
package dbm

import (
	"encoding/binary"
	"fmt"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/iff"
	"github.com/QEStudios/TrackerLoader/parser/internal/modcmd"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	magic = "DBM0"

	instLoop     = 0x01
	instPingPong = 0x02

	smp8Bit  = 0x01
	smp16Bit = 0x02
	smp32Bit = 0x04

	envEnabled = 0x01
	envSustain = 0x02
	envLoop    = 0x04

	noteKeyOff = 0x1F
)

type fileHeader struct {
	Magic     [4]byte
	VersionHi uint8
	VersionLo uint8
	Reserved  [2]byte
}

// HeaderSize is the size of the file header.
const HeaderSize = 8

type infoChunk struct {
	NumInstruments uint16
	NumSamples     uint16
	NumSongs       uint16
	NumPatterns    uint16
	NumChannels    uint16
}

type instrumentHeader struct {
	Name       [30]byte
	Sample     uint16
	Volume     uint16 // 0..64
	SampleRate uint32
	LoopStart  uint32
	LoopLength uint32
	Panning    int16 // -128..128
	Flags      uint16
}

// InstrumentHeaderSize is the size of an entry in the INST chunk.
const InstrumentHeaderSize = 50

type envelopeHeader struct {
	Instrument  uint16
	Flags       uint8
	NumSegments uint8
	Sustain     uint8
	LoopStart   uint8
	LoopEnd     uint8
	Sustain2    uint8
	Points      [32][2]uint16 // tick, value
}

func (h *fileHeader) isValid() bool {
	return string(h.Magic[:]) == magic && h.VersionHi <= 3
}

// Probe checks for a DigiBooster Pro header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.BigEndian, &h) {
		if b := c.PeekBytes(min(c.Remaining(), 4)); string(b) != magic[:len(b)] {
			return parser.ProbeFailure
		}
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, 0)
}

// Load reads a DigiBooster Pro module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.BigEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid DigiBooster Pro header")
	}
	chunks, truncated := iff.Read(c)
	if truncated {
		l.Warnf(c.AbsolutePosition(), "last chunk is truncated")
	}

	infoCh, ok := chunks.Get("INFO")
	if !ok {
		return nil, parser.Corruptf("missing INFO chunk")
	}
	var info infoChunk
	if !cursor.ReadStruct(infoCh.Data, binary.BigEndian, &info) {
		return nil, parser.Truncated(infoCh.Data, "INFO chunk")
	}
	if info.NumChannels == 0 || int(info.NumChannels) > song.MaxChannels {
		return nil, parser.Corruptf("unsupported channel count %d", info.NumChannels)
	}

	s, err := song.New(int(info.NumChannels))
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{
		Name:    "DigiBooster Pro",
		Type:    "dbm",
		Tracker: fmt.Sprintf("DigiBooster Pro %d.%x", h.VersionHi, h.VersionLo),
		Charset: song.CharsetISO8859_1,
	}
	if name, ok := chunks.Get("NAME"); ok {
		s.Title = song.DecodeName(cursor.TrimString(name.Data.Bytes(), cursor.SpacePaddedNull), s.Format.Charset)
	}
	l.Logf("%s, %d channels, %d instruments", s.Format.Tracker, info.NumChannels, info.NumInstruments)

	if songs, ok := chunks.Get("SONG"); ok {
		readSong(songs, s, l, int(info.NumSongs))
	}

	for range info.NumSamples {
		if _, err := s.AddSample(song.NewSample()); err != nil {
			return nil, err
		}
	}
	if inst, ok := chunks.Get("INST"); ok {
		for i := range int(info.NumInstruments) {
			var ih instrumentHeader
			if !cursor.ReadStruct(inst.Data, binary.BigEndian, &ih) {
				l.Warnf(inst.Offset, "instrument list ends after %d of %d", i, info.NumInstruments)
				break
			}
			s.Instruments = append(s.Instruments, convertInstrument(&ih, s))
		}
	}
	if env, ok := chunks.Get("VENV"); ok {
		readEnvelopes(env, s, func(ins *song.Instrument) *song.Envelope { return &ins.VolumeEnvelope }, false)
	}
	if env, ok := chunks.Get("PENV"); ok {
		// panning envelopes are centred on zero from version 3 on
		readEnvelopes(env, s, func(ins *song.Instrument) *song.Envelope { return &ins.PanningEnvelope }, h.VersionHi >= 3)
	}

	if err := s.AllocatePatterns(int(info.NumPatterns)); err != nil {
		return nil, err
	}
	if patt, ok := chunks.Get("PATT"); ok {
		for pat := range int(info.NumPatterns) {
			offset := patt.Data.AbsolutePosition()
			if !patt.Data.CanRead(6) {
				l.Warnf(offset, "patterns end after %d of %d", pat, info.NumPatterns)
				break
			}
			rows := int(patt.Data.ReadUint16BE())
			size := int(patt.Data.ReadUint32BE())
			data := patt.Data.ReadChunk(size)
			if data.Len() < size {
				l.Warnf(offset, "pattern %d is truncated", pat)
			}
			p, err := l.PatternGrid(s, pat, max(rows, 1))
			if err != nil {
				return nil, err
			}
			readPattern(data, p)
		}
	}

	if smpl, ok := chunks.Get("SMPL"); ok {
		for i, smp := range s.Samples {
			offset := smpl.Data.AbsolutePosition()
			if !smpl.Data.CanRead(8) {
				l.Warnf(offset, "sample data ends after %d of %d samples", i, len(s.Samples))
				break
			}
			flags := smpl.Data.ReadUint32BE()
			smp.Length = int(smpl.Data.ReadUint32BE())
			if !l.WantSamples() {
				skipSampleData(smpl.Data, smp, flags)
				continue
			}
			truncated, err := readSampleData(smpl.Data, smp, flags)
			if err != nil {
				return nil, err
			}
			if truncated {
				l.Warnf(offset, "sample %d is truncated to %d frames", i+1, smp.Length)
			}
		}
	}
	// loops were set up by the instruments before the lengths were known
	for _, smp := range s.Samples {
		smp.SanitizeLoops()
	}

	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(HeaderSize, "removed %d order entries pointing to missing patterns", n)
	}
	return s, nil
}

// readSong takes the order list of the first subsong. Later subsongs are reported only.
func readSong(ch iff.Chunk, s *song.Song, l *parser.Loader, numSongs int) {
	name, _ := ch.Data.ReadBytes(44)
	if s.Title == "" {
		s.Title = song.DecodeName(cursor.TrimString(name, cursor.SpacePaddedNull), s.Format.Charset)
	}
	n := int(ch.Data.ReadUint16BE())
	orders, ok := cursor.ReadVector[uint16](ch.Data, binary.BigEndian, n)
	if !ok {
		l.Warnf(ch.Offset, "order list is truncated")
		orders, _ = cursor.ReadVector[uint16](ch.Data, binary.BigEndian, ch.Data.Remaining()/2)
	}
	s.Order = song.ReadOrderFromArray(orders, -1, -1)
	if numSongs > 1 {
		l.Logf("only the first of %d subsongs is loaded", numSongs)
	}
}

func convertInstrument(ih *instrumentHeader, s *song.Song) *song.Instrument {
	ins := song.NewInstrument()
	ins.Name = song.DecodeName(cursor.TrimString(ih.Name[:], cursor.SpacePaddedNull), s.Format.Charset)
	ins.Panning = min(max(int(ih.Panning)+128, 0), 256)
	ins.PanningSet = true

	smp := s.Sample(int(ih.Sample))
	if smp == nil {
		return ins
	}
	for i := range ins.SampleMap {
		ins.SampleMap[i] = ih.Sample
	}
	// DigiBooster keeps name, volume, rate and loop on the instrument, so they are copied
	// to the sample it plays
	smp.Name = ins.Name
	smp.Volume = int(min(ih.Volume, 64)) * 4
	if ih.SampleRate != 0 {
		smp.C5Speed = ih.SampleRate
	}
	if ih.LoopLength != 0 && ih.Flags&(instLoop|instPingPong) != 0 {
		start := int(ih.LoopStart)
		smp.SetLoop(start, start+int(ih.LoopLength), true, ih.Flags&instPingPong != 0)
	}
	return ins
}

func readEnvelopes(ch iff.Chunk, s *song.Song, which func(*song.Instrument) *song.Envelope, centred bool) {
	n := int(ch.Data.ReadUint16BE())
	for range n {
		var eh envelopeHeader
		if !cursor.ReadStruct(ch.Data, binary.BigEndian, &eh) {
			return
		}
		i := int(eh.Instrument)
		if i < 1 || i > len(s.Instruments) {
			continue
		}
		env := which(s.Instruments[i-1])
		if eh.NumSegments != 0 {
			env.Enabled = eh.Flags&envEnabled != 0
			env.Sustain = eh.Flags&envSustain != 0
			env.Loop = eh.Flags&envLoop != 0
		}
		env.Points = env.Points[:0]
		for _, pt := range eh.Points[:min(int(eh.NumSegments), 31)+1] {
			v := int(pt[1])
			if centred {
				v = (int(int16(pt[1])) + 128) / 4
			}
			env.Points = append(env.Points, song.EnvelopePoint{Tick: pt[0], Value: uint8(min(max(v, 0), 64))})
		}
		env.LoopStart, env.LoopEnd = int(eh.LoopStart), int(eh.LoopEnd)
		env.SustainStart, env.SustainEnd = int(eh.Sustain), int(eh.Sustain)
		env.Sanitize()
	}
}

func readSampleData(c *cursor.Cursor, smp *song.Sample, flags uint32) (truncated bool, err error) {
	switch {
	case flags&smp8Bit != 0:
		return sampleio.Read(c, smp, sampleio.Signed8)
	case flags&smp16Bit != 0:
		return sampleio.Read(c, smp, sampleio.Signed16BE)
	case flags&smp32Bit != 0:
		raw, ok := cursor.ReadVector[int32](c, binary.BigEndian, smp.Length)
		if !ok {
			raw, _ = cursor.ReadVector[int32](c, binary.BigEndian, c.Remaining()/4)
		}
		pcm := make([]int16, len(raw))
		for i, v := range raw {
			pcm[i] = int16(v >> 16)
		}
		return sampleio.SetPCM16(smp, pcm), nil
	}
	smp.Length = 0
	return false, nil
}

func skipSampleData(c *cursor.Cursor, smp *song.Sample, flags uint32) {
	size := 1
	switch {
	case flags&smp8Bit != 0:
	case flags&smp16Bit != 0:
		smp.Flags |= song.Sample16Bit
		size = 2
	case flags&smp32Bit != 0:
		smp.Flags |= song.Sample16Bit
		size = 4
	default:
		smp.Length = 0
	}
	if !c.Skip(smp.Length * size) {
		smp.Length = c.Remaining() / size
		c.Skip(c.Remaining())
	}
}

func readPattern(data *cursor.Cursor, p song.Grid) {
	row := 0
	for row < p.Rows() && data.CanRead(1) {
		ch := int(data.ReadUint8())
		if ch == 0 {
			row++
			continue
		}
		mask := data.ReadUint8()
		var scratch song.Cell
		cell := &scratch
		if ch <= p.Channels() {
			cell = p.Cell(row, ch-1)
		}
		if mask&0x01 != 0 {
			switch n := data.ReadUint8(); {
			case n == noteKeyOff:
				cell.Note = song.NoteKeyOff
			case n > 0 && n < 0xFE:
				if note := song.NoteMin + 12 + song.Note(n>>4)*12 + song.Note(n&0x0F); note <= song.NoteMax {
					cell.Note = note
				}
			}
		}
		if mask&0x02 != 0 {
			cell.Instrument = data.ReadUint8()
		}
		var cmd1, p1, cmd2, p2 uint8
		if mask&0x04 != 0 {
			cmd1 = data.ReadUint8()
		}
		if mask&0x08 != 0 {
			p1 = data.ReadUint8()
		}
		if mask&0x10 != 0 {
			cmd2 = data.ReadUint8()
		}
		if mask&0x20 != 0 {
			p2 = data.ReadUint8()
		}
		c1, q1 := convertEffect(cmd1, p1)
		c2, q2 := convertEffect(cmd2, p2)
		cell.CombineEffects(c1, q1, c2, q2)
	}
}

var effects = [32]song.Command{
	song.CmdArpeggio, song.CmdPortamentoUp, song.CmdPortamentoDown, song.CmdTonePortamento,
	song.CmdVibrato, song.CmdTonePortaVol, song.CmdVibratoVol, song.CmdTremolo,
	song.CmdPanning8, song.CmdOffset, song.CmdVolumeSlide, song.CmdPositionJump,
	song.CmdVolume, song.CmdPatternBreak, song.CmdModCmdEx, song.CmdTempo,
	song.CmdGlobalVolume, song.CmdGlobalVolSlide, song.CmdNone, song.CmdNone,
	song.CmdKeyOff, song.CmdSetEnvPosition, song.CmdNone, song.CmdNone,
	song.CmdNone, song.CmdPanningSlide, song.CmdNone, song.CmdNone,
	song.CmdNone, song.CmdNone, song.CmdNone, song.CmdNone,
}

func convertEffect(b, param uint8) (song.Command, uint8) {
	if int(b) >= len(effects) {
		return song.CmdNone, 0
	}
	cmd := effects[b]
	switch cmd {
	case song.CmdArpeggio:
		if param == 0 {
			return song.CmdNone, 0
		}
	case song.CmdPatternBreak:
		param = modcmd.BCD(param)
	case song.CmdVolumeSlide, song.CmdTonePortaVol, song.CmdVibratoVol:
		if param&0xF0 != 0 {
			param &= 0xF0
		}
	case song.CmdVolume, song.CmdGlobalVolume:
		param = min(param, 64)
	case song.CmdModCmdEx:
		switch param >> 4 {
		case 0x3:
			// play backwards
			return song.CmdS3MCmdEx, 0x9F
		case 0x4:
			return song.CmdS3MCmdEx, 0xC0
		case 0x5:
			// channel off and on
			switch param & 0x0F {
			case 0:
				return song.CmdChannelVolume, 0
			case 1:
				return song.CmdChannelVolume, 0x40
			}
		}
	case song.CmdTempo:
		if param <= 0x1F {
			cmd = song.CmdSpeed
		}
	}
	return cmd, param
}

// Format describes DigiBooster Pro modules for format dispatch.
var Format = parser.Format{
	Name:       "DigiBooster Pro",
	Tag:        "dbm",
	Extensions: []string{"dbm"},
	Probe:      Probe,
	Load:       Load,
}
