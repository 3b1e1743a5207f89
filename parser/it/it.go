// Package it loads Impulse Tracker modules, including the files written by Schism Tracker,
// OpenMPT and the other trackers that save IT as their native format.
package it

import (
	"encoding/binary"
	"fmt"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	maxChannels    = 64
	maxOrders      = 256
	maxPatterns    = 256
	maxInstruments = 255
	orderStop      = 0xFF
	orderSkip      = 0xFE
	newInstruments = 0x0200 // cmwt from which instruments use the 2.x layout
)

// Header flags.
const (
	flagStereo         = 0x0001
	flagUseInstruments = 0x0004
	flagLinearSlides   = 0x0008
	flagOldEffects     = 0x0010
	flagCompatGxx      = 0x0020
	specialMessage     = 0x0001
)

// Channel panning values.
const (
	panSurround = 100
	panDisabled = 0x80
)

type fileHeader struct {
	Magic          [4]byte
	Name           [26]byte
	Highlight      uint16
	NumOrders      uint16
	NumInstruments uint16
	NumSamples     uint16
	NumPatterns    uint16
	CWTV           uint16 // created with tracker version
	CMWT           uint16 // compatible with tracker version
	Flags          uint16
	Special        uint16
	GlobalVolume   uint8 // 0..128
	MixVolume      uint8
	Speed          uint8
	Tempo          uint8
	Separation     uint8
	PitchWheel     uint8
	MessageLength  uint16
	MessageOffset  uint32
	Reserved       uint32
	ChannelPan     [maxChannels]uint8
	ChannelVolume  [maxChannels]uint8
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 192

func (h *fileHeader) isValid() bool {
	return string(h.Magic[:]) == "IMPM" &&
		h.NumOrders <= maxOrders && h.NumInstruments <= maxInstruments &&
		h.NumSamples <= song.MaxSamples && h.NumPatterns <= maxPatterns
}

func (h *fileHeader) additionalSize() int64 {
	return int64(h.NumOrders) + 4*(int64(h.NumInstruments)+int64(h.NumSamples)+int64(h.NumPatterns))
}

// Probe checks for an IT header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		if c.CanRead(4) && !c.HasMagicAt(0, "IMPM") {
			return parser.ProbeFailure
		}
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, h.additionalSize())
}

func trackerName(h *fileHeader) string {
	major, minor := (h.CWTV>>8)&0x0F, h.CWTV&0xFF
	switch {
	case h.CWTV == 0x0888 || h.CWTV == 0x7FFF:
		return "ModPlug Tracker"
	case h.CWTV>>12 == 0:
		return fmt.Sprintf("Impulse Tracker %d.%02X", major, minor)
	case h.CWTV>>12 == 1:
		return "Schism Tracker"
	case h.CWTV>>12 == 5:
		return fmt.Sprintf("OpenMPT %d.%02X", major, minor)
	}
	return "Unknown"
}

// Load reads an IT module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid IT header")
	}

	orders, ok := c.ReadBytes(int(h.NumOrders))
	if !ok {
		return nil, parser.Truncated(c, "order list")
	}
	insPointers, ok1 := cursor.ReadVector[uint32](c, binary.LittleEndian, int(h.NumInstruments))
	smpPointers, ok2 := cursor.ReadVector[uint32](c, binary.LittleEndian, int(h.NumSamples))
	patPointers, ok3 := cursor.ReadVector[uint32](c, binary.LittleEndian, int(h.NumPatterns))
	if !ok1 || !ok2 || !ok3 {
		return nil, parser.Truncated(c, "parapointers")
	}

	// IT always stores 64 channels; the song gets as many as the patterns use
	numChannels := 1
	for _, ptr := range patPointers {
		numChannels = max(numChannels, usedChannels(c, int(ptr)))
	}
	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{Name: "Impulse Tracker", Type: "it", Tracker: trackerName(&h), Charset: song.CharsetCP437}
	s.Title = song.DecodeName(cursor.TrimString(h.Name[:], cursor.NullTerminated), s.Format.Charset)
	l.Logf("it: %s, %d channels, %d instruments, %d samples", s.Format.Tracker, numChannels, h.NumInstruments, h.NumSamples)

	s.Order = song.ReadOrderFromArray(orders, orderStop, orderSkip)
	s.InitialGlobalVolume = min(int(h.GlobalVolume), 128) * 2
	if h.Speed != 0 {
		s.InitialSpeed = int(h.Speed)
	}
	if h.Tempo >= 32 {
		s.InitialTempo = int(h.Tempo)
	}
	s.Quirks.Set(song.QuirkITCompatible, song.QuirkGlobalVolumeIs128)
	if h.Flags&flagLinearSlides != 0 {
		s.Quirks.Set(song.QuirkLinearSlides)
	}
	if h.Flags&flagOldEffects != 0 {
		s.Quirks.Set(song.QuirkITOldEffects)
	}
	if h.Flags&flagCompatGxx != 0 {
		s.Quirks.Set(song.QuirkITCompatGxx)
	}
	readChannelSettings(&h, s)

	if h.Special&specialMessage != 0 && h.MessageLength > 0 {
		raw := c.ChunkAt(int(h.MessageOffset), int(h.MessageLength))
		if raw.Len() < int(h.MessageLength) {
			l.Warnf(int64(h.MessageOffset), "song message is truncated")
		}
		s.Message = song.DecodeMessage(raw.Bytes(), s.Format.Charset, 0)
	}

	if h.Flags&flagUseInstruments != 0 {
		for i, ptr := range insPointers {
			ins, err := readInstrument(c, int(ptr), h.CMWT >= newInstruments, s.Format.Charset)
			if err != nil {
				l.Warnf(int64(ptr), "instrument %d: %v", i+1, err)
				ins = song.NewInstrument()
			}
			s.Instruments = append(s.Instruments, ins)
		}
	}

	for i, ptr := range smpPointers {
		smp, err := readSample(c, int(ptr), s.Format.Charset, l)
		if err != nil {
			return nil, err
		}
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
		if smp.Flags&song.SampleStereo != 0 {
			s.Quirks.Set(song.QuirkStereoSamples)
		}
		if smp.Length == 0 && ptr != 0 {
			l.Logf("it: sample %d is empty", i+1)
		}
	}
	// instruments may reference samples the file does not have
	for _, ins := range s.Instruments {
		for n, smp := range ins.SampleMap {
			if int(smp) > len(s.Samples) {
				ins.SampleMap[n] = 0
			}
		}
	}

	if err := s.AllocatePatterns(len(patPointers)); err != nil {
		return nil, err
	}
	for pat, ptr := range patPointers {
		if err := readPattern(c, int(ptr), s, pat, l); err != nil {
			return nil, err
		}
	}

	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(HeaderSize, "%d order entries reference missing patterns", n)
	}
	return s, nil
}

func readChannelSettings(h *fileHeader, s *song.Song) {
	for i := range s.Channels {
		ch := &s.Channels[i]
		pan := h.ChannelPan[i]
		ch.Mute = pan&panDisabled != 0
		pan &^= panDisabled
		switch {
		case pan == panSurround:
			ch.Surround = true
			s.Quirks.Set(song.QuirkSurroundChannels)
		case pan <= 64:
			ch.Panning = int(pan) * 4
		}
		if h.Flags&flagStereo == 0 {
			ch.Panning = 128
		}
		ch.Volume = min(int(h.ChannelVolume[i]), 64)
	}
}

// Format describes IT modules for format dispatch.
var Format = parser.Format{
	Name:       "Impulse Tracker",
	Tag:        "it",
	Extensions: []string{"it"},
	Probe:      Probe,
	Load:       Load,
}
