// Package s3m loads Scream Tracker 3 modules and the many trackers that write the same
// layout: Impulse Tracker, Schism Tracker, OpenMPT, Imago Orpheus and others.
package s3m

import (
	"encoding/binary"
	"fmt"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/decompress"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/modcmd"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	maxChannels    = 32
	rowsPerPattern = 64
	fileTypeS3M    = 16
)

// Header flags.
const (
	flagAmigaLimits    = 0x10
	flagFastSlides     = 0x40
	masterVolumeStereo = 0x80
	usePanningTable    = 0xFC
	channelUnused      = 0xFF
	channelMuted       = 0x80
)

type fileHeader struct {
	Name            [28]byte
	DOSEOF          uint8
	FileType        uint8
	Reserved1       [2]byte
	NumOrders       uint16
	NumSamples      uint16
	NumPatterns     uint16
	Flags           uint16
	CWTV            uint16 // created with tracker / version
	FormatVersion   uint16 // 1 = signed samples, 2 = unsigned
	Magic           [4]byte
	GlobalVolume    uint8
	Speed           uint8
	Tempo           uint8
	MasterVolume    uint8
	UltraClick      uint8
	UsePanningTable uint8
	Reserved2       [8]byte
	Special         uint16
	Channels        [maxChannels]uint8
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 96

// Sample types.
const (
	typeEmpty = 0
	typePCM   = 1
	typeAdlib = 2 // 2..7 are the Adlib melody and drum instruments
)

// Sample flags.
const (
	smpLoop   = 0x01
	smpStereo = 0x02
	smp16Bit  = 0x04
)

const packADPCM = 4

type sampleHeader struct {
	Type        uint8
	Filename    [12]byte
	DataPointer [3]byte // high byte first, then a little-endian word; in 16-byte units
	Data        [12]byte
	Volume      uint8
	Reserved    uint8
	Pack        uint8
	Flags       uint8
	C5Speed     uint32
	Reserved2   [12]byte
	Name        [28]byte
	Magic       [4]byte // "SCRS" or "SCRI"
}

// SampleHeaderSize is the size of sampleHeader in the file.
const SampleHeaderSize = 80

func (h *sampleHeader) dataOffset() int {
	return (int(h.DataPointer[0])<<16 | int(h.DataPointer[2])<<8 | int(h.DataPointer[1])) << 4
}

func (h *sampleHeader) length() int    { return int(binary.LittleEndian.Uint32(h.Data[0:])) }
func (h *sampleHeader) loopStart() int { return int(binary.LittleEndian.Uint32(h.Data[4:])) }
func (h *sampleHeader) loopEnd() int   { return int(binary.LittleEndian.Uint32(h.Data[8:])) }

func (h *fileHeader) isValid() bool {
	return string(h.Magic[:]) == "SCRM" && h.FileType == fileTypeS3M
}

func (h *fileHeader) additionalSize() int64 {
	return int64(h.NumOrders) + 2*(int64(h.NumSamples)+int64(h.NumPatterns))
}

// Probe checks for an S3M header.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return parser.ProbeWantMoreData
	}
	if !h.isValid() {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, h.additionalSize())
}

// trackerName identifies the writing tracker from the cwtv field.
func trackerName(h *fileHeader) string {
	major, minor := (h.CWTV>>8)&0x0F, h.CWTV&0xFF
	switch h.CWTV >> 12 {
	case 1:
		return fmt.Sprintf("Scream Tracker %d.%02X", major, minor)
	case 2:
		return fmt.Sprintf("Imago Orpheus %d.%02X", major, minor)
	case 3:
		return fmt.Sprintf("Impulse Tracker %d.%02X", major, minor)
	case 4:
		return "Schism Tracker"
	case 5:
		return fmt.Sprintf("OpenMPT %d.%02X", major, minor)
	case 6:
		return "BeRoTracker"
	case 7:
		return "CreamTracker"
	}
	return "Unknown"
}

// Load reads an S3M module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("missing SCRM tag")
	}

	numChannels := 1
	for i, cs := range h.Channels {
		if cs != channelUnused {
			numChannels = i + 1
		}
	}
	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{Name: "Scream Tracker 3", Type: "s3m", Tracker: trackerName(&h), Charset: song.CharsetCP437}
	s.Title = song.DecodeName(cursor.TrimString(h.Name[:], cursor.NullTerminated), s.Format.Charset)
	l.Logf("s3m: %s, %d channels", s.Format.Tracker, numChannels)

	orders, ok := c.ReadBytes(int(h.NumOrders))
	if !ok {
		return nil, parser.Truncated(c, "order list")
	}
	s.Order = song.ReadOrderFromArray(orders, 0xFF, 0xFE)
	samplePointers, ok := cursor.ReadVector[uint16](c, binary.LittleEndian, int(h.NumSamples))
	if !ok {
		return nil, parser.Truncated(c, "sample pointers")
	}
	patternPointers, ok := cursor.ReadVector[uint16](c, binary.LittleEndian, int(h.NumPatterns))
	if !ok {
		return nil, parser.Truncated(c, "pattern pointers")
	}

	s.InitialGlobalVolume = min(int(h.GlobalVolume), 64) * 4
	if h.Speed != 0 && h.Speed != 0xFF {
		s.InitialSpeed = int(h.Speed)
	}
	if h.Tempo >= 33 {
		s.InitialTempo = int(h.Tempo)
	}
	s.Quirks.Set(song.QuirkST3Compatible)
	if h.Flags&flagFastSlides != 0 || h.CWTV == 0x1300 {
		s.Quirks.Set(song.QuirkFastVolumeSlides)
	}
	if h.Flags&flagAmigaLimits != 0 {
		s.Quirks.Set(song.QuirkAmigaLimits)
	}
	readChannelSettings(c, &h, s, l)

	for _, ptr := range samplePointers {
		smp, err := readSample(c, int(ptr)<<4, &h, s, l)
		if err != nil {
			return nil, err
		}
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
		if smp.Flags&song.SampleAdlib != 0 {
			s.Quirks.Set(song.QuirkOPL)
		}
	}

	if err := s.AllocatePatterns(len(patternPointers)); err != nil {
		return nil, err
	}
	for pat, ptr := range patternPointers {
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

func readChannelSettings(c *cursor.Cursor, h *fileHeader, s *song.Song, l *parser.Loader) {
	stereo := h.MasterVolume&masterVolumeStereo != 0
	for i := range s.Channels {
		cs := h.Channels[i]
		ch := &s.Channels[i]
		ch.Mute = cs != channelUnused && cs&channelMuted != 0
		kind := cs & 0x7F
		if stereo && kind < 16 {
			ch.Panning = 51
			if kind&8 != 0 {
				ch.Panning = 204
			}
		}
	}
	if h.UsePanningTable != usePanningTable {
		return
	}
	pan, ok := c.ReadBytes(maxChannels)
	if !ok {
		l.Warnf(c.AbsolutePosition(), "panning table is truncated")
		return
	}
	for i := range s.Channels {
		if pan[i]&0x20 != 0 {
			s.Channels[i].Panning = int(pan[i]&0x0F) * 256 / 15
		}
	}
}

func readSample(c *cursor.Cursor, pos int, h *fileHeader, s *song.Song, l *parser.Loader) (*song.Sample, error) {
	smp := song.NewSample()
	var sh sampleHeader
	hc := c.ChunkAt(pos, SampleHeaderSize)
	if !cursor.ReadStruct(hc, binary.LittleEndian, &sh) {
		l.Warnf(int64(pos), "sample header is truncated")
		return smp, nil
	}
	smp.Name = song.DecodeName(cursor.TrimString(sh.Name[:], cursor.NullTerminated), s.Format.Charset)
	smp.Filename = song.DecodeName(cursor.TrimString(sh.Filename[:], cursor.NullTerminated), s.Format.Charset)
	smp.Volume = int(min(sh.Volume, 64)) * 4
	smp.C5Speed = sh.C5Speed
	switch {
	case smp.C5Speed == 0:
		smp.C5Speed = 8363
	case smp.C5Speed < 1024:
		smp.C5Speed = 1024
	}

	switch {
	case sh.Type == typeEmpty:
		return smp, nil
	case sh.Type >= typeAdlib:
		smp.Flags |= song.SampleAdlib
		smp.AdlibPatch = &song.AdlibPatch{}
		copy(smp.AdlibPatch[:], sh.Data[:])
		return smp, nil
	}

	smp.Length = min(sh.length(), song.MaxSampleLength)
	smp.SetLoop(sh.loopStart(), sh.loopEnd(), sh.Flags&smpLoop != 0, false)
	smp.SanitizeLoops()
	if !l.WantSamples() {
		return smp, nil
	}

	dataPos := sh.dataOffset()
	if sh.Pack == packADPCM && sh.Flags&(smp16Bit|smpStereo) == 0 {
		data := c.ChunkAt(dataPos, decompress.ADPCM4Size(smp.Length))
		pcm, err := decompress.ADPCM4(data, smp.Length)
		if err != nil {
			l.Warnf(int64(dataPos), "sample %q: %v", smp.Name, err)
			smp.Length = 0
			smp.SanitizeLoops()
			return smp, nil
		}
		sampleio.SetPCM8(smp, pcm)
		return smp, nil
	}

	enc := sampleio.Encoding{Bits: 8, Unsigned: h.FormatVersion == 2}
	if sh.Flags&smp16Bit != 0 {
		enc.Bits = 16
	}
	if sh.Flags&smpStereo != 0 {
		enc.Layout = sampleio.Split
	}
	truncated, err := sampleio.ReadAt(c, dataPos, smp, enc)
	if err != nil {
		return nil, err
	}
	if truncated {
		l.Warnf(int64(dataPos), "sample %q is truncated to %d frames", smp.Name, smp.Length)
	}
	return smp, nil
}

// readNote converts an octave/semitone byte.
func readNote(b uint8) song.Note {
	switch b {
	case 0xFF:
		return song.NoteNone
	case 0xFE:
		return song.NoteCut
	}
	return song.NoteFromOctave(int(b>>4)+1, int(b&0x0F))
}

func readPattern(c *cursor.Cursor, pos int, s *song.Song, pat int, l *parser.Loader) error {
	p, err := l.PatternGrid(s, pat, rowsPerPattern)
	if err != nil {
		return err
	}
	// the stored length word is not reliable, so only the file end bounds the data
	data := c.ChunkAt(pos+2, c.Len()-pos-2)
	row := 0
	for row < rowsPerPattern {
		if data.EOF() {
			l.Warnf(data.AbsolutePosition(), "pattern %d is truncated at row %d", pat, row)
			return nil
		}
		what := data.ReadUint8()
		if what == 0 {
			row++
			continue
		}
		var cell song.Cell
		ok := true
		if what&0x20 != 0 {
			b, got := data.ReadBytes(2)
			ok = got
			if got {
				cell.Note = readNote(b[0])
				cell.Instrument = b[1]
			}
		}
		if ok && what&0x40 != 0 {
			ok = data.CanRead(1)
			v := data.ReadUint8()
			switch {
			case v <= 64:
				cell.SetVolume(song.VolVolume, v)
			case v >= 128 && v <= 192:
				// ModPlug extension
				cell.SetVolume(song.VolPanning, v-128)
			}
		}
		if ok && what&0x80 != 0 {
			b, got := data.ReadBytes(2)
			ok = got
			if got {
				cell.SetEffect(modcmd.S3M(b[0], b[1], modcmd.ScreamTracker))
			}
		}
		if !ok {
			l.Warnf(data.AbsolutePosition(), "pattern %d is truncated at row %d", pat, row)
			return nil
		}
		if ch := int(what & 0x1F); ch < p.Channels() {
			*p.Cell(row, ch) = cell
		}
	}
	return nil
}

// Format describes S3M modules for format dispatch.
var Format = parser.Format{
	Name:       "Scream Tracker 3",
	Tag:        "s3m",
	Extensions: []string{"s3m"},
	Probe:      Probe,
	Load:       Load,
}
