// Package dsym loads Digital Symphony modules (Acorn Archimedes). The sequence, the track
// data and most samples may be packed with LZW; samples may also be stored as µ-law or as
// sigma-delta coded differences.
package dsym

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/decompress"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/modcmd"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	magic          = "\x02\x01\x13\x13\x14\x12\x01\x0B"
	maxChannels    = 8
	maxOrders      = 4096
	maxTracks      = 4096
	numSamples     = 63
	rowsPerPattern = 64
	trackSize      = rowsPerPattern * 4
	tracksPerChunk = 2000
)

type fileHeader struct {
	Magic       [8]byte
	Version     uint8
	NumChannels uint8
	NumOrders   uint16
	NumTracks   uint16
	InfoLength  [3]byte // 24-bit
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 17

// minAdditionalSize is the smallest possible sample table plus title and command mask.
const minAdditionalSize = numSamples + 1 + 8

// Sample storage.
const (
	packULaw       = 0
	packLZWDelta   = 1
	packSigned8    = 2
	packSigned16   = 3
	packSigmaDelta = 4
	packSigmaULaw  = 5
)

func (h *fileHeader) isValid() bool {
	return string(h.Magic[:]) == magic && h.Version <= 1 &&
		h.NumChannels >= 1 && h.NumChannels <= maxChannels &&
		h.NumOrders <= maxOrders && h.NumTracks <= maxTracks
}

func (h *fileHeader) infoLength() int {
	return int(h.InfoLength[0]) | int(h.InfoLength[1])<<8 | int(h.InfoLength[2])<<16
}

// Probe checks for a Digital Symphony header.
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
	return parser.ProbeAdditionalSize(c, fileSize, minAdditionalSize)
}

// readBlock reads a block that is either stored or LZW packed, as told by a leading byte.
func readBlock(c *cursor.Cursor, size int, what string) ([]byte, error) {
	if !c.CanRead(1) {
		return nil, parser.Truncated(c, what)
	}
	switch packing := c.ReadUint8(); packing {
	case 0:
		b, ok := c.ReadBytes(size)
		if !ok {
			return nil, parser.Truncated(c, what)
		}
		return b, nil
	case 1:
		b, err := decompress.LZW(c, size)
		if err != nil {
			return nil, parser.Corruptf("%s: %v", what, err)
		}
		return b, nil
	default:
		return nil, parser.Corruptf("%s: unknown packing %d", what, packing)
	}
}

// Load reads a Digital Symphony module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid Digital Symphony header")
	}

	s, err := song.New(int(h.NumChannels))
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{
		Name:    "Digital Symphony",
		Type:    "dsym",
		Tracker: "Digital Symphony",
		Charset: song.CharsetISO8859_1,
	}

	var nameLength [numSamples]uint8
	var lengths [numSamples]int
	for i := range numSamples {
		if !c.CanRead(1) {
			return nil, parser.Truncated(c, "sample table")
		}
		nameLength[i] = c.ReadUint8()
		if nameLength[i]&0x80 == 0 {
			if !c.CanRead(3) {
				return nil, parser.Truncated(c, "sample table")
			}
			lengths[i] = int(c.ReadUint24LE()) << 1
		}
	}
	title, ok := c.ReadSizedString8()
	if !ok {
		return nil, parser.Truncated(c, "title")
	}
	s.Title = song.DecodeName(cursor.TrimString(title, cursor.SpacePadded), s.Format.Charset)
	var allowed [8]uint8
	if !c.ReadInto(allowed[:]) {
		return nil, parser.Truncated(c, "command mask")
	}
	l.Logf("dsym: version %d, %d channels, %d orders, %d tracks", h.Version, h.NumChannels, h.NumOrders, h.NumTracks)

	s.SetAmigaPanning(64)
	s.Quirks.Set(song.QuirkAmigaLimits)

	var sequence []byte
	if h.NumOrders > 0 {
		if sequence, err = readBlock(c, int(h.NumOrders)*int(h.NumChannels)*2, "sequence"); err != nil {
			return nil, err
		}
	}
	tracks := make([]byte, 0, int(h.NumTracks)*trackSize)
	for first := 0; first < int(h.NumTracks); first += tracksPerChunk {
		n := min(int(h.NumTracks)-first, tracksPerChunk)
		b, err := readBlock(c, n*trackSize, "tracks")
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, b...)
	}

	// every pattern is played exactly once, in file order
	s.Order = make(song.Order, h.NumOrders)
	for i := range s.Order {
		s.Order[i] = song.PatternIndex(i)
	}
	if err := s.AllocatePatterns(int(h.NumOrders)); err != nil {
		return nil, err
	}
	for pat := range int(h.NumOrders) {
		p, err := l.PatternGrid(s, pat, rowsPerPattern)
		if err != nil {
			return nil, err
		}
		for ch := range int(h.NumChannels) {
			track := int(binary.LittleEndian.Uint16(sequence[(pat*int(h.NumChannels)+ch)*2:]))
			if track >= int(h.NumTracks) {
				continue
			}
			for row := range rowsPerPattern {
				off := track*trackSize + row*4
				readCell(tracks[off:off+4], &allowed, p.Cell(row, ch))
			}
		}
	}

	// once the sample area ends, the remaining slots stay empty
	lost := false
	for i := range numSamples {
		smp := song.NewSample()
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
		if lost {
			continue
		}
		name, ok := c.ReadRawString(int(nameLength[i]&0x3F), cursor.NullTerminated)
		if !ok {
			l.Warnf(c.AbsolutePosition(), "sample area ends at sample %d", i+1)
			lost = true
			continue
		}
		smp.Name = song.DecodeName(name, s.Format.Charset)
		if nameLength[i]&0x80 != 0 {
			continue
		}
		smp.Length = min(lengths[i], song.MaxSampleLength)
		if err := readSample(c, smp, i+1, l); err != nil {
			if errors.Is(err, errPackedSkipped) {
				lost = true
				continue
			}
			if !errors.Is(err, parser.ErrTruncated) {
				return nil, err
			}
			l.Warnf(c.AbsolutePosition(), "%v", err)
			smp.Length = 0
			smp.SanitizeLoops()
			lost = true
		}
	}

	if n := h.infoLength(); n > 0 && !lost {
		info, err := readBlock(c, n, "song info")
		if err != nil {
			l.Warnf(c.AbsolutePosition(), "song info: %v", err)
		} else {
			s.Message = song.DecodeMessage(info, s.Format.Charset, 0)
		}
	}
	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(HeaderSize, "%d order entries reference missing patterns", n)
	}
	return s, nil
}

func readSample(c *cursor.Cursor, smp *song.Sample, num int, l *parser.Loader) error {
	if !c.CanRead(8) {
		return parser.Truncated(c, "sample header")
	}
	loopStart := int(c.ReadUint24LE()) << 1
	loopLength := int(c.ReadUint24LE()) << 1
	smp.Volume = int(min(c.ReadUint8(), 64)) * 4
	finetune := int(c.ReadUint8() & 0x0F)
	if finetune > 7 {
		finetune -= 16
	}
	smp.FineTune = int8(finetune * 16)
	smp.C5Speed = song.ModFinetuneToFrequency(finetune)
	smp.SetLoop(loopStart, loopStart+loopLength, loopLength > 2, false)
	smp.SanitizeLoops()
	if smp.Length == 0 {
		return nil
	}

	if !c.CanRead(1) {
		return parser.Truncated(c, "sample data")
	}
	packing := c.ReadUint8()
	if !l.WantSamples() {
		return skipSampleData(c, smp, packing, num)
	}
	offset := c.AbsolutePosition()
	var (
		truncated bool
		err       error
	)
	switch packing {
	case packULaw:
		raw := c.ReadChunk(smp.Length).Bytes()
		truncated = sampleio.SetPCM16(smp, decodeULaw(raw))
	case packLZWDelta:
		var b []byte
		if b, err = decompress.LZW(c, smp.Length); err == nil {
			truncated, err = sampleio.Read(cursor.New(b), smp, sampleio.Delta8)
		}
	case packSigned8:
		truncated, err = sampleio.Read(c, smp, sampleio.Signed8)
	case packSigned16:
		truncated, err = sampleio.Read(c, smp, sampleio.Signed16LE)
	case packSigmaDelta:
		var b []byte
		if b, err = decompress.SigmaDelta(c, smp.Length); err == nil {
			truncated, err = sampleio.Read(cursor.New(b), smp, sampleio.Unsigned8)
		}
	case packSigmaULaw:
		var b []byte
		if b, err = decompress.SigmaDelta(c, smp.Length); err == nil {
			truncated = sampleio.SetPCM16(smp, decodeULaw(b))
		}
	default:
		return parser.Corruptf("sample %d: unknown packing %d", num, packing)
	}
	if errors.Is(err, decompress.ErrStreamExhausted) {
		return errors.Wrapf(parser.ErrTruncated, "sample %d: %v", num, err)
	}
	if err != nil {
		return parser.Corruptf("sample %d: %v", num, err)
	}
	if truncated {
		l.Warnf(offset, "sample %d is truncated to %d frames", num, smp.Length)
	}
	return nil
}

// errPackedSkipped stops the sample walk at packed data that is not being decoded: its
// size is not stored, so the samples after it cannot be found.
var errPackedSkipped = errors.New("packed sample data skipped")

func skipSampleData(c *cursor.Cursor, smp *song.Sample, packing uint8, num int) error {
	size := smp.Length
	switch packing {
	case packULaw, packSigned8:
	case packSigned16:
		size *= 2
	case packLZWDelta, packSigmaDelta, packSigmaULaw:
		return errPackedSkipped
	default:
		return parser.Corruptf("sample %d: unknown packing %d", num, packing)
	}
	if !c.Skip(size) {
		return parser.Truncated(c, "sample data")
	}
	return nil
}

// decodeULaw expands the format's µ-law variant, which stores the sign in the lowest bit
// and the remaining bits inverted.
func decodeULaw(raw []byte) []int16 {
	out := make([]int16, len(raw))
	for i, v := range raw {
		out[i] = decompress.ULawByte(v<<7 | ^v>>1)
	}
	return out
}

// readCell decodes a packed 32-bit track entry: 6 bits note, 6 bits instrument, 6 bits
// command and a 12-bit parameter. Commands not enabled in the song's mask are ignored.
func readCell(b []byte, allowed *[8]uint8, cell *song.Cell) {
	if note := b[0] & 0x3F; note != 0 {
		cell.Note = song.NoteMin + 47 + song.Note(note)
	}
	cell.Instrument = b[0]>>6 | (b[1]&0x0F)<<2
	command := b[1]>>6 | (b[2]&0x0F)<<2
	param := uint16(b[2])>>4 | uint16(b[3])<<4
	if allowed[command>>3]&(1<<(command&7)) == 0 || (command == 0 && param == 0) {
		return
	}
	lo, hi := uint8(param), uint8(param>>8)

	switch command {
	case 0x00, 0x01, 0x02, 0x20, 0x21, 0x22:
		// MOD command with a volume slide in the top nibble
		cell.SetEffect(modcmd.MOD(command&0x0F, lo))
		if hi != 0 {
			vc := song.VolVolSlideUp
			if command >= 0x20 {
				vc = song.VolVolSlideDown
			}
			cell.SetVolume(vc, min(hi, 9))
		}
	case 0x03, 0x04, 0x05, 0x06, 0x07, 0x0B, 0x0C, 0x0F:
		cell.SetEffect(modcmd.MOD(command, lo))
	case 0x09:
		cell.SetEffect(song.CmdOffset, uint8(param>>1))
	case 0x0A, 0x2A:
		if param < 0xFF {
			cell.SetEffect(song.CmdVolumeSlide, lo)
		} else if command == 0x0A {
			cell.SetEffect(song.CmdModCmdEx, 0xA0|hi)
		} else {
			cell.SetEffect(song.CmdModCmdEx, 0xB0|hi)
		}
	case 0x0D:
		// not BCD, unlike ProTracker
		if lo > 63 {
			lo = 0
		}
		cell.SetEffect(song.CmdPatternBreak, lo)
	case 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x19, 0x1C, 0x1D, 0x1E:
		cell.SetEffect(song.CmdModCmdEx, (command&0x0F)<<4|lo&0x0F)
	case 0x2F:
		if param > 0 {
			cell.SetEffect(song.CmdTempo, uint8(min(max(8, int(param)+4)/8, 255)))
		}
	case 0x30:
		readStereo(param, cell)
	}
}

var stereoPositions = [8]uint8{0x00, 0x00, 0x2B, 0x56, 0x80, 0xAA, 0xD4, 0xFF}

func readStereo(param uint16, cell *song.Cell) {
	if param&7 != 0 {
		cell.SetEffect(song.CmdPanning8, stereoPositions[param&7])
		return
	}
	if v := param >> 4; v != 0x80 {
		p := uint8(v)
		if p < 0x80 {
			p += 0x80
		} else {
			p = 0xFF - p
		}
		cell.SetEffect(song.CmdPanning8, p)
	}
}

// Format describes Digital Symphony modules for format dispatch.
var Format = parser.Format{
	Name:       "Digital Symphony",
	Tag:        "dsym",
	Extensions: []string{"dsym"},
	Probe:      Probe,
	Load:       Load,
}
