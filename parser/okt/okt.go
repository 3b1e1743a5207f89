// Package okt loads Oktalyzer modules. The file is a list of IFF-style chunks; each of the
// four Amiga voices can be split into two software-mixed channels.
package okt

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/iff"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	magic           = "OKTASONG"
	numVoices       = 4
	maxOrders       = 128
	cellSize        = 4
	numNotes        = 36
	oktC5Speed      = 8287
	amigaSeparation = 128
)

// HeaderSize covers the magic and the header of the mandatory first chunk.
const HeaderSize = 16

type sampleHeader struct {
	Name       [20]byte
	Length     uint32 // bytes
	LoopStart  uint16 // words
	LoopLength uint16 // words
	Volume     uint16
	Type       uint16 // 0: 7-bit, 1: 8-bit, 2: both
}

// SampleHeaderSize is the size of sampleHeader in the file.
const SampleHeaderSize = 32

// Probe checks for the Oktalyzer magic followed by the channel mode chunk.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	head := c.PeekBytes(HeaderSize)
	if head == nil {
		if c.CanRead(len(magic)) && !c.HasMagicAt(0, magic) {
			return parser.ProbeFailure
		}
		return parser.ProbeWantMoreData
	}
	if string(head[:8]) != magic || string(head[8:12]) != "CMOD" || binary.BigEndian.Uint32(head[12:]) != 2*numVoices {
		return parser.ProbeFailure
	}
	c.Skip(HeaderSize)
	return parser.ProbeAdditionalSize(c, fileSize, 2*numVoices)
}

// Load reads an Oktalyzer module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	if !c.ReadMagic(magic) {
		return nil, parser.WrongFormatf("missing Oktalyzer magic")
	}
	chunks, truncated := iff.Read(c)
	cmod, ok := chunks.Get("CMOD")
	if !ok || cmod.Data.Len() < 2*numVoices {
		return nil, parser.WrongFormatf("missing channel mode chunk")
	}

	var split [numVoices]bool
	numChannels := 0
	for i := range split {
		split[i] = cmod.Data.ReadUint16BE() != 0
		numChannels++
		if split[i] {
			numChannels++
		}
	}
	s, err := song.New(numChannels)
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{
		Name:    "Oktalyzer",
		Type:    "okt",
		Tracker: "Oktalyzer",
		Charset: song.CharsetISO8859_1,
	}
	l.Logf("okt: %d channels, %d chunks", numChannels, len(chunks))
	if truncated {
		l.Warnf(c.AbsolutePosition(), "last chunk is truncated")
	}

	// split voices keep the side of the voice they belong to
	idx := 0
	for i, sp := range split {
		pan := 128 - amigaSeparation/2
		if i == 1 || i == 2 {
			pan = 128 + amigaSeparation/2
		}
		s.Channels[idx].Panning = pan
		idx++
		if sp {
			s.Channels[idx].Panning = pan
			idx++
		}
	}
	s.Quirks.Set(song.QuirkAmigaLimits, song.QuirkVBlankTiming)

	if ch, ok := chunks.Get("SAMP"); ok {
		headers, _ := cursor.ReadVector[sampleHeader](ch.Data, binary.BigEndian, ch.Data.Len()/SampleHeaderSize)
		for _, sh := range headers {
			if _, err := s.AddSample(convertSample(&sh, s.Format.Charset)); err != nil {
				return nil, err
			}
		}
	}
	if ch, ok := chunks.Get("SPEE"); ok && ch.Data.CanRead(2) {
		if speed := int(ch.Data.ReadUint16BE()); speed > 0 {
			s.InitialSpeed = speed
		}
	}
	numPatterns := 0
	if ch, ok := chunks.Get("SLEN"); ok && ch.Data.CanRead(2) {
		numPatterns = int(ch.Data.ReadUint16BE())
	}
	numOrders := 0
	if ch, ok := chunks.Get("PLEN"); ok && ch.Data.CanRead(2) {
		numOrders = min(int(ch.Data.ReadUint16BE()), maxOrders)
	}
	if ch, ok := chunks.Get("PATT"); ok {
		orders := ch.Data.Bytes()
		s.Order = song.ReadOrderFromArray(orders[:min(numOrders, len(orders))], -1, -1)
	}

	bodies := chunks.All("PBOD")
	if len(bodies) < numPatterns {
		l.Warnf(c.AbsolutePosition(), "%d of %d patterns are missing", numPatterns-len(bodies), numPatterns)
		numPatterns = len(bodies)
	}
	if err := s.AllocatePatterns(numPatterns); err != nil {
		return nil, err
	}
	for pat, body := range bodies[:numPatterns] {
		if err := readPattern(body, s, pat, l); err != nil {
			return nil, err
		}
	}

	if l.WantSamples() {
		readSamples(chunks.All("SBOD"), s, l)
	}
	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(0, "%d order entries reference missing patterns", n)
	}
	return s, nil
}

func convertSample(sh *sampleHeader, cs song.Charset) *song.Sample {
	smp := song.NewSample()
	smp.Name = song.DecodeName(cursor.TrimString(sh.Name[:], cursor.NullTerminated), cs)
	smp.Volume = int(min(sh.Volume, 64)) * 4
	smp.C5Speed = oktC5Speed
	smp.Length = min(int(sh.Length), song.MaxSampleLength)
	start, length := int(sh.LoopStart)*2, int(sh.LoopLength)*2
	smp.SetLoop(start, start+length, length > 2, false)
	smp.SanitizeLoops()
	return smp
}

// readSamples assigns the sample bodies, in order, to the samples that have a length.
func readSamples(bodies []iff.Chunk, s *song.Song, l *parser.Loader) {
	next := 0
	for i, smp := range s.Samples {
		if smp.Length == 0 {
			continue
		}
		if next >= len(bodies) {
			l.Warnf(0, "sample %d has no data", i+1)
			smp.Length = 0
			smp.SanitizeLoops()
			continue
		}
		body := bodies[next]
		next++
		if truncated, _ := sampleio.Read(body.Data, smp, sampleio.Signed8); truncated {
			l.Warnf(body.Offset, "sample %d is truncated to %d frames", i+1, smp.Length)
		}
	}
}

func readPattern(body iff.Chunk, s *song.Song, pat int, l *parser.Loader) error {
	data := body.Data
	if !data.CanRead(2) {
		l.Warnf(body.Offset, "pattern %d has no row count", pat)
		return nil
	}
	rows := int(data.ReadUint16BE())
	if rows < 1 || rows > song.MaxRows {
		l.Warnf(body.Offset, "pattern %d has %d rows", pat, rows)
		return nil
	}
	p, err := l.PatternGrid(s, pat, rows)
	if err != nil {
		return err
	}
	for row := range rows {
		for ch := range p.Channels() {
			b, ok := data.ReadBytes(cellSize)
			if !ok {
				l.Warnf(data.AbsolutePosition(), "pattern %d is truncated at row %d", pat, row)
				return nil
			}
			readCell(b, p.Cell(row, ch))
		}
	}
	return nil
}

func readCell(b []byte, cell *song.Cell) {
	note, instr, eff, param := b[0], b[1], b[2], b[3]
	if note > 0 && note <= numNotes {
		cell.Note = song.NoteMiddleC - 13 + song.Note(note)
		cell.Instrument = instr + 1
	}
	switch eff {
	case 1:
		if param != 0 {
			cell.SetEffect(song.CmdPortamentoUp, param&0x0F)
		}
	case 2:
		if param != 0 {
			cell.SetEffect(song.CmdPortamentoDown, param&0x0F)
		}
	case 10, 11, 12:
		// the three arpeggio flavours differ only in step order
		if param != 0 {
			cell.SetEffect(song.CmdArpeggio, param)
		}
	case 13, 21:
		if param != 0 {
			cell.SetEffect(song.CmdNoteSlideDown, 0x10|min(param, 0x0F))
		}
	case 17, 30:
		if param != 0 {
			cell.SetEffect(song.CmdNoteSlideUp, 0x10|min(param, 0x0F))
		}
	case 25:
		cell.SetEffect(song.CmdPositionJump, param)
	case 27:
		cell.SetEffect(song.CmdKeyOff, 0)
	case 28:
		if param&0x0F != 0 {
			cell.SetEffect(song.CmdSpeed, param&0x0F)
		}
	case 31:
		readVolume(param, cell)
	}
}

// readVolume decodes the V command: 00-40 sets the volume, 41-4F and 50-5F slide down
// and up every tick, 60-6F and 70-7F slide once.
func readVolume(param uint8, cell *song.Cell) {
	x := param & 0x0F
	switch {
	case param <= 0x40:
		cell.SetVolume(song.VolVolume, param)
	case param < 0x50:
		cell.SetEffect(song.CmdVolumeSlide, x)
	case param < 0x60:
		cell.SetEffect(song.CmdVolumeSlide, x<<4)
	case param < 0x70:
		cell.SetEffect(song.CmdVolumeSlide, 0xF0|min(x, 0x0E))
	case param < 0x80:
		cell.SetEffect(song.CmdVolumeSlide, min(x, 0x0E)<<4|0x0F)
	}
}

// Format describes Oktalyzer modules for format dispatch.
var Format = parser.Format{
	Name:       "Oktalyzer",
	Tag:        "okt",
	Extensions: []string{"okt", "okta"},
	Probe:      Probe,
	Load:       Load,
}
