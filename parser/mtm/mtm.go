// Package mtm loads MultiTracker modules. Patterns are built from shared single-channel
// tracks, so one track can appear in many patterns and channels.
package mtm

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
	maxChannels   = 32
	maxRows       = 64
	trackSize     = maxRows * 3
	numOrders     = 128
	commentWidth  = 40
	sample16Bit   = 0x01
	sampleHdrSize = 37
)

type fileHeader struct {
	Magic         [3]byte // "MTM"
	Version       uint8
	Title         [20]byte
	NumTracks     uint16
	LastPattern   uint8
	LastOrder     uint8
	CommentSize   uint16
	NumSamples    uint8
	Attribute     uint8
	BeatsPerTrack uint8
	NumChannels   uint8
	Panning       [maxChannels]uint8
}

// HeaderSize is the size of fileHeader in the file.
const HeaderSize = 66

type sampleHeader struct {
	Name      [22]byte
	Length    uint32 // bytes
	LoopStart uint32
	LoopEnd   uint32
	Finetune  int8
	Volume    uint8
	Attribute uint8
}

func (h *fileHeader) isValid() bool {
	return string(h.Magic[:]) == "MTM" && h.Version >= 0x10 && h.Version < 0x20 &&
		h.NumChannels >= 1 && h.NumChannels <= maxChannels &&
		h.LastOrder < numOrders && h.BeatsPerTrack <= maxRows
}

func (h *fileHeader) numPatterns() int {
	return int(h.LastPattern) + 1
}

func (h *fileHeader) rows() int {
	if h.BeatsPerTrack == 0 {
		return maxRows
	}
	return int(h.BeatsPerTrack)
}

func (h *fileHeader) additionalSize() int64 {
	return int64(h.NumSamples)*sampleHdrSize + numOrders + int64(h.NumTracks)*trackSize +
		int64(h.numPatterns())*maxChannels*2 + int64(h.CommentSize)
}

// Probe checks for a MultiTracker header.
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

// Load reads a MultiTracker module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		return nil, parser.Truncated(c, "header")
	}
	if !h.isValid() {
		return nil, parser.WrongFormatf("invalid MultiTracker header")
	}
	if !c.CanRead(int(h.additionalSize())) {
		return nil, parser.Truncated(c, "module data")
	}

	s, err := song.New(int(h.NumChannels))
	if err != nil {
		return nil, err
	}
	s.Format = song.FormatInfo{
		Name:    "MultiTracker",
		Type:    "mtm",
		Tracker: fmt.Sprintf("MultiTracker %d.%d", h.Version>>4, h.Version&0x0F),
		Charset: song.CharsetCP437,
	}
	s.Title = song.DecodeName(cursor.TrimString(h.Title[:], cursor.SpacePaddedNull), s.Format.Charset)

	for i := range s.Channels {
		s.Channels[i].Panning = int(h.Panning[i]&0x0F) * 256 / 15
	}

	headers := make([]sampleHeader, h.NumSamples)
	cursor.ReadArray(c, binary.LittleEndian, headers)
	for _, sh := range headers {
		smp := song.NewSample()
		smp.Name = song.DecodeName(cursor.TrimString(sh.Name[:], cursor.NullTerminated), s.Format.Charset)
		smp.Volume = int(min(sh.Volume, 64)) * 4
		// finetune is a signed nibble
		smp.C5Speed = song.ModFinetuneToFrequency(int(sh.Finetune<<4) >> 4)
		smp.Length = int(sh.Length)
		start, end := int(sh.LoopStart), int(sh.LoopEnd)
		if sh.Attribute&sample16Bit != 0 {
			smp.Flags |= song.Sample16Bit
			smp.Length /= 2
			start /= 2
			end /= 2
		}
		smp.SetLoop(start, end, end > start+2, false)
		smp.SanitizeLoops()
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
	}

	var orders [numOrders]uint8
	c.ReadInto(orders[:])
	s.Order = song.ReadOrderFromArray(orders[:int(h.LastOrder)+1], -1, -1)

	// track 0 is the implicit empty track and is not stored
	tracks := c.ReadChunk(int(h.NumTracks) * trackSize)
	trackTable, _ := cursor.ReadVector[uint16](c, binary.LittleEndian, h.numPatterns()*maxChannels)

	if err := s.AllocatePatterns(h.numPatterns()); err != nil {
		return nil, err
	}
	for pat := range h.numPatterns() {
		p, err := l.PatternGrid(s, pat, h.rows())
		if err != nil {
			return nil, err
		}
		for ch := range s.NumChannels() {
			track := int(trackTable[pat*maxChannels+ch])
			if track == 0 {
				continue
			}
			if track > int(h.NumTracks) {
				l.Warnf(int64(HeaderSize), "pattern %d channel %d references missing track %d", pat, ch, track)
				continue
			}
			data := tracks.Bytes()[(track-1)*trackSize : track*trackSize]
			for row := range p.Rows() {
				readCell(data[row*3:row*3+3], p.Cell(row, ch))
			}
		}
	}

	comment, _ := c.ReadBytes(int(h.CommentSize))
	s.Message = song.DecodeMessage(comment, s.Format.Charset, commentWidth)

	if l.WantSamples() {
		for i, smp := range s.Samples {
			offset := c.AbsolutePosition()
			enc := sampleio.Unsigned8
			if smp.Is16Bit() {
				enc = sampleio.Signed16LE
			}
			truncated, err := sampleio.Read(c, smp, enc)
			if err != nil {
				return nil, err
			}
			if truncated {
				l.Warnf(offset, "sample %d is truncated to %d frames", i+1, smp.Length)
			}
		}
	}
	s.SanitizeOrders()
	return s, nil
}

func readCell(b []byte, cell *song.Cell) {
	if n := b[0] >> 2; n != 0 {
		cell.Note = song.NoteMin + 36 + song.Note(n)
	}
	cell.Instrument = (b[0]&0x03)<<4 | b[1]>>4
	cell.SetEffect(modcmd.MOD(b[1]&0x0F, b[2]))
}

// Format describes MultiTracker modules for format dispatch.
var Format = parser.Format{
	Name:       "MultiTracker",
	Tag:        "mtm",
	Extensions: []string{"mtm"},
	Probe:      Probe,
	Load:       Load,
}
