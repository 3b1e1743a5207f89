// Package pt36 loads ProTracker 3.6 modules: a regular M.K. module wrapped in an IFF
// FORM/MODL container with extra metadata chunks.
package pt36

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/mod"
	"github.com/QEStudios/TrackerLoader/song"
)

type chunkHeader struct {
	ID     [4]byte
	Length uint32
}

// infoChunk is the body of the INFO chunk.
type infoChunk struct {
	Name        [32]byte
	NumSamples  uint16
	NumOrders   uint16
	NumPatterns uint16
	Volume      uint16
	Tempo       uint16
	Flags       uint16
	DateDay     uint16
	DateMonth   uint16
	DateYear    uint16
	DateHour    uint16
	DateMinute  uint16
	DateSecond  uint16
	PlayHours   uint16
	PlayMinutes uint16
	PlaySeconds uint16
	PlayMillis  uint16
}

// commentChunk is the fixed part of the CMNT chunk; the comment text follows.
type commentChunk struct {
	Author [32]byte
}

const formHeaderSize = 12

// Probe checks for the IFF container and a VERS chunk claiming ProTracker 3.6.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	if !c.CanRead(formHeaderSize + 8) {
		return parser.ProbeWantMoreData
	}
	if !c.ReadMagic("FORM") {
		return parser.ProbeFailure
	}
	c.Skip(4)
	if !c.ReadMagic("MODL") {
		return parser.ProbeFailure
	}
	var vers chunkHeader
	cursor.ReadStruct(c, binary.BigEndian, &vers)
	if string(vers.ID[:]) != "VERS" {
		return parser.ProbeFailure
	}
	return parser.ProbeAdditionalSize(c, fileSize, int64(vers.Length))
}

// chunks returns the chunks of the FORM body keyed by ID. Later duplicates are ignored.
func chunks(c *cursor.Cursor) map[string]*cursor.Cursor {
	found := map[string]*cursor.Cursor{}
	for c.CanRead(8) {
		var hdr chunkHeader
		cursor.ReadStruct(c, binary.BigEndian, &hdr)
		body := c.ReadChunk(int(min(hdr.Length, uint32(c.Remaining()))))
		if hdr.Length%2 == 1 {
			c.Skip(1)
		}
		id := string(hdr.ID[:])
		if _, ok := found[id]; !ok {
			found[id] = body
		}
	}
	return found
}

// Load reads a ProTracker 3.6 module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	if !c.ReadMagic("FORM") {
		return nil, parser.WrongFormatf("missing FORM header")
	}
	formLen := int(c.ReadUint32BE())
	if !c.ReadMagic("MODL") {
		return nil, parser.WrongFormatf("FORM type is not MODL")
	}
	body := c.ReadChunk(formLen - 4)
	found := chunks(body)

	ptdt, ok := found["PTDT"]
	if !ok {
		return nil, parser.Truncated(c, "PTDT chunk")
	}
	if mod.Probe(ptdt, parser.UnknownSize) != parser.ProbeSuccess {
		return nil, parser.Corruptf("PTDT chunk does not contain a valid module")
	}
	ptdt.Rewind()
	s, err := mod.Load(ptdt, l)
	if err != nil {
		return nil, err
	}
	s.Format.Name = "ProTracker 3.6"
	s.Format.Type = "pt36"
	s.Format.Tracker = "ProTracker 3.6"
	// VERS holds a version word followed by the version string
	if vers, ok := found["VERS"]; ok && vers.Skip(2) {
		if v, ok := vers.ReadRawString(vers.Remaining(), cursor.SpacePaddedNull); ok && len(v) > 0 {
			s.Format.Tracker = song.DecodeName(v, s.Format.Charset)
		}
	}

	if info, ok := found["INFO"]; ok {
		var hdr infoChunk
		if cursor.ReadStructPartial(info, binary.BigEndian, &hdr, info.Len()) {
			if name := cursor.TrimString(hdr.Name[:], cursor.SpacePaddedNull); len(name) > 0 {
				s.Title = song.DecodeName(name, s.Format.Charset)
			}
			if hdr.Tempo >= 32 && hdr.Tempo <= 255 {
				s.InitialTempo = int(hdr.Tempo)
			}
		}
	}
	if cmnt, ok := found["CMNT"]; ok {
		var hdr commentChunk
		if cursor.ReadStruct(cmnt, binary.BigEndian, &hdr) {
			s.Artist = song.DecodeName(cursor.TrimString(hdr.Author[:], cursor.SpacePaddedNull), s.Format.Charset)
			s.Message = song.DecodeMessage(cmnt.PeekBytes(cmnt.Remaining()), s.Format.Charset, 0)
		}
	}
	return s, nil
}

// Format describes ProTracker 3.6 IFF modules for format dispatch.
var Format = parser.Format{
	Name:       "ProTracker 3.6",
	Tag:        "pt36",
	Extensions: []string{"pt36"},
	Probe:      Probe,
	Load:       Load,
}
