// Package mod loads ProTracker-style modules with 31 samples and a four-character tag at
// offset 1080, including the multi-channel variants written by FastTracker, TakeTracker,
// Startrekker and Mod's Grave.
package mod

import (
	"encoding/binary"
	"strconv"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/decompress"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/amiga"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	numSamples     = 31
	rowsPerPattern = 64
	maxOrders      = 128
)

type fileHeader struct {
	Title     [20]byte
	Samples   [numSamples]amiga.SampleHeader
	NumOrders uint8
	Restart   uint8
	Orders    [maxOrders]uint8
	Magic     [4]byte
}

// HeaderSize is the size of the MOD header up to and including the tag.
const HeaderSize = 1084

// tagInfo is what a tag says about the file layout.
type tagInfo struct {
	channels int
	tracker  string
	flt8     bool // 8 channels stored as pairs of 4-channel patterns
	ft2      bool // written by a PC tracker with FastTracker effect semantics
}

func identify(magic [4]byte) (tagInfo, bool) {
	tag := string(magic[:])
	switch tag {
	case "M.K.", "M!K!":
		return tagInfo{channels: 4, tracker: "ProTracker"}, true
	case "M&K!", "N.T.":
		return tagInfo{channels: 4, tracker: "NoiseTracker"}, true
	case "FEST":
		return tagInfo{channels: 4, tracker: "His Master's NoiseTracker"}, true
	case "FLT4":
		return tagInfo{channels: 4, tracker: "Startrekker"}, true
	case "FLT8":
		return tagInfo{channels: 8, tracker: "Startrekker", flt8: true}, true
	case "CD81", "OKTA", "OCTA":
		return tagInfo{channels: 8, tracker: "Oktalyser"}, true
	}
	isDigit := func(b byte) bool { return b >= '0' && b <= '9' }
	switch {
	case isDigit(magic[0]) && tag[1:] == "CHN":
		if ch := int(magic[0] - '0'); ch > 0 {
			return tagInfo{channels: ch, tracker: "FastTracker", ft2: true}, true
		}
	case isDigit(magic[0]) && isDigit(magic[1]) && (tag[2:] == "CH" || tag[2:] == "CN"):
		ch, _ := strconv.Atoi(tag[:2])
		if ch > 0 && ch <= 32 {
			return tagInfo{channels: ch, tracker: "FastTracker", ft2: true}, true
		}
	case tag[:3] == "TDZ" && isDigit(magic[3]):
		if ch := int(magic[3] - '0'); ch > 0 {
			return tagInfo{channels: ch, tracker: "TakeTracker"}, true
		}
	}
	return tagInfo{}, false
}

// patternCounts returns the pattern count implied by all 128 order entries, which is how
// ProTracker counts, and by the played part of the order list only.
func (h *fileHeader) patternCounts(flt8 bool) (all, played int) {
	for i, o := range h.Orders {
		if o >= 0x80 {
			continue
		}
		if flt8 {
			o /= 2
		}
		all = max(all, int(o)+1)
		if i < int(h.NumOrders) {
			played = max(played, int(o)+1)
		}
	}
	return all, played
}

func (h *fileHeader) sampleDataSize() int64 {
	var n int64
	for _, smp := range h.Samples {
		n += int64(smp.Length) * 2
	}
	return n
}

func patternDataSize(numPatterns int, info tagInfo) int64 {
	if info.flt8 {
		return int64(numPatterns) * 2 * rowsPerPattern * 4 * amiga.CellSize
	}
	return int64(numPatterns) * rowsPerPattern * int64(info.channels) * amiga.CellSize
}

func readHeader(c *cursor.Cursor, h *fileHeader) bool {
	return cursor.ReadStruct(c, binary.BigEndian, h)
}

func (h *fileHeader) isValid() (tagInfo, bool) {
	info, ok := identify(h.Magic)
	if !ok || h.NumOrders == 0 || h.NumOrders > maxOrders {
		return tagInfo{}, false
	}
	invalid := 0
	for i := range h.Samples {
		invalid += h.Samples[i].InvalidBytes()
	}
	if invalid > 40 {
		return tagInfo{}, false
	}
	return info, true
}

// Probe checks for a tagged 31-sample module.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	var h fileHeader
	if !readHeader(c, &h) {
		return parser.ProbeWantMoreData
	}
	info, ok := h.isValid()
	if !ok {
		return parser.ProbeFailure
	}
	_, played := h.patternCounts(info.flt8)
	return parser.ProbeAdditionalSize(c, fileSize, patternDataSize(played, info))
}

// isModsGrave detects Mod's Grave files, which use the M.K. tag for 8-channel patterns.
// The only way to tell is that the file size matches the 8-channel layout exactly.
func isModsGrave(h *fileHeader, numPatterns int, fileSize int64) bool {
	if string(h.Magic[:]) != "M.K." || fileSize == parser.UnknownSize {
		return false
	}
	eight := tagInfo{channels: 8}
	return fileSize == HeaderSize+patternDataSize(numPatterns, eight)+h.sampleDataSize()
}

// Load reads a tagged 31-sample module.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	var h fileHeader
	if !readHeader(c, &h) {
		return nil, parser.Truncated(c, "header")
	}
	info, ok := h.isValid()
	if !ok {
		return nil, parser.WrongFormatf("unknown MOD tag %q", h.Magic[:])
	}

	all, played := h.patternCounts(info.flt8)
	numPatterns := all
	if int64(c.Remaining()) < patternDataSize(all, info) {
		numPatterns = played
	}
	formatType := "mod"
	if isModsGrave(&h, numPatterns, l.FileSize()) {
		info = tagInfo{channels: 8, tracker: "Mod's Grave"}
		formatType = "wow"
	}

	s, err := song.New(info.channels)
	if err != nil {
		return nil, err
	}
	s.Title = song.DecodeName(cursor.TrimString(h.Title[:], cursor.SpacePaddedNull), song.CharsetISO8859_1)
	s.Format = song.FormatInfo{
		Name:    "ProTracker MOD",
		Type:    formatType,
		Tracker: info.tracker,
		Charset: song.CharsetISO8859_1,
	}
	if !c.CanRead(int(patternDataSize(numPatterns, info))) {
		return nil, parser.Truncated(c, "pattern data")
	}

	orders := h.Orders[:h.NumOrders]
	if info.flt8 {
		for i := range orders {
			orders[i] /= 2
		}
	}
	s.Order = song.ReadOrderFromArray(orders, -1, -1)
	if h.Restart < h.NumOrders && h.Restart != 0x7F {
		s.RestartPosition = int(h.Restart)
	}
	s.SetAmigaPanning(128)
	if info.ft2 {
		s.Quirks.Set(song.QuirkFT2Compatible)
	} else {
		s.Quirks.Set(song.QuirkProTrackerOffset, song.QuirkProTrackerLoops)
		if info.channels == 4 {
			s.Quirks.Set(song.QuirkAmigaLimits)
		}
	}

	for i := range h.Samples {
		if _, err := s.AddSample(h.Samples[i].ConvertSample(s.Format.Charset)); err != nil {
			return nil, err
		}
	}

	if err := s.AllocatePatterns(numPatterns); err != nil {
		return nil, err
	}
	for pat := range numPatterns {
		p, err := l.PatternGrid(s, pat, rowsPerPattern)
		if err != nil {
			return nil, err
		}
		if info.flt8 {
			ok = amiga.ReadPattern(c, p, 0, 4) && amiga.ReadPattern(c, p, 4, 4)
		} else {
			ok = amiga.ReadPattern(c, p, 0, info.channels)
		}
		if !ok {
			return nil, parser.Truncated(c, "pattern data")
		}
	}

	if l.WantSamples() {
		if err := ReadSampleData(c, s, l); err != nil {
			return nil, err
		}
	}
	if n := s.SanitizeOrders(); n > 0 {
		l.Warnf(952, "%d order entries reference missing patterns", n)
	}
	return s, nil
}

// ReadSampleData reads signed 8-bit sample data for every sample of s in order. Samples
// that start with an "ADPCM" marker are ModPlug 4-bit ADPCM. A file that ends early
// shortens the affected samples with a warning.
func ReadSampleData(c *cursor.Cursor, s *song.Song, l *parser.Loader) error {
	for i, smp := range s.Samples {
		if smp.Length == 0 {
			continue
		}
		offset := c.AbsolutePosition()
		if c.HasMagicAt(c.Position(), "ADPCM") && c.CanRead(5+decompress.ADPCM4Size(smp.Length)) {
			c.Skip(5)
			data, err := decompress.ADPCM4(c, smp.Length)
			if err != nil {
				return err
			}
			sampleio.SetPCM8(smp, data)
			continue
		}
		truncated, err := sampleio.Read(c, smp, sampleio.Signed8)
		if err != nil {
			return err
		}
		if truncated {
			l.Warnf(offset, "sample %d is truncated to %d bytes", i+1, smp.Length)
		}
	}
	return nil
}

// Format describes tagged 31-sample modules for format dispatch.
var Format = parser.Format{
	Name:       "ProTracker MOD",
	Tag:        "mod",
	Extensions: []string{"mod", "wow"},
	Probe:      Probe,
	Load:       Load,
}
