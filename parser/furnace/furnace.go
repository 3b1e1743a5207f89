// Package furnace loads the plain-text export written by the Furnace chiptune tracker.
// Only the first subsong is converted. Sound chips are kept for channel naming and volume
// scaling, and every Furnace instrument becomes an empty sample slot so that cells keep
// their instrument numbers.
package furnace

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/song"
)

const signature = "# Furnace Text Export"

// A struct to store a range of Furnace version numbers, used for checking version compatibility for the text exports.
type versionRange struct {
	min, max int
}

// A slice containing the compatible versions of Furnace text exports that this parser can handle.
var supportedRanges = []versionRange{
	{232, 232},
}

// isVersionSupported checks if the given Furnace version number is supported by this parser, and returns true if it is, else it returns false.
func isVersionSupported(version int) bool {
	for _, r := range supportedRanges {
		if version >= r.min && version <= r.max {
			return true
		}
	}
	return false
}

// A song composition, which can contain multiple subsongs.
type module struct {
	Version int     // The version integer of Furnace that exported this song
	Name    string  // The name of the song.
	Author  string  // The author of the song.
	Album   string  // The album the song is a part of.
	Tuning  float64 // The frequency that A4 maps to in this song (usually 440 hz).

	Chips       []*soundChip
	Instruments []string
	Subsongs    []*subsong
}

// A single sound chip of the song's system.
type soundChip struct {
	Index int
	Name  string
	ID    string
	Flags map[string]string
}

// A single subsong inside a whole song composition.
type subsong struct {
	Index         int
	Name          string  // The name of the subsong (can be blank).
	TickRate      float64 // The (starting) tick rate of the song.
	PatternLength int

	// A slice of up to 16 speed values, where the values cycle every tick.
	// Only the first one is used.
	Speeds       []uint8
	TimeBase     int    // The speeds are multiplied by this number + 1.
	VirtualTempo [2]int // numerator, denominator

	Orders []*orderBlock
}

// The rows printed under one "----- ORDER" heading.
type orderBlock struct {
	Line int
	Rows []row
}

type row struct {
	Line  int
	Notes []note
}

type note struct {
	Pitch    int // MIDI note number
	HasPitch bool
	Off      bool
	Release  bool

	Instrument    int
	HasInstrument bool

	Volume    uint8
	HasVolume bool

	Effects []effect
}

type effect struct {
	ID       uint8
	Value    uint8
	HasValue bool
}

var noteBase = map[byte]int{
	'C': 0,
	'D': 2,
	'E': 4,
	'F': 5,
	'G': 7,
	'A': 9,
	'B': 11,
}

/*
isValidPitchString returns true if the given pitch string is valid, otherwise returns false.

The pitch string is always 3 characters.
The first character of the pitch string should be a capital letter in the range of A-G.
The second character should be:

- '#' if the pitch is sharp and the octave is >= 0,

- '+' if the pitch is sharp and the octave is < 0,

- '-' if the pitch is natural and the octave is >= 0, or

- '_' if the pitch is natural and the octave is < 0.

The third character is a digit '0'..'9' representing the absolute value of the octave.
Negative octaves (where the second char == '+' or '_') are only allowed when that digit is <= 5.
*/
func isValidPitchString(pitchString string) bool {
	if len(pitchString) != 3 {
		return false
	}

	upperString := strings.ToUpper(pitchString)
	first := upperString[0]
	second := upperString[1]
	third := upperString[2]

	if _, ok := noteBase[first]; !ok {
		return false
	}
	if third < '0' || third > '9' {
		return false
	}
	absoluteOctave := int(third - '0')

	switch second {
	case '#', '+', '-', '_':
		// ok
	default:
		return false
	}
	if (second == '+' || second == '_') && absoluteOctave > 5 {
		return false
	}

	return true
}

// parsePitchString parses a pitch string and returns a MIDI note number, which is negative
// for the lowest octaves.
func parsePitchString(pitchString string) (int, error) {
	if !isValidPitchString(pitchString) {
		return 0, fmt.Errorf("invalid pitch string '%s'", pitchString)
	}

	upperString := strings.ToUpper(pitchString)
	first := upperString[0]
	second := upperString[1]
	octave := int(upperString[2] - '0')

	// Accidentals of '+' or '_' indicate a negative octave.
	if second == '+' || second == '_' {
		octave = -octave
	}
	accidental := 0
	if second == '#' || second == '+' {
		accidental = 1
	}
	return (octave+1)*12 + noteBase[first] + accidental, nil
}

// parseHexField parses a two-character field that is either ".." or a hex byte.
func parseHexField(s, what string) (v uint8, ok bool, err error) {
	if s == ".." {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s string '%s'", what, s)
	}
	return uint8(n), true, nil
}

// parseEffectString parses a four-character effect column. The id is always present; the
// value may be "..".
func parseEffectString(effectString string) (effect, error) {
	if len(effectString) != 4 {
		return effect{}, fmt.Errorf("invalid effect string '%s'", effectString)
	}
	id, err := strconv.ParseUint(effectString[0:2], 16, 8)
	if err != nil {
		return effect{}, fmt.Errorf("invalid effect string '%s'", effectString)
	}
	value, hasValue, err := parseHexField(effectString[2:4], "effect value")
	if err != nil {
		return effect{}, err
	}
	return effect{ID: uint8(id), Value: value, HasValue: hasValue}, nil
}

// parseNote accepts a note string, which is a combination of a pitch, instrument, volume,
// and any number of effects.
func parseNote(noteString string) (note, error) {
	// Remove any whitespace
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, noteString)

	// 3 (pitch) + 2 (instrument) + 2 (volume) + 4 for every effect.
	if len(cleaned) < 7 || (len(cleaned)-7)%4 != 0 {
		return note{}, fmt.Errorf("invalid note string: %s", noteString)
	}

	var n note
	switch pitchString := cleaned[0:3]; pitchString {
	case "...":
	case "OFF":
		n.Off = true
	case "===", "REL", "MRL":
		n.Release = true
	default:
		pitch, err := parsePitchString(pitchString)
		if err != nil {
			return note{}, err
		}
		n.Pitch, n.HasPitch = pitch, true
	}

	ins, ok, err := parseHexField(cleaned[3:5], "instrument")
	if err != nil {
		return note{}, err
	}
	n.Instrument, n.HasInstrument = int(ins), ok

	if n.Volume, n.HasVolume, err = parseHexField(cleaned[5:7], "volume"); err != nil {
		return note{}, err
	}

	for i := 7; i < len(cleaned); i += 4 {
		effectString := cleaned[i : i+4]
		if effectString == "...." {
			// Don't store empty effects.
			continue
		}
		e, err := parseEffectString(effectString)
		if err != nil {
			return note{}, err
		}
		n.Effects = append(n.Effects, e)
	}
	return n, nil
}

// A key and a value, used for key-value list elements.
type listElement struct {
	key   string
	value string
}

// Parses a line containing a list element into a listElement struct.
func parseListElement(s string) (*listElement, error) {
	idx := strings.Index(s, ":")
	if idx == -1 {
		return nil, fmt.Errorf("invalid list element: %s", s)
	}

	key := strings.TrimSpace(s[:idx])
	value := strings.TrimSpace(s[idx+1:])

	key, found := strings.CutPrefix(key, "- ")
	if !found {
		return nil, fmt.Errorf("invalid list element: %s", s)
	}

	return &listElement{key: key, value: value}, nil
}

// parseSpeedsList parses a string containing 1..16 positive non-zero integers
// separated by whitespace.
func (p *Parser) parseSpeedsList(s string) ([]uint8, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("expected 1..16 numbers, got none")
	}
	if len(tokens) > 1 {
		p.addWarning("groove of %d speeds is not supported, using the first speed", len(tokens))
	}
	if len(tokens) > 16 {
		p.addWarning("speeds list contains %d numbers, only first 16 will be used", len(tokens))
	}

	count := min(16, len(tokens))
	out := make([]uint8, 0, count)
	for i := 0; i < count; i++ {
		token := tokens[i]
		v, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("token %d (%q) in speeds list is not a valid integer: %w", i+1, token, err)
		}
		if v <= 0 || v >= 256 {
			return nil, fmt.Errorf("token %d (%q) in speeds list must be in the range 1..255", i+1, token)
		}
		out = append(out, uint8(v))
	}
	return out, nil
}

// parseVirtualTempo parses "numerator/denominator".
func parseVirtualTempo(s string) ([2]int, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return [2]int{}, fmt.Errorf("invalid virtual tempo %q", s)
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(num))
	d, err2 := strconv.Atoi(strings.TrimSpace(den))
	if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
		return [2]int{}, fmt.Errorf("invalid virtual tempo %q", s)
	}
	return [2]int{n, d}, nil
}

// Parser reads one Furnace text export.
type Parser struct {
	scanner    *bufio.Scanner
	loader     *parser.Loader
	lineNumber int
	state      string
	mod        module

	// Generic per-state context storage.
	stateCtx map[string]any

	// Parsing can only be done once per Parser.
	used bool
}

// NewParser creates a new parser to parse a file. Warnings are recorded on l.
func NewParser(r io.Reader, l *parser.Loader) *Parser {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	return &Parser{
		scanner:  scanner,
		loader:   l,
		state:    "signature", // Parser starts looking for the signature initially.
		mod:      module{Tuning: 440},
		stateCtx: make(map[string]any),
	}
}

// addWarning adds to the list of warnings encountered when parsing.
func (p *Parser) addWarning(format string, args ...any) {
	p.loader.WarnLinef(p.lineNumber, format, args...)
}

func (p *Parser) fatalf(format string, args ...any) error {
	return parser.Corruptf("line %d: %s", p.lineNumber, fmt.Sprintf(format, args...))
}

// setState saves an arbitrary value for a given state name.
func (p *Parser) setState(name string, v any) {
	p.stateCtx[name] = v
}

// getState returns the stored value for name and whether it existed.
// Usage: st, ok := getState[*boolMap](p, "song information")
func getState[T any](p *Parser, name string) (T, bool) {
	var zero T
	v, ok := p.stateCtx[name]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

type boolMap struct {
	Ctx map[string]bool
}

// missing lists the keys that have not been seen, ignoring the given state flags, and
// resets every key for the next block.
func (b *boolMap) missing(flags ...string) []string {
	var out []string
	for key, seen := range b.Ctx {
		if slices.Contains(flags, key) {
			continue
		}
		if !seen {
			out = append(out, key)
		}
		b.Ctx[key] = false
	}
	slices.Sort(out)
	return out
}

func (p *Parser) currentChip() *soundChip {
	if len(p.mod.Chips) == 0 {
		return nil
	}
	return p.mod.Chips[len(p.mod.Chips)-1]
}

func (p *Parser) currentSubsong() *subsong {
	if len(p.mod.Subsongs) == 0 {
		return nil
	}
	return p.mod.Subsongs[len(p.mod.Subsongs)-1]
}

// parse runs the state machine over the whole file.
func (p *Parser) parse() (*module, error) {
	if p.used {
		return nil, fmt.Errorf("parser already used")
	}
	p.used = true
	for p.scanner.Scan() {
		p.lineNumber++
		line := p.scanner.Text()
		trimmedLine := strings.TrimSpace(line)

		// Blank lines are always ignored regardless of location in the file.
		if trimmedLine == "" {
			continue
		}
		var err error
		switch p.state {
		case "signature":
			err = p.parseSignature(trimmedLine)
		case "version":
			err = p.parseVersion(trimmedLine)
		case "song information":
			err = p.parseSongInformation(trimmedLine)
		case "sound chips":
			err = p.parseSoundChips(line, trimmedLine)
		case "instruments/wavetables/samples":
			p.parseInstruments(trimmedLine)
		case "subsongs":
			err = p.parseSubsongs(trimmedLine)
		default:
			err = p.fatalf("unknown parser state: %s", p.state)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := p.scanner.Err(); err != nil {
		return nil, p.fatalf("error while reading file: %v", err)
	}

	fileComplete := false
	if p.state == "subsongs" {
		st, _ := getState[*boolMap](p, "subsongs")
		// Not a rigorous check, a song can have no rows at all.
		fileComplete = st.Ctx["parsingSubsong"] && st.Ctx["parsingRows"]
	}
	if !fileComplete {
		return nil, errors.Wrapf(parser.ErrTruncated, "line %d: unexpected end of file in %s", p.lineNumber, p.state)
	}
	return &p.mod, nil
}

// The very top of the file where the Furnace signature is found.
func (p *Parser) parseSignature(trimmedLine string) error {
	if trimmedLine == signature {
		p.state = "version"
		return nil
	}
	p.addWarning("unexpected text found in file when looking for Furnace signature: %s", trimmedLine)
	return nil
}

// Right under the Furnace signature, the Furnace version number should be present.
func (p *Parser) parseVersion(trimmedLine string) error {
	if !strings.HasPrefix(trimmedLine, "generated by Furnace ") {
		return p.fatalf("unexpected text found in file when looking for Furnace version: %s", trimmedLine)
	}
	parts := strings.Fields(trimmedLine)
	numStr := strings.Trim(parts[len(parts)-1], "()") // Should be the version integer.
	version, err := strconv.Atoi(numStr)
	if err != nil {
		return p.fatalf("invalid integer found in Furnace version number: %s", numStr)
	}
	if !isVersionSupported(version) {
		p.addWarning("Furnace version number %d isn't officially supported by this program. some things might not work correctly", version)
	}
	p.mod.Version = version

	p.setState("song information", &boolMap{
		Ctx: map[string]bool{
			"name":   false,
			"author": false,
			"tuning": false,
		},
	})
	p.state = "song information"
	return nil
}

func (p *Parser) parseSongInformation(trimmedLine string) error {
	if trimmedLine == "# Song Information" { // Section header.
		return nil
	}
	st, ok := getState[*boolMap](p, "song information")
	if !ok {
		return p.fatalf("internal error: song info state missing")
	}

	if trimmedLine == "# Sound Chips" { // Next section, check that we've seen everything we need to.
		if missing := st.missing(); len(missing) > 0 {
			return p.fatalf("missing fields in Song Information section: %s", strings.Join(missing, ", "))
		}
		p.setState("sound chips", &boolMap{
			Ctx: map[string]bool{
				"parsingChip":  false, // Should be set to true if we are in the middle of parsing a chip
				"parsingFlags": false, // Should be set to true if we are in the middle of parsing chip flags
				"id":           false,
			},
		})
		p.state = "sound chips"
		return nil
	}

	le, err := parseListElement(trimmedLine)
	if err != nil {
		return p.fatalf("error parsing list element when extracting song information: %s", trimmedLine)
	}
	switch le.key {
	case "name":
		p.mod.Name = le.value
		st.Ctx["name"] = true
	case "author":
		p.mod.Author = le.value
		st.Ctx["author"] = true
	case "album":
		p.mod.Album = le.value
	case "tuning":
		tuning, err := strconv.ParseFloat(le.value, 64)
		if err != nil {
			return p.fatalf("error converting song tuning in text file to a number: %s", le.value)
		}
		p.mod.Tuning = tuning
		st.Ctx["tuning"] = true
	case "system", "instruments", "wavetables", "samples":
		// Ignore; the counts are implied by the sections below.
	default:
		p.addWarning("unknown option in Song Information section: %s", le.key)
	}
	return nil
}

func (p *Parser) finishChip(st *boolMap) error {
	if st.Ctx["parsingFlags"] {
		p.addWarning("didn't finish parsing chip properly in Sound Chips section. This could be because there were no flags present on a chip")
	}
	if !st.Ctx["parsingChip"] {
		return nil
	}
	if missing := st.missing("parsingChip", "parsingFlags"); len(missing) > 0 {
		return p.fatalf("missing fields in Sound Chips section: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (p *Parser) parseSoundChips(line, trimmedLine string) error {
	if trimmedLine == "# Sound Chips" { // Section header.
		return nil
	}
	st, _ := getState[*boolMap](p, "sound chips")

	switch {
	case trimmedLine == "# Instruments": // Next section.
		if err := p.finishChip(st); err != nil {
			return err
		}
		if len(p.mod.Chips) == 0 {
			return p.fatalf("no sound chips were found by the parser")
		}
		p.setState("instruments/wavetables/samples", "instruments")
		p.state = "instruments/wavetables/samples"
		return nil

	case st.Ctx["parsingFlags"]:
		if trimmedLine == "```" {
			st.Ctx["parsingFlags"] = false
			return nil
		}
		key, value, ok := strings.Cut(trimmedLine, "=")
		if !ok {
			return p.fatalf("invalid chip flag: %s", trimmedLine)
		}
		chip := p.currentChip()
		if chip == nil {
			return p.fatalf("internal error: parsingFlags true but no current chip")
		}
		chip.Flags[strings.TrimSpace(key)] = strings.TrimSpace(value)
		return nil

	case trimmedLine == "```":
		st.Ctx["parsingFlags"] = true
		return nil

	case strings.HasPrefix(line, "- "): // Chip names are the only unindented list items.
		if err := p.finishChip(st); err != nil {
			return err
		}
		st.Ctx["parsingChip"] = true
		st.Ctx["parsingFlags"] = false
		p.mod.Chips = append(p.mod.Chips, &soundChip{
			Index: len(p.mod.Chips),
			Name:  strings.TrimPrefix(line, "- "),
			Flags: make(map[string]string),
		})
		return nil
	}

	le, err := parseListElement(trimmedLine)
	if err != nil {
		return p.fatalf("error parsing list element when extracting sound chips: %s", trimmedLine)
	}
	chip := p.currentChip()
	if chip == nil {
		return p.fatalf("no current chip while parsing")
	}
	switch le.key {
	case "id":
		st.Ctx["id"] = true
		chip.ID = le.value
	case "flags", "volume", "panning", "front/rear":
		// Ignore; not important.
	default:
		p.addWarning("unknown option in Sound Chips section: %s", le.key)
	}
	return nil
}

func (p *Parser) parseInstruments(trimmedLine string) {
	switch trimmedLine {
	case "# Instruments", "# Wavetables", "# Samples": // Section headers.
		p.setState("instruments/wavetables/samples", strings.ToLower(trimmedLine[2:]))
		return
	case "# Subsongs":
		p.setState("subsongs", &boolMap{
			Ctx: map[string]bool{
				"parsingSubsong":  false,
				"parsingMetadata": false,
				"parsingOrders":   false,
				"parsingRows":     false,
				"tickRate":        false,
				"speeds":          false,
				"patternLength":   false,
			},
		})
		p.state = "subsongs"
		return
	}
	section, _ := getState[string](p, "instruments/wavetables/samples")
	if section != "instruments" {
		return
	}
	// Instrument headings look like "## 00: name"; their properties are not needed.
	if rest, ok := strings.CutPrefix(trimmedLine, "## "); ok {
		_, name, _ := strings.Cut(rest, ":")
		p.mod.Instruments = append(p.mod.Instruments, strings.TrimSpace(name))
	}
}

// parseSubsongHeading parses "## N: name".
func (p *Parser) parseSubsongHeading(trimmedLine string) (name string, ok bool) {
	key, name, found := strings.Cut(trimmedLine, ":")
	if !found {
		return "", false
	}
	key, found = strings.CutPrefix(strings.TrimSpace(key), "## ")
	if !found {
		return "", false
	}
	claimedIdx, err := strconv.Atoi(key)
	if err != nil {
		return "", false
	}
	if newIdx := len(p.mod.Subsongs); claimedIdx != newIdx { // Make sure the subsong index is what we expect.
		p.addWarning("expected subsong index %d, got index %d instead", newIdx, claimedIdx)
	}
	return strings.TrimSpace(name), true
}

func (p *Parser) parseSubsongs(trimmedLine string) error {
	if trimmedLine == "# Subsongs" || trimmedLine == "```" { // Section header and code fences.
		return nil
	}
	st, _ := getState[*boolMap](p, "subsongs")

	if strings.HasPrefix(trimmedLine, "## ") {
		if trimmedLine == "## Patterns" {
			if st.Ctx["parsingOrders"] {
				st.Ctx["parsingOrders"] = false
				st.Ctx["parsingRows"] = true
			}
			return nil
		}
		name, ok := p.parseSubsongHeading(trimmedLine)
		if !ok {
			p.addWarning("unexpected text found in file when looking for subsong start: %s", trimmedLine)
			return nil
		}
		if st.Ctx["parsingSubsong"] != st.Ctx["parsingRows"] {
			p.addWarning("unexpected text found in file when parsing subsong %d: %s", len(p.mod.Subsongs)-1, trimmedLine)
			return nil
		}
		if st.Ctx["parsingSubsong"] {
			if missing := st.missing("parsingSubsong", "parsingMetadata", "parsingOrders", "parsingRows"); len(missing) > 0 {
				return p.fatalf("missing fields in Subsongs section: %s", strings.Join(missing, ", "))
			}
		}
		st.Ctx["parsingSubsong"] = true
		st.Ctx["parsingMetadata"] = true
		st.Ctx["parsingOrders"] = false
		st.Ctx["parsingRows"] = false
		p.mod.Subsongs = append(p.mod.Subsongs, &subsong{
			Index:         len(p.mod.Subsongs),
			Name:          name,
			TickRate:      60,
			Speeds:        []uint8{6},
			VirtualTempo:  [2]int{150, 150},
			PatternLength: 64,
		})
		return nil
	}

	sub := p.currentSubsong()
	if sub == nil {
		p.addWarning("unexpected text found in file when looking for subsong start: %s", trimmedLine)
		return nil
	}

	switch {
	case st.Ctx["parsingRows"]:
		if strings.HasPrefix(trimmedLine, "----- ORDER") {
			sub.Orders = append(sub.Orders, &orderBlock{Line: p.lineNumber})
			return nil
		}
		if len(sub.Orders) == 0 {
			return p.fatalf("pattern row found before the first order heading")
		}
		p.parseRow(trimmedLine, sub.Orders[len(sub.Orders)-1])

	case st.Ctx["parsingOrders"]:
		// The order table only repeats what the ORDER headings below already say.

	case st.Ctx["parsingMetadata"]:
		if trimmedLine == "orders:" {
			st.Ctx["parsingMetadata"] = false
			st.Ctx["parsingOrders"] = true
			return nil
		}
		return p.parseSubsongMetadata(trimmedLine, sub, st)
	}
	return nil
}

func (p *Parser) parseSubsongMetadata(trimmedLine string, sub *subsong, st *boolMap) error {
	le, err := parseListElement(trimmedLine)
	if err != nil {
		return p.fatalf("error parsing list element when extracting subsong information: %s", trimmedLine)
	}
	switch le.key {
	case "tick rate":
		st.Ctx["tickRate"] = true
		tickRate, err := strconv.ParseFloat(le.value, 64)
		if err != nil || tickRate <= 0 {
			return p.fatalf("error converting song tick rate in text file to a number: %s", le.value)
		}
		sub.TickRate = tickRate
	case "speeds":
		st.Ctx["speeds"] = true
		speeds, err := p.parseSpeedsList(le.value)
		if err != nil {
			return p.fatalf("error when parsing speeds: %v", err)
		}
		sub.Speeds = speeds
	case "time base":
		timeBase, err := strconv.Atoi(le.value)
		if err != nil || timeBase < 0 {
			return p.fatalf("error converting song time base in text file to a number: %s", le.value)
		}
		sub.TimeBase = timeBase
	case "pattern length":
		st.Ctx["patternLength"] = true
		patternLength, err := strconv.Atoi(le.value)
		if err != nil || patternLength < 1 || patternLength > song.MaxRows {
			return p.fatalf("error converting pattern length in text file to a number: %s", le.value)
		}
		sub.PatternLength = patternLength
	case "virtual tempo":
		vt, err := parseVirtualTempo(le.value)
		if err != nil {
			p.addWarning("%v", err)
			return nil
		}
		sub.VirtualTempo = vt
	default:
		p.addWarning("unknown option in Subsongs section: %s", le.key)
	}
	return nil
}

func (p *Parser) parseRow(trimmedLine string, block *orderBlock) {
	fields := strings.Split(trimmedLine, "|")
	r := row{Line: p.lineNumber}
	for i, field := range fields {
		if i == 0 { // Ignore address values.
			continue
		}
		if strings.TrimSpace(field) == "" && i == len(fields)-1 {
			continue // trailing separator
		}
		n, err := parseNote(field)
		if err != nil {
			p.addWarning("error parsing note in channel %d: %v", i-1, err)
		}
		r.Notes = append(r.Notes, n)
	}
	block.Rows = append(block.Rows, r)
}

// Probe checks for the text export signature at the start of the file.
func Probe(c *cursor.Cursor, fileSize int64) parser.ProbeResult {
	b := c.PeekBytes(min(c.Remaining(), 512))
	b = bytes.TrimPrefix(b, []byte("\xEF\xBB\xBF"))
	b = bytes.TrimLeftFunc(b, unicode.IsSpace)
	if len(b) < len(signature) {
		if strings.HasPrefix(signature, string(b)) {
			return parser.ProbeWantMoreData
		}
		return parser.ProbeFailure
	}
	if !bytes.HasPrefix(b, []byte(signature)) {
		return parser.ProbeFailure
	}
	return parser.ProbeSuccess
}

// Load reads a Furnace text export.
func Load(c *cursor.Cursor, l *parser.Loader) (*song.Song, error) {
	c.Rewind()
	if Probe(c, l.FileSize()) != parser.ProbeSuccess {
		return nil, parser.WrongFormatf("missing Furnace text export signature")
	}
	data := bytes.TrimPrefix(c.Bytes(), []byte("\xEF\xBB\xBF"))
	m, err := NewParser(bytes.NewReader(data), l).parse()
	if err != nil {
		return nil, err
	}
	if len(m.Subsongs) > 1 {
		l.Logf("Furnace version %d, %d subsongs, only the first is loaded", m.Version, len(m.Subsongs))
	} else {
		l.Logf("Furnace version %d detected", m.Version)
	}
	return convert(m, l)
}

// Format describes Furnace text exports for format dispatch.
var Format = parser.Format{
	Name:       "Furnace text export",
	Tag:        "furnace",
	Extensions: []string{"txt"},
	Probe:      Probe,
	Load:       Load,
}
