// Package parser holds what every format loader shares: probe results, load flags,
// per-load state with warnings, the error taxonomy and format dispatch.
package parser

import (
	"fmt"
	"io"
	"log"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/song"
)

// ProbeResult is the verdict of a format's header check.
type ProbeResult int

const (
	ProbeFailure      ProbeResult = iota // header present but not this format
	ProbeSuccess                         // header is valid and the file is large enough
	ProbeWantMoreData                    // the prefix is too short to decide
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeSuccess:
		return "success"
	case ProbeWantMoreData:
		return "want more data"
	default:
		return "failure"
	}
}

// UnknownSize is passed as the file size when only a prefix of the file is available
// and its total length is not known.
const UnknownSize int64 = -1

// ProbeAdditionalSize finishes a probe once the header itself has been validated.
// It checks that at least additional bytes follow the cursor position: with an unknown
// file size a short buffer means more data is wanted, with a known file size a file that
// is too small cannot be this format.
func ProbeAdditionalSize(c *cursor.Cursor, fileSize int64, additional int64) ProbeResult {
	if additional < 0 {
		return ProbeFailure
	}
	if fileSize == UnknownSize {
		if int64(c.Remaining()) < additional {
			return ProbeWantMoreData
		}
		return ProbeSuccess
	}
	if fileSize-c.AbsolutePosition() < additional {
		return ProbeFailure
	}
	return ProbeSuccess
}

// LoadFlags select how much of a file a loader decodes.
type LoadFlags uint8

const (
	// OnlyVerifyHeader runs every structural check of a full load without storing patterns
	// or reading sample data. It supersedes the other flags.
	OnlyVerifyHeader LoadFlags = 1 << iota
	LoadPatternData
	LoadSampleData

	LoadEverything = LoadPatternData | LoadSampleData
)

// Options configure one load.
type Options struct {
	Flags    LoadFlags
	Logger   *log.Logger // nil discards log output
	FileSize int64       // total file size, or UnknownSize
}

// DefaultOptions loads everything and discards log output.
func DefaultOptions() Options {
	return Options{Flags: LoadEverything, FileSize: UnknownSize}
}

// A Warning is a non-fatal problem found while loading.
type Warning struct {
	Offset  int64 // byte offset in the file, or -1
	Line    int   // line number for text formats, or 0
	Message string
}

func (w Warning) String() string {
	switch {
	case w.Line > 0:
		return fmt.Sprintf("line %d: %s", w.Line, w.Message)
	case w.Offset >= 0:
		return fmt.Sprintf("offset 0x%X: %s", w.Offset, w.Message)
	default:
		return w.Message
	}
}

// A Loader carries the state of one load attempt. It is not safe for concurrent use;
// every load gets its own.
type Loader struct {
	flags    LoadFlags
	logger   *log.Logger
	fileSize int64

	// Collect any warnings whilst loading.
	warnings []Warning

	// patterns decoded without being stored, by index
	shapes []shape
}

type shape struct {
	pat int
	*song.Shape
}

// NewLoader creates the state for one load attempt.
func NewLoader(opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	flags := opts.Flags
	if flags&OnlyVerifyHeader != 0 {
		flags = OnlyVerifyHeader
	}
	return &Loader{
		flags:    flags,
		logger:   logger,
		fileSize: opts.FileSize,
	}
}

// HeaderOnly reports whether the load only verifies the file's structure.
func (l *Loader) HeaderOnly() bool {
	return l.flags&OnlyVerifyHeader != 0
}

// WantPatterns reports whether pattern data should be decoded.
func (l *Loader) WantPatterns() bool {
	return l.flags&LoadPatternData != 0
}

// WantSamples reports whether sample waveforms should be decoded.
func (l *Loader) WantSamples() bool {
	return l.flags&LoadSampleData != 0
}

// PatternGrid returns where pattern pat of s is decoded: a new stored pattern when pattern
// data is wanted, otherwise a Shape, so that the pattern data gets the same checks either way.
func (l *Loader) PatternGrid(s *song.Song, pat, rows int) (song.Grid, error) {
	if l.WantPatterns() {
		p, err := s.InsertPattern(pat, rows)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	if pat < 0 || pat >= song.MaxPatterns {
		return nil, fmt.Errorf("pattern index must be 0-%d, got %d", song.MaxPatterns-1, pat)
	}
	sh, err := song.NewShape(rows, s.NumChannels())
	if err != nil {
		return nil, err
	}
	l.shapes = append(l.shapes, shape{pat, sh})
	return sh, nil
}

// checkShapes returns the first invalid cell decoded into a Shape, matching what
// Validate reports for a stored pattern.
func (l *Loader) checkShapes() error {
	for _, sh := range l.shapes {
		if err := sh.Err(); err != nil {
			return fmt.Errorf("pattern %d %w", sh.pat, err)
		}
	}
	return nil
}

// FileSize returns the total file size, or UnknownSize.
func (l *Loader) FileSize() int64 {
	return l.fileSize
}

// Warnf records a non-fatal problem at a byte offset.
func (l *Loader) Warnf(offset int64, format string, args ...any) {
	l.warnings = append(l.warnings, Warning{
		Offset:  offset,
		Message: fmt.Sprintf(format, args...),
	})
}

// WarnLinef records a non-fatal problem on a line of a text format.
func (l *Loader) WarnLinef(line int, format string, args ...any) {
	l.warnings = append(l.warnings, Warning{
		Offset:  -1,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	})
}

// Logf writes to the loader's log.
func (l *Loader) Logf(format string, args ...any) {
	l.logger.Printf(format, args...)
}

// Warnings returns the warnings collected so far.
func (l *Loader) Warnings() []Warning {
	return l.warnings
}
