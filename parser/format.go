package parser

import (
	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/song"
)

// ProbeFunc checks whether the bytes visible through c look like one format.
// fileSize is the total file size, or UnknownSize if c only sees a prefix.
// A probe never reads beyond c's window.
type ProbeFunc func(c *cursor.Cursor, fileSize int64) ProbeResult

// LoadFunc decodes a whole file. In header-only mode it walks the same structure but
// stores no patterns and reads no sample data.
type LoadFunc func(c *cursor.Cursor, l *Loader) (*song.Song, error)

// A Format pairs the probe and loader of one file format.
type Format struct {
	Name       string   // human readable name
	Tag        string   // short type tag
	Extensions []string // usual file extensions, lower case without dot
	Probe      ProbeFunc
	Load       LoadFunc
}

// Result is a successful load.
type Result struct {
	Song     *song.Song
	Format   *Format
	Warnings []Warning
}

// Dispatch tries each format in order and returns the first one that loads data.
// data must be the complete file. The format list is owned by the caller; Dispatch does
// not modify it.
//
// A format whose probe passes but whose loader rejects the file does not end the search.
// If no format loads the file, the error of the last format that got past its probe is
// returned, or ErrNoFormat if none did.
func Dispatch(data []byte, formats []Format, opts Options) (*Result, error) {
	if opts.FileSize == UnknownSize || opts.FileSize < int64(len(data)) {
		opts.FileSize = int64(len(data))
	}
	var lastErr error
	for i := range formats {
		f := &formats[i]
		if f.Probe(cursor.New(data), opts.FileSize) != ProbeSuccess {
			continue
		}
		res, err := loadWith(f, data, opts)
		if err == nil {
			return res, nil
		}
		if !IsRejection(err) {
			lastErr = errors.Wrapf(err, "%s", f.Name)
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoFormat
}

// LoadAs loads data with one specific format, skipping the probe.
func LoadAs(f *Format, data []byte, opts Options) (*Result, error) {
	if opts.FileSize == UnknownSize || opts.FileSize < int64(len(data)) {
		opts.FileSize = int64(len(data))
	}
	return loadWith(f, data, opts)
}

func loadWith(f *Format, data []byte, opts Options) (*Result, error) {
	l := NewLoader(opts)
	s, err := f.Load(cursor.New(data), l)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, Corruptf("loader returned no song")
	}
	if s.Format.Name == "" {
		s.Format.Name = f.Name
	}
	if s.Format.Type == "" {
		s.Format.Type = f.Tag
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if err := l.checkShapes(); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	l.Logf("loaded %s module %q with %d channels", s.Format.Name, s.Title, s.NumChannels())
	return &Result{Song: s, Format: f, Warnings: l.Warnings()}, nil
}

// Detect returns every format whose probe and header check accept data, in list order.
func Detect(data []byte, formats []Format) []*Format {
	var found []*Format
	opts := Options{Flags: OnlyVerifyHeader, FileSize: int64(len(data))}
	for i := range formats {
		f := &formats[i]
		if f.Probe(cursor.New(data), opts.FileSize) != ProbeSuccess {
			continue
		}
		if _, err := loadWith(f, data, opts); err == nil {
			found = append(found, f)
		}
	}
	return found
}
