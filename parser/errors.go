package parser

import (
	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
)

var (
	// ErrWrongFormat means the header is not the expected format.
	ErrWrongFormat = errors.New("not this format")
	// ErrTruncated means the file ended before mandatory data.
	ErrTruncated = errors.New("file is truncated")
	// ErrCorrupt means header fields contradict each other or exceed the format's limits.
	ErrCorrupt = errors.New("file is corrupt")
	// ErrTooLarge means the file declares more data than the model supports.
	ErrTooLarge = errors.New("file exceeds supported limits")
	// ErrNoFormat is returned by Dispatch when no format accepted the file.
	ErrNoFormat = errors.New("unknown module format")
)

// Truncated returns an ErrTruncated error describing what could not be read.
func Truncated(c *cursor.Cursor, what string) error {
	return errors.Wrapf(ErrTruncated, "reading %s at offset 0x%X", what, c.AbsolutePosition())
}

// Corruptf returns an ErrCorrupt error with a description.
func Corruptf(format string, args ...any) error {
	return errors.Wrapf(ErrCorrupt, format, args...)
}

// WrongFormatf returns an ErrWrongFormat error with a description.
func WrongFormatf(format string, args ...any) error {
	return errors.Wrapf(ErrWrongFormat, format, args...)
}

// TooLargef returns an ErrTooLarge error with a description.
func TooLargef(format string, args ...any) error {
	return errors.Wrapf(ErrTooLarge, format, args...)
}

// IsRejection reports whether err means the file is simply not in the attempted format,
// as opposed to being that format but damaged.
func IsRejection(err error) bool {
	return errors.Is(err, ErrWrongFormat)
}
