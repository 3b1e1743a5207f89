// Package trackerloader decodes tracker music modules into one song model.
//
// Every supported format lives in its own package under parser/. This package only
// bundles them in the order they should be tried.
package trackerloader

import (
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/c667"
	"github.com/QEStudios/TrackerLoader/parser/c669"
	"github.com/QEStudios/TrackerLoader/parser/c67"
	"github.com/QEStudios/TrackerLoader/parser/dbm"
	"github.com/QEStudios/TrackerLoader/parser/dsym"
	"github.com/QEStudios/TrackerLoader/parser/far"
	"github.com/QEStudios/TrackerLoader/parser/furnace"
	"github.com/QEStudios/TrackerLoader/parser/gdm"
	"github.com/QEStudios/TrackerLoader/parser/ice"
	"github.com/QEStudios/TrackerLoader/parser/imf"
	"github.com/QEStudios/TrackerLoader/parser/it"
	"github.com/QEStudios/TrackerLoader/parser/mod"
	"github.com/QEStudios/TrackerLoader/parser/mtm"
	"github.com/QEStudios/TrackerLoader/parser/okt"
	"github.com/QEStudios/TrackerLoader/parser/pt36"
	"github.com/QEStudios/TrackerLoader/parser/ptm"
	"github.com/QEStudios/TrackerLoader/parser/s3m"
	"github.com/QEStudios/TrackerLoader/parser/sfx"
	"github.com/QEStudios/TrackerLoader/parser/stk"
	"github.com/QEStudios/TrackerLoader/parser/stm"
	"github.com/QEStudios/TrackerLoader/parser/ult"
	"github.com/QEStudios/TrackerLoader/parser/xm"
)

// DefaultFormats returns a fresh list of every supported format in detection order.
// Formats with a strong magic come first; formats detected by structure alone (CDFM
// Composer 670, Soundtracker) come last because their probes accept more false positives.
// The caller owns the returned slice and may reorder or trim it.
func DefaultFormats() []parser.Format {
	return []parser.Format{
		it.Format,
		xm.Format,
		s3m.Format,
		mtm.Format,
		stm.Format,
		c669.Format,
		c667.Format,
		ult.Format,
		far.Format,
		ptm.Format,
		okt.Format,
		dsym.Format,
		imf.Format,
		gdm.Format,
		dbm.Format,
		pt36.Format,
		ice.Format,
		sfx.Format,
		mod.Format,
		furnace.Format,
		c67.Format,
		stk.Format,
	}
}

// Load decodes a complete module file held in memory with the default format list.
func Load(data []byte, opts parser.Options) (*parser.Result, error) {
	return parser.Dispatch(data, DefaultFormats(), opts)
}

// LoadFile reads and decodes the module at path.
func LoadFile(path string, opts parser.Options) (*parser.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading module")
	}
	res, err := Load(data, opts)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return res, nil
}

// Detect lists every default format that accepts data's header, best match first.
func Detect(data []byte) []*parser.Format {
	return parser.Detect(data, DefaultFormats())
}

// FormatByTag finds a default format by its tag or one of its file extensions.
func FormatByTag(tag string) (*parser.Format, bool) {
	tag = strings.ToLower(strings.TrimPrefix(tag, "."))
	formats := DefaultFormats()
	for i := range formats {
		if formats[i].Tag == tag {
			return &formats[i], true
		}
	}
	for i := range formats {
		for _, ext := range formats[i].Extensions {
			if ext == tag {
				return &formats[i], true
			}
		}
	}
	return nil, false
}
