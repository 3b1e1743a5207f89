package song

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Charset identifies the character set text fields were stored in.
type Charset string

const (
	CharsetASCII       Charset = "ascii"
	CharsetCP437       Charset = "cp437"        // DOS trackers
	CharsetWindows1252 Charset = "windows-1252" // Windows trackers
	CharsetISO8859_1   Charset = "iso-8859-1"   // Amiga trackers
	CharsetUTF8        Charset = "utf-8"
)

// DecodeText converts raw text bytes from cs to a Go string. Control characters other
// than newlines and tabs become spaces; bytes that cannot be represented are replaced.
func DecodeText(raw []byte, cs Charset) string {
	var s string
	switch cs {
	case CharsetCP437:
		s = decodeWith(charmap.CodePage437, raw)
	case CharsetWindows1252:
		s = decodeWith(charmap.Windows1252, raw)
	case CharsetISO8859_1:
		s = decodeWith(charmap.ISO8859_1, raw)
	case CharsetUTF8:
		s = strings.ToValidUTF8(string(raw), "�")
	default:
		var b strings.Builder
		for _, c := range raw {
			if c < 0x80 {
				b.WriteByte(c)
			} else {
				b.WriteRune(utf8.RuneError)
			}
		}
		s = b.String()
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7F {
			return ' '
		}
		return r
	}, s)
}

func decodeWith(cm *charmap.Charmap, raw []byte) string {
	// CP437 maps 0x01..0x1F to graphics; keep control bytes as controls so that
	// DecodeText can blank them consistently across charsets.
	var b strings.Builder
	dec := cm.NewDecoder()
	for _, c := range raw {
		if c < 0x20 {
			b.WriteByte(c)
			continue
		}
		out, err := dec.Bytes([]byte{c})
		if err != nil {
			b.WriteRune(utf8.RuneError)
			continue
		}
		b.Write(out)
	}
	return b.String()
}

// DecodeName decodes a name field and trims surrounding whitespace.
func DecodeName(raw []byte, cs Charset) string {
	return strings.TrimSpace(DecodeText(raw, cs))
}

// DecodeMessage decodes a song message. If lineLength is positive, the raw text is split
// into fixed-width lines (as MTM and ULT store it); otherwise CR, LF and CRLF end lines.
// Trailing whitespace is removed from every line and from the message.
func DecodeMessage(raw []byte, cs Charset, lineLength int) string {
	var lines []string
	if lineLength > 0 {
		for len(raw) > 0 {
			n := min(lineLength, len(raw))
			line := raw[:n]
			if i := indexByte(line, 0); i >= 0 {
				line = line[:i]
			}
			lines = append(lines, DecodeText(line, cs))
			raw = raw[n:]
		}
	} else {
		text := strings.ReplaceAll(string(raw), "\r\n", "\n")
		text = strings.ReplaceAll(text, "\r", "\n")
		if i := strings.IndexByte(text, 0); i >= 0 {
			text = text[:i]
		}
		for _, l := range strings.Split(text, "\n") {
			lines = append(lines, DecodeText([]byte(l), cs))
		}
	}
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n ")
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
