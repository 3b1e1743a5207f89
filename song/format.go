package song

import (
	"fmt"
	"strings"
)

// formatPatternTable formats a pattern into a table with one column per channel.
// headerNames: optional names for each channel (if nil or empty entry, "Channel i" is used).
// indent: number of spaces to indent the table
func formatPatternTable(p *Pattern, headerNames []string, indent int) string {
	numChannels := p.Channels()

	header := func(i int) string {
		if i < len(headerNames) && headerNames[i] != "" {
			return headerNames[i]
		}
		return fmt.Sprintf("Channel %d", i)
	}

	// Every cell renders at the same width, so only the headers can widen a column.
	cellWidth := len(Cell{}.String())
	widths := make([]int, numChannels)
	for i := range numChannels {
		widths[i] = max(len(header(i)), cellWidth)
	}

	padRight := func(s string, w int) string {
		if len(s) >= w {
			return s
		}
		return s + strings.Repeat(" ", w-len(s))
	}

	var b strings.Builder
	separator := func() {
		b.WriteString(strings.Repeat(" ", indent))
		b.WriteString("     ")
		for i := range numChannels {
			b.WriteString("+")
			b.WriteString(strings.Repeat("-", widths[i]+2)) // +2 for the space padding either side
		}
		b.WriteString("+\n")
	}

	separator()
	b.WriteString(strings.Repeat(" ", indent))
	b.WriteString("     ")
	for i := range numChannels {
		b.WriteString("| ")
		b.WriteString(padRight(header(i), widths[i]))
		b.WriteString(" ")
	}
	b.WriteString("|\n")
	separator()

	for row := range p.Rows() {
		b.WriteString(strings.Repeat(" ", indent))
		fmt.Fprintf(&b, "%4d ", row)
		for ch, c := range p.Row(row) {
			b.WriteString("| ")
			b.WriteString(padRight(c.String(), widths[ch]))
			b.WriteString(" ")
		}
		b.WriteString("|\n")
	}
	separator()

	return b.String()
}

// FormatPattern renders pattern i as a table, using channel names as headers.
func (s *Song) FormatPattern(i int) string {
	p := s.Pattern(i)
	if p == nil {
		return fmt.Sprintf("Pattern %d is empty\n", i)
	}
	headers := make([]string, len(s.Channels))
	for ch, cs := range s.Channels {
		headers[ch] = cs.Name
	}
	return formatPatternTable(p, headers, 2)
}

func formatOrder(o Order) string {
	parts := make([]string, len(o))
	for i, p := range o {
		switch p {
		case OrderStop:
			parts[i] = "---"
		case OrderSkip:
			parts[i] = "+++"
		default:
			parts[i] = fmt.Sprint(p)
		}
	}
	return strings.Join(parts, " ")
}

// Pretty-print. Pattern contents are left out; see FormatPattern.
func (s *Song) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s module:\n", s.Format.Name)
	fmt.Fprintf(&b, "- Title: %s\n", s.Title)
	if s.Artist != "" {
		fmt.Fprintf(&b, "- Artist: %s\n", s.Artist)
	}
	if s.Format.Tracker != "" {
		fmt.Fprintf(&b, "- Tracker: %s\n", s.Format.Tracker)
	}
	if s.Format.OriginalName != "" {
		fmt.Fprintf(&b, "- Converted from: %s\n", s.Format.OriginalName)
	}
	fmt.Fprintf(&b, "- Channels: %d\n", len(s.Channels))
	fmt.Fprintf(&b, "- Initial speed/tempo: %d/%d\n", s.InitialSpeed, s.InitialTempo)
	fmt.Fprintf(&b, "- Global volume: %d\n", s.InitialGlobalVolume)
	fmt.Fprintf(&b, "- Order (%d): %s\n", len(s.Order), formatOrder(s.Order))
	if s.RestartPosition != 0 {
		fmt.Fprintf(&b, "- Restart position: %d\n", s.RestartPosition)
	}

	loaded := 0
	for _, p := range s.Patterns {
		if p != nil {
			loaded++
		}
	}
	fmt.Fprintf(&b, "- Patterns: %d (%d with data)\n", len(s.Patterns), loaded)

	if len(s.Samples) > 0 {
		b.WriteString("- Samples:\n")
		for i, smp := range s.Samples {
			bits := 8
			if smp.Is16Bit() {
				bits = 16
			}
			fmt.Fprintf(&b, "  %3d. %-28q %7d frames, %2d-bit, vol %3d, C-5 %5d Hz", i+1, smp.Name, smp.Length, bits, smp.Volume, smp.C5Speed)
			if smp.Flags&SampleLoop != 0 {
				fmt.Fprintf(&b, ", loop %d-%d", smp.LoopStart, smp.LoopEnd)
			}
			if smp.Flags&SampleAdlib != 0 {
				b.WriteString(", OPL")
			}
			b.WriteString("\n")
		}
	}
	if len(s.Instruments) > 0 {
		b.WriteString("- Instruments:\n")
		for i, ins := range s.Instruments {
			if ins == nil {
				continue
			}
			fmt.Fprintf(&b, "  %3d. %q", i+1, ins.Name)
			if ins.VolumeEnvelope.Enabled {
				fmt.Fprintf(&b, " (volume envelope, %d points)", len(ins.VolumeEnvelope.Points))
			}
			b.WriteString("\n")
		}
	}
	if q := s.Quirks.Sorted(); len(q) > 0 {
		fmt.Fprintf(&b, "- Quirks: %v\n", q)
	}
	if s.Message != "" {
		b.WriteString("- Message:\n")
		for _, line := range strings.Split(s.Message, "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	return b.String()
}
