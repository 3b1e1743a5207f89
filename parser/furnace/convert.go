package furnace

import (
	"fmt"
	"math"

	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	effectStop = 0xFF

	// Furnace counts 24 ticks per beat for BPM tick rates; 50 Hz is tempo 125.
	hzPerTempo = 0.4
)

type chipInfo struct {
	maxVolume int
	channels  []string
}

// Chips whose volume column is not 0..7F.
var chips = map[string]chipInfo{
	"TI SN76489":          {15, []string{"Square 1", "Square 2", "Square 3", "Noise"}},
	"Game Boy":            {15, []string{"Pulse 1", "Pulse 2", "Wave", "Noise"}},
	"NES":                 {15, []string{"Pulse 1", "Pulse 2", "Triangle", "Noise", "DPCM"}},
	"AY-3-8910":           {15, []string{"PSG 1", "PSG 2", "PSG 3"}},
	"Commodore 64 (6581)": {15, []string{"Channel 1", "Channel 2", "Channel 3"}},
	"Commodore 64 (8580)": {15, []string{"Channel 1", "Channel 2", "Channel 3"}},
}

// maxVolume returns the largest volume column value of the song's chips.
func (m *module) maxVolume() int {
	v := 0
	for _, c := range m.Chips {
		info, ok := chips[c.Name]
		if !ok {
			return 0x7F
		}
		v = max(v, info.maxVolume)
	}
	if v == 0 {
		return 0x7F
	}
	return v
}

// channelNames lists channel names when every chip is known.
func (m *module) channelNames() []string {
	var names []string
	for _, c := range m.Chips {
		info, ok := chips[c.Name]
		if !ok {
			return nil
		}
		names = append(names, info.channels...)
	}
	return names
}

// title joins the song and subsong names the way the tracker displays them.
func (m *module) title(sub *subsong) string {
	name := m.Name
	if sub.Name != "" {
		if name != "" {
			name += " - "
		}
		name += sub.Name
	}
	if m.Album != "" {
		name += fmt.Sprintf(" (from %s)", m.Album)
	}
	return name
}

func numChannels(sub *subsong) int {
	for _, block := range sub.Orders {
		if len(block.Rows) > 0 {
			return len(block.Rows[0].Notes)
		}
	}
	return 0
}

// convert turns the first subsong into a song.
func convert(m *module, l *parser.Loader) (*song.Song, error) {
	if len(m.Subsongs) == 0 {
		return nil, parser.Corruptf("export contains no subsongs")
	}
	sub := m.Subsongs[0]
	n := numChannels(sub)
	if n == 0 {
		return nil, parser.Corruptf("subsong has no pattern rows")
	}

	s, err := song.New(n)
	if err != nil {
		return nil, parser.Corruptf("%v", err)
	}
	s.Format = song.FormatInfo{
		Name:    "Furnace text export",
		Type:    "furnace",
		Tracker: fmt.Sprintf("Furnace (%d)", m.Version),
		Charset: song.CharsetUTF8,
	}
	s.Title = m.title(sub)
	s.Artist = m.Author
	if names := m.channelNames(); len(names) == n {
		for i := range s.Channels {
			s.Channels[i].Name = names[i]
		}
	}
	if m.Tuning != 440 {
		l.WarnLinef(0, "tuning of %g Hz is not kept; notes assume A-4 = 440 Hz", m.Tuning)
	}

	s.InitialSpeed = int(sub.Speeds[0]) * (sub.TimeBase + 1)
	if s.InitialSpeed > 255 {
		l.WarnLinef(0, "speed %d clamped to 255", s.InitialSpeed)
		s.InitialSpeed = 255
	}
	hz := sub.TickRate * float64(sub.VirtualTempo[0]) / float64(sub.VirtualTempo[1])
	s.InitialTempo = tempoFromHz(hz)

	for _, name := range m.Instruments {
		smp := song.NewSample()
		smp.Name = name
		if _, err := s.AddSample(smp); err != nil {
			return nil, err
		}
	}

	if err := s.AllocatePatterns(len(sub.Orders)); err != nil {
		return nil, parser.Corruptf("%v", err)
	}
	stopAt := -1
	c := &cellConverter{loader: l, maxVolume: m.maxVolume(), warned: make(map[uint8]bool)}
	for i, block := range sub.Orders {
		s.Order = append(s.Order, song.PatternIndex(i))
		p, err := l.PatternGrid(s, i, max(min(len(block.Rows), song.MaxRows), 1))
		if err != nil {
			return nil, err
		}
		for rowIdx, r := range block.Rows[:min(len(block.Rows), p.Rows())] {
			if len(r.Notes) != n {
				l.WarnLinef(r.Line, "row has %d channels, expected %d", len(r.Notes), n)
			}
			for ch, nt := range r.Notes[:min(len(r.Notes), n)] {
				if c.convertNote(p, rowIdx, ch, nt, r.Line) && stopAt < 0 {
					stopAt = i
				}
			}
		}
	}
	if stopAt >= 0 && stopAt+1 < len(s.Order) {
		s.Order = s.Order[:stopAt+1]
	}
	return s, nil
}

func tempoFromHz(hz float64) int {
	return min(max(int(math.Round(hz/hzPerTempo)), 32), 255)
}

type cellConverter struct {
	loader    *parser.Loader
	maxVolume int
	warned    map[uint8]bool // effects already reported as unsupported
}

// convertNote fills one cell. It reports whether the cell stops the song.
func (c *cellConverter) convertNote(p song.Grid, row, ch int, n note, line int) (stop bool) {
	cell := p.Cell(row, ch)
	switch {
	case n.Off:
		cell.Note = song.NoteCut
	case n.Release:
		cell.Note = song.NoteKeyOff
	case n.HasPitch:
		if v := song.NoteMin + song.Note(n.Pitch); n.Pitch >= 0 && v <= song.NoteMax {
			cell.Note = v
		} else {
			c.loader.WarnLinef(line, "channel %d: note outside the playable range", ch)
		}
	}
	if n.HasInstrument && n.Instrument < 0xFF {
		cell.Instrument = uint8(n.Instrument + 1)
	}
	if n.HasVolume {
		cell.SetVolume(song.VolVolume, uint8(min(int(n.Volume)*64/c.maxVolume, 64)))
	}
	for _, e := range n.Effects {
		if e.ID == effectStop {
			stop = true
			continue
		}
		cmd, param, ok := convertEffect(e)
		if !ok {
			if !c.warned[e.ID] {
				c.warned[e.ID] = true
				c.loader.WarnLinef(line, "effect %02X is not supported", e.ID)
			}
			continue
		}
		switch {
		case cell.Command == song.CmdNone:
			cell.SetEffect(cmd, param)
		case cmd.IsGlobal():
			p.WriteEffect(row, ch, cmd, param)
		default:
			cell.CombineEffects(cell.Command, cell.Param, cmd, param)
		}
	}
	return stop
}

func convertEffect(e effect) (song.Command, uint8, bool) {
	v := e.Value
	switch {
	case e.ID >= 0xC0 && e.ID <= 0xCF:
		// 12-bit tick rate in Hz
		hz := int(e.ID&0x0F)<<8 | int(v)
		if hz == 0 {
			return song.CmdNone, 0, false
		}
		return song.CmdTempo, uint8(tempoFromHz(float64(hz))), true
	}
	switch e.ID {
	case 0x00:
		if v == 0 {
			return song.CmdNone, 0, false
		}
		return song.CmdArpeggio, v, true
	case 0x01:
		return song.CmdPortamentoUp, v, true
	case 0x02:
		return song.CmdPortamentoDown, v, true
	case 0x03:
		return song.CmdTonePortamento, v, true
	case 0x04:
		return song.CmdVibrato, v, true
	case 0x07:
		return song.CmdTremolo, v, true
	case 0x08:
		// left and right levels
		left, right := int(v>>4), int(v&0x0F)
		return song.CmdPanning8, uint8((right - left + 15) * 255 / 30), true
	case 0x09, 0x0F:
		if v == 0 {
			return song.CmdNone, 0, false
		}
		return song.CmdSpeed, v, true
	case 0x0A:
		return song.CmdVolumeSlide, v, true
	case 0x0B:
		return song.CmdPositionJump, v, true
	case 0x0D:
		return song.CmdPatternBreak, v, true
	case 0x80:
		return song.CmdPanning8, v, true
	case 0xEC:
		return song.CmdS3MCmdEx, 0xC0 | min(v, 0x0F), true
	case 0xED:
		return song.CmdS3MCmdEx, 0xD0 | min(v, 0x0F), true
	case 0xF0:
		// BPM at 24 ticks per beat is the same number as a tracker tempo
		return song.CmdTempo, max(v, 32), true
	}
	return song.CmdNone, 0, false
}
