package song

import "fmt"

// Note is a pitch or one of the special note events.
type Note uint8

const (
	NoteNone    Note = 0
	NoteMin     Note = 1   // C-0
	NoteMiddleC Note = 61  // C-5
	NoteMax     Note = 120 // B-9
	NoteFade    Note = 253 // note fade (IT "note off")
	NoteCut     Note = 254
	NoteKeyOff  Note = 255
)

// IsPitch reports whether the note is a playable pitch.
func (n Note) IsPitch() bool {
	return n >= NoteMin && n <= NoteMax
}

// IsSpecial reports whether the note is a cut, key-off or fade event.
func (n Note) IsSpecial() bool {
	return n == NoteFade || n == NoteCut || n == NoteKeyOff
}

func (n Note) isValid() bool {
	return n == NoteNone || n.IsPitch() || n.IsSpecial()
}

var noteNames = [12]string{"C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-"}

func (n Note) String() string {
	switch {
	case n == NoteNone:
		return "..."
	case n == NoteKeyOff:
		return "==="
	case n == NoteCut:
		return "^^^"
	case n == NoteFade:
		return "~~~"
	case n.IsPitch():
		v := int(n - NoteMin)
		return fmt.Sprintf("%s%d", noteNames[v%12], v/12)
	default:
		return "???"
	}
}

// NoteFromOctave builds a note from an octave and a semitone (0..11).
// It returns NoteNone if the result is not a playable pitch.
func NoteFromOctave(octave, semitone int) Note {
	if semitone < 0 || semitone > 11 || octave < 0 {
		return NoteNone
	}
	v := int(NoteMin) + octave*12 + semitone
	if v > int(NoteMax) {
		return NoteNone
	}
	return Note(v)
}

// A Cell is one channel's event on one row of a pattern. The zero value is empty.
type Cell struct {
	Note       Note
	Instrument uint8 // 0 = none
	VolCmd     VolumeCommand
	Vol        uint8
	Command    Command
	Param      uint8
}

// IsEmpty reports whether the cell carries no event at all.
func (c Cell) IsEmpty() bool {
	return c == Cell{}
}

func (c Cell) isValid() bool {
	return c.Note.isValid() && c.Command.isValid() && c.VolCmd.isValid()
}

// SetEffect sets the effect column.
func (c *Cell) SetEffect(cmd Command, param uint8) {
	c.Command = cmd
	c.Param = param
	if cmd == CmdNone {
		c.Param = 0
	}
}

// SetVolume sets the volume column.
func (c *Cell) SetVolume(cmd VolumeCommand, v uint8) {
	c.VolCmd = cmd
	c.Vol = v
	if cmd == VolNone {
		c.Vol = 0
	}
}

// volumeEquivalent maps an effect command onto the volume column if it has an equivalent there.
func volumeEquivalent(cmd Command, param uint8) (VolumeCommand, uint8, bool) {
	switch cmd {
	case CmdVolume:
		return VolVolume, min(param, 64), true
	case CmdPanning8:
		return VolPanning, uint8(int(param) * 64 / 255), true
	case CmdVolumeSlide:
		switch {
		case param == 0:
			return VolNone, 0, false
		case param&0x0F == 0:
			return VolVolSlideUp, min(param>>4, 9), true
		case param&0xF0 == 0:
			return VolVolSlideDown, min(param&0x0F, 9), true
		case param&0x0F == 0x0F:
			return VolFineVolUp, min(param>>4, 9), true
		case param&0xF0 == 0xF0:
			return VolFineVolDown, min(param&0x0F, 9), true
		}
	case CmdTonePortamento:
		if param <= 0xF0 && param%16 == 0 {
			return VolTonePortamento, param / 16, true
		}
	case CmdVibrato:
		if param&0xF0 == 0 {
			return VolVibratoDepth, param & 0x0F, true
		}
		if param&0x0F == 0 {
			return VolVibratoSpeed, param >> 4, true
		}
	case CmdPortamentoUp:
		if param < 10*4 && param%4 == 0 {
			return VolPortaUp, param / 4, true
		}
	case CmdPortamentoDown:
		if param < 10*4 && param%4 == 0 {
			return VolPortaDown, param / 4, true
		}
	}
	return VolNone, 0, false
}

// CombineEffects stores two native effects in one cell. The first effect is placed into
// the volume column when it has an equivalent there, otherwise the second one is tried.
// If neither fits, the effect slot keeps the global command (tempo, speed, jumps, breaks,
// global volume) in preference to a per-channel one. It reports whether both effects
// were kept.
func (c *Cell) CombineEffects(cmd1 Command, param1 uint8, cmd2 Command, param2 uint8) bool {
	if cmd1 == CmdNone {
		c.SetEffect(cmd2, param2)
		return true
	}
	if cmd2 == CmdNone {
		c.SetEffect(cmd1, param1)
		return true
	}
	if c.VolCmd == VolNone {
		if vc, v, ok := volumeEquivalent(cmd1, param1); ok {
			c.SetVolume(vc, v)
			c.SetEffect(cmd2, param2)
			return true
		}
		if vc, v, ok := volumeEquivalent(cmd2, param2); ok {
			c.SetVolume(vc, v)
			c.SetEffect(cmd1, param1)
			return true
		}
	}
	if cmd2.IsGlobal() && !cmd1.IsGlobal() {
		c.SetEffect(cmd2, param2)
	} else {
		c.SetEffect(cmd1, param1)
	}
	return false
}

func (c Cell) String() string {
	instr := ".."
	if c.Instrument != 0 {
		instr = fmt.Sprintf("%02d", c.Instrument)
	}
	vol := "..."
	if c.VolCmd != VolNone {
		vol = fmt.Sprintf("%c%02d", c.VolCmd.Letter(), c.Vol)
	}
	eff := "..."
	if c.Command != CmdNone {
		eff = fmt.Sprintf("%c%02X", c.Command.Letter(), c.Param)
	}
	return fmt.Sprintf("%s %s %s %s", c.Note, instr, vol, eff)
}
