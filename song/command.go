package song

import "fmt"

// Command is the unified effect command every format's native effects are translated into.
type Command uint8

const (
	CmdNone Command = iota
	CmdArpeggio
	CmdPortamentoUp
	CmdPortamentoDown
	CmdTonePortamento
	CmdVibrato
	CmdTonePortaVol
	CmdVibratoVol
	CmdTremolo
	CmdPanning8
	CmdOffset
	CmdVolumeSlide
	CmdPositionJump
	CmdVolume
	CmdPatternBreak
	CmdRetrig
	CmdSpeed
	CmdTempo
	CmdTremor
	CmdModCmdEx // ProTracker Exy sub-commands, parameter kept verbatim
	CmdS3MCmdEx // Scream Tracker Sxy sub-commands, parameter kept verbatim
	CmdChannelVolume
	CmdChannelVolSlide
	CmdGlobalVolume
	CmdGlobalVolSlide
	CmdKeyOff
	CmdFineVibrato
	CmdPanbrello
	CmdXFinePortaUpDown
	CmdPanningSlide
	CmdSetEnvPosition
	CmdMidi
	CmdSmoothMidi
	CmdDelayCut
	CmdXParam
	CmdNoteSlideUp
	CmdNoteSlideDown
	CmdNoteSlideUpRetrig
	CmdNoteSlideDownRetrig
	CmdReverseOffset
	CmdOffsetPercentage
	CmdVolume8 // volume in the range 0..255
	CmdFinetune
	CmdFinetuneSmooth
	CmdDummy

	numCommands
)

var commandNames = [numCommands]string{
	CmdNone:                "none",
	CmdArpeggio:            "arpeggio",
	CmdPortamentoUp:        "portamento up",
	CmdPortamentoDown:      "portamento down",
	CmdTonePortamento:      "tone portamento",
	CmdVibrato:             "vibrato",
	CmdTonePortaVol:        "tone portamento + volume slide",
	CmdVibratoVol:          "vibrato + volume slide",
	CmdTremolo:             "tremolo",
	CmdPanning8:            "set panning",
	CmdOffset:              "sample offset",
	CmdVolumeSlide:         "volume slide",
	CmdPositionJump:        "position jump",
	CmdVolume:              "set volume",
	CmdPatternBreak:        "pattern break",
	CmdRetrig:              "retrigger",
	CmdSpeed:               "set speed",
	CmdTempo:               "set tempo",
	CmdTremor:              "tremor",
	CmdModCmdEx:            "extended (MOD)",
	CmdS3MCmdEx:            "extended (S3M)",
	CmdChannelVolume:       "set channel volume",
	CmdChannelVolSlide:     "channel volume slide",
	CmdGlobalVolume:        "set global volume",
	CmdGlobalVolSlide:      "global volume slide",
	CmdKeyOff:              "key off",
	CmdFineVibrato:         "fine vibrato",
	CmdPanbrello:           "panbrello",
	CmdXFinePortaUpDown:    "extra fine portamento",
	CmdPanningSlide:        "panning slide",
	CmdSetEnvPosition:      "set envelope position",
	CmdMidi:                "MIDI macro",
	CmdSmoothMidi:          "smooth MIDI macro",
	CmdDelayCut:            "note delay and cut",
	CmdXParam:              "parameter extension",
	CmdNoteSlideUp:         "note slide up",
	CmdNoteSlideDown:       "note slide down",
	CmdNoteSlideUpRetrig:   "note slide up + retrigger",
	CmdNoteSlideDownRetrig: "note slide down + retrigger",
	CmdReverseOffset:       "reverse offset",
	CmdOffsetPercentage:    "offset percentage",
	CmdVolume8:             "set volume (8-bit)",
	CmdFinetune:            "finetune",
	CmdFinetuneSmooth:      "smooth finetune",
	CmdDummy:               "dummy",
}

// Single character names, as shown in a pattern editor.
const commandLetters = ".0123456789ABCDRFTIESMNVWKUYXPLZ\\:#+*?!&~%vfg@"

func (c Command) isValid() bool {
	return c < numCommands
}

func (c Command) String() string {
	if !c.isValid() {
		return fmt.Sprintf("command(%d)", uint8(c))
	}
	return commandNames[c]
}

// Letter returns the one-character representation used in pattern tables.
func (c Command) Letter() byte {
	if int(c) >= len(commandLetters) {
		return '?'
	}
	return commandLetters[c]
}

// IsGlobal reports whether the command affects the whole song rather than one channel.
// When two native commands compete for one effect slot, global commands win, since losing
// one changes the song's structure.
func (c Command) IsGlobal() bool {
	switch c {
	case CmdPositionJump, CmdPatternBreak, CmdSpeed, CmdTempo, CmdGlobalVolume, CmdGlobalVolSlide:
		return true
	default:
		return false
	}
}

// VolumeCommand is the unified volume column command.
type VolumeCommand uint8

const (
	VolNone VolumeCommand = iota
	VolVolume
	VolPanning
	VolVolSlideUp
	VolVolSlideDown
	VolFineVolUp
	VolFineVolDown
	VolVibratoSpeed
	VolVibratoDepth
	VolPanSlideLeft
	VolPanSlideRight
	VolTonePortamento
	VolPortaUp
	VolPortaDown
	VolOffset

	numVolumeCommands
)

const volumeLetters = ".vpcdabuhlrgfeo"

func (v VolumeCommand) isValid() bool {
	return v < numVolumeCommands
}

// Letter returns the one-character representation used in pattern tables.
func (v VolumeCommand) Letter() byte {
	if !v.isValid() {
		return '?'
	}
	return volumeLetters[v]
}

func (v VolumeCommand) String() string {
	switch v {
	case VolNone:
		return "none"
	case VolVolume:
		return "volume"
	case VolPanning:
		return "panning"
	case VolVolSlideUp:
		return "volume slide up"
	case VolVolSlideDown:
		return "volume slide down"
	case VolFineVolUp:
		return "fine volume up"
	case VolFineVolDown:
		return "fine volume down"
	case VolVibratoSpeed:
		return "vibrato speed"
	case VolVibratoDepth:
		return "vibrato depth"
	case VolPanSlideLeft:
		return "pan slide left"
	case VolPanSlideRight:
		return "pan slide right"
	case VolTonePortamento:
		return "tone portamento"
	case VolPortaUp:
		return "portamento up"
	case VolPortaDown:
		return "portamento down"
	case VolOffset:
		return "sample offset"
	default:
		return fmt.Sprintf("volcmd(%d)", uint8(v))
	}
}
