// Package modcmd translates the two big native effect families, ProTracker-style
// (MOD, XM and their descendants) and Scream Tracker-style (S3M, IT and compatibles),
// into unified commands. Translation never fails: unknown commands become CmdNone.
package modcmd

import (
	"github.com/QEStudios/TrackerLoader/song"
)

// XM command numbers beyond the ProTracker 0-F range.
const (
	XMGlobalVolume      = 0x10 // G
	XMGlobalVolumeSlide = 0x11 // H
	XMKeyOff            = 0x14 // K
	XMSetEnvPosition    = 0x15 // L
	XMPanningSlide      = 0x19 // P
	XMRetrig            = 0x1B // R
	XMTremor            = 0x1D // T
	XMExtraFinePorta    = 0x21 // X
	XMPanbrello         = 0x22 // Y
	XMMidi              = 0x23 // Z
	XMSmoothMidi        = 0x24 // \
	XMExtendedXParam    = 0x25 // #
)

// BCD converts a binary coded decimal byte, as used by ProTracker pattern breaks.
func BCD(param uint8) uint8 {
	return (param>>4)*10 + param&0x0F
}

var modCommands = [16]song.Command{
	song.CmdArpeggio,
	song.CmdPortamentoUp,
	song.CmdPortamentoDown,
	song.CmdTonePortamento,
	song.CmdVibrato,
	song.CmdTonePortaVol,
	song.CmdVibratoVol,
	song.CmdTremolo,
	song.CmdPanning8,
	song.CmdOffset,
	song.CmdVolumeSlide,
	song.CmdPositionJump,
	song.CmdVolume,
	song.CmdPatternBreak,
	song.CmdModCmdEx,
	song.CmdSpeed,
}

// MOD translates a ProTracker command (0-F) or an XM extension command (10-25).
//
// Set volume is clamped to 64, pattern break rows are BCD, and Fxx is speed below 0x20
// and tempo from there on.
func MOD(command, param uint8) (song.Command, uint8) {
	if command < 16 {
		cmd := modCommands[command]
		switch cmd {
		case song.CmdArpeggio:
			if param == 0 {
				return song.CmdNone, 0
			}
		case song.CmdVolume:
			param = min(param, 64)
		case song.CmdPatternBreak:
			param = BCD(param)
		case song.CmdSpeed:
			if param == 0 {
				// F00 stops the song in ProTracker; there is no unified command for that
				return song.CmdNone, 0
			}
			if param >= 0x20 {
				cmd = song.CmdTempo
			}
		case song.CmdModCmdEx:
			// E8x is coarse panning, which has a direct equivalent
			if param&0xF0 == 0x80 {
				return song.CmdPanning8, (param & 0x0F) * 0x11
			}
		}
		return cmd, param
	}
	switch command {
	case XMGlobalVolume:
		return song.CmdGlobalVolume, min(param, 64)
	case XMGlobalVolumeSlide:
		return song.CmdGlobalVolSlide, param
	case XMKeyOff:
		return song.CmdKeyOff, param
	case XMSetEnvPosition:
		return song.CmdSetEnvPosition, param
	case XMPanningSlide:
		return song.CmdPanningSlide, param
	case XMRetrig:
		return song.CmdRetrig, param
	case XMTremor:
		return song.CmdTremor, param
	case XMExtraFinePorta:
		switch param >> 4 {
		case 1:
			return song.CmdXFinePortaUpDown, 0x10 | param&0x0F
		case 2:
			return song.CmdXFinePortaUpDown, 0x20 | param&0x0F
		}
		return song.CmdNone, 0
	case XMPanbrello:
		return song.CmdPanbrello, param
	case XMMidi:
		return song.CmdMidi, param
	case XMSmoothMidi:
		return song.CmdSmoothMidi, param
	case XMExtendedXParam:
		return song.CmdXParam, param
	}
	return song.CmdNone, 0
}

// Dialect selects the small differences between S3M-style trackers.
type Dialect int

const (
	ScreamTracker Dialect = iota // pattern break rows are BCD
	ImpulseTracker
)

// S3M translates a Scream Tracker / Impulse Tracker command letter number (A=1 ... Z=26).
func S3M(command, param uint8, dialect Dialect) (song.Command, uint8) {
	switch command {
	case 'A' - '@':
		if param == 0 {
			return song.CmdNone, 0
		}
		return song.CmdSpeed, param
	case 'B' - '@':
		return song.CmdPositionJump, param
	case 'C' - '@':
		if dialect == ScreamTracker {
			param = BCD(param)
		}
		return song.CmdPatternBreak, param
	case 'D' - '@':
		return song.CmdVolumeSlide, param
	case 'E' - '@':
		return song.CmdPortamentoDown, param
	case 'F' - '@':
		return song.CmdPortamentoUp, param
	case 'G' - '@':
		return song.CmdTonePortamento, param
	case 'H' - '@':
		return song.CmdVibrato, param
	case 'I' - '@':
		return song.CmdTremor, param
	case 'J' - '@':
		return song.CmdArpeggio, param
	case 'K' - '@':
		return song.CmdVibratoVol, param
	case 'L' - '@':
		return song.CmdTonePortaVol, param
	case 'M' - '@':
		return song.CmdChannelVolume, min(param, 64)
	case 'N' - '@':
		return song.CmdChannelVolSlide, param
	case 'O' - '@':
		return song.CmdOffset, param
	case 'P' - '@':
		return song.CmdPanningSlide, param
	case 'Q' - '@':
		return song.CmdRetrig, param
	case 'R' - '@':
		return song.CmdTremolo, param
	case 'S' - '@':
		return song.CmdS3MCmdEx, param
	case 'T' - '@':
		return song.CmdTempo, param
	case 'U' - '@':
		return song.CmdFineVibrato, param
	case 'V' - '@':
		if dialect == ImpulseTracker {
			return song.CmdGlobalVolume, min(param, 128)
		}
		return song.CmdGlobalVolume, min(param, 64)
	case 'W' - '@':
		return song.CmdGlobalVolSlide, param
	case 'X' - '@':
		return song.CmdPanning8, param
	case 'Y' - '@':
		return song.CmdPanbrello, param
	case 'Z' - '@':
		return song.CmdMidi, param
	}
	return song.CmdNone, 0
}

// ModExToS3M rewrites a ProTracker Exy sub-command as the equivalent command for formats
// that prefer S3M semantics. ok is false for sub-commands without an S3M counterpart.
func ModExToS3M(param uint8) (cmd song.Command, p uint8, ok bool) {
	x, y := param>>4, param&0x0F
	switch x {
	case 0x1:
		return song.CmdPortamentoUp, 0xF0 | y, true
	case 0x2:
		return song.CmdPortamentoDown, 0xF0 | y, true
	case 0x3:
		return song.CmdS3MCmdEx, 0x10 | y, true
	case 0x4:
		return song.CmdS3MCmdEx, 0x30 | y, true
	case 0x5:
		return song.CmdS3MCmdEx, 0x20 | y, true
	case 0x6:
		return song.CmdS3MCmdEx, 0xB0 | y, true
	case 0x7:
		return song.CmdS3MCmdEx, 0x40 | y, true
	case 0x8:
		return song.CmdS3MCmdEx, 0x80 | y, true
	case 0x9:
		return song.CmdRetrig, y, true
	case 0xA:
		return song.CmdVolumeSlide, y<<4 | 0x0F, true
	case 0xB:
		return song.CmdVolumeSlide, 0xF0 | y, true
	case 0xC:
		return song.CmdS3MCmdEx, 0xC0 | y, true
	case 0xD:
		return song.CmdS3MCmdEx, 0xD0 | y, true
	case 0xE:
		return song.CmdS3MCmdEx, 0xE0 | y, true
	}
	return song.CmdNone, 0, false
}

// XMVolumeColumn translates an XM volume column byte.
func XMVolumeColumn(v uint8) (song.VolumeCommand, uint8) {
	switch {
	case v >= 0x10 && v <= 0x50:
		return song.VolVolume, v - 0x10
	case v >= 0x60 && v <= 0x6F:
		return song.VolVolSlideDown, v & 0x0F
	case v >= 0x70 && v <= 0x7F:
		return song.VolVolSlideUp, v & 0x0F
	case v >= 0x80 && v <= 0x8F:
		return song.VolFineVolDown, v & 0x0F
	case v >= 0x90 && v <= 0x9F:
		return song.VolFineVolUp, v & 0x0F
	case v >= 0xA0 && v <= 0xAF:
		return song.VolVibratoSpeed, v & 0x0F
	case v >= 0xB0 && v <= 0xBF:
		return song.VolVibratoDepth, v & 0x0F
	case v >= 0xC0 && v <= 0xCF:
		return song.VolPanning, uint8(int(v&0x0F) * 64 / 15)
	case v >= 0xD0 && v <= 0xDF:
		return song.VolPanSlideLeft, v & 0x0F
	case v >= 0xE0 && v <= 0xEF:
		return song.VolPanSlideRight, v & 0x0F
	case v >= 0xF0:
		return song.VolTonePortamento, v & 0x0F
	}
	return song.VolNone, 0
}

// ITVolumeColumn translates an IT volume column byte.
func ITVolumeColumn(v uint8) (song.VolumeCommand, uint8) {
	switch {
	case v <= 64:
		return song.VolVolume, v
	case v <= 74:
		return song.VolFineVolUp, v - 65
	case v <= 84:
		return song.VolFineVolDown, v - 75
	case v <= 94:
		return song.VolVolSlideUp, v - 85
	case v <= 104:
		return song.VolVolSlideDown, v - 95
	case v <= 114:
		return song.VolPortaDown, v - 105
	case v <= 124:
		return song.VolPortaUp, v - 115
	case v >= 128 && v <= 192:
		return song.VolPanning, v - 128
	case v >= 193 && v <= 202:
		return song.VolTonePortamento, v - 193
	case v >= 203 && v <= 212:
		return song.VolVibratoDepth, v - 203
	}
	return song.VolNone, 0
}
