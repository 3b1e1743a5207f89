package modcmd

import (
	"testing"

	"github.com/QEStudios/TrackerLoader/song"
)

func TestMOD(t *testing.T) {
	tests := []struct {
		command, param uint8
		expCmd         song.Command
		expParam       uint8
	}{
		{0xC, 0x40, song.CmdVolume, 64},
		{0xC, 0x7F, song.CmdVolume, 64},
		{0xC, 0x20, song.CmdVolume, 32},
		{0x0, 0x00, song.CmdNone, 0},
		{0x0, 0x37, song.CmdArpeggio, 0x37},
		{0xD, 0x12, song.CmdPatternBreak, 12},
		{0xF, 0x06, song.CmdSpeed, 6},
		{0xF, 0x1F, song.CmdSpeed, 0x1F},
		{0xF, 0x20, song.CmdTempo, 0x20},
		{0xF, 0x00, song.CmdNone, 0},
		{0xE, 0x8F, song.CmdPanning8, 0xFF},
		{0xE, 0x61, song.CmdModCmdEx, 0x61},
		{XMGlobalVolume, 0x50, song.CmdGlobalVolume, 64},
		{XMExtraFinePorta, 0x13, song.CmdXFinePortaUpDown, 0x13},
		{XMExtraFinePorta, 0x33, song.CmdNone, 0},
		{0x30, 0x10, song.CmdNone, 0},
	}
	for _, tt := range tests {
		cmd, param := MOD(tt.command, tt.param)
		if cmd != tt.expCmd || param != tt.expParam {
			t.Errorf("MOD(%X, %02X) = %s %02X, expected %s %02X", tt.command, tt.param, cmd, param, tt.expCmd, tt.expParam)
		}
	}
}

func TestS3M(t *testing.T) {
	tests := []struct {
		command, param uint8
		dialect        Dialect
		expCmd         song.Command
		expParam       uint8
	}{
		{'A' - '@', 3, ScreamTracker, song.CmdSpeed, 3},
		{'A' - '@', 0, ScreamTracker, song.CmdNone, 0},
		{'C' - '@', 0x16, ScreamTracker, song.CmdPatternBreak, 16},
		{'C' - '@', 0x16, ImpulseTracker, song.CmdPatternBreak, 0x16},
		{'V' - '@', 0x80, ImpulseTracker, song.CmdGlobalVolume, 0x80},
		{'V' - '@', 0x80, ScreamTracker, song.CmdGlobalVolume, 64},
		{'S' - '@', 0xB2, ScreamTracker, song.CmdS3MCmdEx, 0xB2},
		{27, 0x10, ScreamTracker, song.CmdNone, 0},
	}
	for _, tt := range tests {
		cmd, param := S3M(tt.command, tt.param, tt.dialect)
		if cmd != tt.expCmd || param != tt.expParam {
			t.Errorf("S3M(%c, %02X) = %s %02X, expected %s %02X", tt.command+'@', tt.param, cmd, param, tt.expCmd, tt.expParam)
		}
	}
}

func TestVolumeColumns(t *testing.T) {
	if vc, v := XMVolumeColumn(0x50); vc != song.VolVolume || v != 64 {
		t.Errorf("XM 0x50: got %s %d", vc, v)
	}
	if vc, v := XMVolumeColumn(0xCF); vc != song.VolPanning || v != 64 {
		t.Errorf("XM 0xCF: got %s %d", vc, v)
	}
	if vc, _ := XMVolumeColumn(0x05); vc != song.VolNone {
		t.Errorf("XM 0x05: got %s", vc)
	}
	if vc, v := ITVolumeColumn(200); vc != song.VolTonePortamento || v != 7 {
		t.Errorf("IT 200: got %s %d", vc, v)
	}
	if vc, _ := ITVolumeColumn(125); vc != song.VolNone {
		t.Errorf("IT 125: got %s", vc)
	}
}
