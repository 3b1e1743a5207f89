// Package midiexport renders the note data of a decoded song as a Standard MIDI File.
//
// Playback follows the order list from the start: stop entries end the song, skip entries
// are passed over, pattern breaks start the next order at the given row and forward
// position jumps are followed. A backward jump is a loop and ends the export.
// One tracker tick is four MIDI ticks at 96 ticks per quarter note, which makes the MIDI
// tempo in BPM equal to the tracker tempo.
package midiexport

import (
	"fmt"
	"io"
	"log"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/QEStudios/TrackerLoader/song"
)

const (
	ticksPerQuarter   = 96
	midiTicksPerTick  = ticksPerQuarter / 24
	defaultVelocity   = 100
	maxExportedRows   = 1 << 20
	drumChannel       = 9
	midiChannelsInUse = 15 // every MIDI channel except drums
)

// A channelTrack collects the events of one tracker channel.
type channelTrack struct {
	track    smf.Track
	channel  uint8
	lastTick uint32
	playing  int // sounding MIDI key, or -1
	notes    int
}

func (t *channelTrack) add(tick uint32, msg midi.Message) {
	t.track.Add(tick-t.lastTick, msg)
	t.lastTick = tick
}

func (t *channelTrack) stop(tick uint32) {
	if t.playing < 0 {
		return
	}
	t.add(tick, midi.NoteOff(t.channel, uint8(t.playing)))
	t.playing = -1
}

type exporter struct {
	s      *song.Song
	logger *log.Logger

	conductor     smf.Track
	conductorTick uint32
	channels      []*channelTrack

	tick  uint32
	speed int
	tempo int
}

// Convert builds a MIDI file with a conductor track followed by one track per channel.
// A nil logger discards log output.
func Convert(s *song.Song, logger *log.Logger) (*smf.SMF, error) {
	if s == nil || s.NumChannels() == 0 {
		return nil, errors.New("song has no channels")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	e := &exporter{
		s:      s,
		logger: logger,
		speed:  max(s.InitialSpeed, 1),
		tempo:  max(s.InitialTempo, 32),
	}
	for i := range s.Channels {
		ch := uint8(i % midiChannelsInUse)
		if ch >= drumChannel {
			ch++
		}
		t := &channelTrack{channel: ch, playing: -1}
		name := s.Channels[i].Name
		if name == "" {
			name = fmt.Sprintf("Channel %d", i+1)
		}
		t.track.Add(0, smf.MetaTrackSequenceName(name))
		e.channels = append(e.channels, t)
	}
	if s.NumChannels() > midiChannelsInUse {
		logger.Printf("%d channels share %d MIDI channels", s.NumChannels(), midiChannelsInUse)
	}

	e.conductor.Add(0, smf.MetaTrackSequenceName(s.Title))
	e.conductor.Add(0, smf.MetaTempo(float64(e.tempo)))
	rows := e.play()

	out := smf.New()
	out.TimeFormat = smf.MetricTicks(ticksPerQuarter)
	e.conductor.Close(e.tick - e.conductorTick)
	if err := out.Add(e.conductor); err != nil {
		return nil, errors.Wrap(err, "adding conductor track")
	}
	notes := 0
	for i, t := range e.channels {
		t.stop(e.tick)
		t.track.Close(e.tick - t.lastTick)
		if err := out.Add(t.track); err != nil {
			return nil, errors.Wrapf(err, "adding track for channel %d", i+1)
		}
		notes += t.notes
	}
	logger.Printf("exported %d rows and %d notes", rows, notes)
	return out, nil
}

// Write converts s and writes it to w as a Standard MIDI File.
func Write(w io.Writer, s *song.Song, logger *log.Logger) error {
	out, err := Convert(s, logger)
	if err != nil {
		return err
	}
	if _, err := out.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing MIDI file")
	}
	return nil
}

// play walks the order list and returns the number of rows exported.
func (e *exporter) play() int {
	rows := 0
	startRow := 0
	for ord := 0; ord < len(e.s.Order) && rows < maxExportedRows; {
		idx := e.s.Order[ord]
		if idx == song.OrderStop {
			break
		}
		p := e.s.Pattern(int(idx))
		if idx == song.OrderSkip || p == nil {
			ord++
			startRow = 0
			continue
		}
		next := ord + 1
		nextRow := 0
		for row := min(startRow, p.Rows()-1); row < p.Rows(); row++ {
			jump, breakRow := e.playRow(p.Row(row))
			rows++
			if jump >= 0 || breakRow >= 0 {
				if jump >= 0 {
					if jump <= ord {
						e.logger.Printf("order %d jumps back to order %d, stopping", ord, jump)
						return rows
					}
					next = jump
				}
				nextRow = max(breakRow, 0)
				break
			}
		}
		ord, startRow = next, nextRow
	}
	return rows
}

// playRow emits one row and advances time. It returns the position jump target and the
// pattern break row, each -1 when absent.
func (e *exporter) playRow(cells []song.Cell) (jump, breakRow int) {
	jump, breakRow = -1, -1
	for _, c := range cells {
		switch c.Command {
		case song.CmdSpeed:
			if c.Param > 0 {
				e.speed = int(c.Param)
			}
		case song.CmdTempo:
			if c.Param >= 32 && int(c.Param) != e.tempo {
				e.tempo = int(c.Param)
				e.conductor.Add(e.tick-e.conductorTick, smf.MetaTempo(float64(e.tempo)))
				e.conductorTick = e.tick
			}
		case song.CmdPositionJump:
			jump = int(c.Param)
		case song.CmdPatternBreak:
			breakRow = int(c.Param)
		}
	}
	for ch, c := range cells {
		e.playCell(e.channels[ch], c)
	}
	e.tick += uint32(e.speed * midiTicksPerTick)
	return jump, breakRow
}

func (e *exporter) playCell(t *channelTrack, c song.Cell) {
	switch {
	case c.Note.IsSpecial():
		t.stop(e.tick)
	case c.Note.IsPitch():
		t.stop(e.tick)
		key := int(c.Note - song.NoteMin)
		if key > 127 {
			return
		}
		t.add(e.tick, midi.NoteOn(t.channel, uint8(key), e.velocity(c)))
		t.playing = key
		t.notes++
	case c.VolCmd == song.VolVolume && c.Vol == 0:
		t.stop(e.tick)
	}
}

// velocity derives a note velocity from the volume column or the sample's default volume.
func (e *exporter) velocity(c song.Cell) uint8 {
	if c.VolCmd == song.VolVolume {
		return uint8(max(int(c.Vol)*127/64, 1))
	}
	if c.Command == song.CmdVolume {
		return uint8(max(int(min(c.Param, 64))*127/64, 1))
	}
	if smp := e.s.Sample(int(c.Instrument)); smp != nil && len(e.s.Instruments) == 0 {
		return uint8(max(smp.Volume*127/256, 1))
	}
	return defaultVelocity
}
