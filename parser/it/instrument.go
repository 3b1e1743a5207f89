package it

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/decompress"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	numKeys         = 120
	numEnvNodes     = 25
	numOldEnvNodes  = 25
	envEnabled      = 0x01
	envLoop         = 0x02
	envSustain      = 0x04
	panDontUse      = 0x80
	oldEnvEndMarker = 0xFF
)

type envNode struct {
	Value int8
	Tick  uint16
}

type envelope struct {
	Flags        uint8
	NumNodes     uint8
	LoopStart    uint8
	LoopEnd      uint8
	SustainStart uint8
	SustainEnd   uint8
	Nodes        [numEnvNodes]envNode
	Reserved     uint8
}

// instrumentHeader is the layout written by Impulse Tracker 2.00 and later.
type instrumentHeader struct {
	Magic           [4]byte // "IMPI"
	Filename        [12]byte
	Zero            uint8
	NNA             uint8
	DCT             uint8
	DCA             uint8
	FadeOut         uint16
	PitchPanSep     int8
	PitchPanCenter  uint8
	GlobalVolume    uint8 // 0..128
	DefaultPan      uint8
	RandomVolume    uint8
	RandomPan       uint8
	TrackerVersion  uint16
	NumSamples      uint8
	Reserved        uint8
	Name            [26]byte
	FilterCutoff    uint8
	FilterResonance uint8
	MIDIChannel     uint8
	MIDIProgram     uint8
	MIDIBank        uint16
	Keyboard        [numKeys * 2]uint8 // note, sample pairs
	VolumeEnvelope  envelope
	PanningEnvelope envelope
	PitchEnvelope   envelope
	Reserved2       [4]byte
}

// oldInstrumentHeader is the Impulse Tracker 1.x layout.
type oldInstrumentHeader struct {
	Magic          [4]byte
	Filename       [12]byte
	Zero           uint8
	Flags          uint8
	LoopStart      uint8
	LoopEnd        uint8
	SustainStart   uint8
	SustainEnd     uint8
	Reserved       [2]byte
	FadeOut        uint16
	NNA            uint8
	DNC            uint8
	TrackerVersion uint16
	NumSamples     uint8
	Reserved2      uint8
	Name           [26]byte
	Reserved3      [6]byte
	Keyboard       [numKeys * 2]uint8
	VolumeTable    [200]uint8
	Nodes          [numOldEnvNodes * 2]uint8 // tick, value pairs
}

// InstrumentHeaderSize is the size of both instrument layouts.
const InstrumentHeaderSize = 554

func readKeyboard(ins *song.Instrument, kb *[numKeys * 2]uint8) {
	for i := range numKeys {
		if note := kb[i*2]; note < numKeys {
			ins.NoteMap[i] = song.NoteMin + song.Note(note)
		}
		ins.SampleMap[i] = uint16(kb[i*2+1])
	}
}

// convertEnvelope converts an envelope; offset is added to the node values so that
// signed panning and pitch envelopes fit the 0..64 range with 32 as centre.
func convertEnvelope(e *envelope, offset int) song.Envelope {
	env := song.Envelope{
		Enabled:      e.Flags&envEnabled != 0,
		Loop:         e.Flags&envLoop != 0,
		Sustain:      e.Flags&envSustain != 0,
		LoopStart:    int(e.LoopStart),
		LoopEnd:      int(e.LoopEnd),
		SustainStart: int(e.SustainStart),
		SustainEnd:   int(e.SustainEnd),
	}
	for _, n := range e.Nodes[:min(int(e.NumNodes), numEnvNodes)] {
		v := max(0, min(int(n.Value)+offset, 64))
		env.Points = append(env.Points, song.EnvelopePoint{Tick: n.Tick, Value: uint8(v)})
	}
	env.Sanitize()
	return env
}

func readInstrument(c *cursor.Cursor, pos int, newFormat bool, cs song.Charset) (*song.Instrument, error) {
	hc := c.ChunkAt(pos, InstrumentHeaderSize)
	if !hc.HasMagicAt(0, "IMPI") {
		return nil, errors.New("missing IMPI tag")
	}
	ins := song.NewInstrument()
	if !newFormat {
		var h oldInstrumentHeader
		if !cursor.ReadStruct(hc, binary.LittleEndian, &h) {
			return nil, errors.New("header is truncated")
		}
		ins.Name = song.DecodeName(cursor.TrimString(h.Name[:], cursor.NullTerminated), cs)
		ins.Filename = song.DecodeName(cursor.TrimString(h.Filename[:], cursor.NullTerminated), cs)
		// old fade out values are a quarter of the new range
		ins.FadeOut = int(h.FadeOut) << 6
		readKeyboard(ins, &h.Keyboard)
		env := song.Envelope{
			Enabled:      h.Flags&envEnabled != 0,
			Loop:         h.Flags&envLoop != 0,
			Sustain:      h.Flags&envSustain != 0,
			LoopStart:    int(h.LoopStart),
			LoopEnd:      int(h.LoopEnd),
			SustainStart: int(h.SustainStart),
			SustainEnd:   int(h.SustainEnd),
		}
		for i := 0; i < len(h.Nodes); i += 2 {
			if h.Nodes[i] == oldEnvEndMarker {
				break
			}
			env.Points = append(env.Points, song.EnvelopePoint{Tick: uint16(h.Nodes[i]), Value: h.Nodes[i+1]})
		}
		env.Sanitize()
		ins.VolumeEnvelope = env
		return ins, nil
	}

	var h instrumentHeader
	if !cursor.ReadStruct(hc, binary.LittleEndian, &h) {
		return nil, errors.New("header is truncated")
	}
	ins.Name = song.DecodeName(cursor.TrimString(h.Name[:], cursor.NullTerminated), cs)
	ins.Filename = song.DecodeName(cursor.TrimString(h.Filename[:], cursor.NullTerminated), cs)
	ins.FadeOut = int(h.FadeOut) << 5
	ins.GlobalVolume = min(int(h.GlobalVolume), 128) / 2
	if h.DefaultPan&panDontUse == 0 {
		ins.Panning = min(int(h.DefaultPan), 64) * 4
		ins.PanningSet = true
	}
	readKeyboard(ins, &h.Keyboard)
	ins.VolumeEnvelope = convertEnvelope(&h.VolumeEnvelope, 0)
	ins.PanningEnvelope = convertEnvelope(&h.PanningEnvelope, 32)
	ins.PitchEnvelope = convertEnvelope(&h.PitchEnvelope, 32)
	return ins, nil
}

// Sample flags.
const (
	smpPresent         = 0x01
	smp16Bit           = 0x02
	smpStereo          = 0x04
	smpCompressed      = 0x08
	smpLoop            = 0x10
	smpSustain         = 0x20
	smpPingPong        = 0x40
	smpSustainPingPong = 0x80
	smpPanEnabled      = 0x80 // in DefaultPan
)

// Sample conversion flags.
const (
	cvtSigned    = 0x01
	cvtBigEndian = 0x02
	cvtDelta     = 0x04 // IT 2.15 compression if the sample is compressed
)

type sampleHeader struct {
	Magic        [4]byte // "IMPS"
	Filename     [12]byte
	Zero         uint8
	GlobalVolume uint8
	Flags        uint8
	Volume       uint8
	Name         [26]byte
	Convert      uint8
	DefaultPan   uint8
	Length       uint32
	LoopStart    uint32
	LoopEnd      uint32
	C5Speed      uint32
	SustainStart uint32
	SustainEnd   uint32
	DataPointer  uint32
	VibratoSpeed uint8
	VibratoDepth uint8
	VibratoRate  uint8
	VibratoType  uint8
}

// SampleHeaderSize is the size of sampleHeader in the file.
const SampleHeaderSize = 80

func readSample(c *cursor.Cursor, pos int, cs song.Charset, l *parser.Loader) (*song.Sample, error) {
	smp := song.NewSample()
	hc := c.ChunkAt(pos, SampleHeaderSize)
	var sh sampleHeader
	if !cursor.ReadStruct(hc, binary.LittleEndian, &sh) || string(sh.Magic[:]) != "IMPS" {
		l.Warnf(int64(pos), "invalid sample header")
		return smp, nil
	}
	smp.Name = song.DecodeName(cursor.TrimString(sh.Name[:], cursor.NullTerminated), cs)
	smp.Filename = song.DecodeName(cursor.TrimString(sh.Filename[:], cursor.NullTerminated), cs)
	smp.GlobalVolume = min(int(sh.GlobalVolume), 64)
	smp.Volume = min(int(sh.Volume), 64) * 4
	if sh.DefaultPan&smpPanEnabled != 0 {
		smp.Panning = min(int(sh.DefaultPan&0x7F), 64) * 4
		smp.Flags |= song.SamplePanning
	}
	smp.C5Speed = sh.C5Speed
	if smp.C5Speed == 0 {
		smp.C5Speed = 8363
	}
	smp.VibratoRate = sh.VibratoSpeed
	smp.VibratoDepth = sh.VibratoDepth
	smp.VibratoSweep = sh.VibratoRate
	smp.VibratoType = sh.VibratoType
	if sh.Flags&smpPresent == 0 {
		return smp, nil
	}

	smp.Length = min(int(sh.Length), song.MaxSampleLength)
	smp.SetLoop(int(sh.LoopStart), int(sh.LoopEnd), sh.Flags&smpLoop != 0, sh.Flags&smpPingPong != 0)
	smp.SetSustainLoop(int(sh.SustainStart), int(sh.SustainEnd), sh.Flags&smpSustain != 0, sh.Flags&smpSustainPingPong != 0)
	smp.SanitizeLoops()
	if sh.Flags&smpStereo != 0 {
		smp.Flags |= song.SampleStereo
	}
	if sh.Flags&smp16Bit != 0 {
		smp.Flags |= song.Sample16Bit
	}
	if !l.WantSamples() || smp.Length == 0 {
		return smp, nil
	}

	dataPos := int(sh.DataPointer)
	var truncated bool
	if sh.Flags&smpCompressed != 0 {
		var err error
		truncated, err = readCompressed(c.ChunkAt(dataPos, c.Len()-dataPos), smp, sh.Flags, sh.Convert&cvtDelta != 0)
		if err != nil {
			l.Warnf(int64(dataPos), "sample %q: %v", smp.Name, err)
			smp.Length = 0
			smp.SanitizeLoops()
			return smp, nil
		}
	} else {
		enc := sampleio.Encoding{
			Bits:      8,
			Unsigned:  sh.Convert&cvtSigned == 0,
			BigEndian: sh.Convert&cvtBigEndian != 0,
			Delta:     sh.Convert&cvtDelta != 0,
		}
		if sh.Flags&smp16Bit != 0 {
			enc.Bits = 16
		}
		if sh.Flags&smpStereo != 0 {
			enc.Layout = sampleio.Split
		}
		var err error
		truncated, err = sampleio.ReadAt(c, dataPos, smp, enc)
		if err != nil {
			return nil, err
		}
	}
	if truncated {
		l.Warnf(int64(dataPos), "sample %q is truncated to %d frames", smp.Name, smp.Length)
	}
	return smp, nil
}

// readCompressed decodes IT 2.14/2.15 compressed data. Stereo samples store the left
// channel's blocks first, then the right channel's.
func readCompressed(c *cursor.Cursor, smp *song.Sample, flags uint8, it215 bool) (truncated bool, err error) {
	channels := 1
	if flags&smpStereo != 0 {
		channels = 2
	}
	n := smp.Length
	if flags&smp16Bit != 0 {
		var planes [][]int16
		for range channels {
			pcm, err := decompress.IT16(c, n, it215)
			if err != nil {
				return false, err
			}
			planes = append(planes, pcm)
		}
		if channels == 1 {
			return sampleio.SetPCM16(smp, planes[0]), nil
		}
		smp.PCM8 = nil
		smp.PCM16 = interleave(planes[0], planes[1])
		smp.SanitizeLoops()
		return false, nil
	}
	var planes [][]int8
	for range channels {
		pcm, err := decompress.IT8(c, n, it215)
		if err != nil {
			return false, err
		}
		planes = append(planes, pcm)
	}
	if channels == 1 {
		return sampleio.SetPCM8(smp, planes[0]), nil
	}
	smp.PCM16 = nil
	smp.PCM8 = interleave(planes[0], planes[1])
	smp.SanitizeLoops()
	return false, nil
}

func interleave[T int8 | int16](left, right []T) []T {
	out := make([]T, 0, len(left)*2)
	for i := range left {
		out = append(out, left[i], right[i])
	}
	return out
}
