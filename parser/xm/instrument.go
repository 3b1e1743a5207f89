package xm

import (
	"encoding/binary"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/decompress"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/parser/internal/sampleio"
	"github.com/QEStudios/TrackerLoader/song"
)

const (
	numKeys           = 96
	numEnvPoints      = 12
	instrumentMinSize = 29 // up to and including the sample count
	sampleHeaderSize  = 40
	maxSamplesPerIns  = 32
)

// Envelope type bits.
const (
	envEnabled = 0x01
	envSustain = 0x02
	envLoop    = 0x04
)

// Sample type bits.
const (
	smpLoopMask   = 0x03
	smpLoopFwd    = 0x01
	smpLoopBidi   = 0x02
	smp16Bit      = 0x10
	smpStereo     = 0x20 // OpenMPT extension
	encodingADPCM = 0xAD // ModPlug extension
)

type instrumentHeader struct {
	Size             uint32
	Name             [22]byte
	Type             uint8
	NumSamples       uint16
	SampleHeaderSize uint32
	SampleMap        [numKeys]uint8
	VolumeEnvelope   [numEnvPoints * 2]uint16
	PanningEnvelope  [numEnvPoints * 2]uint16
	NumVolumePoints  uint8
	NumPanningPoints uint8
	VolumeSustain    uint8
	VolumeLoopStart  uint8
	VolumeLoopEnd    uint8
	PanningSustain   uint8
	PanningLoopStart uint8
	PanningLoopEnd   uint8
	VolumeType       uint8
	PanningType      uint8
	VibratoType      uint8
	VibratoSweep     uint8
	VibratoDepth     uint8
	VibratoRate      uint8
	FadeOut          uint16
	Reserved         [22]byte
}

// InstrumentHeaderSize is the size of a complete instrument header.
const InstrumentHeaderSize = 263

type sampleHeader struct {
	Length       uint32 // bytes
	LoopStart    uint32
	LoopLength   uint32
	Volume       uint8
	Finetune     int8
	Type         uint8
	Panning      uint8
	RelativeNote int8
	Encoding     uint8
	Name         [22]byte
}

func convertEnvelope(points []uint16, num, sustain, loopStart, loopEnd, flags uint8) song.Envelope {
	env := song.Envelope{
		Enabled:      flags&envEnabled != 0,
		Sustain:      flags&envSustain != 0,
		Loop:         flags&envLoop != 0,
		LoopStart:    int(loopStart),
		LoopEnd:      int(loopEnd),
		SustainStart: int(sustain),
		SustainEnd:   int(sustain),
	}
	n := min(int(num), numEnvPoints)
	for i := range n {
		env.Points = append(env.Points, song.EnvelopePoint{
			Tick:  points[i*2],
			Value: uint8(min(points[i*2+1], 64)),
		})
	}
	env.Sanitize()
	return env
}

func readInstrument(c *cursor.Cursor, s *song.Song, index int, l *parser.Loader) error {
	start := c.Position()
	size := int(c.ReadUint32LE())
	c.Seek(start)
	if size < instrumentMinSize {
		// some writers store a shortened header for empty instruments
		size = instrumentMinSize
	}
	var ih instrumentHeader
	if !cursor.ReadStructPartial(c, binary.LittleEndian, &ih, size) {
		return parser.Truncated(c, "instrument header")
	}
	if !c.Seek(start + size) {
		return parser.Truncated(c, "instrument header")
	}

	ins := song.NewInstrument()
	ins.Name = song.DecodeName(cursor.TrimString(ih.Name[:], cursor.NullTerminated), s.Format.Charset)
	s.Instruments = append(s.Instruments, ins)
	if ih.NumSamples == 0 {
		return nil
	}
	if ih.NumSamples > maxSamplesPerIns {
		return parser.Corruptf("instrument %d has %d samples", index+1, ih.NumSamples)
	}

	ins.FadeOut = int(ih.FadeOut)
	ins.VolumeEnvelope = convertEnvelope(ih.VolumeEnvelope[:], ih.NumVolumePoints, ih.VolumeSustain,
		ih.VolumeLoopStart, ih.VolumeLoopEnd, ih.VolumeType)
	ins.PanningEnvelope = convertEnvelope(ih.PanningEnvelope[:], ih.NumPanningPoints, ih.PanningSustain,
		ih.PanningLoopStart, ih.PanningLoopEnd, ih.PanningType)

	first := len(s.Samples) + 1
	for key, smp := range ih.SampleMap {
		if int(smp) < int(ih.NumSamples) {
			ins.SampleMap[key+12] = uint16(first + int(smp))
		}
	}

	stride := int(ih.SampleHeaderSize)
	if stride == 0 {
		stride = sampleHeaderSize
	}
	headers := make([]sampleHeader, ih.NumSamples)
	for i := range headers {
		pos := c.Position()
		if !cursor.ReadStructPartial(c, binary.LittleEndian, &headers[i], stride) || !c.Seek(pos+stride) {
			return parser.Truncated(c, "sample header")
		}
	}

	for _, sh := range headers {
		smp := convertSample(&sh, &ih, s.Format.Charset)
		num, err := s.AddSample(smp)
		if err != nil {
			return err
		}
		offset := c.AbsolutePosition()
		truncated, err := readSampleData(c, smp, &sh, l.WantSamples())
		if err != nil {
			return err
		}
		if truncated {
			l.Warnf(offset, "sample %d is truncated to %d frames", num, smp.Length)
		}
	}
	return nil
}

func bytesPerFrame(sh *sampleHeader) int {
	n := 1
	if sh.Type&smp16Bit != 0 {
		n *= 2
	}
	if sh.Type&smpStereo != 0 {
		n *= 2
	}
	return n
}

func convertSample(sh *sampleHeader, ih *instrumentHeader, cs song.Charset) *song.Sample {
	smp := song.NewSample()
	smp.Name = song.DecodeName(cursor.TrimString(sh.Name[:], cursor.NullTerminated), cs)
	smp.Volume = int(min(sh.Volume, 64)) * 4
	smp.Panning = int(sh.Panning)
	smp.Flags |= song.SamplePanning
	smp.RelativeTone = sh.RelativeNote
	smp.FineTune = sh.Finetune
	smp.C5Speed = song.TransposeToFrequency(int(sh.RelativeNote), int(sh.Finetune))
	smp.VibratoType = ih.VibratoType
	smp.VibratoSweep = ih.VibratoSweep
	smp.VibratoDepth = ih.VibratoDepth
	smp.VibratoRate = ih.VibratoRate

	frame := bytesPerFrame(sh)
	smp.Length = int(sh.Length) / frame
	if sh.Encoding == encodingADPCM {
		smp.Length = int(sh.Length)
	}
	start := int(sh.LoopStart) / frame
	end := start + int(sh.LoopLength)/frame
	loop := sh.Type & smpLoopMask
	smp.SetLoop(start, end, loop != 0, loop&smpLoopBidi != 0)
	smp.SanitizeLoops()
	return smp
}

// readSampleData reads or skips the data of one sample. The cursor always ends up after
// the stored data, which is needed to find the next instrument.
func readSampleData(c *cursor.Cursor, smp *song.Sample, sh *sampleHeader, want bool) (truncated bool, err error) {
	size := int(sh.Length)
	if sh.Encoding == encodingADPCM {
		size = decompress.ADPCM4Size(smp.Length)
	}
	data := c.ReadChunk(size)
	if !want {
		return false, nil
	}

	if sh.Encoding == encodingADPCM {
		pcm, err := decompress.ADPCM4(data, smp.Length)
		if err != nil {
			// a partial ADPCM block cannot be decoded
			smp.Length = 0
			smp.SanitizeLoops()
			return true, nil
		}
		return sampleio.SetPCM8(smp, pcm), nil
	}

	enc := sampleio.Delta8
	if sh.Type&smp16Bit != 0 {
		enc = sampleio.Delta16LE
	}
	if sh.Type&smpStereo != 0 {
		enc.Layout = sampleio.Split
	}
	return sampleio.Read(data, smp, enc)
}
