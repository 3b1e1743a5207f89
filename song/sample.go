package song

import (
	"fmt"
	"math"
)

const (
	MaxSamples      = 4000
	MaxSampleLength = 0x10000000 // frames
)

// SampleFlags are boolean sample properties.
type SampleFlags uint16

const (
	SampleLoop SampleFlags = 1 << iota
	SamplePingPong
	SampleSustain
	SampleSustainPingPong
	Sample16Bit
	SampleStereo
	SamplePanning // Panning is valid and overrides the channel panning
	SampleAdlib   // OPL instrument, AdlibPatch holds the registers
	SampleReverse
)

// An AdlibPatch holds the OPL2 register values of an FM instrument:
// modulator/carrier characteristic, scaling/output level, attack/decay, sustain/release,
// wave select, and the feedback/connection byte.
type AdlibPatch [12]byte

// A Sample is one playable waveform.
type Sample struct {
	Name     string
	Filename string

	Length       int // frames
	LoopStart    int
	LoopEnd      int
	SustainStart int
	SustainEnd   int
	Flags        SampleFlags

	Volume       int // 0..256
	GlobalVolume int // 0..64
	Panning      int // 0..256, used when SamplePanning is set

	// Base pitch: either C5Speed or the RelativeTone/FineTune pair is authoritative,
	// depending on the format; loaders fill in both where they can.
	C5Speed      uint32
	RelativeTone int8
	FineTune     int8 // 1/128th semitones

	VibratoType  uint8
	VibratoSweep uint8
	VibratoDepth uint8
	VibratoRate  uint8

	// PCM data. Exactly one of these is set for a loaded sample with data; stereo
	// samples are interleaved.
	PCM8  []int8
	PCM16 []int16

	AdlibPatch *AdlibPatch
}

// NewSample returns a sample with neutral defaults.
func NewSample() *Sample {
	return &Sample{
		Volume:       256,
		GlobalVolume: 64,
		Panning:      128,
		C5Speed:      8363,
	}
}

// Is16Bit reports whether the sample uses 16-bit PCM.
func (s *Sample) Is16Bit() bool {
	return s.Flags&Sample16Bit != 0
}

// NumChannels returns 2 for stereo samples and 1 otherwise.
func (s *Sample) NumChannels() int {
	if s.Flags&SampleStereo != 0 {
		return 2
	}
	return 1
}

// HasData reports whether PCM data has been loaded.
func (s *Sample) HasData() bool {
	return s.PCM8 != nil || s.PCM16 != nil
}

// AllocatePCM allocates a zeroed PCM buffer for Length frames. Length must already have
// been checked against the input size; the global ceiling here only stops runaway values.
func (s *Sample) AllocatePCM() error {
	if s.Length < 0 || s.Length > MaxSampleLength {
		return fmt.Errorf("sample length must be 0-%d, got %d", MaxSampleLength, s.Length)
	}
	n := s.Length * s.NumChannels()
	if s.Is16Bit() {
		s.PCM16 = make([]int16, n)
		s.PCM8 = nil
	} else {
		s.PCM8 = make([]int8, n)
		s.PCM16 = nil
	}
	return nil
}

// SetLoop sets the loop points and flag. An empty or inverted range disables the loop.
func (s *Sample) SetLoop(start, end int, enabled, pingPong bool) {
	s.LoopStart, s.LoopEnd = start, end
	s.Flags &^= SampleLoop | SamplePingPong
	if enabled && end > start {
		s.Flags |= SampleLoop
		if pingPong {
			s.Flags |= SamplePingPong
		}
	}
}

// SetSustainLoop sets the sustain loop points and flag.
func (s *Sample) SetSustainLoop(start, end int, enabled, pingPong bool) {
	s.SustainStart, s.SustainEnd = start, end
	s.Flags &^= SampleSustain | SampleSustainPingPong
	if enabled && end > start {
		s.Flags |= SampleSustain
		if pingPong {
			s.Flags |= SampleSustainPingPong
		}
	}
}

// SanitizeLoops clamps loop and sustain loop points to the sample length and disables
// loops whose range is empty, so that 0 <= start <= end <= Length always holds.
func (s *Sample) SanitizeLoops() {
	s.Length = max(0, min(s.Length, MaxSampleLength))
	s.LoopStart, s.LoopEnd = sanitizeRange(s.LoopStart, s.LoopEnd, s.Length)
	if s.LoopStart >= s.LoopEnd {
		s.LoopStart, s.LoopEnd = 0, 0
		s.Flags &^= SampleLoop | SamplePingPong
	}
	s.SustainStart, s.SustainEnd = sanitizeRange(s.SustainStart, s.SustainEnd, s.Length)
	if s.SustainStart >= s.SustainEnd {
		s.SustainStart, s.SustainEnd = 0, 0
		s.Flags &^= SampleSustain | SampleSustainPingPong
	}
	s.Volume = max(0, min(s.Volume, 256))
	s.GlobalVolume = max(0, min(s.GlobalVolume, 64))
	s.Panning = max(0, min(s.Panning, 256))
}

func sanitizeRange(start, end, length int) (int, int) {
	end = max(0, min(end, length))
	start = max(0, min(start, end))
	return start, end
}

// TransposeToFrequency converts a transpose (semitones) and finetune (1/128th semitones)
// pair into a C-5 playback rate.
func TransposeToFrequency(transpose, finetune int) uint32 {
	return uint32(math.Round(8363 * math.Pow(2, float64(transpose*128+finetune)/(12*128))))
}

// FrequencyToTranspose converts a C-5 playback rate into a transpose and finetune pair.
func FrequencyToTranspose(freq uint32) (transpose int8, finetune int8) {
	if freq == 0 {
		return 0, 0
	}
	f := int(math.Round(math.Log2(float64(freq)/8363) * 12 * 128))
	t := f / 128
	ft := f % 128
	if ft > 63 {
		t++
		ft -= 128
	} else if ft < -64 {
		t--
		ft += 128
	}
	return int8(max(-128, min(t, 127))), int8(ft)
}

// ModFinetuneToFrequency converts a ProTracker finetune nibble (-8..7) into a C-5 playback rate.
func ModFinetuneToFrequency(finetune int) uint32 {
	return TransposeToFrequency(0, finetune*16)
}
