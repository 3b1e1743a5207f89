// Package song contains the unified in-memory representation of a tracker module.
// Every format loader produces a *Song; playback and export code only ever sees this model.
package song

import (
	"fmt"
)

const (
	DefaultSpeed        = 6
	DefaultTempo        = 125
	MaxGlobalVolume     = 256
	DefaultGlobalVolume = MaxGlobalVolume
)

// FormatInfo describes where a song came from.
type FormatInfo struct {
	Name    string  `yaml:"name"`              // human readable format name
	Type    string  `yaml:"type"`              // short tag, usually the file extension
	Tracker string  `yaml:"tracker,omitempty"` // tracker that most likely wrote the file
	Charset Charset `yaml:"charset"`           // character set of text fields

	// Set by conversion formats to the format the module was converted from.
	OriginalName string `yaml:"original_name,omitempty"`
	OriginalType string `yaml:"original_type,omitempty"`
}

// ChannelSetting holds the static properties of one channel.
type ChannelSetting struct {
	Name     string
	Panning  int // 0..256
	Volume   int // 0..64
	Surround bool
	Mute     bool
}

// A Song is a fully decoded module.
type Song struct {
	Title   string
	Artist  string
	Message string
	Format  FormatInfo

	Channels    []ChannelSetting
	Samples     []*Sample     // sample n is Samples[n-1]
	Instruments []*Instrument // empty for sample-only formats
	Patterns    []*Pattern    // a nil entry is an empty (or not loaded) pattern
	Order       Order

	InitialSpeed        int
	InitialTempo        int
	InitialGlobalVolume int // 0..256
	RestartPosition     int

	Quirks QuirkSet
}

// New returns a song with numChannels centred channels and default timing.
func New(numChannels int) (*Song, error) {
	if numChannels < 1 || numChannels > MaxChannels {
		return nil, fmt.Errorf("channel count must be 1-%d, got %d", MaxChannels, numChannels)
	}
	s := &Song{
		Channels:            make([]ChannelSetting, numChannels),
		InitialSpeed:        DefaultSpeed,
		InitialTempo:        DefaultTempo,
		InitialGlobalVolume: DefaultGlobalVolume,
		Quirks:              QuirkSet{},
	}
	for i := range s.Channels {
		s.Channels[i] = ChannelSetting{Panning: 128, Volume: 64}
	}
	return s, nil
}

// NumChannels returns the channel count.
func (s *Song) NumChannels() int {
	return len(s.Channels)
}

// SetAmigaPanning applies the classic left-right-right-left channel layout.
// separation is 0..128, where 128 is full stereo.
func (s *Song) SetAmigaPanning(separation int) {
	separation = max(0, min(separation, 128))
	for i := range s.Channels {
		p := 128 - separation
		if i%4 == 1 || i%4 == 2 {
			p = 128 + separation
		}
		s.Channels[i].Panning = min(p, 256)
	}
}

// AllocatePatterns reserves n (initially empty) pattern slots.
func (s *Song) AllocatePatterns(n int) error {
	if n < 0 || n > MaxPatterns {
		return fmt.Errorf("pattern count must be 0-%d, got %d", MaxPatterns, n)
	}
	if n > len(s.Patterns) {
		s.Patterns = append(s.Patterns, make([]*Pattern, n-len(s.Patterns))...)
	}
	return nil
}

// InsertPattern creates an empty pattern with the given row count at index, growing the
// pattern list if needed. An existing pattern at index is replaced.
func (s *Song) InsertPattern(index, rows int) (*Pattern, error) {
	if index < 0 || index >= MaxPatterns {
		return nil, fmt.Errorf("pattern index must be 0-%d, got %d", MaxPatterns-1, index)
	}
	p, err := NewPattern(rows, len(s.Channels))
	if err != nil {
		return nil, err
	}
	if err := s.AllocatePatterns(index + 1); err != nil {
		return nil, err
	}
	s.Patterns[index] = p
	return p, nil
}

// Pattern returns pattern i, or nil if it does not exist or is empty.
func (s *Song) Pattern(i int) *Pattern {
	if i < 0 || i >= len(s.Patterns) {
		return nil
	}
	return s.Patterns[i]
}

// AddSample appends a sample and returns its 1-based number.
func (s *Song) AddSample(smp *Sample) (int, error) {
	if len(s.Samples) >= MaxSamples {
		return 0, fmt.Errorf("too many samples (maximum is %d)", MaxSamples)
	}
	s.Samples = append(s.Samples, smp)
	return len(s.Samples), nil
}

// Sample returns sample n (1-based), or nil.
func (s *Song) Sample(n int) *Sample {
	if n < 1 || n > len(s.Samples) {
		return nil
	}
	return s.Samples[n-1]
}

// SanitizeOrders truncates the order list to MaxOrders and turns references to patterns
// that do not exist into skip entries. It returns the number of entries changed.
func (s *Song) SanitizeOrders() int {
	if len(s.Order) > MaxOrders {
		s.Order = s.Order[:MaxOrders]
	}
	changed := 0
	for i, p := range s.Order {
		if p == OrderStop || p == OrderSkip {
			continue
		}
		if int(p) >= len(s.Patterns) {
			s.Order[i] = OrderSkip
			changed++
		}
	}
	if s.RestartPosition < 0 || s.RestartPosition >= len(s.Order) {
		s.RestartPosition = 0
	}
	return changed
}

// Validate checks the structural invariants every loader must guarantee.
func (s *Song) Validate() error {
	if len(s.Channels) < 1 || len(s.Channels) > MaxChannels {
		return fmt.Errorf("channel count must be 1-%d, got %d", MaxChannels, len(s.Channels))
	}
	for i, ch := range s.Channels {
		if ch.Panning < 0 || ch.Panning > 256 {
			return fmt.Errorf("channel %d: panning %d out of range", i, ch.Panning)
		}
	}
	if len(s.Order) > MaxOrders {
		return fmt.Errorf("order list has %d entries (maximum is %d)", len(s.Order), MaxOrders)
	}
	if len(s.Patterns) > MaxPatterns {
		return fmt.Errorf("song has %d patterns (maximum is %d)", len(s.Patterns), MaxPatterns)
	}
	for i, p := range s.Order {
		if p != OrderStop && p != OrderSkip && int(p) >= len(s.Patterns) {
			return fmt.Errorf("order %d references pattern %d, but there are only %d", i, p, len(s.Patterns))
		}
	}
	for i, p := range s.Patterns {
		if p == nil {
			continue
		}
		if p.Channels() != len(s.Channels) {
			return fmt.Errorf("pattern %d has %d channels, song has %d", i, p.Channels(), len(s.Channels))
		}
		for row := range p.Rows() {
			for ch, c := range p.Row(row) {
				if !c.isValid() {
					return fmt.Errorf("pattern %d row %d channel %d: invalid cell %s", i, row, ch, c)
				}
			}
		}
	}
	if len(s.Samples) > MaxSamples {
		return fmt.Errorf("song has %d samples (maximum is %d)", len(s.Samples), MaxSamples)
	}
	for i, smp := range s.Samples {
		if smp == nil {
			return fmt.Errorf("sample %d is nil", i+1)
		}
		if err := smp.validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i+1, err)
		}
	}
	for i, ins := range s.Instruments {
		if ins == nil {
			continue
		}
		for n, smp := range ins.SampleMap {
			if int(smp) > len(s.Samples) {
				return fmt.Errorf("instrument %d: note %d maps to missing sample %d", i+1, n, smp)
			}
		}
	}
	return nil
}

func (s *Sample) validate() error {
	if s.Length < 0 || s.Length > MaxSampleLength {
		return fmt.Errorf("length %d out of range", s.Length)
	}
	if !(0 <= s.LoopStart && s.LoopStart <= s.LoopEnd && s.LoopEnd <= s.Length) {
		return fmt.Errorf("loop %d-%d outside of length %d", s.LoopStart, s.LoopEnd, s.Length)
	}
	if !(0 <= s.SustainStart && s.SustainStart <= s.SustainEnd && s.SustainEnd <= s.Length) {
		return fmt.Errorf("sustain loop %d-%d outside of length %d", s.SustainStart, s.SustainEnd, s.Length)
	}
	want := s.Length * s.NumChannels()
	switch {
	case s.PCM8 != nil && s.PCM16 != nil:
		return fmt.Errorf("both 8-bit and 16-bit data present")
	case s.PCM8 != nil && (s.Is16Bit() || len(s.PCM8) != want):
		return fmt.Errorf("8-bit data has %d values, expected %d", len(s.PCM8), want)
	case s.PCM16 != nil && (!s.Is16Bit() || len(s.PCM16) != want):
		return fmt.Errorf("16-bit data has %d values, expected %d", len(s.PCM16), want)
	}
	return nil
}
