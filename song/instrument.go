package song

const (
	MaxInstruments    = 256
	MaxEnvelopePoints = 32
	NumNotes          = int(NoteMax)
)

// An EnvelopePoint is one node of an envelope.
type EnvelopePoint struct {
	Tick  uint16
	Value uint8 // 0..64
}

// An Envelope is a volume, panning or pitch curve over time.
type Envelope struct {
	Enabled      bool
	Loop         bool
	Sustain      bool
	Points       []EnvelopePoint
	LoopStart    int
	LoopEnd      int
	SustainStart int
	SustainEnd   int
}

// Sanitize clamps the point list and indices so that playback code can trust them:
// ticks never go backwards, values stay within 0..64, and loop/sustain indices
// reference existing points.
func (e *Envelope) Sanitize() {
	if len(e.Points) > MaxEnvelopePoints {
		e.Points = e.Points[:MaxEnvelopePoints]
	}
	for i := range e.Points {
		e.Points[i].Value = min(e.Points[i].Value, 64)
		if i > 0 && e.Points[i].Tick < e.Points[i-1].Tick {
			e.Points[i].Tick = e.Points[i-1].Tick
		}
	}
	if len(e.Points) == 0 {
		e.Enabled, e.Loop, e.Sustain = false, false, false
		e.LoopStart, e.LoopEnd, e.SustainStart, e.SustainEnd = 0, 0, 0, 0
		return
	}
	last := len(e.Points) - 1
	e.LoopEnd = max(0, min(e.LoopEnd, last))
	e.LoopStart = max(0, min(e.LoopStart, e.LoopEnd))
	e.SustainEnd = max(0, min(e.SustainEnd, last))
	e.SustainStart = max(0, min(e.SustainStart, e.SustainEnd))
}

// An Instrument maps notes to samples and carries envelopes.
type Instrument struct {
	Name     string
	Filename string

	// NoteMap[i] is the note played for input note i+1, SampleMap[i] the 1-based sample.
	NoteMap   [NumNotes]Note
	SampleMap [NumNotes]uint16

	FadeOut      int
	GlobalVolume int // 0..64
	Panning      int // 0..256, used when PanningSet is true
	PanningSet   bool

	VolumeEnvelope  Envelope
	PanningEnvelope Envelope
	PitchEnvelope   Envelope
}

// NewInstrument returns an instrument with an identity note map.
func NewInstrument() *Instrument {
	ins := &Instrument{GlobalVolume: 64, Panning: 128}
	for i := range ins.NoteMap {
		ins.NoteMap[i] = NoteMin + Note(i)
	}
	return ins
}

// MapAllNotesTo points every note of the instrument at one sample.
func (ins *Instrument) MapAllNotesTo(sample uint16) {
	for i := range ins.SampleMap {
		ins.SampleMap[i] = sample
	}
}
