package song

import (
	"slices"
)

// A Quirk names one format-specific playback behaviour that the playback engine has to
// honour for the song to sound like it did in its original tracker.
type Quirk string

const (
	QuirkLinearSlides       Quirk = "linear-slides"         // frequency slides are linear, not period based
	QuirkAmigaLimits        Quirk = "amiga-period-limits"   // clamp periods to the Amiga's 3-octave range
	QuirkPeriodsAreHertz    Quirk = "periods-are-hertz"     // slide units are Hertz (669, FAR, ULT)
	QuirkNoVolumeColumn     Quirk = "no-volume-column"      // format has no volume column; one is synthesized
	QuirkFastVolumeSlides   Quirk = "fast-volume-slides"    // volume slides also act on the first tick
	QuirkVBlankTiming       Quirk = "vblank-timing"         // tempo is fixed, only speed changes timing
	QuirkProTrackerLoops    Quirk = "protracker-loops"      // one-shot loops start at the loop start only after first pass
	QuirkProTrackerOffset   Quirk = "protracker-offset"     // offset beyond sample end stops the note
	QuirkFT2Compatible      Quirk = "ft2-compatible"        // FastTracker 2 effect semantics
	QuirkITCompatible       Quirk = "it-compatible"         // Impulse Tracker effect semantics
	QuirkITOldEffects       Quirk = "it-old-effects"        // IT "old effects" flag
	QuirkITCompatGxx        Quirk = "it-compatible-gxx"     // IT "compatible Gxx" flag
	QuirkST3Compatible      Quirk = "st3-compatible"        // Scream Tracker 3 effect memory
	QuirkST2Tempo           Quirk = "st2-tempo"             // Scream Tracker 2 speed/tempo coupling
	QuirkOPL                Quirk = "opl-instruments"       // song uses OPL FM instruments
	QuirkRetrigNoteOnly     Quirk = "retrig-on-note-only"   // retrigger only when a note is present
	QuirkSlidesAtSpeed1     Quirk = "slides-at-speed-1"     // slides still happen at speed 1
	QuirkPerPatternTempo    Quirk = "per-pattern-tempo"     // each pattern resets the speed
	QuirkNoteCutOnEmptyNote Quirk = "note-cut-on-empty"     // a sample number without note cuts (Soundtracker)
	QuirkDualEffectColumns  Quirk = "dual-effect-columns"   // source had two effect columns per cell
	QuirkFinetuneIsC5Speed  Quirk = "finetune-from-c5"      // sample finetune is derived from a C-5 rate
	QuirkStereoSamples      Quirk = "stereo-samples"        // at least one sample is stereo
	QuirkSurroundChannels   Quirk = "surround-channels"     // channel surround flags are meaningful
	QuirkGlobalVolumeIs128  Quirk = "global-volume-128"     // native global volume range was 0..128
	QuirkPatternLoopPerSong Quirk = "pattern-loop-per-song" // pattern loop memory is shared across channels
)

// QuirkSet is the set of quirks enabled for a song.
type QuirkSet map[Quirk]struct{}

// Set enables the given quirks.
func (s *QuirkSet) Set(quirks ...Quirk) {
	if *s == nil {
		*s = make(QuirkSet, len(quirks))
	}
	for _, q := range quirks {
		(*s)[q] = struct{}{}
	}
}

// Clear disables the given quirks.
func (s QuirkSet) Clear(quirks ...Quirk) {
	for _, q := range quirks {
		delete(s, q)
	}
}

// Has reports whether q is enabled.
func (s QuirkSet) Has(q Quirk) bool {
	_, ok := s[q]
	return ok
}

// Sorted returns the enabled quirks in a stable order.
func (s QuirkSet) Sorted() []Quirk {
	out := make([]Quirk, 0, len(s))
	for q := range s {
		out = append(out, q)
	}
	slices.Sort(out)
	return out
}

// MarshalYAML renders the set as a sorted list.
func (s QuirkSet) MarshalYAML() (any, error) {
	return s.Sorted(), nil
}
