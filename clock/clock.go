// Package clock defines the time types used throughout the engine:
// sample counts, seconds, and musical beats, with conversions between
// them. Sample counts are exact; seconds and beats are floating point
// and only meet sample time through the documented rounding rules.
package clock

import (
	"math"
	"time"
)

// InstantSamples is a moment in time measured in samples of a single
// channel of audio since the start of the stream.
type InstantSamples int64

// DurationSamples is a span of time measured in samples.
type DurationSamples int64

// InstantSeconds is a moment measured in seconds since stream start.
type InstantSeconds float64

// DurationSeconds is a span measured in seconds.
type DurationSeconds float64

// InstantMusical is a moment measured in beats on a musical transport.
type InstantMusical float64

// DurationMusical is a span measured in beats.
type DurationMusical float64

// NeverSamples is an instant that never arrives. Musical events resolve
// to it when no transport is playing.
const NeverSamples = InstantSamples(math.MaxInt64)

// wholeSecondsAndFract splits sec into a whole-second count and a
// fractional part guaranteed to lie in [0, 1), also for negative input.
func wholeSecondsAndFract(sec float64) (int64, float64) {
	whole := math.Floor(sec)
	return int64(whole), sec - whole
}

// Add offsets the instant by d.
func (t InstantSamples) Add(d DurationSamples) InstantSamples {
	return t + InstantSamples(d)
}

// Sub returns the span from other to t.
func (t InstantSamples) Sub(other InstantSamples) DurationSamples {
	return DurationSamples(t - other)
}

// ToSeconds converts the instant to seconds. The whole-second part is
// computed with integer division to stay exact at large magnitudes.
func (t InstantSamples) ToSeconds(sampleRate uint32, sampleRateRecip float64) InstantSeconds {
	whole := int64(t) / int64(sampleRate)
	fract := float64(int64(t)%int64(sampleRate)) * sampleRateRecip
	return InstantSeconds(float64(whole) + fract)
}

// ToSeconds converts the span to seconds.
func (d DurationSamples) ToSeconds(sampleRate uint32, sampleRateRecip float64) DurationSeconds {
	whole := int64(d) / int64(sampleRate)
	fract := float64(int64(d)%int64(sampleRate)) * sampleRateRecip
	return DurationSeconds(float64(whole) + fract)
}

// ToSamples converts the instant to samples, rounding the sub-second
// part to the nearest sample.
func (t InstantSeconds) ToSamples(sampleRate uint32) InstantSamples {
	whole, fract := wholeSecondsAndFract(float64(t))
	return InstantSamples(whole*int64(sampleRate) + int64(math.Round(fract*float64(sampleRate))))
}

// ToSamples converts the span to samples, rounding the sub-second part
// to the nearest sample.
func (d DurationSeconds) ToSamples(sampleRate uint32) DurationSamples {
	whole, fract := wholeSecondsAndFract(float64(d))
	return DurationSamples(whole*int64(sampleRate) + int64(math.Round(fract*float64(sampleRate))))
}

// Add offsets the instant by d.
func (t InstantSeconds) Add(d DurationSeconds) InstantSeconds {
	return t + InstantSeconds(d)
}

// Sub returns the span from other to t.
func (t InstantSeconds) Sub(other InstantSeconds) DurationSeconds {
	return DurationSeconds(t - other)
}

// Add offsets the instant by d beats.
func (t InstantMusical) Add(d DurationMusical) InstantMusical {
	return t + InstantMusical(d)
}

// Sub returns the span from other to t in beats.
func (t InstantMusical) Sub(other InstantMusical) DurationMusical {
	return DurationMusical(t - other)
}

// AudioClock is a snapshot of the audio thread's clock as observed from
// the control thread.
type AudioClock struct {
	// Samples is the number of samples processed since stream start.
	Samples InstantSamples
	// Seconds is Samples converted at the stream sample rate.
	Seconds InstantSeconds
	// Musical is the transport playhead. Valid only when HasMusical.
	Musical    InstantMusical
	HasMusical bool
	// TransportPlaying reports whether the musical transport was
	// running when the snapshot was taken.
	TransportPlaying bool
	// UpdateInstant is the wall-clock time of the snapshot. Zero when
	// the audio thread has not published one yet.
	UpdateInstant time.Time
}
