package clock

// SecondsPerBeat returns the length of one beat in seconds at the given
// tempo and playback speed.
func SecondsPerBeat(beatsPerMinute, speedMultiplier float64) float64 {
	return 60.0 / (beatsPerMinute * speedMultiplier)
}

// BeatsPerSecond returns the number of beats in one second at the given
// tempo and playback speed.
func BeatsPerSecond(beatsPerMinute, speedMultiplier float64) float64 {
	return beatsPerMinute * speedMultiplier * (1.0 / 60.0)
}

// StaticTransport is a musical transport with a fixed tempo.
type StaticTransport struct {
	BeatsPerMinute float64
}

// DefaultBPM is the tempo of the zero-configured transport.
const DefaultBPM = 110.0

// NewStaticTransport returns a transport at the given tempo.
func NewStaticTransport(bpm float64) StaticTransport {
	return StaticTransport{BeatsPerMinute: bpm}
}

// MusicalToSeconds converts a beat position to stream seconds, given
// the stream time at which beat zero occurred.
func (t StaticTransport) MusicalToSeconds(musical InstantMusical, transportStart InstantSeconds, speedMultiplier float64) InstantSeconds {
	return transportStart.Add(DurationSeconds(float64(musical) * SecondsPerBeat(t.BeatsPerMinute, speedMultiplier)))
}

// MusicalToSamples converts a beat position to stream samples, given
// the stream time at which beat zero occurred.
func (t StaticTransport) MusicalToSamples(musical InstantMusical, transportStart InstantSamples, speedMultiplier float64, sampleRate uint32) InstantSamples {
	d := DurationSeconds(float64(musical) * SecondsPerBeat(t.BeatsPerMinute, speedMultiplier))
	return transportStart.Add(d.ToSamples(sampleRate))
}

// SecondsToMusical converts stream seconds to a beat position.
func (t StaticTransport) SecondsToMusical(seconds, transportStart InstantSeconds, speedMultiplier float64) InstantMusical {
	return InstantMusical(float64(seconds.Sub(transportStart)) * BeatsPerSecond(t.BeatsPerMinute, speedMultiplier))
}

// SamplesToMusical converts stream samples to a beat position.
func (t StaticTransport) SamplesToMusical(sampleTime, transportStart InstantSamples, speedMultiplier float64, sampleRate uint32, sampleRateRecip float64) InstantMusical {
	sec := sampleTime.Sub(transportStart).ToSeconds(sampleRate, sampleRateRecip)
	return InstantMusical(float64(sec) * BeatsPerSecond(t.BeatsPerMinute, speedMultiplier))
}

// DeltaSecondsFrom advances a beat position by a span of seconds.
func (t StaticTransport) DeltaSecondsFrom(from InstantMusical, delta DurationSeconds, speedMultiplier float64) InstantMusical {
	return from.Add(DurationMusical(float64(delta) * BeatsPerSecond(t.BeatsPerMinute, speedMultiplier)))
}

// BPMAt returns the effective tempo at the given beat position.
func (t StaticTransport) BPMAt(_ InstantMusical, speedMultiplier float64) float64 {
	return t.BeatsPerMinute * speedMultiplier
}

// TransportStart returns the stream time of beat zero such that the
// playhead sits at the given beat position now.
func (t StaticTransport) TransportStart(now InstantSamples, playhead InstantMusical, speedMultiplier float64, sampleRate uint32) InstantSamples {
	d := DurationSeconds(float64(playhead) * SecondsPerBeat(t.BeatsPerMinute, speedMultiplier))
	return now.Add(-d.ToSamples(sampleRate))
}

// LoopRange is a half-open beat range the transport loops over.
type LoopRange struct {
	Start InstantMusical
	End   InstantMusical
}

// TransportState is the control thread's desired transport state. The
// engine diffs it against the last state sent to the audio thread.
type TransportState struct {
	// Transport is the active musical transport. Nil disables musical
	// time entirely; musical events then never fire.
	Transport *StaticTransport
	Playing   bool
	// Playhead is the desired beat position. Only applied when
	// SetPlayhead is true; otherwise a resume continues from the pause
	// position.
	Playhead    InstantMusical
	SetPlayhead bool
	// SpeedMultiplier scales playback speed. 1 is normal speed.
	SpeedMultiplier float64
	// SpeedChangeAt delays the multiplier change until the playhead
	// reaches this beat. Nil applies it immediately.
	SpeedChangeAt *InstantMusical
	// StopAt stops the transport when the playhead reaches this beat.
	StopAt *InstantMusical
	// Loop makes the playhead jump back to Loop.Start on reaching
	// Loop.End.
	Loop *LoopRange
}

// DefaultTransportState returns a stopped transport state with no
// musical transport assigned.
func DefaultTransportState() TransportState {
	return TransportState{SpeedMultiplier: 1.0}
}
