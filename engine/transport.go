package engine

import (
	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/node"
)

// procTransport is the audio-thread musical transport: it tracks where
// beat zero sits in sample time and handles pause, resume, looping,
// stop-at, and speed changes at block boundaries. It copies everything
// out of the TransportState message, which is returned to the control
// thread for reuse.
type procTransport struct {
	sampleRate      uint32
	sampleRateRecip float64

	transport    clock.StaticTransport
	hasTransport bool
	playing      bool
	speed        float64
	// startSamples is the sample time of beat zero, valid while
	// playing.
	startSamples clock.InstantSamples
	// pausedPlayhead is the beat position while not playing.
	pausedPlayhead clock.InstantMusical

	stop    clock.InstantMusical
	hasStop bool
	loop    clock.LoopRange
	hasLoop bool

	// pendingSpeed applies once the clock reaches pendingSpeedAt.
	pendingSpeed    float64
	pendingSpeedAt  clock.InstantSamples
	hasPendingSpeed bool
}

func newProcTransport(sampleRate uint32) procTransport {
	return procTransport{
		sampleRate:      sampleRate,
		sampleRateRecip: 1.0 / float64(sampleRate),
		speed:           1.0,
	}
}

// setState applies a transport state from the control thread. Returns
// true when musical event times must be re-resolved.
func (t *procTransport) setState(st *clock.TransportState, now clock.InstantSamples) bool {
	if t.playing && t.hasTransport {
		// capture position before anything changes
		t.pausedPlayhead, _ = t.playheadAt(now)
	}
	wasPlaying := t.playing && t.hasTransport

	t.hasTransport = st.Transport != nil
	if t.hasTransport {
		t.transport = *st.Transport
	}
	t.hasStop = st.StopAt != nil
	if t.hasStop {
		t.stop = *st.StopAt
	}
	t.hasLoop = st.Loop != nil
	if t.hasLoop {
		t.loop = *st.Loop
	}
	t.hasPendingSpeed = false

	if st.SetPlayhead {
		t.pausedPlayhead = st.Playhead
	}

	speed := st.SpeedMultiplier
	if speed == 0 {
		speed = 1.0
	}
	t.playing = st.Playing && t.hasTransport
	if !t.playing {
		t.speed = speed
		return true
	}
	if st.SpeedChangeAt != nil && wasPlaying {
		t.hasPendingSpeed = true
		t.pendingSpeed = speed
	} else {
		t.speed = speed
	}
	t.startSamples = t.transport.TransportStart(now, t.pausedPlayhead, t.speed, t.sampleRate)
	if t.hasPendingSpeed {
		t.pendingSpeedAt = t.musicalToSamples(*st.SpeedChangeAt)
	}
	return true
}

// playheadAt returns the beat position at sample time now. ok is false
// when no musical transport is assigned.
func (t *procTransport) playheadAt(now clock.InstantSamples) (clock.InstantMusical, bool) {
	if !t.hasTransport {
		return 0, false
	}
	if !t.playing {
		return t.pausedPlayhead, true
	}
	return t.transport.SamplesToMusical(now, t.startSamples, t.speed, t.sampleRate, t.sampleRateRecip), true
}

// musicalToSamples resolves a beat position to sample time. Returns
// NeverSamples when the transport is absent or stopped.
func (t *procTransport) musicalToSamples(m clock.InstantMusical) clock.InstantSamples {
	if !t.hasTransport || !t.playing {
		return clock.NeverSamples
	}
	return t.transport.MusicalToSamples(m, t.startSamples, t.speed, t.sampleRate)
}

// blockFrames bounds a block so loop points, stop-at, and speed changes
// land exactly on block boundaries.
func (t *procTransport) blockFrames(now clock.InstantSamples, maxFrames int) int {
	if !t.playing || !t.hasTransport {
		return maxFrames
	}
	frames := maxFrames
	bound := func(at clock.InstantSamples) {
		if at == clock.NeverSamples || at <= now {
			return
		}
		if d := int(at - now); d < frames {
			frames = d
		}
	}
	if t.hasLoop {
		bound(t.musicalToSamples(t.loop.End))
	}
	if t.hasStop {
		bound(t.musicalToSamples(t.stop))
	}
	if t.hasPendingSpeed {
		bound(t.pendingSpeedAt)
	}
	if frames < 1 {
		frames = 1
	}
	return frames
}

// advance runs boundary actions once the clock has reached now. Returns
// true when musical event times must be re-resolved.
func (t *procTransport) advance(now clock.InstantSamples) bool {
	if !t.playing || !t.hasTransport {
		return false
	}
	dirty := false
	if t.hasPendingSpeed && now >= t.pendingSpeedAt {
		ph, _ := t.playheadAt(now)
		t.speed = t.pendingSpeed
		t.hasPendingSpeed = false
		t.startSamples = t.transport.TransportStart(now, ph, t.speed, t.sampleRate)
		dirty = true
	}
	if t.hasLoop {
		if end := t.musicalToSamples(t.loop.End); end != clock.NeverSamples && now >= end {
			// jump the playhead back to the loop start
			t.startSamples = t.transport.TransportStart(now, t.loop.Start, t.speed, t.sampleRate)
			dirty = true
		}
	}
	if t.hasStop {
		if stop := t.musicalToSamples(t.stop); stop != clock.NeverSamples && now >= stop {
			t.pausedPlayhead = t.stop
			t.playing = false
			dirty = true
		}
	}
	return dirty
}

// info returns the transport state for a Process call starting at now.
func (t *procTransport) info(now clock.InstantSamples) node.TransportInfo {
	if !t.hasTransport {
		return node.TransportInfo{}
	}
	ph, _ := t.playheadAt(now)
	return node.TransportInfo{
		Playing:        t.playing,
		StartPlayhead:  ph,
		BeatsPerMinute: t.transport.BPMAt(ph, t.speed),
	}
}

// rebase moves the transport to a new sample rate through seconds.
func (t *procTransport) rebase(newRate uint32) {
	if t.playing && t.hasTransport {
		sec := t.startSamples.ToSeconds(t.sampleRate, t.sampleRateRecip)
		t.startSamples = sec.ToSamples(newRate)
	}
	t.sampleRate = newRate
	t.sampleRateRecip = 1.0 / float64(newRate)
}

// clockFields snapshots the transport for the shared clock.
func (t *procTransport) clockFields(now clock.InstantSamples) (playhead clock.InstantMusical, hasPlayhead bool, speed float64, playing bool) {
	ph, ok := t.playheadAt(now)
	return ph, ok, t.speed, t.playing && t.hasTransport
}
