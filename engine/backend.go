package engine

import (
	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/node"
)

// StreamConfig is what the engine asks a backend for. The backend may
// adjust values it cannot honor and reports the result in StreamInfo.
type StreamConfig struct {
	// SampleRate is the desired rate. Zero lets the backend pick.
	SampleRate uint32
	// MaxBlockFrames is the largest block the engine will be asked to
	// process at once. Zero lets the backend pick.
	MaxBlockFrames int
	NumInChannels  int
	NumOutChannels int
}

// Backend drives an audio stream and calls the engine's Processor from
// its realtime thread.
//
// The contract: after StartStream succeeds the backend does not invoke
// the processor until SetProcessor is called, and after StopStream
// returns it never invokes it again.
type Backend interface {
	// StartStream opens the stream and returns its actual parameters.
	StartStream(cfg StreamConfig) (node.StreamInfo, error)

	// SetProcessor hands the backend the processor to drive.
	SetProcessor(p *Processor)

	// PollStatus reports a dead or erroring stream. The engine calls it
	// on every update.
	PollStatus() error

	// DelayFromLastProcess returns the time since the backend last
	// invoked the processor. ok is false when unknown.
	DelayFromLastProcess() (delay clock.DurationSeconds, ok bool)

	// StopStream stops the stream. It must not return until the
	// processor can no longer be invoked.
	StopStream() error
}
