package node

import (
	"github.com/dudk/chord/clock"
	"github.com/rs/xid"
)

// StreamInfo describes a running audio stream. A new one is produced
// each time a stream starts.
type StreamInfo struct {
	// SessionID uniquely identifies this stream run, for logs.
	SessionID xid.ID

	SampleRate      uint32
	SampleRateRecip float64
	// PrevSampleRate is the rate of the previous stream, or zero for
	// the first stream. Processors holding sample-time state rebase on
	// a change.
	PrevSampleRate uint32

	// MaxBlockFrames is the largest Frames value a Process call will
	// ever see.
	MaxBlockFrames int

	NumStreamInChannels  int
	NumStreamOutChannels int

	// InputToOutputLatency is the backend-reported round trip latency.
	InputToOutputLatency clock.DurationSeconds

	// DeclickFrames is the recommended fade length for avoiding clicks,
	// derived from the engine's declick setting.
	DeclickFrames int
}

// NewStreamInfo fills derived fields from the given stream parameters.
func NewStreamInfo(sampleRate uint32, maxBlockFrames, inChannels, outChannels int, declickSeconds float64) StreamInfo {
	declickFrames := int(declickSeconds * float64(sampleRate))
	if declickFrames < 1 {
		declickFrames = 1
	}
	return StreamInfo{
		SessionID:            xid.New(),
		SampleRate:           sampleRate,
		SampleRateRecip:      1.0 / float64(sampleRate),
		MaxBlockFrames:       maxBlockFrames,
		NumStreamInChannels:  inChannels,
		NumStreamOutChannels: outChannels,
		DeclickFrames:        declickFrames,
	}
}
