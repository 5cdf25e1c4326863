// Package node defines the contract between the engine and audio
// nodes: the processor interface the audio thread calls, the buffer and
// clock information passed to it, and the status a node reports back.
package node

import (
	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/internal/slab"
)

// ID is a generational handle to a node in a graph. A stale ID never
// resolves after its node is removed, even if the slot is reused.
type ID slab.Index

// IsZero reports whether the ID is the zero value.
func (id ID) IsZero() bool {
	return slab.Index(id).IsZero()
}

// Info describes a node to the graph compiler.
type Info struct {
	NumInputs  int
	NumOutputs int
	// Latency is the node's processing latency. Informational; the
	// compiler does not compensate for it.
	Latency clock.DurationSamples
	// UsesEvents reserves event scheduler state for the node.
	UsesEvents bool
	// CallUpdate makes the engine call the node's Update hook on every
	// engine update.
	CallUpdate bool
}

// Node is the control-thread side of an audio node. Processor is called
// once per stream to construct the realtime counterpart; the returned
// value is the only part of the node the audio thread touches.
type Node interface {
	Info() Info
	Processor(stream *StreamInfo) Processor
}

// Updater is implemented by nodes that want a hook on every engine
// update. Only called when Info.CallUpdate is set.
type Updater interface {
	Update()
}

// Processor is the realtime side of a node. Process must not allocate,
// block, or panic.
type Processor interface {
	Process(buffers ProcBuffers, info *ProcInfo, events []Event) ProcessStatus
}

// StreamChanger is implemented by processors that need to react to the
// stream restarting with new parameters.
type StreamChanger interface {
	NewStream(stream *StreamInfo)
}

// Stopper is implemented by processors that need to react to the stream
// stopping.
type Stopper interface {
	StreamStopped()
}

// ProcBuffers are the node's input and output buffers for one
// sub-chunk. Slices are reused between calls; a node must not retain
// them.
type ProcBuffers struct {
	Inputs  [][]float32
	Outputs [][]float32
}

// StreamStatus carries flags about the state of the audio stream
// during the current callback.
type StreamStatus uint32

const (
	// StreamStatusInputUnderflow means input data was late; the engine
	// filled the gap with silence.
	StreamStatusInputUnderflow StreamStatus = 1 << iota
	// StreamStatusOutputOverflow means output data was late, likely
	// causing a glitch.
	StreamStatusOutputOverflow
)

// TransportInfo is the state of the musical transport over the current
// sub-chunk.
type TransportInfo struct {
	Playing bool
	// StartPlayhead is the beat position at the first frame.
	StartPlayhead clock.InstantMusical
	// BeatsPerMinute is the effective tempo including the speed
	// multiplier.
	BeatsPerMinute float64
}

// ProcInfo is the clock and channel information for one Process call.
type ProcInfo struct {
	// Frames is the length of every buffer slice in this call.
	Frames int

	InSilenceMask  SilenceMask
	InConstantMask ConstantMask
	// ConnectedInputs and ConnectedOutputs mark ports that have at
	// least one edge. Unconnected input buffers are always silent;
	// unconnected output buffers are discarded.
	ConnectedInputs  ConnectedMask
	ConnectedOutputs ConnectedMask

	// ClockSamples is the stream time at the first frame.
	ClockSamples clock.InstantSamples
	// DurSinceStreamStart is ClockSamples in seconds.
	DurSinceStreamStart clock.DurationSeconds

	Transport TransportInfo
	Status    StreamStatus

	SampleRate      uint32
	SampleRateRecip float64
}
