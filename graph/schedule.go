package graph

import (
	"github.com/dudk/chord/node"
)

// bufferFlags track the state of one pool buffer so clears and constant
// fills can be deferred until a consumer actually needs the samples.
type bufferFlags struct {
	silent   bool
	constant bool
	// frames is the number of valid frames. Consumers extend the tail
	// lazily when they need more.
	frames int
}

// ProcessFn is called once per scheduled node with full-block buffer
// slices and the input masks derived from buffer flags. Connected masks
// are on the scheduled node.
type ProcessFn func(sn *ScheduledNode, buffers node.ProcBuffers, inSilence node.SilenceMask, inConstant node.ConstantMask) node.ProcessStatus

// CompiledSchedule is the audio-thread form of a graph: nodes in
// processing order with buffers assigned from a flat pool.
type CompiledSchedule struct {
	nodes   []ScheduledNode
	preProc []ScheduledNode

	numBuffers     int
	maxBlockFrames int
	pool           []float32
	flags          []bufferFlags

	graphIn  node.ID
	graphOut node.ID

	// forceClear zeroes every output buffer before each node runs, for
	// debugging nodes that lie about their process status.
	forceClear bool

	inScratch  [][]float32
	outScratch [][]float32
}

func newCompiledSchedule(nodes, preProc []ScheduledNode, numBuffers, maxBlockFrames int, graphIn, graphOut node.ID) *CompiledSchedule {
	s := &CompiledSchedule{
		nodes:          nodes,
		preProc:        preProc,
		numBuffers:     numBuffers,
		maxBlockFrames: maxBlockFrames,
		pool:           make([]float32, numBuffers*maxBlockFrames),
		flags:          make([]bufferFlags, numBuffers),
		graphIn:        graphIn,
		graphOut:       graphOut,
		inScratch:      make([][]float32, 0, 64),
		outScratch:     make([][]float32, 0, 64),
	}
	// the pool starts zeroed
	for i := range s.flags {
		s.flags[i] = bufferFlags{silent: true, frames: maxBlockFrames}
	}
	return s
}

// ScheduledNodes returns the main schedule in processing order. The
// first entry is the graph-in node, the last the graph-out node.
func (s *CompiledSchedule) ScheduledNodes() []ScheduledNode { return s.nodes }

// PreProcessNodes returns the nodes with no audio ports. They run
// before the main schedule each block.
func (s *CompiledSchedule) PreProcessNodes() []ScheduledNode { return s.preProc }

// NumBuffers returns the size of the buffer pool in buffers.
func (s *CompiledSchedule) NumBuffers() int { return s.numBuffers }

// MaxBlockFrames returns the block size the pool was sized for.
func (s *CompiledSchedule) MaxBlockFrames() int { return s.maxBlockFrames }

// SetForceClear toggles zeroing of output buffers before every node.
func (s *CompiledSchedule) SetForceClear(v bool) { s.forceClear = v }

func (s *CompiledSchedule) buffer(b, frames int) []float32 {
	start := b * s.maxBlockFrames
	return s.pool[start : start+frames]
}

// ensureFrames extends a buffer's valid region to frames, filling the
// tail from the buffer's flags.
func (s *CompiledSchedule) ensureFrames(b, frames int) {
	fl := &s.flags[b]
	if fl.frames >= frames {
		return
	}
	buf := s.buffer(b, frames)
	switch {
	case fl.silent:
		for i := fl.frames; i < frames; i++ {
			buf[i] = 0
		}
	case fl.constant && fl.frames > 0:
		v := buf[0]
		for i := fl.frames; i < frames; i++ {
			buf[i] = v
		}
	default:
		for i := fl.frames; i < frames; i++ {
			buf[i] = 0
		}
	}
	fl.frames = frames
}

// PrepareGraphInputs deinterleaves the stream input into the graph-in
// node's output buffers and sets their silence flags.
func (s *CompiledSchedule) PrepareGraphInputs(input []float32, numStreamChannels, frames int) {
	graphIn := &s.nodes[0]
	fill := numStreamChannels
	if n := len(graphIn.Outputs); n < fill {
		fill = n
	}
	for ch := 0; ch < fill; ch++ {
		b := graphIn.Outputs[ch].Buffer
		buf := s.buffer(b, frames)
		silent := true
		for f := 0; f < frames; f++ {
			v := input[f*numStreamChannels+ch]
			buf[f] = v
			if v != 0 {
				silent = false
			}
		}
		s.flags[b] = bufferFlags{silent: silent, frames: frames}
	}
	for ch := fill; ch < len(graphIn.Outputs); ch++ {
		s.flags[graphIn.Outputs[ch].Buffer] = bufferFlags{silent: true}
	}
}

// ReadGraphOutputs interleaves the graph-out node's input buffers into
// the stream output. Silent buffers and stream channels past the graph
// output count are zero-filled.
func (s *CompiledSchedule) ReadGraphOutputs(output []float32, numStreamChannels, frames int) {
	graphOut := &s.nodes[len(s.nodes)-1]
	for ch := 0; ch < numStreamChannels; ch++ {
		if ch >= len(graphOut.Inputs) {
			for f := 0; f < frames; f++ {
				output[f*numStreamChannels+ch] = 0
			}
			continue
		}
		b := graphOut.Inputs[ch].Buffer
		if s.flags[b].silent {
			for f := 0; f < frames; f++ {
				output[f*numStreamChannels+ch] = 0
			}
			continue
		}
		s.ensureFrames(b, frames)
		buf := s.buffer(b, frames)
		for f := 0; f < frames; f++ {
			output[f*numStreamChannels+ch] = buf[f]
		}
	}
}

// Process runs the main schedule for one block. The graph-in node is
// skipped; its buffers were filled by PrepareGraphInputs.
func (s *CompiledSchedule) Process(frames int, fn ProcessFn) {
	for i := range s.nodes {
		sn := &s.nodes[i]
		if sn.ID == s.graphIn {
			continue
		}

		for j := range sn.Sums {
			s.sumInputs(&sn.Sums[j], frames)
		}

		var inSilence node.SilenceMask
		var inConstant node.ConstantMask
		inputs := s.inScratch[:0]
		for p := range sn.Inputs {
			in := &sn.Inputs[p]
			if in.ShouldClear {
				s.flags[in.Buffer] = bufferFlags{silent: true}
			}
			s.ensureFrames(in.Buffer, frames)
			fl := &s.flags[in.Buffer]
			if fl.silent {
				inSilence = inSilence.WithChannel(p, true)
			}
			if fl.constant {
				inConstant = inConstant.WithChannel(p, true)
			}
			inputs = append(inputs, s.buffer(in.Buffer, frames))
		}

		outputs := s.outScratch[:0]
		for p := range sn.Outputs {
			buf := s.buffer(sn.Outputs[p].Buffer, frames)
			if s.forceClear {
				for f := range buf {
					buf[f] = 0
				}
			}
			outputs = append(outputs, buf)
		}

		status := fn(sn, node.ProcBuffers{Inputs: inputs, Outputs: outputs}, inSilence, inConstant)
		s.applyStatus(sn, status, frames, inputs, outputs, inSilence, inConstant)

		s.inScratch = inputs[:0]
		s.outScratch = outputs[:0]
	}
}

func (s *CompiledSchedule) applyStatus(sn *ScheduledNode, status node.ProcessStatus, frames int, inputs, outputs [][]float32, inSilence node.SilenceMask, inConstant node.ConstantMask) {
	switch {
	case status.IsClearAllOutputs():
		for p := range sn.Outputs {
			s.flags[sn.Outputs[p].Buffer] = bufferFlags{silent: true}
		}
	case status.IsBypass():
		for p := range sn.Outputs {
			b := sn.Outputs[p].Buffer
			if p < len(inputs) {
				copy(outputs[p], inputs[p])
				s.flags[b] = bufferFlags{
					silent:   inSilence.IsChannelSilent(p),
					constant: inConstant.IsChannelConstant(p),
					frames:   frames,
				}
			} else {
				s.flags[b] = bufferFlags{silent: true}
			}
		}
	default:
		silence, hasSilence := status.SilenceHint()
		constant, hasConstant := status.ConstantHint()
		for p := range sn.Outputs {
			s.flags[sn.Outputs[p].Buffer] = bufferFlags{
				silent:   hasSilence && silence.IsChannelSilent(p),
				constant: hasConstant && constant.IsChannelConstant(p),
				frames:   frames,
			}
		}
	}
}

// sumInputs mixes the non-silent inputs of an inserted sum into its
// output buffer. All-silent inputs mark the output silent without
// touching samples.
func (s *CompiledSchedule) sumInputs(sum *InsertedSum, frames int) {
	out := s.buffer(sum.Output, frames)
	mixed := 0
	for _, b := range sum.Inputs {
		if s.flags[b].silent {
			continue
		}
		s.ensureFrames(b, frames)
		in := s.buffer(b, frames)
		if mixed == 0 {
			copy(out, in)
		} else {
			for f := range out {
				out[f] += in[f]
			}
		}
		mixed++
	}
	if mixed == 0 {
		s.flags[sum.Output] = bufferFlags{silent: true}
		return
	}
	s.flags[sum.Output] = bufferFlags{frames: frames}
}
