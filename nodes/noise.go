package nodes

import (
	"github.com/dudk/chord/node"
)

// Noise is a white noise source with one output channel. It uses a
// xorshift generator so the realtime path never touches a locked
// random source.
type Noise struct {
	// Amp is the amplitude, 0 to 1. Zero means 1.
	Amp float64
	// Seed for the generator. Zero picks a fixed default.
	Seed uint64
}

// Info returns the node description.
func (n *Noise) Info() node.Info {
	return node.Info{NumOutputs: 1}
}

// Processor constructs the realtime noise source.
func (n *Noise) Processor(_ *node.StreamInfo) node.Processor {
	amp := n.Amp
	if amp == 0 {
		amp = 1.0
	}
	seed := n.Seed
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	return &noiseProcessor{amp: float32(amp), state: seed}
}

type noiseProcessor struct {
	amp   float32
	state uint64
}

func (p *noiseProcessor) Process(buffers node.ProcBuffers, info *node.ProcInfo, _ []node.Event) node.ProcessStatus {
	out := buffers.Outputs[0]
	for f := 0; f < info.Frames; f++ {
		p.state ^= p.state << 13
		p.state ^= p.state >> 7
		p.state ^= p.state << 17
		// map the top 24 bits to [-1, 1)
		v := float32(int32(p.state>>40)-1<<23) / float32(1<<23)
		out[f] = v * p.amp
	}
	return node.OutputsModified()
}
