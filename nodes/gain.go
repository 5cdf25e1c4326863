package nodes

import (
	"github.com/dudk/chord/node"
)

// ParamGain sets the gain target of a Gain node.
const ParamGain uint32 = 0

// Gain scales its input by a gain factor, ramping to new values over
// the stream's declick length to avoid clicks. Stereo by default.
type Gain struct {
	// Channels is the number of in/out channels. Zero means stereo.
	Channels int
	// Gain is the initial factor.
	Gain float64
}

// Info returns the node description.
func (g *Gain) Info() node.Info {
	return node.Info{NumInputs: g.channels(), NumOutputs: g.channels(), UsesEvents: true}
}

func (g *Gain) channels() int {
	if g.Channels == 0 {
		return 2
	}
	return g.Channels
}

// Processor constructs the realtime gain stage.
func (g *Gain) Processor(stream *node.StreamInfo) node.Processor {
	gain := float32(g.Gain)
	return &gainProcessor{
		gain:          gain,
		target:        gain,
		declickFrames: stream.DeclickFrames,
	}
}

type gainProcessor struct {
	gain   float32
	target float32
	// ramp is the number of frames left to reach target.
	ramp          int
	declickFrames int
}

func (p *gainProcessor) Process(buffers node.ProcBuffers, info *node.ProcInfo, events []node.Event) node.ProcessStatus {
	for _, ev := range events {
		if ev.IsParam && ev.ParamID == ParamGain {
			p.target = float32(ev.Param.F64)
			p.ramp = p.declickFrames
		}
	}

	if p.ramp == 0 {
		p.gain = p.target
		switch {
		case p.gain == 0:
			return node.ClearAllOutputs()
		case p.gain == 1:
			return node.Bypass()
		case info.InSilenceMask.AllSilent(len(buffers.Inputs)):
			return node.ClearAllOutputs()
		}
		for ch, in := range buffers.Inputs {
			out := buffers.Outputs[ch]
			for f := 0; f < info.Frames; f++ {
				out[f] = in[f] * p.gain
			}
		}
		return node.OutputsModified()
	}

	step := (p.target - p.gain) / float32(p.ramp)
	frames := info.Frames
	rampFrames := frames
	if p.ramp < rampFrames {
		rampFrames = p.ramp
	}
	for ch, in := range buffers.Inputs {
		out := buffers.Outputs[ch]
		gain := p.gain
		for f := 0; f < rampFrames; f++ {
			gain += step
			out[f] = in[f] * gain
		}
		for f := rampFrames; f < frames; f++ {
			out[f] = in[f] * p.target
		}
	}
	p.ramp -= rampFrames
	if p.ramp == 0 {
		p.gain = p.target
	} else {
		p.gain += step * float32(rampFrames)
	}
	return node.OutputsModified()
}

func (p *gainProcessor) NewStream(stream *node.StreamInfo) {
	p.declickFrames = stream.DeclickFrames
}
