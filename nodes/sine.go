// Package nodes provides a small set of built-in audio nodes: a sine
// oscillator, a gain stage with declick ramping, and a white noise
// source.
package nodes

import (
	"math"

	"github.com/dudk/chord/node"
)

// Sine parameter ids.
const (
	ParamSineFreq uint32 = iota
	ParamSineAmp
)

// Sine is a sine wave oscillator with one output channel. Frequency
// and amplitude change via parameter events.
type Sine struct {
	// Freq is the initial frequency in Hz.
	Freq float64
	// Amp is the initial amplitude, 0 to 1.
	Amp float64
}

// Info returns the node description.
func (s *Sine) Info() node.Info {
	return node.Info{NumOutputs: 1, UsesEvents: true}
}

// Processor constructs the realtime oscillator.
func (s *Sine) Processor(stream *node.StreamInfo) node.Processor {
	amp := s.Amp
	if amp == 0 {
		amp = 1.0
	}
	return &sineProcessor{
		freq:       s.Freq,
		amp:        amp,
		sampleRate: float64(stream.SampleRate),
	}
}

type sineProcessor struct {
	phase      float64
	freq       float64
	amp        float64
	sampleRate float64
}

func (p *sineProcessor) Process(buffers node.ProcBuffers, info *node.ProcInfo, events []node.Event) node.ProcessStatus {
	for _, ev := range events {
		if !ev.IsParam {
			continue
		}
		switch ev.ParamID {
		case ParamSineFreq:
			p.freq = ev.Param.F64
		case ParamSineAmp:
			p.amp = ev.Param.F64
		}
	}
	if p.amp == 0 || p.freq == 0 {
		return node.ClearAllOutputs()
	}
	out := buffers.Outputs[0]
	inc := 2 * math.Pi * p.freq / p.sampleRate
	for f := 0; f < info.Frames; f++ {
		out[f] = float32(math.Sin(p.phase) * p.amp)
		p.phase += inc
	}
	if p.phase > 2*math.Pi {
		p.phase = math.Mod(p.phase, 2*math.Pi)
	}
	return node.OutputsModified()
}

func (p *sineProcessor) NewStream(stream *node.StreamInfo) {
	p.sampleRate = float64(stream.SampleRate)
}
