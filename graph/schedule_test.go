package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/chord/graph"
	"github.com/dudk/chord/node"
)

func TestScheduleProcessSum(t *testing.T) {
	// diamond: the inserted sum at c doubles graph-in's signal
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	b := g.AddNode(stubNode{ins: 1, outs: 1})
	c := g.AddNode(stubNode{ins: 1, outs: 1})
	mustConnect(t, g, g.GraphIn(), 0, a, 0)
	mustConnect(t, g, g.GraphIn(), 0, b, 0)
	mustConnect(t, g, a, 0, c, 0)
	mustConnect(t, g, b, 0, c, 0)
	mustConnect(t, g, c, 0, g.GraphOut(), 0)

	s, err := g.Compile(4)
	assert.NoError(t, err)

	input := []float32{1, 2, 3, 4}
	s.PrepareGraphInputs(input, 1, 4)
	s.Process(4, func(sn *graph.ScheduledNode, buffers node.ProcBuffers, inSilence node.SilenceMask, _ node.ConstantMask) node.ProcessStatus {
		switch sn.ID {
		case a, b:
			assert.False(t, inSilence.IsChannelSilent(0))
			return node.Bypass()
		case c:
			copy(buffers.Outputs[0], buffers.Inputs[0])
			return node.OutputsModified()
		default: // graph-out
			return node.Bypass()
		}
	})

	output := make([]float32, 4)
	s.ReadGraphOutputs(output, 1, 4)
	assert.Equal(t, []float32{2, 4, 6, 8}, output)
}

func TestScheduleProcessSilence(t *testing.T) {
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	mustConnect(t, g, g.GraphIn(), 0, a, 0)
	mustConnect(t, g, a, 0, g.GraphOut(), 0)

	s, err := g.Compile(4)
	assert.NoError(t, err)

	// silent input propagates through the silence flags, even when a
	// node scribbles on its output before reporting no audio
	s.PrepareGraphInputs([]float32{0, 0, 0, 0}, 1, 4)
	s.Process(4, func(sn *graph.ScheduledNode, buffers node.ProcBuffers, inSilence node.SilenceMask, _ node.ConstantMask) node.ProcessStatus {
		if sn.ID == a {
			assert.True(t, inSilence.IsChannelSilent(0))
			for f := range buffers.Outputs[0] {
				buffers.Outputs[0][f] = 7
			}
			return node.ClearAllOutputs()
		}
		return node.Bypass()
	})

	output := []float32{9, 9, 9, 9}
	s.ReadGraphOutputs(output, 1, 4)
	assert.Equal(t, []float32{0, 0, 0, 0}, output)
}

func TestScheduleSumSkipsSilentInputs(t *testing.T) {
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	b := g.AddNode(stubNode{ins: 1, outs: 1})
	c := g.AddNode(stubNode{ins: 1, outs: 1})
	mustConnect(t, g, g.GraphIn(), 0, a, 0)
	mustConnect(t, g, g.GraphIn(), 0, b, 0)
	mustConnect(t, g, a, 0, c, 0)
	mustConnect(t, g, b, 0, c, 0)
	mustConnect(t, g, c, 0, g.GraphOut(), 0)

	s, err := g.Compile(4)
	assert.NoError(t, err)

	run := func(aSilent, bSilent bool) ([]float32, node.SilenceMask) {
		var cSilence node.SilenceMask
		s.PrepareGraphInputs([]float32{0, 0, 0, 0}, 1, 4)
		s.Process(4, func(sn *graph.ScheduledNode, buffers node.ProcBuffers, inSilence node.SilenceMask, _ node.ConstantMask) node.ProcessStatus {
			switch sn.ID {
			case a:
				if aSilent {
					return node.ClearAllOutputs()
				}
			case b:
				if bSilent {
					return node.ClearAllOutputs()
				}
			case c:
				cSilence = inSilence
				return node.Bypass()
			default:
				return node.Bypass()
			}
			for f := range buffers.Outputs[0] {
				buffers.Outputs[0][f] = 1
			}
			return node.OutputsModified()
		})
		output := []float32{9, 9, 9, 9}
		s.ReadGraphOutputs(output, 1, 4)
		return output, cSilence
	}

	// one silent branch: the sum carries the live branch through untouched
	output, cSilence := run(true, false)
	assert.False(t, cSilence.IsChannelSilent(0))
	assert.Equal(t, []float32{1, 1, 1, 1}, output)

	// both branches silent: the sum marks its output silent without mixing
	output, cSilence = run(true, true)
	assert.True(t, cSilence.IsChannelSilent(0))
	assert.Equal(t, []float32{0, 0, 0, 0}, output)
}

func TestScheduleLargeBlockKeepsFrames(t *testing.T) {
	// valid-frame counters must survive block sizes past 65535
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	mustConnect(t, g, g.GraphIn(), 0, a, 0)
	mustConnect(t, g, a, 0, g.GraphOut(), 0)

	const frames = 70000
	s, err := g.Compile(frames)
	assert.NoError(t, err)

	input := make([]float32, frames)
	for f := range input {
		input[f] = 1
	}
	s.PrepareGraphInputs(input, 1, frames)
	s.Process(frames, func(_ *graph.ScheduledNode, _ node.ProcBuffers, _ node.SilenceMask, _ node.ConstantMask) node.ProcessStatus {
		return node.Bypass()
	})

	output := make([]float32, frames)
	s.ReadGraphOutputs(output, 1, frames)
	assert.Equal(t, float32(1), output[0])
	assert.Equal(t, float32(1), output[frames-1])
}

func TestScheduleExtraStreamChannelsZeroed(t *testing.T) {
	// one graph output, two stream channels: the second channel reads
	// as silence
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	mustConnect(t, g, g.GraphIn(), 0, a, 0)
	mustConnect(t, g, a, 0, g.GraphOut(), 0)

	s, err := g.Compile(2)
	assert.NoError(t, err)

	s.PrepareGraphInputs([]float32{1, 2}, 1, 2)
	s.Process(2, func(sn *graph.ScheduledNode, _ node.ProcBuffers, _ node.SilenceMask, _ node.ConstantMask) node.ProcessStatus {
		return node.Bypass()
	})

	output := []float32{9, 9, 9, 9}
	s.ReadGraphOutputs(output, 2, 2)
	assert.Equal(t, []float32{1, 0, 2, 0}, output)
}
