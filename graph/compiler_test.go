package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/chord/graph"
	"github.com/dudk/chord/node"
)

func mustConnect(t *testing.T, g *graph.Graph, src node.ID, srcPort int, dst node.ID, dstPort int) {
	t.Helper()
	_, err := g.Connect(src, srcPort, dst, dstPort, true)
	assert.NoError(t, err)
}

func TestCompileDiamond(t *testing.T) {
	//      in
	//     /  \
	//    a    b
	//     \  /
	//      c
	//      |
	//     out
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	b := g.AddNode(stubNode{ins: 1, outs: 1})
	c := g.AddNode(stubNode{ins: 1, outs: 1})
	mustConnect(t, g, g.GraphIn(), 0, a, 0)
	mustConnect(t, g, g.GraphIn(), 0, b, 0)
	mustConnect(t, g, a, 0, c, 0)
	mustConnect(t, g, b, 0, c, 0)
	mustConnect(t, g, c, 0, g.GraphOut(), 0)

	s, err := g.Compile(512)
	assert.NoError(t, err)
	assert.Equal(t, 512, s.MaxBlockFrames())

	scheduled := s.ScheduledNodes()
	order := make([]node.ID, 0, len(scheduled))
	for i := range scheduled {
		order = append(order, scheduled[i].ID)
	}
	// graph-in first, graph-out last, equal candidates in insertion order
	assert.Equal(t, []node.ID{g.GraphIn(), a, b, c, g.GraphOut()}, order)

	// both edges into c land in one inserted sum
	sums := scheduled[3].Sums
	assert.Len(t, sums, 1)
	assert.Len(t, sums[0].Inputs, 2)
	assert.Equal(t, sums[0].Output, scheduled[3].Inputs[0].Buffer)

	// a and b read the same graph-in buffer
	inBuffer := scheduled[0].Outputs[0].Buffer
	assert.Equal(t, inBuffer, scheduled[1].Inputs[0].Buffer)
	assert.Equal(t, inBuffer, scheduled[2].Inputs[0].Buffer)

	assertNoAliasing(t, scheduled)
}

func assertNoAliasing(t *testing.T, scheduled []graph.ScheduledNode) {
	t.Helper()
	for _, sn := range scheduled {
		for _, in := range sn.Inputs {
			for _, out := range sn.Outputs {
				assert.NotEqual(t, in.Buffer, out.Buffer, "node reads and writes buffer %d", in.Buffer)
			}
		}
		for _, sum := range sn.Sums {
			for _, in := range sum.Inputs {
				assert.NotEqual(t, in, sum.Output, "sum reads and writes buffer %d", in)
			}
		}
	}
}

func TestCompileBufferReuse(t *testing.T) {
	// a straight chain ping-pongs between two buffers
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	b := g.AddNode(stubNode{ins: 1, outs: 1})
	mustConnect(t, g, g.GraphIn(), 0, a, 0)
	mustConnect(t, g, a, 0, b, 0)
	mustConnect(t, g, b, 0, g.GraphOut(), 0)

	s, err := g.Compile(512)
	assert.NoError(t, err)
	assert.Equal(t, 2, s.NumBuffers())
	assertNoAliasing(t, s.ScheduledNodes())
}

func TestCompileUnconnectedInput(t *testing.T) {
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 2, outs: 1})
	mustConnect(t, g, g.GraphIn(), 0, a, 0)
	mustConnect(t, g, a, 0, g.GraphOut(), 0)

	s, err := g.Compile(512)
	assert.NoError(t, err)

	sn := s.ScheduledNodes()[1]
	assert.Equal(t, a, sn.ID)
	assert.False(t, sn.Inputs[0].ShouldClear)
	assert.True(t, sn.Inputs[1].ShouldClear)
	assert.True(t, sn.ConnectedIn.IsPortConnected(0))
	assert.False(t, sn.ConnectedIn.IsPortConnected(1))
}

func TestCompilePreProcessNodes(t *testing.T) {
	g := newTestGraph(1, 1)
	side := g.AddNode(stubNode{})
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	mustConnect(t, g, g.GraphIn(), 0, a, 0)
	mustConnect(t, g, a, 0, g.GraphOut(), 0)

	s, err := g.Compile(512)
	assert.NoError(t, err)

	pre := s.PreProcessNodes()
	assert.Len(t, pre, 1)
	assert.Equal(t, side, pre[0].ID)
	for _, sn := range s.ScheduledNodes() {
		assert.NotEqual(t, side, sn.ID)
	}
}
