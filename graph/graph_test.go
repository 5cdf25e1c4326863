package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/chord/graph"
	"github.com/dudk/chord/node"
)

type stubNode struct {
	ins, outs int
}

func (s stubNode) Info() node.Info {
	return node.Info{NumInputs: s.ins, NumOutputs: s.outs}
}

func (s stubNode) Processor(*node.StreamInfo) node.Processor { return nil }

func newTestGraph(ins, outs int) *graph.Graph {
	return graph.New(ins, outs, 16, 32)
}

func TestConnect(t *testing.T) {
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	b := g.AddNode(stubNode{ins: 2, outs: 1})

	eid, err := g.Connect(a, 0, b, 0, true)
	assert.NoError(t, err)
	assert.Equal(t, 1, g.NumEdges())

	// duplicate connect returns the existing edge
	dup, err := g.Connect(a, 0, b, 0, true)
	assert.NoError(t, err)
	assert.Equal(t, eid, dup)
	assert.Equal(t, 1, g.NumEdges())

	var tests = []struct {
		name     string
		src, dst node.ID
		srcPort  int
		dstPort  int
		err      error
	}{
		{"self edge", a, a, 0, 0, graph.ErrSelfEdge},
		{"source port out of range", a, b, 1, 0, &graph.PortOutOfRangeError{Port: 1, NumPorts: 1}},
		{"destination port out of range", a, b, 0, 2, &graph.PortOutOfRangeError{In: true, Port: 2, NumPorts: 2}},
	}
	for _, test := range tests {
		_, err := g.Connect(test.src, test.srcPort, test.dst, test.dstPort, true)
		assert.Equal(t, test.err, err, test.name)
	}

	removed := g.AddNode(stubNode{outs: 1})
	assert.NoError(t, g.RemoveNode(removed))
	_, err = g.Connect(removed, 0, b, 1, true)
	assert.Equal(t, graph.ErrSrcNodeNotFound, err)
	_, err = g.Connect(a, 0, removed, 0, true)
	assert.Equal(t, graph.ErrDstNodeNotFound, err)
}

func TestConnectCycleRollback(t *testing.T) {
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	b := g.AddNode(stubNode{ins: 1, outs: 1})

	_, err := g.Connect(a, 0, b, 0, true)
	assert.NoError(t, err)

	_, err = g.Connect(b, 0, a, 0, true)
	assert.Equal(t, graph.ErrCycleDetected, err)
	// the offending edge is rolled back
	assert.Equal(t, 1, g.NumEdges())
	assert.False(t, g.CycleDetected())

	// without the check the edge lands and compile refuses
	_, err = g.Connect(b, 0, a, 0, false)
	assert.NoError(t, err)
	assert.True(t, g.CycleDetected())
	_, err = g.Compile(512)
	assert.Equal(t, graph.ErrCycleDetected, err)
}

func TestRemoveNode(t *testing.T) {
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})

	_, err := g.Connect(g.GraphIn(), 0, a, 0, true)
	assert.NoError(t, err)
	_, err = g.Connect(a, 0, g.GraphOut(), 0, true)
	assert.NoError(t, err)

	assert.NoError(t, g.RemoveNode(a))
	assert.Equal(t, 0, g.NumEdges())
	assert.Equal(t, []node.ID{a}, g.NodesToRemove())
	assert.Equal(t, graph.ErrNodeNotFound, g.RemoveNode(a))
	assert.Equal(t, graph.ErrCannotRemoveGraphIONode, g.RemoveNode(g.GraphOut()))

	g.MarkCompiled()
	assert.Empty(t, g.NodesToRemove())
	assert.False(t, g.NeedsCompile())
}

func TestDisconnectAll(t *testing.T) {
	g := newTestGraph(1, 1)
	a := g.AddNode(stubNode{ins: 1, outs: 1})
	b := g.AddNode(stubNode{ins: 2, outs: 1})

	_, err := g.Connect(g.GraphIn(), 0, a, 0, true)
	assert.NoError(t, err)
	_, err = g.Connect(a, 0, b, 0, true)
	assert.NoError(t, err)
	_, err = g.Connect(b, 0, g.GraphOut(), 0, true)
	assert.NoError(t, err)

	assert.Equal(t, 2, g.DisconnectAll(a))
	assert.Equal(t, 1, g.NumEdges())
	// the node itself survives
	assert.NoError(t, g.SetChannelConfig(a, 1, 1))

	assert.Equal(t, 0, g.DisconnectAll(a))

	removed := g.AddNode(stubNode{outs: 1})
	assert.NoError(t, g.RemoveNode(removed))
	assert.Equal(t, 0, g.DisconnectAll(removed))
}

func TestSetChannelConfig(t *testing.T) {
	g := newTestGraph(1, 2)
	a := g.AddNode(stubNode{ins: 1, outs: 2})

	_, err := g.Connect(a, 0, g.GraphOut(), 0, true)
	assert.NoError(t, err)
	_, err = g.Connect(a, 1, g.GraphOut(), 1, true)
	assert.NoError(t, err)

	// shrinking to one output drops the edge at port 1
	assert.NoError(t, g.SetChannelConfig(a, 1, 1))
	assert.Equal(t, 1, g.NumEdges())
	g.Edges(func(e graph.Edge) bool {
		assert.Equal(t, 0, e.SrcPort)
		return true
	})
}
