// Package graph implements the audio graph: a DAG of nodes connected
// port to port, and a compiler that turns it into a linear schedule
// with preassigned processing buffers.
package graph

import (
	"errors"
	"fmt"

	"github.com/dudk/chord/internal/slab"
	"github.com/dudk/chord/node"
)

var (
	// ErrSrcNodeNotFound is returned when an edge names a missing
	// source node.
	ErrSrcNodeNotFound = errors.New("graph: source node not found")
	// ErrDstNodeNotFound is returned when an edge names a missing
	// destination node.
	ErrDstNodeNotFound = errors.New("graph: destination node not found")
	// ErrCycleDetected is returned when an operation would make the
	// graph cyclic, or when compiling a cyclic graph.
	ErrCycleDetected = errors.New("graph: cycle detected")
	// ErrSelfEdge is returned when an edge connects a node to itself.
	ErrSelfEdge = errors.New("graph: edge connects node to itself")
	// ErrCannotRemoveGraphIONode is returned when removing the graph-in
	// or graph-out node.
	ErrCannotRemoveGraphIONode = errors.New("graph: cannot remove graph in/out node")
	// ErrNodeNotFound is returned when a node ID does not resolve.
	ErrNodeNotFound = errors.New("graph: node not found")
)

// PortOutOfRangeError is returned when an edge names a port the node
// does not have.
type PortOutOfRangeError struct {
	// In is true for an input port, false for an output port.
	In       bool
	Port     int
	NumPorts int
}

func (e *PortOutOfRangeError) Error() string {
	direction := "output"
	if e.In {
		direction = "input"
	}
	return fmt.Sprintf("graph: %s port %d out of range, node has %d", direction, e.Port, e.NumPorts)
}

// EdgeID is a generational handle to an edge.
type EdgeID slab.Index

// Edge is a connection from one node's output port to another node's
// input port.
type Edge struct {
	ID      EdgeID
	SrcNode node.ID
	SrcPort int
	DstNode node.ID
	DstPort int
}

type edgeKey struct {
	srcNode node.ID
	srcPort int
	dstNode node.ID
	dstPort int
}

type nodeEntry struct {
	id   node.ID
	n    node.Node // nil for the graph in/out nodes
	info node.Info

	incoming []EdgeID
	outgoing []EdgeID
}

// Graph is the control-thread audio graph. Not safe for concurrent use.
type Graph struct {
	nodes    *slab.Arena[nodeEntry]
	edges    *slab.Arena[Edge]
	edgeHash map[edgeKey]EdgeID

	graphIn  node.ID
	graphOut node.ID

	// nodesToRemove accumulates removed node ids until a new schedule
	// is successfully shipped; their audio-thread processors are
	// dropped at the swap.
	nodesToRemove []node.ID

	dirty bool
}

// New returns a graph with the given stream channel counts. The graph
// in and out nodes exist from the start and cannot be removed.
func New(numGraphIns, numGraphOuts, nodeCapacity, edgeCapacity int) *Graph {
	g := &Graph{
		nodes:    slab.New[nodeEntry](nodeCapacity),
		edges:    slab.New[Edge](edgeCapacity),
		edgeHash: make(map[edgeKey]EdgeID, edgeCapacity),
		dirty:    true,
	}
	g.graphIn = g.insertEntry(nodeEntry{info: node.Info{NumOutputs: numGraphIns}})
	g.graphOut = g.insertEntry(nodeEntry{info: node.Info{NumInputs: numGraphOuts}})
	return g
}

func (g *Graph) insertEntry(e nodeEntry) node.ID {
	id := node.ID(g.nodes.Insert(e))
	entry, _ := g.nodes.Get(slab.Index(id))
	entry.id = id
	return id
}

// GraphIn returns the node whose output ports carry the audio stream's
// input channels.
func (g *Graph) GraphIn() node.ID { return g.graphIn }

// GraphOut returns the node whose input ports feed the audio stream's
// output channels.
func (g *Graph) GraphOut() node.ID { return g.graphOut }

// AddNode inserts n into the graph and returns its ID.
func (g *Graph) AddNode(n node.Node) node.ID {
	id := g.insertEntry(nodeEntry{n: n, info: n.Info()})
	g.dirty = true
	return id
}

// Node returns the node stored at id.
func (g *Graph) Node(id node.ID) (node.Node, bool) {
	entry, ok := g.nodes.Get(slab.Index(id))
	if !ok || entry.n == nil {
		return nil, false
	}
	return entry.n, true
}

// NodeInfo returns the port configuration of the node at id, including
// the graph in/out nodes.
func (g *Graph) NodeInfo(id node.ID) (node.Info, bool) {
	entry, ok := g.nodes.Get(slab.Index(id))
	if !ok {
		return node.Info{}, false
	}
	return entry.info, true
}

// NumNodes returns the number of nodes, including graph in/out.
func (g *Graph) NumNodes() int { return g.nodes.Len() }

// NumEdges returns the number of edges.
func (g *Graph) NumEdges() int { return g.edges.Len() }

// Nodes calls fn for every live node ID, including graph in/out.
func (g *Graph) Nodes(fn func(node.ID) bool) {
	g.nodes.Range(func(i slab.Index, _ *nodeEntry) bool {
		return fn(node.ID(i))
	})
}

// RemoveNode removes the node and every edge touching it. The node's
// audio-thread processor is dropped at the next schedule swap.
func (g *Graph) RemoveNode(id node.ID) error {
	if id == g.graphIn || id == g.graphOut {
		return ErrCannotRemoveGraphIONode
	}
	entry, ok := g.nodes.Get(slab.Index(id))
	if !ok {
		return ErrNodeNotFound
	}
	for _, eid := range append([]EdgeID(nil), entry.incoming...) {
		g.removeEdge(eid)
	}
	for _, eid := range append([]EdgeID(nil), entry.outgoing...) {
		g.removeEdge(eid)
	}
	g.nodes.Remove(slab.Index(id))
	g.nodesToRemove = append(g.nodesToRemove, id)
	g.dirty = true
	return nil
}

// SetChannelConfig changes the node's port counts. Edges to ports that
// no longer exist are removed.
func (g *Graph) SetChannelConfig(id node.ID, numInputs, numOutputs int) error {
	if id == g.graphIn || id == g.graphOut {
		return ErrCannotRemoveGraphIONode
	}
	entry, ok := g.nodes.Get(slab.Index(id))
	if !ok {
		return ErrNodeNotFound
	}
	entry.info.NumInputs = numInputs
	entry.info.NumOutputs = numOutputs
	var stale []EdgeID
	for _, eid := range entry.incoming {
		if e, ok := g.edges.Get(slab.Index(eid)); ok && e.DstPort >= numInputs {
			stale = append(stale, eid)
		}
	}
	for _, eid := range entry.outgoing {
		if e, ok := g.edges.Get(slab.Index(eid)); ok && e.SrcPort >= numOutputs {
			stale = append(stale, eid)
		}
	}
	for _, eid := range stale {
		g.removeEdge(eid)
	}
	g.dirty = true
	return nil
}

// Connect adds an edge from src's output port to dst's input port.
// A duplicate connect returns the existing edge. With checkCycle the
// edge is rolled back and ErrCycleDetected returned if it would create
// a cycle.
func (g *Graph) Connect(src node.ID, srcPort int, dst node.ID, dstPort int, checkCycle bool) (EdgeID, error) {
	srcEntry, ok := g.nodes.Get(slab.Index(src))
	if !ok {
		return EdgeID{}, ErrSrcNodeNotFound
	}
	dstEntry, ok := g.nodes.Get(slab.Index(dst))
	if !ok {
		return EdgeID{}, ErrDstNodeNotFound
	}
	if src == dst {
		return EdgeID{}, ErrSelfEdge
	}
	if srcPort < 0 || srcPort >= srcEntry.info.NumOutputs {
		return EdgeID{}, &PortOutOfRangeError{Port: srcPort, NumPorts: srcEntry.info.NumOutputs}
	}
	if dstPort < 0 || dstPort >= dstEntry.info.NumInputs {
		return EdgeID{}, &PortOutOfRangeError{In: true, Port: dstPort, NumPorts: dstEntry.info.NumInputs}
	}
	key := edgeKey{srcNode: src, srcPort: srcPort, dstNode: dst, dstPort: dstPort}
	if existing, ok := g.edgeHash[key]; ok {
		return existing, nil
	}

	eid := EdgeID(g.edges.Insert(Edge{SrcNode: src, SrcPort: srcPort, DstNode: dst, DstPort: dstPort}))
	edge, _ := g.edges.Get(slab.Index(eid))
	edge.ID = eid
	g.edgeHash[key] = eid
	srcEntry.outgoing = append(srcEntry.outgoing, eid)
	dstEntry.incoming = append(dstEntry.incoming, eid)

	if checkCycle && g.CycleDetected() {
		g.removeEdge(eid)
		return EdgeID{}, ErrCycleDetected
	}
	g.dirty = true
	return eid, nil
}

// Disconnect removes the edge between the given ports. It reports
// whether an edge existed.
func (g *Graph) Disconnect(src node.ID, srcPort int, dst node.ID, dstPort int) bool {
	key := edgeKey{srcNode: src, srcPort: srcPort, dstNode: dst, dstPort: dstPort}
	eid, ok := g.edgeHash[key]
	if !ok {
		return false
	}
	g.removeEdge(eid)
	g.dirty = true
	return true
}

// DisconnectAll removes every edge touching the node and returns how
// many were removed.
func (g *Graph) DisconnectAll(id node.ID) int {
	entry, ok := g.nodes.Get(slab.Index(id))
	if !ok {
		return 0
	}
	removed := 0
	for _, eid := range append([]EdgeID(nil), entry.incoming...) {
		g.removeEdge(eid)
		removed++
	}
	for _, eid := range append([]EdgeID(nil), entry.outgoing...) {
		g.removeEdge(eid)
		removed++
	}
	if removed > 0 {
		g.dirty = true
	}
	return removed
}

// DisconnectByID removes the edge with the given ID.
func (g *Graph) DisconnectByID(eid EdgeID) bool {
	if !g.edges.Contains(slab.Index(eid)) {
		return false
	}
	g.removeEdge(eid)
	g.dirty = true
	return true
}

// Edges calls fn for every edge.
func (g *Graph) Edges(fn func(Edge) bool) {
	g.edges.Range(func(_ slab.Index, e *Edge) bool {
		return fn(*e)
	})
}

func (g *Graph) removeEdge(eid EdgeID) {
	edge, ok := g.edges.Remove(slab.Index(eid))
	if !ok {
		return
	}
	delete(g.edgeHash, edgeKey{
		srcNode: edge.SrcNode, srcPort: edge.SrcPort,
		dstNode: edge.DstNode, dstPort: edge.DstPort,
	})
	if entry, ok := g.nodes.Get(slab.Index(edge.SrcNode)); ok {
		entry.outgoing = removeID(entry.outgoing, eid)
	}
	if entry, ok := g.nodes.Get(slab.Index(edge.DstNode)); ok {
		entry.incoming = removeID(entry.incoming, eid)
	}
}

func removeID(ids []EdgeID, id EdgeID) []EdgeID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// NeedsCompile reports whether the graph changed since the last
// compile.
func (g *Graph) NeedsCompile() bool { return g.dirty }

// NodesToRemove returns the nodes removed since the last successful
// schedule swap. The slice is owned by the graph.
func (g *Graph) NodesToRemove() []node.ID { return g.nodesToRemove }

// MarkCompiled records that the current graph state reached the audio
// thread, clearing the dirty flag and the removed-node set.
func (g *Graph) MarkCompiled() {
	g.dirty = false
	g.nodesToRemove = g.nodesToRemove[:0]
}
