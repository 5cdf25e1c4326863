package graph

import (
	"github.com/dudk/chord/internal/slab"
	"github.com/dudk/chord/node"
)

// InAssignment maps a node's input port to a buffer in the pool.
type InAssignment struct {
	Buffer int
	// ShouldClear marks an unconnected port whose buffer must read as
	// silence.
	ShouldClear bool
}

// OutAssignment maps a node's output port to a buffer in the pool.
type OutAssignment struct {
	Buffer int
}

// InsertedSum mixes multiple edges that land on the same input port
// into a fresh buffer. It runs before its node.
type InsertedSum struct {
	Inputs []int
	Output int
}

// ScheduledNode is one node in the compiled schedule with its buffer
// assignments resolved.
type ScheduledNode struct {
	ID node.ID

	// Sums run before the node, in input-port order.
	Sums    []InsertedSum
	Inputs  []InAssignment
	Outputs []OutAssignment

	ConnectedIn  node.ConnectedMask
	ConnectedOut node.ConnectedMask
}

// Compile turns the graph into a linear schedule with buffers assigned
// so no buffer aliases another within one scheduled node. Ties in the
// topological order break toward the lowest node slot, so compilation
// is deterministic. Returns ErrCycleDetected on a cyclic graph.
func (g *Graph) Compile(maxBlockFrames int) (*CompiledSchedule, error) {
	order, preProc, ok := g.sortTopologically()
	if !ok {
		return nil, ErrCycleDetected
	}

	alloc := bufferAllocator{}
	table := make(map[EdgeID]int, g.edges.Len())

	scheduled := make([]ScheduledNode, 0, len(order))
	for _, id := range order {
		entry, _ := g.nodes.Get(slab.Index(id))
		sn := ScheduledNode{ID: id}
		var releaseAfter []int

		for p := 0; p < entry.info.NumInputs; p++ {
			edges := g.edgesAtInPort(entry, p)
			switch len(edges) {
			case 0:
				b := alloc.acquire()
				sn.Inputs = append(sn.Inputs, InAssignment{Buffer: b, ShouldClear: true})
				releaseAfter = append(releaseAfter, b)
			case 1:
				b := table[edges[0]]
				sn.Inputs = append(sn.Inputs, InAssignment{Buffer: b})
				sn.ConnectedIn = sn.ConnectedIn.WithPort(p)
				releaseAfter = append(releaseAfter, b)
			default:
				out := alloc.acquire()
				sum := InsertedSum{Output: out, Inputs: make([]int, 0, len(edges))}
				for _, eid := range edges {
					b := table[eid]
					sum.Inputs = append(sum.Inputs, b)
					releaseAfter = append(releaseAfter, b)
				}
				sn.Sums = append(sn.Sums, sum)
				sn.Inputs = append(sn.Inputs, InAssignment{Buffer: out})
				sn.ConnectedIn = sn.ConnectedIn.WithPort(p)
				releaseAfter = append(releaseAfter, out)
			}
		}

		for p := 0; p < entry.info.NumOutputs; p++ {
			edges := g.edgesAtOutPort(entry, p)
			b := alloc.acquire()
			sn.Outputs = append(sn.Outputs, OutAssignment{Buffer: b})
			if len(edges) == 0 {
				releaseAfter = append(releaseAfter, b)
				continue
			}
			sn.ConnectedOut = sn.ConnectedOut.WithPort(p)
			for i, eid := range edges {
				if i > 0 {
					alloc.retain(b)
				}
				table[eid] = b
			}
		}

		for _, b := range releaseAfter {
			alloc.release(b)
		}
		scheduled = append(scheduled, sn)
	}

	preScheduled := make([]ScheduledNode, 0, len(preProc))
	for _, id := range preProc {
		preScheduled = append(preScheduled, ScheduledNode{ID: id})
	}

	return newCompiledSchedule(scheduled, preScheduled, alloc.highWater, maxBlockFrames, g.graphIn, g.graphOut), nil
}

// CycleDetected reports whether the graph currently contains a cycle.
// It runs the scheduling sort without building a schedule.
func (g *Graph) CycleDetected() bool {
	_, _, ok := g.sortTopologically()
	return !ok
}

// sortTopologically returns the main schedule order (graph-in first,
// graph-out last) and the pre-process nodes (zero ports). ok is false
// when the graph is cyclic.
func (g *Graph) sortTopologically() (order, preProc []node.ID, ok bool) {
	type sortEntry struct {
		id       node.ID
		inDegree int
	}
	entries := make(map[uint32]*sortEntry, g.nodes.Len())
	var ready []uint32
	mainCount := 0

	g.nodes.Range(func(i slab.Index, e *nodeEntry) bool {
		id := node.ID(i)
		if id != g.graphIn && id != g.graphOut && e.info.NumInputs == 0 && e.info.NumOutputs == 0 {
			preProc = append(preProc, id)
			return true
		}
		mainCount++
		se := &sortEntry{id: id, inDegree: len(e.incoming)}
		entries[i.Slot] = se
		if se.inDegree == 0 && id != g.graphIn && id != g.graphOut {
			ready = append(ready, i.Slot)
		}
		return true
	})

	order = make([]node.ID, 0, mainCount)
	order = append(order, g.graphIn)
	emit := func(id node.ID) {
		entry, _ := g.nodes.Get(slab.Index(id))
		for _, eid := range entry.outgoing {
			edge, _ := g.edges.Get(slab.Index(eid))
			dst := entries[edge.DstNode.Slot]
			dst.inDegree--
			if dst.inDegree == 0 && edge.DstNode != g.graphOut {
				ready = append(ready, edge.DstNode.Slot)
			}
		}
	}
	emit(g.graphIn)

	for len(ready) > 0 {
		// lowest slot first
		min := 0
		for i := 1; i < len(ready); i++ {
			if ready[i] < ready[min] {
				min = i
			}
		}
		slot := ready[min]
		ready = append(ready[:min], ready[min+1:]...)
		id := entries[slot].id
		order = append(order, id)
		emit(id)
	}

	if out := entries[g.graphOut.Slot]; out.inDegree != 0 {
		return nil, nil, false
	}
	order = append(order, g.graphOut)
	if len(order) != mainCount {
		return nil, nil, false
	}
	return order, preProc, true
}

func (g *Graph) edgesAtInPort(entry *nodeEntry, port int) []EdgeID {
	var edges []EdgeID
	for _, eid := range entry.incoming {
		if e, ok := g.edges.Get(slab.Index(eid)); ok && e.DstPort == port {
			edges = append(edges, eid)
		}
	}
	return edges
}

func (g *Graph) edgesAtOutPort(entry *nodeEntry, port int) []EdgeID {
	var edges []EdgeID
	for _, eid := range entry.outgoing {
		if e, ok := g.edges.Get(slab.Index(eid)); ok && e.SrcPort == port {
			edges = append(edges, eid)
		}
	}
	return edges
}

// bufferAllocator hands out pool buffer indices with a free list and
// per-buffer reference counts. highWater is the pool size the schedule
// needs.
type bufferAllocator struct {
	free      []int
	refs      []int
	highWater int
}

func (a *bufferAllocator) acquire() int {
	if n := len(a.free); n > 0 {
		b := a.free[n-1]
		a.free = a.free[:n-1]
		a.refs[b] = 1
		return b
	}
	b := a.highWater
	a.highWater++
	a.refs = append(a.refs, 1)
	return b
}

func (a *bufferAllocator) retain(b int) {
	a.refs[b]++
}

func (a *bufferAllocator) release(b int) {
	a.refs[b]--
	if a.refs[b] == 0 {
		a.free = append(a.free, b)
	}
}
