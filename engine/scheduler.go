package engine

import (
	"slices"
	"sync/atomic"

	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/event"
	"github.com/dudk/chord/node"
)

// maxEventClumps is the number of contiguous immediate-event runs a
// node tracks before falling back to a full scan.
const maxEventClumps = 8

type immediateEvent struct {
	node node.ID
	data node.Event
}

type scheduledEvent struct {
	node node.ID
	data node.Event
	// instant is the original timestamp, kept for musical
	// re-resolution and sample-rate rebasing.
	instant event.Instant
}

type sortedEntry struct {
	slot int32
	time clock.InstantSamples
}

// nodeEventState is the per-node bookkeeping the scheduler keeps inside
// each procNode.
type nodeEventState struct {
	numImmediate  int
	clumps        [maxEventClumps]int32
	numClumps     int
	clumpOverflow bool

	numScheduled int
	numMusical   int

	// numThisBlock and firstSortedIndex are set by prepare for the
	// current block.
	numThisBlock     int
	firstSortedIndex int
}

// schedulerStats are counters the audio thread bumps and the control
// thread drains into logs.
type schedulerStats struct {
	droppedEvents atomic.Uint64
	arenaGrown    atomic.Uint64
}

// eventScheduler holds the audio thread's event storage: a flat buffer
// of immediate events delivered at the next block start, and an arena
// of scheduled events with a lazily sorted (slot, sampleTime) list.
type eventScheduler struct {
	immediate []immediateEvent

	arena    []scheduledEvent
	freelist []int32
	sorted   []sortedEntry
	// sortDirty marks the sorted list out of order; it is sorted
	// lazily before the next block.
	sortDirty  bool
	numElapsed int

	mode  BufferOutOfSpaceMode
	stats *schedulerStats

	sampleRate      uint32
	sampleRateRecip float64

	// touched nodes get their per-block counters reset at the next
	// prepare; immediateTouched when the block's events are consumed.
	touched          []*procNode
	immediateTouched []*procNode
}

func newEventScheduler(immediateCap, scheduledCap int, mode BufferOutOfSpaceMode, sampleRate uint32, stats *schedulerStats) eventScheduler {
	es := eventScheduler{
		immediate:       make([]immediateEvent, 0, immediateCap),
		arena:           make([]scheduledEvent, scheduledCap),
		freelist:        make([]int32, 0, scheduledCap),
		sorted:          make([]sortedEntry, 0, scheduledCap),
		mode:            mode,
		stats:           stats,
		sampleRate:      sampleRate,
		sampleRateRecip: 1.0 / float64(sampleRate),
	}
	for i := scheduledCap - 1; i >= 0; i-- {
		es.freelist = append(es.freelist, int32(i))
	}
	return es
}

// pushImmediate stores an event for delivery at the next block start.
func (es *eventScheduler) pushImmediate(pn *procNode, data node.Event) {
	if len(es.immediate) == cap(es.immediate) {
		switch es.mode {
		case DropEvents:
			es.stats.droppedEvents.Add(1)
			return
		case PanicMode:
			panic("engine: immediate event buffer out of space")
		default:
			es.stats.arenaGrown.Add(1)
		}
	}
	st := &pn.events
	i := len(es.immediate)
	if i == 0 || es.immediate[i-1].node != pn.id || st.numImmediate == 0 {
		if st.numClumps < maxEventClumps {
			st.clumps[st.numClumps] = int32(i)
			st.numClumps++
		} else {
			st.clumpOverflow = true
		}
	}
	es.immediate = append(es.immediate, immediateEvent{node: pn.id, data: data})
	if st.numImmediate == 0 {
		es.immediateTouched = append(es.immediateTouched, pn)
	}
	st.numImmediate++
}

// collectImmediate appends a node's pending immediate events to dst in
// arrival order.
func (es *eventScheduler) collectImmediate(pn *procNode, dst []node.Event) []node.Event {
	st := &pn.events
	if st.numImmediate == 0 {
		return dst
	}
	if st.clumpOverflow {
		for i := range es.immediate {
			if es.immediate[i].node == pn.id {
				dst = append(dst, es.immediate[i].data)
			}
		}
		return dst
	}
	for c := 0; c < st.numClumps; c++ {
		for i := int(st.clumps[c]); i < len(es.immediate) && es.immediate[i].node == pn.id; i++ {
			dst = append(dst, es.immediate[i].data)
		}
	}
	return dst
}

// clearImmediate empties the immediate buffer after a processed block,
// dropping payload references for the garbage collector.
func (es *eventScheduler) clearImmediate() {
	clear(es.immediate)
	es.immediate = es.immediate[:0]
	for _, pn := range es.immediateTouched {
		pn.events.numImmediate = 0
		pn.events.numClumps = 0
		pn.events.clumpOverflow = false
	}
	es.immediateTouched = es.immediateTouched[:0]
}

// resolveInstant turns an event instant into sample time. Musical
// instants resolve to NeverSamples when the transport is absent or
// stopped.
func (es *eventScheduler) resolveInstant(i event.Instant, tr *procTransport) clock.InstantSamples {
	switch i.Kind {
	case event.Samples:
		return i.Samples
	case event.Seconds:
		return i.Seconds.ToSamples(es.sampleRate)
	case event.Musical:
		return tr.musicalToSamples(i.Musical)
	default:
		return 0
	}
}

// pushScheduled stores a timed event in the arena.
func (es *eventScheduler) pushScheduled(pn *procNode, data node.Event, instant event.Instant, tr *procTransport) {
	t := es.resolveInstant(instant, tr)
	slot, ok := es.allocSlot()
	if !ok {
		switch es.mode {
		case DropEvents:
			es.stats.droppedEvents.Add(1)
			return
		case PanicMode:
			panic("engine: scheduled event arena out of space")
		default:
			es.arena = append(es.arena, scheduledEvent{})
			slot = int32(len(es.arena) - 1)
			es.stats.arenaGrown.Add(1)
		}
	}
	es.arena[slot] = scheduledEvent{node: pn.id, data: data, instant: instant}
	es.sorted = append(es.sorted, sortedEntry{slot: slot, time: t})
	es.sortDirty = true
	pn.events.numScheduled++
	if instant.IsMusical() {
		pn.events.numMusical++
	}
}

func (es *eventScheduler) allocSlot() (int32, bool) {
	n := len(es.freelist)
	if n == 0 {
		return 0, false
	}
	slot := es.freelist[n-1]
	es.freelist = es.freelist[:n-1]
	return slot, true
}

// resolveMusical recomputes the sample time of every pending musical
// event against the current transport.
func (es *eventScheduler) resolveMusical(tr *procTransport) {
	es.truncateElapsed()
	for i := range es.sorted {
		ev := &es.arena[es.sorted[i].slot]
		if ev.instant.IsMusical() {
			es.sorted[i].time = tr.musicalToSamples(ev.instant.Musical)
			es.sortDirty = true
		}
	}
}

// rebase moves pending sample and seconds timestamps to a new sample
// rate through seconds. Musical events are re-resolved separately after
// the transport rebases.
func (es *eventScheduler) rebase(newRate uint32) {
	es.truncateElapsed()
	for i := range es.sorted {
		ev := &es.arena[es.sorted[i].slot]
		switch ev.instant.Kind {
		case event.Samples:
			sec := ev.instant.Samples.ToSeconds(es.sampleRate, es.sampleRateRecip)
			ev.instant.Samples = sec.ToSamples(newRate)
			es.sorted[i].time = ev.instant.Samples
		case event.Seconds:
			es.sorted[i].time = ev.instant.Seconds.ToSamples(newRate)
		}
	}
	es.sortDirty = true
	es.sampleRate = newRate
	es.sampleRateRecip = 1.0 / float64(newRate)
}

// clearScheduled removes pending scheduled events of the given kind.
func (es *eventScheduler) clearScheduled(kind ClearKind, nodes map[node.ID]*procNode) {
	es.truncateElapsed()
	kept := es.sorted[:0]
	for _, entry := range es.sorted {
		ev := &es.arena[entry.slot]
		musical := ev.instant.IsMusical()
		remove := kind == ClearAll ||
			(kind == ClearMusicalOnly && musical) ||
			(kind == ClearNonMusicalOnly && !musical)
		if !remove {
			kept = append(kept, entry)
			continue
		}
		if pn := nodes[ev.node]; pn != nil {
			pn.events.numScheduled--
			if musical {
				pn.events.numMusical--
			}
		}
		es.freeSlot(entry.slot)
	}
	es.sorted = kept
}

// removeNode drops every pending event addressed to the node and zeroes
// its counters.
func (es *eventScheduler) removeNode(pn *procNode) {
	es.truncateElapsed()
	kept := es.sorted[:0]
	for _, entry := range es.sorted {
		if es.arena[entry.slot].node == pn.id {
			es.freeSlot(entry.slot)
			continue
		}
		kept = append(kept, entry)
	}
	es.sorted = kept
	pn.events = nodeEventState{}
}

func (es *eventScheduler) freeSlot(slot int32) {
	es.arena[slot] = scheduledEvent{}
	es.freelist = append(es.freelist, slot)
}

// truncateElapsed drops the elapsed prefix of the sorted list and
// returns its slots to the freelist.
func (es *eventScheduler) truncateElapsed() {
	if es.numElapsed == 0 {
		return
	}
	for i := 0; i < es.numElapsed; i++ {
		es.freeSlot(es.sorted[i].slot)
	}
	n := copy(es.sorted, es.sorted[es.numElapsed:])
	es.sorted = es.sorted[:n]
	es.numElapsed = 0
}

func (es *eventScheduler) sortIfNeeded() {
	if !es.sortDirty {
		return
	}
	es.truncateElapsed()
	slices.SortFunc(es.sorted, func(a, b sortedEntry) int {
		switch {
		case a.time < b.time:
			return -1
		case a.time > b.time:
			return 1
		default:
			return 0
		}
	})
	es.sortDirty = false
}

// earliestPreProcBound returns the time of the earliest pre-process
// node event strictly inside (blockStart, blockStart+frames), so the
// caller can shorten the block to land the event on a block boundary.
func (es *eventScheduler) earliestPreProcBound(blockStart clock.InstantSamples, frames int, nodes map[node.ID]*procNode) (clock.InstantSamples, bool) {
	es.sortIfNeeded()
	blockEnd := blockStart + clock.InstantSamples(frames)
	for i := es.numElapsed; i < len(es.sorted); i++ {
		t := es.sorted[i].time
		if t >= blockEnd {
			break
		}
		if t <= blockStart {
			continue
		}
		pn := nodes[es.arena[es.sorted[i].slot].node]
		if pn != nil && pn.isPreProcess {
			return t, true
		}
	}
	return 0, false
}

// prepare counts, per node, the events elapsing in this block and
// records where their sorted entries start. Every counted event is
// considered elapsed after the block.
func (es *eventScheduler) prepare(blockStart clock.InstantSamples, frames int, nodes map[node.ID]*procNode) {
	for _, pn := range es.touched {
		pn.events.numThisBlock = 0
	}
	es.touched = es.touched[:0]

	es.sortIfNeeded()
	if es.numElapsed > cap(es.sorted)/2 {
		es.truncateElapsed()
	}

	blockEnd := blockStart + clock.InstantSamples(frames)
	start := es.numElapsed
	elapsed := 0
	for i := start; i < len(es.sorted); i++ {
		if es.sorted[i].time >= blockEnd {
			break
		}
		elapsed++
		pn := nodes[es.arena[es.sorted[i].slot].node]
		if pn == nil {
			continue
		}
		if pn.events.numThisBlock == 0 {
			pn.events.firstSortedIndex = i
			es.touched = append(es.touched, pn)
		}
		pn.events.numThisBlock++
		pn.events.numScheduled--
		if es.arena[es.sorted[i].slot].instant.IsMusical() {
			pn.events.numMusical--
		}
	}
	es.numElapsed = start + elapsed
}

// collectDue appends a node's events elapsing in this block to dst,
// time-ascending, pairing each with its delivery time.
func (es *eventScheduler) collectDue(pn *procNode, dst []dueEvent) []dueEvent {
	remaining := pn.events.numThisBlock
	for i := pn.events.firstSortedIndex; i < len(es.sorted) && remaining > 0; i++ {
		ev := &es.arena[es.sorted[i].slot]
		if ev.node != pn.id {
			continue
		}
		dst = append(dst, dueEvent{time: es.sorted[i].time, data: ev.data})
		remaining--
	}
	return dst
}

type dueEvent struct {
	time clock.InstantSamples
	data node.Event
}
