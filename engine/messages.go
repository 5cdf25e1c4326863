package engine

import (
	"sync/atomic"
	"time"

	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/event"
	"github.com/dudk/chord/graph"
	"github.com/dudk/chord/node"
)

// ClearKind selects which scheduled events to clear.
type ClearKind uint8

const (
	ClearAll ClearKind = iota
	ClearNonMusicalOnly
	ClearMusicalOnly
)

type toProcKind uint8

const (
	msgEventGroup toProcKind = iota
	msgNewSchedule
	msgHardClipOutputs
	msgSetTransport
	msgClearScheduledEvents
)

// toProcMsg is a message from the control thread to the audio thread.
// One channel carries all kinds so ordering between them is preserved.
type toProcMsg struct {
	kind      toProcKind
	group     *event.Group
	schedule  *scheduleData
	hardClip  bool
	transport *clock.TransportState
	clear     ClearKind
}

type fromProcKind uint8

const (
	msgReturnEventGroup fromProcKind = iota
	msgReturnSchedule
	msgReturnTransport
	msgReturnClear
)

// fromProcMsg returns resources to the control thread so their reuse
// and teardown happen off the audio thread.
type fromProcMsg struct {
	kind      fromProcKind
	group     *event.Group
	schedule  *scheduleData
	transport *clock.TransportState
	clear     ClearKind
}

// newNodeProcessor pairs a node with its freshly constructed realtime
// processor for a schedule swap.
type newNodeProcessor struct {
	id   node.ID
	p    node.Processor
	info node.Info
}

// scheduleData is everything one schedule swap carries: the compiled
// schedule, processors for nodes new since the last swap, and the nodes
// whose processors must be dropped. The audio thread fills
// removedProcessors on return.
type scheduleData struct {
	schedule      *graph.CompiledSchedule
	newProcessors []newNodeProcessor
	nodesToRemove []node.ID

	// removedProcessors are handed back so Stopper teardown and
	// reclamation happen on the control thread.
	removedProcessors []node.Processor
}

// clockSnapshot is the audio thread's clock, published after every
// callback.
type clockSnapshot struct {
	clockSamples     clock.InstantSamples
	playhead         clock.InstantMusical
	hasPlayhead      bool
	speedMultiplier  float64
	transportPlaying bool
	// timestamp is the wall time of the callback that produced this
	// snapshot. Zero before the first callback.
	timestamp time.Time
}

// sharedClock is a latest-wins snapshot slot. The audio thread stores,
// the control thread loads; neither ever blocks.
type sharedClock struct {
	p atomic.Pointer[clockSnapshot]
}

func (s *sharedClock) publish(snap clockSnapshot) {
	s.p.Store(&snap)
}

func (s *sharedClock) load() (clockSnapshot, bool) {
	p := s.p.Load()
	if p == nil {
		return clockSnapshot{}, false
	}
	return *p, true
}
