// Package event defines the control-thread representation of node
// events: an optional timestamp in one of the three clock domains, the
// target node, and the payload.
package event

import (
	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/node"
)

// InstantKind discriminates event timestamps. The zero value means the
// event has no timestamp and fires at the start of the next block.
type InstantKind uint8

const (
	Immediate InstantKind = iota
	Samples
	Seconds
	Musical
)

// Instant is a moment an event should fire, in one of the three clock
// domains. The zero Instant is immediate.
type Instant struct {
	Kind    InstantKind
	Samples clock.InstantSamples
	Seconds clock.InstantSeconds
	Musical clock.InstantMusical
}

// AtSamples returns an instant in sample time.
func AtSamples(t clock.InstantSamples) Instant {
	return Instant{Kind: Samples, Samples: t}
}

// AtSeconds returns an instant in stream seconds.
func AtSeconds(t clock.InstantSeconds) Instant {
	return Instant{Kind: Seconds, Seconds: t}
}

// AtMusical returns an instant in beats. It only fires while a musical
// transport is playing.
func AtMusical(t clock.InstantMusical) Instant {
	return Instant{Kind: Musical, Musical: t}
}

// IsImmediate reports whether the instant is the immediate sentinel.
func (i Instant) IsImmediate() bool { return i.Kind == Immediate }

// IsMusical reports whether the instant is in beats.
func (i Instant) IsMusical() bool { return i.Kind == Musical }

// ToSamples resolves the instant to sample time. Musical instants
// cannot be resolved without a transport; ok is false for them and for
// immediate instants.
func (i Instant) ToSamples(sampleRate uint32) (clock.InstantSamples, bool) {
	switch i.Kind {
	case Samples:
		return i.Samples, true
	case Seconds:
		return i.Seconds.ToSamples(sampleRate), true
	default:
		return 0, false
	}
}

// NodeEvent is an event addressed to one node.
type NodeEvent struct {
	Node node.ID
	Time Instant
	Data node.Event
}

// Group is a reusable batch of events shipped to the audio thread in
// one message and returned for reuse.
type Group struct {
	events []NodeEvent
}

// NewGroup returns a group with the given capacity.
func NewGroup(capacity int) *Group {
	return &Group{events: make([]NodeEvent, 0, capacity)}
}

// Push appends an event.
func (g *Group) Push(e NodeEvent) {
	g.events = append(g.events, e)
}

// Len returns the number of events in the group.
func (g *Group) Len() int { return len(g.events) }

// Events returns the group's events. The slice is owned by the group.
func (g *Group) Events() []NodeEvent { return g.events }

// Reset empties the group, keeping its capacity.
func (g *Group) Reset() {
	clear(g.events)
	g.events = g.events[:0]
}
