package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/event"
	"github.com/dudk/chord/node"
)

func TestInstant(t *testing.T) {
	var zero event.Instant
	assert.True(t, zero.IsImmediate())
	assert.False(t, event.AtSamples(1).IsImmediate())

	s, ok := event.AtSamples(100).ToSamples(48000)
	assert.True(t, ok)
	assert.Equal(t, clock.InstantSamples(100), s)

	s, ok = event.AtSeconds(0.5).ToSamples(48000)
	assert.True(t, ok)
	assert.Equal(t, clock.InstantSamples(24000), s)

	// musical time has no fixed sample mapping
	_, ok = event.AtMusical(1).ToSamples(48000)
	assert.False(t, ok)
	assert.True(t, event.AtMusical(1).IsMusical())
	_, ok = zero.ToSamples(48000)
	assert.False(t, ok)
}

func TestGroup(t *testing.T) {
	g := event.NewGroup(4)
	g.Push(event.NodeEvent{Data: node.ParamEvent(1, node.BoolValue(true))})
	g.Push(event.NodeEvent{Time: event.AtSamples(10), Data: node.ParamEvent(2, node.BoolValue(true))})
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, uint32(1), g.Events()[0].Data.ParamID)

	g.Reset()
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.Events())
}
