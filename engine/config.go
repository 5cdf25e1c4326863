// Package engine ties the audio graph, the event scheduler, and a
// stream backend together: an Engine on the control thread, a Processor
// on the audio thread, and bounded message channels between them.
package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/dudk/chord/log"
)

// BufferOutOfSpaceMode selects what the audio thread does when the
// scheduled event arena runs out of slots.
type BufferOutOfSpaceMode uint8

const (
	// AllocateOnAudioThread grows the arena in place. This allocates on
	// the audio thread; the engine logs a warning on the next update.
	AllocateOnAudioThread BufferOutOfSpaceMode = iota
	// PanicMode panics the audio thread, poisoning the engine.
	PanicMode
	// DropEvents silently drops the event and counts it.
	DropEvents
)

// Config holds the engine's construction parameters. Use Options to
// change them from the defaults.
type Config struct {
	NumGraphInputs  int
	NumGraphOutputs int
	// HardClipOutputs clamps the stream output to [-1, 1].
	HardClipOutputs bool

	NodeCapacity int
	EdgeCapacity int

	// DeclickSeconds is the fade length nodes are told to use to avoid
	// clicks.
	DeclickSeconds float64

	ChannelCapacity        int
	EventQueueCapacity     int
	ImmediateEventCapacity int
	ScheduledEventCapacity int

	OutOfSpaceMode BufferOutOfSpaceMode

	// ForceClearBuffers zeroes node output buffers before every process
	// call. Debug aid for nodes that misreport their status.
	ForceClearBuffers bool

	Logger *logrus.Logger
}

func defaultConfig() Config {
	return Config{
		NumGraphInputs:         0,
		NumGraphOutputs:        2,
		NodeCapacity:           128,
		EdgeCapacity:           256,
		DeclickSeconds:         10.0 / 1000.0,
		ChannelCapacity:        64,
		EventQueueCapacity:     128,
		ImmediateEventCapacity: 512,
		ScheduledEventCapacity: 512,
		Logger:                 log.GetLogger(),
	}
}

// Option configures an Engine.
type Option func(*Config)

// GraphInputs sets the number of stream input channels exposed as the
// graph-in node's outputs.
func GraphInputs(n int) Option {
	return func(c *Config) { c.NumGraphInputs = n }
}

// GraphOutputs sets the number of stream output channels fed by the
// graph-out node's inputs.
func GraphOutputs(n int) Option {
	return func(c *Config) { c.NumGraphOutputs = n }
}

// HardClipOutputs clamps the stream output to [-1, 1].
func HardClipOutputs(v bool) Option {
	return func(c *Config) { c.HardClipOutputs = v }
}

// NodeCapacity pre-sizes the node arena.
func NodeCapacity(n int) Option {
	return func(c *Config) { c.NodeCapacity = n }
}

// EdgeCapacity pre-sizes the edge arena.
func EdgeCapacity(n int) Option {
	return func(c *Config) { c.EdgeCapacity = n }
}

// DeclickSeconds sets the fade length nodes use to avoid clicks.
func DeclickSeconds(sec float64) Option {
	return func(c *Config) { c.DeclickSeconds = sec }
}

// ChannelCapacity sets the capacity of the control/audio message
// channels.
func ChannelCapacity(n int) Option {
	return func(c *Config) { c.ChannelCapacity = n }
}

// EventQueueCapacity sets the capacity of a pooled event group.
func EventQueueCapacity(n int) Option {
	return func(c *Config) { c.EventQueueCapacity = n }
}

// ScheduledEventCapacity sets the audio-thread scheduled event arena
// size.
func ScheduledEventCapacity(n int) Option {
	return func(c *Config) { c.ScheduledEventCapacity = n }
}

// ImmediateEventCapacity sets the audio-thread immediate event buffer
// size.
func ImmediateEventCapacity(n int) Option {
	return func(c *Config) { c.ImmediateEventCapacity = n }
}

// OutOfSpace sets the policy for a full scheduled event arena.
func OutOfSpace(mode BufferOutOfSpaceMode) Option {
	return func(c *Config) { c.OutOfSpaceMode = mode }
}

// ForceClearBuffers zeroes node output buffers before every process
// call.
func ForceClearBuffers(v bool) Option {
	return func(c *Config) { c.ForceClearBuffers = v }
}

// WithLogger sets the logger the engine reports through.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
