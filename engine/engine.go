package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/event"
	"github.com/dudk/chord/graph"
	"github.com/dudk/chord/node"
)

// Engine is the control-thread half of the audio system. It owns the
// graph, queues events, and talks to the audio-thread Processor over
// bounded channels. Call Update regularly to flush queued work and
// recycle returned resources.
//
// Engine methods are not safe for concurrent use; drive it from one
// goroutine.
type Engine struct {
	cfg    Config
	logger *logrus.Logger

	graph    *graph.Graph
	toProc   chan toProcMsg
	fromProc chan fromProcMsg
	shared   sharedClock
	poisoned atomic.Bool
	stats    schedulerStats

	proc      *Processor
	backend   Backend
	stream    node.StreamInfo
	streaming bool
	// stopping holds a backend whose StopStream failed; the stream
	// cannot restart until it finishes.
	stopping Backend

	groupPool     []*event.Group
	pendingEvents *event.Group

	lastTransport   clock.TransportState
	queuedTransport *clock.TransportState
	spareTransport  []*clock.TransportState
	queuedClear     []ClearKind
	queuedHardClip  *bool

	// constructed tracks which nodes have a live audio-thread
	// processor.
	constructed map[node.ID]bool

	warnedDropped uint64
	warnedGrown   uint64
}

// New returns an engine configured by opts.
func New(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	e := &Engine{
		cfg:           cfg,
		logger:        cfg.Logger,
		graph:         graph.New(cfg.NumGraphInputs, cfg.NumGraphOutputs, cfg.NodeCapacity, cfg.EdgeCapacity),
		toProc:        make(chan toProcMsg, cfg.ChannelCapacity),
		fromProc:      make(chan fromProcMsg, cfg.ChannelCapacity),
		pendingEvents: event.NewGroup(cfg.EventQueueCapacity),
		lastTransport: clock.DefaultTransportState(),
		constructed:   make(map[node.ID]bool, cfg.NodeCapacity),
	}
	return e
}

// Graph returns the engine's audio graph. Mutations are picked up on
// the next Update (or at stream start) when the graph recompiles.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// ensureAlive panics when a node panicked on the audio thread. The
// engine is unusable past that point and hiding it would corrupt audio
// silently.
func (e *Engine) ensureAlive() {
	if e.poisoned.Load() {
		panic("chord: engine poisoned: a node panicked on the audio thread")
	}
}

// QueueEvent queues an event for delivery at the start of the next
// processed block.
func (e *Engine) QueueEvent(id node.ID, data node.Event) {
	e.ensureAlive()
	e.pendingEvents.Push(event.NodeEvent{Node: id, Data: data})
}

// ScheduleEvent queues an event for delivery at the given instant.
// Musical instants only fire while a musical transport is playing.
func (e *Engine) ScheduleEvent(id node.ID, at event.Instant, data node.Event) {
	e.ensureAlive()
	e.pendingEvents.Push(event.NodeEvent{Node: id, Time: at, Data: data})
}

// ClearScheduledEvents asks the audio thread to drop pending scheduled
// events of the given kind.
func (e *Engine) ClearScheduledEvents(kind ClearKind) {
	e.ensureAlive()
	e.queuedClear = append(e.queuedClear, kind)
}

// SetHardClipOutputs toggles clamping of the stream output to [-1, 1].
func (e *Engine) SetHardClipOutputs(v bool) {
	e.ensureAlive()
	e.queuedHardClip = &v
}

// SyncTransport replaces the transport state on the audio thread. The
// message is queued and sent on the next Update.
func (e *Engine) SyncTransport(ts clock.TransportState) {
	e.ensureAlive()
	msg := e.queuedTransport
	if msg == nil {
		if n := len(e.spareTransport); n > 0 {
			msg = e.spareTransport[n-1]
			e.spareTransport = e.spareTransport[:n-1]
		} else {
			msg = new(clock.TransportState)
		}
	}
	*msg = ts
	e.queuedTransport = msg
	e.lastTransport = ts
}

// TransportState returns the last state passed to SyncTransport.
func (e *Engine) TransportState() clock.TransportState { return e.lastTransport }

// Update drains resources returned by the audio thread, runs node
// update hooks, recompiles the graph if it changed, and flushes queued
// messages. Sends that do not fit return ErrMsgChannelFull and are
// retried on the next Update with the engine's state unchanged.
func (e *Engine) Update() error {
	e.ensureAlive()
	e.drainReturns()
	e.warnCounters()

	if e.streaming {
		if err := e.backend.PollStatus(); err != nil {
			e.logger.WithError(err).Warn("stream stopped unexpectedly")
			_ = e.backend.StopStream()
			e.backend = nil
			e.streaming = false
			e.proc.streamStopped()
			e.drainReturns()
			return fmt.Errorf("%w: %v", ErrStreamStoppedUnexpectedly, err)
		}
	}

	e.updateNodes()

	if !e.streaming {
		return nil
	}

	// the schedule swap goes first: events queued for nodes added since
	// the last Update must reach the processor after it knows them, and
	// a clear issued alongside new events must not drop them. When the
	// swap cannot be sent everything stays queued for the next Update.
	if e.graph.NeedsCompile() {
		if err := e.compileAndSend(); err != nil {
			return err
		}
	}

	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for len(e.queuedClear) > 0 {
		if !e.trySend(toProcMsg{kind: msgClearScheduledEvents, clear: e.queuedClear[0]}) {
			fail(ErrMsgChannelFull)
			break
		}
		e.queuedClear = e.queuedClear[1:]
	}

	if e.queuedHardClip != nil {
		if e.trySend(toProcMsg{kind: msgHardClipOutputs, hardClip: *e.queuedHardClip}) {
			e.queuedHardClip = nil
		} else {
			fail(ErrMsgChannelFull)
		}
	}

	if e.pendingEvents.Len() > 0 {
		if e.trySend(toProcMsg{kind: msgEventGroup, group: e.pendingEvents}) {
			e.pendingEvents = e.groupFromPool()
		} else {
			fail(ErrMsgChannelFull)
		}
	}

	if e.queuedTransport != nil {
		if e.trySend(toProcMsg{kind: msgSetTransport, transport: e.queuedTransport}) {
			e.queuedTransport = nil
		} else {
			fail(ErrMsgChannelFull)
		}
	}
	return firstErr
}

// compileAndSend recompiles the graph and ships the schedule swap. On a
// full channel everything rolls back and the swap is retried on the
// next Update.
func (e *Engine) compileAndSend() error {
	sd, newIDs, err := e.buildScheduleData()
	if err != nil {
		return err
	}
	if !e.trySend(toProcMsg{kind: msgNewSchedule, schedule: sd}) {
		// fresh processors never ran; drop them and retry later
		return ErrMsgChannelFull
	}
	e.commitSchedule(sd, newIDs)
	return nil
}

// buildScheduleData compiles the graph and constructs processors for
// nodes that do not have one on the audio thread yet.
func (e *Engine) buildScheduleData() (*scheduleData, []node.ID, error) {
	sched, err := e.graph.Compile(e.stream.MaxBlockFrames)
	if err != nil {
		return nil, nil, &GraphCompileError{Err: err}
	}
	sd := &scheduleData{schedule: sched}
	var newIDs []node.ID
	construct := func(id node.ID) {
		if e.constructed[id] {
			return
		}
		n, ok := e.graph.Node(id)
		if !ok {
			// graph in/out have no processor
			return
		}
		sd.newProcessors = append(sd.newProcessors, newNodeProcessor{
			id:   id,
			p:    n.Processor(&e.stream),
			info: n.Info(),
		})
		newIDs = append(newIDs, id)
	}
	for _, sn := range sched.ScheduledNodes() {
		construct(sn.ID)
	}
	for _, sn := range sched.PreProcessNodes() {
		construct(sn.ID)
	}
	sd.nodesToRemove = append([]node.ID(nil), e.graph.NodesToRemove()...)
	return sd, newIDs, nil
}

func (e *Engine) commitSchedule(sd *scheduleData, newIDs []node.ID) {
	for _, id := range newIDs {
		e.constructed[id] = true
	}
	for _, id := range sd.nodesToRemove {
		delete(e.constructed, id)
	}
	e.graph.MarkCompiled()
	e.logger.WithFields(logrus.Fields{
		"nodes":   len(sd.schedule.ScheduledNodes()) + len(sd.schedule.PreProcessNodes()),
		"buffers": sd.schedule.NumBuffers(),
		"new":     len(newIDs),
		"removed": len(sd.nodesToRemove),
	}).Debug("schedule swapped")
}

// StartStream compiles the graph and starts audio through the backend.
func (e *Engine) StartStream(b Backend) error {
	e.ensureAlive()
	if e.streaming {
		return ErrAlreadyStarted
	}
	if e.stopping != nil {
		if err := e.stopping.StopStream(); err != nil {
			return ErrOldStreamNotFinishedStopping
		}
		e.stopping = nil
		e.proc.streamStopped()
	}
	info, err := b.StartStream(StreamConfig{
		NumInChannels:  e.cfg.NumGraphInputs,
		NumOutChannels: e.cfg.NumGraphOutputs,
	})
	if err != nil {
		return &StartStreamError{Err: err}
	}
	info.PrevSampleRate = e.stream.SampleRate
	if info.SampleRateRecip == 0 {
		info.SampleRateRecip = 1.0 / float64(info.SampleRate)
	}
	if info.DeclickFrames == 0 {
		info.DeclickFrames = int(e.cfg.DeclickSeconds * float64(info.SampleRate))
	}

	if e.proc == nil {
		e.proc = newProcessor(e.cfg, info, e.toProc, e.fromProc, &e.shared, &e.poisoned, &e.stats)
	} else {
		e.proc.newStream(info)
	}
	e.stream = info

	sd, newIDs, err := e.buildScheduleData()
	if err != nil {
		_ = b.StopStream()
		return err
	}
	// the stream is not running yet, so install directly
	e.proc.installSchedule(sd)
	e.commitSchedule(sd, newIDs)

	b.SetProcessor(e.proc)
	e.backend = b
	e.streaming = true
	e.logger.WithFields(logrus.Fields{
		"session":     info.SessionID,
		"sample_rate": info.SampleRate,
		"max_block":   info.MaxBlockFrames,
		"out":         info.NumStreamOutChannels,
		"in":          info.NumStreamInChannels,
	}).Info("stream started")
	return nil
}

// StopStream stops the backend and notifies node processors. The
// processor and its node state survive for the next stream.
func (e *Engine) StopStream() error {
	e.ensureAlive()
	if !e.streaming {
		return ErrNotStarted
	}
	err := e.backend.StopStream()
	if err != nil {
		// the callback may still fire; quarantine the backend
		e.stopping = e.backend
		e.backend = nil
		e.streaming = false
		return fmt.Errorf("engine: backend failed to stop: %w", err)
	}
	e.backend = nil
	e.streaming = false
	e.proc.streamStopped()
	e.drainReturns()
	e.logger.WithField("session", e.stream.SessionID).Info("stream stopped")
	return nil
}

// Close stops the stream if one is running and releases the engine.
func (e *Engine) Close() error {
	var err error
	if e.streaming {
		err = e.backend.StopStream()
		e.backend = nil
		e.streaming = false
		if !e.poisoned.Load() {
			e.proc.streamStopped()
		}
	}
	e.drainReturns()
	return err
}

// AudioClock returns the audio thread's clock as of its last callback.
func (e *Engine) AudioClock() clock.AudioClock {
	snap, ok := e.shared.load()
	if !ok {
		return clock.AudioClock{}
	}
	return e.clockFromSnapshot(snap)
}

// AudioClockCorrected returns AudioClock advanced by the wall time
// elapsed since the audio thread published it, for animation and UI
// that must not jump at callback granularity.
func (e *Engine) AudioClockCorrected() clock.AudioClock {
	snap, ok := e.shared.load()
	if !ok {
		return clock.AudioClock{}
	}
	if e.streaming && !snap.timestamp.IsZero() {
		elapsed := clock.DurationSeconds(time.Since(snap.timestamp).Seconds())
		snap.clockSamples = snap.clockSamples.Add(elapsed.ToSamples(e.stream.SampleRate))
		if snap.transportPlaying && e.lastTransport.Transport != nil {
			snap.playhead = e.lastTransport.Transport.DeltaSecondsFrom(snap.playhead, elapsed, snap.speedMultiplier)
		}
	}
	return e.clockFromSnapshot(snap)
}

func (e *Engine) clockFromSnapshot(s clockSnapshot) clock.AudioClock {
	c := clock.AudioClock{
		Samples:          s.clockSamples,
		Musical:          s.playhead,
		HasMusical:       s.hasPlayhead,
		TransportPlaying: s.transportPlaying,
		UpdateInstant:    s.timestamp,
	}
	if e.stream.SampleRate != 0 {
		c.Seconds = s.clockSamples.ToSeconds(e.stream.SampleRate, e.stream.SampleRateRecip)
	}
	return c
}

func (e *Engine) drainReturns() {
	for {
		select {
		case msg := <-e.fromProc:
			switch msg.kind {
			case msgReturnEventGroup:
				e.groupPool = append(e.groupPool, msg.group)
			case msgReturnSchedule:
				for _, p := range msg.schedule.removedProcessors {
					if s, ok := p.(node.Stopper); ok {
						s.StreamStopped()
					}
				}
			case msgReturnTransport:
				e.spareTransport = append(e.spareTransport, msg.transport)
			case msgReturnClear:
			}
		default:
			return
		}
	}
}

func (e *Engine) updateNodes() {
	e.graph.Nodes(func(id node.ID) bool {
		n, ok := e.graph.Node(id)
		if !ok || !n.Info().CallUpdate {
			return true
		}
		if u, ok := n.(node.Updater); ok {
			u.Update()
		}
		return true
	})
}

func (e *Engine) warnCounters() {
	if dropped := e.stats.droppedEvents.Load(); dropped > e.warnedDropped {
		e.logger.WithField("count", dropped-e.warnedDropped).Warn("audio thread dropped events")
		e.warnedDropped = dropped
	}
	if grown := e.stats.arenaGrown.Load(); grown > e.warnedGrown {
		e.logger.WithField("count", grown-e.warnedGrown).Warn("audio thread grew event storage")
		e.warnedGrown = grown
	}
}

func (e *Engine) trySend(m toProcMsg) bool {
	select {
	case e.toProc <- m:
		return true
	default:
		return false
	}
}

func (e *Engine) groupFromPool() *event.Group {
	if n := len(e.groupPool); n > 0 {
		g := e.groupPool[n-1]
		e.groupPool = e.groupPool[:n-1]
		return g
	}
	return event.NewGroup(e.cfg.EventQueueCapacity)
}
