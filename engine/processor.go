package engine

import (
	"sync/atomic"
	"time"

	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/graph"
	"github.com/dudk/chord/node"
)

// procNode is the audio thread's per-node entry.
type procNode struct {
	id           node.ID
	processor    node.Processor
	info         node.Info
	isPreProcess bool
	events       nodeEventState
}

// Processor is the audio-thread half of the engine. A backend calls
// ProcessInterleaved from its realtime callback; everything else
// reaches the processor through the message channel.
type Processor struct {
	fromCtx chan toProcMsg
	toCtx   chan fromProcMsg
	shared  *sharedClock
	// poisoned flips when a node panics inside the callback. The
	// engine panics loudly on its next operation.
	poisoned *atomic.Bool
	stats    *schedulerStats

	stream    node.StreamInfo
	sched     *scheduleData
	nodes     map[node.ID]*procNode
	events    eventScheduler
	transport procTransport

	clockSamples clock.InstantSamples

	hardClip   bool
	forceClear bool

	// pending holds return messages that did not fit in the channel,
	// retried at the end of every callback.
	pending []fromProcMsg

	evScratch  []node.Event
	dueScratch []dueEvent
	subIn      [][]float32
	subOut     [][]float32
}

func newProcessor(cfg Config, stream node.StreamInfo, toProc chan toProcMsg, fromProc chan fromProcMsg, shared *sharedClock, poisoned *atomic.Bool, stats *schedulerStats) *Processor {
	return &Processor{
		fromCtx:    toProc,
		toCtx:      fromProc,
		shared:     shared,
		poisoned:   poisoned,
		stats:      stats,
		stream:     stream,
		nodes:      make(map[node.ID]*procNode, cfg.NodeCapacity),
		events:     newEventScheduler(cfg.ImmediateEventCapacity, cfg.ScheduledEventCapacity, cfg.OutOfSpaceMode, stream.SampleRate, stats),
		transport:  newProcTransport(stream.SampleRate),
		hardClip:   cfg.HardClipOutputs,
		forceClear: cfg.ForceClearBuffers,
		evScratch:  make([]node.Event, 0, 64),
		dueScratch: make([]dueEvent, 0, 64),
		subIn:      make([][]float32, 0, 64),
		subOut:     make([][]float32, 0, 64),
	}
}

// ProcessInterleaved processes one backend callback: in and out are
// interleaved sample buffers holding frames frames of the stream's
// channel counts. A panic inside a node poisons the engine and fills
// the output with silence.
func (p *Processor) ProcessInterleaved(in, out []float32, frames int, timestamp time.Time, status node.StreamStatus) {
	defer func() {
		if r := recover(); r != nil {
			p.poisoned.Store(true)
			for i := range out {
				out[i] = 0
			}
		}
	}()

	if p.poisoned.Load() {
		for i := range out {
			out[i] = 0
		}
		return
	}

	p.pollMessages()

	numIn := p.stream.NumStreamInChannels
	numOut := p.stream.NumStreamOutChannels

	if p.sched == nil {
		for i := range out {
			out[i] = 0
		}
		p.publishClock(timestamp)
		return
	}
	sched := p.sched.schedule
	sched.SetForceClear(p.forceClear)
	maxBlock := sched.MaxBlockFrames()

	processed := 0
	for processed < frames {
		block := frames - processed
		if block > maxBlock {
			block = maxBlock
		}
		block = p.transport.blockFrames(p.clockSamples, block)
		if t, ok := p.events.earliestPreProcBound(p.clockSamples, block, p.nodes); ok {
			block = int(t - p.clockSamples)
		}
		p.events.prepare(p.clockSamples, block, p.nodes)

		pre := sched.PreProcessNodes()
		for i := range pre {
			pn := p.nodes[pre[i].ID]
			if pn == nil || pn.processor == nil {
				continue
			}
			p.processNode(pn, node.ProcBuffers{}, 0, 0, 0, 0, block, status)
		}

		if numIn > 0 {
			sched.PrepareGraphInputs(in[processed*numIn:(processed+block)*numIn], numIn, block)
		} else {
			sched.PrepareGraphInputs(nil, 0, block)
		}

		sched.Process(block, func(sn *graph.ScheduledNode, buffers node.ProcBuffers, inSil node.SilenceMask, inConst node.ConstantMask) node.ProcessStatus {
			pn := p.nodes[sn.ID]
			if pn == nil || pn.processor == nil {
				// graph-out and stale nodes pass audio through
				return node.Bypass()
			}
			return p.processNode(pn, buffers, inSil, inConst, sn.ConnectedIn, sn.ConnectedOut, block, status)
		})

		sched.ReadGraphOutputs(out[processed*numOut:(processed+block)*numOut], numOut, block)

		p.clockSamples += clock.InstantSamples(block)
		if p.transport.advance(p.clockSamples) {
			p.events.resolveMusical(&p.transport)
		}
		// immediate events are consumed by the block that saw them; a
		// split callback must not replay them in later blocks
		p.events.clearImmediate()
		processed += block
	}

	if p.hardClip {
		for i, v := range out {
			if v > 1 {
				out[i] = 1
			} else if v < -1 {
				out[i] = -1
			}
		}
	}

	p.publishClock(timestamp)
	p.retryPending()
}

// processNode runs one node for a block, splitting it into sub-chunks
// at scheduled event boundaries so every event lands exactly on its
// sample.
func (p *Processor) processNode(pn *procNode, buffers node.ProcBuffers, inSil node.SilenceMask, inConst node.ConstantMask, connIn, connOut node.ConnectedMask, blockFrames int, status node.StreamStatus) node.ProcessStatus {
	evs := p.events.collectImmediate(pn, p.evScratch[:0])
	blockStart := p.clockSamples

	info := node.ProcInfo{
		InSilenceMask:    inSil,
		InConstantMask:   inConst,
		ConnectedInputs:  connIn,
		ConnectedOutputs: connOut,
		Status:           status,
		SampleRate:       p.stream.SampleRate,
		SampleRateRecip:  p.stream.SampleRateRecip,
	}

	if pn.events.numThisBlock == 0 {
		info.Frames = blockFrames
		info.ClockSamples = blockStart
		info.DurSinceStreamStart = clock.DurationSeconds(blockStart.ToSeconds(p.stream.SampleRate, p.stream.SampleRateRecip))
		info.Transport = p.transport.info(blockStart)
		st := pn.processor.Process(buffers, &info, evs)
		p.evScratch = evs[:0]
		return st
	}

	due := p.events.collectDue(pn, p.dueScratch[:0])
	var acc statusAccum
	numIns := len(buffers.Inputs)
	numOuts := len(buffers.Outputs)

	offset := 0
	di := 0
	for {
		for di < len(due) && int(due[di].time-blockStart) <= offset {
			evs = append(evs, due[di].data)
			di++
		}
		end := blockFrames
		if di < len(due) {
			if t := int(due[di].time - blockStart); t < end {
				end = t
			}
		}

		p.subIn = p.subIn[:0]
		for _, b := range buffers.Inputs {
			p.subIn = append(p.subIn, b[offset:end])
		}
		p.subOut = p.subOut[:0]
		for _, b := range buffers.Outputs {
			p.subOut = append(p.subOut, b[offset:end])
		}

		at := blockStart + clock.InstantSamples(offset)
		info.Frames = end - offset
		info.ClockSamples = at
		info.DurSinceStreamStart = clock.DurationSeconds(at.ToSeconds(p.stream.SampleRate, p.stream.SampleRateRecip))
		info.Transport = p.transport.info(at)

		st := pn.processor.Process(node.ProcBuffers{Inputs: p.subIn, Outputs: p.subOut}, &info, evs)
		acc.merge(st, inSil, numIns, numOuts)

		evs = evs[:0]
		offset = end
		if offset >= blockFrames {
			break
		}
	}
	p.evScratch = evs[:0]
	p.dueScratch = due[:0]
	return acc.result()
}

// statusAccum reconciles differing process statuses across the
// sub-chunks of one block. A channel counts as silent only when every
// sub-chunk left it silent.
type statusAccum struct {
	n       int
	uniform bool
	status  node.ProcessStatus
	silence node.SilenceMask
}

func (a *statusAccum) merge(st node.ProcessStatus, inSil node.SilenceMask, numIns, numOuts int) {
	eff := effectiveSilence(st, inSil, numIns, numOuts)
	if a.n == 0 {
		a.status = st
		a.uniform = true
		a.silence = eff
	} else {
		if st != a.status {
			a.uniform = false
		}
		a.silence = a.silence.And(eff)
	}
	a.n++
}

func (a *statusAccum) result() node.ProcessStatus {
	if a.uniform {
		return a.status
	}
	return node.OutputsModifiedSilence(a.silence)
}

func effectiveSilence(st node.ProcessStatus, inSil node.SilenceMask, numIns, numOuts int) node.SilenceMask {
	switch {
	case st.IsClearAllOutputs():
		return node.SilenceMaskAll(numOuts)
	case st.IsBypass():
		var m node.SilenceMask
		for o := 0; o < numOuts; o++ {
			m = m.WithChannel(o, o >= numIns || inSil.IsChannelSilent(o))
		}
		return m
	default:
		if m, ok := st.SilenceHint(); ok {
			return m
		}
		return 0
	}
}

func (p *Processor) pollMessages() {
	for {
		select {
		case msg := <-p.fromCtx:
			p.handleMessage(msg)
		default:
			return
		}
	}
}

func (p *Processor) handleMessage(msg toProcMsg) {
	switch msg.kind {
	case msgEventGroup:
		for _, ev := range msg.group.Events() {
			pn := p.nodes[ev.Node]
			if pn == nil {
				continue
			}
			if ev.Time.IsImmediate() {
				p.events.pushImmediate(pn, ev.Data)
			} else {
				p.events.pushScheduled(pn, ev.Data, ev.Time, &p.transport)
			}
		}
		msg.group.Reset()
		p.send(fromProcMsg{kind: msgReturnEventGroup, group: msg.group})
	case msgNewSchedule:
		p.installSchedule(msg.schedule)
	case msgHardClipOutputs:
		p.hardClip = msg.hardClip
	case msgSetTransport:
		if p.transport.setState(msg.transport, p.clockSamples) {
			p.events.resolveMusical(&p.transport)
		}
		p.send(fromProcMsg{kind: msgReturnTransport, transport: msg.transport})
	case msgClearScheduledEvents:
		p.events.clearScheduled(msg.clear, p.nodes)
		p.send(fromProcMsg{kind: msgReturnClear, clear: msg.clear})
	}
}

// installSchedule swaps in a new schedule, inserts processors for new
// nodes, and detaches removed nodes. The old schedule goes back to the
// control thread carrying the removed processors.
func (p *Processor) installSchedule(sd *scheduleData) {
	for _, np := range sd.newProcessors {
		p.nodes[np.id] = &procNode{
			id:           np.id,
			processor:    np.p,
			info:         np.info,
			isPreProcess: np.info.NumInputs == 0 && np.info.NumOutputs == 0,
		}
	}
	var removed []node.Processor
	for _, id := range sd.nodesToRemove {
		pn := p.nodes[id]
		if pn == nil {
			continue
		}
		p.events.removeNode(pn)
		removed = append(removed, pn.processor)
		delete(p.nodes, id)
	}
	old := p.sched
	p.sched = sd
	if old != nil {
		old.removedProcessors = removed
		p.send(fromProcMsg{kind: msgReturnSchedule, schedule: old})
	}
}

// newStream rebases the processor onto a restarted stream. Called on
// the control thread while no callbacks can run.
func (p *Processor) newStream(info node.StreamInfo) {
	old := p.stream
	if old.SampleRate != 0 && old.SampleRate != info.SampleRate {
		sec := p.clockSamples.ToSeconds(old.SampleRate, old.SampleRateRecip)
		p.clockSamples = sec.ToSamples(info.SampleRate)
		p.events.rebase(info.SampleRate)
		p.transport.rebase(info.SampleRate)
		p.events.resolveMusical(&p.transport)
	}
	p.stream = info
	for _, pn := range p.nodes {
		if sc, ok := pn.processor.(node.StreamChanger); ok {
			sc.NewStream(&info)
		}
	}
}

// streamStopped notifies node processors that the stream stopped.
// Called on the control thread while no callbacks can run.
func (p *Processor) streamStopped() {
	p.events.clearImmediate()
	for _, pn := range p.nodes {
		if s, ok := pn.processor.(node.Stopper); ok {
			s.StreamStopped()
		}
	}
}

func (p *Processor) publishClock(timestamp time.Time) {
	ph, hasPh, speed, playing := p.transport.clockFields(p.clockSamples)
	p.shared.publish(clockSnapshot{
		clockSamples:     p.clockSamples,
		playhead:         ph,
		hasPlayhead:      hasPh,
		speedMultiplier:  speed,
		transportPlaying: playing,
		timestamp:        timestamp,
	})
}

func (p *Processor) send(msg fromProcMsg) {
	select {
	case p.toCtx <- msg:
	default:
		p.pending = append(p.pending, msg)
	}
}

func (p *Processor) retryPending() {
	for len(p.pending) > 0 {
		select {
		case p.toCtx <- p.pending[0]:
			copy(p.pending, p.pending[1:])
			p.pending[len(p.pending)-1] = fromProcMsg{}
			p.pending = p.pending[:len(p.pending)-1]
		default:
			return
		}
	}
}
