package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/chord/backend/render"
	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/engine"
	"github.com/dudk/chord/event"
	"github.com/dudk/chord/node"
	"github.com/dudk/chord/nodes"
)

// procCall records one Process invocation.
type procCall struct {
	frames int
	clock  clock.InstantSamples
	events []node.Event
}

type recorder struct {
	calls []procCall
}

func (r *recorder) totalEvents() int {
	n := 0
	for i := range r.calls {
		n += len(r.calls[i].events)
	}
	return n
}

// captureNode records every Process call it receives.
type captureNode struct {
	rec *recorder
}

func (c *captureNode) Info() node.Info {
	return node.Info{NumInputs: 1, NumOutputs: 1, UsesEvents: true}
}

func (c *captureNode) Processor(*node.StreamInfo) node.Processor {
	return &captureProcessor{rec: c.rec}
}

type captureProcessor struct {
	rec *recorder
}

func (p *captureProcessor) Process(_ node.ProcBuffers, info *node.ProcInfo, events []node.Event) node.ProcessStatus {
	p.rec.calls = append(p.rec.calls, procCall{
		frames: info.Frames,
		clock:  info.ClockSamples,
		events: append([]node.Event(nil), events...),
	})
	return node.Bypass()
}

// startCapture wires a capture node straight to the stream output and
// starts an offline stream around it.
func startCapture(t *testing.T, b *render.Backend) (*engine.Engine, node.ID, *recorder) {
	t.Helper()
	e := engine.New()
	rec := &recorder{}
	g := e.Graph()
	id := g.AddNode(&captureNode{rec: rec})
	_, err := g.Connect(id, 0, g.GraphOut(), 0, true)
	require.NoError(t, err)
	require.NoError(t, e.StartStream(b))
	return e, id, rec
}

func TestEngineLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := engine.New()
	g := e.Graph()
	sine := g.AddNode(&nodes.Sine{Freq: 440})
	gain := g.AddNode(&nodes.Gain{Gain: 0.5})
	_, err := g.Connect(sine, 0, gain, 0, true)
	require.NoError(t, err)
	_, err = g.Connect(sine, 0, gain, 1, true)
	require.NoError(t, err)
	_, err = g.Connect(gain, 0, g.GraphOut(), 0, true)
	require.NoError(t, err)
	_, err = g.Connect(gain, 1, g.GraphOut(), 1, true)
	require.NoError(t, err)

	b := render.New(render.SampleRate(48000), render.BlockFrames(128))
	require.NoError(t, e.StartStream(b))
	assert.Equal(t, engine.ErrAlreadyStarted, e.StartStream(b))

	var energy float64
	require.NoError(t, b.Pull(4096, func(chunk []float32) error {
		for _, v := range chunk {
			energy += float64(v) * float64(v)
		}
		return nil
	}))
	assert.Greater(t, energy, 0.0)

	require.NoError(t, e.Update())
	assert.Equal(t, clock.InstantSamples(4096), e.AudioClock().Samples)

	require.NoError(t, e.StopStream())
	assert.Equal(t, engine.ErrNotStarted, e.StopStream())
	require.NoError(t, e.Close())
}

func TestScheduledEventSplitsBlock(t *testing.T) {
	b := render.New(render.SampleRate(48000), render.BlockFrames(128))
	e, id, rec := startCapture(t, b)
	defer e.Close()

	e.ScheduleEvent(id, event.AtSamples(100), node.ParamEvent(7, node.F64Value(1)))
	require.NoError(t, e.Update())
	require.NoError(t, b.Pull(128, nil))

	// the block splits at the event: [0, 100) and [100, 128)
	require.Len(t, rec.calls, 2)
	assert.Equal(t, procCall{frames: 100, clock: 0, events: []node.Event{}}, normalized(rec.calls[0]))
	assert.Equal(t, 28, rec.calls[1].frames)
	assert.Equal(t, clock.InstantSamples(100), rec.calls[1].clock)
	require.Len(t, rec.calls[1].events, 1)
	assert.Equal(t, uint32(7), rec.calls[1].events[0].ParamID)
}

func normalized(c procCall) procCall {
	if c.events == nil {
		c.events = []node.Event{}
	}
	return c
}

func TestImmediateEventAtBlockStart(t *testing.T) {
	b := render.New(render.SampleRate(48000), render.BlockFrames(64))
	e, id, rec := startCapture(t, b)
	defer e.Close()

	e.QueueEvent(id, node.ParamEvent(1, node.BoolValue(true)))
	e.QueueEvent(id, node.ParamEvent(2, node.BoolValue(false)))
	require.NoError(t, e.Update())
	require.NoError(t, b.Pull(64, nil))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, 64, rec.calls[0].frames)
	require.Len(t, rec.calls[0].events, 2)
	assert.Equal(t, uint32(1), rec.calls[0].events[0].ParamID)
	assert.Equal(t, uint32(2), rec.calls[0].events[1].ParamID)
}

// controlNode has no audio ports; it runs before the main schedule and
// its scheduled events land on block boundaries.
type controlNode struct {
	rec *recorder
}

func (c *controlNode) Info() node.Info {
	return node.Info{UsesEvents: true}
}

func (c *controlNode) Processor(*node.StreamInfo) node.Processor {
	return &captureProcessor{rec: c.rec}
}

func TestImmediateEventDeliveredOnceWhenBlockSplits(t *testing.T) {
	b := render.New(render.SampleRate(48000), render.BlockFrames(128))
	e, id, rec := startCapture(t, b)
	defer e.Close()

	ctlRec := &recorder{}
	ctl := e.Graph().AddNode(&controlNode{rec: ctlRec})

	// the control node's event at sample 64 splits the callback into
	// [0, 64) and [64, 128); the immediate event belongs to the first
	// block only
	e.ScheduleEvent(ctl, event.AtSamples(64), node.ParamEvent(9, node.BoolValue(true)))
	e.QueueEvent(id, node.ParamEvent(8, node.BoolValue(true)))
	require.NoError(t, e.Update())
	require.NoError(t, b.Pull(128, nil))

	require.Len(t, rec.calls, 2)
	assert.Equal(t, 64, rec.calls[0].frames)
	assert.Equal(t, clock.InstantSamples(0), rec.calls[0].clock)
	assert.Equal(t, 64, rec.calls[1].frames)
	assert.Equal(t, clock.InstantSamples(64), rec.calls[1].clock)
	require.Equal(t, 1, rec.totalEvents())
	require.Len(t, rec.calls[0].events, 1)
	assert.Equal(t, uint32(8), rec.calls[0].events[0].ParamID)

	require.Equal(t, 1, ctlRec.totalEvents())
	found := false
	for _, c := range ctlRec.calls {
		if len(c.events) > 0 {
			assert.Equal(t, clock.InstantSamples(64), c.clock)
			found = true
		}
	}
	assert.True(t, found)
}

func TestEventForNodeAddedSameUpdate(t *testing.T) {
	b := render.New(render.SampleRate(48000), render.BlockFrames(128))
	e, _, _ := startCapture(t, b)
	defer e.Close()
	require.NoError(t, b.Pull(128, nil))

	// add a node and queue an event for it in the same Update: the
	// schedule swap must reach the audio thread before the event group
	rec := &recorder{}
	g := e.Graph()
	id := g.AddNode(&captureNode{rec: rec})
	_, err := g.Connect(id, 0, g.GraphOut(), 1, true)
	require.NoError(t, err)
	e.QueueEvent(id, node.ParamEvent(6, node.BoolValue(true)))
	require.NoError(t, e.Update())
	require.NoError(t, b.Pull(128, nil))

	require.Equal(t, 1, rec.totalEvents())
	require.Len(t, rec.calls[0].events, 1)
	assert.Equal(t, uint32(6), rec.calls[0].events[0].ParamID)
}

func TestMusicalEventNeedsPlayingTransport(t *testing.T) {
	b := render.New(render.SampleRate(48000), render.BlockFrames(128))
	e, id, rec := startCapture(t, b)
	defer e.Close()

	e.ScheduleEvent(id, event.AtMusical(0.5), node.ParamEvent(3, node.BoolValue(true)))
	require.NoError(t, e.Update())
	require.NoError(t, b.Pull(128, nil))
	// without a playing transport the event never resolves
	assert.Equal(t, 0, rec.totalEvents())

	tr := clock.NewStaticTransport(120)
	ts := clock.DefaultTransportState()
	ts.Transport = &tr
	ts.Playing = true
	e.SyncTransport(ts)
	require.NoError(t, e.Update())
	require.NoError(t, b.Pull(48000, nil))

	// beat 0.5 at 120bpm is 0.25s past transport start (clock 128)
	assert.Equal(t, 1, rec.totalEvents())
	found := false
	for _, c := range rec.calls {
		if len(c.events) > 0 {
			assert.Equal(t, clock.InstantSamples(128+12000), c.clock)
			found = true
		}
	}
	assert.True(t, found)
}

func TestRemoveNodeDropsPendingEvents(t *testing.T) {
	b := render.New(render.SampleRate(48000), render.BlockFrames(128))
	e, id, rec := startCapture(t, b)
	defer e.Close()

	e.ScheduleEvent(id, event.AtSamples(1000), node.ParamEvent(4, node.BoolValue(true)))
	require.NoError(t, e.Update())
	require.NoError(t, b.Pull(128, nil))

	require.NoError(t, e.Graph().RemoveNode(id))
	require.NoError(t, e.Update())
	require.NoError(t, b.Pull(4096, nil))

	assert.Equal(t, 0, rec.totalEvents())
	// only the first pull reached the node
	for _, c := range rec.calls {
		assert.Less(t, int(c.clock), 128)
	}
}

type panicNode struct{}

func (panicNode) Info() node.Info {
	return node.Info{NumInputs: 1, NumOutputs: 1}
}

func (panicNode) Processor(*node.StreamInfo) node.Processor { return panicProcessor{} }

type panicProcessor struct{}

func (panicProcessor) Process(node.ProcBuffers, *node.ProcInfo, []node.Event) node.ProcessStatus {
	panic("blown fuse")
}

func TestNodePanicPoisonsEngine(t *testing.T) {
	e := engine.New()
	g := e.Graph()
	id := g.AddNode(panicNode{})
	_, err := g.Connect(id, 0, g.GraphOut(), 0, true)
	require.NoError(t, err)

	b := render.New()
	require.NoError(t, e.StartStream(b))

	// the callback swallows the panic and outputs silence
	require.NoError(t, b.Pull(512, func(chunk []float32) error {
		for _, v := range chunk {
			assert.Zero(t, v)
		}
		return nil
	}))

	assert.PanicsWithValue(t, "chord: engine poisoned: a node panicked on the audio thread", func() {
		_ = e.Update()
	})
}

func TestUpdateRetriesOnFullChannel(t *testing.T) {
	b := render.New(render.SampleRate(48000), render.BlockFrames(128))
	e := engine.New(engine.ChannelCapacity(1))
	rec := &recorder{}
	g := e.Graph()
	id := g.AddNode(&captureNode{rec: rec})
	_, err := g.Connect(id, 0, g.GraphOut(), 0, true)
	require.NoError(t, err)
	require.NoError(t, e.StartStream(b))
	defer e.Close()

	// the event group takes the only channel slot, the transport sync
	// does not fit
	e.QueueEvent(id, node.ParamEvent(5, node.BoolValue(true)))
	tr := clock.NewStaticTransport(120)
	ts := clock.DefaultTransportState()
	ts.Transport = &tr
	e.SyncTransport(ts)
	assert.ErrorIs(t, e.Update(), engine.ErrMsgChannelFull)

	// the audio thread drains the channel, the retry succeeds
	require.NoError(t, b.Pull(128, nil))
	require.NoError(t, e.Update())
	assert.Equal(t, 1, rec.totalEvents())
}
