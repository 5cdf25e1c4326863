// Package portaudio drives the engine from a portaudio output stream.
package portaudio

import (
	"errors"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/engine"
	"github.com/dudk/chord/node"
)

const (
	defaultSampleRate  = 44100
	defaultBlockFrames = 512
)

// Backend implements engine.Backend on top of the default portaudio
// output device. It pulls the processor from its own goroutine and
// feeds the stream with blocking writes, the simplest way portaudio
// offers to keep a steady output going.
type Backend struct {
	sampleRate  uint32
	blockFrames int
	numOut      int

	stream *portaudio.Stream
	buf    []float32

	mu          sync.Mutex
	proc        *engine.Processor
	lastProcess time.Time
	streamErr   error

	done chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Backend.
type Option func(*Backend)

// SampleRate sets the preferred sample rate.
func SampleRate(rate uint32) Option {
	return func(b *Backend) { b.sampleRate = rate }
}

// BlockFrames sets the stream buffer size in frames.
func BlockFrames(frames int) Option {
	return func(b *Backend) { b.blockFrames = frames }
}

// New returns a portaudio backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		sampleRate:  defaultSampleRate,
		blockFrames: defaultBlockFrames,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// StartStream implements engine.Backend.
func (b *Backend) StartStream(cfg engine.StreamConfig) (node.StreamInfo, error) {
	if cfg.SampleRate != 0 {
		b.sampleRate = cfg.SampleRate
	}
	if cfg.MaxBlockFrames != 0 {
		b.blockFrames = cfg.MaxBlockFrames
	}
	b.numOut = cfg.NumOutChannels

	if err := portaudio.Initialize(); err != nil {
		return node.StreamInfo{}, err
	}
	b.buf = make([]float32, b.blockFrames*b.numOut)
	stream, err := portaudio.OpenDefaultStream(0, b.numOut, float64(b.sampleRate), b.blockFrames, &b.buf)
	if err != nil {
		portaudio.Terminate()
		return node.StreamInfo{}, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return node.StreamInfo{}, err
	}
	b.stream = stream
	b.done = make(chan struct{})
	info := node.NewStreamInfo(b.sampleRate, b.blockFrames, 0, b.numOut, 0)
	info.InputToOutputLatency = clock.DurationSeconds(stream.Info().OutputLatency.Seconds())
	return info, nil
}

// SetProcessor implements engine.Backend. The write loop starts here:
// before the processor arrives there is nothing to pull.
func (b *Backend) SetProcessor(p *engine.Processor) {
	b.mu.Lock()
	b.proc = p
	b.mu.Unlock()
	b.wg.Add(1)
	go b.writeLoop()
}

func (b *Backend) writeLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		default:
		}
		b.mu.Lock()
		proc := b.proc
		b.lastProcess = time.Now()
		b.mu.Unlock()
		proc.ProcessInterleaved(nil, b.buf, b.blockFrames, time.Now(), 0)
		if err := b.stream.Write(); err != nil {
			// Output underflow is routine when the system stalls; give the
			// stream a chance to recover. Anything else kills the loop.
			if errors.Is(err, portaudio.OutputUnderflowed) {
				continue
			}
			b.mu.Lock()
			b.streamErr = err
			b.mu.Unlock()
			return
		}
	}
}

// PollStatus implements engine.Backend.
func (b *Backend) PollStatus() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streamErr
}

// DelayFromLastProcess implements engine.Backend.
func (b *Backend) DelayFromLastProcess() (clock.DurationSeconds, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastProcess.IsZero() {
		return 0, false
	}
	return clock.DurationSeconds(time.Since(b.lastProcess).Seconds()), true
}

// StopStream implements engine.Backend.
func (b *Backend) StopStream() error {
	if b.done != nil {
		close(b.done)
		b.wg.Wait()
		b.done = nil
	}
	var err error
	if b.stream != nil {
		err = b.stream.Stop()
		if cerr := b.stream.Close(); err == nil {
			err = cerr
		}
		b.stream = nil
	}
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}
