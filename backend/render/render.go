// Package render is an offline backend: instead of a realtime device
// it pulls the engine's processor from the caller's goroutine and
// writes the result to a WAV or MP3 file. Useful for bouncing a graph
// to disk and for tests.
package render

import (
	"errors"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/viert/lame"

	"github.com/dudk/chord/clock"
	"github.com/dudk/chord/engine"
	"github.com/dudk/chord/node"
)

// ErrNotStarted is returned when rendering before StartStream.
var ErrNotStarted = errors.New("render: stream not started")

const (
	defaultSampleRate  = 44100
	defaultBlockFrames = 512
)

// Backend implements engine.Backend by pulling the processor on
// demand.
type Backend struct {
	sampleRate  uint32
	blockFrames int

	numIn, numOut int
	proc          *engine.Processor
	started       bool
	lastProcess   time.Time

	in, out []float32
}

// Option configures a Backend.
type Option func(*Backend)

// SampleRate sets the render sample rate.
func SampleRate(rate uint32) Option {
	return func(b *Backend) { b.sampleRate = rate }
}

// BlockFrames sets the number of frames pulled per processor call.
func BlockFrames(frames int) Option {
	return func(b *Backend) { b.blockFrames = frames }
}

// New returns an offline backend.
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
	b.numIn = cfg.NumInChannels
	b.numOut = cfg.NumOutChannels
	b.in = make([]float32, b.blockFrames*b.numIn)
	b.out = make([]float32, b.blockFrames*b.numOut)
	b.started = true
	return node.NewStreamInfo(b.sampleRate, b.blockFrames, b.numIn, b.numOut, 0), nil
}

// SetProcessor implements engine.Backend.
func (b *Backend) SetProcessor(p *engine.Processor) { b.proc = p }

// PollStatus implements engine.Backend. An offline stream never dies.
func (b *Backend) PollStatus() error { return nil }

// DelayFromLastProcess implements engine.Backend.
func (b *Backend) DelayFromLastProcess() (clock.DurationSeconds, bool) {
	if b.lastProcess.IsZero() {
		return 0, false
	}
	return clock.DurationSeconds(time.Since(b.lastProcess).Seconds()), true
}

// StopStream implements engine.Backend.
func (b *Backend) StopStream() error {
	b.started = false
	return nil
}

// Pull renders frames of audio, invoking fn with each interleaved
// chunk. fn may be nil to discard the audio.
func (b *Backend) Pull(frames int, fn func(chunk []float32) error) error {
	if !b.started || b.proc == nil {
		return ErrNotStarted
	}
	for frames > 0 {
		n := frames
		if n > b.blockFrames {
			n = b.blockFrames
		}
		out := b.out[:n*b.numOut]
		b.proc.ProcessInterleaved(b.in[:n*b.numIn], out, n, time.Now(), 0)
		b.lastProcess = time.Now()
		if fn != nil {
			if err := fn(out); err != nil {
				return err
			}
		}
		frames -= n
	}
	return nil
}

// WAV renders dur of audio as 16-bit PCM WAV.
func (b *Backend) WAV(w io.WriteSeeker, dur time.Duration) error {
	if !b.started {
		return ErrNotStarted
	}
	enc := wav.NewEncoder(w, int(b.sampleRate), 16, b.numOut, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: b.numOut, SampleRate: int(b.sampleRate)},
		SourceBitDepth: 16,
	}
	err := b.Pull(b.durFrames(dur), func(chunk []float32) error {
		buf.Data = intSamples(buf.Data, chunk)
		return enc.Write(buf)
	})
	if err != nil {
		return err
	}
	return enc.Close()
}

// MP3 renders dur of audio as MP3 at the given bitrate.
func (b *Backend) MP3(w io.Writer, dur time.Duration, bitRate int) error {
	if !b.started {
		return ErrNotStarted
	}
	wr := lame.NewWriter(w)
	wr.Encoder.SetBitrate(bitRate)
	wr.Encoder.SetNumChannels(b.numOut)
	wr.Encoder.SetInSamplerate(int(b.sampleRate))
	wr.Encoder.InitParams()

	var pcm []byte
	err := b.Pull(b.durFrames(dur), func(chunk []float32) error {
		pcm = pcmBytes(pcm, chunk)
		_, err := wr.Write(pcm)
		return err
	})
	if err != nil {
		return err
	}
	return wr.Close()
}

func (b *Backend) durFrames(dur time.Duration) int {
	return int(clock.DurationSeconds(dur.Seconds()).ToSamples(b.sampleRate))
}

// intSamples converts float samples in [-1, 1] to 16-bit ints, reusing
// dst.
func intSamples(dst []int, chunk []float32) []int {
	dst = dst[:0]
	for _, v := range chunk {
		dst = append(dst, int(clampUnit(v)*32767))
	}
	return dst
}

// pcmBytes converts float samples to little-endian 16-bit PCM, reusing
// dst.
func pcmBytes(dst []byte, chunk []float32) []byte {
	dst = dst[:0]
	for _, v := range chunk {
		s := int16(clampUnit(v) * 32767)
		dst = append(dst, byte(s), byte(s>>8))
	}
	return dst
}

func clampUnit(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
