package render_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/chord/backend/render"
	"github.com/dudk/chord/engine"
	"github.com/dudk/chord/nodes"
)

func startSineEngine(t *testing.T, b *render.Backend) *engine.Engine {
	t.Helper()
	e := engine.New()
	g := e.Graph()
	sine := g.AddNode(&nodes.Sine{Freq: 440, Amp: 0.5})
	_, err := g.Connect(sine, 0, g.GraphOut(), 0, true)
	require.NoError(t, err)
	_, err = g.Connect(sine, 0, g.GraphOut(), 1, true)
	require.NoError(t, err)
	require.NoError(t, e.StartStream(b))
	return e
}

func TestPullRequiresStream(t *testing.T) {
	b := render.New()
	assert.Equal(t, render.ErrNotStarted, b.Pull(128, nil))
}

func TestPullChunks(t *testing.T) {
	b := render.New(render.SampleRate(48000), render.BlockFrames(512))
	e := startSineEngine(t, b)
	defer e.Close()

	var frames int
	require.NoError(t, b.Pull(1300, func(chunk []float32) error {
		frames += len(chunk) / 2
		return nil
	}))
	assert.Equal(t, 1300, frames)

	delay, ok := b.DelayFromLastProcess()
	assert.True(t, ok)
	assert.GreaterOrEqual(t, float64(delay), 0.0)
}

func TestWAV(t *testing.T) {
	b := render.New(render.SampleRate(44100))
	e := startSineEngine(t, b)
	defer e.Close()

	path := filepath.Join(t.TempDir(), "sine.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, b.WAV(f, 500*time.Millisecond))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 44100, buf.Format.SampleRate)
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Equal(t, 22050*2, len(buf.Data))

	peak := 0
	for _, v := range buf.Data {
		if v > peak {
			peak = v
		}
	}
	// 0.5 amplitude in 16-bit terms, give or take rounding
	assert.InDelta(t, 16384, peak, 100)
}
