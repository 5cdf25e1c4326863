package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecondsSamplesRoundTrip(t *testing.T) {
	rates := []uint32{44100, 48000}
	samples := []InstantSamples{0, 1, 100, 44100, 48000, 123456789, -1, -100, -48000, -123456789}
	for _, rate := range rates {
		recip := 1.0 / float64(rate)
		for _, s := range samples {
			sec := s.ToSeconds(rate, recip)
			assert.Equal(t, s, sec.ToSamples(rate), "rate %d samples %d", rate, s)
		}
	}
}

func TestSecondsToSamplesRounding(t *testing.T) {
	tests := []struct {
		sec      InstantSeconds
		rate     uint32
		expected InstantSamples
	}{
		{0, 48000, 0},
		{1, 48000, 48000},
		{1.5, 48000, 72000},
		{2.25, 44100, 99225},
		{-1, 48000, -48000},
		{-1.5, 48000, -72000},
		// rounding of the fractional part
		{0.0000104, 48000, 0},  // 0.4992 samples rounds down
		{0.0000105, 48000, 1},  // 0.504 samples rounds up
		{-0.0000105, 48000, -1}, // -0.504 samples rounds to -1
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, test.sec.ToSamples(test.rate), "%v at %d", test.sec, test.rate)
	}
}

func TestWholeSecondsAndFract(t *testing.T) {
	tests := []struct {
		sec   float64
		whole int64
		fract float64
	}{
		{0, 0, 0},
		{1.25, 1, 0.25},
		{-0.25, -1, 0.75},
		{-2, -2, 0},
	}
	for _, test := range tests {
		whole, fract := wholeSecondsAndFract(test.sec)
		assert.Equal(t, test.whole, whole)
		assert.InDelta(t, test.fract, fract, 1e-12)
		assert.GreaterOrEqual(t, fract, 0.0)
		assert.Less(t, fract, 1.0)
	}
}

func TestStaticTransportConversions(t *testing.T) {
	transport := NewStaticTransport(120) // 2 beats per second
	const rate = 48000
	const recip = 1.0 / float64(rate)

	start := InstantSamples(0)
	assert.Equal(t, InstantSamples(24000), transport.MusicalToSamples(1, start, 1.0, rate))
	assert.Equal(t, InstantSamples(48000), transport.MusicalToSamples(1, start, 0.5, rate))
	assert.InDelta(t, 2.0, float64(transport.SamplesToMusical(48000, start, 1.0, rate, recip)), 1e-9)

	// transport start positions beat zero so the playhead is correct now
	now := InstantSamples(96000)
	tstart := transport.TransportStart(now, 4, 1.0, rate)
	assert.Equal(t, InstantSamples(0), tstart)
	assert.InDelta(t, 4.0, float64(transport.SamplesToMusical(now, tstart, 1.0, rate, recip)), 1e-9)
}

func TestDeltaSecondsFrom(t *testing.T) {
	transport := NewStaticTransport(60)
	got := transport.DeltaSecondsFrom(10, 2.5, 2.0)
	assert.InDelta(t, 15.0, float64(got), 1e-12)
}
