package pcm

import (
	"encoding/base64"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// One quantization step, the most a round trip may lose.
const step = 1.0 / scale

func roundTrip(t require.TestingT, in []float32) []float32 {
	data, err := DecodePayload(EncodeCapture(in))
	require.NoError(t, err)
	buf, err := DecodePlayback(data, InputSampleRate, 1)
	require.NoError(t, err)
	return buf.Samples
}

func assertWithinStep(t *testing.T, in, out []float32) {
	t.Helper()
	require.Len(t, out, len(in))
	for i := range in {
		want := float64(in[i])
		if want >= 1 {
			want = float64(math.MaxInt16) / scale
		}
		if diff := math.Abs(want - float64(out[i])); diff > step {
			t.Fatalf("sample %d: in %f out %f (diff %g)", i, in[i], out[i], diff)
		}
	}
}

func TestRoundTripSilence(t *testing.T) {
	in := make([]float32, FrameSize)
	out := roundTrip(t, in)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d: expected silence, got %f", i, s)
		}
	}
}

func TestRoundTripFullScaleSine(t *testing.T) {
	in := make([]float32, FrameSize)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / InputSampleRate))
	}
	assertWithinStep(t, in, roundTrip(t, in))
}

func TestRoundTripNoise(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.SliceOfN(rapid.Float32Range(-1, 1), 0, 2*FrameSize).Draw(rt, "samples")
		data, err := DecodePayload(EncodeCapture(in))
		if err != nil {
			rt.Fatalf("decode payload: %v", err)
		}
		buf, err := DecodePlayback(data, InputSampleRate, 1)
		if err != nil {
			rt.Fatalf("decode playback: %v", err)
		}
		if len(buf.Samples) != len(in) {
			rt.Fatalf("length %d, want %d", len(buf.Samples), len(in))
		}
		for i := range in {
			want := float64(in[i])
			if want >= 1 {
				want = float64(math.MaxInt16) / scale
			}
			if math.Abs(want-float64(buf.Samples[i])) > step {
				rt.Fatalf("sample %d: in %f out %f", i, in[i], buf.Samples[i])
			}
		}
	})
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{0.5, 16384},
		{-0.5, -16384},
		{1, math.MaxInt16},
		{1.5, math.MaxInt16},
		{-1, math.MinInt16},
		{-2, math.MinInt16},
		{float32(math.NaN()), 0},
		// Truncation toward zero, not rounding.
		{0.99999 / scale, 0},
		{-0.99999 / scale, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Quantize(tt.in), "Quantize(%v)", tt.in)
	}
}

func TestEncodePCM16LittleEndian(t *testing.T) {
	got := EncodePCM16([]float32{0.5, -0.5})
	assert.Equal(t, []byte{0x00, 0x40, 0x00, 0xC0}, got)
}

func TestDecodePlaybackRejectsOddLength(t *testing.T) {
	_, err := DecodePlayback([]byte{1, 2, 3}, OutputSampleRate, 1)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodePlayback([]byte{1, 2, 3, 4, 5, 6}, OutputSampleRate, 2)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodePlaybackRejectsBadFormat(t *testing.T) {
	_, err := DecodePlayback([]byte{0, 0}, 0, 1)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodePlayback([]byte{0, 0}, OutputSampleRate, 0)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodePayloadRejectsBadBase64(t *testing.T) {
	_, err := DecodePayload("not base64!!")
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestBufferDuration(t *testing.T) {
	data := make([]byte, OutputSampleRate*SampleWidth/2) // half a second of mono
	buf, err := DecodePlaybackPayload(base64.StdEncoding.EncodeToString(data), OutputSampleRate, 1)
	require.NoError(t, err)
	assert.Equal(t, OutputSampleRate/2, buf.Frames())
	assert.InDelta(t, 0.5, buf.Duration(), 1e-9)

	stereo := Buffer{Samples: make([]float32, 4800), SampleRate: OutputSampleRate, Channels: 2}
	assert.InDelta(t, 0.1, stereo.Duration(), 1e-9)
	assert.Zero(t, Buffer{}.Duration())
}
