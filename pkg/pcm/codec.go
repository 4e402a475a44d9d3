// Package pcm converts between float audio samples and the PCM16 payloads
// exchanged with the live agent.
//
// Capture audio goes out as 16 kHz mono little-endian PCM16, base64 encoded.
// Agent audio comes back as 24 kHz mono PCM16 and is decoded to float32 in [-1, 1).
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// InputSampleRate is the capture rate the agent expects.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of synthesized agent speech.
	OutputSampleRate = 24000

	// FrameSize is the number of samples per capture frame (~256ms at 16 kHz).
	FrameSize = 4096

	// CaptureMimeType labels outbound frames.
	CaptureMimeType = "audio/pcm;rate=16000"

	// SampleWidth is the size of one PCM16 sample in bytes.
	SampleWidth = 2

	scale = 32768
)

// ErrMalformedPayload is returned for payloads the codec cannot decode.
// Callers drop the frame; it never ends a session.
var ErrMalformedPayload = errors.New("pcm: malformed payload")

// Buffer is decoded float audio. Samples are interleaved when Channels > 1.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Quantize scales a float sample to int16, clamping out-of-range input and
// truncating toward zero.
func Quantize(s float32) int16 {
	v := float64(s) * scale
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// EncodePCM16 packs samples as little-endian PCM16.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*SampleWidth)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*SampleWidth:], uint16(Quantize(s)))
	}
	return out
}

// EncodeCapture converts a capture frame into the transport's textual payload.
func EncodeCapture(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// DecodePayload reverses the transport's textual encoding.
func DecodePayload(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return data, nil
}

// DecodePlayback converts little-endian PCM16 into float samples.
func DecodePlayback(data []byte, sampleRate, channels int) (Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return Buffer{}, fmt.Errorf("%w: rate %d channels %d", ErrMalformedPayload, sampleRate, channels)
	}
	if len(data)%(SampleWidth*channels) != 0 {
		return Buffer{}, fmt.Errorf("%w: %d bytes is not a whole number of %d-channel samples",
			ErrMalformedPayload, len(data), channels)
	}

	samples := make([]float32, len(data)/SampleWidth)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*SampleWidth:]))
		samples[i] = float32(v) / scale
	}
	return Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// DecodePlaybackPayload decodes a textual payload straight to a Buffer.
func DecodePlaybackPayload(payload string, sampleRate, channels int) (Buffer, error) {
	data, err := DecodePayload(payload)
	if err != nil {
		return Buffer{}, err
	}
	return DecodePlayback(data, sampleRate, channels)
}
