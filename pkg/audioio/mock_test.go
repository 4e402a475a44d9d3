package audioio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Backend = "alsa"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.InputSampleRate = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.OutputBuffer = 0
	assert.Error(t, bad.Validate())
}

func TestMockMicrophoneEmit(t *testing.T) {
	mic := NewMockMicrophone(DefaultConfig(), nil)

	assert.False(t, mic.Emit([]float32{0.1}), "no stream yet")

	stream, err := mic.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mic.Opens())

	var got []float32
	require.NoError(t, stream.Start(func(s []float32) { got = append(got, s...) }))
	assert.True(t, mic.Streaming())

	assert.True(t, mic.Emit([]float32{0.1, 0.2}))
	assert.Equal(t, []float32{0.1, 0.2}, got)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.False(t, mic.Streaming())
	assert.False(t, mic.Emit([]float32{0.3}))
}

func TestMockMicrophoneOpenError(t *testing.T) {
	mic := NewMockMicrophone(DefaultConfig(), nil, WithOpenError(ErrPermissionDenied))

	_, err := mic.Open(context.Background())
	require.Error(t, err)

	var devErr *DeviceError
	assert.ErrorAs(t, err, &devErr)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 1, mic.Opens())
}

func TestMockMicrophoneSineWave(t *testing.T) {
	mic := NewMockMicrophone(DefaultConfig(), nil, WithSineWave(440, 0.5, 5*time.Millisecond))

	stream, err := mic.Open(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	var mu sync.Mutex
	var peak float32
	require.NoError(t, stream.Start(func(s []float32) {
		mu.Lock()
		defer mu.Unlock()
		for _, v := range s {
			peak = max(peak, v)
		}
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return peak > 0.4
	}, time.Second, 5*time.Millisecond)
}

func TestNewMockBackends(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	mic, err := NewMicrophone(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MockMicrophone{}, mic)

	spk, err := NewSpeaker(cfg, nil)
	require.NoError(t, err)
	defer spk.Close()

	done := make(chan struct{})
	_, err = spk.Play(make([]float32, 240), spk.Now(), func() { close(done) })
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mock speaker never finished the buffer")
	}

	assert.Contains(t, AvailableBackends(), BackendMock)
}
