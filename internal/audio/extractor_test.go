package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/normanking/audioface/internal/audio"
	"github.com/normanking/audioface/internal/audio/audiotest"
	"github.com/normanking/audioface/internal/bus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureExtractorLifecycle(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Sine(440, 0.5, 16000))
	ex := audio.NewFeatureExtractor(dev, nil, bus.NewEventBus(), zerolog.Nop())

	assert.False(t, ex.IsInitialized())
	assert.Equal(t, float32(0), ex.Sample().Volume)

	require.NoError(t, ex.Start(context.Background()))
	assert.True(t, ex.IsInitialized())
	assert.Equal(t, 1, dev.OpenHandles())

	require.Eventually(t, func() bool {
		return ex.Sample().Volume > 0
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, ex.IsSpeaking, 2*time.Second, 20*time.Millisecond)

	ex.Stop()
	assert.False(t, ex.IsInitialized())
	assert.False(t, ex.IsSpeaking())
	assert.Equal(t, 0, dev.OpenHandles())
	assert.Equal(t, float32(0), ex.Sample().Volume)

	ex.Stop()
	assert.Equal(t, 0, dev.OpenHandles())
}

func TestFeatureExtractorRestartBuildsFreshStream(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Silence())
	ex := audio.NewFeatureExtractor(dev, nil, nil, zerolog.Nop())

	require.NoError(t, ex.Start(context.Background()))
	ex.Stop()
	require.NoError(t, ex.Start(context.Background()))
	defer ex.Stop()

	assert.Equal(t, 2, dev.Acquisitions())
	assert.Equal(t, 1, dev.OpenHandles())
}

func TestFeatureExtractorDeviceUnavailable(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Silence())
	dev.Fail(errors.New("permission denied"))

	events := make(chan bus.Event, 1)
	eb := bus.NewEventBus()
	eb.Subscribe(bus.EventTypeCaptureError, func(e bus.Event) { events <- e })

	ex := audio.NewFeatureExtractor(dev, nil, eb, zerolog.Nop())
	err := ex.Start(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "permission denied")
	assert.False(t, ex.IsInitialized())
	assert.Equal(t, 0, dev.OpenHandles())

	select {
	case e := <-events:
		assert.Equal(t, "synthetic", e.Data["device"])
	case <-time.After(time.Second):
		t.Fatal("capture error not published")
	}
}

func TestCaptureAlreadyStarted(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Silence())
	c := audio.NewCapture(dev, 256, nil, zerolog.Nop())

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.ErrorIs(t, c.Start(context.Background()), audio.ErrAlreadyStarted)
	assert.Equal(t, 16000, c.SampleRate())
	assert.Equal(t, audio.StateListening, c.State())
}

func TestRecorderCollectsWhileRecording(t *testing.T) {
	r := audio.NewRecorder(16000, time.Second)

	r.WriteSamples([]float32{1, 2})
	r.Start()
	r.WriteSamples([]float32{0.1, 0.2, 0.3})
	assert.True(t, r.Recording())
	assert.Equal(t, 3*time.Second/16000, r.Buffered())

	got := r.Stop()
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got)
	assert.False(t, r.Recording())

	r.WriteSamples([]float32{9})
	assert.Empty(t, r.Stop())
}
