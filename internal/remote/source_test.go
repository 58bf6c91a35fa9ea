package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/normanking/audioface/internal/audio"
	"github.com/normanking/audioface/internal/audio/audiotest"
	"github.com/normanking/audioface/internal/avatar3d"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInferrer struct {
	mu    sync.Mutex
	calls int
	wavs  [][]byte
	resp  *Response
	err   error
	block chan struct{}
}

func (f *fakeInferrer) Infer(ctx context.Context, wav []byte) (*Response, error) {
	f.mu.Lock()
	f.calls++
	f.wavs = append(f.wavs, wav)
	block, resp, err := f.block, f.resp, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp, err
}

func (f *fakeInferrer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func threeFrames() *Response {
	return &Response{FrameRate: 30, Blendshapes: []map[string]float64{
		{"jawOpen": 0.1},
		{"jawOpen": 0.2},
		{"NVIDIA_blendshape_jawOpen": 0.3},
	}}
}

func newTestSource(t *testing.T, dev audio.Device, inf Inferrer, restart time.Duration) *Source {
	t.Helper()
	cfg := DefaultSourceConfig()
	cfg.RestartDelay = restart
	src := NewSource(dev, inf, nil, cfg, nil, zerolog.Nop())
	t.Cleanup(src.Stop)
	return src
}

// waitForAudio ticks at a fixed time until the capture has delivered audio.
func waitForAudio(t *testing.T, src *Source, now time.Time) {
	t.Helper()
	require.Eventually(t, func() bool {
		return src.Tick(now).Volume > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSourceMissingCredential(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Noise(0.5))
	src := newTestSource(t, dev, nil, 100*time.Millisecond)

	err := src.Start(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Equal(t, StateIdle, src.State())
	assert.Equal(t, 0, dev.Acquisitions())
	assert.False(t, src.HasPendingTimer())
}

func TestSourceDeviceUnavailable(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Noise(0.5))
	dev.Fail(errors.New("busy"))
	src := newTestSource(t, dev, &fakeInferrer{resp: threeFrames()}, 100*time.Millisecond)

	err := src.Start(context.Background(), time.Now())
	assert.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	assert.Equal(t, StateIdle, src.State())
	assert.False(t, src.IsInitialized())
	assert.Equal(t, 0, dev.OpenHandles())
}

func TestSourceSubmitsAndCyclesFrames(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Noise(0.5))
	inf := &fakeInferrer{resp: threeFrames()}
	src := newTestSource(t, dev, inf, 100*time.Millisecond)

	t0 := time.Unix(1000, 0)
	require.NoError(t, src.Start(context.Background(), t0))
	assert.Equal(t, StateRecording, src.State())
	assert.True(t, src.HasPendingTimer())

	waitForAudio(t, src, t0)

	boundary := t0.Add(2 * time.Second)
	res := src.Tick(boundary)
	assert.True(t, res.Speaking)
	assert.False(t, res.HasFrame)
	assert.Equal(t, StateSubmitting, src.State())

	require.Eventually(t, func() bool {
		return src.Tick(boundary).HasFrame || src.SequenceLen() == 3
	}, 2*time.Second, 10*time.Millisecond)

	var got []float32
	for len(got) < 4 {
		res := src.Tick(boundary)
		require.True(t, res.Speaking)
		if res.HasFrame {
			got = append(got, res.Frame.Get(avatar3d.JawOpen))
		}
	}
	// The tick that first saw the sequence may already have consumed a
	// frame, so compare the cycle rather than a fixed start.
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		switch prev {
		case 0.1:
			assert.Equal(t, float32(0.2), cur)
		case 0.2:
			assert.Equal(t, float32(0.3), cur)
		case 0.3:
			assert.Equal(t, float32(0.1), cur)
		default:
			t.Fatalf("unexpected frame value %v", prev)
		}
	}

	assert.Equal(t, 1, inf.Calls())
	assert.Equal(t, uint64(1), src.Stats().Submitted)
	assert.Equal(t, uint64(1), src.Stats().Received)

	src.Tick(boundary.Add(100 * time.Millisecond))
	assert.Equal(t, StateRecording, src.State())
}

func TestSourceChunkBoundariesStayFixed(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Noise(0.5))
	inf := &fakeInferrer{resp: threeFrames()}
	src := newTestSource(t, dev, inf, 100*time.Millisecond)

	t0 := time.Unix(1000, 0)
	require.NoError(t, src.Start(context.Background(), t0))
	waitForAudio(t, src, t0)

	src.Tick(t0.Add(2050 * time.Millisecond))
	require.NotEqual(t, StateRecording, src.State())

	src.Tick(t0.Add(2150 * time.Millisecond))
	require.Equal(t, StateRecording, src.State())

	src.Tick(t0.Add(3999 * time.Millisecond))
	assert.Equal(t, StateRecording, src.State())

	src.Tick(t0.Add(4 * time.Second))
	assert.NotEqual(t, StateRecording, src.State(), "second boundary is two chunk lengths after start")
}

func TestSourceDropsChunkWhileInFlight(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Noise(0.5))
	inf := &fakeInferrer{resp: threeFrames(), block: make(chan struct{})}
	src := newTestSource(t, dev, inf, 100*time.Millisecond)

	t0 := time.Unix(1000, 0)
	require.NoError(t, src.Start(context.Background(), t0))
	waitForAudio(t, src, t0)

	src.Tick(t0.Add(2 * time.Second))
	require.Eventually(t, func() bool { return inf.Calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, src.InFlight())

	src.Tick(t0.Add(2100 * time.Millisecond))
	assert.Equal(t, StateRecording, src.State())
	time.Sleep(100 * time.Millisecond)

	src.Tick(t0.Add(4100 * time.Millisecond))
	assert.Equal(t, StateFlushing, src.State())
	assert.Equal(t, uint64(1), src.Stats().Submitted)
	assert.Equal(t, uint64(1), src.Stats().Dropped)
	assert.Equal(t, 1, inf.Calls())

	close(inf.block)
	require.Eventually(t, func() bool {
		src.Tick(t0.Add(4100 * time.Millisecond))
		return src.SequenceLen() == 3
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !src.InFlight() }, time.Second, 5*time.Millisecond)
}

func TestSourceFailureKeepsRecording(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Noise(0.5))
	inf := &fakeInferrer{err: ErrSubmissionFailed}
	src := newTestSource(t, dev, inf, 0)

	t0 := time.Unix(1000, 0)
	require.NoError(t, src.Start(context.Background(), t0))
	waitForAudio(t, src, t0)

	boundary := t0.Add(2 * time.Second)
	src.Tick(boundary)
	assert.Equal(t, StateRecording, src.State(), "zero restart delay starts the next chunk at once")

	require.Eventually(t, func() bool {
		src.Tick(boundary)
		return src.Stats().Failed == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, src.SequenceLen())
	assert.True(t, src.IsInitialized())
	assert.False(t, src.Tick(boundary).HasFrame)
}

func TestSourceGateSuppressesFramesInSilence(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Silence())
	inf := &fakeInferrer{resp: threeFrames()}
	src := newTestSource(t, dev, inf, 0)

	t0 := time.Unix(1000, 0)
	require.NoError(t, src.Start(context.Background(), t0))
	time.Sleep(100 * time.Millisecond)

	boundary := t0.Add(2 * time.Second)
	src.Tick(boundary)
	require.Eventually(t, func() bool {
		src.Tick(boundary)
		return src.SequenceLen() == 3
	}, 2*time.Second, 10*time.Millisecond)

	res := src.Tick(boundary)
	assert.False(t, res.Speaking)
	assert.False(t, res.HasFrame)

	dev.SetSignal(audiotest.Noise(0.5))
	require.Eventually(t, func() bool {
		return src.Tick(boundary).HasFrame
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSourceStopReleasesEverything(t *testing.T) {
	dev := audiotest.NewDevice(16000, audiotest.Noise(0.5))
	inf := &fakeInferrer{resp: threeFrames(), block: make(chan struct{})}
	src := newTestSource(t, dev, inf, 100*time.Millisecond)

	t0 := time.Unix(1000, 0)
	require.NoError(t, src.Start(context.Background(), t0))
	waitForAudio(t, src, t0)
	src.Tick(t0.Add(2 * time.Second))
	require.Eventually(t, func() bool { return inf.Calls() == 1 }, time.Second, 5*time.Millisecond)

	src.Stop()

	assert.Equal(t, StateIdle, src.State())
	assert.False(t, src.HasPendingTimer())
	assert.False(t, src.InFlight())
	assert.False(t, src.IsInitialized())
	assert.Equal(t, 0, dev.OpenHandles())

	close(inf.block)
	require.NoError(t, src.Start(context.Background(), t0))
	assert.Equal(t, 0, src.SequenceLen(), "abandoned result is never applied")
	assert.Equal(t, 1, dev.OpenHandles())
}
