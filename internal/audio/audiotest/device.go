// Package audiotest provides synthetic audio devices for tests.
package audiotest

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normanking/audioface/internal/audio"
)

// Signal returns the sample at absolute index i.
type Signal func(i int) float32

// Sine generates a tone of the given frequency and amplitude.
func Sine(freq, amplitude float64, sampleRate int) Signal {
	return func(i int) float32 {
		return float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
}

// Noise generates deterministic broadband noise in [-amplitude, amplitude].
func Noise(amplitude float64) Signal {
	return func(i int) float32 {
		x := uint32(i)*2654435761 + 0x9e3779b9
		x ^= x >> 16
		x *= 0x45d9f3b
		x ^= x >> 16
		return float32(amplitude * (float64(x)/float64(math.MaxUint32)*2 - 1))
	}
}

// Silence generates zeros.
func Silence() Signal {
	return func(int) float32 { return 0 }
}

// Device is an in-memory audio.Device that counts open handles.
type Device struct {
	rate int

	mu     sync.Mutex
	signal Signal
	err    error

	open     atomic.Int32
	acquired atomic.Int32
}

func NewDevice(sampleRate int, signal Signal) *Device {
	return &Device{rate: sampleRate, signal: signal}
}

func (d *Device) Name() string { return "synthetic" }

// Fail makes subsequent Acquire calls return err. Pass nil to recover.
func (d *Device) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// SetSignal swaps the generator for every open and future stream.
func (d *Device) SetSignal(s Signal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signal = s
}

func (d *Device) current() Signal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.signal
}

func (d *Device) Acquire(ctx context.Context) (audio.Stream, error) {
	d.mu.Lock()
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.open.Add(1)
	d.acquired.Add(1)
	return &stream{dev: d, closed: make(chan struct{})}, nil
}

// OpenHandles returns streams acquired and not yet closed.
func (d *Device) OpenHandles() int { return int(d.open.Load()) }

// Acquisitions returns the number of successful Acquire calls.
func (d *Device) Acquisitions() int { return int(d.acquired.Load()) }

type stream struct {
	dev    *Device
	pos    int
	once   sync.Once
	closed chan struct{}
}

func (s *stream) SampleRate() int { return s.dev.rate }

func (s *stream) Read(buf []float32) (int, error) {
	timer := time.NewTimer(time.Duration(len(buf)) * time.Second / time.Duration(s.dev.rate))
	defer timer.Stop()

	select {
	case <-s.closed:
		return 0, audio.ErrStreamClosed
	case <-timer.C:
	}

	sig := s.dev.current()
	for i := range buf {
		buf[i] = sig(s.pos + i)
	}
	s.pos += len(buf)
	return len(buf), nil
}

func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.dev.open.Add(-1)
	})
	return nil
}
