package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/normanking/audioface/internal/bus"
	"github.com/rs/zerolog"
)

// Capture owns one acquired stream and pumps its samples to sinks on a
// dedicated goroutine until stopped.
type Capture struct {
	device    Device
	frameSize int
	eventBus  *bus.EventBus
	logger    zerolog.Logger

	mu     sync.RWMutex
	state  AudioState
	stream Stream
	sinks  []Sink
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCapture creates a capture for the device
func NewCapture(device Device, frameSize int, eventBus *bus.EventBus, logger zerolog.Logger) *Capture {
	if frameSize <= 0 {
		frameSize = 512
	}
	return &Capture{
		device:    device,
		frameSize: frameSize,
		eventBus:  eventBus,
		logger:    logger.With().Str("component", "capture").Logger(),
		state:     StateIdle,
	}
}

// AddSink registers a consumer. Sinks added while running see the next block.
func (c *Capture) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// Start acquires the device and begins pumping samples
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return ErrAlreadyStarted
	}

	stream, err := c.device.Acquire(ctx)
	if err != nil {
		c.logger.Error().Err(err).Str("device", c.device.Name()).Msg("Failed to acquire audio device")
		c.publish(bus.EventTypeCaptureError, map[string]any{"device": c.device.Name(), "error": err.Error()})
		return fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, c.device.Name(), err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.stream = stream
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateListening

	go c.pump(pumpCtx, stream, c.done)

	c.logger.Info().Str("device", c.device.Name()).Int("sample_rate", stream.SampleRate()).Msg("Capture started")
	c.publish(bus.EventTypeCaptureStarted, map[string]any{"device": c.device.Name(), "sample_rate": stream.SampleRate()})
	return nil
}

// Stop releases the stream and waits for the pump to exit. Safe to call
// when not started.
func (c *Capture) Stop() {
	c.mu.Lock()
	if c.stream == nil {
		c.mu.Unlock()
		return
	}
	stream, cancel, done := c.stream, c.cancel, c.done
	c.stream, c.cancel, c.done = nil, nil, nil
	c.state = StateIdle
	c.mu.Unlock()

	cancel()
	if err := stream.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Closing audio stream")
	}
	<-done

	c.logger.Info().Msg("Capture stopped")
	c.publish(bus.EventTypeCaptureStopped, map[string]any{"device": c.device.Name()})
}

// Running reports whether a stream is held
func (c *Capture) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stream != nil
}

// State returns the current capture state
func (c *Capture) State() AudioState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState records speaking or listening while running
func (c *Capture) SetState(state AudioState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		c.state = state
	}
}

// SampleRate returns the stream rate, or 0 when stopped
func (c *Capture) SampleRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stream == nil {
		return 0
	}
	return c.stream.SampleRate()
}

func (c *Capture) pump(ctx context.Context, stream Stream, done chan struct{}) {
	defer close(done)

	buf := make([]float32, c.frameSize)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := stream.Read(buf)
		if n > 0 && ctx.Err() == nil {
			c.mu.RLock()
			sinks := c.sinks
			c.mu.RUnlock()
			for _, s := range sinks {
				s.WriteSamples(buf[:n])
			}
		}

		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrStreamClosed) || errors.Is(err, io.EOF) {
				c.logger.Debug().Err(err).Msg("Audio stream ended")
				return
			}
			c.logger.Error().Err(err).Msg("Audio stream read failed")
			c.publish(bus.EventTypeCaptureError, map[string]any{"device": c.device.Name(), "error": err.Error()})
			return
		}
	}
}

func (c *Capture) publish(t bus.EventType, data map[string]any) {
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: t, Data: data})
	}
}
