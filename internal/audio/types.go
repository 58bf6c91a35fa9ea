// Package audio provides audio capture, spectral analysis, and VAD for audioface.
package audio

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrNotStarted        = errors.New("capture not started")
	ErrAlreadyStarted    = errors.New("capture already started")
	ErrStreamClosed      = errors.New("audio stream closed")
	ErrInvalidFormat     = errors.New("invalid audio format")
)

// Device is a source of live audio that must be acquired before use.
type Device interface {
	// Acquire opens a new stream. Every successful call must be paired
	// with a Close on the returned stream.
	Acquire(ctx context.Context) (Stream, error)
	Name() string
}

// Stream delivers mono float32 samples in [-1, 1].
type Stream interface {
	// Read blocks until samples are available and returns how many were
	// written to buf. After Close it returns ErrStreamClosed or io.EOF.
	Read(buf []float32) (int, error)
	SampleRate() int
	Close() error
}

// Sink receives every block of samples read from a stream.
// Implementations must not retain the slice.
type Sink interface {
	WriteSamples(samples []float32)
}

// AudioState represents the current capture state
type AudioState string

const (
	StateIdle      AudioState = "idle"
	StateListening AudioState = "listening"
	StateSpeaking  AudioState = "speaking"
)

// AudioConfig holds analysis configuration
type AudioConfig struct {
	// Capture settings
	FrameSize int `json:"frame_size"` // Samples per read, default 512

	// Analyser settings
	FFTSize               int     `json:"fft_size"`                // Default: 2048
	SmoothingTimeConstant float64 `json:"smoothing_time_constant"` // Default: 0.8
	MinDecibels           float64 `json:"min_decibels"`            // Default: -100
	MaxDecibels           float64 `json:"max_decibels"`            // Default: -30

	// VAD settings
	VAD VADConfig `json:"vad"`
}

// DefaultAudioConfig returns sensible defaults
func DefaultAudioConfig() *AudioConfig {
	return &AudioConfig{
		FrameSize:             512,
		FFTSize:               2048,
		SmoothingTimeConstant: 0.8,
		MinDecibels:           -100,
		MaxDecibels:           -30,
		VAD:                   *DefaultVADConfig(),
	}
}

// SpeechEvent is emitted on each VAD edge
type SpeechEvent struct {
	Speaking  bool      `json:"speaking"`
	LevelDB   float64   `json:"level_db"`
	Timestamp time.Time `json:"timestamp"`
}
