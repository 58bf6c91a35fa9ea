// Package remote submits recorded speech to a hosted audio-to-face model and
// replays the blendshape frames it returns.
package remote

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrMissingCredential = errors.New("remote animation requires a credential")
	ErrSubmissionFailed  = errors.New("remote submission failed")
	ErrUnknownPreset     = errors.New("unknown model preset")
)

// Inferrer turns one WAV chunk into blendshape frames.
type Inferrer interface {
	Infer(ctx context.Context, wav []byte) (*Response, error)
}

// InferenceConfig is sent alongside each chunk
type InferenceConfig struct {
	EmotionIntensity float64 `json:"emotion_intensity"`
	EmotionType      string  `json:"emotion_type"`
}

// DefaultInferenceConfig returns neutral emotion at half intensity
func DefaultInferenceConfig() InferenceConfig {
	return InferenceConfig{
		EmotionIntensity: 0.5,
		EmotionType:      "neutral",
	}
}

// Response is the decoded service reply
type Response struct {
	FrameRate   float64              `json:"frame_rate"`
	Blendshapes []map[string]float64 `json:"blendshapes"`
	Status      string               `json:"status,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// State of a Source
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateRecording    State = "recording"
	StateFlushing     State = "flushing"
	StateSubmitting   State = "submitting"
)
