package avatar3d

import "math/rand"

// AudioSample is the per-tick feature vector. Volume and Pitch are in [0,1].
// Pitch is the normalized index of the strongest frequency bin, a coarse
// stand-in for perceived pitch.
type AudioSample struct {
	Volume     float32 `json:"volume"`
	Pitch      float32 `json:"pitch"`
	IsSpeaking bool    `json:"isSpeaking"`
}

type MapperConfig struct {
	VolumeSensitivity float32
	PitchSensitivity  float32
	BaseMouthOpen     float32
	MaxMouthOpen      float32
}

func DefaultMapperConfig() MapperConfig {
	return MapperConfig{
		VolumeSensitivity: 0.8,
		PitchSensitivity:  0.5,
		BaseMouthOpen:     0.1,
		MaxMouthOpen:      0.7,
	}
}

const (
	idleBlinkMax      = 0.05
	mouthOpenRatio    = 0.8
	browInnerUpRatio  = 0.3
	pitchCenter       = 0.5
	pitchSpreadFactor = 2
)

// Map turns an audio sample into target weights.
func Map(s AudioSample, cfg MapperConfig) Frame {
	return MapWith(s, cfg, rand.Float32)
}

// MapWith is Map with an explicit source of uniform values in [0,1).
func MapWith(s AudioSample, cfg MapperConfig, rnd func() float32) Frame {
	var f Frame

	if !s.IsSpeaking {
		f.Set(EyesClosed, rnd()*idleBlinkMax)
		return f
	}

	jaw := cfg.BaseMouthOpen + s.Volume*cfg.VolumeSensitivity
	if jaw > cfg.MaxMouthOpen {
		jaw = cfg.MaxMouthOpen
	}
	f.Set(JawOpen, jaw)
	f.Set(MouthOpen, jaw*mouthOpenRatio)

	if s.Pitch > pitchCenter {
		f.Set(MouthWide, (s.Pitch-pitchCenter)*pitchSpreadFactor*cfg.PitchSensitivity)
	} else {
		f.Set(MouthPucker, (pitchCenter-s.Pitch)*pitchSpreadFactor*cfg.PitchSensitivity)
	}

	f.Set(BrowInnerUp, s.Volume*browInnerUpRatio)
	return f
}

// IdleFrame is the frame produced for silence.
func IdleFrame(cfg MapperConfig) Frame {
	return Map(AudioSample{}, cfg)
}
