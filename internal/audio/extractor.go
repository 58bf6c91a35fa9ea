package audio

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/normanking/audioface/internal/avatar3d"
	"github.com/normanking/audioface/internal/bus"
	"github.com/rs/zerolog"
)

// FeatureExtractor turns a live stream into per-tick audio samples.
// Capture and VAD run on the capture goroutine; Sample only reads the
// analyser and never blocks on I/O.
type FeatureExtractor struct {
	device   Device
	config   *AudioConfig
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu          sync.Mutex
	capture     *Capture
	analyser    *Analyser
	vad         *VAD
	freq        []byte
	initialized bool

	speaking atomic.Bool
}

// NewFeatureExtractor creates an extractor over the device
func NewFeatureExtractor(device Device, config *AudioConfig, eventBus *bus.EventBus, logger zerolog.Logger) *FeatureExtractor {
	if config == nil {
		config = DefaultAudioConfig()
	}
	return &FeatureExtractor{
		device:   device,
		config:   config,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "extractor").Logger(),
	}
}

// Start acquires the device and builds fresh analysers. On failure nothing
// is held and the extractor stays uninitialized.
func (e *FeatureExtractor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	analyser := AnalyserFromConfig(e.config)
	vadConfig := e.config.VAD
	vad := NewVAD(&vadConfig)
	capture := NewCapture(e.device, e.config.FrameSize, e.eventBus, e.logger)

	vad.OnSpeaking(func(ev SpeechEvent) { e.setSpeaking(capture, ev) })
	vad.OnStoppedSpeaking(func(ev SpeechEvent) { e.setSpeaking(capture, ev) })

	capture.AddSink(analyser)
	capture.AddSink(vad)

	if err := capture.Start(ctx); err != nil {
		return err
	}

	e.capture = capture
	e.analyser = analyser
	e.vad = vad
	e.freq = make([]byte, analyser.FrequencyBinCount())
	e.speaking.Store(false)
	e.initialized = true

	e.logger.Info().Int("bins", len(e.freq)).Msg("Feature extractor started")
	return nil
}

// Stop releases the stream and discards analysers. Safe to call repeatedly.
func (e *FeatureExtractor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.capture != nil {
		e.capture.Stop()
	}
	e.capture = nil
	e.analyser = nil
	e.vad = nil
	e.freq = nil
	e.speaking.Store(false)

	if e.initialized {
		e.logger.Info().Msg("Feature extractor stopped")
	}
	e.initialized = false
}

// IsInitialized reports whether a stream and analysers are live
func (e *FeatureExtractor) IsInitialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// IsSpeaking returns the state set by the latest VAD edge
func (e *FeatureExtractor) IsSpeaking() bool {
	return e.speaking.Load()
}

// Sample reads the current spectrum. It returns a zero sample when stopped.
func (e *FeatureExtractor) Sample() avatar3d.AudioSample {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return avatar3d.AudioSample{}
	}

	e.analyser.ByteFrequencyData(e.freq)
	return avatar3d.AudioSample{
		Volume:     Volume(e.freq),
		Pitch:      Pitch(e.freq),
		IsSpeaking: e.speaking.Load(),
	}
}

func (e *FeatureExtractor) setSpeaking(capture *Capture, ev SpeechEvent) {
	e.speaking.Store(ev.Speaking)

	eventType := bus.EventTypeSpeakingStopped
	state := StateListening
	if ev.Speaking {
		eventType = bus.EventTypeSpeakingStarted
		state = StateSpeaking
	}
	capture.SetState(state)

	e.logger.Debug().Bool("speaking", ev.Speaking).Float64("level_db", ev.LevelDB).Msg("Speech edge")
	if e.eventBus != nil {
		e.eventBus.Publish(bus.Event{
			Type: eventType,
			Data: map[string]any{
				"level_db":  ev.LevelDB,
				"timestamp": ev.Timestamp,
			},
		})
	}
}
