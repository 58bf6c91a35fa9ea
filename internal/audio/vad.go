package audio

import (
	"math"
	"sync"
	"time"
)

var negInf = math.Inf(-1)

// VAD implements threshold-and-history voice activity detection over the
// peak level of its own fast analyser. Speaking starts when the level is
// above threshold and at least two of the last three polls were too. It
// stops once the level is below threshold and the whole history is quiet.
type VAD struct {
	config   *VADConfig
	mu       sync.Mutex
	analyser *Analyser
	bins     []float64

	// State
	speaking bool
	lastPoll time.Time
	lastDB   float64
	history  []int

	onSpeaking func(SpeechEvent)
	onStopped  func(SpeechEvent)
}

// VADConfig holds VAD configuration
type VADConfig struct {
	ThresholdDB float64       `json:"threshold_db"` // Default: -65
	Interval    time.Duration `json:"interval"`     // Poll interval, default 50ms
	HistorySize int           `json:"history_size"` // Default: 10
	FFTSize     int           `json:"fft_size"`     // Default: 512
	Smoothing   float64       `json:"smoothing"`    // Default: 0.1
}

// DefaultVADConfig returns sensible defaults
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		ThresholdDB: -65,
		Interval:    50 * time.Millisecond,
		HistorySize: 10,
		FFTSize:     512,
		Smoothing:   0.1,
	}
}

// NewVAD creates a new VAD instance
func NewVAD(config *VADConfig) *VAD {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.HistorySize < 3 {
		config.HistorySize = 3
	}

	a := NewAnalyser(AnalyserConfig{
		FFTSize:               config.FFTSize,
		SmoothingTimeConstant: config.Smoothing,
		MinDecibels:           -100,
		MaxDecibels:           -30,
	})

	return &VAD{
		config:   config,
		analyser: a,
		bins:     make([]float64, a.FrequencyBinCount()),
		history:  make([]int, config.HistorySize),
		lastDB:   negInf,
	}
}

// OnSpeaking registers the callback fired when speech starts
func (v *VAD) OnSpeaking(fn func(SpeechEvent)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onSpeaking = fn
}

// OnStoppedSpeaking registers the callback fired when speech ends
func (v *VAD) OnStoppedSpeaking(fn func(SpeechEvent)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onStopped = fn
}

// WriteSamples feeds the analyser and polls if the interval elapsed.
func (v *VAD) WriteSamples(samples []float32) {
	v.analyser.WriteSamples(samples)
	v.Poll(time.Now())
}

// Poll evaluates the current level unless the previous poll was less than
// one interval ago. Callbacks run on the caller's goroutine.
func (v *VAD) Poll(now time.Time) {
	v.mu.Lock()
	if !v.lastPoll.IsZero() && now.Sub(v.lastPoll) < v.config.Interval {
		v.mu.Unlock()
		return
	}
	v.lastPoll = now

	v.analyser.FloatFrequencyData(v.bins)
	level := PeakDecibels(v.bins)
	fire := v.step(level)
	v.lastDB = level

	var cb func(SpeechEvent)
	if fire {
		if v.speaking {
			cb = v.onSpeaking
		} else {
			cb = v.onStopped
		}
	}
	speaking := v.speaking
	v.mu.Unlock()

	if cb != nil {
		cb(SpeechEvent{Speaking: speaking, LevelDB: level, Timestamp: now})
	}
}

// step applies one level reading and reports whether the state flipped.
// Caller holds mu.
func (v *VAD) step(level float64) bool {
	threshold := v.config.ThresholdDB
	flipped := false

	switch {
	case level > threshold && !v.speaking:
		recent := 0
		for _, h := range v.history[len(v.history)-3:] {
			recent += h
		}
		if recent >= 2 {
			v.speaking = true
			flipped = true
		}
	case level < threshold && v.speaking:
		total := 0
		for _, h := range v.history {
			total += h
		}
		if total == 0 {
			v.speaking = false
			flipped = true
		}
	}

	copy(v.history, v.history[1:])
	if level > threshold {
		v.history[len(v.history)-1] = 1
	} else {
		v.history[len(v.history)-1] = 0
	}

	return flipped
}

// IsSpeaking returns whether speech is currently detected
func (v *VAD) IsSpeaking() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speaking
}

// LevelDB returns the peak level seen at the last poll
func (v *VAD) LevelDB() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastDB
}

// Reset clears VAD state
func (v *VAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.speaking = false
	v.lastPoll = time.Time{}
	v.lastDB = negInf
	for i := range v.history {
		v.history[i] = 0
	}
	v.analyser.Reset()
}
