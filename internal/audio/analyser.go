package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// AnalyserConfig mirrors the tunables of a browser AnalyserNode.
type AnalyserConfig struct {
	FFTSize               int
	SmoothingTimeConstant float64
	MinDecibels           float64
	MaxDecibels           float64
}

// Analyser keeps the most recent FFTSize samples of a stream and produces
// smoothed magnitude spectra on demand. It is safe for one writer and any
// number of readers.
type Analyser struct {
	config AnalyserConfig
	mu     sync.Mutex

	ring   []float64
	pos    int
	window []float64

	smoothed []float64
	scratch  []float64
}

// NewAnalyser creates an analyser. FFTSize is rounded up to a power of two.
func NewAnalyser(config AnalyserConfig) *Analyser {
	size := nextPowerOfTwo(config.FFTSize)
	if size < 32 {
		size = 32
	}
	config.FFTSize = size
	if config.MaxDecibels <= config.MinDecibels {
		config.MinDecibels, config.MaxDecibels = -100, -30
	}

	return &Analyser{
		config:   config,
		ring:     make([]float64, size),
		window:   window.Blackman(size),
		smoothed: make([]float64, size/2),
		scratch:  make([]float64, size),
	}
}

// AnalyserFromConfig builds the feature analyser described by an AudioConfig.
func AnalyserFromConfig(c *AudioConfig) *Analyser {
	return NewAnalyser(AnalyserConfig{
		FFTSize:               c.FFTSize,
		SmoothingTimeConstant: c.SmoothingTimeConstant,
		MinDecibels:           c.MinDecibels,
		MaxDecibels:           c.MaxDecibels,
	})
}

// FrequencyBinCount returns half the FFT size.
func (a *Analyser) FrequencyBinCount() int {
	return a.config.FFTSize / 2
}

// WriteSamples implements Sink.
func (a *Analyser) WriteSamples(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos = (a.pos + 1) % len(a.ring)
	}
}

// Reset clears the sample history and the smoothing state.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.ring {
		a.ring[i] = 0
	}
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
	a.pos = 0
}

// FloatFrequencyData fills dst with the current spectrum in decibels.
// Silent bins are reported as negative infinity.
func (a *Analyser) FloatFrequencyData(dst []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.analyse()
	n := min(len(dst), len(a.smoothed))
	for i := 0; i < n; i++ {
		dst[i] = toDecibels(a.smoothed[i])
	}
}

// ByteFrequencyData fills dst with the current spectrum scaled so that
// MinDecibels maps to 0 and MaxDecibels maps to 255.
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.analyse()
	span := a.config.MaxDecibels - a.config.MinDecibels
	n := min(len(dst), len(a.smoothed))
	for i := 0; i < n; i++ {
		db := toDecibels(a.smoothed[i])
		scaled := 255 * (db - a.config.MinDecibels) / span
		switch {
		case math.IsInf(scaled, -1) || scaled < 0:
			dst[i] = 0
		case scaled > 255:
			dst[i] = 255
		default:
			dst[i] = byte(scaled)
		}
	}
}

// analyse runs one windowed FFT over the ring and folds the magnitudes into
// the smoothed spectrum. Caller holds mu.
func (a *Analyser) analyse() {
	size := len(a.ring)
	for i := 0; i < size; i++ {
		a.scratch[i] = a.ring[(a.pos+i)%size] * a.window[i]
	}

	spectrum := fft.FFTReal(a.scratch)
	tau := a.config.SmoothingTimeConstant
	scale := 1 / float64(size)
	for k := range a.smoothed {
		mag := cmplx.Abs(spectrum[k]) * scale
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
	}
}

func toDecibels(mag float64) float64 {
	if mag <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(mag)
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
