package audio

import (
	"sync"
	"time"
)

// Recorder accumulates samples between Start and Stop.
type Recorder struct {
	mu         sync.Mutex
	sampleRate int
	samples    []float32
	recording  bool
}

// NewRecorder preallocates room for capacity worth of audio
func NewRecorder(sampleRate int, capacity time.Duration) *Recorder {
	n := int(capacity.Seconds() * float64(sampleRate))
	return &Recorder{
		sampleRate: sampleRate,
		samples:    make([]float32, 0, n),
	}
}

// Start discards anything buffered and begins recording
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = r.samples[:0]
	r.recording = true
}

// Stop ends recording and returns a copy of the buffered samples
func (r *Recorder) Stop() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recording = false
	out := make([]float32, len(r.samples))
	copy(out, r.samples)
	r.samples = r.samples[:0]
	return out
}

// Discard ends recording and drops the buffer
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.samples = r.samples[:0]
}

// WriteSamples implements Sink.
func (r *Recorder) WriteSamples(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		r.samples = append(r.samples, samples...)
	}
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) SampleRate() int {
	return r.sampleRate
}

// Buffered returns the duration of audio currently held
func (r *Recorder) Buffered() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sampleRate == 0 {
		return 0
	}
	return time.Duration(len(r.samples)) * time.Second / time.Duration(r.sampleRate)
}
