package remote

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normanking/audioface/internal/audio"
	"github.com/normanking/audioface/internal/avatar3d"
	"github.com/normanking/audioface/internal/bus"
	"github.com/normanking/audioface/internal/metrics"
	"github.com/rs/zerolog"
)

// SourceConfig holds chunking and gating settings
type SourceConfig struct {
	ChunkDuration           time.Duration
	RestartDelay            time.Duration
	SpeakingVolumeThreshold float32
	VendorPrefix            string
	Audio                   *audio.AudioConfig
}

func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		ChunkDuration:           2 * time.Second,
		RestartDelay:            100 * time.Millisecond,
		SpeakingVolumeThreshold: 0.05,
		VendorPrefix:            avatar3d.DefaultVendorPrefix,
		Audio:                   audio.DefaultAudioConfig(),
	}
}

// TickResult is what the source offers the controller on one tick
type TickResult struct {
	Volume   float32
	Speaking bool
	Frame    avatar3d.Frame
	HasFrame bool
}

type result struct {
	frames    []avatar3d.Frame
	frameRate float64
	err       error
}

// Stats counts chunk outcomes for one source
type Stats struct {
	Submitted uint64
	Dropped   uint64
	Failed    uint64
	Received  uint64
}

// Source records fixed-length chunks, submits them one at a time and
// replays the most recent frame sequence while the speaker is loud enough.
// All timers are deadlines checked by Tick, so stopping the tick driver
// leaves nothing scheduled.
type Source struct {
	config   SourceConfig
	device   audio.Device
	inferrer Inferrer
	resolve  func(string) (avatar3d.Blendshape, bool)
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu           sync.Mutex
	state        State
	capture      *audio.Capture
	analyser     *audio.Analyser
	recorder     *audio.Recorder
	freq         []byte
	deadline     time.Time
	restartAt    time.Time
	nextDeadline time.Time // boundary the restarted chunk runs to
	sequence     *avatar3d.FrameSequence
	results      chan result
	cancel       context.CancelFunc
	subCtx       context.Context

	wg       sync.WaitGroup
	inFlight atomic.Bool

	submitted atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	received  atomic.Uint64
}

// NewSource creates a source. A nil inferrer means no credential was
// configured; Start then fails with ErrMissingCredential.
func NewSource(device audio.Device, inferrer Inferrer, names *NameTable, config SourceConfig, eventBus *bus.EventBus, logger zerolog.Logger) *Source {
	if config.Audio == nil {
		config.Audio = audio.DefaultAudioConfig()
	}
	if config.ChunkDuration <= 0 {
		config.ChunkDuration = DefaultSourceConfig().ChunkDuration
	}
	if config.RestartDelay < 0 {
		config.RestartDelay = 0
	}

	return &Source{
		config:   config,
		device:   device,
		inferrer: inferrer,
		resolve:  names.Resolver(config.VendorPrefix),
		eventBus: eventBus,
		logger:   logger.With().Str("component", "remote_source").Logger(),
		state:    StateIdle,
	}
}

// Start acquires the device and begins the first chunk
func (s *Source) Start(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return nil
	}
	if s.inferrer == nil {
		s.logger.Error().Msg("No credential configured for remote animation")
		return ErrMissingCredential
	}

	s.state = StateInitializing

	capture := audio.NewCapture(s.device, s.config.Audio.FrameSize, s.eventBus, s.logger)
	if err := capture.Start(ctx); err != nil {
		s.state = StateIdle
		return err
	}

	analyser := audio.AnalyserFromConfig(s.config.Audio)
	recorder := audio.NewRecorder(capture.SampleRate(), s.config.ChunkDuration+time.Second)
	capture.AddSink(analyser)
	capture.AddSink(recorder)

	subCtx, cancel := context.WithCancel(context.Background())

	s.capture = capture
	s.analyser = analyser
	s.recorder = recorder
	s.freq = make([]byte, analyser.FrequencyBinCount())
	s.results = make(chan result, 1)
	s.subCtx = subCtx
	s.cancel = cancel
	s.sequence = nil

	s.beginChunk(now, now.Add(s.config.ChunkDuration))
	s.logger.Info().Dur("chunk", s.config.ChunkDuration).Msg("Remote source started")
	return nil
}

// Stop releases the device, clears every deadline and abandons any
// in-flight submission. Its result is never applied.
func (s *Source) Stop() {
	s.mu.Lock()
	if s.state == StateIdle && s.capture == nil {
		s.mu.Unlock()
		return
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.capture != nil {
		s.capture.Stop()
	}
	if s.recorder != nil {
		s.recorder.Discard()
	}

	s.capture = nil
	s.analyser = nil
	s.recorder = nil
	s.freq = nil
	s.deadline = time.Time{}
	s.restartAt = time.Time{}
	s.nextDeadline = time.Time{}
	s.sequence = nil
	s.results = nil
	s.cancel = nil
	s.subCtx = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Remote source stopped")
}

// Tick advances the chunk state machine and returns the gate and the next
// frame, if any.
func (s *Source) Tick(now time.Time) TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.state == StateInitializing {
		return TickResult{}
	}

	s.drainResults()

	switch {
	case s.state == StateRecording && !s.deadline.IsZero() && !now.Before(s.deadline):
		s.flush(now)
	case !s.restartAt.IsZero() && !now.Before(s.restartAt):
		s.beginChunk(now, s.nextDeadline)
	}

	s.analyser.ByteFrequencyData(s.freq)
	vol := audio.Volume(s.freq)
	res := TickResult{Volume: vol, Speaking: vol > s.config.SpeakingVolumeThreshold}
	if res.Speaking {
		res.Frame, res.HasFrame = s.sequence.Next()
	}
	return res
}

// beginChunk starts recording until deadline. A deadline that has already
// passed restarts the cycle from now. Caller holds mu.
func (s *Source) beginChunk(now, deadline time.Time) {
	if !deadline.After(now) {
		deadline = now.Add(s.config.ChunkDuration)
	}
	s.restartAt = time.Time{}
	s.nextDeadline = time.Time{}
	s.recorder.Start()
	s.deadline = deadline
	s.state = StateRecording
}

// flush closes the chunk. The next boundary is anchored to this one so
// the restart gap does not stretch the cycle. Caller holds mu.
func (s *Source) flush(now time.Time) {
	next := s.deadline.Add(s.config.ChunkDuration)
	s.state = StateFlushing
	s.deadline = time.Time{}
	samples := s.recorder.Stop()

	if s.submit(samples) {
		s.state = StateSubmitting
	}

	if s.config.RestartDelay == 0 {
		s.beginChunk(now, next)
		return
	}
	s.restartAt = now.Add(s.config.RestartDelay)
	s.nextDeadline = next
}

// submit hands the chunk to a background request unless one is already
// pending, in which case the chunk is dropped. Caller holds mu.
func (s *Source) submit(samples []float32) bool {
	if len(samples) == 0 {
		return false
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		metrics.RemoteChunks.WithLabelValues("dropped").Inc()
		s.logger.Debug().Int("samples", len(samples)).Msg("Submission in flight, chunk dropped")
		s.publish(bus.EventTypeChunkDropped, map[string]any{"samples": len(samples)})
		return false
	}

	wav := audio.EncodeWAV(samples, s.recorder.SampleRate())
	ctx, results := s.subCtx, s.results

	s.submitted.Add(1)
	metrics.RemoteChunks.WithLabelValues("submitted").Inc()
	s.publish(bus.EventTypeChunkSubmitted, map[string]any{"bytes": len(wav)})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)

		start := time.Now()
		resp, err := s.inferrer.Infer(ctx, wav)
		metrics.SubmissionLatency.Observe(time.Since(start).Seconds())

		if ctx.Err() != nil {
			return
		}

		var r result
		if err != nil {
			r.err = err
		} else {
			r.frames = Frames(resp, s.resolve)
			r.frameRate = resp.FrameRate
		}

		select {
		case results <- r:
		case <-ctx.Done():
		}
	}()
	return true
}

// caller holds mu
func (s *Source) drainResults() {
	for {
		select {
		case r := <-s.results:
			s.apply(r)
		default:
			return
		}
	}
}

func (s *Source) apply(r result) {
	if r.err != nil {
		s.failed.Add(1)
		metrics.RemoteChunks.WithLabelValues("failed").Inc()
		s.logger.Warn().Err(r.err).Msg("Remote chunk failed")
		s.publish(bus.EventTypeChunkFailed, map[string]any{"error": r.err.Error()})
		return
	}

	s.received.Add(1)
	metrics.RemoteChunks.WithLabelValues("received").Inc()
	if len(r.frames) == 0 {
		s.logger.Debug().Msg("Remote chunk returned no frames")
		return
	}

	s.sequence = avatar3d.NewFrameSequence(r.frames, r.frameRate)
	s.logger.Debug().Int("frames", len(r.frames)).Float64("frame_rate", r.frameRate).Msg("Frame sequence replaced")
	s.publish(bus.EventTypeFramesReceived, map[string]any{"frames": len(r.frames), "frame_rate": r.frameRate})
}

func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsInitialized reports whether a stream and analyser are live
func (s *Source) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture != nil
}

// HasPendingTimer reports whether a chunk boundary or restart is scheduled
func (s *Source) HasPendingTimer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.deadline.IsZero() || !s.restartAt.IsZero()
}

// InFlight reports whether a submission is outstanding
func (s *Source) InFlight() bool {
	return s.inFlight.Load()
}

// SequenceLen returns the number of frames in the active sequence
func (s *Source) SequenceLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence.Len()
}

func (s *Source) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Dropped:   s.dropped.Load(),
		Failed:    s.failed.Load(),
		Received:  s.received.Load(),
	}
}

func (s *Source) publish(t bus.EventType, data map[string]any) {
	if s.eventBus != nil {
		s.eventBus.Publish(bus.Event{Type: t, Data: data})
	}
}
