// Package session owns one animation session: it activates the audio or
// remote source, keeps the morph target registry in step with the loaded
// model and drives the per-tick sample, map, smooth and write cycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/normanking/audioface/internal/audio"
	"github.com/normanking/audioface/internal/avatar3d"
	"github.com/normanking/audioface/internal/bus"
	"github.com/normanking/audioface/internal/config"
	"github.com/normanking/audioface/internal/metrics"
	"github.com/normanking/audioface/internal/remote"
	"github.com/rs/zerolog"
)

var (
	ErrDisabled    = errors.New("session is disabled")
	ErrUnknownMode = errors.New("unknown session mode")
	ErrNoDevice    = errors.New("no audio device configured")
)

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceLocal
	sourceRemote
)

func (k sourceKind) String() string {
	switch k {
	case sourceLocal:
		return config.ModeLocal
	case sourceRemote:
		return config.ModeRemote
	}
	return "none"
}

// source is the animation source chosen for one activation.
type source struct {
	kind   sourceKind
	local  *audio.FeatureExtractor
	remote *remote.Source
}

func (s *source) initialized() bool {
	switch s.kind {
	case sourceLocal:
		return s.local.IsInitialized()
	case sourceRemote:
		return s.remote.IsInitialized()
	}
	return false
}

func (s *source) stop() {
	switch s.kind {
	case sourceLocal:
		s.local.Stop()
	case sourceRemote:
		s.remote.Stop()
	}
}

// InferrerFactory builds the remote client for one activation.
type InferrerFactory func(cfg config.RemoteConfig, modelID string, logger zerolog.Logger) remote.Inferrer

// DefaultInferrerFactory returns an HTTP client, or nil without a credential.
func DefaultInferrerFactory(cfg config.RemoteConfig, modelID string, logger zerolog.Logger) remote.Inferrer {
	if cfg.Credential == "" {
		return nil
	}
	client := remote.NewClient(cfg.Endpoint, modelID, cfg.Credential, logger)
	client.SetInferenceConfig(remote.InferenceConfig{
		EmotionIntensity: cfg.EmotionIntensity,
		EmotionType:      cfg.EmotionType,
	})
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return client
}

// Options wires a session to its collaborators.
type Options struct {
	Device      audio.Device
	Config      *config.Config
	EventBus    *bus.EventBus
	Logger      zerolog.Logger
	NewInferrer InferrerFactory
	Rand        func() float32
}

// State is the externally visible session state.
type State struct {
	ID          string `json:"id,omitempty"`
	Enabled     bool   `json:"enabled"`
	Mode        string `json:"mode"`
	Active      bool   `json:"active"`
	Initialized bool   `json:"initialized"`
	Speaking    bool   `json:"speaking"`
	Meshes      int    `json:"meshes"`
	LastError   string `json:"lastError,omitempty"`
}

// Snapshot is the influence state after one applied tick.
type Snapshot struct {
	Session  string               `json:"session"`
	Seq      uint64               `json:"seq"`
	Mode     string               `json:"mode"`
	Speaking bool                 `json:"speaking"`
	Meshes   map[string][]float32 `json:"meshes"`
}

type Session struct {
	device      audio.Device
	eventBus    *bus.EventBus
	logger      zerolog.Logger
	newInferrer InferrerFactory
	rnd         func() float32

	mu         sync.Mutex
	settings   *config.Config
	active     *config.Config
	id         string
	src        source
	graph      avatar3d.MeshGraph
	controller *avatar3d.Controller
	mapper     avatar3d.MapperConfig
	speaking   bool
	seq        uint64
	lastErr    error

	onStateChange func(State)
}

func New(opts Options) *Session {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cp := *cfg
	if opts.NewInferrer == nil {
		opts.NewInferrer = DefaultInferrerFactory
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float32
	}

	return &Session{
		device:      opts.Device,
		eventBus:    opts.EventBus,
		logger:      opts.Logger.With().Str("component", "session").Logger(),
		newInferrer: opts.NewInferrer,
		rnd:         opts.Rand,
		settings:    &cp,
		controller:  avatar3d.NewController(float32(cp.Face.SmoothingFactor)),
		mapper:      cp.MapperConfig(),
	}
}

// SetStateHandler sets the callback for state changes
func (s *Session) SetStateHandler(handler func(State)) {
	s.mu.Lock()
	s.onStateChange = handler
	s.mu.Unlock()
}

// Activate snapshots the settings, starts the configured source and then
// installs a freshly reset registry. A failed activation holds nothing and
// leaves influences at their last values.
func (s *Session) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.src.kind != sourceNone {
		s.mu.Unlock()
		return nil
	}
	err := s.activateLocked(ctx, time.Now())
	s.lastErr = err
	state := s.stateLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("mode", state.Mode).Msg("Activation failed")
		s.publish(bus.EventTypeSessionError, map[string]any{"error": err.Error(), "mode": state.Mode})
	} else {
		s.logger.Info().Str("session", state.ID).Str("mode", state.Mode).Int("meshes", state.Meshes).Msg("Session activated")
		s.publish(bus.EventTypeSessionActivated, map[string]any{"session": state.ID, "mode": state.Mode})
		metrics.SessionActive.Set(1)
	}
	s.notify(state)
	return err
}

func (s *Session) activateLocked(ctx context.Context, now time.Time) error {
	if !s.settings.Session.Enabled {
		return ErrDisabled
	}
	if s.device == nil {
		return ErrNoDevice
	}

	cfg := *s.settings
	// Resolved now, committed only once the source is live, so a failed
	// activation leaves the last pose on the mesh.
	reg := avatar3d.ResolveRegistry(s.graph, cfg.Face.VendorPrefix)

	switch cfg.Session.Mode {
	case config.ModeLocal:
		ext := audio.NewFeatureExtractor(s.device, cfg.AnalysisConfig(), s.eventBus, s.logger)
		if err := ext.Start(ctx); err != nil {
			return err
		}
		s.src = source{kind: sourceLocal, local: ext}

	case config.ModeRemote:
		preset, err := remote.ParsePreset(cfg.Remote.ModelPreset)
		if err != nil {
			return err
		}
		var names *remote.NameTable
		if cfg.Remote.NameTable != "" {
			names, err = remote.LoadNameTable(cfg.Remote.NameTable)
			if err != nil {
				return fmt.Errorf("load name table: %w", err)
			}
		}
		inferrer := s.newInferrer(cfg.Remote, preset.ModelID(), s.logger)
		src := remote.NewSource(s.device, inferrer, names, cfg.SourceConfig(), s.eventBus, s.logger)
		if err := src.Start(ctx, now); err != nil {
			return err
		}
		s.src = source{kind: sourceRemote, remote: src}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Session.Mode)
	}

	reg.Reset()
	s.installLocked(reg)
	s.controller.SetSmoothing(float32(cfg.Face.SmoothingFactor))
	s.mapper = cfg.MapperConfig()

	s.active = &cfg
	s.id = uuid.NewString()
	s.seq = 0
	s.speaking = false
	return nil
}

// Deactivate stops the source and releases everything it held. Influences
// keep their last values.
func (s *Session) Deactivate() {
	s.mu.Lock()
	if s.src.kind == sourceNone {
		s.mu.Unlock()
		return
	}
	id := s.id
	s.src.stop()
	s.src = source{}
	s.active = nil
	s.id = ""
	s.speaking = false
	state := s.stateLocked()
	s.mu.Unlock()

	metrics.SessionActive.Set(0)
	metrics.Speaking.Set(0)
	s.logger.Info().Str("session", id).Msg("Session deactivated")
	s.publish(bus.EventTypeSessionDeactivated, map[string]any{"session": id})
	s.notify(state)
}

// SetModel installs the model graph. The registry is rebuilt only when the
// identity changes.
func (s *Session) SetModel(graph avatar3d.MeshGraph) {
	s.mu.Lock()
	if graph == s.graph {
		s.mu.Unlock()
		return
	}
	s.graph = graph
	prefix := s.settings.Face.VendorPrefix
	if s.active != nil {
		prefix = s.active.Face.VendorPrefix
	}
	s.rebuildLocked(prefix)
	meshes := s.controller.Registry().Len()
	s.mu.Unlock()

	s.publish(bus.EventTypeModelChanged, map[string]any{"meshes": meshes})
}

func (s *Session) rebuildLocked(prefix string) {
	s.installLocked(avatar3d.BuildRegistry(s.graph, prefix))
}

func (s *Session) installLocked(reg *avatar3d.Registry) {
	s.controller.SetRegistry(reg)
	metrics.RegistryMeshes.Set(float64(reg.Len()))
	s.logger.Debug().Int("meshes", reg.Len()).Str("prefix", reg.Prefix()).Msg("Registry rebuilt")
	s.publish(bus.EventTypeRegistryRebuilt, map[string]any{"meshes": reg.Len()})
}

// Tick runs one sample, map, smooth and write cycle. It reports whether
// influences were written.
func (s *Session) Tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src.kind == sourceNone || !s.src.initialized() {
		return false
	}
	metrics.Ticks.Inc()

	var target avatar3d.Frame
	var speaking bool

	switch s.src.kind {
	case sourceLocal:
		sample := s.src.local.Sample()
		speaking = sample.IsSpeaking
		target = avatar3d.MapWith(sample, s.mapper, s.rnd)
	case sourceRemote:
		res := s.src.remote.Tick(now)
		speaking = res.Speaking
		if res.HasFrame {
			target = res.Frame
		} else {
			target = avatar3d.MapWith(avatar3d.AudioSample{}, s.mapper, s.rnd)
		}
	}

	if speaking != s.speaking {
		s.speaking = speaking
		if speaking {
			metrics.Speaking.Set(1)
		} else {
			metrics.Speaking.Set(0)
		}
	}

	if !s.controller.Apply(target) {
		return false
	}
	s.seq++
	metrics.FramesApplied.WithLabelValues(s.src.kind.String()).Inc()
	return true
}

// Snapshot copies the current influences.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Session:  s.id,
		Seq:      s.seq,
		Mode:     s.src.kind.String(),
		Speaking: s.speaking,
		Meshes:   s.controller.Registry().Snapshot(),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		ID:          s.id,
		Enabled:     s.settings.Session.Enabled,
		Mode:        s.settings.Session.Mode,
		Active:      s.src.kind != sourceNone,
		Initialized: s.src.initialized(),
		Speaking:    s.speaking,
		Meshes:      s.controller.Registry().Len(),
	}
	if s.active != nil {
		st.Mode = s.active.Session.Mode
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Registry returns the registry in use
func (s *Session) Registry() *avatar3d.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.Registry()
}

// RemoteStats returns chunk counters while a remote source is active.
func (s *Session) RemoteStats() (remote.Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src.kind != sourceRemote {
		return remote.Stats{}, false
	}
	return s.src.remote.Stats(), true
}

// Settings returns a copy of the pending configuration.
func (s *Session) Settings() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.settings
}

// SetEnabled activates or deactivates the session.
func (s *Session) SetEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	s.settings.Session.Enabled = enabled
	s.mu.Unlock()
	s.settingsChanged("enabled")

	if !enabled {
		s.Deactivate()
		return nil
	}
	return s.Activate(ctx)
}

// SetMode selects local or remote. It applies on the next activation.
func (s *Session) SetMode(mode string) error {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != config.ModeLocal && mode != config.ModeRemote {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	s.mu.Lock()
	s.settings.Session.Mode = mode
	s.mu.Unlock()
	s.settingsChanged("mode")
	return nil
}

// SetCredential stores the remote credential. It applies on the next
// activation.
func (s *Session) SetCredential(credential string) {
	s.mu.Lock()
	s.settings.Remote.Credential = strings.TrimSpace(credential)
	s.mu.Unlock()
	s.settingsChanged("credential")
}

// SetModelPreset selects the remote model. It applies on the next
// activation.
func (s *Session) SetModelPreset(name string) error {
	preset, err := remote.ParsePreset(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.settings.Remote.ModelPreset = string(preset)
	s.mu.Unlock()
	s.settingsChanged("model_preset")
	return nil
}

// UpdateConfig replaces the pending configuration, keeping the enabled flag
// and any credential set at runtime.
func (s *Session) UpdateConfig(cfg *config.Config) {
	cp := *cfg
	s.mu.Lock()
	cp.Session.Enabled = s.settings.Session.Enabled
	if cp.Remote.Credential == "" {
		cp.Remote.Credential = s.settings.Remote.Credential
	}
	s.settings = &cp
	s.mu.Unlock()
	s.settingsChanged("config")
}

func (s *Session) settingsChanged(field string) {
	s.logger.Debug().Str("field", field).Msg("Settings changed, applies on next activation")
	s.publish(bus.EventTypeSettingsChanged, map[string]any{"field": field})
}

func (s *Session) notify(state State) {
	s.mu.Lock()
	handler := s.onStateChange
	s.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

func (s *Session) publish(t bus.EventType, data map[string]any) {
	if s.eventBus != nil {
		s.eventBus.Publish(bus.Event{Type: t, Data: data})
	}
}
