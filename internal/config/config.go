// Package config provides configuration management for audioface
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/normanking/audioface/internal/audio"
	"github.com/normanking/audioface/internal/avatar3d"
	"github.com/normanking/audioface/internal/remote"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Config holds all application configuration
type Config struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Face    FaceConfig    `mapstructure:"face" yaml:"face"`
	Remote  RemoteConfig  `mapstructure:"remote" yaml:"remote"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Model   ModelConfig   `mapstructure:"model" yaml:"model"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// AudioConfig configures capture and analysis
type AudioConfig struct {
	Source         string        `mapstructure:"source" yaml:"source"` // WAV file played as the input device
	Loop           bool          `mapstructure:"loop" yaml:"loop"`
	FrameSize      int           `mapstructure:"frame_size" yaml:"frame_size"`
	FFTSize        int           `mapstructure:"fft_size" yaml:"fft_size"`
	Smoothing      float64       `mapstructure:"smoothing" yaml:"smoothing"`
	MinDecibels    float64       `mapstructure:"min_decibels" yaml:"min_decibels"`
	MaxDecibels    float64       `mapstructure:"max_decibels" yaml:"max_decibels"`
	VADThresholdDB float64       `mapstructure:"vad_threshold_db" yaml:"vad_threshold_db"`
	VADInterval    time.Duration `mapstructure:"vad_interval" yaml:"vad_interval"`
}

// FaceConfig configures mapping and smoothing
type FaceConfig struct {
	VolumeSensitivity float64 `mapstructure:"volume_sensitivity" yaml:"volume_sensitivity"`
	PitchSensitivity  float64 `mapstructure:"pitch_sensitivity" yaml:"pitch_sensitivity"`
	BaseMouthOpen     float64 `mapstructure:"base_mouth_open" yaml:"base_mouth_open"`
	MaxMouthOpen      float64 `mapstructure:"max_mouth_open" yaml:"max_mouth_open"`
	SmoothingFactor   float64 `mapstructure:"smoothing_factor" yaml:"smoothing_factor"` // 0-1, fraction of the gap closed per tick
	VendorPrefix      string  `mapstructure:"vendor_prefix" yaml:"vendor_prefix"`
}

// RemoteConfig configures the hosted inference service
type RemoteConfig struct {
	Endpoint                string        `mapstructure:"endpoint" yaml:"endpoint"`
	Credential              string        `mapstructure:"credential" yaml:"credential"`
	ModelPreset             string        `mapstructure:"model_preset" yaml:"model_preset"` // MARK, CLAIRE, JAMES
	ChunkDuration           time.Duration `mapstructure:"chunk_duration" yaml:"chunk_duration"`
	RestartDelay            time.Duration `mapstructure:"restart_delay" yaml:"restart_delay"`
	SpeakingVolumeThreshold float64       `mapstructure:"speaking_volume_threshold" yaml:"speaking_volume_threshold"`
	Timeout                 time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NameTable               string        `mapstructure:"name_table" yaml:"name_table"`
	EmotionType             string        `mapstructure:"emotion_type" yaml:"emotion_type"`
	EmotionIntensity        float64       `mapstructure:"emotion_intensity" yaml:"emotion_intensity"`
}

// SessionConfig configures the animation session
type SessionConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Mode     string `mapstructure:"mode" yaml:"mode"` // local or remote
	TickRate int    `mapstructure:"tick_rate" yaml:"tick_rate"`
}

// ServerConfig configures the HTTP control and feed server
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// ModelConfig points at the character model
type ModelConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

// LogConfig configures logging
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			Loop:           true,
			FrameSize:      512,
			FFTSize:        2048,
			Smoothing:      0.8,
			MinDecibels:    -100,
			MaxDecibels:    -30,
			VADThresholdDB: -65,
			VADInterval:    50 * time.Millisecond,
		},
		Face: FaceConfig{
			VolumeSensitivity: 0.8,
			PitchSensitivity:  0.5,
			BaseMouthOpen:     0.1,
			MaxMouthOpen:      0.7,
			SmoothingFactor:   0.3,
			VendorPrefix:      avatar3d.DefaultVendorPrefix,
		},
		Remote: RemoteConfig{
			Endpoint:                remote.DefaultEndpoint,
			ModelPreset:             string(remote.DefaultPreset),
			ChunkDuration:           2 * time.Second,
			RestartDelay:            100 * time.Millisecond,
			SpeakingVolumeThreshold: 0.05,
			Timeout:                 30 * time.Second,
			EmotionType:             "neutral",
			EmotionIntensity:        0.5,
		},
		Session: SessionConfig{
			Enabled:  true,
			Mode:     ModeLocal,
			TickRate: 60,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8765",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Validate checks ranges that would otherwise produce a broken session
func (c *Config) Validate() error {
	var errs []error

	if c.Face.SmoothingFactor < 0 || c.Face.SmoothingFactor > 1 {
		errs = append(errs, fmt.Errorf("face.smoothing_factor %v outside [0,1]", c.Face.SmoothingFactor))
	}
	if c.Face.MaxMouthOpen < c.Face.BaseMouthOpen {
		errs = append(errs, fmt.Errorf("face.max_mouth_open %v below base_mouth_open %v", c.Face.MaxMouthOpen, c.Face.BaseMouthOpen))
	}
	if c.Remote.ChunkDuration <= 0 {
		errs = append(errs, fmt.Errorf("remote.chunk_duration must be positive"))
	}
	if c.Remote.RestartDelay < 0 {
		errs = append(errs, fmt.Errorf("remote.restart_delay must not be negative"))
	}
	if _, err := remote.ParsePreset(c.Remote.ModelPreset); err != nil {
		errs = append(errs, fmt.Errorf("remote.model_preset: %w", err))
	}
	if c.Session.Mode != ModeLocal && c.Session.Mode != ModeRemote {
		errs = append(errs, fmt.Errorf("session.mode %q must be %q or %q", c.Session.Mode, ModeLocal, ModeRemote))
	}
	if c.Session.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("session.tick_rate must be positive"))
	}

	return errors.Join(errs...)
}

// AnalysisConfig converts the audio section for the audio package
func (c *Config) AnalysisConfig() *audio.AudioConfig {
	a := audio.DefaultAudioConfig()
	a.FrameSize = c.Audio.FrameSize
	a.FFTSize = c.Audio.FFTSize
	a.SmoothingTimeConstant = c.Audio.Smoothing
	a.MinDecibels = c.Audio.MinDecibels
	a.MaxDecibels = c.Audio.MaxDecibels
	a.VAD.ThresholdDB = c.Audio.VADThresholdDB
	if c.Audio.VADInterval > 0 {
		a.VAD.Interval = c.Audio.VADInterval
	}
	return a
}

// MapperConfig converts the face section for the mapper
func (c *Config) MapperConfig() avatar3d.MapperConfig {
	return avatar3d.MapperConfig{
		VolumeSensitivity: float32(c.Face.VolumeSensitivity),
		PitchSensitivity:  float32(c.Face.PitchSensitivity),
		BaseMouthOpen:     float32(c.Face.BaseMouthOpen),
		MaxMouthOpen:      float32(c.Face.MaxMouthOpen),
	}
}

// SourceConfig converts the remote section for the remote source
func (c *Config) SourceConfig() remote.SourceConfig {
	return remote.SourceConfig{
		ChunkDuration:           c.Remote.ChunkDuration,
		RestartDelay:            c.Remote.RestartDelay,
		SpeakingVolumeThreshold: float32(c.Remote.SpeakingVolumeThreshold),
		VendorPrefix:            c.Face.VendorPrefix,
		Audio:                   c.AnalysisConfig(),
	}
}

// Manager owns the viper instance backing one config file
type Manager struct {
	v   *viper.Viper
	dir string

	mu  sync.RWMutex
	cfg *Config
}

// Load reads configuration from the default directory and environment
func Load() (*Manager, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom reads config.yaml in dir, creating it with defaults if missing
func LoadFrom(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	// Environment variable overrides
	v.SetEnvPrefix("AUDIOFACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(append([]string{"remote.credential"}, credentialEnv...)...)
	_ = v.BindEnv("session.mode")
	_ = v.BindEnv("audio.source")
	_ = v.BindEnv("model.path")

	m := &Manager{v: v, dir: dir, cfg: DefaultConfig()}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// Config file not found, use defaults and create one
		if err := m.Save(m.cfg); err != nil {
			return nil, err
		}
	}

	cfg, err := m.decode()
	if err != nil {
		return nil, err
	}
	m.cfg = cfg
	return m, nil
}

func (m *Manager) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := m.v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Config returns a copy of the current configuration
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.cfg
	return &cp
}

// Dir returns the directory holding config.yaml
func (m *Manager) Dir() string {
	return m.dir
}

// credentialEnv lists the variables that supply the remote credential, in
// precedence order.
var credentialEnv = []string{"AUDIOFACE_REMOTE_CREDENTIAL", "NVIDIA_API_KEY"}

func envCredential() string {
	for _, key := range credentialEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// Save writes the configuration to file. A credential that came from the
// environment is not persisted, and the file is only readable by its owner.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return err
	}

	persisted := *cfg
	if env := envCredential(); env != "" && persisted.Remote.Credential == env {
		persisted.Remote.Credential = ""
	}

	data, err := yaml.Marshal(&persisted)
	if err != nil {
		return err
	}

	configPath := filepath.Join(m.dir, "config.yaml")
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(configPath, 0600); err != nil {
		return err
	}
	if err := m.v.ReadInConfig(); err != nil {
		return err
	}

	m.mu.Lock()
	cp := *cfg
	m.cfg = &cp
	m.mu.Unlock()
	return nil
}

// Watch reloads the file on change and hands the result to fn. Invalid
// edits are reported and leave the previous configuration in place.
func (m *Manager) Watch(fn func(*Config, error)) {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := m.decode()
		if err != nil {
			fn(nil, err)
			return
		}
		m.mu.Lock()
		m.cfg = cfg
		m.mu.Unlock()
		fn(cfg, nil)
	})
	m.v.WatchConfig()
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".audioface"), nil
}
