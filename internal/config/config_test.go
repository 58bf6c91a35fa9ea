package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromCreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	m, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))

	cfg := m.Config()
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 100*time.Millisecond, cfg.Remote.RestartDelay)
	assert.Equal(t, "MARK", cfg.Remote.ModelPreset)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadFrom(dir)
	require.NoError(t, err)

	cfg := m.Config()
	cfg.Session.Mode = ModeRemote
	cfg.Remote.ModelPreset = "CLAIRE"
	cfg.Face.SmoothingFactor = 0.5
	cfg.Remote.ChunkDuration = 3 * time.Second
	require.NoError(t, m.Save(cfg))

	again, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, again.Config())
}

func TestEnvironmentOverridesCredential(t *testing.T) {
	t.Setenv("AUDIOFACE_REMOTE_CREDENTIAL", "nvapi-test")
	t.Setenv("AUDIOFACE_SESSION_MODE", "remote")

	m, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	cfg := m.Config()
	assert.Equal(t, "nvapi-test", cfg.Remote.Credential)
	assert.Equal(t, ModeRemote, cfg.Session.Mode)
}

func TestSaveKeepsCredentialPrivate(t *testing.T) {
	t.Setenv("NVIDIA_API_KEY", "nvapi-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  mode: remote\n"), 0644))

	m, err := LoadFrom(dir)
	require.NoError(t, err)
	cfg := m.Config()
	require.Equal(t, "nvapi-env", cfg.Remote.Credential)

	require.NoError(t, m.Save(cfg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "nvapi-env", "environment credential is not written")
	assert.Equal(t, "nvapi-env", m.Config().Remote.Credential)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	cfg.Remote.Credential = "nvapi-typed"
	require.NoError(t, m.Save(cfg))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "nvapi-typed")
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("face:\n  smoothing_factor: 1.5\n"), 0644))

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smoothing_factor")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"smoothing above one", func(c *Config) { c.Face.SmoothingFactor = 1.01 }, "smoothing_factor"},
		{"smoothing negative", func(c *Config) { c.Face.SmoothingFactor = -0.1 }, "smoothing_factor"},
		{"smoothing bounds allowed", func(c *Config) { c.Face.SmoothingFactor = 1 }, ""},
		{"max below base", func(c *Config) { c.Face.MaxMouthOpen = 0.05 }, "max_mouth_open"},
		{"zero chunk", func(c *Config) { c.Remote.ChunkDuration = 0 }, "chunk_duration"},
		{"zero restart allowed", func(c *Config) { c.Remote.RestartDelay = 0 }, ""},
		{"unknown preset", func(c *Config) { c.Remote.ModelPreset = "BOB" }, "model_preset"},
		{"unknown mode", func(c *Config) { c.Session.Mode = "hybrid" }, "session.mode"},
		{"zero tick rate", func(c *Config) { c.Session.TickRate = 0 }, "tick_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()

	mc := cfg.MapperConfig()
	assert.InDelta(t, 0.8, mc.VolumeSensitivity, 1e-6)
	assert.InDelta(t, 0.7, mc.MaxMouthOpen, 1e-6)

	ac := cfg.AnalysisConfig()
	assert.Equal(t, 2048, ac.FFTSize)
	assert.Equal(t, -65.0, ac.VAD.ThresholdDB)

	sc := cfg.SourceConfig()
	assert.Equal(t, 2*time.Second, sc.ChunkDuration)
	assert.InDelta(t, 0.05, sc.SpeakingVolumeThreshold, 1e-6)
	assert.Equal(t, "NVIDIA_blendshape_", sc.VendorPrefix)
}
