package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/normanking/audioface/internal/config"
	"github.com/normanking/audioface/internal/remote"
	"github.com/normanking/audioface/internal/session"
	"github.com/rs/zerolog"
)

// SettingsData represents the runtime-configurable settings
type SettingsData struct {
	Enabled       bool     `json:"enabled"`
	Mode          string   `json:"mode"`
	HasCredential bool     `json:"hasCredential"`
	ModelPreset   string   `json:"modelPreset"`
	Presets       []string `json:"presets"`
	Active        bool     `json:"active"`
	ActiveMode    string   `json:"activeMode,omitempty"`
}

// SettingsUpdate carries the fields a client wants to change
type SettingsUpdate struct {
	Mode        *string `json:"mode,omitempty"`
	Credential  *string `json:"credential,omitempty"`
	ModelPreset *string `json:"modelPreset,omitempty"`
}

type audioToggle struct {
	Enabled bool `json:"enabled"`
}

// Persister stores settings across restarts
type Persister interface {
	Save(cfg *config.Config) error
}

// SettingsBridge exposes session settings over JSON
type SettingsBridge struct {
	session *session.Session
	store   Persister
	logger  zerolog.Logger
}

// NewSettingsBridge creates a settings bridge. store may be nil.
func NewSettingsBridge(s *session.Session, store Persister, logger zerolog.Logger) *SettingsBridge {
	return &SettingsBridge{
		session: s,
		store:   store,
		logger:  logger.With().Str("component", "settings").Logger(),
	}
}

// GetSettings returns current settings
func (b *SettingsBridge) GetSettings() SettingsData {
	cfg := b.session.Settings()
	state := b.session.State()

	presets := remote.Presets()
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = string(p)
	}

	data := SettingsData{
		Enabled:       cfg.Session.Enabled,
		Mode:          cfg.Session.Mode,
		HasCredential: cfg.Remote.Credential != "",
		ModelPreset:   cfg.Remote.ModelPreset,
		Presets:       names,
		Active:        state.Active,
	}
	if state.Active {
		data.ActiveMode = state.Mode
	}
	return data
}

// SaveSettings applies and persists an update. Changes take effect on the
// next activation.
func (b *SettingsBridge) SaveSettings(u SettingsUpdate) error {
	if u.Mode != nil {
		if err := b.session.SetMode(*u.Mode); err != nil {
			return err
		}
	}
	if u.ModelPreset != nil {
		if err := b.session.SetModelPreset(*u.ModelPreset); err != nil {
			return err
		}
	}
	if u.Credential != nil {
		b.session.SetCredential(*u.Credential)
	}

	if b.store == nil {
		return nil
	}
	cfg := b.session.Settings()
	if err := b.store.Save(&cfg); err != nil {
		b.logger.Error().Err(err).Msg("Failed to save settings")
		return err
	}
	b.logger.Info().Msg("Settings saved")
	return nil
}

// SetAudioEnabled toggles the session
func (b *SettingsBridge) SetAudioEnabled(ctx context.Context, enabled bool) error {
	return b.session.SetEnabled(ctx, enabled)
}

func (b *SettingsBridge) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, b.GetSettings())

	case http.MethodPut:
		var u SettingsUpdate
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := b.SaveSettings(u); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrUnknownMode) || errors.Is(err, remote.ErrUnknownPreset) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, b.GetSettings())

	default:
		w.Header().Set("Allow", "GET, PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *SettingsBridge) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var t audioToggle
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Activation outlives the request.
	if err := b.SetAudioEnabled(context.Background(), t.Enabled); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, b.session.State())
}

func (b *SettingsBridge) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.session.State())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
