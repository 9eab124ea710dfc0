package camera

import (
	"fmt"
	"sync"
)

// Update is a partial change sent by the camera API. A preset is applied
// first, then any non-nil field on top of it.
type Update struct {
	Preset    string   `json:"preset,omitempty"`
	DeviceID  *int     `json:"device_id,omitempty"`
	Width     *int     `json:"width,omitempty"`
	Height    *int     `json:"height,omitempty"`
	Framerate *int     `json:"framerate,omitempty"`
	Exposure  *float64 `json:"exposure,omitempty"`
}

// Manager holds the current camera configuration and handles updates.
type Manager struct {
	mu     sync.RWMutex
	config Config

	// OnConfigChange applies a new config to the device. The manager only
	// keeps the config when it returns nil.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a new camera manager with the given config.
// An invalid config falls back to DefaultConfig.
func NewManager(cfg Config) *Manager {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	return &Manager{config: cfg}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates cfg, applies it through OnConfigChange and stores it.
func (m *Manager) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OnConfigChange != nil {
		if err := m.OnConfigChange(cfg); err != nil {
			return fmt.Errorf("camera: apply config: %w", err)
		}
	}
	m.config = cfg
	return nil
}

// Apply merges u into the current config and sets the result.
func (m *Manager) Apply(u Update) (Config, error) {
	cfg := m.GetConfig()

	if u.Preset != "" {
		preset := GetPreset(u.Preset)
		if preset == nil {
			return cfg, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, u.Preset)
		}
		// Presets describe a mode, not a device
		preset.DeviceID = cfg.DeviceID
		cfg = *preset
	}

	if u.DeviceID != nil {
		cfg.DeviceID = *u.DeviceID
	}
	if u.Width != nil {
		cfg.Width = *u.Width
	}
	if u.Height != nil {
		cfg.Height = *u.Height
	}
	if u.Framerate != nil {
		cfg.Framerate = *u.Framerate
	}
	if u.Exposure != nil {
		cfg.Exposure = *u.Exposure
	}

	if err := m.SetConfig(cfg); err != nil {
		return m.GetConfig(), err
	}
	return cfg, nil
}
