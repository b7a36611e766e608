package notify

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Preferences are the user's notification settings, persisted client-local:
// read at startup, written on save. Nothing about them lives on any server.
type Preferences struct {
	Enabled bool  `yaml:"enabled"`
	Volume  int   `yaml:"volume"`
	Sound   Sound `yaml:"sound"`
}

// DefaultPreferences: enabled, 80% volume, default sound.
func DefaultPreferences() Preferences {
	return Preferences{Enabled: true, Volume: 80, Sound: SoundDefault}
}

// normalized clamps volume into [0,100] and falls back to the default sound
// for unknown enum values.
func (p Preferences) normalized() Preferences {
	if p.Volume < 0 {
		p.Volume = 0
	}
	if p.Volume > 100 {
		p.Volume = 100
	}
	switch p.Sound {
	case SoundDefault, SoundChime, SoundBell:
	default:
		p.Sound = SoundDefault
	}
	return p
}

// LoadPreferences reads preferences from path. A missing or unreadable file
// yields the defaults; a broken file is an error so a typo does not silently
// reset settings.
func LoadPreferences(path string) (Preferences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPreferences(), nil
		}
		return DefaultPreferences(), fmt.Errorf("notify: read prefs: %w", err)
	}
	p := DefaultPreferences()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return DefaultPreferences(), fmt.Errorf("notify: parse prefs: %w", err)
	}
	return p.normalized(), nil
}

// SavePreferences writes preferences to path, creating parent directories.
func SavePreferences(path string, p Preferences) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("notify: prefs dir: %w", err)
	}
	data, err := yaml.Marshal(p.normalized())
	if err != nil {
		return fmt.Errorf("notify: marshal prefs: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("notify: write prefs: %w", err)
	}
	return nil
}

// DefaultPreferencesPath is the per-user settings file location.
func DefaultPreferencesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "livechat", "notifications.yaml")
}
