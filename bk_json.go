package ezredirect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// Defaults used when the data directory is empty or a file is partial.
	DefaultURL  = "https://example.com"
	DefaultPort = 8000
)

// configFile is the on-disk shape of config.json.
type configFile struct {
	DefaultURL    string     `json:"default_url"`
	CurrentURL    string     `json:"current_url"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Port          int        `json:"port"`
	APIKeyEnabled bool       `json:"api_key_enabled"`
	APIKey        *string    `json:"api_key"`
}

type fileStore struct {
	configPath  string
	presetsPath string
}

// NewFileStore returns a Store over config.json and presets.json inside dir,
// creating dir if needed. Missing files are not an error; loads fall back to
// defaults and the first save creates them.
func NewFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &fileStore{
		configPath:  filepath.Join(dir, "config.json"),
		presetsPath: filepath.Join(dir, "presets.json"),
	}, nil
}

func (f *fileStore) LoadConfig() (Config, error) {
	cfg := Config{
		DefaultURL: DefaultURL,
		CurrentURL: DefaultURL,
		Port:       DefaultPort,
	}
	raw, err := os.ReadFile(f.configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	var file configFile
	if err = json.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", f.configPath, err)
	}

	if file.DefaultURL != "" {
		cfg.DefaultURL = file.DefaultURL
	}
	if file.CurrentURL != "" {
		cfg.CurrentURL = file.CurrentURL
	} else {
		cfg.CurrentURL = cfg.DefaultURL
	}
	if file.ExpiresAt != nil {
		t := file.ExpiresAt.UTC()
		cfg.ExpiresAt = &t
	}
	// an externally edited port outside the valid range falls back, like a
	// missing one
	if file.Port >= 1 && file.Port <= 65535 {
		cfg.Port = file.Port
	}
	cfg.APIKeyEnabled = file.APIKeyEnabled
	if file.APIKey != nil {
		cfg.APIKey = *file.APIKey
	}
	return cfg, nil
}

func (f *fileStore) SaveConfig(cfg Config) error {
	file := configFile{
		DefaultURL:    cfg.DefaultURL,
		CurrentURL:    cfg.CurrentURL,
		Port:          cfg.Port,
		APIKeyEnabled: cfg.APIKeyEnabled,
	}
	if cfg.ExpiresAt != nil {
		t := cfg.ExpiresAt.UTC()
		file.ExpiresAt = &t
	}
	if cfg.APIKey != "" {
		file.APIKey = &cfg.APIKey
	}
	return writeJSON(f.configPath, file)
}

func (f *fileStore) LoadPresets() (*Presets, error) {
	raw, err := os.ReadFile(f.presetsPath)
	if os.IsNotExist(err) {
		return NewPresets(), nil
	}
	if err != nil {
		return nil, err
	}
	p := NewPresets()
	if err = json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.presetsPath, err)
	}
	return p, nil
}

func (f *fileStore) SavePresets(p *Presets) error {
	return writeJSON(f.presetsPath, p)
}

// writeJSON writes to a temp file in the same directory and renames it over
// the target, so readers never see a torn file.
func writeJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ezr-*")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
