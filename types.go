package ezredirect

import (
	"errors"
	"time"
)

// Config is the single persisted redirect configuration. CurrentURL is what
// the /redirect endpoint answers with before expiry is resolved; ExpiresAt is
// non-nil only while a temporary override is pending.
type Config struct {
	DefaultURL    string
	CurrentURL    string
	ExpiresAt     *time.Time
	Port          int
	APIKeyEnabled bool
	APIKey        string
}

// Info is the externally visible snapshot of the redirect state.
// It never carries the API key.
type Info struct {
	CurrentURL  string     `json:"current_url"`
	DefaultURL  string     `json:"default_url"`
	ExpiresAt   *time.Time `json:"expires_at"`
	IsTemporary bool       `json:"is_temporary"`
}

// SecurityStatus reports only whether key auth is on.
type SecurityStatus struct {
	Enabled bool `json:"enabled"`
}

type Store interface {
	LoadConfig() (Config, error)
	SaveConfig(cfg Config) error
	LoadPresets() (*Presets, error)
	SavePresets(p *Presets) error
}

var (
	ErrInvalidURL      = errors.New("invalid url")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidPort     = errors.New("invalid port")
	ErrInvalidName     = errors.New("invalid name")
	ErrPresetNotFound  = errors.New("preset not found")
	ErrMissingAPIKey   = errors.New("missing api key")
	ErrPersistence     = errors.New("persistence failure")
)

// IsPresetNotFound reports whether err is an unknown-preset condition.
func IsPresetNotFound(err error) bool { return errors.Is(err, ErrPresetNotFound) }

// IsPersistence reports whether err came from the storage layer.
func IsPersistence(err error) bool { return errors.Is(err, ErrPersistence) }
