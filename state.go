package ezredirect

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"
)

// State owns the redirect configuration and presets for the whole process.
// Every operation runs under one mutex; mutations are written through to the
// Store inside the same critical section and rolled back in memory when the
// write fails.
type State struct {
	mu      sync.Mutex
	cfg     Config
	presets *Presets
	store   Store
	journal *Journal
	now     func() time.Time

	// dirty is set when the revert inside Effective could not be persisted;
	// the next successful save clears it.
	dirty bool
}

// NewState loads config and presets from the store. Missing files surface as
// the store's defaults, not as errors.
func NewState(store Store) (*State, error) {
	cfg, err := store.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	presets, err := store.LoadPresets()
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	return &State{
		cfg:     cfg,
		presets: presets,
		store:   store,
		now:     time.Now,
	}, nil
}

// SetJournal attaches an optional change journal. Journal writes are
// best-effort and never fail the operation that triggered them.
func (s *State) SetJournal(j *Journal) {
	s.mu.Lock()
	s.journal = j
	s.mu.Unlock()
}

func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// Effective returns the current redirect target with expiry already
// resolved: when the deadline has passed the target reverts to the default
// and the pending expiry is cleared. Expiry is evaluated here, on access;
// there is no background timer.
func (s *State) Effective() (string, *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveLocked()
}

func (s *State) effectiveLocked() (string, *time.Time) {
	if s.cfg.ExpiresAt != nil && !s.now().Before(*s.cfg.ExpiresAt) {
		s.cfg.CurrentURL = s.cfg.DefaultURL
		s.cfg.ExpiresAt = nil
		// The revert must hold in memory even if the disk write fails;
		// the next successful mutation rewrites the file.
		if err := s.store.SaveConfig(s.cfg); err != nil {
			s.dirty = true
			log.Printf("persisting expiry revert failed: %v", err)
		} else {
			s.dirty = false
		}
		s.record(JournalRevert, s.cfg.CurrentURL, "", nil)
	}
	return s.cfg.CurrentURL, s.cfg.ExpiresAt
}

// Info returns the externally visible snapshot, resolving expiry first.
func (s *State) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, expires := s.effectiveLocked()
	return Info{
		CurrentURL:  current,
		DefaultURL:  s.cfg.DefaultURL,
		ExpiresAt:   expires,
		IsTemporary: expires != nil,
	}
}

// SetCurrent makes url the permanent redirect target, cancelling any pending
// temporary override.
func (s *State) SetCurrent(rawURL string) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	s.cfg.CurrentURL = rawURL
	s.cfg.ExpiresAt = nil
	if err := s.saveConfig(prev); err != nil {
		return err
	}
	s.record(JournalSet, rawURL, "", nil)
	return nil
}

// SetTemporary makes url the redirect target until now+d, after which the
// target reverts to the default. A later temporary set supersedes an earlier
// one. Returns the expiry deadline.
func (s *State) SetTemporary(rawURL string, d time.Duration) (time.Time, error) {
	if err := validateURL(rawURL); err != nil {
		return time.Time{}, err
	}
	if d <= 0 {
		return time.Time{}, ErrInvalidDuration
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setTemporaryLocked(rawURL, d, "")
}

func (s *State) setTemporaryLocked(rawURL string, d time.Duration, preset string) (time.Time, error) {
	expires := s.now().Add(d).UTC()
	prev := s.cfg
	s.cfg.CurrentURL = rawURL
	s.cfg.ExpiresAt = &expires
	if err := s.saveConfig(prev); err != nil {
		return time.Time{}, err
	}
	kind := JournalTemp
	if preset != "" {
		kind = JournalPreset
	}
	s.record(kind, rawURL, preset, &expires)
	return expires, nil
}

// SetDefault changes the fallback target only. The current target and any
// pending expiry are left alone; default and current stay independent until
// the override expires or is replaced.
func (s *State) SetDefault(rawURL string) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	s.cfg.DefaultURL = rawURL
	return s.saveConfig(prev)
}

// ActivatePreset makes the named preset's URL the permanent redirect target.
func (s *State) ActivatePreset(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.presets.Get(name)
	if !ok {
		return "", ErrPresetNotFound
	}
	prev := s.cfg
	s.cfg.CurrentURL = target
	s.cfg.ExpiresAt = nil
	if err := s.saveConfig(prev); err != nil {
		return "", err
	}
	s.record(JournalPreset, target, name, nil)
	return target, nil
}

// ActivatePresetTemporary activates the named preset for duration d, after
// which the target reverts to the default.
func (s *State) ActivatePresetTemporary(name string, d time.Duration) (string, time.Time, error) {
	if d <= 0 {
		return "", time.Time{}, ErrInvalidDuration
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.presets.Get(name)
	if !ok {
		return "", time.Time{}, ErrPresetNotFound
	}
	expires, err := s.setTemporaryLocked(target, d, name)
	if err != nil {
		return "", time.Time{}, err
	}
	return target, expires, nil
}

// SetPreset creates the preset or overwrites its URL, keeping its display
// position when it already exists.
func (s *State) SetPreset(name, rawURL string) error {
	if name == "" {
		return ErrInvalidName
	}
	if err := validateURL(rawURL); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.presets.clone()
	s.presets.Set(name, rawURL)
	return s.savePresets(prev)
}

// DeletePreset removes the preset. The current redirect target is never
// touched, even when it points at the deleted preset's URL.
func (s *State) DeletePreset(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.presets.clone()
	if !s.presets.Delete(name) {
		return ErrPresetNotFound
	}
	return s.savePresets(prev)
}

// RenamePreset changes a preset's name, preserving its display position.
func (s *State) RenamePreset(oldName, newName string) error {
	if newName == "" {
		return ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.presets.clone()
	if !s.presets.Rename(oldName, newName) {
		return ErrPresetNotFound
	}
	return s.savePresets(prev)
}

// PresetNames returns the preset names in display order.
func (s *State) PresetNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presets.Names()
}

// PresetsSnapshot returns a copy of the collection for read-only use.
func (s *State) PresetsSnapshot() *Presets {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presets.clone()
}

// Port returns the configured listen port for the HTTP layer.
func (s *State) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Port
}

// SetPort persists a new listen port. The running server keeps its socket;
// the new value takes effect on the next restart.
func (s *State) SetPort(port int) error {
	if port < 1 || port > 65535 {
		return ErrInvalidPort
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	s.cfg.Port = port
	return s.saveConfig(prev)
}

// SetAPIKeyEnabled toggles key auth. Enabling requires a key: either the one
// supplied here or one stored earlier; with neither, ErrMissingAPIKey.
// Disabling clears the stored key.
func (s *State) SetAPIKeyEnabled(enabled bool, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	if enabled {
		if key != "" {
			s.cfg.APIKey = key
		}
		if s.cfg.APIKey == "" {
			return ErrMissingAPIKey
		}
		s.cfg.APIKeyEnabled = true
	} else {
		s.cfg.APIKeyEnabled = false
		s.cfg.APIKey = ""
	}
	return s.saveConfig(prev)
}

// SetAPIKey stores a caller-supplied key without changing the enabled flag.
func (s *State) SetAPIKey(key string) error {
	if key == "" {
		return ErrMissingAPIKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	s.cfg.APIKey = key
	return s.saveConfig(prev)
}

// RegenerateAPIKey replaces the stored key with a random one and returns it.
// This is the only operation that hands the key back to the caller.
func (s *State) RegenerateAPIKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	key := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	s.cfg.APIKey = key
	if err := s.saveConfig(prev); err != nil {
		return "", err
	}
	return key, nil
}

// Authorize decides whether a caller-provided key grants access. With key
// auth disabled everything is allowed; with it enabled only the exact stored
// key passes. The comparison is constant-time.
func (s *State) Authorize(providedKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.APIKeyEnabled {
		return true
	}
	if s.cfg.APIKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(providedKey), []byte(s.cfg.APIKey)) == 1
}

// SecurityStatus reports whether key auth is enabled. The key itself is
// never included.
func (s *State) SecurityStatus() SecurityStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SecurityStatus{Enabled: s.cfg.APIKeyEnabled}
}

// Reload replaces the in-memory state with whatever is on disk. Called by
// the file watcher when an external writer edits the JSON files. The reads
// happen under the lock, like every other store access: a reload must never
// interleave with a mutation and clobber it with stale data.
func (s *State) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.store.LoadConfig()
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	presets, err := s.store.LoadPresets()
	if err != nil {
		return fmt.Errorf("reload presets: %w", err)
	}
	s.cfg = cfg
	s.presets = presets
	s.dirty = false
	return nil
}

// saveConfig writes the config through to the store, restoring prev in
// memory when the write fails. Callers must hold s.mu.
func (s *State) saveConfig(prev Config) error {
	if err := s.store.SaveConfig(s.cfg); err != nil {
		s.cfg = prev
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.dirty = false
	return nil
}

// savePresets mirrors saveConfig for the preset collection, and also flushes
// a config revert that previously failed to persist.
func (s *State) savePresets(prev *Presets) error {
	if err := s.store.SavePresets(s.presets); err != nil {
		s.presets = prev
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if s.dirty {
		if err := s.store.SaveConfig(s.cfg); err != nil {
			log.Printf("retrying config write failed: %v", err)
		} else {
			s.dirty = false
		}
	}
	return nil
}

// record appends to the journal if one is attached. Callers must hold s.mu.
func (s *State) record(kind string, url, preset string, expires *time.Time) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(kind, url, preset, expires, s.now()); err != nil {
		log.Printf("journal append failed: %v", err)
	}
}
