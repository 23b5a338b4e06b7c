package ezredirect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStore_Defaults(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal("failed on creating store.", err)
	}
	cfg, err := store.LoadConfig()
	if err != nil {
		t.Fatal("failed on load with no files.", err)
	}
	if cfg.DefaultURL != DefaultURL || cfg.CurrentURL != DefaultURL {
		t.Fatal("wrong default urls:", cfg)
	}
	if cfg.Port != DefaultPort || cfg.ExpiresAt != nil || cfg.APIKeyEnabled || cfg.APIKey != "" {
		t.Fatal("wrong defaults:", cfg)
	}
	p, err := store.LoadPresets()
	if err != nil {
		t.Fatal("failed on load presets.", err)
	}
	if p.Len() != 0 {
		t.Fatal("presets should start empty")
	}
}

func TestFileStore_ConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal("failed on creating store.", err)
	}
	expires := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	cfg := Config{
		DefaultURL:    "https://a.example",
		CurrentURL:    "https://b.example",
		ExpiresAt:     &expires,
		Port:          9000,
		APIKeyEnabled: true,
		APIKey:        "SECRET123",
	}
	if err = store.SaveConfig(cfg); err != nil {
		t.Fatal("failed on save.", err)
	}
	got, err := store.LoadConfig()
	if err != nil {
		t.Fatal("failed on load.", err)
	}
	if got.DefaultURL != cfg.DefaultURL || got.CurrentURL != cfg.CurrentURL ||
		got.Port != cfg.Port || got.APIKeyEnabled != cfg.APIKeyEnabled || got.APIKey != cfg.APIKey {
		t.Fatal("round trip mismatch:", got)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatal("expiry round trip mismatch:", got.ExpiresAt)
	}

	// no pending expiry and no key persist as JSON nulls
	cfg.ExpiresAt = nil
	cfg.APIKey = ""
	cfg.APIKeyEnabled = false
	if err = store.SaveConfig(cfg); err != nil {
		t.Fatal("failed on save.", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatal("failed on read config file.", err)
	}
	var onDisk map[string]interface{}
	if err = json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatal("config file is not valid json.", err)
	}
	if v, ok := onDisk["expires_at"]; !ok || v != nil {
		t.Fatal("expires_at should be null:", v)
	}
	if v, ok := onDisk["api_key"]; !ok || v != nil {
		t.Fatal("api_key should be null:", v)
	}
}

func TestFileStore_PartialConfig(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal("failed on creating store.", err)
	}
	raw := `{"default_url": "https://a.example"}`
	if err = os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0o644); err != nil {
		t.Fatal("failed on write.", err)
	}
	cfg, err := store.LoadConfig()
	if err != nil {
		t.Fatal("failed on load.", err)
	}
	if cfg.CurrentURL != "https://a.example" {
		t.Fatal("missing current_url should fall back to the default:", cfg.CurrentURL)
	}
	if cfg.Port != DefaultPort {
		t.Fatal("missing port should fall back:", cfg.Port)
	}
}

func TestFileStore_OutOfRangePort(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal("failed on creating store.", err)
	}
	for _, port := range []int{-5, 70000} {
		raw := fmt.Sprintf(`{"default_url": "https://a.example", "port": %d}`, port)
		if err = os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0o644); err != nil {
			t.Fatal("failed on write.", err)
		}
		cfg, err := store.LoadConfig()
		if err != nil {
			t.Fatal("failed on load.", err)
		}
		if cfg.Port != DefaultPort {
			t.Fatalf("port %d should fall back to the default, got %d", port, cfg.Port)
		}
	}
	// boundary values stay as persisted
	for _, port := range []int{1, 65535} {
		raw := fmt.Sprintf(`{"default_url": "https://a.example", "port": %d}`, port)
		if err = os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0o644); err != nil {
			t.Fatal("failed on write.", err)
		}
		cfg, err := store.LoadConfig()
		if err != nil {
			t.Fatal("failed on load.", err)
		}
		if cfg.Port != port {
			t.Fatalf("port %d should survive the load, got %d", port, cfg.Port)
		}
	}
}

func TestFileStore_PresetsRoundTripKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal("failed on creating store.", err)
	}
	p := NewPresets()
	p.Set("zulu", "https://z.example")
	p.Set("alpha", "https://a.example")
	p.Set("mike", "https://m.example")
	if err = store.SavePresets(p); err != nil {
		t.Fatal("failed on save presets.", err)
	}

	got, err := store.LoadPresets()
	if err != nil {
		t.Fatal("failed on load presets.", err)
	}
	names := got.Names()
	if len(names) != 3 || names[0] != "zulu" || names[1] != "alpha" || names[2] != "mike" {
		t.Fatal("order lost in round trip:", names)
	}
	if u, _ := got.Get("alpha"); u != "https://a.example" {
		t.Fatal("value lost in round trip:", u)
	}

	// the file itself is a plain object in insertion order
	raw, err := os.ReadFile(filepath.Join(dir, "presets.json"))
	if err != nil {
		t.Fatal("failed on read presets file.", err)
	}
	text := string(raw)
	if strings.Index(text, "zulu") > strings.Index(text, "alpha") ||
		strings.Index(text, "alpha") > strings.Index(text, "mike") {
		t.Fatal("on-disk key order wrong:", text)
	}
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal("failed on creating store.", err)
	}
	for i := 0; i < 5; i++ {
		if err = store.SaveConfig(Config{DefaultURL: DefaultURL, CurrentURL: DefaultURL, Port: DefaultPort}); err != nil {
			t.Fatal("failed on save.", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal("failed on readdir.", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".ezr-") {
			t.Fatal("temp file left behind:", e.Name())
		}
	}
}
