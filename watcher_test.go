package ezredirect

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestWatcher_ExternalEdit(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal("failed on creating store.", err)
	}
	state, err := NewState(store)
	if err != nil {
		t.Fatal("failed on creating state.", err)
	}
	watcher, err := NewWatcher(state, dir)
	if err != nil {
		t.Fatal("failed on creating watcher.", err)
	}
	defer watcher.Close()

	// an external writer, like the tray app, rewrites config.json
	raw := `{"default_url": "https://tray.example", "current_url": "https://tray.example", "expires_at": null, "port": 9001, "api_key_enabled": false, "api_key": null}`
	if err = os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0o644); err != nil {
		t.Fatal("failed on external write.", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		current, _ := state.Effective()
		return current == "https://tray.example" && state.Port() == 9001
	})

	raw = `{"tray": "https://t.example"}`
	if err = os.WriteFile(filepath.Join(dir, "presets.json"), []byte(raw), 0o644); err != nil {
		t.Fatal("failed on external write.", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, ok := state.PresetsSnapshot().Get("tray")
		return ok
	})
}

func TestWatcher_OwnWritesAreHarmless(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal("failed on creating store.", err)
	}
	state, err := NewState(store)
	if err != nil {
		t.Fatal("failed on creating state.", err)
	}
	watcher, err := NewWatcher(state, dir)
	if err != nil {
		t.Fatal("failed on creating watcher.", err)
	}
	defer watcher.Close()

	if err = state.SetCurrent("https://a.example"); err != nil {
		t.Fatal("failed on set.", err)
	}
	// the watcher sees our own write-through; the reload must not lose it
	time.Sleep(200 * time.Millisecond)
	current, _ := state.Effective()
	if current != "https://a.example" {
		t.Fatal("reload clobbered the state:", current)
	}
}
