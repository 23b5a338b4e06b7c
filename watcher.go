package ezredirect

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the state when config.json or presets.json change on disk,
// so edits by an external writer (tray app, manual edit) are picked up
// without a restart. Reloading after our own write-throughs is harmless: the
// file already matches memory.
type Watcher struct {
	fsw   *fsnotify.Watcher
	state *State
	done  chan struct{}
}

func NewWatcher(state *State, dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err = fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{fsw: fsw, state: state, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if name != "config.json" && name != "presets.json" {
				continue
			}
			if err := w.state.Reload(); err != nil {
				log.Printf("reload after %s changed: %v", name, err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("file watcher error: %v", err)
		}
	}
}

func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
