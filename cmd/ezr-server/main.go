package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"ezredirect"
)

var opts struct {
	DataDir string `short:"d" long:"data" description:"directory holding config.json and presets.json" default:"."`
	Journal string `short:"j" long:"journal" description:"path to the sqlite change journal (empty disables it)"`
	Port    int    `short:"p" long:"port" description:"listen port override (0 uses the configured port)"`
	NoWatch bool   `long:"no-watch" description:"do not reload state when the config files change on disk"`
}

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		log.Fatalln(err)
	}
	if err = run(); err != nil {
		log.Fatalln(err)
	}
	log.Println("ez-redirect stopped")
}

func run() error {
	store, err := ezredirect.NewFileStore(opts.DataDir)
	if err != nil {
		return err
	}
	state, err := ezredirect.NewState(store)
	if err != nil {
		return err
	}

	var journal *ezredirect.Journal
	if opts.Journal != "" {
		journal, err = ezredirect.OpenJournal(opts.Journal, 0)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			_ = journal.Close()
		}()
		state.SetJournal(journal)
	}

	if !opts.NoWatch {
		watcher, err := ezredirect.NewWatcher(state, opts.DataDir)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer func() {
			_ = watcher.Close()
		}()
	}

	port := opts.Port
	if port == 0 {
		port = state.Port()
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: ezredirect.NewServer(state, journal),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Printf("ez-redirect listening on :%d (redirect at /redirect)", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
