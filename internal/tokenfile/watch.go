package tokenfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/dropbox-go/internal/dropbox"
)

// Watch keeps store in step with the token file at path until ctx is done.
// A rewrite (another process logging in) installs the new credential; a
// removal (logout) clears the store. The parent directory is watched because
// Save replaces the file by rename.
func Watch(ctx context.Context, path string, store *dropbox.CredentialStore, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tokenfile: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("tokenfile: watching %s: %w", dir, err)
	}

	logger.Debug("watching token file", slog.String("path", path))

	name := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != name {
				continue
			}

			handleEvent(ev, path, store, logger)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("token file watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func handleEvent(ev fsnotify.Event, path string, store *dropbox.CredentialStore, logger *slog.Logger) {
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		store.Clear()
		logger.Info("token file removed, credential cleared", slog.String("path", path))

	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		loaded, err := LoadInto(path, store)
		if err != nil {
			// A partially written file is retried on the next event.
			logger.Warn("reloading token file failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)

			return
		}

		if loaded {
			logger.Info("token file changed, credential reloaded", slog.String("path", path))
		}
	}
}
