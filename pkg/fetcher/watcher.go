package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/FlickerMi/proxyforge/pkg/config"
)

// Watcher reloads a sources file into the registry when it changes on disk.
// Events are debounced so editors that write in several steps trigger a
// single reload.
type Watcher struct {
	registry *Registry
	cfg      config.FetcherConfig
	debounce time.Duration
}

// NewWatcher creates a sources-file watcher for the given registry.
func NewWatcher(registry *Registry, cfg config.FetcherConfig) *Watcher {
	return &Watcher{
		registry: registry,
		cfg:      cfg,
		debounce: 200 * time.Millisecond,
	}
}

// Watch blocks until the context is cancelled, reloading the registry after
// each change to the sources file. A reload that fails to parse keeps the
// previous registry contents.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files, which drops a watch placed
	// directly on the path.
	dir := filepath.Dir(w.cfg.SourcesFile)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %q: %w", dir, err)
	}

	slog.Info("watching sources file", "path", w.cfg.SourcesFile)

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.cfg.SourcesFile) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("sources watcher error", "error", err)

		case <-reload:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	sources, err := LoadSourcesFile(w.cfg.SourcesFile, w.cfg)
	if err != nil {
		slog.Error("sources file reload failed, keeping previous registry", "error", err)
		return
	}
	w.registry.Replace(sources)
	slog.Info("sources file reloaded", "sources", len(sources))
}
