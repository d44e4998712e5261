package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// WatchAgents watches configDir for changes to agents.yaml and re-runs
// Initialize on every write, swapping the result into cfg via Swap.
// Grounded on kadirpekel-hector's pkg/config/provider/file.FileProvider.Watch:
// watch the containing directory (files renamed into place on some editors
// and overlay filesystems never fire a direct watch on the file itself),
// filter to the file of interest, and debounce rapid successive writes.
// A reload that fails validation is logged and discarded; cfg keeps serving
// its last good registry rather than the process exiting.
func WatchAgents(ctx context.Context, configDir string, cfg *Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return err
	}

	go watchLoop(ctx, watcher, configDir, cfg)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, configDir string, cfg *Config) {
	defer watcher.Close()

	var debounce *time.Timer
	reload := func() {
		newCfg, err := Initialize(ctx, configDir)
		if err != nil {
			slog.Error("config reload failed, keeping previous configuration", "error", err)
			return
		}
		cfg.Swap(newCfg.Agents(), newCfg.Model())
		slog.Info("configuration reloaded", "agents", newCfg.Stats().Agents)
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != "agents.yaml" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}
