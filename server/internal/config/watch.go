package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events one editor save produces.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the config at path whenever its content changes and passes
// the result to onChange. It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file, so saves that
// replace the file (rename over it, Kubernetes ConfigMap "..data" swaps)
// keep being seen. A reload that fails validation is logged and dropped;
// whatever onChange last received stays in force.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	dir := filepath.Dir(abs)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}

	last, err := digest(abs)
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	slog.Info("config: watching for changes", "path", abs)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if affects(ev, abs) {
				settle = time.After(reloadDebounce)
			}

		case <-settle:
			settle = nil
			sum, err := digest(abs)
			if err != nil {
				// Mid-replace; the Create that follows re-arms settle.
				slog.Debug("config: file not readable yet", "path", abs, "err", err)
				continue
			}
			if sum == last {
				continue
			}
			last = sum

			cfg, err := Load(abs)
			if err != nil {
				slog.Error("config: reload rejected, keeping previous settings", "path", abs, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config: watcher error", "err", err)
		}
	}
}

// affects reports whether ev may have changed the content behind path.
func affects(ev fsnotify.Event, path string) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(ev.Name) == path || strings.HasPrefix(filepath.Base(ev.Name), "..")
}

func digest(path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}
