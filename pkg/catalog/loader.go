package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nextsuite/authcore/pkg/observability"
)

// LoadFile reads and validates a YAML catalog file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	return &f, nil
}

// Watch reloads the catalog whenever the file changes. A reload that fails
// to parse or validate keeps the previous snapshot. Returns a stop function.
func Watch(path string, c *Catalog, logger *observability.Logger) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog watcher: %w", err)
	}

	// Watch the directory: editors and config maps replace the file, which
	// drops a watch placed on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch catalog directory: %w", err)
	}

	base := filepath.Base(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				f, err := LoadFile(path)
				if err != nil {
					logger.WithError(err).Warn("Catalog reload failed, keeping previous snapshot")
					continue
				}
				c.Replace(f)
				logger.WithField("path", path).Info("Catalog reloaded")

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Catalog watcher error")
			}
		}
	}()

	return watcher.Close, nil
}
