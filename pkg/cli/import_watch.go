package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/githubnext/gh-flowgen/pkg/console"
	"github.com/githubnext/gh-flowgen/pkg/constants"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/stringutil"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

var importWatchLog = logger.New("cli:import_watch")

// watchDebounce groups the bursts of events editors produce on save.
const watchDebounce = 300 * time.Millisecond

// WatchImport runs the batch once and again after every change to a YAML
// file under config.Paths, until ctx is cancelled. Batch failures are
// printed and do not stop the watch.
func WatchImport(ctx context.Context, config ImportConfig) error {
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	if err := validateImportConfig(config); err != nil {
		return err
	}
	_, outDir := resolveLayout(config)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	collector := workflow.NewErrorCollector(false)
	for _, p := range config.Paths {
		_ = collector.Add(watchTree(watcher, p, outDir))
	}
	if err := collector.FormattedError("watch"); err != nil {
		return err
	}

	runOnce := func() {
		if _, err := RunImport(ctx, config); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(config.Stderr, FormatValidationError(err))
		}
		fmt.Fprintln(config.Stderr, console.FormatInfoMessage("Watching for changes; press Ctrl+C to stop"))
	}
	runOnce()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			importWatchLog.Print("Watch stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if isWithin(event.Name, outDir) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchTree(watcher, event.Name, outDir); err != nil {
						fmt.Fprintln(config.Stderr, console.FormatWarningMessage(err.Error()))
					}
					continue
				}
			}
			if !stringutil.IsYAMLFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			importWatchLog.Printf("Change: %s", event)
			debounce = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(config.Stderr, console.FormatWarningMessage("watch error: "+err.Error()))
		case <-debounce:
			debounce = nil
			runOnce()
		}
	}
}

// watchTree adds path to the watcher. Directories are added recursively,
// skipping excluded directories and the output directory; a file is
// watched through its parent directory.
func watchTree(watcher *fsnotify.Watcher, path, outDir string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", path, err)
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != path && (slices.Contains(constants.SkippedDirectories, d.Name()) || isWithin(p, outDir)) {
			return fs.SkipDir
		}
		importWatchLog.Printf("Watching %s", p)
		return watcher.Add(p)
	})
}
