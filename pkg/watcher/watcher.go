package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/reach-analyzer/pkg/logging"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	ChangeTypeSource ChangeType = iota
	ChangeTypeConfig
)

func (t ChangeType) String() string {
	if t == ChangeTypeConfig {
		return "config"
	}
	return "source"
}

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// Options selects which directories are watched and which files matter
type Options struct {
	SkipDirs    []string
	SkipDotDirs bool
	// Extensions of source files; empty accepts every file
	Extensions []string
	// ConfigNames are base names whose changes require a config reload
	ConfigNames []string
	// FlushDelay batches raw events before they are handed on
	FlushDelay time.Duration
}

const defaultFlushDelay = 100 * time.Millisecond

// FileWatcher watches a workspace tree for source and config changes
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	workspace string
	opts      Options
	skip      map[string]struct{}
	exts      map[string]struct{}
	configs   map[string]struct{}
	events    chan ChangeEvent
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	watched map[string]struct{}
}

// NewFileWatcher creates a new file system watcher for a workspace
func NewFileWatcher(workspace string, opts Options) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = defaultFlushDelay
	}

	fw := &FileWatcher{
		watcher:   watcher,
		workspace: workspace,
		opts:      opts,
		skip:      toSet(opts.SkipDirs),
		exts:      toSet(opts.Extensions),
		configs:   toSet(opts.ConfigNames),
		events:    make(chan ChangeEvent, 100),
		done:      make(chan struct{}),
		watched:   make(map[string]struct{}),
	}
	return fw, nil
}

// Start adds every non-skipped directory to the watch set and begins
// processing events. Cancelling ctx stops the watcher and closes Events.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.watchTree(fw.workspace); err != nil {
		fw.watcher.Close()
		return err
	}

	logging.Info("started watching workspace", "path", fw.workspace, "directories", fw.WatchedCount())

	go fw.processEvents(ctx)
	return nil
}

// watchTree adds dir and every non-skipped directory below it
func (fw *FileWatcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to walk %s: %w", dir, err)
			}
			return nil // Skip directories we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.workspace && fw.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		fw.add(path)
		return nil
	})
}

func (fw *FileWatcher) add(dir string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, ok := fw.watched[dir]; ok {
		return
	}
	if err := fw.watcher.Add(dir); err != nil {
		logging.Warn("failed to watch directory", "path", dir, "error", err)
		return
	}
	fw.watched[dir] = struct{}{}
}

func (fw *FileWatcher) forget(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	// fsnotify drops removed directories by itself
	delete(fw.watched, path)
}

// WatchedCount returns the number of directories being watched
func (fw *FileWatcher) WatchedCount() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.watched)
}

func (fw *FileWatcher) skipDir(name string) bool {
	if _, ok := fw.skip[name]; ok {
		return true
	}
	return fw.opts.SkipDotDirs && strings.HasPrefix(name, ".")
}

// skipped reports whether path lies below a skipped directory
func (fw *FileWatcher) skipped(path string) bool {
	rel, err := filepath.Rel(fw.workspace, path)
	if err != nil {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, part := range parts[:len(parts)-1] {
		if fw.skipDir(part) {
			return true
		}
	}
	return false
}

// classify returns the change type of an event, or false when it is noise
func (fw *FileWatcher) classify(event fsnotify.Event) (ChangeType, bool) {
	if event.Op == fsnotify.Chmod {
		return 0, false
	}
	if fw.skipped(event.Name) {
		return 0, false
	}

	name := filepath.Base(event.Name)
	if _, ok := fw.configs[name]; ok {
		return ChangeTypeConfig, true
	}
	if len(fw.exts) == 0 {
		return ChangeTypeSource, true
	}
	ext := filepath.Ext(name)
	if _, ok := fw.exts[ext]; ok {
		return ChangeTypeSource, true
	}
	// A removed or renamed directory takes its sources with it
	if ext == "" && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return ChangeTypeSource, true
	}
	return 0, false
}

// processEvents processes file system events and batches them by type
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer fw.shutdown()

	var (
		sourceFiles []string
		configFiles []string
	)

	flushTimer := time.NewTimer(fw.opts.FlushDelay)
	flushTimer.Stop()

	send := func(t ChangeType, paths []string) bool {
		select {
		case fw.events <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	flush := func() bool {
		if len(configFiles) > 0 {
			if !send(ChangeTypeConfig, configFiles) {
				return false
			}
			configFiles = nil
		}
		if len(sourceFiles) > 0 {
			if !send(ChangeTypeSource, sourceFiles) {
				return false
			}
			sourceFiles = nil
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			flushTimer.Stop()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() && !fw.skipDir(info.Name()) && !fw.skipped(event.Name) {
					if err := fw.watchTree(event.Name); err != nil {
						logging.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				fw.forget(event.Name)
			}

			changeType, relevant := fw.classify(event)
			if !relevant {
				continue
			}
			logging.Trace("file change", "path", event.Name, "op", event.Op.String(), "type", changeType.String())

			if changeType == ChangeTypeConfig {
				configFiles = append(configFiles, event.Name)
			} else {
				sourceFiles = append(sourceFiles, event.Name)
			}
			flushTimer.Reset(fw.opts.FlushDelay)

		case <-flushTimer.C:
			if !flush() {
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) shutdown() {
	fw.closeOnce.Do(func() {
		fw.watcher.Close()
		close(fw.events)
		close(fw.done)
	})
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Done is closed once the event loop has exited
func (fw *FileWatcher) Done() <-chan struct{} {
	return fw.done
}

// Stop stops the file watcher. Events is closed once the event loop exits.
func (fw *FileWatcher) Stop() error {
	return fw.watcher.Close()
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
