package indexing

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/debug"
)

// FileEventType is the kind of filesystem change the watcher observed for a
// path, after OS-level event flags are normalized.
type FileEventType int

const (
	FileEventCreate FileEventType = iota
	FileEventWrite
	FileEventRemove
	FileEventRename
)

// FileWatcher keeps a CodeIndexBuilder synchronized with disk state. It
// watches every directory under the project root with fsnotify, debounces
// the raw event stream, and maps the surviving events onto the maintenance
// surface: create -> Update, write -> Update, remove/rename-away -> Delete.
// Each debounce flush ends with a Commit so changes become visible to
// searches in one step per quiet period.
//
// All transitions are idempotent under re-delivery: creates go through
// Update, which replaces the document of an already-indexed path and
// inserts one for an unknown path, Delete of an absent path is a no-op, and
// a write whose content hash is unchanged is dropped before it reaches the
// builder at all.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	config    *config.Config
	scanner   *FileScanner
	builder   MaintenanceInterface
	debouncer *eventDebouncer
	logger    Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Last-seen content hash per path. Editors commonly emit several write
	// events for one logical save; only the first one with new bytes costs
	// an index update.
	hashMu        sync.Mutex
	contentHashes map[string]uint64

	statsMu         sync.RWMutex
	eventsProcessed int64
	errorCount      int64
	lastEventTime   time.Time
}

// WatchStats is a snapshot of watch-mode counters.
type WatchStats struct {
	EventsProcessed int64
	ErrorCount      int64
	LastEventTime   time.Time
	IsActive        bool
}

// NewFileWatcher wires a watcher around builder. The scanner supplies the
// same include/exclude/binary filter the full scan uses, so watch mode never
// indexes a file a scan would have skipped.
func NewFileWatcher(cfg *config.Config, scanner *FileScanner, builder MaintenanceInterface) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	debounce := time.Duration(cfg.Index.WatchDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	fw := &FileWatcher{
		watcher:       w,
		config:        cfg,
		scanner:       scanner,
		builder:       builder,
		contentHashes: make(map[string]uint64),
		logger:        debugLogger{component: "watcher"},
		ctx:           ctx,
		cancel:        cancel,
	}
	fw.debouncer = newEventDebouncer(debounce, fw.applyEvents)
	return fw, nil
}

// Start registers watches for root and every non-ignored directory below it,
// then begins processing events.
func (fw *FileWatcher) Start(root string) error {
	if err := fw.addWatches(root); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.processEvents()

	fw.logger.Info("watching %s", root)
	return nil
}

// Stop tears the watcher down and waits for its goroutines. Events still
// pending in the debouncer are dropped; the index is assumed to be on its
// way down too, or to be reconciled by the next full scan.
func (fw *FileWatcher) Stop() error {
	fw.cancel()
	err := fw.watcher.Close()
	fw.debouncer.stop()
	fw.wg.Wait()
	return err
}

// GetStats returns current watch-mode counters.
func (fw *FileWatcher) GetStats() WatchStats {
	fw.statsMu.RLock()
	defer fw.statsMu.RUnlock()
	return WatchStats{
		EventsProcessed: fw.eventsProcessed,
		ErrorCount:      fw.errorCount,
		LastEventTime:   fw.lastEventTime,
		IsActive:        fw.ctx.Err() == nil,
	}
}

func (fw *FileWatcher) addWatches(root string) error {
	visitedDirs := make(map[string]bool)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}

		realPath, rerr := filepath.EvalSymlinks(path)
		if rerr != nil {
			return filepath.SkipDir
		}
		if visitedDirs[realPath] {
			return filepath.SkipDir
		}
		visitedDirs[realPath] = true

		if path != root && fw.scanner.ShouldIgnoreDirectory(path) {
			return filepath.SkipDir
		}

		if werr := fw.watcher.Add(path); werr != nil {
			fw.logger.Warn("failed to watch %s: %v", path, werr)
		}
		return nil
	})
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("watch error: %v", err)
			fw.incrementStats(0, 1)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	debug.LogIndexing("watcher: %v %s\n", event.Op, path)

	info, err := os.Stat(path)
	if err != nil {
		// Gone from disk: both Remove and Rename-away land here.
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			fw.debouncer.addEvent(path, FileEventRemove)
		}
		return
	}

	if info.IsDir() {
		// New directories need a watch of their own; files created inside
		// them produce their own events afterwards.
		if event.Op&fsnotify.Create != 0 && !fw.scanner.ShouldIgnoreDirectory(path) {
			if werr := fw.watcher.Add(path); werr != nil {
				fw.logger.Warn("failed to watch new directory %s: %v", path, werr)
			}
		}
		return
	}

	if !fw.scanner.ShouldProcessFile(path, info) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		fw.debouncer.addEvent(path, FileEventCreate)
	case event.Op&fsnotify.Write != 0:
		fw.debouncer.addEvent(path, FileEventWrite)
	case event.Op&fsnotify.Rename != 0:
		// The path still exists under this name; treat as content change.
		fw.debouncer.addEvent(path, FileEventWrite)
	}
}

// applyEvents is the debouncer's flush target: it drives the builder with
// the coalesced events, removals first so a rapid delete+recreate of the
// same path nets out to the create.
func (fw *FileWatcher) applyEvents(events map[string]FileEventType) {
	var creates, writes, removes []string
	for path, et := range events {
		switch et {
		case FileEventRemove:
			removes = append(removes, path)
		case FileEventCreate:
			creates = append(creates, path)
		default:
			writes = append(writes, path)
		}
	}

	mutated := 0

	for _, path := range removes {
		if err := fw.builder.Delete(path); err != nil {
			fw.logger.Error("delete %s: %v", path, err)
			fw.incrementStats(0, 1)
			continue
		}
		fw.forgetHash(path)
		mutated++
	}

	for _, path := range writes {
		if !fw.contentChanged(path) {
			continue
		}
		fi, err := NewFileInfo(path)
		if err != nil {
			fw.incrementStats(0, 1)
			continue
		}
		if _, err := fw.builder.Update(fw.ctx, fi); err != nil {
			fw.logger.Error("update %s: %v", path, err)
			fw.incrementStats(0, 1)
			continue
		}
		mutated++
	}

	for _, path := range creates {
		if !fw.contentChanged(path) {
			continue
		}
		fi, err := NewFileInfo(path)
		if err != nil {
			fw.incrementStats(0, 1)
			continue
		}
		// Update rather than Create: a create event can be re-delivered for
		// an already-indexed path, and Update degrades to insert when the
		// path is unknown.
		if _, err := fw.builder.Update(fw.ctx, fi); err != nil {
			fw.logger.Error("create %s: %v", path, err)
			fw.incrementStats(0, 1)
			continue
		}
		mutated++
	}

	if mutated > 0 {
		if err := fw.builder.Commit(); err != nil {
			fw.logger.Error("commit after %d events: %v", mutated, err)
			fw.incrementStats(0, 1)
		}
	}

	fw.incrementStats(int64(len(events)), 0)
}

// contentChanged reads path, hashes it, and reports whether the bytes differ
// from the last flush that touched this path. The new hash is recorded
// either way.
func (fw *FileWatcher) contentChanged(path string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		// Let the builder surface the real error.
		return true
	}
	sum := xxhash.Sum64(content)

	fw.hashMu.Lock()
	defer fw.hashMu.Unlock()
	if prev, ok := fw.contentHashes[path]; ok && prev == sum {
		return false
	}
	fw.contentHashes[path] = sum
	return true
}

func (fw *FileWatcher) forgetHash(path string) {
	fw.hashMu.Lock()
	delete(fw.contentHashes, path)
	fw.hashMu.Unlock()
}

func (fw *FileWatcher) incrementStats(events, errors int64) {
	fw.statsMu.Lock()
	fw.eventsProcessed += events
	fw.errorCount += errors
	fw.lastEventTime = time.Now()
	fw.statsMu.Unlock()
}

// eventDebouncer coalesces bursts of file events: the latest event per path
// wins, and one flush fires per quiet period.
type eventDebouncer struct {
	mu       sync.Mutex
	events   map[string]FileEventType
	debounce time.Duration
	timer    *time.Timer
	stopped  bool
	flushFn  func(map[string]FileEventType)
}

func newEventDebouncer(debounce time.Duration, flushFn func(map[string]FileEventType)) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]FileEventType),
		debounce: debounce,
		flushFn:  flushFn,
	}
}

func (d *eventDebouncer) addEvent(path string, et FileEventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.events[path] = et

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

// stop prevents further flushes. Pending events are intentionally dropped:
// flushing during shutdown would race the builder's own teardown.
func (d *eventDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *eventDebouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	events := d.events
	d.events = make(map[string]FileEventType)
	d.mu.Unlock()

	if len(events) == 0 {
		return
	}
	d.flushFn(events)
}
