package indexer

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"photonix-core/internal/logging"
)

const changeDebounce = 250 * time.Millisecond

// changeCollector coalesces bursts of change records within changeDebounce
// before handing the accumulated batch to flush, the same debounce-timer
// shape as the teacher's index trigger but batching actual records instead
// of just re-triggering a full re-index.
type changeCollector struct {
	mu      sync.Mutex
	pending []ChangeRecord
	timer   *time.Timer
	flush   func([]ChangeRecord)
}

func newChangeCollector(flush func([]ChangeRecord)) *changeCollector {
	return &changeCollector{flush: flush}
}

func (c *changeCollector) add(rec ChangeRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, rec)
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(changeDebounce, c.flushNow)
}

func (c *changeCollector) flushNow() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()
	if len(batch) > 0 {
		c.flush(batch)
	}
}

// watcher watches the photo root with fsnotify and translates raw events
// into debounced ChangeRecord batches.
type watcher struct {
	fs        *fsnotify.Watcher
	photosDir string
	collector *changeCollector
	stop      chan struct{}
}

func newWatcher(photosDir string, onBatch func([]ChangeRecord)) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &watcher{
		fs:        fw,
		photosDir: photosDir,
		collector: newChangeCollector(onBatch),
		stop:      make(chan struct{}),
	}, nil
}

// addDirectoriesRecursively registers every non-skipped directory under the
// photo root with the watcher, since fsnotify only watches the directories
// it's explicitly told about.
func (w *watcher) addDirectoriesRecursively() int {
	count := 0
	var walkDir func(abs string)
	walkDir = func(abs string) {
		entries, err := os.ReadDir(abs)
		if err != nil {
			logging.Warn("indexer: watcher failed to list %s: %v", abs, err)
			return
		}
		if err := w.fs.Add(abs); err != nil {
			logging.Warn("indexer: watcher failed to watch %s: %v", abs, err)
		} else {
			count++
		}
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || shouldSkipName(e.Name()) {
				continue
			}
			walkDir(filepath.Join(abs, e.Name()))
		}
	}
	walkDir(w.photosDir)
	return count
}

func (w *watcher) run() {
	count := w.addDirectoriesRecursively()
	logging.Info("indexer: watcher started on %d directories", count)

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.Error("indexer: watcher error: %v", err)

		case <-w.stop:
			return
		}
	}
}

func (w *watcher) relPath(abs string) string {
	rel, err := filepath.Rel(w.photosDir, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// handleEvent processes a single fsnotify event, grounded on the teacher's
// handleWatcherEvent/handleCreateEvent/handleWriteEvent split.
func (w *watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || shouldSkipName(name) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := w.fs.Add(event.Name); err != nil {
				logging.Warn("indexer: failed to watch new directory %s: %v", event.Name, err)
			}
			w.emit(ChangeAddDir, event.Name)
		} else {
			w.emit(ChangeAdd, event.Name)
		}

	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		// fsnotify doesn't say whether a removed path was a file or a
		// directory; emit both and let change processing's idempotent
		// cascade deletes absorb whichever one actually applies.
		w.emit(ChangeUnlink, event.Name)
		w.emit(ChangeUnlinkDir, event.Name)

	case event.Op&fsnotify.Write != 0:
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return
		}
		w.emit(ChangeAdd, event.Name)
	}
}

func (w *watcher) emit(t ChangeType, absPath string) {
	w.collector.add(ChangeRecord{Type: t, FilePath: w.relPath(absPath)})
}

func (w *watcher) close() {
	close(w.stop)
	if err := w.fs.Close(); err != nil {
		logging.Warn("indexer: error closing watcher: %v", err)
	}
}
