package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const watchDebounce = 500 * time.Millisecond

// Watcher reindexes watched files when they change on disk. Rapid event
// bursts from editors are debounced per path; removal events drop the file's
// chunks.
type Watcher struct {
	svc *Service
	log zerolog.Logger

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	pending map[string]*time.Timer
	done    chan struct{}
	once    sync.Once
}

func newWatcher(svc *Service, log zerolog.Logger) *Watcher {
	return &Watcher{
		svc:     svc,
		log:     log.With().Str("component", "watcher").Logger(),
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}
}

// Add starts watching a file. The fsnotify watcher and its event loop are
// created lazily on the first call.
func (w *Watcher) Add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fs == nil {
		fs, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		w.fs = fs
		go w.loop(fs)
	}
	return w.fs.Add(path)
}

// Remove stops watching a file.
func (w *Watcher) Remove(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fs == nil {
		return nil
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
	return w.fs.Remove(path)
}

func (w *Watcher) loop(fs *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-fs.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create):
		w.schedule(event.Name)
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		go func(path string) {
			n, err := w.svc.DeleteBySource(context.Background(), SourceFile, path)
			if err != nil {
				w.log.Warn().Err(err).Str("path", path).Msg("Dropping removed file failed")
				return
			}
			w.log.Debug().Str("path", path).Int("chunks", n).Msg("Removed file dropped from store")
		}(event.Name)
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(watchDebounce)
		return
	}
	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		n, err := w.svc.RefreshFile(context.Background(), path)
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("Refreshing changed file failed")
			return
		}
		w.log.Debug().Str("path", path).Int("chunks", n).Msg("Changed file reindexed")
	})
}

// Close stops the event loop and drops all pending refreshes.
func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.done)
	})
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	if w.fs != nil {
		w.fs.Close()
	}
}
