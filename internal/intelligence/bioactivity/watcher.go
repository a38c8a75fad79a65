package bioactivity

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

// Watcher reloads the artifact store when the model or schema file changes.
// Bursts of events inside the debounce window trigger one reload.
type Watcher struct {
	mu          sync.Mutex
	store       *ArtifactStore
	fs          *fsnotify.Watcher
	logger      logging.Logger
	debounce    time.Duration
	names       map[string]bool
	pendingAt   time.Time
	pending     bool
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	reloads     int
	reloadFails int
	onReload    func(*Snapshot, error)
}

// NewWatcher watches the store's artifact directory.
func NewWatcher(store *ArtifactStore, debounce time.Duration, logger logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	names := map[string]bool{filepath.Base(store.SchemaPath()): true}
	if p := store.ModelPath(); p != "" {
		names[filepath.Base(p)] = true
	}
	return &Watcher{
		store:    store,
		fs:       fw,
		logger:   logger.Named("artifacts.watcher"),
		debounce: debounce,
		names:    names,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// OnReload registers a callback run after every reload attempt.
func (w *Watcher) OnReload(fn func(*Snapshot, error)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

// Start begins watching. It returns once the directory watch is installed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := w.store.Dir()
	if dir == "" {
		dir = "."
	}
	if err := w.fs.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Info("watching artifact directory", logging.String("dir", dir))
	go w.run(ctx)
	return nil
}

// Stop ends the watch and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.fs.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.fs.Close(); err != nil {
		w.logger.Warn("closing fsnotify watcher", logging.Err(err))
	}
}

// Stats returns reload counters.
func (w *Watcher) Stats() (reloads, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.reloadFails
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(w.debounce / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("artifact watch error", logging.Err(err))
		case <-tick.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !w.names[filepath.Base(ev.Name)] {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	w.logger.Debug("artifact changed", logging.String("file", ev.Name), logging.String("op", ev.Op.String()))
	w.mu.Lock()
	w.pending = true
	w.pendingAt = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if !w.pending || time.Since(w.pendingAt) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	snap, err := w.store.Load(ctx)

	w.mu.Lock()
	if err != nil {
		w.reloadFails++
	} else {
		w.reloads++
	}
	cb := w.onReload
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("artifact reload failed; keeping previous model", logging.Err(err))
	}
	if cb != nil {
		cb(snap, err)
	}
}

//Personal.AI order the ending
