package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/resources"
)

// DefaultWatchDelay is how long the watcher waits for writes to settle
// before re-importing.
const DefaultWatchDelay = 100 * time.Millisecond

// Forgetter drops cached file contents.
type Forgetter interface {
	Forget(path string)
}

// Reload reports one import done by a Watcher.
type Reload struct {
	Session string
	Path    string
	Group   *resources.Group
	Err     error
}

// Watcher re-imports model files when they or files next to them (material
// libraries, textures) change. The previous group of a file is disposed
// before it is imported again.
//
// Imports run on the watcher's goroutine; the loader must not be used
// elsewhere until the watcher is closed.
type Watcher struct {
	l     *Loader
	fs    *fsnotify.Watcher
	files Forgetter
	cfg   AssetConfig
	read  AssetReadConfig
	delay time.Duration
	log   *zap.Logger

	groups   map[string]*resources.Group // by watched model path
	dirs     map[string]int              // watched model files per directory
	requests chan string
	results  chan Reload
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithForgetter makes the watcher evict changed files from a file cache.
func WithForgetter(f Forgetter) WatchOption {
	return func(w *Watcher) { w.files = f }
}

// WithWatchDelay sets the settle delay.
func WithWatchDelay(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// NewWatcher starts a watcher importing with cfg and read.
func NewWatcher(l *Loader, cfg AssetConfig, read AssetReadConfig, opts ...WatchOption) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	w := &Watcher{
		l:        l,
		fs:       fs,
		cfg:      cfg,
		read:     read,
		delay:    DefaultWatchDelay,
		log:      l.log.Named("watch"),
		groups:   make(map[string]*resources.Group),
		dirs:     make(map[string]int),
		requests: make(chan string),
		results:  make(chan Reload, 8),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Results delivers one Reload per import. It is closed by Close.
func (w *Watcher) Results() <-chan Reload { return w.results }

// Watch imports path now and again whenever it changes.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	select {
	case w.requests <- abs:
		return nil
	case <-w.done:
		return errors.New("watcher is closed")
	}
}

// Close stops watching. Imported groups stay loaded.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	defer close(w.results)

	pending := make(map[string]struct{})
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case path := <-w.requests:
			w.add(path)

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if w.files != nil {
				w.files.Forget(ev.Name)
			}
			pending[filepath.Dir(ev.Name)] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			for _, path := range w.affected(pending) {
				w.reload(path)
			}
			clear(pending)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", zap.Error(err))
			w.send(Reload{Err: err})
		}
	}
}

func (w *Watcher) add(path string) {
	if _, ok := w.groups[path]; !ok {
		dir := filepath.Dir(path)
		if w.dirs[dir] == 0 {
			if err := w.fs.Add(dir); err != nil {
				w.send(Reload{Path: path, Err: fmt.Errorf("watching %s: %w", dir, err)})
				return
			}
		}
		w.dirs[dir]++
		w.groups[path] = nil
	}
	w.reload(path)
}

// affected returns the watched models inside the changed directories.
func (w *Watcher) affected(dirs map[string]struct{}) []string {
	var out []string
	for path := range w.groups {
		if _, ok := dirs[filepath.Dir(path)]; ok {
			out = append(out, path)
		}
	}
	slices.Sort(out)
	return out
}

func (w *Watcher) reload(path string) {
	id := uuid.NewString()
	log := w.log.With(zap.String("session", id), zap.String("path", path))

	if prev := w.groups[path]; prev != nil {
		if err := prev.Dispose(); err != nil {
			log.Warn("previous import still in use", zap.Error(err))
			w.send(Reload{Session: id, Path: path, Err: err})
			return
		}
		w.groups[path] = nil
	}

	start := time.Now()
	g, err := w.l.LoadModels(path, w.cfg, w.read)
	if g != nil {
		w.groups[path] = g
	}
	if err != nil {
		log.Error("re-import failed", zap.Error(err))
		w.send(Reload{Session: id, Path: path, Err: err})
		return
	}
	log.Info("re-imported", zap.Stringer("group", g.Handle()), zap.Duration("took", time.Since(start)))
	w.send(Reload{Session: id, Path: path, Group: g})
}

func (w *Watcher) send(r Reload) {
	select {
	case w.results <- r:
	case <-w.done:
	}
}
