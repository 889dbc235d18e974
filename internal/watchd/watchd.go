// Package watchd triggers reconciliation runs from filesystem activity.
//
// Watch mode is for teams that edit function sources locally and want
// the target environment to follow: a burst of writes under the watched
// directories is coalesced into a single run once the burst settles.
package watchd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RunFunc is invoked after each settled burst of file events with the
// distinct function names the burst touched, in sorted order. Names are
// the first path element under the watched directory, matching the
// one-directory-per-function layout.
type RunFunc func(ctx context.Context, names []string) error

// Watcher monitors directories and runs the callback, debounced.
type Watcher struct {
	paths    []string
	debounce time.Duration
	run      RunFunc
	logger   *log.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	triggers int
}

// New creates a Watcher over the given directories. If logger is nil, a
// default logger writing to stderr is used.
func New(paths []string, debounce time.Duration, run RunFunc, logger *log.Logger) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	// fsnotify is not recursive; watch each root plus its function
	// directories one level down. Directories created later are picked
	// up from their Create events.
	for _, path := range paths {
		if err := fsw.Add(path); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", path, err)
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("listing %s: %w", path, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if err := fsw.Add(filepath.Join(path, entry.Name())); err != nil {
				fsw.Close()
				return nil, fmt.Errorf("watching %s: %w", entry.Name(), err)
			}
		}
	}

	return &Watcher{
		paths:    paths,
		debounce: debounce,
		run:      run,
		logger:   logger,
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins the event loop. Stop with Stop or by cancelling ctx.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Printf("watching %s (debounce %s)", strings.Join(w.paths, ", "), w.debounce)
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
	w.wg.Wait()
}

// Triggers returns how many runs the watcher has started.
func (w *Watcher) Triggers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.triggers
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	// The timer is armed on the first relevant event and re-armed on
	// every further one; it fires only once the burst has settled.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	touched := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						w.logger.Printf("WARNING: watching new directory %s: %v", event.Name, err)
					}
				}
			}
			if name, ok := w.functionName(event.Name); ok {
				touched[name] = struct{}{}
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("WARNING: watch error: %v", err)

		case <-timer.C:
			pending = false
			names := make([]string, 0, len(touched))
			for name := range touched {
				names = append(names, name)
			}
			sort.Strings(names)
			clear(touched)

			w.mu.Lock()
			w.triggers++
			n := w.triggers
			w.mu.Unlock()

			w.logger.Printf("change to %s, starting run %d", strings.Join(names, ", "), n)
			if err := w.run(ctx, names); err != nil {
				w.logger.Printf("WARNING: run %d failed: %v", n, err)
			}
		}
	}
}

// functionName maps an event path to the function directory it falls
// under: the first path element below a watched root. Events on files
// directly under the root carry no function name and trigger an
// unrestricted run (empty name list).
func (w *Watcher) functionName(path string) (string, bool) {
	for _, root := range w.paths {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) >= 2 {
			return parts[0], true
		}
		return "", false
	}
	return "", false
}

// relevant filters out events that should not trigger a run: chmods and
// editor swap/backup files.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name := event.Name
	for _, suffix := range []string{".swp", ".swx", "~", ".tmp"} {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}
