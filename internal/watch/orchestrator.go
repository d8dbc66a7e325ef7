// Package watch re-runs category stages when their source files change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// DefaultDebounce is the quiet window before a changed category is rebuilt.
const DefaultDebounce = 100 * time.Millisecond

// Orchestrator watches the source root and dispatches changes to the bound
// stages. It starts inactive; Activate moves it to active for the lifetime
// of the context.
type Orchestrator struct {
	root     string
	bindings []Binding
	debounce time.Duration
	recorder metrics.Recorder

	mu      sync.Mutex
	active  bool
	workers map[asset.Category]*worker
	done    chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.debounce = d
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

func New(root string, bindings []Binding, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		root:     root,
		bindings: bindings,
		debounce: DefaultDebounce,
		recorder: metrics.NoopRecorder{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Active reports whether Activate has been called.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Done is closed once the orchestrator stopped after its context ended.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Activate starts watching. It returns once the watcher is installed;
// watching continues in the background until ctx is cancelled.
func (o *Orchestrator) Activate(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		return ferrors.RuntimeError("watch orchestrator already active").Build()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create file watcher").Fatal().Build()
	}
	if err := addDirsRecursive(w, o.root); err != nil {
		_ = w.Close()
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to watch source root").
			Fatal().
			WithContext("path", o.root).
			Build()
	}

	o.active = true
	o.workers = make(map[asset.Category]*worker, len(o.bindings))
	var wg sync.WaitGroup
	for _, b := range o.bindings {
		wk := &worker{binding: b, debounce: o.debounce, req: make(chan struct{}, 1)}
		o.workers[b.Category] = wk
		wg.Add(1)
		go func() {
			defer wg.Done()
			wk.loop(ctx, o.recorder)
		}()
	}
	go func() {
		o.loop(ctx, w)
		wg.Wait()
		close(o.done)
	}()

	observability.InfoContext(ctx, "Watching sources",
		logfields.Path(o.root),
		categoriesAttr(o.bindings))
	return nil
}

// Trigger schedules a debounced run of category c. It reports false when
// the orchestrator is inactive or c is not bound.
func (o *Orchestrator) Trigger(c asset.Category) bool {
	o.mu.Lock()
	wk, ok := o.workers[c]
	o.mu.Unlock()
	if !ok {
		return false
	}
	wk.trigger()
	return true
}

func (o *Orchestrator) loop(ctx context.Context, w *fsnotify.Watcher) {
	defer func() { _ = w.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			o.handleEvent(ctx, w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			observability.WarnContext(ctx, "Watcher error", logfields.Error(err))
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event) {
	if shouldIgnoreEvent(ev.Name) || ev.Op == fsnotify.Chmod {
		return
	}
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(w, ev.Name)
		}
	}
	rel, err := filepath.Rel(o.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)
	owner, _ := asset.CategoryFor(rel)
	observability.DebugContext(ctx, "File change detected",
		logfields.Path(rel),
		logfields.Op(ev.Op.String()),
		logfields.Category(string(owner)))
	for _, b := range o.bindings {
		if b.Matches(rel) {
			o.Trigger(b.Category)
		}
	}
}

// worker serializes the runs of one category. The request channel holds at
// most one pending run, so changes arriving during a run coalesce into a
// single follow-up.
type worker struct {
	binding  Binding
	debounce time.Duration
	req      chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

func (wk *worker) trigger() {
	wk.mu.Lock()
	defer wk.mu.Unlock()
	if wk.timer != nil {
		wk.timer.Stop()
	}
	wk.timer = time.AfterFunc(wk.debounce, func() {
		select {
		case wk.req <- struct{}{}:
		default:
		}
	})
}

func (wk *worker) loop(ctx context.Context, rec metrics.Recorder) {
	ctx = observability.WithCategory(ctx, string(wk.binding.Category))
	for {
		select {
		case <-ctx.Done():
			wk.mu.Lock()
			if wk.timer != nil {
				wk.timer.Stop()
			}
			wk.mu.Unlock()
			return
		case <-wk.req:
			rec.IncWatchTrigger(string(wk.binding.Category))
			observability.InfoContext(ctx, "Change detected; rebuilding")
			if err := wk.binding.Stage(ctx); err != nil {
				observability.WarnContext(ctx, "Rebuild failed; waiting for the next change", logfields.Error(err))
			}
		}
	}
}

func categoriesAttr(bindings []Binding) slog.Attr {
	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		names = append(names, string(b.Category))
	}
	return slog.String("categories", strings.Join(names, ","))
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("stat %s: %w", root, err)
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && shouldIgnoreEvent(path) {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				observability.WarnContext(context.Background(), "watch add failed", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}

// shouldIgnoreEvent reports hidden files and editor scratch files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	case base == "Thumbs.db", base == "4913":
		return true
	}
	return false
}
