package skills

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Engine ties the pipeline together: it loads skills from the configured
// roots, filters them for eligibility, and caches the resulting snapshot.
// A snapshot is built at most once per generation; Invalidate (or a watched
// filesystem change) forces the next Snapshot call to rebuild.
type Engine struct {
	loader *Loader
	roots  []Root
	format PromptFormat
	logger *slog.Logger

	// probeFn builds a fresh probe per rebuild so PATH and env changes
	// are observed.
	probeFn func() *Probe

	mu       sync.RWMutex
	snapshot *Snapshot
	report   *LoadReport
	version  int

	// onReload, when set, is called with each freshly built snapshot.
	onReload func(*Snapshot)

	watcher       *fsnotify.Watcher
	watchPaths    map[string]struct{}
	watchMu       sync.Mutex
	watchWg       sync.WaitGroup
	watchCancel   context.CancelFunc
	watchDebounce time.Duration
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Roots  []Root
	Format PromptFormat

	// Configs provides per-skill overrides consulted during gating.
	Configs map[string]*Config

	// BundledAllow restricts bundled skills to the listed names. Nil
	// allows all bundled skills.
	BundledAllow []string

	// WatchDebounce bounds how often filesystem churn triggers a reload.
	// Zero means 250ms.
	WatchDebounce time.Duration
}

// NewEngine creates an engine. No skills are loaded until the first
// Snapshot call.
func NewEngine(cfg EngineConfig) *Engine {
	debounce := cfg.WatchDebounce
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Engine{
		loader: NewLoader(),
		roots:  cfg.Roots,
		format: cfg.Format,
		logger: slog.Default().With("component", "skills"),
		probeFn: func() *Probe {
			return NewProbe(cfg.Configs, cfg.BundledAllow)
		},
		watchDebounce: debounce,
	}
}

// OnReload registers a callback invoked with every freshly built snapshot,
// including the first. Must be called before Snapshot or StartWatching.
func (e *Engine) OnReload(fn func(*Snapshot)) {
	e.mu.Lock()
	e.onReload = fn
	e.mu.Unlock()
}

// Snapshot returns the current snapshot, building one if none is cached.
// The returned snapshot is immutable; callers may hold it across a reload.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	e.mu.RLock()
	cached := e.snapshot
	e.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	return e.rebuild(ctx)
}

// Report returns the most recent load report, if any.
func (e *Engine) Report() *LoadReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.report
}

// Invalidate discards the cached snapshot. The next Snapshot call reloads
// from disk. In-flight holders of the old snapshot are unaffected.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.snapshot = nil
	e.mu.Unlock()
}

// rebuild loads, filters, and snapshots the skill set, swapping the cache
// atomically under the engine lock.
func (e *Engine) rebuild(ctx context.Context) (*Snapshot, error) {
	report := e.loader.Load(ctx, e.roots)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	probe := e.probeFn()
	eligible := FilterEligible(report.Skills, probe)

	e.mu.Lock()
	e.version++
	snap := BuildSnapshot(eligible, e.format, e.version)
	e.snapshot = snap
	e.report = report
	onReload := e.onReload
	e.mu.Unlock()

	e.logger.Info("skill snapshot built",
		"version", snap.Version(),
		"eligible", len(eligible),
		"loaded", len(report.Skills),
		"errors", len(report.Errors))

	if onReload != nil {
		onReload(snap)
	}
	return snap, nil
}

// StartWatching begins watching the skill roots for changes. A change
// invalidates the cache and rebuilds the snapshot after the debounce window.
func (e *Engine) StartWatching(ctx context.Context) error {
	e.watchMu.Lock()
	if e.watcher != nil {
		e.watchMu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.watchMu.Unlock()
		return err
	}
	e.watcher = watcher
	if e.watchPaths == nil {
		e.watchPaths = make(map[string]struct{})
	}
	watchCtx, cancel := context.WithCancel(ctx)
	e.watchCancel = cancel
	debounce := e.watchDebounce
	e.watchMu.Unlock()

	e.refreshWatches()

	e.watchWg.Add(1)
	go e.watchLoop(watchCtx, debounce)
	return nil
}

// Close stops any active watcher.
func (e *Engine) Close() error {
	e.watchMu.Lock()
	if e.watchCancel != nil {
		e.watchCancel()
		e.watchCancel = nil
	}
	watcher := e.watcher
	e.watcher = nil
	e.watchMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	e.watchWg.Wait()
	return nil
}

func (e *Engine) watchLoop(ctx context.Context, debounce time.Duration) {
	defer e.watchWg.Done()
	e.watchMu.Lock()
	watcher := e.watcher
	e.watchMu.Unlock()
	if watcher == nil {
		return
	}

	var mu sync.Mutex
	var timer *time.Timer
	scheduleRebuild := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			e.Invalidate()
			if _, err := e.rebuild(context.Background()); err != nil {
				e.logger.Warn("skill reload failed", "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						e.addWatchPath(event.Name)
					}
				}
				scheduleRebuild()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			e.logger.Warn("skill watch error", "error", err)
		}
	}
}

// refreshWatches watches each existing root and its immediate skill
// directories. fsnotify watches are not recursive, so new skill
// subdirectories are added from the watch loop on create events.
func (e *Engine) refreshWatches() {
	for _, root := range e.roots {
		info, err := os.Stat(root.Path)
		if err != nil || !info.IsDir() {
			continue
		}
		e.addWatchPath(root.Path)

		entries, err := os.ReadDir(root.Path)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				e.addWatchPath(filepath.Join(root.Path, entry.Name()))
			}
		}
	}
}

func (e *Engine) addWatchPath(path string) {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	if e.watcher == nil {
		return
	}
	if _, ok := e.watchPaths[path]; ok {
		return
	}
	if err := e.watcher.Add(path); err != nil {
		e.logger.Debug("failed to watch skills path", "path", path, "error", err)
		return
	}
	e.watchPaths[path] = struct{}{}
}
