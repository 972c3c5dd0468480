package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	defaultDebounce       = 300 * time.Millisecond
	rateLimitLogWindow    = 2 * time.Second
	rateLimitLogThreshold = 500
)

// defaultExcludes mirrors "the build output directory" spec §4.8
// calls out by name, plus the handful of directories no Go workspace
// wants watched regardless of configuration.
var defaultExcludes = []string{".git/**", "vendor/**", "bin/**", "dist/**", "*.sqlite", "*.sqlite.tmp", "*.sqlite-journal"}

// Watcher subscribes to every registered root and emits coalesced,
// per-unit affected sets to a caller-supplied callback.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	exclude  *gitignore.GitIgnore

	mu    sync.Mutex
	roots map[string]string // absolute root dir -> unit name

	rateLimitMu          sync.Mutex
	rateLimitWindowStart time.Time
	rateLimitCount       int
}

// New builds a Watcher with the given debounce window and additional
// exclusion globs (beyond the built-in build-output defaults).
// debounce <= 0 uses the spec's default of 300ms.
func New(debounce time.Duration, excludeGlobs []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	lines := append(append([]string{}, defaultExcludes...), excludeGlobs...)
	excl := gitignore.CompileIgnoreLines(lines...)

	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		exclude:  excl,
		roots:    make(map[string]string),
	}, nil
}

// AddRoot registers a workspace member root under its unit name and
// starts watching every directory beneath it (fsnotify does not
// watch recursively on its own).
func (w *Watcher) AddRoot(root, unitName string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("watch: resolve root %s: %w", root, err)
	}

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(abs, path)
		if relErr == nil && w.exclude.MatchesPath(rel) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch: add %s: %w", path, addErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.roots[abs] = unitName
	w.mu.Unlock()
	return nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run drives the debounce loop until ctx is canceled. onAffected is
// called with the deduplicated set of affected unit names whenever
// the debounce window elapses with at least one pending change.
// Run blocks; call it in its own goroutine.
func (w *Watcher) Run(ctx context.Context, onAffected func(units []string)) error {
	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	resetTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(w.debounce)
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.shouldIgnore(ev.Name) {
				continue
			}
			unit, ok := w.unitForPath(ev.Name)
			if !ok {
				continue // path outside any registered root
			}
			if !pending[unit] {
				pending[unit] = true
			}
			w.noteEvent()
			resetTimer()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: fsnotify error: %v", err)

		case <-timerC:
			if len(pending) == 0 {
				continue
			}
			units := make([]string, 0, len(pending))
			for u := range pending {
				units = append(units, u)
			}
			sort.Strings(units)
			pending = make(map[string]bool)
			onAffected(units)
		}
	}
}

// unitForPath maps an absolute path to its owning unit by
// longest-prefix match against registered roots; an unmatched path
// is ignored per spec §4.8.
func (w *Watcher) unitForPath(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var bestRoot, bestUnit string
	for root, unit := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			if len(root) > len(bestRoot) {
				bestRoot, bestUnit = root, unit
			}
		}
	}
	return bestUnit, bestRoot != ""
}

func (w *Watcher) shouldIgnore(path string) bool {
	w.mu.Lock()
	roots := make([]string, 0, len(w.roots))
	for r := range w.roots {
		roots = append(roots, r)
	}
	w.mu.Unlock()

	for _, root := range roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			if w.exclude.MatchesPath(rel) {
				return true
			}
		}
	}
	return false
}

// noteEvent implements the backlog discipline of spec §4.8: it never
// blocks or drops an event itself (the pending set already collapses
// duplicates), but it throttles the rate-limit log line to at most
// once per window so a genuine burst doesn't flood stderr.
func (w *Watcher) noteEvent() {
	w.rateLimitMu.Lock()
	defer w.rateLimitMu.Unlock()

	now := time.Now()
	if now.Sub(w.rateLimitWindowStart) > rateLimitLogWindow {
		w.rateLimitWindowStart = now
		w.rateLimitCount = 0
	}
	w.rateLimitCount++
	if w.rateLimitCount == rateLimitLogThreshold {
		log.Printf("watch: rate-limit notice: >%d fs events in %s, coalescing", rateLimitLogThreshold, rateLimitLogWindow)
	}
}
