// Package watcher provides file watching for coverage watch mode. It
// tracks the load() dependency graph of watched scripts so a change to
// a shared helper re-runs every script that loads it.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.starlark.net/syntax"
)

// Watcher watches Starlark scripts and their dependencies for changes.
type Watcher struct {
	mu sync.RWMutex

	fsWatcher *fsnotify.Watcher

	// scripts is the set of top-level scripts being watched.
	scripts map[string]bool

	// dependents maps a file to the scripts that load it, directly or
	// transitively. If foo.star loads helper.star, then
	// dependents["helper.star"] contains "foo.star".
	dependents map[string]map[string]bool

	// loads maps a script to the modules it loads.
	loads map[string][]string

	// Events receives change notifications.
	Events chan Event

	// Errors receives watcher errors.
	Errors chan error

	done chan struct{}
}

// Event is one file change with the scripts it invalidates.
type Event struct {
	// File is the file that changed.
	File string

	// Op is the filesystem operation.
	Op fsnotify.Op

	// AffectedScripts lists the watched scripts whose coverage must be
	// recomputed. A changed script lists itself; a changed dependency
	// lists every script that loads it.
	AffectedScripts []string
}

// New creates a watcher. Watching starts per script via Add.
func New() (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher:  fsWatcher,
		scripts:    make(map[string]bool),
		dependents: make(map[string]map[string]bool),
		loads:      make(map[string][]string),
		Events:     make(chan Event, 100),
		Errors:     make(chan error, 10),
		done:       make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Add watches a script along with its load() dependencies.
func (w *Watcher) Add(script string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, err := filepath.Abs(script)
	if err != nil {
		return fmt.Errorf("getting absolute path: %w", err)
	}

	if w.scripts[absPath] {
		return nil
	}

	if err := w.fsWatcher.Add(absPath); err != nil {
		return fmt.Errorf("watching %s: %w", absPath, err)
	}
	w.scripts[absPath] = true

	w.trackLoads(absPath, absPath)
	return nil
}

// trackLoads parses file, records that script depends on everything it
// loads, and recurses. Parse failures are reported but never fail the
// watch: the file might be mid-edit.
func (w *Watcher) trackLoads(file, script string) {
	deps, err := extractLoads(file)
	if err != nil {
		select {
		case w.Errors <- fmt.Errorf("extracting loads from %s: %w", file, err):
		default:
		}
		return
	}
	w.loads[file] = deps

	for _, dep := range deps {
		depPath := resolveLoadPath(file, dep)
		if depPath == "" {
			continue
		}

		if w.dependents[depPath] == nil {
			w.dependents[depPath] = make(map[string]bool)
		}
		if w.dependents[depPath][script] {
			continue // already tracked for this script, stop load cycles here
		}
		w.dependents[depPath][script] = true

		// The dependency might not exist yet; watch best-effort.
		if err := w.fsWatcher.Add(depPath); err != nil {
			continue
		}
		w.trackLoads(depPath, script)
	}
}

// Refresh re-parses a script and rebuilds its dependency edges. Call
// after a watched script is modified.
func (w *Watcher) Refresh(script string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, err := filepath.Abs(script)
	if err != nil {
		return err
	}
	if !w.scripts[absPath] {
		return nil
	}

	for dep := range w.dependents {
		delete(w.dependents[dep], absPath)
	}
	delete(w.loads, absPath)

	w.trackLoads(absPath, absPath)
	return nil
}

// Remove stops watching a script.
func (w *Watcher) Remove(script string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, err := filepath.Abs(script)
	if err != nil {
		return err
	}

	delete(w.scripts, absPath)
	for dep := range w.dependents {
		delete(w.dependents[dep], absPath)
	}
	delete(w.loads, absPath)

	return w.fsWatcher.Remove(absPath)
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// WatchedScripts returns the watched top-level scripts.
func (w *Watcher) WatchedScripts() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var files []string
	for f := range w.scripts {
		files = append(files, f)
	}
	return files
}

// Affected returns the watched scripts invalidated by a change to file.
func (w *Watcher) Affected(file string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	absPath, _ := filepath.Abs(file)
	return w.affectedLocked(absPath)
}

func (w *Watcher) affectedLocked(absPath string) []string {
	var affected []string
	if w.scripts[absPath] {
		affected = append(affected, absPath)
	}
	for script := range w.dependents[absPath] {
		affected = appendUnique(affected, script)
	}
	return affected
}

// run pumps filesystem events until Close.
func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.Errors <- err
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.mu.RLock()
	absPath, _ := filepath.Abs(event.Name)
	affected := w.affectedLocked(absPath)
	w.mu.RUnlock()

	if len(affected) > 0 {
		w.Events <- Event{
			File:            absPath,
			Op:              event.Op,
			AffectedScripts: affected,
		}
	}
}

// extractLoads parses a Starlark file and returns its load() modules.
func extractLoads(file string) ([]string, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	f, err := syntax.Parse(file, src, 0)
	if err != nil {
		return nil, err
	}

	var loads []string
	for _, stmt := range f.Stmts {
		if load, ok := stmt.(*syntax.LoadStmt); ok {
			if module, ok := load.Module.Value.(string); ok {
				loads = append(loads, module)
			}
		}
	}
	return loads, nil
}

// resolveLoadPath resolves a load path relative to the loading file.
// Bazel-style labels (//pkg:file, @repo//...) are outside watch scope.
func resolveLoadPath(fromFile, loadPath string) string {
	if strings.HasPrefix(loadPath, "//") || strings.HasPrefix(loadPath, "@") {
		return ""
	}

	resolved := filepath.Join(filepath.Dir(fromFile), loadPath)
	if _, err := os.Stat(resolved); err != nil {
		return ""
	}
	absPath, _ := filepath.Abs(resolved)
	return absPath
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
