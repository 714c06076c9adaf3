package starcov

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/albertocavalcante/starcov/internal/assertmod"
	"github.com/albertocavalcante/starcov/internal/session"
)

// fileOpts permits the full dialect: scripts under measurement use
// top-level control flow and reassignment freely.
var fileOpts = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// executor runs Starlark files under one coverage session, resolving
// load() relative to the loading file with a module cache.
type executor struct {
	sess        *session.Session
	predeclared starlark.StringDict
	modules     map[string]*loadEntry
}

type loadEntry struct {
	globals starlark.StringDict
	err     error
	loading bool
}

func newExecutor(sess *session.Session) (*executor, error) {
	e := &executor{
		sess:    sess,
		modules: make(map[string]*loadEntry),
	}

	predeclared := starlark.StringDict{
		"assert": assertmod.New(sess),
	}
	if sess.Mode() == session.ModeInstrument {
		builtins, err := sess.Builtins()
		if err != nil {
			return nil, err
		}
		for name, v := range builtins {
			predeclared[name] = v
		}
	}
	e.predeclared = predeclared
	return e, nil
}

// execFile runs one script to completion under coverage.
func (e *executor) execFile(path string) error {
	thread := &starlark.Thread{Name: path, Load: e.load}
	if e.sess.Mode() == session.ModeHook {
		if err := e.sess.Attach(thread); err != nil {
			return err
		}
	}

	src, err := e.sourceFor(path)
	if err != nil {
		return err
	}
	_, err = starlark.ExecFileOptions(fileOpts, thread, path, src, e.predeclared)
	return err
}

// sourceFor returns the text to execute for path: the instrumented
// rewrite in instrument mode, nil (read by the interpreter) otherwise.
func (e *executor) sourceFor(path string) (any, error) {
	if e.sess.Mode() != session.ModeInstrument {
		return nil, nil
	}
	inst, err := e.sess.Instrument(path, nil)
	if err != nil {
		return nil, err
	}
	return inst.Source, nil
}

// load implements the load() builtin. Modules are resolved relative to
// the loading file and cached, and loaded modules are themselves
// tracked for coverage.
func (e *executor) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	if strings.HasPrefix(module, "//") || strings.HasPrefix(module, "@") {
		return nil, fmt.Errorf("cannot load %s: workspace labels are not supported", module)
	}

	path := module
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(thread.Name), module)
	}

	entry, ok := e.modules[path]
	if ok {
		if entry.loading {
			return nil, errors.New("cycle in load graph")
		}
		return entry.globals, entry.err
	}

	entry = &loadEntry{loading: true}
	e.modules[path] = entry

	src, err := e.sourceFor(path)
	if err == nil {
		sub := &starlark.Thread{Name: path, Load: e.load}
		if e.sess.Mode() == session.ModeHook {
			err = e.sess.Attach(sub)
		}
		if err == nil {
			entry.globals, err = starlark.ExecFileOptions(fileOpts, sub, path, src, e.predeclared)
		}
	}

	entry.err = err
	entry.loading = false
	return entry.globals, entry.err
}
