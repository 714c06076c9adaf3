// Package assertmod provides the Starlark `assert` module. Every
// assertion that passes reports the call site to a coverage marker, so
// lines whose behavior an assertion has validated are distinguished
// from lines that merely ran.
package assertmod

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Marker receives the position of each successful assertion. It is
// satisfied by a coverage session; a nil Marker disables reporting.
type Marker interface {
	MarkCovered(file string, line int) error
}

// assertFn checks one assertion. A nil error means the assertion held.
type assertFn func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) error

// New creates the `assert` module.
//
// Available functions:
//   - assert.eq(a, b, msg=None)
//   - assert.ne(a, b, msg=None)
//   - assert.true(cond, msg=None)
//   - assert.false(cond, msg=None)
//   - assert.lt / le / gt / ge(a, b, msg=None)
//   - assert.contains(container, item, msg=None)
//   - assert.len(container, expected, msg=None)
//   - assert.fails(fn, pattern=None)
func New(marker Marker) *starlarkstruct.Module {
	m := module{marker: marker}
	return &starlarkstruct.Module{
		Name: "assert",
		Members: starlark.StringDict{
			"eq":       m.builtin("assert.eq", assertEq),
			"ne":       m.builtin("assert.ne", assertNe),
			"true":     m.builtin("assert.true", assertTrue),
			"false":    m.builtin("assert.false", assertFalse),
			"lt":       m.builtin("assert.lt", compareFn(syntax.LT, "<")),
			"le":       m.builtin("assert.le", compareFn(syntax.LE, "<=")),
			"gt":       m.builtin("assert.gt", compareFn(syntax.GT, ">")),
			"ge":       m.builtin("assert.ge", compareFn(syntax.GE, ">=")),
			"contains": m.builtin("assert.contains", assertContains),
			"len":      m.builtin("assert.len", assertLen),
			"fails":    m.builtin("assert.fails", assertFails),
		},
	}
}

type module struct {
	marker Marker
}

// builtin wraps an assertion so a pass marks the caller's line covered.
func (m module) builtin(name string, fn assertFn) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := fn(thread, b, args, kwargs); err != nil {
			return nil, err
		}
		m.recordSuccess(thread)
		return starlark.None, nil
	})
}

// recordSuccess marks the assertion's call site covered. Frame 0 is the
// builtin itself; frame 1 is the Starlark caller. Marking is best-effort
// and never fails the assertion that just passed.
func (m module) recordSuccess(thread *starlark.Thread) {
	if m.marker == nil {
		return
	}
	if thread.CallStackDepth() < 2 {
		return
	}
	pos := thread.CallFrame(1).Pos
	if pos.Filename() == "" || pos.Line <= 0 {
		return
	}
	_ = m.marker.MarkCovered(pos.Filename(), int(pos.Line))
}

func assertEq(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) error {
	var a, expected starlark.Value
	var msg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &a, "b", &expected, "msg?", &msg); err != nil {
		return err
	}
	eq, err := starlark.Equal(a, expected)
	if err != nil {
		return err
	}
	if !eq {
		return assertionError(msg, "expected %s == %s", a, expected)
	}
	return nil
}

func assertNe(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) error {
	var a, unexpected starlark.Value
	var msg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &a, "b", &unexpected, "msg?", &msg); err != nil {
		return err
	}
	eq, err := starlark.Equal(a, unexpected)
	if err != nil {
		return err
	}
	if eq {
		return assertionError(msg, "expected %s != %s", a, unexpected)
	}
	return nil
}

func assertTrue(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) error {
	var cond starlark.Value
	var msg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cond", &cond, "msg?", &msg); err != nil {
		return err
	}
	if !cond.Truth() {
		return assertionError(msg, "expected %s to be true", cond)
	}
	return nil
}

func assertFalse(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) error {
	var cond starlark.Value
	var msg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cond", &cond, "msg?", &msg); err != nil {
		return err
	}
	if cond.Truth() {
		return assertionError(msg, "expected %s to be false", cond)
	}
	return nil
}

// compareFn builds an ordered-comparison assertion for one operator.
func compareFn(op syntax.Token, symbol string) assertFn {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) error {
		var a, expected starlark.Value
		var msg starlark.Value = starlark.None
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &a, "b", &expected, "msg?", &msg); err != nil {
			return err
		}
		ok, err := starlark.Compare(op, a, expected)
		if err != nil {
			return err
		}
		if !ok {
			return assertionError(msg, "expected %s %s %s", a, symbol, expected)
		}
		return nil
	}
}

func assertContains(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) error {
	var container, item starlark.Value
	var msg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "container", &container, "item", &item, "msg?", &msg); err != nil {
		return err
	}

	found, err := valueContains(container, item)
	if err != nil {
		return fmt.Errorf("%s: %w", b.Name(), err)
	}
	if !found {
		return assertionError(msg, "expected %s to contain %s", container, item)
	}
	return nil
}

func valueContains(container, item starlark.Value) (bool, error) {
	switch c := container.(type) {
	case *starlark.List:
		return sequenceHas(c, item), nil
	case starlark.Tuple:
		return sequenceHas(c, item), nil
	case *starlark.Dict:
		_, found, err := c.Get(item)
		return found, err
	case *starlark.Set:
		return c.Has(item)
	case starlark.String:
		s, ok := item.(starlark.String)
		if !ok {
			return false, fmt.Errorf("cannot search for %s in a string", item.Type())
		}
		return strings.Contains(string(c), string(s)), nil
	default:
		return false, fmt.Errorf("unsupported container type %s", container.Type())
	}
}

func sequenceHas(seq starlark.Indexable, item starlark.Value) bool {
	for i := 0; i < seq.Len(); i++ {
		if eq, _ := starlark.Equal(seq.Index(i), item); eq {
			return true
		}
	}
	return false
}

func assertLen(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) error {
	var container starlark.Value
	var expected int
	var msg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "container", &container, "expected", &expected, "msg?", &msg); err != nil {
		return err
	}
	n := starlark.Len(container)
	if n < 0 {
		return fmt.Errorf("%s: type %s has no len()", b.Name(), container.Type())
	}
	if n != expected {
		return assertionError(msg, "expected len(%s) == %d, got %d", container.Type(), expected, n)
	}
	return nil
}

func assertFails(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) error {
	var fn starlark.Callable
	var pattern starlark.String
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fn", &fn, "pattern?", &pattern); err != nil {
		return err
	}

	_, err := starlark.Call(thread, fn, nil, nil)
	if err == nil {
		return fmt.Errorf("%s: expected function to fail, but it succeeded", b.Name())
	}
	if pattern != "" && !strings.Contains(err.Error(), string(pattern)) {
		return fmt.Errorf("%s: error %q does not match pattern %q", b.Name(), err.Error(), pattern)
	}
	return nil
}

// assertionError formats a failure, preferring a caller-supplied msg.
func assertionError(customMsg starlark.Value, format string, args ...any) error {
	if s, ok := customMsg.(starlark.String); ok && s != "" {
		return fmt.Errorf("assertion failed: %s", string(s))
	}
	return fmt.Errorf("assertion failed: "+format, args...)
}
