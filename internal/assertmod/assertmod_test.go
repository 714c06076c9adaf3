package assertmod

import (
	"errors"
	"strings"
	"testing"

	"go.starlark.net/starlark"

	"github.com/google/go-cmp/cmp"
)

// fakeMarker records every successful assertion's call site.
type fakeMarker struct {
	calls []int // line numbers
	err   error
}

func (m *fakeMarker) MarkCovered(file string, line int) error {
	m.calls = append(m.calls, line)
	return m.err
}

func run(marker Marker, script string) error {
	thread := &starlark.Thread{Name: "test.star"}
	predeclared := starlark.StringDict{"assert": New(marker)}
	_, err := starlark.ExecFile(thread, "test.star", script, predeclared)
	return err
}

func TestPassingAssertionsMarkCallSites(t *testing.T) {
	marker := &fakeMarker{}
	err := run(marker, `assert.eq(1, 1)
assert.ne("a", "b")
assert.true([1])
assert.false([])
assert.lt(1, 2)
assert.le(2, 2)
assert.gt(3, 2)
assert.ge(3, 3)
assert.contains([1, 2, 3], 2)
assert.len("abc", 3)
`)
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
	want := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if diff := cmp.Diff(want, marker.calls); diff != "" {
		t.Errorf("marked lines (-want +got):\n%s", diff)
	}
}

func TestFailingAssertions(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"eq", `assert.eq(1, 2)`, "expected 1 == 2"},
		{"ne", `assert.ne(1, 1)`, "expected 1 != 1"},
		{"true", `assert.true([])`, "to be true"},
		{"false", `assert.false(1)`, "to be false"},
		{"lt", `assert.lt(2, 1)`, "expected 2 < 1"},
		{"ge", `assert.ge(1, 3)`, "expected 1 >= 3"},
		{"contains", `assert.contains([1], 5)`, "to contain"},
		{"len", `assert.len([1, 2], 3)`, "expected len(list) == 3, got 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker := &fakeMarker{}
			err := run(marker, tt.script)
			if err == nil {
				t.Fatal("assertion passed, want failure")
			}
			if !strings.Contains(err.Error(), "assertion failed") || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
			if len(marker.calls) != 0 {
				t.Errorf("failed assertion marked lines %v", marker.calls)
			}
		})
	}
}

func TestCustomMessage(t *testing.T) {
	err := run(nil, `assert.eq(1, 2, msg="the widget count is off")`)
	if err == nil || !strings.Contains(err.Error(), "the widget count is off") {
		t.Errorf("err = %v, want the custom message", err)
	}
}

func TestContains(t *testing.T) {
	err := run(nil, `assert.contains({"a": 1}, "a")
assert.contains("hello world", "lo wo")
assert.contains((1, 2), 2)
`)
	if err != nil {
		t.Fatalf("contains variants failed: %v", err)
	}

	if err := run(nil, `assert.contains(42, 1)`); err == nil || !strings.Contains(err.Error(), "unsupported container type") {
		t.Errorf("err = %v, want unsupported container", err)
	}
	if err := run(nil, `assert.contains("abc", 1)`); err == nil || !strings.Contains(err.Error(), "cannot search") {
		t.Errorf("err = %v, want string search error", err)
	}
}

func TestLenOnUnsizedValue(t *testing.T) {
	if err := run(nil, `assert.len(42, 1)`); err == nil || !strings.Contains(err.Error(), "has no len()") {
		t.Errorf("err = %v, want no-len error", err)
	}
}

func TestFails(t *testing.T) {
	if err := run(nil, `assert.fails(lambda: [][1], "index")`); err != nil {
		t.Errorf("fails with matching pattern: %v", err)
	}
	if err := run(nil, `assert.fails(lambda: 1)`); err == nil || !strings.Contains(err.Error(), "succeeded") {
		t.Errorf("err = %v, want unexpected-success error", err)
	}
	if err := run(nil, `assert.fails(lambda: [][1], "nomatch")`); err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Errorf("err = %v, want pattern mismatch", err)
	}
}

func TestNilMarker(t *testing.T) {
	if err := run(nil, `assert.eq(1, 1)`); err != nil {
		t.Errorf("nil marker: %v", err)
	}
}

func TestMarkerErrorDoesNotFailAssertion(t *testing.T) {
	marker := &fakeMarker{err: errors.New("store sealed")}
	if err := run(marker, `assert.eq(1, 1)`); err != nil {
		t.Errorf("marker error surfaced: %v", err)
	}
}
