package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// mkSnap builds a one-file snapshot with the given line records.
func mkSnap(path string, lines map[int]LineCov) *Snapshot {
	snap := &Snapshot{
		Version: Version,
		Files: map[string]*FileCov{
			path: {
				Strategy:   "ast",
				Lines:      lines,
				Functions:  map[int]FuncCov{},
				Blocks:     map[int]BlockCov{},
				Conditions: map[int]CondCov{},
			},
		},
	}
	snap.Recompute()
	return snap
}

func TestSummaryMath(t *testing.T) {
	snap := mkSnap("t.star", map[int]LineCov{
		1: {Covered: true, Executed: true, ExecutionCount: 3},
		2: {Executed: true, ExecutionCount: 1},
		3: {},
		4: {},
	})

	want := Summary{
		TotalLines:       4,
		CoveredLines:     1,
		ExecutedLines:    1,
		NotCoveredLines:  2,
		CoveragePercent:  25.0,
		ExecutionPercent: 50.0,
	}
	if diff := cmp.Diff(want, snap.Summary); diff != "" {
		t.Errorf("summary (-want +got):\n%s", diff)
	}
}

func TestSummaryEmptyIsFullyCovered(t *testing.T) {
	snap := &Snapshot{Version: Version, Files: map[string]*FileCov{}}
	snap.Recompute()
	if snap.Summary.CoveragePercent != 100.0 || snap.Summary.ExecutionPercent != 100.0 {
		t.Errorf("empty snapshot = %.1f%%/%.1f%%, want 100/100", snap.Summary.CoveragePercent, snap.Summary.ExecutionPercent)
	}
}

func TestMergeFlagsAndCounts(t *testing.T) {
	a := mkSnap("t.star", map[int]LineCov{
		1: {Executed: true, ExecutionCount: 2},
		2: {},
	})
	a.Files["t.star"].Conditions[0] = CondCov{Kind: "simple", StartLine: 1, TrueOutcomeExecuted: true, ExecutionCount: 1}

	b := mkSnap("t.star", map[int]LineCov{
		1: {Executed: true, Covered: true, ExecutionCount: 5},
		2: {Executed: true, ExecutionCount: 1},
	})
	b.Files["t.star"].Conditions[0] = CondCov{Kind: "simple", StartLine: 1, FalseOutcomeExecuted: true, ExecutionCount: 2}
	b.Files["other.star"] = &FileCov{
		Strategy:   "heuristic",
		Lines:      map[int]LineCov{1: {Executed: true, ExecutionCount: 1}},
		Functions:  map[int]FuncCov{},
		Blocks:     map[int]BlockCov{},
		Conditions: map[int]CondCov{},
	}
	b.Recompute()

	out := Merge(a, b)

	ln := out.Files["t.star"].Lines[1]
	if !ln.Executed || !ln.Covered || ln.ExecutionCount != 7 {
		t.Errorf("merged line 1 = %+v, want executed+covered, count 7", ln)
	}
	cond := out.Files["t.star"].Conditions[0]
	if !cond.TrueOutcomeExecuted || !cond.FalseOutcomeExecuted || cond.ExecutionCount != 3 {
		t.Errorf("merged condition = %+v, want both outcomes, count 3", cond)
	}
	if _, ok := out.Files["other.star"]; !ok {
		t.Error("file present in one input did not pass through")
	}
	// 3 lines total, 1 covered, 2 executed only.
	if out.Summary.TotalLines != 3 || out.Summary.CoveredLines != 1 || out.Summary.ExecutedLines != 2 {
		t.Errorf("merged summary = %+v", out.Summary)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	a := mkSnap("t.star", map[int]LineCov{1: {Executed: true, ExecutionCount: 1}})
	b := mkSnap("t.star", map[int]LineCov{1: {Executed: true, ExecutionCount: 1}})

	Merge(a, b)

	if a.Files["t.star"].Lines[1].ExecutionCount != 1 || b.Files["t.star"].Lines[1].ExecutionCount != 1 {
		t.Error("Merge mutated an input snapshot")
	}
}

func TestMergeAssociative(t *testing.T) {
	a := mkSnap("t.star", map[int]LineCov{1: {Executed: true, ExecutionCount: 1}, 2: {}})
	b := mkSnap("t.star", map[int]LineCov{1: {Covered: true, Executed: true, ExecutionCount: 2}, 2: {}})
	c := mkSnap("t.star", map[int]LineCov{2: {Executed: true, ExecutionCount: 4}})

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))
	if diff := cmp.Diff(left, right); diff != "" {
		t.Errorf("grouping changed the result (-left +right):\n%s", diff)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	snap := mkSnap("t.star", map[int]LineCov{
		1: {Executed: true, Covered: true, ExecutionCount: 2},
		2: {},
	})
	snap.Files["t.star"].Functions = map[int]FuncCov{
		0: {Name: "f", StartLine: 1, EndLine: 2, Executed: true, ExecutionCount: 1},
	}
	// Empty sections are omitted from the encoding and come back nil.
	snap.Files["t.star"].Blocks = nil
	snap.Files["t.star"].Conditions = nil

	for _, pretty := range []bool{false, true} {
		var buf bytes.Buffer
		if err := Encode(&buf, snap, pretty); err != nil {
			t.Fatalf("Encode(pretty=%v): %v", pretty, err)
		}
		got, err := Decode(&buf)
		if err != nil {
			t.Fatalf("Decode(pretty=%v): %v", pretty, err)
		}
		if diff := cmp.Diff(snap, got); diff != "" {
			t.Errorf("round trip (pretty=%v) (-want +got):\n%s", pretty, diff)
		}
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"version": 99, "files": {}}`))
	if err == nil || !strings.Contains(err.Error(), "unsupported snapshot version") {
		t.Errorf("err = %v, want version error", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode(strings.NewReader("not json")); err == nil {
		t.Error("garbage input accepted")
	}
}

func TestWriteFileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cov.json")

	a := mkSnap("t.star", map[int]LineCov{1: {Executed: true, ExecutionCount: 1}, 2: {}})
	if err := WriteFileLocked(path, a); err != nil {
		t.Fatalf("first write: %v", err)
	}

	b := mkSnap("t.star", map[int]LineCov{2: {Executed: true, ExecutionCount: 1}})
	if err := WriteFileLocked(path, b); err != nil {
		t.Fatalf("merge write: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sum := got.Files["t.star"].Summary
	if sum.TotalLines != 2 || sum.ExecutedLines != 2 {
		t.Errorf("merged file summary = %+v, want both lines executed", sum)
	}
}

func TestWriteFileLockedRejectsCorruptExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cov.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := mkSnap("t.star", map[int]LineCov{1: {}})
	if err := WriteFileLocked(path, a); err == nil || !strings.Contains(err.Error(), "unreadable") {
		t.Errorf("err = %v, want unreadable error", err)
	}
}
