package coverage

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// identityNormalizer keeps test paths stable without touching the
// filesystem.
func identityNormalizer(path string) (string, error) {
	if path == "" {
		return "", validationErrorf("empty path")
	}
	return path, nil
}

// testCodeMap builds a small hand-rolled map:
//
//	1: x = 1        (code)
//	2: if x > 0:    (control flow, opens block 1)
//	3:     x = 2    (code, inside block 1)
//	4: # done       (comment)
func testCodeMap() *CodeMap {
	return &CodeMap{
		Path:       "test.star",
		Strategy:   StrategyAST,
		Hash:       HashSource([]byte("test")),
		LineCount:  4,
		Classes:    []Classification{ClassCode, ClassControlFlow, ClassCode, ClassComment},
		Executable: []bool{true, true, true, false},
		LineBlocks: [][]BlockID{
			{RootBlockID},
			{RootBlockID},
			{RootBlockID, 1},
			{RootBlockID},
		},
		LineConds: [][]CondID{nil, {0}, nil, nil},
		Blocks: []Block{
			{ID: 0, Kind: BlockRoot, StartLine: 1, EndLine: 4, Parent: NoBlock, Children: []BlockID{1}},
			{ID: 1, Kind: BlockIf, StartLine: 3, EndLine: 3, Parent: 0},
		},
		Conditions: []Condition{
			{ID: 0, Kind: CondSimple, StartLine: 2, Parent: NoCondition, Block: 1},
		},
		Functions: nil,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(identityNormalizer)
	if _, err := s.InitFile("test.star", "x = 1\nif x > 0:\n    x = 2\n# done\n", testCodeMap()); err != nil {
		t.Fatalf("InitFile: %v", err)
	}
	return s
}

func TestInitFileIdempotent(t *testing.T) {
	s := newTestStore(t)

	first, err := s.GetFile("test.star")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if err := s.SetLineExecuted("test.star", 1); err != nil {
		t.Fatalf("SetLineExecuted: %v", err)
	}

	again, err := s.InitFile("test.star", "different", testCodeMap())
	if err != nil {
		t.Fatalf("second InitFile: %v", err)
	}
	if again != first {
		t.Error("second InitFile returned a new record, want the existing one")
	}
	ln, _ := again.Line(1)
	if !ln.Executed {
		t.Error("re-init discarded runtime state")
	}
}

func TestInitFileValidation(t *testing.T) {
	s := NewStore(identityNormalizer)
	if _, err := s.InitFile("test.star", "", nil); !errors.Is(err, ErrValidation) {
		t.Errorf("nil code map error = %v, want ErrValidation", err)
	}
	if _, err := s.GetFile("missing.star"); !errors.Is(err, ErrUnknownFile) {
		t.Errorf("GetFile(missing) = %v, want ErrUnknownFile", err)
	}
}

func TestLineExecution(t *testing.T) {
	t.Run("counts accumulate", func(t *testing.T) {
		s := newTestStore(t)
		for i := 0; i < 3; i++ {
			if err := s.SetLineExecuted("test.star", 1); err != nil {
				t.Fatalf("SetLineExecuted: %v", err)
			}
		}
		ln, err := s.Line("test.star", 1)
		if err != nil {
			t.Fatalf("Line: %v", err)
		}
		if !ln.Executed || ln.ExecutionCount != 3 {
			t.Errorf("line 1 = executed=%v count=%d, want executed=true count=3", ln.Executed, ln.ExecutionCount)
		}
	})

	t.Run("non-executable events dropped", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.SetLineExecuted("test.star", 4); err != nil {
			t.Fatalf("SetLineExecuted on comment: %v", err)
		}
		ln, _ := s.Line("test.star", 4)
		if ln.Executed || ln.ExecutionCount != 0 {
			t.Errorf("comment line = executed=%v count=%d, want untouched", ln.Executed, ln.ExecutionCount)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.SetLineExecuted("test.star", 99); !errors.Is(err, ErrValidation) {
			t.Errorf("out-of-range error = %v, want ErrValidation", err)
		}
	})
}

func TestCoveredImpliesExecuted(t *testing.T) {
	s := newTestStore(t)

	// Line 3 was never observed executing. Marking it covered forces
	// executed: an assertion proving behavior at a line proves it ran.
	if err := s.SetLineCovered("test.star", 3); err != nil {
		t.Fatalf("SetLineCovered: %v", err)
	}
	ln, _ := s.Line("test.star", 3)
	if !ln.Covered || !ln.Executed {
		t.Errorf("line 3 = covered=%v executed=%v, want both true", ln.Covered, ln.Executed)
	}
	if ln.ExecutionCount != 1 {
		t.Errorf("forced execution count = %d, want 1", ln.ExecutionCount)
	}

	// A later real execution must not reset the covered flag.
	if err := s.SetLineExecuted("test.star", 3); err != nil {
		t.Fatalf("SetLineExecuted: %v", err)
	}
	ln, _ = s.Line("test.star", 3)
	if !ln.Covered {
		t.Error("covered flag lost after execution event")
	}
}

func TestCoveredRejectsNonExecutable(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetLineCovered("test.star", 4); !errors.Is(err, ErrValidation) {
		t.Errorf("SetLineCovered on comment = %v, want ErrValidation", err)
	}
}

func TestConditionOutcomes(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetConditionExecuted("test.star", 0); err != nil {
		t.Fatalf("SetConditionExecuted: %v", err)
	}
	if err := s.SetConditionOutcome("test.star", 0, true); err != nil {
		t.Fatalf("SetConditionOutcome: %v", err)
	}
	if err := s.SetConditionOutcome("test.star", 0, true); err != nil {
		t.Fatalf("SetConditionOutcome: %v", err)
	}

	sf, _ := s.GetFile("test.star")
	c, _ := sf.Condition(0)
	if !c.TrueOutcome || c.FalseOutcome {
		t.Errorf("outcomes = true:%v false:%v, want true:true false:false", c.TrueOutcome, c.FalseOutcome)
	}
	if c.ExecutionCount != 1 {
		t.Errorf("ExecutionCount = %d, want 1 (outcomes do not count evaluations)", c.ExecutionCount)
	}
}

func TestSeal(t *testing.T) {
	s := newTestStore(t)
	s.Seal()

	if err := s.SetLineExecuted("test.star", 1); !errors.Is(err, ErrSealed) {
		t.Errorf("write after seal = %v, want ErrSealed", err)
	}
	if _, err := s.InitFile("other.star", "", testCodeMap()); !errors.Is(err, ErrSealed) {
		t.Errorf("InitFile after seal = %v, want ErrSealed", err)
	}

	// Reads still work.
	if _, err := s.Line("test.star", 1); err != nil {
		t.Errorf("read after seal: %v", err)
	}
}

func TestReset(t *testing.T) {
	t.Run("keep analysis", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.SetLineExecuted("test.star", 1); err != nil {
			t.Fatal(err)
		}
		s.Seal()
		s.Reset(true)

		if s.Sealed() {
			t.Error("store still sealed after reset")
		}
		ln, err := s.Line("test.star", 1)
		if err != nil {
			t.Fatalf("file forgotten despite keepAnalysis: %v", err)
		}
		if ln.Executed || ln.ExecutionCount != 0 {
			t.Errorf("runtime state survived reset: %+v", ln)
		}
	})

	t.Run("discard analysis", func(t *testing.T) {
		s := newTestStore(t)
		s.Reset(false)
		if s.HasFile("test.star") {
			t.Error("file still tracked after full reset")
		}
	})
}

func TestAccessorsReturnCopies(t *testing.T) {
	s := newTestStore(t)
	sf, _ := s.GetFile("test.star")

	blocks := sf.Blocks()
	blocks[0].Executed = true
	fresh, _ := sf.Block(0)
	if fresh.Executed {
		t.Error("mutating the returned slice leaked into the store")
	}

	want := sf.Lines()
	lines := sf.Lines()
	lines[0].ExecutionCount = 99
	if diff := cmp.Diff(want, sf.Lines()); diff != "" {
		t.Errorf("store lines changed through accessor copy (-want +got):\n%s", diff)
	}
}

func TestCanonicalSharedAcrossSpellings(t *testing.T) {
	// A normalizer that strips a leading "./" stands in for real path
	// resolution.
	norm := func(path string) (string, error) {
		if len(path) > 2 && path[:2] == "./" {
			return path[2:], nil
		}
		return path, nil
	}
	s := NewStore(norm)
	if _, err := s.InitFile("./test.star", "", testCodeMap()); err != nil {
		t.Fatalf("InitFile: %v", err)
	}

	if err := s.SetLineExecuted("test.star", 1); err != nil {
		t.Fatalf("SetLineExecuted via other spelling: %v", err)
	}
	ln, err := s.Line("./test.star", 1)
	if err != nil {
		t.Fatalf("Line: %v", err)
	}
	if !ln.Executed {
		t.Error("spellings did not share one record")
	}
}
