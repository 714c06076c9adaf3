package analyzer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/starcov/internal/coverage"
)

func analyze(t *testing.T, src string) *coverage.CodeMap {
	t.Helper()
	cm, err := New(Options{}).Analyze("test.star", []byte(src))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return cm
}

func TestClassifyBranches(t *testing.T) {
	cm := analyze(t, `x = 1
if x > 0:
    x = 2
else:
    x = 3
`)

	if cm.Strategy != coverage.StrategyAST {
		t.Fatalf("Strategy = %v, want AST", cm.Strategy)
	}

	wantClasses := []coverage.Classification{
		coverage.ClassCode,
		coverage.ClassControlFlow,
		coverage.ClassCode,
		coverage.ClassControlFlow,
		coverage.ClassCode,
	}
	for i, want := range wantClasses {
		if got := cm.ClassifyLine(i + 1); got != want {
			t.Errorf("ClassifyLine(%d) = %v, want %v", i+1, got, want)
		}
	}

	wantExec := []bool{true, true, true, false, true}
	for i, want := range wantExec {
		if got := cm.IsExecutable(i + 1); got != want {
			t.Errorf("IsExecutable(%d) = %v, want %v", i+1, got, want)
		}
	}
}

func TestBranchBlocks(t *testing.T) {
	cm := analyze(t, `x = 1
if x > 0:
    x = 2
else:
    x = 3
`)

	if len(cm.Blocks) != 3 {
		t.Fatalf("len(Blocks) = %d, want 3 (root, if, else)", len(cm.Blocks))
	}

	ifBlk := cm.Blocks[1]
	if ifBlk.Kind != coverage.BlockIf || ifBlk.StartLine != 2 || ifBlk.EndLine != 3 {
		t.Errorf("if block = %v %d-%d, want if 2-3", ifBlk.Kind, ifBlk.StartLine, ifBlk.EndLine)
	}
	elseBlk := cm.Blocks[2]
	if elseBlk.Kind != coverage.BlockElse || elseBlk.StartLine != 4 || elseBlk.EndLine != 5 {
		t.Errorf("else block = %v %d-%d, want else 4-5", elseBlk.Kind, elseBlk.StartLine, elseBlk.EndLine)
	}
	if ifBlk.Parent != coverage.RootBlockID || elseBlk.Parent != coverage.RootBlockID {
		t.Errorf("arm parents = %d, %d, want both root", ifBlk.Parent, elseBlk.Parent)
	}

	// Line 3 sits in the root and the if arm; line 5 in the root and the
	// else arm. Outer blocks come first.
	if diff := cmp.Diff([]coverage.BlockID{0, 1}, cm.BlocksContaining(3)); diff != "" {
		t.Errorf("BlocksContaining(3) (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]coverage.BlockID{0, 2}, cm.BlocksContaining(5)); diff != "" {
		t.Errorf("BlocksContaining(5) (-want +got):\n%s", diff)
	}
}

func TestElifChainIsSiblingArms(t *testing.T) {
	cm := analyze(t, `x = 1
if x == 1:
    y = 1
elif x == 2:
    y = 2
else:
    y = 3
`)

	var kinds []coverage.BlockKind
	for _, blk := range cm.Blocks {
		kinds = append(kinds, blk.Kind)
	}
	want := []coverage.BlockKind{coverage.BlockRoot, coverage.BlockIf, coverage.BlockElseIf, coverage.BlockElse}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("block kinds (-want +got):\n%s", diff)
	}

	// Arms are siblings under the root, not nested in each other.
	for _, blk := range cm.Blocks[1:] {
		if blk.Parent != coverage.RootBlockID {
			t.Errorf("block %d parent = %d, want root", blk.ID, blk.Parent)
		}
	}
	elif := cm.Blocks[2]
	if elif.StartLine != 4 || elif.EndLine != 5 {
		t.Errorf("elif arm spans %d-%d, want 4-5", elif.StartLine, elif.EndLine)
	}
}

func TestDocstringNeverExecutable(t *testing.T) {
	cm := analyze(t, `"""
module doc
"""
x = 1
`)

	for n := 1; n <= 3; n++ {
		if got := cm.ClassifyLine(n); got != coverage.ClassMultilineComment {
			t.Errorf("ClassifyLine(%d) = %v, want multiline comment", n, got)
		}
		if cm.IsExecutable(n) {
			t.Errorf("IsExecutable(%d) = true, want false", n)
		}
	}
	if !cm.IsExecutable(4) {
		t.Error("IsExecutable(4) = false, want true")
	}
}

func TestFunctionDocstring(t *testing.T) {
	cm := analyze(t, `def f():
    """doc for f"""
    return 1
`)

	if got := cm.ClassifyLine(1); got != coverage.ClassFunctionHeader {
		t.Errorf("ClassifyLine(1) = %v, want function header", got)
	}
	if got := cm.ClassifyLine(2); got != coverage.ClassString {
		t.Errorf("ClassifyLine(2) = %v, want string", got)
	}
	if cm.IsExecutable(2) {
		t.Error("docstring line executable, want not")
	}
	if got := cm.ClassifyLine(3); got != coverage.ClassControlFlow {
		t.Errorf("ClassifyLine(3) = %v, want control flow", got)
	}
}

func TestConditionDecomposition(t *testing.T) {
	t.Run("and", func(t *testing.T) {
		cm := analyze(t, `if a and b:
    pass
`)
		if len(cm.Conditions) != 3 {
			t.Fatalf("len(Conditions) = %d, want 3 (compound + 2 leaves)", len(cm.Conditions))
		}
		root := cm.Conditions[0]
		if root.Kind != coverage.CondAnd {
			t.Errorf("root kind = %v, want and", root.Kind)
		}
		if len(root.Components) != 2 {
			t.Fatalf("root components = %v, want 2", root.Components)
		}
		for _, id := range root.Components {
			c := cm.Conditions[id]
			if c.Kind != coverage.CondSimple {
				t.Errorf("component %d kind = %v, want simple", id, c.Kind)
			}
			if c.Parent != root.ID {
				t.Errorf("component %d parent = %d, want %d", id, c.Parent, root.ID)
			}
		}
		if root.Block != 1 {
			t.Errorf("root condition block = %d, want the if arm", root.Block)
		}
	})

	t.Run("not", func(t *testing.T) {
		cm := analyze(t, `if not done:
    pass
`)
		if len(cm.Conditions) != 2 {
			t.Fatalf("len(Conditions) = %d, want 2", len(cm.Conditions))
		}
		if cm.Conditions[0].Kind != coverage.CondNot {
			t.Errorf("kind = %v, want not", cm.Conditions[0].Kind)
		}
	})

	t.Run("parens unwrap", func(t *testing.T) {
		cm := analyze(t, `if (a or b):
    pass
`)
		if cm.Conditions[0].Kind != coverage.CondOr {
			t.Errorf("kind = %v, want or", cm.Conditions[0].Kind)
		}
	})

	t.Run("ternary guard", func(t *testing.T) {
		cm := analyze(t, `while x if flag else y:
    pass
`)
		if cm.Conditions[0].Kind != coverage.CondCompound {
			t.Errorf("kind = %v, want compound", cm.Conditions[0].Kind)
		}
		if len(cm.Conditions[0].Components) != 3 {
			t.Errorf("components = %v, want 3", cm.Conditions[0].Components)
		}
	})
}

func TestFunctionDetection(t *testing.T) {
	cm := analyze(t, `def add(a, b):
    return a + b

inc = lambda x: x + 1

def outer():
    def inner():
        pass
    return inner

util.scale = lambda v: v * 2
`)

	byName := make(map[string]coverage.Function)
	for _, fn := range cm.Functions {
		byName[fn.Name] = fn
	}

	for _, name := range []string{"add", "inc", "outer", "inner", "util.scale"} {
		if _, ok := byName[name]; !ok {
			t.Errorf("function %q not detected (have %v)", name, names(cm.Functions))
		}
	}

	if fn := byName["add"]; fn.StartLine != 1 || fn.EndLine != 2 {
		t.Errorf("add spans %d-%d, want 1-2", fn.StartLine, fn.EndLine)
	}

	if id, ok := cm.FunctionAtHeader(1); !ok || cm.Functions[id].Name != "add" {
		t.Errorf("FunctionAtHeader(1) = %v,%v, want add", id, ok)
	}
	if id, ok := cm.FunctionContaining(8); !ok || cm.Functions[id].Name != "inner" {
		t.Errorf("FunctionContaining(8) = %v,%v, want inner (innermost)", id, ok)
	}
}

func names(funcs []coverage.Function) []string {
	var out []string
	for _, fn := range funcs {
		out = append(out, fn.Name)
	}
	return out
}

func TestAnonymousLambdaName(t *testing.T) {
	cm := analyze(t, `xs = sorted(ys, key=lambda v: v.size)
`)
	found := false
	for _, fn := range cm.Functions {
		if strings.HasPrefix(fn.Name, "<anonymous:") {
			found = true
		}
	}
	if !found {
		t.Errorf("no anonymous function recorded, have %v", names(cm.Functions))
	}
}

func TestComprehension(t *testing.T) {
	cm := analyze(t, `ys = [x for x in xs if x > 0]
`)

	hasComp := false
	for _, blk := range cm.Blocks {
		if blk.Kind == coverage.BlockComprehension {
			hasComp = true
		}
	}
	if !hasComp {
		t.Error("no comprehension block extracted")
	}
	if len(cm.Conditions) != 1 || cm.Conditions[0].Kind != coverage.CondSimple {
		t.Errorf("guard conditions = %v, want one simple", cm.Conditions)
	}
}

func TestParseFailureFallsBack(t *testing.T) {
	cm := analyze(t, `def broken(:
x = 1
`)

	if cm.Strategy != coverage.StrategyHeuristic {
		t.Fatalf("Strategy = %v, want heuristic", cm.Strategy)
	}
	if len(cm.Notes) == 0 {
		t.Error("fallback left no note")
	}
	// The heuristic still produces a usable root-only map.
	if len(cm.Blocks) != 1 || cm.Blocks[0].Kind != coverage.BlockRoot {
		t.Errorf("heuristic blocks = %v, want root only", cm.Blocks)
	}
}

func TestBudgetExhaustionFallsBack(t *testing.T) {
	a := New(Options{MaxNodes: 1})
	cm, err := a.Analyze("test.star", []byte("x = 1\ny = 2\nz = x + y\n"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if cm.Strategy != coverage.StrategyHeuristic {
		t.Errorf("Strategy = %v, want heuristic after budget exhaustion", cm.Strategy)
	}
	// Line data survives the downgrade.
	if !cm.IsExecutable(1) {
		t.Error("IsExecutable(1) = false, want true")
	}
}

func TestDisableAST(t *testing.T) {
	a := New(Options{DisableAST: true})
	cm, err := a.Analyze("test.star", []byte("def f():\n    return 1\n"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if cm.Strategy != coverage.StrategyHeuristic {
		t.Errorf("Strategy = %v, want heuristic", cm.Strategy)
	}
	if len(cm.Functions) != 0 {
		t.Errorf("heuristic map carries functions: %v", cm.Functions)
	}
}

func TestCacheByContentHash(t *testing.T) {
	a := New(Options{})
	src := []byte("x = 1\n")

	first, err := a.Analyze("a.star", src)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Analyze("b.star", src)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("identical content re-analyzed, want the cached map")
	}

	a.Invalidate(first.Hash)
	third, err := a.Analyze("a.star", src)
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Error("Invalidate did not drop the cached map")
	}
}

func TestAnalyzeValidation(t *testing.T) {
	if _, err := New(Options{}).Analyze("", []byte("x = 1\n")); err == nil {
		t.Error("empty path accepted, want validation error")
	}
}
