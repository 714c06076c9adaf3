package collector

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/albertocavalcante/starcov/internal/analyzer"
	"github.com/albertocavalcante/starcov/internal/coverage"
)

// Builtin names injected into instrumented programs.
const (
	lineBuiltin = "_starcov_line"
	fnBuiltin   = "_starcov_fn"
	condBuiltin = "_starcov_cond"
)

// Instrumented is the result of rewriting one source file.
type Instrumented struct {
	// Path is the path the rewrite was produced for.
	Path string

	// Hash is the content hash of the original source.
	Hash string

	// Source is the instrumented text.
	Source string

	// Map translates instrumented line numbers back to original ones so
	// runtime errors can be reported in original coordinates.
	Map *SourceMap
}

// SourceMap correlates instrumented line numbers with original ones.
type SourceMap struct {
	// toOriginal[n-1] is the original line for instrumented line n.
	// Synthetic tracking lines map to the statement line they precede.
	toOriginal []int

	// synthetic[n-1] marks lines that exist only in the rewrite.
	synthetic []bool
}

// OriginalLine returns the original line for an instrumented line, or 0
// if the line is out of range.
func (m *SourceMap) OriginalLine(n int) int {
	if n < 1 || n > len(m.toOriginal) {
		return 0
	}
	return m.toOriginal[n-1]
}

// IsSynthetic reports whether an instrumented line was inserted by the
// rewriter.
func (m *SourceMap) IsSynthetic(n int) bool {
	if n < 1 || n > len(m.synthetic) {
		return false
	}
	return m.synthetic[n-1]
}

// Instrumentation is the source-rewriting collector. Instrumented code
// calls its tracking builtins, which apply events through the same store
// mutators the debug hook uses.
//
// The trade-off versus the hook is explicit: transformation cost and
// cached rewritten sources up front, in exchange for much lower
// per-statement overhead while tests run. The strategy is chosen per
// session by configuration, never per file.
type Instrumentation struct {
	ap    *applier
	cache map[instKey]*Instrumented
}

// instKey identifies one cached rewrite. The path is part of the key
// because the rewritten text embeds it in every probe call; two files
// with identical content still need separate rewrites so their events
// reach separate store records.
type instKey struct {
	path string
	hash string
}

// NewInstrumentation creates an instrumentation collector writing into
// store.
func NewInstrumentation(store *coverage.Store, an *analyzer.Analyzer, readFile FileLoader, opts Options) *Instrumentation {
	return &Instrumentation{
		ap:    newApplier(store, an, readFile, opts),
		cache: make(map[instKey]*Instrumented),
	}
}

// OnLine implements ExecutionEventSink.
func (c *Instrumentation) OnLine(file string, line int) {
	c.ap.stats.Events++
	c.ap.applyLine(file, line)
}

// OnCall implements ExecutionEventSink.
func (c *Instrumentation) OnCall(file string, line int) {
	c.ap.stats.Events++
	c.ap.applyCall(file, line)
}

// OnReturn implements ExecutionEventSink.
func (c *Instrumentation) OnReturn(string, int) {
	c.ap.stats.Events++
}

// Stats returns the collector's performance counters.
func (c *Instrumentation) Stats() Stats {
	return c.ap.stats
}

// Builtins returns the predeclared values instrumented programs need.
func (c *Instrumentation) Builtins() starlark.StringDict {
	return starlark.StringDict{
		lineBuiltin: starlark.NewBuiltin(lineBuiltin, c.lineCall),
		fnBuiltin:   starlark.NewBuiltin(fnBuiltin, c.fnCall),
		condBuiltin: starlark.NewBuiltin(condBuiltin, c.condCall),
	}
}

func (c *Instrumentation) lineCall(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file string
	var line int
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &file, &line); err != nil {
		return nil, err
	}
	c.OnLine(file, line)
	return starlark.None, nil
}

func (c *Instrumentation) fnCall(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file string
	var line int
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &file, &line); err != nil {
		return nil, err
	}
	c.OnCall(file, line)
	return starlark.None, nil
}

// condCall evaluates to its third argument, so wrapping a guard
// sub-expression preserves value and short-circuit semantics exactly.
func (c *Instrumentation) condCall(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file string
	var id int
	var value starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &file, &id, &value); err != nil {
		return nil, err
	}
	c.ap.stats.Events++
	c.ap.applyCondition(file, coverage.CondID(id), bool(value.Truth()))
	return value, nil
}

// Instrument rewrites source to call the tracking builtins. Results are
// cached per file by content hash, so an unchanged file costs nothing on
// repeated runs.
//
// Only AST-classified files can be rewritten: heuristic line data cannot
// distinguish statement starts from continuations, and a file that does
// not parse cannot be executed anyway.
func (c *Instrumentation) Instrument(path string, src []byte, cm *coverage.CodeMap) (*Instrumented, error) {
	if cm == nil {
		return nil, fmt.Errorf("%w: nil code map for %s", coverage.ErrValidation, path)
	}
	if cm.Strategy != coverage.StrategyAST {
		return nil, fmt.Errorf("%w: %s was classified heuristically and cannot be instrumented", coverage.ErrValidation, path)
	}

	canon, err := c.ap.store.Canonical(path)
	if err != nil {
		return nil, err
	}
	key := instKey{path: canon, hash: coverage.HashSource(src)}
	if inst, ok := c.cache[key]; ok {
		return inst, nil
	}

	inst := rewrite(canon, string(src), key.hash, cm)
	c.cache[key] = inst
	return inst, nil
}

// rewrite performs the actual source transformation.
func rewrite(path, src, hash string, cm *coverage.CodeMap) *Instrumented {
	lines := strings.Split(strings.TrimSuffix(src, "\n"), "\n")
	key := path

	// Function entry probes go before each function's first executable
	// body line.
	fnEntry := make(map[int][]coverage.Function) // original line -> functions entered there
	for _, fn := range cm.Functions {
		for n := fn.StartLine + 1; n <= fn.EndLine && n <= len(lines); n++ {
			if cm.IsExecutable(n) {
				fnEntry[n] = append(fnEntry[n], fn)
				break
			}
		}
	}

	var out []string
	var toOriginal []int
	var synthetic []bool

	emit := func(text string, orig int, synth bool) {
		out = append(out, text)
		toOriginal = append(toOriginal, orig)
		synthetic = append(synthetic, synth)
	}

	for i, text := range lines {
		n := i + 1

		if cm.IsExecutable(n) && canPrefix(text) {
			indent := indentOf(text)
			for _, fn := range fnEntry[n] {
				emit(fmt.Sprintf("%s%s(%q, %d)", indent, fnBuiltin, key, fn.StartLine), n, true)
			}
			emit(fmt.Sprintf("%s%s(%q, %d)", indent, lineBuiltin, key, n), n, true)
		}

		emit(wrapConditions(text, n, key, cm), n, false)
	}

	return &Instrumented{
		Path:   path,
		Hash:   hash,
		Source: strings.Join(out, "\n") + "\n",
		Map:    &SourceMap{toOriginal: toOriginal, synthetic: synthetic},
	}
}

// canPrefix reports whether a tracking statement may legally be inserted
// before the line. elif and else arms continue an enclosing statement, so
// nothing can precede them at the same indentation.
func canPrefix(text string) bool {
	trimmed := strings.TrimSpace(text)
	return !strings.HasPrefix(trimmed, "elif") && !strings.HasPrefix(trimmed, "else")
}

func indentOf(text string) string {
	for i := 0; i < len(text); i++ {
		if text[i] != ' ' && text[i] != '\t' {
			return text[:i]
		}
	}
	return text
}

// condEdit is one insertion into a guard line: a probe-call prefix at a
// condition's start column or its closing paren at the end column.
type condEdit struct {
	col    int // 1-based rune column
	text   string
	prefix bool
	span   int // condition span length, for nesting order
}

// wrapConditions wraps probe calls around the conditions that lie
// entirely on line n: every top-level guard condition plus every leaf, so
// short-circuit evaluation shows up as missing component outcomes.
func wrapConditions(text string, n int, key string, cm *coverage.CodeMap) string {
	var edits []condEdit
	for _, id := range cm.ConditionsContaining(n) {
		cond := cm.Conditions[id]
		if cond.StartLine != n || cond.EndLine != n {
			continue
		}
		if cond.Parent != coverage.NoCondition && cond.Kind != coverage.CondSimple {
			continue
		}
		span := cond.EndCol - cond.StartCol
		edits = append(edits,
			condEdit{col: cond.StartCol, text: fmt.Sprintf("%s(%q, %d, ", condBuiltin, key, cond.ID), prefix: true, span: span},
			condEdit{col: cond.EndCol, text: ")", span: span},
		)
	}
	if len(edits) == 0 {
		return text
	}

	// Insertions are applied right to left so earlier columns stay valid.
	// At equal columns, an inserted item lands left of previously inserted
	// text, so the order is inner prefix, outer prefix, then suffixes,
	// yielding `...) outer( inner(` reading right to left.
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].col != edits[j].col {
			return edits[i].col > edits[j].col
		}
		if edits[i].prefix != edits[j].prefix {
			return edits[i].prefix
		}
		if edits[i].prefix {
			return edits[i].span < edits[j].span
		}
		return edits[i].span > edits[j].span
	})

	runes := []rune(text)
	for _, e := range edits {
		at := e.col - 1
		if at < 0 {
			at = 0
		}
		if at > len(runes) {
			at = len(runes)
		}
		ins := []rune(e.text)
		next := make([]rune, 0, len(runes)+len(ins))
		next = append(next, runes[:at]...)
		next = append(next, ins...)
		next = append(next, runes[at:]...)
		runes = next
	}
	return string(runes)
}
