// Package analyzer turns Starlark source into a CodeMap: a per-line
// classification, a block tree, a condition graph and a function table.
//
// Classification is two-tier. When the file parses (and stays within the
// configured node and time budgets) the map is AST-derived. When parsing
// fails or a budget is exhausted, the analyzer degrades to a line-pattern
// heuristic for that file only, records the strategy on the map, and
// never surfaces the parse error to the caller.
package analyzer

import (
	"errors"
	"fmt"
	"time"

	"go.starlark.net/syntax"

	"github.com/albertocavalcante/starcov/internal/coverage"
)

// Options configures analysis budgets.
type Options struct {
	// MaxNodes bounds the number of AST nodes visited per file. Zero
	// means the default.
	MaxNodes int

	// MaxDuration bounds the wall-clock time spent analyzing one file.
	// Zero means the default.
	MaxDuration time.Duration

	// DisableAST skips parsing entirely and classifies every file with
	// the heuristic line scan.
	DisableAST bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxNodes:    1 << 20,
		MaxDuration: 5 * time.Second,
	}
}

// Analyzer produces CodeMaps, caching them by content hash so re-analyzing
// unchanged content is a no-op.
type Analyzer struct {
	opts  Options
	cache map[string]*coverage.CodeMap
}

// New creates an analyzer with the given options.
func New(opts Options) *Analyzer {
	def := DefaultOptions()
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = def.MaxNodes
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = def.MaxDuration
	}
	return &Analyzer{
		opts:  opts,
		cache: make(map[string]*coverage.CodeMap),
	}
}

// Analyze returns the CodeMap for the given source. Identical content
// returns the identical cached map regardless of path spelling.
//
// Malformed source is not an error: the result degrades to the heuristic
// strategy with the parse failure recorded in its Notes. The only errors
// are validation errors on the arguments.
func (a *Analyzer) Analyze(path string, src []byte) (*coverage.CodeMap, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", coverage.ErrValidation)
	}

	hash := coverage.HashSource(src)
	if cm, ok := a.cache[hash]; ok {
		return cm, nil
	}

	cm, err := a.analyze(path, src, hash)
	if err != nil {
		return nil, err
	}
	a.cache[hash] = cm
	return cm, nil
}

// Invalidate drops the cached map for the given content hash.
func (a *Analyzer) Invalidate(hash string) {
	delete(a.cache, hash)
}

// analyze builds a fresh CodeMap, choosing the strategy. A block-graph
// cycle is the one condition that is an error rather than a fallback:
// cycles are never silently accepted.
func (a *Analyzer) analyze(path string, src []byte, hash string) (*coverage.CodeMap, error) {
	infos := scanLines(src)

	if a.opts.DisableAST {
		return heuristicMap(path, hash, infos, "static analysis disabled"), nil
	}

	f, err := syntax.Parse(path, src, 0)
	if err != nil {
		return heuristicMap(path, hash, infos, fmt.Sprintf("parse failed, using heuristic classification: %v", err)), nil
	}

	b := newBuilder(path, infos, a.opts)
	if err := b.build(f); err != nil {
		var cerr *coverage.ConsistencyError
		if errors.As(err, &cerr) {
			return nil, cerr
		}
		return heuristicMap(path, hash, infos, fmt.Sprintf("analysis aborted, using heuristic classification: %v", err)), nil
	}
	return b.finish(hash), nil
}

// heuristicMap assembles a CodeMap from the text scan alone. Block,
// condition and function data are absent beyond the root sentinel.
func heuristicMap(path, hash string, infos []lineInfo, note string) *coverage.CodeMap {
	n := len(infos)
	cm := &coverage.CodeMap{
		Path:       path,
		Strategy:   coverage.StrategyHeuristic,
		Hash:       hash,
		LineCount:  n,
		Classes:    make([]coverage.Classification, n),
		Executable: make([]bool, n),
		LineBlocks: make([][]coverage.BlockID, n),
		LineConds:  make([][]coverage.CondID, n),
		Blocks: []coverage.Block{{
			ID:        coverage.RootBlockID,
			Kind:      coverage.BlockRoot,
			StartLine: 1,
			EndLine:   n,
			Parent:    coverage.NoBlock,
		}},
		Notes: []string{note},
	}
	root := []coverage.BlockID{coverage.RootBlockID}
	for i, info := range infos {
		cm.Classes[i] = info.class
		cm.Executable[i] = info.executable
		cm.LineBlocks[i] = root
	}
	return cm
}
