// Package snapshot assembles the read-only export form of a coverage
// session.
//
// A Snapshot is derived from the store at export time and never mutated
// afterwards; merging two snapshots produces a third. Formatters consume
// this structure and nothing else.
package snapshot

import (
	"github.com/albertocavalcante/starcov/internal/coverage"
)

// Version is the snapshot format version.
const Version = 1

// Summary holds the aggregate counters for a file or a whole snapshot.
//
// TotalLines counts executable lines only. ExecutedLines counts lines
// executed but not covered, so CoveragePercent and ExecutionPercent stay
// in 0..100 without double counting.
type Summary struct {
	TotalLines       int     `json:"total_lines"`
	CoveredLines     int     `json:"covered_lines"`
	ExecutedLines    int     `json:"executed_lines"`
	NotCoveredLines  int     `json:"not_covered_lines"`
	CoveragePercent  float64 `json:"coverage_percent"`
	ExecutionPercent float64 `json:"execution_percent"`
}

// LineCov is the exported per-line record.
type LineCov struct {
	Executed       bool   `json:"executed"`
	Covered        bool   `json:"covered"`
	ExecutionCount uint64 `json:"execution_count"`
}

// BlockCov is the exported per-block record.
type BlockCov struct {
	Kind           string `json:"kind"`
	StartLine      int    `json:"start_line"`
	EndLine        int    `json:"end_line"`
	Parent         int    `json:"parent"`
	Executed       bool   `json:"executed"`
	Covered        bool   `json:"covered"`
	ExecutionCount uint64 `json:"execution_count"`
}

// CondCov is the exported per-condition record.
type CondCov struct {
	Kind                 string `json:"kind"`
	StartLine            int    `json:"start_line"`
	Block                int    `json:"block"`
	TrueOutcomeExecuted  bool   `json:"true_outcome_executed"`
	FalseOutcomeExecuted bool   `json:"false_outcome_executed"`
	ExecutionCount       uint64 `json:"execution_count"`
}

// FuncCov is the exported per-function record.
type FuncCov struct {
	Name           string `json:"name"`
	StartLine      int    `json:"start_line"`
	EndLine        int    `json:"end_line"`
	Executed       bool   `json:"executed"`
	Covered        bool   `json:"covered"`
	ExecutionCount uint64 `json:"execution_count"`
}

// FileCov is the exported record for one source file.
type FileCov struct {
	Summary    Summary          `json:"summary"`
	Strategy   string           `json:"strategy"`
	Lines      map[int]LineCov  `json:"lines"`
	Functions  map[int]FuncCov  `json:"functions,omitempty"`
	Blocks     map[int]BlockCov `json:"blocks,omitempty"`
	Conditions map[int]CondCov  `json:"conditions,omitempty"`
}

// Snapshot is the canonical, versioned export structure.
type Snapshot struct {
	Version int                 `json:"version"`
	Summary Summary             `json:"summary"`
	Files   map[string]*FileCov `json:"files"`
}

// Export assembles a snapshot from the store. Every executable line
// appears, executed or not, so consumers can list missing lines without
// re-analyzing sources.
func Export(store *coverage.Store) *Snapshot {
	snap := &Snapshot{
		Version: Version,
		Files:   make(map[string]*FileCov),
	}

	for _, path := range store.Files() {
		sf, err := store.GetFile(path)
		if err != nil {
			continue
		}
		fc := &FileCov{
			Strategy:   sf.CodeMap().Strategy.String(),
			Lines:      make(map[int]LineCov),
			Functions:  make(map[int]FuncCov),
			Blocks:     make(map[int]BlockCov),
			Conditions: make(map[int]CondCov),
		}

		for _, ln := range sf.Lines() {
			if !ln.Executable {
				continue
			}
			fc.Lines[ln.Number] = LineCov{
				Executed:       ln.Executed,
				Covered:        ln.Covered,
				ExecutionCount: ln.ExecutionCount,
			}
		}
		for _, fn := range sf.Functions() {
			fc.Functions[int(fn.ID)] = FuncCov{
				Name:           fn.Name,
				StartLine:      fn.StartLine,
				EndLine:        fn.EndLine,
				Executed:       fn.Executed,
				Covered:        fn.Covered,
				ExecutionCount: fn.ExecutionCount,
			}
		}
		for _, blk := range sf.Blocks() {
			fc.Blocks[int(blk.ID)] = BlockCov{
				Kind:           blk.Kind.String(),
				StartLine:      blk.StartLine,
				EndLine:        blk.EndLine,
				Parent:         int(blk.Parent),
				Executed:       blk.Executed,
				Covered:        blk.Covered,
				ExecutionCount: blk.ExecutionCount,
			}
		}
		for _, cond := range sf.Conditions() {
			fc.Conditions[int(cond.ID)] = CondCov{
				Kind:                 cond.Kind.String(),
				StartLine:            cond.StartLine,
				Block:                int(cond.Block),
				TrueOutcomeExecuted:  cond.TrueOutcome,
				FalseOutcomeExecuted: cond.FalseOutcome,
				ExecutionCount:       cond.ExecutionCount,
			}
		}

		snap.Files[path] = fc
	}

	snap.Recompute()
	return snap
}

// Recompute rederives every summary from the line records. Decode calls
// this too, so percentages are always a pure function of the counts.
func (s *Snapshot) Recompute() {
	total := Summary{}
	for _, fc := range s.Files {
		fc.Summary = summarize(fc.Lines)
		total.TotalLines += fc.Summary.TotalLines
		total.CoveredLines += fc.Summary.CoveredLines
		total.ExecutedLines += fc.Summary.ExecutedLines
		total.NotCoveredLines += fc.Summary.NotCoveredLines
	}
	finishSummary(&total)
	s.Summary = total
}

func summarize(lines map[int]LineCov) Summary {
	sum := Summary{TotalLines: len(lines)}
	for _, lc := range lines {
		switch {
		case lc.Covered:
			sum.CoveredLines++
		case lc.Executed:
			sum.ExecutedLines++
		default:
			sum.NotCoveredLines++
		}
	}
	finishSummary(&sum)
	return sum
}

func finishSummary(sum *Summary) {
	if sum.TotalLines == 0 {
		sum.CoveragePercent = 100.0
		sum.ExecutionPercent = 100.0
		return
	}
	sum.CoveragePercent = float64(sum.CoveredLines) / float64(sum.TotalLines) * 100.0
	sum.ExecutionPercent = float64(sum.ExecutedLines+sum.CoveredLines) / float64(sum.TotalLines) * 100.0
}
