// Package patchup reconciles static structure with runtime observations
// at the end of a session.
//
// It runs exactly once, between the last runtime event and export. Static
// analysis is the final authority on executability: runtime markings on
// lines the analyzer proved non-executable are revoked here, block
// execution is re-derived from line evidence, and structural orphans are
// repaired rather than reported as failures. Patchup never fails a
// session; everything it fixes is listed on the report.
package patchup

import (
	"fmt"

	"github.com/albertocavalcante/starcov/internal/coverage"
)

// Report describes what reconciliation found and repaired.
type Report struct {
	// StrippedLines counts line records whose runtime state was revoked
	// because the line is statically non-executable.
	StrippedLines int

	// RederivedBlocks counts blocks whose executed state was corrected
	// from their contained lines.
	RederivedBlocks int

	// Orphans lists structural defects that were repaired by relinking to
	// the file's root block. Non-fatal.
	Orphans []coverage.ConsistencyError

	// Notes carries human-readable detail for each repair.
	Notes []string
}

// Reconcile runs the patchup pass over every file in the store.
func Reconcile(store *coverage.Store) *Report {
	report := &Report{}
	for _, path := range store.Files() {
		sf, err := store.GetFile(path)
		if err != nil {
			continue
		}
		reconcileFile(store, sf, report)
	}
	return report
}

func reconcileFile(store *coverage.Store, sf *coverage.SourceFile, report *Report) {
	path := sf.Path()

	// Orphaned blocks: a parent link analysis never resolved. Relink to
	// the root sentinel so the tree stays navigable.
	for _, blk := range sf.Blocks() {
		if blk.ID == coverage.RootBlockID || blk.Parent != coverage.NoBlock {
			continue
		}
		if err := store.RelinkBlockToRoot(path, blk.ID); err != nil {
			continue
		}
		report.Orphans = append(report.Orphans, coverage.ConsistencyError{
			Path: path,
			Kind: "orphan-block",
			ID:   int(blk.ID),
		})
		report.Notes = append(report.Notes, fmt.Sprintf("%s: block %d relinked to root", path, blk.ID))
	}

	// Runtime flags on statically non-executable lines are contradictions
	// to revoke, not evidence to keep: interpreters fire spurious events
	// at statement boundaries.
	for _, ln := range sf.Lines() {
		if ln.Executable || (!ln.Executed && !ln.Covered) {
			continue
		}
		if err := store.ClearLineExecution(path, ln.Number); err != nil {
			continue
		}
		report.StrippedLines++
		report.Notes = append(report.Notes, fmt.Sprintf("%s:%d: cleared execution on %s line", path, ln.Number, ln.Class))
	}

	// Block executed state must agree with contained line evidence. The
	// two collection strategies mark at different granularities, so either
	// direction of disagreement is possible.
	for _, blk := range sf.Blocks() {
		hasEvidence := blockHasExecutedLine(sf, blk)
		switch {
		case hasEvidence && !blk.Executed:
			if err := store.SetBlockExecuted(path, blk.ID); err == nil {
				report.RederivedBlocks++
			}
		case !hasEvidence && blk.Executed:
			if err := store.ClearBlockExecution(path, blk.ID); err == nil {
				report.RederivedBlocks++
				report.Notes = append(report.Notes, fmt.Sprintf("%s: block %d marked executed without an executed line", path, blk.ID))
			}
		}
	}
}

// blockHasExecutedLine reports whether any line within the block's range
// (including its header) is executed.
func blockHasExecutedLine(sf *coverage.SourceFile, blk coverage.Block) bool {
	for n := blk.StartLine; n <= blk.EndLine; n++ {
		ln, ok := sf.Line(n)
		if ok && ln.Executed {
			return true
		}
	}
	return false
}
