package snapshot

import (
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Reporter outputs a snapshot in some format.
type Reporter interface {
	// Write outputs the report to the writer.
	Write(w io.Writer, snap *Snapshot) error
}

// NewReporter returns the reporter for a format name: "text", "json",
// "cobertura", or "lcov".
func NewReporter(format string, verbose bool) (Reporter, error) {
	switch format {
	case "text":
		return &TextReporter{Verbose: verbose, ShowMissing: verbose}, nil
	case "json":
		return &JSONReporter{Pretty: true}, nil
	case "cobertura":
		return &CoberturaReporter{}, nil
	case "lcov":
		return &LCOVReporter{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// -----------------------------------------------------------------------------
// Text Reporter
// -----------------------------------------------------------------------------

// TextReporter outputs coverage in human-readable text format.
type TextReporter struct {
	// Verbose enables detailed per-file output.
	Verbose bool

	// ShowMissing shows line numbers that weren't covered.
	ShowMissing bool
}

// Write implements Reporter.
func (r *TextReporter) Write(w io.Writer, snap *Snapshot) error {
	writef(w, "Coverage Report\n")
	writef(w, "===============\n\n")

	if r.Verbose {
		for _, path := range snap.FilePaths() {
			fc := snap.Files[path]
			writef(w, "%-60s %6.1f%% covered, %5.1f%% executed (%d/%d lines)\n",
				truncatePath(path, 60),
				fc.Summary.CoveragePercent,
				fc.Summary.ExecutionPercent,
				fc.Summary.CoveredLines,
				fc.Summary.TotalLines,
			)

			if r.ShowMissing && fc.Summary.NotCoveredLines > 0 {
				if missing := missingLines(fc); len(missing) > 0 {
					writef(w, "  Missing: %s\n", formatLineRanges(missing))
				}
			}
		}
		writef(w, "\n")
	}

	writef(w, "Total: %.1f%% covered, %.1f%% executed (%d/%d lines)\n",
		snap.Summary.CoveragePercent,
		snap.Summary.ExecutionPercent,
		snap.Summary.CoveredLines,
		snap.Summary.TotalLines,
	)

	return nil
}

// FilePaths returns the snapshot's file paths in sorted order.
func (s *Snapshot) FilePaths() []string {
	paths := make([]string, 0, len(s.Files))
	for path := range s.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// sortedLines returns the file's executable line numbers in order.
func sortedLines(fc *FileCov) []int {
	lines := make([]int, 0, len(fc.Lines))
	for n := range fc.Lines {
		lines = append(lines, n)
	}
	sort.Ints(lines)
	return lines
}

func missingLines(fc *FileCov) []int {
	var missing []int
	for _, n := range sortedLines(fc) {
		if !fc.Lines[n].Executed {
			missing = append(missing, n)
		}
	}
	return missing
}

// formatLineRanges formats line numbers as ranges (e.g., "1-5, 10, 15-20").
func formatLineRanges(lines []int) string {
	if len(lines) == 0 {
		return ""
	}

	var parts []string
	start := lines[0]
	end := lines[0]

	for i := 1; i < len(lines); i++ {
		if lines[i] == end+1 {
			end = lines[i]
		} else {
			parts = append(parts, formatRange(start, end))
			start = lines[i]
			end = lines[i]
		}
	}
	parts = append(parts, formatRange(start, end))

	return strings.Join(parts, ", ")
}

func formatRange(start, end int) string {
	if start == end {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d-%d", start, end)
}

func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

// -----------------------------------------------------------------------------
// JSON Reporter
// -----------------------------------------------------------------------------

// JSONReporter outputs the snapshot itself as JSON. The output is
// loadable again with Decode, so report files double as merge inputs.
type JSONReporter struct {
	// Pretty enables indented output.
	Pretty bool
}

// Write implements Reporter.
func (r *JSONReporter) Write(w io.Writer, snap *Snapshot) error {
	return Encode(w, snap, r.Pretty)
}

// -----------------------------------------------------------------------------
// Cobertura XML Reporter
// -----------------------------------------------------------------------------

// CoberturaReporter outputs coverage in Cobertura XML format.
// This is compatible with most CI systems (Jenkins, GitLab, etc.).
type CoberturaReporter struct {
	// SourceDir is the source directory for relative paths.
	SourceDir string
}

type coberturaCoverage struct {
	XMLName         xml.Name          `xml:"coverage"`
	LineRate        string            `xml:"line-rate,attr"`
	BranchRate      string            `xml:"branch-rate,attr"`
	Version         string            `xml:"version,attr"`
	Timestamp       int64             `xml:"timestamp,attr"`
	LinesValid      int               `xml:"lines-valid,attr"`
	LinesCovered    int               `xml:"lines-covered,attr"`
	BranchesValid   int               `xml:"branches-valid,attr"`
	BranchesCovered int               `xml:"branches-covered,attr"`
	Complexity      int               `xml:"complexity,attr"`
	Sources         coberturaSources  `xml:"sources"`
	Packages        coberturaPackages `xml:"packages"`
}

type coberturaSources struct {
	Source []string `xml:"source"`
}

type coberturaPackages struct {
	Package []coberturaPackage `xml:"package"`
}

type coberturaPackage struct {
	Name       string           `xml:"name,attr"`
	LineRate   string           `xml:"line-rate,attr"`
	BranchRate string           `xml:"branch-rate,attr"`
	Complexity int              `xml:"complexity,attr"`
	Classes    coberturaClasses `xml:"classes"`
}

type coberturaClasses struct {
	Class []coberturaClass `xml:"class"`
}

type coberturaClass struct {
	Name       string         `xml:"name,attr"`
	Filename   string         `xml:"filename,attr"`
	LineRate   string         `xml:"line-rate,attr"`
	BranchRate string         `xml:"branch-rate,attr"`
	Complexity int            `xml:"complexity,attr"`
	Lines      coberturaLines `xml:"lines"`
}

type coberturaLines struct {
	Line []coberturaLine `xml:"line"`
}

type coberturaLine struct {
	Number int    `xml:"number,attr"`
	Hits   uint64 `xml:"hits,attr"`
}

// Write implements Reporter.
func (r *CoberturaReporter) Write(w io.Writer, snap *Snapshot) error {
	cov := coberturaCoverage{
		LineRate:     fmt.Sprintf("%.4f", snap.Summary.CoveragePercent/100.0),
		BranchRate:   branchRate(snap),
		Version:      "1.0",
		Timestamp:    time.Now().Unix(),
		LinesValid:   snap.Summary.TotalLines,
		LinesCovered: snap.Summary.CoveredLines,
	}
	cov.BranchesValid, cov.BranchesCovered = branchCounts(snap)

	if r.SourceDir != "" {
		cov.Sources.Source = []string{r.SourceDir}
	}

	// Group files by directory (package)
	packages := make(map[string][]string)
	for _, path := range snap.FilePaths() {
		dir := filepath.Dir(path)
		packages[dir] = append(packages[dir], path)
	}
	pkgNames := make([]string, 0, len(packages))
	for name := range packages {
		pkgNames = append(pkgNames, name)
	}
	sort.Strings(pkgNames)

	for _, pkgName := range pkgNames {
		pkg := coberturaPackage{
			Name:       pkgName,
			BranchRate: "0",
		}

		var pkgTotal, pkgCovered int

		for _, path := range packages[pkgName] {
			fc := snap.Files[path]
			pkgTotal += fc.Summary.TotalLines
			pkgCovered += fc.Summary.CoveredLines

			class := coberturaClass{
				Name:       filepath.Base(path),
				Filename:   path,
				LineRate:   fmt.Sprintf("%.4f", fc.Summary.CoveragePercent/100.0),
				BranchRate: "0",
			}

			for _, n := range sortedLines(fc) {
				class.Lines.Line = append(class.Lines.Line, coberturaLine{
					Number: n,
					Hits:   fc.Lines[n].ExecutionCount,
				})
			}

			pkg.Classes.Class = append(pkg.Classes.Class, class)
		}

		if pkgTotal > 0 {
			pkg.LineRate = fmt.Sprintf("%.4f", float64(pkgCovered)/float64(pkgTotal))
		} else {
			pkg.LineRate = "1.0"
		}

		cov.Packages.Package = append(cov.Packages.Package, pkg)
	}

	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(cov); err != nil {
		return fmt.Errorf("encoding Cobertura XML: %w", err)
	}
	_, _ = w.Write([]byte("\n"))
	return nil
}

// branchCounts treats each condition outcome as one branch.
func branchCounts(snap *Snapshot) (valid, covered int) {
	for _, fc := range snap.Files {
		for _, cc := range fc.Conditions {
			valid += 2
			if cc.TrueOutcomeExecuted {
				covered++
			}
			if cc.FalseOutcomeExecuted {
				covered++
			}
		}
	}
	return valid, covered
}

func branchRate(snap *Snapshot) string {
	valid, covered := branchCounts(snap)
	if valid == 0 {
		return "0"
	}
	return fmt.Sprintf("%.4f", float64(covered)/float64(valid))
}

// -----------------------------------------------------------------------------
// LCOV Reporter
// -----------------------------------------------------------------------------

// LCOVReporter outputs coverage in LCOV tracefile format.
// This is compatible with genhtml and many IDE extensions.
type LCOVReporter struct{}

// Write implements Reporter.
func (r *LCOVReporter) Write(w io.Writer, snap *Snapshot) error {
	for _, path := range snap.FilePaths() {
		fc := snap.Files[path]

		// Test name (TN:)
		writef(w, "TN:\n")

		// Source file (SF:)
		writef(w, "SF:%s\n", path)

		// Function coverage (FN:, FNDA:, FNF:, FNH:)
		fnIDs := make([]int, 0, len(fc.Functions))
		for id := range fc.Functions {
			fnIDs = append(fnIDs, id)
		}
		sort.Ints(fnIDs)
		fnHit := 0
		for _, id := range fnIDs {
			fn := fc.Functions[id]
			writef(w, "FN:%d,%s\n", fn.StartLine, fn.Name)
			writef(w, "FNDA:%d,%s\n", fn.ExecutionCount, fn.Name)
			if fn.Executed {
				fnHit++
			}
		}
		writef(w, "FNF:%d\n", len(fnIDs))
		writef(w, "FNH:%d\n", fnHit)

		// Line coverage (DA:, LF:, LH:)
		for _, n := range sortedLines(fc) {
			writef(w, "DA:%d,%d\n", n, fc.Lines[n].ExecutionCount)
		}
		writef(w, "LF:%d\n", fc.Summary.TotalLines)
		writef(w, "LH:%d\n", fc.Summary.CoveredLines+fc.Summary.ExecutedLines)

		// End of record
		writef(w, "end_of_record\n")
	}

	return nil
}

// Helper for writing to io.Writer
func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
