// Package cmdtest provides a testscript-based test harness for the
// starcov CLI.
//
// It uses txtar format test files to specify input files and expected
// outputs, making it easy to write end-to-end CLI tests.
//
// Example test file (testdata/starcov/run_text.txtar):
//
//	# Coverage for a straight-line script
//	exec starcov run script.star
//	stdout '100.0% covered'
//
//	-- script.star --
//	x = 1
//	y = x + 1
package cmdtest

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/albertocavalcante/starcov/internal/cmd/starcov"
)

// Run executes the testscript tests in the given directory.
func Run(t *testing.T, dir string) {
	testscript.Run(t, testscript.Params{
		Dir: dir,
	})
}

// Main is the TestMain function that should be called from test files.
// It registers the starcov binary as a testscript command.
func Main(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"starcov": func() int { return starcov.Run(os.Args[1:]) },
	}))
}
