package cli

import (
	"bytes"
	"errors"
	"testing"
)

func TestExitCodes(t *testing.T) {
	// Verify exit code values match expected Unix conventions
	if ExitOK != 0 {
		t.Errorf("ExitOK = %d, want 0", ExitOK)
	}
	if ExitError != 1 {
		t.Errorf("ExitError = %d, want 1", ExitError)
	}
	if ExitThreshold != 2 {
		t.Errorf("ExitThreshold = %d, want 2", ExitThreshold)
	}
}

func TestWritef(t *testing.T) {
	var buf bytes.Buffer
	Writef(&buf, "coverage: %.1f%% (%d files)", 87.5, 3)

	got := buf.String()
	want := "coverage: 87.5% (3 files)"
	if got != want {
		t.Errorf("Writef() = %q, want %q", got, want)
	}
}

func TestWriteln(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{
			name: "no args",
			args: nil,
			want: "\n",
		},
		{
			name: "single arg",
			args: []any{"hello"},
			want: "hello\n",
		},
		{
			name: "multiple args",
			args: []any{"hello", "world", 42},
			want: "hello world 42\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			Writeln(&buf, tc.args...)

			got := buf.String()
			if got != tc.want {
				t.Errorf("Writeln() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, "hello world")

	got := buf.String()
	want := "hello world"
	if got != want {
		t.Errorf("Write() = %q, want %q", got, want)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestWritersIgnoreWriteErrors(t *testing.T) {
	// Must not panic when stdout/stderr are gone.
	Writef(failWriter{}, "x%d", 1)
	Writeln(failWriter{}, "x")
	Write(failWriter{}, "x")
}
