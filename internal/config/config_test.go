package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/albertocavalcante/starcov/internal/session"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigTOML)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Analysis.UseStaticAnalysis {
		t.Error("static analysis off by default")
	}
	if !cfg.Collect.TrackBlocks || !cfg.Collect.TrackConditions {
		t.Error("block/condition tracking off by default")
	}
	if cfg.Collect.UseInstrumentation {
		t.Error("instrumentation on by default, want hook")
	}
	if cfg.Report.Format != "text" {
		t.Errorf("default format = %q, want text", cfg.Report.Format)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[analysis]
use_static_analysis = false
max_nodes = 5000
max_time = "2s"

[collect]
use_instrumentation = true
track_blocks = false

[report]
format = "lcov"
output = "cov.json"
fail_under = 80.0
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Analysis.UseStaticAnalysis {
		t.Error("use_static_analysis = true, want false")
	}
	if cfg.Analysis.MaxNodes != 5000 {
		t.Errorf("max_nodes = %d, want 5000", cfg.Analysis.MaxNodes)
	}
	if cfg.Analysis.MaxTime.Duration != 2*time.Second {
		t.Errorf("max_time = %v, want 2s", cfg.Analysis.MaxTime.Duration)
	}
	if !cfg.Collect.UseInstrumentation || cfg.Collect.TrackBlocks {
		t.Errorf("collect = %+v", cfg.Collect)
	}
	// Unset keys keep their defaults.
	if !cfg.Collect.TrackConditions {
		t.Error("track_conditions lost its default")
	}
	if cfg.Report.Format != "lcov" || cfg.Report.Output != "cov.json" || cfg.Report.FailUnder != 80.0 {
		t.Errorf("report = %+v", cfg.Report)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig(filepath.Join(dir, "absent.toml")); err == nil {
		t.Error("missing file accepted")
	}

	path := writeConfig(t, dir, "not [valid toml")
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed TOML accepted")
	}

	path = writeConfig(t, dir, "[analysis]\nmax_time = \"forever\"\n")
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("bad duration: err = %v", err)
	}
}

func TestDiscoverConfig(t *testing.T) {
	t.Setenv(EnvConfig, "")
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	want := writeConfig(t, root, "[report]\nformat = \"json\"\n")

	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := DiscoverConfig(nested)
	if err != nil {
		t.Fatalf("DiscoverConfig: %v", err)
	}
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if cfg.Report.Format != "json" {
		t.Errorf("format = %q, want json", cfg.Report.Format)
	}
}

func TestDiscoverConfigStopsAtGitRoot(t *testing.T) {
	t.Setenv(EnvConfig, "")
	outer := t.TempDir()
	writeConfig(t, outer, "[report]\nformat = \"json\"\n")

	repo := filepath.Join(outer, "repo")
	if err := os.MkdirAll(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := DiscoverConfig(repo)
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Errorf("found config above the git root: %q", path)
	}
	if cfg.Report.Format != "text" {
		t.Errorf("format = %q, want the default", cfg.Report.Format)
	}
}

func TestDiscoverConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	envPath := writeConfig(t, dir, "[report]\nfail_under = 90.0\n")
	t.Setenv(EnvConfig, envPath)

	// A local config would otherwise win; the env var takes priority.
	local := filepath.Join(dir, "local")
	if err := os.Mkdir(local, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := DiscoverConfig(local)
	if err != nil {
		t.Fatal(err)
	}
	if path != envPath {
		t.Errorf("path = %q, want %q", path, envPath)
	}
	if cfg.Report.FailUnder != 90.0 {
		t.Errorf("fail_under = %v, want 90", cfg.Report.FailUnder)
	}
}

func TestSessionOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Collect.UseInstrumentation = true
	cfg.Collect.TrackBlocks = false
	cfg.Analysis.UseStaticAnalysis = false
	cfg.Analysis.MaxNodes = 1234
	cfg.Analysis.MaxTime = Duration{Duration: 3 * time.Second}

	opts := cfg.SessionOptions()
	if opts.Mode != session.ModeInstrument {
		t.Errorf("Mode = %v, want instrument", opts.Mode)
	}
	if opts.TrackBlocks || !opts.TrackConditions {
		t.Errorf("tracking = %v/%v", opts.TrackBlocks, opts.TrackConditions)
	}
	if !opts.Analyzer.DisableAST {
		t.Error("DisableAST = false, want true")
	}
	if opts.Analyzer.MaxNodes != 1234 || opts.Analyzer.MaxDuration != 3*time.Second {
		t.Errorf("analyzer bounds = %d/%v", opts.Analyzer.MaxNodes, opts.Analyzer.MaxDuration)
	}
}
