// Package config provides configuration loading for starcov.
//
// Configuration lives in a declarative starcov.toml file, discovered by
// walking up the directory tree from the working directory (stopping at
// the git root). The STARCOV_CONFIG environment variable or a --config
// flag on individual commands overrides discovery.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/albertocavalcante/starcov/internal/analyzer"
	"github.com/albertocavalcante/starcov/internal/session"
)

// ConfigTOML is the config filename looked up during discovery.
const ConfigTOML = "starcov.toml"

// EnvConfig is the environment variable for specifying a config file path.
const EnvConfig = "STARCOV_CONFIG"

// Config is the starcov configuration.
type Config struct {
	// Analysis controls the static analyzer.
	Analysis AnalysisConfig `json:"analysis" toml:"analysis"`

	// Collect controls the runtime collector.
	Collect CollectConfig `json:"collect" toml:"collect"`

	// Report controls snapshot output.
	Report ReportConfig `json:"report" toml:"report"`
}

// AnalysisConfig bounds and switches the static analyzer.
type AnalysisConfig struct {
	// UseStaticAnalysis enables AST analysis; off, every file gets the
	// heuristic line scan only.
	UseStaticAnalysis bool `json:"use_static_analysis" toml:"use_static_analysis"`

	// MaxNodes caps AST nodes visited per file before falling back to
	// the heuristic scan. Zero takes the analyzer default.
	MaxNodes int `json:"max_nodes" toml:"max_nodes"`

	// MaxTime caps wall-clock analysis time per file (e.g. "5s").
	MaxTime Duration `json:"max_time" toml:"max_time"`
}

// CollectConfig selects the collection strategy and granularity.
type CollectConfig struct {
	// UseInstrumentation collects through injected source probes
	// instead of the interpreter hook.
	UseInstrumentation bool `json:"use_instrumentation" toml:"use_instrumentation"`

	// TrackBlocks propagates line execution to enclosing blocks.
	TrackBlocks bool `json:"track_blocks" toml:"track_blocks"`

	// TrackConditions tracks condition execution and outcomes.
	TrackConditions bool `json:"track_conditions" toml:"track_conditions"`
}

// ReportConfig controls snapshot output.
type ReportConfig struct {
	// Format is the report format: "text", "json", "lcov", or "cobertura".
	Format string `json:"format" toml:"format"`

	// Output is the snapshot output file path.
	Output string `json:"output" toml:"output"`

	// FailUnder fails the run if line coverage is below this percentage.
	FailUnder float64 `json:"fail_under" toml:"fail_under"`
}

// Duration wraps time.Duration for TOML/JSON string parsing.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == 0 {
		return nil, nil
	}
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			UseStaticAnalysis: true,
		},
		Collect: CollectConfig{
			TrackBlocks:     true,
			TrackConditions: true,
		},
		Report: ReportConfig{
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a TOML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing TOML config %s: %w", path, err)
	}
	return cfg, nil
}

// DiscoverConfig searches for a configuration file.
//
// Resolution order:
//  1. If STARCOV_CONFIG is set, use that path.
//  2. Walk up from startDir looking for starcov.toml, stopping at the
//     git root.
//
// Returns the loaded config, the path it came from, and any error. With
// no config found it returns (DefaultConfig(), "", nil).
func DiscoverConfig(startDir string) (*Config, string, error) {
	if envPath := os.Getenv(EnvConfig); envPath != "" {
		cfg, err := LoadConfig(envPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", EnvConfig, err)
		}
		return cfg, envPath, nil
	}

	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("getting working directory: %w", err)
		}
	}

	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path: %w", err)
	}

	gitRoot := findGitRoot(absDir)

	dir := absDir
	for {
		path := filepath.Join(dir, ConfigTOML)
		if fileExists(path) {
			cfg, err := LoadConfig(path)
			if err != nil {
				return nil, "", err
			}
			return cfg, path, nil
		}

		if gitRoot != "" && dir == gitRoot {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}

	return DefaultConfig(), "", nil
}

// SessionOptions translates the config into options for a new session.
func (c *Config) SessionOptions() session.Options {
	mode := session.ModeHook
	if c.Collect.UseInstrumentation {
		mode = session.ModeInstrument
	}
	aopts := analyzer.DefaultOptions()
	aopts.DisableAST = !c.Analysis.UseStaticAnalysis
	if c.Analysis.MaxNodes > 0 {
		aopts.MaxNodes = c.Analysis.MaxNodes
	}
	if c.Analysis.MaxTime.Duration > 0 {
		aopts.MaxDuration = c.Analysis.MaxTime.Duration
	}
	return session.Options{
		Mode:            mode,
		TrackBlocks:     c.Collect.TrackBlocks,
		TrackConditions: c.Collect.TrackConditions,
		Analyzer:        aopts,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// findGitRoot finds the git repository root from a starting directory.
// Returns empty string outside a git repository.
func findGitRoot(startDir string) string {
	dir := startDir
	for {
		if fileExists(filepath.Join(dir, ".git")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
