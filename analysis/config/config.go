// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the pass's tunables (spec.md §6) from a yaml file and bridges them
// into an escape.Config, so a command-line caller never has to construct one field by
// field.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/nativeopt/escapec/analysis/escape"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk, yaml-serializable form of every pass tunable (spec.md §6). Zero
// values mean "use the spec default": Load fills in the defaults it knows, and escape.Config
// falls back to the default stack budget and convergence bound when given zero.
type Config struct {
	sourceFile string

	// PkgFilter restricts which functions the driver builds its own summaries for; a
	// function outside the filter is treated as external and classified by
	// analysis/summaries instead of analyzed (mirrors a whole-program pass's usual
	// package-scoping knob).
	PkgFilter string `yaml:"pkg-filter"`

	// ReportsDir is where render output (dot/PNG/SVG dumps, per-SCC summaries) is written.
	ReportsDir string `yaml:"reports-dir"`

	// PointerSize is the runtime geometry's pointer width in bytes (spec.md §4.6).
	PointerSize int `yaml:"pointer-size"`

	// StackArrayBudgetBytes is the per-frame stack-array budget; 0 means the spec default
	// of 65536 (spec.md §4.6, §6).
	StackArrayBudgetBytes int `yaml:"stack-array-budget-bytes"`

	// ConvergenceBound is the number of times a function may be re-analyzed within one
	// SCC's worklist fixpoint before the driver gives up and installs a pessimistic
	// summary; 0 means the spec default of 2 (spec.md §4.3, §6).
	ConvergenceBound int `yaml:"convergence-bound"`

	// PropagateForcedHeap turns off forced-heap depth re-propagation when false, isolating
	// the stack-array budget pass for debugging (spec.md §4.6, §9 Open Question 3).
	// Defaults to true; set explicitly to false to disable.
	PropagateForcedHeap *bool `yaml:"propagate-forced-heap"`

	// LogLevel controls verbosity of the LogGroup this config builds.
	LogLevel int `yaml:"log-level"`

	pkgFilterRegex *regexp.Regexp
}

// NewDefault returns the spec's hard-coded defaults (spec.md §6).
func NewDefault() *Config {
	t := true
	return &Config{
		PointerSize:           8,
		StackArrayBudgetBytes: 65536,
		ConvergenceBound:      2,
		PropagateForcedHeap:   &t,
		LogLevel:              int(InfoLevel),
	}
}

// Load reads and validates a yaml configuration file, filling in spec defaults for any
// field the file leaves zero.
func Load(filename string) (*Config, error) {
	cfg := NewDefault()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}
	cfg.sourceFile = filename

	if cfg.PointerSize <= 0 {
		cfg.PointerSize = 8
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}
	if cfg.PropagateForcedHeap == nil {
		t := true
		cfg.PropagateForcedHeap = &t
	}
	if cfg.PkgFilter != "" {
		r, err := regexp.Compile(cfg.PkgFilter)
		if err != nil {
			return nil, fmt.Errorf("invalid pkg-filter regexp %q: %w", cfg.PkgFilter, err)
		}
		cfg.pkgFilterRegex = r
	}
	return cfg, nil
}

// ToEscapeConfig bridges this yaml-loaded configuration into the escape.Config the
// interprocedural driver and AnalyzeFunction actually consume.
func (c *Config) ToEscapeConfig() escape.Config {
	propagate := true
	if c.PropagateForcedHeap != nil {
		propagate = *c.PropagateForcedHeap
	}
	return escape.Config{
		Geometry:              escape.Geometry{PointerSize: c.PointerSize},
		StackArrayBudgetBytes: c.StackArrayBudgetBytes,
		ConvergenceBound:      c.ConvergenceBound,
		PropagateForcedHeap:   propagate,
	}
}

// MatchPkgFilter returns true if pkgName should be analyzed rather than treated as
// external. No filter configured means everything matches.
func (c *Config) MatchPkgFilter(pkgName string) bool {
	if c.pkgFilterRegex != nil {
		return c.pkgFilterRegex.MatchString(pkgName)
	}
	if c.PkgFilter != "" {
		return strings.HasPrefix(pkgName, c.PkgFilter)
	}
	return true
}

// Verbose returns true if the configured verbosity is Debug or above.
func (c *Config) Verbose() bool {
	return c.LogLevel >= int(DebugLevel)
}
