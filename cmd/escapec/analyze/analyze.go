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

// Package analyze implements the frontend to the escape analysis proper: it loads a Go
// program, runs the interprocedural driver over its whole-program call graph, and reports the
// lifetime (stack or global) assigned to every allocation site (spec.md §6/§7).
package analyze

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nativeopt/escapec/analysis/callgraph"
	"github.com/nativeopt/escapec/analysis/config"
	"github.com/nativeopt/escapec/analysis/escape"
	"github.com/nativeopt/escapec/analysis/render"
	"github.com/nativeopt/escapec/cmd/escapec/internal/frontend"
	"github.com/nativeopt/escapec/cmd/escapec/internal/tools"
)

const usage = `Run escape analysis on a Go program and report allocation-site lifetimes.

Usage:
  escapec analyze [options] <package path(s)>

Examples:
  escapec analyze ./cmd/myserver
  escapec analyze -config escapec.yaml -graph out.dot ./...
`

// Flags is the parsed analyze sub-command flags.
type Flags struct {
	tools.CommonFlags
	graphPath string
}

// NewFlags returns the parsed analyze sub-command flags from args.
func NewFlags(args []string) (Flags, error) {
	unparsed := tools.NewUnparsedCommonFlags("analyze")
	graphPath := unparsed.FlagSet.String("graph", "", "output dot file for the lifetime-annotated call graph (no output if unset)")
	tools.SetUsage(unparsed.FlagSet, usage)
	if err := unparsed.FlagSet.Parse(args); err != nil {
		return Flags{}, fmt.Errorf("failed to parse command analyze with args %v: %w", args, err)
	}
	return Flags{
		CommonFlags: tools.CommonFlags{
			FlagSet:    unparsed.FlagSet,
			ConfigPath: *unparsed.ConfigPath,
			Verbose:    *unparsed.Verbose,
			WithTest:   *unparsed.WithTest,
		},
		graphPath: *graphPath,
	}, nil
}

// Run loads the program named by flags' positional arguments, runs the escape analysis over
// it, and prints one line per allocation site naming its assigned lifetime.
func Run(flags Flags) error {
	cfg, err := loadConfig(flags.ConfigPath, flags.Verbose)
	if err != nil {
		return err
	}
	logger := config.NewLogGroup(cfg)

	fmt.Fprintln(os.Stderr, "loading program...")
	loaded, err := frontend.Load(flags.FlagSet.Args(), cfg, flags.WithTest)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "running escape analysis...")
	lifetimes := callgraph.Lifetimes{}
	if err := callgraph.ComputeLifetimes(loaded.Graph, cfg.ToEscapeConfig(), logger, lifetimes); err != nil {
		return fmt.Errorf("escape analysis failed: %w", err)
	}

	report(lifetimes)

	if flags.graphPath != "" {
		if err := writeGraph(loaded.Graph, lifetimes, flags.graphPath); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(path string, verbose bool) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path == "" {
		cfg = config.NewDefault()
	} else {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	if verbose {
		cfg.LogLevel = int(config.DebugLevel)
	}
	return cfg, nil
}

func report(lifetimes callgraph.Lifetimes) {
	var stack, global int
	for _, lt := range lifetimes {
		if lt == escape.Stack {
			stack++
		} else {
			global++
		}
	}
	fmt.Printf("%d allocation sites: %d stack, %d global\n", len(lifetimes), stack, global)
}

// writeGraph writes the dot text for the lifetime-annotated call graph to path, rendering it
// through the embedded graphviz engine unless path names a plain ".dot" file.
func writeGraph(g *callgraph.Graph, lifetimes callgraph.Lifetimes, path string) error {
	dot := render.Graph(g, lifetimes)
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" || ext == "dot" {
		return os.WriteFile(path, []byte(dot), 0644)
	}
	return render.WriteImage(dot, ext, path)
}
