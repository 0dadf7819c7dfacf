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

// Package render implements a tool for visualizing a program's call graph, either as plain
// call structure or as the condensation (one node per strongly-connected component) that
// analysis/callgraph.ComputeLifetimes actually walks.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nativeopt/escapec/analysis/callgraph"
	"github.com/nativeopt/escapec/analysis/config"
	aRender "github.com/nativeopt/escapec/analysis/render"
	"github.com/nativeopt/escapec/cmd/escapec/internal/frontend"
	"github.com/nativeopt/escapec/cmd/escapec/internal/tools"
)

const usage = `Render a program's call graph.

Usage:
  escapec render [options] <package path(s)>

Examples:
  Render the call graph with allocation-site lifetime annotations:
  % escapec render -out callgraph.svg ./cmd/myserver
  Render the condensation (one node per recursion component):
  % escapec render -condensation -out scc.dot ./cmd/myserver
`

// Flags is the parsed render sub-command flags.
type Flags struct {
	tools.CommonFlags
	out          string
	condensation bool
}

// NewFlags returns the parsed render sub-command flags from args.
func NewFlags(args []string) (Flags, error) {
	unparsed := tools.NewUnparsedCommonFlags("render")
	out := unparsed.FlagSet.String("out", "", "output path; format inferred from extension (.dot, .png, .svg, ...)")
	condensation := unparsed.FlagSet.Bool("condensation", false, "render the call-graph condensation instead of the full call graph")
	tools.SetUsage(unparsed.FlagSet, usage)
	if err := unparsed.FlagSet.Parse(args); err != nil {
		return Flags{}, fmt.Errorf("failed to parse command render with args %v: %w", args, err)
	}
	return Flags{
		CommonFlags: tools.CommonFlags{
			FlagSet:    unparsed.FlagSet,
			ConfigPath: *unparsed.ConfigPath,
			Verbose:    *unparsed.Verbose,
			WithTest:   *unparsed.WithTest,
		},
		out:          *out,
		condensation: *condensation,
	}, nil
}

// Run loads the program named by flags' positional arguments and writes a graph rendering of
// it to flags.out.
func Run(flags Flags) error {
	if flags.out == "" {
		return fmt.Errorf("-out is required")
	}

	var cfg *config.Config
	var err error
	if flags.ConfigPath == "" {
		cfg = config.NewDefault()
	} else {
		cfg, err = config.Load(flags.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config %s: %w", flags.ConfigPath, err)
		}
	}

	fmt.Fprintln(os.Stderr, "loading program...")
	loaded, err := frontend.Load(flags.FlagSet.Args(), cfg, flags.WithTest)
	if err != nil {
		return err
	}

	var dot string
	if flags.condensation {
		dot = aRender.Condensation(loaded.Graph)
	} else {
		fmt.Fprintln(os.Stderr, "running escape analysis for lifetime annotations...")
		lifetimes := callgraph.Lifetimes{}
		if err := callgraph.ComputeLifetimes(loaded.Graph, cfg.ToEscapeConfig(), config.NewLogGroup(cfg), lifetimes); err != nil {
			return fmt.Errorf("escape analysis failed: %w", err)
		}
		dot = aRender.Graph(loaded.Graph, lifetimes)
	}

	ext := strings.TrimPrefix(filepath.Ext(flags.out), ".")
	if ext == "" || ext == "dot" {
		return os.WriteFile(flags.out, []byte(dot), 0644)
	}
	return aRender.WriteImage(dot, ext, flags.out)
}
