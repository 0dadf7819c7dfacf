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

// Package stats implements a diagnostic frontend printing whole-program call-graph shape
// statistics -- node/edge counts, strongly-connected component sizes, and elementary
// recursion cycles -- useful for sizing the convergence bound before running the full
// analysis on a large program.
package stats

import (
	"fmt"
	"os"
	"sort"

	"github.com/nativeopt/escapec/analysis/callgraph"
	"github.com/nativeopt/escapec/analysis/config"
	"github.com/nativeopt/escapec/cmd/escapec/internal/frontend"
	"github.com/nativeopt/escapec/cmd/escapec/internal/tools"
)

const usage = `Print call-graph shape statistics for a Go program.

Usage:
  escapec stats [options] <package path(s)>
`

// Flags is the parsed stats sub-command flags.
type Flags struct {
	tools.CommonFlags
}

// NewFlags returns the parsed stats sub-command flags from args.
func NewFlags(args []string) (Flags, error) {
	unparsed := tools.NewUnparsedCommonFlags("stats")
	tools.SetUsage(unparsed.FlagSet, usage)
	if err := unparsed.FlagSet.Parse(args); err != nil {
		return Flags{}, fmt.Errorf("failed to parse command stats with args %v: %w", args, err)
	}
	return Flags{CommonFlags: tools.CommonFlags{
		FlagSet:    unparsed.FlagSet,
		ConfigPath: *unparsed.ConfigPath,
		Verbose:    *unparsed.Verbose,
		WithTest:   *unparsed.WithTest,
	}}, nil
}

// Run loads the program named by flags' positional arguments and prints call-graph shape
// statistics for it.
func Run(flags Flags) error {
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
	g := loaded.Graph

	edges := 0
	for _, n := range g.Nodes {
		edges += len(g.CallSites(n))
	}
	fmt.Printf("functions: %d\n", len(g.Nodes))
	fmt.Printf("call sites: %d\n", edges)

	sccs := callgraph.Condensation(g)
	multi := 0
	sizes := make([]int, 0, len(sccs))
	for _, scc := range sccs {
		sizes = append(sizes, len(scc.Nodes))
		if len(scc.Nodes) > 1 {
			multi++
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	fmt.Printf("strongly-connected components: %d (%d with >1 function)\n", len(sccs), multi)
	if len(sizes) > 0 {
		top := sizes
		if len(top) > 5 {
			top = top[:5]
		}
		fmt.Printf("largest component sizes: %v\n", top)
	}

	cycles := callgraph.ElementaryCycles(g)
	fmt.Printf("elementary recursion cycles: %d\n", len(cycles))

	return nil
}
