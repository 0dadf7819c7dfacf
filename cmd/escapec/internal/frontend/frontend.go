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

// Package frontend is the loading pipeline every escapec subcommand shares: parse and
// type-check the named packages, build SSA and lazily-translated DFIR for them, and build the
// whole-program call graph analysis/callgraph.ComputeLifetimes runs over.
package frontend

import (
	"fmt"

	"golang.org/x/tools/go/packages"

	ourcallgraph "github.com/nativeopt/escapec/analysis/callgraph"
	"github.com/nativeopt/escapec/analysis/config"
	"github.com/nativeopt/escapec/analysis/ssaadapter"
)

// Loaded bundles the whole-program translation every subcommand operates on.
type Loaded struct {
	Program *ssaadapter.Program
	Graph   *ourcallgraph.Graph
}

// Load parses, type-checks, and builds SSA for the packages named by patterns (the same
// package-path/file conventions `go build` accepts), translates every function cfg's package
// filter admits into DFIR, and links the resulting nodes into a call graph.
func Load(patterns []string, cfg *config.Config, withTest bool) (*Loaded, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no packages specified")
	}
	pcfg := &packages.Config{Mode: ssaadapter.PkgLoadMode, Tests: withTest}
	pkgs, err := packages.Load(pcfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		return nil, fmt.Errorf("one or more packages failed to load or type-check")
	}

	prog, err := ssaadapter.NewProgram(pkgs)
	if err != nil {
		return nil, err
	}

	fns := prog.AllFunctions(cfg.MatchPkgFilter)
	graph := ourcallgraph.Build(prog.Nodes(fns))
	return &Loaded{Program: prog, Graph: graph}, nil
}
