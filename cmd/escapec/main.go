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

package main

import (
	"fmt"
	"os"

	"github.com/nativeopt/escapec/cmd/escapec/analyze"
	"github.com/nativeopt/escapec/cmd/escapec/render"
	"github.com/nativeopt/escapec/cmd/escapec/stats"
)

// Version is the escapec release version, stamped at build time for released binaries.
const Version = "dev"

const usage = `escapec: a whole-program escape analysis for Kotlin/Native-shaped DFIR
Usage:
  escapec [tool] [options] <Go package path(s)>
Tools:
  - analyze: runs the escape analysis and reports allocation-site lifetimes
  - render: renders the call graph (or its condensation) to dot/png/svg
  - stats: prints call-graph shape statistics (SCC sizes, recursion cycles)
Examples:
  Run the analysis:          escapec analyze ./cmd/myserver
  Render the call graph:     escapec render -out callgraph.svg ./cmd/myserver`

//gocyclo:ignore
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "error: expected subcommand\n%s\n", usage)
		os.Exit(2)
	}

	if snd := os.Args[1]; snd == "-help" || snd == "--help" {
		fmt.Println(usage)
		return
	}
	if snd := os.Args[1]; snd == "-version" || snd == "--version" {
		fmt.Println(Version)
		return
	}

	args := os.Args[2:]
	switch cmd := os.Args[1]; cmd {
	case "analyze":
		flags, err := analyze.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := analyze.Run(flags); err != nil {
			errExit(err)
		}
	case "render":
		flags, err := render.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := render.Run(flags); err != nil {
			errExit(err)
		}
	case "stats":
		flags, err := stats.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := stats.Run(flags); err != nil {
			errExit(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "error: unexpected command: %v\n", cmd)
		fmt.Fprintf(os.Stderr, "usage:\n%s\n", usage)
		os.Exit(2)
	}
}

func errExit(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(2)
}
