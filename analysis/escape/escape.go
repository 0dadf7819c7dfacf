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

// Package escape implements the escape/lifetime analysis pass: given a function's DFIR
// body and the already-converged compressed summaries of its callees, it computes a
// points-to graph, closes it over call-site inlining and drain aliasing, classifies every
// allocation site's lifetime, and emits both the classification and a fresh compressed
// summary for the function itself.
//
// The points-to graph follows Whaley and Rinard's compositional pointer-and-escape
// analysis (John Whaley and Martin Rinard. 1999. Compositional Pointer And Escape Analysis
// For Java Programs. SIGPLAN Not. 34, 10 (Oct. 1999), 187-206), adapted to a two-stage
// design: an intraprocedural role-assignment pass (analysis/roles) feeds a single,
// interprocedural points-to/escape stage driven bottom-up over a call-graph condensation
// (analysis/callgraph).
package escape

import (
	"github.com/nativeopt/escapec/analysis/dfir"
	"github.com/nativeopt/escapec/analysis/roles"
	"github.com/pkg/errors"
)

// depth sentinels, re-exported from analysis/roles for convenience within this package.
const (
	escapesDepth   = roles.ESCAPES
	parameterDepth = roles.PARAMETER
	returnDepth    = roles.RETURN_VALUE
	infinity       = roles.INFINITY
)

// Geometry captures the runtime facts the array item-size table and stack-array budget
// computation depend on (spec.md §4.6).
type Geometry struct {
	PointerSize int
}

// Config bundles every tunable of the interprocedural pass.
type Config struct {
	Geometry Geometry

	// StackArrayBudgetBytes is the maximum combined size of stack-allocated arrays in a
	// single frame (spec.md §4.6). Zero means "use the spec default of 65536".
	StackArrayBudgetBytes int

	// ConvergenceBound is the number of times a function may be re-analyzed within a
	// single SCC worklist fixpoint before the driver falls back to Pessimistic (spec.md
	// §4.3, §9 Open Question 2).
	ConvergenceBound int

	// PropagateForcedHeap re-seeds depth propagation after the stack-array budget forces
	// a node to GLOBAL, so that anything reachable from it is forced too (spec.md §4.6).
	// Experimental: turning it off isolates the stack-budget pass from forced-heap
	// propagation when debugging either independently (spec.md §9 Open Question 3).
	PropagateForcedHeap bool
}

// DefaultConfig returns the spec's hard-coded defaults.
func DefaultConfig() Config {
	return Config{
		Geometry:              Geometry{PointerSize: 8},
		StackArrayBudgetBytes: 65536,
		ConvergenceBound:      2,
		PropagateForcedHeap:   true,
	}
}

func (c Config) budget() int {
	if c.StackArrayBudgetBytes > 0 {
		return c.StackArrayBudgetBytes
	}
	return 65536
}

// ConvergenceLimit returns the configured convergence bound, or the spec default of 2 if
// unset (spec.md §4.3, §6).
func (c Config) ConvergenceLimit() int {
	if c.ConvergenceBound > 0 {
		return c.ConvergenceBound
	}
	return 2
}

// FatalError marks an invariant violation that is a programming bug, not a user input
// problem (spec.md §7): an unresolved Type, a malformed summary, a PTG that fails its
// drain invariants after closure. AnalyzeFunction recovers these at the function boundary
// and returns them as a normal error, so a library caller never sees a panic.
type FatalError struct {
	cause error
}

func (e *FatalError) Error() string { return e.cause.Error() }
func (e *FatalError) Unwrap() error  { return e.cause }

func fatalf(format string, args ...any) {
	panic(&FatalError{cause: errors.Errorf(format, args...)})
}

// CalleeSummaries resolves the already-computed summary for a statically known callee, by
// identity of its dfir.FunctionSymbol. Returns (nil, false) for a callee this driver run
// has not (yet, or ever will) compute a summary for, in which case the caller falls back to
// an externally supplied annotation or Pessimistic.
type CalleeSummaries interface {
	Summary(sym dfir.FunctionSymbol) (*FunctionEscapeAnalysisResult, bool)
}

// Result is AnalyzeFunction's output: the compressed summary a caller of this function
// reuses when it is itself analyzed, plus the concrete Lifetime of every allocation site in
// this function's own body, which is the pass's actual deliverable to the code generator
// (spec.md §1).
type Result struct {
	Summary     *FunctionEscapeAnalysisResult
	Allocations map[*dfir.NewObject]Lifetime
}

// AnalyzeFunction runs the full interprocedural pass (spec.md §4.4-§4.7) for a single
// function, given its intraprocedural role-assignment result and the converged summaries
// of its callees. Invariant violations raised internally via fatalf are recovered here and
// returned as a normal error (spec.md §7); any other panic is re-raised.
func AnalyzeFunction(fn *dfir.Function, info *roles.Result, cfg Config, callees CalleeSummaries) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FatalError); ok {
				err = fe
				return
			}
			panic(r)
		}
	}()

	g := build(fn, info)
	inlineCalls(g, fn, callees)
	closeGraph(g)
	classifyLifetimes(g, cfg)
	return &Result{
		Summary:     paint(g, cfg),
		Allocations: allocationLifetimes(g),
	}, nil
}
