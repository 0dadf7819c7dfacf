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

package callgraph

import (
	"github.com/nativeopt/escapec/analysis/config"
	"github.com/nativeopt/escapec/analysis/dfir"
	"github.com/nativeopt/escapec/analysis/escape"
	"github.com/nativeopt/escapec/analysis/roles"
	"github.com/pkg/errors"
)

// Lifetimes is the pass's sole output sink (spec.md §6): allocation-site identity to its
// assigned Lifetime. ComputeLifetimes requires this to be empty at entry (spec.md §7).
type Lifetimes map[*dfir.NewObject]escape.Lifetime

// summaries is a CalleeSummaries backed by the driver's running table of converged (or
// pessimistically-abandoned) per-function results, keyed by the symbol other functions use
// to call them.
type summaries map[dfir.FunctionSymbol]*escape.FunctionEscapeAnalysisResult

func (s summaries) Summary(sym dfir.FunctionSymbol) (*escape.FunctionEscapeAnalysisResult, bool) {
	r, ok := s[sym]
	return r, ok
}

// ComputeLifetimes runs the interprocedural driver (spec.md §4.3) over g: the condensation
// is visited in an order where every callee's component is processed no later than its
// caller's, each multi-node is carried to an internal worklist fixpoint (re-analyzing only
// the members whose summary actually changed, and only their in-component callers), and the
// lifetime of every allocation site walked along the way is written into out.
//
// A function whose summary has not stabilized after ConvergenceBound re-analyses within its
// own multi-node is abandoned with a logged warning: its table entry becomes
// escape.Pessimistic(paramCount), and it is dropped from the live set so it can no longer
// trigger further re-analysis of its in-component callers. Its own allocations keep
// whatever lifetimes its last completed analysis assigned them; the pass does not discard
// partial progress just because the function's externally visible summary never settled.
func ComputeLifetimes(g *Graph, cfg escape.Config, logger *config.LogGroup, out Lifetimes) error {
	if len(out) != 0 {
		return errors.New("escape analysis: lifetimes output map must be empty at entry")
	}

	infos := make(map[*Node]*roles.Result, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Func != nil {
			infos[n] = roles.Analyze(n.Func)
		}
	}

	sums := summaries{}
	for _, scc := range Condensation(g) {
		if err := runSCC(g, scc, cfg, logger, infos, sums, out); err != nil {
			return err
		}
	}
	return nil
}

func runSCC(
	g *Graph,
	scc SCC,
	cfg escape.Config,
	logger *config.LogGroup,
	infos map[*Node]*roles.Result,
	sums summaries,
	out Lifetimes,
) error {
	live := make(map[*Node]bool, len(scc.Nodes))
	reanalysis := make(map[*Node]int, len(scc.Nodes))
	var worklist []*Node
	enqueued := make(map[*Node]bool, len(scc.Nodes))

	for _, n := range scc.Nodes {
		if n.Func == nil {
			continue // external or unresolved member: no body to analyze
		}
		live[n] = true
		worklist = append(worklist, n)
		enqueued[n] = true
	}

	// spec.md §4.3 step 2: before the fixpoint runs, every live member's summary starts
	// optimistic (no escape) rather than absent, so a call to a not-yet-analyzed sibling
	// within the same component is treated as non-escaping on the first pass instead of
	// falling through resolveSummary to Pessimistic. Mutually recursive functions that
	// genuinely don't leak their arguments converge on that optimistic summary; ones that
	// do leak flip it to something worse and requeue their in-component callers below.
	for n := range live {
		if n.Symbol != nil {
			sums[n.Symbol] = escape.Optimistic(len(n.Func.Params))
		}
	}

	for len(worklist) > 0 {
		n := worklist[0]
		worklist = worklist[1:]
		enqueued[n] = false
		if !live[n] {
			continue
		}

		if reanalysis[n] >= cfg.ConvergenceLimit() {
			if n.Symbol != nil {
				sums[n.Symbol] = escape.Pessimistic(len(n.Func.Params))
			}
			live[n] = false
			if logger != nil {
				logger.Warnf("escape analysis for %s did not converge within %d re-analyses, falling back to pessimistic", n, cfg.ConvergenceLimit())
			}
			continue
		}
		reanalysis[n]++

		result, err := escape.AnalyzeFunction(n.Func, infos[n], cfg, sums)
		if err != nil {
			return err
		}

		changed := true
		if n.Symbol != nil {
			if prev, ok := sums[n.Symbol]; ok {
				changed = !prev.Equal(result.Summary)
			}
			sums[n.Symbol] = result.Summary
		}

		for obj, lt := range result.Allocations {
			out[obj] = lt
		}

		if !changed {
			continue
		}
		for _, caller := range g.Predecessors(n) {
			if live[caller] && !enqueued[caller] {
				worklist = append(worklist, caller)
				enqueued[caller] = true
			}
		}
	}
	return nil
}
