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

package escape

import "github.com/nativeopt/escapec/analysis/dfir"

// callSite is the common shape resolveSummary/inlineCallSite need from either a *dfir.Call
// or a *dfir.NewObject acting as a constructor invocation (spec.md §4.4).
type callSite struct {
	callee    dfir.FunctionSymbol
	arguments []dfir.Node
	virtual   bool
}

// inlineCalls resolves every call site in g against callees and splices each one's
// compressed summary into the graph (spec.md §4.4): the callee's formal parameters alias
// the actual argument nodes, its return value aliases the call's own result node, and each
// of its escaping drains gets a node fresh to this call site, wired up by the same field
// edges the summary records. A NewObject with a resolved constructor is itself a call site:
// its args[0] is the newly allocated object standing in for the receiver, args[1..n] are the
// constructor's own arguments (spec.md §4.4) -- a constructor that stashes `this` into a
// global is visible through the same mechanism a sink function's parameter escape is.
func inlineCalls(g *Graph, fn *dfir.Function, callees CalleeSummaries) {
	for _, id := range g.allIDs() {
		switch n := g.get(id).origin.(type) {
		case *dfir.Call:
			cs := callSite{callee: n.Callee, arguments: n.Arguments, virtual: n.Virtual}
			inlineCallSite(g, id, cs, resolveSummary(cs, callees))
		case *dfir.NewObject:
			if n.Callee == nil {
				continue // no constructor symbol: build.go's Intestines folding covers it
			}
			cs := callSite{callee: n.Callee, arguments: append([]dfir.Node{n}, n.Arguments...)}
			inlineCallSite(g, id, cs, resolveSummary(cs, callees))
		}
	}
}

// resolveSummary picks the compressed summary to inline at a single call site: a resolved,
// statically-known, non-virtual callee's own converged summary, or Pessimistic for anything
// else -- an unresolved external symbol, a virtual dispatch, or (within an interprocedural
// fixpoint that hasn't converged yet) a callee the driver has no summary for (spec.md §4.3,
// §6).
func resolveSummary(cs callSite, callees CalleeSummaries) *FunctionEscapeAnalysisResult {
	if !cs.virtual {
		if s, ok := callees.Summary(cs.callee); ok && s.ParamCount == len(cs.arguments) {
			return s
		}
	}
	return Pessimistic(len(cs.arguments))
}

// inlineCallSite splices one already-resolved summary into g at a single call node: RefParam
// resolves to the actual argument at that index, RefReturn resolves to the call node itself
// (the value a caller of the call sees, or the allocated object itself for a constructor
// call site), and each distinct RefDrain gets its own node, created fresh the first time this
// call site refers to it and reused for the rest of this call's edges.
func inlineCallSite(g *Graph, callID NodeID, cs callSite, summary *FunctionEscapeAnalysisResult) {
	callDrains := make(map[int]NodeID, summary.Graph.NumDrains)
	resolve := func(ref NodeRef) NodeID {
		switch ref.Kind {
		case RefReturn:
			return callID
		case RefParam:
			if ref.Index < 0 || ref.Index >= len(cs.arguments) {
				return invalidNodeID
			}
			return g.nodeFor(cs.arguments[ref.Index])
		default: // RefDrain
			if id, ok := callDrains[ref.Index]; ok {
				return id
			}
			id := g.newNode(nil, infinity)
			callDrains[ref.Index] = id
			return id
		}
	}

	for _, ref := range summary.Graph.Escaping {
		id := resolve(ref)
		if id == invalidNodeID {
			g.droppedCallEdges++
			continue
		}
		g.get(id).initial = escapesDepth
	}

	for _, e := range summary.Graph.Edges {
		from, to := resolve(e.From), resolve(e.To)
		if from == invalidNodeID || to == invalidNodeID {
			g.droppedCallEdges++
			continue
		}
		if len(e.Path) == 0 {
			g.addAssignEdge(from, to)
			continue
		}
		g.addFieldEdge(from, dfir.Field{Hash: e.Path[0]}, to)
	}
}
