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

// paint extracts the compressed, call-site-inlinable summary of g (spec.md §4.7): starting
// from the function's parameters and return value, it walks field edges outward, renumbers
// every drain it reaches as Drain(0), Drain(1), ... in discovery order, and records each
// field edge as a CompressedEdge between the named endpoints.
//
// Every drain reachable this way is, by construction, observable from outside the function
// (either directly, as a parameter or the return value, or transitively through one); a
// drain closeGraph produced that this walk never reaches held only purely private state
// and is correctly omitted from the summary. This subsumes the "interesting drains" pruning
// of spec.md §4.7 without a separate pass: the BFS frontier already is the interesting set.
func paint(g *Graph, cfg Config) *FunctionEscapeAnalysisResult {
	paramRef := make(map[NodeID]NodeRef, len(g.params))
	for i, p := range g.params {
		paramRef[g.drainOf[p]] = NodeRef{Kind: RefParam, Index: i}
	}
	retDrain := g.drainOf[g.ret]

	drainNumber := map[NodeID]int{}
	nextDrain := 0
	refFor := func(drain NodeID) NodeRef {
		if r, ok := paramRef[drain]; ok {
			return r
		}
		if drain == retDrain {
			return NodeRef{Kind: RefReturn}
		}
		if k, ok := drainNumber[drain]; ok {
			return NodeRef{Kind: RefDrain, Index: k}
		}
		k := nextDrain
		nextDrain++
		drainNumber[drain] = k
		return NodeRef{Kind: RefDrain, Index: k}
	}

	var edges []CompressedEdge
	var escaping []NodeRef

	roots := make([]NodeID, 0, len(g.params)+1)
	roots = append(roots, retDrain)
	for _, p := range g.params {
		roots = append(roots, g.drainOf[p])
	}

	visited := map[NodeID]bool{}
	queue := append([]NodeID(nil), roots...)
	for _, id := range roots {
		visited[id] = true
	}
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		dn := g.get(d)
		fromRef := refFor(d)

		// Only a drain whose propagated depth reached ESCAPES is reported escaping; a
		// parameter or return-value seed depth alone does not make a drain escape.
		if dn.depth == escapesDepth {
			escaping = append(escaping, fromRef)
		}

		for _, e := range dn.fields {
			target := g.drainOf[e.To]
			toRef := refFor(target)
			edges = append(edges, CompressedEdge{From: fromRef, Path: []uint64{e.Field.Hash}, To: toRef})
			if !visited[target] {
				visited[target] = true
				queue = append(queue, target)
			}
		}
	}

	return &FunctionEscapeAnalysisResult{
		ParamCount: len(g.params),
		Graph: CompressedPointsToGraph{
			NumDrains: nextDrain,
			Edges:     sortEdges(edges),
			Escaping:  sortRefs(escaping),
		},
	}
}

// allocationLifetimes reports the final Lifetime classification of every allocation site in
// g, keyed by the NewObject node it was seeded from (spec.md §3's actual deliverable: a
// mapping from allocation sites to lifetimes, for the code generator). A Singleton is not an
// allocation site: it names a process-wide value that already exists independent of this
// call, so it has no per-call lifetime to classify.
func allocationLifetimes(g *Graph) map[*dfir.NewObject]Lifetime {
	out := map[*dfir.NewObject]Lifetime{}
	for _, id := range g.allIDs() {
		n := g.get(id)
		obj, ok := n.origin.(*dfir.NewObject)
		if !ok {
			continue
		}
		out[obj] = classify(n)
	}
	return out
}
