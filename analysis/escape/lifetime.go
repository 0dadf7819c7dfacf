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

import (
	"sort"

	"github.com/nativeopt/escapec/analysis/dfir"
)

// Lifetime is the classification emitted per allocation site (spec.md §3). Only Stack and
// Global are ever produced by classify; every finer-grained internal category the
// classification table distinguishes (argument, return value, indirect return value,
// ordinary local) collapses to Global before it is ever observed outside this package,
// because only these two values are meaningful to the code generator downstream.
type Lifetime int

const (
	Stack Lifetime = iota
	Global
)

func (l Lifetime) String() string {
	if l == Stack {
		return "STACK"
	}
	return "GLOBAL"
}

// classifyLifetimes runs depth propagation to a fixpoint, applies the stack-array budget,
// and (if enabled) repeats propagation after any stack-budget forcing, until no further
// node is forced to the heap (spec.md §4.6). The round count is bounded by the number of
// nodes in the graph: each round that makes progress forces at least one previously
// unforced node, a strictly monotone and finite process.
func classifyLifetimes(g *Graph, cfg Config) {
	propagateDepths(g)
	if len(g.arena) == 0 {
		return
	}
	for round := 0; round <= len(g.arena); round++ {
		forcedAny := applyStackBudget(g, cfg)
		if !forcedAny || !cfg.PropagateForcedHeap {
			return
		}
		propagateDepths(g)
	}
	fatalf("forced-heap propagation did not converge within %d rounds", len(g.arena)+1)
}

// propagateDepths recomputes every node's depth from scratch: each drain starts at the
// shallowest (most escaping) seed depth among its component's members (or escapesDepth, if
// the drain has been forced to the heap), and that depth is then pushed along field edges
// to the drains they point to, monotonically decreasing until no further change occurs
// (spec.md §4.6). Every non-drain member of a component adopts its drain's final depth,
// since after closure a component represents a single object.
func propagateDepths(g *Graph) {
	drains := drainsOf(g)

	for _, id := range drains {
		dn := g.get(id)
		dn.depth = dn.initial
		if dn.forced && dn.depth > escapesDepth {
			dn.depth = escapesDepth
		}
	}
	for i, n := range g.arena {
		id := NodeID(i)
		drain := g.drainOf[id]
		if drain == id {
			continue
		}
		seed := n.initial
		if n.forced && seed > escapesDepth {
			seed = escapesDepth
		}
		dn := g.get(drain)
		if seed < dn.depth {
			dn.depth = seed
		}
	}

	worklist := append([]NodeID(nil), drains...)
	inWorklist := make(map[NodeID]bool, len(drains))
	for _, id := range drains {
		inWorklist[id] = true
	}
	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		inWorklist[id] = false
		n := g.get(id)
		for _, e := range n.fields {
			target := g.drainOf[e.To]
			tn := g.get(target)
			if n.depth < tn.depth {
				tn.depth = n.depth
				if !inWorklist[target] {
					worklist = append(worklist, target)
					inWorklist[target] = true
				}
			}
		}
	}

	for i := range g.arena {
		id := NodeID(i)
		g.get(id).depth = g.get(g.drainOf[id]).depth
	}
}

// drainsOf returns the distinct drain NodeIDs of g, in ascending order.
func drainsOf(g *Graph) []NodeID {
	out := make([]NodeID, 0, len(g.arena))
	for i := range g.arena {
		id := NodeID(i)
		if g.drainOf[id] == id {
			out = append(out, id)
		}
	}
	return out
}

// classify applies spec.md §4.6's lifetime table to a single node's final depth, already
// collapsed to the Stack/Global distinction that is all a caller ever needs: a node is
// Stack only if it was seeded at an ordinary lexical depth (never ESCAPES, PARAMETER or
// RETURN_VALUE), was never forced to the heap by the stack-array budget, and its depth
// never decreased from that seed during propagation.
func classify(n *node) Lifetime {
	if n.forced {
		return Global
	}
	if n.initial < 0 {
		return Global
	}
	if n.depth == n.initial {
		return Stack
	}
	return Global
}

// arrayCandidate is an allocation site still eligible for stack placement, pending the
// budget's greedy admission.
type arrayCandidate struct {
	drain NodeID
	size  int
}

// applyStackBudget enforces spec.md §4.6's 65536-byte (by default) stack-array budget: of
// the array allocations that would otherwise classify as Stack, it admits the smallest
// ones first until the budget is exhausted, forcing the rest (and any array whose length
// isn't a compile-time constant) to the heap. Reports whether any node was newly forced.
func applyStackBudget(g *Graph, cfg Config) (forcedAny bool) {
	var candidates []arrayCandidate
	for i, n := range g.arena {
		id := NodeID(i)
		if g.drainOf[id] != id || n.forced || n.initial < 0 || n.depth != n.initial {
			continue
		}
		obj, ok := n.origin.(*dfir.NewObject)
		if !ok {
			continue
		}
		decl, ok := obj.ConstructedType.Resolved()
		if !ok {
			continue
		}
		itemSize := decl.Kind().ItemSize(cfg.Geometry.PointerSize)
		if itemSize < 0 {
			continue
		}
		length, ok := arrayLength(obj)
		if !ok {
			n.forced = true
			forcedAny = true
			continue
		}
		size := cfg.Geometry.PointerSize + 4 + itemSize*int(length)
		candidates = append(candidates, arrayCandidate{drain: id, size: size})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].size < candidates[j].size })
	budget := cfg.budget()
	used := 0
	for _, c := range candidates {
		if used+c.size <= budget {
			used += c.size
			continue
		}
		g.get(c.drain).forced = true
		forcedAny = true
	}
	return forcedAny
}

// arrayLength returns the compile-time-constant length of an array NewObject, read from
// its first constructor argument (spec.md §4.6's stack-array candidate rule), or (0,
// false) if the length cannot be statically resolved.
func arrayLength(obj *dfir.NewObject) (int64, bool) {
	if len(obj.Arguments) == 0 {
		return 0, false
	}
	return dfir.IntConst(obj.Arguments[0])
}
