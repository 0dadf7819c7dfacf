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

// Package render turns a call graph and its computed lifetimes into Graphviz dot text (and,
// via goccy/go-graphviz, rasterized PNG/SVG), so the pass's output can be inspected visually
// instead of only through its raw maps. It has no effect on the analysis itself.
package render

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/nativeopt/escapec/analysis/callgraph"
	"github.com/nativeopt/escapec/analysis/dfir"
	"github.com/nativeopt/escapec/analysis/escape"
)

// Graph returns a dot/graphviz digraph of g: one node per function, one edge per resolved call
// site. When lifetimes is non-nil, each node's label is annotated with its STACK/GLOBAL
// allocation counts (spec.md §3's lifetime map), the same way the teacher's
// EscapeGraph.GraphvizLabel annotates escaped/leaked node status with shape decorations.
func Graph(g *callgraph.Graph, lifetimes callgraph.Lifetimes) string {
	var out bytes.Buffer
	fmt.Fprintf(&out, "digraph { // start of digraph\nrankdir = LR;\nnode [shape=rect];\n")

	ordered := append([]*callgraph.Node(nil), g.Nodes...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })
	ids := make(map[*callgraph.Node]int, len(ordered))
	for i, n := range ordered {
		ids[n] = i
	}

	counts := allocationCounts(ordered, lifetimes)
	for _, n := range ordered {
		label := escapeLabel(n.String())
		if c, ok := counts[n]; ok && (c.stack > 0 || c.global > 0) {
			label = fmt.Sprintf("%s\\nstack=%d global=%d", label, c.stack, c.global)
		}
		extra := ""
		if c, ok := counts[n]; ok && c.global > 0 {
			extra = " style=dashed"
		}
		fmt.Fprintf(&out, "%d [label=\"%s\"%s];\n", ids[n], label, extra)
	}

	for _, site := range g.AllCallSites() {
		if site.Callee == nil {
			continue // unresolved/virtual call site: no edge to draw
		}
		fmt.Fprintf(&out, "%d -> %d;\n", ids[site.Caller], ids[site.Callee])
	}

	fmt.Fprintf(&out, "} // end of digraph\n")
	return out.String()
}

// Condensation returns a dot digraph of the condensation of g: one node per SCC, in the order
// Condensation itself returns them (callees before callers), labeled with its member function
// names.
func Condensation(g *callgraph.Graph) string {
	sccs := callgraph.Condensation(g)
	var out bytes.Buffer
	fmt.Fprintf(&out, "digraph { // start of digraph\nrankdir = LR;\nnode [shape=box style=rounded];\n")

	index := make(map[*callgraph.Node]int, len(g.Nodes))
	for i, scc := range sccs {
		names := make([]string, len(scc.Nodes))
		for j, n := range scc.Nodes {
			names[j] = n.String()
			index[n] = i
		}
		sort.Strings(names)
		fmt.Fprintf(&out, "%d [label=\"%s\"];\n", i, escapeLabel(strings.Join(names, "\\n")))
	}

	seen := map[[2]int]bool{}
	for _, site := range g.AllCallSites() {
		if site.Callee == nil {
			continue
		}
		from, to := index[site.Caller], index[site.Callee]
		if from == to {
			continue // a self-loop within one SCC is not an edge of the condensation DAG
		}
		key := [2]int{from, to}
		if seen[key] {
			continue
		}
		seen[key] = true
		fmt.Fprintf(&out, "%d -> %d;\n", from, to)
	}

	fmt.Fprintf(&out, "} // end of digraph\n")
	return out.String()
}

type allocCount struct {
	stack  int
	global int
}

// allocationCounts attributes every NewObject in lifetimes to the Node whose DFIR body
// contains it, by walking each node's body the same way analysis/callgraph.Build discovers
// call sites.
func allocationCounts(nodes []*callgraph.Node, lifetimes callgraph.Lifetimes) map[*callgraph.Node]allocCount {
	counts := make(map[*callgraph.Node]allocCount, len(nodes))
	if lifetimes == nil {
		return counts
	}
	for _, n := range nodes {
		if n.Func == nil {
			continue
		}
		c := allocCount{}
		walkAllocations(n.Func.RootScope, func(obj *dfir.NewObject) {
			switch lifetimes[obj] {
			case escape.Stack:
				c.stack++
			default:
				c.global++
			}
		})
		counts[n] = c
	}
	return counts
}

func walkAllocations(n dfir.Node, visit func(*dfir.NewObject)) {
	switch t := n.(type) {
	case *dfir.Scope:
		for _, child := range t.Nodes {
			walkAllocations(child, visit)
		}
	case *dfir.NewObject:
		visit(t)
		for _, arg := range t.Arguments {
			walkAllocations(arg, visit)
		}
	case *dfir.Call:
		for _, arg := range t.Arguments {
			walkAllocations(arg, visit)
		}
	case *dfir.FieldWrite:
		walkAllocations(t.Receiver, visit)
		walkAllocations(t.Value, visit)
	case *dfir.FieldRead:
		walkAllocations(t.Receiver, visit)
	case *dfir.ArrayWrite:
		walkAllocations(t.Array, visit)
		walkAllocations(t.Value, visit)
	case *dfir.ArrayRead:
		walkAllocations(t.Array, visit)
	case *dfir.Variable:
		for _, v := range t.Values {
			walkAllocations(v, visit)
		}
	}
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\\", "\\\\"), "\"", "\\\"")
}
