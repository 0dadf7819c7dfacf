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

// Package callgraph models the whole-program call graph the interprocedural driver walks
// (spec.md §4.3): one Node per analyzed function, direct and reversed call edges between
// them, and the individual call-site records each edge is derived from. Construction of
// this graph from a real frontend (devirtualization, resolving indirect calls) is outside
// this package's concern (spec.md §1 Non-goals); Build only discovers the Call nodes
// already present in a DFIR body and links them to Nodes this driver run was given.
package callgraph

import "github.com/nativeopt/escapec/analysis/dfir"

// Node is one function in the call graph: either a function this run owns the body of
// (Func != nil), or a bare external symbol reached only as somebody's callee.
type Node struct {
	Symbol dfir.FunctionSymbol
	Func   *dfir.Function
}

func (n *Node) String() string {
	if n.Symbol != nil {
		return n.Symbol.Name()
	}
	return n.Func.Name
}

// CallSite is one edge of the call graph: the DFIR node found in Caller's body that invokes
// another function -- a *dfir.Call, or a *dfir.NewObject with a resolved constructor acting
// as a call site of its own (spec.md §4.4) -- and the Node it resolves to (nil if Callee is
// virtual or external to this run).
type CallSite struct {
	Caller *Node
	Origin dfir.Node // *dfir.Call or *dfir.NewObject
	Callee *Node
}

// Graph is the direct-and-reversed adjacency the driver and its condensation operate over.
type Graph struct {
	Nodes []*Node

	sites    []*CallSite
	out      map[*Node][]*Node
	in       map[*Node][]*Node
	outSites map[*Node][]*CallSite
}

// Build walks every node's DFIR body (where present) for Call sites, and links each one to
// the Node in nodes whose Symbol matches the call's callee by identity (dfir.FunctionSymbol
// is expected to be interned by the frontend, so pointer/interface equality is meaningful).
// A Call whose callee has no matching Node, or is marked Virtual, gets a CallSite with a nil
// Callee: the interprocedural driver treats these as escaping to Pessimistic.
func Build(nodes []*Node) *Graph {
	g := &Graph{
		Nodes:    nodes,
		out:      make(map[*Node][]*Node, len(nodes)),
		in:       make(map[*Node][]*Node, len(nodes)),
		outSites: make(map[*Node][]*CallSite, len(nodes)),
	}

	bySymbol := make(map[dfir.FunctionSymbol]*Node, len(nodes))
	for _, n := range nodes {
		if n.Symbol != nil {
			bySymbol[n.Symbol] = n
		}
	}

	for _, n := range nodes {
		if n.Func == nil {
			continue
		}
		for _, ref := range callsIn(n.Func) {
			var callee *Node
			if !ref.virtual {
				callee = bySymbol[ref.symbol]
			}
			site := &CallSite{Caller: n, Origin: ref.origin, Callee: callee}
			g.sites = append(g.sites, site)
			g.outSites[n] = append(g.outSites[n], site)
			if callee != nil {
				g.out[n] = append(g.out[n], callee)
				g.in[callee] = append(g.in[callee], n)
			}
		}
	}
	return g
}

// callSiteRef names one call site found during the walk below, before it is resolved
// against the run's known Nodes.
type callSiteRef struct {
	origin  dfir.Node
	symbol  dfir.FunctionSymbol
	virtual bool
}

// callsIn collects every call site reachable from fn's root scope -- a *dfir.Call, or a
// *dfir.NewObject with a resolved constructor acting as a call site of its own (spec.md
// §4.4) -- in the order a depth-first walk of the Scope tree encounters them.
func callsIn(fn *dfir.Function) []callSiteRef {
	var sites []callSiteRef
	var walk func(n dfir.Node)
	walk = func(n dfir.Node) {
		switch t := n.(type) {
		case *dfir.Scope:
			for _, child := range t.Nodes {
				walk(child)
			}
		case *dfir.Call:
			sites = append(sites, callSiteRef{origin: t, symbol: t.Callee, virtual: t.Virtual})
			for _, arg := range t.Arguments {
				walk(arg)
			}
		case *dfir.NewObject:
			if t.Callee != nil {
				sites = append(sites, callSiteRef{origin: t, symbol: t.Callee})
			}
			for _, arg := range t.Arguments {
				walk(arg)
			}
		case *dfir.FieldWrite:
			walk(t.Receiver)
			walk(t.Value)
		case *dfir.FieldRead:
			walk(t.Receiver)
		case *dfir.ArrayWrite:
			walk(t.Array)
			walk(t.Value)
		case *dfir.ArrayRead:
			walk(t.Array)
		case *dfir.Variable:
			for _, v := range t.Values {
				walk(v)
			}
		}
	}
	walk(fn.RootScope)
	return sites
}

// Successors returns the Nodes n directly calls, one entry per resolved call site: a caller
// invoking the same callee twice lists the callee twice here, as in CallSites.
func (g *Graph) Successors(n *Node) []*Node { return g.out[n] }

// Predecessors returns the Nodes that directly call n.
func (g *Graph) Predecessors(n *Node) []*Node { return g.in[n] }

// CallSites returns every call site within n's own body, in source order.
func (g *Graph) CallSites(n *Node) []*CallSite { return g.outSites[n] }

// AllCallSites returns every call site in the graph, in the order Build discovered them.
func (g *Graph) AllCallSites() []*CallSite { return g.sites }
