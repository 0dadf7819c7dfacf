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
	"github.com/nativeopt/escapec/analysis/dfir"
	"github.com/nativeopt/escapec/analysis/roles"
)

// build seeds a fresh Graph from a function's role-assignment result (spec.md §4.4): every
// node the role pass reached gets a PTG node at its seed depth, and every role entry that
// names a relationship between two nodes becomes a PTG edge.
func build(fn *dfir.Function, info *roles.Result) *Graph {
	g := newGraph(fn)

	seeded := map[dfir.Node]bool{}
	seed := func(n dfir.Node) {
		if seeded[n] {
			return
		}
		seeded[n] = true
		g.newNode(n, seedDepth(n, info.Info(n)))
	}

	// Parameters are seeded explicitly first: a parameter that the role pass never
	// visited as a primary subject (only ever named as the "other side" of someone
	// else's entry) would otherwise be missing from info.Nodes() and wrongly seeded at
	// depth infinity by the lazy nodeFor path below.
	for _, p := range fn.Params {
		seed(p)
	}
	for _, n := range info.Nodes() {
		seed(n)
	}

	for _, p := range fn.Params {
		g.params = append(g.params, g.nodeFor(p))
	}
	g.newReturnNode(infinity)

	for _, n := range info.Nodes() {
		insertEdges(g, n, info.Info(n))

		if obj, ok := n.(*dfir.NewObject); ok && obj.Callee == nil {
			// No constructor symbol to inline a real summary for (callsite.go's
			// inlineCalls handles the resolved case): fall back to the conservative
			// over-approximation of folding every argument into the Intestines sentinel,
			// the same treatment array contents get. Any FieldWrite that separately names
			// Receiver: obj still gets its own precise field edge above.
			for _, arg := range obj.Arguments {
				g.addFieldEdge(g.nodeFor(n), dfir.Intestines, g.nodeFor(arg))
			}
		}
	}

	for _, x := range fn.Returns {
		g.addFieldEdge(g.ret, dfir.ReturnValue, g.nodeFor(x))
	}

	return g
}

// seedDepth computes a node's initial depth per spec.md §4.4: nodes that escape
// intraprocedurally start at ESCAPES, parameters at PARAMETER, nodes carrying the
// ReturnValue role at RETURN_VALUE, and everything else at its lexical depth.
func seedDepth(n dfir.Node, ni *roles.NodeInfo) int {
	if ni.Escapes() {
		return roles.ESCAPES
	}
	if _, ok := n.(*dfir.Parameter); ok {
		return roles.PARAMETER
	}
	if ni.Has(roles.ReturnValue) {
		return roles.RETURN_VALUE
	}
	return ni.Depth
}

// insertEdges turns the role entries recorded for a single node into PTG edges. Assigned
// entries become assignment (may-alias) edges; WriteField/ReadField entries become field
// edges, in the read case routed through the field's own node so later reads and writes of
// the same field observe each other.
func insertEdges(g *Graph, n dfir.Node, ni *roles.NodeInfo) {
	id := g.nodeFor(n)

	for _, e := range ni.Entries(roles.Assigned) {
		g.addAssignEdge(id, g.nodeFor(e.Other))
	}
	for _, e := range ni.Entries(roles.WriteField) {
		g.addFieldEdge(id, e.Field, g.nodeFor(e.Other))
	}
	for _, e := range ni.Entries(roles.ReadField) {
		slot := g.gotoField(id, e.Field)
		g.addAssignEdge(slot, g.nodeFor(e.Other))
	}
}
