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
	"fmt"
	"sort"

	"github.com/nativeopt/escapec/analysis/dfir"
	"github.com/spakin/disjoint"
)

// NodeID is an arena handle into a Graph's node slice. Nodes are never referenced by raw
// pointer outside this package, so a Graph can be copied/serialized and compared by value
// modulo its node slice (spec.md §9).
type NodeID int

const invalidNodeID NodeID = -1

// fieldEdge is an outgoing field pointer: `from.field -> To`. Field is compared by Hash
// only (spec.md §3); Intestines unifies every array index.
type fieldEdge struct {
	Field dfir.Field
	To    NodeID
}

// node is one vertex of the points-to graph. Assignment edges (out) model "may point to
// the same object as"; field edges (fields) model "has a field that points to". Only
// field edges participate in the drain-rooted closure of spec.md §4.5.
type node struct {
	origin dfir.Node // nil for synthetic nodes (the return-value node, field slots, call-site drains)

	// depth is the node's current escape depth; initial is the seeded value before any
	// propagation, kept around so forced-heap propagation (spec.md §4.6) can re-seed.
	depth   int
	initial int
	forced  bool // true once this node has been forced to GLOBAL by the stack-budget pass

	isReturn bool

	out        []NodeID             // outgoing assignment edges (deduplicated)
	fields     []fieldEdge          // outgoing field edges
	fieldIndex map[uint64]int       // Field.Hash -> index into fields, for O(1) gotoField
	elem       *disjoint.Element    // union-find element identifying this node's drain component
}

// Graph is the points-to graph (PTG) of a single function, built from its DFIR body by
// analysis/roles' NodeInfo and (optionally) the compressed summaries of its callees
// (spec.md §4.4-§4.7). Nodes live in a per-function arena and are referenced by NodeID.
type Graph struct {
	fn   *dfir.Function
	arena []*node

	byOrigin map[dfir.Node]NodeID
	params   []NodeID
	ret      NodeID

	// droppedCallEdges counts summary edges from an inlined callee that could not be
	// mapped onto any node of the caller's graph (spec.md §9 Open Question 1): rather
	// than silently discarding them, the count is exposed so a caller can tell whether
	// this ever fires on well-formed input.
	droppedCallEdges int

	// drainOf maps every node to the representative NodeID of its component, populated
	// by the closure pass (spec.md §4.5). Empty before closure runs.
	drainOf map[NodeID]NodeID
}

// isDrain reports whether id is its own component's representative. Only meaningful after
// closure has run.
func (g *Graph) isDrain(id NodeID) bool {
	return g.drainOf[id] == id
}

func newGraph(fn *dfir.Function) *Graph {
	return &Graph{
		fn:       fn,
		byOrigin: map[dfir.Node]NodeID{},
		ret:      invalidNodeID,
	}
}

// DroppedCallEdges reports how many call-site summary edges were dropped during inlining
// because they could not be mapped onto a node of this graph.
func (g *Graph) DroppedCallEdges() int { return g.droppedCallEdges }

// newNode allocates a fresh, unconnected node and returns its handle.
func (g *Graph) newNode(origin dfir.Node, depth int) NodeID {
	id := NodeID(len(g.arena))
	g.arena = append(g.arena, &node{
		origin:  origin,
		depth:   depth,
		initial: depth,
		elem:    disjoint.NewElement(),
	})
	if origin != nil {
		g.byOrigin[origin] = id
	}
	return id
}

// newReturnNode allocates the synthetic node standing for the function's return value.
func (g *Graph) newReturnNode(depth int) NodeID {
	id := g.newNode(nil, depth)
	g.get(id).isReturn = true
	g.ret = id
	return id
}

func (g *Graph) get(id NodeID) *node {
	return g.arena[id]
}

// NumNodes returns the number of nodes currently in the arena.
func (g *Graph) NumNodes() int { return len(g.arena) }

// nodeFor returns the node allocated for a DFIR origin, creating a fresh depth-INFINITY
// one on first use. Most origins are pre-seeded by build.go; this lazy path only matters
// for nodes a structural walk reaches that the seeding pass did not pre-visit (e.g. a
// Variable introduced purely as an alias target).
func (g *Graph) nodeFor(n dfir.Node) NodeID {
	if id, ok := g.byOrigin[n]; ok {
		return id
	}
	return g.newNode(n, infinity)
}

// addAssignEdge records `from` may-point-to the same objects as `to` (a may-alias edge,
// not a field). Self-edges and duplicates are no-ops.
func (g *Graph) addAssignEdge(from, to NodeID) {
	if from == to {
		return
	}
	fn := g.get(from)
	for _, o := range fn.out {
		if o == to {
			return
		}
	}
	fn.out = append(fn.out, to)
}

// gotoField returns the node on the far side of from's field edge, creating one lazily at
// depth infinity if this is the first time the field is referenced (spec.md §4.4: field
// slots come into existence on demand, not up front).
func (g *Graph) gotoField(from NodeID, field dfir.Field) NodeID {
	fn := g.get(from)
	if fn.fieldIndex == nil {
		fn.fieldIndex = map[uint64]int{}
	}
	if i, ok := fn.fieldIndex[field.Hash]; ok {
		return fn.fields[i].To
	}
	to := g.newNode(nil, infinity)
	fn.fieldIndex[field.Hash] = len(fn.fields)
	fn.fields = append(fn.fields, fieldEdge{Field: field, To: to})
	return to
}

// addFieldEdge is like gotoField but forces the field to point at an already-known node
// `to`, used when the DFIR names both ends explicitly (e.g. a FieldWrite's Value).
func (g *Graph) addFieldEdge(from NodeID, field dfir.Field, to NodeID) {
	fn := g.get(from)
	if fn.fieldIndex == nil {
		fn.fieldIndex = map[uint64]int{}
	}
	if i, ok := fn.fieldIndex[field.Hash]; ok {
		existing := fn.fields[i].To
		if existing != to {
			g.addAssignEdge(existing, to)
			g.addAssignEdge(to, existing)
		}
		return
	}
	fn.fieldIndex[field.Hash] = len(fn.fields)
	fn.fields = append(fn.fields, fieldEdge{Field: field, To: to})
}

// outFieldEdges returns a stable, sorted-by-hash copy of id's field edges.
func (g *Graph) outFieldEdges(id NodeID) []fieldEdge {
	src := g.get(id).fields
	out := make([]fieldEdge, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].Field.Hash < out[j].Field.Hash })
	return out
}

// outAssignEdges returns id's outgoing assignment edges.
func (g *Graph) outAssignEdges(id NodeID) []NodeID {
	return g.get(id).out
}

// allIDs returns every node handle currently in the arena, in allocation order.
func (g *Graph) allIDs() []NodeID {
	ids := make([]NodeID, len(g.arena))
	for i := range ids {
		ids[i] = NodeID(i)
	}
	return ids
}

// debugLabel renders a short human-readable label for a node, used by analysis/render and
// test failure messages.
func (g *Graph) debugLabel(id NodeID) string {
	n := g.get(id)
	switch {
	case n.isReturn:
		return "return"
	case n.origin != nil:
		return fmt.Sprintf("n%d:%s", id, n.origin.String())
	default:
		return fmt.Sprintf("n%d:<slot>", id)
	}
}
