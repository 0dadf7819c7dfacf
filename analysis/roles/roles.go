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

// Package roles implements the intraprocedural role-assignment pass of the escape
// analysis (spec.md §4.1): a single walk of a function's DFIR body that summarizes, for
// each node, the lexical depth and the set of roles in which its value is used.
package roles

import "github.com/nativeopt/escapec/analysis/dfir"

// Role is one element of the closed 6-role set. Roles are packed into a bitset on
// NodeInfo rather than kept as a map, per spec.md §9.
type Role uint8

const (
	ReturnValue Role = 1 << iota
	ThrowValue
	WriteField
	ReadField
	WrittenToGlobal
	Assigned
)

// Depth sentinels (spec.md §3). Lexical depths are non-negative; lower is "more
// escaping", and propagation in the closure engine only ever decreases a depth.
const (
	ESCAPES      = -3
	PARAMETER    = -2
	RETURN_VALUE = -1
	INFINITY     = 1_000_000
)

// Entry is one occurrence of a role on a node: the other end of the relation, if any
// (e.g. the value being written, or the field involved).
type Entry struct {
	Other dfir.Node // nil if the role has no "other side" (e.g. plain WrittenToGlobal)
	Field dfir.Field
	// HasField distinguishes "no field" (an assignment edge) from the zero Field value,
	// which could otherwise be confused with a real field whose Hash happens to be 0.
	HasField bool
}

// NodeInfo is the per-node summary produced by the role-assignment pass.
type NodeInfo struct {
	Depth   int
	roles   Role
	entries map[Role][]Entry
}

func newNodeInfo(depth int) *NodeInfo {
	return &NodeInfo{Depth: depth, entries: map[Role][]Entry{}}
}

// Has reports whether n carries the given role.
func (n *NodeInfo) Has(r Role) bool { return n.roles&r != 0 }

// Entries returns the role entries recorded for r, in insertion order.
func (n *NodeInfo) Entries(r Role) []Entry { return n.entries[r] }

func (n *NodeInfo) add(r Role, e Entry) {
	n.roles |= r
	n.entries[r] = append(n.entries[r], e)
}

// Escapes reports whether the node escapes at the intraprocedural stage: it carries
// WrittenToGlobal or ThrowValue (spec.md §4.1).
func (n *NodeInfo) Escapes() bool {
	return n.Has(WrittenToGlobal) || n.Has(ThrowValue)
}

// Result is the output of the pass: a mapping from DFIR node identity to NodeInfo.
type Result struct {
	infos map[dfir.Node]*NodeInfo
}

// Info returns the NodeInfo computed for n, creating an empty depth-0 one if n was never
// visited (this can legitimately happen for a Scope, which never receives roles itself).
func (r *Result) Info(n dfir.Node) *NodeInfo {
	if info, ok := r.infos[n]; ok {
		return info
	}
	info := newNodeInfo(0)
	r.infos[n] = info
	return info
}

func (r *Result) has(n dfir.Node) bool {
	_, ok := r.infos[n]
	return ok
}

// Nodes returns every node the pass assigned a NodeInfo to (i.e. every non-Scope node
// reached during the walk).
func (r *Result) Nodes() []dfir.Node {
	out := make([]dfir.Node, 0, len(r.infos))
	for n := range r.infos {
		out = append(out, n)
	}
	return out
}

// Analyze runs the intraprocedural role-assignment pass of spec.md §4.1 over fn and
// returns the per-node NodeInfo mapping.
func Analyze(fn *dfir.Function) *Result {
	res := &Result{infos: map[dfir.Node]*NodeInfo{}}
	if fn.RootScope == nil {
		return res
	}

	// Pass 1: assign lexical depths by walking the scope tree once. The root scope counts
	// as depth -1, so the nodes directly inside it are at depth 0; each nested scope adds
	// 1 for the nodes inside it.
	assignDepths(fn.RootScope, 0, res)

	// Pass 2: returns/throws roles, keyed by scope.
	for _, n := range fn.Returns {
		res.Info(n).add(ReturnValue, Entry{})
	}
	for _, n := range fn.Throws {
		res.Info(n).add(ThrowValue, Entry{})
	}

	// Pass 3: walk every non-scope node and assign structural roles.
	walkAssign(fn.RootScope, res)

	return res
}

func assignDepths(s *dfir.Scope, depth int, res *Result) {
	for _, n := range s.Nodes {
		if child, ok := n.(*dfir.Scope); ok {
			assignDepths(child, depth+1, res)
			continue
		}
		res.infos[n] = newNodeInfo(depth)
	}
}

// walkAssign is the recursive structural walk of spec.md §4.1's role-assignment rules.
// It must be implemented iteratively for large functions per spec.md §9; an explicit
// work stack achieves that without recursion depth proportional to nesting.
//
//gocyclo:ignore
func walkAssign(root *dfir.Scope, res *Result) {
	stack := []dfir.Node{root}
	seen := map[dfir.Node]bool{}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true

		switch t := n.(type) {
		case *dfir.Scope:
			for _, c := range t.Nodes {
				stack = append(stack, c)
			}
		case *dfir.FieldWrite:
			if t.Receiver == nil {
				res.Info(t.Value).add(WrittenToGlobal, Entry{})
			} else {
				res.Info(t.Receiver).add(WriteField, Entry{Other: t.Value, Field: t.FieldRef, HasField: true})
			}
			if t.Receiver != nil {
				stack = append(stack, t.Receiver)
			}
			stack = append(stack, t.Value)
		case *dfir.FieldRead:
			if t.Receiver == nil {
				res.Info(n).add(WrittenToGlobal, Entry{})
			} else {
				res.Info(t.Receiver).add(ReadField, Entry{Other: n, Field: t.FieldRef, HasField: true})
				stack = append(stack, t.Receiver)
			}
		case *dfir.ArrayWrite:
			res.Info(t.Array).add(WriteField, Entry{Other: t.Value, Field: dfir.Intestines, HasField: true})
			stack = append(stack, t.Array, t.Value)
		case *dfir.ArrayRead:
			res.Info(t.Array).add(ReadField, Entry{Other: n, Field: dfir.Intestines, HasField: true})
			stack = append(stack, t.Array)
		case *dfir.Singleton:
			if decl, ok := t.Typ.Resolved(); !ok || decl.Kind() != dfir.KindNothing {
				res.Info(n).add(WrittenToGlobal, Entry{})
			}
		case *dfir.Variable:
			for _, v := range t.Values {
				res.Info(n).add(Assigned, Entry{Other: v})
				stack = append(stack, v)
			}
		case *dfir.NewObject:
			stack = append(stack, t.Arguments...)
		case *dfir.Call:
			stack = append(stack, t.Arguments...)
		default:
			// Parameter, SimpleConst: no further structure to walk.
		}
	}
}
