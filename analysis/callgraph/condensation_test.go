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
	"testing"

	"github.com/nativeopt/escapec/analysis/dfir"
)

func mkNode(name string) (*Node, *testSymbol) {
	sym := &testSymbol{name: name}
	fn := &dfir.Function{Name: name, RootScope: &dfir.Scope{}}
	sym.fn = fn
	return &Node{Symbol: sym, Func: fn}, sym
}

func callTo(sym *testSymbol) *dfir.Call { return &dfir.Call{Callee: sym} }

// TestCondensationOrdersCalleesBeforeCallers builds a straight-line caller -> middle ->
// leaf chain and checks the leaf's singleton SCC is processed before the caller's.
func TestCondensationOrdersCalleesBeforeCallers(t *testing.T) {
	leaf, leafSym := mkNode("leaf")
	middle, middleSym := mkNode("middle")
	caller, _ := mkNode("caller")

	middle.Func.RootScope.Nodes = []dfir.Node{callTo(leafSym)}
	caller.Func.RootScope.Nodes = []dfir.Node{callTo(middleSym)}

	g := Build([]*Node{caller, middle, leaf})
	sccs := Condensation(g)

	index := map[*Node]int{}
	for i, scc := range sccs {
		for _, n := range scc.Nodes {
			index[n] = i
		}
	}
	if index[leaf] >= index[caller] {
		t.Fatalf("expected leaf's SCC (%d) to come before caller's SCC (%d)", index[leaf], index[caller])
	}
	if index[middle] >= index[caller] {
		t.Fatalf("expected middle's SCC (%d) to come before caller's SCC (%d)", index[middle], index[caller])
	}
}

// TestCondensationGroupsMutualRecursionIntoOneComponent checks that two functions calling
// each other land in the same SCC.
func TestCondensationGroupsMutualRecursionIntoOneComponent(t *testing.T) {
	a, aSym := mkNode("a")
	b, bSym := mkNode("b")
	a.Func.RootScope.Nodes = []dfir.Node{callTo(bSym)}
	b.Func.RootScope.Nodes = []dfir.Node{callTo(aSym)}

	g := Build([]*Node{a, b})
	sccs := Condensation(g)

	for _, scc := range sccs {
		has := func(n *Node) bool {
			for _, m := range scc.Nodes {
				if m == n {
					return true
				}
			}
			return false
		}
		if has(a) != has(b) {
			t.Fatalf("expected mutually recursive a and b to share one SCC, got %+v", sccs)
		}
	}
}
