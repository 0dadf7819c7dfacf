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
	"testing"

	"github.com/nativeopt/escapec/analysis/dfir"
)

// TestClosureUnionsAssignmentConnectedNodes checks spec.md §4.5 Step A: two nodes joined by
// an assignment edge end up in the same component, sharing one drain.
func TestClosureUnionsAssignmentConnectedNodes(t *testing.T) {
	g := emptyGraph()
	a := g.newNode(nil, 3)
	b := g.newNode(nil, 5)
	g.addAssignEdge(a, b)

	closeGraph(g)

	if g.drainOf[a] != g.drainOf[b] {
		t.Fatalf("expected a and b to share a drain after closure, got %v and %v", g.drainOf[a], g.drainOf[b])
	}
}

// TestClosureMigratesFieldEdgesToDrain checks that after closure, only the drain of a
// component carries field edges.
func TestClosureMigratesFieldEdgesToDrain(t *testing.T) {
	g := emptyGraph()
	a := g.newNode(nil, 0)
	b := g.newNode(nil, 0)
	target := g.newNode(nil, 0)
	f := dfir.Field{Hash: 1, Name: "f"}
	g.addAssignEdge(a, b)
	g.addFieldEdge(b, f, target)

	closeGraph(g)

	drain := g.drainOf[a]
	if drain != g.drainOf[b] {
		t.Fatalf("a and b should share a drain")
	}
	if drain == b && len(g.get(a).fields) != 0 {
		t.Fatalf("non-drain node a retained field edges")
	}
	if drain == a && len(g.get(b).fields) != 0 {
		t.Fatalf("non-drain node b retained field edges")
	}
	found := false
	for _, e := range g.get(drain).fields {
		if e.Field.Hash == f.Hash && e.To == target {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the drain to carry the migrated field edge to target")
	}
}

// TestClosureCoalescesDuplicateFieldLabels checks spec.md §4.5 Step B: two different
// pre-migration members writing to the same field hash must force their targets to be
// treated as the same object once that field is observed only through the drain.
func TestClosureCoalescesDuplicateFieldLabels(t *testing.T) {
	g := emptyGraph()
	a := g.newNode(nil, 0)
	b := g.newNode(nil, 0)
	x := g.newNode(nil, 0)
	y := g.newNode(nil, 0)
	f := dfir.Field{Hash: 9, Name: "f"}

	// a and b each carry their own single, legitimate field edge for f; once they are
	// unioned into one component, the drain inherits both, and since they disagree on
	// where f points, Step B must union their targets too.
	g.addFieldEdge(a, f, x)
	g.addFieldEdge(b, f, y)
	g.addAssignEdge(a, b)

	closeGraph(g)

	if g.drainOf[x] != g.drainOf[y] {
		t.Fatalf("expected x and y to be unioned by Step B's duplicate-label coalescing")
	}
}

// TestClosureHandlesAliasingWithoutStepE exercises the case spec.md §4.5's Step E exists
// for: two roots that both alias the same already-drained object should still compress to
// the same drain, which the NodeID-handle design gives for free (see closeGraph's doc
// comment).
func TestClosureHandlesAliasingWithoutStepE(t *testing.T) {
	g := emptyGraph()
	shared := g.newNode(nil, 0)
	rootA := g.newNode(nil, 0)
	rootB := g.newNode(nil, 0)
	g.addAssignEdge(rootA, shared)
	g.addAssignEdge(rootB, shared)

	closeGraph(g)

	if g.drainOf[rootA] != g.drainOf[rootB] {
		t.Fatalf("expected both roots aliasing the same object to end up at the same drain")
	}
}
