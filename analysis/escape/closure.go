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

import "github.com/spakin/disjoint"

// closeGraph performs spec.md §4.5's closure over a built-and-inlined Graph: it collapses
// every assignment-connected component into a single drain, migrates that component's
// field edges so they all originate at the drain, coalesces duplicate field labels that
// migration exposes (which can itself trigger further unions, so the two run to a joint
// fixpoint), and finally validates the drain invariants.
//
// Step E of spec.md §4.5 (auxiliary drain insertion for aliasing pairs that both reach an
// existing drain) has no separate pass here: because nodes are referenced by NodeID handle
// rather than duplicated per occurrence (spec.md §9), two roots that alias the same object
// already share the same drain NodeID, and paint.go's compression naturally assigns them
// the same renumbered Drain(k) -- the aliasing Step E exists to preserve in a tree-shaped
// representation is preserved for free by this handle-based one.
func closeGraph(g *Graph) {
	stepAB(g)
	stepC(g)
}

// stepAB runs Step A (component/drain computation via the undirected assignment-edge
// union-find, then field-edge migration to each component's drain) and Step B (coalescing
// duplicate field labels exposed on a drain, which unions their targets and can change the
// partition computed by Step A) to a joint fixpoint.
func stepAB(g *Graph) {
	for {
		stepA(g)
		if !stepB(g) {
			return
		}
	}
}

// stepA unions every node connected by an assignment edge (treated as undirected) into a
// single component, then migrates each component's field edges so they all originate from
// its drain (the representative node of the component).
func stepA(g *Graph) {
	for _, n := range g.arena {
		for _, to := range n.out {
			disjoint.Union(n.elem, g.arena[to].elem)
		}
	}

	drainOf := computeDrains(g)
	g.drainOf = drainOf

	migrated := map[NodeID][]fieldEdge{}
	for i, n := range g.arena {
		id := NodeID(i)
		if len(n.fields) == 0 {
			continue
		}
		drain := drainOf[id]
		migrated[drain] = append(migrated[drain], n.fields...)
		if drain != id {
			n.fields = nil
			n.fieldIndex = nil
		}
	}
	for drain, edges := range migrated {
		dn := g.get(drain)
		// Rebuilt unconditionally, even though the drain is itself one of the component's
		// members and so may already carry its own pre-migration fields: edges already
		// includes those (the first loop above collects every member's fields, drain
		// included, before any clearing happens), so resetting here and reappending from
		// edges is the only way to avoid double-counting them.
		dn.fields = nil
		dn.fieldIndex = map[uint64]int{}
		for _, e := range edges {
			if i, ok := dn.fieldIndex[e.Field.Hash]; ok {
				// A same-label edge whose target is already in the same component as the
				// first one's (Step B unioned them) is dropped rather than kept twice.
				if g.get(dn.fields[i].To).elem.Find() == g.get(e.To).elem.Find() {
					continue
				}
			} else {
				dn.fieldIndex[e.Field.Hash] = len(dn.fields)
			}
			dn.fields = append(dn.fields, e)
		}
	}
}

// computeDrains assigns every node the NodeID of the lowest-indexed member of its
// union-find component (a stable, arbitrary-but-deterministic choice of representative).
func computeDrains(g *Graph) map[NodeID]NodeID {
	rootToDrain := map[*disjoint.Element]NodeID{}
	for i := range g.arena {
		id := NodeID(i)
		root := g.get(id).elem.Find()
		if _, ok := rootToDrain[root]; !ok {
			rootToDrain[root] = id
		}
	}
	drainOf := make(map[NodeID]NodeID, len(g.arena))
	for i := range g.arena {
		id := NodeID(i)
		drainOf[id] = rootToDrain[g.get(id).elem.Find()]
	}
	return drainOf
}

// stepB coalesces a drain's duplicate field labels left behind by migration: if a drain now
// has two field edges with the same hash (because two different pre-migration members each
// had their own slot for that field), their targets must be the same object, so they are
// unioned together. Reports whether any union happened, since that changes the partition
// Step A computed and requires re-running it.
func stepB(g *Graph) bool {
	changed := false
	for id, drain := range g.drainOf {
		if id != drain {
			continue
		}
		n := g.get(id)
		seen := map[uint64]NodeID{}
		for _, e := range n.fields {
			if existing, ok := seen[e.Field.Hash]; ok {
				if existing != e.To && g.get(existing).elem.Find() != g.get(e.To).elem.Find() {
					disjoint.Union(g.get(existing).elem, g.get(e.To).elem)
					changed = true
				}
			} else {
				seen[e.Field.Hash] = e.To
			}
		}
	}
	return changed
}

// stepC validates the closure invariants (spec.md §4.5): every non-drain node has no
// outgoing field edges, and every drain has at most one field edge per field hash.
func stepC(g *Graph) {
	for i, n := range g.arena {
		id := NodeID(i)
		if g.drainOf[id] != id {
			if len(n.fields) != 0 {
				fatalf("closure invariant violated: non-drain node %d retains %d field edges", id, len(n.fields))
			}
			continue
		}
		seen := map[uint64]bool{}
		for _, e := range n.fields {
			if seen[e.Field.Hash] {
				fatalf("closure invariant violated: drain %d has duplicate field edges for hash %d", id, e.Field.Hash)
			}
			seen[e.Field.Hash] = true
		}
	}
}
