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

import "github.com/nativeopt/escapec/internal/graphutil"

// SCC is one multi-node of the call graph's condensation: the set of Nodes that are
// mutually reachable from one another (a single function with no self-recursion still
// yields its own singleton SCC).
type SCC struct {
	Nodes []*Node
}

// Condensation returns the call graph's strongly connected components, ordered so that a
// callee's component always appears no later than its caller's (spec.md §4.3 step 1): the
// condensation builder is a required external capability there, but the SCC computation
// itself is ordinary graph theory, not part of this analysis's novel logic, so it is
// adapted here from graphutil's generic Tarjan implementation rather than reimplemented.
func Condensation(g *Graph) []SCC {
	raw := graphutil.StronglyConnectedComponents(g.Nodes, g.Successors)
	sccs := make([]SCC, len(raw))
	for i, nodes := range raw {
		sccs[i] = SCC{Nodes: nodes}
	}
	return sccs
}
