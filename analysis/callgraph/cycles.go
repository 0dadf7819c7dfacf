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

// ElementaryCycles returns every elementary (simple) recursive call cycle in g, as ordered
// lists of Nodes. This is diagnostic only -- the driver never needs the individual cycles,
// only the SCC partition Condensation provides -- and exists for the `stats` CLI subcommand
// to report the recursive-call structure of a program.
func ElementaryCycles(g *Graph) [][]*Node {
	cg := NewCallgraphIterator(g)
	raw := FindAllElementaryCycles(cg)
	out := make([][]*Node, 0, len(raw))
	for _, cycle := range raw {
		nodes := make([]*Node, 0, len(cycle))
		for _, id := range cycle {
			nodes = append(nodes, cg.IDMap[id].Node)
		}
		out = append(out, nodes)
	}
	return out
}
