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
	"sort"

	"github.com/nativeopt/escapec/analysis/dfir"
	"github.com/pkg/errors"
	"github.com/spakin/disjoint"
)

// RefKind distinguishes the three kinds of endpoint a compressed summary edge can name
// (spec.md §4.7): the function's own return value, one of its formal parameters, or one of
// its escaping drains.
type RefKind int

const (
	RefReturn RefKind = iota
	RefParam
	RefDrain
)

// NodeRef names one endpoint of a CompressedPointsToGraph edge or member of its escaping
// set. Index is the parameter index for RefParam, the drain number for RefDrain, and
// unused for RefReturn.
type NodeRef struct {
	Kind  RefKind
	Index int
}

// absoluteIndex imposes the total order spec.md §4.7 requires for sorting: Return first,
// then Param(0), Param(1), ..., then Drain(0), Drain(1), ...
func (r NodeRef) absoluteIndex() int {
	switch r.Kind {
	case RefReturn:
		return 0
	case RefParam:
		return 1 + r.Index
	default:
		return 1_000_000 + r.Index
	}
}

// CompressedEdge is one field edge of a compressed summary: walking Path (a sequence of
// field hashes) from From's root reaches a drain with a field edge to To.
type CompressedEdge struct {
	From NodeRef
	Path []uint64
	To   NodeRef
}

func edgeEqual(a, b CompressedEdge) bool {
	if a.From != b.From || a.To != b.To || len(a.Path) != len(b.Path) {
		return false
	}
	for i := range a.Path {
		if a.Path[i] != b.Path[i] {
			return false
		}
	}
	return true
}

// pathCompare orders two field-hash paths lexicographically; on a common prefix, the
// shorter path sorts first (spec.md §4.7's tie-break rule).
func pathCompare(a, b []uint64) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func edgeLess(a, b CompressedEdge) bool {
	if a.From.absoluteIndex() != b.From.absoluteIndex() {
		return a.From.absoluteIndex() < b.From.absoluteIndex()
	}
	if c := pathCompare(a.Path, b.Path); c != 0 {
		return c < 0
	}
	return a.To.absoluteIndex() < b.To.absoluteIndex()
}

// sortEdges returns a sorted, deduplicated copy of edges, per spec.md §4.7's ordering rule.
func sortEdges(edges []CompressedEdge) []CompressedEdge {
	out := append([]CompressedEdge(nil), edges...)
	sort.Slice(out, func(i, j int) bool { return edgeLess(out[i], out[j]) })
	deduped := out[:0]
	for i, e := range out {
		if i == 0 || !edgeEqual(e, deduped[len(deduped)-1]) {
			deduped = append(deduped, e)
		}
	}
	return deduped
}

// sortRefs returns a sorted, deduplicated copy of refs.
func sortRefs(refs []NodeRef) []NodeRef {
	out := append([]NodeRef(nil), refs...)
	sort.Slice(out, func(i, j int) bool { return out[i].absoluteIndex() < out[j].absoluteIndex() })
	deduped := out[:0]
	for i, r := range out {
		if i == 0 || r != deduped[len(deduped)-1] {
			deduped = append(deduped, r)
		}
	}
	return deduped
}

// CompressedPointsToGraph is the immutable, call-site-inlinable function summary of
// spec.md §4.7: the escaping shape of a function's points-to graph, expressed purely in
// terms of its own parameters, return value, and a renumbered set of escaping drains.
type CompressedPointsToGraph struct {
	NumDrains int
	Edges     []CompressedEdge
	Escaping  []NodeRef
}

// FunctionEscapeAnalysisResult is the externally visible summary of a single function
// (spec.md §4.2).
type FunctionEscapeAnalysisResult struct {
	ParamCount int
	Graph      CompressedPointsToGraph
}

// Equal reports structural equality: same arity, same drain count, and the same sorted
// escaping set and edge set.
func (r *FunctionEscapeAnalysisResult) Equal(o *FunctionEscapeAnalysisResult) bool {
	if o == nil || r.ParamCount != o.ParamCount || r.Graph.NumDrains != o.Graph.NumDrains {
		return false
	}
	if len(r.Graph.Escaping) != len(o.Graph.Escaping) || len(r.Graph.Edges) != len(o.Graph.Edges) {
		return false
	}
	for i := range r.Graph.Escaping {
		if r.Graph.Escaping[i] != o.Graph.Escaping[i] {
			return false
		}
	}
	for i := range r.Graph.Edges {
		if !edgeEqual(r.Graph.Edges[i], o.Graph.Edges[i]) {
			return false
		}
	}
	return true
}

// Optimistic returns the summary for a function about which nothing is known yet beyond
// its arity: no escapes, no edges. Used to seed a recursive SCC before its first fixpoint
// iteration (spec.md §4.3).
func Optimistic(paramCount int) *FunctionEscapeAnalysisResult {
	return &FunctionEscapeAnalysisResult{ParamCount: paramCount}
}

// Pessimistic returns the summary assumed for a function that must be treated as doing the
// worst possible thing with every parameter: every parameter escapes, and the return value
// may alias any of them. Used for the non-convergence fallback (spec.md §4.3) and as the
// default treatment of an unresolved or virtual callee (spec.md §6).
func Pessimistic(paramCount int) *FunctionEscapeAnalysisResult {
	escaping := make([]NodeRef, 0, paramCount+1)
	escaping = append(escaping, NodeRef{Kind: RefReturn})
	edges := make([]CompressedEdge, 0, paramCount)
	for i := 0; i < paramCount; i++ {
		escaping = append(escaping, NodeRef{Kind: RefParam, Index: i})
		edges = append(edges, CompressedEdge{
			From: NodeRef{Kind: RefParam, Index: i},
			To:   NodeRef{Kind: RefReturn},
		})
	}
	return &FunctionEscapeAnalysisResult{
		ParamCount: paramCount,
		Graph: CompressedPointsToGraph{
			Escaping: sortRefs(escaping),
			Edges:    sortEdges(edges),
		},
	}
}

// FromBits decodes a bit-packed external annotation (spec.md §4.2, §6): escapesMask is a
// plain bitset over parameter indices (bit i set means parameter i escapes), with the high
// bit at index paramCount meaning the return value escapes. pointsToMasks has paramCount+1
// entries, one per parameter plus a trailing entry for the return value acting as a source;
// pointsToMasks[row]'s nibble at position 4*j encodes the relationship from that row's
// source (parameter row, or the return value when row == paramCount) to parameter j: code 1
// is a direct alias (Prow -> Pj), 2 is Prow flowing into Pj's INTESTINES sentinel field
// (Prow -> Pj.INTESTINES), 3 is Prow's own INTESTINES flowing directly into Pj
// (Prow.INTESTINES -> Pj), and 4 ties both sides' INTESTINES together (Prow.INTESTINES ->
// Pj.INTESTINES); 0 means no edge, anything else is a decode error. This is the encoding
// analysis/summaries uses for hand-written runtime-function annotations, where writing out
// a full DFIR body for e.g. a Kotlin runtime intrinsic isn't worthwhile.
func FromBits(paramCount int, escapesMask uint64, pointsToMasks []uint64) (*FunctionEscapeAnalysisResult, error) {
	if len(pointsToMasks) != paramCount+1 {
		return nil, errors.Errorf("FromBits: pointsToMasks has %d entries, want %d", len(pointsToMasks), paramCount+1)
	}

	var escaping []NodeRef
	for i := 0; i <= paramCount; i++ {
		if escapesMask&(1<<uint(i)) == 0 {
			continue
		}
		if i == paramCount {
			escaping = append(escaping, NodeRef{Kind: RefReturn})
		} else {
			escaping = append(escaping, NodeRef{Kind: RefParam, Index: i})
		}
	}

	srcRef := func(row int) NodeRef {
		if row == paramCount {
			return NodeRef{Kind: RefReturn}
		}
		return NodeRef{Kind: RefParam, Index: row}
	}

	// intestinesOf unifies the "Prow.INTESTINES" identity of every row (including the
	// return, at index paramCount) that code 4 ties to another row's: the shared sentinel
	// value two such rows alias has no name of its own, so it needs a synthetic drain
	// number once, rather than once per edge that references it.
	intestinesOf := make([]*disjoint.Element, paramCount+1)
	for i := range intestinesOf {
		intestinesOf[i] = disjoint.NewElement()
	}
	// needsDrain marks rows whose INTESTINES identity was named by a code-4 entry: only
	// those need a synthetic Drain(k), since code 2/3's target/source is always a named
	// Param or Return directly.
	needsDrain := make([]bool, paramCount+1)

	type pendingField struct {
		container NodeRef
		row       int // which row's intestines identity this field edge's value resolves to
	}
	var fields []pendingField
	var edges []CompressedEdge

	for row := 0; row <= paramCount; row++ {
		mask := pointsToMasks[row]
		for j := 0; j < paramCount; j++ {
			code := (mask >> uint(4*j)) & 0xF
			switch code {
			case 0:
			case 1: // Prow -> Pj
				edges = append(edges, CompressedEdge{From: srcRef(row), To: NodeRef{Kind: RefParam, Index: j}})
			case 2: // Prow -> Pj.INTESTINES
				edges = append(edges, CompressedEdge{From: NodeRef{Kind: RefParam, Index: j}, Path: []uint64{dfir.Intestines.Hash}, To: srcRef(row)})
			case 3: // Prow.INTESTINES -> Pj
				edges = append(edges, CompressedEdge{From: srcRef(row), Path: []uint64{dfir.Intestines.Hash}, To: NodeRef{Kind: RefParam, Index: j}})
			case 4: // Prow.INTESTINES -> Pj.INTESTINES
				needsDrain[row] = true
				needsDrain[j] = true
				disjoint.Union(intestinesOf[row], intestinesOf[j])
				fields = append(fields,
					pendingField{container: srcRef(row), row: row},
					pendingField{container: NodeRef{Kind: RefParam, Index: j}, row: j},
				)
			default:
				return nil, errors.Errorf("FromBits: invalid nibble code %d at row %d, column %d", code, row, j)
			}
		}
	}

	// Assign a Drain(k) number to each distinct code-4 union group, in the order its
	// first member was touched, then emit the deferred field edges for every code-4
	// reference now that its shared target is known.
	drainFor := map[*disjoint.Element]NodeRef{}
	nextDrain := 0
	for i := 0; i <= paramCount; i++ {
		if !needsDrain[i] {
			continue
		}
		root := intestinesOf[i].Find()
		if _, ok := drainFor[root]; ok {
			continue
		}
		drainFor[root] = NodeRef{Kind: RefDrain, Index: nextDrain}
		nextDrain++
	}
	for _, f := range fields {
		edges = append(edges, CompressedEdge{From: f.container, Path: []uint64{dfir.Intestines.Hash}, To: drainFor[intestinesOf[f.row].Find()]})
	}

	return &FunctionEscapeAnalysisResult{
		ParamCount: paramCount,
		Graph: CompressedPointsToGraph{
			NumDrains: nextDrain,
			Escaping:  sortRefs(escaping),
			Edges:     sortEdges(edges),
		},
	}, nil
}
