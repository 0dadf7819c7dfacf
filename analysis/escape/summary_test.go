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

func TestOptimisticIsEmpty(t *testing.T) {
	r := Optimistic(3)
	if len(r.Graph.Escaping) != 0 || len(r.Graph.Edges) != 0 {
		t.Fatalf("Optimistic should have no escapes and no edges, got %+v", r.Graph)
	}
	if r.ParamCount != 3 {
		t.Fatalf("ParamCount = %d, want 3", r.ParamCount)
	}
}

func TestPessimisticEscapesEverything(t *testing.T) {
	r := Pessimistic(2)
	if len(r.Graph.Escaping) != 3 { // return + 2 params
		t.Fatalf("expected 3 escaping refs, got %d: %+v", len(r.Graph.Escaping), r.Graph.Escaping)
	}
	if len(r.Graph.Edges) != 2 {
		t.Fatalf("expected one edge per parameter into the return value, got %d", len(r.Graph.Edges))
	}
	for _, e := range r.Graph.Edges {
		if e.To.Kind != RefReturn {
			t.Errorf("expected every pessimistic edge to target the return value, got %+v", e.To)
		}
	}
}

func TestEqualIgnoresOrdering(t *testing.T) {
	a := &FunctionEscapeAnalysisResult{
		ParamCount: 2,
		Graph: CompressedPointsToGraph{
			Escaping: []NodeRef{{Kind: RefParam, Index: 1}, {Kind: RefParam, Index: 0}},
		},
	}
	b := &FunctionEscapeAnalysisResult{
		ParamCount: 2,
		Graph: CompressedPointsToGraph{
			Escaping: sortRefs([]NodeRef{{Kind: RefParam, Index: 0}, {Kind: RefParam, Index: 1}}),
		},
	}
	// a's Escaping was constructed out of order, modelling a hand-rolled summary. Equal
	// compares position by position and does not sort, so a is sorted here, as every
	// constructor in this package sorts its result, before the comparison.
	a.Graph.Escaping = sortRefs(a.Graph.Escaping)
	if !a.Equal(b) {
		t.Fatalf("expected a and b to be structurally equal once both are sorted")
	}
}

// TestFromBitsDecodesEscapesMask checks that bit i of escapesMask names parameter i and the
// high bit at index paramCount names the return value, independent of pointsToMasks.
func TestFromBitsDecodesEscapesMask(t *testing.T) {
	mask := uint64(1<<0) | uint64(1<<2) // param 0 and the return value (paramCount == 2)
	r, err := FromBits(2, mask, []uint64{0, 0, 0})
	if err != nil {
		t.Fatalf("FromBits returned an error: %v", err)
	}
	want := map[NodeRef]bool{
		{Kind: RefParam, Index: 0}: true,
		{Kind: RefReturn}:          true,
	}
	if len(r.Graph.Escaping) != len(want) {
		t.Fatalf("escaping set = %+v, want %+v", r.Graph.Escaping, want)
	}
	for _, ref := range r.Graph.Escaping {
		if !want[ref] {
			t.Errorf("unexpected escaping ref %+v", ref)
		}
	}
	if len(r.Graph.Edges) != 0 || r.Graph.NumDrains != 0 {
		t.Fatalf("expected no edges and no drains from an all-zero pointsToMasks, got %+v", r.Graph)
	}
}

// TestFromBitsDecodesDirectAliasCode checks nibble code 1 (Prow -> Pj) decodes to a direct
// edge between the two named parameters, with no synthetic drain involved.
func TestFromBitsDecodesDirectAliasCode(t *testing.T) {
	points := []uint64{1 << (4 * 1), 0, 0} // row 0 (param 0), column 1: code 1
	r, err := FromBits(2, 0, points)
	if err != nil {
		t.Fatalf("FromBits returned an error: %v", err)
	}
	want := CompressedEdge{From: NodeRef{Kind: RefParam, Index: 0}, To: NodeRef{Kind: RefParam, Index: 1}}
	if len(r.Graph.Edges) != 1 || !edgeEqual(r.Graph.Edges[0], want) {
		t.Fatalf("edges = %+v, want [%+v]", r.Graph.Edges, want)
	}
	if r.Graph.NumDrains != 0 {
		t.Fatalf("code 1 should never allocate a synthetic drain, got NumDrains = %d", r.Graph.NumDrains)
	}
}

// TestFromBitsDecodesParamIntoFieldCode checks nibble code 2 (Prow -> Pj.INTESTINES): the
// source parameter is reachable by walking Pj's INTESTINES sentinel field.
func TestFromBitsDecodesParamIntoFieldCode(t *testing.T) {
	points := []uint64{2 << (4 * 1), 0, 0} // row 0 (param 0), column 1: code 2
	r, err := FromBits(2, 0, points)
	if err != nil {
		t.Fatalf("FromBits returned an error: %v", err)
	}
	want := CompressedEdge{From: NodeRef{Kind: RefParam, Index: 1}, Path: []uint64{dfir.Intestines.Hash}, To: NodeRef{Kind: RefParam, Index: 0}}
	if len(r.Graph.Edges) != 1 || !edgeEqual(r.Graph.Edges[0], want) {
		t.Fatalf("edges = %+v, want [%+v]", r.Graph.Edges, want)
	}
}

// TestFromBitsDecodesFieldIntoParamCode checks nibble code 3 (Prow.INTESTINES -> Pj): the
// row parameter's own INTESTINES sentinel field reaches the column parameter directly.
func TestFromBitsDecodesFieldIntoParamCode(t *testing.T) {
	points := []uint64{3 << (4 * 1), 0, 0} // row 0 (param 0), column 1: code 3
	r, err := FromBits(2, 0, points)
	if err != nil {
		t.Fatalf("FromBits returned an error: %v", err)
	}
	want := CompressedEdge{From: NodeRef{Kind: RefParam, Index: 0}, Path: []uint64{dfir.Intestines.Hash}, To: NodeRef{Kind: RefParam, Index: 1}}
	if len(r.Graph.Edges) != 1 || !edgeEqual(r.Graph.Edges[0], want) {
		t.Fatalf("edges = %+v, want [%+v]", r.Graph.Edges, want)
	}
}

// TestFromBitsSharesDrainAcrossCode4Occurrences checks that two separate code-4 entries
// (Prow.INTESTINES -> Pj.INTESTINES) tying back to the same column parameter unify onto one
// synthetic drain rather than each allocating their own, and that the resulting duplicate
// edge is deduplicated.
func TestFromBitsSharesDrainAcrossCode4Occurrences(t *testing.T) {
	// row 0 (param 0), column 1: code 4; row 2 (the return value), column 1: code 4.
	// Both tie their own INTESTINES identity to param 1's, so param 0, param 1, and the
	// return value all end up sharing the same drain.
	points := []uint64{4 << (4 * 1), 0, 4 << (4 * 1)}
	r, err := FromBits(2, 0, points)
	if err != nil {
		t.Fatalf("FromBits returned an error: %v", err)
	}
	if r.Graph.NumDrains != 1 {
		t.Fatalf("expected the two code-4 entries to share a single drain, got NumDrains = %d", r.Graph.NumDrains)
	}
	drain := NodeRef{Kind: RefDrain, Index: 0}
	want := map[NodeRef]bool{
		{Kind: RefParam, Index: 0}: true,
		{Kind: RefParam, Index: 1}: true,
		{Kind: RefReturn}:          true,
	}
	if len(r.Graph.Edges) != len(want) {
		t.Fatalf("edges = %+v, want one intestines edge per %+v into %+v", r.Graph.Edges, want, drain)
	}
	for _, e := range r.Graph.Edges {
		if e.To != drain || len(e.Path) != 1 || e.Path[0] != dfir.Intestines.Hash {
			t.Errorf("unexpected edge %+v, want an intestines edge into %+v", e, drain)
		}
		if !want[e.From] {
			t.Errorf("unexpected edge source %+v", e.From)
		}
	}
}

func TestFromBitsRejectsInvalidCode(t *testing.T) {
	if _, err := FromBits(1, 0, []uint64{0xF, 0}); err == nil {
		t.Fatalf("expected an error for an invalid nibble code")
	}
}

func TestFromBitsRejectsWrongPointsToMasksLength(t *testing.T) {
	if _, err := FromBits(1, 0, []uint64{0}); err == nil {
		t.Fatalf("expected an error when pointsToMasks has fewer than paramCount+1 entries")
	}
}

func TestSortEdgesOrdersReturnBeforeParamsBeforeDrains(t *testing.T) {
	edges := []CompressedEdge{
		{From: NodeRef{Kind: RefDrain, Index: 0}, To: NodeRef{Kind: RefReturn}},
		{From: NodeRef{Kind: RefParam, Index: 1}, To: NodeRef{Kind: RefReturn}},
		{From: NodeRef{Kind: RefReturn}, To: NodeRef{Kind: RefReturn}},
	}
	sorted := sortEdges(edges)
	if sorted[0].From.Kind != RefReturn {
		t.Fatalf("expected the Return-rooted edge to sort first, got %+v", sorted[0])
	}
	if sorted[1].From.Kind != RefParam {
		t.Fatalf("expected the Param-rooted edge to sort second, got %+v", sorted[1])
	}
	if sorted[2].From.Kind != RefDrain {
		t.Fatalf("expected the Drain-rooted edge to sort last, got %+v", sorted[2])
	}
}

func TestSortEdgesDedupes(t *testing.T) {
	e := CompressedEdge{From: NodeRef{Kind: RefParam, Index: 0}, To: NodeRef{Kind: RefReturn}}
	sorted := sortEdges([]CompressedEdge{e, e})
	if len(sorted) != 1 {
		t.Fatalf("expected duplicate edges to be deduplicated, got %d", len(sorted))
	}
}
