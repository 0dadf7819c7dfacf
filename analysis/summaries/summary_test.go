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

package summaries

import (
	"testing"

	"github.com/nativeopt/escapec/analysis/dfir"
	"github.com/nativeopt/escapec/analysis/escape"
)

type fakeSymbol struct {
	name       string
	paramCount int
	mask       uint64
	hasMask    bool
	points     []uint64
	hasPoints  bool
}

func (s *fakeSymbol) Name() string                     { return s.name }
func (s *fakeSymbol) Resolved() (*dfir.Function, bool) { return nil, false }
func (s *fakeSymbol) ParamCount() int                  { return s.paramCount }
func (s *fakeSymbol) EscapesMask() (uint64, bool)      { return s.mask, s.hasMask }
func (s *fakeSymbol) PointsTo() ([]uint64, bool)       { return s.points, s.hasPoints }

func TestClassifyExternalDecodesAnnotatedKotlinRuntimeFunction(t *testing.T) {
	sym := &fakeSymbol{
		name:       "kfun:kotlin.collections#listOf(kotlin.Any?){}kotlin.collections.List<kotlin.Any?>",
		paramCount: 1,
		hasMask:    true,
		mask:       0, // nothing escapes
		hasPoints:  true,
		points:     []uint64{0, 1}, // row 1 (the return value), column 0, code 1: aliases param 0
	}
	r := ClassifyExternal(sym)
	if len(r.Graph.Escaping) != 0 {
		t.Fatalf("expected an aliasing (non-escaping) decode, got escaping=%+v", r.Graph.Escaping)
	}
	found := false
	for _, e := range r.Graph.Edges {
		if e.From.Kind == escape.RefReturn && e.To == (escape.NodeRef{Kind: escape.RefParam, Index: 0}) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the return value to alias param 0, got %+v", r.Graph.Edges)
	}
}

func TestClassifyExternalFallsBackToPessimisticWithoutAnnotations(t *testing.T) {
	sym := &fakeSymbol{name: "kfun:kotlin.io#println(kotlin.Any?){}", paramCount: 1}
	r := ClassifyExternal(sym)
	if len(r.Graph.Escaping) != 2 { // return + param 0
		t.Fatalf("expected a pessimistic fallback, got %+v", r.Graph.Escaping)
	}
}

func TestClassifyExternalTreatsNonKotlinSymbolsPessimistically(t *testing.T) {
	sym := &fakeSymbol{
		name: "extern:some.other.runtime.function", paramCount: 1,
		hasMask: true, mask: 0, hasPoints: true, points: []uint64{0},
	}
	r := ClassifyExternal(sym)
	if len(r.Graph.Escaping) != 2 {
		t.Fatalf("expected a non-Kotlin symbol to be pessimistic regardless of its annotations, got %+v", r.Graph.Escaping)
	}
}

func TestClassifyExternalExcludesNativeConcurrentPrefix(t *testing.T) {
	sym := &fakeSymbol{
		name: "kfun:kotlin.native.concurrent#freeze(kotlin.Any?){}", paramCount: 1,
		hasMask: true, mask: 0, hasPoints: true, points: []uint64{0},
	}
	r := ClassifyExternal(sym)
	if len(r.Graph.Escaping) != 2 {
		t.Fatalf("expected kotlin.native.concurrent to be excluded from the runtime heuristic and be pessimistic, got %+v", r.Graph.Escaping)
	}
}

func TestClassifyExternalAppliesForcedOverride(t *testing.T) {
	sym := &fakeSymbol{name: "kfun:kotlin.Any#equals(kotlin.Any?){}kotlin.Boolean", paramCount: 1}
	r := ClassifyExternal(sym)
	if len(r.Graph.Escaping) != 0 {
		t.Fatalf("expected the forced-optimistic override to win over the default pessimistic fallback, got %+v", r.Graph.Escaping)
	}
}

func TestWellKnownKindResolvesPrimitiveArrayClasses(t *testing.T) {
	k, ok := WellKnownKind("kotlin.ByteArray")
	if !ok || k != dfir.KindByteArray {
		t.Fatalf("WellKnownKind(ByteArray) = (%v, %v), want (KindByteArray, true)", k, ok)
	}
	if _, ok := WellKnownKind("com.example.NotWellKnown"); ok {
		t.Fatalf("expected an ordinary class name to not be well-known")
	}
}
