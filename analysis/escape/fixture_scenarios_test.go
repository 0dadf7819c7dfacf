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
	"github.com/nativeopt/escapec/analysis/fixture"
	"github.com/nativeopt/escapec/analysis/roles"
)

// TestScenarioS1AllocationEscapesThroughReturn is spec.md §8's S1: `fun f(): Any { val x =
// Any(); return x }` -- the allocation must classify GLOBAL, and the summary must record the
// return value as escaping.
func TestScenarioS1AllocationEscapesThroughReturn(t *testing.T) {
	b := fixture.NewBuilder(fixture.Types{"Any": &testType{name: "Any", resolvable: true, kind: dfir.KindOther}}, nil)
	fn, err := b.Parse(`package p
func f() Any {
	x := new(Any)
	return x
}`)
	if err != nil {
		t.Fatalf("fixture.Parse: %v", err)
	}

	obj, ok := fn.RootScope.Nodes[0].(*dfir.NewObject)
	if !ok {
		t.Fatalf("expected the first node in f's body to be the NewObject, got %T", fn.RootScope.Nodes[0])
	}

	info := roles.Analyze(fn)
	result, err := AnalyzeFunction(fn, info, DefaultConfig(), fakeCallees{})
	if err != nil {
		t.Fatalf("AnalyzeFunction: %v", err)
	}
	if got := result.Allocations[obj]; got != Global {
		t.Fatalf("expected the allocation returned by f to classify as Global, got %v", got)
	}
	escaping := false
	for _, ref := range result.Summary.Graph.Escaping {
		if ref == (NodeRef{Kind: RefReturn}) {
			escaping = true
		}
	}
	if !escaping {
		t.Fatalf("expected f's return value to be reported as escaping, got %+v", result.Summary.Graph.Escaping)
	}
}

// TestScenarioS3ArrayEscapesThroughReturn is spec.md §8's S3: `fun h(): IntArray { val a =
// IntArray(10); a[0]=1; return a }` -- the array escapes via the return regardless of its
// size fitting the stack-array budget, so it must classify GLOBAL.
func TestScenarioS3ArrayEscapesThroughReturn(t *testing.T) {
	b := fixture.NewBuilder(fixture.Types{"IntArray": &testType{name: "IntArray", resolvable: true, kind: dfir.KindIntArray}}, nil)
	fn, err := b.Parse(`package p
func h() IntArray {
	a := new(IntArray)
	a[0] = 1
	return a
}`)
	if err != nil {
		t.Fatalf("fixture.Parse: %v", err)
	}

	obj, ok := fn.RootScope.Nodes[0].(*dfir.NewObject)
	if !ok {
		t.Fatalf("expected the first node in h's body to be the NewObject, got %T", fn.RootScope.Nodes[0])
	}

	info := roles.Analyze(fn)
	result, err := AnalyzeFunction(fn, info, DefaultConfig(), fakeCallees{})
	if err != nil {
		t.Fatalf("AnalyzeFunction: %v", err)
	}
	if got := result.Allocations[obj]; got != Global {
		t.Fatalf("expected the array returned by h to classify as Global, got %v", got)
	}
}
