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
	"github.com/nativeopt/escapec/analysis/escape"
	"github.com/nativeopt/escapec/analysis/fixture"
)

// TestScenarioS5MutualRecursionConvergesOptimistic is spec.md §8's S5, built from fixture
// source rather than hand-assembled dfir structs: `p(x) = q(x); q(x) = p(x)` with x stored
// nowhere converges to the optimistic summary, so an allocation passed into the pair from a
// caller stays on the stack.
func TestScenarioS5MutualRecursionConvergesOptimistic(t *testing.T) {
	pSym := &testSymbol{name: "p", paramCount: 1}
	qSym := &testSymbol{name: "q", paramCount: 1}
	anyType := &arrayType{name: "Any", kind: dfir.KindOther}

	b := fixture.NewBuilder(fixture.Types{"Any": anyType}, fixture.Functions{"p": pSym, "q": qSym})

	pFn, err := b.Parse(`package p
func p(x Any) Any {
	return q(x)
}`)
	if err != nil {
		t.Fatalf("fixture.Parse(p): %v", err)
	}
	qFn, err := b.Parse(`package p
func q(x Any) Any {
	return p(x)
}`)
	if err != nil {
		t.Fatalf("fixture.Parse(q): %v", err)
	}
	pSym.fn, qSym.fn = pFn, qFn

	callerFn, err := b.Parse(`package p
func caller() Any {
	obj := new(Any)
	return p(obj)
}`)
	if err != nil {
		t.Fatalf("fixture.Parse(caller): %v", err)
	}
	obj, ok := callerFn.RootScope.Nodes[0].(*dfir.NewObject)
	if !ok {
		t.Fatalf("expected the first node in caller's body to be the NewObject, got %T", callerFn.RootScope.Nodes[0])
	}

	pNode := &Node{Symbol: pSym, Func: pFn}
	qNode := &Node{Symbol: qSym, Func: qFn}
	callerNode := &Node{Symbol: &testSymbol{name: "caller"}, Func: callerFn}

	g := Build([]*Node{callerNode, pNode, qNode})
	out := Lifetimes{}
	if err := ComputeLifetimes(g, escape.DefaultConfig(), nil, out); err != nil {
		t.Fatalf("ComputeLifetimes: %v", err)
	}
	if got := out[obj]; got != escape.Stack {
		t.Fatalf("expected the allocation passed through the non-escaping mutually recursive pair to stay Stack, got %v", got)
	}
}
