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

import "github.com/nativeopt/escapec/analysis/dfir"

// testType is a minimal dfir.Type/dfir.Declared double: a type that resolves to itself
// (carrying its own TypeKind) when resolvable is true, and otherwise behaves like an
// external type this package's tests never needed a real frontend to produce.
type testType struct {
	name       string
	kind       dfir.TypeKind
	resolvable bool
}

func (t *testType) Name() string { return t.name }

func (t *testType) Resolved() (dfir.Declared, bool) {
	if !t.resolvable {
		return nil, false
	}
	return t, true
}

func (t *testType) Kind() dfir.TypeKind { return t.kind }

// testSymbol is a minimal dfir.FunctionSymbol double.
type testSymbol struct {
	name       string
	fn         *dfir.Function
	paramCount int
}

func (s *testSymbol) Name() string { return s.name }

func (s *testSymbol) Resolved() (*dfir.Function, bool) {
	if s.fn == nil {
		return nil, false
	}
	return s.fn, true
}

func (s *testSymbol) ParamCount() int { return s.paramCount }

// fakeCallees is a CalleeSummaries backed by a plain map, for tests that drive
// AnalyzeFunction or inlineCalls directly against hand-built summaries.
type fakeCallees map[dfir.FunctionSymbol]*FunctionEscapeAnalysisResult

func (f fakeCallees) Summary(sym dfir.FunctionSymbol) (*FunctionEscapeAnalysisResult, bool) {
	s, ok := f[sym]
	return s, ok
}
