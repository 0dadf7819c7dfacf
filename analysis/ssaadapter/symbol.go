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

package ssaadapter

import (
	"sync"

	"golang.org/x/tools/go/ssa"

	"github.com/nativeopt/escapec/analysis/dfir"
)

// funcSymbol is the dfir.FunctionSymbol a Program hands out for a statically known
// *ssa.Function callee. Translation is lazy and memoized: a call site discovered while
// translating one function may name a callee this Program hasn't translated yet (possibly
// because it's still being translated -- direct recursion), so Resolved() triggers the
// translation on first use rather than requiring a fixed topological build order.
type funcSymbol struct {
	prog *Program
	fn   *ssa.Function

	once sync.Once
	body *dfir.Function
	ok   bool
}

func (s *funcSymbol) Name() string {
	return s.fn.RelString(nil)
}

func (s *funcSymbol) ParamCount() int {
	return s.fn.Signature.Params().Len()
}

func (s *funcSymbol) Resolved() (*dfir.Function, bool) {
	s.once.Do(func() {
		s.body, s.ok = s.prog.translate(s.fn)
	})
	return s.body, s.ok
}

// externalSymbol is the FunctionSymbol for a call with no static callee and no unique CHA
// candidate (an indirect or interface call the adapter could not devirtualize). A statically
// known callee without a body gets a funcSymbol whose Resolved reports false instead.
type externalSymbol struct {
	name       string
	paramCount int
}

func (s *externalSymbol) Name() string                     { return s.name }
func (s *externalSymbol) ParamCount() int                  { return s.paramCount }
func (s *externalSymbol) Resolved() (*dfir.Function, bool) { return nil, false }
