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
	"github.com/nativeopt/escapec/analysis/dfir"
	"github.com/nativeopt/escapec/analysis/escape"
)

// behavior overrides what the Kotlin-prefix heuristic would otherwise decide for a
// well-known runtime symbol: some runtime entry points carry annotations that are
// technically well-formed but known to undersell how an argument is actually used (a
// finalizer registration, a weak reference store), so they are forced pessimistic
// regardless of what fromBits would decode; others are known truly side-effect-free and are
// forced optimistic even without annotations.
type behavior int

const (
	behaviorPessimistic behavior = iota
	behaviorOptimistic
)

// forced maps a runtime symbol's mangled name to a hand-verified override, bypassing
// whatever its own annotations (or lack of them) would otherwise imply.
var forced = map[string]behavior{
	"kfun:kotlin.native.ref#<get-WeakReference>(kotlin.Any){}kotlin.native.ref.WeakReference": behaviorPessimistic,
	"kfun:kotlin.native.internal#registerFinalizer(kotlin.Any){}":                              behaviorPessimistic,
	"kfun:kotlin.Any#equals(kotlin.Any?){}kotlin.Boolean":                                      behaviorOptimistic,
	"kfun:kotlin.Any#hashCode(){}kotlin.Int":                                                   behaviorOptimistic,
}

func forcedSummary(sym dfir.FunctionSymbol) (*escape.FunctionEscapeAnalysisResult, bool) {
	b, ok := forced[sym.Name()]
	if !ok {
		return nil, false
	}
	if b == behaviorOptimistic {
		return escape.Optimistic(sym.ParamCount()), true
	}
	return escape.Pessimistic(sym.ParamCount()), true
}
