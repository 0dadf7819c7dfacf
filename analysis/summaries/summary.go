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

// Package summaries decides what compressed escape summary to hand the analysis for a
// callee it cannot itself analyze: a function with no DFIR body in this run, reached only
// as an external symbol (spec.md §6). This is never computed; it is looked up or derived
// from optional annotations the frontend attached to the symbol.
package summaries

import (
	"strings"

	"github.com/nativeopt/escapec/analysis/dfir"
	"github.com/nativeopt/escapec/analysis/escape"
)

// kotlinRuntimePrefix and kotlinNativeConcurrentPrefix implement spec.md §6's callee
// heuristic: an external symbol whose mangled name starts with the former but not the
// latter is assumed to carry reliable escapes/pointsTo annotations from the runtime and is
// decoded with fromBits; everything else (including kotlin.native.concurrent, whose
// cross-worker semantics this analysis does not model) is pessimistic.
const (
	kotlinRuntimePrefix           = "kfun:kotlin."
	kotlinNativeConcurrentPrefix = "kfun:kotlin.native.concurrent"
)

// Annotated is implemented by an external FunctionSymbol the frontend attached runtime
// escape metadata to. A symbol that does not implement this interface is always
// pessimistic, regardless of its name.
type Annotated interface {
	dfir.FunctionSymbol
	// EscapesMask returns the plain bitset fromBits expects (bit i for parameter i, the bit
	// at index ParamCount() for the return value), and false if the frontend did not attach
	// one. PointsTo returns the paramCount+1 nibble-packed words fromBits expects, one per
	// parameter plus a trailing word for the return value acting as a source, and false if
	// the frontend did not attach any (spec.md §6).
	EscapesMask() (uint64, bool)
	PointsTo() ([]uint64, bool)
}

// ClassifyExternal returns the compressed summary to use for sym, a callee the driver has
// no converged (or in-progress) DFIR-derived summary for. Required-summary overrides
// (forced.go) take precedence over the Kotlin heuristic, which takes precedence over the
// Pessimistic default.
func ClassifyExternal(sym dfir.FunctionSymbol) *escape.FunctionEscapeAnalysisResult {
	if r, ok := forcedSummary(sym); ok {
		return r
	}
	if isKotlinRuntimeFunction(sym.Name()) {
		if ann, ok := sym.(Annotated); ok {
			mask, hasMask := ann.EscapesMask()
			points, hasPoints := ann.PointsTo()
			if hasMask && hasPoints {
				if r, err := escape.FromBits(sym.ParamCount(), mask, points); err == nil {
					return r
				}
			}
		}
	}
	return escape.Pessimistic(sym.ParamCount())
}

func isKotlinRuntimeFunction(name string) bool {
	return strings.HasPrefix(name, kotlinRuntimePrefix) && !strings.HasPrefix(name, kotlinNativeConcurrentPrefix)
}
