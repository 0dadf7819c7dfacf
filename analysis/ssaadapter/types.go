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

// Package ssaadapter bridges golang.org/x/tools/go/ssa onto dfir.Function. It exists so this
// analysis can be exercised end-to-end against ordinary Go source rather than only against
// hand-built or fixture-built DFIR trees: the pass's actual production frontend (a Kotlin/Native
// compiler-plugin emitting DFIR directly from its own IR, spec.md §6) never goes through this
// package. The translation here is correspondingly bounded -- it covers the instruction shapes
// that matter to escape classification (allocation, field/array read-write, call, return) the
// same way the teacher's transferFunction switch does for its own escape graph, and treats
// every other ssa.Value as an opaque passthrough rather than attempting a faithful semantic
// translation of arithmetic, channels, or type assertions (none of which an allocation site's
// lifetime depends on).
package ssaadapter

import (
	"go/types"

	"github.com/nativeopt/escapec/analysis/dfir"
)

// ssaType wraps a go/types.Type as a dfir.Type, resolving to itself as a dfir.Declared: unlike
// a real Kotlin frontend, where a Type name might fail to resolve against the whole-program
// class table, every go/types.Type reachable from a type-checked ssa.Program is, by
// construction, already resolved.
type ssaType struct {
	name string
	kind dfir.TypeKind
}

func (t *ssaType) Name() string                    { return t.name }
func (t *ssaType) Resolved() (dfir.Declared, bool) { return t, true }
func (t *ssaType) Kind() dfir.TypeKind              { return t.kind }

// newType classifies a go/types.Type into the primitive-array TypeKind table spec.md §4.6
// needs for the stack-array budget, or KindOther for anything else (including struct/pointer
// types, which are never array allocation sites).
func newType(t types.Type) dfir.Type {
	name := t.String()
	arr, ok := t.Underlying().(*types.Array)
	if !ok {
		slice, ok := t.Underlying().(*types.Slice)
		if !ok {
			return &ssaType{name: name, kind: dfir.KindOther}
		}
		return &ssaType{name: name, kind: basicArrayKind(slice.Elem())}
	}
	return &ssaType{name: name, kind: basicArrayKind(arr.Elem())}
}

func basicArrayKind(elem types.Type) dfir.TypeKind {
	basic, ok := elem.Underlying().(*types.Basic)
	if !ok {
		return dfir.KindReferenceArray
	}
	switch basic.Kind() {
	case types.Bool:
		return dfir.KindBooleanArray
	case types.Int8, types.Uint8:
		return dfir.KindByteArray
	case types.Int16, types.Uint16:
		return dfir.KindShortArray
	case types.Int32, types.Uint32:
		return dfir.KindIntArray
	case types.Int, types.Int64, types.Uint, types.Uint64:
		return dfir.KindLongArray
	case types.Float32:
		return dfir.KindFloatArray
	case types.Float64:
		return dfir.KindDoubleArray
	default:
		return dfir.KindReferenceArray
	}
}
