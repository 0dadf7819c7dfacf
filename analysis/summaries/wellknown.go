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

import "github.com/nativeopt/escapec/analysis/dfir"

// wellKnownClasses maps the mangled name of every primitive-array class plus `nothing`
// (spec.md §6's "well-known class symbols") to the TypeKind build.go's stack-array
// budgeting (spec.md §4.6) and a frontend's type registry both need to agree on.
var wellKnownClasses = map[string]dfir.TypeKind{
	"kotlin.Array":        dfir.KindReferenceArray,
	"kotlin.BooleanArray": dfir.KindBooleanArray,
	"kotlin.ByteArray":    dfir.KindByteArray,
	"kotlin.CharArray":    dfir.KindCharArray,
	"kotlin.ShortArray":   dfir.KindShortArray,
	"kotlin.IntArray":     dfir.KindIntArray,
	"kotlin.FloatArray":   dfir.KindFloatArray,
	"kotlin.LongArray":    dfir.KindLongArray,
	"kotlin.DoubleArray":  dfir.KindDoubleArray,
	"kotlin.Nothing":      dfir.KindNothing,
}

// WellKnownKind returns the TypeKind a frontend should assign to one of the primitive-array
// classes or `nothing` by its fully qualified name, and false for anything else (an
// ordinary declared class, which takes dfir.KindOther).
func WellKnownKind(name string) (dfir.TypeKind, bool) {
	k, ok := wellKnownClasses[name]
	return k, ok
}
