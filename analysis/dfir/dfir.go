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

// Package dfir defines the data-flow intermediate representation consumed by the escape
// analysis: a small closed sum of node variants, produced by some external frontend
// (analysis/ssaadapter or analysis/fixture in this repository) and never mutated by the
// analysis itself.
package dfir

import "fmt"

// Node is implemented by exactly the variants below. It is a closed sum: callers must
// switch on the concrete type, never add new implementations.
type Node interface {
	isNode()
	String() string
}

// Symbol identifies an external declaration (function, field owner, ...) that may or may
// not be resolvable to a concrete Declared value. Resolution failure of a Type is fatal
// (spec.md §6/§7); resolution failure of a FunctionSymbol is not -- the external symbol is
// kept and treated pessimistically.
type Symbol interface {
	Name() string
}

// Type stands in for a resolvable external type reference.
type Type interface {
	Symbol
	// Resolved returns the underlying declared type and true if it could be resolved.
	Resolved() (Declared, bool)
}

// Declared is a type that has been fully resolved (as opposed to a bare external Type
// reference by hash).
type Declared interface {
	Type
	Kind() TypeKind
}

// TypeKind distinguishes the well-known primitive array element kinds from everything
// else, for the stack-array budgeting computation of spec.md §4.6.
type TypeKind int

const (
	KindOther TypeKind = iota
	KindNothing
	KindBooleanArray
	KindByteArray
	KindCharArray
	KindShortArray
	KindIntArray
	KindFloatArray
	KindLongArray
	KindDoubleArray
	KindReferenceArray
)

// ItemSize returns the per-element byte size for a primitive array kind, or -1 if kind is
// not one of the primitive array kinds (spec.md §4.6's size table).
func (k TypeKind) ItemSize(pointerSize int) int {
	switch k {
	case KindBooleanArray, KindByteArray:
		return 1
	case KindCharArray, KindShortArray:
		return 2
	case KindIntArray, KindFloatArray:
		return 4
	case KindLongArray, KindDoubleArray:
		return 8
	case KindReferenceArray:
		return pointerSize
	default:
		return -1
	}
}

// Field is the triple (declaringType, fieldType, hash, name) of spec.md §3. Equality and
// ordering are by Hash alone.
type Field struct {
	DeclaringType Type
	FieldType     Type
	Hash          uint64
	Name          string
}

// sentinel hashes are reserved below the range a real frontend should ever produce via
// hashing an actual (type, name) pair (a frontend is expected to hash into the full
// uint64 range; these two small constants are simply unlikely to collide and are
// documented as reserved).
const (
	intestinesHash  uint64 = 1
	returnValueHash uint64 = 2
)

// Intestines stands in for every array element: all array indices are indistinguishable
// to this analysis (spec.md §3).
var Intestines = Field{Hash: intestinesHash, Name: "<intestines>"}

// ReturnValue synthesizes `return x` as `ret.RETURN_VALUE = x`, unifying return handling
// with field-write handling (spec.md §3).
var ReturnValue = Field{Hash: returnValueHash, Name: "<return-value>"}

// --- node variants ---

// Parameter is the index-th formal parameter of the enclosing function.
type Parameter struct {
	Index int
	Typ   Type
}

func (*Parameter) isNode() {}
func (p *Parameter) String() string {
	return fmt.Sprintf("param#%d", p.Index)
}

// Variable aggregates the set of DFIR nodes that may flow into it, e.g. at a control-flow
// join or a local re-assignment.
type Variable struct {
	Values []Node
	Name   string
}

func (*Variable) isNode() {}
func (v *Variable) String() string {
	if v.Name != "" {
		return "var:" + v.Name
	}
	return "var"
}

// FieldRead is `ir := receiver.field` (receiver == nil means a static/global read).
type FieldRead struct {
	Receiver Node // nil for a static/global read
	FieldRef Field
	IR       any // opaque identity of the originating instruction, for diagnostics
}

func (*FieldRead) isNode() {}
func (f *FieldRead) String() string {
	return fmt.Sprintf("read(%s)", f.FieldRef.Name)
}

// FieldWrite is `receiver.field = value` (receiver == nil means a static/global write).
type FieldWrite struct {
	Receiver Node // nil for a static/global write
	FieldRef Field
	Value    Node
}

func (*FieldWrite) isNode() {}
func (f *FieldWrite) String() string {
	return fmt.Sprintf("write(%s)", f.FieldRef.Name)
}

// ArrayRead is `ir := array[i]`, modeled with the Intestines sentinel field.
type ArrayRead struct {
	Array Node
	IR    any
}

func (*ArrayRead) isNode() {}
func (a *ArrayRead) String() string { return "aread" }

// ArrayWrite is `array[i] = value`.
type ArrayWrite struct {
	Array Node
	Value Node
}

func (*ArrayWrite) isNode() {}
func (a *ArrayWrite) String() string { return "awrite" }

// Singleton is a reference to a process-wide singleton value of a given type (e.g. an
// object literal, a boxed constant, an enum instance).
type Singleton struct {
	Typ Type
}

func (*Singleton) isNode() {}
func (s *Singleton) String() string { return "singleton" }

// NewObject is an allocation site: `new constructedType(arguments)`. It is also itself a
// call site (spec.md §4.4): Callee, if resolved, is the constructor invoked on the newly
// allocated object, with the object itself standing in for the receiver argument.
type NewObject struct {
	ConstructedType Type
	Arguments       []Node
	Callee          FunctionSymbol // the constructor, or nil if unresolved
	IR              any            // the allocation-site identifier the code generator keys lifetimes by
}

func (*NewObject) isNode() {}
func (n *NewObject) String() string { return fmt.Sprintf("new %s", n.ConstructedType.Name()) }

// Call is a (possibly virtual) call site.
type Call struct {
	Callee    FunctionSymbol
	Arguments []Node
	IR        any
	Virtual   bool
}

func (*Call) isNode() {}
func (c *Call) String() string { return fmt.Sprintf("call %s", c.Callee.Name()) }

// FunctionSymbol identifies the statically-known (or unresolved external) callee of a
// Call node.
type FunctionSymbol interface {
	Symbol
	// Resolved returns the concrete Function this symbol points to and true, or
	// (nil, false) if it could not be resolved (e.g. it is a genuinely external
	// runtime/virtual callee).
	Resolved() (*Function, bool)
	// ParamCount is needed even when Resolved fails, to build a pessimistic summary
	// of the right shape.
	ParamCount() int
}

// Scope is an internal node in the body tree; it is never itself assigned a role, only a
// depth. Non-scope nodes receive the depth of their immediately enclosing scope.
type Scope struct {
	Nodes []Node
}

func (*Scope) isNode() {}
func (s *Scope) String() string { return "scope" }

// SimpleConst is a literal of some concrete Go type T (commonly int64, float64, string,
// bool). Spec.md's stack-array budgeting specifically cares about SimpleConst[int].
type SimpleConst[T any] struct {
	Value T
}

func (*SimpleConst[T]) isNode() {}
func (s *SimpleConst[T]) String() string { return fmt.Sprintf("const(%v)", s.Value) }

// IntConst returns (value, true) if n is a SimpleConst[int64], or the single value of a
// Variable wrapping exactly one such constant (spec.md §4.6's stack-array candidate
// rule), or (0, false) otherwise.
func IntConst(n Node) (int64, bool) {
	switch t := n.(type) {
	case *SimpleConst[int64]:
		return t.Value, true
	case *Variable:
		if len(t.Values) == 1 {
			return IntConst(t.Values[0])
		}
	}
	return 0, false
}

// Function is a DFIR function body: a tree of Scope nodes rooted at RootScope, plus the
// returns/throws maps of spec.md §3.
type Function struct {
	Name      string
	Params    []*Parameter
	RootScope *Scope
	Returns   map[*Scope]Node
	Throws    map[*Scope]Node
}
