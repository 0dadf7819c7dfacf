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
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/nativeopt/escapec/analysis/dfir"
)

// translator turns one *ssa.Function's instructions into a dfir.Function. It deliberately
// ignores basic-block structure beyond instruction order within a block: DFIR is already
// flow-insensitive over a lexical scope tree (analysis/escape never asks "did this branch
// run"), so every block's instructions are appended to one flat dfir.Scope in the function's
// block order, the same simplification analysis/fixture makes for if/for/switch. Only *ssa.Phi
// needs special handling, since its operands can reference values from not-yet-visited
// (loop back-edge) blocks.
type translator struct {
	prog *Program
	fn   *ssa.Function
	out  *dfir.Function
	root *dfir.Scope

	values map[ssa.Value]dfir.Node
	// fieldAddrs/indexAddrs record what a *ssa.FieldAddr/*ssa.IndexAddr instruction's result
	// addresses, so a later *ssa.Store through that address translates to a FieldWrite/
	// ArrayWrite against the right receiver instead of an opaque write.
	fieldAddrs map[ssa.Value]fieldTarget
	indexAddrs map[ssa.Value]dfir.Node
	// cells models a plain (non-field, non-index) addressable slot -- typically a local
	// variable's *ssa.Alloc -- as a single current value, updated by Store and read back by
	// the *ssa.UnOp(MUL) that dereferences it.
	cells map[ssa.Value]dfir.Node
}

type fieldTarget struct {
	receiver dfir.Node
	field    dfir.Field
}

func newTranslator(p *Program, fn *ssa.Function) *translator {
	return &translator{
		prog:       p,
		fn:         fn,
		values:     map[ssa.Value]dfir.Node{},
		fieldAddrs: map[ssa.Value]fieldTarget{},
		indexAddrs: map[ssa.Value]dfir.Node{},
		cells:      map[ssa.Value]dfir.Node{},
	}
}

func (t *translator) run() *dfir.Function {
	t.out = &dfir.Function{
		Name:    t.fn.RelString(nil),
		Returns: map[*dfir.Scope]dfir.Node{},
		Throws:  map[*dfir.Scope]dfir.Node{},
	}
	t.root = &dfir.Scope{}
	t.out.RootScope = t.root

	for i, p := range t.fn.Params {
		param := &dfir.Parameter{Index: i, Typ: newType(p.Type())}
		t.out.Params = append(t.out.Params, param)
		t.values[p] = param
	}
	for _, fv := range t.fn.FreeVars {
		t.values[fv] = &dfir.Singleton{Typ: newType(fv.Type())}
	}

	for _, b := range t.fn.Blocks {
		for _, instr := range b.Instrs {
			t.statement(instr)
		}
	}
	return t.out
}

func (t *translator) emit(n dfir.Node) {
	t.root.Nodes = append(t.root.Nodes, n)
}

// statement handles instructions with no interesting value of their own (or whose value,
// if any, is only ever consumed through valueNode from some other instruction).
func (t *translator) statement(instr ssa.Instruction) {
	switch s := instr.(type) {
	case *ssa.Store:
		t.store(s)
	case *ssa.Return:
		t.doReturn(s)
	case *ssa.Panic:
		v := t.valueNode(s.X)
		t.mergeInto(t.out.Throws, v)
	case *ssa.Call:
		t.valueNode(s) // force emission of the dfir.Call even if its result is unused
	case *ssa.Go:
		t.callSite(&s.Call, s)
	case *ssa.Defer:
		t.callSite(&s.Call, s)
	case *ssa.Jump, *ssa.If, *ssa.RunDefers, *ssa.DebugRef:
		// control flow only, or debug metadata: no DFIR effect
	default:
		if v, ok := instr.(ssa.Value); ok {
			t.valueNode(v) // still translate so any nested allocation/call gets emitted
		}
	}
}

func (t *translator) store(s *ssa.Store) {
	value := t.valueNode(s.Val)
	if ft, ok := t.fieldAddrs[s.Addr]; ok {
		t.emit(&dfir.FieldWrite{Receiver: ft.receiver, FieldRef: ft.field, Value: value})
		return
	}
	if arr, ok := t.indexAddrs[s.Addr]; ok {
		t.emit(&dfir.ArrayWrite{Array: arr, Value: value})
		return
	}
	t.cells[s.Addr] = value
}

func (t *translator) doReturn(s *ssa.Return) {
	var v dfir.Node
	switch len(s.Results) {
	case 0:
		return
	case 1:
		v = t.valueNode(s.Results[0])
	default:
		values := make([]dfir.Node, len(s.Results))
		for i, r := range s.Results {
			values[i] = t.valueNode(r)
		}
		v = &dfir.Variable{Values: values}
	}
	t.mergeInto(t.out.Returns, v)
}

// mergeInto records v as a return/throw value for the root scope, aggregating with any prior
// value from another return/panic statement in the same function into one dfir.Variable
// (DFIR's Returns/Throws maps are keyed per-scope, and this translator only ever uses one
// scope, so multiple exit points must fold together rather than overwrite each other).
func (t *translator) mergeInto(m map[*dfir.Scope]dfir.Node, v dfir.Node) {
	existing, ok := m[t.root]
	if !ok {
		m[t.root] = v
		return
	}
	if variable, ok := existing.(*dfir.Variable); ok {
		variable.Values = append(variable.Values, v)
		return
	}
	m[t.root] = &dfir.Variable{Values: []dfir.Node{existing, v}}
}

func (t *translator) valueNode(v ssa.Value) dfir.Node {
	if v == nil {
		return nil
	}
	if n, ok := t.values[v]; ok {
		return n
	}
	n := t.translateValue(v)
	t.values[v] = n
	return n
}

func (t *translator) translateValue(v ssa.Value) dfir.Node {
	switch x := v.(type) {
	case *ssa.Alloc:
		elem := x.Type()
		if ptr, ok := elem.Underlying().(*types.Pointer); ok {
			elem = ptr.Elem()
		}
		obj := &dfir.NewObject{ConstructedType: newType(elem), IR: x}
		t.emit(obj)
		t.cells[x] = obj
		return obj
	case *ssa.MakeSlice:
		obj := &dfir.NewObject{ConstructedType: newType(x.Type()), Arguments: []dfir.Node{t.valueNode(x.Len)}, IR: x}
		t.emit(obj)
		return obj
	case *ssa.MakeMap:
		obj := &dfir.NewObject{ConstructedType: newType(x.Type()), IR: x}
		t.emit(obj)
		return obj
	case *ssa.MakeChan:
		obj := &dfir.NewObject{ConstructedType: newType(x.Type()), IR: x}
		t.emit(obj)
		return obj
	case *ssa.MakeClosure:
		args := make([]dfir.Node, len(x.Bindings))
		for i, b := range x.Bindings {
			args[i] = t.valueNode(b)
		}
		obj := &dfir.NewObject{ConstructedType: newType(x.Type()), Arguments: args, IR: x}
		t.emit(obj)
		return obj
	case *ssa.FieldAddr:
		receiver := t.valueNode(x.X)
		f := t.fieldOf(x.X.Type(), x.Field)
		t.fieldAddrs[x] = fieldTarget{receiver: receiver, field: f}
		return &dfir.FieldRead{Receiver: receiver, FieldRef: f, IR: x}
	case *ssa.Field:
		receiver := t.valueNode(x.X)
		f := t.fieldOf(x.X.Type(), x.Field)
		return &dfir.FieldRead{Receiver: receiver, FieldRef: f, IR: x}
	case *ssa.IndexAddr:
		receiver := t.valueNode(x.X)
		t.indexAddrs[x] = receiver
		return &dfir.ArrayRead{Array: receiver, IR: x}
	case *ssa.Index:
		receiver := t.valueNode(x.X)
		return &dfir.ArrayRead{Array: receiver, IR: x}
	case *ssa.Lookup:
		receiver := t.valueNode(x.X)
		return &dfir.ArrayRead{Array: receiver, IR: x}
	case *ssa.UnOp:
		if x.Op == token.MUL {
			if cell, ok := t.cells[x.X]; ok {
				return cell
			}
			return t.valueNode(x.X)
		}
		return &dfir.Variable{} // arithmetic negation, channel receive, ...: opaque
	case *ssa.Phi:
		variable := &dfir.Variable{Name: x.Comment}
		t.values[x] = variable // break self-referential loop-header cycles before recursing
		for _, edge := range x.Edges {
			variable.Values = append(variable.Values, t.valueNode(edge))
		}
		return variable
	case *ssa.Call:
		return t.callSite(&x.Call, x)
	case *ssa.Convert:
		// representation-preserving conversion: the underlying value's identity survives
		return t.valueNode(x.X)
	case *ssa.ChangeType:
		return t.valueNode(x.X)
	case *ssa.ChangeInterface:
		return t.valueNode(x.X)
	case *ssa.SliceToArrayPointer:
		return t.valueNode(x.X)
	case *ssa.Extract:
		return t.valueNode(x.Tuple)
	case *ssa.Slice:
		return t.valueNode(x.X)
	default:
		return &dfir.Variable{}
	}
}

// callSite translates one ssa.CallCommon (shared by *ssa.Call, *ssa.Go, and *ssa.Defer) into a
// dfir.Call, resolving its callee through the Program's static/CHA/external fallback chain.
func (t *translator) callSite(common *ssa.CallCommon, site ssa.CallInstruction) *dfir.Call {
	args := make([]dfir.Node, len(common.Args))
	for i, a := range common.Args {
		args[i] = t.valueNode(a)
	}
	sym, resolved := t.prog.resolveCallee(site)
	call := &dfir.Call{Callee: sym, Arguments: args, IR: site, Virtual: !resolved}
	t.emit(call)
	return call
}

func (t *translator) fieldOf(recvType types.Type, index int) dfir.Field {
	st := structTypeOf(recvType)
	if st == nil || index >= st.NumFields() {
		return t.prog.field("<unknown-field>")
	}
	return t.prog.field(st.Field(index).Name())
}

func structTypeOf(t types.Type) *types.Struct {
	for {
		switch u := t.Underlying().(type) {
		case *types.Pointer:
			t = u.Elem()
		case *types.Struct:
			return u
		default:
			return nil
		}
	}
}
