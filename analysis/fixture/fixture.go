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

// Package fixture builds dfir.Function trees directly from a small, deliberately restricted
// notation written in real Go syntax, so a unit test can write:
//
//	func sink(p T) {
//	    g.field = p
//	}
//
// instead of hand-assembling a dfir.Scope tree of *dfir.FieldWrite/*dfir.Parameter nodes. It
// is parsed with github.com/dave/dst (so the notation is always valid, gofmt-able Go) but
// interpreted by this package's own Builder rather than type-checked or compiled: the
// interpretation is scoped to exactly the handful of statement shapes spec.md's DFIR models
// (allocation, field/array read-write, call, return), not general Go semantics. Branching
// control flow (if/for/switch) is flattened into the enclosing scope in source order, which
// is adequate for exercising escape classification but not a faithful CFG -- this package is
// test tooling, not the production SSA-to-DFIR bridge (that is analysis/ssaadapter).
package fixture

import (
	"fmt"
	"hash/fnv"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"

	"github.com/nativeopt/escapec/analysis/dfir"
)

// Types supplies the dfir.Type a `new(Name)` expression or a parameter's declared type
// resolves to, by name. A name absent from Types resolves to an opaqueType (Resolved returns
// false), which is valid input -- spec.md treats an unresolved Type as fatal only once the
// escape analysis actually needs its Kind (e.g. the stack-array budget check), not merely for
// existing as a parameter or field type.
type Types map[string]dfir.Declared

// Functions supplies the dfir.FunctionSymbol a bare call expression's callee name resolves
// to. A name absent from Functions resolves to an external symbol with Resolved() = (nil,
// false), treated as a virtual/pessimistic call site the same way a real frontend treats an
// unresolved one.
type Functions map[string]dfir.FunctionSymbol

// Builder interprets fixture source into dfir.Function values, reusing one Field-hash
// registry (so the same field name always hashes to the same dfir.Field across every Parse
// call made through the same Builder) and one externalSymbol cache (so two calls to the same
// unresolved function name share one FunctionSymbol, matching real call-graph identity
// semantics).
type Builder struct {
	Types     Types
	Functions Functions

	fields    map[string]dfir.Field
	externals map[string]dfir.FunctionSymbol
}

// NewBuilder returns a Builder seeded with the given type and function registries (either may
// be nil).
func NewBuilder(types Types, functions Functions) *Builder {
	if types == nil {
		types = Types{}
	}
	if functions == nil {
		functions = Functions{}
	}
	return &Builder{
		Types:     types,
		Functions: functions,
		fields:    map[string]dfir.Field{},
		externals: map[string]dfir.FunctionSymbol{},
	}
}

// Parse interprets a single `func name(params...) { ... }` declaration in src (a full,
// syntactically valid Go source file containing exactly one top-level function) into a
// dfir.Function.
func (b *Builder) Parse(src string) (*dfir.Function, error) {
	file, err := decorator.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("fixture: parsing source: %w", err)
	}
	for _, d := range file.Decls {
		if fd, ok := d.(*dst.FuncDecl); ok {
			return b.buildFunction(fd)
		}
	}
	return nil, fmt.Errorf("fixture: source contains no top-level function declaration")
}

func (b *Builder) buildFunction(fd *dst.FuncDecl) (*dfir.Function, error) {
	fn := &dfir.Function{
		Name:    fd.Name.Name,
		Returns: map[*dfir.Scope]dfir.Node{},
		Throws:  map[*dfir.Scope]dfir.Node{},
	}

	env := &scopeEnv{builder: b, vars: map[string]dfir.Node{}}
	if fd.Type.Params != nil {
		idx := 0
		for _, field := range fd.Type.Params.List {
			typ := b.resolveType(exprTypeName(field.Type))
			names := field.Names
			if len(names) == 0 {
				names = []*dst.Ident{{Name: fmt.Sprintf("_p%d", idx)}}
			}
			for _, name := range names {
				p := &dfir.Parameter{Index: idx, Typ: typ}
				fn.Params = append(fn.Params, p)
				env.vars[name.Name] = p
				idx++
			}
		}
	}

	root := &dfir.Scope{}
	fn.RootScope = root
	env.emit = func(n dfir.Node) { root.Nodes = append(root.Nodes, n) }
	env.scope = root
	env.fn = fn

	if fd.Body != nil {
		for _, stmt := range fd.Body.List {
			if err := env.statement(stmt); err != nil {
				return nil, err
			}
		}
	}
	return fn, nil
}

// scopeEnv threads the variable bindings and the node-accumulation callback for whichever
// dfir.Scope statements are currently being appended to.
type scopeEnv struct {
	builder *Builder
	fn      *dfir.Function
	scope   *dfir.Scope
	vars    map[string]dfir.Node
	emit    func(dfir.Node)
}

func (e *scopeEnv) child() *scopeEnv {
	vars := make(map[string]dfir.Node, len(e.vars))
	for k, v := range e.vars {
		vars[k] = v
	}
	s := &dfir.Scope{}
	e.emit(s)
	return &scopeEnv{
		builder: e.builder,
		fn:      e.fn,
		scope:   s,
		vars:    vars,
		emit:    func(n dfir.Node) { s.Nodes = append(s.Nodes, n) },
	}
}

func (e *scopeEnv) statement(stmt dst.Stmt) error {
	switch s := stmt.(type) {
	case *dst.AssignStmt:
		return e.assign(s)
	case *dst.ExprStmt:
		_, err := e.expr(s.X)
		return err
	case *dst.ReturnStmt:
		var v dfir.Node
		var err error
		if len(s.Results) > 0 {
			v, err = e.expr(s.Results[0])
			if err != nil {
				return err
			}
		}
		e.fn.Returns[e.scope] = v
		return nil
	case *dst.IfStmt:
		child := e.child()
		for _, st := range s.Body.List {
			if err := child.statement(st); err != nil {
				return err
			}
		}
		return nil
	case *dst.BlockStmt:
		child := e.child()
		for _, st := range s.List {
			if err := child.statement(st); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("fixture: unsupported statement %T", stmt)
	}
}

func (e *scopeEnv) assign(s *dst.AssignStmt) error {
	if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
		return fmt.Errorf("fixture: only single-valued assignment is supported")
	}
	switch lhs := s.Lhs[0].(type) {
	case *dst.Ident:
		v, err := e.expr(s.Rhs[0])
		if err != nil {
			return err
		}
		if existing, ok := e.vars[lhs.Name]; ok {
			if variable, ok := existing.(*dfir.Variable); ok {
				variable.Values = append(variable.Values, v)
				return nil
			}
			v = &dfir.Variable{Name: lhs.Name, Values: []dfir.Node{existing, v}}
		}
		e.vars[lhs.Name] = v
		return nil
	case *dst.SelectorExpr:
		receiver, err := e.receiverExpr(lhs.X)
		if err != nil {
			return err
		}
		value, err := e.expr(s.Rhs[0])
		if err != nil {
			return err
		}
		write := &dfir.FieldWrite{Receiver: receiver, FieldRef: e.builder.field(lhs.Sel.Name), Value: value}
		e.emit(write)
		return nil
	case *dst.IndexExpr:
		array, err := e.expr(lhs.X)
		if err != nil {
			return err
		}
		value, err := e.expr(s.Rhs[0])
		if err != nil {
			return err
		}
		e.emit(&dfir.ArrayWrite{Array: array, Value: value})
		return nil
	default:
		return fmt.Errorf("fixture: unsupported assignment target %T", lhs)
	}
}

func (e *scopeEnv) expr(expr dst.Expr) (dfir.Node, error) {
	switch x := expr.(type) {
	case *dst.Ident:
		if x.Name == "nil" {
			return nil, nil
		}
		if v, ok := e.vars[x.Name]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("fixture: reference to undeclared variable %q", x.Name)
	case *dst.BasicLit:
		return literal(x)
	case *dst.SelectorExpr:
		if pkg, ok := x.X.(*dst.Ident); ok {
			if _, isVar := e.vars[pkg.Name]; !isVar {
				return &dfir.Singleton{Typ: e.builder.resolveType(pkg.Name + "." + x.Sel.Name)}, nil
			}
		}
		receiver, err := e.expr(x.X)
		if err != nil {
			return nil, err
		}
		return &dfir.FieldRead{Receiver: receiver, FieldRef: e.builder.field(x.Sel.Name)}, nil
	case *dst.IndexExpr:
		array, err := e.expr(x.X)
		if err != nil {
			return nil, err
		}
		return &dfir.ArrayRead{Array: array}, nil
	case *dst.CallExpr:
		return e.call(x)
	case *dst.UnaryExpr:
		return e.expr(x.X)
	default:
		return nil, fmt.Errorf("fixture: unsupported expression %T", expr)
	}
}

// receiverExpr resolves a field write's receiver expression. Unlike expr, a bare identifier
// that names no local variable is not an error here: it names a global, and resolves to a nil
// Receiver, matching roles.go's convention that Receiver == nil marks the write as reaching a
// static/global location (spec.md §4.1) rather than a field of some tracked node.
func (e *scopeEnv) receiverExpr(x dst.Expr) (dfir.Node, error) {
	if id, ok := x.(*dst.Ident); ok && id.Name != "nil" {
		if v, ok := e.vars[id.Name]; ok {
			return v, nil
		}
		return nil, nil
	}
	return e.expr(x)
}

func (e *scopeEnv) call(call *dst.CallExpr) (dfir.Node, error) {
	if ident, ok := call.Fun.(*dst.Ident); ok && ident.Name == "new" {
		if len(call.Args) != 1 {
			return nil, fmt.Errorf("fixture: new() takes exactly one type argument")
		}
		typeName := exprTypeName(call.Args[0])
		obj := &dfir.NewObject{ConstructedType: e.builder.resolveType(typeName)}
		e.emit(obj)
		return obj, nil
	}

	args := make([]dfir.Node, 0, len(call.Args))
	for _, a := range call.Args {
		v, err := e.expr(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	name, ok := call.Fun.(*dst.Ident)
	if !ok {
		return nil, fmt.Errorf("fixture: unsupported call target %T", call.Fun)
	}
	sym := e.builder.resolveFunction(name.Name)
	c := &dfir.Call{Callee: sym, Arguments: args, Virtual: sym == nil}
	if sym == nil {
		c.Callee = e.builder.externalSymbol(name.Name, len(args))
	}
	e.emit(c)
	return c, nil
}

func literal(lit *dst.BasicLit) (dfir.Node, error) {
	switch lit.Kind.String() {
	case "INT":
		var v int64
		if _, err := fmt.Sscanf(lit.Value, "%d", &v); err != nil {
			return nil, fmt.Errorf("fixture: parsing int literal %q: %w", lit.Value, err)
		}
		return &dfir.SimpleConst[int64]{Value: v}, nil
	default:
		return &dfir.SimpleConst[string]{Value: lit.Value}, nil
	}
}

func (b *Builder) field(name string) dfir.Field {
	if f, ok := b.fields[name]; ok {
		return f
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	f := dfir.Field{Hash: h.Sum64(), Name: name}
	b.fields[name] = f
	return f
}

func (b *Builder) resolveType(name string) dfir.Type {
	if t, ok := b.Types[name]; ok {
		return t
	}
	return &opaqueType{name: name}
}

// resolveFunction returns the FunctionSymbol for a statically-known fixture function name, or
// nil if the name isn't registered (handled by the caller as an unresolved/virtual call).
func (b *Builder) resolveFunction(name string) dfir.FunctionSymbol {
	if sym, ok := b.Functions[name]; ok {
		return sym
	}
	return nil
}

func (b *Builder) externalSymbol(name string, argCount int) dfir.FunctionSymbol {
	if sym, ok := b.externals[name]; ok {
		return sym
	}
	sym := &externalSymbol{name: name, paramCount: argCount}
	b.externals[name] = sym
	return sym
}

// opaqueType is the Type fixture source resolves a name to when the caller supplied no entry
// for it in Types: a bare external reference, unresolved by design.
type opaqueType struct{ name string }

func (t *opaqueType) Name() string                    { return t.name }
func (t *opaqueType) Resolved() (dfir.Declared, bool) { return nil, false }

// externalSymbol is the FunctionSymbol a call to an unregistered function name resolves to:
// genuinely external, never resolvable to a dfir.Function body.
type externalSymbol struct {
	name       string
	paramCount int
}

func (s *externalSymbol) Name() string                     { return s.name }
func (s *externalSymbol) Resolved() (*dfir.Function, bool) { return nil, false }
func (s *externalSymbol) ParamCount() int                  { return s.paramCount }

// exprTypeName renders a type expression (bare identifiers and qualified `pkg.Name` selectors
// only, the only two shapes fixture source needs) back to a dotted name string.
func exprTypeName(expr dst.Expr) string {
	switch t := expr.(type) {
	case *dst.Ident:
		return t.Name
	case *dst.SelectorExpr:
		return exprTypeName(t.X) + "." + t.Sel.Name
	case *dst.StarExpr:
		return exprTypeName(t.X)
	default:
		return fmt.Sprintf("%T", expr)
	}
}
