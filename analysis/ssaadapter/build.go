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
	"fmt"
	"hash/fnv"
	"sort"

	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	ourcallgraph "github.com/nativeopt/escapec/analysis/callgraph"
	"github.com/nativeopt/escapec/analysis/dfir"
)

// PkgLoadMode is the packages.Config.Mode this adapter requires: full syntax and type info,
// since ssautil.AllPackages needs both to build SSA.
const PkgLoadMode = packages.LoadAllSyntax

// Program holds the state one whole-program translation run accumulates: the underlying
// ssa.Program, a class-hierarchy-analysis call graph used only to attempt best-effort
// devirtualization of interface-method calls (never a precondition for correctness --
// unresolved calls simply fall back to an external, pessimistically-treated symbol, spec.md
// §6), and the memoization tables that give every *ssa.Function and struct field a single,
// stable dfir identity across the whole run.
type Program struct {
	ssaProg *ssa.Program
	cha     *chaGraph

	symbols map[*ssa.Function]*funcSymbol
	fields  map[string]dfir.Field
}

// chaGraph is the subset of golang.org/x/tools/go/callgraph.Graph this package reads.
type chaGraph struct {
	nodes map[*ssa.Function]chaNode
}

type chaNode struct {
	outBySite map[ssa.CallInstruction][]*ssa.Function
}

// NewProgram builds SSA for the given, already-loaded packages (typically the result of
// packages.Load with PkgLoadMode) and a best-effort CHA call graph over it.
func NewProgram(pkgs []*packages.Package) (*Program, error) {
	if packages.PrintErrors(pkgs) > 0 {
		return nil, fmt.Errorf("ssaadapter: one or more packages failed to load or type-check")
	}
	ssaProg, _ := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	ssaProg.Build()

	raw := cha.CallGraph(ssaProg)
	cg := &chaGraph{nodes: map[*ssa.Function]chaNode{}}
	for fn, node := range raw.Nodes {
		n := chaNode{outBySite: map[ssa.CallInstruction][]*ssa.Function{}}
		for _, edge := range node.Out {
			n.outBySite[edge.Site] = append(n.outBySite[edge.Site], edge.Callee.Func)
		}
		cg.nodes[fn] = n
	}

	return &Program{
		ssaProg: ssaProg,
		cha:     cg,
		symbols: map[*ssa.Function]*funcSymbol{},
		fields:  map[string]dfir.Field{},
	}, nil
}

// Nodes returns one analysis/callgraph.Node per function this program translates, suitable
// for callgraph.Build and then analysis/callgraph.ComputeLifetimes. A function's body is
// translated lazily, the first time something resolves its funcSymbol -- Nodes itself only
// forces translation of fns, not of every function transitively reachable from them (those
// get pulled in as their callers' call sites are translated).
func (p *Program) Nodes(fns []*ssa.Function) []*ourcallgraph.Node {
	nodes := make([]*ourcallgraph.Node, 0, len(fns))
	for _, fn := range fns {
		sym := p.symbolFor(fn)
		body, _ := sym.Resolved()
		nodes = append(nodes, &ourcallgraph.Node{Symbol: sym, Func: body})
	}
	return nodes
}

// AllFunctions returns every function reachable from this program's packages (including
// synthetic wrappers and bound-method thunks ssautil.AllFunctions discovers), restricted to
// those whose package path keep admits -- nil keep admits everything. The result is sorted
// by qualified name so a Nodes/Build/ComputeLifetimes pipeline built from it is deterministic
// across runs, which matters for render output and for reading driver logs.
func (p *Program) AllFunctions(keep func(pkgPath string) bool) []*ssa.Function {
	all := ssautil.AllFunctions(p.ssaProg)
	fns := make([]*ssa.Function, 0, len(all))
	for fn := range all {
		if fn.Pkg == nil || fn.Pkg.Pkg == nil {
			continue
		}
		if keep == nil || keep(fn.Pkg.Pkg.Path()) {
			fns = append(fns, fn)
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].RelString(nil) < fns[j].RelString(nil) })
	return fns
}

func (p *Program) symbolFor(fn *ssa.Function) *funcSymbol {
	if sym, ok := p.symbols[fn]; ok {
		return sym
	}
	sym := &funcSymbol{prog: p, fn: fn}
	p.symbols[fn] = sym
	return sym
}

func (p *Program) translate(fn *ssa.Function) (*dfir.Function, bool) {
	if fn.Blocks == nil {
		return nil, false // no body available: external, intrinsic, or purely declared
	}
	t := newTranslator(p, fn)
	return t.run(), true
}

func (p *Program) field(name string) dfir.Field {
	if f, ok := p.fields[name]; ok {
		return f
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	f := dfir.Field{Hash: h.Sum64(), Name: name}
	p.fields[name] = f
	return f
}

// resolveCallee returns the FunctionSymbol a call instruction's callee resolves to: the
// statically known *ssa.Function if the call isn't an interface-method invocation, the unique
// CHA candidate if there is exactly one, or an external symbol (treated pessimistically by
// analysis/summaries) otherwise.
func (p *Program) resolveCallee(site ssa.CallInstruction) (dfir.FunctionSymbol, bool) {
	common := site.Common()
	if callee := common.StaticCallee(); callee != nil {
		return p.symbolFor(callee), true
	}

	if node, ok := p.cha.nodes[site.Parent()]; ok {
		if candidates := node.outBySite[site]; len(candidates) == 1 {
			return p.symbolFor(candidates[0]), true
		}
	}

	name := "<virtual>"
	if !common.IsInvoke() && common.Value != nil {
		name = common.Value.Name()
	} else if common.Method != nil {
		name = common.Method.Name()
	}
	return &externalSymbol{name: name, paramCount: len(common.Args)}, false
}
