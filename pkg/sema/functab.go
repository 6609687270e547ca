package sema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xplshn/bplc/pkg/ast"
	"github.com/xplshn/bplc/pkg/types"
)

// Unresolved marks a function whose entry offset is not known yet.
const Unresolved = -1

type Func struct {
	Name    string
	Ret     *types.Type // nil for void
	Params  []*types.Type
	Syms    *SymTable
	Entry   int
	Returns bool // every path ends in a return
	Decl    *ast.Node
}

func (f *Func) Resolved() bool { return f.Entry != Unresolved }

func (f *Func) IsVoid() bool { return f.Ret == nil }

func (f *Func) String() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.String()
	}
	s := fmt.Sprintf("%s(%s)", f.Name, strings.Join(parts, ", "))
	if f.Ret != nil {
		s += " " + f.Ret.String()
	}
	return s
}

// FuncTable holds every declared function, keyed by name and then by
// parameter-type list.
type FuncTable struct {
	byName map[string]map[string]*Func
	order  []*Func
}

func NewFuncTable() *FuncTable {
	return &FuncTable{byName: make(map[string]map[string]*Func)}
}

func paramsKey(params []*types.Type) string { return types.List(params) }

// Declare adds f. It returns false if the exact signature already exists.
func (ft *FuncTable) Declare(f *Func) bool {
	overloads, ok := ft.byName[f.Name]
	if !ok {
		overloads = make(map[string]*Func)
		ft.byName[f.Name] = overloads
	}
	key := paramsKey(f.Params)
	if _, dup := overloads[key]; dup {
		return false
	}
	if f.Syms == nil {
		f.Syms = NewSymTable()
	}
	f.Entry = Unresolved
	overloads[key] = f
	ft.order = append(ft.order, f)
	return true
}

func (ft *FuncTable) Has(name string) bool {
	_, ok := ft.byName[name]
	return ok
}

// Lookup finds the overload of name taking exactly params.
func (ft *FuncTable) Lookup(name string, params []*types.Type) (*Func, bool) {
	f, ok := ft.byName[name][paramsKey(params)]
	return f, ok
}

// Overloads lists the overloads of name sorted by arity, then parameter types.
func (ft *FuncTable) Overloads(name string) []*Func {
	var res []*Func
	for _, f := range ft.byName[name] {
		res = append(res, f)
	}
	sort.Slice(res, func(i, j int) bool { return types.Less(res[i].Params, res[j].Params) })
	return res
}

// First returns the first declared overload of name.
func (ft *FuncTable) First(name string) (*Func, bool) {
	for _, f := range ft.order {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Arities returns the distinct parameter counts declared for name, ascending.
func (ft *FuncTable) Arities(name string) []int {
	seen := make(map[int]bool)
	var res []int
	for _, f := range ft.byName[name] {
		if !seen[len(f.Params)] {
			seen[len(f.Params)] = true
			res = append(res, len(f.Params))
		}
	}
	sort.Ints(res)
	return res
}

// All returns every function in declaration order.
func (ft *FuncTable) All() []*Func { return ft.order }

// Unresolved returns the functions whose entry offset is still unknown.
func (ft *FuncTable) Unresolved() []*Func {
	var res []*Func
	for _, f := range ft.order {
		if !f.Resolved() {
			res = append(res, f)
		}
	}
	return res
}
