package sema

import (
	"github.com/xplshn/bplc/pkg/ast"
	"github.com/xplshn/bplc/pkg/token"
	"github.com/xplshn/bplc/pkg/types"
	"github.com/xplshn/bplc/pkg/util"
)

// EntryPoint is the function the program header calls.
const EntryPoint = "main"

// ResolveType maps a type annotation to its interned type.
func ResolveType(reg *types.Registry, n *ast.Node) (*types.Type, error) {
	switch n.Type {
	case ast.TypeName:
		d := n.Data.(ast.TypeNameNode)
		t, ok := reg.Lookup(d.Name)
		if !ok {
			return nil, util.Errorf(util.ErrTypeUndeclared, n.Tok, "type '%s' undeclared", d.Name)
		}
		return t, nil
	case ast.PointerType:
		elem, err := ResolveType(reg, n.Data.(ast.PointerTypeNode).Elem)
		if err != nil {
			return nil, err
		}
		return reg.PointerTo(elem), nil
	}
	return nil, util.Errorf(util.ErrInternal, n.Tok, "unexpected %s node in type position", n.Type)
}

// Resolve walks every function declaration and builds the function table
// before any code is generated.
func Resolve(root *ast.Node, reg *types.Registry) (*FuncTable, error) {
	if root == nil || root.Type != ast.Unit {
		return nil, util.Errorf(util.ErrInternal, token.Token{}, "resolve: expected a compilation unit")
	}
	ft := NewFuncTable()
	for _, decl := range root.Data.(ast.UnitNode).Funcs {
		f, err := resolveFunc(decl, reg)
		if err != nil {
			return nil, err
		}
		if !ft.Declare(f) {
			d := decl.Data.(ast.FuncDeclNode)
			return nil, util.Errorf(util.ErrFuncRedeclared, d.NameTok, "function '%s' redeclared", d.Name)
		}
	}
	if err := checkEntryPoint(ft); err != nil {
		return nil, err
	}
	return ft, nil
}

func resolveFunc(decl *ast.Node, reg *types.Registry) (*Func, error) {
	d := decl.Data.(ast.FuncDeclNode)
	f := &Func{Name: d.Name, Syms: NewSymTable(), Decl: decl, Entry: Unresolved}
	if d.Result != nil {
		ret, err := ResolveType(reg, d.Result)
		if err != nil {
			return nil, err
		}
		f.Ret = ret
	}
	for _, pn := range d.Params {
		p := pn.Data.(ast.ParamNode)
		t, err := ResolveType(reg, p.Typ)
		if err != nil {
			return nil, err
		}
		if _, ok := f.Syms.DeclParam(p.Name, t, pn.Tok); !ok {
			return nil, util.Errorf(util.ErrSymRedeclared, pn.Tok, "symbol '%s' redeclared", p.Name)
		}
		f.Params = append(f.Params, t)
	}
	return f, nil
}

func checkEntryPoint(ft *FuncTable) error {
	overloads := ft.Overloads(EntryPoint)
	switch {
	case len(overloads) == 0:
		return util.Errorf(util.ErrMainMissing, token.Token{}, "function '%s()' undeclared - a program needs an entry point", EntryPoint)
	case len(overloads) > 1:
		second := ft.order[0]
		seen := 0
		for _, f := range ft.order {
			if f.Name == EntryPoint {
				if seen++; seen == 2 {
					second = f
					break
				}
			}
		}
		d := second.Decl.Data.(ast.FuncDeclNode)
		return util.Errorf(util.ErrMainOverloaded, d.NameTok, "function '%s' must not be overloaded", EntryPoint)
	}
	main, _ := ft.First(EntryPoint)
	if len(main.Params) != 0 {
		d := main.Decl.Data.(ast.FuncDeclNode)
		return util.Errorf(util.ErrMainMissing, d.NameTok, "function '%s' must not take parameters - have %s", EntryPoint, types.List(main.Params))
	}
	return nil
}
