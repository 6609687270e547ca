package codegen

import (
	"slices"
	"strings"

	"github.com/xplshn/bplc/pkg/ast"
	"github.com/xplshn/bplc/pkg/bytecode"
	"github.com/xplshn/bplc/pkg/sema"
	"github.com/xplshn/bplc/pkg/token"
	"github.com/xplshn/bplc/pkg/types"
	"github.com/xplshn/bplc/pkg/util"
)

var binaryOps = map[token.Type]bytecode.Opcode{
	token.Plus:  bytecode.IADD,
	token.Minus: bytecode.ISUB,
	token.Star:  bytecode.IMUL,
	token.Slash: bytecode.IDIV,
	token.Lt:    bytecode.ILT,
	token.Gt:    bytecode.IGT,
	token.Lte:   bytecode.ILTE,
	token.Gte:   bytecode.IGTE,
	token.EqEq:  bytecode.IEQ,
	token.Neq:   bytecode.INEQ,
}

// genValue emits n and returns its type, leaving the type stack as it was.
func (g *Generator) genValue(b *bytecode.Builder, n *ast.Node) (*types.Type, error) {
	if err := g.genExpr(b, n); err != nil {
		return nil, err
	}
	t, err := g.ts.pop()
	if err != nil {
		return nil, internal(n.Tok, err)
	}
	return t, nil
}

// genExpr emits n and pushes its type.
func (g *Generator) genExpr(b *bytecode.Builder, n *ast.Node) error {
	switch n.Type {
	case ast.Number:
		b.OpI64(bytecode.IPUSH, n.Data.(ast.NumberNode).Value)
		g.ts.push(g.reg.Int())

	case ast.String:
		str := g.reg.Str()
		b.OpU32x2(bytecode.SPUSH, uint32(str.Tag()), g.static.Intern(n.Data.(ast.StringNode).Value))
		g.ts.push(str)

	case ast.Ident:
		sym, err := g.lookup(n)
		if err != nil {
			return err
		}
		b.OpI32(bytecode.LOAD, int32(sym.Slot))
		g.ts.push(sym.Type)

	case ast.BinaryOp:
		d := n.Data.(ast.BinaryOpNode)
		if err := g.genOperands(b, n, d.Left, d.Right); err != nil {
			return err
		}
		b.Op(binaryOps[d.Op])

	case ast.BoolOp:
		return g.genBoolOp(b, n)

	case ast.AddressOf:
		target := n.Data.(ast.AddressOfNode).Expr
		if target.Type != ast.Ident {
			return util.Errorf(util.ErrUnaddressable, n.Tok, "cannot take the address of '%s'", g.excerpt(target))
		}
		sym, err := g.lookup(target)
		if err != nil {
			return err
		}
		pt := g.reg.PointerTo(sym.Type)
		b.OpU32I32(bytecode.ADDR_OF, uint32(pt.Tag()), int32(sym.Slot))
		g.ts.push(pt)

	case ast.Deref:
		target := n.Data.(ast.DerefNode).Expr
		t, err := g.genValue(b, target)
		if err != nil {
			return err
		}
		if !t.IsPointer() {
			return util.Errorf(util.ErrInvalidDereference, n.Tok, "invalid dereference of '%s' - type %s", g.excerpt(target), t)
		}
		b.Op(bytecode.VAL_OF)
		g.ts.push(t.Elem())

	case ast.Call:
		f, err := g.genCall(b, n)
		if err != nil {
			return err
		}
		if f.IsVoid() {
			return util.Errorf(util.ErrVoidAsValue, n.Tok, "function '%s' returns no value - used as value in '%s'", f, g.excerpt(n))
		}
		g.ts.push(f.Ret)

	default:
		return util.Errorf(util.ErrInternal, n.Tok, "codegen: unexpected %s node in expression position", n.Type)
	}
	return nil
}

// genOperands emits both operands of a binary operator, checks that both
// are int and pushes the int result type.
func (g *Generator) genOperands(b *bytecode.Builder, n, left, right *ast.Node) error {
	if err := g.genExpr(b, left); err != nil {
		return err
	}
	if err := g.genExpr(b, right); err != nil {
		return err
	}
	return g.checkOperands(n)
}

func (g *Generator) checkOperands(n *ast.Node) error {
	ops, err := g.ts.popN(2)
	if err != nil {
		return internal(n.Tok, err)
	}
	i := g.reg.Int()
	if ops[0] != i || ops[1] != i {
		return g.mismatch(n, types.List(ops), types.List([]*types.Type{i, i}))
	}
	g.ts.push(i)
	return nil
}

// genBoolOp lowers && and || to branches that skip the right operand once
// the left one decides the result.
//
//	&&: lhs; BREQ f; rhs; BREQ f; IPUSH 1; JMP end; f: IPUSH 0; end:
//	||: lhs; BRNE t; rhs; BRNE t; IPUSH 0; JMP end; t: IPUSH 1; end:
func (g *Generator) genBoolOp(b *bytecode.Builder, n *ast.Node) error {
	d := n.Data.(ast.BoolOpNode)
	var lhs, rhs bytecode.Builder
	if err := g.genExpr(&lhs, d.Left); err != nil {
		return err
	}
	if err := g.genExpr(&rhs, d.Right); err != nil {
		return err
	}
	if err := g.checkOperands(n); err != nil {
		return err
	}

	branch, short, full := bytecode.BREQ, int64(0), int64(1)
	if d.Op == token.OrOr {
		branch, short, full = bytecode.BRNE, 1, 0
	}
	tail := bytecode.JumpSize + bytecode.IPushSize + bytecode.JumpSize
	b.Append(lhs.Bytes())
	b.Jump(branch, rhs.Len()+tail)
	b.Append(rhs.Bytes())
	b.Jump(branch, bytecode.IPushSize+bytecode.JumpSize)
	b.OpI64(bytecode.IPUSH, full)
	b.Jump(bytecode.JMP, bytecode.IPushSize)
	b.OpI64(bytecode.IPUSH, short)
	return nil
}

func (g *Generator) lookup(n *ast.Node) (*sema.Symbol, error) {
	name := n.Data.(ast.IdentNode).Name
	sym, ok := g.fn.Syms.Lookup(name)
	if !ok {
		return nil, util.Errorf(util.ErrSymUndeclared, n.Tok, "symbol '%s' undeclared", name)
	}
	return sym, nil
}

// genCall emits the arguments and the CALL. The callee's result is left on
// the VM stack but not on the type stack.
func (g *Generator) genCall(b *bytecode.Builder, n *ast.Node) (*sema.Func, error) {
	d := n.Data.(ast.CallNode)
	for _, a := range d.Args {
		if err := g.genExpr(b, a); err != nil {
			return nil, err
		}
	}
	argTypes, err := g.ts.popN(len(d.Args))
	if err != nil {
		return nil, internal(n.Tok, err)
	}
	f, err := g.resolveCall(n, argTypes)
	if err != nil {
		return nil, err
	}
	b.OpU32x2(bytecode.CALL, g.entryOf(f), uint32(len(d.Args)))
	return f, nil
}

// resolveCall picks the overload of the called function whose parameter
// list equals args exactly.
func (g *Generator) resolveCall(n *ast.Node, args []*types.Type) (*sema.Func, error) {
	name := n.Data.(ast.CallNode).Name
	if !g.funcs.Has(name) {
		return nil, util.Errorf(util.ErrFuncUndeclared, n.Tok, "function '%s(%s)' undeclared", name, joinTypes(args))
	}
	if f, ok := g.funcs.Lookup(name, args); ok {
		return f, nil
	}

	overloads := g.funcs.Overloads(name)
	arities := g.funcs.Arities(name)
	if !slices.Contains(arities, len(args)) {
		want := prefixMatches(overloads, args)
		if len(want) == 0 {
			want = overloads
		}
		err := util.Errorf(util.ErrWrongNumArgs, n.Tok, "%s to function '%s' - have %s want %s",
			arityProblem(want, len(args)), name, types.List(args), paramLists(want))
		err.Arities = arities
		return nil, err
	}

	var want []*sema.Func
	for _, f := range overloads {
		if len(f.Params) == len(args) {
			want = append(want, f)
		}
	}
	return nil, util.Errorf(util.ErrWrongArgTypes, n.Tok, "wrong argument types to function '%s' - have %s want %s",
		name, types.List(args), paramLists(want))
}

// prefixMatches returns the overloads whose parameters agree with args
// over the length of the shorter list.
func prefixMatches(overloads []*sema.Func, args []*types.Type) []*sema.Func {
	var res []*sema.Func
	for _, f := range overloads {
		n := min(len(f.Params), len(args))
		if types.Equal(f.Params[:n], args[:n]) {
			res = append(res, f)
		}
	}
	return res
}

func arityProblem(want []*sema.Func, have int) string {
	fewer, more := 0, 0
	for _, f := range want {
		if len(f.Params) > have {
			fewer++
		} else {
			more++
		}
	}
	switch len(want) {
	case fewer:
		return "too few arguments"
	case more:
		return "too many arguments"
	}
	return "wrong number of arguments"
}

func paramLists(fs []*sema.Func) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = types.List(f.Params)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func joinTypes(ts []*types.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
