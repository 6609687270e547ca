package codegen

import (
	"github.com/xplshn/bplc/pkg/ast"
	"github.com/xplshn/bplc/pkg/bytecode"
	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/sema"
	"github.com/xplshn/bplc/pkg/types"
	"github.com/xplshn/bplc/pkg/util"
)

// genBlock emits a block in its own scope and defer frame. It reports
// whether every path through the block ends in a return.
func (g *Generator) genBlock(b *bytecode.Builder, n *ast.Node) (bool, error) {
	g.enterBlock()
	defer g.fn.Syms.PopScope()

	var stmts []*ast.Node
	if n.Type == ast.Block {
		stmts = n.Data.(ast.BlockNode).Stmts
	} else {
		stmts = []*ast.Node{n}
	}

	returns := false
	for _, stmt := range stmts {
		if returns {
			return false, util.Errorf(util.ErrStatementUnreachable, stmt.Tok, "unreachable statement '%s'", stmt.Tok.Text())
		}
		r, err := g.genStmt(b, stmt)
		if err != nil {
			return false, err
		}
		returns = r
	}

	frame := g.exitBlock()
	if !returns {
		replay(b, frame)
	}
	return returns, nil
}

func (g *Generator) enterBlock() {
	g.fn.Syms.PushScope()
	g.defers = append(g.defers, nil)
}

func (g *Generator) exitBlock() [][]byte {
	frame := g.defers[len(g.defers)-1]
	g.defers = g.defers[:len(g.defers)-1]
	return frame
}

// replay appends recorded defers in reverse order of registration.
func replay(b *bytecode.Builder, frame [][]byte) {
	for i := len(frame) - 1; i >= 0; i-- {
		b.Append(frame[i])
	}
}

func (g *Generator) genStmt(b *bytecode.Builder, n *ast.Node) (bool, error) {
	switch n.Type {
	case ast.Block:
		return g.genBlock(b, n)
	case ast.VarDecl:
		return false, g.genVarDecl(b, n)
	case ast.Assign:
		return false, g.genAssign(b, n)
	case ast.Return:
		return true, g.genReturn(b, n)
	case ast.Print:
		return false, g.genPrint(b, n.Data.(ast.PrintNode).Args, n)
	case ast.If:
		return g.genIf(b, n)
	case ast.While:
		return false, g.genWhile(b, n)
	case ast.Defer:
		return false, g.genDefer(b, n)
	case ast.ExprStmt:
		return false, g.genExprStmt(b, n)
	}
	return false, util.Errorf(util.ErrInternal, n.Tok, "codegen: unexpected %s node in statement position", n.Type)
}

func (g *Generator) genVarDecl(b *bytecode.Builder, n *ast.Node) error {
	d := n.Data.(ast.VarDeclNode)
	var declared *types.Type
	if d.Typ != nil {
		t, err := sema.ResolveType(g.reg, d.Typ)
		if err != nil {
			return err
		}
		declared = t
	}

	if d.Init != nil {
		have, err := g.genValue(b, d.Init)
		if err != nil {
			return err
		}
		if declared != nil && have != declared {
			return g.mismatch(n, have.String(), declared.String())
		}
		if declared == nil {
			declared = have
		}
	} else {
		g.genZero(b, declared)
	}

	syms := g.fn.Syms
	if syms.Shadows(d.Name) {
		g.warn(config.WarnShadow, n.Tok, "declaration of '%s' shadows an outer declaration", d.Name)
	}
	sym, ok := syms.DeclLocal(d.Name, declared, n.Tok)
	if !ok {
		return util.Errorf(util.ErrSymRedeclared, n.Tok, "symbol '%s' redeclared", d.Name)
	}
	b.OpI32(bytecode.STORE, int32(sym.Slot))
	return nil
}

// genZero pushes the zero value of t.
func (g *Generator) genZero(b *bytecode.Builder, t *types.Type) {
	switch {
	case t.IsPointer():
		b.OpU32(bytecode.NPUSH, uint32(t.Tag()))
	case t == g.reg.Str():
		b.OpU32x2(bytecode.SPUSH, uint32(t.Tag()), g.static.Intern(""))
	default:
		b.OpI64(bytecode.IPUSH, 0)
	}
}

func (g *Generator) genAssign(b *bytecode.Builder, n *ast.Node) error {
	d := n.Data.(ast.AssignNode)
	switch d.Lhs.Type {
	case ast.Ident:
		sym, err := g.lookup(d.Lhs)
		if err != nil {
			return err
		}
		have, err := g.genValue(b, d.Rhs)
		if err != nil {
			return err
		}
		if have != sym.Type {
			return g.mismatch(n, have.String(), sym.Type.String())
		}
		b.OpI32(bytecode.STORE, int32(sym.Slot))
		return nil

	case ast.Deref:
		have, err := g.genValue(b, d.Rhs)
		if err != nil {
			return err
		}
		ptr := d.Lhs.Data.(ast.DerefNode).Expr
		pt, err := g.genValue(b, ptr)
		if err != nil {
			return err
		}
		if !pt.IsPointer() {
			return util.Errorf(util.ErrInvalidDereference, d.Lhs.Tok, "invalid dereference of '%s' - type %s", g.excerpt(ptr), pt)
		}
		if have != pt.Elem() {
			return g.mismatch(n, have.String(), pt.Elem().String())
		}
		b.Op(bytecode.RESOLVE)
		b.Op(bytecode.STOREI)
		return nil
	}
	return util.Errorf(util.ErrUnassignable, d.Lhs.Tok, "cannot assign to '%s'", g.excerpt(d.Lhs))
}

// genReturn runs the defers of every enclosing block, innermost first,
// then evaluates the result and returns.
func (g *Generator) genReturn(b *bytecode.Builder, n *ast.Node) error {
	d := n.Data.(ast.ReturnNode)
	for i := len(g.defers) - 1; i >= 0; i-- {
		replay(b, g.defers[i])
	}

	switch {
	case g.fn.IsVoid() && d.Expr != nil:
		return util.Errorf(util.ErrVoidAsValue, n.Tok, "function '%s' has no result - cannot return '%s'", g.fn.Name, g.excerpt(d.Expr))
	case g.fn.IsVoid():
		b.OpI64(bytecode.IPUSH, 0)
	case d.Expr == nil:
		return g.mismatch(n, "void", g.fn.Ret.String())
	default:
		have, err := g.genValue(b, d.Expr)
		if err != nil {
			return err
		}
		if have != g.fn.Ret {
			return g.mismatch(n, have.String(), g.fn.Ret.String())
		}
	}
	b.Op(bytecode.RET)
	return nil
}

func (g *Generator) genPrint(b *bytecode.Builder, args []*ast.Node, n *ast.Node) error {
	for _, a := range args {
		if err := g.genExpr(b, a); err != nil {
			return err
		}
	}
	if _, err := g.ts.popN(len(args)); err != nil {
		return internal(n.Tok, err)
	}
	b.OpU32(bytecode.PRINT, uint32(len(args)))
	return nil
}

func (g *Generator) genCond(b *bytecode.Builder, cond *ast.Node) error {
	t, err := g.genValue(b, cond)
	if err != nil {
		return err
	}
	if t != g.reg.Int() {
		return g.mismatch(cond, t.String(), g.reg.Int().String())
	}
	return nil
}

func (g *Generator) genIf(b *bytecode.Builder, n *ast.Node) (bool, error) {
	d := n.Data.(ast.IfNode)
	if err := g.genCond(b, d.Cond); err != nil {
		return false, err
	}

	var thenB, elseB bytecode.Builder
	thenReturns, err := g.genBlock(&thenB, d.Then)
	if err != nil {
		return false, err
	}
	elseReturns := false
	if d.Else != nil {
		if elseReturns, err = g.genBlock(&elseB, d.Else); err != nil {
			return false, err
		}
	}

	if d.Else == nil {
		b.Jump(bytecode.BREQ, thenB.Len())
		b.Append(thenB.Bytes())
		return false, nil
	}
	b.Jump(bytecode.BREQ, thenB.Len()+bytecode.JumpSize)
	b.Append(thenB.Bytes())
	b.Jump(bytecode.JMP, elseB.Len())
	b.Append(elseB.Bytes())
	return thenReturns && elseReturns, nil
}

func (g *Generator) genWhile(b *bytecode.Builder, n *ast.Node) error {
	d := n.Data.(ast.WhileNode)
	var condB, bodyB bytecode.Builder
	if err := g.genCond(&condB, d.Cond); err != nil {
		return err
	}
	if _, err := g.genBlock(&bodyB, d.Body); err != nil {
		return err
	}
	b.Append(condB.Bytes())
	b.Jump(bytecode.BREQ, bodyB.Len()+bytecode.JumpSize)
	b.Append(bodyB.Bytes())
	b.Jump(bytecode.JMP, -(condB.Len() + bodyB.Len() + 2*bytecode.JumpSize))
	return nil
}

// genDefer evaluates the arguments now, parks them in fresh locals and
// records the call itself for replay when the block is left.
func (g *Generator) genDefer(b *bytecode.Builder, n *ast.Node) error {
	target := n.Data.(ast.DeferNode).Call
	var args []*ast.Node
	if target.Type == ast.Print {
		args = target.Data.(ast.PrintNode).Args
	} else {
		args = target.Data.(ast.CallNode).Args
	}

	for _, a := range args {
		if err := g.genExpr(b, a); err != nil {
			return err
		}
	}
	argTypes, err := g.ts.popN(len(args))
	if err != nil {
		return internal(n.Tok, err)
	}

	temps := make([]*sema.Symbol, len(args))
	for i, t := range argTypes {
		temps[i] = g.fn.Syms.Temp(t)
	}
	for i := len(temps) - 1; i >= 0; i-- {
		b.OpI32(bytecode.STORE, int32(temps[i].Slot))
	}

	var rec bytecode.Builder
	for _, tmp := range temps {
		rec.OpI32(bytecode.LOAD, int32(tmp.Slot))
	}
	if target.Type == ast.Print {
		rec.OpU32(bytecode.PRINT, uint32(len(args)))
	} else {
		f, err := g.resolveCall(target, argTypes)
		if err != nil {
			return err
		}
		rec.OpU32x2(bytecode.CALL, g.entryOf(f), uint32(len(args)))
		rec.Op(bytecode.POP)
	}

	top := len(g.defers) - 1
	g.defers[top] = append(g.defers[top], rec.Bytes())
	return nil
}

func (g *Generator) genExprStmt(b *bytecode.Builder, n *ast.Node) error {
	expr := n.Data.(ast.ExprStmtNode).Expr
	if expr.Type == ast.Call {
		f, err := g.genCall(b, expr)
		if err != nil {
			return err
		}
		if !f.IsVoid() {
			g.warn(config.WarnDiscardedValue, expr.Tok, "result of '%s' is discarded", g.excerpt(expr))
		}
		b.Op(bytecode.POP)
		return nil
	}
	if _, err := g.genValue(b, expr); err != nil {
		return err
	}
	g.warn(config.WarnDiscardedValue, expr.Tok, "value of '%s' is not used", g.excerpt(expr))
	b.Op(bytecode.POP)
	return nil
}
