// Package codegen lowers a resolved BPL syntax tree to VM bytecode.
package codegen

import (
	"fmt"
	"slices"

	"github.com/tliron/commonlog"
	"github.com/xplshn/bplc/pkg/ast"
	"github.com/xplshn/bplc/pkg/bytecode"
	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/sema"
	"github.com/xplshn/bplc/pkg/token"
	"github.com/xplshn/bplc/pkg/types"
	"github.com/xplshn/bplc/pkg/util"
)

var log = commonlog.GetLogger("bpl.codegen")

// Program is the output of a successful code generation.
type Program struct {
	Code    []byte
	Funcs   *sema.FuncTable
	Strings []string
	// Entry is the address of main's first instruction.
	Entry int
	// Passes is the number of layout passes it took to converge.
	Passes int
}

// Labels maps every function entry address to its signature.
func (p *Program) Labels() map[int]string {
	labels := make(map[int]string)
	for _, f := range p.Funcs.All() {
		labels[f.Entry] = f.String()
	}
	return labels
}

// Generator holds the state of one code generation: the static store
// survives between layout passes, everything else is rebuilt per function.
type Generator struct {
	cfg    *config.Config
	diags  *util.Diagnostics
	reg    *types.Registry
	funcs  *sema.FuncTable
	src    []rune
	static *Static

	fn     *sema.Func
	ts     typeStack
	defers [][][]byte
	pass   int
	// used holds the entry each CALL target was emitted with this pass.
	used map[*sema.Func]int
}

func NewGenerator(cfg *config.Config, diags *util.Diagnostics, reg *types.Registry, funcs *sema.FuncTable) *Generator {
	return &Generator{cfg: cfg, diags: diags, reg: reg, funcs: funcs, static: NewStatic()}
}

// Generate emits every function until the layout reaches a fixed point. A
// CALL to a function that has not been emitted yet in the current pass
// uses the entry from the previous pass. A pass is final once every CALL
// it emitted used its target's final entry and the data segment kept the
// length the pass started from.
func (g *Generator) Generate(root *ast.Node) (*Program, error) {
	if root == nil || root.Type != ast.Unit {
		return nil, util.Errorf(util.ErrInternal, token.Token{}, "codegen: expected a compilation unit")
	}
	g.src = root.Data.(ast.UnitNode).Source
	funcs := g.funcs.All()

	for g.pass = 1; g.pass <= len(funcs)+2; g.pass++ {
		dataLen := g.static.Len()
		base := bytecode.HeaderSize(dataLen)
		log.Debugf("pass %d: base %#x, %d static bytes", g.pass, base, dataLen)

		g.used = make(map[*sema.Func]int)
		var body bytecode.Builder
		for _, f := range funcs {
			f.Syms.ClearLocals()
			f.Entry = base + body.Len()
			code, err := g.genFunc(f)
			if err != nil {
				return nil, err
			}
			body.Append(code)
		}

		if g.static.Len() == dataLen && g.settled() {
			return g.assemble(body.Bytes())
		}
	}
	return nil, util.Errorf(util.ErrInternal, token.Token{}, "codegen: layout did not converge after %d passes", len(funcs)+2)
}

func (g *Generator) assemble(body []byte) (*Program, error) {
	main, ok := g.funcs.First(sema.EntryPoint)
	if !ok {
		return nil, util.Errorf(util.ErrMainMissing, token.Token{}, "function '%s()' undeclared", sema.EntryPoint)
	}
	if left := g.funcs.Unresolved(); len(left) > 0 {
		return nil, util.Errorf(util.ErrInternal, token.Token{}, "codegen: %d functions have no entry", len(left))
	}
	code := bytecode.WriteHeader(nil, g.static.Bytes(), main.Entry)
	code = append(code, body...)
	log.Infof("generated %d bytes in %d passes (%d functions, %d strings)",
		len(code), g.pass, len(g.funcs.All()), len(g.static.Strings()))
	return &Program{Code: code, Funcs: g.funcs, Strings: g.static.Strings(), Entry: main.Entry, Passes: g.pass}, nil
}

func (g *Generator) genFunc(f *sema.Func) ([]byte, error) {
	g.fn = f
	g.ts = g.ts[:0]
	g.defers = nil
	d := f.Decl.Data.(ast.FuncDeclNode)

	var b bytecode.Builder
	returns, err := g.genBlock(&b, d.Body)
	if err != nil {
		return nil, err
	}
	if !returns {
		if !f.IsVoid() {
			closeTok := d.Body.Data.(ast.BlockNode).Close
			return nil, util.Errorf(util.ErrReturnMissing, closeTok, "missing return statement before '}'")
		}
		b.OpI64(bytecode.IPUSH, 0)
		b.Op(bytecode.RET)
	}
	f.Returns = returns

	var out bytecode.Builder
	if n := f.Syms.NumLocals(); n > 0 {
		out.OpU32(bytecode.LOCALS, uint32(n))
	}
	out.Append(b.Bytes())
	log.Debugf("%s: entry %#x, %d bytes, %d locals", f, f.Entry, out.Len(), f.Syms.NumLocals())
	return out.Bytes(), nil
}

func (g *Generator) excerpt(n *ast.Node) string { return ast.Excerpt(g.src, n) }

// warn records a warning once; later layout passes revisit the same nodes.
func (g *Generator) warn(wt config.Warning, tok token.Token, format string, args ...any) {
	if g.pass == 1 {
		g.diags.Warn(wt, tok, format, args...)
	}
}

func (g *Generator) mismatch(at *ast.Node, have, want string) error {
	return util.Errorf(util.ErrTypeMismatch, at.Tok, "type mismatch at '%s' - have %s want %s", g.excerpt(at), have, want)
}

// entryOf returns the CALL operand for f and remembers it for settled.
func (g *Generator) entryOf(f *sema.Func) uint32 {
	g.used[f] = f.Entry
	if !f.Resolved() {
		return 0
	}
	return uint32(f.Entry)
}

func (g *Generator) settled() bool {
	for f, entry := range g.used {
		if f.Entry != entry {
			return false
		}
	}
	return true
}

// typeStack mirrors the VM stack at compile time.
type typeStack []*types.Type

func (s *typeStack) push(t *types.Type) { *s = append(*s, t) }

func (s *typeStack) pop() (*types.Type, error) {
	if len(*s) == 0 {
		return nil, fmt.Errorf("type stack underflow")
	}
	t := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]
	return t, nil
}

// popN removes n types and returns them in push order.
func (s *typeStack) popN(n int) ([]*types.Type, error) {
	if n > len(*s) {
		return nil, fmt.Errorf("type stack underflow: want %d, have %d", n, len(*s))
	}
	res := slices.Clone((*s)[len(*s)-n:])
	*s = (*s)[:len(*s)-n]
	return res, nil
}

func internal(tok token.Token, err error) error {
	return util.Errorf(util.ErrInternal, tok, "codegen: %v", err)
}
