package parser

import (
	"fmt"

	"github.com/xplshn/bplc/pkg/ast"
	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/lexer"
	"github.com/xplshn/bplc/pkg/token"
	"github.com/xplshn/bplc/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	source   []rune
	cfg      *config.Config
	pos      int
	current  token.Token
	previous token.Token
}

// bailout carries the first syntax error up to Parse.
type bailout struct{ err *util.CompileError }

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token, source []rune, cfg *config.Config) *Parser {
	p := &Parser{tokens: tokens, source: source, cfg: cfg}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// Parse builds the compilation unit. Parsing stops at the first syntax error.
func (p *Parser) Parse() (root *ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			root, err = nil, b.err
		}
	}()

	tok := p.current
	var funcs []*ast.Node
	for !p.check(token.EOF) {
		funcs = append(funcs, p.parseFuncDecl())
	}
	return ast.NewUnit(tok, funcs, p.source), nil
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) token.Token {
	if p.check(tokType) {
		p.advance()
		return p.previous
	}
	p.fail(p.current, "%s, found '%s'", message, p.current.Text())
	return token.Token{}
}

func (p *Parser) fail(tok token.Token, format string, args ...any) {
	panic(bailout{util.Errorf(util.ErrSyntax, tok, format, args...)})
}

func (p *Parser) require(ft config.Feature, tok token.Token) {
	if p.cfg != nil && !p.cfg.IsFeatureEnabled(ft) {
		panic(bailout{util.Errorf(util.ErrFeatureDisabled, tok, "'%s' requires feature '%s' (enable with -F%s)",
			tok.Text(), p.cfg.Features[ft].Name, p.cfg.Features[ft].Name)})
	}
}

// finish stretches n to cover everything consumed so far.
func (p *Parser) finish(n *ast.Node) *ast.Node {
	n.End = p.previous.End()
	return n
}

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash:
		return 6
	case token.Plus, token.Minus:
		return 5
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 4
	case token.EqEq, token.Neq:
		return 3
	case token.AndAnd:
		return 2
	case token.OrOr:
		return 1
	default:
		return -1
	}
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Number):
		val, err := lexer.ParseNumber(tok.Value)
		if err != nil {
			p.fail(tok, "integer literal '%s' out of range", tok.Value)
		}
		return ast.NewNumber(tok, int64(val))
	case p.match(token.String):
		return ast.NewString(tok)
	case p.match(token.Ident):
		if p.check(token.LParen) {
			return p.parseCallArgs(tok)
		}
		return ast.NewIdent(tok)
	case p.match(token.LParen):
		inner := *p.parseExpr()
		p.expect(token.RParen, "expected ')' after expression")
		// A parenthesized expression is quoted and positioned with its parentheses.
		inner.Tok = tok
		return p.finish(&inner)
	}
	p.fail(tok, "expected an expression, found '%s'", tok.Text())
	return nil
}

func (p *Parser) parseArgs() []*ast.Node {
	p.expect(token.LParen, "expected '('")
	var args []*ast.Node
	if !p.check(token.RParen) {
		for {
			args = append(args, p.parseExpr())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "expected ')' after arguments")
	return args
}

func (p *Parser) parseCallArgs(nameTok token.Token) *ast.Node {
	args := p.parseArgs()
	return p.finish(ast.NewCall(nameTok, args))
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	if p.match(token.And) {
		p.require(config.FeatPointers, tok)
		return ast.NewAddressOf(tok, p.parseUnaryExpr())
	}
	if p.match(token.Star) {
		p.require(config.FeatPointers, tok)
		return ast.NewDeref(tok, p.parseUnaryExpr())
	}
	return p.parsePrimaryExpr()
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current.Type
		prec := getBinaryOpPrecedence(op)
		if prec < minPrec || prec < 0 {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		if op == token.AndAnd || op == token.OrOr {
			left = ast.NewBoolOp(opTok, op, left, right)
		} else {
			left = ast.NewBinaryOp(opTok, op, left, right)
		}
	}
	return left
}

func (p *Parser) parseExpr() *ast.Node {
	return p.parseBinaryExpr(1)
}

func (p *Parser) parseType() *ast.Node {
	tok := p.current
	if p.match(token.Star) {
		p.require(config.FeatPointers, tok)
		return ast.NewPointerType(tok, p.parseType())
	}
	p.expect(token.Ident, "expected a type name")
	return ast.NewTypeName(p.previous)
}

// Statement and Declaration Parsing
func (p *Parser) parseBlockStmt() *ast.Node {
	tok := p.expect(token.LBrace, "expected '{' to start a block")
	var stmts []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		stmts = append(stmts, p.parseStmt())
	}
	closeTok := p.expect(token.RBrace, "expected '}' after block")
	return ast.NewBlock(tok, stmts, closeTok)
}

func (p *Parser) endStmt(n *ast.Node) *ast.Node {
	p.expect(token.Semi, fmt.Sprintf("expected ';' after %s", describe(n)))
	return p.finish(n)
}

func describe(n *ast.Node) string {
	switch n.Type {
	case ast.VarDecl:
		return "declaration"
	case ast.Return:
		return "return statement"
	case ast.Print:
		return "print statement"
	case ast.Defer:
		return "defer statement"
	case ast.Assign:
		return "assignment"
	}
	return "expression"
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch {
	case p.check(token.LBrace):
		return p.parseBlockStmt()

	case p.match(token.Var):
		nameTok := p.expect(token.Ident, "expected identifier after 'var'")
		var typ, init *ast.Node
		if !p.check(token.Eq) && !p.check(token.Semi) {
			typ = p.parseType()
		}
		if p.match(token.Eq) {
			init = p.parseExpr()
		}
		if typ == nil && init == nil {
			p.fail(nameTok, "declaration of '%s' needs a type or an initializer", nameTok.Value)
		}
		return p.endStmt(ast.NewVarDecl(nameTok, nameTok.Value, typ, init))

	case p.check(token.Ident) && p.peek().Type == token.Colon:
		p.advance()
		p.advance()
		typ := p.parseType()
		var init *ast.Node
		if p.match(token.Eq) {
			init = p.parseExpr()
		}
		return p.endStmt(ast.NewVarDecl(tok, tok.Value, typ, init))

	case p.check(token.Ident) && p.peek().Type == token.Define:
		p.advance()
		p.require(config.FeatShortDecl, p.current)
		p.advance()
		init := p.parseExpr()
		return p.endStmt(ast.NewVarDecl(tok, tok.Value, nil, init))

	case p.match(token.Return):
		var expr *ast.Node
		if !p.check(token.Semi) {
			expr = p.parseExpr()
		}
		return p.endStmt(ast.NewReturn(tok, expr))

	case p.match(token.Print):
		return p.endStmt(ast.NewPrint(tok, p.parseArgs()))

	case p.match(token.If):
		p.expect(token.LParen, "expected '(' after 'if'")
		cond := p.parseExpr()
		p.expect(token.RParen, "expected ')' after if condition")
		thenBody := p.parseStmt()
		var elseBody *ast.Node
		if p.match(token.Else) {
			elseBody = p.parseStmt()
		}
		return p.finish(ast.NewIf(tok, cond, thenBody, elseBody))

	case p.match(token.While):
		p.expect(token.LParen, "expected '(' after 'while'")
		cond := p.parseExpr()
		p.expect(token.RParen, "expected ')' after while condition")
		body := p.parseStmt()
		return p.finish(ast.NewWhile(tok, cond, body))

	case p.match(token.Defer):
		p.require(config.FeatDefer, tok)
		var call *ast.Node
		if printTok := p.current; p.match(token.Print) {
			call = p.finish(ast.NewPrint(printTok, p.parseArgs()))
		} else {
			call = p.parseExpr()
			if call.Type != ast.Call {
				p.fail(call.Tok, "expression in defer must be a function call")
			}
		}
		return p.endStmt(ast.NewDefer(tok, call))
	}

	expr := p.parseExpr()
	if p.match(token.Eq) {
		rhs := p.parseExpr()
		return p.endStmt(ast.NewAssign(tok, expr, rhs))
	}
	return p.endStmt(ast.NewExprStmt(tok, expr))
}

func (p *Parser) parseFuncDecl() *ast.Node {
	tok := p.expect(token.Func, "expected 'func' at top level")
	nameTok := p.expect(token.Ident, "expected function name after 'func'")
	p.expect(token.LParen, "expected '(' after function name")
	var params []*ast.Node
	if !p.check(token.RParen) {
		for {
			paramTok := p.expect(token.Ident, "expected parameter name")
			params = append(params, p.finish(ast.NewParam(paramTok, p.parseType())))
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "expected ')' after parameters")
	var result *ast.Node
	if !p.check(token.LBrace) {
		result = p.parseType()
	}
	body := p.parseBlockStmt()
	return p.finish(ast.NewFuncDecl(tok, nameTok, params, result, body))
}
