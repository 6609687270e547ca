// Package ast defines the syntax tree handed from the parser to the compiler passes.
package ast

import (
	"github.com/xplshn/bplc/pkg/token"
	"github.com/xplshn/bplc/pkg/util"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	Unit NodeType = iota
	FuncDecl
	Param
	Block

	// Statements
	VarDecl
	Assign
	Return
	Print
	If
	While
	Defer
	ExprStmt

	// Expressions
	Call
	BinaryOp
	BoolOp
	AddressOf
	Deref
	Ident
	Number
	String

	// Type annotations
	TypeName
	PointerType
)

var nodeNames = [...]string{
	Unit: "Unit", FuncDecl: "FuncDecl", Param: "Param", Block: "Block",
	VarDecl: "VarDecl", Assign: "Assign", Return: "Return", Print: "Print",
	If: "If", While: "While", Defer: "Defer", ExprStmt: "ExprStmt",
	Call: "Call", BinaryOp: "BinaryOp", BoolOp: "BoolOp", AddressOf: "AddressOf",
	Deref: "Deref", Ident: "Ident", Number: "Number", String: "String",
	TypeName: "TypeName", PointerType: "PointerType",
}

func (t NodeType) String() string {
	if int(t) < len(nodeNames) {
		return nodeNames[t]
	}
	return "?"
}

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type NodeType
	Tok  token.Token // first token of the construct
	End  int         // rune offset just past the construct
	Data interface{}
}

// --- Node Data Structs ---
type UnitNode struct {
	Funcs  []*Node
	Source []rune // kept for diagnostics that quote the program
}
type FuncDeclNode struct {
	Name    string
	NameTok token.Token
	Params  []*Node
	Result  *Node // nil for a void function
	Body    *Node
}
type ParamNode struct {
	Name string
	Typ  *Node
}
type BlockNode struct {
	Stmts []*Node
	Close token.Token
}
type VarDeclNode struct {
	Name string
	Typ  *Node // nil when inferred from Init
	Init *Node
}
type AssignNode struct{ Lhs, Rhs *Node }
type ReturnNode struct{ Expr *Node }
type PrintNode struct{ Args []*Node }
type IfNode struct{ Cond, Then, Else *Node }
type WhileNode struct{ Cond, Body *Node }
type DeferNode struct{ Call *Node } // a Call or a Print
type ExprStmtNode struct{ Expr *Node }
type CallNode struct {
	Name string
	Args []*Node
}
type BinaryOpNode struct {
	Op          token.Type
	Left, Right *Node
}
type BoolOpNode struct {
	Op          token.Type // AndAnd or OrOr
	Left, Right *Node
}
type AddressOfNode struct{ Expr *Node }
type DerefNode struct{ Expr *Node }
type IdentNode struct{ Name string }
type NumberNode struct{ Value int64 }
type StringNode struct{ Value string }
type TypeNameNode struct{ Name string }
type PointerTypeNode struct{ Elem *Node }

func newNode(nodeType NodeType, tok token.Token, data interface{}) *Node {
	return &Node{Type: nodeType, Tok: tok, End: tok.End(), Data: data}
}

func NewUnit(tok token.Token, funcs []*Node, src []rune) *Node {
	return newNode(Unit, tok, UnitNode{Funcs: funcs, Source: src})
}

func NewFuncDecl(tok, nameTok token.Token, params []*Node, result, body *Node) *Node {
	return newNode(FuncDecl, tok, FuncDeclNode{Name: nameTok.Value, NameTok: nameTok, Params: params, Result: result, Body: body})
}

func NewParam(tok token.Token, typ *Node) *Node {
	return newNode(Param, tok, ParamNode{Name: tok.Value, Typ: typ})
}

func NewBlock(tok token.Token, stmts []*Node, closeTok token.Token) *Node {
	n := newNode(Block, tok, BlockNode{Stmts: stmts, Close: closeTok})
	n.End = closeTok.End()
	return n
}

func NewVarDecl(tok token.Token, name string, typ, init *Node) *Node {
	return newNode(VarDecl, tok, VarDeclNode{Name: name, Typ: typ, Init: init})
}

func NewAssign(tok token.Token, lhs, rhs *Node) *Node {
	return newNode(Assign, tok, AssignNode{Lhs: lhs, Rhs: rhs})
}

func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(Return, tok, ReturnNode{Expr: expr})
}

func NewPrint(tok token.Token, args []*Node) *Node {
	return newNode(Print, tok, PrintNode{Args: args})
}

func NewIf(tok token.Token, cond, thenBody, elseBody *Node) *Node {
	return newNode(If, tok, IfNode{Cond: cond, Then: thenBody, Else: elseBody})
}

func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(While, tok, WhileNode{Cond: cond, Body: body})
}

func NewDefer(tok token.Token, call *Node) *Node {
	return newNode(Defer, tok, DeferNode{Call: call})
}

func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(ExprStmt, tok, ExprStmtNode{Expr: expr})
}

func NewCall(tok token.Token, args []*Node) *Node {
	return newNode(Call, tok, CallNode{Name: tok.Value, Args: args})
}

func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	n := newNode(BinaryOp, left.Tok, BinaryOpNode{Op: op, Left: left, Right: right})
	n.End = right.End
	return n
}

func NewBoolOp(tok token.Token, op token.Type, left, right *Node) *Node {
	n := newNode(BoolOp, left.Tok, BoolOpNode{Op: op, Left: left, Right: right})
	n.End = right.End
	return n
}

func NewAddressOf(tok token.Token, expr *Node) *Node {
	n := newNode(AddressOf, tok, AddressOfNode{Expr: expr})
	n.End = expr.End
	return n
}

func NewDeref(tok token.Token, expr *Node) *Node {
	n := newNode(Deref, tok, DerefNode{Expr: expr})
	n.End = expr.End
	return n
}

func NewIdent(tok token.Token) *Node {
	return newNode(Ident, tok, IdentNode{Name: tok.Value})
}

func NewNumber(tok token.Token, value int64) *Node {
	return newNode(Number, tok, NumberNode{Value: value})
}

func NewString(tok token.Token) *Node {
	return newNode(String, tok, StringNode{Value: tok.Value})
}

func NewTypeName(tok token.Token) *Node {
	return newNode(TypeName, tok, TypeNameNode{Name: tok.Value})
}

func NewPointerType(tok token.Token, elem *Node) *Node {
	n := newNode(PointerType, tok, PointerTypeNode{Elem: elem})
	n.End = elem.End
	return n
}

// Excerpt renders n the way diagnostics quote it.
func Excerpt(src []rune, n *Node) string {
	if n == nil {
		return ""
	}
	return util.Compact(src, n.Tok.Pos, n.End)
}
