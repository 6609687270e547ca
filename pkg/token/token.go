package token

type Type int

const (
	EOF Type = iota
	Ident
	Number
	String

	// Keywords
	Func
	Var
	Return
	Print
	If
	Else
	While
	Defer

	// Punctuation
	LParen
	RParen
	LBrace
	RBrace
	Semi
	Comma
	Colon
	Define
	Eq

	// Operators
	Plus
	Minus
	Star
	Slash
	Lt
	Gt
	Lte
	Gte
	EqEq
	Neq
	AndAnd
	OrOr
	And
)

var KeywordMap = map[string]Type{
	"func":   Func,
	"var":    Var,
	"return": Return,
	"print":  Print,
	"if":     If,
	"else":   Else,
	"while":  While,
	"defer":  Defer,
}

var punctStrings = map[Type]string{
	EOF:    "<EOF>",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}",
	Semi: ";", Comma: ",", Colon: ":", Define: ":=", Eq: "=",
	Plus: "+", Minus: "-", Star: "*", Slash: "/",
	Lt: "<", Gt: ">", Lte: "<=", Gte: ">=", EqEq: "==", Neq: "!=",
	AndAnd: "&&", OrOr: "||", And: "&",
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range punctStrings {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	switch t {
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string literal"
	}
	return "?"
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Pos       int // rune offset into the source
	Len       int
}

// Text returns the token as it would be quoted in a diagnostic.
func (t Token) Text() string {
	switch t.Type {
	case Ident, Number:
		return t.Value
	case String:
		return "\"" + t.Value + "\""
	}
	return t.Type.String()
}

// End is the rune offset just past the token.
func (t Token) End() int { return t.Pos + t.Len }
