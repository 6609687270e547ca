package lexer

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/token"
	"github.com/xplshn/bplc/pkg/util"
)

func lex(t *testing.T, src string) ([]token.Token, *util.Diagnostics) {
	t.Helper()
	cfg := config.NewConfig()
	diags := util.NewDiagnostics(cfg)
	toks, err := NewLexer([]rune(src), 0, cfg, diags).Tokenize()
	be.Err(t, err, nil)
	return toks, diags
}

func lexErr(src string) error {
	cfg := config.NewConfig()
	_, err := NewLexer([]rune(src), 0, cfg, util.NewDiagnostics(cfg)).Tokenize()
	return err
}

func typesOf(toks []token.Token) []token.Type {
	res := make([]token.Type, len(toks))
	for i, tok := range toks {
		res[i] = tok.Type
	}
	return res
}

func TestKeywordsAndPunctuation(t *testing.T) {
	toks, _ := lex(t, "func main() int { x := 1; y: *int; return x; }")
	want := []token.Type{
		token.Func, token.Ident, token.LParen, token.RParen, token.Ident, token.LBrace,
		token.Ident, token.Define, token.Number, token.Semi,
		token.Ident, token.Colon, token.Star, token.Ident, token.Semi,
		token.Return, token.Ident, token.Semi,
		token.RBrace, token.EOF,
	}
	be.Equal(t, typesOf(toks), want)
	be.Equal(t, toks[1].Value, "main")
	be.Equal(t, toks[4].Value, "int")
}

func TestOperators(t *testing.T) {
	tests := []struct {
		input string
		typ   token.Type
	}{
		{"+", token.Plus},
		{"-", token.Minus},
		{"*", token.Star},
		{"/", token.Slash},
		{"<", token.Lt},
		{">", token.Gt},
		{"<=", token.Lte},
		{">=", token.Gte},
		{"==", token.EqEq},
		{"!=", token.Neq},
		{"&&", token.AndAnd},
		{"||", token.OrOr},
		{"&", token.And},
		{"=", token.Eq},
		{":=", token.Define},
	}
	for _, tt := range tests {
		toks, _ := lex(t, tt.input)
		be.Equal(t, len(toks), 2)
		be.Equal(t, toks[0].Type, tt.typ)
		be.Equal(t, toks[0].Len, len(tt.input))
	}
}

func TestNumbers(t *testing.T) {
	toks, _ := lex(t, "42 0x1F 0")
	be.Equal(t, toks[0].Value, "42")
	be.Equal(t, toks[1].Value, "0x1F")
	be.Equal(t, toks[2].Value, "0")

	v, err := ParseNumber("0x1F")
	be.Err(t, err, nil)
	be.Equal(t, v, uint64(31))
}

func TestNumberOverflowWarns(t *testing.T) {
	toks, diags := lex(t, "0xffffffffffffffff")
	be.Equal(t, toks[0].Type, token.Number)
	be.Equal(t, len(diags.Warnings), 1)
	be.Equal(t, diags.Warnings[0].Kind, config.WarnOverflow)
}

func TestMalformedNumbers(t *testing.T) {
	err := lexErr("12abc")
	kind, ok := util.KindOf(err)
	be.True(t, ok)
	be.Equal(t, kind, util.ErrSyntax)

	err = lexErr("0x10000000000000000")
	kind, _ = util.KindOf(err)
	be.Equal(t, kind, util.ErrSyntax)
}

func TestStrings(t *testing.T) {
	toks, _ := lex(t, `"a\tb\n\x41\\\"" "plain"`)
	be.Equal(t, toks[0].Type, token.String)
	be.Equal(t, toks[0].Value, "a\tb\nA\\\"")
	be.Equal(t, toks[1].Value, "plain")
	be.Equal(t, toks[0].Text(), "\"a\tb\nA\\\"\"")
}

func TestStringEscapesDisabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatCEsc, false)
	toks, err := NewLexer([]rune(`"a\nb"`), 0, cfg, util.NewDiagnostics(cfg)).Tokenize()
	be.Err(t, err, nil)
	be.Equal(t, toks[0].Value, `a\nb`)
}

func TestUnknownEscapeWarns(t *testing.T) {
	toks, diags := lex(t, `"\q"`)
	be.Equal(t, toks[0].Value, "q")
	be.Equal(t, len(diags.Warnings), 1)
	be.Equal(t, diags.Warnings[0].Kind, config.WarnUnrecognizedEscape)
}

func TestUnterminated(t *testing.T) {
	for _, src := range []string{`"abc`, "\"abc\n\"", "/* never closed", `"\x4"`} {
		kind, ok := util.KindOf(lexErr(src))
		be.True(t, ok)
		be.Equal(t, kind, util.ErrSyntax)
	}
}

func TestComments(t *testing.T) {
	toks, _ := lex(t, "a // line\n/* block\n spanning */ b")
	be.Equal(t, typesOf(toks), []token.Type{token.Ident, token.Ident, token.EOF})
	be.Equal(t, toks[1].Line, 3)
	be.Equal(t, toks[1].Column, 14)
}

func TestPositions(t *testing.T) {
	toks, _ := lex(t, "x\n  yy")
	be.Equal(t, toks[0].Line, 1)
	be.Equal(t, toks[0].Column, 1)
	be.Equal(t, toks[1].Line, 2)
	be.Equal(t, toks[1].Column, 3)
	be.Equal(t, toks[1].Pos, 4)
	be.Equal(t, toks[1].End(), 6)
}

func TestUnexpectedCharacter(t *testing.T) {
	err := lexErr("a $ b")
	var ce *util.CompileError
	be.True(t, errors.As(err, &ce))
	be.Equal(t, ce.Msg, "unexpected character '$'")
	be.Equal(t, ce.Tok.Column, 3)
}
